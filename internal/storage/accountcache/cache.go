// Package accountcache memoizes recipient -> forwarding address mappings for
// the lifetime of the process, bounded by capacity and an optional TTL.
package accountcache

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

const DefaultCapacity = 100_000

type Options struct {
	Capacity int
	// TTL evicts entries after a fixed lifetime. Zero keeps entries until
	// capacity pressure evicts them.
	TTL     time.Duration
	Logger  *slog.Logger
	OnEvict func(recipient, address string)
}

type store interface {
	Get(key string) (string, bool)
	PeekOrAdd(key, value string) (string, bool, bool)
	Len() int
	Purge()
}

type Cache struct {
	entries store
	logger  *slog.Logger
}

func New(opts Options) (*Cache, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 0 {
		return nil, contracts.ConfigError("account cache capacity must be positive")
	}
	if opts.TTL < 0 {
		return nil, contracts.ConfigError("account cache ttl must not be negative")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onEvict := opts.OnEvict

	c := &Cache{logger: logger}
	if opts.TTL > 0 {
		c.entries = &expiringStore{lru: expirable.NewLRU[string, string](capacity, onEvict, opts.TTL)}
		return c, nil
	}
	entries, err := lru.NewWithEvict[string, string](capacity, onEvict)
	if err != nil {
		return nil, contracts.ConfigError("account cache: %v", err)
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) Lookup(recipient string) (string, bool) {
	return c.entries.Get(strings.TrimSpace(recipient))
}

// Store records the address for recipient unless one is already present. A
// forwarding address is immutable once registered, so a conflicting value
// indicates a bug upstream and is logged rather than applied.
func (c *Cache) Store(recipient, address string) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || address == "" {
		return
	}
	previous, found, _ := c.entries.PeekOrAdd(recipient, address)
	if found && previous != address {
		c.logger.Warn("conflicting forwarding address ignored",
			"component", "accountcache",
			"recipient", recipient,
			"cached_address", previous,
			"rejected_address", address,
		)
	}
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) Purge() {
	c.entries.Purge()
}

// expiringStore adds the check-then-insert primitive the expirable LRU lacks.
type expiringStore struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, string]
}

func (s *expiringStore) Get(key string) (string, bool) {
	return s.lru.Get(key)
}

func (s *expiringStore) PeekOrAdd(key, value string) (string, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.lru.Peek(key); ok {
		return previous, true, false
	}
	return "", false, s.lru.Add(key, value)
}

func (s *expiringStore) Len() int {
	return s.lru.Len()
}

func (s *expiringStore) Purge() {
	s.lru.Purge()
}
