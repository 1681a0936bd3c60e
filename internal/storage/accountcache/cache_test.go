package accountcache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

func TestCache_StoreThenLookup(t *testing.T) {
	c, err := New(Options{Capacity: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Lookup("0xABC123"); ok {
		t.Fatal("expected empty cache miss")
	}
	c.Store("0xABC123", "noble1xyz")
	got, ok := c.Lookup("0xABC123")
	if !ok || got != "noble1xyz" {
		t.Fatalf("expected noble1xyz, got %q ok=%v", got, ok)
	}
}

func TestCache_StoreNeverOverwrites(t *testing.T) {
	c, err := New(Options{Capacity: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Store("0x01", "noble1first")
	c.Store("0x01", "noble1second")
	got, _ := c.Lookup("0x01")
	if got != "noble1first" {
		t.Fatalf("expected first address to win, got %q", got)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one entry, got %d", c.Len())
	}
}

func TestCache_IgnoresBlankValues(t *testing.T) {
	c, err := New(Options{Capacity: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Store("", "noble1x")
	c.Store("0x01", "")
	if c.Len() != 0 {
		t.Fatalf("expected blank keys/values to be ignored, got %d entries", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := New(Options{
		Capacity: 2,
		OnEvict:  func(recipient, _ string) { evicted = append(evicted, recipient) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Store("0x01", "noble1a")
	c.Store("0x02", "noble1b")
	if _, ok := c.Lookup("0x01"); !ok {
		t.Fatal("expected 0x01 to be present")
	}
	c.Store("0x03", "noble1c")

	if _, ok := c.Lookup("0x02"); ok {
		t.Fatal("expected least recently used entry to be evicted")
	}
	if len(evicted) != 1 || evicted[0] != "0x02" {
		t.Fatalf("unexpected eviction callback: %v", evicted)
	}
	if c.Len() != 2 {
		t.Fatalf("expected capacity to bound size, got %d", c.Len())
	}
}

func TestCache_TTLExpiresEntries(t *testing.T) {
	c, err := New(Options{Capacity: 8, TTL: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Store("0x01", "noble1a")
	c.Store("0x01", "noble1other")
	if got, ok := c.Lookup("0x01"); !ok || got != "noble1a" {
		t.Fatalf("expected fresh entry, got %q ok=%v", got, ok)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Lookup("0x01"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected entry to expire")
}

func TestCache_BoundedUnderManyKeys(t *testing.T) {
	c, err := New(Options{Capacity: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 1000; i++ {
		c.Store(fmt.Sprintf("0x%04x", i), fmt.Sprintf("noble1%d", i))
	}
	if c.Len() != 16 {
		t.Fatalf("expected 16 entries, got %d", c.Len())
	}
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	if _, err := New(Options{Capacity: -1}); !errors.Is(err, contracts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for negative capacity, got %v", err)
	}
	if _, err := New(Options{TTL: -time.Second}); !errors.Is(err, contracts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for negative ttl, got %v", err)
	}
}
