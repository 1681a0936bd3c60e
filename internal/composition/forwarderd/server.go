// Package forwarderd wires configuration, the chain adapter, the
// reconciliation engine and the ingress into one runnable daemon.
package forwarderd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc"

	"cctp-forwarder/go-backend/internal/adapters/noble"
	"cctp-forwarder/go-backend/internal/adapters/rpc"
	"cctp-forwarder/go-backend/internal/config"
	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
	"cctp-forwarder/go-backend/internal/domains/forwarding/usecase"
	"cctp-forwarder/go-backend/internal/observability"
	"cctp-forwarder/go-backend/internal/signer"
	"cctp-forwarder/go-backend/internal/storage/accountcache"
)

type Daemon struct {
	Server  *rpc.Server
	Engine  *usecase.Engine
	Metrics *observability.Metrics
	Signer  string

	conn   *grpc.ClientConn
	logger *slog.Logger
}

// Build validates cfg and assembles the daemon. Any failure is a
// configuration error; nothing is contacted on the network yet.
func Build(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics()

	schema, err := noble.LoadSchema(cfg.Noble.SchemaPath)
	if err != nil {
		return nil, err
	}
	provider, err := signer.NewProvider(signer.Options{
		Mnemonic:   cfg.Signer.Mnemonic,
		Keyfile:    cfg.Signer.Keyfile,
		Passphrase: cfg.Signer.Passphrase,
		Prefix:     cfg.Signer.Prefix,
		HDPath:     cfg.Signer.HDPath,
	})
	if err != nil {
		return nil, err
	}

	conn, err := noble.Dial(cfg.Noble.GRPCAddress, noble.DialOptions{
		Insecure:     cfg.Noble.Insecure,
		MaxMsgBytes:  cfg.Noble.MaxMsgBytes,
		Interceptors: []grpc.UnaryClientInterceptor{metrics.UnaryClientInterceptor()},
	})
	if err != nil {
		return nil, err
	}
	broadcaster, err := noble.NewBroadcaster(noble.BroadcasterDeps{
		Conn:    conn,
		Schema:  schema,
		Signer:  provider,
		ChainID: cfg.Noble.ChainID,
		Timeout: cfg.Noble.CallTimeout,
		Logger:  logger,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	cache, err := accountcache.New(accountcache.Options{
		Capacity: cfg.Cache.Capacity,
		TTL:      cfg.Cache.TTL,
		Logger:   logger,
		OnEvict:  func(string, string) { metrics.ObserveEviction() },
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	metrics.RegisterCacheSize(cache.Len)

	engine, err := usecase.NewEngine(usecase.EngineDeps{
		Querier:     noble.NewQueryClient(conn, schema, cfg.Noble.CallTimeout, logger),
		Broadcaster: broadcaster,
		Cache:       cache,
		Clock:       clock.New(),
		Metrics:     metrics,
		Logger:      logger,
	}, EngineConfig(cfg))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	server, err := rpc.NewServer(rpc.ServerConfig{
		Addr:           cfg.Server.Addr,
		Token:          cfg.Server.Token,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}, rpc.ServerDeps{
		Forwarder: engine,
		Recorder:  metrics,
		Metrics:   metrics.Handler(),
		Logger:    logger,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Daemon{
		Server:  server,
		Engine:  engine,
		Metrics: metrics,
		Signer:  provider.Address(),
		conn:    conn,
		logger:  logger,
	}, nil
}

// EngineConfig maps daemon settings onto the reconciliation policy.
func EngineConfig(cfg config.Config) usecase.EngineConfig {
	out := usecase.DefaultEngineConfig()
	out.DefaultChannel = cfg.Noble.DefaultChannel
	out.DefaultFallback = cfg.Noble.DefaultFallback
	out.Fee = model.Fee{Denom: cfg.Noble.FeeDenom, Amount: cfg.Noble.FeeAmount}
	out.GasLimit = cfg.Noble.GasLimit
	out.ConfirmationDelay = cfg.Engine.ConfirmationDelay
	out.ConfirmAttempts = cfg.Engine.ConfirmAttempts
	out.ConfirmBackoff = backoffConfig(cfg.Engine.ConfirmBackoff, out.ConfirmBackoff)
	out.QueryAttempts = cfg.Engine.QueryAttempts
	out.QueryBackoff = backoffConfig(cfg.Engine.QueryBackoff, out.QueryBackoff)
	out.RegisterOnQueryFailure = cfg.Engine.RegisterOnQueryFailure
	return out
}

func backoffConfig(src config.BackoffConfig, fallback usecase.BackoffConfig) usecase.BackoffConfig {
	out := fallback
	if src.Initial > 0 {
		out.InitialInterval = src.Initial
	}
	if src.Multiplier >= 1 {
		out.Multiplier = src.Multiplier
	}
	if src.Max > 0 {
		out.MaxInterval = src.Max
	}
	if src.Jitter > 0 && src.Jitter < 1 {
		out.RandomizationFactor = src.Jitter
	}
	return out
}

// Run serves until ctx is cancelled and then closes the chain connection.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("forwarder starting",
		"component", "forwarderd",
		"operation", "run",
		"signer", d.Signer,
	)
	runErr := d.Server.Run(ctx)
	closeErr := d.conn.Close()
	return errors.Join(runErr, closeErr)
}
