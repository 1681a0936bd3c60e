// Package config loads forwarderd settings: built-in defaults, then an
// optional YAML file, then environment overrides. Validate reports every
// problem as a configuration error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cctp-forwarder/go-backend/internal/adapters/noble"
	"cctp-forwarder/go-backend/internal/domains/contracts"
	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
	"cctp-forwarder/go-backend/internal/domains/forwarding/policy"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Noble  NobleConfig  `yaml:"noble"`
	Signer SignerConfig `yaml:"signer"`
	Engine EngineConfig `yaml:"engine"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	Token          string        `yaml:"token"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	RateLimitRPS   float64       `yaml:"rateLimitRps"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
}

type NobleConfig struct {
	GRPCAddress     string        `yaml:"grpcAddress"`
	Insecure        bool          `yaml:"insecure"`
	ChainID         string        `yaml:"chainId"`
	SchemaPath      string        `yaml:"schemaPath"`
	CallTimeout     time.Duration `yaml:"callTimeout"`
	MaxMsgBytes     int           `yaml:"maxMsgBytes"`
	DefaultChannel  string        `yaml:"defaultChannel"`
	DefaultFallback string        `yaml:"defaultFallback"`
	FeeDenom        string        `yaml:"feeDenom"`
	FeeAmount       string        `yaml:"feeAmount"`
	GasLimit        uint64        `yaml:"gasLimit"`
}

type SignerConfig struct {
	Mnemonic   string `yaml:"mnemonic"`
	Keyfile    string `yaml:"keyfile"`
	Passphrase string `yaml:"passphrase"`
	Prefix     string `yaml:"prefix"`
	HDPath     string `yaml:"hdPath"`
}

type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Multiplier float64       `yaml:"multiplier"`
	Max        time.Duration `yaml:"max"`
	Jitter     float64       `yaml:"jitter"`
}

type EngineConfig struct {
	ConfirmationDelay      time.Duration `yaml:"confirmationDelay"`
	ConfirmAttempts        int           `yaml:"confirmAttempts"`
	ConfirmBackoff         BackoffConfig `yaml:"confirmBackoff"`
	QueryAttempts          int           `yaml:"queryAttempts"`
	QueryBackoff           BackoffConfig `yaml:"queryBackoff"`
	RegisterOnQueryFailure bool          `yaml:"registerOnQueryFailure"`
}

type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":3001",
			RateLimitRPS:   30,
			RateLimitBurst: 60,
			RequestTimeout: 60 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Noble: NobleConfig{
			CallTimeout:     10 * time.Second,
			DefaultChannel:  model.DefaultChannel,
			DefaultFallback: model.DefaultFallback,
			FeeDenom:        model.DefaultFeeDenom,
			FeeAmount:       model.DefaultFeeAmount,
			GasLimit:        model.DefaultGasLimit,
		},
		Signer: SignerConfig{Prefix: "noble"},
		Engine: EngineConfig{
			ConfirmationDelay: 5 * time.Second,
			ConfirmAttempts:   3,
			ConfirmBackoff:    BackoffConfig{Initial: 2 * time.Second, Multiplier: 1.5, Max: 10 * time.Second},
			QueryAttempts:     2,
			QueryBackoff:      BackoffConfig{Initial: 500 * time.Millisecond, Multiplier: 2, Max: 2 * time.Second},
		},
		Cache: CacheConfig{Capacity: 100_000},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// LoadFromPath reads configPath, or the first default location that exists
// when configPath is empty, then applies environment overrides. A missing
// default file is not an error; a missing explicit file is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{"configs/config.yaml", "go-backend/configs/config.yaml"}
	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		candidates = []string{strings.TrimSpace(configPath)}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, contracts.ConfigError("read config %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, contracts.ConfigError("parse config %s: %v", path, err)
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks everything the daemon needs before it starts serving.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Noble.GRPCAddress) == "" {
		add("noble.grpcAddress (NOBLE_GRPC_ADDRESS) is required")
	} else if _, err := noble.ParseEndpoint(c.Noble.GRPCAddress); err != nil {
		add("noble.grpcAddress: %v", err)
	}
	if strings.TrimSpace(c.Noble.ChainID) == "" {
		add("noble.chainId (NOBLE_CHAIN_ID) is required")
	}
	if strings.TrimSpace(c.Noble.DefaultChannel) == "" {
		add("noble.defaultChannel is required")
	} else if err := policy.ValidateChannel(c.Noble.DefaultChannel); err != nil {
		add("noble.defaultChannel: %v", err)
	}
	if err := policy.ValidateFallback(c.Noble.DefaultFallback); err != nil {
		add("noble.defaultFallback: %v", err)
	}
	if c.Noble.FeeDenom == "" || c.Noble.FeeAmount == "" || c.Noble.GasLimit == 0 {
		add("noble fee denom, amount and gas limit are required")
	}
	if strings.TrimSpace(c.Signer.Mnemonic) == "" && strings.TrimSpace(c.Signer.Keyfile) == "" {
		add("signer key material is required (NOBLE_SIGNER_MNEMONIC or NOBLE_SIGNER_KEYFILE)")
	}
	if strings.TrimSpace(c.Signer.Mnemonic) == "" && strings.TrimSpace(c.Signer.Keyfile) != "" && c.Signer.Passphrase == "" {
		add("signer.passphrase (NOBLE_SIGNER_PASSPHRASE) is required with a keyfile")
	}
	if c.Engine.ConfirmationDelay < 0 {
		add("engine.confirmationDelay must not be negative")
	}
	if c.Engine.ConfirmAttempts < 1 || c.Engine.QueryAttempts < 1 {
		add("engine attempts must be at least 1")
	}
	if c.Cache.Capacity < 1 {
		add("cache.capacity must be positive")
	}
	if c.Cache.TTL < 0 {
		add("cache.ttl must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		add("log.format must be json or text")
	}

	if len(problems) > 0 {
		return contracts.ConfigError("%s", strings.Join(problems, "; "))
	}
	return nil
}

func ParseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
