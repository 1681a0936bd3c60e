package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

// ApplyEnvOverrides layers environment variables over cfg. Malformed numeric
// or duration values are configuration errors rather than silent fallbacks.
func ApplyEnvOverrides(cfg *Config) error {
	if port := envString("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return contracts.ConfigError("PORT must be numeric: %q", port)
		}
		cfg.Server.Addr = ":" + port
	}
	setString(&cfg.Server.Token, "FWD_RPC_TOKEN")
	if origins := envCSV("FWD_ALLOWED_ORIGINS"); origins != nil {
		cfg.Server.AllowedOrigins = origins
	}
	setString(&cfg.Log.Level, "FWD_LOG_LEVEL")
	setString(&cfg.Log.Format, "FWD_LOG_FORMAT")

	setString(&cfg.Noble.GRPCAddress, "NOBLE_GRPC_ADDRESS")
	setString(&cfg.Noble.ChainID, "NOBLE_CHAIN_ID")
	setString(&cfg.Noble.SchemaPath, "NOBLE_SCHEMA_PATH")
	setString(&cfg.Noble.DefaultChannel, "NOBLE_DEFAULT_CHANNEL")
	if v, ok := os.LookupEnv("NOBLE_DEFAULT_FALLBACK"); ok {
		cfg.Noble.DefaultFallback = strings.TrimSpace(v)
	}
	cfg.Noble.Insecure = envBoolWithFallback("NOBLE_GRPC_INSECURE", cfg.Noble.Insecure)

	setString(&cfg.Signer.Mnemonic, "NOBLE_SIGNER_MNEMONIC")
	setString(&cfg.Signer.Keyfile, "NOBLE_SIGNER_KEYFILE")
	if v, ok := os.LookupEnv("NOBLE_SIGNER_PASSPHRASE"); ok && v != "" {
		cfg.Signer.Passphrase = v
	}
	setString(&cfg.Signer.Prefix, "NOBLE_SIGNER_PREFIX")

	if raw := envString("NOBLE_CONFIRMATION_DELAY"); raw != "" {
		d, err := parseMillisOrDuration(raw)
		if err != nil {
			return contracts.ConfigError("NOBLE_CONFIRMATION_DELAY: %v", err)
		}
		cfg.Engine.ConfirmationDelay = d
	}
	if raw := envString("FWD_CACHE_TTL"); raw != "" {
		d, err := parseMillisOrDuration(raw)
		if err != nil {
			return contracts.ConfigError("FWD_CACHE_TTL: %v", err)
		}
		cfg.Cache.TTL = d
	}
	for _, v := range []struct {
		key string
		dst *int
	}{
		{"FWD_CACHE_CAPACITY", &cfg.Cache.Capacity},
		{"FWD_RATE_LIMIT_BURST", &cfg.Server.RateLimitBurst},
		{"NOBLE_CONFIRM_ATTEMPTS", &cfg.Engine.ConfirmAttempts},
	} {
		raw := envString(v.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return contracts.ConfigError("%s must be an integer: %q", v.key, raw)
		}
		*v.dst = n
	}
	if raw := envString("FWD_RATE_LIMIT_RPS"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return contracts.ConfigError("FWD_RATE_LIMIT_RPS must be a number: %q", raw)
		}
		cfg.Server.RateLimitRPS = rps
	}
	return nil
}

// parseMillisOrDuration accepts a bare integer as milliseconds, or a Go
// duration string.
func parseMillisOrDuration(raw string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

func setString(dst *string, key string) {
	if v := envString(key); v != "" {
		*dst = v
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envCSV(key string) []string {
	raw := envString(key)
	if raw == "" {
		return nil
	}
	out := make([]string, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envBoolWithFallback(key string, fallback bool) bool {
	switch strings.ToLower(envString(key)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
