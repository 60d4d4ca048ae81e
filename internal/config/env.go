package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	envHost            = "TURBOFLAKES_HOST"
	envPort            = "TURBOFLAKES_PORT"
	envSubstrateWSURL  = "SUBSTRATE_WS_URL"
	envRedisHostname   = "REDIS_HOSTNAME"
	envRedisPassword   = "REDIS_PASSWORD"
	envRedisDatabase   = "REDIS_DATABASE"
	envCORSAllowOrigin = "TURBOFLAKES_CORS_ALLOW_ORIGIN"
	envHistoryDepth    = "TURBOFLAKES_HISTORY_DEPTH"
	envLogLevel        = "RUST_LOG"
	envLogBacktrace    = "RUST_BACKTRACE"
)

// ConfigFilenameEnv is the variable that selects the dotenv file read before
// the rest of the environment, defaulting to ".env".
const ConfigFilenameEnv = "TURBOFLAKES_CONFIG_FILENAME"

type envLookup func(string) string

// Load returns a Config populated from defaults and environment variables.
func Load() (*Config, error) {
	return loadFromEnv(DefaultConfig(), os.Getenv)
}

// LoadWithLookup mirrors Load but allows injecting a custom env lookup (used in tests).
func LoadWithLookup(lookup envLookup) (*Config, error) {
	return loadFromEnv(DefaultConfig(), lookup)
}

func loadFromEnv(cfg *Config, lookup envLookup) (*Config, error) {
	if v := lookup(ConfigFilenameEnv); v != "" {
		cfg.ConfigFilename = v
	}

	for _, binding := range envBindings {
		value := lookup(binding.key)
		if value == "" {
			continue
		}
		if err := binding.apply(cfg, value); err != nil {
			return nil, fmt.Errorf("load %s: %w", binding.key, err)
		}
	}

	return cfg, nil
}

type envBinding struct {
	key   string
	apply func(*Config, string) error
}

var envBindings = []envBinding{
	{envHost, func(cfg *Config, value string) error {
		cfg.Host = value
		return nil
	}},
	{envPort, func(cfg *Config, value string) error {
		cfg.Port = value
		return nil
	}},
	{envSubstrateWSURL, func(cfg *Config, value string) error {
		cfg.SubstrateWSURL = value
		return nil
	}},
	{envRedisHostname, func(cfg *Config, value string) error {
		cfg.RedisHostname = value
		return nil
	}},
	{envRedisPassword, func(cfg *Config, value string) error {
		cfg.RedisPassword = value
		return nil
	}},
	{envRedisDatabase, func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("must be >= 0")
		}
		cfg.RedisDatabase = n
		return nil
	}},
	{envCORSAllowOrigin, func(cfg *Config, value string) error {
		cfg.CORSAllowOrigin = value
		return nil
	}},
	{envHistoryDepth, func(cfg *Config, value string) error {
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("must be > 0")
		}
		cfg.HistoryDepth = uint32(n)
		return nil
	}},
	{envLogLevel, func(cfg *Config, value string) error {
		cfg.LogLevel = value
		return nil
	}},
	{envLogBacktrace, func(cfg *Config, value string) error {
		cfg.LogBacktrace = value == "1" || value == "full"
		return nil
	}},
}
