// Package config loads the service configuration from environment variables.
package config

import "time"

// Config holds the application configuration.
type Config struct {
	// HTTP server.
	Host string
	Port string

	// Chain adapter.
	SubstrateWSURL string

	// Cache.
	RedisHostname string
	RedisPassword string
	RedisDatabase int

	// CORS.
	CORSAllowOrigin string

	// History backfill.
	HistoryDepth uint32

	// Logging.
	LogLevel     string
	LogBacktrace bool

	// ConfigFilename is the dotenv file to load before reading the rest of
	// the environment. The process entry point reads ConfigFilenameEnv itself
	// and loads that file before calling Load; Load only records the value.
	ConfigFilename string
}

// DefaultConfig returns a Config populated with the service defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            "8080",
		SubstrateWSURL:  "ws://127.0.0.1:9944",
		RedisHostname:   "127.0.0.1:6379",
		RedisPassword:   "",
		RedisDatabase:   0,
		CORSAllowOrigin: "*",
		HistoryDepth:    84,
		LogLevel:        "info",
		LogBacktrace:    false,
		ConfigFilename:  ".env",
	}
}

// ListenAddress returns the HTTP listen address derived from Host/Port.
func (c *Config) ListenAddress() string {
	return c.Host + ":" + c.Port
}

// RedisPoolConfig returns the fixed cache connection pool parameters used by
// the cache client, independent of environment overrides.
type RedisPoolConfig struct {
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxLifetime time.Duration
}

// DefaultRedisPoolConfig returns the pool bounds: 20 open, 8 idle, 1s
// checkout timeout, 60s max connection lifetime.
func DefaultRedisPoolConfig() RedisPoolConfig {
	return RedisPoolConfig{
		PoolSize:        20,
		MinIdleConns:    8,
		PoolTimeout:     1 * time.Second,
		ConnMaxLifetime: 60 * time.Second,
	}
}
