// Package db provides PostgreSQL pool setup, health checks, pool metrics and
// embedded schema migrations for the optional item mirror.
package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/penf-live/config"
)

// Config holds PostgreSQL connection configuration. URL, when set, takes
// precedence over the individual fields.
type Config struct {
	URL      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration

	// ConnectAttempts bounds how often Connect tries to reach the server.
	// Values below 1 mean a single attempt.
	ConnectAttempts int
	// RetryDelay is the wait between attempts; it doubles after each one.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config for a local development database.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "penf_live",
		User:            "penf_live",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		ConnectAttempts: 1,
		RetryDelay:      time.Second,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - PENF_LIVE_DB_HOST: Database host (default: localhost)
//   - PENF_LIVE_DB_PORT: Database port (default: 5432)
//   - PENF_LIVE_DB_NAME: Database name (default: penf_live)
//   - PENF_LIVE_DB_USER: Database user (default: penf_live)
//   - PENF_LIVE_DB_PASSWORD: Database password
//   - PENF_LIVE_DB_SSLMODE: SSL mode (default: disable)
//   - PENF_LIVE_DB_MAX_CONNS: Maximum connections (default: 10)
//
// A full URL comes from PENF_LIVE_DATABASE_URL through the application
// config instead.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("PENF_LIVE_DB_HOST", &cfg.Host)
	str("PENF_LIVE_DB_NAME", &cfg.Database)
	str("PENF_LIVE_DB_USER", &cfg.User)
	str("PENF_LIVE_DB_PASSWORD", &cfg.Password)
	str("PENF_LIVE_DB_SSLMODE", &cfg.SSLMode)

	if v := os.Getenv("PENF_LIVE_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("PENF_LIVE_DB_MAX_CONNS"); v != "" {
		if mc, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.MaxConns = int32(mc)
		}
	}

	return cfg
}

// FromSettings builds a Config from the application's database section,
// falling back to the PENF_LIVE_DB_* environment for anything unset.
func FromSettings(s config.DatabaseConfig) *Config {
	cfg := ConfigFromEnv()
	if s.URL != "" {
		cfg.URL = s.URL
	}
	if s.MaxConns > 0 {
		cfg.MaxConns = s.MaxConns
	}
	if s.ConnectAttempts > 0 {
		cfg.ConnectAttempts = s.ConnectAttempts
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	return cfg
}

// ConnectionString builds a PostgreSQL connection string from the config.
func (c *Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

// Validate checks if the config has required fields set.
func (c *Config) Validate() error {
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("max connections (%d) must be >= min connections (%d)", c.MaxConns, c.MinConns)
	}
	if c.URL != "" {
		if _, err := pgxpool.ParseConfig(c.URL); err != nil {
			return fmt.Errorf("invalid database url: %w", err)
		}
		return nil
	}
	switch {
	case c.Host == "":
		return errors.New("database host is required")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid database port: %d", c.Port)
	case c.Database == "":
		return errors.New("database name is required")
	case c.User == "":
		return errors.New("database user is required")
	}
	return nil
}

// Connect creates a pool and pings the server, retrying unreachable servers
// up to cfg.ConnectAttempts times. The caller closes the pool.
func Connect(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	attempts := max(cfg.ConnectAttempts, 1)
	delay := cfg.RetryDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := open(ctx, poolConfig)
		if err == nil {
			return pool, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connecting to database: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	if attempts > 1 {
		return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, lastErr)
	}
	return nil, lastErr
}

func open(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
