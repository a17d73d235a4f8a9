package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"hemrs/app/src/infra"
)

// Config selects the driver and DSN of the shared pool.
type Config struct {
	Driver string
	DSN    string
}

// Connect opens the pool and validates it with a ping before returning.
func Connect(ctx context.Context, cfg *Config) (*sqlx.DB, error) {
	if cfg == nil {
		return nil, errors.New("db: config is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("db: DSN is required")
	}
	return openDB(ctx, cfg.Driver, cfg.DSN)
}

// ShouldCheckDatabase determines if connectivity should be validated based on the config.
func ShouldCheckDatabase(cfg infra.Config) bool {
	if cfg.DatabaseDSN != "" {
		return true
	}
	return cfg.DatabaseHost != ""
}

// WaitForDatabase probes the configured host/port until it becomes reachable or context cancellation.
func WaitForDatabase(ctx context.Context, cfg infra.Config, logger *infra.Logger) error {
	host := cfg.DatabaseHost
	port := cfg.DatabasePort

	if (host == "" || port == "") && cfg.DatabaseDSN != "" {
		parsed, err := url.Parse(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("invalid DB_DSN: %w", err)
		}
		if host == "" {
			host = parsed.Hostname()
		}
		if port == "" {
			port = parsed.Port()
		}
	}

	if host == "" {
		return nil
	}
	if port == "" {
		port = "5432"
	}

	address := net.JoinHostPort(host, port)
	dialer := &net.Dialer{Timeout: 3 * time.Second}

	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		logger.Printf(ctx, "database check attempt %d failed: %v", attempt, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return fmt.Errorf("database not reachable at %s", address)
}

// SetupStore connects the shared pool, applies migrations and returns the
// store with its cleanup routine.
func SetupStore(ctx context.Context, cfg infra.Config, logger *infra.Logger) (*Store, func(), error) {
	dsn, err := BuildDatabaseDSN(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := Connect(ctx, &Config{Driver: cfg.DatabaseDriver, DSN: dsn})
	if err != nil {
		return nil, nil, err
	}
	logDSN(ctx, logger, dsn)

	if err := ApplyMigrations(ctx, db, MigrationsSource(cfg.MigrationsDir), logger); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	store := NewStore(db)
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Printf(ctx, "failed to close store: %v", err)
		}
	}

	return store, cleanup, nil
}

func logDSN(ctx context.Context, logger *infra.Logger, dsn string) {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.Host == "" {
		logger.Printf(ctx, "connected to database (DSN not in URL form)")
		return
	}
	logger.Printf(ctx, "connected to DSN host=%s db=%s user=%s",
		parsed.Hostname(), strings.TrimPrefix(parsed.Path, "/"), parsed.User.Username())
}

// BuildDatabaseDSN constructs a DSN from discrete configuration values when not provided explicitly.
func BuildDatabaseDSN(cfg infra.Config) (string, error) {
	if cfg.DatabaseDSN != "" {
		return cfg.DatabaseDSN, nil
	}

	if cfg.DatabaseHost == "" {
		return "", errors.New("database host is required when DSN is not provided")
	}
	if cfg.DatabaseUser == "" {
		return "", errors.New("database user is required when DSN is not provided")
	}
	if cfg.DatabaseName == "" {
		return "", errors.New("database name is required when DSN is not provided")
	}

	port := cfg.DatabasePort
	if port == "" {
		port = "5432"
	}

	connectionURL := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.DatabaseHost, port),
		Path:   "/" + cfg.DatabaseName,
		User:   url.UserPassword(cfg.DatabaseUser, cfg.DatabasePassword),
	}

	query := connectionURL.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	connectionURL.RawQuery = query.Encode()

	return connectionURL.String(), nil
}
