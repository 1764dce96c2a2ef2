// Package database opens the shared connection pool for the configured driver.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tableapi/tableapi/internal/config"
)

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func FromConfig(cfg config.DatabaseConfig) DBConfig {
	return DBConfig{
		Driver:          cfg.Driver,
		DSN:             cfg.DataSourceName(),
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
	case config.DriverDuckDB, config.DriverSQLite:
		// An empty DSN opens an in-memory database.
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dsn := cfg.DSN
	if cfg.Driver == config.DriverSQLite && dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
