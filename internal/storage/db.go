package storage

import (
	"context"
	"errors"
	"fmt"
)

// Config selects the stores to open. A nil server config or an empty
// SQLitePath leaves that store closed.
type Config struct {
	SQLitePath string
	ClickHouse *ClickHouseConfig
	Postgres   *PostgresConfig
}

// DefaultConfig returns local development settings with every store enabled.
func DefaultConfig() Config {
	return Config{
		SQLitePath: "antex.db",
		ClickHouse: &ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "antex",
			User:     "default",
			Password: "",
		},
		Postgres: &PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "antex",
			User:     "antex",
			Password: "antex",
		},
	}
}

// DB bundles the configured stores.
type DB struct {
	SQLite *SQLiteDB     // SQLite for full calibrations and the query API.
	CH     *ClickHouseDB // ClickHouse for flat PCV samples.
	PG     *PostgresDB   // PostgreSQL for the antenna catalogue.
}

// Open opens every store cfg enables. On failure the stores already opened
// are closed again.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	db := &DB{}

	if cfg.SQLitePath != "" {
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		db.SQLite = s
	}

	if cfg.ClickHouse != nil {
		ch, err := OpenClickHouse(ctx, *cfg.ClickHouse)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		db.CH = ch
	}

	if cfg.Postgres != nil {
		pg, err := OpenPostgres(ctx, *cfg.Postgres)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		db.PG = pg
	}

	return db, nil
}

// Close closes every open store.
func (d *DB) Close() error {
	var errs []error
	if d.SQLite != nil {
		if err := d.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		}
	}
	if d.CH != nil {
		if err := d.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.PG != nil {
		d.PG.Close()
	}
	return errors.Join(errs...)
}

// CreateSchemas creates the server-side schemas. SQLite creates its own on open.
func (d *DB) CreateSchemas(ctx context.Context) error {
	if d.CH != nil {
		if err := d.CH.CreateSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	if d.PG != nil {
		if err := d.PG.CreateSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return nil
}
