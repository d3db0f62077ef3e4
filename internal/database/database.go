// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/healthduck/internal/config"
	"github.com/tomtom215/healthduck/internal/logging"
)

// DB wraps the DuckDB connector. The same connector backs the database/sql
// pool and the dedicated appender connection, so both see one database instance.
type DB struct {
	conn      *sql.DB
	connector *duckdb.Connector
	cfg       *config.DatabaseConfig
	readOnly  bool
}

// Open opens (or creates) the database file read-write and ensures the schema exists.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	// Ensure parent directory exists for database file
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	db, err := open(cfg, "read_write")
	if err != nil {
		return nil, err
	}

	if err := db.InitSchema(ctx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", db.threads()).
		Str("max_memory", cfg.MaxMemory).
		Msg("Database opened")
	return db, nil
}

// OpenReadOnly opens an existing database file for queries only.
func OpenReadOnly(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("database file %s: %w", cfg.Path, err)
	}

	db, err := open(cfg, "read_only")
	if err != nil {
		return nil, err
	}
	db.readOnly = true

	if err := db.Ping(ctx); err != nil {
		closeQuietly(db)
		return nil, err
	}
	return db, nil
}

func open(cfg *config.DatabaseConfig, accessMode string) (*DB, error) {
	db := &DB{cfg: cfg}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}
	connStr := fmt.Sprintf("%s?access_mode=%s&threads=%d&max_memory=%s&preserve_insertion_order=%s",
		cfg.Path, accessMode, db.threads(), cfg.MaxMemory, preserveOrder)

	connector, err := duckdb.NewConnector(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.connector = connector
	db.conn = sql.OpenDB(connector)

	db.conn.SetMaxOpenConns(db.threads())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func (db *DB) threads() int {
	if db.cfg.Threads > 0 {
		return db.cfg.Threads
	}
	return runtime.NumCPU()
}

// Conn returns the underlying SQL connection pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// ReadOnly reports whether the database was opened with OpenReadOnly.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Checkpoint forces the WAL into the main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	return nil
}

// Close closes the pool. database/sql closes the connector with it.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
