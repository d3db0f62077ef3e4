// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/healthduck/internal/metrics"
)

// BulkWriter appends batches through the DuckDB Appender on one dedicated
// connection. It is safe for use by one writer goroutine at a time; the mutex
// only guards against misuse.
type BulkWriter struct {
	mu     sync.Mutex
	conn   driver.Conn
	closed bool
}

// NewBulkWriter opens a dedicated driver connection for appends.
func (db *DB) NewBulkWriter(ctx context.Context) (*BulkWriter, error) {
	if db.readOnly {
		return nil, ErrReadOnly
	}
	conn, err := db.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open appender connection: %w", err)
	}
	return &BulkWriter{conn: conn}, nil
}

// AppendBatch appends rows to table inside one transaction. Either every row
// of the batch is committed or none is.
func (w *BulkWriter) AppendBatch(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	desc, ok := LookupHashedTable(table)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("bulk writer closed")
	}

	start := time.Now()

	beginner, ok := w.conn.(driver.ConnBeginTx)
	if !ok {
		return fmt.Errorf("driver connection does not support transactions")
	}
	tx, err := beginner.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin append transaction: %w", err)
	}

	if err := appendRows(w.conn, desc, rows); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to append %d rows to %s: %w", len(rows), table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %d rows to %s: %w", len(rows), table, err)
	}

	metrics.RecordBatchFlush(table, len(rows), time.Since(start))
	return nil
}

func appendRows(conn driver.Conn, desc HashedTable, rows [][]any) (err error) {
	appender, err := duckdb.NewAppenderFromConn(conn, "", desc.Name)
	if err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer func() {
		// Close flushes the remaining rows.
		if cerr := appender.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("flush appender: %w", cerr)
		}
	}()

	values := make([]driver.Value, desc.Columns)
	for i, row := range rows {
		if len(row) != desc.Columns {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), desc.Columns)
		}
		for j, v := range row {
			values[j] = v
		}
		if err := appender.AppendRow(values...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// Close releases the dedicated connection.
func (w *BulkWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("failed to close appender connection: %w", err)
	}
	return nil
}
