// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/metrics"
)

// TableDedup is the outcome of deduplicating one table.
type TableDedup struct {
	Table  string `json:"table"`
	Before int64  `json:"before"`
	After  int64  `json:"after"`
}

// Removed is the number of duplicate rows dropped.
func (t TableDedup) Removed() int64 {
	return t.Before - t.After
}

// DedupReport lists per-table results in HashedTables order.
type DedupReport struct {
	Tables   []TableDedup  `json:"tables"`
	Duration time.Duration `json:"duration"`
}

// TotalRemoved sums removed rows over all tables.
func (r *DedupReport) TotalRemoved() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Removed()
	}
	return n
}

// dedupeSQL keeps the first-inserted row of each hash group and preserves the
// relative order of survivors. rowid follows append order because the loader
// has a single writer and preserve_insertion_order is on.
func dedupeSQL(table, hashColumn string) string {
	return fmt.Sprintf(`CREATE OR REPLACE TABLE %[1]s AS
		SELECT * EXCLUDE (_ord) FROM (
			SELECT *, rowid AS _ord FROM %[1]s
			QUALIFY row_number() OVER (PARTITION BY %[2]s ORDER BY rowid) = 1
		) ORDER BY _ord`, table, hashColumn)
}

// Deduplicate collapses every hashed table to one row per identity hash and
// rebuilds the query indexes. All tables are rewritten in one transaction.
func (db *DB) Deduplicate(ctx context.Context) (*DedupReport, error) {
	if db.readOnly {
		return nil, ErrReadOnly
	}
	start := time.Now()
	report := &DedupReport{Tables: make([]TableDedup, 0, len(HashedTables))}

	if err := db.dropIndexes(ctx); err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dedup transaction: %w", err)
	}

	for _, t := range HashedTables {
		var before, after int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.Name).Scan(&before); err != nil {
			rollbackQuietly(tx)
			return nil, fmt.Errorf("failed to count %s: %w", t.Name, err)
		}
		if before > 0 {
			if _, err := tx.ExecContext(ctx, dedupeSQL(t.Name, t.HashColumn)); err != nil {
				rollbackQuietly(tx)
				return nil, fmt.Errorf("failed to deduplicate %s: %w", t.Name, err)
			}
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.Name).Scan(&after); err != nil {
			rollbackQuietly(tx)
			return nil, fmt.Errorf("failed to count %s: %w", t.Name, err)
		}
		report.Tables = append(report.Tables, TableDedup{Table: t.Name, Before: before, After: after})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dedup: %w", err)
	}

	if err := db.CreateIndexes(ctx); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	for _, t := range report.Tables {
		metrics.RecordDedup(t.Table, t.Removed())
	}
	logging.Ctx(ctx).Info().
		Int64("removed", report.TotalRemoved()).
		Dur("duration", report.Duration).
		Msg("Deduplication complete")
	return report, nil
}

// DuplicateCounts returns, per hashed table, how many rows share a hash with
// an earlier row. All zeros after Deduplicate.
func (db *DB) DuplicateCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(HashedTables))
	for _, t := range HashedTables {
		var n int64
		q := fmt.Sprintf("SELECT COUNT(*) - COUNT(DISTINCT %s) FROM %s", t.HashColumn, t.Name)
		if err := db.conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count duplicates in %s: %w", t.Name, err)
		}
		out[t.Name] = n
	}
	return out, nil
}
