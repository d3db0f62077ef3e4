// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/healthduck/internal/models"
)

// RunID identifies one import run.
type RunID string

// RunOutcome is the terminal state written by CompleteRun.
type RunOutcome struct {
	Status       string
	Err          error
	RecordCount  int64
	WorkoutCount int64
	Duration     time.Duration
	TableCounts  map[string]models.TableCount
	Diagnostics  *models.RunDiagnostics
}

// BeginRun inserts a running entry into the imports ledger.
func (db *DB) BeginRun(ctx context.Context, exportDir string) (RunID, error) {
	if db.readOnly {
		return "", ErrReadOnly
	}
	id := RunID(uuid.New().String())
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO imports (import_id, export_dir, started_at, status, record_count, workout_count)
		 VALUES (?, ?, ?, ?, 0, 0)`,
		string(id), exportDir, time.Now().UTC(), models.RunStatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to begin import run: %w", err)
	}
	return id, nil
}

// CompleteRun writes the terminal entry for a run. Rows already loaded by the
// run are never rolled back, whatever the outcome.
func (db *DB) CompleteRun(ctx context.Context, id RunID, out RunOutcome) error {
	if db.readOnly {
		return ErrReadOnly
	}

	// Bound as untyped nil rather than a nil pointer so the driver writes NULL.
	var errText, countsJSON, diagJSON any
	if out.Err != nil {
		errText = out.Err.Error()
	}
	if len(out.TableCounts) > 0 {
		b, err := json.Marshal(out.TableCounts)
		if err != nil {
			return fmt.Errorf("failed to encode table counts: %w", err)
		}
		countsJSON = string(b)
	}
	if out.Diagnostics != nil {
		b, err := json.Marshal(out.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to encode run diagnostics: %w", err)
		}
		diagJSON = string(b)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE imports SET finished_at = ?, status = ?, error = ?, record_count = ?,
		 workout_count = ?, duration_secs = ?, table_counts = ?, diagnostics = ?
		 WHERE import_id = ?`,
		time.Now().UTC(), out.Status, errText, out.RecordCount, out.WorkoutCount,
		out.Duration.Seconds(), countsJSON, diagJSON, string(id))
	if err != nil {
		return fmt.Errorf("failed to complete import run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("import run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun returns a single ledger entry.
func (db *DB) GetRun(ctx context.Context, id RunID) (*models.ImportRun, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT import_id, export_dir, started_at, finished_at,
		status, error, record_count, workout_count, duration_secs, table_counts, diagnostics
		FROM imports WHERE import_id = ?`, string(id))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT import_id, export_dir, started_at, finished_at,
		status, error, record_count, workout_count, duration_secs, table_counts, diagnostics
		FROM imports ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer closeQuietly(rows)

	var runs []models.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*models.ImportRun, error) {
	var (
		run        models.ImportRun
		exportDir  sql.NullString
		finishedAt sql.NullTime
		errText    sql.NullString
		durSecs    sql.NullFloat64
		counts     sql.NullString
		diag       sql.NullString
		records    sql.NullInt64
		workouts   sql.NullInt64
	)
	if err := s.Scan(&run.ImportID, &exportDir, &run.StartedAt, &finishedAt, &run.Status,
		&errText, &records, &workouts, &durSecs, &counts, &diag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan import run: %w", err)
	}
	run.ExportDir = exportDir.String
	run.RecordCount = records.Int64
	run.WorkoutCount = workouts.Int64
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if errText.Valid {
		run.Error = &errText.String
	}
	if durSecs.Valid {
		run.DurationSecs = &durSecs.Float64
	}
	if counts.Valid {
		run.TableCounts = &counts.String
	}
	if diag.Valid {
		run.Diagnostics = &diag.String
	}
	return &run, nil
}

// OrphanCounts counts child rows whose parent hash has no matching row.
// Route points are only counted when they carry a workout hash.
func (db *DB) OrphanCounts(ctx context.Context) (map[string]int64, error) {
	queries := map[string]string{
		TableRecordMetadata: `SELECT COUNT(*) FROM record_metadata m
			WHERE NOT EXISTS (SELECT 1 FROM records r WHERE r.record_hash = m.record_hash)`,
		TableWorkoutEvents: `SELECT COUNT(*) FROM workout_events e
			WHERE NOT EXISTS (SELECT 1 FROM workouts w WHERE w.workout_hash = e.workout_hash)`,
		TableWorkoutStatistics: `SELECT COUNT(*) FROM workout_statistics s
			WHERE NOT EXISTS (SELECT 1 FROM workouts w WHERE w.workout_hash = s.workout_hash)`,
		TableRoutePoints: `SELECT COUNT(*) FROM route_points p
			WHERE p.workout_hash IS NOT NULL
			AND NOT EXISTS (SELECT 1 FROM workouts w WHERE w.workout_hash = p.workout_hash)`,
		TableECGSamples: `SELECT COUNT(*) FROM ecg_samples s
			WHERE NOT EXISTS (SELECT 1 FROM ecg_readings r WHERE r.ecg_hash = s.ecg_hash)`,
	}
	out := make(map[string]int64, len(queries))
	for table, q := range queries {
		var n int64
		if err := db.conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count orphans in %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// UnlinkedRoutePoints counts route points stored without a workout.
func (db *DB) UnlinkedRoutePoints(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM route_points WHERE workout_hash IS NULL").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unlinked route points: %w", err)
	}
	return n, nil
}
