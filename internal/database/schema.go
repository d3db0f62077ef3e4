// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"fmt"
)

// Table names.
const (
	TableRecords           = "records"
	TableRecordMetadata    = "record_metadata"
	TableWorkouts          = "workouts"
	TableWorkoutEvents     = "workout_events"
	TableWorkoutStatistics = "workout_statistics"
	TableActivitySummaries = "activity_summaries"
	TableECGReadings       = "ecg_readings"
	TableECGSamples        = "ecg_samples"
	TableRoutePoints       = "route_points"
	TableImports           = "imports"
	TableDailyRecordStats  = "daily_record_stats"
)

// HashedTable describes an append-only table and its identity hash column.
type HashedTable struct {
	Name       string
	HashColumn string
	Columns    int
}

// HashedTables lists every deduplicated table in load order. Columns is the
// appender row width and must match the CREATE TABLE statement below.
var HashedTables = []HashedTable{
	{TableRecords, "record_hash", 11},
	{TableRecordMetadata, "metadata_hash", 4},
	{TableWorkouts, "workout_hash", 15},
	{TableWorkoutEvents, "event_hash", 6},
	{TableWorkoutStatistics, "stat_hash", 10},
	{TableActivitySummaries, "summary_hash", 11},
	{TableECGReadings, "ecg_hash", 12},
	{TableECGSamples, "sample_hash", 4},
	{TableRoutePoints, "point_hash", 11},
}

// LookupHashedTable returns the descriptor for name.
func LookupHashedTable(name string) (HashedTable, bool) {
	for _, t := range HashedTables {
		if t.Name == name {
			return t, true
		}
	}
	return HashedTable{}, false
}

// No table carries a PRIMARY KEY or UNIQUE constraint. Identity is the hash
// column and Deduplicate is the only place it is enforced.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS records (
		record_hash VARCHAR NOT NULL,
		record_type VARCHAR NOT NULL,
		value DOUBLE,
		unit VARCHAR,
		source_name VARCHAR NOT NULL,
		source_version VARCHAR,
		device VARCHAR,
		creation_date TIMESTAMP,
		start_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP NOT NULL,
		import_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS record_metadata (
		metadata_hash VARCHAR NOT NULL,
		record_hash VARCHAR NOT NULL,
		key VARCHAR NOT NULL,
		value VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS workouts (
		workout_hash VARCHAR NOT NULL,
		activity_type VARCHAR NOT NULL,
		duration DOUBLE,
		duration_unit VARCHAR,
		total_distance DOUBLE,
		total_distance_unit VARCHAR,
		total_energy_burned DOUBLE,
		total_energy_unit VARCHAR,
		source_name VARCHAR NOT NULL,
		source_version VARCHAR,
		device VARCHAR,
		creation_date TIMESTAMP,
		start_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP NOT NULL,
		import_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS workout_events (
		event_hash VARCHAR NOT NULL,
		workout_hash VARCHAR NOT NULL,
		event_type VARCHAR NOT NULL,
		date TIMESTAMP,
		duration DOUBLE,
		duration_unit VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS workout_statistics (
		stat_hash VARCHAR NOT NULL,
		workout_hash VARCHAR NOT NULL,
		stat_type VARCHAR NOT NULL,
		start_date TIMESTAMP,
		end_date TIMESTAMP,
		average DOUBLE,
		minimum DOUBLE,
		maximum DOUBLE,
		sum DOUBLE,
		unit VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS activity_summaries (
		summary_hash VARCHAR NOT NULL,
		date_components VARCHAR NOT NULL,
		active_energy_burned DOUBLE,
		active_energy_burned_goal DOUBLE,
		apple_move_time DOUBLE,
		apple_move_time_goal DOUBLE,
		apple_exercise_time DOUBLE,
		apple_exercise_time_goal DOUBLE,
		apple_stand_hours DOUBLE,
		apple_stand_hours_goal DOUBLE,
		import_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS ecg_readings (
		ecg_hash VARCHAR NOT NULL,
		recorded_date TIMESTAMP NOT NULL,
		classification VARCHAR,
		device VARCHAR,
		sample_rate_hz DOUBLE,
		symptoms VARCHAR,
		software_version VARCHAR,
		average_heart_rate DOUBLE,
		lead VARCHAR,
		unit VARCHAR,
		source_file VARCHAR,
		import_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS ecg_samples (
		sample_hash VARCHAR NOT NULL,
		ecg_hash VARCHAR NOT NULL,
		sample_idx BIGINT NOT NULL,
		voltage_uv DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS route_points (
		point_hash VARCHAR NOT NULL,
		workout_hash VARCHAR,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		elevation DOUBLE,
		timestamp TIMESTAMP NOT NULL,
		speed DOUBLE,
		course DOUBLE,
		h_accuracy DOUBLE,
		v_accuracy DOUBLE,
		import_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS imports (
		import_id VARCHAR NOT NULL,
		export_dir VARCHAR,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status VARCHAR NOT NULL,
		error VARCHAR,
		record_count BIGINT DEFAULT 0,
		workout_count BIGINT DEFAULT 0,
		duration_secs DOUBLE,
		table_counts VARCHAR,
		diagnostics VARCHAR
	)`,
	// Ledgers written before run diagnostics existed.
	`ALTER TABLE imports ADD COLUMN IF NOT EXISTS diagnostics VARCHAR`,
	`CREATE TABLE IF NOT EXISTS daily_record_stats (
		record_type VARCHAR,
		date DATE,
		unit VARCHAR,
		count BIGINT,
		avg_value DOUBLE,
		min_value DOUBLE,
		max_value DOUBLE,
		sum_value DOUBLE
	)`,
}

// indexStatements are created after deduplication; CREATE OR REPLACE drops them.
var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_records_type_start ON records(record_type, start_date)`,
	`CREATE INDEX IF NOT EXISTS idx_records_source ON records(source_name)`,
	`CREATE INDEX IF NOT EXISTS idx_workouts_type_start ON workouts(activity_type, start_date)`,
	`CREATE INDEX IF NOT EXISTS idx_route_points_workout ON route_points(workout_hash)`,
}

var indexNames = []string{
	"idx_records_type_start",
	"idx_records_source",
	"idx_workouts_type_start",
	"idx_route_points_workout",
}

// InitSchema creates all tables if they do not exist.
func (db *DB) InitSchema(ctx context.Context) error {
	if db.readOnly {
		return ErrReadOnly
	}
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// CreateIndexes builds the query indexes.
func (db *DB) CreateIndexes(ctx context.Context) error {
	for _, stmt := range indexStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (db *DB) dropIndexes(ctx context.Context) error {
	for _, name := range indexNames {
		if _, err := db.conn.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", name, err)
		}
	}
	return nil
}

// TableCounts returns the row count of every table in the schema.
func (db *DB) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(HashedTables)+2)
	names := make([]string, 0, len(HashedTables)+2)
	for _, t := range HashedTables {
		names = append(names, t.Name)
	}
	names = append(names, TableImports, TableDailyRecordStats)

	for _, name := range names {
		n, err := db.countRows(ctx, name)
		if err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}

// countRows counts rows of a schema table. name is always one of the
// constants above, never user input.
func (db *DB) countRows(ctx context.Context, name string) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}
	return n, nil
}
