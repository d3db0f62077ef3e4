// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import "time"

// Import run status values stored in imports.status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// ImportRun is one row of the imports ledger.
type ImportRun struct {
	ImportID     string     `json:"import_id"`
	ExportDir    string     `json:"export_dir"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	RecordCount  int64      `json:"record_count"`
	WorkoutCount int64      `json:"workout_count"`
	DurationSecs *float64   `json:"duration_secs,omitempty"`
	TableCounts  *string    `json:"table_counts,omitempty"`
	Diagnostics  *string    `json:"diagnostics,omitempty"`
}

// TableCount is the per-table entry stored in imports.table_counts.
type TableCount struct {
	Loaded  int64 `json:"loaded"`
	Skipped int64 `json:"skipped,omitempty"`
	Removed int64 `json:"deduplicated,omitempty"`
	Final   int64 `json:"final"`
}

// FileErrorInfo describes an auxiliary file that failed to import.
type FileErrorInfo struct {
	Path    string `json:"path"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// RunDiagnostics is the issue report stored in imports.diagnostics. It is
// written for every finished run, including clean ones.
type RunDiagnostics struct {
	FileErrorCount   int              `json:"file_error_count"`
	FileErrors       []FileErrorInfo  `json:"file_errors,omitempty"`
	UnresolvedRoutes int64            `json:"unresolved_routes"`
	DroppedRoutes    int64            `json:"dropped_routes"`
	Orphans          map[string]int64 `json:"orphans,omitempty"`
}

// DailyRecordStat is one row of the derived daily_record_stats table.
type DailyRecordStat struct {
	RecordType string    `json:"record_type"`
	Date       time.Time `json:"date"`
	Unit       *string   `json:"unit,omitempty"`
	Count      int64     `json:"count"`
	AvgValue   float64   `json:"avg_value"`
	MinValue   float64   `json:"min_value"`
	MaxValue   float64   `json:"max_value"`
	SumValue   float64   `json:"sum_value"`
}
