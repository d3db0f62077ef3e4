// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/healthduck/internal/models"
)

var (
	// ErrImportInProgress is returned when Import is called while another import runs.
	ErrImportInProgress = errors.New("import already in progress")

	// ErrNoImportRunning is returned by Stop when nothing is running.
	ErrNoImportRunning = errors.New("no import in progress")

	// ErrImportStopped is the cause recorded when Stop cancels a run.
	ErrImportStopped = errors.New("import stopped")

	// ErrExportNotFound is returned when the export directory has no export.xml.
	ErrExportNotFound = errors.New("export.xml not found")

	// ErrMalformedECGHeader fails a single ECG file whose header lacks a recorded date.
	ErrMalformedECGHeader = errors.New("malformed ECG header")

	// ErrUnresolvedRoute aborts the run when a GPX file matches no workout and
	// the unresolved route policy is "fail".
	ErrUnresolvedRoute = errors.New("route file matches no workout")

	// ErrLinkerNotSealed is returned by Resolve before the main export pass has completed.
	ErrLinkerNotSealed = errors.New("linker not sealed")

	// ErrLoaderClosed is returned by Submit and Flush after Close.
	ErrLoaderClosed = errors.New("loader closed")
)

// Import phases, as reported in ImportStats.Phase and metrics.
const (
	PhaseSetup   = "setup"
	PhaseXML     = "xml"
	PhaseBarrier = "barrier"
	PhaseECG     = "ecg"
	PhaseGPX     = "gpx"
	PhaseLoad    = "load"
	PhaseDedup   = "dedup"
	PhaseDone    = "done"
)

// FileError wraps a failure confined to one auxiliary file.
type FileError struct {
	Path  string
	Phase string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// FileErrorInfo is the serializable form of a FileError.
type FileErrorInfo = models.FileErrorInfo

// ImportStats holds statistics about an import operation.
type ImportStats struct {
	// RunID is the imports ledger id of the run.
	RunID string `json:"run_id"`

	// ExportDir is the directory being imported.
	ExportDir string `json:"export_dir"`

	// Phase is the phase currently running (or the last one reached).
	Phase string `json:"phase"`

	// Status is the terminal ledger status once the run has finished.
	Status string `json:"status,omitempty"`

	Records           int64 `json:"records"`
	MetadataEntries   int64 `json:"metadata_entries"`
	Workouts          int64 `json:"workouts"`
	WorkoutEvents     int64 `json:"workout_events"`
	WorkoutStatistics int64 `json:"workout_statistics"`
	ActivitySummaries int64 `json:"activity_summaries"`
	Correlations      int64 `json:"correlations"`
	ECGReadings       int64 `json:"ecg_readings"`
	ECGSamples        int64 `json:"ecg_samples"`
	RouteFiles        int64 `json:"route_files"`
	RoutePoints       int64 `json:"route_points"`

	// UnresolvedRoutes counts route files stored without a workout link.
	UnresolvedRoutes int64 `json:"unresolved_routes"`

	// DroppedRoutes counts route files skipped by the drop policy.
	DroppedRoutes int64 `json:"dropped_routes"`

	// Skipped counts elements rejected during parsing, by kind.
	Skipped map[string]int64 `json:"skipped,omitempty"`

	// FileErrors lists auxiliary files that failed to import.
	FileErrors []FileErrorInfo `json:"file_errors,omitempty"`

	// PreviouslyLoadedFiles counts auxiliary files that an interrupted
	// earlier run had already loaded.
	PreviouslyLoadedFiles int64 `json:"previously_loaded_files,omitempty"`

	// DuplicatesRemoved is the number of rows removed by deduplication.
	DuplicatesRemoved int64 `json:"duplicates_removed"`

	// RemovedByTable splits DuplicatesRemoved per table. Tables with no
	// duplicates are absent.
	RemovedByTable map[string]int64 `json:"removed_by_table,omitempty"`

	// Orphans counts child rows whose parent is missing after the run, by table.
	Orphans map[string]int64 `json:"orphans,omitempty"`

	// DailyStats is the number of rows in the rebuilt daily_record_stats table.
	DailyStats int64 `json:"daily_stats"`

	// StartTime is when the import started.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the import completed (zero if still running).
	EndTime time.Time `json:"end_time"`
}

// Duration returns the duration of the import operation.
func (s *ImportStats) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// TotalRows is the number of rows emitted to the loader so far.
func (s *ImportStats) TotalRows() int64 {
	return s.Records + s.MetadataEntries + s.Workouts + s.WorkoutEvents + s.WorkoutStatistics +
		s.ActivitySummaries + s.ECGReadings + s.ECGSamples + s.RoutePoints
}

// TotalSkipped sums Skipped over all kinds.
func (s *ImportStats) TotalSkipped() int64 {
	var n int64
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// RowsPerSecond returns the import rate.
func (s *ImportStats) RowsPerSecond() float64 {
	duration := s.Duration().Seconds()
	if duration == 0 {
		return 0
	}
	return float64(s.TotalRows()) / duration
}

func (s *ImportStats) clone() *ImportStats {
	c := *s
	c.Skipped = cloneCounts(s.Skipped)
	c.RemovedByTable = cloneCounts(s.RemovedByTable)
	c.Orphans = cloneCounts(s.Orphans)
	c.FileErrors = append([]FileErrorInfo(nil), s.FileErrors...)
	return &c
}

func cloneCounts(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	c := make(map[string]int64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Diagnostics returns the issue report recorded in the run ledger.
func (s *ImportStats) Diagnostics() *models.RunDiagnostics {
	return &models.RunDiagnostics{
		FileErrorCount:   len(s.FileErrors),
		FileErrors:       append([]FileErrorInfo(nil), s.FileErrors...),
		UnresolvedRoutes: s.UnresolvedRoutes,
		DroppedRoutes:    s.DroppedRoutes,
		Orphans:          cloneCounts(s.Orphans),
	}
}

func (s *ImportStats) addFileError(fe *FileError) {
	s.FileErrors = append(s.FileErrors, FileErrorInfo{Path: fe.Path, Phase: fe.Phase, Message: fe.Err.Error()})
}

// ProgressSummary provides a human-readable summary of import progress.
type ProgressSummary struct {
	Status         string    `json:"status"`
	Phase          string    `json:"phase"`
	RunID          string    `json:"run_id,omitempty"`
	Rows           int64     `json:"rows"`
	Skipped        int64     `json:"skipped"`
	FileErrors     int       `json:"file_errors"`
	Duplicates     int64     `json:"duplicates_removed"`
	RowsPerSec     float64   `json:"rows_per_second"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	StartTime      time.Time `json:"start_time"`
}

// ToSummary converts ImportStats to a ProgressSummary with calculated fields.
func (s *ImportStats) ToSummary(running bool) *ProgressSummary {
	summary := &ProgressSummary{
		Phase:          s.Phase,
		RunID:          s.RunID,
		Rows:           s.TotalRows(),
		Skipped:        s.TotalSkipped(),
		FileErrors:     len(s.FileErrors),
		Duplicates:     s.DuplicatesRemoved,
		RowsPerSec:     s.RowsPerSecond(),
		ElapsedSeconds: s.Duration().Seconds(),
		StartTime:      s.StartTime,
	}

	switch {
	case running:
		summary.Status = "running"
	case s.Status != "":
		summary.Status = s.Status
	case s.EndTime.IsZero():
		summary.Status = "pending"
	default:
		summary.Status = "completed"
	}
	return summary
}
