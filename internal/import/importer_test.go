// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/healthduck/internal/config"
	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/models"
	"github.com/tomtom215/healthduck/internal/testinfra"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	testinfra.AcquireDB(t)

	db, err := database.Open(context.Background(), testinfra.DatabaseConfig(t))
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testImportConfig(exportDir, policy string) *config.ImportConfig {
	return &config.ImportConfig{
		ExportDir:        exportDir,
		BatchSize:        2,
		QueueDepth:       1,
		Workers:          2,
		UnresolvedRoutes: policy,
	}
}

func tableCounts(t *testing.T, db *database.DB) map[string]int64 {
	t.Helper()
	counts, err := db.TableCounts(context.Background())
	if err != nil {
		t.Fatalf("TableCounts() error = %v", err)
	}
	return counts
}

var minimalExportCounts = map[string]int64{
	database.TableRecords:           2,
	database.TableRecordMetadata:    1,
	database.TableWorkouts:          1,
	database.TableWorkoutEvents:     1,
	database.TableWorkoutStatistics: 1,
	database.TableActivitySummaries: 1,
	database.TableECGReadings:       1,
	database.TableECGSamples:        5,
	database.TableRoutePoints:       2,
	database.TableDailyRecordStats:  2,
}

// runDiagnostics decodes the ledger's issue report for a finished run.
func runDiagnostics(t *testing.T, db *database.DB, runID string) models.RunDiagnostics {
	t.Helper()
	run, err := db.GetRun(context.Background(), database.RunID(runID))
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Diagnostics == nil {
		t.Fatalf("run %s has no diagnostics", runID)
	}
	var diag models.RunDiagnostics
	if err := json.Unmarshal([]byte(*run.Diagnostics), &diag); err != nil {
		t.Fatalf("decode diagnostics %q: %v", *run.Diagnostics, err)
	}
	return diag
}

func assertCounts(t *testing.T, got, want map[string]int64) {
	t.Helper()
	for table, n := range want {
		if got[table] != n {
			t.Errorf("%s rows = %d, want %d", table, got[table], n)
		}
	}
}

func TestImportMinimalExport(t *testing.T) {
	db := setupTestDB(t)
	dir := writeExport(t, nil)

	imp := NewImporter(testImportConfig(dir, config.UnresolvedStore), db, nil)
	stats, err := imp.Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if stats.Status != models.RunStatusCompleted || stats.Phase != PhaseDone {
		t.Errorf("status = %s/%s, want completed/done", stats.Status, stats.Phase)
	}
	if stats.Records != 2 || stats.Workouts != 1 || stats.ECGReadings != 1 ||
		stats.ECGSamples != 5 || stats.RoutePoints != 2 || stats.RouteFiles != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.UnresolvedRoutes != 0 || stats.DuplicatesRemoved != 0 || stats.DailyStats != 2 {
		t.Errorf("unresolved=%d duplicates=%d daily=%d", stats.UnresolvedRoutes, stats.DuplicatesRemoved, stats.DailyStats)
	}

	counts := tableCounts(t, db)
	assertCounts(t, counts, minimalExportCounts)
	if counts[database.TableImports] != 1 {
		t.Errorf("imports rows = %d, want 1", counts[database.TableImports])
	}

	orphans, err := db.OrphanCounts(context.Background())
	if err != nil {
		t.Fatalf("OrphanCounts() error = %v", err)
	}
	for table, n := range orphans {
		if n != 0 {
			t.Errorf("%s has %d orphan rows", table, n)
		}
	}
	if n, _ := db.UnlinkedRoutePoints(context.Background()); n != 0 {
		t.Errorf("unlinked route points = %d, want 0", n)
	}

	run, err := db.GetRun(context.Background(), database.RunID(stats.RunID))
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != models.RunStatusCompleted || run.RecordCount != 2 || run.WorkoutCount != 1 {
		t.Errorf("ledger entry = %+v", run)
	}
	if run.TableCounts == nil || !strings.Contains(*run.TableCounts, `"ecg_samples":{"loaded":5`) {
		t.Errorf("table_counts = %v", run.TableCounts)
	}
	if imp.IsRunning() {
		t.Error("IsRunning() = true after Import returned")
	}
}

func TestImportIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	dir := writeExport(t, nil)
	imp := NewImporter(testImportConfig(dir, config.UnresolvedStore), db, NewInMemoryProgress())

	if _, err := imp.Import(context.Background()); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	first := tableCounts(t, db)

	stats, err := imp.Import(context.Background())
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	// Every row of the second run is a duplicate of the first.
	if stats.DuplicatesRemoved != 15 {
		t.Errorf("DuplicatesRemoved = %d, want 15", stats.DuplicatesRemoved)
	}
	if stats.RemovedByTable[database.TableRecords] != 2 || stats.RemovedByTable[database.TableECGSamples] != 5 {
		t.Errorf("RemovedByTable = %v, want records 2 and ecg_samples 5", stats.RemovedByTable)
	}

	second := tableCounts(t, db)
	for table, n := range first {
		if table == database.TableImports {
			continue
		}
		if second[table] != n {
			t.Errorf("%s rows changed from %d to %d on re-import", table, n, second[table])
		}
	}
	if second[database.TableImports] != 2 {
		t.Errorf("imports rows = %d, want 2", second[database.TableImports])
	}
}

func TestImportUnresolvedRoutePolicies(t *testing.T) {
	extra := map[string]string{
		filepath.Join(RoutesDirName, "unknown_route.gpx"): minimalGPX,
	}

	t.Run("store", func(t *testing.T) {
		db := setupTestDB(t)
		stats, err := NewImporter(testImportConfig(writeExport(t, extra), config.UnresolvedStore), db, nil).
			Import(context.Background())
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if stats.UnresolvedRoutes != 1 || stats.RouteFiles != 2 {
			t.Errorf("unresolved=%d files=%d, want 1 and 2", stats.UnresolvedRoutes, stats.RouteFiles)
		}
		if n, _ := db.UnlinkedRoutePoints(context.Background()); n != 2 {
			t.Errorf("unlinked route points = %d, want 2", n)
		}
		if got := tableCounts(t, db)[database.TableRoutePoints]; got != 4 {
			t.Errorf("route_points = %d, want 4", got)
		}
		if diag := runDiagnostics(t, db, stats.RunID); diag.UnresolvedRoutes != 1 || diag.DroppedRoutes != 0 {
			t.Errorf("ledger diagnostics = %+v, want 1 unresolved route", diag)
		}
	})

	t.Run("drop", func(t *testing.T) {
		db := setupTestDB(t)
		stats, err := NewImporter(testImportConfig(writeExport(t, extra), config.UnresolvedDrop), db, nil).
			Import(context.Background())
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if stats.DroppedRoutes != 1 || stats.UnresolvedRoutes != 0 {
			t.Errorf("dropped=%d unresolved=%d", stats.DroppedRoutes, stats.UnresolvedRoutes)
		}
		if got := tableCounts(t, db)[database.TableRoutePoints]; got != 2 {
			t.Errorf("route_points = %d, want 2", got)
		}
		if diag := runDiagnostics(t, db, stats.RunID); diag.DroppedRoutes != 1 || diag.UnresolvedRoutes != 0 {
			t.Errorf("ledger diagnostics = %+v, want 1 dropped route", diag)
		}
	})

	t.Run("fail", func(t *testing.T) {
		db := setupTestDB(t)
		stats, err := NewImporter(testImportConfig(writeExport(t, extra), config.UnresolvedFail), db, nil).
			Import(context.Background())
		if !errors.Is(err, ErrUnresolvedRoute) {
			t.Fatalf("Import() error = %v, want ErrUnresolvedRoute", err)
		}
		if stats.Status != models.RunStatusFailed || stats.Phase != PhaseGPX {
			t.Errorf("status = %s/%s, want failed/gpx", stats.Status, stats.Phase)
		}
		run, err := db.GetRun(context.Background(), database.RunID(stats.RunID))
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if run.Status != models.RunStatusFailed || run.Error == nil {
			t.Errorf("ledger entry = %+v, want failed with error", run)
		}
		// Rows flushed before the failure stay.
		if got := tableCounts(t, db)[database.TableRecords]; got != 2 {
			t.Errorf("records = %d, want 2", got)
		}
	})
}

func TestImportBadECGFileIsNotFatal(t *testing.T) {
	db := setupTestDB(t)
	dir := writeExport(t, map[string]string{
		filepath.Join(ECGDirName, "bad_ecg.csv"): "Name,Test\nClassification,Normal\n\n100\n200\n",
	})

	stats, err := NewImporter(testImportConfig(dir, config.UnresolvedStore), db, nil).Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(stats.FileErrors) != 1 || stats.FileErrors[0].Phase != PhaseECG {
		t.Fatalf("FileErrors = %+v, want one ECG error", stats.FileErrors)
	}
	if filepath.Base(stats.FileErrors[0].Path) != "bad_ecg.csv" {
		t.Errorf("FileErrors[0].Path = %q", stats.FileErrors[0].Path)
	}
	if stats.ECGReadings != 1 || stats.ECGSamples != 5 {
		t.Errorf("ecg readings=%d samples=%d, want 1 and 5", stats.ECGReadings, stats.ECGSamples)
	}

	run, err := db.GetRun(context.Background(), database.RunID(stats.RunID))
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	diag := runDiagnostics(t, db, stats.RunID)
	if diag.FileErrorCount != 1 || len(diag.FileErrors) != 1 {
		t.Fatalf("ledger diagnostics = %+v, want one file error", diag)
	}
	if diag.FileErrors[0].Phase != PhaseECG || filepath.Base(diag.FileErrors[0].Path) != "bad_ecg.csv" {
		t.Errorf("ledger file error = %+v", diag.FileErrors[0])
	}
	if !strings.Contains(diag.FileErrors[0].Message, ErrMalformedECGHeader.Error()) {
		t.Errorf("ledger file error message = %q", diag.FileErrors[0].Message)
	}
}

func TestImportRecordsOrphanRows(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Conn().ExecContext(context.Background(),
		`INSERT INTO workout_events (event_hash, workout_hash, event_type)
		 VALUES ('stale-event', 'missing-workout', 'HKWorkoutEventTypeLap')`)
	if err != nil {
		t.Fatalf("insert orphan event: %v", err)
	}

	stats, err := NewImporter(testImportConfig(writeExport(t, nil), config.UnresolvedStore), db, nil).
		Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if stats.Orphans[database.TableWorkoutEvents] != 1 || len(stats.Orphans) != 1 {
		t.Errorf("Orphans = %v, want 1 workout event", stats.Orphans)
	}
	if diag := runDiagnostics(t, db, stats.RunID); diag.Orphans[database.TableWorkoutEvents] != 1 {
		t.Errorf("ledger orphans = %v", diag.Orphans)
	}
}

func TestImportTruncatedGPXKeepsLeadingPoints(t *testing.T) {
	db := setupTestDB(t)
	cut := strings.Index(minimalGPX, "</trkpt>") + len("</trkpt>")
	truncated := minimalGPX[:cut] + "\n      <trkpt lat=\"37.7750\" lon=\"-122.4195\">\n        <ele>11"
	dir := writeExport(t, map[string]string{
		filepath.Join(RoutesDirName, "truncated.gpx"): truncated,
	})

	stats, err := NewImporter(testImportConfig(dir, config.UnresolvedStore), db, nil).Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(stats.FileErrors) != 1 || stats.FileErrors[0].Phase != PhaseGPX {
		t.Fatalf("FileErrors = %+v, want one GPX error", stats.FileErrors)
	}
	// The linked route keeps both points; the truncated file keeps the
	// point completed before the cut, stored without a workout.
	if got := tableCounts(t, db)[database.TableRoutePoints]; got != 3 {
		t.Errorf("route_points = %d, want 3", got)
	}
	if n, _ := db.UnlinkedRoutePoints(context.Background()); n != 1 {
		t.Errorf("unlinked route points = %d, want 1", n)
	}
	if stats.RoutePoints != 3 || stats.RouteFiles != 1 || stats.UnresolvedRoutes != 1 {
		t.Errorf("points=%d files=%d unresolved=%d, want 3, 1 and 1",
			stats.RoutePoints, stats.RouteFiles, stats.UnresolvedRoutes)
	}
	if diag := runDiagnostics(t, db, stats.RunID); diag.FileErrorCount != 1 || diag.FileErrors[0].Phase != PhaseGPX {
		t.Errorf("ledger diagnostics = %+v", diag)
	}
}

func TestImportManyECGFilesKeepSampleOrder(t *testing.T) {
	db := setupTestDB(t)

	extra := make(map[string]string)
	for _, day := range []string{"01", "02", "03", "04", "05"} {
		csv := strings.Replace(minimalECG, "2024-06-15", "2024-07-"+day, 1)
		extra[filepath.Join(ECGDirName, "ecg_2024-07-"+day+".csv")] = csv
	}
	dir := writeExport(t, extra)

	cfg := testImportConfig(dir, config.UnresolvedStore)
	cfg.Workers = 3
	stats, err := NewImporter(cfg, db, nil).Import(context.Background())
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if stats.ECGReadings != 6 || stats.ECGSamples != 30 {
		t.Fatalf("ecg readings=%d samples=%d, want 6 and 30", stats.ECGReadings, stats.ECGSamples)
	}

	var misordered int64
	err = db.Conn().QueryRowContext(context.Background(), `
		SELECT COUNT(*) FROM (
			SELECT sample_idx, row_number() OVER (PARTITION BY ecg_hash ORDER BY rowid) - 1 AS pos
			FROM ecg_samples
		) WHERE sample_idx <> pos`).Scan(&misordered)
	if err != nil {
		t.Fatalf("order query error = %v", err)
	}
	if misordered != 0 {
		t.Errorf("%d samples stored out of index order", misordered)
	}
}

func TestImportMissingExport(t *testing.T) {
	db := setupTestDB(t)

	stats, err := NewImporter(testImportConfig(t.TempDir(), config.UnresolvedStore), db, nil).Import(context.Background())
	if !errors.Is(err, ErrExportNotFound) {
		t.Fatalf("Import() error = %v, want ErrExportNotFound", err)
	}
	runs, err := db.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.RunStatusFailed || runs[0].ImportID != stats.RunID {
		t.Errorf("runs = %+v, want one failed entry", runs)
	}
}

func TestImportCanceled(t *testing.T) {
	db := setupTestDB(t)
	dir := writeExport(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImporter(testImportConfig(dir, config.UnresolvedStore), db, nil).Import(ctx)
	if err == nil {
		t.Fatal("Import() with canceled context succeeded")
	}
}

func TestImporterStopWhenIdle(t *testing.T) {
	imp := NewImporter(testImportConfig(t.TempDir(), config.UnresolvedStore), nil, nil)
	if err := imp.Stop(); !errors.Is(err, ErrNoImportRunning) {
		t.Errorf("Stop() error = %v, want ErrNoImportRunning", err)
	}
	if imp.GetStats() != nil {
		t.Error("GetStats() before any import should be nil")
	}
}

func TestImportRecordsFileProgress(t *testing.T) {
	db := setupTestDB(t)
	dir := writeExport(t, nil)
	progress := NewInMemoryProgress()

	imp := NewImporter(testImportConfig(dir, config.UnresolvedStore), db, progress)
	if _, err := imp.Import(context.Background()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	saved, err := imp.LastProgress(context.Background())
	if err != nil {
		t.Fatalf("LastProgress() error = %v", err)
	}
	if saved == nil || saved.Status != models.RunStatusCompleted || saved.Records != 2 {
		t.Errorf("LastProgress() = %+v", saved)
	}
	// A completed run clears its file markers.
	done, err := progress.FileDone(context.Background(), filepath.Join(dir, RoutesDirName, routeFileName))
	if err != nil || done {
		t.Errorf("FileDone() = %v, %v; want false after completed run", done, err)
	}
}
