// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package testinfra

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/healthduck/internal/config"
	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/models"
)

// dbSemaphore serializes DuckDB-backed tests across a package.
var dbSemaphore = make(chan struct{}, 1)

// Record types and sources present in the seeded store.
const (
	HeartRateType = "HKQuantityTypeIdentifierHeartRate"
	StepCountType = "HKQuantityTypeIdentifierStepCount"
	WatchSource   = "Apple Watch"
	PhoneSource   = "iPhone"
	RunningType   = "HKWorkoutActivityTypeRunning"
)

// SeededStore is a read-only handle on a populated database.
type SeededStore struct {
	DB     *database.DB
	Config *config.DatabaseConfig

	WorkoutHash string
	ECGHash     string
	// MissingHash is well formed but matches no row.
	MissingHash string
	RunID       database.RunID

	// ECGVoltages are the seeded samples in sample order.
	ECGVoltages []float64
	// RoutePoints is the number of GPS points linked to WorkoutHash.
	RoutePoints int
}

// DatabaseConfig returns a config pointing at a fresh file under t.TempDir.
func DatabaseConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Path:                   filepath.Join(t.TempDir(), "health.duckdb"),
		Threads:                2,
		MaxMemory:              "512MB",
		PreserveInsertionOrder: true,
	}
}

// AcquireDB holds the package DuckDB semaphore until the test ends.
func AcquireDB(t *testing.T) {
	t.Helper()
	dbSemaphore <- struct{}{}
	t.Cleanup(func() { <-dbSemaphore })
}

// SeedStore writes the fixture data set, closes the writer and reopens the
// file read-only, the way the serve command does.
func SeedStore(t *testing.T) *SeededStore {
	t.Helper()
	AcquireDB(t)

	ctx := context.Background()
	cfg := DatabaseConfig(t)
	db, err := database.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	store := &SeededStore{
		Config:      cfg,
		MissingHash: models.ComputeHash("missing"),
		ECGVoltages: []float64{100, 200, -50, 25},
	}
	seed(t, ctx, db, store)

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ro, err := database.OpenReadOnly(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenReadOnly() error = %v", err)
	}
	t.Cleanup(func() { _ = ro.Close() })
	store.DB = ro
	return store
}

func at(s string) time.Time {
	t, err := time.Parse(models.TimestampLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seed(t *testing.T, ctx context.Context, db *database.DB, store *SeededStore) {
	t.Helper()

	runID, err := db.BeginRun(ctx, "/exports/apple_health_export")
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	store.RunID = runID
	importID := string(runID)

	w, err := db.NewBulkWriter(ctx)
	if err != nil {
		t.Fatalf("NewBulkWriter() error = %v", err)
	}
	appendRows := func(table string, rows [][]any) {
		t.Helper()
		if err := w.AppendBatch(ctx, table, rows); err != nil {
			t.Fatalf("AppendBatch(%s) error = %v", table, err)
		}
	}

	record := func(recordType string, value float64, unit, source, start string) []any {
		begin := at(start)
		hash := models.ComputeHash(recordType, source, start)
		return []any{hash, recordType, value, unit, source, nil, nil, nil, begin, begin.Add(time.Minute), importID}
	}
	appendRows(database.TableRecords, [][]any{
		record(HeartRateType, 60, "count/min", WatchSource, "2024-01-01 08:00:00"),
		record(HeartRateType, 80, "count/min", WatchSource, "2024-01-01 20:00:00"),
		record(HeartRateType, 70, "count/min", WatchSource, "2024-01-02 08:00:00"),
		record(StepCountType, 1200, "count", PhoneSource, "2024-01-02 09:00:00"),
	})

	start := at("2024-01-01 10:00:00")
	store.WorkoutHash = models.ComputeHash(RunningType, WatchSource, "2024-01-01 10:00:00")
	appendRows(database.TableWorkouts, [][]any{{
		store.WorkoutHash, RunningType, 30.0, "min", 5.0, "km", 320.0, "kcal",
		WatchSource, "10.0", nil, nil, start, start.Add(30 * time.Minute), importID,
	}})
	appendRows(database.TableWorkoutEvents, [][]any{{
		models.ComputeHash(store.WorkoutHash, "lap"), store.WorkoutHash,
		"HKWorkoutEventTypeLap", start.Add(10 * time.Minute), nil, nil,
	}})
	appendRows(database.TableWorkoutStatistics, [][]any{{
		models.ComputeHash(store.WorkoutHash, "hr"), store.WorkoutHash, HeartRateType,
		start, start.Add(30 * time.Minute), 150.0, 120.0, 170.0, nil, "count/min",
	}})

	points := make([][]any, 0, 3)
	for i := range 3 {
		ts := start.Add(time.Duration(i) * 5 * time.Second)
		points = append(points, []any{
			models.ComputeHash(store.WorkoutHash, ts.String()), store.WorkoutHash,
			37.7749 + float64(i)*0.0001, -122.4194, 10.0, ts, 3.1, nil, nil, nil, importID,
		})
	}
	appendRows(database.TableRoutePoints, points)
	store.RoutePoints = len(points)

	appendRows(database.TableActivitySummaries, [][]any{{
		models.ComputeHash("2024-01-01"), "2024-01-01",
		450.0, 500.0, nil, nil, 35.0, 30.0, 11.0, 12.0, importID,
	}})

	recorded := at("2024-01-03 07:30:00")
	store.ECGHash = models.ComputeHash("2024-01-03 07:30:00", "ecg_2024-01-03.csv")
	appendRows(database.TableECGReadings, [][]any{{
		store.ECGHash, recorded, "Sinus Rhythm", "Watch6,1", 512.0, nil, "2.0", 64.0,
		"Lead I", "µV", "ecg_2024-01-03.csv", importID,
	}})
	samples := make([][]any, len(store.ECGVoltages))
	for i, v := range store.ECGVoltages {
		samples[i] = []any{models.ComputeHash(store.ECGHash, time.Duration(i).String()), store.ECGHash, int64(i), v}
	}
	appendRows(database.TableECGSamples, samples)

	if err := w.Close(); err != nil {
		t.Fatalf("BulkWriter.Close() error = %v", err)
	}
	if _, err := db.RebuildDailyStats(ctx); err != nil {
		t.Fatalf("RebuildDailyStats() error = %v", err)
	}
	if err := db.CompleteRun(ctx, runID, database.RunOutcome{
		Status:       models.RunStatusCompleted,
		RecordCount:  4,
		WorkoutCount: 1,
		Duration:     2 * time.Second,
	}); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}
}
