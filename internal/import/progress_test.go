// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"testing"
	"time"
)

func exerciseProgressTracker(t *testing.T, p ProgressTracker) {
	t.Helper()
	ctx := context.Background()

	got, err := p.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("Load() on empty tracker = %v, %v; want nil, nil", got, err)
	}

	stats := &ImportStats{
		RunID:     "run-1",
		Phase:     PhaseECG,
		Records:   42,
		Skipped:   map[string]int64{SkipRecord: 3},
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := p.Save(ctx, stats); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	stats.Records = 99
	stats.Skipped[SkipRecord] = 100

	got, err = p.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.RunID != "run-1" || got.Phase != PhaseECG || got.Records != 42 || got.Skipped[SkipRecord] != 3 {
		t.Errorf("Load() = %+v, want saved snapshot", got)
	}

	const file = "/export/electrocardiograms/a.csv"
	if done, err := p.FileDone(ctx, file); err != nil || done {
		t.Fatalf("FileDone() before MarkFile = %v, %v", done, err)
	}
	if err := p.MarkFile(ctx, file); err != nil {
		t.Fatalf("MarkFile() error = %v", err)
	}
	if done, err := p.FileDone(ctx, file); err != nil || !done {
		t.Fatalf("FileDone() after MarkFile = %v, %v", done, err)
	}

	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got, _ := p.Load(ctx); got != nil {
		t.Errorf("Load() after Clear = %+v, want nil", got)
	}
	if done, _ := p.FileDone(ctx, file); done {
		t.Error("file marker survived Clear")
	}
}

func TestInMemoryProgress(t *testing.T) {
	t.Parallel()
	exerciseProgressTracker(t, NewInMemoryProgress())
}

func TestBadgerProgress(t *testing.T) {
	t.Parallel()

	p, err := OpenBadgerProgress(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerProgress() error = %v", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()
	exerciseProgressTracker(t, p)
}

func TestImportStatsSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &ImportStats{
		Records:    80,
		ECGSamples: 20,
		Skipped:    map[string]int64{SkipRecord: 2, SkipWorkout: 1},
		StartTime:  start,
		EndTime:    start.Add(10 * time.Second),
		Status:     "completed",
		FileErrors: []FileErrorInfo{{Path: "x", Phase: PhaseECG, Message: "bad"}},
		DailyStats: 4,
		ExportDir:  "/export",
		RunID:      "r",
		Phase:      PhaseDone,
	}

	summary := s.ToSummary(false)
	if summary.Rows != 100 || summary.Skipped != 3 || summary.FileErrors != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.RowsPerSec != 10 {
		t.Errorf("RowsPerSec = %v, want 10", summary.RowsPerSec)
	}
	if summary.Status != "completed" {
		t.Errorf("Status = %q, want completed", summary.Status)
	}
	if got := s.ToSummary(true).Status; got != "running" {
		t.Errorf("running Status = %q", got)
	}
}
