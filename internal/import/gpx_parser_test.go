// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/healthduck/internal/models"
)

func TestParseGPXMinimal(t *testing.T) {
	t.Parallel()

	workoutHash := "workout_hash_1"
	sink := &CollectingSink{}
	stats, err := ParseGPX(context.Background(), strings.NewReader(minimalGPX), &workoutHash, sink)
	if err != nil {
		t.Fatalf("ParseGPX() error = %v", err)
	}
	if stats.Points != 2 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v, want 2 points", stats)
	}

	first := sink.Entities()[0].(*models.RoutePoint)
	if first.Latitude != 37.7749 || first.Longitude != -122.4194 {
		t.Errorf("position = %v,%v", first.Latitude, first.Longitude)
	}
	if first.WorkoutHash == nil || *first.WorkoutHash != workoutHash {
		t.Errorf("WorkoutHash = %v, want %q", first.WorkoutHash, workoutHash)
	}
	if want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC); !first.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", first.Timestamp, want)
	}

	optional := []struct {
		name string
		got  *float64
		want float64
	}{
		{"Elevation", first.Elevation, 10.5},
		{"Speed", first.Speed, 3.5},
		{"Course", first.Course, 180},
		{"HAccuracy", first.HAccuracy, 5},
		{"VAccuracy", first.VAccuracy, 3},
	}
	for _, f := range optional {
		if f.got == nil || *f.got != f.want {
			t.Errorf("%s = %v, want %v", f.name, f.got, f.want)
		}
	}
	if first.Hash != first.Identity() {
		t.Errorf("Hash = %q, want identity", first.Hash)
	}
}

func TestParseGPXWithoutWorkout(t *testing.T) {
	t.Parallel()

	gpx := `<gpx><trk><trkseg>
    <trkpt lat="37.0" lon="-122.0"><ele>5.0</ele><time>2024-01-01T10:00:00Z</time></trkpt>
  </trkseg></trk></gpx>`

	sink := &CollectingSink{}
	stats, err := ParseGPX(context.Background(), strings.NewReader(gpx), nil, sink)
	if err != nil {
		t.Fatalf("ParseGPX() error = %v", err)
	}
	if stats.Points != 1 {
		t.Fatalf("Points = %d, want 1", stats.Points)
	}
	if p := sink.Entities()[0].(*models.RoutePoint); p.WorkoutHash != nil {
		t.Errorf("WorkoutHash = %q, want nil", *p.WorkoutHash)
	}
}

func TestParseGPXSkipsIncompletePoints(t *testing.T) {
	t.Parallel()

	gpx := `<gpx><trk><trkseg>
    <trkpt lat="37.0" lon="-122.0"><ele>5.0</ele></trkpt>
    <trkpt lon="-122.0"><time>2024-01-01T10:00:00Z</time></trkpt>
    <trkpt lat="37.0" lon="-122.0"><time>yesterday</time></trkpt>
    <trkpt lat="37.1" lon="-122.1"><time>2024-01-01T10:00:01+02:00</time></trkpt>
  </trkseg></trk></gpx>`

	sink := &CollectingSink{}
	stats, err := ParseGPX(context.Background(), strings.NewReader(gpx), nil, sink)
	if err != nil {
		t.Fatalf("ParseGPX() error = %v", err)
	}
	if stats.Points != 1 || stats.Skipped != 3 {
		t.Errorf("stats = %+v, want 1 point and 3 skipped", stats)
	}
	p := sink.Entities()[0].(*models.RoutePoint)
	if want := time.Date(2024, 1, 1, 8, 0, 1, 0, time.UTC); !p.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", p.Timestamp, want)
	}
}

func TestParseGPXMalformed(t *testing.T) {
	t.Parallel()

	_, err := ParseGPX(context.Background(), strings.NewReader(`<gpx><trk><trkpt lat="1" lon="2">`), nil, &CollectingSink{})
	if err == nil {
		t.Fatal("ParseGPX() error = nil, want error for truncated file")
	}
}
