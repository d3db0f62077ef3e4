// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func ptr[T any](v T) *T { return &v }

func mustExportTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := NormalizeExportTime(s)
	if err != nil {
		t.Fatalf("NormalizeExportTime(%q) error = %v", s, err)
	}
	return ts
}

func TestComputeHash(t *testing.T) {
	t.Parallel()

	a := ComputeHash("HKQuantityTypeIdentifierHeartRate", "Apple Watch", "72")
	b := ComputeHash("HKQuantityTypeIdentifierHeartRate", "Apple Watch", "72")
	if a != b {
		t.Fatalf("hash not deterministic: %s != %s", a, b)
	}
	if !hexDigest.MatchString(a) {
		t.Errorf("hash %q is not lower-case hex sha256", a)
	}
	if ComputeHash("ab", "c") == ComputeHash("a", "bc") {
		t.Error("part boundaries must affect the hash")
	}
	if ComputeHash() == ComputeHash("") {
		t.Error("an empty part must differ from no parts")
	}
}

func TestNormalizeExportTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"export utc", "2024-01-01 10:00:00 +0000", "2024-01-01 10:00:00", false},
		{"export negative offset", "2024-01-01 05:00:00 -0500", "2024-01-01 10:00:00", false},
		{"export positive offset", "2024-01-01 11:30:00 +0130", "2024-01-01 10:00:00", false},
		{"iso with offset", "2024-01-01T10:00:00-0000", "2024-01-01 10:00:00", false},
		{"rfc3339", "2024-01-01T12:00:00+02:00", "2024-01-01 10:00:00", false},
		{"no zone", "2024-01-01 10:00:00", "2024-01-01 10:00:00", false},
		{"crosses midnight", "2023-12-31 23:30:00 -0100", "2024-01-01 00:30:00", false},
		{"empty", "", "", true},
		{"garbage", "yesterday", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeExportTime(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimestamp) {
					t.Fatalf("error = %v, want ErrInvalidTimestamp", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
			if s := FormatTimestamp(got); s != tt.want {
				t.Errorf("FormatTimestamp = %q, want %q", s, tt.want)
			}
		})
	}
}

func TestNormalizeGPXTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"2024-01-01T10:00:05Z", "2024-01-01 10:00:05"},
		{"2024-01-01T10:00:05.250Z", "2024-01-01 10:00:05"},
		{"2024-01-01T05:00:05-05:00", "2024-01-01 10:00:05"},
		{"2024-01-01T10:00:05", "2024-01-01 10:00:05"},
	}
	for _, tt := range tests {
		got, err := NormalizeGPXTime(tt.input)
		if err != nil {
			t.Fatalf("NormalizeGPXTime(%q) error = %v", tt.input, err)
		}
		if s := FormatTimestamp(got); s != tt.want {
			t.Errorf("NormalizeGPXTime(%q) = %q, want %q", tt.input, s, tt.want)
		}
	}
	if _, err := NormalizeGPXTime("not a time"); err == nil {
		t.Error("expected error for invalid GPX time")
	}
}

func TestRecordIdentityIgnoresOffsetRepresentation(t *testing.T) {
	t.Parallel()

	base := HealthRecord{
		RecordType: "HKQuantityTypeIdentifierStepCount",
		SourceName: "iPhone",
		RawValue:   "100",
		Value:      ptr(100.0),
		Unit:       ptr("count"),
		StartDate:  mustExportTime(t, "2024-01-01 10:00:00 +0000"),
		EndDate:    mustExportTime(t, "2024-01-01 10:05:00 +0000"),
	}
	shifted := base
	shifted.StartDate = mustExportTime(t, "2024-01-01 05:00:00 -0500")
	shifted.EndDate = mustExportTime(t, "2024-01-01 05:05:00 -0500")

	if base.Identity() != shifted.Identity() {
		t.Error("same instant in different offsets must hash identically")
	}

	// Non-canonical fields never affect identity.
	shifted.Device = ptr("<<HKDevice>>")
	shifted.SourceVersion = ptr("17.2")
	shifted.CreationDate = ptr(time.Now())
	if base.Identity() != shifted.Identity() {
		t.Error("device, version and creation date must not affect identity")
	}

	changed := base
	changed.RawValue = "101"
	if base.Identity() == changed.Identity() {
		t.Error("value must affect identity")
	}
}

func TestRawValueTakesPrecedence(t *testing.T) {
	t.Parallel()

	a := HealthRecord{RecordType: "t", SourceName: "s", Value: ptr(1.0), RawValue: "1.0"}
	b := HealthRecord{RecordType: "t", SourceName: "s", Value: ptr(1.0), RawValue: "1"}
	if a.Identity() == b.Identity() {
		t.Error("raw value text must be hashed as written")
	}

	c := HealthRecord{RecordType: "t", SourceName: "s", Value: ptr(1.0)}
	if c.Identity() != b.Identity() {
		t.Error("formatted float must match the shortest raw representation")
	}
}

func TestChildIdentitiesDependOnParent(t *testing.T) {
	t.Parallel()

	date := mustExportTime(t, "2024-01-01 10:10:00 +0000")
	e1 := WorkoutEvent{WorkoutHash: "w1", EventType: "HKWorkoutEventTypeLap", Date: &date}
	e2 := e1
	e2.WorkoutHash = "w2"
	if e1.Identity() == e2.Identity() {
		t.Error("events of different workouts must not collide")
	}

	s1 := EcgSample{EcgHash: "ecg", Index: 0, VoltageUV: 100}
	s2 := EcgSample{EcgHash: "ecg", Index: 0, VoltageUV: 200}
	if s1.Identity() != s2.Identity() {
		t.Error("sample identity is ecg hash and index only")
	}
	s3 := EcgSample{EcgHash: "ecg", Index: 1}
	if s1.Identity() == s3.Identity() {
		t.Error("sample index must affect identity")
	}
}

func TestRoutePointIdentity(t *testing.T) {
	t.Parallel()

	ts, err := NormalizeGPXTime("2024-01-01T10:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	linked := RoutePoint{WorkoutHash: ptr("w1"), Latitude: 37.7749, Longitude: -122.4194, Timestamp: ts}
	unlinked := linked
	unlinked.WorkoutHash = nil
	if linked.Identity() == unlinked.Identity() {
		t.Error("linked and unlinked points must hash differently")
	}

	again := RoutePoint{WorkoutHash: ptr("w1"), Latitude: 37.7749, Longitude: -122.4194, Timestamp: ts, Speed: ptr(3.2)}
	if linked.Identity() != again.Identity() {
		t.Error("speed must not affect identity")
	}
}

func TestEcgIdentityIgnoresSourceFile(t *testing.T) {
	t.Parallel()

	rec := mustExportTime(t, "2024-01-01 10:00:00 +0000")
	a := EcgReading{RecordedDate: rec, Device: ptr("Watch6,1"), SourceFile: "ecg_2024-01-01.csv"}
	b := EcgReading{RecordedDate: rec, Device: ptr("Watch6,1"), SourceFile: "ecg_copy.csv"}
	if a.Identity() != b.Identity() {
		t.Error("ECG identity must not depend on the file name")
	}
}
