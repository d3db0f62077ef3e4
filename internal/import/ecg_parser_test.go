// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/healthduck/internal/models"
)

func TestParseECGMinimal(t *testing.T) {
	t.Parallel()

	sink := &CollectingSink{}
	reading, samples, err := ParseECG(context.Background(), strings.NewReader(minimalECG), "ecg_2024-06-15.csv", sink)
	if err != nil {
		t.Fatalf("ParseECG() error = %v", err)
	}
	if samples != 5 {
		t.Errorf("samples = %d, want 5", samples)
	}

	want := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	if !reading.RecordedDate.Equal(want) {
		t.Errorf("RecordedDate = %v, want %v", reading.RecordedDate, want)
	}

	strFields := []struct {
		name string
		got  *string
		want string
	}{
		{"Classification", reading.Classification, "Sinus Rhythm"},
		{"Device", reading.Device, "Apple Watch"},
		{"Symptoms", reading.Symptoms, "None"},
		{"SoftwareVersion", reading.SoftwareVersion, "2.0"},
		{"Lead", reading.Lead, "Lead I"},
		{"Unit", reading.Unit, "µV"},
	}
	for _, f := range strFields {
		if f.got == nil || *f.got != f.want {
			t.Errorf("%s = %v, want %q", f.name, f.got, f.want)
		}
	}
	if reading.SampleRateHz == nil || *reading.SampleRateHz != 512 {
		t.Errorf("SampleRateHz = %v, want 512", reading.SampleRateHz)
	}
	if reading.AverageHeartRate != nil {
		t.Errorf("AverageHeartRate = %v, want nil", *reading.AverageHeartRate)
	}
	if reading.SourceFile != "ecg_2024-06-15.csv" {
		t.Errorf("SourceFile = %q", reading.SourceFile)
	}

	entities := sink.Entities()
	if len(entities) != 6 {
		t.Fatalf("emitted %d entities, want 6", len(entities))
	}
	if entities[0] != Entity(reading) {
		t.Error("reading must be emitted before its samples")
	}
	wantVoltages := []float64{100, 200, -50, 150, 75}
	for n, e := range entities[1:] {
		s, ok := e.(*models.EcgSample)
		if !ok {
			t.Fatalf("entity %d = %T, want *models.EcgSample", n+1, e)
		}
		if s.Index != int64(n) || s.VoltageUV != wantVoltages[n] || s.EcgHash != reading.Hash {
			t.Errorf("sample %d = %+v", n, s)
		}
	}
}

func TestParseECGMissingRecordedDate(t *testing.T) {
	t.Parallel()

	sink := &CollectingSink{}
	_, _, err := ParseECG(context.Background(), strings.NewReader("Name,Test\nClassification,Normal\n\n100\n200\n"), "bad.csv", sink)
	if !errors.Is(err, ErrMalformedECGHeader) {
		t.Fatalf("ParseECG() error = %v, want ErrMalformedECGHeader", err)
	}
	if sink.Len() != 0 {
		t.Errorf("emitted %d entities for a malformed file, want 0", sink.Len())
	}
}

func TestParseECGOptionalHeaders(t *testing.T) {
	t.Parallel()

	csv := "Recorded Date,2024-06-15 10:30:00 -0500\n" +
		"Symptoms,\n" +
		"Average Heart Rate,72 BPM\n" +
		"Sample Rate,510.5 hertz\n" +
		"1.5,extra\n" +
		"2.5\n" +
		"end of data\n" +
		"3.5\n"

	sink := &CollectingSink{}
	reading, samples, err := ParseECG(context.Background(), strings.NewReader(csv), "x.csv", sink)
	if err != nil {
		t.Fatalf("ParseECG() error = %v", err)
	}
	if samples != 2 {
		t.Errorf("samples = %d, want 2 (data ends at the first non-numeric line)", samples)
	}
	if reading.Symptoms != nil {
		t.Errorf("Symptoms = %q, want nil for empty value", *reading.Symptoms)
	}
	if reading.AverageHeartRate == nil || *reading.AverageHeartRate != 72 {
		t.Errorf("AverageHeartRate = %v, want 72", reading.AverageHeartRate)
	}
	if reading.SampleRateHz == nil || *reading.SampleRateHz != 510.5 {
		t.Errorf("SampleRateHz = %v, want 510.5", reading.SampleRateHz)
	}
	if want := time.Date(2024, 6, 15, 15, 30, 0, 0, time.UTC); !reading.RecordedDate.Equal(want) {
		t.Errorf("RecordedDate = %v, want %v", reading.RecordedDate, want)
	}
}

func TestParseECGHeaderOnly(t *testing.T) {
	t.Parallel()

	reading, samples, err := ParseECG(context.Background(),
		strings.NewReader("Recorded Date,2024-06-15 10:30:00 +0000\nClassification,Inconclusive\n"), "h.csv", &CollectingSink{})
	if err != nil {
		t.Fatalf("ParseECG() error = %v", err)
	}
	if reading == nil || samples != 0 {
		t.Errorf("ParseECG() = %v, %d; want reading with 0 samples", reading, samples)
	}
}

func TestParseECGIdentityIgnoresFileName(t *testing.T) {
	t.Parallel()

	a, _, err := ParseECG(context.Background(), strings.NewReader(minimalECG), "a.csv", &CollectingSink{})
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := ParseECG(context.Background(), strings.NewReader(minimalECG), "renamed.csv", &CollectingSink{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash != b.Hash {
		t.Errorf("hash differs across file names: %s vs %s", a.Hash, b.Hash)
	}
}
