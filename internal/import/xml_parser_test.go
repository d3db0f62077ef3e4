// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/healthduck/internal/models"
)

func parseMinimalXML(t *testing.T) (ParseStats, []Entity, *Linker) {
	t.Helper()
	linker := NewLinker()
	parser := NewXMLParser(linker)
	sink := &CollectingSink{}
	stats, err := parser.Parse(context.Background(), strings.NewReader(minimalExportXML), sink)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return stats, sink.Entities(), linker
}

func TestXMLParserCounts(t *testing.T) {
	t.Parallel()

	stats, entities, _ := parseMinimalXML(t)

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"records", stats.Records, 2},
		{"metadata", stats.MetadataEntries, 1},
		{"workouts", stats.Workouts, 1},
		{"workout events", stats.WorkoutEvents, 1},
		{"workout statistics", stats.WorkoutStatistics, 1},
		{"activity summaries", stats.ActivitySummaries, 1},
		{"correlations", stats.Correlations, 1},
		{"route refs", stats.RouteRefs, 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
	if len(entities) != 7 {
		t.Errorf("emitted %d entities, want 7", len(entities))
	}
	if len(stats.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", stats.Skipped)
	}
}

func TestXMLParserSkipsCorrelationMembers(t *testing.T) {
	t.Parallel()

	_, entities, _ := parseMinimalXML(t)
	for _, e := range entities {
		if rec, ok := e.(*models.HealthRecord); ok && rec.RecordType == "HKQuantityTypeIdentifierBloodPressureSystolic" {
			t.Fatal("correlation member record was emitted")
		}
	}
}

func TestXMLParserRecordFields(t *testing.T) {
	t.Parallel()

	_, entities, _ := parseMinimalXML(t)

	rec, ok := entities[0].(*models.HealthRecord)
	if !ok {
		t.Fatalf("first entity = %T, want *models.HealthRecord", entities[0])
	}
	if rec.Value == nil || *rec.Value != 72 {
		t.Errorf("Value = %v, want 72", rec.Value)
	}
	if rec.Unit == nil || *rec.Unit != "count/min" {
		t.Errorf("Unit = %v, want count/min", rec.Unit)
	}
	wantStart := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	if !rec.StartDate.Equal(wantStart) {
		t.Errorf("StartDate = %v, want %v", rec.StartDate, wantStart)
	}
	if rec.Hash == "" || rec.Hash != rec.Identity() {
		t.Errorf("Hash = %q, want identity %q", rec.Hash, rec.Identity())
	}
	if rec.SourceVersion != nil {
		t.Errorf("SourceVersion = %v, want nil for absent attribute", *rec.SourceVersion)
	}

	md, ok := entities[1].(*models.RecordMetadata)
	if !ok {
		t.Fatalf("second entity = %T, want *models.RecordMetadata", entities[1])
	}
	if md.RecordHash != rec.Hash {
		t.Errorf("metadata RecordHash = %q, want %q", md.RecordHash, rec.Hash)
	}
	if md.Key != "HKMetadataKeyHeartRateMotionContext" || md.Value != "1" {
		t.Errorf("metadata = %s=%s", md.Key, md.Value)
	}
}

func TestXMLParserWorkoutChildrenFollowWorkout(t *testing.T) {
	t.Parallel()

	_, entities, _ := parseMinimalXML(t)

	workoutAt := -1
	var workout *models.Workout
	for n, e := range entities {
		switch v := e.(type) {
		case *models.Workout:
			workoutAt = n
			workout = v
		case *models.WorkoutEvent:
			if workoutAt < 0 || n <= workoutAt {
				t.Fatalf("event at %d emitted before workout at %d", n, workoutAt)
			}
			if v.WorkoutHash != workout.Hash {
				t.Errorf("event WorkoutHash = %q, want %q", v.WorkoutHash, workout.Hash)
			}
		case *models.WorkoutStatistic:
			if workoutAt < 0 || n <= workoutAt {
				t.Fatalf("statistic at %d emitted before workout at %d", n, workoutAt)
			}
			if v.WorkoutHash != workout.Hash {
				t.Errorf("statistic WorkoutHash = %q, want %q", v.WorkoutHash, workout.Hash)
			}
			if v.Average == nil || *v.Average != 150 {
				t.Errorf("statistic Average = %v, want 150", v.Average)
			}
		case *models.RecordMetadata:
			if v.Key == "HKIndoorWorkout" {
				t.Error("workout metadata must not be emitted")
			}
		}
	}
	if workout == nil {
		t.Fatal("no workout emitted")
	}
	if workout.TotalEnergyUnit == nil || *workout.TotalEnergyUnit != "kcal" {
		t.Errorf("TotalEnergyUnit = %v, want kcal", workout.TotalEnergyUnit)
	}
}

func TestXMLParserRegistersRouteReference(t *testing.T) {
	t.Parallel()

	_, entities, linker := parseMinimalXML(t)
	linker.Seal()

	var workoutHash string
	for _, e := range entities {
		if w, ok := e.(*models.Workout); ok {
			workoutHash = w.Hash
		}
	}

	got, ok, err := linker.Resolve(RouteKey(routeFileName))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok || got != workoutHash {
		t.Errorf("Resolve() = %q, %v; want %q, true", got, ok, workoutHash)
	}
}

func TestXMLParserSkipsInvalidElements(t *testing.T) {
	t.Parallel()

	doc := `<HealthData>
 <Record sourceName="iPhone" value="1" startDate="2024-01-01 08:00:00 +0000" endDate="2024-01-01 08:01:00 +0000">
  <MetadataEntry key="orphan" value="x"/>
 </Record>
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="iPhone" value="1" startDate="not a date" endDate="2024-01-01 08:01:00 +0000"/>
 <Record type="HKCategoryTypeIdentifierSleepAnalysis" sourceName="iPhone" value="HKCategoryValueSleepAnalysisAsleep" startDate="2024-01-01 01:00:00 +0000" endDate="2024-01-01 07:00:00 +0000"/>
 <Workout sourceName="Watch" startDate="2024-01-01 10:00:00 +0000" endDate="2024-01-01 10:30:00 +0000">
  <WorkoutEvent type="HKWorkoutEventTypeLap"/>
 </Workout>
 <ActivitySummary activeEnergyBurned="10"/>
</HealthData>`

	sink := &CollectingSink{}
	stats, err := NewXMLParser(NewLinker()).Parse(context.Background(), strings.NewReader(doc), sink)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantSkipped := map[string]int64{
		SkipRecord:          2,
		SkipWorkout:         1,
		SkipActivitySummary: 1,
	}
	for kind, want := range wantSkipped {
		if got := stats.Skipped[kind]; got != want {
			t.Errorf("Skipped[%s] = %d, want %d", kind, got, want)
		}
	}
	if stats.Records != 1 || stats.MetadataEntries != 0 || stats.WorkoutEvents != 0 {
		t.Errorf("stats = %+v, want only the sleep record", stats)
	}

	rec := sink.Entities()[0].(*models.HealthRecord)
	if rec.Value != nil {
		t.Errorf("category Value = %v, want nil", *rec.Value)
	}
	if rec.RawValue != "HKCategoryValueSleepAnalysisAsleep" {
		t.Errorf("RawValue = %q", rec.RawValue)
	}
}

func TestXMLParserMalformedIsFatal(t *testing.T) {
	t.Parallel()

	doc := `<HealthData><Record type="x" sourceName="y" startDate="2024-01-01 08:00:00 +0000" endDate="2024-01-01 08:00:00 +0000"></HealthData>`
	_, err := NewXMLParser(NewLinker()).Parse(context.Background(), strings.NewReader(doc), &CollectingSink{})
	if err == nil {
		t.Fatal("Parse() error = nil, want syntax error")
	}
}

func TestXMLParserSinkErrorStops(t *testing.T) {
	t.Parallel()

	errSink := errors.New("sink full")
	calls := 0
	sink := SinkFunc(func(context.Context, Entity) error {
		calls++
		return errSink
	})
	_, err := NewXMLParser(NewLinker()).Parse(context.Background(), strings.NewReader(minimalExportXML), sink)
	if !errors.Is(err, errSink) {
		t.Fatalf("Parse() error = %v, want %v", err, errSink)
	}
	if calls != 1 {
		t.Errorf("sink called %d times, want 1", calls)
	}
}

func TestXMLParserHonorsCancellation(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<HealthData>\n")
	for n := 0; n < 6000; n++ {
		fmt.Fprintf(&b, ` <Record type="T" sourceName="S" value="%d" startDate="2024-01-01 08:00:00 +0000" endDate="2024-01-01 08:00:00 +0000"/>`+"\n", n)
	}
	b.WriteString("</HealthData>")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewXMLParser(NewLinker()).Parse(ctx, strings.NewReader(b.String()), &CollectingSink{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Parse() error = %v, want context.Canceled", err)
	}
}

func TestXMLParserProgressCallback(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<HealthData>\n")
	for n := 0; n < 6000; n++ {
		fmt.Fprintf(&b, ` <Record type="T" sourceName="S" value="%d" startDate="2024-01-01 08:00:00 +0000" endDate="2024-01-01 08:00:00 +0000"/>`+"\n", n)
	}
	b.WriteString("</HealthData>")

	parser := NewXMLParser(NewLinker())
	var calls int
	parser.OnProgress = func(ParseStats) { calls++ }

	stats, err := parser.Parse(context.Background(), strings.NewReader(b.String()), &CollectingSink{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if stats.Records != 6000 {
		t.Errorf("Records = %d, want 6000", stats.Records)
	}
	if calls == 0 {
		t.Error("OnProgress was never called")
	}
}
