// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/models"
)

// Skip kinds reported in ParseStats.Skipped and ImportStats.Skipped.
const (
	SkipRecord           = "record"
	SkipMetadata         = "metadata"
	SkipWorkout          = "workout"
	SkipWorkoutEvent     = "workout_event"
	SkipWorkoutStatistic = "workout_statistic"
	SkipActivitySummary  = "activity_summary"
	SkipRoutePoint       = "route_point"
)

// ctxCheckInterval is the number of decoder tokens between cancellation checks.
const ctxCheckInterval = 10000

// ParseStats counts what the XML pass emitted.
type ParseStats struct {
	Records           int64
	MetadataEntries   int64
	Workouts          int64
	WorkoutEvents     int64
	WorkoutStatistics int64
	ActivitySummaries int64
	Correlations      int64
	RouteRefs         int64
	Skipped           map[string]int64
}

func (s *ParseStats) skip(kind string) {
	if s.Skipped == nil {
		s.Skipped = make(map[string]int64)
	}
	s.Skipped[kind]++
}

// XMLParser streams export.xml.
type XMLParser struct {
	linker *Linker

	// OnProgress, when set, is called with running totals every few thousand
	// tokens. It runs on the parsing goroutine.
	OnProgress func(ParseStats)
}

// NewXMLParser creates a parser that registers workout route references in linker.
func NewXMLParser(linker *Linker) *XMLParser {
	return &XMLParser{linker: linker}
}

// xmlState tracks the element nesting the parser cares about.
type xmlState struct {
	inCorrelation bool

	inRecord   bool
	recordHash string

	inWorkout        bool
	workout          *models.Workout
	workoutChildren  []Entity
	workoutEvents    int64
	workoutStatistic int64
}

// Parse reads export.xml from r and emits entities to sink in document order,
// except that a workout's children are emitted right after the workout itself
// once its closing tag has been read.
//
// Elements missing a required attribute are skipped and counted. Malformed
// XML is fatal.
func (p *XMLParser) Parse(ctx context.Context, r io.Reader, sink Sink) (ParseStats, error) {
	var stats ParseStats
	var st xmlState

	dec := xml.NewDecoder(r)
	tokens := 0

	for {
		tokens++
		if tokens%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if p.OnProgress != nil {
				p.OnProgress(stats)
			}
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("export.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.start(ctx, t, &st, &stats, sink); err != nil {
				return stats, err
			}
		case xml.EndElement:
			if err := p.end(ctx, t, &st, &stats, sink); err != nil {
				return stats, err
			}
		}
	}

	if st.inWorkout {
		return stats, fmt.Errorf("export.xml: unterminated Workout element")
	}
	return stats, nil
}

func (p *XMLParser) start(ctx context.Context, el xml.StartElement, st *xmlState, stats *ParseStats, sink Sink) error {
	switch el.Name.Local {
	case "Correlation":
		st.inCorrelation = true
		stats.Correlations++

	case "Record":
		if st.inCorrelation {
			// Correlation members are repeated as top-level records.
			return nil
		}
		st.inRecord = true
		st.recordHash = ""
		rec, err := buildRecord(el.Attr)
		if err != nil {
			stats.skip(SkipRecord)
			logging.Debug().Err(err).Msg("Skipping record")
			return nil
		}
		rec.Hash = rec.Identity()
		st.recordHash = rec.Hash
		if err := sink.Emit(ctx, rec); err != nil {
			return err
		}
		stats.Records++

	case "MetadataEntry":
		if st.inWorkout || !st.inRecord || st.recordHash == "" {
			return nil
		}
		key, ok := attr(el.Attr, "key")
		if !ok || key == "" {
			stats.skip(SkipMetadata)
			return nil
		}
		value, _ := attr(el.Attr, "value")
		md := &models.RecordMetadata{RecordHash: st.recordHash, Key: key, Value: value}
		md.Hash = md.Identity()
		if err := sink.Emit(ctx, md); err != nil {
			return err
		}
		stats.MetadataEntries++

	case "Workout":
		st.inWorkout = true
		st.workout = nil
		st.workoutChildren = st.workoutChildren[:0]
		st.workoutEvents, st.workoutStatistic = 0, 0
		w, err := buildWorkout(el.Attr)
		if err != nil {
			stats.skip(SkipWorkout)
			logging.Debug().Err(err).Msg("Skipping workout")
			return nil
		}
		w.Hash = w.Identity()
		st.workout = w

	case "WorkoutEvent":
		if !st.inWorkout || st.workout == nil {
			return nil
		}
		ev, err := buildWorkoutEvent(el.Attr, st.workout.Hash)
		if err != nil {
			stats.skip(SkipWorkoutEvent)
			return nil
		}
		ev.Hash = ev.Identity()
		st.workoutChildren = append(st.workoutChildren, ev)
		st.workoutEvents++

	case "WorkoutStatistics":
		if !st.inWorkout || st.workout == nil {
			return nil
		}
		ws, err := buildWorkoutStatistic(el.Attr, st.workout.Hash)
		if err != nil {
			stats.skip(SkipWorkoutStatistic)
			return nil
		}
		ws.Hash = ws.Identity()
		st.workoutChildren = append(st.workoutChildren, ws)
		st.workoutStatistic++

	case "FileReference":
		if !st.inWorkout || st.workout == nil || p.linker == nil {
			return nil
		}
		if path, ok := attr(el.Attr, "path"); ok && path != "" {
			p.linker.Register(path, st.workout.Hash)
			stats.RouteRefs++
		}

	case "ActivitySummary":
		summary, err := buildActivitySummary(el.Attr)
		if err != nil {
			stats.skip(SkipActivitySummary)
			return nil
		}
		summary.Hash = summary.Identity()
		if err := sink.Emit(ctx, summary); err != nil {
			return err
		}
		stats.ActivitySummaries++
	}
	return nil
}

func (p *XMLParser) end(ctx context.Context, el xml.EndElement, st *xmlState, stats *ParseStats, sink Sink) error {
	switch el.Name.Local {
	case "Correlation":
		st.inCorrelation = false

	case "Record":
		if !st.inCorrelation {
			st.inRecord = false
			st.recordHash = ""
		}

	case "Workout":
		w := st.workout
		children := st.workoutChildren
		st.inWorkout = false
		st.workout = nil
		st.workoutChildren = children[:0]
		if w == nil {
			return nil
		}

		if err := sink.Emit(ctx, w); err != nil {
			return err
		}
		for _, child := range children {
			if err := sink.Emit(ctx, child); err != nil {
				return err
			}
		}
		stats.Workouts++
		stats.WorkoutEvents += st.workoutEvents
		stats.WorkoutStatistics += st.workoutStatistic
	}
	return nil
}

func buildRecord(attrs []xml.Attr) (*models.HealthRecord, error) {
	recordType, _ := attr(attrs, "type")
	if recordType == "" {
		return nil, fmt.Errorf("%w: type", models.ErrMissingRequiredField)
	}
	start, end, err := requiredRange(attrs)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", recordType, err)
	}
	sourceName, _ := attr(attrs, "sourceName")
	rawValue, _ := attr(attrs, "value")

	return &models.HealthRecord{
		RecordType:    recordType,
		Value:         parseOptFloat(rawValue),
		RawValue:      rawValue,
		Unit:          optAttr(attrs, "unit"),
		SourceName:    sourceName,
		SourceVersion: optAttr(attrs, "sourceVersion"),
		Device:        optAttr(attrs, "device"),
		CreationDate:  optTime(attrs, "creationDate"),
		StartDate:     start,
		EndDate:       end,
	}, nil
}

func buildWorkout(attrs []xml.Attr) (*models.Workout, error) {
	activityType, _ := attr(attrs, "workoutActivityType")
	if activityType == "" {
		return nil, fmt.Errorf("%w: workoutActivityType", models.ErrMissingRequiredField)
	}
	start, end, err := requiredRange(attrs)
	if err != nil {
		return nil, fmt.Errorf("workout %s: %w", activityType, err)
	}
	sourceName, _ := attr(attrs, "sourceName")
	rawDuration, _ := attr(attrs, "duration")

	return &models.Workout{
		ActivityType:      activityType,
		Duration:          parseOptFloat(rawDuration),
		RawDuration:       rawDuration,
		DurationUnit:      optAttr(attrs, "durationUnit"),
		TotalDistance:     optFloat(attrs, "totalDistance"),
		TotalDistanceUnit: optAttr(attrs, "totalDistanceUnit"),
		TotalEnergyBurned: optFloat(attrs, "totalEnergyBurned"),
		TotalEnergyUnit:   optAttr(attrs, "totalEnergyBurnedUnit"),
		SourceName:        sourceName,
		SourceVersion:     optAttr(attrs, "sourceVersion"),
		Device:            optAttr(attrs, "device"),
		CreationDate:      optTime(attrs, "creationDate"),
		StartDate:         start,
		EndDate:           end,
	}, nil
}

func buildWorkoutEvent(attrs []xml.Attr, workoutHash string) (*models.WorkoutEvent, error) {
	eventType, _ := attr(attrs, "type")
	if eventType == "" {
		return nil, fmt.Errorf("%w: type", models.ErrMissingRequiredField)
	}
	rawDuration, _ := attr(attrs, "duration")
	return &models.WorkoutEvent{
		WorkoutHash:  workoutHash,
		EventType:    eventType,
		Date:         optTime(attrs, "date"),
		Duration:     parseOptFloat(rawDuration),
		RawDuration:  rawDuration,
		DurationUnit: optAttr(attrs, "durationUnit"),
	}, nil
}

func buildWorkoutStatistic(attrs []xml.Attr, workoutHash string) (*models.WorkoutStatistic, error) {
	statType, _ := attr(attrs, "type")
	if statType == "" {
		return nil, fmt.Errorf("%w: type", models.ErrMissingRequiredField)
	}
	return &models.WorkoutStatistic{
		WorkoutHash: workoutHash,
		StatType:    statType,
		StartDate:   optTime(attrs, "startDate"),
		EndDate:     optTime(attrs, "endDate"),
		Average:     optFloat(attrs, "average"),
		Minimum:     optFloat(attrs, "minimum"),
		Maximum:     optFloat(attrs, "maximum"),
		Sum:         optFloat(attrs, "sum"),
		Unit:        optAttr(attrs, "unit"),
	}, nil
}

func buildActivitySummary(attrs []xml.Attr) (*models.ActivitySummary, error) {
	day, _ := attr(attrs, "dateComponents")
	if day == "" {
		return nil, fmt.Errorf("%w: dateComponents", models.ErrMissingRequiredField)
	}
	return &models.ActivitySummary{
		DateComponents:        day,
		ActiveEnergyBurned:    optFloat(attrs, "activeEnergyBurned"),
		ActiveEnergyGoal:      optFloat(attrs, "activeEnergyBurnedGoal"),
		AppleMoveTime:         optFloat(attrs, "appleMoveTime"),
		AppleMoveTimeGoal:     optFloat(attrs, "appleMoveTimeGoal"),
		AppleExerciseTime:     optFloat(attrs, "appleExerciseTime"),
		AppleExerciseTimeGoal: optFloat(attrs, "appleExerciseTimeGoal"),
		AppleStandHours:       optFloat(attrs, "appleStandHours"),
		AppleStandHoursGoal:   optFloat(attrs, "appleStandHoursGoal"),
	}, nil
}

func requiredRange(attrs []xml.Attr) (start, end time.Time, err error) {
	rawStart, _ := attr(attrs, "startDate")
	rawEnd, _ := attr(attrs, "endDate")
	if rawStart == "" || rawEnd == "" {
		return start, end, fmt.Errorf("%w: startDate/endDate", models.ErrMissingRequiredField)
	}
	if start, err = models.NormalizeExportTime(rawStart); err != nil {
		return start, end, err
	}
	if end, err = models.NormalizeExportTime(rawEnd); err != nil {
		return start, end, err
	}
	return start, end, nil
}

func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func optAttr(attrs []xml.Attr, name string) *string {
	v, ok := attr(attrs, name)
	if !ok {
		return nil
	}
	return &v
}

func optFloat(attrs []xml.Attr, name string) *float64 {
	v, _ := attr(attrs, name)
	return parseOptFloat(v)
}

// optTime ignores unparseable values; only start and end dates are required.
func optTime(attrs []xml.Attr, name string) *time.Time {
	v, ok := attr(attrs, name)
	if !ok || v == "" {
		return nil
	}
	t, err := models.NormalizeExportTime(v)
	if err != nil {
		return nil
	}
	return &t
}

func parseOptFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
