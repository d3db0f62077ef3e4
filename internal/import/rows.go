// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"fmt"
	"time"

	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/models"
)

// entityRow maps a parsed entity to its table and appender row. Column order
// follows the CREATE TABLE statements in internal/database/schema.go.
func entityRow(e Entity, importID string) (string, []any, error) {
	switch v := e.(type) {
	case *models.HealthRecord:
		return database.TableRecords, []any{
			v.Hash,
			v.RecordType,
			floatOrNil(v.Value),
			stringOrNil(v.Unit),
			v.SourceName,
			stringOrNil(v.SourceVersion),
			stringOrNil(v.Device),
			timeOrNil(v.CreationDate),
			v.StartDate.UTC(),
			v.EndDate.UTC(),
			importID,
		}, nil

	case *models.RecordMetadata:
		return database.TableRecordMetadata, []any{v.Hash, v.RecordHash, v.Key, v.Value}, nil

	case *models.Workout:
		return database.TableWorkouts, []any{
			v.Hash,
			v.ActivityType,
			floatOrNil(v.Duration),
			stringOrNil(v.DurationUnit),
			floatOrNil(v.TotalDistance),
			stringOrNil(v.TotalDistanceUnit),
			floatOrNil(v.TotalEnergyBurned),
			stringOrNil(v.TotalEnergyUnit),
			v.SourceName,
			stringOrNil(v.SourceVersion),
			stringOrNil(v.Device),
			timeOrNil(v.CreationDate),
			v.StartDate.UTC(),
			v.EndDate.UTC(),
			importID,
		}, nil

	case *models.WorkoutEvent:
		return database.TableWorkoutEvents, []any{
			v.Hash,
			v.WorkoutHash,
			v.EventType,
			timeOrNil(v.Date),
			floatOrNil(v.Duration),
			stringOrNil(v.DurationUnit),
		}, nil

	case *models.WorkoutStatistic:
		return database.TableWorkoutStatistics, []any{
			v.Hash,
			v.WorkoutHash,
			v.StatType,
			timeOrNil(v.StartDate),
			timeOrNil(v.EndDate),
			floatOrNil(v.Average),
			floatOrNil(v.Minimum),
			floatOrNil(v.Maximum),
			floatOrNil(v.Sum),
			stringOrNil(v.Unit),
		}, nil

	case *models.ActivitySummary:
		return database.TableActivitySummaries, []any{
			v.Hash,
			v.DateComponents,
			floatOrNil(v.ActiveEnergyBurned),
			floatOrNil(v.ActiveEnergyGoal),
			floatOrNil(v.AppleMoveTime),
			floatOrNil(v.AppleMoveTimeGoal),
			floatOrNil(v.AppleExerciseTime),
			floatOrNil(v.AppleExerciseTimeGoal),
			floatOrNil(v.AppleStandHours),
			floatOrNil(v.AppleStandHoursGoal),
			importID,
		}, nil

	case *models.EcgReading:
		return database.TableECGReadings, []any{
			v.Hash,
			v.RecordedDate.UTC(),
			stringOrNil(v.Classification),
			stringOrNil(v.Device),
			floatOrNil(v.SampleRateHz),
			stringOrNil(v.Symptoms),
			stringOrNil(v.SoftwareVersion),
			floatOrNil(v.AverageHeartRate),
			stringOrNil(v.Lead),
			stringOrNil(v.Unit),
			v.SourceFile,
			importID,
		}, nil

	case *models.EcgSample:
		return database.TableECGSamples, []any{v.Hash, v.EcgHash, v.Index, v.VoltageUV}, nil

	case *models.RoutePoint:
		return database.TableRoutePoints, []any{
			v.Hash,
			stringOrNil(v.WorkoutHash),
			v.Latitude,
			v.Longitude,
			floatOrNil(v.Elevation),
			v.Timestamp.UTC(),
			floatOrNil(v.Speed),
			floatOrNil(v.Course),
			floatOrNil(v.HAccuracy),
			floatOrNil(v.VAccuracy),
			importID,
		}, nil
	}
	return "", nil, fmt.Errorf("unsupported entity type %T", e)
}

// The appender wants untyped nil for NULL, never a typed nil pointer.

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
