// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import (
	"errors"
	"time"
)

// ErrMissingRequiredField marks an element that lacks a field its identity
// depends on. The element is skipped and counted; the import continues.
var ErrMissingRequiredField = errors.New("missing required field")

// HealthRecord is one <Record> observation from export.xml.
type HealthRecord struct {
	Hash          string     `json:"record_hash"`
	RecordType    string     `json:"record_type"`
	Value         *float64   `json:"value,omitempty"`
	RawValue      string     `json:"-"`
	Unit          *string    `json:"unit,omitempty"`
	SourceName    string     `json:"source_name"`
	SourceVersion *string    `json:"source_version,omitempty"`
	Device        *string    `json:"device,omitempty"`
	CreationDate  *time.Time `json:"creation_date,omitempty"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
}

// Identity returns the content hash of the record.
func (r *HealthRecord) Identity() string {
	return ComputeHash(
		r.RecordType,
		r.SourceName,
		FormatTimestamp(r.StartDate),
		FormatTimestamp(r.EndDate),
		hashFloat(r.RawValue, r.Value),
		derefString(r.Unit),
	)
}

// RecordMetadata is a <MetadataEntry> attached to a record.
type RecordMetadata struct {
	Hash       string `json:"metadata_hash"`
	RecordHash string `json:"record_hash"`
	Key        string `json:"key"`
	Value      string `json:"value"`
}

func (m *RecordMetadata) Identity() string {
	return ComputeHash(m.RecordHash, m.Key, m.Value)
}

// Workout is one <Workout> element.
type Workout struct {
	Hash              string     `json:"workout_hash"`
	ActivityType      string     `json:"activity_type"`
	Duration          *float64   `json:"duration,omitempty"`
	RawDuration       string     `json:"-"`
	DurationUnit      *string    `json:"duration_unit,omitempty"`
	TotalDistance     *float64   `json:"total_distance,omitempty"`
	TotalDistanceUnit *string    `json:"total_distance_unit,omitempty"`
	TotalEnergyBurned *float64   `json:"total_energy_burned,omitempty"`
	TotalEnergyUnit   *string    `json:"total_energy_unit,omitempty"`
	SourceName        string     `json:"source_name"`
	SourceVersion     *string    `json:"source_version,omitempty"`
	Device            *string    `json:"device,omitempty"`
	CreationDate      *time.Time `json:"creation_date,omitempty"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           time.Time  `json:"end_date"`
}

// Identity returns the content hash of the workout.
func (w *Workout) Identity() string {
	return ComputeHash(
		w.ActivityType,
		w.SourceName,
		FormatTimestamp(w.StartDate),
		FormatTimestamp(w.EndDate),
		hashFloat(w.RawDuration, w.Duration),
	)
}

// WorkoutEvent is a <WorkoutEvent> child of a workout (laps, pauses, segments).
type WorkoutEvent struct {
	Hash         string     `json:"event_hash"`
	WorkoutHash  string     `json:"workout_hash"`
	EventType    string     `json:"event_type"`
	Date         *time.Time `json:"date,omitempty"`
	Duration     *float64   `json:"duration,omitempty"`
	RawDuration  string     `json:"-"`
	DurationUnit *string    `json:"duration_unit,omitempty"`
}

func (e *WorkoutEvent) Identity() string {
	return ComputeHash(e.WorkoutHash, e.EventType, hashTime(e.Date), hashFloat(e.RawDuration, e.Duration))
}

// WorkoutStatistic is a <WorkoutStatistics> child of a workout.
type WorkoutStatistic struct {
	Hash        string     `json:"stat_hash"`
	WorkoutHash string     `json:"workout_hash"`
	StatType    string     `json:"stat_type"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Average     *float64   `json:"average,omitempty"`
	Minimum     *float64   `json:"minimum,omitempty"`
	Maximum     *float64   `json:"maximum,omitempty"`
	Sum         *float64   `json:"sum,omitempty"`
	Unit        *string    `json:"unit,omitempty"`
}

func (s *WorkoutStatistic) Identity() string {
	return ComputeHash(s.WorkoutHash, s.StatType, hashTime(s.StartDate), hashTime(s.EndDate))
}

// ActivitySummary is one day of activity ring data.
type ActivitySummary struct {
	Hash                  string   `json:"summary_hash"`
	DateComponents        string   `json:"date_components"`
	ActiveEnergyBurned    *float64 `json:"active_energy_burned,omitempty"`
	ActiveEnergyGoal      *float64 `json:"active_energy_burned_goal,omitempty"`
	AppleMoveTime         *float64 `json:"apple_move_time,omitempty"`
	AppleMoveTimeGoal     *float64 `json:"apple_move_time_goal,omitempty"`
	AppleExerciseTime     *float64 `json:"apple_exercise_time,omitempty"`
	AppleExerciseTimeGoal *float64 `json:"apple_exercise_time_goal,omitempty"`
	AppleStandHours       *float64 `json:"apple_stand_hours,omitempty"`
	AppleStandHoursGoal   *float64 `json:"apple_stand_hours_goal,omitempty"`
}

// Identity is keyed on the day alone; the export writes one summary per day.
func (a *ActivitySummary) Identity() string {
	return ComputeHash(a.DateComponents)
}
