// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/healthduck/internal/models"
)

// ErrInvalidFilter is returned for malformed dates, periods or limits.
var ErrInvalidFilter = errors.New("invalid filter")

// Limits applied when a caller omits or exceeds a limit.
const (
	DefaultRecordLimit  = 100
	MaxRecordLimit      = 1000
	DefaultWorkoutLimit = 50
	MaxWorkoutLimit     = 500
	DefaultSummaryLimit = 30
	MaxSummaryLimit     = 365
	DefaultECGLimit     = 100
	MaxECGLimit         = 1000
	DefaultImportsLimit = 50
	MaxImportsLimit     = 500
)

// RecordFilter selects rows of the records table.
type RecordFilter struct {
	RecordType string
	StartDate  string
	EndDate    string
	SourceName string
	Limit      int
}

// StatsFilter selects aggregated daily statistics.
type StatsFilter struct {
	RecordType string
	StartDate  string
	EndDate    string
	Period     string // day (default), week, month or year
}

// WorkoutFilter selects workouts.
type WorkoutFilter struct {
	ActivityType string
	StartDate    string
	EndDate      string
	Limit        int
}

// DateRange is a start/end filter with an optional limit.
type DateRange struct {
	StartDate string
	EndDate   string
	Limit     int
}

// WorkoutDetails is a workout with its child rows.
type WorkoutDetails struct {
	Workout         Row   `json:"workout"`
	Events          []Row `json:"events"`
	Statistics      []Row `json:"statistics"`
	HasRoute        bool  `json:"has_route"`
	RoutePointCount int64 `json:"route_point_count"`
}

// ECGData is a reading with its ordered voltages.
type ECGData struct {
	Reading     Row       `json:"reading"`
	SampleCount int       `json:"sample_count"`
	VoltagesUV  []float64 `json:"voltages_uv"`
}

var periodExpr = map[string]string{
	"":      "date",
	"day":   "date",
	"week":  "CAST(DATE_TRUNC('week', date) AS DATE)",
	"month": "CAST(DATE_TRUNC('month', date) AS DATE)",
	"year":  "CAST(DATE_TRUNC('year', date) AS DATE)",
}

// ValidPeriod reports whether p is an accepted statistics period.
func ValidPeriod(p string) bool {
	_, ok := periodExpr[p]
	return ok
}

// where accumulates AND-ed conditions and their bound arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// timeRange adds start/end conditions on a TIMESTAMP column. A date-only end
// bound covers that whole day.
func (w *where) timeRange(column, start, end string) error {
	if start != "" {
		t, _, err := ParseDateFilter(start)
		if err != nil {
			return err
		}
		w.add(column+" >= CAST(? AS TIMESTAMP)", models.FormatTimestamp(t))
	}
	if end != "" {
		t, dateOnly, err := ParseDateFilter(end)
		if err != nil {
			return err
		}
		if dateOnly {
			w.add(column+" < CAST(? AS TIMESTAMP)", models.FormatTimestamp(t.AddDate(0, 0, 1)))
		} else {
			w.add(column+" <= CAST(? AS TIMESTAMP)", models.FormatTimestamp(t))
		}
	}
	return nil
}

// dayRange adds inclusive start/end conditions on a day-valued column.
func (w *where) dayRange(column, cast, start, end string) error {
	if start != "" {
		t, _, err := ParseDateFilter(start)
		if err != nil {
			return err
		}
		w.add(column+" >= "+cast, t.Format("2006-01-02"))
	}
	if end != "" {
		t, _, err := ParseDateFilter(end)
		if err != nil {
			return err
		}
		w.add(column+" <= "+cast, t.Format("2006-01-02"))
	}
	return nil
}

// ParseDateFilter accepts YYYY-MM-DD or any timestamp form NormalizeExportTime
// understands. dateOnly reports the first form.
func ParseDateFilter(s string) (t time.Time, dateOnly bool, err error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	t, err = models.NormalizeExportTime(s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: date %q", ErrInvalidFilter, s)
	}
	return t, false, nil
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ListRecordTypes returns each record type and unit with its count and date span.
func (r *Reader) ListRecordTypes(ctx context.Context) (*QueryResult, error) {
	return r.query(ctx, "list_record_types", TableRecords, 0,
		`SELECT record_type AS type, COUNT(*) AS count, unit,
			MIN(start_date) AS earliest_date, MAX(start_date) AS latest_date
		FROM records GROUP BY record_type, unit ORDER BY count DESC`)
}

// QueryRecords returns the newest records of one type.
func (r *Reader) QueryRecords(ctx context.Context, f RecordFilter) (*QueryResult, error) {
	if f.RecordType == "" {
		return nil, fmt.Errorf("%w: record type is required", ErrInvalidFilter)
	}
	w := &where{}
	w.add("record_type = ?", f.RecordType)
	if err := w.timeRange("start_date", f.StartDate, ""); err != nil {
		return nil, err
	}
	if err := w.timeRange("end_date", "", f.EndDate); err != nil {
		return nil, err
	}
	if f.SourceName != "" {
		w.add("source_name = ?", f.SourceName)
	}
	limit := clampLimit(f.Limit, DefaultRecordLimit, MaxRecordLimit)

	q := `SELECT record_hash, record_type, value, unit, source_name, start_date, end_date FROM records` +
		w.String() + fmt.Sprintf(" ORDER BY start_date DESC LIMIT %d", limit)
	return r.query(ctx, "query_records", TableRecords, 0, q, w.args...)
}

// RecordStatistics aggregates daily_record_stats over day, week, month or year.
// The average is weighted by the daily counts.
func (r *Reader) RecordStatistics(ctx context.Context, f StatsFilter) (*QueryResult, error) {
	if f.RecordType == "" {
		return nil, fmt.Errorf("%w: record type is required", ErrInvalidFilter)
	}
	expr, ok := periodExpr[f.Period]
	if !ok {
		return nil, fmt.Errorf("%w: period %q", ErrInvalidFilter, f.Period)
	}

	w := &where{}
	w.add("record_type = ?", f.RecordType)
	if err := w.dayRange("date", "CAST(? AS DATE)", f.StartDate, f.EndDate); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %[1]s AS period, SUM(count) AS count,
			SUM(sum_value) / SUM(count) AS avg_value,
			MIN(min_value) AS min_value, MAX(max_value) AS max_value,
			SUM(sum_value) AS sum_value
		FROM daily_record_stats%[2]s
		GROUP BY %[1]s ORDER BY period`, expr, w.String())
	return r.query(ctx, "record_statistics", TableDailyRecordStats, 0, q, w.args...)
}

// ListWorkouts returns the newest workouts.
func (r *Reader) ListWorkouts(ctx context.Context, f WorkoutFilter) (*QueryResult, error) {
	w := &where{}
	if f.ActivityType != "" {
		w.add("activity_type = ?", f.ActivityType)
	}
	if err := w.timeRange("start_date", f.StartDate, ""); err != nil {
		return nil, err
	}
	if err := w.timeRange("end_date", "", f.EndDate); err != nil {
		return nil, err
	}
	limit := clampLimit(f.Limit, DefaultWorkoutLimit, MaxWorkoutLimit)

	q := `SELECT workout_hash, activity_type, duration, duration_unit,
			total_distance, total_distance_unit, total_energy_burned, total_energy_unit,
			source_name, start_date, end_date
		FROM workouts` + w.String() + fmt.Sprintf(" ORDER BY start_date DESC LIMIT %d", limit)
	return r.query(ctx, "list_workouts", TableWorkouts, 0, q, w.args...)
}

// WorkoutDetails returns one workout with its events, statistics and route presence.
func (r *Reader) WorkoutDetails(ctx context.Context, hash string) (*WorkoutDetails, error) {
	workout, err := r.query(ctx, "workout_details", TableWorkouts, 1,
		`SELECT * EXCLUDE (import_id) FROM workouts WHERE workout_hash = ?`, hash)
	if err != nil {
		return nil, err
	}
	if workout.first() == nil {
		return nil, fmt.Errorf("workout %s: %w", hash, ErrNotFound)
	}

	events, err := r.query(ctx, "workout_details", TableWorkoutEvents, 0,
		`SELECT event_type, date, duration, duration_unit FROM workout_events
		WHERE workout_hash = ? ORDER BY date`, hash)
	if err != nil {
		return nil, err
	}
	stats, err := r.query(ctx, "workout_details", TableWorkoutStatistics, 0,
		`SELECT stat_type, start_date, end_date, average, minimum, maximum, sum, unit
		FROM workout_statistics WHERE workout_hash = ? ORDER BY stat_type`, hash)
	if err != nil {
		return nil, err
	}
	route, err := r.query(ctx, "workout_details", TableRoutePoints, 1,
		`SELECT COUNT(*) AS count FROM route_points WHERE workout_hash = ?`, hash)
	if err != nil {
		return nil, err
	}

	var points int64
	if row := route.first(); row != nil {
		points, _ = row["count"].(int64)
	}
	return &WorkoutDetails{
		Workout:         workout.first(),
		Events:          events.Rows,
		Statistics:      stats.Rows,
		HasRoute:        points > 0,
		RoutePointCount: points,
	}, nil
}

// ActivitySummaries returns the newest activity ring days.
func (r *Reader) ActivitySummaries(ctx context.Context, f DateRange) (*QueryResult, error) {
	w := &where{}
	if err := w.dayRange("date_components", "?", f.StartDate, f.EndDate); err != nil {
		return nil, err
	}
	limit := clampLimit(f.Limit, DefaultSummaryLimit, MaxSummaryLimit)

	q := `SELECT * EXCLUDE (import_id) FROM activity_summaries` + w.String() +
		fmt.Sprintf(" ORDER BY date_components DESC LIMIT %d", limit)
	return r.query(ctx, "activity_summaries", TableActivitySummaries, 0, q, w.args...)
}

// WorkoutRoute returns the GPS track of a workout ordered by time.
func (r *Reader) WorkoutRoute(ctx context.Context, hash string) (*QueryResult, error) {
	return r.query(ctx, "workout_route", TableRoutePoints, 0,
		`SELECT latitude, longitude, elevation, timestamp, speed, course
		FROM route_points WHERE workout_hash = ? ORDER BY timestamp`, hash)
}

// ListECGReadings returns ECG headers, newest first.
func (r *Reader) ListECGReadings(ctx context.Context, f DateRange) (*QueryResult, error) {
	w := &where{}
	if err := w.timeRange("recorded_date", f.StartDate, f.EndDate); err != nil {
		return nil, err
	}
	limit := clampLimit(f.Limit, DefaultECGLimit, MaxECGLimit)

	q := `SELECT ecg_hash, recorded_date, classification, device, sample_rate_hz, average_heart_rate
		FROM ecg_readings` + w.String() + fmt.Sprintf(" ORDER BY recorded_date DESC LIMIT %d", limit)
	return r.query(ctx, "list_ecg_readings", TableECGReadings, 0, q, w.args...)
}

// ECGData returns one reading and its voltages in sample order.
func (r *Reader) ECGData(ctx context.Context, hash string) (*ECGData, error) {
	reading, err := r.query(ctx, "ecg_data", TableECGReadings, 1,
		`SELECT * EXCLUDE (import_id) FROM ecg_readings WHERE ecg_hash = ?`, hash)
	if err != nil {
		return nil, err
	}
	if reading.first() == nil {
		return nil, fmt.Errorf("ecg %s: %w", hash, ErrNotFound)
	}

	samples, err := r.query(ctx, "ecg_data", TableECGSamples, 0,
		`SELECT voltage_uv FROM ecg_samples WHERE ecg_hash = ? ORDER BY sample_idx`, hash)
	if err != nil {
		return nil, err
	}
	voltages := make([]float64, 0, len(samples.Rows))
	for _, row := range samples.Rows {
		if v, ok := row["voltage_uv"].(float64); ok {
			voltages = append(voltages, v)
		}
	}
	return &ECGData{Reading: reading.first(), SampleCount: len(voltages), VoltagesUV: voltages}, nil
}

// ListDataSources returns every source that contributed records.
func (r *Reader) ListDataSources(ctx context.Context) (*QueryResult, error) {
	return r.query(ctx, "list_data_sources", TableRecords, 0,
		`SELECT source_name, COUNT(*) AS record_count,
			MIN(start_date) AS earliest_date, MAX(start_date) AS latest_date
		FROM records GROUP BY source_name ORDER BY record_count DESC`)
}

// ImportHistory returns ledger entries, newest first.
func (r *Reader) ImportHistory(ctx context.Context, limit int) (*QueryResult, error) {
	limit = clampLimit(limit, DefaultImportsLimit, MaxImportsLimit)
	return r.query(ctx, "import_history", TableImports, 0,
		fmt.Sprintf(`SELECT import_id, export_dir, started_at, finished_at, status, error,
			record_count, workout_count, duration_secs, table_counts, diagnostics
		FROM imports ORDER BY started_at DESC LIMIT %d`, limit))
}

// CustomQuery runs a caller-supplied SELECT or WITH statement. The result is
// capped at MaxRows and flagged as truncated when more rows exist.
func (r *Reader) CustomQuery(ctx context.Context, sqlText string) (*QueryResult, error) {
	stmt, err := ValidateReadOnlySQL(sqlText)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, "custom_query", "custom", r.cfg.MaxRows, stmt)
}
