// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/metrics"
	"github.com/tomtom215/healthduck/internal/validation"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "list_record_types",
		Description: "List all available health record types with counts and date ranges. " +
			"Use this first to discover what data is available. Returns: type, count, unit, earliest_date, latest_date.",
	}, s.handleListRecordTypes)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "query_records",
		Description: "Query individual health records, newest first. Returns: record_hash, record_type, value, unit, " +
			"source_name, start_date, end_date. Record types use Apple's HK identifiers " +
			"(e.g. HKQuantityTypeIdentifierHeartRate).",
	}, s.handleQueryRecords)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "get_record_statistics",
		Description: "Get aggregated statistics for a record type per day, week, month or year. Returns: period, count, " +
			"avg_value, min_value, max_value, sum_value. Prefer this over query_records for trends.",
	}, s.handleRecordStatistics)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "list_workouts",
		Description: "List workouts, newest first. Returns: workout_hash, activity_type, duration, total_distance, " +
			"total_energy_burned with units, source_name, start_date, end_date. Use workout_hash with " +
			"get_workout_details or get_workout_route.",
	}, s.handleListWorkouts)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "get_workout_details",
		Description: "Get a workout by workout_hash with its events (laps, pauses), per-metric statistics " +
			"and whether a GPS route is linked.",
	}, s.handleWorkoutDetails)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "get_activity_summaries",
		Description: "Get Apple Watch activity ring data per day, newest first. Energy is in kcal, " +
			"exercise time in minutes and stand time in hours.",
	}, s.handleActivitySummaries)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "get_workout_route",
		Description: "Get the GPS route of a workout ordered by time. Returns: latitude, longitude, " +
			"elevation (m), timestamp, speed (m/s), course (degrees).",
	}, s.handleWorkoutRoute)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "list_ecg_readings",
		Description: "List ECG recordings, newest first. Returns: ecg_hash, recorded_date, classification, " +
			"device, sample_rate_hz, average_heart_rate. Use ecg_hash with get_ecg_data.",
	}, s.handleListECGReadings)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_ecg_data",
		Description: "Get an ECG waveform by ecg_hash. Returns: reading, sample_count, voltages_uv (microvolts in sample order).",
	}, s.handleECGData)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "run_custom_query",
		Description: "Run a read-only DuckDB SQL query. Must be a single SELECT or WITH statement. Tables: records, " +
			"record_metadata, workouts, workout_events, workout_statistics, activity_summaries, ecg_readings, " +
			"ecg_samples, route_points, daily_record_stats, imports. Large results are truncated.",
	}, s.handleCustomQuery)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_data_sources",
		Description: "List the devices and apps that contributed records. Returns: source_name, record_count, earliest_date, latest_date.",
	}, s.handleListDataSources)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_import_history",
		Description: "List import runs, newest first, with status, row counts and per-table load and dedup counts.",
	}, s.handleImportHistory)
}

// Tool input types

type emptyInput struct{}

type queryRecordsInput struct {
	RecordType string `json:"record_type" jsonschema:"The health record type, e.g. HKQuantityTypeIdentifierHeartRate" validate:"required,max=256"`
	StartDate  string `json:"start_date,omitempty" jsonschema:"Start date filter (YYYY-MM-DD or timestamp)" validate:"omitempty,isodate"`
	EndDate    string `json:"end_date,omitempty" jsonschema:"End date filter; a plain date covers the whole day" validate:"omitempty,isodate"`
	SourceName string `json:"source_name,omitempty" jsonschema:"Filter by source name" validate:"max=256"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 100, max 1000)" validate:"gte=0"`
}

type recordStatisticsInput struct {
	RecordType string `json:"record_type" jsonschema:"The health record type, e.g. HKQuantityTypeIdentifierHeartRate" validate:"required,max=256"`
	StartDate  string `json:"start_date,omitempty" jsonschema:"Start date filter (YYYY-MM-DD)" validate:"omitempty,isodate"`
	EndDate    string `json:"end_date,omitempty" jsonschema:"End date filter (YYYY-MM-DD), inclusive" validate:"omitempty,isodate"`
	Period     string `json:"period,omitempty" jsonschema:"Aggregation period: day, week, month or year (default day)" validate:"period"`
}

type listWorkoutsInput struct {
	ActivityType string `json:"activity_type,omitempty" jsonschema:"Filter by activity type, e.g. HKWorkoutActivityTypeRunning" validate:"max=256"`
	StartDate    string `json:"start_date,omitempty" jsonschema:"Start date filter (YYYY-MM-DD or timestamp)" validate:"omitempty,isodate"`
	EndDate      string `json:"end_date,omitempty" jsonschema:"End date filter; a plain date covers the whole day" validate:"omitempty,isodate"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 50, max 500)" validate:"gte=0"`
}

type workoutHashInput struct {
	WorkoutHash string `json:"workout_hash" jsonschema:"The workout hash from list_workouts" validate:"content_hash"`
}

type dateRangeInput struct {
	StartDate string `json:"start_date,omitempty" jsonschema:"Start date filter (YYYY-MM-DD or timestamp)" validate:"omitempty,isodate"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"End date filter; a plain date covers the whole day" validate:"omitempty,isodate"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of results" validate:"gte=0"`
}

type ecgHashInput struct {
	ECGHash string `json:"ecg_hash" jsonschema:"The ECG hash from list_ecg_readings" validate:"content_hash"`
}

type customQueryInput struct {
	Query string `json:"query" jsonschema:"A read-only SQL query starting with SELECT or WITH" validate:"required,max=65536,readonly_sql"`
}

type importHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs (default 50)" validate:"gte=0"`
}

// validate checks an input struct with the shared validator.
func validate(input any) error {
	if verr := validation.ValidateStruct(input); verr != nil {
		return verr
	}
	return nil
}

// observe records a tool call in the API metrics and the log.
func observe(ctx context.Context, tool string, start time.Time, err error) {
	status := 200
	if err != nil {
		status = 500
		logging.Ctx(ctx).Warn().Str("tool", tool).Err(err).Msg("MCP tool failed")
	}
	metrics.RecordAPIRequest("MCP", tool, status, time.Since(start))
}

// Tool handlers

func (s *Server) handleListRecordTypes(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "list_record_types", start, err) }(time.Now())
	result, err := s.reader.ListRecordTypes(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleQueryRecords(ctx context.Context, _ *mcp.CallToolRequest, in queryRecordsInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "query_records", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.QueryRecords(ctx, database.RecordFilter{
		RecordType: in.RecordType,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		SourceName: in.SourceName,
		Limit:      in.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleRecordStatistics(ctx context.Context, _ *mcp.CallToolRequest, in recordStatisticsInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "get_record_statistics", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.RecordStatistics(ctx, database.StatsFilter{
		RecordType: in.RecordType,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		Period:     in.Period,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleListWorkouts(ctx context.Context, _ *mcp.CallToolRequest, in listWorkoutsInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "list_workouts", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.ListWorkouts(ctx, database.WorkoutFilter{
		ActivityType: in.ActivityType,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		Limit:        in.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleWorkoutDetails(ctx context.Context, _ *mcp.CallToolRequest, in workoutHashInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "get_workout_details", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	details, err := s.reader.WorkoutDetails(ctx, in.WorkoutHash)
	if err != nil {
		return nil, nil, err
	}
	return nil, details, nil
}

func (s *Server) handleActivitySummaries(ctx context.Context, _ *mcp.CallToolRequest, in dateRangeInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "get_activity_summaries", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.ActivitySummaries(ctx, database.DateRange{
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Limit:     in.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleWorkoutRoute(ctx context.Context, _ *mcp.CallToolRequest, in workoutHashInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "get_workout_route", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.WorkoutRoute(ctx, in.WorkoutHash)
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleListECGReadings(ctx context.Context, _ *mcp.CallToolRequest, in dateRangeInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "list_ecg_readings", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.ListECGReadings(ctx, database.DateRange{
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Limit:     in.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleECGData(ctx context.Context, _ *mcp.CallToolRequest, in ecgHashInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "get_ecg_data", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	data, err := s.reader.ECGData(ctx, in.ECGHash)
	if err != nil {
		return nil, nil, err
	}
	return nil, data, nil
}

func (s *Server) handleCustomQuery(ctx context.Context, _ *mcp.CallToolRequest, in customQueryInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "run_custom_query", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.CustomQuery(ctx, in.Query)
	if err != nil {
		return nil, nil, err
	}
	if result.Truncated {
		logging.Ctx(ctx).Info().
			Int("max_rows", s.reader.MaxRows()).
			Msg("Custom query result truncated")
	}
	return nil, result, nil
}

func (s *Server) handleListDataSources(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "list_data_sources", start, err) }(time.Now())
	result, err := s.reader.ListDataSources(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, result, nil
}

func (s *Server) handleImportHistory(ctx context.Context, _ *mcp.CallToolRequest, in importHistoryInput) (res *mcp.CallToolResult, out any, err error) {
	defer func(start time.Time) { observe(ctx, "get_import_history", start, err) }(time.Now())
	if err := validate(&in); err != nil {
		return nil, nil, err
	}
	result, err := s.reader.ImportHistory(ctx, in.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("import history: %w", err)
	}
	return nil, result, nil
}
