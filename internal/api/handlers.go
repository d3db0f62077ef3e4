// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/logging"
)

// Handler serves the query endpoints from a read-only reader.
type Handler struct {
	reader    *database.Reader
	startTime time.Time
}

// NewHandler creates a handler backed by reader.
func NewHandler(reader *database.Reader) *Handler {
	return &Handler{
		reader:    reader,
		startTime: time.Now(),
	}
}

// RecordsRequest holds the /records query parameters.
type RecordsRequest struct {
	Type      string `validate:"required,max=256"`
	StartDate string `validate:"omitempty,isodate"`
	EndDate   string `validate:"omitempty,isodate"`
	Source    string `validate:"max=256"`
	Limit     int    `validate:"gte=0"`
}

// StatisticsRequest holds the /records/statistics query parameters.
type StatisticsRequest struct {
	Type      string `validate:"required,max=256"`
	StartDate string `validate:"omitempty,isodate"`
	EndDate   string `validate:"omitempty,isodate"`
	Period    string `validate:"period"`
}

// WorkoutsRequest holds the /workouts query parameters.
type WorkoutsRequest struct {
	ActivityType string `validate:"max=256"`
	StartDate    string `validate:"omitempty,isodate"`
	EndDate      string `validate:"omitempty,isodate"`
	Limit        int    `validate:"gte=0"`
}

// DateRangeRequest holds start/end/limit parameters.
type DateRangeRequest struct {
	StartDate string `validate:"omitempty,isodate"`
	EndDate   string `validate:"omitempty,isodate"`
	Limit     int    `validate:"gte=0"`
}

// HashRequest holds a {hash} path parameter.
type HashRequest struct {
	Hash string `validate:"content_hash"`
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	SQL string `json:"sql" validate:"required,max=65536,readonly_sql"`
}

// decodeLimit reads the limit parameter, writing a 400 on failure.
func decodeLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, apiErr := getIntParam(r, "limit", 0)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return 0, false
	}
	return limit, true
}

// validated runs validateRequest and writes a 400 on failure.
func validated(w http.ResponseWriter, req any) bool {
	if apiErr := validateRequest(req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return false
	}
	return true
}

// RecordTypes handles GET /api/v1/record-types.
func (h *Handler) RecordTypes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := h.reader.ListRecordTypes(r.Context())
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// Records handles GET /api/v1/records.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := decodeLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := RecordsRequest{
		Type:      q.Get("type"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Source:    q.Get("source"),
		Limit:     limit,
	}
	if !validated(w, &req) {
		return
	}

	result, err := h.reader.QueryRecords(r.Context(), database.RecordFilter{
		RecordType: req.Type,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		SourceName: req.Source,
		Limit:      req.Limit,
	})
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// RecordStatistics handles GET /api/v1/records/statistics.
func (h *Handler) RecordStatistics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	req := StatisticsRequest{
		Type:      q.Get("type"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Period:    q.Get("period"),
	}
	if !validated(w, &req) {
		return
	}

	result, err := h.reader.RecordStatistics(r.Context(), database.StatsFilter{
		RecordType: req.Type,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Period:     req.Period,
	})
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// Workouts handles GET /api/v1/workouts.
func (h *Handler) Workouts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := decodeLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := WorkoutsRequest{
		ActivityType: q.Get("activity_type"),
		StartDate:    q.Get("start_date"),
		EndDate:      q.Get("end_date"),
		Limit:        limit,
	}
	if !validated(w, &req) {
		return
	}

	result, err := h.reader.ListWorkouts(r.Context(), database.WorkoutFilter{
		ActivityType: req.ActivityType,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Limit:        req.Limit,
	})
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// WorkoutDetails handles GET /api/v1/workouts/{hash}.
func (h *Handler) WorkoutDetails(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := HashRequest{Hash: chi.URLParam(r, "hash")}
	if !validated(w, &req) {
		return
	}

	details, err := h.reader.WorkoutDetails(r.Context(), req.Hash)
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondSuccess(w, details, start)
}

// WorkoutRoute handles GET /api/v1/workouts/{hash}/route. A workout without
// a route returns an empty list.
func (h *Handler) WorkoutRoute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := HashRequest{Hash: chi.URLParam(r, "hash")}
	if !validated(w, &req) {
		return
	}

	result, err := h.reader.WorkoutRoute(r.Context(), req.Hash)
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// ActivitySummaries handles GET /api/v1/activity-summaries.
func (h *Handler) ActivitySummaries(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := decodeDateRange(w, r)
	if !ok {
		return
	}

	result, err := h.reader.ActivitySummaries(r.Context(), database.DateRange{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Limit:     req.Limit,
	})
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// ECGReadings handles GET /api/v1/ecg.
func (h *Handler) ECGReadings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := decodeDateRange(w, r)
	if !ok {
		return
	}

	result, err := h.reader.ListECGReadings(r.Context(), database.DateRange{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Limit:     req.Limit,
	})
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// ECGData handles GET /api/v1/ecg/{hash}.
func (h *Handler) ECGData(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := HashRequest{Hash: chi.URLParam(r, "hash")}
	if !validated(w, &req) {
		return
	}

	data, err := h.reader.ECGData(r.Context(), req.Hash)
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondSuccess(w, data, start)
}

// DataSources handles GET /api/v1/sources.
func (h *Handler) DataSources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := h.reader.ListDataSources(r.Context())
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// ImportHistory handles GET /api/v1/imports.
func (h *Handler) ImportHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := decodeLimit(w, r)
	if !ok {
		return
	}
	if limit < 0 {
		respondError(w, http.StatusBadRequest, CodeValidation, "limit must be greater than or equal to 0", nil)
		return
	}

	result, err := h.reader.ImportHistory(r.Context(), limit)
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	respondResult(w, result, start)
}

// CustomQuery handles POST /api/v1/query.
func (h *Handler) CustomQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "Request body must be JSON: {\"sql\": \"SELECT ...\"}", nil)
		return
	}
	if !validated(w, &req) {
		return
	}

	result, err := h.reader.CustomQuery(r.Context(), req.SQL)
	if err != nil {
		respondReaderError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int("rows", len(result.Rows)).
		Bool("truncated", result.Truncated).
		Dur("duration", time.Since(start)).
		Msg("Custom query executed")
	respondResult(w, result, start)
}

func decodeDateRange(w http.ResponseWriter, r *http.Request) (DateRangeRequest, bool) {
	limit, ok := decodeLimit(w, r)
	if !ok {
		return DateRangeRequest{}, false
	}
	q := r.URL.Query()
	req := DateRangeRequest{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     limit,
	}
	if !validated(w, &req) {
		return DateRangeRequest{}, false
	}
	return req, true
}
