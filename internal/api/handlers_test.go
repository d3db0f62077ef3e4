// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/models"
	"github.com/tomtom215/healthduck/internal/testinfra"
)

// testResponse mirrors models.APIResponse with the data left raw.
type testResponse struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

type testServer struct {
	store   *testinfra.SeededStore
	handler http.Handler
}

func newTestServer(t *testing.T, mw *ChiMiddlewareConfig) *testServer {
	t.Helper()
	store := testinfra.SeedStore(t)

	cfg := database.DefaultReaderConfig()
	cfg.MaxRows = 2
	reader := database.NewReader(store.DB, cfg)

	if mw == nil {
		mw = DefaultChiMiddlewareConfig()
		mw.RateLimitDisabled = true
	}
	return &testServer{
		store:   store,
		handler: NewRouter(NewHandler(reader), mw).SetupChi(),
	}
}

func (s *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp testResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, target, err, rec.Body.String())
		}
	}
	return rec, resp
}

func decodeRows(t *testing.T, raw json.RawMessage) []map[string]any {
	t.Helper()
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	return rows
}

func TestHandlersStatusCodes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"live", http.MethodGet, "/api/v1/health/live", "", http.StatusOK, ""},
		{"ready", http.MethodGet, "/api/v1/health/ready", "", http.StatusOK, ""},
		{"record types", http.MethodGet, "/api/v1/record-types", "", http.StatusOK, ""},
		{"records", http.MethodGet, "/api/v1/records?type=" + testinfra.HeartRateType, "", http.StatusOK, ""},
		{"records without type", http.MethodGet, "/api/v1/records", "", http.StatusBadRequest, CodeValidation},
		{"records bad date", http.MethodGet, "/api/v1/records?type=x&start_date=yesterday", "", http.StatusBadRequest, CodeValidation},
		{"records bad limit", http.MethodGet, "/api/v1/records?type=x&limit=ten", "", http.StatusBadRequest, CodeValidation},
		{"records negative limit", http.MethodGet, "/api/v1/records?type=x&limit=-1", "", http.StatusBadRequest, CodeValidation},
		{"statistics", http.MethodGet, "/api/v1/records/statistics?type=" + testinfra.HeartRateType + "&period=week", "", http.StatusOK, ""},
		{"statistics bad period", http.MethodGet, "/api/v1/records/statistics?type=x&period=decade", "", http.StatusBadRequest, CodeValidation},
		{"workouts", http.MethodGet, "/api/v1/workouts", "", http.StatusOK, ""},
		{"workout", http.MethodGet, "/api/v1/workouts/" + s.store.WorkoutHash, "", http.StatusOK, ""},
		{"workout unknown", http.MethodGet, "/api/v1/workouts/" + s.store.MissingHash, "", http.StatusNotFound, CodeNotFound},
		{"workout malformed hash", http.MethodGet, "/api/v1/workouts/not-a-hash", "", http.StatusBadRequest, CodeValidation},
		{"route", http.MethodGet, "/api/v1/workouts/" + s.store.WorkoutHash + "/route", "", http.StatusOK, ""},
		{"route unknown is empty", http.MethodGet, "/api/v1/workouts/" + s.store.MissingHash + "/route", "", http.StatusOK, ""},
		{"activity summaries", http.MethodGet, "/api/v1/activity-summaries?start_date=2024-01-01", "", http.StatusOK, ""},
		{"ecg list", http.MethodGet, "/api/v1/ecg", "", http.StatusOK, ""},
		{"ecg data", http.MethodGet, "/api/v1/ecg/" + s.store.ECGHash, "", http.StatusOK, ""},
		{"ecg unknown", http.MethodGet, "/api/v1/ecg/" + s.store.MissingHash, "", http.StatusNotFound, CodeNotFound},
		{"sources", http.MethodGet, "/api/v1/sources", "", http.StatusOK, ""},
		{"imports", http.MethodGet, "/api/v1/imports?limit=5", "", http.StatusOK, ""},
		{"query", http.MethodPost, "/api/v1/query", `{"sql":"SELECT COUNT(*) AS n FROM records"}`, http.StatusOK, ""},
		{"query write rejected", http.MethodPost, "/api/v1/query", `{"sql":"DELETE FROM records"}`, http.StatusBadRequest, CodeValidation},
		{"query empty", http.MethodPost, "/api/v1/query", `{"sql":""}`, http.StatusBadRequest, CodeValidation},
		{"query not json", http.MethodPost, "/api/v1/query", `SELECT 1`, http.StatusBadRequest, CodeBadRequest},
		{"query unknown table", http.MethodPost, "/api/v1/query", `{"sql":"SELECT * FROM nope"}`, http.StatusBadRequest, CodeBadRequest},
		{"unknown route", http.MethodGet, "/api/v1/nothing", "", http.StatusNotFound, CodeNotFound},
		{"wrong method", http.MethodDelete, "/api/v1/records", "", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := s.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr == "" {
				if resp.Error != nil {
					t.Errorf("unexpected error %+v", resp.Error)
				}
				return
			}
			if resp.Status != "error" || resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestRecordsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp := s.do(t, http.MethodGet,
		"/api/v1/records?type="+testinfra.HeartRateType+"&end_date=2024-01-01", "")
	rows := decodeRows(t, resp.Data)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (date-only end covers the day)", len(rows))
	}
	if resp.Metadata.RowCount == nil || *resp.Metadata.RowCount != 2 {
		t.Errorf("row_count = %v, want 2", resp.Metadata.RowCount)
	}
	if rows[0]["start_date"] != "2024-01-01 20:00:00" {
		t.Errorf("first start_date = %v, want newest first", rows[0]["start_date"])
	}

	_, resp = s.do(t, http.MethodGet,
		"/api/v1/records?type="+testinfra.HeartRateType+"&limit=1", "")
	if rows := decodeRows(t, resp.Data); len(rows) != 1 {
		t.Errorf("limited rows = %d, want 1", len(rows))
	}
}

func TestWorkoutDetailsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp := s.do(t, http.MethodGet, "/api/v1/workouts/"+s.store.WorkoutHash, "")
	var details database.WorkoutDetails
	if err := json.Unmarshal(resp.Data, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Workout["activity_type"] != testinfra.RunningType {
		t.Errorf("activity_type = %v", details.Workout["activity_type"])
	}
	if len(details.Events) != 1 || len(details.Statistics) != 1 {
		t.Errorf("events = %d, statistics = %d, want 1 and 1", len(details.Events), len(details.Statistics))
	}
	if !details.HasRoute || details.RoutePointCount != int64(s.store.RoutePoints) {
		t.Errorf("route = %v/%d, want true/%d", details.HasRoute, details.RoutePointCount, s.store.RoutePoints)
	}

	_, resp = s.do(t, http.MethodGet, "/api/v1/workouts/"+s.store.WorkoutHash+"/route", "")
	points := decodeRows(t, resp.Data)
	if len(points) != s.store.RoutePoints {
		t.Fatalf("points = %d, want %d", len(points), s.store.RoutePoints)
	}
	for i := 1; i < len(points); i++ {
		if points[i-1]["timestamp"].(string) > points[i]["timestamp"].(string) {
			t.Errorf("route not ordered by timestamp at %d", i)
		}
	}
}

func TestECGDataEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp := s.do(t, http.MethodGet, "/api/v1/ecg/"+s.store.ECGHash, "")
	var data database.ECGData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode ecg: %v", err)
	}
	if data.SampleCount != len(s.store.ECGVoltages) {
		t.Fatalf("sample_count = %d, want %d", data.SampleCount, len(s.store.ECGVoltages))
	}
	for i, v := range s.store.ECGVoltages {
		if data.VoltagesUV[i] != v {
			t.Errorf("voltage[%d] = %v, want %v", i, data.VoltagesUV[i], v)
		}
	}
	if data.Reading["classification"] != "Sinus Rhythm" {
		t.Errorf("classification = %v", data.Reading["classification"])
	}
}

func TestCustomQueryTruncation(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp := s.do(t, http.MethodPost, "/api/v1/query", `{"sql":"SELECT * FROM range(5)"}`)
	rows := decodeRows(t, resp.Data)
	if len(rows) != 2 {
		t.Errorf("rows = %d, want MaxRows 2", len(rows))
	}
	if !resp.Metadata.Truncated {
		t.Error("truncated = false, want true")
	}

	_, resp = s.do(t, http.MethodPost, "/api/v1/query", `{"sql":"-- count\nWITH r AS (SELECT 1 AS x) SELECT * FROM r"}`)
	if resp.Metadata.Truncated {
		t.Error("single row result flagged truncated")
	}
}

func TestImportHistoryEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp := s.do(t, http.MethodGet, "/api/v1/imports", "")
	rows := decodeRows(t, resp.Data)
	if len(rows) != 1 {
		t.Fatalf("runs = %d, want 1", len(rows))
	}
	if rows[0]["import_id"] != string(s.store.RunID) || rows[0]["status"] != models.RunStatusCompleted {
		t.Errorf("run = %v", rows[0])
	}
}

func TestReadyReportsBreaker(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp := s.do(t, http.MethodGet, "/api/v1/health/ready", "")
	var data map[string]any
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["breaker_state"] != "closed" || data["database_connected"] != true {
		t.Errorf("ready data = %v", data)
	}
}

func TestHealthReadyWithoutReader(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	NewHandler(nil).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
