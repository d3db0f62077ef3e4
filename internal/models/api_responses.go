// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import (
	"time"
)

// APIResponse is the envelope returned by every HTTP endpoint.
//
// Status is "success" with Data populated, or "error" with Error populated.
//
//	{
//	  "status": "success",
//	  "data": [{"record_type": "HKQuantityTypeIdentifierHeartRate", "count": 120}],
//	  "metadata": {"timestamp": "2026-01-02T12:00:00Z", "query_time_ms": 4, "row_count": 1}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries timing information for a response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	RowCount    *int      `json:"row_count,omitempty"`
	Truncated   bool      `json:"truncated,omitempty"`
}

// APIError is the error payload of an APIResponse.
//
// Codes in use:
//   - VALIDATION_ERROR: invalid query parameters or body
//   - NOT_FOUND: unknown workout or ECG hash
//   - DATABASE_ERROR: query execution failure
//   - SERVICE_UNAVAILABLE: query circuit breaker open
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
