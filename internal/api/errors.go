// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/healthduck/internal/database"
)

// API error codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeDatabase           = "DATABASE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeBadRequest         = "BAD_REQUEST"
)

// ErrReaderUnavailable is returned by the readiness probe when no reader is attached.
var ErrReaderUnavailable = errors.New("query reader not configured")

// classifyError maps a reader error to an HTTP status, error code and a
// message safe to return to the client.
func classifyError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, database.ErrInvalidFilter), errors.Is(err, database.ErrQueryNotReadOnly):
		return http.StatusBadRequest, CodeValidation, err.Error()
	case errors.Is(err, database.ErrQueryUnavailable):
		return http.StatusServiceUnavailable, CodeServiceUnavailable, "Query service temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeDatabase, "Query timed out"
	case database.IsCallerError(err):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, CodeDatabase, "Query failed"
	}
}
