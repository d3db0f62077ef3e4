// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"database/sql"
	"errors"
	"io"

	"github.com/tomtom215/healthduck/internal/logging"
)

var (
	// ErrReadOnly is returned by write operations on a read-only handle.
	ErrReadOnly = errors.New("database opened read-only")

	// ErrNotFound is returned when a workout, ECG reading or run does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownTable is returned when a bulk append names a table outside the schema.
	ErrUnknownTable = errors.New("unknown table")

	// ErrQueryNotReadOnly is returned by CustomQuery for anything but SELECT or WITH.
	ErrQueryNotReadOnly = errors.New("only SELECT or WITH queries are allowed")

	// ErrQueryUnavailable is returned while the query circuit breaker is open.
	ErrQueryUnavailable = errors.New("query service temporarily unavailable")
)

// closeWithLog closes a resource and logs any error
// Use this for cleanup operations where errors should be acknowledged but not fail the operation
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and explicitly ignores any error
// Use this for cleanup operations in error paths where Close() errors are not actionable
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // Explicitly ignore error - cleanup is best-effort
	}
}

// rollbackQuietly rolls back a transaction whose error path already returns a cause.
func rollbackQuietly(tx *sql.Tx) {
	if tx != nil {
		_ = tx.Rollback()
	}
}
