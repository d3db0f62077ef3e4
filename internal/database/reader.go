// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/healthduck/internal/cache"
	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/metrics"
	"github.com/tomtom215/healthduck/internal/models"
)

// Row is one result row. NULL columns are omitted.
type Row map[string]any

// QueryResult holds rendered rows in column order.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// ReaderConfig configures the read-only query surface.
type ReaderConfig struct {
	// QueryTimeout bounds each query. Zero disables the bound.
	QueryTimeout time.Duration

	// MaxRows caps CustomQuery results.
	MaxRows int

	// BreakerName identifies the circuit breaker instance.
	BreakerName string

	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold uint32

	// OpenTimeout is the duration in open state before transitioning to half-open.
	OpenTimeout time.Duration

	// MaxRequests is the number of requests allowed in half-open state.
	MaxRequests uint32

	// CacheSize is the number of results memoized while the store is open
	// read-only. Zero disables the cache.
	CacheSize int

	// CacheTTL bounds how long a memoized result is served.
	CacheTTL time.Duration
}

// DefaultReaderConfig returns production defaults.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		QueryTimeout:     30 * time.Second,
		MaxRows:          10000,
		BreakerName:      "duckdb-reader",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		MaxRequests:      3,
	}
}

// Reader executes read-only queries behind a circuit breaker. Caller errors
// (bad SQL, unknown columns, cancellation) never trip the breaker; only
// failures of the store itself do.
type Reader struct {
	db      *DB
	cfg     ReaderConfig
	breaker *gobreaker.CircuitBreaker[*QueryResult]
	results *cache.LRU[*QueryResult]
}

// NewReader wraps db for queries.
func NewReader(db *DB, cfg ReaderConfig) *Reader {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultReaderConfig().MaxRows
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = DefaultReaderConfig().BreakerName
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultReaderConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsCallerError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Query circuit breaker state changed")
		},
	}

	r := &Reader{
		db:      db,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[*QueryResult](settings),
	}
	// A writable store can change under a cached result.
	if cfg.CacheSize > 0 && db.ReadOnly() {
		r.results = cache.NewLRU[*QueryResult](cfg.CacheSize, cfg.CacheTTL)
	}
	return r
}

// DB returns the underlying database handle.
func (r *Reader) DB() *DB {
	return r.db
}

// MaxRows returns the CustomQuery row cap.
func (r *Reader) MaxRows() int {
	return r.cfg.MaxRows
}

// BreakerState returns the current breaker state name.
func (r *Reader) BreakerState() string {
	return r.breaker.State().String()
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// IsCallerError reports errors caused by the query rather than the store.
// The API maps them to 400 instead of 500.
func IsCallerError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueryNotReadOnly) {
		return true
	}
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		switch duckErr.Type {
		case duckdb.ErrorTypeParser, duckdb.ErrorTypeBinder, duckdb.ErrorTypeCatalog,
			duckdb.ErrorTypeConversion, duckdb.ErrorTypeInvalidInput, duckdb.ErrorTypeMismatchType:
			return true
		}
	}
	return false
}

// query runs sqlText with bound args and renders at most maxRows rows
// (zero means unlimited).
func (r *Reader) query(ctx context.Context, operation, table string, maxRows int, sqlText string, args ...any) (*QueryResult, error) {
	var key string
	if r.results != nil {
		key = cache.GenerateKey(operation, []any{table, maxRows, sqlText, args})
		if res, ok := r.results.Get(key); ok {
			metrics.RecordQueryCache(operation, true)
			return res, nil
		}
		metrics.RecordQueryCache(operation, false)
	}

	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := r.breaker.Execute(func() (*QueryResult, error) {
		rows, err := r.db.conn.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return nil, err
		}
		defer closeQuietly(rows)
		return renderRows(rows, maxRows)
	})
	metrics.RecordDBQuery(operation, table, time.Since(start), err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrQueryUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", operation, err)
	}
	if r.results != nil {
		r.results.Add(key, result)
	}
	return result, nil
}

// CacheStats reports query cache hits, misses and size. All are zero when
// the cache is disabled.
func (r *Reader) CacheStats() (hits, misses int64, size int) {
	if r.results == nil {
		return 0, 0, 0
	}
	return r.results.Stats()
}

func renderRows(rows *sql.Rows, maxRows int) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	result := &QueryResult{Columns: cols, Rows: []Row{}}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if v := renderValue(values[i], types[i].DatabaseTypeName()); v != nil {
				row[col] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return result, nil
}

func renderValue(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		if strings.EqualFold(dbType, "DATE") {
			return val.UTC().Format("2006-01-02")
		}
		return models.FormatTimestamp(val)
	case *big.Int:
		return val.String()
	case []byte:
		return string(val)
	default:
		return val
	}
}

// first returns the first row of a result, or nil.
func (q *QueryResult) first() Row {
	if q == nil || len(q.Rows) == 0 {
		return nil
	}
	return q.Rows[0]
}
