// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

// Package config loads healthduck configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Import     ImportConfig     `koanf:"import"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	Threads                int    `koanf:"threads"`    // 0 means runtime.NumCPU()
	MaxMemory              string `koanf:"max_memory"` // DuckDB memory_limit, e.g. "2GB"
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// Unresolved route policies.
const (
	UnresolvedStore = "store"
	UnresolvedDrop  = "drop"
	UnresolvedFail  = "fail"
)

// ImportConfig holds settings for the export import pipeline.
type ImportConfig struct {
	// ExportDir is the unpacked Apple Health export (contains export.xml).
	ExportDir string `koanf:"export_dir"`

	// BatchSize is the number of rows buffered per table before a flush.
	BatchSize int `koanf:"batch_size"`

	// QueueDepth bounds the number of ready batches waiting for the writer.
	QueueDepth int `koanf:"queue_depth"`

	// Workers is the number of parallel ECG file parsers.
	Workers int `koanf:"workers"`

	// UnresolvedRoutes selects what happens to a GPX file whose reference
	// matches no workout: store, drop or fail.
	UnresolvedRoutes string `koanf:"unresolved_routes"`

	// ProgressPath is a BadgerDB directory for persistent progress.
	// Empty keeps progress in memory only.
	ProgressPath string `koanf:"progress_path"`

	// SkipDedup leaves hash duplicates in place. Only useful for diagnosing
	// the raw append log; the daily stats table is still rebuilt.
	SkipDedup bool `koanf:"skip_dedup"`
}

// ServerConfig holds settings for the read-only query API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	QueryTimeout      time.Duration `koanf:"query_timeout"`
	MaxRows           int           `koanf:"max_rows"`
	QueryCacheSize    int           `koanf:"query_cache_size"` // 0 disables the result cache
	QueryCacheTTL     time.Duration `koanf:"query_cache_ttl"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig holds suture tree settings for the serve command.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration using koanf layering.
// See LoadWithKoanf for the underlying implementation.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
