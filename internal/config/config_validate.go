// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package config

import (
	"errors"
	"fmt"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateImport(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSupervisor(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return errors.New("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be non-negative, got %d", c.Database.Threads)
	}
	if c.Database.MaxMemory == "" {
		return errors.New("DUCKDB_MAX_MEMORY is required")
	}
	return nil
}

// validateImport validates import pipeline configuration
func (c *Config) validateImport() error {
	if err := c.validateImportBatchSize(); err != nil {
		return err
	}
	if c.Import.QueueDepth <= 0 {
		return fmt.Errorf("IMPORT_QUEUE_DEPTH must be positive, got %d", c.Import.QueueDepth)
	}
	if c.Import.Workers <= 0 || c.Import.Workers > 64 {
		return fmt.Errorf("IMPORT_WORKERS must be between 1 and 64, got %d", c.Import.Workers)
	}
	return c.validateUnresolvedRoutes()
}

func (c *Config) validateImportBatchSize() error {
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.Import.BatchSize)
	}
	if c.Import.BatchSize > 1_000_000 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be at most 1000000, got %d", c.Import.BatchSize)
	}
	return nil
}

// validUnresolvedPolicies defines the allowed unresolved route policies
var validUnresolvedPolicies = map[string]bool{
	UnresolvedStore: true,
	UnresolvedDrop:  true,
	UnresolvedFail:  true,
}

func (c *Config) validateUnresolvedRoutes() error {
	if !validUnresolvedPolicies[c.Import.UnresolvedRoutes] {
		return fmt.Errorf("IMPORT_UNRESOLVED_ROUTES must be one of: store, drop, fail (got %q)", c.Import.UnresolvedRoutes)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxRows <= 0 {
		return fmt.Errorf("QUERY_MAX_ROWS must be positive, got %d", c.Server.MaxRows)
	}
	if c.Server.QueryTimeout <= 0 {
		return errors.New("QUERY_TIMEOUT must be positive")
	}
	if c.Server.QueryCacheSize < 0 {
		return fmt.Errorf("QUERY_CACHE_SIZE must be non-negative, got %d", c.Server.QueryCacheSize)
	}
	return c.validateRateLimits()
}

func (c *Config) validateRateLimits() error {
	if c.Server.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.Server.RateLimitRequests)
	}
	if c.Server.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.FailureThreshold < 0 || c.Supervisor.FailureDecay < 0 {
		return errors.New("supervisor failure threshold and decay must be non-negative")
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return errors.New("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return errors.New("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
