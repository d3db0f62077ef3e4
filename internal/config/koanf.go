// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"healthduck.yaml",
	"healthduck.yml",
	"config.yaml",
	"/etc/healthduck/config.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultBatchSize is the per-table flush threshold for the bulk loader.
const DefaultBatchSize = 100_000

// defaultConfig returns a Config struct with all default values.
// These are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "./health.duckdb",
			Threads:                4,
			MaxMemory:              "2GB",
			PreserveInsertionOrder: true, // dedup relies on append order
		},
		Import: ImportConfig{
			ExportDir:        ".",
			BatchSize:        DefaultBatchSize,
			QueueDepth:       4,
			Workers:          4,
			UnresolvedRoutes: UnresolvedStore,
			ProgressPath:     "",
			SkipDedup:        false,
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			QueryTimeout:      30 * time.Second,
			MaxRows:           10_000,
			QueryCacheSize:    1024,
			QueryCacheTTL:     5 * time.Minute,
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration from three layers (highest priority last):
//
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// DUCKDB_PATH -> database.path, IMPORT_BATCH_SIZE -> import.batch_size
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		var trimmed []string
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if trimmed == nil {
			trimmed = []string{}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	"duckdb_path":                     "database.path",
	"duckdb_threads":                  "database.threads",
	"duckdb_max_memory":               "database.max_memory",
	"duckdb_preserve_insertion_order": "database.preserve_insertion_order",
	"export_dir":                      "import.export_dir",
	"import_batch_size":               "import.batch_size",
	"import_queue_depth":              "import.queue_depth",
	"import_workers":                  "import.workers",
	"import_unresolved_routes":        "import.unresolved_routes",
	"import_progress_path":            "import.progress_path",
	"import_skip_dedup":               "import.skip_dedup",
	"http_host":                       "server.host",
	"http_port":                       "server.port",
	"http_read_timeout":               "server.read_timeout",
	"http_write_timeout":              "server.write_timeout",
	"query_timeout":                   "server.query_timeout",
	"query_max_rows":                  "server.max_rows",
	"query_cache_size":                "server.query_cache_size",
	"query_cache_ttl":                 "server.query_cache_ttl",
	"rate_limit_requests":             "server.rate_limit_requests",
	"rate_limit_window":               "server.rate_limit_window",
	"cors_origins":                    "server.cors_origins",
	"log_level":                       "logging.level",
	"log_format":                      "logging.format",
	"log_caller":                      "logging.caller",
	"supervisor_failure_threshold":    "supervisor.failure_threshold",
	"supervisor_failure_decay":        "supervisor.failure_decay",
	"supervisor_failure_backoff":      "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":     "supervisor.shutdown_timeout",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" so the env provider skips them.
//
// Examples:
//   - DUCKDB_PATH -> database.path
//   - IMPORT_UNRESOLVED_ROUTES -> import.unresolved_routes
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
