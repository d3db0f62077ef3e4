// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

// Package main is the entry point for the healthduck command.
//
// HealthDuck loads an unpacked Apple Health export (export.xml, the
// electrocardiograms/ CSV files and the workout-routes/ GPX files) into a
// deduplicated DuckDB database and serves read-only queries over it.
//
// # Commands
//
//	healthduck import --export-dir ./apple_health_export
//	healthduck serve --port 8080
//	healthduck mcp --transport stdio
//	healthduck version
//
// # Configuration
//
// Settings are layered (highest priority wins):
//   - command line flags
//   - environment variables (DUCKDB_PATH, EXPORT_DIR, HTTP_PORT, LOG_LEVEL, ...)
//   - config file (CONFIG_PATH, healthduck.yaml, config.yaml)
//   - built-in defaults
//
// Logs go to stderr so the MCP stdio transport keeps stdout to itself.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. An interrupted import is
// recorded in the imports ledger with status "canceled".
package main

import (
	"fmt"
	"os"
)

// Set with -ldflags "-X main.version=..." at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
