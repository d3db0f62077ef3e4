// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/healthduck/internal/config"
	"github.com/tomtom215/healthduck/internal/logging"
)

// cfg is loaded once per invocation in PersistentPreRunE.
var cfg *config.Config

var rootFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "healthduck",
	Short: "Apple Health export importer and query store",
	Long: `HealthDuck imports an unpacked Apple Health export into DuckDB and
serves read-only queries over the result.

QUICK START:

  $ healthduck import --export-dir ./apple_health_export
  $ healthduck serve                        # REST API on 127.0.0.1:8080
  $ healthduck mcp                          # MCP server over stdio

Re-importing the same export is safe: rows are identified by a content hash
and duplicates are removed after every run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded

		logging.Init(logging.Config{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			Caller:    cfg.Logging.Caller,
			Timestamp: true,
			Output:    os.Stderr,
		})
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "config file path (overrides "+config.ConfigPathEnvVar+")")
	pf.StringVar(&rootFlags.dbPath, "db", "", "DuckDB database file")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "log format (json, console)")
}

// loadConfig layers the persistent flags over config.Load and re-validates.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if rootFlags.configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, rootFlags.configPath); err != nil {
			return nil, fmt.Errorf("failed to set config path: %w", err)
		}
	}
	c, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		c.Database.Path = rootFlags.dbPath
	}
	if flags.Changed("log-level") {
		c.Logging.Level = rootFlags.logLevel
	}
	if flags.Changed("log-format") {
		c.Logging.Format = rootFlags.logFormat
	}
	return c, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
