// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/mcp"
	"github.com/tomtom215/healthduck/internal/supervisor"
	"github.com/tomtom215/healthduck/internal/supervisor/services"
)

// MCP transports.
const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

var mcpFlags struct {
	transport string
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can query the
imported health data. The database is opened read-only.

The default stdio transport talks over stdin/stdout and exits when the client
disconnects. The http transport serves streamable HTTP on the configured
server host and port.

CLIENT CONFIGURATION:

  {
    "mcpServers": {
      "healthduck": {
        "command": "healthduck",
        "args": ["mcp", "--db", "/path/to/health.duckdb"]
      }
    }
  }

AVAILABLE TOOLS:

  list_record_types       Record types with counts and date ranges
  query_records           Records of one type, filtered by date and source
  get_record_statistics   Aggregates per day, week, month or year
  list_workouts           Workouts filtered by activity and date
  get_workout_details     One workout with its events and statistics
  get_activity_summaries  Daily ring totals
  get_workout_route       GPS points of one workout
  list_ecg_readings       ECG readings in a date range
  get_ecg_data            Voltage samples of one ECG
  run_custom_query        Read-only SQL (SELECT or WITH)
  list_data_sources       Devices and apps that contributed records
  get_import_history      Past import runs

AVAILABLE RESOURCES:

  healthduck://summary    Row counts and the most recent import`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpFlags.transport, "transport", transportStdio, "transport (stdio, http)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if mcpFlags.transport != transportStdio && mcpFlags.transport != transportHTTP {
		return fmt.Errorf("unknown transport %q (want %s or %s)", mcpFlags.transport, transportStdio, transportHTTP)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	db, reader, err := openReader(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	server, err := mcp.NewServer(reader, version)
	if err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	switch mcpFlags.transport {
	case transportHTTP:
		httpServer := newHTTPServer(&cfg.Server, server.HTTPHandler())
		// Streamable sessions hold the response open.
		httpServer.WriteTimeout = 0
		tree.AddAPIService(services.NewHTTPServerService("mcp-http", httpServer, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", httpServer.Addr).Msg("MCP server listening")
	default:
		tree.AddAPIService(services.NewMCPStdioService(server))
	}

	return tree.Serve(ctx)
}
