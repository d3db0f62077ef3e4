// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/tomtom215/healthduck/internal/api"
	"github.com/tomtom215/healthduck/internal/config"
	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/mcp"
	"github.com/tomtom215/healthduck/internal/supervisor"
	"github.com/tomtom215/healthduck/internal/supervisor/services"
)

// mcpHTTPPath is where serve --mcp mounts the streamable MCP endpoint.
const mcpHTTPPath = "/mcp"

var serveFlags struct {
	host    string
	port    int
	maxRows int
	withMCP bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only query API",
	Long: `Open the database read-only and serve the REST API under /api/v1 with
Prometheus metrics on /metrics.

With --mcp the same listener also serves the MCP tools over streamable HTTP
at /mcp.

EXAMPLES:

  $ healthduck serve
  $ healthduck serve --host 0.0.0.0 --port 9000 --mcp
  $ curl 'localhost:8080/api/v1/records?type=HKQuantityTypeIdentifierHeartRate&limit=5'`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.host, "host", "", "listen host")
	f.IntVar(&serveFlags.port, "port", 0, "listen port")
	f.IntVar(&serveFlags.maxRows, "max-rows", 0, "row cap for custom queries")
	f.BoolVar(&serveFlags.withMCP, "mcp", false, "also serve MCP over streamable HTTP at "+mcpHTTPPath)
	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host = serveFlags.host
	}
	if f.Changed("port") {
		cfg.Server.Port = serveFlags.port
	}
	if f.Changed("max-rows") {
		cfg.Server.MaxRows = serveFlags.maxRows
	}
	return cfg.Validate()
}

// openReader opens the store read-only so an import can still hold the
// write lock in another process.
func openReader(ctx context.Context, c *config.Config) (*database.DB, *database.Reader, error) {
	db, err := database.OpenReadOnly(ctx, &c.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database read-only: %w", err)
	}
	readerCfg := database.DefaultReaderConfig()
	readerCfg.QueryTimeout = c.Server.QueryTimeout
	readerCfg.MaxRows = c.Server.MaxRows
	readerCfg.CacheSize = c.Server.QueryCacheSize
	readerCfg.CacheTTL = c.Server.QueryCacheTTL
	return db, database.NewReader(db, readerCfg), nil
}

// newHTTPServer applies the server timeouts from cfg.
func newHTTPServer(c *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Handler:           handler,
		ReadTimeout:       c.ReadTimeout,
		ReadHeaderTimeout: c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
	}
}

// buildServeHandler returns the API router, with the MCP endpoint mounted
// when mcpServer is non-nil.
func buildServeHandler(reader *database.Reader, c *config.ServerConfig, mcpServer *mcp.Server) http.Handler {
	router := api.NewRouter(api.NewHandler(reader), api.ChiMiddlewareConfigFromServer(c))
	apiHandler := router.SetupChi()
	if mcpServer == nil {
		return apiHandler
	}

	root := chi.NewRouter()
	root.Handle(mcpHTTPPath, mcpServer.HTTPHandler())
	root.Mount("/", apiHandler)
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyServeFlags(cmd); err != nil {
		return err
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

	var mcpServer *mcp.Server
	if serveFlags.withMCP {
		if mcpServer, err = mcp.NewServer(reader, version); err != nil {
			return err
		}
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}
	server := newHTTPServer(&cfg.Server, buildServeHandler(reader, &cfg.Server, mcpServer))
	tree.AddAPIService(services.NewHTTPServerService("query-api", server, cfg.Supervisor.ShutdownTimeout))

	logging.Info().
		Str("addr", server.Addr).
		Str("db_path", cfg.Database.Path).
		Bool("mcp", mcpServer != nil).
		Msg("Starting HealthDuck query server")

	if err := tree.Serve(ctx); err != nil {
		return err
	}
	reportUnstopped(tree)
	logging.Info().Msg("Server stopped")
	return nil
}

// reportUnstopped logs services that outlived the shutdown timeout.
func reportUnstopped(tree *supervisor.SupervisorTree) {
	unstopped, err := tree.UnstoppedServiceReport()
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to get unstopped service report")
		return
	}
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
	}
}
