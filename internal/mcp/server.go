// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

// Package mcp exposes the health store to language-model clients as Model
// Context Protocol tools. Every tool is read-only and goes through the same
// database.Reader as the HTTP API.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/logging"
)

// ServerName is reported to clients during initialization.
const ServerName = "healthduck"

// Server wraps the MCP server with reader access.
type Server struct {
	mcpServer *mcp.Server
	reader    *database.Reader
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(reader *database.Reader, version string) (*Server, error) {
	if reader == nil {
		return nil, errors.New("mcp: reader is required")
	}
	if version == "" {
		version = "dev"
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: "Query an Apple Health export imported into DuckDB. " +
				"Start with list_record_types, list_workouts or list_ecg_readings to discover data.",
			Logger: logging.NewSlogLogger(),
		},
	)

	s := &Server{
		mcpServer: mcpServer,
		reader:    reader,
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Serve runs the server over stdio until ctx is done or the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	logging.Info().Str("transport", "stdio").Msg("MCP server starting")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns a streamable HTTP handler serving this server.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}
