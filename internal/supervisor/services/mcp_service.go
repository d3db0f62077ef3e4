// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package services

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/healthduck/internal/logging"
)

// StdioServer runs a protocol session until ctx is done or the peer leaves.
type StdioServer interface {
	Serve(ctx context.Context) error
}

// MCPStdioService wraps the stdio MCP server. A stdio session cannot be
// resumed after the client closes its end, so the service ends the tree
// instead of letting the supervisor restart it against a dead pipe.
type MCPStdioService struct {
	server StdioServer
	name   string
}

// NewMCPStdioService creates a new stdio MCP service wrapper.
func NewMCPStdioService(server StdioServer) *MCPStdioService {
	return &MCPStdioService{server: server, name: "mcp-stdio"}
}

// Serve implements suture.Service.
func (m *MCPStdioService) Serve(ctx context.Context) error {
	err := m.server.Serve(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		logging.Warn().Err(err).Msg("MCP session ended with error")
		return fmt.Errorf("%w: mcp session: %v", suture.ErrTerminateSupervisorTree, err)
	}
	logging.Info().Msg("MCP client disconnected")
	return fmt.Errorf("%w: mcp client disconnected", suture.ErrTerminateSupervisorTree)
}

// String implements fmt.Stringer for logging.
func (m *MCPStdioService) String() string {
	return m.name
}
