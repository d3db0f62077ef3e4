// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package mcp

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SummaryURI is the store overview resource.
const SummaryURI = "healthduck://summary"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         SummaryURI,
		Name:        "Health Store Summary",
		Description: "Row counts per table and the most recent import run",
		MIMEType:    "application/json",
	}, s.handleSummaryResource)
}

// storeSummary is the body of the summary resource.
type storeSummary struct {
	Tables     map[string]int64 `json:"tables"`
	LastImport any              `json:"last_import,omitempty"`
	Breaker    string           `json:"breaker_state"`
}

func (s *Server) summary(ctx context.Context) (*storeSummary, error) {
	counts, err := s.reader.DB().TableCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tables: %w", err)
	}
	history, err := s.reader.ImportHistory(ctx, 1)
	if err != nil {
		return nil, err
	}

	out := &storeSummary{Tables: counts, Breaker: s.reader.BreakerState()}
	if len(history.Rows) > 0 {
		out.LastImport = history.Rows[0]
	}
	return out, nil
}

func (s *Server) handleSummaryResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	summary, err := s.summary(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      SummaryURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
