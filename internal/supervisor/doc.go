// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

/*
Package supervisor provides process supervision for HealthDuck using suture v4.

The tree groups services into two layers so a failing import never takes the
query surface down:

	RootSupervisor ("healthduck")
	├── IngestSupervisor ("ingest-layer")
	│   └── ImportService (one-shot)
	└── APISupervisor ("api-layer")
	    ├── HTTPServerService ("query-api" or "metrics")
	    ├── HTTPServerService ("mcp-http")
	    └── MCPStdioService

Supervision events (starts, failures, backoff) are logged through the
sutureslog adapter.

# Exit Semantics

Services signal their intent through the error they return:

	error                      restarted with backoff
	suture.ErrDoNotRestart     removed from its layer, siblings keep running
	ErrTerminateSupervisorTree the whole tree stops

SupervisorTree.Serve treats context cancellation and a deliberate
termination as normal exits and returns nil for both.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService("query-api", server, cfg.Supervisor.ShutdownTimeout))
	return tree.Serve(ctx)
*/
package supervisor
