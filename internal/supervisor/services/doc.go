// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

/*
Package services provides suture.Service wrappers for HealthDuck components.

Each wrapper translates a component's lifecycle into suture's Serve pattern:

  - HTTPServerService wraps an *http.Server (ListenAndServe/Shutdown).
  - ImportService runs the import pipeline once and never restarts it.
  - MCPStdioService runs the stdio MCP session and ends the tree when the
    client goes away.

Return values determine supervisor behavior:

	ctx.Err()                  shutdown requested
	suture.ErrDoNotRestart     finished, remove the service
	ErrTerminateSupervisorTree finished, stop everything
	any other error            restart with backoff

All wrappers implement fmt.Stringer so suture can name them in log output.
*/
package services
