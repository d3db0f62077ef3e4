// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

/*
Package database owns the DuckDB store: schema, the bulk append path used by
the importer, post-load deduplication, the daily statistics rebuild, the import
run ledger and the read-only query surface.

Write path:

The importer treats every table as an append log. Rows arrive through a
BulkWriter, which drives the DuckDB Appender on one dedicated connection and
commits each batch in its own transaction. No table declares a uniqueness
constraint; after loading, Deduplicate keeps the first-inserted row of each
identity hash and RebuildDailyStats recomputes daily_record_stats.

Read path:

OpenReadOnly opens the file with access_mode=read_only. A Reader wraps query
execution in a circuit breaker and renders rows as maps for the HTTP and MCP
surfaces. All filter values are bound as parameters.
*/
package database
