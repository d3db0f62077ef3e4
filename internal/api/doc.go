// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

/*
Package api serves the imported health store over a read-only HTTP API.

Routes are mounted on a chi router:

	GET  /api/v1/health/live
	GET  /api/v1/health/ready
	GET  /api/v1/record-types
	GET  /api/v1/records?type=&start_date=&end_date=&source=&limit=
	GET  /api/v1/records/statistics?type=&start_date=&end_date=&period=
	GET  /api/v1/workouts?activity_type=&start_date=&end_date=&limit=
	GET  /api/v1/workouts/{hash}
	GET  /api/v1/workouts/{hash}/route
	GET  /api/v1/activity-summaries?start_date=&end_date=&limit=
	GET  /api/v1/ecg?start_date=&end_date=&limit=
	GET  /api/v1/ecg/{hash}
	GET  /api/v1/sources
	GET  /api/v1/imports?limit=
	POST /api/v1/query         {"sql": "SELECT ..."}
	GET  /metrics

Every response uses the models.APIResponse envelope. Query parameters are
checked with go-playground/validator before any SQL runs; failures return
400 VALIDATION_ERROR. An unknown hash returns 404 NOT_FOUND and an open query
circuit breaker returns 503 SERVICE_UNAVAILABLE.

The handlers never write. The serve command opens the database read-only, so
a running import holds the only writer.
*/
package api
