// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

// Package testinfra provides shared fixtures for tests that need a populated
// health store.
//
// SeedStore opens a DuckDB file in a temporary directory and loads a small,
// fully deduplicated data set through the same bulk writer the importer uses:
//
//	func TestWorkoutDetails(t *testing.T) {
//	    store := testinfra.SeedStore(t)
//	    reader := database.NewReader(store.DB, database.DefaultReaderConfig())
//
//	    details, err := reader.WorkoutDetails(ctx, store.WorkoutHash)
//	    // ...
//	}
//
// The database is closed and removed when the test ends. DuckDB-backed tests
// are serialized through a package-level semaphore.
package testinfra
