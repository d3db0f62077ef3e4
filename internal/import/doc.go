// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

// Package healthimport imports an unpacked Apple Health export into DuckDB.
//
// # Export Layout
//
//	<export_dir>/export.xml                    required
//	<export_dir>/electrocardiograms/*.csv      optional
//	<export_dir>/workout-routes/*.gpx          optional
//
// # Pipeline
//
// An import runs as ordered phases separated by barriers:
//
//  1. XML pass: export.xml is streamed token by token. Records, workouts with
//     their events and statistics, activity summaries and record metadata are
//     emitted to the Loader. Route file references are registered in the Linker.
//  2. Barrier: the Loader is flushed and the Linker is sealed.
//  3. ECG pass: files are parsed by a bounded worker pool. A single funnel
//     hands each completed file to the Loader in lexical file order.
//  4. GPX pass: each route file is resolved through the Linker and its points
//     are loaded in file order.
//  5. Barrier: the Loader is closed.
//  6. Deduplication and the daily statistics rebuild.
//  7. The run ledger entry is completed, whatever the outcome.
//
// # Identity and Deduplication
//
// Rows are appended without uniqueness checks. Every row carries the identity
// hash of its entity (see internal/models) and the post-load phase keeps the
// first-inserted row per hash, so importing the same export twice leaves the
// store unchanged.
//
// # Progress Tracking
//
// Progress is written to a ProgressTracker: BadgerDB when import.progress_path
// is set, in memory otherwise. Completed auxiliary files are marked so that a
// rerun after a failure can report what the previous run had already loaded.
package healthimport
