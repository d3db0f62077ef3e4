// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

/*
Package models defines the entities produced by the Apple Health import pipeline
and the envelope returned by the HTTP API.

Every stored entity carries an identity hash computed from a fixed tuple of its
canonical fields. The hash is the only notion of equality used anywhere in the
pipeline: the store declares no uniqueness constraints, rows are appended as a
log during import, and a post-load pass keeps one row per hash.

Canonical tuples (in order):

  - HealthRecord: type, source name, start, end, raw value, unit
  - RecordMetadata: record hash, key, value
  - Workout: activity type, source name, start, end, raw duration
  - WorkoutEvent: workout hash, event type, date, raw duration
  - WorkoutStatistic: workout hash, statistic type, start, end
  - ActivitySummary: date components
  - EcgReading: recorded date, device
  - EcgSample: ECG hash, sample index
  - RoutePoint: workout hash (empty when unlinked), timestamp, latitude, longitude

Timestamps enter a hash in the form produced by FormatTimestamp, always UTC, so
the same instant written with different UTC offsets hashes identically.
*/
package models
