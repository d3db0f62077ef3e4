// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical textual form of a stored timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrInvalidTimestamp is returned when a date attribute matches no known layout.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Export writes "2024-01-01 10:00:00 -0500". The other layouts show up in
// hand-edited or third-party generated exports.
var exportLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	TimestampLayout,
}

var gpxLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// NormalizeExportTime parses an export date attribute, applies its UTC offset
// and returns the instant in UTC. Values without an offset are taken as UTC.
func NormalizeExportTime(s string) (time.Time, error) {
	return parseWithLayouts(s, exportLayouts)
}

// NormalizeGPXTime parses a GPX <time> value. A missing zone designator is
// taken as UTC.
func NormalizeGPXTime(s string) (time.Time, error) {
	return parseWithLayouts(s, gpxLayouts)
}

func parseWithLayouts(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// FormatTimestamp renders t in UTC using TimestampLayout. Sub-second precision
// is dropped; export timestamps carry whole seconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
