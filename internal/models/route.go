// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import (
	"strconv"
	"time"
)

// RoutePoint is one GPX track point. WorkoutHash is nil when the route file
// could not be linked to a workout.
type RoutePoint struct {
	Hash        string    `json:"point_hash"`
	WorkoutHash *string   `json:"workout_hash,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Elevation   *float64  `json:"elevation,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Speed       *float64  `json:"speed,omitempty"`
	Course      *float64  `json:"course,omitempty"`
	HAccuracy   *float64  `json:"h_accuracy,omitempty"`
	VAccuracy   *float64  `json:"v_accuracy,omitempty"`
}

func (p *RoutePoint) Identity() string {
	return ComputeHash(
		derefString(p.WorkoutHash),
		FormatTimestamp(p.Timestamp),
		strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.Longitude, 'f', -1, 64),
	)
}
