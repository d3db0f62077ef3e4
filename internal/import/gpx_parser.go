// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/healthduck/internal/models"
)

// GPXStats counts the track points of one route file.
type GPXStats struct {
	Points  int
	Skipped int
}

// trackPoint accumulates one <trkpt> while its children are read.
type trackPoint struct {
	lat, lon  *float64
	timestamp string
	ele       *float64
	speed     *float64
	course    *float64
	hAcc      *float64
	vAcc      *float64
}

// ParseGPX streams the track points of a route file to sink in file order.
// Elements are matched by local name so the GPX namespace is irrelevant.
// Points missing lat, lon or time are skipped and counted.
func ParseGPX(ctx context.Context, r io.Reader, workoutHash *string, sink Sink) (GPXStats, error) {
	var stats GPXStats
	dec := xml.NewDecoder(r)

	var pt *trackPoint
	var field string
	var text strings.Builder
	tokens := 0

	for {
		tokens++
		if tokens%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("gpx: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch name := t.Name.Local; {
			case name == "trkpt":
				pt = &trackPoint{}
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "lat":
						pt.lat = parseOptFloat(a.Value)
					case "lon":
						pt.lon = parseOptFloat(a.Value)
					}
				}
			case pt != nil:
				field = name
				text.Reset()
			}

		case xml.CharData:
			if pt != nil && field != "" {
				text.Write(t)
			}

		case xml.EndElement:
			if pt == nil {
				continue
			}
			if t.Name.Local != "trkpt" {
				if t.Name.Local == field {
					pt.set(field, strings.TrimSpace(text.String()))
				}
				field = ""
				continue
			}

			point, ok := pt.build(workoutHash)
			pt = nil
			if !ok {
				stats.Skipped++
				continue
			}
			if err := sink.Emit(ctx, point); err != nil {
				return stats, err
			}
			stats.Points++
		}
	}
}

func (p *trackPoint) set(field, value string) {
	switch field {
	case "ele":
		p.ele = parseOptFloat(value)
	case "time":
		p.timestamp = value
	case "speed":
		p.speed = parseOptFloat(value)
	case "course":
		p.course = parseOptFloat(value)
	case "hAcc":
		p.hAcc = parseOptFloat(value)
	case "vAcc":
		p.vAcc = parseOptFloat(value)
	}
}

func (p *trackPoint) build(workoutHash *string) (*models.RoutePoint, bool) {
	if p.lat == nil || p.lon == nil || p.timestamp == "" {
		return nil, false
	}
	ts, err := models.NormalizeGPXTime(p.timestamp)
	if err != nil {
		return nil, false
	}
	point := &models.RoutePoint{
		WorkoutHash: workoutHash,
		Latitude:    *p.lat,
		Longitude:   *p.lon,
		Elevation:   p.ele,
		Timestamp:   ts,
		Speed:       p.speed,
		Course:      p.course,
		HAccuracy:   p.hAcc,
		VAccuracy:   p.vAcc,
	}
	point.Hash = point.Identity()
	return point, true
}
