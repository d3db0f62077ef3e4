// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import (
	"strconv"
	"time"
)

// EcgReading is the header of one electrocardiograms/*.csv file.
type EcgReading struct {
	Hash             string    `json:"ecg_hash"`
	RecordedDate     time.Time `json:"recorded_date"`
	Classification   *string   `json:"classification,omitempty"`
	Device           *string   `json:"device,omitempty"`
	SampleRateHz     *float64  `json:"sample_rate_hz,omitempty"`
	Symptoms         *string   `json:"symptoms,omitempty"`
	SoftwareVersion  *string   `json:"software_version,omitempty"`
	AverageHeartRate *float64  `json:"average_heart_rate,omitempty"`
	Lead             *string   `json:"lead,omitempty"`
	Unit             *string   `json:"unit,omitempty"`
	SourceFile       string    `json:"source_file"`
}

// Identity ignores the file name so that a re-export under another name
// still collapses onto the same reading.
func (e *EcgReading) Identity() string {
	return ComputeHash(FormatTimestamp(e.RecordedDate), derefString(e.Device))
}

// EcgSample is one voltage value of a reading, in microvolts.
type EcgSample struct {
	Hash      string  `json:"sample_hash"`
	EcgHash   string  `json:"ecg_hash"`
	Index     int64   `json:"sample_idx"`
	VoltageUV float64 `json:"voltage_uv"`
}

func (s *EcgSample) Identity() string {
	return ComputeHash(s.EcgHash, strconv.FormatInt(s.Index, 10))
}
