// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tomtom215/healthduck/internal/models"
)

// ECG header keys. Name and Date of Birth are recognized only so they can be
// dropped.
const (
	ecgKeyName             = "Name"
	ecgKeyDateOfBirth      = "Date of Birth"
	ecgKeyRecordedDate     = "Recorded Date"
	ecgKeyClassification   = "Classification"
	ecgKeySymptoms         = "Symptoms"
	ecgKeySoftwareVersion  = "Software Version"
	ecgKeyDevice           = "Device"
	ecgKeySampleRate       = "Sample Rate"
	ecgKeyLead             = "Lead"
	ecgKeyUnit             = "Unit"
	ecgKeyAverageHeartRate = "Average Heart Rate"
)

// maxECGLine bounds a single CSV line.
const maxECGLine = 1 << 20

// ParseECG reads one electrocardiograms/*.csv file. The reading is emitted
// first, followed by its samples in file order. It returns the reading and the
// number of samples emitted.
//
// A header without a parseable Recorded Date yields ErrMalformedECGHeader and
// nothing is emitted.
func ParseECG(ctx context.Context, r io.Reader, fileName string, sink Sink) (*models.EcgReading, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxECGLine)

	header := make(map[string]string)
	var reading *models.EcgReading
	samples := 0
	lines := 0

	for scanner.Scan() {
		lines++
		if lines%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return reading, samples, err
			}
		}

		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}

		voltage, numeric := parseSampleLine(line)
		if reading == nil {
			if !numeric {
				key, value, _ := strings.Cut(line, ",")
				header[strings.TrimSpace(key)] = unquote(value)
				continue
			}
			var err error
			if reading, err = buildECGReading(header, fileName); err != nil {
				return nil, 0, err
			}
			if err := sink.Emit(ctx, reading); err != nil {
				return reading, 0, err
			}
		}

		if !numeric {
			break
		}
		sample := &models.EcgSample{EcgHash: reading.Hash, Index: int64(samples), VoltageUV: voltage}
		sample.Hash = sample.Identity()
		if err := sink.Emit(ctx, sample); err != nil {
			return reading, samples, err
		}
		samples++
	}
	if err := scanner.Err(); err != nil {
		return reading, samples, fmt.Errorf("read %s: %w", fileName, err)
	}

	if reading == nil {
		// Header only, no samples.
		var err error
		if reading, err = buildECGReading(header, fileName); err != nil {
			return nil, 0, err
		}
		if err := sink.Emit(ctx, reading); err != nil {
			return reading, 0, err
		}
	}
	return reading, samples, nil
}

func buildECGReading(header map[string]string, fileName string) (*models.EcgReading, error) {
	raw := header[ecgKeyRecordedDate]
	if raw == "" {
		return nil, fmt.Errorf("%w: %s: no %s", ErrMalformedECGHeader, fileName, ecgKeyRecordedDate)
	}
	recorded, err := models.NormalizeExportTime(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedECGHeader, fileName, err)
	}

	reading := &models.EcgReading{
		RecordedDate:     recorded,
		Classification:   headerValue(header, ecgKeyClassification),
		Device:           headerValue(header, ecgKeyDevice),
		SampleRateHz:     numericPrefix(header[ecgKeySampleRate]),
		Symptoms:         headerValue(header, ecgKeySymptoms),
		SoftwareVersion:  headerValue(header, ecgKeySoftwareVersion),
		AverageHeartRate: numericPrefix(header[ecgKeyAverageHeartRate]),
		Lead:             headerValue(header, ecgKeyLead),
		Unit:             headerValue(header, ecgKeyUnit),
		SourceFile:       fileName,
	}
	reading.Hash = reading.Identity()
	return reading, nil
}

// parseSampleLine reports whether the first CSV field of line is a number.
func parseSampleLine(line string) (float64, bool) {
	field, _, _ := strings.Cut(line, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// headerValue returns nil for absent or empty values.
func headerValue(header map[string]string, key string) *string {
	v, ok := header[key]
	if !ok || v == "" {
		return nil
	}
	return &v
}

// numericPrefix parses values such as "512.000 Hz" or "72 BPM".
func numericPrefix(s string) *float64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return parseOptFloat(fields[0])
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
