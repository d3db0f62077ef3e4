// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// hashSeparator terminates every part so that ("ab","c") and ("a","bc") differ.
const hashSeparator = '|'

// ComputeHash returns the lower-case hex SHA-256 digest of the given parts,
// each followed by a '|' byte.
func ComputeHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{hashSeparator})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashFloat renders an optional number for hashing. The raw attribute text
// wins when present so that "1.0" and "1" stay distinct, as they are in the export.
func hashFloat(raw string, v *float64) string {
	if raw != "" {
		return raw
	}
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func hashTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTimestamp(*t)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
