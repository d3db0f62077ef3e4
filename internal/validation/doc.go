// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

/*
Package validation provides struct validation for query requests using
go-playground/validator v10.

A single validator instance is built once and shared; it caches struct
metadata and is safe for concurrent use.

# Custom Tags

	isodate       "2024-01-01" or a timestamp accepted by the date filters
	period        one of day, week, month, year
	content_hash  64 lowercase hex characters (an entity identity hash)
	readonly_sql  a single SELECT or WITH statement

# Usage

	type RecordsRequest struct {
	    Type  string `validate:"omitempty,max=200"`
	    Start string `validate:"omitempty,isodate"`
	    Limit int    `validate:"min=0,max=1000"`
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
	    apiErr := verr.ToAPIError()
	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
	    return
	}

Failures carry the VALIDATION_ERROR code used by the HTTP API and the MCP tools.
*/
package validation
