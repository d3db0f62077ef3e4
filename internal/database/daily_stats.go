// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package database

import (
	"context"
	"fmt"
)

const rebuildDailyStatsSQL = `CREATE OR REPLACE TABLE daily_record_stats AS
	SELECT
		record_type,
		CAST(start_date AS DATE) AS date,
		unit,
		COUNT(*) AS count,
		AVG(value) AS avg_value,
		MIN(value) AS min_value,
		MAX(value) AS max_value,
		SUM(value) AS sum_value
	FROM records
	WHERE value IS NOT NULL
	GROUP BY record_type, CAST(start_date AS DATE), unit
	ORDER BY record_type, date`

// RebuildDailyStats recomputes daily_record_stats from the records table and
// returns its row count. Records without a numeric value are not aggregated.
func (db *DB) RebuildDailyStats(ctx context.Context) (int64, error) {
	if db.readOnly {
		return 0, ErrReadOnly
	}
	if _, err := db.conn.ExecContext(ctx, rebuildDailyStatsSQL); err != nil {
		return 0, fmt.Errorf("failed to rebuild daily stats: %w", err)
	}
	return db.countRows(ctx, TableDailyRecordStats)
}
