// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

/*
Package cache provides a thread-safe LRU cache with TTL expiration.

The database reader uses it to memoize query results while the store is
open read-only: nothing can change the rows underneath, so a repeated
request for the same records, statistics or ECG samples is answered from
memory.

# Usage

	results := cache.NewLRU[*database.QueryResult](1024, 5*time.Minute)
	key := cache.GenerateKey("query_records", []any{sqlText, args})
	if res, ok := results.Get(key); ok {
	    return res, nil
	}

Expiration is lazy: expired entries are dropped when they are next read or
when they reach the tail of the list.
*/
package cache
