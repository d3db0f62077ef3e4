// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLRU_BasicOperations(t *testing.T) {
	t.Parallel()
	c := NewLRU[int](3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		got, ok := c.Get(key)
		if !ok || got != want {
			t.Errorf("Get(%q) = %d, %v; want %d, true", key, got, ok, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	c.Add("a", 10)
	if got, _ := c.Get("a"); got != 10 {
		t.Errorf("Get(a) after update = %d, want 10", got)
	}
	if c.Len() != 3 {
		t.Errorf("Len() after update = %d, want 3", c.Len())
	}
}

func TestLRU_Eviction(t *testing.T) {
	t.Parallel()
	c := NewLRU[string](3, time.Minute)

	c.Add("a", "1")
	c.Add("b", "2")
	c.Add("c", "3")
	c.Get("a") // a is now most recently used
	c.Add("d", "4")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should be present", key)
		}
	}
}

func TestLRU_Expiration(t *testing.T) {
	t.Parallel()
	c := NewLRU[int](10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Add("k", 1)
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expiry, want 0", c.Len())
	}
}

func TestLRU_RemoveClearStats(t *testing.T) {
	t.Parallel()
	c := NewLRU[int](0, 0)
	if c.capacity != DefaultCapacity || c.ttl != DefaultTTL {
		t.Errorf("defaults = %d/%v", c.capacity, c.ttl)
	}

	c.Add("a", 1)
	c.Add("b", 2)
	if !c.Remove("a") || c.Remove("a") {
		t.Error("Remove should report presence exactly once")
	}

	c.Get("b")
	c.Get("missing")
	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("Stats() = %d/%d/%d, want 1/1/1", hits, misses, size)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get after Clear found b")
	}
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()
	c := NewLRU[int](64, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*500+i)%100)
				c.Add(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()
	a := GenerateKey("query_records", []any{"SELECT 1", []any{"x", 5}})
	b := GenerateKey("query_records", []any{"SELECT 1", []any{"x", 5}})
	c := GenerateKey("query_records", []any{"SELECT 1", []any{"x", 6}})
	d := GenerateKey("list_workouts", []any{"SELECT 1", []any{"x", 5}})

	if a != b {
		t.Error("equal params produced different keys")
	}
	if a == c || a == d {
		t.Error("different params or operations produced the same key")
	}
	if !strings.HasPrefix(a, "query_records:") {
		t.Errorf("key %q lacks operation prefix", a)
	}

	// channels cannot be marshaled
	if got := GenerateKey("op", make(chan int)); !strings.HasPrefix(got, "op:") {
		t.Errorf("fallback key = %q", got)
	}
}
