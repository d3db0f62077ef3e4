// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"sync"
)

// Entity is any parsed model that can report its identity hash.
// Implemented by the pointer types in internal/models.
type Entity interface {
	Identity() string
}

// Sink receives entities from the parsers in document order.
type Sink interface {
	Emit(ctx context.Context, e Entity) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Entity) error

// Emit calls f(ctx, e).
func (f SinkFunc) Emit(ctx context.Context, e Entity) error {
	return f(ctx, e)
}

// CollectingSink keeps every emitted entity in memory. The ECG workers use
// it to hold a whole file until the funnel hands it to the loader.
type CollectingSink struct {
	mu       sync.Mutex
	entities []Entity
}

// Emit appends e.
func (c *CollectingSink) Emit(_ context.Context, e Entity) error {
	c.mu.Lock()
	c.entities = append(c.entities, e)
	c.mu.Unlock()
	return nil
}

// Entities returns the collected entities in emission order.
func (c *CollectingSink) Entities() []Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entity(nil), c.entities...)
}

// Len returns the number of collected entities.
func (c *CollectingSink) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entities)
}
