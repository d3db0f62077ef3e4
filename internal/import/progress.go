// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	// progressKey is the BadgerDB key for storing import progress.
	progressKey = "import:progress"

	// fileKeyPrefix prefixes the completion marker of each auxiliary file.
	fileKeyPrefix = "import:file:"
)

// ProgressTracker persists import progress between runs.
type ProgressTracker interface {
	// Save stores the current statistics.
	Save(ctx context.Context, stats *ImportStats) error

	// Load returns the last saved statistics, or nil when none exist.
	Load(ctx context.Context) (*ImportStats, error)

	// Clear removes saved statistics and file markers.
	Clear(ctx context.Context) error

	// MarkFile records that path was loaded completely.
	MarkFile(ctx context.Context, path string) error

	// FileDone reports whether path was marked by an earlier run.
	FileDone(ctx context.Context, path string) (bool, error)
}

// BadgerProgress implements ProgressTracker using BadgerDB for persistence.
type BadgerProgress struct {
	db    *badger.DB
	owned bool
}

// NewBadgerProgress creates a new progress tracker using the provided BadgerDB instance.
func NewBadgerProgress(db *badger.DB) *BadgerProgress {
	return &BadgerProgress{db: db}
}

// OpenBadgerProgress opens (or creates) a BadgerDB directory for progress.
// The returned tracker owns the database; call Close when done.
func OpenBadgerProgress(dir string) (*BadgerProgress, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open progress store %s: %w", dir, err)
	}
	return &BadgerProgress{db: db, owned: true}, nil
}

// Close closes the database if the tracker opened it.
func (p *BadgerProgress) Close() error {
	if !p.owned {
		return nil
	}
	return p.db.Close()
}

// Save persists the current import progress to BadgerDB.
func (p *BadgerProgress) Save(_ context.Context, stats *ImportStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(progressKey), data)
	})
}

// Load retrieves the last saved import progress from BadgerDB.
// Returns nil, nil if no progress has been saved.
func (p *BadgerProgress) Load(_ context.Context) (*ImportStats, error) {
	var stats ImportStats
	found := false
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(progressKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stats)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &stats, nil
}

// Clear removes saved progress and every file marker.
func (p *BadgerProgress) Clear(_ context.Context) error {
	if err := p.db.DropPrefix([]byte(fileKeyPrefix)); err != nil {
		return fmt.Errorf("clear file markers: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(progressKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// MarkFile records path as loaded.
func (p *BadgerProgress) MarkFile(_ context.Context, path string) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fileKeyPrefix+path), []byte{1})
	})
}

// FileDone reports whether path has a marker.
func (p *BadgerProgress) FileDone(_ context.Context, path string) (bool, error) {
	done := false
	err := p.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(fileKeyPrefix + path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// InMemoryProgress implements ProgressTracker using in-memory storage.
// This is useful for testing or when persistence is not required.
type InMemoryProgress struct {
	mu    sync.Mutex
	stats *ImportStats
	files map[string]struct{}
}

// NewInMemoryProgress creates a new in-memory progress tracker.
func NewInMemoryProgress() *InMemoryProgress {
	return &InMemoryProgress{files: make(map[string]struct{})}
}

// Save stores a copy of the progress in memory.
func (p *InMemoryProgress) Save(_ context.Context, stats *ImportStats) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = stats.clone()
	return nil
}

// Load retrieves a copy of the progress from memory.
func (p *InMemoryProgress) Load(_ context.Context) (*ImportStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stats == nil {
		return nil, nil
	}
	return p.stats.clone(), nil
}

// Clear removes the stored progress.
func (p *InMemoryProgress) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = nil
	p.files = make(map[string]struct{})
	return nil
}

// MarkFile records path as loaded.
func (p *InMemoryProgress) MarkFile(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[path] = struct{}{}
	return nil
}

// FileDone reports whether path was marked.
func (p *InMemoryProgress) FileDone(_ context.Context, path string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.files[path]
	return ok, nil
}
