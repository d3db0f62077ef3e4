// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/metrics"
)

// Loader defaults.
const (
	DefaultBatchSize  = 100000
	DefaultQueueDepth = 4
)

// TableWriter persists one batch of rows atomically.
// Implemented by *database.BulkWriter.
type TableWriter interface {
	AppendBatch(ctx context.Context, table string, rows [][]any) error
}

// LoaderConfig tunes batching and back-pressure.
type LoaderConfig struct {
	// BatchSize is the number of rows buffered per table before a batch is queued.
	BatchSize int

	// QueueDepth is the number of batches that may wait for the writer.
	// Submit blocks when the queue is full.
	QueueDepth int

	// ImportID is written to the import_id column of tables that carry one.
	ImportID string
}

func (c *LoaderConfig) applyDefaults() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("queue depth must be positive, got %d", c.QueueDepth)
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	return nil
}

// LoaderStats reports what the writer has committed.
type LoaderStats struct {
	RowsWritten map[string]int64
	Batches     int64
	LastFlush   time.Time
	Err         error
}

// loadItem is either a batch or, when barrier is set, a flush marker.
type loadItem struct {
	table   string
	rows    [][]any
	barrier chan error
}

// Loader buffers rows per table and hands full batches to a single writer
// goroutine over a bounded queue.
//
// Batches of one table reach the writer in submission order. The first write
// error is sticky: later batches are discarded and every subsequent Submit,
// Flush and Close returns it.
type Loader struct {
	ctx    context.Context
	cfg    LoaderConfig
	writer TableWriter

	mu      sync.Mutex
	buffers map[string][][]any
	closed  bool

	queue chan loadItem
	done  chan struct{}

	statsMu sync.Mutex
	stats   LoaderStats
	err     error

	closeOnce sync.Once
	closeErr  error
}

// NewLoader starts the writer goroutine. ctx bounds every write; cancel it to
// abandon queued batches. Zero config values take the defaults.
func NewLoader(ctx context.Context, writer TableWriter, cfg LoaderConfig) (*Loader, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	l := &Loader{
		ctx:     ctx,
		cfg:     cfg,
		writer:  writer,
		buffers: make(map[string][][]any),
		queue:   make(chan loadItem, cfg.QueueDepth),
		done:    make(chan struct{}),
		stats:   LoaderStats{RowsWritten: make(map[string]int64)},
	}
	go l.run(ctx)
	return l, nil
}

func (l *Loader) run(ctx context.Context) {
	defer close(l.done)
	for item := range l.queue {
		metrics.UpdateQueueDepth(len(l.queue))

		if item.barrier != nil {
			item.barrier <- l.stickyErr()
			continue
		}
		if l.stickyErr() != nil {
			continue
		}

		if err := l.writer.AppendBatch(ctx, item.table, item.rows); err != nil {
			l.setErr(fmt.Errorf("load %s: %w", item.table, err))
			logging.Error().Err(err).Str("table", item.table).Int("rows", len(item.rows)).Msg("Batch write failed")
			continue
		}

		l.statsMu.Lock()
		l.stats.RowsWritten[item.table] += int64(len(item.rows))
		l.stats.Batches++
		l.stats.LastFlush = time.Now()
		l.statsMu.Unlock()
	}
}

func (l *Loader) stickyErr() error {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.err
}

func (l *Loader) setErr(err error) {
	l.statsMu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.statsMu.Unlock()
}

// Emit converts e to its table row and submits it.
func (l *Loader) Emit(ctx context.Context, e Entity) error {
	table, row, err := entityRow(e, l.cfg.ImportID)
	if err != nil {
		return err
	}
	return l.Submit(ctx, table, row)
}

// Submit buffers one row. When the table's buffer reaches BatchSize the batch
// is queued, blocking while the queue is full.
func (l *Loader) Submit(ctx context.Context, table string, row []any) error {
	if err := l.stickyErr(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLoaderClosed
	}

	l.buffers[table] = append(l.buffers[table], row)
	if len(l.buffers[table]) < l.cfg.BatchSize {
		return nil
	}
	batch := l.buffers[table]
	l.buffers[table] = nil
	return l.enqueue(ctx, loadItem{table: table, rows: batch})
}

// enqueue must be called with l.mu held so batches keep their order.
func (l *Loader) enqueue(ctx context.Context, item loadItem) error {
	select {
	case l.queue <- item:
		metrics.UpdateQueueDepth(len(l.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainLocked queues every partial buffer in table order.
func (l *Loader) drainLocked(ctx context.Context) error {
	for _, t := range database.HashedTables {
		rows := l.buffers[t.Name]
		if len(rows) == 0 {
			continue
		}
		l.buffers[t.Name] = nil
		if err := l.enqueue(ctx, loadItem{table: t.Name, rows: rows}); err != nil {
			return err
		}
	}
	for table, rows := range l.buffers {
		if len(rows) == 0 {
			continue
		}
		l.buffers[table] = nil
		if err := l.enqueue(ctx, loadItem{table: table, rows: rows}); err != nil {
			return err
		}
	}
	return nil
}

// Flush queues all buffered rows and waits until the writer has processed
// everything submitted before the call.
func (l *Loader) Flush(ctx context.Context) error {
	barrier := make(chan error, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoaderClosed
	}
	if err := l.drainLocked(ctx); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := l.enqueue(ctx, loadItem{barrier: barrier}); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	select {
	case err := <-barrier:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes what is buffered, stops the writer and waits for it. Further
// calls return the same result.
func (l *Loader) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		drainErr := l.drainLocked(l.ctx)
		close(l.queue)
		l.mu.Unlock()

		<-l.done
		metrics.UpdateQueueDepth(0)

		if err := l.stickyErr(); err != nil {
			l.closeErr = err
			return
		}
		l.closeErr = drainErr
	})
	return l.closeErr
}

// Stats returns a snapshot of writer progress.
func (l *Loader) Stats() LoaderStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	rows := make(map[string]int64, len(l.stats.RowsWritten))
	for k, v := range l.stats.RowsWritten {
		rows[k] = v
	}
	return LoaderStats{
		RowsWritten: rows,
		Batches:     l.stats.Batches,
		LastFlush:   l.stats.LastFlush,
		Err:         l.err,
	}
}
