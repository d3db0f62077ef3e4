// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/healthduck/internal/config"
	"github.com/tomtom215/healthduck/internal/database"
	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/metrics"
	"github.com/tomtom215/healthduck/internal/models"
)

// Export layout.
const (
	ExportFileName = "export.xml"
	ECGDirName     = "electrocardiograms"
	RoutesDirName  = "workout-routes"
)

// ledgerTimeout bounds the final ledger write, which runs even after the
// import context has been canceled.
const ledgerTimeout = 30 * time.Second

// xmlReadBuffer is the read buffer in front of export.xml.
const xmlReadBuffer = 8 << 20

// skipKindTable maps parser skip kinds to the table they would have loaded.
var skipKindTable = map[string]string{
	SkipRecord:           database.TableRecords,
	SkipMetadata:         database.TableRecordMetadata,
	SkipWorkout:          database.TableWorkouts,
	SkipWorkoutEvent:     database.TableWorkoutEvents,
	SkipWorkoutStatistic: database.TableWorkoutStatistics,
	SkipActivitySummary:  database.TableActivitySummaries,
	SkipRoutePoint:       database.TableRoutePoints,
}

// Importer runs the export import pipeline against one database.
type Importer struct {
	cfg      *config.ImportConfig
	db       *database.DB
	progress ProgressTracker

	// State
	mu      sync.RWMutex
	running bool
	stats   *ImportStats
	cancel  context.CancelCauseFunc
}

// NewImporter creates an importer. A nil progress tracker keeps progress in memory.
func NewImporter(cfg *config.ImportConfig, db *database.DB, progress ProgressTracker) *Importer {
	if progress == nil {
		progress = NewInMemoryProgress()
	}
	return &Importer{
		cfg:      cfg,
		db:       db,
		progress: progress,
	}
}

// runState carries what the ledger entry needs once the pipeline returns.
type runState struct {
	loader *Loader
	dedup  *database.DedupReport
}

// Import runs every phase against cfg.ExportDir. The imports ledger entry is
// completed whatever the outcome, including cancellation.
func (i *Importer) Import(ctx context.Context) (*ImportStats, error) {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return nil, ErrImportInProgress
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	i.running = true
	i.cancel = cancel
	i.stats = &ImportStats{
		ExportDir: i.cfg.ExportDir,
		Phase:     PhaseSetup,
		StartTime: time.Now(),
	}
	i.mu.Unlock()

	defer func() {
		cancel(nil)
		i.mu.Lock()
		i.running = false
		i.cancel = nil
		i.stats.EndTime = time.Now()
		i.mu.Unlock()
	}()

	if prev, err := i.progress.Load(runCtx); err != nil {
		logging.Warn().Err(err).Msg("Failed to load previous import progress")
	} else if prev != nil && prev.Status != models.RunStatusCompleted {
		logging.Info().
			Str("previous_run_id", prev.RunID).
			Str("previous_phase", prev.Phase).
			Int64("previous_rows", prev.TotalRows()).
			Msg("Previous import did not complete, re-importing; duplicates are removed after load")
	}

	runID, err := i.db.BeginRun(runCtx, i.cfg.ExportDir)
	if err != nil {
		metrics.RecordRun(models.RunStatusFailed)
		return i.GetStats(), fmt.Errorf("begin run: %w", err)
	}
	i.update(func(s *ImportStats) { s.RunID = string(runID) })
	runCtx = logging.ContextWithRunID(runCtx, string(runID))

	logging.Info().
		Str("run_id", string(runID)).
		Str("export_dir", i.cfg.ExportDir).
		Int("workers", i.cfg.Workers).
		Int("batch_size", i.cfg.BatchSize).
		Msg("Starting import")

	var rs runState
	runErr := i.run(runCtx, string(runID), &rs)
	if runErr != nil && runCtx.Err() != nil && errors.Is(runErr, context.Canceled) {
		if cause := context.Cause(runCtx); errors.Is(cause, ErrImportStopped) {
			runErr = fmt.Errorf("%w: %w", cause, runErr)
		}
	}

	i.completeRun(ctx, runID, runErr, &rs)
	stats := i.GetStats()

	event := logging.Info()
	if runErr != nil {
		event = logging.Error().Err(runErr)
	}
	event.
		Str("run_id", stats.RunID).
		Str("status", stats.Status).
		Int64("records", stats.Records).
		Int64("workouts", stats.Workouts).
		Int64("ecg_readings", stats.ECGReadings).
		Int64("route_points", stats.RoutePoints).
		Int64("duplicates_removed", stats.DuplicatesRemoved).
		Int("file_errors", len(stats.FileErrors)).
		Dur("duration", stats.Duration()).
		Msg("Import finished")

	return stats, runErr
}

func (i *Importer) run(ctx context.Context, importID string, rs *runState) error {
	exportPath := filepath.Join(i.cfg.ExportDir, ExportFileName)
	if _, err := os.Stat(exportPath); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExportNotFound, exportPath, err)
	}

	writer, err := i.db.NewBulkWriter(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close bulk writer")
		}
	}()

	loader, err := NewLoader(ctx, writer, LoaderConfig{
		BatchSize:  i.cfg.BatchSize,
		QueueDepth: i.cfg.QueueDepth,
		ImportID:   importID,
	})
	if err != nil {
		return err
	}
	rs.loader = loader
	defer func() { _ = loader.Close() }()

	linker := NewLinker()

	if err := i.phase(ctx, PhaseXML, func() error {
		return i.importXML(ctx, exportPath, linker, loader)
	}); err != nil {
		return err
	}

	if err := i.phase(ctx, PhaseBarrier, func() error {
		if err := loader.Flush(ctx); err != nil {
			return fmt.Errorf("flush after xml pass: %w", err)
		}
		linker.Seal()
		logging.Debug().Int("route_refs", linker.Len()).Msg("Linker sealed")
		return nil
	}); err != nil {
		return err
	}

	if err := i.phase(ctx, PhaseECG, func() error {
		return i.importECG(ctx, filepath.Join(i.cfg.ExportDir, ECGDirName), loader)
	}); err != nil {
		return err
	}

	if err := i.phase(ctx, PhaseGPX, func() error {
		return i.importGPX(ctx, filepath.Join(i.cfg.ExportDir, RoutesDirName), linker, loader)
	}); err != nil {
		return err
	}

	if err := i.phase(ctx, PhaseLoad, func() error {
		if err := loader.Close(); err != nil {
			return fmt.Errorf("final flush: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	return i.phase(ctx, PhaseDedup, func() error {
		return i.postLoad(ctx, rs)
	})
}

// phase runs fn with the phase recorded in stats, metrics and progress.
func (i *Importer) phase(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.update(func(s *ImportStats) { s.Phase = name })
	logging.Ctx(ctx).Debug().Str("phase", name).Msg("Import phase started")

	start := time.Now()
	err := fn()
	metrics.RecordPhase(name, time.Since(start))

	i.saveProgress(ctx)
	return err
}

func (i *Importer) importXML(ctx context.Context, path string, linker *Linker, loader *Loader) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer func() { _ = f.Close() }()

	progressLog := rate.Sometimes{Interval: 10 * time.Second}
	parser := NewXMLParser(linker)
	parser.OnProgress = func(ps ParseStats) {
		i.applyParseStats(ps)
		progressLog.Do(func() {
			logging.Info().
				Int64("records", ps.Records).
				Int64("workouts", ps.Workouts).
				Int64("activity_summaries", ps.ActivitySummaries).
				Msg("Import progress")
		})
	}

	ps, err := parser.Parse(ctx, bufio.NewReaderSize(f, xmlReadBuffer), loader)
	i.applyParseStats(ps)
	for kind, n := range ps.Skipped {
		metrics.RecordSkipped(kind, n)
	}
	if err != nil {
		return fmt.Errorf("xml pass: %w", err)
	}

	logging.Info().
		Int64("records", ps.Records).
		Int64("metadata_entries", ps.MetadataEntries).
		Int64("workouts", ps.Workouts).
		Int64("activity_summaries", ps.ActivitySummaries).
		Int64("correlations", ps.Correlations).
		Int64("route_refs", ps.RouteRefs).
		Msg("XML pass complete")
	return nil
}

// ecgResult is one fully parsed ECG file waiting for the funnel.
type ecgResult struct {
	path     string
	entities []Entity
	samples  int
	err      error
}

// importECG parses files on a bounded worker pool. Each worker owns one file
// and hands it over on that file's channel; the funnel drains the channels in
// file order so samples of one reading stay contiguous and ordered.
func (i *Importer) importECG(ctx context.Context, dir string, loader *Loader) error {
	files, err := listFiles(dir, ".csv")
	if err != nil {
		return fmt.Errorf("list ECG files: %w", err)
	}
	if len(files) == 0 {
		logging.Info().Msg("No electrocardiograms found, skipping ECG import")
		return nil
	}

	workers := i.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	ecgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan ecgResult, len(files))
	for n := range results {
		results[n] = make(chan ecgResult)
	}

	g, gctx := errgroup.WithContext(ecgCtx)
	g.SetLimit(workers)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for n, path := range files {
			if gctx.Err() != nil {
				return
			}
			g.Go(func() error {
				res := parseECGFile(gctx, path)
				select {
				case results[n] <- res:
				case <-gctx.Done():
				}
				return nil
			})
		}
	}()

	funnelErr := i.funnelECG(ecgCtx, results, loader)
	cancel()
	<-launched
	_ = g.Wait()
	return funnelErr
}

func (i *Importer) funnelECG(ctx context.Context, results []chan ecgResult, loader *Loader) error {
	for _, ch := range results {
		var res ecgResult
		select {
		case res = <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}

		if res.err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.fileError(&FileError{Path: res.path, Phase: PhaseECG, Err: res.err})
			continue
		}

		for _, e := range res.entities {
			if err := loader.Emit(ctx, e); err != nil {
				return fmt.Errorf("ecg %s: %w", res.path, err)
			}
		}
		i.notePreviouslyLoaded(ctx, res.path)
		i.update(func(s *ImportStats) {
			s.ECGReadings++
			s.ECGSamples += int64(res.samples)
		})
		i.markFile(ctx, res.path)
	}
	return nil
}

func parseECGFile(ctx context.Context, path string) ecgResult {
	res := ecgResult{path: path}
	f, err := os.Open(path)
	if err != nil {
		res.err = err
		return res
	}
	defer func() { _ = f.Close() }()

	sink := &CollectingSink{}
	_, res.samples, res.err = ParseECG(ctx, bufio.NewReader(f), filepath.Base(path), sink)
	if res.err == nil {
		res.entities = sink.Entities()
	}
	return res
}

// importGPX streams route files into the loader in file order. Points read
// before a file turns out to be corrupt stay loaded; the file is still
// counted as a file error.
func (i *Importer) importGPX(ctx context.Context, dir string, linker *Linker, loader *Loader) error {
	files, err := listFiles(dir, ".gpx")
	if err != nil {
		return fmt.Errorf("list route files: %w", err)
	}
	if len(files) == 0 {
		logging.Info().Msg("No workout routes found, skipping GPX import")
		return nil
	}
	logging.Info().Int("files", len(files)).Msg("Importing workout routes")

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := filepath.Base(path)
		hash, ok, err := linker.Resolve(RouteKey(name))
		if err != nil {
			return err
		}

		var workoutHash *string
		if ok {
			workoutHash = &hash
		} else {
			switch i.cfg.UnresolvedRoutes {
			case config.UnresolvedFail:
				return fmt.Errorf("%w: %s", ErrUnresolvedRoute, name)
			case config.UnresolvedDrop:
				logging.Warn().Str("file", name).Msg("Dropping route file with no matching workout")
				i.update(func(s *ImportStats) { s.DroppedRoutes++ })
				continue
			default:
				logging.Warn().Str("file", name).Msg("Storing route file with no matching workout")
			}
		}

		gs, err := parseGPXFile(ctx, path, workoutHash, loader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if lerr := loader.stickyErr(); lerr != nil {
				return fmt.Errorf("gpx %s: %w", name, lerr)
			}
			if errors.Is(err, ErrLoaderClosed) {
				return fmt.Errorf("gpx %s: %w", name, err)
			}
			if gs.Points > 0 {
				i.update(func(s *ImportStats) {
					s.RoutePoints += int64(gs.Points)
					if workoutHash == nil {
						s.UnresolvedRoutes++
					}
				})
			}
			i.fileError(&FileError{Path: path, Phase: PhaseGPX, Err: err})
			continue
		}

		i.notePreviouslyLoaded(ctx, path)
		if gs.Skipped > 0 {
			metrics.RecordSkipped(SkipRoutePoint, int64(gs.Skipped))
		}
		i.update(func(s *ImportStats) {
			s.RouteFiles++
			s.RoutePoints += int64(gs.Points)
			if workoutHash == nil {
				s.UnresolvedRoutes++
			}
			if gs.Skipped > 0 {
				if s.Skipped == nil {
					s.Skipped = make(map[string]int64)
				}
				s.Skipped[SkipRoutePoint] += int64(gs.Skipped)
			}
		})
		i.markFile(ctx, path)
	}
	return nil
}

func parseGPXFile(ctx context.Context, path string, workoutHash *string, sink Sink) (GPXStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return GPXStats{}, err
	}
	defer func() { _ = f.Close() }()
	return ParseGPX(ctx, bufio.NewReader(f), workoutHash, sink)
}

// postLoad deduplicates, rebuilds the derived table and checks links.
func (i *Importer) postLoad(ctx context.Context, rs *runState) error {
	if i.cfg.SkipDedup {
		logging.Warn().Msg("Deduplication disabled, duplicate rows are kept")
	} else {
		report, err := i.db.Deduplicate(ctx)
		if err != nil {
			return fmt.Errorf("deduplicate: %w", err)
		}
		rs.dedup = report
		removed := make(map[string]int64)
		for _, t := range report.Tables {
			if n := t.Removed(); n > 0 {
				removed[t.Table] = n
			}
		}
		i.update(func(s *ImportStats) {
			s.DuplicatesRemoved = report.TotalRemoved()
			s.RemovedByTable = removed
		})
	}

	days, err := i.db.RebuildDailyStats(ctx)
	if err != nil {
		return fmt.Errorf("rebuild daily stats: %w", err)
	}
	i.update(func(s *ImportStats) { s.DailyStats = days })

	orphans, err := i.db.OrphanCounts(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to check referential soundness")
		return nil
	}
	found := make(map[string]int64)
	for table, n := range orphans {
		if n > 0 {
			logging.Warn().Str("table", table).Int64("rows", n).Msg("Rows reference a missing parent")
			found[table] = n
		}
	}
	if len(found) > 0 {
		i.update(func(s *ImportStats) { s.Orphans = found })
	}
	return nil
}

// completeRun writes the terminal ledger entry on a context detached from
// cancellation.
func (i *Importer) completeRun(parent context.Context, runID database.RunID, runErr error, rs *runState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), ledgerTimeout)
	defer cancel()

	status := runStatus(runErr)
	i.update(func(s *ImportStats) {
		s.Status = status
		if runErr == nil {
			s.Phase = PhaseDone
		}
	})
	stats := i.GetStats()

	outcome := database.RunOutcome{
		Status:       status,
		Err:          runErr,
		RecordCount:  stats.Records,
		WorkoutCount: stats.Workouts,
		Duration:     stats.Duration(),
		TableCounts:  i.tableCounts(ctx, stats, rs),
		Diagnostics:  stats.Diagnostics(),
	}
	if err := i.db.CompleteRun(ctx, runID, outcome); err != nil {
		logging.Error().Err(err).Str("run_id", string(runID)).Msg("Failed to complete import run")
	}
	metrics.RecordRun(status)

	if status == models.RunStatusCompleted {
		if err := i.progress.Clear(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to clear file progress markers")
		}
	}
	i.saveProgress(ctx)
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return models.RunStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, ErrImportStopped):
		return models.RunStatusCanceled
	default:
		return models.RunStatusFailed
	}
}

func (i *Importer) tableCounts(ctx context.Context, stats *ImportStats, rs *runState) map[string]models.TableCount {
	var loaded map[string]int64
	if rs.loader != nil {
		loaded = rs.loader.Stats().RowsWritten
	}
	removed := make(map[string]int64)
	if rs.dedup != nil {
		for _, t := range rs.dedup.Tables {
			removed[t.Table] = t.Removed()
		}
	}
	skipped := make(map[string]int64)
	for kind, n := range stats.Skipped {
		if table, ok := skipKindTable[kind]; ok {
			skipped[table] += n
		}
	}
	final, err := i.db.TableCounts(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count final table sizes")
	}

	counts := make(map[string]models.TableCount, len(database.HashedTables))
	for _, t := range database.HashedTables {
		counts[t.Name] = models.TableCount{
			Loaded:  loaded[t.Name],
			Skipped: skipped[t.Name],
			Removed: removed[t.Name],
			Final:   final[t.Name],
		}
	}
	return counts
}

// Stop cancels a running import. The run is recorded as canceled.
func (i *Importer) Stop() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.running || i.cancel == nil {
		return ErrNoImportRunning
	}
	i.cancel(ErrImportStopped)
	return nil
}

// IsRunning returns whether an import is currently running.
func (i *Importer) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

// GetStats returns a copy of the current import statistics.
func (i *Importer) GetStats() *ImportStats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stats == nil {
		return nil
	}
	return i.stats.clone()
}

// LastProgress returns the statistics saved by the most recent run, which may
// have been a different process.
func (i *Importer) LastProgress(ctx context.Context) (*ImportStats, error) {
	return i.progress.Load(ctx)
}

func (i *Importer) update(fn func(s *ImportStats)) {
	i.mu.Lock()
	fn(i.stats)
	i.mu.Unlock()
}

func (i *Importer) applyParseStats(ps ParseStats) {
	i.update(func(s *ImportStats) {
		s.Records = ps.Records
		s.MetadataEntries = ps.MetadataEntries
		s.Workouts = ps.Workouts
		s.WorkoutEvents = ps.WorkoutEvents
		s.WorkoutStatistics = ps.WorkoutStatistics
		s.ActivitySummaries = ps.ActivitySummaries
		s.Correlations = ps.Correlations
		if len(ps.Skipped) > 0 && s.Skipped == nil {
			s.Skipped = make(map[string]int64)
		}
		for kind, n := range ps.Skipped {
			s.Skipped[kind] = n
		}
	})
}

func (i *Importer) fileError(fe *FileError) {
	logging.Warn().Err(fe.Err).Str("file", fe.Path).Str("phase", fe.Phase).Msg("Skipping file")
	metrics.RecordFileError(fe.Phase)
	i.update(func(s *ImportStats) { s.addFileError(fe) })
}

// notePreviouslyLoaded counts files an interrupted earlier run had already
// loaded. They are imported again; dedup removes the repeated rows.
func (i *Importer) notePreviouslyLoaded(ctx context.Context, path string) {
	done, err := i.progress.FileDone(ctx, path)
	if err != nil || !done {
		return
	}
	i.update(func(s *ImportStats) { s.PreviouslyLoadedFiles++ })
}

func (i *Importer) markFile(ctx context.Context, path string) {
	if err := i.progress.MarkFile(ctx, path); err != nil {
		logging.Debug().Err(err).Str("file", path).Msg("Failed to mark file progress")
	}
}

func (i *Importer) saveProgress(ctx context.Context) {
	stats := i.GetStats()
	if stats == nil {
		return
	}
	if err := i.progress.Save(context.WithoutCancel(ctx), stats); err != nil {
		logging.Warn().Err(err).Msg("Failed to save progress")
	}
}

// listFiles returns the files in dir with the given extension in lexical
// order. A missing directory yields no files.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
