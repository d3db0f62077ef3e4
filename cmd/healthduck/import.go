// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tomtom215/healthduck/internal/database"
	healthimport "github.com/tomtom215/healthduck/internal/import"
	"github.com/tomtom215/healthduck/internal/logging"
	"github.com/tomtom215/healthduck/internal/models"
	"github.com/tomtom215/healthduck/internal/supervisor"
	"github.com/tomtom215/healthduck/internal/supervisor/services"
)

var importFlags struct {
	exportDir        string
	batchSize        int
	workers          int
	unresolvedRoutes string
	progressPath     string
	skipDedup        bool
	serveMetrics     string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an unpacked Apple Health export",
	Long: `Import export.xml, electrocardiograms/*.csv and workout-routes/*.gpx from
an unpacked Apple Health export into the DuckDB database.

Every run is recorded in the imports table. Rows already present from an
earlier import of the same data are removed by the dedup phase, so running
the same export twice leaves the row counts unchanged.

EXAMPLES:

  $ healthduck import --export-dir ~/Downloads/apple_health_export
  $ healthduck import --unresolved-routes drop --progress-path ./.progress
  $ healthduck import --serve-metrics 127.0.0.1:9090   # Prometheus during the run`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.exportDir, "export-dir", "", "unpacked export directory containing export.xml")
	f.IntVar(&importFlags.batchSize, "batch-size", 0, "rows buffered per table before a flush")
	f.IntVar(&importFlags.workers, "workers", 0, "parallel ECG parsers")
	f.StringVar(&importFlags.unresolvedRoutes, "unresolved-routes", "", "policy for routes with no matching workout (store, drop, fail)")
	f.StringVar(&importFlags.progressPath, "progress-path", "", "BadgerDB directory for progress that survives restarts")
	f.BoolVar(&importFlags.skipDedup, "skip-dedup", false, "leave hash duplicates in place")
	f.StringVar(&importFlags.serveMetrics, "serve-metrics", "", "serve /metrics on this address while importing")
	rootCmd.AddCommand(importCmd)
}

// applyImportFlags copies changed import flags into cfg.
func applyImportFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("export-dir") {
		cfg.Import.ExportDir = importFlags.exportDir
	}
	if f.Changed("batch-size") {
		cfg.Import.BatchSize = importFlags.batchSize
	}
	if f.Changed("workers") {
		cfg.Import.Workers = importFlags.workers
	}
	if f.Changed("unresolved-routes") {
		cfg.Import.UnresolvedRoutes = importFlags.unresolvedRoutes
	}
	if f.Changed("progress-path") {
		cfg.Import.ProgressPath = importFlags.progressPath
	}
	if f.Changed("skip-dedup") {
		cfg.Import.SkipDedup = importFlags.skipDedup
	}
	return cfg.Validate()
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := applyImportFlags(cmd); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	var progress healthimport.ProgressTracker
	if cfg.Import.ProgressPath != "" {
		bp, err := healthimport.OpenBadgerProgress(cfg.Import.ProgressPath)
		if err != nil {
			return fmt.Errorf("failed to open progress store: %w", err)
		}
		defer func() {
			if err := bp.Close(); err != nil {
				logging.Warn().Err(err).Msg("Error closing progress store")
			}
		}()
		progress = bp
	}

	importer := healthimport.NewImporter(&cfg.Import, db, progress)

	var stats *healthimport.ImportStats
	if importFlags.serveMetrics != "" {
		stats, err = importSupervised(ctx, importer, importFlags.serveMetrics)
	} else {
		stats, err = importer.Import(ctx)
	}

	if stats != nil {
		printImportSummary(cmd.OutOrStdout(), stats)
	}
	switch {
	case err == nil:
		return nil
	case errIsInterrupt(err):
		return fmt.Errorf("import interrupted, rerun to finish: %w", err)
	default:
		return fmt.Errorf("import failed: %w", err)
	}
}

// importSupervised runs the import as a one-shot service next to a metrics
// endpoint. The import service ends the tree once the run finishes.
func importSupervised(ctx context.Context, importer *healthimport.Importer, addr string) (*healthimport.ImportStats, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService("metrics", metricsServer, cfg.Supervisor.ShutdownTimeout))

	importSvc := services.NewImportService(importer, true)
	tree.AddIngestService(importSvc)

	if err := tree.Serve(ctx); err != nil {
		return nil, fmt.Errorf("supervisor tree failed: %w", err)
	}
	if !importSvc.Done() {
		return importer.GetStats(), ctx.Err()
	}
	return importSvc.Result()
}

// printImportSummary writes the per-table outcome of a run.
func printImportSummary(w io.Writer, stats *healthimport.ImportStats) {
	faint := color.New(color.Faint)
	bold := color.New(color.Bold)

	switch stats.Status {
	case models.RunStatusCompleted:
		_, _ = color.New(color.FgGreen).Fprintf(w, "✓ Import completed in %s\n", stats.Duration().Round(time.Millisecond))
	case "":
		_, _ = color.New(color.FgYellow).Fprintf(w, "⚠ Import stopped during %s\n", stats.Phase)
	default:
		_, _ = color.New(color.FgRed).Fprintf(w, "✗ Import %s during %s\n", stats.Status, stats.Phase)
	}
	if stats.RunID != "" {
		_, _ = faint.Fprintf(w, "  run %s\n", stats.RunID)
	}

	rows := []struct {
		label string
		n     int64
	}{
		{"records", stats.Records},
		{"metadata entries", stats.MetadataEntries},
		{"workouts", stats.Workouts},
		{"workout events", stats.WorkoutEvents},
		{"workout statistics", stats.WorkoutStatistics},
		{"activity summaries", stats.ActivitySummaries},
		{"correlations", stats.Correlations},
		{"ecg readings", stats.ECGReadings},
		{"ecg samples", stats.ECGSamples},
		{"route files", stats.RouteFiles},
		{"route points", stats.RoutePoints},
	}
	_, _ = bold.Fprintln(w, "\nLoaded")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "  %-20s %d\n", r.label, r.n)
	}

	_, _ = bold.Fprintln(w, "\nCleanup")
	_, _ = fmt.Fprintf(w, "  %-20s %d\n", "duplicates removed", stats.DuplicatesRemoved)
	for _, table := range sortedKeys(stats.RemovedByTable) {
		_, _ = faint.Fprintf(w, "    %-18s %d\n", table, stats.RemovedByTable[table])
	}
	_, _ = fmt.Fprintf(w, "  %-20s %d\n", "daily stats rows", stats.DailyStats)
	if stats.UnresolvedRoutes > 0 {
		_, _ = fmt.Fprintf(w, "  %-20s %d\n", "unresolved routes", stats.UnresolvedRoutes)
	}
	if stats.DroppedRoutes > 0 {
		_, _ = fmt.Fprintf(w, "  %-20s %d\n", "dropped routes", stats.DroppedRoutes)
	}
	if stats.PreviouslyLoadedFiles > 0 {
		_, _ = faint.Fprintf(w, "  %d files were already loaded by an interrupted run\n", stats.PreviouslyLoadedFiles)
	}

	for _, table := range sortedKeys(stats.Orphans) {
		_, _ = color.New(color.FgYellow).Fprintf(w, "  ⚠ %d %s rows reference a missing parent\n", stats.Orphans[table], table)
	}

	if len(stats.Skipped) > 0 {
		_, _ = bold.Fprintln(w, "\nSkipped")
		for _, kind := range sortedKeys(stats.Skipped) {
			_, _ = fmt.Fprintf(w, "  %-20s %d\n", kind, stats.Skipped[kind])
		}
	}

	if len(stats.FileErrors) > 0 {
		warn := color.New(color.FgYellow)
		_, _ = bold.Fprintln(w, "\nFile errors")
		for _, fe := range stats.FileErrors {
			_, _ = warn.Fprintf(w, "  ⚠ %s %s: %s\n", fe.Phase, fe.Path, fe.Message)
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errIsInterrupt reports whether err comes from a signal.
func errIsInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, healthimport.ErrImportStopped)
}
