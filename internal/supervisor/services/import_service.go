// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thejerf/suture/v4"

	healthimport "github.com/tomtom215/healthduck/internal/import"
	"github.com/tomtom215/healthduck/internal/logging"
)

// Importer abstracts the import pipeline's lifecycle for supervision.
type Importer interface {
	// Import blocks until the run completes or ctx is canceled.
	Import(ctx context.Context) (*healthimport.ImportStats, error)

	// IsRunning returns whether an import is currently in progress.
	IsRunning() bool

	// Stop cancels a running import.
	Stop() error
}

// ImportService runs one import under supervision. It never restarts the
// pipeline: a second pass over the same export would only re-count
// duplicates. When TerminateTree is set, the service ends the whole tree
// once the run is finished so the import command can exit with the
// metrics endpoint served for the duration of the run.
type ImportService struct {
	importer      Importer
	name          string
	terminateTree bool

	mu    sync.Mutex
	done  bool
	stats *healthimport.ImportStats
	err   error
}

// NewImportService creates a new one-shot import service.
func NewImportService(importer Importer, terminateTree bool) *ImportService {
	return &ImportService{
		importer:      importer,
		name:          "health-import",
		terminateTree: terminateTree,
	}
}

// Serve implements suture.Service.
func (s *ImportService) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return suture.ErrDoNotRestart
	}
	s.mu.Unlock()

	logging.Info().Str("service", s.name).Msg("Starting health export import")
	stats, err := s.importer.Import(ctx)

	s.mu.Lock()
	s.done = true
	s.stats = stats
	s.err = err
	s.mu.Unlock()

	switch {
	case err != nil && ctx.Err() != nil:
		logging.Info().Msg("Import canceled due to shutdown")
	case err != nil:
		logging.Error().Err(err).Msg("Import failed")
	case stats != nil:
		logging.Info().
			Int64("records", stats.Records).
			Int64("workouts", stats.Workouts).
			Dur("duration", stats.Duration()).
			Msg("Import completed")
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.terminateTree {
		if err != nil {
			return fmt.Errorf("%w: import finished with error: %v", suture.ErrTerminateSupervisorTree, err)
		}
		return fmt.Errorf("%w: import finished", suture.ErrTerminateSupervisorTree)
	}
	return suture.ErrDoNotRestart
}

// Stop cancels the import if it is still running.
func (s *ImportService) Stop() error {
	if !s.importer.IsRunning() {
		return nil
	}
	return s.importer.Stop()
}

// Done reports whether the import has finished.
func (s *ImportService) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Result returns the run's stats and error. Both are nil until Done.
func (s *ImportService) Result() (*healthimport.ImportStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.err
}

// String implements fmt.Stringer for logging.
func (s *ImportService) String() string {
	return s.name
}

// IsTermination reports whether err came from a service ending the tree.
func IsTermination(err error) bool {
	return errors.Is(err, suture.ErrTerminateSupervisorTree)
}
