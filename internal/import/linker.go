// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"path"
	"strings"
	"sync"
)

// Linker maps route file references seen in export.xml to workout hashes.
//
// Registration happens during the XML pass only. Resolve refuses to answer
// until Seal is called, so no GPX file can be matched against a partially
// built map.
type Linker struct {
	mu     sync.RWMutex
	refs   map[string]string
	byBase map[string]string
	// ambiguous holds base names registered for more than one workout.
	ambiguous map[string]struct{}
	sealed    bool
}

// NewLinker creates an empty, unsealed linker.
func NewLinker() *Linker {
	return &Linker{
		refs:      make(map[string]string),
		byBase:    make(map[string]string),
		ambiguous: make(map[string]struct{}),
	}
}

// RouteKey returns the reference form the export uses for a file in
// workout-routes/.
func RouteKey(fileName string) string {
	return "/workout-routes/" + fileName
}

// Register records that routeRef belongs to workoutHash. The first
// registration of a reference wins. Register panics after Seal.
func (l *Linker) Register(routeRef, workoutHash string) {
	ref := strings.TrimSpace(routeRef)
	if ref == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		panic("healthimport: Register called on sealed linker")
	}
	if _, exists := l.refs[ref]; !exists {
		l.refs[ref] = workoutHash
	}
	base := path.Base(ref)
	if prev, exists := l.byBase[base]; !exists {
		l.byBase[base] = workoutHash
	} else if prev != workoutHash {
		l.ambiguous[base] = struct{}{}
	}
}

// Seal freezes the map. Calling Seal twice is harmless.
func (l *Linker) Seal() {
	l.mu.Lock()
	l.sealed = true
	l.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (l *Linker) Sealed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sealed
}

// Resolve returns the workout hash registered for routeRef. An exact match is
// tried first, then the file's base name, since exports disagree on whether
// the reference carries a leading slash. A base name shared by references of
// different workouts never matches.
func (l *Linker) Resolve(routeRef string) (string, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.sealed {
		return "", false, ErrLinkerNotSealed
	}
	if hash, ok := l.refs[routeRef]; ok {
		return hash, true, nil
	}
	base := path.Base(routeRef)
	if _, dup := l.ambiguous[base]; dup {
		return "", false, nil
	}
	if hash, ok := l.byBase[base]; ok {
		return hash, true, nil
	}
	return "", false, nil
}

// Len returns the number of distinct references registered.
func (l *Linker) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.refs)
}
