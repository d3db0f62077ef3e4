// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

package healthimport

import (
	"errors"
	"testing"
)

func TestLinkerResolveBeforeSeal(t *testing.T) {
	t.Parallel()

	l := NewLinker()
	l.Register("/workout-routes/a.gpx", "w1")
	if _, _, err := l.Resolve("/workout-routes/a.gpx"); !errors.Is(err, ErrLinkerNotSealed) {
		t.Fatalf("Resolve() error = %v, want ErrLinkerNotSealed", err)
	}
}

func TestLinkerResolve(t *testing.T) {
	t.Parallel()

	l := NewLinker()
	l.Register("/workout-routes/a.gpx", "w1")
	l.Register("/workout-routes/a.gpx", "w2")
	l.Register("routes/b.gpx", "w3")
	l.Register("routes/x/d.gpx", "w4")
	l.Register("routes/y/d.gpx", "w5")
	l.Register("e/f.gpx", "w6")
	l.Register("g/f.gpx", "w6")
	l.Register("  ", "ignored")
	l.Seal()

	tests := []struct {
		name   string
		ref    string
		want   string
		wantOK bool
	}{
		{"exact match", RouteKey("a.gpx"), "w1", true},
		{"first registration wins", "/workout-routes/a.gpx", "w1", true},
		{"base name fallback", RouteKey("b.gpx"), "w3", true},
		{"unknown", RouteKey("c.gpx"), "", false},
		{"base name shared by two workouts", RouteKey("d.gpx"), "", false},
		{"exact match despite shared base name", "routes/y/d.gpx", "w5", true},
		{"base name shared by one workout", RouteKey("f.gpx"), "w6", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := l.Resolve(tt.ref)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.ref, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if l.Len() != 6 {
		t.Errorf("Len() = %d, want 6", l.Len())
	}
}

func TestLinkerRegisterAfterSealPanics(t *testing.T) {
	t.Parallel()

	l := NewLinker()
	l.Seal()
	l.Seal()
	if !l.Sealed() {
		t.Fatal("Sealed() = false after Seal")
	}

	defer func() {
		if recover() == nil {
			t.Error("Register after Seal did not panic")
		}
	}()
	l.Register("/workout-routes/late.gpx", "w")
}
