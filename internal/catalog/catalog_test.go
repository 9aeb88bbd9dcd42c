/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const sampleCatalog = `targets:
  - name: M31
    ra_deg: 10.68
    dec_deg: 41.27
    priority: 1.0
    exposure_plan:
      - filter: L
        seconds: 120
        count: 10
  - name: M42
    ra_deg: 83.82
    dec_deg: -5.39
    priority: 2.0
    exposure_plan:
      - filter: Ha
        seconds: 300
        count: 4
    enabled: false
`

func writeCatalog(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadFilePreservesOrderAndDefaults(t *testing.T) {
	c := New(nil, zerolog.Nop())
	if err := c.LoadFile(writeCatalog(t, sampleCatalog)); err != nil {
		t.Fatalf("load: %v", err)
	}

	targets := c.Targets()
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	if targets[0].Name != "M31" || targets[1].Name != "M42" {
		t.Fatalf("file order not preserved: %s, %s", targets[0].Name, targets[1].Name)
	}
	if !targets[0].Enabled {
		t.Fatal("enabled should default to true")
	}
	if targets[1].Enabled {
		t.Fatal("explicit enabled: false should be honored")
	}
	if targets[0].ID == "" {
		t.Fatal("missing IDs should be assigned")
	}
	if got := targets[0].PlannedExposures(); got != 10 {
		t.Fatalf("planned exposures = %d, want 10", got)
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty catalog", "targets: []\n"},
		{"missing name", "targets:\n  - ra_deg: 10\n    dec_deg: 20\n    exposure_plan: [{filter: L, seconds: 60, count: 1}]\n"},
		{"duplicate name", "targets:\n  - name: X\n    ra_deg: 10\n    dec_deg: 20\n    exposure_plan: [{filter: L, seconds: 60, count: 1}]\n  - name: X\n    ra_deg: 11\n    dec_deg: 21\n    exposure_plan: [{filter: L, seconds: 60, count: 1}]\n"},
		{"ra out of range", "targets:\n  - name: X\n    ra_deg: 400\n    dec_deg: 20\n    exposure_plan: [{filter: L, seconds: 60, count: 1}]\n"},
		{"dec out of range", "targets:\n  - name: X\n    ra_deg: 10\n    dec_deg: 95\n    exposure_plan: [{filter: L, seconds: 60, count: 1}]\n"},
		{"negative priority", "targets:\n  - name: X\n    ra_deg: 10\n    dec_deg: 20\n    priority: -1\n    exposure_plan: [{filter: L, seconds: 60, count: 1}]\n"},
		{"empty plan", "targets:\n  - name: X\n    ra_deg: 10\n    dec_deg: 20\n    exposure_plan: []\n"},
		{"zero exposure", "targets:\n  - name: X\n    ra_deg: 10\n    dec_deg: 20\n    exposure_plan: [{filter: L, seconds: 0, count: 1}]\n"},
		{"zero count", "targets:\n  - name: X\n    ra_deg: 10\n    dec_deg: 20\n    exposure_plan: [{filter: L, seconds: 60, count: 0}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil, zerolog.Nop())
			if err := c.LoadFile(writeCatalog(t, tt.doc)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLookup(t *testing.T) {
	c := New(nil, zerolog.Nop())
	if err := c.LoadFile(writeCatalog(t, sampleCatalog)); err != nil {
		t.Fatalf("load: %v", err)
	}

	id := c.Targets()[0].ID
	got, ok := c.Lookup(id)
	if !ok || got.Name != "M31" {
		t.Fatalf("lookup(%s) = %+v, %v", id, got, ok)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Fatal("expected lookup miss for unknown id")
	}
}
