/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeCheck struct {
	name   string
	safe   bool
	detail string
	err    error
	block  time.Duration
}

func (f *fakeCheck) Name() string { return f.name }

func (f *fakeCheck) Poll(ctx context.Context, _ time.Time) (bool, string, error) {
	if f.block > 0 {
		select {
		case <-ctx.Done():
			return false, "", ctx.Err()
		case <-time.After(f.block):
		}
	}
	return f.safe, f.detail, f.err
}

func newTestMonitor(debounce int, checks ...Check) *Monitor {
	return NewMonitor(checks, debounce, time.Minute, 50*time.Millisecond, zerolog.Nop())
}

func TestDebounceRequiresConsecutiveSafeReadings(t *testing.T) {
	check := &fakeCheck{name: "weather", safe: false}
	m := newTestMonitor(3, check)
	now := time.Now()

	snap := m.Evaluate(context.Background(), now)
	if snap.Safe() {
		t.Fatal("expected unsafe on unsafe reading")
	}

	check.safe = true
	for i := 1; i <= 2; i++ {
		snap = m.Evaluate(context.Background(), now.Add(time.Duration(i)*time.Second))
		if snap.Safe() {
			t.Fatalf("expected unsafe during debounce streak %d", i)
		}
	}

	snap = m.Evaluate(context.Background(), now.Add(3*time.Second))
	if !snap.Safe() {
		t.Fatal("expected safe after three consecutive safe readings")
	}
}

func TestDebounceFlipsUnsafeOnFirstBadReading(t *testing.T) {
	check := &fakeCheck{name: "weather", safe: true}
	m := newTestMonitor(2, check)
	now := time.Now()

	// Earn the safe state.
	m.Evaluate(context.Background(), now)
	snap := m.Evaluate(context.Background(), now.Add(time.Second))
	if !snap.Safe() {
		t.Fatal("expected safe after debounce streak")
	}

	check.safe = false
	check.detail = "rain"
	snap = m.Evaluate(context.Background(), now.Add(2*time.Second))
	if snap.Safe() {
		t.Fatal("expected unsafe immediately after one bad reading")
	}
	unsafe, ok := snap.FirstUnsafe()
	if !ok || unsafe.CheckName != "weather" {
		t.Fatalf("expected weather to be the failing check, got %+v", unsafe)
	}

	// A single safe reading must not restore safety.
	check.safe = true
	snap = m.Evaluate(context.Background(), now.Add(3*time.Second))
	if snap.Safe() {
		t.Fatal("expected unsafe while debounce streak rebuilds")
	}
}

func TestChecksStartUnsafeUntilDebounced(t *testing.T) {
	m := newTestMonitor(2, &fakeCheck{name: "power", safe: true})

	snap := m.Evaluate(context.Background(), time.Now())
	if snap.Safe() {
		t.Fatal("expected checks to fail closed before earning their streak")
	}
}

func TestErroredCheckIsUnsafe(t *testing.T) {
	check := &fakeCheck{name: "power", safe: true, err: errors.New("sensor offline")}
	m := newTestMonitor(1, check)

	snap := m.Evaluate(context.Background(), time.Now())
	if snap.Safe() {
		t.Fatal("expected errored check to read unsafe")
	}
	r, _ := snap.Check("power")
	if r.Detail != "sensor offline" {
		t.Fatalf("expected error detail, got %q", r.Detail)
	}
}

func TestSlowCheckTimesOutUnsafe(t *testing.T) {
	check := &fakeCheck{name: "weather", safe: true, block: time.Second}
	m := newTestMonitor(1, check)

	snap := m.Evaluate(context.Background(), time.Now())
	if snap.Safe() {
		t.Fatal("expected timed-out check to read unsafe")
	}
}

func TestSnapshotMergesAllChecks(t *testing.T) {
	a := &fakeCheck{name: "weather", safe: true}
	b := &fakeCheck{name: "power", safe: true}
	c := &fakeCheck{name: "storage", safe: false, detail: "disk full"}
	m := newTestMonitor(1, a, b, c)

	snap := m.Evaluate(context.Background(), time.Now())
	if len(snap.Readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(snap.Readings))
	}
	if snap.Safe() {
		t.Fatal("expected one failing check to make the snapshot unsafe")
	}
	unsafe, _ := snap.FirstUnsafe()
	if unsafe.CheckName != "storage" {
		t.Fatalf("expected storage to fail first, got %s", unsafe.CheckName)
	}
}

func TestSafeExceptSkipsNamedChecks(t *testing.T) {
	dark := &fakeCheck{name: CheckDarkness, safe: false, detail: "daytime"}
	weather := &fakeCheck{name: CheckWeather, safe: true}
	m := newTestMonitor(1, dark, weather)

	snap := m.Evaluate(context.Background(), time.Now())
	if snap.Safe() {
		t.Fatal("expected full snapshot to be unsafe during the day")
	}
	if !snap.SafeExcept(CheckDarkness) {
		t.Fatal("expected snapshot to be safe once darkness is excluded")
	}
}

func TestEmptySnapshotIsUnsafe(t *testing.T) {
	m := newTestMonitor(1)
	snap := m.Evaluate(context.Background(), time.Now())
	if snap.Safe() || snap.SafeExcept(CheckDarkness) {
		t.Fatal("expected snapshot with no checks to fail closed")
	}
}
