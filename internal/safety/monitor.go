/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package safety reduces a set of independent environment checks to a single
// debounced go/no-go signal for the state machine.
package safety

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_obs/internal/events"
	"github.com/friendsincode/muninn_obs/internal/models"
	"github.com/friendsincode/muninn_obs/internal/telemetry"
)

// Reading is one check's debounced result at a point in time.
type Reading struct {
	CheckName string
	Safe      bool
	CheckedAt time.Time
	Detail    string
}

// Snapshot is the merged result of one evaluation pass.
type Snapshot struct {
	TakenAt  time.Time
	Readings []Reading
}

// Safe reports the logical AND of every check.
func (s Snapshot) Safe() bool {
	for _, r := range s.Readings {
		if !r.Safe {
			return false
		}
	}
	return len(s.Readings) > 0
}

// SafeExcept reports the AND of every check not named in skip. Dormant
// states use this to ignore the darkness predicate during the day.
func (s Snapshot) SafeExcept(skip ...string) bool {
	if len(s.Readings) == 0 {
		return false
	}
	for _, r := range s.Readings {
		if r.Safe {
			continue
		}
		skipped := false
		for _, name := range skip {
			if r.CheckName == name {
				skipped = true
				break
			}
		}
		if !skipped {
			return false
		}
	}
	return true
}

// FirstUnsafe returns the first failing reading for diagnostics.
func (s Snapshot) FirstUnsafe() (Reading, bool) {
	for _, r := range s.Readings {
		if !r.Safe {
			return r, true
		}
	}
	return Reading{}, false
}

// Check returns the named reading, if present.
func (s Snapshot) Check(name string) (Reading, bool) {
	for _, r := range s.Readings {
		if r.CheckName == name {
			return r, true
		}
	}
	return Reading{}, false
}

// Check is a single pollable safety predicate.
type Check interface {
	Name() string
	// Poll returns the raw flag and a human-readable detail. An error means
	// the reading is missing and is treated as unsafe.
	Poll(ctx context.Context, now time.Time) (bool, string, error)
}

type checkState struct {
	safeStreak   int
	reportedSafe bool
	everPolled   bool
}

// Monitor polls all checks concurrently and applies asymmetric debounce:
// one unsafe reading flips a check unsafe immediately, while it takes
// debounce consecutive safe readings to flip it back.
type Monitor struct {
	checks      []Check
	debounce    int
	maxAge      time.Duration
	pollTimeout time.Duration
	logger      zerolog.Logger
	bus         *events.Bus
	db          *gorm.DB

	mu    sync.Mutex
	state map[string]*checkState
	last  Snapshot
}

// Option configures the monitor.
type Option func(*Monitor)

// WithEventBus publishes per-check flips to the bus.
func WithEventBus(bus *events.Bus) Option {
	return func(m *Monitor) { m.bus = bus }
}

// WithEventLog records per-check flips as SafetyEvent rows.
func WithEventLog(db *gorm.DB) Option {
	return func(m *Monitor) { m.db = db }
}

// NewMonitor creates a monitor over the given checks. Every check starts
// unsafe until it earns its debounce streak.
func NewMonitor(checks []Check, debounce int, maxAge, pollTimeout time.Duration, logger zerolog.Logger, opts ...Option) *Monitor {
	if debounce < 1 {
		debounce = 1
	}
	m := &Monitor{
		checks:      checks,
		debounce:    debounce,
		maxAge:      maxAge,
		pollTimeout: pollTimeout,
		logger:      logger,
		state:       make(map[string]*checkState, len(checks)),
	}
	for _, c := range checks {
		m.state[c.Name()] = &checkState{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type rawResult struct {
	name   string
	safe   bool
	detail string
	at     time.Time
}

// Evaluate polls every check and returns the merged, debounced snapshot.
// Individual checks run concurrently; the snapshot is assembled only after
// all of them have returned or timed out.
func (m *Monitor) Evaluate(ctx context.Context, now time.Time) Snapshot {
	results := make([]rawResult, len(m.checks))

	var wg sync.WaitGroup
	for i, check := range m.checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = m.poll(ctx, check, now)
		}(i, check)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := Snapshot{TakenAt: now, Readings: make([]Reading, 0, len(results))}
	for _, raw := range results {
		st := m.state[raw.name]

		safe, detail := raw.safe, raw.detail
		if now.Sub(raw.at) > m.maxAge {
			safe = false
			detail = "reading stale"
		}

		if !safe {
			telemetry.SafetyUnsafeReadingsTotal.WithLabelValues(raw.name).Inc()
		}

		// Asymmetric debounce: down fast, up slow.
		wasReported := st.reportedSafe
		if safe {
			st.safeStreak++
			if st.safeStreak >= m.debounce {
				st.reportedSafe = true
			}
		} else {
			st.safeStreak = 0
			st.reportedSafe = false
		}

		if st.reportedSafe != wasReported || !st.everPolled {
			m.recordFlip(ctx, raw.name, st.reportedSafe, detail)
		}
		st.everPolled = true

		reported := st.reportedSafe
		if !safe && detail == "" {
			detail = "check reported unsafe"
		}
		if safe && !reported {
			detail = "waiting out debounce"
		}

		if reported {
			telemetry.SafetyCheckSafe.WithLabelValues(raw.name).Set(1)
		} else {
			telemetry.SafetyCheckSafe.WithLabelValues(raw.name).Set(0)
		}

		snapshot.Readings = append(snapshot.Readings, Reading{
			CheckName: raw.name,
			Safe:      reported,
			CheckedAt: raw.at,
			Detail:    detail,
		})
	}

	m.last = snapshot

	if m.bus != nil {
		readings := make([]map[string]any, 0, len(snapshot.Readings))
		for _, r := range snapshot.Readings {
			readings = append(readings, map[string]any{
				"check":  r.CheckName,
				"safe":   r.Safe,
				"detail": r.Detail,
			})
		}
		m.bus.Publish(events.EventSafetySnapshot, events.Payload{
			"taken_at": snapshot.TakenAt,
			"safe":     snapshot.Safe(),
			"readings": readings,
		})
	}
	return snapshot
}

// Last returns the most recent snapshot without polling.
func (m *Monitor) Last() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) poll(ctx context.Context, check Check, now time.Time) rawResult {
	pollCtx, cancel := context.WithTimeout(ctx, m.pollTimeout)
	defer cancel()

	type outcome struct {
		safe   bool
		detail string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		safe, detail, err := check.Poll(pollCtx, now)
		done <- outcome{safe, detail, err}
	}()

	select {
	case <-pollCtx.Done():
		return rawResult{name: check.Name(), safe: false, detail: "poll timed out", at: now}
	case out := <-done:
		if out.err != nil {
			// Missing reading, fail closed.
			return rawResult{name: check.Name(), safe: false, detail: out.err.Error(), at: now}
		}
		return rawResult{name: check.Name(), safe: out.safe, detail: out.detail, at: now}
	}
}

func (m *Monitor) recordFlip(ctx context.Context, name string, safe bool, detail string) {
	m.logger.Info().Str("check", name).Bool("safe", safe).Str("detail", detail).
		Msg("safety check changed state")

	if m.bus != nil {
		m.bus.Publish(events.EventSafetyChange, events.Payload{
			"check":  name,
			"safe":   safe,
			"detail": detail,
		})
	}
	if m.db != nil {
		event := models.SafetyEvent{
			ID:        uuid.New().String(),
			CheckName: name,
			Safe:      safe,
			Detail:    detail,
			CreatedAt: time.Now().UTC(),
		}
		if err := m.db.WithContext(ctx).Create(&event).Error; err != nil {
			m.logger.Warn().Err(err).Str("check", name).Msg("failed to persist safety event")
		}
	}
}
