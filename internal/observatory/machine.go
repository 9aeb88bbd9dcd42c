/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package observatory holds the safety-gated state machine that sequences an
// observing night. Every decision the unit makes flows through Tick: safety
// is evaluated first on every tick, then the current state's exit guards in
// table order. Guards are pure reads over cached hardware phase; side effects
// happen only in entry actions and per-state work functions, so re-evaluating
// an unchanged guard never re-triggers anything.
package observatory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_obs/internal/events"
	"github.com/friendsincode/muninn_obs/internal/executor"
	"github.com/friendsincode/muninn_obs/internal/hardware"
	"github.com/friendsincode/muninn_obs/internal/models"
	"github.com/friendsincode/muninn_obs/internal/obslog"
	"github.com/friendsincode/muninn_obs/internal/safety"
	"github.com/friendsincode/muninn_obs/internal/scheduler"
	"github.com/friendsincode/muninn_obs/internal/telemetry"
)

// State is the observatory's position in the nightly cycle.
type State string

const (
	StateSleeping     State = "sleeping"
	StateReady        State = "ready"
	StateScheduling   State = "scheduling"
	StateSlewing      State = "slewing"
	StateTracking     State = "tracking"
	StateObserving    State = "observing"
	StateAnalyzing    State = "analyzing"
	StateParking      State = "parking"
	StateParked       State = "parked"
	StateHousekeeping State = "housekeeping"
)

// States lists every state in cycle order.
func States() []string {
	return []string{
		string(StateSleeping), string(StateReady), string(StateScheduling),
		string(StateSlewing), string(StateTracking), string(StateObserving),
		string(StateAnalyzing), string(StateParking), string(StateParked),
		string(StateHousekeeping),
	}
}

// dormant states keep the optics covered, so daylight alone must not force a
// park cycle: darkness is excluded from their safety gate. Weather, power,
// storage and connectivity still apply.
func (s State) dormant() bool {
	switch s {
	case StateSleeping, StateParking, StateParked, StateHousekeeping:
		return true
	}
	return false
}

// active states command hardware on a fast cadence.
func (s State) active() bool {
	switch s {
	case StateScheduling, StateSlewing, StateTracking, StateObserving, StateAnalyzing, StateParking:
		return true
	}
	return false
}

// Nightly performs end-of-night bookkeeping: report generation and clearing
// the observed list.
type Nightly interface {
	CloseNight(ctx context.Context, now time.Time) error
}

// Config bounds the machine's timing decisions.
type Config struct {
	SchedulerRetryMax   int
	SchedulerRetryDelay time.Duration
	ParkTimeout         time.Duration
	TickFast            time.Duration
	TickSlow            time.Duration
}

// Outcome reports what one tick did.
type Outcome struct {
	State        State
	Transitioned bool
	Safe         bool
	Detail       string
}

// Machine is the orchestrator. Not safe for concurrent Tick calls; the run
// loop is the only driver.
type Machine struct {
	cfg     Config
	monitor *safety.Monitor
	sched   *scheduler.Dispatch
	exec    *executor.Executor
	mount   hardware.Mount
	obsLog  *obslog.Log
	nightly Nightly
	bus     *events.Bus
	logger  zerolog.Logger

	// mu guards state and snapshot, which the HTTP status handlers read
	// while the run loop writes. Everything else is touched only from Tick.
	mu        sync.RWMutex
	state     State
	enteredAt time.Time

	// cached per-tick inputs read by guards
	snapshot safety.Snapshot
	phase    executor.Phase
	isParked bool

	pendingTarget *models.Target
	schedTries    int
	lastSchedAt   time.Time

	parkCommanded bool
	parkIssuedAt  time.Time
}

// New creates a machine starting in the sleeping state.
func New(cfg Config, monitor *safety.Monitor, sched *scheduler.Dispatch, exec *executor.Executor,
	mount hardware.Mount, obsLog *obslog.Log, nightly Nightly, bus *events.Bus, logger zerolog.Logger) *Machine {
	if cfg.SchedulerRetryMax < 1 {
		cfg.SchedulerRetryMax = 1
	}
	return &Machine{
		cfg:     cfg,
		monitor: monitor,
		sched:   sched,
		exec:    exec,
		mount:   mount,
		obsLog:  obsLog,
		nightly: nightly,
		bus:     bus,
		logger:  logger,
		state:   StateSleeping,
		phase:   executor.PhaseIdle,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns the safety snapshot from the most recent tick.
func (m *Machine) Snapshot() safety.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

type guardFn func(m *Machine, now time.Time) bool

type transition struct {
	from  State
	to    State
	guard guardFn
}

// transitions is the full table, evaluated in order per state; the first
// matching guard fires. The safety-forced path to parking is not in the
// table: it is checked unconditionally before the table on every tick.
var transitions = []transition{
	{StateSleeping, StateReady, func(m *Machine, _ time.Time) bool {
		return m.snapshot.Safe()
	}},
	{StateReady, StateScheduling, func(m *Machine, _ time.Time) bool {
		return true
	}},
	{StateScheduling, StateSlewing, func(m *Machine, _ time.Time) bool {
		return m.pendingTarget != nil
	}},
	{StateScheduling, StateParking, func(m *Machine, _ time.Time) bool {
		return m.schedTries >= m.cfg.SchedulerRetryMax
	}},
	{StateSlewing, StateTracking, func(m *Machine, _ time.Time) bool {
		return m.phase == executor.PhaseSettling || m.phase == executor.PhaseTracking
	}},
	{StateTracking, StateObserving, func(m *Machine, _ time.Time) bool {
		return m.phase == executor.PhaseTracking
	}},
	{StateTracking, StateScheduling, func(m *Machine, _ time.Time) bool {
		return m.phase == executor.PhaseTrackingLost
	}},
	{StateObserving, StateAnalyzing, func(m *Machine, _ time.Time) bool {
		return m.phase == executor.PhaseComplete
	}},
	{StateObserving, StateScheduling, func(m *Machine, _ time.Time) bool {
		return m.phase == executor.PhaseTrackingLost
	}},
	{StateAnalyzing, StateScheduling, func(m *Machine, _ time.Time) bool {
		return true
	}},
	{StateParking, StateParked, func(m *Machine, _ time.Time) bool {
		return m.isParked
	}},
	{StateParked, StateHousekeeping, func(m *Machine, _ time.Time) bool {
		dark, ok := m.snapshot.Check(safety.CheckDarkness)
		return ok && !dark.Safe
	}},
	{StateParked, StateReady, func(m *Machine, _ time.Time) bool {
		return m.snapshot.Safe()
	}},
	{StateHousekeeping, StateSleeping, func(m *Machine, _ time.Time) bool {
		return true
	}},
}

// Tick advances the machine by one step.
func (m *Machine) Tick(ctx context.Context, now time.Time) Outcome {
	telemetry.TicksTotal.WithLabelValues(string(m.state)).Inc()

	snapshot := m.monitor.Evaluate(ctx, now)
	m.mu.Lock()
	m.snapshot = snapshot
	m.mu.Unlock()

	// Safety precedes everything. Dormant states ignore daylight but
	// nothing else; a hardware failure surfaced by the executor counts as
	// an unsafe condition for this tick.
	safe := m.snapshot.Safe()
	if m.state.dormant() {
		safe = m.snapshot.SafeExcept(safety.CheckDarkness)
	}
	detail := ""
	if !safe {
		if r, ok := m.snapshot.FirstUnsafe(); ok {
			detail = r.CheckName
			if r.Detail != "" {
				detail = r.CheckName + ": " + r.Detail
			}
		}
	}

	if !safe && m.state != StateParking && m.state != StateParked {
		// A dormant unit whose mount is already physically parked has
		// nothing left to make safe; forcing a park cycle would just
		// churn parking/parked/housekeeping until conditions clear.
		if !(m.state.dormant() && m.mountParked(ctx)) {
			m.forcePark(ctx, now, detail)
			return Outcome{State: m.state, Transitioned: true, Safe: false, Detail: detail}
		}
	}

	m.stateWork(ctx, now)

	if m.phase == executor.PhaseFailed && m.state != StateParking && m.state != StateParked {
		err := ""
		if obs := m.exec.Current(); obs != nil && obs.Err() != nil {
			err = obs.Err().Error()
		}
		m.forcePark(ctx, now, "hardware: "+err)
		return Outcome{State: m.state, Transitioned: true, Safe: safe, Detail: err}
	}

	for _, tr := range transitions {
		if tr.from != m.state {
			continue
		}
		if tr.guard(m, now) {
			m.enter(ctx, now, tr.to)
			return Outcome{State: m.state, Transitioned: true, Safe: safe, Detail: detail}
		}
	}
	return Outcome{State: m.state, Transitioned: false, Safe: safe, Detail: detail}
}

// Run drives the tick loop until the context ends. The cadence is fast in
// hardware-active states and slow while dormant.
func (m *Machine) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		m.Tick(ctx, time.Now().UTC())

		d := m.cfg.TickSlow
		if m.state.active() {
			d = m.cfg.TickFast
		}
		timer.Reset(d)
	}
}

// mountParked polls the physical park state, fail-closed.
func (m *Machine) mountParked(ctx context.Context) bool {
	parked, err := m.mount.IsParked(ctx)
	if err != nil {
		return false
	}
	return parked
}

// forcePark aborts any in-flight observation and enters parking.
func (m *Machine) forcePark(ctx context.Context, now time.Time, reason string) {
	check := reason
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		check = reason[:i]
	}
	telemetry.ForcedParkingsTotal.WithLabelValues(check).Inc()
	m.logger.Warn().Str("state", string(m.state)).Str("reason", reason).
		Msg("safety violation, forcing park")

	if obs := m.exec.Current(); obs != nil && !obs.Phase().Terminal() {
		m.exec.Abort(ctx, reason)
	}
	m.phase = executor.PhaseIdle
	m.enter(ctx, now, StateParking)
}

// stateWork runs the current state's per-tick side effects, caching the
// results the guards read.
func (m *Machine) stateWork(ctx context.Context, now time.Time) {
	switch m.state {
	case StateScheduling:
		m.attemptSelect(ctx, now)
	case StateSlewing, StateTracking, StateObserving:
		m.phase, _ = m.exec.Poll(ctx, now)
	case StateParking:
		m.pollPark(ctx, now)
	}
}

// attemptSelect asks the dispatch scheduler for a target, spacing retries by
// the configured backoff so an empty sky does not busy-loop.
func (m *Machine) attemptSelect(ctx context.Context, now time.Time) {
	if m.pendingTarget != nil || m.schedTries >= m.cfg.SchedulerRetryMax {
		return
	}
	if m.schedTries > 0 && now.Sub(m.lastSchedAt) < m.cfg.SchedulerRetryDelay {
		return
	}

	m.lastSchedAt = now
	target, err := m.sched.Select(ctx, now)
	if err != nil {
		m.schedTries++
		m.logger.Info().Int("attempt", m.schedTries).Int("max", m.cfg.SchedulerRetryMax).
			Msg("no target available")
		return
	}
	m.pendingTarget = target
}

// pollPark keeps the mount heading to park. Parking is best effort forever:
// command errors and timeouts are logged and retried, never given up on.
func (m *Machine) pollPark(ctx context.Context, now time.Time) {
	if !m.parkCommanded || now.Sub(m.parkIssuedAt) > m.cfg.ParkTimeout {
		if m.parkCommanded {
			m.logger.Error().Dur("elapsed", now.Sub(m.parkIssuedAt)).
				Msg("park timed out, reissuing")
		}
		if err := m.mount.Park(ctx); err != nil {
			telemetry.HardwareCommandErrorsTotal.WithLabelValues("park").Inc()
			m.logger.Error().Err(err).Msg("park command failed, will retry")
			return
		}
		m.parkCommanded = true
		m.parkIssuedAt = now
	}

	parked, err := m.mount.IsParked(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("park poll failed")
		return
	}
	m.isParked = parked
}

// enter performs the destination state's entry action exactly once.
func (m *Machine) enter(ctx context.Context, now time.Time, to State) {
	from := m.state
	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
	m.enteredAt = now
	telemetry.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	telemetry.SetCurrentState(States(), string(to))
	m.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("state change")
	if m.bus != nil {
		m.bus.Publish(events.EventStateChange, events.Payload{
			"from": string(from),
			"to":   string(to),
		})
	}

	switch to {
	case StateReady:
		night := NightKey(now)
		if m.obsLog != nil && m.obsLog.Night() != night {
			if err := m.obsLog.BeginNight(ctx, night); err != nil {
				m.logger.Error().Err(err).Msg("failed to open night log")
			}
		}
	case StateScheduling:
		m.pendingTarget = nil
		m.schedTries = 0
		m.lastSchedAt = time.Time{}
		m.phase = executor.PhaseIdle
	case StateSlewing:
		target := m.pendingTarget
		m.pendingTarget = nil
		if target == nil {
			m.logger.Error().Msg("entered slewing without a target")
			m.forcePark(ctx, now, "hardware: no target on slewing entry")
			return
		}
		obs, err := m.exec.Start(ctx, *target, now)
		if err != nil {
			m.logger.Error().Err(err).Str("target", target.Name).Msg("slew command failed")
			m.forcePark(ctx, now, "hardware: "+err.Error())
			return
		}
		m.phase = obs.Phase()
	case StateObserving:
		if err := m.exec.StartExposures(ctx, now); err != nil {
			m.logger.Error().Err(err).Msg("failed to start exposure sequence")
			m.forcePark(ctx, now, "hardware: "+err.Error())
			return
		}
		m.phase = executor.PhaseExposing
	case StateParking:
		m.parkCommanded = false
		m.isParked = false
		m.pollPark(ctx, now)
	case StateHousekeeping:
		if m.nightly != nil {
			if err := m.nightly.CloseNight(ctx, now); err != nil {
				m.logger.Error().Err(err).Msg("end-of-night bookkeeping failed")
			}
		}
	}
}

// NightKey labels the observing night a moment belongs to: the UTC date
// twelve hours earlier, so an entire dusk-to-dawn run shares one key.
func NightKey(now time.Time) string {
	return now.UTC().Add(-12 * time.Hour).Format("2006-01-02")
}
