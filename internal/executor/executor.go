/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package executor drives a single observation through slew, tracking
// verification, and the exposure sequence. It never blocks: the state
// machine calls Poll on every tick and the executor advances whatever the
// hardware reports. Abort is the only cancellation path and is reserved for
// the safety branch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_obs/internal/events"
	"github.com/friendsincode/muninn_obs/internal/hardware"
	"github.com/friendsincode/muninn_obs/internal/models"
	"github.com/friendsincode/muninn_obs/internal/obslog"
	"github.com/friendsincode/muninn_obs/internal/telemetry"
)

// Phase is the executor's position in the observation sequence.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseSlewing      Phase = "slewing"
	PhaseSettling     Phase = "settling" // slew done, waiting for tracking confirmation
	PhaseTracking     Phase = "tracking" // tracking confirmed, exposures not yet started
	PhaseExposing     Phase = "exposing"
	PhaseComplete     Phase = "complete"
	PhaseAborted      Phase = "aborted"
	PhaseTrackingLost Phase = "tracking_lost"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether the phase ends the sequence.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseComplete, PhaseAborted, PhaseTrackingLost, PhaseFailed:
		return true
	}
	return false
}

// ErrBusy indicates Start was called while an observation is in flight.
var ErrBusy = errors.New("observation already in flight")

// Observation is the live execution record for one target.
type Observation struct {
	ID               string
	Target           models.Target
	StartedAt        time.Time
	ExposuresTaken   int
	ExposuresPlanned int
	ExposureSeconds  float64

	phase      Phase
	planStep   int
	stepCount  int // exposures completed within the current step
	exposureID hardware.ExposureID
	failure    error
	archived   bool
}

// Phase returns the current sequence phase.
func (o *Observation) Phase() Phase { return o.phase }

// Err returns the failure that ended the sequence, if any.
func (o *Observation) Err() error { return o.failure }

// Config bounds the executor's polling.
type Config struct {
	SlewTimeout     time.Duration
	TrackingTimeout time.Duration
	RetryMax        int // consecutive poll errors tolerated before escalating
}

// Executor runs at most one observation at a time.
type Executor struct {
	mount  hardware.Mount
	camera hardware.Camera
	log    *obslog.Log
	bus    *events.Bus
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	current    *Observation
	phaseStart time.Time
	pollErrs   int
}

// New creates an executor over the hardware capabilities.
func New(mount hardware.Mount, camera hardware.Camera, log *obslog.Log, bus *events.Bus, cfg Config, logger zerolog.Logger) *Executor {
	if cfg.RetryMax < 1 {
		cfg.RetryMax = 3
	}
	return &Executor{
		mount:  mount,
		camera: camera,
		log:    log,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
	}
}

// Current returns the in-flight observation, or nil.
func (e *Executor) Current() *Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Start issues the slew command and opens a new observation.
func (e *Executor) Start(ctx context.Context, target models.Target, now time.Time) (*Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil && !e.current.phase.Terminal() {
		return nil, ErrBusy
	}

	if err := e.mount.SlewTo(ctx, target.RADeg, target.DecDeg); err != nil {
		telemetry.HardwareCommandErrorsTotal.WithLabelValues("slew_to").Inc()
		return nil, fmt.Errorf("slew to %s: %w", target.Name, err)
	}

	obs := &Observation{
		ID:               uuid.New().String(),
		Target:           target,
		StartedAt:        now,
		ExposuresPlanned: target.PlannedExposures(),
		phase:            PhaseSlewing,
	}
	e.current = obs
	e.phaseStart = now
	e.pollErrs = 0

	e.logger.Info().Str("target", target.Name).Str("observation", obs.ID).
		Msg("observation started, slewing")
	if e.bus != nil {
		e.bus.Publish(events.EventObservationStarted, events.Payload{
			"observation_id": obs.ID,
			"target_id":      target.ID,
			"target_name":    target.Name,
			"planned":        obs.ExposuresPlanned,
		})
	}
	return obs, nil
}

// StartExposures begins the exposure sequence once tracking is confirmed.
// Called by the state machine on entering the observing state, so the
// sequence starts exactly once per observation.
func (e *Executor) StartExposures(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := e.current
	if obs == nil || obs.phase != PhaseTracking {
		return fmt.Errorf("no tracking-confirmed observation to expose")
	}
	obs.phase = PhaseExposing
	e.phaseStart = now
	return e.beginNextExposureLocked(ctx, obs)
}

// Poll advances the sequence by one step and returns the current phase.
// It is safe to call every tick; a terminal phase stays terminal.
func (e *Executor) Poll(ctx context.Context, now time.Time) (Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := e.current
	if obs == nil {
		return PhaseIdle, nil
	}
	if obs.phase.Terminal() {
		return obs.phase, obs.failure
	}

	switch obs.phase {
	case PhaseSlewing:
		e.pollSlewLocked(ctx, obs, now)
	case PhaseSettling:
		e.pollSettlingLocked(ctx, obs, now)
	case PhaseTracking:
		// Holding for the observing entry action; nothing to advance.
	case PhaseExposing:
		e.pollExposingLocked(ctx, obs, now)
	}

	return obs.phase, obs.failure
}

// Abort cancels the in-flight observation and archives it as aborted. It is
// idempotent and race-free against a completing exposure: a late completion
// observed while aborting is still counted.
func (e *Executor) Abort(ctx context.Context, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := e.current
	if obs == nil || obs.phase.Terminal() {
		return
	}

	if obs.exposureID != "" {
		// The exposure may have finished between the last poll and the
		// abort decision; record it before cancelling.
		done, err := e.camera.ExposureDone(ctx, obs.exposureID)
		if err == nil && done {
			obs.ExposuresTaken++
			obs.ExposureSeconds += obs.Target.ExposurePlan[obs.planStep].Seconds
			telemetry.ExposuresTotal.Inc()
		} else {
			if err := e.camera.AbortExposure(ctx, obs.exposureID); err != nil {
				e.logger.Warn().Err(err).Msg("abort exposure failed")
			}
		}
		obs.exposureID = ""
	}

	e.logger.Warn().Str("target", obs.Target.Name).Str("reason", reason).
		Int("exposures_taken", obs.ExposuresTaken).
		Msg("observation aborted")
	e.finishLocked(ctx, obs, PhaseAborted, reason)
}

func (e *Executor) pollSlewLocked(ctx context.Context, obs *Observation, now time.Time) {
	slewing, err := e.mount.IsSlewing(ctx)
	if err != nil {
		e.pollErrorLocked(ctx, obs, "is_slewing", err)
		return
	}
	e.pollErrs = 0

	if slewing {
		if now.Sub(e.phaseStart) > e.cfg.SlewTimeout {
			e.failLocked(ctx, obs, fmt.Errorf("slew timed out after %v", e.cfg.SlewTimeout))
		}
		return
	}

	// Arrived; ask for tracking and verify it on subsequent ticks.
	if err := e.mount.StartTracking(ctx); err != nil {
		telemetry.HardwareCommandErrorsTotal.WithLabelValues("start_tracking").Inc()
		e.failLocked(ctx, obs, fmt.Errorf("start tracking: %w", err))
		return
	}
	obs.phase = PhaseSettling
	e.phaseStart = now
}

func (e *Executor) pollSettlingLocked(ctx context.Context, obs *Observation, now time.Time) {
	tracking, err := e.mount.IsTracking(ctx)
	if err != nil {
		e.pollErrorLocked(ctx, obs, "is_tracking", err)
		return
	}
	e.pollErrs = 0

	if tracking {
		obs.phase = PhaseTracking
		e.phaseStart = now
		e.logger.Info().Str("target", obs.Target.Name).Msg("tracking confirmed")
		return
	}
	if now.Sub(e.phaseStart) > e.cfg.TrackingTimeout {
		// The mount arrived but refuses to track: meridian or horizon
		// limit. The target is abandoned, not failed.
		e.logger.Warn().Str("target", obs.Target.Name).Msg("tracking not confirmed, abandoning target")
		e.finishLocked(ctx, obs, PhaseTrackingLost, "tracking never confirmed")
	}
}

func (e *Executor) pollExposingLocked(ctx context.Context, obs *Observation, now time.Time) {
	// Tracking can halt mid-sequence at a meridian or horizon limit.
	tracking, err := e.mount.IsTracking(ctx)
	if err != nil {
		e.pollErrorLocked(ctx, obs, "is_tracking", err)
		return
	}
	if !tracking {
		if obs.exposureID != "" {
			if err := e.camera.AbortExposure(ctx, obs.exposureID); err != nil {
				e.logger.Warn().Err(err).Msg("abort exposure after tracking halt failed")
			}
			obs.exposureID = ""
		}
		e.logger.Warn().Str("target", obs.Target.Name).
			Int("exposures_taken", obs.ExposuresTaken).
			Msg("tracking halted mid-sequence")
		e.finishLocked(ctx, obs, PhaseTrackingLost, "tracking halted")
		return
	}

	if obs.exposureID == "" {
		if err := e.beginNextExposureLocked(ctx, obs); err != nil {
			return
		}
		if obs.phase.Terminal() {
			return
		}
	}

	done, err := e.camera.ExposureDone(ctx, obs.exposureID)
	if err != nil {
		e.pollErrorLocked(ctx, obs, "exposure_done", err)
		return
	}
	e.pollErrs = 0
	if !done {
		return
	}

	step := obs.Target.ExposurePlan[obs.planStep]
	obs.ExposuresTaken++
	obs.ExposureSeconds += step.Seconds
	obs.stepCount++
	obs.exposureID = ""
	telemetry.ExposuresTotal.Inc()
	if e.bus != nil {
		e.bus.Publish(events.EventExposureTaken, events.Payload{
			"observation_id": obs.ID,
			"target_name":    obs.Target.Name,
			"filter":         step.Filter,
			"seconds":        step.Seconds,
			"taken":          obs.ExposuresTaken,
			"planned":        obs.ExposuresPlanned,
		})
	}

	if obs.stepCount >= step.Count {
		obs.planStep++
		obs.stepCount = 0
	}
	if obs.planStep >= len(obs.Target.ExposurePlan) {
		e.logger.Info().Str("target", obs.Target.Name).
			Int("exposures", obs.ExposuresTaken).
			Msg("exposure sequence complete")
		e.finishLocked(ctx, obs, PhaseComplete, "")
	}
}

func (e *Executor) beginNextExposureLocked(ctx context.Context, obs *Observation) error {
	step := obs.Target.ExposurePlan[obs.planStep]
	id, err := e.camera.StartExposure(ctx, step.Filter, step.Seconds)
	if err != nil {
		telemetry.HardwareCommandErrorsTotal.WithLabelValues("start_exposure").Inc()
		e.failLocked(ctx, obs, fmt.Errorf("start exposure: %w", err))
		return err
	}
	obs.exposureID = id
	return nil
}

// pollErrorLocked counts consecutive poll failures and escalates after the
// retry budget. Stale hardware polls are retried, never trusted.
func (e *Executor) pollErrorLocked(ctx context.Context, obs *Observation, what string, err error) {
	e.pollErrs++
	e.logger.Warn().Err(err).Str("poll", what).Int("consecutive", e.pollErrs).
		Msg("hardware poll failed")
	if e.pollErrs >= e.cfg.RetryMax {
		e.failLocked(ctx, obs, fmt.Errorf("%s: %w", what, err))
	}
}

func (e *Executor) failLocked(ctx context.Context, obs *Observation, err error) {
	obs.failure = err
	e.logger.Error().Err(err).Str("target", obs.Target.Name).Msg("observation failed")
	e.finishLocked(ctx, obs, PhaseFailed, err.Error())
}

// finishLocked archives the observation into the observed list exactly once.
func (e *Executor) finishLocked(ctx context.Context, obs *Observation, phase Phase, detail string) {
	if obs.archived {
		return
	}
	obs.archived = true
	obs.phase = phase
	e.pollErrs = 0

	status := models.ObservationComplete
	eventType := events.EventObservationDone
	if phase != PhaseComplete {
		status = models.ObservationAborted
		eventType = events.EventObservationAborted
	}

	rec := models.ObservationRecord{
		ID:               obs.ID,
		TargetID:         obs.Target.ID,
		TargetName:       obs.Target.Name,
		StartedAt:        obs.StartedAt,
		EndedAt:          time.Now().UTC(),
		ExposuresTaken:   obs.ExposuresTaken,
		ExposuresPlanned: obs.ExposuresPlanned,
		ExposureSeconds:  obs.ExposureSeconds,
		Status:           status,
		Detail:           detail,
	}
	if e.log != nil {
		if err := e.log.Append(ctx, rec); err != nil {
			e.logger.Error().Err(err).Msg("failed to archive observation")
		}
	}

	telemetry.ObservationsTotal.WithLabelValues(string(status)).Inc()
	if e.bus != nil {
		e.bus.Publish(eventType, events.Payload{
			"observation_id": obs.ID,
			"target_id":      obs.Target.ID,
			"target_name":    obs.Target.Name,
			"taken":          obs.ExposuresTaken,
			"planned":        obs.ExposuresPlanned,
			"status":         string(status),
			"detail":         detail,
		})
	}
}
