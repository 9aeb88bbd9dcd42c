/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimulatorConfig tunes the simulated hardware timings.
type SimulatorConfig struct {
	SlewDuration  time.Duration // wall time per slew regardless of distance
	ParkDuration  time.Duration
	ExposureScale float64 // multiplier on requested exposure seconds
	Now           func() time.Time
}

// DefaultSimulatorConfig returns timings suitable for interactive runs.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		SlewDuration:  5 * time.Second,
		ParkDuration:  5 * time.Second,
		ExposureScale: 1.0,
		Now:           time.Now,
	}
}

// Simulator implements Mount, Camera and Sensors against an in-memory model.
// It doubles as the test fixture: fault injection setters flip the same state
// the capability methods read.
type Simulator struct {
	cfg SimulatorConfig

	mu           sync.Mutex
	connected    bool
	parked       bool
	tracking     bool
	slewEndsAt   time.Time
	parkEndsAt   time.Time
	parkPending  bool
	raDeg        float64
	decDeg       float64
	exposures    map[ExposureID]*simExposure
	failNextSlew error
	failNextExpo error
	weatherSafe  bool
	weatherWhy   string
	acPower      bool
	diskFreeGB   float64
}

type simExposure struct {
	endsAt  time.Time
	aborted bool
}

var (
	_ Mount   = (*Simulator)(nil)
	_ Camera  = (*Simulator)(nil)
	_ Sensors = (*Simulator)(nil)
)

// NewSimulator creates connected simulated hardware with safe conditions.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ExposureScale <= 0 {
		cfg.ExposureScale = 1.0
	}
	return &Simulator{
		cfg:         cfg,
		connected:   true,
		parked:      true,
		exposures:   make(map[ExposureID]*simExposure),
		weatherSafe: true,
		acPower:     true,
		diskFreeGB:  500,
	}
}

// SlewTo commands a slew toward the coordinates.
func (s *Simulator) SlewTo(_ context.Context, raDeg, decDeg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if s.failNextSlew != nil {
		err := s.failNextSlew
		s.failNextSlew = nil
		return err
	}
	s.parked = false
	s.parkPending = false
	s.tracking = false
	s.raDeg, s.decDeg = raDeg, decDeg
	s.slewEndsAt = s.cfg.Now().Add(s.cfg.SlewDuration)
	return nil
}

// IsSlewing reports whether a slew is still in progress.
func (s *Simulator) IsSlewing(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, ErrNotConnected
	}
	return s.cfg.Now().Before(s.slewEndsAt), nil
}

// StartTracking enables sidereal tracking once the slew has finished.
func (s *Simulator) StartTracking(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if s.cfg.Now().Before(s.slewEndsAt) {
		return errors.New("mount still slewing")
	}
	s.tracking = true
	return nil
}

// IsTracking reports the tracking state.
func (s *Simulator) IsTracking(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, ErrNotConnected
	}
	return s.tracking, nil
}

// Park commands the mount to its park position.
func (s *Simulator) Park(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if s.parked {
		return nil
	}
	s.tracking = false
	if !s.parkPending {
		s.parkPending = true
		s.parkEndsAt = s.cfg.Now().Add(s.cfg.ParkDuration)
	}
	return nil
}

// IsParked reports whether the mount has reached the park position.
func (s *Simulator) IsParked(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, ErrNotConnected
	}
	if s.parkPending && !s.cfg.Now().Before(s.parkEndsAt) {
		s.parkPending = false
		s.parked = true
	}
	return s.parked, nil
}

// StartExposure begins an exposure and returns its handle.
func (s *Simulator) StartExposure(_ context.Context, filter string, seconds float64) (ExposureID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", ErrNotConnected
	}
	if s.failNextExpo != nil {
		err := s.failNextExpo
		s.failNextExpo = nil
		return "", err
	}
	if seconds <= 0 {
		return "", fmt.Errorf("invalid exposure length %v", seconds)
	}
	id := ExposureID(uuid.New().String())
	_ = filter
	s.exposures[id] = &simExposure{
		endsAt: s.cfg.Now().Add(time.Duration(seconds * s.cfg.ExposureScale * float64(time.Second))),
	}
	return id, nil
}

// ExposureDone reports whether an exposure has completed.
// An aborted exposure never reports done.
func (s *Simulator) ExposureDone(_ context.Context, id ExposureID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, ErrNotConnected
	}
	exp, ok := s.exposures[id]
	if !ok {
		return false, fmt.Errorf("unknown exposure %s", id)
	}
	if exp.aborted {
		return false, nil
	}
	return !s.cfg.Now().Before(exp.endsAt), nil
}

// AbortExposure cancels an in-flight exposure. Aborting an already finished
// or already aborted exposure is a no-op.
func (s *Simulator) AbortExposure(_ context.Context, id ExposureID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	exp, ok := s.exposures[id]
	if !ok {
		return fmt.Errorf("unknown exposure %s", id)
	}
	if s.cfg.Now().Before(exp.endsAt) {
		exp.aborted = true
	}
	return nil
}

// WeatherSafe reports the simulated weather flag.
func (s *Simulator) WeatherSafe(_ context.Context) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, "", ErrNotConnected
	}
	return s.weatherSafe, s.weatherWhy, nil
}

// ACPower reports the simulated mains power flag.
func (s *Simulator) ACPower(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, ErrNotConnected
	}
	return s.acPower, nil
}

// DiskFreeGB reports the simulated free image storage.
func (s *Simulator) DiskFreeGB(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ErrNotConnected
	}
	return s.diskFreeGB, nil
}

// Connected reports connectivity.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Fault injection for tests and rehearsal runs.

// SetConnected toggles simulated connectivity.
func (s *Simulator) SetConnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
}

// SetWeather sets the simulated weather flag with a detail string.
func (s *Simulator) SetWeather(safe bool, why string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weatherSafe, s.weatherWhy = safe, why
}

// SetACPower sets the mains power flag.
func (s *Simulator) SetACPower(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acPower = v
}

// SetDiskFreeGB sets the simulated free storage.
func (s *Simulator) SetDiskFreeGB(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diskFreeGB = v
}

// FailNextSlew makes the next SlewTo call return err.
func (s *Simulator) FailNextSlew(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextSlew = err
}

// FailNextExposure makes the next StartExposure call return err.
func (s *Simulator) FailNextExposure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextExpo = err
}

// HaltTracking drops tracking, as a mount does at a meridian or horizon limit.
func (s *Simulator) HaltTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = false
}

// FinishExposure forces an in-flight exposure to read as complete now.
func (s *Simulator) FinishExposure(id ExposureID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.exposures[id]; ok && !exp.aborted {
		exp.endsAt = s.cfg.Now()
	}
}
