/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hardware defines the narrow capability interfaces the controller
// consumes. Wire-level mount/camera protocols live in driver processes; the
// controller only ever sees these methods.
package hardware

import (
	"context"
	"errors"
)

// ErrNotConnected indicates a capability call against disconnected hardware.
var ErrNotConnected = errors.New("hardware not connected")

// ExposureID identifies one in-flight exposure.
type ExposureID string

// Mount is the telescope mount capability surface.
type Mount interface {
	SlewTo(ctx context.Context, raDeg, decDeg float64) error
	IsSlewing(ctx context.Context) (bool, error)
	StartTracking(ctx context.Context) error
	IsTracking(ctx context.Context) (bool, error)
	Park(ctx context.Context) error
	IsParked(ctx context.Context) (bool, error)
	Connected() bool
}

// Camera is the imaging capability surface.
type Camera interface {
	StartExposure(ctx context.Context, filter string, seconds float64) (ExposureID, error)
	ExposureDone(ctx context.Context, id ExposureID) (bool, error)
	AbortExposure(ctx context.Context, id ExposureID) error
	Connected() bool
}

// Sensors is the environment capability surface feeding the safety monitor.
type Sensors interface {
	WeatherSafe(ctx context.Context) (bool, string, error)
	ACPower(ctx context.Context) (bool, error)
	DiskFreeGB(ctx context.Context) (float64, error)
	Connected() bool
}
