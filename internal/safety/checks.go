/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/muninn_obs/internal/astro"
	"github.com/friendsincode/muninn_obs/internal/hardware"
)

// Well-known check names.
const (
	CheckDarkness     = "darkness"
	CheckWeather      = "weather"
	CheckPower        = "power"
	CheckStorage      = "storage"
	CheckConnectivity = "connectivity"
)

// DarknessCheck is safe when the sun is far enough below the horizon.
type DarknessCheck struct {
	Site         astro.Site
	Ephemeris    astro.Ephemeris
	SunAltMaxDeg float64 // typically -18 for astronomical darkness
}

// Name implements Check.
func (DarknessCheck) Name() string { return CheckDarkness }

// Poll implements Check.
func (c DarknessCheck) Poll(_ context.Context, now time.Time) (bool, string, error) {
	alt := c.Ephemeris.SunAltitude(c.Site, now)
	if alt > c.SunAltMaxDeg {
		return false, fmt.Sprintf("sun altitude %.1f above %.1f", alt, c.SunAltMaxDeg), nil
	}
	return true, fmt.Sprintf("sun altitude %.1f", alt), nil
}

// WeatherCheck consumes the weather station's aggregate safety flag.
type WeatherCheck struct {
	Sensors hardware.Sensors
}

// Name implements Check.
func (WeatherCheck) Name() string { return CheckWeather }

// Poll implements Check.
func (c WeatherCheck) Poll(ctx context.Context, _ time.Time) (bool, string, error) {
	safe, why, err := c.Sensors.WeatherSafe(ctx)
	if err != nil {
		return false, "", err
	}
	return safe, why, nil
}

// PowerCheck is safe while the unit runs on mains power.
type PowerCheck struct {
	Sensors hardware.Sensors
}

// Name implements Check.
func (PowerCheck) Name() string { return CheckPower }

// Poll implements Check.
func (c PowerCheck) Poll(ctx context.Context, _ time.Time) (bool, string, error) {
	ok, err := c.Sensors.ACPower(ctx)
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, "running on battery", nil
	}
	return true, "", nil
}

// StorageCheck is safe while enough image storage remains.
type StorageCheck struct {
	Sensors   hardware.Sensors
	MinFreeGB float64
}

// Name implements Check.
func (StorageCheck) Name() string { return CheckStorage }

// Poll implements Check.
func (c StorageCheck) Poll(ctx context.Context, _ time.Time) (bool, string, error) {
	free, err := c.Sensors.DiskFreeGB(ctx)
	if err != nil {
		return false, "", err
	}
	if free < c.MinFreeGB {
		return false, fmt.Sprintf("%.1f GB free, need %.1f", free, c.MinFreeGB), nil
	}
	return true, fmt.Sprintf("%.1f GB free", free), nil
}

// ConnectivityCheck is safe while every hardware capability is reachable.
type ConnectivityCheck struct {
	Mount   hardware.Mount
	Camera  hardware.Camera
	Sensors hardware.Sensors
}

// Name implements Check.
func (ConnectivityCheck) Name() string { return CheckConnectivity }

// Poll implements Check.
func (c ConnectivityCheck) Poll(context.Context, time.Time) (bool, string, error) {
	switch {
	case c.Mount != nil && !c.Mount.Connected():
		return false, "mount disconnected", nil
	case c.Camera != nil && !c.Camera.Connected():
		return false, "camera disconnected", nil
	case c.Sensors != nil && !c.Sensors.Connected():
		return false, "sensors disconnected", nil
	}
	return true, "", nil
}
