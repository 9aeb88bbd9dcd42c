/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package constraint

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// HorizonPoint is one sample of the local horizon profile.
type HorizonPoint struct {
	AzimuthDeg     float64 `yaml:"azimuth_deg"`
	MinAltitudeDeg float64 `yaml:"min_altitude_deg"`
}

// HorizonProfile maps azimuth to the minimum observable altitude. Profiles
// describe obstructions (ridges, buildings, trees) around the site.
type HorizonProfile struct {
	points []HorizonPoint // sorted by azimuth
}

// FlatHorizon returns a profile with a single altitude floor everywhere.
func FlatHorizon(minAltitudeDeg float64) *HorizonProfile {
	return &HorizonProfile{points: []HorizonPoint{{AzimuthDeg: 0, MinAltitudeDeg: minAltitudeDeg}}}
}

// NewHorizonProfile validates and builds a profile from sample points.
// An invalid profile is a configuration fault; callers treat it as fatal.
func NewHorizonProfile(points []HorizonPoint) (*HorizonProfile, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("horizon profile needs at least one point")
	}

	sorted := make([]HorizonPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AzimuthDeg < sorted[j].AzimuthDeg })

	for i, p := range sorted {
		if p.AzimuthDeg < 0 || p.AzimuthDeg >= 360 {
			return nil, fmt.Errorf("horizon point %d: azimuth %v out of range [0, 360)", i, p.AzimuthDeg)
		}
		if p.MinAltitudeDeg < 0 || p.MinAltitudeDeg >= 90 {
			return nil, fmt.Errorf("horizon point %d: altitude %v out of range [0, 90)", i, p.MinAltitudeDeg)
		}
		if i > 0 && p.AzimuthDeg == sorted[i-1].AzimuthDeg {
			return nil, fmt.Errorf("horizon profile has duplicate azimuth %v", p.AzimuthDeg)
		}
	}

	return &HorizonProfile{points: sorted}, nil
}

// LoadHorizonProfile reads a YAML profile file.
func LoadHorizonProfile(path string) (*HorizonProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read horizon profile: %w", err)
	}

	var doc struct {
		Points []HorizonPoint `yaml:"points"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse horizon profile: %w", err)
	}

	profile, err := NewHorizonProfile(doc.Points)
	if err != nil {
		return nil, fmt.Errorf("horizon profile %s: %w", path, err)
	}
	return profile, nil
}

// MinAltitude interpolates the minimum altitude at an azimuth, wrapping
// around north.
func (p *HorizonProfile) MinAltitude(azimuthDeg float64) float64 {
	az := math.Mod(azimuthDeg, 360)
	if az < 0 {
		az += 360
	}

	n := len(p.points)
	if n == 1 {
		return p.points[0].MinAltitudeDeg
	}

	// Find the bracketing pair, treating the list as circular.
	idx := sort.Search(n, func(i int) bool { return p.points[i].AzimuthDeg > az })
	next := p.points[idx%n]
	prev := p.points[(idx+n-1)%n]

	span := math.Mod(next.AzimuthDeg-prev.AzimuthDeg+360, 360)
	if span == 0 {
		return prev.MinAltitudeDeg
	}
	frac := math.Mod(az-prev.AzimuthDeg+360, 360) / span

	return prev.MinAltitudeDeg + frac*(next.MinAltitudeDeg-prev.MinAltitudeDeg)
}
