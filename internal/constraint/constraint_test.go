/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package constraint

import (
	"math"
	"testing"
	"time"

	"github.com/friendsincode/muninn_obs/internal/astro"
	"github.com/friendsincode/muninn_obs/internal/models"
)

// pinnedSky maps a target's declination straight to altitude and its right
// ascension to azimuth, so tests can place targets anywhere.
type pinnedSky struct{}

func (pinnedSky) SunAltitude(astro.Site, time.Time) float64 { return -30 }

func (pinnedSky) MoonPosition(time.Time) astro.Equatorial { return astro.Equatorial{} }

func (pinnedSky) AltAz(eq astro.Equatorial, _ astro.Site, _ time.Time) astro.Horizontal {
	return astro.Horizontal{AltDeg: eq.DecDeg, AzDeg: eq.RADeg}
}

type fakeProgress map[string][2]int

func (f fakeProgress) Progress(targetID string) (int, int) {
	p := f[targetID]
	return p[0], p[1]
}

func pinnedContext() Context {
	return Context{
		Now:       time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
		Ephemeris: pinnedSky{},
		Moon:      astro.Equatorial{RADeg: 200, DecDeg: 10},
	}
}

func TestAltitudeVetoesBelowHorizon(t *testing.T) {
	c := Altitude{Profile: FlatHorizon(20), Weight: 1}

	low := models.Target{RADeg: 90, DecDeg: 10}
	if res := c.Evaluate(low, pinnedContext()); !res.Veto {
		t.Fatal("expected veto below the horizon floor")
	}

	high := models.Target{RADeg: 90, DecDeg: 45}
	res := c.Evaluate(high, pinnedContext())
	if res.Veto {
		t.Fatal("unexpected veto above the horizon floor")
	}
	want := (45.0 - 20.0) / 70.0
	if math.Abs(res.Score-want) > 1e-9 {
		t.Fatalf("altitude score = %v, want %v", res.Score, want)
	}
}

func TestAltitudeUsesAzimuthDependentProfile(t *testing.T) {
	profile, err := NewHorizonProfile([]HorizonPoint{
		{AzimuthDeg: 0, MinAltitudeDeg: 10},
		{AzimuthDeg: 90, MinAltitudeDeg: 50},
		{AzimuthDeg: 180, MinAltitudeDeg: 10},
		{AzimuthDeg: 270, MinAltitudeDeg: 10},
	})
	if err != nil {
		t.Fatalf("build profile: %v", err)
	}
	c := Altitude{Profile: profile, Weight: 1}

	// Same altitude, two azimuths: blocked toward the eastern ridge only.
	east := models.Target{RADeg: 90, DecDeg: 30}
	if res := c.Evaluate(east, pinnedContext()); !res.Veto {
		t.Fatal("expected veto toward the obstructed azimuth")
	}
	west := models.Target{RADeg: 270, DecDeg: 30}
	if res := c.Evaluate(west, pinnedContext()); res.Veto {
		t.Fatal("unexpected veto toward the clear azimuth")
	}
}

func TestMoonAvoidance(t *testing.T) {
	c := MoonAvoidance{MinSepDeg: 45, Weight: 1}
	obs := pinnedContext()

	tests := []struct {
		name     string
		target   models.Target
		veto     bool
		negative bool
	}{
		{"on the moon", models.Target{RADeg: 200, DecDeg: 10}, true, false},
		{"inside threshold", models.Target{RADeg: 220, DecDeg: 10}, false, true},
		{"well clear", models.Target{RADeg: 20, DecDeg: 10}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Evaluate(tt.target, obs)
			if res.Veto != tt.veto {
				t.Fatalf("veto = %v, want %v", res.Veto, tt.veto)
			}
			if !tt.veto {
				if tt.negative && res.Score >= 0 {
					t.Fatalf("expected penalty, got score %v", res.Score)
				}
				if !tt.negative && res.Score <= 0 {
					t.Fatalf("expected positive score, got %v", res.Score)
				}
			}
		})
	}
}

func TestMoonPenaltyGrowsWithProximity(t *testing.T) {
	c := MoonAvoidance{MinSepDeg: 45, Weight: 1}
	obs := pinnedContext()

	near := c.Evaluate(models.Target{RADeg: 210, DecDeg: 10}, obs)
	far := c.Evaluate(models.Target{RADeg: 235, DecDeg: 10}, obs)
	if near.Score >= far.Score {
		t.Fatalf("expected closer target to score worse: near %v, far %v", near.Score, far.Score)
	}
}

func TestAlreadyVisited(t *testing.T) {
	obs := pinnedContext()
	obs.Observed = fakeProgress{
		"done":    {6, 6},
		"partial": {2, 6},
	}

	veto := AlreadyVisited{HardVeto: true, Weight: 1}
	if res := veto.Evaluate(models.Target{ID: "done"}, obs); !res.Veto {
		t.Fatal("expected hard veto for a completed target")
	}
	if res := veto.Evaluate(models.Target{ID: "fresh"}, obs); res.Veto || res.Score != 0 {
		t.Fatalf("expected neutral result for unvisited target, got %+v", res)
	}

	partial := veto.Evaluate(models.Target{ID: "partial"}, obs)
	if partial.Veto {
		t.Fatal("partial visit must not veto")
	}
	if partial.Score >= 0 {
		t.Fatalf("partial visit should carry a penalty, got %v", partial.Score)
	}
	if partial.Score <= -completePenalty {
		t.Fatalf("partial penalty %v should be lighter than the completion penalty", partial.Score)
	}

	soft := AlreadyVisited{HardVeto: false, Weight: 1}
	done := soft.Evaluate(models.Target{ID: "done"}, obs)
	if done.Veto {
		t.Fatal("soft mode must not veto")
	}
	if done.Score > -completePenalty+1e-9 {
		t.Fatalf("soft completion penalty = %v, want <= %v", done.Score, -completePenalty)
	}
}

func TestPriorityScales(t *testing.T) {
	c := Priority{Weight: 2}
	res := c.Evaluate(models.Target{Priority: 1.5}, pinnedContext())
	if res.Score != 3 {
		t.Fatalf("priority score = %v, want 3", res.Score)
	}
}
