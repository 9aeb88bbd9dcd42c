/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package astro

import (
	"math"
	"testing"
	"time"
)

func TestGMSTAtJ2000(t *testing.T) {
	// At the J2000.0 epoch GMST is 280.46061837 degrees by definition.
	epoch := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	gmst := GMSTDeg(epoch)
	if math.Abs(gmst-280.46061837) > 0.01 {
		t.Fatalf("GMST at J2000 = %v, want ~280.4606", gmst)
	}
}

func TestSunDeclinationAtSolstices(t *testing.T) {
	tests := []struct {
		name    string
		when    time.Time
		wantDec float64
	}{
		{"june solstice", time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC), 23.4},
		{"december solstice", time.Date(2025, 12, 21, 12, 0, 0, 0, time.UTC), -23.4},
		{"march equinox", time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SunPosition(tt.when).DecDeg
			if math.Abs(got-tt.wantDec) > 0.6 {
				t.Fatalf("sun dec = %v, want ~%v", got, tt.wantDec)
			}
		})
	}
}

func TestSunAltitudeDayNight(t *testing.T) {
	// Quito sits nearly on the equator; local noon is ~17:00 UTC.
	site := Site{LatitudeDeg: -0.18, LongitudeDeg: -78.47}

	noon := SunAltitude(site, time.Date(2025, 3, 20, 17, 0, 0, 0, time.UTC))
	if noon < 60 {
		t.Fatalf("equinox noon sun altitude = %v, want well above 60", noon)
	}

	midnight := SunAltitude(site, time.Date(2025, 3, 20, 5, 0, 0, 0, time.UTC))
	if midnight > -60 {
		t.Fatalf("midnight sun altitude = %v, want well below -60", midnight)
	}
}

func TestMoonStaysWithinDeclinationBounds(t *testing.T) {
	// Lunar declination never exceeds ~28.7 degrees.
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 60; day++ {
		pos := MoonPosition(start.AddDate(0, 0, day))
		if math.Abs(pos.DecDeg) > 29.5 {
			t.Fatalf("moon dec %v out of bounds on day %d", pos.DecDeg, day)
		}
	}
}

func TestMoonNearSunDuringEclipse(t *testing.T) {
	// Total solar eclipse of 2024-04-08, maximum around 18:17 UTC.
	when := time.Date(2024, 4, 8, 18, 17, 0, 0, time.UTC)
	sep := Separation(SunPosition(when), MoonPosition(when))
	if sep > 2 {
		t.Fatalf("sun-moon separation during eclipse = %v, want < 2", sep)
	}
}

func TestSeparation(t *testing.T) {
	tests := []struct {
		name string
		a, b Equatorial
		want float64
	}{
		{"coincident", Equatorial{10, 20}, Equatorial{10, 20}, 0},
		{"antipodal", Equatorial{0, 0}, Equatorial{180, 0}, 180},
		{"pole to equator", Equatorial{0, 90}, Equatorial{123, 0}, 90},
		{"equatorial quarter", Equatorial{0, 0}, Equatorial{90, 0}, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Separation(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("separation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAltAzZenith(t *testing.T) {
	// A target whose declination equals the site latitude transits through
	// the zenith when the hour angle is zero.
	site := Site{LatitudeDeg: 30, LongitudeDeg: 0}
	when := time.Date(2025, 5, 1, 3, 0, 0, 0, time.UTC)
	lst := LSTDeg(when, site.LongitudeDeg)

	hz := AltAz(Equatorial{RADeg: lst, DecDeg: 30}, site, when)
	if math.Abs(hz.AltDeg-90) > 0.01 {
		t.Fatalf("transit altitude = %v, want ~90", hz.AltDeg)
	}
}

func TestAltAzCardinalDirections(t *testing.T) {
	site := Site{LatitudeDeg: 45, LongitudeDeg: 0}
	when := time.Date(2025, 5, 1, 3, 0, 0, 0, time.UTC)
	lst := LSTDeg(when, site.LongitudeDeg)

	// On the meridian below the pole-side of zenith the target bears south.
	hz := AltAz(Equatorial{RADeg: lst, DecDeg: 0}, site, when)
	if math.Abs(hz.AzDeg-180) > 0.01 {
		t.Fatalf("meridian azimuth = %v, want ~180", hz.AzDeg)
	}
	if math.Abs(hz.AltDeg-45) > 0.01 {
		t.Fatalf("meridian altitude = %v, want ~45", hz.AltDeg)
	}
}
