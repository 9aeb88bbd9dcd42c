/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package astro provides the low-precision ephemeris used by the safety
// darkness check and the scheduling constraints. Accuracy is on the order
// of arcminutes for the sun and a fraction of a degree for the moon, which
// is sufficient for horizon and separation gating.
package astro

import (
	"math"
	"time"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
	// JD of the J2000.0 epoch.
	j2000 = 2451545.0
)

// Equatorial holds right ascension and declination in degrees.
type Equatorial struct {
	RADeg  float64
	DecDeg float64
}

// Horizontal holds altitude and azimuth in degrees. Azimuth is measured
// from north, increasing eastward.
type Horizontal struct {
	AltDeg float64
	AzDeg  float64
}

// Site is an observer location.
type Site struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	ElevationM   float64
}

// Ephemeris computes positions the controller consumes as plain numbers.
// The interface exists so tests can pin the sky to fixed values.
type Ephemeris interface {
	SunAltitude(site Site, t time.Time) float64
	MoonPosition(t time.Time) Equatorial
	AltAz(eq Equatorial, site Site, t time.Time) Horizontal
}

// Computed is the built-in Ephemeris implementation.
type Computed struct{}

// JulianDay converts a time to a Julian day number.
func JulianDay(t time.Time) float64 {
	return float64(t.UnixMilli())/86400000.0 + 2440587.5
}

// GMSTDeg returns Greenwich mean sidereal time in degrees.
func GMSTDeg(t time.Time) float64 {
	d := JulianDay(t) - j2000
	return normalizeDeg(280.46061837 + 360.98564736629*d)
}

// LSTDeg returns local mean sidereal time in degrees for a longitude
// (east positive).
func LSTDeg(t time.Time, longitudeDeg float64) float64 {
	return normalizeDeg(GMSTDeg(t) + longitudeDeg)
}

// SunPosition returns the apparent equatorial position of the sun.
func SunPosition(t time.Time) Equatorial {
	d := JulianDay(t) - j2000

	meanLon := normalizeDeg(280.460 + 0.9856474*d)
	meanAnom := normalizeDeg(357.528 + 0.9856003*d) * deg2rad

	eclipticLon := (meanLon + 1.915*math.Sin(meanAnom) + 0.020*math.Sin(2*meanAnom)) * deg2rad
	obliquity := (23.439 - 0.0000004*d) * deg2rad

	ra := math.Atan2(math.Cos(obliquity)*math.Sin(eclipticLon), math.Cos(eclipticLon))
	dec := math.Asin(math.Sin(obliquity) * math.Sin(eclipticLon))

	return Equatorial{RADeg: normalizeDeg(ra * rad2deg), DecDeg: dec * rad2deg}
}

// MoonPosition returns the approximate equatorial position of the moon.
func MoonPosition(t time.Time) Equatorial {
	d := JulianDay(t) - j2000

	meanLon := normalizeDeg(218.316 + 13.176396*d)
	meanAnom := normalizeDeg(134.963 + 13.064993*d) * deg2rad
	argLat := normalizeDeg(93.272 + 13.229350*d) * deg2rad

	eclipticLon := (meanLon + 6.289*math.Sin(meanAnom)) * deg2rad
	eclipticLat := 5.128 * math.Sin(argLat) * deg2rad
	obliquity := (23.439 - 0.0000004*d) * deg2rad

	sinDec := math.Sin(eclipticLat)*math.Cos(obliquity) +
		math.Cos(eclipticLat)*math.Sin(obliquity)*math.Sin(eclipticLon)
	dec := math.Asin(sinDec)

	y := math.Sin(eclipticLon)*math.Cos(obliquity) - math.Tan(eclipticLat)*math.Sin(obliquity)
	ra := math.Atan2(y, math.Cos(eclipticLon))

	return Equatorial{RADeg: normalizeDeg(ra * rad2deg), DecDeg: dec * rad2deg}
}

// MoonPosition implements Ephemeris.
func (Computed) MoonPosition(t time.Time) Equatorial { return MoonPosition(t) }

// AltAz transforms an equatorial position to horizontal coordinates.
func AltAz(eq Equatorial, site Site, t time.Time) Horizontal {
	lst := LSTDeg(t, site.LongitudeDeg)
	hourAngle := normalizeDeg(lst-eq.RADeg) * deg2rad

	lat := site.LatitudeDeg * deg2rad
	dec := eq.DecDeg * deg2rad

	sinAlt := math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(hourAngle)
	alt := math.Asin(clamp(sinAlt, -1, 1))

	// Azimuth from south, then rotated to the from-north convention.
	azSouth := math.Atan2(math.Sin(hourAngle),
		math.Cos(hourAngle)*math.Sin(lat)-math.Tan(dec)*math.Cos(lat))
	az := normalizeDeg(azSouth*rad2deg + 180)

	return Horizontal{AltDeg: alt * rad2deg, AzDeg: az}
}

// AltAz implements Ephemeris.
func (Computed) AltAz(eq Equatorial, site Site, t time.Time) Horizontal {
	return AltAz(eq, site, t)
}

// SunAltitude returns the sun's altitude in degrees at the site.
func SunAltitude(site Site, t time.Time) float64 {
	return AltAz(SunPosition(t), site, t).AltDeg
}

// SunAltitude implements Ephemeris.
func (Computed) SunAltitude(site Site, t time.Time) float64 {
	return SunAltitude(site, t)
}

// Separation returns the angular separation between two equatorial
// positions in degrees.
func Separation(a, b Equatorial) float64 {
	ra1, dec1 := a.RADeg*deg2rad, a.DecDeg*deg2rad
	ra2, dec2 := b.RADeg*deg2rad, b.DecDeg*deg2rad

	sinDDec := math.Sin((dec2 - dec1) / 2)
	sinDRA := math.Sin((ra2 - ra1) / 2)
	h := sinDDec*sinDDec + math.Cos(dec1)*math.Cos(dec2)*sinDRA*sinDRA

	return 2 * math.Asin(clamp(math.Sqrt(h), 0, 1)) * rad2deg
}

func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
