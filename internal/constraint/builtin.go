/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package constraint

import (
	"github.com/friendsincode/muninn_obs/internal/astro"
	"github.com/friendsincode/muninn_obs/internal/models"
)

// moonVetoSepDeg is the separation below which a target is unobservable
// outright rather than merely penalized.
const moonVetoSepDeg = 5.0

// Altitude vetoes targets below the horizon profile at their current
// azimuth and scores survivors by their altitude margin.
type Altitude struct {
	Profile *HorizonProfile
	Weight  float64
}

// Name implements Constraint.
func (Altitude) Name() string { return "altitude" }

// Evaluate implements Constraint.
func (c Altitude) Evaluate(target models.Target, obs Context) Result {
	hz := obs.Ephemeris.AltAz(astro.Equatorial{RADeg: target.RADeg, DecDeg: target.DecDeg}, obs.Site, obs.Now)
	minAlt := c.Profile.MinAltitude(hz.AzDeg)

	if hz.AltDeg < minAlt {
		return Result{Veto: true}
	}
	// Normalized margin above the local horizon.
	margin := (hz.AltDeg - minAlt) / (90 - minAlt)
	return Result{Score: margin * c.Weight}
}

// MoonAvoidance penalizes targets close to the moon in proportion to how
// far inside the separation threshold they sit. Only near-coincidence is a
// veto; bright-time observing of distant targets stays possible.
type MoonAvoidance struct {
	MinSepDeg float64
	Weight    float64
}

// Name implements Constraint.
func (MoonAvoidance) Name() string { return "moon_avoidance" }

// Evaluate implements Constraint.
func (c MoonAvoidance) Evaluate(target models.Target, obs Context) Result {
	sep := astro.Separation(obs.Moon, astro.Equatorial{RADeg: target.RADeg, DecDeg: target.DecDeg})

	if sep < moonVetoSepDeg {
		return Result{Veto: true}
	}
	if sep < c.MinSepDeg {
		return Result{Score: -c.Weight * (c.MinSepDeg - sep) / c.MinSepDeg}
	}
	return Result{Score: c.Weight * sep / 180}
}

// AlreadyVisited excludes targets that met their planned exposure count
// tonight and de-prioritizes partially observed ones without excluding
// them, so an interrupted sequence can resume once better options run out.
type AlreadyVisited struct {
	HardVeto bool // veto complete targets instead of heavily penalizing
	Weight   float64
}

// completePenalty applies when HardVeto is off.
const completePenalty = 10.0

// Name implements Constraint.
func (AlreadyVisited) Name() string { return "already_visited" }

// Evaluate implements Constraint.
func (c AlreadyVisited) Evaluate(target models.Target, obs Context) Result {
	if obs.Observed == nil {
		return Result{}
	}
	taken, planned := obs.Observed.Progress(target.ID)
	if taken == 0 {
		return Result{}
	}

	if planned > 0 && taken >= planned {
		if c.HardVeto {
			return Result{Veto: true}
		}
		return Result{Score: -completePenalty * c.Weight}
	}

	// Partial visit: light penalty scaled by how much is already done.
	frac := float64(taken) / float64(max(planned, taken))
	return Result{Score: -c.Weight * frac}
}

// Priority contributes the target's static priority weight.
type Priority struct {
	Weight float64
}

// Name implements Constraint.
func (Priority) Name() string { return "priority" }

// Evaluate implements Constraint.
func (c Priority) Evaluate(target models.Target, _ Context) Result {
	return Result{Score: target.Priority * c.Weight}
}
