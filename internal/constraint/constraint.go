/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package constraint holds the target-scoring rules the dispatch scheduler
// applies. Each rule is a pure function over (target, observer context): a
// veto excludes the target outright, otherwise its score contributions sum.
package constraint

import (
	"time"

	"github.com/friendsincode/muninn_obs/internal/astro"
	"github.com/friendsincode/muninn_obs/internal/models"
)

// Result is one constraint's verdict for one target.
type Result struct {
	Veto  bool
	Score float64
}

// ObservedProgress reports how far tonight's observing has gotten on a
// target. Implemented by the observed list.
type ObservedProgress interface {
	Progress(targetID string) (taken, planned int)
}

// Context carries everything a constraint may consult. It is computed once
// per scheduler call and shared across all candidates, so evaluation stays
// cheap and deterministic within a call.
type Context struct {
	Now       time.Time
	Site      astro.Site
	Ephemeris astro.Ephemeris
	Moon      astro.Equatorial
	Observed  ObservedProgress
}

// Constraint scores or vetoes a candidate target.
type Constraint interface {
	Name() string
	Evaluate(target models.Target, obs Context) Result
}
