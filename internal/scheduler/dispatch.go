/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler implements dispatch scheduling: every call re-ranks the
// whole candidate catalog against the current sky, because visibility and
// moon geometry shift continuously and a target rejected an hour ago may now
// be the best choice.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_obs/internal/astro"
	"github.com/friendsincode/muninn_obs/internal/constraint"
	"github.com/friendsincode/muninn_obs/internal/events"
	"github.com/friendsincode/muninn_obs/internal/models"
	"github.com/friendsincode/muninn_obs/internal/telemetry"
)

// ErrNoTarget indicates every candidate was vetoed or the catalog is empty.
// It is a normal overnight outcome, not a fault.
var ErrNoTarget = errors.New("no observable target")

// Catalog supplies the candidate targets. Slice order is the deterministic
// tie-break, so implementations must return a stable ordering.
type Catalog interface {
	Targets() []models.Target
}

// Dispatch selects the best next target under the constraint set.
type Dispatch struct {
	catalog     Catalog
	constraints []constraint.Constraint
	site        astro.Site
	ephemeris   astro.Ephemeris
	observed    constraint.ObservedProgress
	bus         *events.Bus
	logger      zerolog.Logger
}

// New creates a dispatch scheduler. Constraint parameters are fixed at
// construction; swapping weights means building a new scheduler.
func New(catalog Catalog, constraints []constraint.Constraint, site astro.Site, eph astro.Ephemeris, observed constraint.ObservedProgress, bus *events.Bus, logger zerolog.Logger) *Dispatch {
	return &Dispatch{
		catalog:     catalog,
		constraints: constraints,
		site:        site,
		ephemeris:   eph,
		observed:    observed,
		bus:         bus,
		logger:      logger,
	}
}

// Select evaluates every candidate fresh and returns the highest scoring
// unvetoed target. Ties resolve to the earliest catalog entry, so repeated
// calls under identical conditions return the same target.
func (d *Dispatch) Select(ctx context.Context, now time.Time) (*models.Target, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "dispatch.select")
	defer span.End()
	_ = ctx

	obsCtx := constraint.Context{
		Now:       now,
		Site:      d.site,
		Ephemeris: d.ephemeris,
		Moon:      d.ephemeris.MoonPosition(now),
		Observed:  d.observed,
	}

	var (
		best      *models.Target
		bestScore float64
	)

	for _, target := range d.catalog.Targets() {
		if !target.Enabled {
			continue
		}

		score := 0.0
		vetoed := false
		for _, c := range d.constraints {
			res := c.Evaluate(target, obsCtx)
			if res.Veto {
				d.logger.Debug().Str("target", target.Name).Str("constraint", c.Name()).
					Msg("candidate vetoed")
				telemetry.SchedulerVetoesTotal.WithLabelValues(c.Name()).Inc()
				vetoed = true
				break
			}
			score += res.Score
		}
		if vetoed {
			continue
		}

		d.logger.Debug().Str("target", target.Name).Float64("score", score).
			Msg("candidate scored")

		if best == nil || score > bestScore {
			t := target
			best = &t
			bestScore = score
		}
	}

	if best == nil {
		telemetry.SchedulerExhaustedTotal.Inc()
		if d.bus != nil {
			d.bus.Publish(events.EventSchedulerExhausted, events.Payload{"at": now})
		}
		return nil, ErrNoTarget
	}

	telemetry.SchedulerSelectionsTotal.Inc()
	d.logger.Info().Str("target", best.Name).Float64("score", bestScore).
		Msg("selected next target")
	if d.bus != nil {
		d.bus.Publish(events.EventSchedulerSelected, events.Payload{
			"target_id":   best.ID,
			"target_name": best.Name,
			"score":       bestScore,
			"at":          now,
		})
	}

	return best, nil
}
