/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package report produces the end-of-night summary during housekeeping.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/muninn_obs/internal/events"
	"github.com/friendsincode/muninn_obs/internal/models"
	"github.com/friendsincode/muninn_obs/internal/obslog"
)

// Generator turns the night's observed list into a persisted report and
// clears the working set for the next night.
type Generator struct {
	db     *gorm.DB
	obsLog *obslog.Log
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates a report generator. A nil db skips persistence.
func New(db *gorm.DB, obsLog *obslog.Log, bus *events.Bus, logger zerolog.Logger) *Generator {
	return &Generator{db: db, obsLog: obsLog, bus: bus, logger: logger}
}

// CloseNight builds and stores the report for the night that just ended,
// then clears the observed list.
func (g *Generator) CloseNight(ctx context.Context, now time.Time) error {
	night := g.obsLog.Night()
	records := g.obsLog.Clear()
	if night == "" {
		return nil
	}

	rep := Build(night, now, records)

	g.logger.Info().Str("night", night).
		Int("complete", rep.TargetsComplete).
		Int("aborted", rep.TargetsAborted).
		Int("exposures", rep.ExposuresTotal).
		Float64("exposure_seconds", rep.ExposureSeconds).
		Msg("night report")

	if g.bus != nil {
		g.bus.Publish(events.EventNightReport, events.Payload{
			"night":            night,
			"targets_complete": rep.TargetsComplete,
			"targets_aborted":  rep.TargetsAborted,
			"exposures":        rep.ExposuresTotal,
			"exposure_seconds": rep.ExposureSeconds,
		})
	}

	if g.db == nil {
		return nil
	}
	// A restart mid-housekeeping can close the same night twice; the
	// second write replaces the first.
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "night"}},
			UpdateAll: true,
		}).
		Create(&rep).Error
}

// Build summarizes a night's records.
func Build(night string, now time.Time, records []models.ObservationRecord) models.NightReport {
	rep := models.NightReport{
		ID:          uuid.New().String(),
		Night:       night,
		GeneratedAt: now,
	}

	perTarget := make(map[string]map[string]any)
	for _, rec := range records {
		switch rec.Status {
		case models.ObservationComplete:
			rep.TargetsComplete++
		case models.ObservationAborted:
			rep.TargetsAborted++
		}
		rep.ExposuresTotal += rec.ExposuresTaken
		rep.ExposureSeconds += rec.ExposureSeconds

		entry, ok := perTarget[rec.TargetName]
		if !ok {
			entry = map[string]any{
				"exposures_taken":  0,
				"exposure_seconds": 0.0,
				"attempts":         0,
				"complete":         false,
			}
			perTarget[rec.TargetName] = entry
		}
		entry["exposures_taken"] = entry["exposures_taken"].(int) + rec.ExposuresTaken
		entry["exposure_seconds"] = entry["exposure_seconds"].(float64) + rec.ExposureSeconds
		entry["attempts"] = entry["attempts"].(int) + 1
		if rec.Status == models.ObservationComplete {
			entry["complete"] = true
		}
	}

	rep.Summary = map[string]any{"targets": perTarget}
	return rep
}
