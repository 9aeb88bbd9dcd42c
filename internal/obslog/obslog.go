/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package obslog keeps the per-night observed list: the append-only history
// of completed and aborted observations the already-visited constraint and
// the night report consume.
package obslog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_obs/internal/models"
)

// Log is the observed list. The in-memory view is authoritative for the
// running night; every append is also persisted so a controller restart
// mid-night does not forget what was already observed.
type Log struct {
	db     *gorm.DB
	logger zerolog.Logger

	mu      sync.Mutex
	night   string
	records []models.ObservationRecord
}

// New creates an observed list backed by db. A nil db keeps the list
// memory-only, which the tests use.
func New(db *gorm.DB, logger zerolog.Logger) *Log {
	return &Log{db: db, logger: logger}
}

// Night returns the current night key (UTC date the night started).
func (l *Log) Night() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.night
}

// BeginNight resets the in-memory view for a new night and reloads any
// records already persisted for it.
func (l *Log) BeginNight(ctx context.Context, night string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.night = night
	l.records = nil

	if l.db == nil {
		return nil
	}

	var persisted []models.ObservationRecord
	err := l.db.WithContext(ctx).
		Where("night = ?", night).
		Order("started_at ASC").
		Find(&persisted).Error
	if err != nil {
		return err
	}
	l.records = persisted

	if len(persisted) > 0 {
		l.logger.Info().Int("records", len(persisted)).Str("night", night).
			Msg("restored observed list for night")
	}
	return nil
}

// Append archives a finished observation.
func (l *Log) Append(ctx context.Context, rec models.ObservationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Night == "" {
		rec.Night = l.night
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	l.records = append(l.records, rec)

	if l.db != nil {
		if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return err
		}
	}
	return nil
}

// Records returns a copy of the night's records in append order.
func (l *Log) Records() []models.ObservationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ObservationRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Progress sums exposures taken and planned for a target tonight.
func (l *Log) Progress(targetID string) (taken, planned int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if rec.TargetID != targetID {
			continue
		}
		taken += rec.ExposuresTaken
		if rec.ExposuresPlanned > planned {
			planned = rec.ExposuresPlanned
		}
	}
	return taken, planned
}

// Clear empties the in-memory view and returns what it held. Persisted rows
// stay in the database as history; only the night's working set resets.
func (l *Log) Clear() []models.ObservationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	cleared := l.records
	l.records = nil
	return cleared
}
