/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog loads and validates the target catalog the dispatch
// scheduler draws from. File order is preserved; it is the scheduler's
// deterministic tie-break.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/muninn_obs/internal/models"
)

type fileTarget struct {
	ID           string                `yaml:"id"`
	Name         string                `yaml:"name"`
	RADeg        float64               `yaml:"ra_deg"`
	DecDeg       float64               `yaml:"dec_deg"`
	Priority     float64               `yaml:"priority"`
	ExposurePlan []models.ExposureStep `yaml:"exposure_plan"`
	Enabled      *bool                 `yaml:"enabled"`
}

type fileDoc struct {
	Targets []fileTarget `yaml:"targets"`
}

// Catalog holds the validated target list.
type Catalog struct {
	db     *gorm.DB
	logger zerolog.Logger

	mu      sync.RWMutex
	targets []models.Target
}

// New creates an empty catalog. A nil db skips persistence.
func New(db *gorm.DB, logger zerolog.Logger) *Catalog {
	return &Catalog{db: db, logger: logger}
}

// LoadFile parses and validates a catalog file, replacing the current list.
// Validation failures are fatal to the caller: scheduling from an invalid
// catalog is itself unsafe.
func (c *Catalog) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	targets, err := validate(doc.Targets)
	if err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}

	c.mu.Lock()
	c.targets = targets
	c.mu.Unlock()

	c.logger.Info().Int("targets", len(targets)).Str("path", path).Msg("catalog loaded")
	return nil
}

func validate(entries []fileTarget) ([]models.Target, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog holds no targets")
	}

	seen := make(map[string]struct{}, len(entries))
	targets := make([]models.Target, 0, len(entries))

	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("target %d: name required", i)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("target %q: duplicate name", e.Name)
		}
		seen[e.Name] = struct{}{}

		if e.RADeg < 0 || e.RADeg >= 360 {
			return nil, fmt.Errorf("target %q: ra %v out of range [0, 360)", e.Name, e.RADeg)
		}
		if e.DecDeg < -90 || e.DecDeg > 90 {
			return nil, fmt.Errorf("target %q: dec %v out of range [-90, 90]", e.Name, e.DecDeg)
		}
		if e.Priority < 0 {
			return nil, fmt.Errorf("target %q: priority must not be negative", e.Name)
		}
		if len(e.ExposurePlan) == 0 {
			return nil, fmt.Errorf("target %q: exposure plan required", e.Name)
		}
		for j, step := range e.ExposurePlan {
			if step.Seconds <= 0 {
				return nil, fmt.Errorf("target %q: plan step %d: exposure seconds must be positive", e.Name, j)
			}
			if step.Count <= 0 {
				return nil, fmt.Errorf("target %q: plan step %d: count must be positive", e.Name, j)
			}
		}

		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}

		targets = append(targets, models.Target{
			ID:           id,
			Name:         e.Name,
			RADeg:        e.RADeg,
			DecDeg:       e.DecDeg,
			Priority:     e.Priority,
			ExposurePlan: e.ExposurePlan,
			Enabled:      enabled,
		})
	}

	return targets, nil
}

// Sync upserts the loaded targets into the database, keyed by name so that
// re-imports keep stable IDs for the observed list.
func (c *Catalog) Sync(ctx context.Context) error {
	if c.db == nil {
		return nil
	}

	c.mu.RLock()
	targets := make([]models.Target, len(c.targets))
	copy(targets, c.targets)
	c.mu.RUnlock()

	for i := range targets {
		var existing models.Target
		err := c.db.WithContext(ctx).Where("name = ?", targets[i].Name).First(&existing).Error
		if err == nil {
			targets[i].ID = existing.ID
		}

		err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&targets[i]).Error
		if err != nil {
			return fmt.Errorf("sync target %q: %w", targets[i].Name, err)
		}
	}

	c.mu.Lock()
	c.targets = targets
	c.mu.Unlock()
	return nil
}

// Targets returns the catalog in file order.
func (c *Catalog) Targets() []models.Target {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Target, len(c.targets))
	copy(out, c.targets)
	return out
}

// Lookup finds a target by ID.
func (c *Catalog) Lookup(id string) (models.Target, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.targets {
		if t.ID == id {
			return t, true
		}
	}
	return models.Target{}, false
}
