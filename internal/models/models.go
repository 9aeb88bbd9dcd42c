/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// ObservationStatus enumerates the lifecycle of an observation record.
type ObservationStatus string

const (
	ObservationSlewing  ObservationStatus = "slewing"
	ObservationTracking ObservationStatus = "tracking"
	ObservationExposing ObservationStatus = "exposing"
	ObservationComplete ObservationStatus = "complete"
	ObservationAborted  ObservationStatus = "aborted"
)

// Terminal reports whether the status ends an observation.
func (s ObservationStatus) Terminal() bool {
	return s == ObservationComplete || s == ObservationAborted
}

// ExposureStep is one entry in a target's exposure plan.
type ExposureStep struct {
	Filter  string  `json:"filter" yaml:"filter"`
	Seconds float64 `json:"seconds" yaml:"seconds"`
	Count   int     `json:"count" yaml:"count"`
}

// Target is a catalog entry the dispatch scheduler can select.
type Target struct {
	ID           string         `gorm:"type:uuid;primaryKey" yaml:"id"`
	Name         string         `gorm:"uniqueIndex" yaml:"name"`
	RADeg        float64        `gorm:"column:ra_deg" yaml:"ra_deg"`
	DecDeg       float64        `gorm:"column:dec_deg" yaml:"dec_deg"`
	Priority     float64        `yaml:"priority"`
	ExposurePlan []ExposureStep `gorm:"serializer:json" yaml:"exposure_plan"`
	Enabled      bool           `yaml:"enabled"`
	CreatedAt    time.Time      `yaml:"-"`
	UpdatedAt    time.Time      `yaml:"-"`
}

// PlannedExposures returns the total exposure count across the plan.
func (t Target) PlannedExposures() int {
	total := 0
	for _, step := range t.ExposurePlan {
		total += step.Count
	}
	return total
}

// ObservationRecord is the archived outcome of one observation attempt.
// Records accumulate per night and are cleared during housekeeping.
type ObservationRecord struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	TargetID         string `gorm:"type:uuid;index"`
	TargetName       string `gorm:"index"`
	Night            string `gorm:"type:varchar(10);index"`
	StartedAt        time.Time
	EndedAt          time.Time
	ExposuresTaken   int
	ExposuresPlanned int
	ExposureSeconds  float64
	Status           ObservationStatus `gorm:"type:varchar(16)"`
	Detail           string            `gorm:"type:text"`
	CreatedAt        time.Time
}

// SafetyEvent logs a change in a safety check's reported state.
type SafetyEvent struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	CheckName string `gorm:"type:varchar(32);index"`
	Safe      bool
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time
}

// NightReport summarizes one observing night.
type NightReport struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	Night           string `gorm:"type:varchar(10);uniqueIndex"`
	GeneratedAt     time.Time
	TargetsComplete int
	TargetsAborted  int
	ExposuresTotal  int
	ExposureSeconds float64
	Summary         map[string]any `gorm:"serializer:json"`
	CreatedAt       time.Time
}
