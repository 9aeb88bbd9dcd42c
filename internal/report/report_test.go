/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package report

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_obs/internal/models"
	"github.com/friendsincode/muninn_obs/internal/obslog"
)

func TestBuildSummarizesNight(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	records := []models.ObservationRecord{
		{TargetID: "a", TargetName: "M31", ExposuresTaken: 4, ExposuresPlanned: 4,
			ExposureSeconds: 480, Status: models.ObservationComplete},
		{TargetID: "b", TargetName: "M42", ExposuresTaken: 1, ExposuresPlanned: 6,
			ExposureSeconds: 120, Status: models.ObservationAborted},
		{TargetID: "b", TargetName: "M42", ExposuresTaken: 5, ExposuresPlanned: 6,
			ExposureSeconds: 600, Status: models.ObservationComplete},
	}

	rep := Build("2026-03-01", now, records)

	if rep.Night != "2026-03-01" {
		t.Errorf("Night = %s", rep.Night)
	}
	if rep.TargetsComplete != 2 || rep.TargetsAborted != 1 {
		t.Errorf("complete/aborted = %d/%d, want 2/1", rep.TargetsComplete, rep.TargetsAborted)
	}
	if rep.ExposuresTotal != 10 {
		t.Errorf("ExposuresTotal = %d, want 10", rep.ExposuresTotal)
	}
	if rep.ExposureSeconds != 1200 {
		t.Errorf("ExposureSeconds = %v, want 1200", rep.ExposureSeconds)
	}

	targets := rep.Summary["targets"].(map[string]map[string]any)
	m42 := targets["M42"]
	if m42["attempts"].(int) != 2 || m42["exposures_taken"].(int) != 6 {
		t.Errorf("M42 summary = %+v", m42)
	}
	if !m42["complete"].(bool) {
		t.Error("M42 should be marked complete after its second attempt")
	}
}

func TestBuildEmptyNight(t *testing.T) {
	rep := Build("2026-03-01", time.Now(), nil)
	if rep.TargetsComplete != 0 || rep.TargetsAborted != 0 || rep.ExposuresTotal != 0 {
		t.Errorf("empty night report not zeroed: %+v", rep)
	}
}

func TestCloseNightClearsObservedList(t *testing.T) {
	log := obslog.New(nil, zerolog.Nop())
	ctx := context.Background()
	if err := log.BeginNight(ctx, "2026-03-01"); err != nil {
		t.Fatalf("BeginNight: %v", err)
	}
	if err := log.Append(ctx, models.ObservationRecord{
		TargetID: "a", TargetName: "M31",
		ExposuresTaken: 2, ExposuresPlanned: 2,
		Status: models.ObservationComplete,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	gen := New(nil, log, nil, zerolog.Nop())
	if err := gen.CloseNight(ctx, time.Now()); err != nil {
		t.Fatalf("CloseNight: %v", err)
	}
	if got := len(log.Records()); got != 0 {
		t.Errorf("observed list holds %d records after CloseNight, want 0", got)
	}
}

func TestCloseNightWithoutOpenNightIsNoop(t *testing.T) {
	log := obslog.New(nil, zerolog.Nop())
	gen := New(nil, log, nil, zerolog.Nop())
	if err := gen.CloseNight(context.Background(), time.Now()); err != nil {
		t.Fatalf("CloseNight: %v", err)
	}
}
