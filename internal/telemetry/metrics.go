/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts control loop ticks by the state they were evaluated in.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_ticks_total",
		Help: "Control loop ticks by state.",
	}, []string{"state"})

	// TransitionsTotal counts state transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_transitions_total",
		Help: "State machine transitions.",
	}, []string{"from", "to"})

	// ForcedParkingsTotal counts safety-forced trips to parking.
	ForcedParkingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_forced_parkings_total",
		Help: "Safety-forced transitions toward parking by failing check.",
	}, []string{"check"})

	// SafetyCheckSafe reports the debounced per-check state (1 safe, 0 unsafe).
	SafetyCheckSafe = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "muninn_safety_check_safe",
		Help: "Debounced safety check state (1 safe, 0 unsafe).",
	}, []string{"check"})

	// SafetyUnsafeReadingsTotal counts raw unsafe readings per check.
	SafetyUnsafeReadingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_safety_unsafe_readings_total",
		Help: "Raw unsafe readings per safety check, including stale ones.",
	}, []string{"check"})

	// SchedulerSelectionsTotal counts successful target selections.
	SchedulerSelectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_scheduler_selections_total",
		Help: "Dispatch scheduler calls that produced a target.",
	})

	// SchedulerExhaustedTotal counts selections with no valid target.
	SchedulerExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_scheduler_exhausted_total",
		Help: "Dispatch scheduler calls with every candidate vetoed or empty.",
	})

	// SchedulerVetoesTotal counts candidate vetoes per constraint.
	SchedulerVetoesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_scheduler_vetoes_total",
		Help: "Candidates vetoed during selection by constraint.",
	}, []string{"constraint"})

	// ExposuresTotal counts completed exposures.
	ExposuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_exposures_total",
		Help: "Exposures completed by the observation executor.",
	})

	// ObservationsTotal counts finished observations by terminal status.
	ObservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_observations_total",
		Help: "Observations archived to the observed list by status.",
	}, []string{"status"})

	// HardwareCommandErrorsTotal counts explicit driver command failures.
	HardwareCommandErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_hardware_command_errors_total",
		Help: "Hardware capability calls that returned an error.",
	}, []string{"command"})

	// CommandLeaseHeld reports whether this instance holds the hardware
	// command lease (1 held, 0 standby).
	CommandLeaseHeld = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "muninn_command_lease_held",
		Help: "Hardware command lease state (1 held, 0 standby).",
	}, []string{"instance"})

	// CommandLeaseChanges counts lease acquisitions and losses.
	CommandLeaseChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_command_lease_changes_total",
		Help: "Hardware command lease transitions.",
	}, []string{"instance", "change"})

	// StateValue reports the current state (1 for current, 0 otherwise).
	StateValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "muninn_state",
		Help: "Current state machine state (1 for the active state).",
	}, []string{"state"})
)

// SetCurrentState marks one state active on the StateValue gauge.
func SetCurrentState(states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		StateValue.WithLabelValues(s).Set(v)
	}
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
