// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package telemetry holds the prometheus instruments of the control core.
package telemetry

import (
	"net/http"

	"heatpilot/v2/pkg/eventbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	CycleApplied     = "applied"
	CycleHeld        = "held"
	CycleRejected    = "rejected"
	CycleWriteFailed = "write_failed"
	CycleAborted     = "aborted"
)

// Guard verdicts.
const (
	GuardAccepted = "accepted"
	GuardModified = "modified"
	GuardRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	Cycles           *prometheus.CounterVec
	GuardVerdicts    *prometheus.CounterVec
	WriteFailures    *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	Evaluations      *prometheus.CounterVec
	ReadingsStored   *prometheus.CounterVec
	ReadingsRejected *prometheus.CounterVec
}

// New creates the instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatpilot",
			Name:      "control_cycles_total",
			Help:      "Control cycles by outcome.",
		}, []string{"outcome"}),
		GuardVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatpilot",
			Name:      "guard_verdicts_total",
			Help:      "Safety guard verdicts.",
		}, []string{"verdict"}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatpilot",
			Name:      "hardware_write_failures_total",
			Help:      "Failed hardware writes by parameter and kind.",
		}, []string{"parameter", "kind"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heatpilot",
			Name:      "control_cycle_duration_seconds",
			Help:      "Duration of a control cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatpilot",
			Name:      "evaluations_total",
			Help:      "Decision evaluations by verdict.",
		}, []string{"verdict"}),
		ReadingsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatpilot",
			Name:      "readings_stored_total",
			Help:      "Readings stored by parameter.",
		}, []string{"parameter"}),
		ReadingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatpilot",
			Name:      "readings_rejected_total",
			Help:      "Readings dropped as unreadable or implausible, by parameter.",
		}, []string{"parameter"}),
	}
	reg.MustRegister(
		m.Cycles, m.GuardVerdicts, m.WriteFailures, m.CycleDuration,
		m.Evaluations, m.ReadingsStored, m.ReadingsRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// WatchBus exports the event bus counters.
func (m *Metrics) WatchBus(b *eventbus.Bus) {
	counter := func(name, help string, get func(eventbus.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "heatpilot",
			Subsystem: "eventbus",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(b.Stats())) })
	}
	m.registry.MustRegister(
		counter("published_total", "Events published.", func(s eventbus.Stats) int64 { return s.Published }),
		counter("delivered_total", "Events delivered to subscribers.", func(s eventbus.Stats) int64 { return s.Delivered }),
		counter("replaced_total", "Unread events replaced by newer ones.", func(s eventbus.Stats) int64 { return s.Replaced }),
		counter("dropped_total", "Events dropped.", func(s eventbus.Stats) int64 { return s.Dropped }),
	)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
