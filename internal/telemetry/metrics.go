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

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

var (
	// HTTPRequestsTotal counts API requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddock_http_requests_total",
		Help: "Total HTTP requests processed",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paddock_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// SchedulingRequestsTotal counts scheduling attempts by outcome
	// (committed, conflict, error).
	SchedulingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddock_scheduling_requests_total",
		Help: "Scheduling attempts by outcome",
	}, []string{"outcome"})

	// ConflictsDetectedTotal counts individual booking conflicts reported
	// back to callers.
	ConflictsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paddock_conflicts_detected_total",
		Help: "Booking conflicts detected during scheduling",
	})

	// BookingsScheduledTotal counts bookings committed to the calendar.
	BookingsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paddock_bookings_scheduled_total",
		Help: "Bookings committed by the scheduler",
	})

	// SweepTransitionsTotal counts confirmed bookings moved to completed
	// by the background sweep.
	SweepTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paddock_sweep_transitions_total",
		Help: "Bookings transitioned to completed by the sweep loop",
	})

	// SweepRunsTotal counts sweep loop iterations.
	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paddock_sweep_runs_total",
		Help: "Completion sweep iterations",
	})
)
