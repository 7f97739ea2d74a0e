/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the scheduling engine over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paddock/internal/audit"
	"github.com/friendsincode/paddock/internal/registry"
	"github.com/friendsincode/paddock/internal/scheduler"
	"github.com/friendsincode/paddock/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	reg       *registry.Registry
	scheduler *scheduler.Service
	audit     *audit.Service
	logger    zerolog.Logger
}

// New creates the API router wrapper. audit may be nil, which disables
// the history endpoint.
func New(reg *registry.Registry, sched *scheduler.Service, auditSvc *audit.Service, logger zerolog.Logger) *API {
	return &API{
		reg:       reg,
		scheduler: sched,
		audit:     auditSvc,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all endpoints on the given router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", a.handleResourcesList)
			r.Post("/", a.handleResourcesCreate)
			r.Route("/{resourceID}", func(r chi.Router) {
				r.Get("/", a.handleResourcesGet)
				r.Put("/", a.handleResourcesUpdate)
				r.Delete("/", a.handleResourcesDelete)
				r.Get("/availability", a.handleAvailability)
			})
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", a.handleBookingsList)
			r.Post("/", a.handleBookingsCreate)
			r.Route("/{bookingID}", func(r chi.Router) {
				r.Get("/", a.handleBookingsGet)
				r.Post("/reschedule", a.handleBookingReschedule)
				r.Post("/cancel", a.handleBookingCancel)
			})
		})

		r.Route("/series", func(r chi.Router) {
			r.Get("/{seriesID}", a.handleSeriesGet)
			r.Post("/{seriesID}/reschedule", a.handleSeriesReschedule)
		})

		r.Get("/audit", a.handleAuditList)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		writeError(w, http.StatusNotFound, "audit_disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.audit.Recent(r.Context(), r.URL.Query().Get("resource_id"), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("listing audit entries")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
