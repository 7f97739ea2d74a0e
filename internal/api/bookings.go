/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/paddock/internal/interval"
	"github.com/friendsincode/paddock/internal/models"
	"github.com/friendsincode/paddock/internal/recurrence"
	"github.com/friendsincode/paddock/internal/registry"
	"github.com/friendsincode/paddock/internal/scheduler"
)

type bookingRequest struct {
	ResourceID  string          `json:"resource_id"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Rule        recurrence.Rule `json:"rule"`
	RequestedBy string          `json:"requested_by"`
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// conflictResponse is the 409 body: every conflict from the attempt.
type conflictResponse struct {
	Error     string `json:"error"`
	Conflicts any    `json:"conflicts"`
}

func (a *API) writeSchedulingError(w http.ResponseWriter, err error, op string) {
	var ce *scheduler.ConflictError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, conflictResponse{Error: "scheduling_conflict", Conflicts: ce.Conflicts})
	case errors.Is(err, registry.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "resource_not_found")
	case errors.Is(err, registry.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found")
	case errors.Is(err, registry.ErrSeriesNotFound):
		writeError(w, http.StatusNotFound, "series_not_found")
	case errors.Is(err, interval.ErrInvalidInterval),
		errors.Is(err, recurrence.ErrInvalidRule),
		errors.Is(err, recurrence.ErrUnboundedRecurrence):
		writeError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, scheduler.ErrNotReschedulable),
		errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_state")
	default:
		a.logger.Error().Err(err).Str("op", op).Msg("scheduling operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (a *API) handleBookingsCreate(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	result, err := a.scheduler.Schedule(r.Context(), scheduler.Request{
		ResourceID:  req.ResourceID,
		Start:       req.Start,
		End:         req.End,
		Rule:        req.Rule,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		a.writeSchedulingError(w, err, "schedule")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleBookingsList(w http.ResponseWriter, r *http.Request) {
	resourceID := r.URL.Query().Get("resource_id")

	var window *interval.Interval
	fromStr, toStr := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if fromStr != "" || toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to")
			return
		}
		iv, err := interval.New(from, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window")
			return
		}
		window = &iv
	}

	status := models.BookingStatus(r.URL.Query().Get("status"))

	bookings, err := a.reg.ListBookings(r.Context(), resourceID, window, status)
	if err != nil {
		a.logger.Error().Err(err).Msg("listing bookings")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (a *API) handleBookingsGet(w http.ResponseWriter, r *http.Request) {
	booking, err := a.reg.BookingByID(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		if errors.Is(err, registry.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "booking_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("loading booking")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (a *API) handleBookingReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	booking, err := a.scheduler.RescheduleBooking(r.Context(), chi.URLParam(r, "bookingID"), req.Start, req.End)
	if err != nil {
		a.writeSchedulingError(w, err, "reschedule_booking")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (a *API) handleBookingCancel(w http.ResponseWriter, r *http.Request) {
	booking, err := a.scheduler.Cancel(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		a.writeSchedulingError(w, err, "cancel_booking")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (a *API) handleSeriesGet(w http.ResponseWriter, r *http.Request) {
	series, err := a.reg.SeriesByID(r.Context(), chi.URLParam(r, "seriesID"))
	if err != nil {
		if errors.Is(err, registry.ErrSeriesNotFound) {
			writeError(w, http.StatusNotFound, "series_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("loading series")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (a *API) handleSeriesReschedule(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	result, err := a.scheduler.RescheduleSeries(r.Context(), chi.URLParam(r, "seriesID"), scheduler.Request{
		ResourceID:  req.ResourceID,
		Start:       req.Start,
		End:         req.End,
		Rule:        req.Rule,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		a.writeSchedulingError(w, err, "reschedule_series")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
