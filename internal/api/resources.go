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
	"github.com/friendsincode/paddock/internal/registry"
)

type resourceRequest struct {
	Name            string                 `json:"name"`
	Kind            models.ResourceKind    `json:"kind"`
	AdjacencyPolicy models.AdjacencyPolicy `json:"adjacency_policy"`
	Notes           string                 `json:"notes"`
}

func (a *API) handleResourcesList(w http.ResponseWriter, r *http.Request) {
	kind := models.ResourceKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	resources, err := a.reg.ListResources(r.Context(), kind)
	if err != nil {
		a.logger.Error().Err(err).Msg("listing resources")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (a *API) handleResourcesCreate(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}
	if !req.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}

	res := &models.Resource{
		Name:            req.Name,
		Kind:            req.Kind,
		AdjacencyPolicy: req.AdjacencyPolicy,
		Notes:           req.Notes,
	}
	if err := a.reg.CreateResource(r.Context(), res); err != nil {
		a.logger.Error().Err(err).Msg("creating resource")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleResourcesGet(w http.ResponseWriter, r *http.Request) {
	res, err := a.reg.ResourceByID(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		if errors.Is(err, registry.ErrResourceNotFound) {
			writeError(w, http.StatusNotFound, "resource_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("loading resource")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleResourcesUpdate(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if !req.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}

	res := &models.Resource{
		ID:              chi.URLParam(r, "resourceID"),
		Name:            req.Name,
		Kind:            req.Kind,
		AdjacencyPolicy: req.AdjacencyPolicy,
		Notes:           req.Notes,
	}
	if err := a.reg.UpdateResource(r.Context(), res); err != nil {
		if errors.Is(err, registry.ErrResourceNotFound) {
			writeError(w, http.StatusNotFound, "resource_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("updating resource")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleResourcesDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.DeleteResource(r.Context(), chi.URLParam(r, "resourceID")); err != nil {
		if errors.Is(err, registry.ErrResourceNotFound) {
			writeError(w, http.StatusNotFound, "resource_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("deleting resource")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to")
		return
	}
	window, err := interval.New(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window")
		return
	}

	free, err := a.scheduler.Availability(r.Context(), chi.URLParam(r, "resourceID"), window)
	if err != nil {
		if errors.Is(err, registry.ErrResourceNotFound) {
			writeError(w, http.StatusNotFound, "resource_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("computing availability")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"free": free})
}
