// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

func (rt *Router) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := rt.state.ListTemplates()
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if templates == nil {
		templates = []store.Template{}
	}
	rt.writeJSON(w, http.StatusOK, templates)
}

func (rt *Router) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := rt.state.GetTemplate(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		rt.writeError(w, http.StatusNotFound, "no such template")
		return
	}
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt.writeJSON(w, http.StatusOK, tpl)
}

// handleCreateTemplate stores a new sync template. The ID is assigned
// server-side; the next scheduler cycle picks the template up.
func (rt *Router) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl store.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		rt.writeError(w, http.StatusBadRequest, "invalid template body: "+err.Error())
		return
	}
	if msg := validateTemplate(&tpl); msg != "" {
		rt.writeError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	tpl.ID = uuid.NewString()
	tpl.UpdatesAvailable = false
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := rt.state.PutTemplate(&tpl); err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt.logger.Info().Str("template", tpl.ID).Str("instance", tpl.InstanceID).Msg("Template created")
	rt.writeJSON(w, http.StatusCreated, tpl)
}

// handleUpdateTemplate replaces a template's definition. ID, creation time
// and the notify flag are server-owned and survive the update.
func (rt *Router) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := rt.state.GetTemplate(id)
	if errors.Is(err, store.ErrNotFound) {
		rt.writeError(w, http.StatusNotFound, "no such template")
		return
	}
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var tpl store.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		rt.writeError(w, http.StatusBadRequest, "invalid template body: "+err.Error())
		return
	}
	if msg := validateTemplate(&tpl); msg != "" {
		rt.writeError(w, http.StatusBadRequest, msg)
		return
	}

	tpl.ID = existing.ID
	tpl.CreatedAt = existing.CreatedAt
	tpl.UpdatesAvailable = existing.UpdatesAvailable
	tpl.UpdatedAt = time.Now().UTC()

	if err := rt.state.PutTemplate(&tpl); err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt.writeJSON(w, http.StatusOK, tpl)
}

func (rt *Router) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := rt.state.GetTemplate(id); errors.Is(err, store.ErrNotFound) {
		rt.writeError(w, http.StatusNotFound, "no such template")
		return
	} else if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := rt.state.DeleteTemplate(id); err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt.logger.Info().Str("template", id).Msg("Template deleted")
	rt.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func validateTemplate(tpl *store.Template) string {
	if tpl.InstanceID == "" {
		return "instanceId is required"
	}
	if tpl.Name == "" {
		return "name is required"
	}
	switch tpl.Strategy {
	case "":
		tpl.Strategy = store.StrategyAuto
	case store.StrategyAuto, store.StrategyNotify, store.StrategyManual:
	default:
		return "strategy must be auto, notify or manual"
	}
	if len(tpl.FormatTrashIDs)+len(tpl.GroupTrashIDs)+len(tpl.ProfileTrashIDs) == 0 {
		return "template selects nothing: set formatTrashIds, groupTrashIds or profileTrashIds"
	}
	return ""
}

type trackingResponse struct {
	Formats  []store.FormatTracking  `json:"formats"`
	Groups   []store.GroupTracking   `json:"groups"`
	Profiles []store.ProfileTracking `json:"profiles"`
}

// handleTracking returns everything the engine has pushed to an instance.
func (rt *Router) handleTracking(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceId")

	formats, err := rt.state.ListFormatTracking(instanceID)
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	groups, err := rt.state.ListGroupTracking(instanceID)
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	profiles, err := rt.state.ListProfileTracking(instanceID)
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := trackingResponse{Formats: formats, Groups: groups, Profiles: profiles}
	if resp.Formats == nil {
		resp.Formats = []store.FormatTracking{}
	}
	if resp.Groups == nil {
		resp.Groups = []store.GroupTracking{}
	}
	if resp.Profiles == nil {
		resp.Profiles = []store.ProfileTracking{}
	}
	rt.writeJSON(w, http.StatusOK, resp)
}
