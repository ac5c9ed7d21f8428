// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guidecache"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/match"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/scheduler"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rt.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (rt *Router) writeError(w http.ResponseWriter, status int, msg string) {
	rt.writeJSON(w, status, errorResponse{Error: msg})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	rt.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrigger starts a manual sync cycle. ?force=true re-downloads guide
// documents even when the upstream commit is unchanged. An in-flight cycle
// yields 409.
func (rt *Router) handleTrigger(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	report, err := rt.scheduler.Trigger(r.Context(), scheduler.TriggerManual, force)
	if errors.Is(err, scheduler.ErrRunInProgress) {
		rt.writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}
	if err != nil && report == nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A report with isolated errors is still a completed run.
	rt.writeJSON(w, http.StatusOK, report)
}

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	rt.writeJSON(w, http.StatusOK, rt.scheduler.Stats())
}

func (rt *Router) handleGuideStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := rt.cache.GetAllStatuses()
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if statuses == nil {
		statuses = []guidecache.Status{}
	}
	rt.writeJSON(w, http.StatusOK, statuses)
}

func (rt *Router) handleGuideStatusOne(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	configType := chi.URLParam(r, "configType")

	status, err := rt.cache.GetStatus(service, configType)
	if errors.Is(err, guidecache.ErrNotCached) {
		rt.writeError(w, http.StatusNotFound, "no cached guide data for "+service+"/"+configType)
		return
	}
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt.writeJSON(w, http.StatusOK, status)
}

func (rt *Router) handleGuideVersion(w http.ResponseWriter, r *http.Request) {
	info, err := rt.versions.LatestCommit(r.Context())
	if err != nil {
		rt.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	rt.writeJSON(w, http.StatusOK, info)
}

type recommendationsResponse struct {
	Profile         string                   `json:"profile"`
	ProfileTrashID  string                   `json:"profileTrashId"`
	Recommendations []match.CFRecommendation `json:"recommendations"`
}

// handleRecommendations lists the formats a guide profile should carry,
// resolved from the cached guide documents.
func (rt *Router) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	profileTrashID := chi.URLParam(r, "profileTrashId")

	var profiles []guide.QualityProfile
	if err := rt.docs.Get(service, string(guide.ConfigQualityProfiles), &profiles); err != nil {
		rt.writeDocError(w, service, err)
		return
	}
	var profile *guide.QualityProfile
	for i := range profiles {
		if profiles[i].TrashID == profileTrashID {
			profile = &profiles[i]
			break
		}
	}
	if profile == nil {
		rt.writeError(w, http.StatusNotFound, "no guide profile with trash_id "+profileTrashID)
		return
	}

	var formats []guide.CustomFormat
	if err := rt.docs.Get(service, string(guide.ConfigCustomFormats), &formats); err != nil {
		rt.writeDocError(w, service, err)
		return
	}
	var groups []guide.CFGroup
	if err := rt.docs.Get(service, string(guide.ConfigCFGroups), &groups); err != nil {
		rt.writeDocError(w, service, err)
		return
	}

	recs, _ := match.BuildCFRecommendations(profile, formats, groups)
	if recs == nil {
		recs = []match.CFRecommendation{}
	}
	rt.writeJSON(w, http.StatusOK, recommendationsResponse{
		Profile:         profile.Name,
		ProfileTrashID:  profile.TrashID,
		Recommendations: recs,
	})
}

// handleListConflicts returns score conflicts recorded for an instance:
// formats whose guide score overwrote a deliberately set value.
func (rt *Router) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceId")

	conflicts, err := rt.state.ListScoreConflicts(instanceID)
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if conflicts == nil {
		conflicts = []store.ScoreConflict{}
	}
	rt.writeJSON(w, http.StatusOK, conflicts)
}

// handleClearConflicts acknowledges an instance's conflicts by deleting
// them.
func (rt *Router) handleClearConflicts(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceId")

	if err := rt.state.ClearScoreConflicts(instanceID); err != nil {
		rt.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (rt *Router) writeDocError(w http.ResponseWriter, service string, err error) {
	if errors.Is(err, guidecache.ErrNotCached) {
		rt.writeError(w, http.StatusNotFound, "no cached guide data for "+service)
		return
	}
	rt.writeError(w, http.StatusInternalServerError, err.Error())
}
