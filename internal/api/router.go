// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package api provides the HTTP management surface using the Chi router:
// sync triggering, scheduler stats, guide cache status, and health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guidecache"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/scheduler"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

// SyncScheduler is the scheduler surface the API exposes.
type SyncScheduler interface {
	Trigger(ctx context.Context, trigger string, force bool) (*scheduler.RunReport, error)
	Stats() scheduler.Stats
}

// CacheStatus reads guide cache bookkeeping.
type CacheStatus interface {
	GetAllStatuses() ([]guidecache.Status, error)
	GetStatus(service, configType string) (*guidecache.Status, error)
}

// DocReader loads cached guide documents.
type DocReader interface {
	Get(service, configType string, out any) error
}

// VersionSource resolves the upstream guide revision.
type VersionSource interface {
	LatestCommit(ctx context.Context) (*guide.VersionInfo, error)
}

// StateStore is the persistence surface the API manages: sync templates,
// tracking records, and recorded score conflicts.
type StateStore interface {
	PutTemplate(tpl *store.Template) error
	GetTemplate(id string) (*store.Template, error)
	ListTemplates() ([]store.Template, error)
	DeleteTemplate(id string) error

	ListFormatTracking(instanceID string) ([]store.FormatTracking, error)
	ListGroupTracking(instanceID string) ([]store.GroupTracking, error)
	ListProfileTracking(instanceID string) ([]store.ProfileTracking, error)

	ListScoreConflicts(instanceID string) ([]store.ScoreConflict, error)
	ClearScoreConflicts(instanceID string) error
}

// Config configures the HTTP layer.
type Config struct {
	// CORSOrigins lists allowed browser origins. Empty disables CORS.
	CORSOrigins []string

	// RateLimit is requests per RateLimitWindow per client IP.
	// Default: 100 per minute.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Router wires handlers into the HTTP mux.
type Router struct {
	cfg       Config
	scheduler SyncScheduler
	cache     CacheStatus
	docs      DocReader
	versions  VersionSource
	state     StateStore
	logger    zerolog.Logger
}

// NewRouter creates the management router.
func NewRouter(cfg Config, sched SyncScheduler, cache CacheStatus, docs DocReader, versions VersionSource, state StateStore, logger zerolog.Logger) *Router {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Router{
		cfg:       cfg,
		scheduler: sched,
		cache:     cache,
		docs:      docs,
		versions:  versions,
		state:     state,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Handler builds the full route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if len(rt.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", rt.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.cfg.RateLimit, rt.cfg.RateLimitWindow))

		r.Post("/scheduler/trigger", rt.handleTrigger)
		r.Get("/scheduler/stats", rt.handleStats)
		r.Get("/guide/status", rt.handleGuideStatus)
		r.Get("/guide/status/{service}/{configType}", rt.handleGuideStatusOne)
		r.Get("/guide/version", rt.handleGuideVersion)
		r.Get("/guide/recommendations/{service}/{profileTrashId}", rt.handleRecommendations)

		r.Get("/templates", rt.handleListTemplates)
		r.Post("/templates", rt.handleCreateTemplate)
		r.Get("/templates/{id}", rt.handleGetTemplate)
		r.Put("/templates/{id}", rt.handleUpdateTemplate)
		r.Delete("/templates/{id}", rt.handleDeleteTemplate)

		r.Get("/tracking/{instanceId}", rt.handleTracking)
		r.Get("/conflicts/{instanceId}", rt.handleListConflicts)
		r.Delete("/conflicts/{instanceId}", rt.handleClearConflicts)
	})

	return r
}
