// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package metrics exposes Prometheus instrumentation for sync runs, guide
// fetches, the cache layer, and instance API traffic.
package metrics

import (
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync run metrics.
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trash_sync_runs_total",
			Help: "Total sync runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // trigger: scheduled|manual, outcome: success|partial|failure
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trash_sync_duration_seconds",
			Help:    "Duration of full sync runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"trigger"},
	)

	SyncItemChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trash_sync_item_changes_total",
			Help: "Custom format and profile changes applied, by instance and action",
		},
		[]string{"instance", "kind", "action"}, // kind: format|profile, action: create|update|delete
	)

	SyncItemErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trash_sync_item_errors_total",
			Help: "Isolated per-item sync failures, by instance and kind",
		},
		[]string{"instance", "kind"},
	)

	// Guide fetch and cache metrics.
	GuideFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trash_guide_fetches_total",
			Help: "Guide document fetches by service, config type and outcome",
		},
		[]string{"service", "config_type", "outcome"},
	)

	GuideCacheVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trash_guide_cache_version",
			Help: "Current cache entry version per service and config type",
		},
		[]string{"service", "config_type"},
	)

	GuideCacheFresh = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trash_guide_cache_fresh",
			Help: "Whether the cache entry is within its staleness window (1 fresh, 0 stale)",
		},
		[]string{"service", "config_type"},
	)

	// Instance API metrics.
	InstanceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trash_instance_requests_total",
			Help: "Instance API requests by instance and outcome",
		},
		[]string{"instance", "outcome"},
	)

	SchedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trash_scheduler_run_active",
			Help: "Whether a scheduled sync run is currently executing",
		},
	)
)

// recentErrorCap bounds the in-memory error ring.
const recentErrorCap = 50

// RecentError is one normalized sync error kept for the stats endpoint.
type RecentError struct {
	Instance   string    `json:"instance"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}

// SyncRecorder aggregates run outcomes for Prometheus and keeps a bounded
// ring of recent errors with volatile identifiers normalized, so the same
// fault maps to the same message across runs.
type SyncRecorder struct {
	mu     sync.Mutex
	errors []RecentError

	runs                int
	failures            int
	consecutiveFailures int
	lastRun             time.Time
}

// NewSyncRecorder creates a sync recorder.
func NewSyncRecorder() *SyncRecorder {
	return &SyncRecorder{}
}

var (
	hexIDPattern  = regexp.MustCompile(`\b[0-9a-f]{32}\b`)
	numberPattern = regexp.MustCompile(`\b\d{3,}\b`)
)

// normalizeMessage strips volatile identifiers so identical faults
// aggregate to identical messages.
func normalizeMessage(msg string) string {
	msg = hexIDPattern.ReplaceAllString(msg, "<id>")
	msg = numberPattern.ReplaceAllString(msg, "<n>")
	return msg
}

// RecordRun records one completed run.
func (r *SyncRecorder) RecordRun(trigger string, duration time.Duration, itemErrors, applied int, failed bool) {
	outcome := "success"
	switch {
	case failed:
		outcome = "failure"
	case itemErrors > 0:
		outcome = "partial"
	}
	SyncRuns.WithLabelValues(trigger, outcome).Inc()
	SyncDuration.WithLabelValues(trigger).Observe(duration.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	if failed {
		r.failures++
		r.consecutiveFailures++
	} else {
		r.consecutiveFailures = 0
	}
	r.lastRun = time.Now().UTC()
}

// RecordItemError counts one isolated item failure and remembers it.
func (r *SyncRecorder) RecordItemError(instance, kind, message string) {
	SyncItemErrors.WithLabelValues(instance, kind).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, RecentError{
		Instance:   instance,
		Kind:       kind,
		Message:    normalizeMessage(message),
		OccurredAt: time.Now().UTC(),
	})
	if len(r.errors) > recentErrorCap {
		r.errors = r.errors[len(r.errors)-recentErrorCap:]
	}
}

// Stats is the recorder's aggregate view.
type Stats struct {
	Runs     int `json:"runs"`
	Failures int `json:"failures"`

	// ConsecutiveFailures counts failed runs since the last success, the
	// health signal for a persistently broken cycle.
	ConsecutiveFailures int `json:"consecutiveFailures"`

	LastRun      *time.Time    `json:"lastRun,omitempty"`
	RecentErrors []RecentError `json:"recentErrors"`
}

// Snapshot returns the current aggregates and a copy of the error ring,
// newest last.
func (r *SyncRecorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		Runs:                r.runs,
		Failures:            r.failures,
		ConsecutiveFailures: r.consecutiveFailures,
		RecentErrors:        make([]RecentError, len(r.errors)),
	}
	copy(st.RecentErrors, r.errors)
	if !r.lastRun.IsZero() {
		last := r.lastRun
		st.LastRun = &last
	}
	return st
}
