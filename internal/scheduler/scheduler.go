// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package scheduler runs the periodic sync cycle: refresh the guide cache,
// align quality-size definitions, then walk sync templates per their update
// strategy. One cycle runs at a time; overlapping triggers are refused,
// never queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/pipeline"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

// ErrRunInProgress is returned when a cycle is triggered while another is
// still executing.
var ErrRunInProgress = errors.New("sync run already in progress")

// TriggerScheduled and TriggerManual label what started a cycle.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Refresher updates the guide cache from upstream.
type Refresher interface {
	RefreshAll(ctx context.Context, force bool) (*guide.RefreshSummary, error)
}

// CacheReader loads cached guide documents.
type CacheReader interface {
	Get(service, configType string, out any) error
}

// Runner applies one instance sync.
type Runner interface {
	Sync(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// InstanceAPI is the full instance surface the scheduler drives: the sync
// executor's slice plus quality-definition operations.
type InstanceAPI interface {
	pipeline.InstanceAPI
	GetQualityDefinitions(ctx context.Context) ([]arr.QualityDefinition, error)
	UpdateQualityDefinitions(ctx context.Context, defs []arr.QualityDefinition) ([]arr.QualityDefinition, error)
	ResetQualityDefinitions(ctx context.Context) ([]arr.QualityDefinition, error)
}

// Instance is one configured *arr instance the scheduler manages.
type Instance struct {
	ID           string
	Service      guide.ServiceType
	AllowDeletes bool
	API          InstanceAPI
}

// Config configures the scheduler.
type Config struct {
	// CheckInterval is the cycle period. Default: 6h.
	CheckInterval time.Duration

	// Enabled controls whether the periodic loop runs; manual triggers
	// work either way.
	Enabled bool

	// ReversedQualityOrder flips min/max when applying quality-size
	// limits, for guide documents published in the anticipated new item
	// ordering. Off until upstream switches.
	ReversedQualityOrder bool
}

// Scheduler owns the periodic sync cycle.
type Scheduler struct {
	cfg       Config
	refresher Refresher
	cache     CacheReader
	runner    Runner
	store     store.Store
	recorder  *metrics.SyncRecorder
	instances map[string]Instance
	logger    zerolog.Logger
	now       func() time.Time

	// inFlight is the re-entrancy guard: a cycle that finds it set
	// returns ErrRunInProgress instead of waiting.
	inFlight atomic.Bool

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	lastRun   *RunReport
	nextCheck *time.Time
}

// New creates a scheduler.
func New(cfg Config, refresher Refresher, cache CacheReader, runner Runner, st store.Store, recorder *metrics.SyncRecorder, instances []Instance, logger zerolog.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 6 * time.Hour
	}

	byID := make(map[string]Instance, len(instances))
	for _, inst := range instances {
		byID[inst.ID] = inst
	}

	return &Scheduler{
		cfg:       cfg,
		refresher: refresher,
		cache:     cache,
		runner:    runner,
		store:     st,
		recorder:  recorder,
		instances: byID,
		logger:    logger.With().Str("component", "update-scheduler").Logger(),
		now:       time.Now,
	}
}

// Start begins the periodic loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.cfg.Enabled {
		s.logger.Info().Msg("Scheduled sync disabled, manual triggers only")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	s.logger.Info().
		Dur("check_interval", s.cfg.CheckInterval).
		Int("instances", len(s.instances)).
		Msg("Starting update scheduler")

	go s.run(ctx)
	return nil
}

// Stop stops the loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Update scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start.
	s.setNextCheck(s.now().Add(s.cfg.CheckInterval))
	s.scheduledCycle(ctx)

	for {
		select {
		case <-ticker.C:
			s.setNextCheck(s.now().Add(s.cfg.CheckInterval))
			s.scheduledCycle(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) setNextCheck(t time.Time) {
	s.mu.Lock()
	s.nextCheck = &t
	s.mu.Unlock()
}

func (s *Scheduler) scheduledCycle(ctx context.Context) {
	if _, err := s.Trigger(ctx, TriggerScheduled, false); err != nil && !errors.Is(err, ErrRunInProgress) {
		s.logger.Error().Err(err).Msg("Scheduled sync cycle failed")
	}
}

// Trigger runs one full cycle. force re-downloads guide documents even
// when the upstream commit is unchanged. Returns ErrRunInProgress when a
// cycle is already executing. A cycle runs to completion on the caller's
// context; a wedged cycle surfaces through the health stats rather than
// being cut short.
func (s *Scheduler) Trigger(ctx context.Context, trigger string, force bool) (*RunReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.inFlight.Store(false)

	metrics.SchedulerRunning.Set(1)
	defer metrics.SchedulerRunning.Set(0)

	report := s.cycle(ctx, trigger, force)

	s.mu.Lock()
	s.lastRun = report
	s.mu.Unlock()

	s.recorder.RecordRun(trigger, report.FinishedAt.Sub(report.StartedAt), report.itemErrors, report.applied(), report.Failed)
	if report.Failed {
		return report, errors.New(report.FailureReason)
	}
	return report, nil
}

// Stats is the scheduler's management view.
type Stats struct {
	Running  bool          `json:"running"`
	InFlight bool          `json:"inFlight"`
	Interval time.Duration `json:"intervalSeconds"`

	// NextCheckAt is when the periodic loop fires next. Nil when the
	// loop is disabled.
	NextCheckAt *time.Time `json:"nextCheckAt,omitempty"`

	LastRun   *RunReport    `json:"lastRun,omitempty"`
	Recorder  metrics.Stats `json:"aggregate"`
	Instances int           `json:"instances"`
}

// Stats reports current scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Running:     s.running,
		InFlight:    s.inFlight.Load(),
		Interval:    s.cfg.CheckInterval / time.Second,
		NextCheckAt: s.nextCheck,
		LastRun:     s.lastRun,
		Recorder:    s.recorder.Snapshot(),
		Instances:   len(s.instances),
	}
}
