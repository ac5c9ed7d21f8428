// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package pipeline applies planned guide changes to instances. Sync is two
// phases per instance: custom formats first, then quality profiles, so
// profile score items always reference formats that already exist.
//
// Item failures are isolated: one format failing to create or update never
// aborts the run, it is recorded and the run continues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/diff"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/match"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

// InstanceAPI is the slice of the instance client the executor drives.
type InstanceAPI interface {
	GetCustomFormats(ctx context.Context) ([]arr.CustomFormat, error)
	CreateCustomFormat(ctx context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error)
	UpdateCustomFormat(ctx context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error)
	DeleteCustomFormat(ctx context.Context, id int) error
	GetQualityProfiles(ctx context.Context) ([]arr.QualityProfile, error)
	UpdateQualityProfile(ctx context.Context, qp *arr.QualityProfile) (*arr.QualityProfile, error)
}

// ProfileSpec selects one guide profile to sync and the formats whose
// scores it carries.
type ProfileSpec struct {
	Guide   *guide.QualityProfile
	Desired map[string]*guide.CustomFormat
}

// Provenance says what selected a desired format: a template directly or
// one of its groups.
type Provenance struct {
	Source    string
	Reference string
}

// Request is one instance sync.
type Request struct {
	InstanceID   string
	API          InstanceAPI
	Desired      []guide.CustomFormat
	Profiles     []ProfileSpec
	AllowDeletes bool
	Overrides    *diff.Overrides

	// Provenance maps trash_id to what selected the format, stamped onto
	// tracking records. Missing entries are stored without a source.
	Provenance map[string]Provenance

	// CommitHash is the guide commit the desired formats came from,
	// stamped onto tracking records. Empty when the refresh could not
	// establish a commit.
	CommitHash string
}

// ItemError records one isolated item failure.
type ItemError struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	Err  string `json:"error"`
}

// Result summarizes one instance sync.
type Result struct {
	InstanceID string `json:"instanceId"`

	FormatsCreated int `json:"formatsCreated"`
	FormatsUpdated int `json:"formatsUpdated"`
	FormatsDeleted int `json:"formatsDeleted"`
	Unchanged      int `json:"unchanged"`

	ProfilesUpdated int `json:"profilesUpdated"`
	ProfilesSkipped int `json:"profilesSkipped"`
	OrphansCleaned  int `json:"orphansCleaned"`
	DeletesWithheld int `json:"deletesWithheld"`

	ScoreChanges []diff.ScoreChange `json:"-"`
	Errors       []ItemError        `json:"errors,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (r *Result) fail(kind, name string, err error) {
	r.Errors = append(r.Errors, ItemError{Kind: kind, Name: name, Err: err.Error()})
}

// Executor runs instance syncs. Concurrent syncs of different instances
// proceed in parallel; syncs of the same instance serialize.
type Executor struct {
	store  store.Store
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutor creates a sync executor.
func NewExecutor(st store.Store, logger zerolog.Logger) *Executor {
	return &Executor{
		store:  st,
		logger: logger.With().Str("component", "sync-executor").Logger(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (e *Executor) instanceLock(instanceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[instanceID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[instanceID] = l
	}
	return l
}

// Sync applies the request to its instance: format phase, then profile
// phase. A failed format fetch aborts the run; individual item failures do
// not.
func (e *Executor) Sync(ctx context.Context, req Request) (*Result, error) {
	lock := e.instanceLock(req.InstanceID)
	lock.Lock()
	defer lock.Unlock()

	res := &Result{InstanceID: req.InstanceID, StartedAt: e.now()}
	log := e.logger.With().Str("instance", req.InstanceID).Logger()

	if err := e.syncFormats(ctx, req, res, log); err != nil {
		res.FinishedAt = e.now()
		return res, err
	}
	if err := e.syncProfiles(ctx, req, res, log); err != nil {
		res.FinishedAt = e.now()
		return res, err
	}

	res.FinishedAt = e.now()
	log.Info().
		Int("created", res.FormatsCreated).
		Int("updated", res.FormatsUpdated).
		Int("deleted", res.FormatsDeleted).
		Int("profiles_updated", res.ProfilesUpdated).
		Int("item_errors", len(res.Errors)).
		Msg("Instance sync finished")
	return res, nil
}

func (e *Executor) syncFormats(ctx context.Context, req Request, res *Result, log zerolog.Logger) error {
	instanceFormats, err := req.API.GetCustomFormats(ctx)
	if err != nil {
		return fmt.Errorf("fetch instance custom formats: %w", err)
	}

	tracking, err := e.store.ListFormatTracking(req.InstanceID)
	if err != nil {
		return fmt.Errorf("load format tracking: %w", err)
	}

	// Tracking records whose remote format vanished out-of-band are
	// stale; drop them so the plan does not try to delete ghosts.
	liveIDs := make(map[int]bool, len(instanceFormats))
	for i := range instanceFormats {
		liveIDs[instanceFormats[i].ID] = true
	}
	tracked := make(map[string]int, len(tracking))
	for i := range tracking {
		if !liveIDs[tracking[i].RemoteID] {
			if err := e.store.DeleteFormatTracking(req.InstanceID, tracking[i].TrashID); err != nil {
				log.Warn().Err(err).Str("trash_id", tracking[i].TrashID).Msg("Failed to drop orphaned tracking record")
				continue
			}
			res.OrphansCleaned++
			continue
		}
		tracked[tracking[i].TrashID] = tracking[i].RemoteID
	}

	plan := diff.ComputePlan(diff.Input{
		Desired:      req.Desired,
		Instance:     instanceFormats,
		Tracked:      tracked,
		AllowDeletes: req.AllowDeletes,
		Overrides:    req.Overrides,
	})
	res.Unchanged = plan.Unchanged
	res.DeletesWithheld = len(plan.SkippedDeletes)

	for _, c := range plan.Creates {
		created, err := req.API.CreateCustomFormat(ctx, c.Payload)
		if err != nil {
			res.fail("format_create", c.Name, err)
			continue
		}
		res.FormatsCreated++
		e.track(res, &req, c.TrashID, created.Name, created.ID, log)
	}

	for _, u := range plan.Updates {
		updated, err := req.API.UpdateCustomFormat(ctx, u.Payload)
		if err != nil {
			res.fail("format_update", u.Name, err)
			continue
		}
		res.FormatsUpdated++
		e.track(res, &req, u.TrashID, updated.Name, updated.ID, log)
	}

	for _, d := range plan.Deletes {
		err := req.API.DeleteCustomFormat(ctx, d.RemoteID)
		if err != nil && !arr.IsNotFound(err) {
			res.fail("format_delete", d.Name, err)
			continue
		}
		// Already-gone counts as deleted; the goal state holds either way.
		res.FormatsDeleted++
		// Untracked remote-only formats have no tracking record, and may
		// carry no guide identifier at all.
		if d.TrashID == "" {
			continue
		}
		if err := e.store.DeleteFormatTracking(req.InstanceID, d.TrashID); err != nil {
			res.fail("tracking_delete", d.Name, err)
		}
	}

	return nil
}

func (e *Executor) track(res *Result, req *Request, trashID, name string, remoteID int, log zerolog.Logger) {
	prov := req.Provenance[trashID]
	err := e.store.PutFormatTracking(&store.FormatTracking{
		InstanceID:      req.InstanceID,
		TrashID:         trashID,
		FormatName:      name,
		RemoteID:        remoteID,
		LastSyncedAt:    e.now().UTC(),
		ImportSource:    prov.Source,
		SourceReference: prov.Reference,
		CommitHash:      req.CommitHash,
	})
	if err != nil {
		log.Error().Err(err).Str("trash_id", trashID).Msg("Failed to persist format tracking")
		res.fail("tracking_put", name, err)
	}
}

func (e *Executor) syncProfiles(ctx context.Context, req Request, res *Result, log zerolog.Logger) error {
	if len(req.Profiles) == 0 {
		return nil
	}

	// Re-fetch formats so profile items see the IDs the format phase
	// just created.
	instanceFormats, err := req.API.GetCustomFormats(ctx)
	if err != nil {
		return fmt.Errorf("refresh instance custom formats: %w", err)
	}
	profiles, err := req.API.GetQualityProfiles(ctx)
	if err != nil {
		return fmt.Errorf("fetch instance quality profiles: %w", err)
	}

	for _, spec := range req.Profiles {
		m := match.MatchProfile(spec.Guide.Name, profiles)
		if m.Profile == nil {
			res.ProfilesSkipped++
			log.Warn().Str("profile", spec.Guide.Name).Msg("No instance profile matches guide profile, skipping")
			continue
		}

		plan := diff.PlanProfile(diff.ProfileInput{
			Guide:   spec.Guide,
			Desired: spec.Desired,
			Profile: m.Profile,
			Formats: instanceFormats,
		})
		for _, name := range plan.Unscored {
			log.Debug().Str("profile", spec.Guide.Name).Str("format", name).Msg("Format left unscored")
		}
		if !plan.Changed() {
			continue
		}

		updated, err := req.API.UpdateQualityProfile(ctx, plan.Payload)
		if err != nil {
			res.fail("profile_update", spec.Guide.Name, err)
			continue
		}
		res.ProfilesUpdated++
		res.ScoreChanges = append(res.ScoreChanges, plan.ScoreChanges...)

		err = e.store.PutProfileTracking(&store.ProfileTracking{
			InstanceID:     req.InstanceID,
			ProfileTrashID: spec.Guide.TrashID,
			ProfileName:    updated.Name,
			RemoteID:       updated.ID,
			LastSyncedAt:   e.now().UTC(),
		})
		if err != nil {
			res.fail("tracking_put", spec.Guide.Name, err)
		}
	}

	return nil
}

// ErrNoInstance is returned by callers resolving an unknown instance ID.
var ErrNoInstance = errors.New("unknown instance")
