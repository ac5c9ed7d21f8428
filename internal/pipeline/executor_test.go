// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package pipeline

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

// fakeAPI is an in-memory instance.
type fakeAPI struct {
	formats  []arr.CustomFormat
	profiles []arr.QualityProfile
	nextID   int

	failCreate map[string]error
	deleted    []int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 41, failCreate: map[string]error{}}
}

func (f *fakeAPI) GetCustomFormats(context.Context) ([]arr.CustomFormat, error) {
	out := make([]arr.CustomFormat, len(f.formats))
	copy(out, f.formats)
	return out, nil
}

func (f *fakeAPI) CreateCustomFormat(_ context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error) {
	if err := f.failCreate[cf.Name]; err != nil {
		return nil, err
	}
	f.nextID++
	created := *cf
	created.ID = f.nextID
	f.formats = append(f.formats, created)
	return &created, nil
}

func (f *fakeAPI) UpdateCustomFormat(_ context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error) {
	for i := range f.formats {
		if f.formats[i].ID == cf.ID {
			f.formats[i] = *cf
			return cf, nil
		}
	}
	return nil, &arr.StatusError{Status: http.StatusNotFound}
}

func (f *fakeAPI) DeleteCustomFormat(_ context.Context, id int) error {
	f.deleted = append(f.deleted, id)
	for i := range f.formats {
		if f.formats[i].ID == id {
			f.formats = append(f.formats[:i], f.formats[i+1:]...)
			return nil
		}
	}
	return &arr.StatusError{Status: http.StatusNotFound}
}

func (f *fakeAPI) GetQualityProfiles(context.Context) ([]arr.QualityProfile, error) {
	out := make([]arr.QualityProfile, len(f.profiles))
	copy(out, f.profiles)
	return out, nil
}

func (f *fakeAPI) UpdateQualityProfile(_ context.Context, qp *arr.QualityProfile) (*arr.QualityProfile, error) {
	for i := range f.profiles {
		if f.profiles[i].ID == qp.ID {
			f.profiles[i] = *qp
			return qp, nil
		}
	}
	return nil, &arr.StatusError{Status: http.StatusNotFound}
}

func newTestExecutor(t *testing.T) (*Executor, store.Store) {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := store.NewBadgerStore(db)
	return NewExecutor(st, zerolog.Nop()), st
}

func guideFormat(trashID, name string, score int) guide.CustomFormat {
	return guide.CustomFormat{
		TrashID:     trashID,
		Name:        name,
		TrashScores: map[string]int{"default": score},
		Specifications: []guide.Specification{
			{Name: name, Implementation: "ReleaseTitleSpecification", Fields: guide.SpecFields{"value": name}},
		},
	}
}

func TestSyncFormatPhasePrecedesProfilePhase(t *testing.T) {
	e, st := newTestExecutor(t)
	api := newFakeAPI()
	api.profiles = []arr.QualityProfile{{ID: 1, Name: "HD"}}

	br := guideFormat("a1", "BR-DISK", -10000)
	req := Request{
		InstanceID: "radarr-main",
		API:        api,
		Desired:    []guide.CustomFormat{br},
		Profiles: []ProfileSpec{{
			Guide:   &guide.QualityProfile{TrashID: "p1", Name: "HD"},
			Desired: map[string]*guide.CustomFormat{"a1": &br},
		}},
		CommitHash: "abc123",
	}

	res, err := e.Sync(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FormatsCreated)
	assert.Equal(t, 1, res.ProfilesUpdated)
	assert.Empty(t, res.Errors)

	// The profile score item references the format created in phase one.
	require.Len(t, api.profiles[0].FormatItems, 1)
	assert.Equal(t, 42, api.profiles[0].FormatItems[0].Format)
	assert.Equal(t, -10000, api.profiles[0].FormatItems[0].Score)

	// Tracking recorded with the remote ID and the guide commit.
	rec, err := st.GetFormatTracking("radarr-main", "a1")
	require.NoError(t, err)
	assert.Equal(t, 42, rec.RemoteID)
	assert.Equal(t, "abc123", rec.CommitHash)
}

func TestSyncIsolatesItemFailures(t *testing.T) {
	e, _ := newTestExecutor(t)
	api := newFakeAPI()
	api.failCreate["Broken"] = errors.New("boom")

	res, err := e.Sync(context.Background(), Request{
		InstanceID: "radarr-main",
		API:        api,
		Desired: []guide.CustomFormat{
			guideFormat("a1", "Broken", 0),
			guideFormat("a2", "Fine", 0),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FormatsCreated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "format_create", res.Errors[0].Kind)
	assert.Equal(t, "Broken", res.Errors[0].Name)
}

func TestSyncDeletesTrackedFormats(t *testing.T) {
	e, st := newTestExecutor(t)
	api := newFakeAPI()
	api.formats = []arr.CustomFormat{
		{ID: 7, Name: "Old Managed"},
		{ID: 8, Name: "User Thing"},
	}
	require.NoError(t, st.PutFormatTracking(&store.FormatTracking{
		InstanceID: "radarr-main", TrashID: "old", FormatName: "Old Managed", RemoteID: 7,
	}))

	res, err := e.Sync(context.Background(), Request{
		InstanceID:   "radarr-main",
		API:          api,
		AllowDeletes: true,
	})
	require.NoError(t, err)
	// With deletes allowed both the tracked orphan and the remote-only
	// format go.
	assert.Equal(t, 2, res.FormatsDeleted)
	assert.Equal(t, []int{7, 8}, api.deleted)
	assert.Empty(t, api.formats)

	_, err = st.GetFormatTracking("radarr-main", "old")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncWithholdsDeletesWhenDisabled(t *testing.T) {
	e, st := newTestExecutor(t)
	api := newFakeAPI()
	api.formats = []arr.CustomFormat{
		{ID: 7, Name: "Old Managed"},
		{ID: 8, Name: "User Thing"},
	}
	require.NoError(t, st.PutFormatTracking(&store.FormatTracking{
		InstanceID: "radarr-main", TrashID: "old", RemoteID: 7,
	}))

	res, err := e.Sync(context.Background(), Request{InstanceID: "radarr-main", API: api})
	require.NoError(t, err)
	// The tracked orphan is cleaned up even with deletes disabled; only
	// the user's own format is withheld.
	assert.Equal(t, 1, res.FormatsDeleted)
	assert.Equal(t, []int{7}, api.deleted)
	assert.Equal(t, 1, res.DeletesWithheld)
	require.Len(t, api.formats, 1)
	assert.Equal(t, "User Thing", api.formats[0].Name)

	_, err = st.GetFormatTracking("radarr-main", "old")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncCleansOrphanedTracking(t *testing.T) {
	e, st := newTestExecutor(t)
	api := newFakeAPI()
	// Tracking points at remote ID 99, which no longer exists.
	require.NoError(t, st.PutFormatTracking(&store.FormatTracking{
		InstanceID: "radarr-main", TrashID: "ghost", RemoteID: 99,
	}))

	res, err := e.Sync(context.Background(), Request{
		InstanceID:   "radarr-main",
		API:          api,
		AllowDeletes: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrphansCleaned)
	// No remote delete was attempted for the ghost.
	assert.Empty(t, api.deleted)

	_, err = st.GetFormatTracking("radarr-main", "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncSkipsUnmatchedProfiles(t *testing.T) {
	e, _ := newTestExecutor(t)
	api := newFakeAPI()
	api.profiles = []arr.QualityProfile{{ID: 1, Name: "Entirely Different"}}

	res, err := e.Sync(context.Background(), Request{
		InstanceID: "radarr-main",
		API:        api,
		Profiles: []ProfileSpec{{
			Guide: &guide.QualityProfile{TrashID: "p1", Name: "4K Remux"},
		}},
	})
	require.NoError(t, err)
	assert.Zero(t, res.ProfilesUpdated)
	assert.Equal(t, 1, res.ProfilesSkipped)
}

func TestSyncIdempotentSecondRun(t *testing.T) {
	e, _ := newTestExecutor(t)
	api := newFakeAPI()

	req := Request{
		InstanceID: "radarr-main",
		API:        api,
		Desired:    []guide.CustomFormat{guideFormat("a1", "BR-DISK", -10000)},
	}

	res, err := e.Sync(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FormatsCreated)

	res, err = e.Sync(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, res.FormatsCreated)
	assert.Zero(t, res.FormatsUpdated)
	assert.Equal(t, 1, res.Unchanged)
}
