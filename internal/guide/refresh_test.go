// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package guide

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/guidecache"
)

// fakeCache records refresher traffic without badger. Both service
// goroutines hit it, so it locks.
type fakeCache struct {
	mu       sync.Mutex
	entries  map[string]*guidecache.Status
	sets     int
	touches  int
	cleanups int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*guidecache.Status{}}
}

func (c *fakeCache) Set(service, configType string, _ any, commitHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := service + ":" + configType
	version := 1
	if prev, ok := c.entries[key]; ok {
		version = prev.Version + 1
	}
	c.entries[key] = &guidecache.Status{
		Service: service, ConfigType: configType,
		Version: version, CommitHash: commitHash, Fresh: true,
	}
	c.sets++
	return nil
}

func (c *fakeCache) IsFresh(service, configType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.entries[service+":"+configType]
	return ok && st.Fresh
}

func (c *fakeCache) TouchCache(service, configType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touches++
	return nil
}

func (c *fakeCache) GetStatus(service, configType string) (*guidecache.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.entries[service+":"+configType]
	if !ok {
		return nil, guidecache.ErrNotCached
	}
	return st, nil
}

func (c *fakeCache) CleanupStale() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups++
	return 0, nil
}

func newRefreshBackend(t *testing.T, sha string) (*Fetcher, *VersionTracker) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/o/r/commits/master" {
			w.Write([]byte(`{"sha": "` + sha + `", "commit": {"message": "m", "committer": {"date": "2026-08-01T10:00:00Z"}}}`))
			return
		}
		// Every guide document request gets an empty corpus.
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(FetcherConfig{RawBaseURL: srv.URL, RepoOwner: "o", RepoName: "r"}, zerolog.Nop())
	tr := NewVersionTracker(VersionTrackerConfig{APIBaseURL: srv.URL, RepoOwner: "o", RepoName: "r"}, zerolog.Nop())
	return f, tr
}

func TestRefreshAllPopulatesEmptyCache(t *testing.T) {
	f, tr := newRefreshBackend(t, "sha1")
	cache := newFakeCache()
	r := NewRefresher(f, tr, cache, zerolog.Nop())

	summary, err := r.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	// Two services x four config types.
	assert.Equal(t, 8, summary.Refreshed)
	assert.Zero(t, summary.Touched)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, "sha1", summary.CommitHash)
	assert.Equal(t, 8, cache.sets)
	assert.Equal(t, 1, cache.cleanups)
}

func TestRefreshAllTouchesWhenCommitUnchanged(t *testing.T) {
	f, tr := newRefreshBackend(t, "sha1")
	cache := newFakeCache()
	r := NewRefresher(f, tr, cache, zerolog.Nop())

	_, err := r.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	summary, err := r.RefreshAll(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, summary.Refreshed)
	assert.Equal(t, 8, summary.Touched)
	assert.Equal(t, 8, cache.sets)
	assert.Equal(t, 8, cache.touches)
}

func TestRefreshAllForceRedownloads(t *testing.T) {
	f, tr := newRefreshBackend(t, "sha1")
	cache := newFakeCache()
	r := NewRefresher(f, tr, cache, zerolog.Nop())

	_, err := r.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	summary, err := r.RefreshAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Refreshed)
	assert.Zero(t, summary.Touched)

	// Versions advanced on every entry.
	st, err := cache.GetStatus("radarr", "custom_formats")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Version)
}

func TestRefreshAllAbortsWhenHeadLookupFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(FetcherConfig{RawBaseURL: srv.URL, RepoOwner: "o", RepoName: "r"}, zerolog.Nop())
	tr := NewVersionTracker(VersionTrackerConfig{APIBaseURL: srv.URL, RepoOwner: "o", RepoName: "r"}, zerolog.Nop())
	r := NewRefresher(f, tr, newFakeCache(), zerolog.Nop())

	_, err := r.RefreshAll(context.Background(), false)
	assert.Error(t, err)
}
