// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package guide

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commitBody = `{
	"sha": "abc123",
	"commit": {"message": "update cf", "committer": {"date": "2026-08-01T10:00:00Z"}},
	"html_url": "https://example.com/commit/abc123"
}`

func newTracker(t *testing.T, handler http.HandlerFunc) *VersionTracker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewVersionTracker(VersionTrackerConfig{
		APIBaseURL: srv.URL,
		RepoOwner:  "TRaSH-Guides",
		RepoName:   "Guides",
		BaseDelay:  time.Millisecond,
	}, zerolog.Nop())
}

func TestLatestCommit(t *testing.T) {
	var gotPath, gotAuth string
	tr := newTracker(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(commitBody))
	})

	info, err := tr.LatestCommit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/repos/TRaSH-Guides/Guides/commits/master", gotPath)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "abc123", info.Hash)
	assert.Equal(t, "update cf", info.Message)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), info.Date)
}

func TestGetCommitRetriesTransientFailures(t *testing.T) {
	attempts := 0
	tr := newTracker(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(commitBody))
	})

	info, err := tr.LatestCommit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "abc123", info.Hash)
}

func TestGetCommitExhaustsRetries(t *testing.T) {
	attempts := 0
	tr := newTracker(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := tr.LatestCommit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestGetCommitRateLimitFailsFast(t *testing.T) {
	attempts := 0
	tr := newTracker(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1790000000")
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := tr.LatestCommit(context.Background())
	require.Error(t, err)
	// No retries: one request only.
	assert.Equal(t, 1, attempts)

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, time.Unix(1790000000, 0), rl.ResetAt)
}

func TestPlainForbiddenIsRetried(t *testing.T) {
	attempts := 0
	tr := newTracker(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		// 403 without an exhausted quota is not a rate limit.
		w.Header().Set("X-RateLimit-Remaining", "55")
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := tr.LatestCommit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	var rl *RateLimitError
	assert.False(t, errors.As(err, &rl))
}

func TestCompareCommits(t *testing.T) {
	tr := newTracker(t, func(w http.ResponseWriter, r *http.Request) {
		sha := r.URL.Path[len("/repos/TRaSH-Guides/Guides/commits/"):]
		w.Write([]byte(`{"sha": "` + sha + `", "commit": {"message": "m", "committer": {"date": "2026-08-01T10:00:00Z"}}}`))
	})

	cmp, err := tr.CompareCommits(context.Background(), "aaa", "bbb")
	require.NoError(t, err)
	assert.True(t, cmp.IsDifferent)
	assert.Equal(t, "aaa", cmp.OldInfo.Hash)
	assert.Equal(t, "bbb", cmp.NewInfo.Hash)

	cmp, err = tr.CompareCommits(context.Background(), "aaa", "aaa")
	require.NoError(t, err)
	assert.False(t, cmp.IsDifferent)
}

func TestTokenIsSentWhenConfigured(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(commitBody))
	}))
	t.Cleanup(srv.Close)

	tr := NewVersionTracker(VersionTrackerConfig{
		APIBaseURL: srv.URL,
		RepoOwner:  "o",
		RepoName:   "r",
		Token:      "tok",
	}, zerolog.Nop())

	_, err := tr.LatestCommit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
}
