// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package guidecache

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewManager(db, cfg, zerolog.Nop())
}

type testDoc struct {
	TrashID string `json:"trash_id"`
	Name    string `json:"name"`
	Source  string `json:"source,omitempty"`
}

func TestGetMissingReturnsNotCached(t *testing.T) {
	m := newTestManager(t, Config{Compress: true})

	var out []testDoc
	err := m.Get("radarr", "custom_formats", &out)
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestSetGetRoundTrip(t *testing.T) {
	for _, compress := range []bool{true, false} {
		m := newTestManager(t, Config{Compress: compress})

		docs := []testDoc{
			{TrashID: "abc", Name: "BR-DISK", Source: "official"},
			{TrashID: "def", Name: "LQ", Source: "custom"},
		}
		require.NoError(t, m.Set("radarr", "custom_formats", docs, "sha1"))

		var out []testDoc
		require.NoError(t, m.Get("radarr", "custom_formats", &out))
		assert.Equal(t, docs, out)
	}
}

func TestSetIncrementsVersion(t *testing.T) {
	m := newTestManager(t, Config{Compress: true})

	require.NoError(t, m.Set("sonarr", "quality_profiles", []testDoc{{Name: "a"}}, "sha1"))
	require.NoError(t, m.Set("sonarr", "quality_profiles", []testDoc{{Name: "b"}}, "sha2"))

	st, err := m.GetStatus("sonarr", "quality_profiles")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Version)
	assert.Equal(t, "sha2", st.CommitHash)
}

func TestCorruptedEntrySelfHeals(t *testing.T) {
	m := newTestManager(t, Config{Compress: true})
	require.NoError(t, m.Set("radarr", "custom_formats", []testDoc{{Name: "x"}}, "sha1"))

	// Clobber the stored payload so decompression fails.
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey("radarr", "custom_formats"),
			[]byte(`{"payload":"!!not-base64!!","compressed":true,"version":1}`))
	})
	require.NoError(t, err)

	var out []testDoc
	err = m.Get("radarr", "custom_formats", &out)
	assert.ErrorIs(t, err, ErrCorrupted)

	// The corrupted entry is gone; the next read reports a cache miss.
	err = m.Get("radarr", "custom_formats", &out)
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestFreshnessAndTouch(t *testing.T) {
	m := newTestManager(t, Config{Compress: true, StalenessWindow: time.Hour})
	require.NoError(t, m.Set("radarr", "custom_formats", []testDoc{{Name: "x"}}, "sha1"))
	assert.True(t, m.IsFresh("radarr", "custom_formats"))

	// Age the clock past the window, then touch without rewriting data.
	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.False(t, m.IsFresh("radarr", "custom_formats"))

	require.NoError(t, m.TouchCache("radarr", "custom_formats"))
	assert.True(t, m.IsFresh("radarr", "custom_formats"))

	st, err := m.GetStatus("radarr", "custom_formats")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
}

func TestIsFreshMissingEntry(t *testing.T) {
	m := newTestManager(t, Config{})
	assert.False(t, m.IsFresh("sonarr", "cf_groups"))
}

func TestCleanupStale(t *testing.T) {
	m := newTestManager(t, Config{Compress: true, StalenessWindow: time.Hour})
	require.NoError(t, m.Set("radarr", "custom_formats", []testDoc{{Name: "old"}}, "sha1"))

	// Advance the clock past 2x the window and write a fresh sibling.
	base := time.Now()
	m.now = func() time.Time { return base.Add(3 * time.Hour) }
	require.NoError(t, m.Set("sonarr", "custom_formats", []testDoc{{Name: "new"}}, "sha2"))

	removed, err := m.CleanupStale()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var out []testDoc
	assert.ErrorIs(t, m.Get("radarr", "custom_formats", &out), ErrNotCached)
	assert.NoError(t, m.Get("sonarr", "custom_formats", &out))
}

func TestStatusSourceBreakdown(t *testing.T) {
	m := newTestManager(t, Config{Compress: true})
	docs := []testDoc{
		{TrashID: "a", Name: "A", Source: "official"},
		{TrashID: "b", Name: "B", Source: "official"},
		{TrashID: "c", Name: "C", Source: "custom"},
	}
	require.NoError(t, m.Set("radarr", "custom_formats", docs, "sha1"))

	st, err := m.GetStatus("radarr", "custom_formats")
	require.NoError(t, err)
	assert.Equal(t, 3, st.ItemCount)
	assert.Equal(t, 2, st.OfficialCount)
	assert.Equal(t, 1, st.CustomCount)
	assert.True(t, st.Fresh)
}

func TestGetAllStatuses(t *testing.T) {
	m := newTestManager(t, Config{Compress: true})
	require.NoError(t, m.Set("radarr", "custom_formats", []testDoc{{Name: "x"}}, "sha1"))
	require.NoError(t, m.Set("sonarr", "quality_profiles", []testDoc{{Name: "y"}}, "sha1"))

	statuses, err := m.GetAllStatuses()
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	seen := map[string]bool{}
	for _, st := range statuses {
		seen[st.Service+"/"+st.ConfigType] = true
	}
	assert.True(t, seen["radarr/custom_formats"])
	assert.True(t, seen["sonarr/quality_profiles"])
}
