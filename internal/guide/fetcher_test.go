// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package guide

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCustomFormatsTagsOfficial(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[{"trash_id": "a1", "name": "BR-DISK", "specifications": []}]`))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(FetcherConfig{
		RawBaseURL: srv.URL,
		RepoOwner:  "TRaSH-Guides",
		RepoName:   "Guides",
	}, zerolog.Nop())

	cfs, err := f.CustomFormats(context.Background(), ServiceRadarr, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "/TRaSH-Guides/Guides/abc123/docs/json/radarr/cf.json", gotPath)
	require.Len(t, cfs, 1)
	assert.Equal(t, SourceOfficial, cfs[0].Source)
}

func TestFetchFallsBackToConfiguredRef(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(FetcherConfig{RawBaseURL: srv.URL, RepoOwner: "o", RepoName: "r", Ref: "pinned"}, zerolog.Nop())
	_, err := f.QualityProfiles(context.Background(), ServiceSonarr, "")
	require.NoError(t, err)
	assert.Equal(t, "/o/r/pinned/docs/json/sonarr/quality-profiles.json", gotPath)
}

func TestSupplementarySourceMergedAndTagged(t *testing.T) {
	official := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"trash_id": "a1", "name": "Official"}]`))
	}))
	t.Cleanup(official.Close)
	suppl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/radarr/cf.json", r.URL.Path)
		w.Write([]byte(`[{"trash_id": "c1", "name": "Custom"}]`))
	}))
	t.Cleanup(suppl.Close)

	f := NewFetcher(FetcherConfig{
		RawBaseURL:       official.URL,
		RepoOwner:        "o",
		RepoName:         "r",
		SupplementaryURL: suppl.URL,
	}, zerolog.Nop())

	cfs, err := f.CustomFormats(context.Background(), ServiceRadarr, "ref")
	require.NoError(t, err)
	require.Len(t, cfs, 2)
	assert.Equal(t, SourceOfficial, cfs[0].Source)
	assert.Equal(t, SourceCustom, cfs[1].Source)
}

func TestSupplementaryFailureIsNotFatal(t *testing.T) {
	official := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"trash_id": "a1", "name": "Official"}]`))
	}))
	t.Cleanup(official.Close)
	suppl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(suppl.Close)

	f := NewFetcher(FetcherConfig{
		RawBaseURL:       official.URL,
		RepoOwner:        "o",
		RepoName:         "r",
		SupplementaryURL: suppl.URL,
	}, zerolog.Nop())

	cfs, err := f.CustomFormats(context.Background(), ServiceRadarr, "ref")
	require.NoError(t, err)
	require.Len(t, cfs, 1)
}

func TestSpecFieldsDualEncoding(t *testing.T) {
	t.Run("object form decodes", func(t *testing.T) {
		var f SpecFields
		require.NoError(t, json.Unmarshal([]byte(`{"value": "br-disk", "min": 1}`), &f))
		assert.Equal(t, "br-disk", f["value"])
	})

	t.Run("name value array decodes", func(t *testing.T) {
		var f SpecFields
		require.NoError(t, json.Unmarshal([]byte(`[{"name": "value", "value": "br-disk"}]`), &f))
		assert.Equal(t, "br-disk", f["value"])
	})

	t.Run("encodes as sorted name value array", func(t *testing.T) {
		f := SpecFields{"value": "x", "min": float64(1)}
		out, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"name":"min","value":1},{"name":"value","value":"x"}]`, string(out))
	})

	t.Run("rejects scalar", func(t *testing.T) {
		var f SpecFields
		assert.Error(t, json.Unmarshal([]byte(`3`), &f))
	})
}

func TestCFGroupExcludesProfile(t *testing.T) {
	g := &CFGroup{
		Name: "Anime Streaming",
		QualityProfiles: &CFGroupProfiles{
			Exclude: map[string]string{"Remux-1080p": "p-remux"},
		},
	}
	assert.True(t, g.ExcludesProfile("p-remux"))
	assert.False(t, g.ExcludesProfile("p-other"))
	assert.False(t, g.ExcludesProfile(""))

	bare := &CFGroup{Name: "No rules"}
	assert.False(t, bare.ExcludesProfile("p-remux"))
}
