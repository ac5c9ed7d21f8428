// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
)

func TestNormalizeProfileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TRaSH - 4K Remux v3 (WEB-1080p)", "4k remux"},
		{"HD Bluray + WEB", "hd bluray + web"},
		{"Remux-1080p [custom]", "remux-1080p"},
		{"UHD   Bluray v2", "uhd bluray"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeProfileName(tt.in), "input %q", tt.in)
	}
}

func TestMatchProfile(t *testing.T) {
	profiles := []arr.QualityProfile{
		{ID: 1, Name: "4K Remux"},
		{ID: 2, Name: "HD Bluray + WEB"},
		{ID: 3, Name: "Anime Something"},
	}

	t.Run("exact after normalization", func(t *testing.T) {
		m := MatchProfile("TRaSH - 4K Remux v3 (WEB-1080p)", profiles)
		assert.Equal(t, ProfileMatchExact, m.Kind)
		assert.Equal(t, 1, m.Profile.ID)
	})

	t.Run("fuzzy containment", func(t *testing.T) {
		m := MatchProfile("Bluray + WEB", profiles)
		assert.Equal(t, ProfileMatchFuzzy, m.Kind)
		assert.Equal(t, 2, m.Profile.ID)
	})

	t.Run("word overlap at half threshold", func(t *testing.T) {
		m := MatchProfile("Anime Profile", profiles)
		assert.Equal(t, ProfileMatchOverlap, m.Kind)
		assert.Equal(t, 3, m.Profile.ID)
	})

	t.Run("no match below threshold", func(t *testing.T) {
		m := MatchProfile("Completely Different Thing", profiles)
		assert.Equal(t, ProfileMatchNone, m.Kind)
		assert.Nil(t, m.Profile)
	})

	t.Run("long instance name dilutes the ratio", func(t *testing.T) {
		// Both guide words appear in the instance name, but they cover
		// only a fifth of its significant words.
		padded := []arr.QualityProfile{{ID: 9, Name: "HD x1 Bluray y1 z1 w1"}}
		m := MatchProfile("Bluray HD", padded)
		assert.Equal(t, ProfileMatchNone, m.Kind)
	})

	t.Run("stopwords and fragments are ignored", func(t *testing.T) {
		noisy := []arr.QualityProfile{{ID: 10, Name: "Remux for the Anime"}}
		m := MatchProfile("Anime Remux", noisy)
		assert.Equal(t, ProfileMatchOverlap, m.Kind)
		assert.Equal(t, 10, m.Profile.ID)
	})
}

func TestBuildRecommendations(t *testing.T) {
	guideProfiles := []guide.QualityProfile{
		{TrashID: "p1", Name: "4K Remux"},
		{TrashID: "p2", Name: "SQP Ultra Special"},
	}
	profiles := []arr.QualityProfile{
		{ID: 1, Name: "4K Remux"},
		{ID: 2, Name: "Ultra HD"},
		{ID: 3, Name: "Special Editions"},
	}

	recs := BuildRecommendations(guideProfiles, profiles)
	// The matched profile produces no recommendation.
	require.Len(t, recs, 1)
	assert.Equal(t, "SQP Ultra Special", recs[0].GuideProfile)
	require.NotEmpty(t, recs[0].Candidates)
	// Candidates ordered by overlap.
	for i := 1; i < len(recs[0].Candidates); i++ {
		assert.GreaterOrEqual(t, recs[0].Candidates[i-1].Overlap, recs[0].Candidates[i].Overlap)
	}
}

func TestResolveScore(t *testing.T) {
	flat := 75

	tests := []struct {
		name     string
		cf       guide.CustomFormat
		scoreSet string
		want     int
		resolved bool
	}{
		{
			name:     "named set wins",
			cf:       guide.CustomFormat{TrashScores: map[string]int{"default": 100, "sqp-1-web-1080p": 50}},
			scoreSet: "sqp-1-web-1080p",
			want:     50, resolved: true,
		},
		{
			name:     "falls back to default set",
			cf:       guide.CustomFormat{TrashScores: map[string]int{"default": 100}},
			scoreSet: "sqp-1-web-1080p",
			want:     100, resolved: true,
		},
		{
			name:     "legacy flat score",
			cf:       guide.CustomFormat{Score: &flat},
			scoreSet: "anything",
			want:     75, resolved: true,
		},
		{
			name:     "unresolved",
			cf:       guide.CustomFormat{},
			scoreSet: "anything",
			want:     0, resolved: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveScore(&tt.cf, tt.scoreSet)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.resolved, ok)
		})
	}
}

func TestResolveGroupItemScore(t *testing.T) {
	itemScore := -100
	cf := &guide.CustomFormat{TrashScores: map[string]int{"default": 100}}

	t.Run("group override wins", func(t *testing.T) {
		item := &guide.CFGroupItem{Score: &itemScore}
		got, ok := ResolveGroupItemScore(item, cf, "")
		assert.True(t, ok)
		assert.Equal(t, -100, got)
	})

	t.Run("group score map wins over format", func(t *testing.T) {
		item := &guide.CFGroupItem{TrashScores: map[string]int{"default": 7}}
		got, ok := ResolveGroupItemScore(item, cf, "")
		assert.True(t, ok)
		assert.Equal(t, 7, got)
	})

	t.Run("falls through to format", func(t *testing.T) {
		item := &guide.CFGroupItem{}
		got, ok := ResolveGroupItemScore(item, cf, "")
		assert.True(t, ok)
		assert.Equal(t, 100, got)
	})
}
