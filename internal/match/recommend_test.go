// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
)

func intPtr(v int) *int { return &v }

func TestBuildCFRecommendations(t *testing.T) {
	formats := []guide.CustomFormat{
		{TrashID: "f1", Name: "BR-DISK", TrashScores: map[string]int{"default": -10000}},
		{TrashID: "f2", Name: "LQ", TrashScores: map[string]int{"default": -10000, "sqp": -5000}},
		{TrashID: "f3", Name: "x265", TrashScores: map[string]int{"default": 0}},
		{TrashID: "f4", Name: "Optional Thing", TrashScores: map[string]int{"default": 100}},
	}
	profile := &guide.QualityProfile{
		TrashID:       "p1",
		Name:          "SQP-1",
		TrashScoreSet: "sqp",
		FormatItems:   map[string]string{"LQ": "f2"},
	}
	groups := []guide.CFGroup{
		{
			TrashID: "g1", Name: "Unwanted", Default: true,
			CustomFormats: []guide.CFGroupItem{
				{TrashID: "f1", Name: "BR-DISK", Score: intPtr(-20000)},
				// Already collected via the profile; must not duplicate.
				{TrashID: "f2", Name: "LQ"},
			},
		},
		{
			TrashID: "g2", Name: "Excluded Group", Default: true,
			CustomFormats:   []guide.CFGroupItem{{TrashID: "f3", Name: "x265", Default: true}},
			QualityProfiles: &guide.CFGroupProfiles{Exclude: map[string]string{"SQP-1": "p1"}},
		},
		{
			TrashID: "g3", Name: "Opt-in Group",
			CustomFormats: []guide.CFGroupItem{{TrashID: "f4", Name: "Optional Thing"}},
		},
	}

	recs, idSet := BuildCFRecommendations(profile, formats, groups)

	require.Len(t, recs, 2)
	assert.Equal(t, map[string]bool{"f1": true, "f2": true}, idSet)

	// Sorted by name: BR-DISK first.
	assert.Equal(t, "f1", recs[0].TrashID)
	assert.Equal(t, CFSourceGroup, recs[0].Source)
	assert.Equal(t, "g1", recs[0].Reference)
	assert.Equal(t, -20000, recs[0].Score)
	assert.False(t, recs[0].Required)

	assert.Equal(t, "f2", recs[1].TrashID)
	assert.Equal(t, CFSourceProfile, recs[1].Source)
	assert.True(t, recs[1].Required)
	assert.Equal(t, -5000, recs[1].Score)
}

func TestBuildCFRecommendationsSkipsUnknownFormats(t *testing.T) {
	profile := &guide.QualityProfile{
		TrashID:     "p1",
		FormatItems: map[string]string{"Ghost": "missing"},
	}

	recs, idSet := BuildCFRecommendations(profile, nil, nil)
	assert.Empty(t, recs)
	assert.Empty(t, idSet)
}
