// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
)

func guideFormat(trashID, name, term string) guide.CustomFormat {
	return guide.CustomFormat{
		TrashID: trashID,
		Name:    name,
		Specifications: []guide.Specification{
			{Name: name, Implementation: "ReleaseTitleSpecification", Fields: guide.SpecFields{"value": term}},
		},
	}
}

func instanceFormat(id int, name, term string) arr.CustomFormat {
	return arr.CustomFormat{
		ID:   id,
		Name: name,
		Specifications: []guide.Specification{
			{Name: name, Implementation: "ReleaseTitleSpecification", Fields: guide.SpecFields{"value": term}},
		},
	}
}

func TestComputePlanCreatesUpdatesUnchanged(t *testing.T) {
	in := Input{
		Desired: []guide.CustomFormat{
			guideFormat("a1", "BR-DISK", "br-disk"),
			guideFormat("a2", "LQ", "lq-v2"),
			guideFormat("a3", "x265", "x265"),
		},
		Instance: []arr.CustomFormat{
			instanceFormat(1, "LQ", "lq-v1"),     // stale term -> update
			instanceFormat(2, "x265", "x265"),    // identical -> unchanged
			instanceFormat(3, "User Thing", "u"), // untracked -> withheld delete
		},
		Tracked: map[string]int{"a2": 1, "a3": 2},
	}

	plan := ComputePlan(in)
	require.Len(t, plan.Creates, 1)
	assert.Equal(t, "BR-DISK", plan.Creates[0].Name)

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "LQ", plan.Updates[0].Name)
	assert.Equal(t, 1, plan.Updates[0].Payload.ID)
	assert.NotEmpty(t, plan.Updates[0].Reasons)

	assert.Equal(t, 1, plan.Unchanged)
	assert.Empty(t, plan.Deletes)
	require.Len(t, plan.SkippedDeletes, 1)
	assert.Equal(t, "User Thing", plan.SkippedDeletes[0].Name)
}

func TestComputePlanDeleteGate(t *testing.T) {
	in := Input{
		Desired: nil,
		Instance: []arr.CustomFormat{
			instanceFormat(1, "LQ", "lq"),
			instanceFormat(2, "User Thing", "u"),
		},
		// Only LQ was ever synced; User Thing is hand-made.
		Tracked: map[string]int{"a2": 1},
	}

	t.Run("tracked orphans removed even with deletes off", func(t *testing.T) {
		plan := ComputePlan(in)
		require.Len(t, plan.Deletes, 1)
		assert.Equal(t, "LQ", plan.Deletes[0].Name)
		assert.Equal(t, 1, plan.Deletes[0].RemoteID)
		require.Len(t, plan.SkippedDeletes, 1)
		assert.Equal(t, "User Thing", plan.SkippedDeletes[0].Name)
		assert.Equal(t, 2, plan.SkippedDeletes[0].RemoteID)
	})

	t.Run("remote-only formats deleted when allowed", func(t *testing.T) {
		in := in
		in.AllowDeletes = true
		plan := ComputePlan(in)
		require.Len(t, plan.Deletes, 2)
		assert.Equal(t, "LQ", plan.Deletes[0].Name)
		assert.Equal(t, "User Thing", plan.Deletes[1].Name)
		assert.Empty(t, plan.SkippedDeletes)
	})
}

func TestComputePlanExclusionBlocksAllActions(t *testing.T) {
	in := Input{
		Desired:  []guide.CustomFormat{guideFormat("a1", "BR-DISK", "br-disk")},
		Instance: []arr.CustomFormat{instanceFormat(1, "Old", "old")},
		Tracked:  map[string]int{"gone": 1},
		// Excluded formats are neither created nor deleted.
		AllowDeletes: true,
		Overrides: &Overrides{
			ExcludeTrashIDs: map[string]bool{"a1": true, "gone": true},
		},
	}

	plan := ComputePlan(in)
	assert.Empty(t, plan.Creates)
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.Deletes)
}

func TestComputePlanTermOverrides(t *testing.T) {
	in := Input{
		Desired:  []guide.CustomFormat{guideFormat("a1", "Release Groups", "guide-groups")},
		Instance: []arr.CustomFormat{instanceFormat(1, "Release Groups", "my-groups")},
		Overrides: &Overrides{
			TermOverrides: map[string]map[string]string{
				"a1": {"Release Groups": "my-groups"},
			},
		},
	}

	// With the override the desired term equals the instance term:
	// nothing to do.
	plan := ComputePlan(in)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Unchanged)

	// Without it, the guide term forces an update.
	in.Overrides = nil
	plan = ComputePlan(in)
	require.Len(t, plan.Updates, 1)
}

func TestComputePlanAddAndRemoveTerms(t *testing.T) {
	overrides := &Overrides{
		AddTerms: map[string]map[string]string{
			"a1": {"My Group": "^MyGrp$", "Another": "^Other$"},
		},
		RemoveTerms: map[string][]string{
			"a1": {"Release Groups"},
		},
	}

	in := Input{
		Desired:   []guide.CustomFormat{guideFormat("a1", "Release Groups", "guide-groups")},
		Overrides: overrides,
	}

	plan := ComputePlan(in)
	require.Len(t, plan.Creates, 1)
	specs := plan.Creates[0].Payload.Specifications
	require.Len(t, specs, 2)
	// The guide's own term is gone; added terms appear in name order.
	assert.Equal(t, "Another", specs[0].Name)
	assert.Equal(t, "My Group", specs[1].Name)
	assert.Equal(t, "ReleaseTitleSpecification", specs[1].Implementation)
	assert.Equal(t, "^MyGrp$", specs[1].Fields["value"])

	// An instance already carrying the overridden shape replans to
	// nothing.
	in.Instance = []arr.CustomFormat{{
		ID:   1,
		Name: "Release Groups",
		Specifications: []guide.Specification{
			{Name: "Another", Implementation: "ReleaseTitleSpecification", Fields: guide.SpecFields{"value": "^Other$"}},
			{Name: "My Group", Implementation: "ReleaseTitleSpecification", Fields: guide.SpecFields{"value": "^MyGrp$"}},
		},
	}}
	plan = ComputePlan(in)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Unchanged)
}

func TestVerifyIdempotency(t *testing.T) {
	in := Input{
		Desired: []guide.CustomFormat{
			guideFormat("a1", "BR-DISK", "br-disk"),
			guideFormat("a2", "LQ", "lq-v2"),
		},
		Instance:     []arr.CustomFormat{instanceFormat(1, "LQ", "lq-v1")},
		Tracked:      map[string]int{"a2": 1, "gone": 9},
		AllowDeletes: true,
	}

	plan := ComputePlan(in)
	require.Len(t, plan.Creates, 1)
	require.Len(t, plan.Updates, 1)
	require.Len(t, plan.Deletes, 1)

	assert.Empty(t, VerifyIdempotency(in, plan))
}

func TestPlanProfileScores(t *testing.T) {
	gfA := guideFormat("a1", "BR-DISK", "br-disk")
	gfA.TrashScores = map[string]int{"default": -10000}
	gfB := guideFormat("a2", "LQ", "lq")
	gfB.TrashScores = map[string]int{"default": -10000, "sqp-1": -5000}
	gfC := guideFormat("a3", "Unscored", "u")

	formats := []arr.CustomFormat{
		instanceFormat(10, "BR-DISK", "br-disk"),
		instanceFormat(11, "LQ", "lq"),
		instanceFormat(12, "Unscored", "u"),
		instanceFormat(13, "User Thing", "x"),
	}
	profile := &arr.QualityProfile{
		ID:   1,
		Name: "HD",
		FormatItems: []arr.ProfileFormatItem{
			{Format: 10, Name: "BR-DISK", Score: 0},
			{Format: 11, Name: "LQ", Score: -5000},
			{Format: 13, Name: "User Thing", Score: 77},
		},
	}

	plan := PlanProfile(ProfileInput{
		Guide:   &guide.QualityProfile{Name: "HD", TrashScoreSet: "sqp-1"},
		Desired: map[string]*guide.CustomFormat{"a1": &gfA, "a2": &gfB, "a3": &gfC},
		Profile: profile,
		Formats: formats,
	})

	require.True(t, plan.Changed())
	// BR-DISK resolves through the default set; LQ's sqp-1 score already
	// matches the instance.
	require.Len(t, plan.ScoreChanges, 1)
	assert.Equal(t, "BR-DISK", plan.ScoreChanges[0].FormatName)
	assert.Equal(t, -10000, plan.ScoreChanges[0].To)

	// The format with no resolvable score is reported, not zeroed.
	assert.Equal(t, []string{"Unscored"}, plan.Unscored)

	// The user's own format keeps its score in the rebuilt items.
	var userScore int
	for _, item := range plan.Payload.FormatItems {
		if item.Format == 13 {
			userScore = item.Score
		}
	}
	assert.Equal(t, 77, userScore)
}

func TestPlanProfileThresholds(t *testing.T) {
	profile := &arr.QualityProfile{ID: 1, Name: "HD", MinFormatScore: 0, CutoffFormatScore: 0, UpgradeAllowed: false}
	gp := &guide.QualityProfile{Name: "HD", MinFormatScore: 100, CutoffFormatScore: 10000, UpgradeAllowed: true}

	plan := PlanProfile(ProfileInput{Guide: gp, Profile: profile})
	require.True(t, plan.Changed())
	assert.Equal(t, 100, plan.Payload.MinFormatScore)
	assert.Equal(t, 10000, plan.Payload.CutoffFormatScore)
	assert.True(t, plan.Payload.UpgradeAllowed)
	assert.Len(t, plan.Reasons, 3)
}

func TestPlanProfileNoChanges(t *testing.T) {
	profile := &arr.QualityProfile{ID: 1, Name: "HD"}
	gp := &guide.QualityProfile{Name: "HD"}

	plan := PlanProfile(ProfileInput{Guide: gp, Profile: profile})
	assert.False(t, plan.Changed())
	assert.Nil(t, plan.Payload)
}
