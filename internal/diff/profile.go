// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package diff

import (
	"fmt"
	"sort"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/match"
)

// ScoreChange is one format score the profile plan rewrites.
type ScoreChange struct {
	FormatName string
	RemoteID   int
	From       int
	To         int
}

// ProfilePlan is the planned update for one quality profile. Payload is
// nil when nothing changes.
type ProfilePlan struct {
	Payload      *arr.QualityProfile
	ScoreChanges []ScoreChange
	Reasons      []string

	// Unscored lists desired formats that exist on the instance but had
	// no resolvable score; they are left at their current score.
	Unscored []string
}

// Changed reports whether applying the plan would alter the profile.
func (p *ProfilePlan) Changed() bool { return p.Payload != nil }

// ProfileInput is everything profile planning needs. Formats must reflect
// instance state after the format phase, so remote IDs exist for every
// desired format.
type ProfileInput struct {
	// Guide is the guide profile driving thresholds and the score set.
	Guide *guide.QualityProfile

	// Desired maps format trash_id to the guide format, for every format
	// whose score the profile should carry.
	Desired map[string]*guide.CustomFormat

	// Profile is the matched instance profile.
	Profile *arr.QualityProfile

	// Formats is the instance's current custom formats.
	Formats []arr.CustomFormat
}

// PlanProfile computes the score and threshold update for one instance
// profile. Scores resolve through the profile's score set; formats without
// an instance counterpart are skipped (the format phase runs first, so
// that means creation failed and the score is withheld rather than
// misassigned).
func PlanProfile(in ProfileInput) *ProfilePlan {
	plan := &ProfilePlan{}

	currentByID := make(map[int]int, len(in.Profile.FormatItems))
	for _, item := range in.Profile.FormatItems {
		currentByID[item.Format] = item.Score
	}

	desiredScores := make(map[int]int)
	desiredNames := make(map[int]string)

	trashIDs := make([]string, 0, len(in.Desired))
	for trashID := range in.Desired {
		trashIDs = append(trashIDs, trashID)
	}
	sort.Strings(trashIDs)

	for _, trashID := range trashIDs {
		gf := in.Desired[trashID]
		m := match.MatchSingle(gf, in.Formats)
		if m.Instance == nil {
			plan.Unscored = append(plan.Unscored, gf.Name)
			continue
		}
		score, ok := match.ResolveScore(gf, in.Guide.TrashScoreSet)
		if !ok {
			plan.Unscored = append(plan.Unscored, gf.Name)
			continue
		}
		desiredScores[m.Instance.ID] = score
		desiredNames[m.Instance.ID] = m.Instance.Name
	}

	// Rebuild format items: desired scores win, every other instance
	// format keeps its current score (zero for new ones). The instance
	// API requires an item per format.
	items := make([]arr.ProfileFormatItem, 0, len(in.Formats))
	for i := range in.Formats {
		id := in.Formats[i].ID
		score, managed := desiredScores[id]
		if !managed {
			score = currentByID[id]
		}
		items = append(items, arr.ProfileFormatItem{
			Format: id,
			Name:   in.Formats[i].Name,
			Score:  score,
		})

		if managed && currentByID[id] != score {
			plan.ScoreChanges = append(plan.ScoreChanges, ScoreChange{
				FormatName: desiredNames[id],
				RemoteID:   id,
				From:       currentByID[id],
				To:         score,
			})
		}
	}

	if len(plan.ScoreChanges) > 0 {
		plan.Reasons = append(plan.Reasons, fmt.Sprintf("%d format scores differ", len(plan.ScoreChanges)))
	}
	if in.Profile.MinFormatScore != in.Guide.MinFormatScore {
		plan.Reasons = append(plan.Reasons, "minimum format score differs")
	}
	if in.Profile.CutoffFormatScore != in.Guide.CutoffFormatScore {
		plan.Reasons = append(plan.Reasons, "cutoff format score differs")
	}
	if in.Profile.UpgradeAllowed != in.Guide.UpgradeAllowed {
		plan.Reasons = append(plan.Reasons, "upgrade allowed differs")
	}

	if len(plan.Reasons) == 0 {
		return plan
	}

	payload := *in.Profile
	payload.FormatItems = items
	payload.MinFormatScore = in.Guide.MinFormatScore
	payload.CutoffFormatScore = in.Guide.CutoffFormatScore
	payload.UpgradeAllowed = in.Guide.UpgradeAllowed
	plan.Payload = &payload

	return plan
}
