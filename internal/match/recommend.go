// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package match

import (
	"sort"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
)

// CFSource says how a recommended format entered the set.
const (
	CFSourceProfile = "profile"
	CFSourceGroup   = "group"
)

// CFRecommendation is one custom format a guide profile wants applied.
type CFRecommendation struct {
	TrashID string `json:"trashId"`
	Name    string `json:"name"`
	Score   int    `json:"score"`

	// Required marks formats named by the profile itself, as opposed to
	// ones contributed by a default group.
	Required bool `json:"required"`

	// Source is CFSourceProfile or CFSourceGroup; for groups, Reference
	// carries the group's trash_id.
	Source    string `json:"source"`
	Reference string `json:"reference,omitempty"`
}

// BuildCFRecommendations collects the formats a guide profile should carry:
// every format the profile's item map names, then every format contributed
// by an applicable group. A group is skipped when its exclusion map names
// the profile; within a kept group an item is included when the item or the
// group is flagged default, or the item is required. Scores resolve through
// the profile's score set, group overrides first for group items.
//
// Returns the recommendations sorted by name and the set of collected
// trash_ids.
func BuildCFRecommendations(profile *guide.QualityProfile, formats []guide.CustomFormat, groups []guide.CFGroup) ([]CFRecommendation, map[string]bool) {
	byTrashID := make(map[string]*guide.CustomFormat, len(formats))
	for i := range formats {
		byTrashID[formats[i].TrashID] = &formats[i]
	}

	var recs []CFRecommendation
	idSet := make(map[string]bool)

	for _, trashID := range profile.FormatItems {
		cf, ok := byTrashID[trashID]
		if !ok || idSet[trashID] {
			continue
		}
		score, _ := ResolveScore(cf, profile.TrashScoreSet)
		recs = append(recs, CFRecommendation{
			TrashID:  trashID,
			Name:     cf.Name,
			Score:    score,
			Required: true,
			Source:   CFSourceProfile,
		})
		idSet[trashID] = true
	}

	for gi := range groups {
		grp := &groups[gi]
		if grp.ExcludesProfile(profile.TrashID) {
			continue
		}
		for ii := range grp.CustomFormats {
			item := &grp.CustomFormats[ii]
			if !item.Required && !item.Default && !grp.Default {
				continue
			}
			cf, ok := byTrashID[item.TrashID]
			if !ok || idSet[item.TrashID] {
				continue
			}
			score, _ := ResolveGroupItemScore(item, cf, profile.TrashScoreSet)
			recs = append(recs, CFRecommendation{
				TrashID:   item.TrashID,
				Name:      cf.Name,
				Score:     score,
				Required:  item.Required,
				Source:    CFSourceGroup,
				Reference: grp.TrashID,
			})
			idSet[item.TrashID] = true
		}
	}

	sort.Slice(recs, func(a, b int) bool { return recs[a].Name < recs[b].Name })
	return recs, idSet
}
