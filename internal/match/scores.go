// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package match

import "github.com/Kha-kis/arr-dashboard-sub014/internal/guide"

// ResolveScore resolves a format's score for a score set. Resolution order:
// the named set, the "default" set, then the legacy flat score. resolved is
// false when none applies; the returned score is then 0 and callers must
// not treat it as an explicit zero.
func ResolveScore(cf *guide.CustomFormat, scoreSet string) (score int, resolved bool) {
	if cf.TrashScores != nil {
		if scoreSet != "" {
			if s, ok := cf.TrashScores[scoreSet]; ok {
				return s, true
			}
		}
		if s, ok := cf.TrashScores["default"]; ok {
			return s, true
		}
	}
	if cf.Score != nil {
		return *cf.Score, true
	}
	return 0, false
}

// ResolveGroupItemScore resolves the score for a format referenced by a
// custom-format group. Group-level overrides win over the format's own
// scores.
func ResolveGroupItemScore(item *guide.CFGroupItem, cf *guide.CustomFormat, scoreSet string) (int, bool) {
	if item.TrashScores != nil {
		if scoreSet != "" {
			if s, ok := item.TrashScores[scoreSet]; ok {
				return s, true
			}
		}
		if s, ok := item.TrashScores["default"]; ok {
			return s, true
		}
	}
	if item.Score != nil {
		return *item.Score, true
	}
	return ResolveScore(cf, scoreSet)
}
