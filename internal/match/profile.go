// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package match

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
)

// ProfileMatchKind says how a guide profile was paired with an instance
// profile.
type ProfileMatchKind int

const (
	ProfileMatchNone ProfileMatchKind = iota
	// ProfileMatchExact matched on equal normalized names.
	ProfileMatchExact
	// ProfileMatchFuzzy matched on one normalized name containing the
	// other.
	ProfileMatchFuzzy
	// ProfileMatchOverlap matched on significant-word overlap: shared
	// words over the larger word count, at least one half.
	ProfileMatchOverlap
)

func (k ProfileMatchKind) String() string {
	switch k {
	case ProfileMatchExact:
		return "exact"
	case ProfileMatchFuzzy:
		return "fuzzy"
	case ProfileMatchOverlap:
		return "word_overlap"
	default:
		return "none"
	}
}

// ProfileMatch pairs a guide profile name with an instance profile.
// Profile is nil when Kind is ProfileMatchNone.
type ProfileMatch struct {
	Profile *arr.QualityProfile
	Kind    ProfileMatchKind
}

var (
	parentheticalPattern = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)
	versionPattern       = regexp.MustCompile(`\bv\d+\b`)
	spacePattern         = regexp.MustCompile(`\s+`)
)

// NormalizeProfileName reduces a profile name to its comparable core:
// lowercase, guide branding prefix dropped, parenthetical qualifiers and
// version suffixes removed, whitespace collapsed.
//
//	"TRaSH - 4K Remux v3 (WEB-1080p)" -> "4k remux"
func NormalizeProfileName(name string) string {
	s := strings.ToLower(name)
	s = strings.TrimPrefix(s, "trash guides")
	s = strings.TrimPrefix(s, "trash")
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "-"))
	s = parentheticalPattern.ReplaceAllString(s, "")
	s = versionPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// MatchProfile finds the instance profile corresponding to a guide profile
// name. Exact normalized equality wins; otherwise containment; otherwise
// the significant words shared by both names must cover at least half of
// the longer name.
func MatchProfile(guideName string, profiles []arr.QualityProfile) ProfileMatch {
	want := NormalizeProfileName(guideName)
	if want == "" {
		return ProfileMatch{Kind: ProfileMatchNone}
	}

	for i := range profiles {
		if NormalizeProfileName(profiles[i].Name) == want {
			return ProfileMatch{Profile: &profiles[i], Kind: ProfileMatchExact}
		}
	}

	for i := range profiles {
		have := NormalizeProfileName(profiles[i].Name)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return ProfileMatch{Profile: &profiles[i], Kind: ProfileMatchFuzzy}
		}
	}

	var best *arr.QualityProfile
	bestOverlap := 0.0
	for i := range profiles {
		overlap := wordOverlap(want, NormalizeProfileName(profiles[i].Name))
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = &profiles[i]
		}
	}
	if best != nil && bestOverlap >= 0.5 {
		return ProfileMatch{Profile: best, Kind: ProfileMatchOverlap}
	}

	return ProfileMatch{Kind: ProfileMatchNone}
}

// profileStopwords are connector words that carry no profile identity.
var profileStopwords = map[string]bool{
	"the":  true,
	"and":  true,
	"for":  true,
	"with": true,
}

// significantWords splits a normalized name into the words worth comparing.
// Stopwords and short fragments are dropped; short tokens carrying a digit
// stay, since "4k" or "x265" is often the whole identity.
func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(s) {
		if profileStopwords[w] {
			continue
		}
		if len(w) < 3 && !strings.ContainsAny(w, "0123456789") {
			continue
		}
		words = append(words, w)
	}
	return words
}

// wordOverlap is the count of significant words shared by both names over
// the larger significant-word count. Dividing by the larger side keeps a
// short name from scoring high against a long one it barely touches.
func wordOverlap(want, have string) float64 {
	wantWords := significantWords(want)
	haveWords := significantWords(have)
	if len(wantWords) == 0 || len(haveWords) == 0 {
		return 0
	}
	haveSet := make(map[string]bool, len(haveWords))
	for _, w := range haveWords {
		haveSet[w] = true
	}
	hits := 0
	for _, w := range wantWords {
		if haveSet[w] {
			hits++
		}
	}
	denom := len(wantWords)
	if len(haveWords) > denom {
		denom = len(haveWords)
	}
	return float64(hits) / float64(denom)
}

// Candidate is one suggested instance profile for an unmatched guide
// profile.
type Candidate struct {
	Name    string  `json:"name"`
	Overlap float64 `json:"overlap"`
}

// Recommendation lists the closest instance profiles for a guide profile
// that found no match, for a user to resolve manually.
type Recommendation struct {
	GuideProfile string      `json:"guideProfile"`
	Candidates   []Candidate `json:"candidates"`
}

// BuildRecommendations produces manual-resolution suggestions for every
// guide profile without an instance match. At most three candidates per
// profile, strongest overlap first.
func BuildRecommendations(guideProfiles []guide.QualityProfile, profiles []arr.QualityProfile) []Recommendation {
	var recs []Recommendation
	for i := range guideProfiles {
		if m := MatchProfile(guideProfiles[i].Name, profiles); m.Kind != ProfileMatchNone {
			continue
		}

		want := NormalizeProfileName(guideProfiles[i].Name)
		candidates := make([]Candidate, 0, len(profiles))
		for j := range profiles {
			overlap := wordOverlap(want, NormalizeProfileName(profiles[j].Name))
			if overlap > 0 {
				candidates = append(candidates, Candidate{Name: profiles[j].Name, Overlap: overlap})
			}
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].Overlap != candidates[b].Overlap {
				return candidates[a].Overlap > candidates[b].Overlap
			}
			return candidates[a].Name < candidates[b].Name
		})
		if len(candidates) > 3 {
			candidates = candidates[:3]
		}

		recs = append(recs, Recommendation{
			GuideProfile: guideProfiles[i].Name,
			Candidates:   candidates,
		})
	}
	return recs
}
