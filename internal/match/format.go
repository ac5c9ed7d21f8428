// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package match pairs guide items with their instance-side counterparts.
// All matchers are pure functions over their inputs; callers pass whatever
// snapshot of instance state they hold.
package match

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
)

// Tier says how a guide format was paired with an instance format.
// Lower tiers are more reliable and are tried first.
type Tier int

const (
	// TierNone means no instance counterpart was found.
	TierNone Tier = iota
	// TierTrashID matched on a guide identifier embedded in the
	// instance format's name.
	TierTrashID
	// TierName matched on case-insensitive name equality.
	TierName
	// TierStructural matched on identical specifications under
	// different names.
	TierStructural
)

func (t Tier) String() string {
	switch t {
	case TierTrashID:
		return "trash_id"
	case TierName:
		return "name"
	case TierStructural:
		return "structural"
	default:
		return "none"
	}
}

// FormatMatch pairs one guide format with its instance counterpart.
// Instance is nil when Tier is TierNone.
type FormatMatch struct {
	Guide    *guide.CustomFormat
	Instance *arr.CustomFormat
	Tier     Tier
}

// trashIDPattern matches a bracketed guide identifier embedded in a format
// name: either the guide's 32-hex form or a hyphenated UUID.
var trashIDPattern = regexp.MustCompile(`\[([0-9a-fA-F]{32}|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\]`)

// ExtractTrashID pulls a bracketed guide identifier out of an instance
// format name, lowercased. Empty when none is embedded.
func ExtractTrashID(name string) string {
	m := trashIDPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// InstanceTrashID finds the guide identifier an instance format carries:
// a trash_id specification field takes precedence over one embedded in
// the name. Empty when the format carries neither.
func InstanceTrashID(cf *arr.CustomFormat) string {
	for i := range cf.Specifications {
		for _, key := range []string{"trash_id", "trashId"} {
			if v, ok := cf.Specifications[i].Fields[key].(string); ok && v != "" {
				return strings.ToLower(v)
			}
		}
	}
	return ExtractTrashID(cf.Name)
}

// MatchSingle finds the instance counterpart of one guide format. Tiers are
// tried in order: carried trash_id, case-insensitive name, then identical
// specification structure.
func MatchSingle(gf *guide.CustomFormat, instanceFormats []arr.CustomFormat) FormatMatch {
	return matchSingle(gf, instanceFormats, true)
}

func matchSingle(gf *guide.CustomFormat, instanceFormats []arr.CustomFormat, structural bool) FormatMatch {
	want := strings.ToLower(gf.TrashID)
	for i := range instanceFormats {
		if want != "" && InstanceTrashID(&instanceFormats[i]) == want {
			return FormatMatch{Guide: gf, Instance: &instanceFormats[i], Tier: TierTrashID}
		}
	}

	for i := range instanceFormats {
		if strings.EqualFold(gf.Name, instanceFormats[i].Name) {
			return FormatMatch{Guide: gf, Instance: &instanceFormats[i], Tier: TierName}
		}
	}

	if structural {
		for i := range instanceFormats {
			if SpecsEqual(gf.Specifications, instanceFormats[i].Specifications) {
				return FormatMatch{Guide: gf, Instance: &instanceFormats[i], Tier: TierStructural}
			}
		}
	}

	return FormatMatch{Guide: gf, Tier: TierNone}
}

// MatchMany pairs every guide format with at most one instance format. An
// instance format claimed by one guide format is not offered to later ones,
// keeping the pairing injective. The structural tier is skipped in batch:
// with many guide formats in flight it pairs too eagerly, claiming formats
// that a later, better-matching guide format should get.
func MatchMany(guideFormats []guide.CustomFormat, instanceFormats []arr.CustomFormat) []FormatMatch {
	remaining := make([]arr.CustomFormat, len(instanceFormats))
	copy(remaining, instanceFormats)

	matches := make([]FormatMatch, 0, len(guideFormats))
	for i := range guideFormats {
		m := matchSingle(&guideFormats[i], remaining, false)
		if m.Instance != nil {
			// Detach the match from the working slice before compacting
			// it, or the pointer re-targets whatever shifts into the
			// claimed slot.
			claimed := *m.Instance
			m.Instance = &claimed
			for j := range remaining {
				if remaining[j].ID == claimed.ID && remaining[j].Name == claimed.Name {
					remaining = append(remaining[:j], remaining[j+1:]...)
					break
				}
			}
		}
		matches = append(matches, m)
	}
	return matches
}

// SpecsEqual reports whether two specification sets describe the same
// rules, ignoring order.
func SpecsEqual(a, b []guide.Specification) bool {
	return len(SpecDifferences(a, b)) == 0
}

// SpecDifferences describes how two specification sets differ, one string
// per divergence. Empty means equivalent. Sets are compared by
// specification name, order-insensitive.
func SpecDifferences(a, b []guide.Specification) []string {
	var diffs []string

	byName := func(specs []guide.Specification) map[string]*guide.Specification {
		m := make(map[string]*guide.Specification, len(specs))
		for i := range specs {
			m[specs[i].Name] = &specs[i]
		}
		return m
	}
	am, bm := byName(a), byName(b)

	names := make([]string, 0, len(am))
	for name := range am {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sa := am[name]
		sb, ok := bm[name]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("specification %q missing from right side", name))
			continue
		}
		if sa.Implementation != sb.Implementation {
			diffs = append(diffs, fmt.Sprintf("specification %q implementation %q != %q", name, sa.Implementation, sb.Implementation))
		}
		if sa.Negate != sb.Negate {
			diffs = append(diffs, fmt.Sprintf("specification %q negate %v != %v", name, sa.Negate, sb.Negate))
		}
		if sa.Required != sb.Required {
			diffs = append(diffs, fmt.Sprintf("specification %q required %v != %v", name, sa.Required, sb.Required))
		}
		if !fieldsEqual(sa.Fields, sb.Fields) {
			diffs = append(diffs, fmt.Sprintf("specification %q fields differ", name))
		}
	}

	bNames := make([]string, 0, len(bm))
	for name := range bm {
		if _, ok := am[name]; !ok {
			bNames = append(bNames, name)
		}
	}
	sort.Strings(bNames)
	for _, name := range bNames {
		diffs = append(diffs, fmt.Sprintf("specification %q missing from left side", name))
	}

	return diffs
}

// fieldsEqual compares field maps after normalizing values through their
// JSON representation, so 1 and 1.0 compare equal regardless of which
// decoder produced them.
func fieldsEqual(a, b guide.SpecFields) bool {
	if len(a) != len(b) {
		return false
	}
	for key, va := range a {
		vb, ok := b[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(normalizeValue(va), normalizeValue(vb)) {
			return false
		}
	}
	return true
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
