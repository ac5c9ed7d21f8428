// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package guide defines the TRaSH guide document types and the clients
// that fetch them: a raw-content fetcher for versioned JSON documents and
// a version tracker for the guide repository's commit metadata.
//
// Guide payloads are decoded into tagged types per config type rather
// than free-form maps, validated at the cache-read boundary.
package guide

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// ServiceType identifies which *arr application a guide corpus targets.
type ServiceType string

const (
	ServiceRadarr ServiceType = "radarr"
	ServiceSonarr ServiceType = "sonarr"
)

// Services lists all managed service types.
var Services = []ServiceType{ServiceRadarr, ServiceSonarr}

// ConfigType identifies one guide document kind.
type ConfigType string

const (
	ConfigCustomFormats   ConfigType = "custom_formats"
	ConfigQualityProfiles ConfigType = "quality_profiles"
	ConfigCFGroups        ConfigType = "cf_groups"
	ConfigQualitySize     ConfigType = "quality_size"
)

// ConfigTypes lists all guide document kinds.
var ConfigTypes = []ConfigType{
	ConfigCustomFormats,
	ConfigQualityProfiles,
	ConfigCFGroups,
	ConfigQualitySize,
}

// Source tags where a guide item came from when an official guide is
// blended with a supplementary source.
const (
	SourceOfficial = "official"
	SourceCustom   = "custom"
)

// SpecFields holds a specification's opaque field values. The guide
// encodes fields as a JSON object while the instance API encodes them as
// an array of {name, value} pairs; both are semantically equivalent and
// normalize to a map on decode.
type SpecFields map[string]any

type fieldKV struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// UnmarshalJSON accepts both the map encoding and the array-of-{name,value}
// encoding.
func (f *SpecFields) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err == nil {
		*f = m
		return nil
	}

	var kvs []fieldKV
	if err := json.Unmarshal(data, &kvs); err != nil {
		return fmt.Errorf("specification fields are neither an object nor a name/value array: %w", err)
	}

	m = make(map[string]any, len(kvs))
	for _, kv := range kvs {
		m[kv.Name] = kv.Value
	}
	*f = m
	return nil
}

// MarshalJSON emits the array-of-{name,value} encoding sorted by name.
// The instance API accepts this form, and sorting keeps cached payloads
// deterministic.
func (f SpecFields) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	kvs := make([]fieldKV, 0, len(f))
	for _, name := range names {
		kvs = append(kvs, fieldKV{Name: name, Value: f[name]})
	}
	return json.Marshal(kvs)
}

// Specification is one rule within a custom format.
type Specification struct {
	Name           string     `json:"name"`
	Implementation string     `json:"implementation"`
	Negate         bool       `json:"negate"`
	Required       bool       `json:"required"`
	Fields         SpecFields `json:"fields,omitempty"`
}

// CustomFormat is a guide custom format: a named rule set with a stable
// guide-assigned identifier and per-score-set scores.
type CustomFormat struct {
	TrashID                         string          `json:"trash_id"`
	Name                            string          `json:"name"`
	IncludeCustomFormatWhenRenaming bool            `json:"includeCustomFormatWhenRenaming"`
	Specifications                  []Specification `json:"specifications"`

	// TrashScores maps score-set name to score; the "default" key is the
	// fallback when a requested set is absent.
	TrashScores map[string]int `json:"trash_scores,omitempty"`

	// Score is the legacy flat score used when no score map exists.
	Score *int `json:"score,omitempty"`

	Source string `json:"source,omitempty"`
}

// QualityProfile is a guide quality profile.
type QualityProfile struct {
	TrashID           string `json:"trash_id"`
	Name              string `json:"name"`
	FileName          string `json:"file_name,omitempty"`
	TrashScoreSet     string `json:"trash_score_set,omitempty"`
	UpgradeAllowed    bool   `json:"upgradeAllowed"`
	Cutoff            string `json:"cutoff,omitempty"`
	MinFormatScore    int    `json:"minFormatScore"`
	CutoffFormatScore int    `json:"cutoffFormatScore"`

	// FormatItems maps custom-format name to trash_id for formats the
	// profile explicitly scores.
	FormatItems map[string]string `json:"formatItems,omitempty"`

	Source string `json:"source,omitempty"`
}

// CFGroupItem is one custom format referenced by a group, optionally with
// group-level overrides.
type CFGroupItem struct {
	Name     string `json:"name"`
	TrashID  string `json:"trash_id"`
	Required bool   `json:"required,omitempty"`
	Default  bool   `json:"default,omitempty"`

	// TrashScores and Score override the format's own scores when set.
	TrashScores map[string]int `json:"trash_scores,omitempty"`
	Score       *int           `json:"score,omitempty"`
}

// CFGroupProfiles carries a group's per-profile rules. Exclude maps a
// display name to the quality profile trash_id the group must not be
// applied to.
type CFGroupProfiles struct {
	Exclude map[string]string `json:"exclude,omitempty"`
}

// CFGroup is a guide custom-format group.
type CFGroup struct {
	Name            string           `json:"name"`
	TrashID         string           `json:"trash_id"`
	FileName        string           `json:"file_name,omitempty"`
	Default         bool             `json:"default,omitempty"`
	CustomFormats   []CFGroupItem    `json:"custom_formats"`
	QualityProfiles *CFGroupProfiles `json:"quality_profiles,omitempty"`
	Source          string           `json:"source,omitempty"`
}

// ExcludesProfile reports whether the group's exclusion map names the
// given quality profile trash_id.
func (g *CFGroup) ExcludesProfile(profileTrashID string) bool {
	if g.QualityProfiles == nil || profileTrashID == "" {
		return false
	}
	for _, id := range g.QualityProfiles.Exclude {
		if id == profileTrashID {
			return true
		}
	}
	return false
}

// QualitySizeItem is one quality's size limits within a preset.
type QualitySizeItem struct {
	Quality   string  `json:"quality"`
	Min       float64 `json:"min"`
	Preferred float64 `json:"preferred"`
	Max       float64 `json:"max"`
}

// QualitySizePreset is a guide quality-size preset (e.g. movie, series,
// anime) holding per-quality size limits.
type QualitySizePreset struct {
	Type      string            `json:"type"`
	TrashID   string            `json:"trash_id,omitempty"`
	Qualities []QualitySizeItem `json:"qualities"`
	Source    string            `json:"source,omitempty"`
}
