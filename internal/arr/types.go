// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package arr is the HTTP client for Sonarr/Radarr-class instance APIs:
// custom formats, quality profiles, and quality definitions, with
// per-instance rate limiting and a circuit breaker.
package arr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
)

// CustomFormat is the instance API's custom-format resource. Specifications
// share the guide's dual-encoding field type so payloads round-trip through
// both encodings.
type CustomFormat struct {
	ID                              int                   `json:"id,omitempty"`
	Name                            string                `json:"name"`
	IncludeCustomFormatWhenRenaming bool                  `json:"includeCustomFormatWhenRenaming"`
	Specifications                  []guide.Specification `json:"specifications"`
}

// ProfileFormatItem scores one custom format within a quality profile.
// Format is the instance's custom-format ID.
type ProfileFormatItem struct {
	Format int    `json:"format"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// QualityProfile is the instance API's quality-profile resource. Fields the
// sync never rewrites (quality items, language) pass through untouched as
// raw JSON so an update round-trip cannot drop instance-side settings.
type QualityProfile struct {
	ID                int                 `json:"id,omitempty"`
	Name              string              `json:"name"`
	UpgradeAllowed    bool                `json:"upgradeAllowed"`
	Cutoff            int                 `json:"cutoff"`
	MinFormatScore    int                 `json:"minFormatScore"`
	CutoffFormatScore int                 `json:"cutoffFormatScore"`
	FormatItems       []ProfileFormatItem `json:"formatItems"`

	Items    json.RawMessage `json:"items,omitempty"`
	Language json.RawMessage `json:"language,omitempty"`
}

// QualityDefinition is one quality's size limits on the instance.
type QualityDefinition struct {
	ID      int `json:"id"`
	Quality struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"quality"`
	Title         string   `json:"title"`
	MinSize       *float64 `json:"minSize,omitempty"`
	PreferredSize *float64 `json:"preferredSize,omitempty"`
	MaxSize       *float64 `json:"maxSize,omitempty"`
}

// SystemStatus is the subset of the instance status resource used for
// connectivity checks.
type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
}

// StatusError reports a non-2xx instance API response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("instance API returned status %d", e.Status)
	}
	return fmt.Sprintf("instance API returned status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the instance API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// FromGuideFormat converts a guide custom format into the instance API
// payload. The remote ID is left zero; callers set it for updates.
func FromGuideFormat(gf *guide.CustomFormat) *CustomFormat {
	specs := make([]guide.Specification, len(gf.Specifications))
	copy(specs, gf.Specifications)
	return &CustomFormat{
		Name:                            gf.Name,
		IncludeCustomFormatWhenRenaming: gf.IncludeCustomFormatWhenRenaming,
		Specifications:                  specs,
	}
}
