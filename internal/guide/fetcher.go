// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package guide

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// docPaths maps a config type to its document path within the guide repo.
var docPaths = map[ConfigType]string{
	ConfigCustomFormats:   "cf",
	ConfigQualityProfiles: "quality-profiles",
	ConfigCFGroups:        "cf-groups",
	ConfigQualitySize:     "quality-size",
}

// FetcherConfig configures a guide document fetcher.
type FetcherConfig struct {
	// RawBaseURL is the raw-content host, e.g. https://raw.githubusercontent.com.
	RawBaseURL string

	// RepoOwner and RepoName identify the guide repository.
	RepoOwner string
	RepoName  string

	// Ref is the git ref documents are fetched at; a resolved commit SHA
	// may be passed per call to pin a snapshot.
	Ref string

	// SupplementaryURL optionally points at a second source whose items
	// are merged after the official guide, tagged "custom".
	SupplementaryURL string

	// Timeout bounds each document request.
	Timeout time.Duration
}

// Fetcher retrieves versioned guide JSON documents over HTTP.
type Fetcher struct {
	cfg        FetcherConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewFetcher creates a guide document fetcher.
func NewFetcher(cfg FetcherConfig, logger zerolog.Logger) *Fetcher {
	if cfg.Ref == "" {
		cfg.Ref = "master"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "guide-fetcher").Logger(),
	}
}

// CustomFormats fetches the custom-format corpus for a service.
func (f *Fetcher) CustomFormats(ctx context.Context, service ServiceType, ref string) ([]CustomFormat, error) {
	var out []CustomFormat
	if err := f.fetch(ctx, service, ConfigCustomFormats, ref, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// QualityProfiles fetches the quality-profile corpus for a service.
func (f *Fetcher) QualityProfiles(ctx context.Context, service ServiceType, ref string) ([]QualityProfile, error) {
	var out []QualityProfile
	if err := f.fetch(ctx, service, ConfigQualityProfiles, ref, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CFGroups fetches the custom-format groups for a service.
func (f *Fetcher) CFGroups(ctx context.Context, service ServiceType, ref string) ([]CFGroup, error) {
	var out []CFGroup
	if err := f.fetch(ctx, service, ConfigCFGroups, ref, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// QualitySizes fetches the quality-size presets for a service.
func (f *Fetcher) QualitySizes(ctx context.Context, service ServiceType, ref string) ([]QualitySizePreset, error) {
	var out []QualitySizePreset
	if err := f.fetch(ctx, service, ConfigQualitySize, ref, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fetch retrieves one document, decodes it into out, and merges the
// supplementary source when configured. out must be a pointer to a slice
// whose element type carries a Source field.
func (f *Fetcher) fetch(ctx context.Context, service ServiceType, configType ConfigType, ref string, out any) error {
	if ref == "" {
		ref = f.cfg.Ref
	}

	url := fmt.Sprintf("%s/%s/%s/%s/docs/json/%s/%s.json",
		f.cfg.RawBaseURL, f.cfg.RepoOwner, f.cfg.RepoName, ref, service, docPaths[configType])

	if err := f.getJSON(ctx, url, out); err != nil {
		return fmt.Errorf("fetch %s %s: %w", service, configType, err)
	}
	tagSource(out, SourceOfficial)

	if f.cfg.SupplementaryURL == "" {
		return nil
	}

	supplURL := fmt.Sprintf("%s/%s/%s.json", f.cfg.SupplementaryURL, service, docPaths[configType])
	if err := f.appendSupplementary(ctx, supplURL, out); err != nil {
		// The supplementary source is best-effort; the official guide
		// result stands on its own.
		f.logger.Warn().Err(err).
			Str("service", string(service)).
			Str("config_type", string(configType)).
			Msg("Supplementary guide source unavailable, continuing with official items")
	}

	return nil
}

func (f *Fetcher) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// appendSupplementary fetches the same document kind from the
// supplementary source and appends its items tagged "custom".
func (f *Fetcher) appendSupplementary(ctx context.Context, url string, out any) error {
	switch v := out.(type) {
	case *[]CustomFormat:
		var extra []CustomFormat
		if err := f.getJSON(ctx, url, &extra); err != nil {
			return err
		}
		for i := range extra {
			extra[i].Source = SourceCustom
		}
		*v = append(*v, extra...)
	case *[]QualityProfile:
		var extra []QualityProfile
		if err := f.getJSON(ctx, url, &extra); err != nil {
			return err
		}
		for i := range extra {
			extra[i].Source = SourceCustom
		}
		*v = append(*v, extra...)
	case *[]CFGroup:
		var extra []CFGroup
		if err := f.getJSON(ctx, url, &extra); err != nil {
			return err
		}
		for i := range extra {
			extra[i].Source = SourceCustom
		}
		*v = append(*v, extra...)
	case *[]QualitySizePreset:
		var extra []QualitySizePreset
		if err := f.getJSON(ctx, url, &extra); err != nil {
			return err
		}
		for i := range extra {
			extra[i].Source = SourceCustom
		}
		*v = append(*v, extra...)
	default:
		return fmt.Errorf("unsupported document slice type %T", out)
	}
	return nil
}

// tagSource stamps untagged items as official.
func tagSource(out any, source string) {
	switch v := out.(type) {
	case *[]CustomFormat:
		for i := range *v {
			if (*v)[i].Source == "" {
				(*v)[i].Source = source
			}
		}
	case *[]QualityProfile:
		for i := range *v {
			if (*v)[i].Source == "" {
				(*v)[i].Source = source
			}
		}
	case *[]CFGroup:
		for i := range *v {
			if (*v)[i].Source == "" {
				(*v)[i].Source = source
			}
		}
	case *[]QualitySizePreset:
		for i := range *v {
			if (*v)[i].Source == "" {
				(*v)[i].Source = source
			}
		}
	}
}
