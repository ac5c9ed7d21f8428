// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package guide

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/guidecache"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/metrics"
)

// Cache is the snapshot store the refresher writes into.
type Cache interface {
	Set(service, configType string, data any, commitHash string) error
	IsFresh(service, configType string) bool
	TouchCache(service, configType string) error
	GetStatus(service, configType string) (*guidecache.Status, error)
	CleanupStale() (int, error)
}

// Refresher keeps the guide cache aligned with the upstream repository. A
// refresh fetches the head commit once, then re-downloads only the
// documents whose cached commit differs; unchanged fresh entries are
// touched instead.
type Refresher struct {
	fetcher *Fetcher
	tracker *VersionTracker
	cache   Cache
	logger  zerolog.Logger
}

// NewRefresher creates a guide refresher.
func NewRefresher(fetcher *Fetcher, tracker *VersionTracker, cache Cache, logger zerolog.Logger) *Refresher {
	return &Refresher{
		fetcher: fetcher,
		tracker: tracker,
		cache:   cache,
		logger:  logger.With().Str("component", "guide-refresher").Logger(),
	}
}

// RefreshSummary reports one refresh pass.
type RefreshSummary struct {
	CommitHash string `json:"commitHash"`
	Refreshed  int    `json:"refreshed"`
	Touched    int    `json:"touched"`
	Failed     int    `json:"failed"`
}

// RefreshAll refreshes every service and config type. force re-downloads
// even entries whose commit matches. Per-document failures are counted and
// logged; only a failed commit lookup aborts the pass.
func (r *Refresher) RefreshAll(ctx context.Context, force bool) (*RefreshSummary, error) {
	head, err := r.tracker.LatestCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve guide head commit: %w", err)
	}

	summary := &RefreshSummary{CommitHash: head.Hash}

	// Services refresh in parallel; documents within a service refresh
	// sequentially to keep upstream request bursts small.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, service := range Services {
		wg.Add(1)
		go func(service ServiceType) {
			defer wg.Done()
			for _, configType := range ConfigTypes {
				refreshed, err := r.refreshOne(ctx, service, configType, head.Hash, force)
				mu.Lock()
				switch {
				case err != nil:
					summary.Failed++
				case refreshed:
					summary.Refreshed++
				default:
					summary.Touched++
				}
				mu.Unlock()
				if err != nil {
					metrics.GuideFetches.WithLabelValues(string(service), string(configType), "failure").Inc()
					r.logger.Error().Err(err).
						Str("service", string(service)).
						Str("config_type", string(configType)).
						Msg("Guide document refresh failed")
				}
			}
		}(service)
	}
	wg.Wait()

	if removed, err := r.cache.CleanupStale(); err != nil {
		r.logger.Warn().Err(err).Msg("Stale cache cleanup failed")
	} else if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("Dropped stale cache entries")
	}

	r.logger.Info().
		Str("commit", head.Hash).
		Int("refreshed", summary.Refreshed).
		Int("touched", summary.Touched).
		Int("failed", summary.Failed).
		Bool("force", force).
		Msg("Guide refresh pass finished")
	return summary, nil
}

// refreshOne returns true when the document was re-downloaded and false
// when an up-to-date entry was only touched.
func (r *Refresher) refreshOne(ctx context.Context, service ServiceType, configType ConfigType, commitHash string, force bool) (bool, error) {
	if !force {
		status, err := r.cache.GetStatus(string(service), string(configType))
		if err != nil && !errors.Is(err, guidecache.ErrNotCached) {
			return false, err
		}
		if status != nil && status.CommitHash == commitHash {
			if err := r.cache.TouchCache(string(service), string(configType)); err != nil {
				return false, err
			}
			r.updateGauges(service, configType)
			return false, nil
		}
	}

	data, err := r.fetchDocument(ctx, service, configType, commitHash)
	if err != nil {
		return false, err
	}
	if err := r.cache.Set(string(service), string(configType), data, commitHash); err != nil {
		return false, err
	}

	metrics.GuideFetches.WithLabelValues(string(service), string(configType), "success").Inc()
	r.updateGauges(service, configType)
	return true, nil
}

// fetchDocument downloads one document pinned to the head commit.
func (r *Refresher) fetchDocument(ctx context.Context, service ServiceType, configType ConfigType, ref string) (any, error) {
	switch configType {
	case ConfigCustomFormats:
		return r.fetcher.CustomFormats(ctx, service, ref)
	case ConfigQualityProfiles:
		return r.fetcher.QualityProfiles(ctx, service, ref)
	case ConfigCFGroups:
		return r.fetcher.CFGroups(ctx, service, ref)
	case ConfigQualitySize:
		return r.fetcher.QualitySizes(ctx, service, ref)
	default:
		return nil, fmt.Errorf("unknown config type %q", configType)
	}
}

func (r *Refresher) updateGauges(service ServiceType, configType ConfigType) {
	status, err := r.cache.GetStatus(string(service), string(configType))
	if err != nil {
		return
	}
	metrics.GuideCacheVersion.WithLabelValues(string(service), string(configType)).Set(float64(status.Version))
	fresh := 0.0
	if status.Fresh {
		fresh = 1
	}
	metrics.GuideCacheFresh.WithLabelValues(string(service), string(configType)).Set(fresh)
}
