// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package guide

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// VersionInfo describes one commit of the guide repository.
type VersionInfo struct {
	Hash    string    `json:"hash"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	URL     string    `json:"url"`
}

// Comparison is the result of comparing two guide commits.
type Comparison struct {
	IsDifferent bool         `json:"isDifferent"`
	OldInfo     *VersionInfo `json:"oldInfo"`
	NewInfo     *VersionInfo `json:"newInfo"`
}

// RateLimitError reports that the commit API refused the request because
// the rate-limit quota is exhausted. It is never retried.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("commit API rate limit exceeded, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// VersionTrackerConfig configures a VersionTracker.
type VersionTrackerConfig struct {
	// APIBaseURL is the commit-metadata API host, e.g. https://api.github.com.
	APIBaseURL string

	RepoOwner string
	RepoName  string

	// Branch is the branch whose head identifies the latest guide
	// revision. Default: master.
	Branch string

	// Token optionally raises the rate-limit ceiling. Absence is not an
	// error.
	Token string

	// RequestTimeout bounds each request. Default: 10s.
	RequestTimeout time.Duration

	// MaxAttempts caps transient-failure retries. Default: 3.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff. Default: 1s.
	BaseDelay time.Duration
}

// VersionTracker queries the upstream source-control host for the commit
// identifying the current guide content revision.
type VersionTracker struct {
	cfg        VersionTrackerConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewVersionTracker creates a version tracker.
func NewVersionTracker(cfg VersionTrackerConfig, logger zerolog.Logger) *VersionTracker {
	if cfg.Branch == "" {
		cfg.Branch = "master"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	return &VersionTracker{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "version-tracker").Logger(),
	}
}

// commitResponse is the commit API's wire shape.
type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message   string `json:"message"`
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
	HTMLURL string `json:"html_url"`
}

// LatestCommit fetches the head commit of the configured branch.
func (v *VersionTracker) LatestCommit(ctx context.Context) (*VersionInfo, error) {
	return v.getCommit(ctx, v.cfg.Branch)
}

// CompareCommits fetches both commits concurrently and reports whether
// they differ. Partial failure of one fetch fails the comparison.
func (v *VersionTracker) CompareCommits(ctx context.Context, oldHash, newHash string) (*Comparison, error) {
	var (
		wg               sync.WaitGroup
		oldInfo, newInfo *VersionInfo
		oldErr, newErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		oldInfo, oldErr = v.getCommit(ctx, oldHash)
	}()
	go func() {
		defer wg.Done()
		newInfo, newErr = v.getCommit(ctx, newHash)
	}()
	wg.Wait()

	if oldErr != nil {
		return nil, fmt.Errorf("fetch old commit %s: %w", oldHash, oldErr)
	}
	if newErr != nil {
		return nil, fmt.Errorf("fetch new commit %s: %w", newHash, newErr)
	}

	return &Comparison{
		IsDifferent: oldInfo.Hash != newInfo.Hash,
		OldInfo:     oldInfo,
		NewInfo:     newInfo,
	}, nil
}

// getCommit fetches one commit with bounded per-request timeouts and up to
// MaxAttempts tries. Rate-limit responses fail fast and are never retried.
func (v *VersionTracker) getCommit(ctx context.Context, ref string) (*VersionInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", v.cfg.APIBaseURL, v.cfg.RepoOwner, v.cfg.RepoName, ref)

	var lastErr error
	for attempt := 1; attempt <= v.cfg.MaxAttempts; attempt++ {
		info, err := v.fetchCommit(ctx, url)
		if err == nil {
			return info, nil
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			return nil, err
		}
		lastErr = err

		if attempt == v.cfg.MaxAttempts {
			break
		}

		// Exponential backoff: base * 2^(attempt-1).
		delay := v.cfg.BaseDelay * time.Duration(1<<(attempt-1))
		v.logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("retry_delay", delay).
			Msg("Commit fetch failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("fetch commit after %d attempts: %w", v.cfg.MaxAttempts, lastErr)
}

func (v *VersionTracker) fetchCommit(ctx context.Context, url string) (*VersionInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, v.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if v.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+v.cfg.Token)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		resetAt := time.Now()
		if raw := resp.Header.Get("X-RateLimit-Reset"); raw != "" {
			if unix, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				resetAt = time.Unix(unix, 0)
			}
		}
		return nil, &RateLimitError{ResetAt: resetAt}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	var cr commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode commit: %w", err)
	}

	return &VersionInfo{
		Hash:    cr.SHA,
		Date:    cr.Commit.Committer.Date,
		Message: cr.Commit.Message,
		URL:     cr.HTMLURL,
	}, nil
}
