// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package arr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/metrics"
)

// ClientConfig configures one instance client.
type ClientConfig struct {
	// InstanceID labels logs and the circuit breaker.
	InstanceID string

	// BaseURL is the instance root, e.g. http://radarr:7878.
	BaseURL string

	// APIKey is sent as X-Api-Key on every request.
	APIKey string

	// RequestTimeout bounds each request. Default: 30s.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles outbound calls. Default: 5 rps, burst 5.
	RequestsPerSecond float64

	// MaxRetries caps retries on 429 responses. Default: 3.
	MaxRetries int
}

// Client talks to one Sonarr/Radarr instance. Requests pass through a rate
// limiter and a circuit breaker; 429 responses are retried honoring
// Retry-After.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger
}

// NewClient creates an instance client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	log := logger.With().Str("component", "arr-client").Str("instance", cfg.InstanceID).Logger()

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "arr-" + cfg.InstanceID,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Client-side errors are the caller's problem, not instance
		// health; only transport failures and 5xx trip the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.Status < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Instance circuit breaker state change")
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		breaker:    breaker,
		logger:     log,
	}
}

// InstanceID returns the configured instance label.
func (c *Client) InstanceID() string { return c.cfg.InstanceID }

// do executes one API call: rate limit, circuit breaker, 429 retry. body
// and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, payload)
	})
	if err != nil {
		metrics.InstanceRequests.WithLabelValues(c.cfg.InstanceID, "failure").Inc()
		return err
	}
	metrics.InstanceRequests.WithLabelValues(c.cfg.InstanceID, "success").Inc()

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// send performs the request with rate limiting and bounded 429 retries.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	url := c.cfg.BaseURL + "/api/v3" + path

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reqBody io.Reader = http.NoBody
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfter(resp, time.Duration(attempt+1)*time.Second)
			lastErr = &StatusError{Status: resp.StatusCode}
			c.logger.Warn().
				Str("path", path).
				Dur("retry_after", delay).
				Int("attempt", attempt+1).
				Msg("Instance rate limited request, backing off")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Status: resp.StatusCode, Body: truncate(string(raw), 200)}
		}
		return raw, nil
	}

	return nil, fmt.Errorf("request retries exhausted: %w", lastErr)
}

func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// SystemStatus checks connectivity and identifies the application.
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var out SystemStatus
	if err := c.do(ctx, http.MethodGet, "/system/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCustomFormats lists the instance's custom formats.
func (c *Client) GetCustomFormats(ctx context.Context) ([]CustomFormat, error) {
	var out []CustomFormat
	if err := c.do(ctx, http.MethodGet, "/customformat", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCustomFormat creates a custom format and returns it with the
// instance-assigned ID.
func (c *Client) CreateCustomFormat(ctx context.Context, cf *CustomFormat) (*CustomFormat, error) {
	var out CustomFormat
	if err := c.do(ctx, http.MethodPost, "/customformat", cf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCustomFormat updates a custom format by its instance ID.
func (c *Client) UpdateCustomFormat(ctx context.Context, cf *CustomFormat) (*CustomFormat, error) {
	if cf.ID == 0 {
		return nil, errors.New("update requires a remote custom format id")
	}
	var out CustomFormat
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/customformat/%d", cf.ID), cf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCustomFormat deletes a custom format by its instance ID.
func (c *Client) DeleteCustomFormat(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/customformat/%d", id), nil, nil)
}

// GetQualityProfiles lists the instance's quality profiles.
func (c *Client) GetQualityProfiles(ctx context.Context) ([]QualityProfile, error) {
	var out []QualityProfile
	if err := c.do(ctx, http.MethodGet, "/qualityprofile", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateQualityProfile creates a quality profile.
func (c *Client) CreateQualityProfile(ctx context.Context, qp *QualityProfile) (*QualityProfile, error) {
	var out QualityProfile
	if err := c.do(ctx, http.MethodPost, "/qualityprofile", qp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateQualityProfile updates a quality profile by its instance ID.
func (c *Client) UpdateQualityProfile(ctx context.Context, qp *QualityProfile) (*QualityProfile, error) {
	if qp.ID == 0 {
		return nil, errors.New("update requires a remote quality profile id")
	}
	var out QualityProfile
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/qualityprofile/%d", qp.ID), qp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteQualityProfile deletes a quality profile by its instance ID.
func (c *Client) DeleteQualityProfile(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/qualityprofile/%d", id), nil, nil)
}

// GetQualityDefinitions lists the instance's quality size definitions.
func (c *Client) GetQualityDefinitions(ctx context.Context) ([]QualityDefinition, error) {
	var out []QualityDefinition
	if err := c.do(ctx, http.MethodGet, "/qualitydefinition", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateQualityDefinitions bulk-updates quality size definitions.
func (c *Client) UpdateQualityDefinitions(ctx context.Context, defs []QualityDefinition) ([]QualityDefinition, error) {
	var out []QualityDefinition
	if err := c.do(ctx, http.MethodPut, "/qualitydefinition/update", defs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResetQualityDefinitions clears every definition's size limits, returning
// the instance to an unbounded baseline before fresh limits are applied.
func (c *Client) ResetQualityDefinitions(ctx context.Context) ([]QualityDefinition, error) {
	defs, err := c.GetQualityDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		defs[i].MinSize = nil
		defs[i].PreferredSize = nil
		defs[i].MaxSize = nil
	}
	return c.UpdateQualityDefinitions(ctx, defs)
}
