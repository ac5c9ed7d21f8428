// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package config defines the application configuration and its layered
// loading (defaults, optional YAML file, environment overrides).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Logging   LoggingConfig    `koanf:"logging"`
	Store     StoreConfig      `koanf:"store"`
	Trash     TrashConfig      `koanf:"trash"`
	Scheduler SchedulerConfig  `koanf:"scheduler"`
	API       APIConfig        `koanf:"api"`
	Instances []InstanceConfig `koanf:"instances" validate:"dive"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig holds the embedded key-value store settings.
type StoreConfig struct {
	// Path is the BadgerDB directory. Empty selects an in-memory store
	// (useful for tests and dry runs).
	Path string `koanf:"path"`
}

// TrashConfig holds the upstream guide source settings.
type TrashConfig struct {
	// RepoOwner and RepoName identify the guide repository on the
	// source-control host.
	RepoOwner string `koanf:"repo_owner" validate:"required"`
	RepoName  string `koanf:"repo_name" validate:"required"`

	// Ref is the git ref guide documents are fetched at. Default: master.
	Ref string `koanf:"ref"`

	// APIBaseURL is the commit-metadata API host.
	APIBaseURL string `koanf:"api_base_url" validate:"url"`

	// RawBaseURL is the raw-content host guide documents are fetched from.
	RawBaseURL string `koanf:"raw_base_url" validate:"url"`

	// SupplementaryURL optionally points at a fork or companion source
	// whose items are merged after the official guide, tagged "custom".
	SupplementaryURL string `koanf:"supplementary_url" validate:"omitempty,url"`

	// GithubToken optionally raises the commit API rate-limit ceiling.
	GithubToken string `koanf:"github_token"`

	// StalenessWindow is how long a cache snapshot counts as fresh.
	StalenessWindow time.Duration `koanf:"staleness_window"`

	// RequestTimeout bounds each request to the commit API.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// CompressionEnabled gzips cached guide payloads.
	CompressionEnabled bool `koanf:"compression_enabled"`

	// ReversedQualityOrder flips min/max ordering of quality-size items,
	// pending the anticipated upstream ordering change. Default false.
	ReversedQualityOrder bool `koanf:"reversed_quality_order"`
}

// SchedulerConfig holds the update scheduler settings.
type SchedulerConfig struct {
	Enabled       bool          `koanf:"enabled"`
	CheckInterval time.Duration `koanf:"check_interval"`
}

// APIConfig holds API middleware settings.
type APIConfig struct {
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// InstanceConfig describes one managed Sonarr/Radarr instance.
type InstanceConfig struct {
	ID      string `koanf:"id" validate:"required"`
	Type    string `koanf:"type" validate:"oneof=radarr sonarr"`
	URL     string `koanf:"url" validate:"required,url"`
	APIKey  string `koanf:"api_key" validate:"required"`
	Enabled bool   `koanf:"enabled"`

	// AllowDeletes opts this instance into delete-by-omission for custom
	// formats. Never enabled by default.
	AllowDeletes bool `koanf:"allow_deletes"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Instances))
	for _, inst := range c.Instances {
		if seen[inst.ID] {
			return fmt.Errorf("invalid configuration: duplicate instance id %q", inst.ID)
		}
		seen[inst.ID] = true
	}

	return nil
}
