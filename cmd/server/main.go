// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package main is the entry point for the sync server.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered loading from defaults, config file, and
//     environment (Koanf v2)
//  2. Store: a shared BadgerDB holding the guide cache and sync tracking
//  3. Guide layer: document fetcher, upstream version tracker, refresher
//  4. Instance clients: one rate-limited, circuit-broken client per
//     enabled Sonarr/Radarr instance
//  5. Scheduler: the periodic sync cycle over templates and quality sizes
//  6. HTTP API: management surface with Prometheus metrics
//
// The scheduler and the HTTP server run as separate layers of a suture
// supervision tree, so a crashing sync loop never takes the management
// API down with it. Shutdown is graceful on SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/api"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/config"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guidecache"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/logging"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/pipeline"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/scheduler"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Fatal error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logger := logging.Logger()
	logger.Info().
		Int("instances", len(cfg.Instances)).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Starting arr-dashboard")

	db, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}()

	cache := guidecache.NewManager(db, guidecache.Config{
		StalenessWindow: cfg.Trash.StalenessWindow,
		Compress:        cfg.Trash.CompressionEnabled,
	}, logger)
	st := store.NewBadgerStore(db)

	fetcher := guide.NewFetcher(guide.FetcherConfig{
		RawBaseURL:       cfg.Trash.RawBaseURL,
		RepoOwner:        cfg.Trash.RepoOwner,
		RepoName:         cfg.Trash.RepoName,
		Ref:              cfg.Trash.Ref,
		SupplementaryURL: cfg.Trash.SupplementaryURL,
		Timeout:          cfg.Trash.RequestTimeout,
	}, logger)
	tracker := guide.NewVersionTracker(guide.VersionTrackerConfig{
		APIBaseURL:     cfg.Trash.APIBaseURL,
		RepoOwner:      cfg.Trash.RepoOwner,
		RepoName:       cfg.Trash.RepoName,
		Branch:         cfg.Trash.Ref,
		Token:          cfg.Trash.GithubToken,
		RequestTimeout: cfg.Trash.RequestTimeout,
	}, logger)
	refresher := guide.NewRefresher(fetcher, tracker, cache, logger)

	instances := buildInstances(cfg.Instances, logger)
	if len(instances) == 0 {
		logger.Warn().Msg("No enabled instances configured, nothing to sync")
	}

	executor := pipeline.NewExecutor(st, logger)
	recorder := metrics.NewSyncRecorder()
	sched := scheduler.New(scheduler.Config{
		CheckInterval:        cfg.Scheduler.CheckInterval,
		Enabled:              cfg.Scheduler.Enabled,
		ReversedQualityOrder: cfg.Trash.ReversedQualityOrder,
	}, refresher, cache, executor, st, recorder, instances, logger)

	router := api.NewRouter(api.Config{
		CORSOrigins:     cfg.API.CORSOrigins,
		RateLimit:       cfg.API.RateLimitReqs,
		RateLimitWindow: cfg.API.RateLimitWindow,
	}, sched, cache, cache, tracker, st, logger)

	readTimeout := cfg.Server.Timeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      readTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(supervisor.NewLifecycleService("update-scheduler", sched))
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logger.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logger.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logger.Info().Msg("Stopped gracefully")
	return nil
}

// openStore opens the shared BadgerDB. An empty path selects an in-memory
// store, which loses tracking state on restart.
func openStore(cfg config.StoreConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = nil
	return badger.Open(opts)
}

// buildInstances creates one API client per enabled instance.
func buildInstances(configs []config.InstanceConfig, logger zerolog.Logger) []scheduler.Instance {
	instances := make([]scheduler.Instance, 0, len(configs))
	for _, ic := range configs {
		if !ic.Enabled {
			logger.Info().Str("instance", ic.ID).Msg("Instance disabled, skipping")
			continue
		}
		client := arr.NewClient(arr.ClientConfig{
			InstanceID: ic.ID,
			BaseURL:    ic.URL,
			APIKey:     ic.APIKey,
		}, logger)
		instances = append(instances, scheduler.Instance{
			ID:           ic.ID,
			Service:      guide.ServiceType(ic.Type),
			AllowDeletes: ic.AllowDeletes,
			API:          client,
		})
	}
	return instances
}
