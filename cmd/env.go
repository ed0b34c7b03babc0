package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coterie-labs/experiment-console/internal/manager"
	"github.com/coterie-labs/experiment-console/internal/store"
	"github.com/coterie-labs/experiment-console/pkg/statsig"
)

// appEnv holds the initialized storage tiers, platform client and lifecycle
// manager shared by the commands.
type appEnv struct {
	Store    *store.FallbackStore
	Manager  *manager.Manager
	Platform statsig.Client

	remote *store.PostgresTier // nil when no database is configured
	cache  *store.SQLiteTier   // nil when the cache is disabled
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
	if e.remote != nil {
		_ = e.remote.Close()
	}
}

// initEnv validates the config for mode, then wires the tiers bottom-up. A
// missing database or cache degrades to the remaining tiers rather than
// failing; the in-memory tier always exists.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	log := zap.L()

	var remote *store.PostgresTier
	if cfg.Store.DatabaseURL != "" {
		var err error
		remote, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
		})
		if err != nil {
			log.Warn("remote store unavailable, continuing with local tiers", zap.Error(err))
			remote = nil
		}
	}

	var cache *store.SQLiteTier
	if cfg.Store.CachePath != "" {
		var err error
		cache, err = store.NewSQLite(cfg.Store.CachePath)
		if err != nil {
			log.Warn("local cache unavailable, continuing without it", zap.Error(err))
			cache = nil
		}
	}

	platform := statsig.NewClient(cfg.Statsig.Key,
		statsig.WithBaseURL(cfg.Statsig.BaseURL),
		statsig.WithTimeout(time.Duration(cfg.Statsig.TimeoutSecs)*time.Second),
		statsig.WithRateLimit(cfg.Statsig.RequestsPerS),
	)

	// Tier interfaces must be nil, not typed-nil, for the fallback to skip them.
	var remoteTier, cacheTier store.Tier
	if remote != nil {
		remoteTier = remote
	}
	if cache != nil {
		cacheTier = cache
	}

	fs := store.NewFallback(remoteTier, cacheTier, store.NewMemory(), nil, log)
	return &appEnv{
		Store:    fs,
		Manager:  manager.New(fs, platform, log),
		Platform: platform,
		remote:   remote,
		cache:    cache,
	}, nil
}
