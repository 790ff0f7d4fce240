// Package app wires configuration, storage, the response cache, model
// adapters and the runner into a ready-to-run application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/cache"
	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/coop"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/jobs"
	"github.com/nurv/edsl/internal/storage/badger"
)

// App holds the long-lived components of one edsl process.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage interfaces.CacheStorage
	Cache   *cache.Cache
	Remote  interfaces.RemoteCache
	Runner  *jobs.Runner
}

// New builds the application from resolved configuration: badger-backed
// cache storage, the response cache with optional remote backups, and the
// job runner.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	db, err := badger.NewBadgerDB(logger, &cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	a.Storage = badger.NewCacheStorage(db, logger)
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Cache.Path).
		Msg("Cache storage initialized")

	a.Cache = cache.NewWithStorage(a.Storage, cfg.Cache.ImmediateWrite, logger)

	if cfg.Cache.RemoteBackups && cfg.Coop.URL != "" {
		a.Remote = newRemoteClient(&cfg.Coop, logger)
		a.Cache.SetRemote(a.Remote)
		logger.Debug().Str("url", cfg.Coop.URL).Msg("Remote cache backups enabled")
	}

	a.Runner = jobs.NewRunner(&cfg.Run, logger)
	return a, nil
}

// newRemoteClient builds the coop client from configuration.
func newRemoteClient(cfg *common.CoopConfig, logger arbor.ILogger) interfaces.RemoteCache {
	opts := []coop.ClientOption{coop.WithLogger(logger)}
	if cfg.APIKey != "" {
		opts = append(opts, coop.WithAPIKey(cfg.APIKey))
	}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, coop.WithRateLimit(int(cfg.RequestsPerSecond)))
	}
	if timeout, err := time.ParseDuration(cfg.Timeout); err == nil && timeout > 0 {
		opts = append(opts, coop.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return coop.NewClient(cfg.URL, opts...)
}

// EnterCacheSession reconciles the local cache with the remote, when one
// is configured.
func (a *App) EnterCacheSession(ctx context.Context) {
	a.Cache.Enter(ctx)
}

// ExitCacheSession commits deferred entries and uploads new ones. Run it
// via defer so it fires on every exit path, with a short independent
// timeout so a cancelled run still flushes.
func (a *App) ExitCacheSession() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Cache.Exit(ctx)
}

// Close releases storage.
func (a *App) Close() error {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			return fmt.Errorf("failed to close cache: %w", err)
		}
		a.Logger.Debug().Msg("Cache storage closed")
	}
	return nil
}
