package main

import (
	"context"
	"fmt"

	"github.com/custodia-labs/graphrelay/internal/adapters/driven/auth"
	"github.com/custodia-labs/graphrelay/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/graphrelay/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/graphrelay/internal/adapters/driving/cli"
	"github.com/custodia-labs/graphrelay/internal/config"
	"github.com/custodia-labs/graphrelay/internal/connectors/microsoft"
	"github.com/custodia-labs/graphrelay/internal/core/ports/driven"
	"github.com/custodia-labs/graphrelay/internal/core/services"
	"github.com/custodia-labs/graphrelay/internal/logger"
)

// sessionStore is a SessionStore that reports its location.
type sessionStore interface {
	driven.SessionStore
	Path() string
}

// bootstrap loads configuration and wires every service the CLI needs.
//
//nolint:funlen // wiring requires sequential setup of all dependencies
func bootstrap(ctx context.Context, configPath string, verbose bool) (*cli.Services, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.SetVerbose(verbose || cfg.Verbose)

	// Open the session store for the configured backend
	var store sessionStore
	cleanup := func() {}
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sqlite.NewStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open session database: %w", err)
		}
		store = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close session database: %v", err)
			}
		}
	default:
		fs, err := file.NewStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open session file: %w", err)
		}
		store = fs
	}

	endpoint := microsoft.Endpoint(cfg.Identity.Authority, cfg.Identity.TenantID)

	// Application mode is only available with a client secret
	var application driven.ApplicationTokenProvider
	if cfg.HasClientSecret() {
		app, err := auth.NewApplication(auth.ApplicationConfig{
			TokenURL:     endpoint.TokenURL,
			ClientID:     cfg.Identity.ClientID,
			ClientSecret: cfg.Identity.ClientSecret,
			Scopes:       microsoft.ApplicationScopes(),
			Timeout:      cfg.Timeouts.Provider.Duration,
			Leeway:       cfg.Timeouts.ExpiryLeeway.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("configure application mode: %w", err)
		}
		application = app
	} else {
		logger.Debug("no client secret configured, application mode disabled")
	}

	delegated, err := auth.NewDelegated(ctx, auth.DelegatedConfig{
		Endpoint:     endpoint,
		TenantID:     cfg.Identity.TenantID,
		ClientID:     cfg.Identity.ClientID,
		Scopes:       microsoft.DelegatedScopes(cfg.Identity.DelegatedScopes),
		GraphBaseURL: cfg.Graph.BaseURL,
		Timeout:      cfg.Timeouts.Provider.Duration,
		Leeway:       cfg.Timeouts.ExpiryLeeway.Duration,
	}, store)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("configure delegated mode: %w", err)
	}

	relay, err := microsoft.NewRelay(cfg.Graph.BaseURL, cfg.Timeouts.Remote.Duration, microsoft.RateLimitConfig{
		RequestsPerSecond: cfg.Graph.RequestsPerSecond,
		BurstSize:         cfg.Graph.Burst,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("configure graph relay: %w", err)
	}

	dispatcher := services.NewDispatcher(application, delegated)

	svc := &cli.Services{
		Graph:      services.NewGraphService(dispatcher, relay),
		Session:    services.NewSessionService(ctx, delegated, store.Path()),
		Dispatcher: dispatcher,
		Config:     cfg,
	}

	// Only the file backend can be shared and watched across processes
	if cfg.Store.Backend == config.BackendFile && cfg.Store.Watch {
		path := store.Path()
		svc.WatchSession = func(ctx context.Context) error {
			return file.Watch(ctx, path, func() {
				if err := delegated.Reload(ctx); err != nil {
					logger.Warn("failed to reload session: %v", err)
					return
				}
				logger.Debug("session reloaded from %s", path)
			})
		}
	}

	return svc, cleanup, nil
}
