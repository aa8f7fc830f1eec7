// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ccgate-dev/ccgate/internal/config"
	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/provider"
	anthropicprov "github.com/ccgate-dev/ccgate/internal/provider/anthropic"
	googleprov "github.com/ccgate-dev/ccgate/internal/provider/google"
	openaiprov "github.com/ccgate-dev/ccgate/internal/provider/openai"
	"github.com/ccgate-dev/ccgate/internal/secrets"
	"github.com/ccgate-dev/ccgate/internal/server"
	"github.com/ccgate-dev/ccgate/internal/settings"
	"github.com/ccgate-dev/ccgate/internal/stats"
	"github.com/ccgate-dev/ccgate/internal/store"
	_ "github.com/ccgate-dev/ccgate/internal/store/sqlite" // register sqlite backend
	"github.com/ccgate-dev/ccgate/internal/tokens"
	"github.com/ccgate-dev/ccgate/internal/transport"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// probeTimeout bounds one provider connectivity test.
const probeTimeout = 15 * time.Second

// Gateway holds all wired subsystems and manages their lifecycle.
type Gateway struct {
	Server   *server.Server
	Store    store.GatewayStore
	Registry *provider.Registry
	Health   *provider.HealthTracker
	Settings *settings.Service
	Stats    *stats.Aggregator
	Pruner   *stats.Pruner
	Auth     *server.Authenticator

	logger *slog.Logger
	level  *slog.LevelVar
}

// WireGateway creates all subsystems and wires them together. The dataDir
// holds the gateway database.
func WireGateway(ctx context.Context, cfg *config.Config, dataDir string, keys secrets.Store, logger *slog.Logger, level *slog.LevelVar) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gs, err := store.NewGatewayStore(&store.StorageConfig{Backend: cfg.Storage.Backend}, dataDir)
	if err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeCLISetupFailure, "creating gateway store: %w", err)
	}
	fail := func(err error) (*Gateway, error) {
		_ = gs.Close()
		return nil, err
	}

	health := provider.NewHealthTracker(gs.Providers(), logger.With("component", "health"))
	reg, err := provider.NewRegistry(gs.Providers(), health, cfg.Defaults.Registry(), logger.With("component", "registry"))
	if err != nil {
		return fail(ccgerr.Wrap(err, ccgerr.CodeCLISetupFailure, "creating provider registry"))
	}
	if err := reg.Load(ctx); err != nil {
		return fail(ccgerr.Wrap(err, ccgerr.CodeCLISetupFailure, "loading providers"))
	}
	if n, err := config.SeedProviders(ctx, reg, cfg.Providers, cfg.Defaults.Registry(), logger); err != nil {
		return fail(err)
	} else if n > 0 {
		logger.Info("seed providers imported", "count", n)
	}

	settingsSvc, err := settings.NewService(gs.Settings(), cfg.Timeouts.Settings(), logger.With("component", "settings"))
	if err != nil {
		return fail(ccgerr.Wrap(err, ccgerr.CodeCLISetupFailure, "creating settings service"))
	}
	if err := settingsSvc.Load(ctx); err != nil {
		return fail(ccgerr.Wrap(err, ccgerr.CodeCLISetupFailure, "loading settings"))
	}

	agg := stats.NewAggregator(gs.Usage(), logger.With("component", "stats"))
	pruner, err := stats.NewPruner(gs.Usage(), cfg.Stats.RetentionDays, cfg.Stats.PruneSchedule, logger.With("component", "retention"))
	if err != nil {
		return fail(err)
	}

	httpClient := transport.NewClient(cfg.Transport.ConnectTimeout, cfg.Transport.MaxIdleConns)
	tr := transport.New(transport.Options{
		Client:            httpClient,
		MaxBodyBytes:      cfg.Transport.MaxBodyBytes,
		Tokens:            tokens.Default(),
		GatewayAuthHeader: cfg.Auth.HeaderName,
		DebugLog:          settingsSvc.DebugLog,
		Logger:            logger.With("component", "transport"),
	})

	resolver := secrets.NewResolver(keys)
	d, err := dispatch.New(dispatch.Config{
		Candidates: provider.NewSelector(reg, health),
		Health:     health,
		Usage:      agg,
		Transport:  tr,
		Timeouts:   settingsSvc,
		Keys:       resolver,
		Logger:     logger.With("component", "dispatch"),
	})
	if err != nil {
		return fail(err)
	}

	probeClient := &http.Client{Transport: httpClient.Transport, Timeout: probeTimeout}
	probers := provider.Probers{
		types.CLIClaudeCode: anthropicprov.New(probeClient),
		types.CLICodex:      openaiprov.New(probeClient),
		types.CLIGemini:     googleprov.New(probeClient),
	}

	auth := server.NewAuthenticator(cfg.Auth.Enabled, cfg.Auth.HeaderName, cfg.Auth.Token)
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled: admin API and proxy accept unauthenticated requests")
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Networking.Listen,
		CORSOrigins:  cfg.Networking.CORSOrigins,
		MaxBodyBytes: cfg.Transport.MaxBodyBytes,
		Version:      version,
		Auth:         auth,
		Logger:       logger.With("component", "server"),
	}, &server.Services{
		Providers:  reg,
		Health:     health,
		Probers:    probers,
		Keys:       resolver,
		Settings:   settingsSvc,
		Stats:      agg,
		Dispatcher: d,
	})
	if err != nil {
		return fail(ccgerr.Wrap(err, ccgerr.CodeCLISetupFailure, "creating server"))
	}

	return &Gateway{
		Server:   srv,
		Store:    gs,
		Registry: reg,
		Health:   health,
		Settings: settingsSvc,
		Stats:    agg,
		Pruner:   pruner,
		Auth:     auth,
		logger:   logger,
		level:    level,
	}, nil
}

// Start runs the retention job and the HTTP server, blocking until the
// context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	gw.Pruner.Start()
	return gw.Server.Start(ctx)
}

// ApplyConfig takes over the hot-reloadable parts of a changed config: log
// level, auth and the timeout seed. Everything else needs a restart.
func (gw *Gateway) ApplyConfig(cfg *config.Config) {
	if gw.level != nil && !cfg.Verbose {
		if lvl, err := config.ParseLevel(cfg.Logging.Level); err == nil {
			gw.level.Set(lvl)
		}
	}
	gw.Auth.Update(cfg.Auth.Enabled, cfg.Auth.Token)
	if err := gw.Settings.SetSeed(cfg.Timeouts.Settings()); err != nil {
		gw.logger.Warn("ignoring reloaded timeouts", "error", err)
	}
	gw.logger.Info("config reloaded", "log_level", cfg.Logging.Level, "auth_enabled", cfg.Auth.Enabled)
}

// Close stops the retention job and releases the store.
func (gw *Gateway) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gw.Pruner.Stop(ctx)
	return gw.Store.Close()
}
