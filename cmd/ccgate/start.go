// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccgate-dev/ccgate/internal/config"
	"github.com/ccgate-dev/ccgate/internal/secrets"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the ccgate gateway",
		Long: `Load configuration, open the database, import seed providers and serve
the admin API and the proxy until interrupted. Edits to the config file are
picked up for the log level, auth and the timeout seed.`,
		RunE: runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().Bool("no-watch", false, "do not reload the config file on change")

	return cmd
}

// loadConfig reads path (or only defaults and env when empty) and resolves
// keyring references among the scalar settings, such as auth.token.
func loadConfig(path string, keys secrets.Store) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	config.SetupEnv(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ccgerr.Errorf(ccgerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	secrets.ResolveViper(v, keys)
	return config.FromViper(v)
}

// resolveDataDir returns --data-dir, then data_dir from config, then the
// default data directory.
func resolveDataDir(cfg *config.Config) (string, error) {
	if dir := viper.GetString("data_dir"); dir != "" {
		return dir, nil
	}
	if cfg != nil && cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return config.DefaultDataDir()
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath := viper.ConfigFileUsed()
	keys := secretStoreFactory()

	cfg, err := loadConfig(cfgPath, keys)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Networking.Listen = listen
	}
	verbose := viper.GetBool("verbose")
	cfg.Verbose = verbose

	logger, level, err := newLogger(cmd.ErrOrStderr(), cfg.Logging, verbose)
	if err != nil {
		return err
	}

	if cfgPath != "" {
		config.WarnInsecurePermissions(cfgPath)
	}

	dataDir, err := resolveDataDir(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := WireGateway(ctx, cfg, dataDir, keys, logger, level)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Warn("closing gateway", "error", err)
		}
	}()

	if noWatch, _ := cmd.Flags().GetBool("no-watch"); !noWatch && cfgPath != "" {
		w, err := config.NewWatcher(cfgPath, config.DefaultReloadDebounce, func(next *config.Config) {
			next.Verbose = verbose
			gw.ApplyConfig(next)
		}, logger.With("component", "config"))
		if err != nil {
			logger.Warn("config reload disabled", "error", err)
		} else {
			w.SetLoadFunc(func(path string) (*config.Config, error) { return loadConfig(path, keys) })
			w.Start()
			defer func() { _ = w.Stop() }()
		}
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting ccgate on %s (data: %s)\n", cfg.Networking.Listen, dataDir)
	logger.Info("starting gateway", "listen", cfg.Networking.Listen, "data_dir", dataDir, "config", cfgPath, "version", version)

	if err := gw.Start(ctx); err != nil {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}
