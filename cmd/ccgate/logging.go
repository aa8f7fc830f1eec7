// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/ccgate-dev/ccgate/internal/config"
)

// newLogger builds the process logger. The returned LevelVar lets a config
// reload change the level of the running gateway.
func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) (*slog.Logger, *slog.LevelVar, error) {
	level := new(slog.LevelVar)
	lvl, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), level, nil
}
