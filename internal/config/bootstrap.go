// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

//go:embed ccgate.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/ccgate/ccgate.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ccgerr.Errorf(ccgerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ccgate", "ccgate.yaml"), nil
}

// DefaultDataDir returns ~/.local/share/ccgate.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ccgerr.Errorf(ccgerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "ccgate"), nil
}

// WriteConfig writes data to path with owner-only permissions. An existing
// file is only replaced when overwrite is set.
func WriteConfig(path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return ccgerr.Errorf(ccgerr.CodeConfigAlreadyExists, "config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return ccgerr.Errorf(ccgerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ccgerr.Errorf(ccgerr.CodeConfigLoadReadFailure, "writing config %s: %w", path, err)
	}
	return nil
}

// BootstrapConfig writes the default commented config to the default path
// if it does not already exist. Returns the path written, or an empty
// string when the file existed or could not be written; failures are
// logged and skipped.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}
	if err := WriteConfig(cfgPath, DefaultConfigYAML, false); err != nil {
		slog.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
