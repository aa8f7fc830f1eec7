// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ccgate-dev/ccgate/internal/config"
	"github.com/ccgate-dev/ccgate/internal/server"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireGateway(t *testing.T) {
	gw, err := WireGateway(context.Background(), testConfig(t), t.TempDir(), newMockSecretStore(), discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	assert.NotNil(t, gw.Server)
	assert.NotNil(t, gw.Store)
	assert.NotNil(t, gw.Registry)
	assert.NotNil(t, gw.Health)
	assert.NotNil(t, gw.Settings)
	assert.NotNil(t, gw.Stats)
	assert.NotNil(t, gw.Pruner)
	assert.Equal(t, 120, gw.Settings.Timeouts().NonStreamTimeout)
}

func TestWireGateway_SeedsProvidersOnce(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Providers = []config.ProviderConfig{{
		CLIType:   "claude_code",
		Name:      "relay-a",
		BaseURL:   "https://relay-a.example.com",
		APIKey:    "keyring://ccgate/relay-a",
		ModelMaps: map[string]string{"sonnet": "claude-sonnet-4-5"},
	}}

	gw, err := WireGateway(context.Background(), cfg, dir, newMockSecretStore(), discardLogger(), nil)
	require.NoError(t, err)
	ps := gw.Registry.ListByCLIType(types.CLIClaudeCode)
	require.Len(t, ps, 1)
	assert.Equal(t, "relay-a", ps[0].Name)
	assert.Equal(t, cfg.Defaults.FailureThreshold, ps[0].FailureThreshold)
	require.NoError(t, gw.Close())

	// A second start over the same database keeps operator edits.
	cfg.Providers = append(cfg.Providers, config.ProviderConfig{
		CLIType: "codex", Name: "relay-b", BaseURL: "https://relay-b.example.com", APIKey: "k",
	})
	gw, err = WireGateway(context.Background(), cfg, dir, newMockSecretStore(), discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()
	assert.Len(t, gw.Registry.List(), 1)
}

func TestWireGateway_UnsupportedBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "postgres"

	_, err := WireGateway(context.Background(), cfg, t.TempDir(), newMockSecretStore(), discardLogger(), nil)
	assert.Error(t, err)
}

func TestGateway_GracefulShutdown(t *testing.T) {
	gw, err := WireGateway(context.Background(), testConfig(t), t.TempDir(), newMockSecretStore(), discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = gw.Start(ctx)
	assert.NoError(t, err)
}

func TestGateway_ApplyConfig(t *testing.T) {
	gw, err := WireGateway(context.Background(), testConfig(t), t.TempDir(), newMockSecretStore(), discardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	next := testConfig(t)
	next.Auth.Enabled = true
	next.Auth.Token = "reloaded-token"
	next.Timeouts.NonStream = 300
	gw.ApplyConfig(next)

	assert.Equal(t, 300, gw.Settings.Timeouts().NonStreamTimeout)

	req := httptest.NewRequest(http.MethodGet, server.AdminPrefix+"/providers", nil)
	w := httptest.NewRecorder()
	gw.Server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, server.AdminPrefix+"/providers", nil)
	req.Header.Set(config.DefaultAuthHeader, "reloaded-token")
	w = httptest.NewRecorder()
	gw.Server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
