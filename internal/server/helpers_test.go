// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/provider"
	"github.com/ccgate-dev/ccgate/internal/secrets"
	"github.com/ccgate-dev/ccgate/internal/server"
	"github.com/ccgate-dev/ccgate/internal/settings"
	"github.com/ccgate-dev/ccgate/internal/stats"
	"github.com/ccgate-dev/ccgate/internal/store"
	"github.com/ccgate-dev/ccgate/internal/store/sqlite"
	"github.com/ccgate-dev/ccgate/internal/tokens"
	"github.com/ccgate-dev/ccgate/internal/transport"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/require"
)

const testToken = "gateway-secret"

// harness wires the real registry, health tracker, settings, aggregator,
// dispatcher and HTTP transport over a temporary SQLite database.
type harness struct {
	handler  http.Handler
	auth     *server.Authenticator
	registry *provider.Registry
	health   *provider.HealthTracker
	settings *settings.Service
	stats    *stats.Aggregator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gs, err := sqlite.NewGatewayStore(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	health := provider.NewHealthTracker(gs.Providers(), nil)
	reg, err := provider.NewRegistry(gs.Providers(), health, provider.Defaults{FailureThreshold: 2, BlacklistMinutes: 10}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Load(t.Context()))

	svc, err := settings.NewService(gs.Settings(), types.TimeoutSettings{
		StreamFirstByteTimeout: 2,
		StreamIdleTimeout:      2,
		NonStreamTimeout:       2,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Load(t.Context()))

	agg := stats.NewAggregator(gs.Usage(), nil)
	keys := secrets.NewResolver(nil)

	tr := transport.New(transport.Options{
		Tokens:            tokens.CounterFunc(func(text string) int { return len(text) }),
		GatewayAuthHeader: "X-CCG-Token",
		DebugLog:          svc.DebugLog,
	})
	d, err := dispatch.New(dispatch.Config{
		Candidates: provider.NewSelector(reg, health),
		Health:     health,
		Usage:      agg,
		Transport:  tr,
		Timeouts:   svc,
		Keys:       keys,
	})
	require.NoError(t, err)

	probers := provider.Probers{
		types.CLIClaudeCode: provider.ProberFunc(func(_ context.Context, _, apiKey string) (provider.ProbeResult, error) {
			if apiKey != "sk-good-key-123" {
				return provider.ProbeResult{}, ccgerr.New(ccgerr.CodeProviderKeyInvalid, "invalid claude_code API key (HTTP 401)")
			}
			return provider.ProbeResult{Models: []string{"claude-sonnet-4", "claude-haiku-4"}}, nil
		}),
	}

	auth := server.NewAuthenticator(true, "X-CCG-Token", testToken)
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:7788", Version: "test", Auth: auth}, &server.Services{
		Providers:  reg,
		Health:     health,
		Probers:    probers,
		Keys:       keys,
		Settings:   svc,
		Stats:      agg,
		Dispatcher: d,
	})
	require.NoError(t, err)

	return &harness{handler: srv.Handler(), auth: auth, registry: reg, health: health, settings: svc, stats: agg}
}

// do sends an authenticated request. body is JSON-encoded unless it is
// already a string.
func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doWith(t, method, path, body, http.Header{"X-CCG-Token": {testToken}})
}

func (h *harness) doWith(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *harness) createProvider(t *testing.T, body map[string]any) server.ProviderBody {
	t.Helper()
	w := h.do(t, http.MethodPost, server.AdminPrefix+"/providers", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p server.ProviderBody
	decode(t, w, &p)
	return p
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func storeFilter() store.UsageFilter {
	return store.UsageFilter{}
}
