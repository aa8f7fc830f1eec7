// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerPath(id int64, suffix string) string {
	return fmt.Sprintf("%s/providers/%d%s", server.AdminPrefix, id, suffix)
}

func relayBody(name string) map[string]any {
	return map[string]any{
		"cli_type": "claude_code",
		"name":     name,
		"base_url": "https://" + name + ".example.com",
		"api_key":  "sk-good-key-123",
	}
}

func TestProviders_CreateAndGet(t *testing.T) {
	h := newHarness(t)

	body := relayBody("relay-a")
	body["model_maps"] = []map[string]any{
		{"role": "sonnet", "target_model": "relay-sonnet", "enabled": true},
	}
	created := h.createProvider(t, body)

	assert.NotZero(t, created.ID)
	assert.Equal(t, "claude_code", created.CLIType)
	assert.Equal(t, "sk-g***-123", created.APIKey)
	assert.True(t, created.Enabled)
	assert.Equal(t, 2, created.FailureThreshold)
	assert.Equal(t, 10, created.BlacklistMinutes)
	assert.Nil(t, created.BlacklistedUntil)
	require.Len(t, created.ModelMaps, 1)
	assert.Equal(t, "relay-sonnet", created.ModelMaps[0].TargetModel)

	w := h.do(t, http.MethodGet, providerPath(created.ID, ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got server.ProviderBody
	decode(t, w, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "sk-g***-123", got.APIKey)

	w = h.do(t, http.MethodGet, providerPath(9999, ""), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviders_KeyringReferenceIsShown(t *testing.T) {
	h := newHarness(t)
	body := relayBody("relay-k")
	body["api_key"] = "keyring://ccgate/relay-k"

	created := h.createProvider(t, body)
	assert.Equal(t, "keyring://ccgate/relay-k", created.APIKey)
}

func TestProviders_CreateErrors(t *testing.T) {
	h := newHarness(t)
	h.createProvider(t, relayBody("relay-a"))

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{name: "duplicate name", body: relayBody("relay-a"), wantCode: http.StatusConflict},
		{
			name: "bad base url",
			body: map[string]any{
				"cli_type": "codex", "name": "x", "base_url": "not a url", "api_key": "k",
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown cli type",
			body: map[string]any{
				"cli_type": "cursor", "name": "x", "base_url": "https://x.example.com", "api_key": "k",
			},
			wantCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, server.AdminPrefix+"/providers", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestProviders_ListFiltersByCLIType(t *testing.T) {
	h := newHarness(t)
	h.createProvider(t, relayBody("relay-a"))
	h.createProvider(t, map[string]any{
		"cli_type": "codex", "name": "codex-a", "base_url": "https://codex.example.com", "api_key": "k",
	})

	var out struct {
		Providers []server.ProviderBody `json:"providers"`
	}
	w := h.do(t, http.MethodGet, server.AdminPrefix+"/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	assert.Len(t, out.Providers, 2)

	w = h.do(t, http.MethodGet, server.AdminPrefix+"/providers?cli_type=codex", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	require.Len(t, out.Providers, 1)
	assert.Equal(t, "codex-a", out.Providers[0].Name)

	w = h.do(t, http.MethodGet, server.AdminPrefix+"/providers?cli_type=cursor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviders_UpdateIsPartial(t *testing.T) {
	h := newHarness(t)
	created := h.createProvider(t, relayBody("relay-a"))

	w := h.do(t, http.MethodPut, providerPath(created.ID, ""), map[string]any{
		"name":    "relay-renamed",
		"api_key": "",
		"enabled": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated server.ProviderBody
	decode(t, w, &updated)
	assert.Equal(t, "relay-renamed", updated.Name)
	assert.False(t, updated.Enabled)
	assert.Equal(t, created.BaseURL, updated.BaseURL)

	stored, err := h.registry.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-good-key-123", stored.APIKey, "empty api_key keeps the stored key")

	w = h.do(t, http.MethodPut, providerPath(created.ID, ""), map[string]any{"cli_type": "gemini"})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = h.do(t, http.MethodPut, providerPath(9999, ""), map[string]any{"name": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviders_UpdateReplacesModelMaps(t *testing.T) {
	h := newHarness(t)
	body := relayBody("relay-a")
	body["model_maps"] = []map[string]any{
		{"role": "sonnet", "target_model": "relay-sonnet", "enabled": true},
		{"role": "haiku", "target_model": "relay-haiku", "enabled": true},
	}
	created := h.createProvider(t, body)

	w := h.do(t, http.MethodPut, providerPath(created.ID, ""), map[string]any{
		"model_maps": []map[string]any{{"role": "opus", "target_model": "relay-opus", "enabled": false}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated server.ProviderBody
	decode(t, w, &updated)
	require.Len(t, updated.ModelMaps, 1)
	assert.Equal(t, "opus", updated.ModelMaps[0].Role)
	assert.False(t, updated.ModelMaps[0].Enabled)
}

func TestProviders_Delete(t *testing.T) {
	h := newHarness(t)
	created := h.createProvider(t, relayBody("relay-a"))

	w := h.do(t, http.MethodDelete, providerPath(created.ID, ""), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodDelete, providerPath(created.ID, ""), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviders_Reorder(t *testing.T) {
	h := newHarness(t)
	a := h.createProvider(t, relayBody("relay-a"))
	b := h.createProvider(t, relayBody("relay-b"))

	w := h.do(t, http.MethodPost, server.AdminPrefix+"/providers/reorder", map[string]any{"ids": []int64{b.ID, a.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Providers []server.ProviderBody `json:"providers"`
	}
	decode(t, w, &out)
	require.Len(t, out.Providers, 2)
	assert.Equal(t, b.ID, out.Providers[0].ID)
	assert.Equal(t, a.ID, out.Providers[1].ID)

	t.Run("incomplete set is rejected", func(t *testing.T) {
		w := h.do(t, http.MethodPost, server.AdminPrefix+"/providers/reorder", map[string]any{
			"cli_type": "claude_code", "ids": []int64{a.ID},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})

	t.Run("unknown id is rejected", func(t *testing.T) {
		w := h.do(t, http.MethodPost, server.AdminPrefix+"/providers/reorder", map[string]any{"ids": []int64{9999}})
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestProviders_HealthOverrides(t *testing.T) {
	h := newHarness(t)
	created := h.createProvider(t, relayBody("relay-a"))

	h.health.RecordFailure(t.Context(), created.ID)
	h.health.RecordFailure(t.Context(), created.ID)

	w := h.do(t, http.MethodGet, providerPath(created.ID, ""), nil)
	var got server.ProviderBody
	decode(t, w, &got)
	assert.True(t, got.IsBlacklisted)
	assert.NotNil(t, got.BlacklistedUntil)
	assert.Equal(t, 2, got.ConsecutiveFailures)

	w = h.do(t, http.MethodPost, providerPath(created.ID, "/reset-failures"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &got)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.True(t, got.IsBlacklisted, "resetting the counter keeps an open window")

	w = h.do(t, http.MethodPost, providerPath(created.ID, "/unblacklist"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &got)
	assert.False(t, got.IsBlacklisted)
	assert.Nil(t, got.BlacklistedUntil)

	w = h.do(t, http.MethodPost, providerPath(9999, "/unblacklist"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviders_Test(t *testing.T) {
	h := newHarness(t)
	good := h.createProvider(t, relayBody("relay-good"))

	bad := relayBody("relay-bad")
	bad["api_key"] = "sk-revoked-key-999"
	revoked := h.createProvider(t, bad)

	gemini := h.createProvider(t, map[string]any{
		"cli_type": "gemini", "name": "gem", "base_url": "https://gem.example.com", "api_key": "g-key-123456",
	})

	var probe server.ProbeBody
	w := h.do(t, http.MethodPost, providerPath(good.ID, "/test"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &probe)
	assert.True(t, probe.OK)
	assert.Equal(t, 2, probe.ModelCount)
	assert.Empty(t, probe.Error)

	probe = server.ProbeBody{}
	w = h.do(t, http.MethodPost, providerPath(revoked.ID, "/test"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &probe)
	assert.False(t, probe.OK)
	assert.Contains(t, probe.Error, "invalid")

	w = h.do(t, http.MethodPost, providerPath(gemini.ID, "/test"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}
