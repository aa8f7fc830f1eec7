// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/provider"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbers_Dispatch(t *testing.T) {
	var gotBase, gotKey string
	probers := provider.Probers{
		types.CLICodex: provider.ProberFunc(func(_ context.Context, baseURL, apiKey string) (provider.ProbeResult, error) {
			gotBase, gotKey = baseURL, apiKey
			return provider.ProbeResult{Models: []string{"m1", "m2"}}, nil
		}),
	}

	res, err := probers.Probe(t.Context(), types.CLICodex, "https://relay.example.com", "sk")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, res.Models)
	assert.Equal(t, "https://relay.example.com", gotBase)
	assert.Equal(t, "sk", gotKey)
	assert.GreaterOrEqual(t, res.Latency.Nanoseconds(), int64(0))

	_, err = probers.Probe(t.Context(), types.CLIGemini, "https://x", "sk")
	assert.True(t, ccgerr.IsInvalidInput(err))

	_, err = probers.Probe(t.Context(), types.CLICodex, "https://x", "")
	assert.True(t, ccgerr.IsUnauthorized(err))
}

func TestProbeError(t *testing.T) {
	root := errors.New("boom")
	tests := []struct {
		status int
		code   ccgerr.Code
	}{
		{401, ccgerr.CodeProviderKeyInvalid},
		{403, ccgerr.CodeProviderKeyInvalid},
		{404, ccgerr.CodeProviderKeyCheckFailed},
		{500, ccgerr.CodeProviderKeyCheckFailed},
		{0, ccgerr.CodeProviderKeyCheckFailed},
	}
	for _, tt := range tests {
		err := provider.ProbeError(types.CLICodex, tt.status, root)
		assert.Equal(t, tt.code, ccgerr.CodeOf(err), "status %d", tt.status)
		assert.ErrorIs(t, err, root)
	}
}
