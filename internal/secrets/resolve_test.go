// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package secrets_test

import (
	"testing"

	"github.com/ccgate-dev/ccgate/internal/secrets"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name        string
		ref         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"simple", "keyring://ccgate/relay-a", "ccgate", "relay-a", false},
		{"slashes in key", "keyring://ccgate/codex/relay", "ccgate", "codex/relay", false},
		{"other scheme", "vault://ccgate/k", "", "", true},
		{"missing key", "keyring://ccgate/", "", "", true},
		{"missing service", "keyring:///k", "", "", true},
		{"no slash", "keyring://ccgate", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, key, err := secrets.ParseRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ccgerr.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, service)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestRefRoundTrip(t *testing.T) {
	ref := secrets.Ref(secrets.DefaultService, "codex/relay")
	assert.True(t, secrets.IsRef(ref))
	assert.False(t, secrets.IsRef("sk-plain"))

	service, key, err := secrets.ParseRef(ref)
	require.NoError(t, err)
	assert.Equal(t, secrets.DefaultService, service)
	assert.Equal(t, "codex/relay", key)
}

func TestResolver(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("ccgate-test-resolve", "relay", "sk-from-keyring"))
	r := secrets.NewResolver(ks)

	got, err := r.Resolve(t.Context(), "sk-plain")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", got)

	got, err = r.Resolve(t.Context(), "keyring://ccgate-test-resolve/relay")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", got)

	_, err = r.Resolve(t.Context(), "keyring://ccgate-test-resolve/missing")
	require.Error(t, err)
	assert.True(t, ccgerr.IsNotFound(err), "innermost not-found code is kept")
}

func TestResolveViper(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("ccgate-test-viper", "admin", "tok-123"))

	v := viper.New()
	v.Set("auth.token", "keyring://ccgate-test-viper/admin")
	v.Set("auth.header_name", "X-CCG-Token")
	v.Set("providers.key", "keyring://ccgate-test-viper/missing")

	secrets.ResolveViper(v, ks)

	assert.Equal(t, "tok-123", v.GetString("auth.token"))
	assert.Equal(t, "X-CCG-Token", v.GetString("auth.header_name"))
	assert.Equal(t, "keyring://ccgate-test-viper/missing", v.GetString("providers.key"))
}
