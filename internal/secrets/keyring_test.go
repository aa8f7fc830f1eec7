// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package secrets_test

import (
	"testing"

	"github.com/ccgate-dev/ccgate/internal/secrets"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func init() {
	keyring.MockInit()
}

func TestKeyringStore_RoundTrip(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "ccgate-test-roundtrip"

	require.NoError(t, ks.Store(svc, "relay-a", "sk-secret-123"))
	val, err := ks.Retrieve(svc, "relay-a")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-123", val)

	require.NoError(t, ks.Store(svc, "relay-a", "sk-rotated"))
	val, err = ks.Retrieve(svc, "relay-a")
	require.NoError(t, err)
	assert.Equal(t, "sk-rotated", val)
}

func TestKeyringStore_NotFound(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := ks.Retrieve("ccgate-test-missing", "nope")
	assert.True(t, ccgerr.HasCode(err, ccgerr.CodeSecretNotFound))

	err = ks.Delete("ccgate-test-missing", "nope")
	assert.True(t, ccgerr.HasCode(err, ccgerr.CodeSecretNotFound))
}

func TestKeyringStore_EmptyRef(t *testing.T) {
	ks := secrets.NewKeyringStore()

	assert.True(t, ccgerr.IsInvalidInput(ks.Store("", "k", "v")))
	assert.True(t, ccgerr.IsInvalidInput(ks.Store("svc", "", "v")))
	_, err := ks.Retrieve("", "k")
	assert.True(t, ccgerr.IsInvalidInput(err))
	assert.True(t, ccgerr.IsInvalidInput(ks.Delete("svc", "")))
}

func TestKeyringStore_ListTracksStoreAndDelete(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "ccgate-test-list"

	keys, err := ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, ks.Store(svc, "a", "1"))
	require.NoError(t, ks.Store(svc, "b", "2"))
	require.NoError(t, ks.Store(svc, "a", "3"))

	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, ks.Delete(svc, "a"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	require.NoError(t, ks.Delete(svc, "b"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
