// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/store"
	"github.com/ccgate-dev/ccgate/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredBackendCreatesDataDir(t *testing.T) {
	dataDir := filepath.Join(testDir(t), "nested", "data")

	gs, err := store.NewGatewayStore(&store.StorageConfig{Backend: "sqlite"}, dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	_, err = os.Stat(filepath.Join(dataDir, sqlite.DBFileName))
	assert.NoError(t, err)
}

func TestRegisteredBackendFailsWhenDBPathIsDirectory(t *testing.T) {
	dataDir := testDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, sqlite.DBFileName), 0o755))

	_, err := store.NewGatewayStore(&store.StorageConfig{Backend: "sqlite"}, dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating gateway store")
}

func TestReopenKeepsData(t *testing.T) {
	path := testDBPath(t, "reopen")

	gs, err := sqlite.NewGatewayStore(path)
	require.NoError(t, err)
	p := newTestProvider("codex", "relay")
	require.NoError(t, gs.Providers().Create(t.Context(), p))
	require.NoError(t, gs.Close())

	gs, err = sqlite.NewGatewayStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	got, err := gs.Providers().Get(t.Context(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "relay", got.Name)
}
