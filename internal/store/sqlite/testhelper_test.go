// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/store/sqlite"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/require"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ccgate-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

func newTestStore(t *testing.T) *sqlite.GatewayStore {
	t.Helper()
	gs, err := sqlite.NewGatewayStore(testDBPath(t, "gateway"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })
	return gs
}

func newTestProvider(cliType types.CLIType, name string) *types.Provider {
	return &types.Provider{
		CLIType:          cliType,
		Name:             name,
		BaseURL:          "https://" + name + ".example.com",
		APIKey:           "sk-" + name + "-0123456789",
		Enabled:          true,
		FailureThreshold: 3,
		BlacklistMinutes: 10,
	}
}
