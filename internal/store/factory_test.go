// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package store_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/store"
	_ "github.com/ccgate-dev/ccgate/internal/store/sqlite" // register sqlite backend
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGatewayStore_SQLite(t *testing.T) {
	gs, err := store.NewGatewayStore(&store.StorageConfig{Backend: "sqlite"}, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	assert.NotNil(t, gs.Providers())
	assert.NotNil(t, gs.Settings())
	assert.NotNil(t, gs.Usage())
}

func TestNewGatewayStore_DefaultBackend(t *testing.T) {
	gs, err := store.NewGatewayStore(&store.StorageConfig{}, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, gs.Close())
}

func TestNewGatewayStore_UnknownBackend(t *testing.T) {
	_, err := store.NewGatewayStore(&store.StorageConfig{Backend: "unknown"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
	assert.True(t, ccgerr.HasCode(err, ccgerr.CodeStoreBackendUnsupported))
}

func TestRegisterBackend_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range 10 {
				store.RegisterBackend(fmt.Sprintf("backend-%d-%d", id, j),
					func(_ string) (store.GatewayStore, error) { return nil, nil })
			}
		}(i)
	}
	wg.Wait()
}

func TestCLISettingsValidate(t *testing.T) {
	assert.NoError(t, store.CLISettings{CLIType: types.CLICodex}.Validate())
	assert.NoError(t, store.CLISettings{CLIType: types.CLICodex, DefaultJSONConfig: `{"a":1}`}.Validate())

	err := store.CLISettings{CLIType: types.CLICodex, DefaultJSONConfig: `{broken`}.Validate()
	require.Error(t, err)
	assert.True(t, ccgerr.IsInvalidInput(err))

	assert.Error(t, store.CLISettings{CLIType: "nope"}.Validate())
}

func TestUsageFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  store.UsageFilter
		wantErr bool
	}{
		{"empty", store.UsageFilter{}, false},
		{"range", store.UsageFilter{StartDate: "2026-01-01", EndDate: "2026-01-31"}, false},
		{"same day", store.UsageFilter{StartDate: "2026-01-01", EndDate: "2026-01-01"}, false},
		{"bad start", store.UsageFilter{StartDate: "01/01/2026"}, true},
		{"bad end", store.UsageFilter{EndDate: "2026-13-01"}, true},
		{"reversed", store.UsageFilter{StartDate: "2026-02-01", EndDate: "2026-01-01"}, true},
		{"bad cli type", store.UsageFilter{CLIType: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ccgerr.IsInvalidInput(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
