// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ccgate-dev/ccgate/internal/provider"
	"github.com/ccgate-dev/ccgate/internal/store/sqlite"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/require"
)

type healthWrite struct {
	id       int64
	failures int
	until    *time.Time
}

// recordingSink captures every health write-through.
type recordingSink struct {
	mu     sync.Mutex
	writes []healthWrite
}

func (s *recordingSink) UpdateHealth(_ context.Context, id int64, failures int, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, healthWrite{id: id, failures: failures, until: until})
	return nil
}

func (s *recordingSink) last() healthWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[len(s.writes)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testProvider(id int64, threshold, minutes int) types.Provider {
	return types.Provider{
		ID:               id,
		CLIType:          types.CLICodex,
		Name:             "p",
		BaseURL:          "https://example.com",
		Enabled:          true,
		FailureThreshold: threshold,
		BlacklistMinutes: minutes,
	}
}

type registryFixture struct {
	registry *provider.Registry
	health   *provider.HealthTracker
	store    *sqlite.GatewayStore
	clock    *fakeClock
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	gs, err := sqlite.NewGatewayStore(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })

	clock := newFakeClock()
	health := provider.NewHealthTracker(gs.Providers(), nil)
	health.SetNowFunc(clock.Now)

	reg, err := provider.NewRegistry(gs.Providers(), health, provider.DefaultDefaults(), nil)
	require.NoError(t, err)
	require.NoError(t, reg.Load(t.Context()))

	return &registryFixture{registry: reg, health: health, store: gs, clock: clock}
}

func (f *registryFixture) create(t *testing.T, cliType types.CLIType, name string) types.Provider {
	t.Helper()
	p, err := f.registry.Create(t.Context(), types.Provider{
		CLIType: cliType,
		Name:    name,
		BaseURL: "https://" + name + ".example.com",
		APIKey:  "sk-" + name,
		Enabled: true,
	})
	require.NoError(t, err)
	return p
}

func ids(ps []types.Provider) []int64 {
	out := make([]int64, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
