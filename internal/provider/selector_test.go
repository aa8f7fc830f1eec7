// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider_test

import (
	"testing"
	"time"

	"github.com/ccgate-dev/ccgate/internal/provider"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_FiltersAndKeepsOrder(t *testing.T) {
	f := newRegistryFixture(t)
	a := f.create(t, types.CLICodex, "a")
	b := f.create(t, types.CLICodex, "b")
	c := f.create(t, types.CLICodex, "c")
	f.create(t, types.CLIGemini, "g")

	b.Enabled = false
	_, err := f.registry.Update(t.Context(), b)
	require.NoError(t, err)

	sel := provider.NewSelector(f.registry, f.health)
	assert.Equal(t, []int64{a.ID, c.ID}, ids(sel.Candidates(types.CLICodex, f.clock.Now())))

	for range 3 {
		f.health.RecordFailure(t.Context(), a.ID)
	}
	assert.Equal(t, []int64{c.ID}, ids(sel.Candidates(types.CLICodex, f.clock.Now())))

	f.clock.Advance(10 * time.Minute)
	assert.Equal(t, []int64{a.ID, c.ID}, ids(sel.Candidates(types.CLICodex, f.clock.Now())),
		"blacklisted provider returns to its original slot after the window")
}

func TestSelector_EmptyIsValid(t *testing.T) {
	f := newRegistryFixture(t)
	sel := provider.NewSelector(f.registry, f.health)
	assert.Empty(t, sel.Candidates(types.CLIClaudeCode, f.clock.Now()))
}
