// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite_test

import (
	"sync"
	"testing"

	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageStore_RecordAccumulates(t *testing.T) {
	gs := newTestStore(t)
	ctx := t.Context()

	p := newTestProvider(types.CLICodex, "relay")
	require.NoError(t, gs.Providers().Create(ctx, p))

	us := gs.Usage()
	require.NoError(t, us.Record(ctx, store.UsageDelta{
		Date: "2026-03-01", ProviderID: p.ID, CLIType: types.CLICodex,
		Requests: 1, Successes: 1, PromptTokens: 10, CompletionTokens: 5,
	}))
	require.NoError(t, us.Record(ctx, store.UsageDelta{
		Date: "2026-03-01", ProviderID: p.ID, CLIType: types.CLICodex,
		Requests: 1, Failures: 1,
	}))

	rows, err := us.Daily(ctx, store.UsageFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "relay", rows[0].ProviderName)
	assert.Equal(t, int64(2), rows[0].RequestCount)
	assert.Equal(t, int64(1), rows[0].SuccessCount)
	assert.Equal(t, int64(1), rows[0].FailureCount)
	assert.Equal(t, int64(10), rows[0].PromptTokens)
	assert.Equal(t, int64(5), rows[0].CompletionTokens)
}

func TestUsageStore_ConcurrentRecordsAreAtomic(t *testing.T) {
	us := newTestStore(t).Usage()
	ctx := t.Context()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				assert.NoError(t, us.Record(ctx, store.UsageDelta{
					Date: "2026-03-01", ProviderID: 1, CLIType: types.CLICodex, Requests: 1, Successes: 1,
				}))
			}
		}()
	}
	wg.Wait()

	rows, err := us.Daily(ctx, store.UsageFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(workers*perWorker), rows[0].RequestCount)
}

func TestUsageStore_FiltersAndTotals(t *testing.T) {
	gs := newTestStore(t)
	ctx := t.Context()
	us := gs.Usage()

	a := newTestProvider(types.CLICodex, "a")
	b := newTestProvider(types.CLIGemini, "b")
	require.NoError(t, gs.Providers().Create(ctx, a))
	require.NoError(t, gs.Providers().Create(ctx, b))

	deltas := []store.UsageDelta{
		{Date: "2026-03-01", ProviderID: a.ID, CLIType: types.CLICodex, Requests: 4, Successes: 3, Failures: 1, PromptTokens: 100, CompletionTokens: 50},
		{Date: "2026-03-02", ProviderID: a.ID, CLIType: types.CLICodex, Requests: 2, Successes: 2, PromptTokens: 20, CompletionTokens: 10},
		{Date: "2026-03-02", ProviderID: b.ID, CLIType: types.CLIGemini, Requests: 1, Failures: 1},
	}
	for _, d := range deltas {
		require.NoError(t, us.Record(ctx, d))
	}

	rows, err := us.Daily(ctx, store.UsageFilter{StartDate: "2026-03-02", EndDate: "2026-03-02"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = us.Daily(ctx, store.UsageFilter{CLIType: types.CLIGemini})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, b.ID, rows[0].ProviderID)

	rows, err = us.Daily(ctx, store.UsageFilter{ProviderID: a.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-02", rows[0].UsageDate, "newest first")

	totals, err := us.ProviderTotals(ctx, store.UsageFilter{})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, a.ID, totals[0].ProviderID)
	assert.Equal(t, int64(6), totals[0].Requests)
	assert.Equal(t, int64(5), totals[0].Successes)
	assert.Equal(t, int64(120), totals[0].PromptTokens)

	_, err = us.Daily(ctx, store.UsageFilter{StartDate: "bad"})
	assert.True(t, ccgerr.IsInvalidInput(err))
}

func TestUsageStore_DeletedProviderKeepsRows(t *testing.T) {
	gs := newTestStore(t)
	ctx := t.Context()

	p := newTestProvider(types.CLICodex, "gone")
	require.NoError(t, gs.Providers().Create(ctx, p))
	require.NoError(t, gs.Usage().Record(ctx, store.UsageDelta{Date: "2026-03-01", ProviderID: p.ID, CLIType: types.CLICodex, Requests: 1}))
	require.NoError(t, gs.Providers().Delete(ctx, p.ID))

	rows, err := gs.Usage().Daily(ctx, store.UsageFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].ProviderName)
}

func TestUsageStore_PruneBefore(t *testing.T) {
	us := newTestStore(t).Usage()
	ctx := t.Context()

	for _, date := range []string{"2026-01-01", "2026-01-15", "2026-02-01"} {
		require.NoError(t, us.Record(ctx, store.UsageDelta{Date: date, ProviderID: 1, CLIType: types.CLICodex, Requests: 1}))
	}

	n, err := us.PruneBefore(ctx, "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := us.Daily(ctx, store.UsageFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
