// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ccgate-dev/ccgate/internal/provider"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, p ...int64) (*provider.HealthTracker, *recordingSink, *fakeClock) {
	t.Helper()
	sink := &recordingSink{}
	clock := newFakeClock()
	h := provider.NewHealthTracker(sink, nil)
	h.SetNowFunc(clock.Now)
	for _, id := range p {
		h.Track(testProvider(id, 3, 10))
	}
	return h, sink, clock
}

func TestHealthTracker_StartsEligible(t *testing.T) {
	h, _, clock := newTracker(t, 1)
	assert.True(t, h.IsEligible(testProvider(1, 3, 10), clock.Now()))
}

func TestHealthTracker_DisabledIsNeverEligible(t *testing.T) {
	h, _, clock := newTracker(t, 1)
	p := testProvider(1, 3, 10)
	p.Enabled = false
	assert.False(t, h.IsEligible(p, clock.Now()))
}

func TestHealthTracker_BlacklistsAtThreshold(t *testing.T) {
	h, sink, clock := newTracker(t, 1)
	ctx := t.Context()
	p := testProvider(1, 3, 10)

	assert.False(t, h.RecordFailure(ctx, 1))
	assert.False(t, h.RecordFailure(ctx, 1))
	assert.True(t, h.IsEligible(p, clock.Now()), "below threshold stays active")

	assert.True(t, h.RecordFailure(ctx, 1))
	assert.False(t, h.IsEligible(p, clock.Now()))

	last := sink.last()
	assert.Equal(t, 3, last.failures)
	require.NotNil(t, last.until)
	assert.Equal(t, clock.Now().Add(10*time.Minute), *last.until)
}

func TestHealthTracker_SuccessResetsStreak(t *testing.T) {
	h, sink, clock := newTracker(t, 1)
	ctx := t.Context()

	h.RecordFailure(ctx, 1)
	h.RecordFailure(ctx, 1)
	h.RecordSuccess(ctx, 1)
	assert.Equal(t, 0, sink.last().failures)

	// Streak starts over: two more failures stay below the threshold.
	h.RecordFailure(ctx, 1)
	h.RecordFailure(ctx, 1)
	assert.True(t, h.IsEligible(testProvider(1, 3, 10), clock.Now()))
}

func TestHealthTracker_SuccessWhileBlacklistedIsIgnored(t *testing.T) {
	h, _, _ := newTracker(t, 1)
	ctx := t.Context()
	for range 3 {
		h.RecordFailure(ctx, 1)
	}

	h.RecordSuccess(ctx, 1)

	snap, ok := h.Snapshot(1)
	require.True(t, ok)
	assert.True(t, snap.IsBlacklisted)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
}

func TestHealthTracker_WindowBoundary(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		eligible bool
	}{
		{"before window end", 10*time.Minute - time.Second, false},
		{"at exact window end", 10 * time.Minute, true},
		{"after window end", 11 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, clock := newTracker(t, 1)
			for range 3 {
				h.RecordFailure(t.Context(), 1)
			}
			start := clock.Now()
			assert.Equal(t, tt.eligible, h.IsEligible(testProvider(1, 3, 10), start.Add(tt.elapsed)))
		})
	}
}

func TestHealthTracker_LazyExpiryResetsCounter(t *testing.T) {
	h, sink, clock := newTracker(t, 1)
	ctx := t.Context()
	for range 3 {
		h.RecordFailure(ctx, 1)
	}
	before := sink.count()

	clock.Advance(10 * time.Minute)
	assert.True(t, h.IsEligible(testProvider(1, 3, 10), clock.Now()))
	assert.Equal(t, before+1, sink.count(), "expiry is written through")

	last := sink.last()
	assert.Equal(t, 0, last.failures)
	assert.Nil(t, last.until)

	// A single failure after recovery does not re-blacklist.
	assert.False(t, h.RecordFailure(ctx, 1))
}

func TestHealthTracker_ResetFailuresKeepsWindow(t *testing.T) {
	h, _, _ := newTracker(t, 1)
	ctx := t.Context()
	for range 3 {
		h.RecordFailure(ctx, 1)
	}

	require.NoError(t, h.ResetFailures(ctx, 1))
	require.NoError(t, h.ResetFailures(ctx, 1))

	snap, ok := h.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.True(t, snap.IsBlacklisted, "reset-failures leaves the blacklist window")
	assert.NotNil(t, snap.BlacklistedUntil)
}

func TestHealthTracker_Unblacklist(t *testing.T) {
	h, _, clock := newTracker(t, 1)
	ctx := t.Context()
	for range 3 {
		h.RecordFailure(ctx, 1)
	}

	require.NoError(t, h.Unblacklist(ctx, 1))
	assert.True(t, h.IsEligible(testProvider(1, 3, 10), clock.Now()))

	snap, _ := h.Snapshot(1)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Nil(t, snap.BlacklistedUntil)
	assert.False(t, snap.IsBlacklisted)
}

func TestHealthTracker_UnknownProvider(t *testing.T) {
	h, _, _ := newTracker(t)
	ctx := t.Context()

	assert.True(t, ccgerr.IsNotFound(h.ResetFailures(ctx, 9)))
	assert.True(t, ccgerr.IsNotFound(h.Unblacklist(ctx, 9)))
	assert.False(t, h.RecordFailure(ctx, 9))
	_, ok := h.Snapshot(9)
	assert.False(t, ok)
}

func TestHealthTracker_TrackSeedsPersistedState(t *testing.T) {
	h, _, clock := newTracker(t)
	until := clock.Now().Add(5 * time.Minute)
	p := testProvider(1, 3, 10)
	p.ConsecutiveFailures = 3
	p.BlacklistedUntil = &until
	h.Track(p)

	assert.False(t, h.IsEligible(p, clock.Now()))
	clock.Advance(5 * time.Minute)
	assert.True(t, h.IsEligible(p, clock.Now()))
}

func TestHealthTracker_ConfigureKeepsState(t *testing.T) {
	h, _, clock := newTracker(t, 1)
	ctx := t.Context()
	h.RecordFailure(ctx, 1)
	h.RecordFailure(ctx, 1)

	h.Configure(testProvider(1, 2, 1))
	snap, _ := h.Snapshot(1)
	assert.Equal(t, 2, snap.ConsecutiveFailures)

	assert.True(t, h.RecordFailure(ctx, 1), "new lower threshold applies to the next failure")
	snap, _ = h.Snapshot(1)
	require.NotNil(t, snap.BlacklistedUntil)
	assert.Equal(t, clock.Now().Add(time.Minute), *snap.BlacklistedUntil)
}

func TestHealthTracker_ConcurrentFailuresAreCounted(t *testing.T) {
	h, _, _ := newTracker(t)
	h.Track(testProvider(1, 1000, 10))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.RecordFailure(t.Context(), 1)
		}()
	}
	wg.Wait()

	snap, _ := h.Snapshot(1)
	assert.Equal(t, 50, snap.ConsecutiveFailures)
}
