// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/health"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// HealthSink persists health transitions. store.ProviderStore satisfies it.
type HealthSink interface {
	UpdateHealth(ctx context.Context, id int64, failures int, until *time.Time) error
}

// healthCell is the health state of one provider. Every transition happens
// under mu and is written through to the sink before mu is released, so the
// persisted state follows the in-memory order.
type healthCell struct {
	mu           sync.Mutex
	threshold    int
	blacklistFor time.Duration
	failures     int
	until        *time.Time
}

func (c *healthCell) blacklistedLocked(now time.Time) bool {
	return c.until != nil && now.Before(*c.until)
}

// expireLocked clears an elapsed blacklist window. It reports whether the
// state changed.
func (c *healthCell) expireLocked(now time.Time) bool {
	if c.until == nil || now.Before(*c.until) {
		return false
	}
	c.until = nil
	c.failures = 0
	return true
}

func (c *healthCell) snapshotLocked(id int64, now time.Time) health.Snapshot {
	s := health.Snapshot{
		ProviderID:          id,
		ConsecutiveFailures: c.failures,
		IsBlacklisted:       c.blacklistedLocked(now),
	}
	if c.until != nil {
		until := *c.until
		s.BlacklistedUntil = &until
	}
	return s
}

// HealthTracker tracks consecutive failures per provider and opens a
// blacklist window once a provider reaches its failure threshold. There is
// no tracker-wide lock: each provider has its own cell.
type HealthTracker struct {
	cells   sync.Map // int64 -> *healthCell
	sink    HealthSink
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewHealthTracker creates a tracker that writes transitions to sink. A nil
// sink keeps state in memory only.
func NewHealthTracker(sink HealthSink, logger *slog.Logger) *HealthTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthTracker{
		sink:    sink,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the time source (for testing). It must be called
// before the tracker is shared between goroutines.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.nowFunc = fn
}

// Track installs or replaces the cell for p, seeding it with the persisted
// health fields.
func (h *HealthTracker) Track(p types.Provider) {
	c := &healthCell{
		threshold:    p.FailureThreshold,
		blacklistFor: time.Duration(p.BlacklistMinutes) * time.Minute,
		failures:     p.ConsecutiveFailures,
	}
	if p.BlacklistedUntil != nil {
		until := *p.BlacklistedUntil
		c.until = &until
	}
	h.cells.Store(p.ID, c)
}

// Configure applies a new threshold and blacklist duration without touching
// the current health state.
func (h *HealthTracker) Configure(p types.Provider) {
	v, ok := h.cells.Load(p.ID)
	if !ok {
		h.Track(p)
		return
	}
	c := v.(*healthCell)
	c.mu.Lock()
	c.threshold = p.FailureThreshold
	c.blacklistFor = time.Duration(p.BlacklistMinutes) * time.Minute
	c.mu.Unlock()
}

// Forget drops the cell for a deleted provider.
func (h *HealthTracker) Forget(id int64) {
	h.cells.Delete(id)
}

func (h *HealthTracker) cell(id int64) (*healthCell, bool) {
	v, ok := h.cells.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*healthCell), true
}

// persistLocked writes the cell state through to the sink. The caller MUST
// hold c.mu. Failures are logged, the in-memory state stays authoritative.
func (h *HealthTracker) persistLocked(ctx context.Context, id int64, c *healthCell) {
	if h.sink == nil {
		return
	}
	var until *time.Time
	if c.until != nil {
		u := *c.until
		until = &u
	}
	if err := h.sink.UpdateHealth(context.WithoutCancel(ctx), id, c.failures, until); err != nil {
		h.logger.Warn("persisting provider health failed",
			"provider_id", id,
			"consecutive_failures", c.failures,
			"error", err,
		)
	}
}

// RecordSuccess resets the failure streak of an active provider. A success
// reported for a blacklisted provider is ignored.
func (h *HealthTracker) RecordSuccess(ctx context.Context, id int64) {
	c, ok := h.cell(id)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := h.nowFunc()
	if c.blacklistedLocked(now) {
		h.logger.Warn("success reported for blacklisted provider, ignoring",
			"provider_id", id,
			"blacklisted_until", c.until.Format(time.RFC3339),
		)
		return
	}
	expired := c.expireLocked(now)
	if c.failures == 0 && !expired {
		return
	}
	c.failures = 0
	h.persistLocked(ctx, id, c)
}

// RecordFailure extends the failure streak and opens the blacklist window
// once the streak reaches the threshold. It reports whether the provider is
// blacklisted after the call.
func (h *HealthTracker) RecordFailure(ctx context.Context, id int64) bool {
	c, ok := h.cell(id)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := h.nowFunc()
	c.expireLocked(now)
	c.failures++
	if c.threshold > 0 && c.failures >= c.threshold {
		until := now.Add(c.blacklistFor)
		c.until = &until
		h.logger.Warn("provider blacklisted",
			"provider_id", id,
			"consecutive_failures", c.failures,
			"blacklisted_until", until.Format(time.RFC3339),
		)
	}
	h.persistLocked(ctx, id, c)
	return c.blacklistedLocked(now)
}

// IsEligible reports whether p may receive traffic at now: it must be
// enabled and either active or past its blacklist window. Observing an
// elapsed window returns the provider to active with a zero streak.
func (h *HealthTracker) IsEligible(p types.Provider, now time.Time) bool {
	if !p.Enabled {
		return false
	}
	c, ok := h.cell(p.ID)
	if !ok {
		return !p.IsBlacklisted(now)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expireLocked(now) {
		h.logger.Info("provider blacklist window elapsed", "provider_id", p.ID)
		h.persistLocked(context.Background(), p.ID, c)
	}
	return !c.blacklistedLocked(now)
}

// ResetFailures zeroes the failure streak. An open blacklist window is left
// as is. Calling it repeatedly is harmless.
func (h *HealthTracker) ResetFailures(ctx context.Context, id int64) error {
	c, ok := h.cell(id)
	if !ok {
		return ccgerr.New(ccgerr.CodeProviderNotFound, "provider not tracked", ccgerr.FieldProviderID(id))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	h.persistLocked(ctx, id, c)
	return nil
}

// Unblacklist returns the provider to active immediately.
func (h *HealthTracker) Unblacklist(ctx context.Context, id int64) error {
	c, ok := h.cell(id)
	if !ok {
		return ccgerr.New(ccgerr.CodeProviderNotFound, "provider not tracked", ccgerr.FieldProviderID(id))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.until = nil
	c.failures = 0
	h.persistLocked(ctx, id, c)
	return nil
}

// Snapshot returns the current health of a provider. An elapsed blacklist
// window is cleared as a side effect.
func (h *HealthTracker) Snapshot(id int64) (health.Snapshot, bool) {
	c, ok := h.cell(id)
	if !ok {
		return health.Snapshot{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := h.nowFunc()
	if c.expireLocked(now) {
		h.persistLocked(context.Background(), id, c)
	}
	return c.snapshotLocked(id, now), true
}
