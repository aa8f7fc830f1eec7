// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the retention job daily at 03:00.
const DefaultPruneSchedule = "0 3 * * *"

// Pruner deletes usage rows older than the retention window on a cron
// schedule. A zero retention disables it.
type Pruner struct {
	usage         store.UsageStore
	retentionDays int
	schedule      cron.Schedule
	logger        *slog.Logger
	now           func() time.Time

	cron *cron.Cron
}

// NewPruner validates the cron expression and returns a stopped Pruner.
func NewPruner(usage store.UsageStore, retentionDays int, schedule string, logger *slog.Logger) (*Pruner, error) {
	if retentionDays < 0 {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigValidateInvalidValue, "stats.retention_days must be >= 0, got %d", retentionDays)
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, ccgerr.Wrapf(err, ccgerr.CodeConfigValidateInvalidValue, "invalid stats.prune_schedule %q", schedule)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		usage:         usage,
		retentionDays: retentionDays,
		schedule:      sched,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// SetNowFunc overrides the clock used to compute the cutoff date.
func (p *Pruner) SetNowFunc(fn func() time.Time) {
	p.now = fn
}

// Cutoff returns the oldest usage_date that is kept.
func (p *Pruner) Cutoff() string {
	return p.now().AddDate(0, 0, -p.retentionDays).Format(store.DateLayout)
}

// PruneOnce deletes every row dated before Cutoff.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	if p.retentionDays == 0 {
		return 0, nil
	}
	cutoff := p.Cutoff()
	n, err := p.usage.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "pruning usage rows")
	}
	p.logger.Info("usage rows pruned", "before", cutoff, "rows", n)
	return n, nil
}

// Start schedules the retention job. It is a no-op when retention is off.
func (p *Pruner) Start() {
	if p.retentionDays == 0 || p.cron != nil {
		return
	}
	p.cron = cron.New()
	p.cron.Schedule(p.schedule, cron.FuncJob(func() {
		if _, err := p.PruneOnce(context.Background()); err != nil {
			p.logger.Warn("usage prune failed", "error", err)
		}
	}))
	p.cron.Start()
	p.logger.Info("usage retention scheduled", "retention_days", p.retentionDays)
}

// Stop halts the scheduler and waits for a running job to finish or ctx
// to end.
func (p *Pruner) Stop(ctx context.Context) {
	if p.cron == nil {
		return
	}
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
	p.cron = nil
}
