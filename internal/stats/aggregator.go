// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package stats records per-day usage counters and derives per-provider
// totals from them.
package stats

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// ProviderStats are totals for one provider over a date range. SuccessRate
// is a percentage rounded to two decimals, 0 without requests.
type ProviderStats struct {
	ProviderID    int64
	ProviderName  string
	TotalRequests int64
	TotalSuccess  int64
	TotalFailure  int64
	SuccessRate   float64
	TotalTokens   int64
}

// Aggregator records request outcomes into the usage_daily counters.
type Aggregator struct {
	usage  store.UsageStore
	logger *slog.Logger
	now    func() time.Time
}

func NewAggregator(usage store.UsageStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{usage: usage, logger: logger, now: time.Now}
}

// SetNowFunc overrides the clock used to pick the usage date.
func (a *Aggregator) SetNowFunc(fn func() time.Time) {
	a.now = fn
}

func (a *Aggregator) today() string {
	return a.now().Format(store.DateLayout)
}

// RecordSuccess counts one successful request with its token usage.
func (a *Aggregator) RecordSuccess(ctx context.Context, providerID int64, cliType types.CLIType, promptTokens, completionTokens int64) error {
	return a.record(ctx, store.UsageDelta{
		Date:             a.today(),
		ProviderID:       providerID,
		CLIType:          cliType,
		Requests:         1,
		Successes:        1,
		PromptTokens:     max(promptTokens, 0),
		CompletionTokens: max(completionTokens, 0),
	})
}

// RecordFailure counts one failed attempt.
func (a *Aggregator) RecordFailure(ctx context.Context, providerID int64, cliType types.CLIType) error {
	return a.record(ctx, store.UsageDelta{
		Date:       a.today(),
		ProviderID: providerID,
		CLIType:    cliType,
		Requests:   1,
		Failures:   1,
	})
}

func (a *Aggregator) record(ctx context.Context, delta store.UsageDelta) error {
	if err := a.usage.Record(ctx, delta); err != nil {
		return ccgerr.Wrap(err, ccgerr.CodeStatsRecordFailure, "recording usage",
			ccgerr.FieldProviderID(delta.ProviderID),
			ccgerr.FieldCLIType(string(delta.CLIType)),
		)
	}
	return nil
}

// Daily returns the usage rows matching filter, newest day first.
func (a *Aggregator) Daily(ctx context.Context, filter store.UsageFilter) ([]store.DailyStats, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	rows, err := a.usage.Daily(ctx, filter)
	if err != nil {
		return nil, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "querying daily stats")
	}
	out := make([]store.DailyStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

// ProviderStats sums usage per provider over filter, busiest provider first.
func (a *Aggregator) ProviderStats(ctx context.Context, filter store.UsageFilter) ([]ProviderStats, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	totals, err := a.usage.ProviderTotals(ctx, filter)
	if err != nil {
		return nil, ccgerr.Wrap(err, ccgerr.CodeStoreDatabaseFailure, "querying provider stats")
	}
	out := make([]ProviderStats, 0, len(totals))
	for _, t := range totals {
		out = append(out, ProviderStats{
			ProviderID:    t.ProviderID,
			ProviderName:  t.ProviderName,
			TotalRequests: t.Requests,
			TotalSuccess:  t.Successes,
			TotalFailure:  t.Failures,
			SuccessRate:   SuccessRate(t.Successes, t.Requests),
			TotalTokens:   t.PromptTokens + t.CompletionTokens,
		})
	}
	return out, nil
}

// SuccessRate returns successes/requests as a percentage rounded to two
// decimals, or 0 when there were no requests.
func SuccessRate(successes, requests int64) float64 {
	if requests <= 0 {
		return 0
	}
	return math.Round(float64(successes)*10000/float64(requests)) / 100
}
