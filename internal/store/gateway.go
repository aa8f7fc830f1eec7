// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package store

import (
	"context"
	"time"

	"github.com/ccgate-dev/ccgate/pkg/types"
)

// GatewayStore groups every persistent table the gateway owns.
type GatewayStore interface {
	Providers() ProviderStore
	Settings() SettingsStore
	Usage() UsageStore
	Close() error
}

// ProviderStore persists providers and their model maps.
type ProviderStore interface {
	// List returns providers ordered by sort_order. An empty cliType lists
	// every provider ordered by cli_type then sort_order.
	List(ctx context.Context, cliType types.CLIType) ([]*types.Provider, error)
	Get(ctx context.Context, id int64) (*types.Provider, error)
	// Create assigns ID and appends the provider at max(sort_order)+1 with
	// zeroed health fields.
	Create(ctx context.Context, p *types.Provider) error
	// Update writes the operator-owned fields and replaces the model maps.
	// Health fields and sort_order are left untouched.
	Update(ctx context.Context, p *types.Provider) error
	// Delete removes the provider and compacts the remaining order.
	Delete(ctx context.Context, id int64) error
	// Reorder sets sort_order to the index of each id. ids must be exactly
	// the provider id set of cliType.
	Reorder(ctx context.Context, cliType types.CLIType, ids []int64) error
	UpdateHealth(ctx context.Context, id int64, failures int, until *time.Time) error
}

// SettingsStore persists the singleton settings rows.
type SettingsStore interface {
	Gateway(ctx context.Context) (*GatewaySettings, error)
	UpdateGateway(ctx context.Context, s *GatewaySettings) error
	Timeouts(ctx context.Context) (*TimeoutRecord, error)
	UpdateTimeouts(ctx context.Context, t types.TimeoutSettings) error
	CLISettings(ctx context.Context, cliType types.CLIType) (*CLISettings, error)
	ListCLISettings(ctx context.Context) ([]*CLISettings, error)
	UpdateCLISettings(ctx context.Context, s *CLISettings) error
}

// UsageStore persists per-day usage counters.
type UsageStore interface {
	// Record adds delta to the (date, provider, cli_type) row atomically.
	Record(ctx context.Context, delta UsageDelta) error
	Daily(ctx context.Context, filter UsageFilter) ([]*DailyStats, error)
	ProviderTotals(ctx context.Context, filter UsageFilter) ([]*ProviderTotals, error)
	// PruneBefore deletes rows with usage_date < date and returns the count.
	PruneBefore(ctx context.Context, date string) (int64, error)
}
