// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"context"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/provider"
	"github.com/ccgate-dev/ccgate/internal/settings"
	"github.com/ccgate-dev/ccgate/internal/stats"
	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/health"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// ProviderRegistry is the provider surface of the admin API.
type ProviderRegistry interface {
	List() []types.Provider
	ListByCLIType(cliType types.CLIType) []types.Provider
	Get(id int64) (types.Provider, error)
	Create(ctx context.Context, p types.Provider) (types.Provider, error)
	Update(ctx context.Context, p types.Provider) (types.Provider, error)
	Delete(ctx context.Context, id int64) error
	Reorder(ctx context.Context, cliType types.CLIType, ids []int64) error
	CLITypeOf(ids []int64) (types.CLIType, error)
}

// HealthController exposes and overrides provider health.
type HealthController interface {
	Snapshot(id int64) (health.Snapshot, bool)
	ResetFailures(ctx context.Context, id int64) error
	Unblacklist(ctx context.Context, id int64) error
}

// ProviderProber checks a provider's key against its upstream.
type ProviderProber interface {
	Probe(ctx context.Context, cliType types.CLIType, baseURL, apiKey string) (provider.ProbeResult, error)
}

// SettingsService reads and patches the runtime settings.
type SettingsService interface {
	All(ctx context.Context) (settings.All, error)
	UpdateGateway(ctx context.Context, patch settings.GatewayPatch) (store.GatewaySettings, error)
	UpdateTimeouts(ctx context.Context, patch settings.TimeoutsPatch) (types.TimeoutSettings, error)
	UpdateCLI(ctx context.Context, cliType types.CLIType, patch settings.CLIPatch) (store.CLISettings, error)
}

// StatsService answers usage queries.
type StatsService interface {
	Daily(ctx context.Context, filter store.UsageFilter) ([]store.DailyStats, error)
	ProviderStats(ctx context.Context, filter store.UsageFilter) ([]stats.ProviderStats, error)
}

// Dispatcher forwards proxied requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be replaced in tests.
type Services struct {
	Providers  ProviderRegistry
	Health     HealthController
	Probers    ProviderProber
	Keys       dispatch.KeyResolver
	Settings   SettingsService
	Stats      StatsService
	Dispatcher Dispatcher
}

// Validate reports the first missing dependency.
func (s *Services) Validate() error {
	switch {
	case s == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "services are required")
	case s.Providers == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "provider registry is required")
	case s.Health == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "health controller is required")
	case s.Probers == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "provider prober is required")
	case s.Keys == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "key resolver is required")
	case s.Settings == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "settings service is required")
	case s.Stats == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "stats service is required")
	case s.Dispatcher == nil:
		return ccgerr.New(ccgerr.CodeServerConfigInvalid, "dispatcher is required")
	}
	return nil
}
