// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package config

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ccgate-dev/ccgate/internal/provider"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// ProviderConfig is one seed provider. APIKey may be a keyring:// reference;
// it is stored as written and resolved per request. ModelMaps maps a role
// name to the upstream model. Enabled defaults to true.
type ProviderConfig struct {
	CLIType          string            `mapstructure:"cli_type"`
	Name             string            `mapstructure:"name"`
	BaseURL          string            `mapstructure:"base_url"`
	APIKey           string            `mapstructure:"api_key"`
	Enabled          *bool             `mapstructure:"enabled"`
	FailureThreshold int               `mapstructure:"failure_threshold"`
	BlacklistMinutes int               `mapstructure:"blacklist_minutes"`
	ModelMaps        map[string]string `mapstructure:"model_maps"`
}

// Provider converts the seed into a provider, filling health parameters
// from defaults.
func (pc ProviderConfig) Provider(defaults provider.Defaults) (types.Provider, error) {
	cliType, err := types.ParseCLIType(pc.CLIType)
	if err != nil {
		return types.Provider{}, err
	}

	roles := make([]string, 0, len(pc.ModelMaps))
	for role := range pc.ModelMaps {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	maps := make([]types.ModelMap, 0, len(roles))
	for _, role := range roles {
		maps = append(maps, types.ModelMap{Role: types.ModelRole(role), TargetModel: pc.ModelMaps[role], Enabled: true})
	}
	modelMaps, err := types.NewModelMaps(maps)
	if err != nil {
		return types.Provider{}, err
	}

	p := types.Provider{
		CLIType:          cliType,
		Name:             pc.Name,
		BaseURL:          pc.BaseURL,
		APIKey:           pc.APIKey,
		Enabled:          pc.Enabled == nil || *pc.Enabled,
		FailureThreshold: pc.FailureThreshold,
		BlacklistMinutes: pc.BlacklistMinutes,
		ModelMaps:        modelMaps,
	}
	if p.FailureThreshold == 0 {
		p.FailureThreshold = defaults.FailureThreshold
	}
	if p.BlacklistMinutes == 0 {
		p.BlacklistMinutes = defaults.BlacklistMinutes
	}
	if err := p.Validate(); err != nil {
		return types.Provider{}, err
	}
	return p, nil
}

// ProviderCreator is the registry surface used to import seed providers.
type ProviderCreator interface {
	List() []types.Provider
	Create(ctx context.Context, p types.Provider) (types.Provider, error)
}

// SeedProviders imports the configured providers when the registry is
// empty. A populated registry is owned by the admin API and left alone.
func SeedProviders(ctx context.Context, reg ProviderCreator, seeds []ProviderConfig, defaults provider.Defaults, logger *slog.Logger) (int, error) {
	if len(seeds) == 0 || len(reg.List()) > 0 {
		return 0, nil
	}
	created := 0
	for i, pc := range seeds {
		p, err := pc.Provider(defaults)
		if err != nil {
			return created, ccgerr.Wrapf(err, ccgerr.CodeConfigValidateInvalidValue, "seed provider %d", i)
		}
		out, err := reg.Create(ctx, p)
		if err != nil {
			return created, ccgerr.Wrapf(err, ccgerr.CodeConfigValidateInvalidValue, "importing seed provider %q", p.Name)
		}
		logger.Info("imported seed provider", "provider", out.Name, "cli_type", out.CLIType, "provider_id", out.ID)
		created++
	}
	return created, nil
}
