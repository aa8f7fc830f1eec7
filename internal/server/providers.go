// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ccgate-dev/ccgate/internal/secrets"
	"github.com/ccgate-dev/ccgate/internal/security"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// ModelMapBody is one role mapping of a provider.
type ModelMapBody struct {
	Role        string `json:"role" enum:"primary,reasoning,haiku,sonnet,opus"`
	TargetModel string `json:"target_model"`
	Enabled     bool   `json:"enabled"`
}

// ProviderBody is the admin view of a provider. APIKey is masked unless it
// is a keyring reference. BlacklistedUntil is unix seconds or null.
type ProviderBody struct {
	ID                  int64          `json:"id"`
	CLIType             string         `json:"cli_type"`
	Name                string         `json:"name"`
	BaseURL             string         `json:"base_url"`
	APIKey              string         `json:"api_key"`
	Enabled             bool           `json:"enabled"`
	SortOrder           int            `json:"sort_order"`
	FailureThreshold    int            `json:"failure_threshold"`
	BlacklistMinutes    int            `json:"blacklist_minutes"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	BlacklistedUntil    *int64         `json:"blacklisted_until"`
	IsBlacklisted       bool           `json:"is_blacklisted"`
	ModelMaps           []ModelMapBody `json:"model_maps"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func maskStoredKey(key string) string {
	if secrets.IsRef(key) {
		return key
	}
	return security.MaskKey(key)
}

// providerBody renders p with its live health, which is newer than the
// registry snapshot.
func (s *Server) providerBody(p types.Provider) ProviderBody {
	b := ProviderBody{
		ID:                  p.ID,
		CLIType:             string(p.CLIType),
		Name:                p.Name,
		BaseURL:             p.BaseURL,
		APIKey:              maskStoredKey(p.APIKey),
		Enabled:             p.Enabled,
		SortOrder:           p.SortOrder,
		FailureThreshold:    p.FailureThreshold,
		BlacklistMinutes:    p.BlacklistMinutes,
		ConsecutiveFailures: p.ConsecutiveFailures,
		ModelMaps:           []ModelMapBody{},
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if p.BlacklistedUntil != nil {
		sec := p.BlacklistedUntil.Unix()
		b.BlacklistedUntil = &sec
	}
	b.IsBlacklisted = p.IsBlacklisted(time.Now())
	if snap, ok := s.services.Health.Snapshot(p.ID); ok {
		b.ConsecutiveFailures = snap.ConsecutiveFailures
		b.BlacklistedUntil = snap.UnixOrNil()
		b.IsBlacklisted = snap.IsBlacklisted
	}
	for _, mm := range p.ModelMaps.List() {
		b.ModelMaps = append(b.ModelMaps, ModelMapBody{Role: string(mm.Role), TargetModel: mm.TargetModel, Enabled: mm.Enabled})
	}
	return b
}

func modelMaps(in []ModelMapBody) (types.ModelMaps, error) {
	maps := make([]types.ModelMap, 0, len(in))
	for _, mm := range in {
		maps = append(maps, types.ModelMap{Role: types.ModelRole(mm.Role), TargetModel: mm.TargetModel, Enabled: mm.Enabled})
	}
	return types.NewModelMaps(maps)
}

// --- Request/Response types for huma ---

type listProvidersInput struct {
	CLIType string `query:"cli_type" doc:"Only list providers of this CLI type"`
}

type listProvidersOutput struct {
	Body struct {
		Providers []ProviderBody `json:"providers"`
	}
}

type providerIDInput struct {
	ID int64 `path:"id"`
}

type providerOutput struct {
	Body ProviderBody
}

type createProviderInput struct {
	Body struct {
		CLIType          string         `json:"cli_type" enum:"claude_code,codex,gemini"`
		Name             string         `json:"name"`
		BaseURL          string         `json:"base_url" doc:"Upstream base URL without the API version path"`
		APIKey           string         `json:"api_key" doc:"API key or keyring:// reference"`
		Enabled          *bool          `json:"enabled,omitempty" doc:"Defaults to true"`
		FailureThreshold int            `json:"failure_threshold,omitempty" doc:"Defaults to the gateway default"`
		BlacklistMinutes int            `json:"blacklist_minutes,omitempty" doc:"Defaults to the gateway default"`
		ModelMaps        []ModelMapBody `json:"model_maps,omitempty"`
	}
}

type updateProviderInput struct {
	ID   int64 `path:"id"`
	Body struct {
		CLIType          *string        `json:"cli_type,omitempty" doc:"Must match the current CLI type"`
		Name             *string        `json:"name,omitempty"`
		BaseURL          *string        `json:"base_url,omitempty"`
		APIKey           *string        `json:"api_key,omitempty" doc:"Empty keeps the stored key"`
		Enabled          *bool          `json:"enabled,omitempty"`
		FailureThreshold *int           `json:"failure_threshold,omitempty"`
		BlacklistMinutes *int           `json:"blacklist_minutes,omitempty"`
		ModelMaps        []ModelMapBody `json:"model_maps,omitempty" doc:"Replaces every mapping when present"`
	}
}

type reorderInput struct {
	Body struct {
		CLIType string  `json:"cli_type,omitempty" doc:"Inferred from ids when omitted"`
		IDs     []int64 `json:"ids"`
	}
}

type statusMessageOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

// ProbeBody reports a provider connectivity test.
type ProbeBody struct {
	OK         bool     `json:"ok"`
	LatencyMS  int64    `json:"latency_ms"`
	ModelCount int      `json:"model_count"`
	Models     []string `json:"models,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type probeOutput struct {
	Body ProbeBody
}

func (s *Server) registerProviderRoutes() {
	tags := []string{"providers"}
	huma.Register(s.api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        AdminPrefix + "/providers",
		Summary:     "List providers in priority order",
		Tags:        tags,
	}, s.handleListProviders)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-provider",
		Method:        http.MethodPost,
		Path:          AdminPrefix + "/providers",
		Summary:       "Create a provider at the end of its CLI type's order",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, s.handleCreateProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-provider",
		Method:      http.MethodGet,
		Path:        AdminPrefix + "/providers/{id}",
		Summary:     "Get a provider",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, s.handleGetProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-provider",
		Method:      http.MethodPut,
		Path:        AdminPrefix + "/providers/{id}",
		Summary:     "Update a provider; omitted fields are unchanged",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, s.handleUpdateProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-provider",
		Method:      http.MethodDelete,
		Path:        AdminPrefix + "/providers/{id}",
		Summary:     "Delete a provider",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, s.handleDeleteProvider)

	huma.Register(s.api, huma.Operation{
		OperationID: "reorder-providers",
		Method:      http.MethodPost,
		Path:        AdminPrefix + "/providers/reorder",
		Summary:     "Set the priority order of one CLI type",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest},
	}, s.handleReorderProviders)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-provider-failures",
		Method:      http.MethodPost,
		Path:        AdminPrefix + "/providers/{id}/reset-failures",
		Summary:     "Reset the consecutive failure counter",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, s.handleResetFailures)

	huma.Register(s.api, huma.Operation{
		OperationID: "unblacklist-provider",
		Method:      http.MethodPost,
		Path:        AdminPrefix + "/providers/{id}/unblacklist",
		Summary:     "Return a blacklisted provider to service",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}, s.handleUnblacklist)

	huma.Register(s.api, huma.Operation{
		OperationID: "test-provider",
		Method:      http.MethodPost,
		Path:        AdminPrefix + "/providers/{id}/test",
		Summary:     "Probe the provider's upstream with its key",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, s.handleTestProvider)
}

// --- Handlers ---

func (s *Server) handleListProviders(_ context.Context, input *listProvidersInput) (*listProvidersOutput, error) {
	var list []types.Provider
	if input.CLIType == "" {
		list = s.services.Providers.List()
	} else {
		cliType, err := types.ParseCLIType(input.CLIType)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		list = s.services.Providers.ListByCLIType(cliType)
	}

	out := &listProvidersOutput{}
	out.Body.Providers = make([]ProviderBody, 0, len(list))
	for _, p := range list {
		out.Body.Providers = append(out.Body.Providers, s.providerBody(p))
	}
	return out, nil
}

func (s *Server) handleCreateProvider(ctx context.Context, input *createProviderInput) (*providerOutput, error) {
	cliType, err := types.ParseCLIType(input.Body.CLIType)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	maps, err := modelMaps(input.Body.ModelMaps)
	if err != nil {
		return nil, apiError("invalid model maps", err)
	}

	p, err := s.services.Providers.Create(ctx, types.Provider{
		CLIType:          cliType,
		Name:             input.Body.Name,
		BaseURL:          input.Body.BaseURL,
		APIKey:           input.Body.APIKey,
		Enabled:          input.Body.Enabled == nil || *input.Body.Enabled,
		FailureThreshold: input.Body.FailureThreshold,
		BlacklistMinutes: input.Body.BlacklistMinutes,
		ModelMaps:        maps,
	})
	if err != nil {
		return nil, apiError("creating provider", err)
	}
	return &providerOutput{Body: s.providerBody(p)}, nil
}

func (s *Server) handleGetProvider(_ context.Context, input *providerIDInput) (*providerOutput, error) {
	p, err := s.services.Providers.Get(input.ID)
	if err != nil {
		return nil, apiError("getting provider", err)
	}
	return &providerOutput{Body: s.providerBody(p)}, nil
}

func (s *Server) handleUpdateProvider(ctx context.Context, input *updateProviderInput) (*providerOutput, error) {
	p, err := s.services.Providers.Get(input.ID)
	if err != nil {
		return nil, apiError("updating provider", err)
	}

	body := input.Body
	if body.CLIType != nil {
		cliType, err := types.ParseCLIType(*body.CLIType)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		p.CLIType = cliType
	}
	if body.Name != nil {
		p.Name = *body.Name
	}
	if body.BaseURL != nil {
		p.BaseURL = *body.BaseURL
	}
	if body.APIKey != nil && *body.APIKey != "" {
		p.APIKey = *body.APIKey
	}
	if body.Enabled != nil {
		p.Enabled = *body.Enabled
	}
	if body.FailureThreshold != nil {
		p.FailureThreshold = *body.FailureThreshold
	}
	if body.BlacklistMinutes != nil {
		p.BlacklistMinutes = *body.BlacklistMinutes
	}
	if body.ModelMaps != nil {
		maps, err := modelMaps(body.ModelMaps)
		if err != nil {
			return nil, apiError("invalid model maps", err)
		}
		p.ModelMaps = maps
	}

	updated, err := s.services.Providers.Update(ctx, p)
	if err != nil {
		return nil, apiError("updating provider", err)
	}
	return &providerOutput{Body: s.providerBody(updated)}, nil
}

func (s *Server) handleDeleteProvider(ctx context.Context, input *providerIDInput) (*statusMessageOutput, error) {
	if err := s.services.Providers.Delete(ctx, input.ID); err != nil {
		return nil, apiError("deleting provider", err)
	}
	out := &statusMessageOutput{}
	out.Body.Status = "deleted"
	return out, nil
}

func (s *Server) handleReorderProviders(ctx context.Context, input *reorderInput) (*listProvidersOutput, error) {
	var cliType types.CLIType
	var err error
	if input.Body.CLIType != "" {
		cliType, err = types.ParseCLIType(input.Body.CLIType)
	} else {
		cliType, err = s.services.Providers.CLITypeOf(input.Body.IDs)
	}
	if err != nil {
		return nil, apiError("reordering providers", ccgerr.Wrap(err, ccgerr.CodeProviderReorderInvalid, "resolving cli type"))
	}

	if err := s.services.Providers.Reorder(ctx, cliType, input.Body.IDs); err != nil {
		return nil, apiError("reordering providers", err)
	}
	return s.handleListProviders(ctx, &listProvidersInput{CLIType: string(cliType)})
}

func (s *Server) handleResetFailures(ctx context.Context, input *providerIDInput) (*providerOutput, error) {
	p, err := s.services.Providers.Get(input.ID)
	if err != nil {
		return nil, apiError("resetting failures", err)
	}
	if err := s.services.Health.ResetFailures(ctx, p.ID); err != nil {
		return nil, apiError("resetting failures", err)
	}
	s.logger.Info("provider failures reset", "provider_id", p.ID, "provider", p.Name)
	return &providerOutput{Body: s.providerBody(p)}, nil
}

func (s *Server) handleUnblacklist(ctx context.Context, input *providerIDInput) (*providerOutput, error) {
	p, err := s.services.Providers.Get(input.ID)
	if err != nil {
		return nil, apiError("unblacklisting provider", err)
	}
	if err := s.services.Health.Unblacklist(ctx, p.ID); err != nil {
		return nil, apiError("unblacklisting provider", err)
	}
	s.logger.Info("provider unblacklisted", "provider_id", p.ID, "provider", p.Name)
	return &providerOutput{Body: s.providerBody(p)}, nil
}

// handleTestProvider reports key and connectivity problems in the body so
// the console can show them; only unknown providers and unsupported CLI
// types are request errors.
func (s *Server) handleTestProvider(ctx context.Context, input *providerIDInput) (*probeOutput, error) {
	p, err := s.services.Providers.Get(input.ID)
	if err != nil {
		return nil, apiError("testing provider", err)
	}

	out := &probeOutput{}
	key, err := s.services.Keys.Resolve(ctx, p.APIKey)
	if err != nil {
		out.Body.Error = err.Error()
		return out, nil
	}
	res, err := s.services.Probers.Probe(ctx, p.CLIType, p.BaseURL, key)
	if err != nil {
		if ccgerr.HasCode(err, ccgerr.CodeProviderProbeUnsupported) {
			return nil, apiError("testing provider", err)
		}
		s.logger.Info("provider probe failed", "provider_id", p.ID, "provider", p.Name, "error", err)
		out.Body.Error = err.Error()
		return out, nil
	}

	out.Body = ProbeBody{
		OK:         true,
		LatencyMS:  res.Latency.Milliseconds(),
		ModelCount: len(res.Models),
		Models:     res.Models,
	}
	return out, nil
}
