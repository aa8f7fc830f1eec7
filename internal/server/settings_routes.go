// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ccgate-dev/ccgate/internal/settings"
	"github.com/ccgate-dev/ccgate/internal/store"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// GatewaySettingsBody is the gateway settings row.
type GatewaySettingsBody struct {
	DebugLog  bool      `json:"debug_log"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimeoutsBody holds the timeout tiers in seconds.
type TimeoutsBody struct {
	StreamFirstByteTimeout int `json:"stream_first_byte_timeout"`
	StreamIdleTimeout      int `json:"stream_idle_timeout"`
	NonStreamTimeout       int `json:"non_stream_timeout"`
}

// CLISettingsBody is the console settings of one CLI type.
type CLISettingsBody struct {
	CLIType           string    `json:"cli_type"`
	Enabled           bool      `json:"enabled"`
	DefaultJSONConfig string    `json:"default_json_config"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SettingsBody is every settings row.
type SettingsBody struct {
	Gateway     GatewaySettingsBody `json:"gateway"`
	Timeouts    TimeoutsBody        `json:"timeouts"`
	CLISettings []CLISettingsBody   `json:"cli_settings"`
}

func gatewayBody(g store.GatewaySettings) GatewaySettingsBody {
	return GatewaySettingsBody{DebugLog: g.DebugLog, UpdatedAt: g.UpdatedAt}
}

func timeoutsBody(t types.TimeoutSettings) TimeoutsBody {
	return TimeoutsBody{
		StreamFirstByteTimeout: t.StreamFirstByteTimeout,
		StreamIdleTimeout:      t.StreamIdleTimeout,
		NonStreamTimeout:       t.NonStreamTimeout,
	}
}

func cliSettingsBody(c store.CLISettings) CLISettingsBody {
	return CLISettingsBody{
		CLIType:           string(c.CLIType),
		Enabled:           c.Enabled,
		DefaultJSONConfig: c.DefaultJSONConfig,
		UpdatedAt:         c.UpdatedAt,
	}
}

type settingsOutput struct {
	Body SettingsBody
}

type gatewayInput struct {
	Body struct {
		DebugLog *bool `json:"debug_log,omitempty" doc:"Log redacted request and response bodies"`
	}
}

type gatewayOutput struct {
	Body GatewaySettingsBody
}

type timeoutsInput struct {
	Body struct {
		StreamFirstByteTimeout *int `json:"stream_first_byte_timeout,omitempty" minimum:"1"`
		StreamIdleTimeout      *int `json:"stream_idle_timeout,omitempty" minimum:"1"`
		NonStreamTimeout       *int `json:"non_stream_timeout,omitempty" minimum:"1"`
	}
}

type timeoutsOutput struct {
	Body TimeoutsBody
}

type cliSettingsInput struct {
	CLIType string `path:"cli_type" enum:"claude_code,codex,gemini"`
	Body    struct {
		Enabled           *bool   `json:"enabled,omitempty"`
		DefaultJSONConfig *string `json:"default_json_config,omitempty" doc:"JSON document or empty"`
	}
}

type cliSettingsOutput struct {
	Body CLISettingsBody
}

func (s *Server) registerSettingsRoutes() {
	tags := []string{"settings"}
	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        AdminPrefix + "/settings",
		Summary:     "Get all settings",
		Tags:        tags,
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-gateway-settings",
		Method:      http.MethodPut,
		Path:        AdminPrefix + "/settings/gateway",
		Summary:     "Update gateway settings",
		Tags:        tags,
	}, s.handleUpdateGateway)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-timeout-settings",
		Method:      http.MethodPut,
		Path:        AdminPrefix + "/settings/timeouts",
		Summary:     "Update timeout tiers; applies to the next request",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest},
	}, s.handleUpdateTimeouts)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-cli-settings",
		Method:      http.MethodPut,
		Path:        AdminPrefix + "/settings/cli/{cli_type}",
		Summary:     "Update the settings of one CLI type",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest},
	}, s.handleUpdateCLI)
}

func (s *Server) handleGetSettings(ctx context.Context, _ *struct{}) (*settingsOutput, error) {
	all, err := s.services.Settings.All(ctx)
	if err != nil {
		return nil, apiError("reading settings", err)
	}
	out := &settingsOutput{}
	out.Body = SettingsBody{
		Gateway:     gatewayBody(all.Gateway),
		Timeouts:    timeoutsBody(all.Timeouts),
		CLISettings: make([]CLISettingsBody, 0, len(all.CLISettings)),
	}
	for _, c := range all.CLISettings {
		out.Body.CLISettings = append(out.Body.CLISettings, cliSettingsBody(c))
	}
	return out, nil
}

func (s *Server) handleUpdateGateway(ctx context.Context, input *gatewayInput) (*gatewayOutput, error) {
	g, err := s.services.Settings.UpdateGateway(ctx, settings.GatewayPatch{DebugLog: input.Body.DebugLog})
	if err != nil {
		return nil, apiError("updating gateway settings", err)
	}
	return &gatewayOutput{Body: gatewayBody(g)}, nil
}

func (s *Server) handleUpdateTimeouts(ctx context.Context, input *timeoutsInput) (*timeoutsOutput, error) {
	t, err := s.services.Settings.UpdateTimeouts(ctx, settings.TimeoutsPatch{
		StreamFirstByteTimeout: input.Body.StreamFirstByteTimeout,
		StreamIdleTimeout:      input.Body.StreamIdleTimeout,
		NonStreamTimeout:       input.Body.NonStreamTimeout,
	})
	if err != nil {
		return nil, apiError("updating timeouts", err)
	}
	s.logger.Info("timeouts updated",
		"stream_first_byte_timeout", t.StreamFirstByteTimeout,
		"stream_idle_timeout", t.StreamIdleTimeout,
		"non_stream_timeout", t.NonStreamTimeout,
	)
	return &timeoutsOutput{Body: timeoutsBody(t)}, nil
}

func (s *Server) handleUpdateCLI(ctx context.Context, input *cliSettingsInput) (*cliSettingsOutput, error) {
	cliType, err := types.ParseCLIType(input.CLIType)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	c, err := s.services.Settings.UpdateCLI(ctx, cliType, settings.CLIPatch{
		Enabled:           input.Body.Enabled,
		DefaultJSONConfig: input.Body.DefaultJSONConfig,
	})
	if err != nil {
		return nil, apiError("updating cli settings", err)
	}
	return &cliSettingsOutput{Body: cliSettingsBody(c)}, nil
}
