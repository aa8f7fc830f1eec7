// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ccgate-dev/ccgate/internal/store"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// DailyStatsBody is one provider-day of usage.
type DailyStatsBody struct {
	UsageDate        string `json:"usage_date"`
	ProviderID       int64  `json:"provider_id"`
	ProviderName     string `json:"provider_name"`
	CLIType          string `json:"cli_type"`
	RequestCount     int64  `json:"request_count"`
	SuccessCount     int64  `json:"success_count"`
	FailureCount     int64  `json:"failure_count"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

// ProviderStatsBody is one provider's totals over the queried range.
type ProviderStatsBody struct {
	ProviderID    int64   `json:"provider_id"`
	ProviderName  string  `json:"provider_name"`
	TotalRequests int64   `json:"total_requests"`
	TotalSuccess  int64   `json:"total_success"`
	TotalFailure  int64   `json:"total_failure"`
	SuccessRate   float64 `json:"success_rate" doc:"Percentage, two decimals"`
	TotalTokens   int64   `json:"total_tokens"`
}

type statsInput struct {
	StartDate  string `query:"start_date" doc:"Inclusive YYYY-MM-DD"`
	EndDate    string `query:"end_date" doc:"Inclusive YYYY-MM-DD"`
	CLIType    string `query:"cli_type"`
	ProviderID int64  `query:"provider_id"`
}

func (in *statsInput) filter() store.UsageFilter {
	return store.UsageFilter{
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		CLIType:    types.CLIType(in.CLIType),
		ProviderID: in.ProviderID,
	}
}

type dailyStatsOutput struct {
	Body struct {
		Stats []DailyStatsBody `json:"stats"`
	}
}

type providerStatsOutput struct {
	Body struct {
		Stats []ProviderStatsBody `json:"stats"`
	}
}

func (s *Server) registerStatsRoutes() {
	tags := []string{"stats"}
	huma.Register(s.api, huma.Operation{
		OperationID: "daily-stats",
		Method:      http.MethodGet,
		Path:        AdminPrefix + "/stats/daily",
		Summary:     "Usage per provider and day",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest},
	}, s.handleDailyStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "provider-stats",
		Method:      http.MethodGet,
		Path:        AdminPrefix + "/stats/providers",
		Summary:     "Usage totals per provider",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest},
	}, s.handleProviderStats)
}

func (s *Server) handleDailyStats(ctx context.Context, input *statsInput) (*dailyStatsOutput, error) {
	rows, err := s.services.Stats.Daily(ctx, input.filter())
	if err != nil {
		return nil, apiError("querying daily stats", err)
	}
	out := &dailyStatsOutput{}
	out.Body.Stats = make([]DailyStatsBody, 0, len(rows))
	for _, r := range rows {
		out.Body.Stats = append(out.Body.Stats, DailyStatsBody{
			UsageDate:        r.UsageDate,
			ProviderID:       r.ProviderID,
			ProviderName:     r.ProviderName,
			CLIType:          string(r.CLIType),
			RequestCount:     r.RequestCount,
			SuccessCount:     r.SuccessCount,
			FailureCount:     r.FailureCount,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
		})
	}
	return out, nil
}

func (s *Server) handleProviderStats(ctx context.Context, input *statsInput) (*providerStatsOutput, error) {
	rows, err := s.services.Stats.ProviderStats(ctx, input.filter())
	if err != nil {
		return nil, apiError("querying provider stats", err)
	}
	out := &providerStatsOutput{}
	out.Body.Stats = make([]ProviderStatsBody, 0, len(rows))
	for _, r := range rows {
		out.Body.Stats = append(out.Body.Stats, ProviderStatsBody{
			ProviderID:    r.ProviderID,
			ProviderName:  r.ProviderName,
			TotalRequests: r.TotalRequests,
			TotalSuccess:  r.TotalSuccess,
			TotalFailure:  r.TotalFailure,
			SuccessRate:   r.SuccessRate,
			TotalTokens:   r.TotalTokens,
		})
	}
	return out, nil
}
