// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package anthropic probes claude_code upstreams through the Anthropic SDK.
package anthropic

import (
	"context"
	"errors"
	"net/http"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ccgate-dev/ccgate/internal/provider"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Prober lists models on an Anthropic-compatible endpoint.
type Prober struct {
	httpClient *http.Client
}

var _ provider.Prober = (*Prober)(nil)

// New creates a Prober. A nil client uses http.DefaultClient.
func New(httpClient *http.Client) *Prober {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Prober{httpClient: httpClient}
}

// Probe calls GET <baseURL>/v1/models with the key. Retries are disabled so
// the measured latency is a single round trip.
func (p *Prober) Probe(ctx context.Context, baseURL, apiKey string) (provider.ProbeResult, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropicsdk.NewClient(opts...)

	page, err := client.Models.List(ctx, anthropicsdk.ModelListParams{})
	if err != nil {
		var apiErr *anthropicsdk.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return provider.ProbeResult{}, provider.ProbeError(types.CLIClaudeCode, status, err)
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	return provider.ProbeResult{Models: models}, nil
}
