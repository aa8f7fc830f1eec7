// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package openai probes codex upstreams through the OpenAI SDK.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ccgate-dev/ccgate/internal/provider"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Prober lists models on an OpenAI-compatible endpoint.
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

// Probe calls GET <baseURL>/v1/models. Provider base URLs never carry the
// version segment because the inbound path is appended verbatim.
func (p *Prober) Probe(ctx context.Context, baseURL, apiKey string) (provider.ProbeResult, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/v1/"))
	}
	client := openaisdk.NewClient(opts...)

	page, err := client.Models.List(ctx)
	if err != nil {
		var apiErr *openaisdk.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return provider.ProbeResult{}, provider.ProbeError(types.CLICodex, status, err)
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	return provider.ProbeResult{Models: models}, nil
}
