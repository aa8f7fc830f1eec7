// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package google probes gemini upstreams through the Gen AI SDK.
package google

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/ccgate-dev/ccgate/internal/provider"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Prober lists models on a Gemini API compatible endpoint.
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

func (p *Prober) Probe(ctx context.Context, baseURL, apiKey string) (provider.ProbeResult, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return provider.ProbeResult{}, ccgerr.Wrapf(err, ccgerr.CodeProviderKeyCheckFailed, "gemini: creating client")
	}

	page, err := client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		var apiErr genai.APIError
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return provider.ProbeResult{}, provider.ProbeError(types.CLIGemini, status, err)
	}

	models := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return provider.ProbeResult{Models: models}, nil
}
