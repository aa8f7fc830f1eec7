// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider

import (
	"context"
	"net/http"
	"time"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// ProbeResult reports a successful upstream probe.
type ProbeResult struct {
	Models  []string
	Latency time.Duration
}

// Prober checks that an upstream accepts a key by listing its models with
// the vendor SDK of one CLI flavor.
type Prober interface {
	Probe(ctx context.Context, baseURL, apiKey string) (ProbeResult, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, baseURL, apiKey string) (ProbeResult, error)

func (f ProberFunc) Probe(ctx context.Context, baseURL, apiKey string) (ProbeResult, error) {
	return f(ctx, baseURL, apiKey)
}

// Probers maps each CLI type to its prober.
type Probers map[types.CLIType]Prober

// Probe runs the prober registered for cliType and measures its latency.
func (ps Probers) Probe(ctx context.Context, cliType types.CLIType, baseURL, apiKey string) (ProbeResult, error) {
	prober, ok := ps[cliType]
	if !ok {
		return ProbeResult{}, ccgerr.Errorf(ccgerr.CodeProviderProbeUnsupported, "no prober for cli type %q", cliType)
	}
	if apiKey == "" {
		return ProbeResult{}, ccgerr.New(ccgerr.CodeProviderKeyInvalid, "api key is empty", ccgerr.FieldCLIType(string(cliType)))
	}

	start := time.Now()
	res, err := prober.Probe(ctx, baseURL, apiKey)
	if err != nil {
		return ProbeResult{}, err
	}
	res.Latency = time.Since(start)
	return res, nil
}

// ProbeError classifies a failed probe by the upstream HTTP status. A zero
// status means the request never got a response.
func ProbeError(cliType types.CLIType, status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ccgerr.Wrapf(err, ccgerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", cliType, status)
	case status >= 400:
		return ccgerr.Wrapf(err, ccgerr.CodeProviderKeyCheckFailed, "%s probe failed (HTTP %d)", cliType, status)
	default:
		return ccgerr.Wrapf(err, ccgerr.CodeProviderKeyCheckFailed, "%s probe failed", cliType)
	}
}
