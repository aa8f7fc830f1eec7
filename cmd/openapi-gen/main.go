// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccgate-dev/ccgate/internal/dispatch"
	"github.com/ccgate-dev/ccgate/internal/provider"
	"github.com/ccgate-dev/ccgate/internal/server"
	"github.com/ccgate-dev/ccgate/internal/settings"
	"github.com/ccgate-dev/ccgate/internal/stats"
	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/health"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"gopkg.in/yaml.v3"
)

func main() {
	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	spec, err := generateSpec()
	if err == nil && isYAMLPath(outPath) {
		spec, err = toYAML(spec)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	// Handlers are never invoked during spec generation.
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, &server.Services{
		Providers:  stubRegistry{},
		Health:     stubHealth{},
		Probers:    stubProber{},
		Keys:       stubKeys{},
		Settings:   stubSettings{},
		Stats:      stubStats{},
		Dispatcher: stubDispatcher{},
	})
	if err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// toYAML re-encodes a JSON document as block-style YAML.
func toYAML(doc []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(doc, &node); err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeCLISetupFailure, "parsing spec: %w", err)
	}
	clearStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeCLISetupFailure, "encoding spec: %w", err)
	}
	return out, nil
}

func clearStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	for _, c := range n.Content {
		clearStyle(c)
	}
}

type stubRegistry struct{}

func (stubRegistry) List() []types.Provider                       { return nil }
func (stubRegistry) ListByCLIType(types.CLIType) []types.Provider { return nil }
func (stubRegistry) Get(int64) (types.Provider, error)            { return types.Provider{}, nil }
func (stubRegistry) Delete(context.Context, int64) error          { return nil }
func (stubRegistry) CLITypeOf([]int64) (types.CLIType, error)     { return "", nil }
func (stubRegistry) Reorder(context.Context, types.CLIType, []int64) error {
	return nil
}

func (stubRegistry) Create(_ context.Context, p types.Provider) (types.Provider, error) {
	return p, nil
}

func (stubRegistry) Update(_ context.Context, p types.Provider) (types.Provider, error) {
	return p, nil
}

type stubHealth struct{}

func (stubHealth) Snapshot(int64) (health.Snapshot, bool)     { return health.Snapshot{}, false }
func (stubHealth) ResetFailures(context.Context, int64) error { return nil }
func (stubHealth) Unblacklist(context.Context, int64) error   { return nil }

type stubProber struct{}

func (stubProber) Probe(context.Context, types.CLIType, string, string) (provider.ProbeResult, error) {
	return provider.ProbeResult{}, nil
}

type stubKeys struct{}

func (stubKeys) Resolve(_ context.Context, value string) (string, error) { return value, nil }

type stubSettings struct{}

func (stubSettings) All(context.Context) (settings.All, error) { return settings.All{}, nil }
func (stubSettings) UpdateGateway(context.Context, settings.GatewayPatch) (store.GatewaySettings, error) {
	return store.GatewaySettings{}, nil
}

func (stubSettings) UpdateTimeouts(context.Context, settings.TimeoutsPatch) (types.TimeoutSettings, error) {
	return types.TimeoutSettings{}, nil
}

func (stubSettings) UpdateCLI(context.Context, types.CLIType, settings.CLIPatch) (store.CLISettings, error) {
	return store.CLISettings{}, nil
}

type stubStats struct{}

func (stubStats) Daily(context.Context, store.UsageFilter) ([]store.DailyStats, error) {
	return nil, nil
}

func (stubStats) ProviderStats(context.Context, store.UsageFilter) ([]stats.ProviderStats, error) {
	return nil, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(context.Context, dispatch.Request) (*dispatch.Result, error) {
	return nil, ccgerr.New(ccgerr.CodeDispatchNoEligibleProvider, "spec generation")
}
