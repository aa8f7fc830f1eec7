// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider

import (
	"time"

	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Selector produces the ordered failover candidates for a request.
type Selector struct {
	registry *Registry
	health   *HealthTracker
}

func NewSelector(registry *Registry, health *HealthTracker) *Selector {
	return &Selector{registry: registry, health: health}
}

// Candidates returns the eligible providers of cliType in priority order.
// An empty result is valid.
func (s *Selector) Candidates(cliType types.CLIType, now time.Time) []types.Provider {
	all := s.registry.ListByCLIType(cliType)
	out := all[:0]
	for _, p := range all {
		if s.health.IsEligible(p, now) {
			out = append(out, p)
		}
	}
	return out
}
