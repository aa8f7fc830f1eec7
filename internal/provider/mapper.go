// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package provider

import "github.com/ccgate-dev/ccgate/pkg/types"

// Resolve returns the upstream model to send to p for a request in role.
// An enabled map for the role wins; otherwise the requested model passes
// through unchanged.
func Resolve(p types.Provider, role types.ModelRole, requested string) string {
	mm := p.ModelMaps.Get(role)
	if mm == nil || !mm.Enabled || mm.TargetModel == "" {
		return requested
	}
	return mm.TargetModel
}
