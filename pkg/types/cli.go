// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package types

import (
	"strings"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

// CLIType identifies the AI coding CLI flavor a provider serves.
type CLIType string

const (
	CLIClaudeCode CLIType = "claude_code"
	CLICodex      CLIType = "codex"
	CLIGemini     CLIType = "gemini"
)

// AllCLITypes returns every known CLI type in display order.
func AllCLITypes() []CLIType {
	return []CLIType{CLIClaudeCode, CLICodex, CLIGemini}
}

// Valid reports whether c is a recognized CLI type.
func (c CLIType) Valid() bool {
	switch c {
	case CLIClaudeCode, CLICodex, CLIGemini:
		return true
	default:
		return false
	}
}

// ParseCLIType parses a case-insensitive string into a CLIType.
func ParseCLIType(s string) (CLIType, error) {
	c := CLIType(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "invalid cli type: %q", s)
	}
	return c, nil
}

// ModelRole is the semantic slot a request targets. Each provider may map a
// role to a concrete upstream model.
type ModelRole string

const (
	RolePrimary   ModelRole = "primary"
	RoleReasoning ModelRole = "reasoning"
	RoleHaiku     ModelRole = "haiku"
	RoleSonnet    ModelRole = "sonnet"
	RoleOpus      ModelRole = "opus"
)

// ModelRoleCount is the number of model roles.
const ModelRoleCount = 5

var allRoles = [ModelRoleCount]ModelRole{RolePrimary, RoleReasoning, RoleHaiku, RoleSonnet, RoleOpus}

// AllModelRoles returns every model role in slot order.
func AllModelRoles() []ModelRole {
	out := make([]ModelRole, ModelRoleCount)
	copy(out, allRoles[:])
	return out
}

// Index returns the slot index of r, or -1 when r is unknown.
func (r ModelRole) Index() int {
	for i, role := range allRoles {
		if role == r {
			return i
		}
	}
	return -1
}

func (r ModelRole) Valid() bool {
	return r.Index() >= 0
}

// ParseModelRole parses a case-insensitive string into a ModelRole.
func ParseModelRole(s string) (ModelRole, error) {
	r := ModelRole(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "invalid model role: %q", s)
	}
	return r, nil
}
