// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package types

import (
	"net/url"
	"strings"
	"time"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

// ModelMap maps a model role to a concrete upstream model for one provider.
type ModelMap struct {
	Role        ModelRole
	TargetModel string
	Enabled     bool
}

// ModelMaps holds at most one ModelMap per role, indexed by ModelRole.Index.
// A nil slot means the role is unmapped; a slot with Enabled=false is mapped
// but switched off.
type ModelMaps [ModelRoleCount]*ModelMap

// Get returns the map for role, or nil when none is configured.
func (m ModelMaps) Get(role ModelRole) *ModelMap {
	idx := role.Index()
	if idx < 0 {
		return nil
	}
	return m[idx]
}

// Set stores mm in its role slot, replacing any previous entry.
func (m *ModelMaps) Set(mm ModelMap) error {
	idx := mm.Role.Index()
	if idx < 0 {
		return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "invalid model role: %q", mm.Role)
	}
	if strings.TrimSpace(mm.TargetModel) == "" {
		return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "model map %s: target model is required", mm.Role)
	}
	cp := mm
	m[idx] = &cp
	return nil
}

// List returns the configured maps in role order.
func (m ModelMaps) List() []ModelMap {
	out := make([]ModelMap, 0, ModelRoleCount)
	for _, mm := range m {
		if mm != nil {
			out = append(out, *mm)
		}
	}
	return out
}

// Clone returns a deep copy.
func (m ModelMaps) Clone() ModelMaps {
	var out ModelMaps
	for i, mm := range m {
		if mm != nil {
			cp := *mm
			out[i] = &cp
		}
	}
	return out
}

// NewModelMaps builds a ModelMaps from a list, rejecting duplicate roles.
func NewModelMaps(maps []ModelMap) (ModelMaps, error) {
	var out ModelMaps
	for _, mm := range maps {
		if out.Get(mm.Role) != nil {
			return ModelMaps{}, ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "duplicate model map for role %q", mm.Role)
		}
		if err := out.Set(mm); err != nil {
			return ModelMaps{}, err
		}
	}
	return out, nil
}

// Provider is one upstream endpoint configured for a single CLI type.
//
// ConsecutiveFailures and BlacklistedUntil belong to the health tracker and
// are only written through the dedicated health path.
type Provider struct {
	ID               int64
	CLIType          CLIType
	Name             string
	BaseURL          string
	APIKey           string
	Enabled          bool
	SortOrder        int
	FailureThreshold int
	BlacklistMinutes int
	ModelMaps        ModelMaps

	ConsecutiveFailures int
	BlacklistedUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsBlacklisted reports whether the blacklist window is still open at now.
func (p Provider) IsBlacklisted(now time.Time) bool {
	return p.BlacklistedUntil != nil && p.BlacklistedUntil.After(now)
}

// Clone returns a deep copy that shares no pointers with p.
func (p Provider) Clone() Provider {
	cp := p
	cp.ModelMaps = p.ModelMaps.Clone()
	if p.BlacklistedUntil != nil {
		until := *p.BlacklistedUntil
		cp.BlacklistedUntil = &until
	}
	return cp
}

// Validate checks the operator-supplied fields.
func (p Provider) Validate() error {
	if !p.CLIType.Valid() {
		return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "provider: invalid cli type %q", p.CLIType)
	}
	if strings.TrimSpace(p.Name) == "" {
		return ccgerr.New(ccgerr.CodeProviderInvalidInput, "provider: name is required")
	}
	if err := validateBaseURL(p.BaseURL); err != nil {
		return err
	}
	if p.FailureThreshold <= 0 {
		return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput,
			"provider %s: failure_threshold must be > 0, got %d", p.Name, p.FailureThreshold)
	}
	if p.BlacklistMinutes <= 0 {
		return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput,
			"provider %s: blacklist_minutes must be > 0, got %d", p.Name, p.BlacklistMinutes)
	}
	for i, mm := range p.ModelMaps {
		if mm == nil {
			continue
		}
		if mm.Role.Index() != i {
			return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput,
				"provider %s: model map role %q stored in wrong slot", p.Name, mm.Role)
		}
		if strings.TrimSpace(mm.TargetModel) == "" {
			return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput,
				"provider %s: model map %s has no target model", p.Name, mm.Role)
		}
	}
	return nil
}

func validateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ccgerr.New(ccgerr.CodeProviderInvalidInput, "provider: base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ccgerr.Wrapf(err, ccgerr.CodeProviderInvalidInput, "provider: parsing base_url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "provider: base_url must be http or https, got %q", raw)
	}
	if u.Host == "" {
		return ccgerr.Errorf(ccgerr.CodeProviderInvalidInput, "provider: base_url %q has no host", raw)
	}
	return nil
}
