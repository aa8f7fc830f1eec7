// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package types_test

import (
	"testing"
	"time"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCLIType(t *testing.T) {
	tests := []struct {
		in      string
		want    types.CLIType
		wantErr bool
	}{
		{"claude_code", types.CLIClaudeCode, false},
		{"CODEX", types.CLICodex, false},
		{" gemini ", types.CLIGemini, false},
		{"cursor", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseCLIType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ccgerr.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModelRoleIndexIsStable(t *testing.T) {
	for i, role := range types.AllModelRoles() {
		assert.Equal(t, i, role.Index(), role)
		assert.True(t, role.Valid())
	}
	assert.Equal(t, -1, types.ModelRole("gpt").Index())
	assert.False(t, types.ModelRole("gpt").Valid())
}

func TestModelMapsAbsentVersusDisabled(t *testing.T) {
	maps, err := types.NewModelMaps([]types.ModelMap{
		{Role: types.RoleHaiku, TargetModel: "glm-4.5-air", Enabled: true},
		{Role: types.RoleOpus, TargetModel: "glm-4.6", Enabled: false},
	})
	require.NoError(t, err)

	assert.Nil(t, maps.Get(types.RoleSonnet))
	require.NotNil(t, maps.Get(types.RoleOpus))
	assert.False(t, maps.Get(types.RoleOpus).Enabled)
	assert.Equal(t, "glm-4.5-air", maps.Get(types.RoleHaiku).TargetModel)
	assert.Len(t, maps.List(), 2)
}

func TestNewModelMapsRejectsDuplicateRole(t *testing.T) {
	_, err := types.NewModelMaps([]types.ModelMap{
		{Role: types.RolePrimary, TargetModel: "a", Enabled: true},
		{Role: types.RolePrimary, TargetModel: "b", Enabled: true},
	})
	require.Error(t, err)
	assert.True(t, ccgerr.IsInvalidInput(err))
}

func TestModelMapsSetRejectsEmptyTarget(t *testing.T) {
	var maps types.ModelMaps
	assert.Error(t, maps.Set(types.ModelMap{Role: types.RolePrimary}))
	assert.Error(t, maps.Set(types.ModelMap{Role: "unknown", TargetModel: "x"}))
}

func TestProviderCloneIsDeep(t *testing.T) {
	until := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := types.Provider{BlacklistedUntil: &until}
	require.NoError(t, p.ModelMaps.Set(types.ModelMap{Role: types.RolePrimary, TargetModel: "m", Enabled: true}))

	cp := p.Clone()
	cp.ModelMaps.Get(types.RolePrimary).TargetModel = "changed"
	*cp.BlacklistedUntil = until.Add(time.Hour)

	assert.Equal(t, "m", p.ModelMaps.Get(types.RolePrimary).TargetModel)
	assert.Equal(t, until, *p.BlacklistedUntil)
}

func TestProviderIsBlacklisted(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, types.Provider{}.IsBlacklisted(now))
	assert.True(t, types.Provider{BlacklistedUntil: &future}.IsBlacklisted(now))
	assert.False(t, types.Provider{BlacklistedUntil: &past}.IsBlacklisted(now))
	assert.False(t, types.Provider{BlacklistedUntil: &now}.IsBlacklisted(now))
}

func TestProviderValidate(t *testing.T) {
	valid := types.Provider{
		CLIType:          types.CLICodex,
		Name:             "relay",
		BaseURL:          "https://relay.example.com",
		FailureThreshold: 3,
		BlacklistMinutes: 10,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *types.Provider)
	}{
		{"bad cli type", func(p *types.Provider) { p.CLIType = "x" }},
		{"empty name", func(p *types.Provider) { p.Name = " " }},
		{"empty base url", func(p *types.Provider) { p.BaseURL = "" }},
		{"non-http base url", func(p *types.Provider) { p.BaseURL = "ftp://host" }},
		{"no host", func(p *types.Provider) { p.BaseURL = "https://" }},
		{"zero threshold", func(p *types.Provider) { p.FailureThreshold = 0 }},
		{"negative blacklist", func(p *types.Provider) { p.BlacklistMinutes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, ccgerr.IsInvalidInput(err))
		})
	}
}

func TestTimeoutSettings(t *testing.T) {
	def := types.DefaultTimeoutSettings()
	require.NoError(t, def.Validate())
	assert.Equal(t, 30*time.Second, def.FirstByte())
	assert.Equal(t, 60*time.Second, def.Idle())
	assert.Equal(t, 120*time.Second, def.NonStream())

	bad := def
	bad.StreamIdleTimeout = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, ccgerr.IsInvalidInput(err))
}
