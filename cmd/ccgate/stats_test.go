// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package main

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/ccgate-dev/ccgate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsQuery(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)

	tests := []struct {
		name  string
		flags map[string]string
		want  url.Values
	}{
		{
			name: "default last seven days",
			want: url.Values{"start_date": {"2026-03-04"}},
		},
		{
			name:  "all days",
			flags: map[string]string{"days": "0"},
			want:  url.Values{},
		},
		{
			name:  "explicit range and filters",
			flags: map[string]string{"start": "2026-01-01", "end": "2026-01-31", "cli-type": "codex", "provider": "4"},
			want: url.Values{
				"start_date":  {"2026-01-01"},
				"end_date":    {"2026-01-31"},
				"cli_type":    {"codex"},
				"provider_id": {"4"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newStatsCmd()
			daily, _, err := cmd.Find([]string{"daily"})
			require.NoError(t, err)
			args := make([]string, 0, len(tt.flags))
			for k, v := range tt.flags {
				args = append(args, "--"+k+"="+v)
			}
			require.NoError(t, daily.ParseFlags(args))

			raw := statsQuery(daily, now)
			if len(tt.want) == 0 {
				assert.Empty(t, raw)
				return
			}
			got, err := url.ParseQuery(raw[1:])
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatsCommands(t *testing.T) {
	gw, addr := startTestGateway(t)

	out, err := runCLI(t, "stats", "providers", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "No usage recorded.")

	p, err := gw.Registry.Create(context.Background(), types.Provider{
		CLIType:          types.CLICodex,
		Name:             "relay-x",
		BaseURL:          "https://relay-x.example.com",
		APIKey:           "sk-x",
		Enabled:          true,
		FailureThreshold: 3,
		BlacklistMinutes: 5,
	})
	require.NoError(t, err)
	require.NoError(t, gw.Stats.RecordSuccess(context.Background(), p.ID, types.CLICodex, 10, 5))

	out, err = runCLI(t, "stats", "providers", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "relay-x")
	assert.Contains(t, out, "100.00%")

	out, err = runCLI(t, "stats", "daily", "--address", addr, "--cli-type", "codex")
	require.NoError(t, err)
	assert.Contains(t, out, time.Now().Format("2006-01-02"))
	assert.Contains(t, out, "relay-x")
}
