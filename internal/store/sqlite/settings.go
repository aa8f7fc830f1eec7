// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

type settingsStore struct {
	db *sql.DB
}

func (s *settingsStore) Gateway(ctx context.Context) (*store.GatewaySettings, error) {
	var debug int
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `SELECT debug_log, updated_at FROM gateway_settings WHERE id = 1`).Scan(&debug, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting gateway settings: %w", err)
	}
	gs := &store.GatewaySettings{DebugLog: debug != 0}
	if gs.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing gateway settings updated_at: %w", err)
	}
	return gs, nil
}

func (s *settingsStore) UpdateGateway(ctx context.Context, gs *store.GatewaySettings) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `UPDATE gateway_settings SET debug_log = ?, updated_at = ? WHERE id = 1`,
		boolInt(gs.DebugLog), formatTime(now)); err != nil {
		return fmt.Errorf("updating gateway settings: %w", err)
	}
	gs.UpdatedAt = now
	return nil
}

func (s *settingsStore) Timeouts(ctx context.Context) (*store.TimeoutRecord, error) {
	const q = `SELECT stream_first_byte_timeout, stream_idle_timeout, non_stream_timeout, updated_at
FROM timeout_settings WHERE id = 1`
	var rec store.TimeoutRecord
	var updatedAt string
	err := s.db.QueryRowContext(ctx, q).Scan(
		&rec.StreamFirstByteTimeout, &rec.StreamIdleTimeout, &rec.NonStreamTimeout, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("getting timeout settings: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing timeout settings updated_at: %w", err)
	}
	return &rec, nil
}

func (s *settingsStore) UpdateTimeouts(ctx context.Context, t types.TimeoutSettings) error {
	if err := t.Validate(); err != nil {
		return err
	}
	const q = `UPDATE timeout_settings SET stream_first_byte_timeout = ?, stream_idle_timeout = ?,
non_stream_timeout = ?, updated_at = ? WHERE id = 1`
	if _, err := s.db.ExecContext(ctx, q,
		t.StreamFirstByteTimeout, t.StreamIdleTimeout, t.NonStreamTimeout, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("updating timeout settings: %w", err)
	}
	return nil
}

func (s *settingsStore) CLISettings(ctx context.Context, cliType types.CLIType) (*store.CLISettings, error) {
	const q = `SELECT cli_type, enabled, default_json_config, updated_at FROM cli_settings WHERE cli_type = ?`
	cs, err := scanCLISettings(s.db.QueryRowContext(ctx, q, string(cliType)))
	if err == sql.ErrNoRows {
		return nil, ccgerr.Errorf(ccgerr.CodeStoreSettingsNotFound, "cli settings %s: %w", cliType, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting cli settings %s: %w", cliType, err)
	}
	return cs, nil
}

func (s *settingsStore) ListCLISettings(ctx context.Context) ([]*store.CLISettings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cli_type, enabled, default_json_config, updated_at FROM cli_settings ORDER BY cli_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing cli settings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.CLISettings
	for rows.Next() {
		cs, err := scanCLISettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cli settings row: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cli settings: %w", err)
	}
	return out, nil
}

func (s *settingsStore) UpdateCLISettings(ctx context.Context, cs *store.CLISettings) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	const q = `INSERT INTO cli_settings (cli_type, enabled, default_json_config, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(cli_type) DO UPDATE SET enabled = excluded.enabled,
	default_json_config = excluded.default_json_config, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, string(cs.CLIType), boolInt(cs.Enabled), cs.DefaultJSONConfig, formatTime(now)); err != nil {
		return fmt.Errorf("updating cli settings %s: %w", cs.CLIType, err)
	}
	cs.UpdatedAt = now
	return nil
}

func scanCLISettings(row rowScanner) (*store.CLISettings, error) {
	var cs store.CLISettings
	var cliType, updatedAt string
	var enabled int
	if err := row.Scan(&cliType, &enabled, &cs.DefaultJSONConfig, &updatedAt); err != nil {
		return nil, err
	}
	cs.CLIType = types.CLIType(cliType)
	cs.Enabled = enabled != 0
	var err error
	if cs.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing cli settings %s updated_at: %w", cliType, err)
	}
	return &cs, nil
}
