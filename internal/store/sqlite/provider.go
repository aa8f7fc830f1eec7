// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ccgate-dev/ccgate/internal/store"
	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

type providerStore struct {
	db *sql.DB
}

const providerColumns = `id, cli_type, name, base_url, api_key, enabled, sort_order,
failure_threshold, blacklist_minutes, consecutive_failures, blacklisted_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*types.Provider, error) {
	var p types.Provider
	var cliType, createdAt, updatedAt string
	var enabled int
	var until sql.NullString
	if err := row.Scan(
		&p.ID, &cliType, &p.Name, &p.BaseURL, &p.APIKey, &enabled, &p.SortOrder,
		&p.FailureThreshold, &p.BlacklistMinutes, &p.ConsecutiveFailures, &until, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.CLIType = types.CLIType(cliType)
	p.Enabled = enabled != 0

	var err error
	if until.Valid && until.String != "" {
		t, err := parseTime(until.String)
		if err != nil {
			return nil, fmt.Errorf("parsing provider %d blacklisted_until: %w", p.ID, err)
		}
		p.BlacklistedUntil = &t
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing provider %d created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing provider %d updated_at: %w", p.ID, err)
	}
	return &p, nil
}

func (s *providerStore) List(ctx context.Context, cliType types.CLIType) ([]*types.Provider, error) {
	var q strings.Builder
	q.WriteString(`SELECT ` + providerColumns + ` FROM providers`)
	var args []any
	if cliType != "" {
		q.WriteString(` WHERE cli_type = ?`)
		args = append(args, string(cliType))
	}
	q.WriteString(` ORDER BY cli_type ASC, sort_order ASC, id ASC`)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var providers []*types.Provider
	byID := map[int64]*types.Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider row: %w", err)
		}
		providers = append(providers, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider rows: %w", err)
	}

	if err := s.attachModelMaps(ctx, cliType, byID); err != nil {
		return nil, err
	}
	return providers, nil
}

func (s *providerStore) attachModelMaps(ctx context.Context, cliType types.CLIType, byID map[int64]*types.Provider) error {
	if len(byID) == 0 {
		return nil
	}

	q := `SELECT m.provider_id, m.model_role, m.target_model, m.enabled
FROM provider_model_map m JOIN providers p ON p.id = m.provider_id`
	var args []any
	if cliType != "" {
		q += ` WHERE p.cli_type = ?`
		args = append(args, string(cliType))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("loading model maps: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	for rows.Next() {
		var providerID int64
		var role, target string
		var enabled int
		if err := rows.Scan(&providerID, &role, &target, &enabled); err != nil {
			return fmt.Errorf("scanning model map row: %w", err)
		}
		p, ok := byID[providerID]
		if !ok {
			continue
		}
		if err := p.ModelMaps.Set(types.ModelMap{
			Role:        types.ModelRole(role),
			TargetModel: target,
			Enabled:     enabled != 0,
		}); err != nil {
			return fmt.Errorf("loading model map %s for provider %d: %w", role, providerID, err)
		}
	}
	return rows.Err()
}

func (s *providerStore) Get(ctx context.Context, id int64) (*types.Provider, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = ?`, id)
	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, ccgerr.Errorf(ccgerr.CodeStoreProviderNotFound, "provider %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting provider %d: %w", id, err)
	}

	if err := s.attachModelMaps(ctx, p.CLIType, map[int64]*types.Provider{p.ID: p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *providerStore) Create(ctx context.Context, p *types.Provider) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx for provider %s: %w", p.Name, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var next int
	const nextOrder = `SELECT COALESCE(MAX(sort_order), -1) + 1 FROM providers WHERE cli_type = ?`
	if err := tx.QueryRowContext(ctx, nextOrder, string(p.CLIType)).Scan(&next); err != nil {
		return fmt.Errorf("computing sort order for provider %s: %w", p.Name, err)
	}

	now := time.Now().UTC()
	const insertProvider = `INSERT INTO providers
(cli_type, name, base_url, api_key, enabled, sort_order, failure_threshold, blacklist_minutes,
 consecutive_failures, blacklisted_until, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`
	result, err := tx.ExecContext(ctx, insertProvider,
		string(p.CLIType), p.Name, p.BaseURL, p.APIKey, boolInt(p.Enabled), next,
		p.FailureThreshold, p.BlacklistMinutes, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ccgerr.Errorf(ccgerr.CodeStoreProviderConflict,
				"provider %q already exists for %s: %w", p.Name, p.CLIType, store.ErrConflict)
		}
		return fmt.Errorf("inserting provider %s: %w", p.Name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading id for provider %s: %w", p.Name, err)
	}

	if err := insertModelMaps(ctx, tx, id, p.ModelMaps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing provider %s: %w", p.Name, err)
	}

	p.ID = id
	p.SortOrder = next
	p.ConsecutiveFailures = 0
	p.BlacklistedUntil = nil
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *providerStore) Update(ctx context.Context, p *types.Provider) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx for provider update %d: %w", p.ID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const q = `UPDATE providers SET name = ?, base_url = ?, api_key = ?, enabled = ?,
failure_threshold = ?, blacklist_minutes = ?, updated_at = ? WHERE id = ?`
	result, err := tx.ExecContext(ctx, q,
		p.Name, p.BaseURL, p.APIKey, boolInt(p.Enabled),
		p.FailureThreshold, p.BlacklistMinutes, formatTime(now), p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ccgerr.Errorf(ccgerr.CodeStoreProviderConflict,
				"provider %q already exists for %s: %w", p.Name, p.CLIType, store.ErrConflict)
		}
		return fmt.Errorf("updating provider %d: %w", p.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows for provider %d: %w", p.ID, err)
	}
	if rows == 0 {
		return ccgerr.Errorf(ccgerr.CodeStoreProviderNotFound, "provider %d: %w", p.ID, store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM provider_model_map WHERE provider_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clearing model maps for provider %d: %w", p.ID, err)
	}
	if err := insertModelMaps(ctx, tx, p.ID, p.ModelMaps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing provider %d: %w", p.ID, err)
	}
	p.UpdatedAt = now
	return nil
}

func insertModelMaps(ctx context.Context, ex execer, providerID int64, maps types.ModelMaps) error {
	const q = `INSERT INTO provider_model_map (provider_id, model_role, target_model, enabled) VALUES (?, ?, ?, ?)`
	for _, mm := range maps.List() {
		if _, err := ex.ExecContext(ctx, q, providerID, string(mm.Role), mm.TargetModel, boolInt(mm.Enabled)); err != nil {
			return fmt.Errorf("inserting model map %s for provider %d: %w", mm.Role, providerID, err)
		}
	}
	return nil
}

func (s *providerStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx for provider delete %d: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var cliType string
	err = tx.QueryRowContext(ctx, `SELECT cli_type FROM providers WHERE id = ?`, id).Scan(&cliType)
	if err == sql.ErrNoRows {
		return ccgerr.Errorf(ccgerr.CodeStoreProviderNotFound, "provider %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("looking up provider %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting provider %d: %w", id, err)
	}

	remaining, err := orderedIDs(ctx, tx, cliType)
	if err != nil {
		return err
	}
	if err := applyOrder(ctx, tx, remaining); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *providerStore) Reorder(ctx context.Context, cliType types.CLIType, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx for reorder %s: %w", cliType, err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := orderedIDs(ctx, tx, string(cliType))
	if err != nil {
		return err
	}
	if err := sameIDSet(current, ids); err != nil {
		return ccgerr.Errorf(ccgerr.CodeStoreProviderInvalid, "reorder %s: %s: %w", cliType, err.Error(), store.ErrInvalidInput)
	}

	if err := applyOrder(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *providerStore) UpdateHealth(ctx context.Context, id int64, failures int, until *time.Time) error {
	const q = `UPDATE providers SET consecutive_failures = ?, blacklisted_until = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, q, failures, nullTime(until), id)
	if err != nil {
		return fmt.Errorf("updating health for provider %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows for provider %d: %w", id, err)
	}
	if rows == 0 {
		return ccgerr.Errorf(ccgerr.CodeStoreProviderNotFound, "provider %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func orderedIDs(ctx context.Context, tx *sql.Tx, cliType string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM providers WHERE cli_type = ? ORDER BY sort_order ASC, id ASC`, cliType)
	if err != nil {
		return nil, fmt.Errorf("listing provider ids for %s: %w", cliType, err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning provider id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func applyOrder(ctx context.Context, ex execer, ids []int64) error {
	for i, id := range ids {
		if _, err := ex.ExecContext(ctx, `UPDATE providers SET sort_order = ? WHERE id = ?`, i, id); err != nil {
			return fmt.Errorf("setting sort order of provider %d: %w", id, err)
		}
	}
	return nil
}

// sameIDSet reports an error unless want is a permutation of have.
func sameIDSet(have, want []int64) error {
	if len(have) != len(want) {
		return fmt.Errorf("got %d ids, want %d", len(want), len(have))
	}
	known := make(map[int64]bool, len(have))
	for _, id := range have {
		known[id] = false
	}
	for _, id := range want {
		seen, ok := known[id]
		if !ok {
			return fmt.Errorf("id %d does not belong to this cli type", id)
		}
		if seen {
			return fmt.Errorf("duplicate id %d", id)
		}
		known[id] = true
	}
	return nil
}
