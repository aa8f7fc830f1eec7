// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ccgate-dev/ccgate/internal/store"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

type usageStore struct {
	db *sql.DB
}

func (s *usageStore) Record(ctx context.Context, d store.UsageDelta) error {
	const q = `INSERT INTO usage_daily
(usage_date, provider_id, cli_type, request_count, success_count, failure_count, prompt_tokens, completion_tokens)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(usage_date, provider_id, cli_type) DO UPDATE SET
	request_count     = request_count + excluded.request_count,
	success_count     = success_count + excluded.success_count,
	failure_count     = failure_count + excluded.failure_count,
	prompt_tokens     = prompt_tokens + excluded.prompt_tokens,
	completion_tokens = completion_tokens + excluded.completion_tokens`

	_, err := s.db.ExecContext(ctx, q,
		d.Date, d.ProviderID, string(d.CLIType),
		d.Requests, d.Successes, d.Failures, d.PromptTokens, d.CompletionTokens,
	)
	if err != nil {
		return fmt.Errorf("recording usage for provider %d on %s: %w", d.ProviderID, d.Date, err)
	}
	return nil
}

// whereUsage builds the WHERE clause shared by usage queries.
func whereUsage(f store.UsageFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.StartDate != "" {
		conditions = append(conditions, "u.usage_date >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		conditions = append(conditions, "u.usage_date <= ?")
		args = append(args, f.EndDate)
	}
	if f.CLIType != "" {
		conditions = append(conditions, "u.cli_type = ?")
		args = append(args, string(f.CLIType))
	}
	if f.ProviderID != 0 {
		conditions = append(conditions, "u.provider_id = ?")
		args = append(args, f.ProviderID)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (s *usageStore) Daily(ctx context.Context, f store.UsageFilter) ([]*store.DailyStats, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var qb strings.Builder
	qb.WriteString(`SELECT u.usage_date, u.provider_id, COALESCE(p.name, ''), u.cli_type,
u.request_count, u.success_count, u.failure_count, u.prompt_tokens, u.completion_tokens
FROM usage_daily u LEFT JOIN providers p ON p.id = u.provider_id`)
	where, args := whereUsage(f)
	qb.WriteString(where)
	qb.WriteString(" ORDER BY u.usage_date DESC, u.provider_id ASC, u.cli_type ASC")

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.DailyStats
	for rows.Next() {
		var d store.DailyStats
		var cliType string
		if err := rows.Scan(
			&d.UsageDate, &d.ProviderID, &d.ProviderName, &cliType,
			&d.RequestCount, &d.SuccessCount, &d.FailureCount, &d.PromptTokens, &d.CompletionTokens,
		); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		d.CLIType = types.CLIType(cliType)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}
	return out, nil
}

func (s *usageStore) ProviderTotals(ctx context.Context, f store.UsageFilter) ([]*store.ProviderTotals, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var qb strings.Builder
	qb.WriteString(`SELECT u.provider_id, COALESCE(p.name, ''),
SUM(u.request_count), SUM(u.success_count), SUM(u.failure_count),
SUM(u.prompt_tokens), SUM(u.completion_tokens)
FROM usage_daily u LEFT JOIN providers p ON p.id = u.provider_id`)
	where, args := whereUsage(f)
	qb.WriteString(where)
	qb.WriteString(" GROUP BY u.provider_id ORDER BY SUM(u.request_count) DESC, u.provider_id ASC")

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying provider totals: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.ProviderTotals
	for rows.Next() {
		var t store.ProviderTotals
		if err := rows.Scan(
			&t.ProviderID, &t.ProviderName,
			&t.Requests, &t.Successes, &t.Failures, &t.PromptTokens, &t.CompletionTokens,
		); err != nil {
			return nil, fmt.Errorf("scanning provider totals row: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider totals: %w", err)
	}
	return out, nil
}

func (s *usageStore) PruneBefore(ctx context.Context, date string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM usage_daily WHERE usage_date < ?`, date)
	if err != nil {
		return 0, fmt.Errorf("pruning usage before %s: %w", date, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking pruned rows: %w", err)
	}
	return n, nil
}
