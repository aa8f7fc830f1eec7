// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/ccgate-dev/ccgate/internal/store"
	"github.com/ccgate-dev/ccgate/pkg/types"
)

// Compile-time interface checks.
var (
	_ store.GatewayStore  = (*GatewayStore)(nil)
	_ store.ProviderStore = (*providerStore)(nil)
	_ store.SettingsStore = (*settingsStore)(nil)
	_ store.UsageStore    = (*usageStore)(nil)
)

// GatewayStore implements store.GatewayStore backed by a single SQLite database.
type GatewayStore struct {
	db        *sql.DB
	providers *providerStore
	settings  *settingsStore
	usage     *usageStore
}

// NewGatewayStore opens (or creates) a SQLite database at dbPath, creates
// the schema and seeds the singleton settings rows.
func NewGatewayStore(dbPath string) (*GatewayStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening gateway db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging gateway db: %w", err)
	}

	if err := migrateGateway(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating gateway db: %w", err)
	}

	return &GatewayStore{
		db:        db,
		providers: &providerStore{db: db},
		settings:  &settingsStore{db: db},
		usage:     &usageStore{db: db},
	}, nil
}

func migrateGateway(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS providers (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	cli_type             TEXT NOT NULL,
	name                 TEXT NOT NULL,
	base_url             TEXT NOT NULL,
	api_key              TEXT NOT NULL DEFAULT '',
	enabled              INTEGER NOT NULL DEFAULT 1,
	sort_order           INTEGER NOT NULL DEFAULT 0,
	failure_threshold    INTEGER NOT NULL DEFAULT 3,
	blacklist_minutes    INTEGER NOT NULL DEFAULT 10,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	blacklisted_until    TEXT,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	UNIQUE (cli_type, name)
);

CREATE INDEX IF NOT EXISTS idx_providers_order ON providers(cli_type, sort_order);

CREATE TABLE IF NOT EXISTS provider_model_map (
	provider_id  INTEGER NOT NULL,
	model_role   TEXT NOT NULL,
	target_model TEXT NOT NULL,
	enabled      INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (provider_id, model_role),
	FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS gateway_settings (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	debug_log  INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS timeout_settings (
	id                        INTEGER PRIMARY KEY CHECK (id = 1),
	stream_first_byte_timeout INTEGER NOT NULL,
	stream_idle_timeout       INTEGER NOT NULL,
	non_stream_timeout        INTEGER NOT NULL,
	updated_at                TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cli_settings (
	cli_type            TEXT PRIMARY KEY,
	enabled             INTEGER NOT NULL DEFAULT 0,
	default_json_config TEXT NOT NULL DEFAULT '{}',
	updated_at          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS usage_daily (
	usage_date        TEXT NOT NULL,
	provider_id       INTEGER NOT NULL,
	cli_type          TEXT NOT NULL,
	request_count     INTEGER NOT NULL DEFAULT 0,
	success_count     INTEGER NOT NULL DEFAULT 0,
	failure_count     INTEGER NOT NULL DEFAULT 0,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (usage_date, provider_id, cli_type)
);

CREATE INDEX IF NOT EXISTS idx_usage_daily_provider ON usage_daily(provider_id, usage_date);

INSERT OR IGNORE INTO gateway_settings (id, debug_log) VALUES (1, 0);
`
	if _, err := db.Exec(ddl); err != nil {
		return err
	}

	def := types.DefaultTimeoutSettings()
	const seedTimeouts = `INSERT OR IGNORE INTO timeout_settings
(id, stream_first_byte_timeout, stream_idle_timeout, non_stream_timeout) VALUES (1, ?, ?, ?)`
	if _, err := db.Exec(seedTimeouts, def.StreamFirstByteTimeout, def.StreamIdleTimeout, def.NonStreamTimeout); err != nil {
		return fmt.Errorf("seeding timeout settings: %w", err)
	}

	for _, c := range types.AllCLITypes() {
		if _, err := db.Exec(`INSERT OR IGNORE INTO cli_settings (cli_type) VALUES (?)`, string(c)); err != nil {
			return fmt.Errorf("seeding cli settings %s: %w", c, err)
		}
	}
	return nil
}

// Providers returns the ProviderStore sub-store.
func (g *GatewayStore) Providers() store.ProviderStore { return g.providers }

// Settings returns the SettingsStore sub-store.
func (g *GatewayStore) Settings() store.SettingsStore { return g.settings }

// Usage returns the UsageStore sub-store.
func (g *GatewayStore) Usage() store.UsageStore { return g.usage }

// Close closes the underlying database connection.
func (g *GatewayStore) Close() error { return g.db.Close() }

// execer abstracts *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
