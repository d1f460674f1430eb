package store

import "database/sql"

// schema is applied on every Open via CREATE TABLE IF NOT EXISTS, then
// migrate adds any columns a previous schema version lacked. This mirrors
// the additive, no-down-migration style of the teacher's
// internal/auth/amazonq/token.go sqlite store.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                    TEXT PRIMARY KEY,
	credential_identifier TEXT NOT NULL UNIQUE,
	password_digest       TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	created_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	token_hash    TEXT NOT NULL UNIQUE,
	refresh_token TEXT NOT NULL,
	auth_type     TEXT NOT NULL DEFAULT 'social',
	client_id     TEXT NOT NULL DEFAULT '',
	client_secret TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL DEFAULT 'us-east-1',
	profile_arn   TEXT NOT NULL DEFAULT '',
	visibility    TEXT NOT NULL DEFAULT 'private',
	status        TEXT NOT NULL DEFAULT 'active',
	opus_enabled  INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	fail_count    INTEGER NOT NULL DEFAULT 0,
	last_used     DATETIME,
	last_check    DATETIME,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS custom_api_accounts (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	api_base      TEXT NOT NULL,
	api_key       TEXT NOT NULL,
	format        TEXT NOT NULL DEFAULT 'openai',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	success_count INTEGER NOT NULL DEFAULT 0,
	fail_count    INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tokens_user_id ON tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_tokens_visibility_status ON tokens(visibility, status);
CREATE INDEX IF NOT EXISTS idx_custom_api_accounts_user_id ON custom_api_accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
`

// migrations lists columns that later gateway versions added to tables that
// already shipped. Each entry is applied only if the column is missing,
// the same pattern the teacher's amazonq token store uses for its
// "ALTER TABLE tokens ADD COLUMN profile_arn" step.
type columnMigration struct {
	table      string
	column     string
	definition string
}

var migrations = []columnMigration{
	{"tokens", "opus_enabled", "INTEGER NOT NULL DEFAULT 0"},
	{"custom_api_accounts", "provider", "TEXT NOT NULL DEFAULT ''"},
	{"tokens", "last_check_note", "TEXT NOT NULL DEFAULT ''"},
}

func migrate(db *sql.DB) error {
	for _, m := range migrations {
		has, err := hasColumn(db, m.table, m.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := db.Exec("ALTER TABLE " + m.table + " ADD COLUMN " + m.column + " " + m.definition); err != nil {
			return err
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
