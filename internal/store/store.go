// Package store is the gateway's persistence layer (C1): users, Kiro
// tokens, custom API accounts, and sessions, backed by SQLite through
// database/sql the same way the teacher's internal/auth/amazonq token
// store persists refresh-token state. Secrets at rest go through
// internal/crypto before they ever reach a column.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/riftgate/anthropic-gateway/internal/crypto"
	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
)

// Store wraps a *sql.DB with the encryption box used for at-rest secrets
// and a write mutex. SQLite tolerates one writer at a time; the teacher's
// stores serialize writes the same way rather than relying on busy-retry
// alone.
type Store struct {
	db   *sql.DB
	box  *crypto.Box
	wmu  sync.Mutex
	clock func() time.Time
}

// Open creates/migrates the sqlite database at path and returns a ready
// Store. path may be ":memory:" for tests.
func Open(path string, box *crypto.Box) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db, box: box, clock: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) now() time.Time { return s.clock() }

// --- users -----------------------------------------------------------

// CreateUser inserts a new user with a hashed password digest already
// computed by the caller (bcrypt or similar belongs to the out-of-scope
// login subsystem; this store just persists the digest it's given).
func (s *Store) CreateUser(ctx context.Context, credentialIdentifier, passwordDigest string) (*User, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	u := &User{
		ID:                   uuid.NewString(),
		CredentialIdentifier: credentialIdentifier,
		PasswordDigest:       passwordDigest,
		Status:               UserStatusActive,
		CreatedAt:            s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, credential_identifier, password_digest, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.CredentialIdentifier, u.PasswordDigest, u.Status, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, credential_identifier, password_digest, status, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByCredentialIdentifier looks a user up by its login identifier.
func (s *Store) GetUserByCredentialIdentifier(ctx context.Context, identifier string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, credential_identifier, password_digest, status, created_at FROM users WHERE credential_identifier = ?`, identifier)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.CredentialIdentifier, &u.PasswordDigest, &u.Status, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	return u, nil
}

// --- kiro tokens -------------------------------------------------------

// CreateKiroTokenInput is the caller-supplied plaintext half of a new token
// row; the store encrypts RefreshToken/ClientID/ClientSecret before insert.
type CreateKiroTokenInput struct {
	UserID       string
	RefreshToken string
	AuthType     string
	ClientID     string
	ClientSecret string
	Region       string
	ProfileArn   string
	Visibility   string
}

// CreateKiroToken registers a new Kiro credential. An empty Visibility is
// stored as private; any other value is stored as given. The API token
// registration handler passes VisibilityPublic for an anonymous
// registration (SPEC_FULL.md §9).
func (s *Store) CreateKiroToken(ctx context.Context, in CreateKiroTokenInput) (*KiroToken, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	encRefresh, err := s.box.Encrypt(in.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("store: encrypt refresh token: %w", err)
	}
	encClientID, err := s.box.Encrypt(in.ClientID)
	if err != nil {
		return nil, fmt.Errorf("store: encrypt client id: %w", err)
	}
	encClientSecret, err := s.box.Encrypt(in.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("store: encrypt client secret: %w", err)
	}

	region := in.Region
	if region == "" {
		region = DefaultRegion
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}

	t := &KiroToken{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		TokenHash:    crypto.TokenHash(in.RefreshToken),
		RefreshToken: encRefresh,
		AuthType:     in.AuthType,
		ClientID:     encClientID,
		ClientSecret: encClientSecret,
		Region:       region,
		ProfileArn:   in.ProfileArn,
		Visibility:   visibility,
		Status:       TokenStatusActive,
		CreatedAt:    s.now(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tokens (id, user_id, token_hash, refresh_token, auth_type, client_id, client_secret, region, profile_arn, visibility, status, opus_enabled, success_count, fail_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?)`,
		t.ID, t.UserID, t.TokenHash, t.RefreshToken, t.AuthType, t.ClientID, t.ClientSecret, t.Region, t.ProfileArn, t.Visibility, t.Status, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create token: %w", err)
	}
	return t, nil
}

const kiroTokenColumns = `id, user_id, token_hash, refresh_token, auth_type, client_id, client_secret, region, profile_arn, visibility, status, opus_enabled, success_count, fail_count, last_used, last_check, last_check_note, created_at`

func scanKiroToken(row interface{ Scan(...any) error }) (*KiroToken, error) {
	t := &KiroToken{}
	var lastUsed, lastCheck sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.RefreshToken, &t.AuthType, &t.ClientID, &t.ClientSecret,
		&t.Region, &t.ProfileArn, &t.Visibility, &t.Status, &t.OpusEnabled, &t.SuccessCount, &t.FailCount, &lastUsed, &lastCheck, &t.LastCheckNote, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.LastUsed = lastUsed.Time
	t.LastCheck = lastCheck.Time
	return t, nil
}

// GetKiroToken fetches a token by id, ignoring ownership (internal callers
// like the allocator and health checker already operate pool-wide).
func (s *Store) GetKiroToken(ctx context.Context, id string) (*KiroToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+kiroTokenColumns+` FROM tokens WHERE id = ?`, id)
	t, err := scanKiroToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get token: %w", err)
	}
	return t, nil
}

// GetTokenCredentials returns the decrypted credential bundle an
// AuthManager needs, keeping plaintext secrets out of every layer above
// the store.
func (s *Store) GetTokenCredentials(ctx context.Context, id string) (*TokenCredentials, error) {
	t, err := s.GetKiroToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("store: token %s not found", id)
	}

	refresh, err := s.box.Decrypt(t.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("store: decrypt refresh token: %w", err)
	}
	clientID, err := s.box.Decrypt(t.ClientID)
	if err != nil {
		return nil, fmt.Errorf("store: decrypt client id: %w", err)
	}
	clientSecret, err := s.box.Decrypt(t.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("store: decrypt client secret: %w", err)
	}

	return &TokenCredentials{
		RefreshToken: refresh,
		AuthType:     t.AuthType,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Region:       t.Region,
		ProfileArn:   t.ProfileArn,
	}, nil
}

// GetActiveKiroTokensByUser returns the pool the allocator draws from: a
// user's own tokens plus every public token contributed by any user,
// restricted to status=active, per spec.md §4.8.
func (s *Store) GetActiveKiroTokensByUser(ctx context.Context, userID string) ([]*KiroToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+kiroTokenColumns+` FROM tokens WHERE status = ? AND (user_id = ? OR visibility = ?)`,
		TokenStatusActive, userID, VisibilityPublic)
	if err != nil {
		return nil, fmt.Errorf("store: list active tokens: %w", err)
	}
	defer rows.Close()

	var out []*KiroToken
	for rows.Next() {
		t, err := scanKiroToken(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateKiroTokenStatus transitions a token's health status, enforced
// against user_id unless adminOverride is set, matching spec.md §4.1's
// ownership rule ("every mutating operation ANDs user_id into its WHERE
// clause unless explicitly marked admin-only").
func (s *Store) UpdateKiroTokenStatus(ctx context.Context, id, userID, status string, adminOverride bool) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	var res sql.Result
	var err error
	if adminOverride {
		res, err = s.db.ExecContext(ctx, `UPDATE tokens SET status = ? WHERE id = ?`, status, id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE tokens SET status = ? WHERE id = ? AND user_id = ?`, status, id, userID)
	}
	if err != nil {
		return fmt.Errorf("store: update token status: %w", err)
	}
	return requireRowAffected(res, "token")
}

// SetOpusEnabled flips a token's opus_enabled tier bit, an admin-only
// operation (granting Pro+ eligibility is not something a token owner
// can self-serve).
func (s *Store) SetOpusEnabled(ctx context.Context, id string, enabled bool) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE tokens SET opus_enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("store: set opus enabled: %w", err)
	}
	return requireRowAffected(res, "token")
}

// IncrementSuccess bumps a credential's success_count (and, for a Kiro
// token, last_used), used by the orchestrator on a successful dispatch.
func (s *Store) IncrementSuccess(ctx context.Context, kind CredentialKind, id string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.bumpCounter(ctx, kind, id, "success_count", true)
}

// IncrementFail bumps a credential's fail_count, used by the orchestrator
// on dispatch failure.
func (s *Store) IncrementFail(ctx context.Context, kind CredentialKind, id string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.bumpCounter(ctx, kind, id, "fail_count", false)
}

func (s *Store) bumpCounter(ctx context.Context, kind CredentialKind, id, column string, touchLastUsed bool) error {
	table := tableFor(kind)
	query := fmt.Sprintf("UPDATE %s SET %s = %s + 1 WHERE id = ?", table, column, column)
	args := []any{id}
	if touchLastUsed && kind == KindKiro {
		query = fmt.Sprintf("UPDATE %s SET %s = %s + 1, last_used = ? WHERE id = ?", table, column, column)
		args = []any{s.now(), id}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: increment %s: %w", column, err)
	}
	return requireRowAffected(res, string(kind))
}

func tableFor(kind CredentialKind) string {
	if kind == KindCustom {
		return "custom_api_accounts"
	}
	return "tokens"
}

// RecordHealthCheck stamps last_check, the resulting status, and a
// free-form note (e.g. the upstream error message on a transient
// failure), the operation the background health worker (C7) calls once
// per cycle per token per spec.md §4.1's record_health_check(id, ok, note).
func (s *Store) RecordHealthCheck(ctx context.Context, id, status, note string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE tokens SET status = ?, last_check = ?, last_check_note = ? WHERE id = ?`, status, s.now(), note, id)
	if err != nil {
		return fmt.Errorf("store: record health check: %w", err)
	}
	return requireRowAffected(res, "token")
}

// DeleteKiroToken removes a token the caller owns.
func (s *Store) DeleteKiroToken(ctx context.Context, id, userID string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("store: delete token: %w", err)
	}
	return requireRowAffected(res, "token")
}

// --- custom api accounts ----------------------------------------------

// CreateCustomAccountInput is the plaintext half of a new custom account;
// APIKey is encrypted before insert.
type CreateCustomAccountInput struct {
	UserID   string
	Name     string
	APIBase  string
	APIKey   string
	Format   string
	Provider string
	Model    string
}

func (s *Store) CreateCustomAccount(ctx context.Context, in CreateCustomAccountInput) (*CustomAccount, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	encKey, err := s.box.Encrypt(in.APIKey)
	if err != nil {
		return nil, fmt.Errorf("store: encrypt api key: %w", err)
	}

	format := in.Format
	if format == "" {
		format = FormatOpenAI
	}

	a := &CustomAccount{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Name:      in.Name,
		APIBase:   in.APIBase,
		APIKey:    encKey,
		Format:    format,
		Provider:  in.Provider,
		Model:     in.Model,
		Status:    AccountStatusActive,
		CreatedAt: s.now(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO custom_api_accounts (id, user_id, name, api_base, api_key, format, provider, model, status, success_count, fail_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		a.ID, a.UserID, a.Name, a.APIBase, a.APIKey, a.Format, a.Provider, a.Model, a.Status, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create custom account: %w", err)
	}
	return a, nil
}

const customAccountColumns = `id, user_id, name, api_base, api_key, format, provider, model, status, success_count, fail_count, created_at`

func scanCustomAccount(row interface{ Scan(...any) error }) (*CustomAccount, error) {
	a := &CustomAccount{}
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.APIBase, &a.APIKey, &a.Format, &a.Provider, &a.Model, &a.Status, &a.SuccessCount, &a.FailCount, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetCustomAccount fetches an account enforcing ownership unless
// adminOverride is set.
func (s *Store) GetCustomAccount(ctx context.Context, id, userID string, adminOverride bool) (*CustomAccount, error) {
	var row *sql.Row
	if adminOverride {
		row = s.db.QueryRowContext(ctx, `SELECT `+customAccountColumns+` FROM custom_api_accounts WHERE id = ?`, id)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+customAccountColumns+` FROM custom_api_accounts WHERE id = ? AND user_id = ?`, id, userID)
	}
	a, err := scanCustomAccount(row)
	if err == sql.ErrNoRows {
		if adminOverride {
			return nil, nil
		}
		return nil, &gatewayerrors.OwnershipError{Resource: "custom_api_account:" + id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get custom account: %w", err)
	}
	return a, nil
}

// GetCustomAccountAPIKey decrypts a single account's API key, keeping
// plaintext secrets out of the dispatcher layer the same way
// GetTokenCredentials does for Kiro tokens.
func (s *Store) GetCustomAccountAPIKey(ctx context.Context, a *CustomAccount) (string, error) {
	key, err := s.box.Decrypt(a.APIKey)
	if err != nil {
		return "", fmt.Errorf("store: decrypt api key: %w", err)
	}
	return key, nil
}

// GetActiveCustomAccountsByUser returns the custom-account pool for a
// user. Unlike Kiro tokens, custom accounts have no public-visibility
// sharing concept in spec.md, so this is strictly per-owner.
func (s *Store) GetActiveCustomAccountsByUser(ctx context.Context, userID string) ([]*CustomAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customAccountColumns+` FROM custom_api_accounts WHERE user_id = ? AND status = ?`, userID, AccountStatusActive)
	if err != nil {
		return nil, fmt.Errorf("store: list active custom accounts: %w", err)
	}
	defer rows.Close()

	var out []*CustomAccount
	for rows.Next() {
		a, err := scanCustomAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan custom account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateCustomAccount applies a partial patch. A nil APIKey retains the
// existing ciphertext; a non-nil one is re-encrypted, per spec.md §4.1.
func (s *Store) UpdateCustomAccount(ctx context.Context, id, userID string, adminOverride bool, patch CustomAccountPatch) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	existing, err := s.getCustomAccountForUpdate(ctx, id, userID, adminOverride)
	if err != nil {
		return err
	}

	name, apiBase, apiKey, format, provider, model, status := existing.Name, existing.APIBase, existing.APIKey, existing.Format, existing.Provider, existing.Model, existing.Status
	if patch.Name != nil {
		name = *patch.Name
	}
	if patch.APIBase != nil {
		apiBase = *patch.APIBase
	}
	if patch.APIKey != nil && *patch.APIKey != "" {
		apiKey, err = s.box.Encrypt(*patch.APIKey)
		if err != nil {
			return fmt.Errorf("store: encrypt api key: %w", err)
		}
	}
	if patch.Format != nil {
		format = *patch.Format
	}
	if patch.Provider != nil {
		provider = *patch.Provider
	}
	if patch.Model != nil {
		model = *patch.Model
	}
	if patch.Status != nil {
		status = *patch.Status
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE custom_api_accounts SET name = ?, api_base = ?, api_key = ?, format = ?, provider = ?, model = ?, status = ? WHERE id = ?`,
		name, apiBase, apiKey, format, provider, model, status, id)
	if err != nil {
		return fmt.Errorf("store: update custom account: %w", err)
	}
	return nil
}

func (s *Store) getCustomAccountForUpdate(ctx context.Context, id, userID string, adminOverride bool) (*CustomAccount, error) {
	var row *sql.Row
	if adminOverride {
		row = s.db.QueryRowContext(ctx, `SELECT `+customAccountColumns+` FROM custom_api_accounts WHERE id = ?`, id)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+customAccountColumns+` FROM custom_api_accounts WHERE id = ? AND user_id = ?`, id, userID)
	}
	a, err := scanCustomAccount(row)
	if err == sql.ErrNoRows {
		return nil, &gatewayerrors.OwnershipError{Resource: "custom_api_account:" + id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get custom account: %w", err)
	}
	return a, nil
}

// DeleteCustomAccount removes an account the caller owns.
func (s *Store) DeleteCustomAccount(ctx context.Context, id, userID string, adminOverride bool) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	var res sql.Result
	var err error
	if adminOverride {
		res, err = s.db.ExecContext(ctx, `DELETE FROM custom_api_accounts WHERE id = ?`, id)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM custom_api_accounts WHERE id = ? AND user_id = ?`, id, userID)
	}
	if err != nil {
		return fmt.Errorf("store: delete custom account: %w", err)
	}
	return requireRowAffected(res, "custom_api_account")
}

// --- admin variants ------------------------------------------------

// AdminListAllKiroTokens returns every token regardless of owner or
// visibility, for the ownership-free admin mirror routes.
func (s *Store) AdminListAllKiroTokens(ctx context.Context) ([]*KiroToken, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+kiroTokenColumns+` FROM tokens`)
	if err != nil {
		return nil, fmt.Errorf("store: admin list tokens: %w", err)
	}
	defer rows.Close()

	var out []*KiroToken
	for rows.Next() {
		t, err := scanKiroToken(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AdminListAllCustomAccounts mirrors AdminListAllKiroTokens for custom
// accounts.
func (s *Store) AdminListAllCustomAccounts(ctx context.Context) ([]*CustomAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customAccountColumns+` FROM custom_api_accounts`)
	if err != nil {
		return nil, fmt.Errorf("store: admin list custom accounts: %w", err)
	}
	defer rows.Close()

	var out []*CustomAccount
	for rows.Next() {
		a, err := scanCustomAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan custom account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- sessions ----------------------------------------------------------

// CreateSession mints a session row for a logged-in user.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(ttl),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return sess, nil
}

// GetSession returns a session if it exists and has not expired.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`, id)
	sess := &Session{}
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	if sess.ExpiresAt.Before(s.now()) {
		return nil, nil
	}
	return sess, nil
}

// DeleteSession removes a session, e.g. on logout.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

func requireRowAffected(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return &gatewayerrors.OwnershipError{Resource: resource}
	}
	return nil
}
