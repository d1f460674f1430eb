package store

import "time"

// User mirrors spec.md §3's User entity. Surfaced here only because tokens
// and custom accounts reference it; the account/OAuth2-login subsystem that
// manages it is out of scope for this gateway.
type User struct {
	ID                   string
	CredentialIdentifier string
	PasswordDigest       string
	Status               string // active | pending
	CreatedAt            time.Time
}

const (
	UserStatusActive  = "active"
	UserStatusPending = "pending"
)

// KiroToken mirrors spec.md §3's KiroToken entity. RefreshToken,
// ClientID and ClientSecret are stored encrypted; this struct as returned
// by read operations holds the ciphertext, decrypted only via
// GetTokenCredentials.
type KiroToken struct {
	ID           string
	UserID       string
	TokenHash    string
	RefreshToken string // ciphertext
	AuthType     string // social | idc
	ClientID     string // ciphertext, may be empty
	ClientSecret string // ciphertext, may be empty
	Region       string
	ProfileArn   string
	Visibility   string // public | private
	Status       string // active | invalid | expired
	OpusEnabled  bool
	SuccessCount int64
	FailCount    int64
	LastUsed      time.Time
	LastCheck     time.Time
	LastCheckNote string
	CreatedAt     time.Time
}

const (
	AuthTypeSocial = "social"
	AuthTypeIDC    = "idc"

	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	TokenStatusActive  = "active"
	TokenStatusInvalid = "invalid"
	TokenStatusExpired = "expired"

	DefaultRegion = "us-east-1"
)

// TokenCredentials is the decrypted bundle GetTokenCredentials hands to the
// AuthManager so it never has to touch ciphertext directly.
type TokenCredentials struct {
	RefreshToken string
	AuthType     string
	ClientID     string
	ClientSecret string
	Region       string
	ProfileArn   string
}

// CustomAccount mirrors spec.md §3's CustomAccount entity.
type CustomAccount struct {
	ID           string
	UserID       string
	Name         string
	APIBase      string
	APIKey       string // ciphertext
	Format       string // openai | claude
	Provider     string // e.g. "azure"; may be empty
	Model        string // comma-separated model names; may be empty
	Status       string // active | disabled
	SuccessCount int64
	FailCount    int64
	CreatedAt    time.Time
}

const (
	FormatOpenAI = "openai"
	FormatClaude = "claude"

	AccountStatusActive   = "active"
	AccountStatusDisabled = "disabled"
)

// CustomAccountPatch applies only the fields the caller supplied; an empty
// APIKey (nil) means "retain existing ciphertext" per spec.md §4.1.
type CustomAccountPatch struct {
	Name     *string
	APIBase  *string
	APIKey   *string
	Format   *string
	Provider *string
	Model    *string
	Status   *string
}

// Session mirrors the minimal shape SPEC_FULL.md §9 gives the `sessions`
// table named (but not detailed) in spec.md §6.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CredentialKind distinguishes which pool a chosen credential came from.
type CredentialKind string

const (
	KindKiro   CredentialKind = "kiro"
	KindCustom CredentialKind = "custom"
)
