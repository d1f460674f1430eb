// Package authmanager turns a Kiro refresh token into a short-lived access
// token (C5): dialect detection between the AWS Builder ID / Google
// "Social" flow and the AWS SSO "IDC" flow, cached with a safety margin,
// and single-flight refresh coalescing so concurrent requests against the
// same credential never fire duplicate upstream refreshes. Grounded in the
// teacher's internal/auth/kiro/kiro_auth.go refreshBuilderIDTokens /
// refreshGoogleTokens dual-endpoint split.
package authmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

// Dialect distinguishes the two refresh-token exchange protocols.
type Dialect string

const (
	DialectSocial Dialect = "social"
	DialectIDC    Dialect = "idc"
)

const safetyMargin = 60 * time.Second

// State mirrors the fresh → refreshing → fresh|failed machine from
// spec.md §4.5.
type State string

const (
	StateFresh      State = "fresh"
	StateRefreshing State = "refreshing"
	StateFailed     State = "failed"
)

// cachedToken is the access token currently held, if any.
type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Manager obtains and caches an access token for one Kiro credential.
type Manager struct {
	creds      store.TokenCredentials
	dialect    Dialect
	httpClient *http.Client

	mu          sync.Mutex
	state       State
	cached      *cachedToken
	failedSince time.Time

	group singleflight.Group
}

// New constructs a Manager, detecting its dialect from the presence of
// OAuth2 client credentials per spec.md §4.5.
func New(creds store.TokenCredentials, httpClient *http.Client) *Manager {
	dialect := DialectSocial
	if creds.ClientID != "" && creds.ClientSecret != "" {
		dialect = DialectIDC
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Manager{creds: creds, dialect: dialect, httpClient: httpClient, state: StateFresh}
}

// Dialect reports which refresh protocol this manager uses.
func (m *Manager) Dialect() Dialect { return m.dialect }

// GetAccessToken returns a valid access token, refreshing if the cached
// one is within safetyMargin of expiry or absent. Concurrent callers
// collapse onto a single in-flight refresh via singleflight.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cached != nil && time.Until(m.cached.expiresAt) > safetyMargin {
		tok := m.cached.accessToken
		m.mu.Unlock()
		return tok, nil
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	// The shared refresh is detached from the caller's cancellation so one
	// disconnecting caller cannot abort it for every waiter; its result is
	// cached below regardless.
	result, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateFailed
		m.failedSince = time.Now()
		return "", err
	}
	tok := result.(*cachedToken)
	m.cached = tok
	m.state = StateFresh
	return tok.accessToken, nil
}

// ForceRefresh resets a terminal failed state after a caller-controlled
// cooldown, per spec.md §4.5's recovery rule. Returns false if called
// before the cooldown elapses.
func (m *Manager) ForceRefresh(cooldown time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFailed {
		return true
	}
	if time.Since(m.failedSince) < cooldown {
		return false
	}
	m.state = StateFresh
	m.cached = nil
	return true
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) refresh(ctx context.Context) (*cachedToken, error) {
	var endpoint string
	var body map[string]any

	switch m.dialect {
	case DialectIDC:
		endpoint = fmt.Sprintf("https://oidc.%s.amazonaws.com/token", m.creds.Region)
		body = map[string]any{
			"clientId":     m.creds.ClientID,
			"clientSecret": m.creds.ClientSecret,
			"grantType":    "refresh_token",
			"refreshToken": m.creds.RefreshToken,
		}
	default:
		endpoint = fmt.Sprintf("https://prod.%s.auth.desktop.kiro.dev/refreshToken", m.creds.Region)
		body = map[string]any{"refreshToken": m.creds.RefreshToken}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gatewayerrors.NewAuthError(gatewayerrors.ClassInvalid, http.StatusInternalServerError, "marshal refresh body: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, gatewayerrors.NewAuthError(gatewayerrors.ClassInvalid, http.StatusInternalServerError, "build refresh request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, gatewayerrors.NewAuthError(gatewayerrors.ClassTransient, http.StatusBadGateway, "refresh request failed: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayerrors.NewAuthError(gatewayerrors.ClassTransient, http.StatusBadGateway, "read refresh response: "+err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyRefreshFailure(resp.StatusCode, respBody)
	}

	var parsed struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, gatewayerrors.NewAuthError(gatewayerrors.ClassInvalid, http.StatusBadGateway, "parse refresh response: "+err.Error())
	}
	if parsed.AccessToken == "" {
		return nil, gatewayerrors.NewAuthError(gatewayerrors.ClassInvalid, http.StatusBadGateway, "refresh response missing access token")
	}
	ttl := time.Duration(parsed.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &cachedToken{accessToken: parsed.AccessToken, expiresAt: time.Now().Add(ttl)}, nil
}

// classifyRefreshFailure maps a non-200 refresh response to the
// classification spec.md §4.5 requires: expired for any 401 (the body is
// not inspected), transient for 5xx, invalid otherwise.
func classifyRefreshFailure(status int, body []byte) *gatewayerrors.AuthError {
	switch {
	case status == http.StatusUnauthorized:
		return gatewayerrors.NewAuthError(gatewayerrors.ClassExpired, status, "refresh token rejected: "+string(body))
	case status >= 500:
		return gatewayerrors.NewAuthError(gatewayerrors.ClassTransient, status, "upstream auth error: "+string(body))
	default:
		return gatewayerrors.NewAuthError(gatewayerrors.ClassInvalid, status, "refresh failed: "+string(body))
	}
}
