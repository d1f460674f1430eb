package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/riftgate/anthropic-gateway/internal/allocator"
	"github.com/riftgate/anthropic-gateway/internal/authcache"
	"github.com/riftgate/anthropic-gateway/internal/authmanager"
	"github.com/riftgate/anthropic-gateway/internal/crypto"
	"github.com/riftgate/anthropic-gateway/internal/customdispatcher"
	"github.com/riftgate/anthropic-gateway/internal/kiroclient"
	"github.com/riftgate/anthropic-gateway/internal/orchestrator"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Store, *store.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	box, err := crypto.NewBox("test-passphrase")
	require.NoError(t, err)
	st, err := store.Open(":memory:", box)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	u, err := st.CreateUser(context.Background(), "sk-test-key", "")
	require.NoError(t, err)

	cache := authcache.New(func(creds store.TokenCredentials) *authmanager.Manager {
		return authmanager.New(creds, nil)
	})
	alloc := allocator.New(st, cache)
	orch := orchestrator.New(st, alloc, kiroclient.New(nil), customdispatcher.New(nil))

	return New(st, orch), st, u
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	h, _, _ := newTestHandler(t)
	engine := gin.New()
	h.Register(engine)

	req := httptest.NewRequest(http.MethodGet, "/user/api/custom-apis", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthAcceptsXAPIKey(t *testing.T) {
	h, _, _ := newTestHandler(t)
	engine := gin.New()
	h.Register(engine)

	req := httptest.NewRequest(http.MethodGet, "/user/api/custom-apis", nil)
	req.Header.Set("x-api-key", "sk-test-key")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateCustomAccountValidatesAPIBase(t *testing.T) {
	h, _, _ := newTestHandler(t)
	engine := gin.New()
	h.Register(engine)

	body := `{"name":"x","api_base":"not-a-url","api_key":"k","format":"openai"}`
	req := httptest.NewRequest(http.MethodPost, "/user/api/custom-apis", bytes.NewBufferString(body))
	req.Header.Set("x-api-key", "sk-test-key")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateAndFetchCustomAccountRoundTrip(t *testing.T) {
	h, _, _ := newTestHandler(t)
	engine := gin.New()
	h.Register(engine)

	body := `{"name":"x","api_base":"https://api.openai.com","api_key":"sk-upstream","format":"openai"}`
	req := httptest.NewRequest(http.MethodPost, "/user/api/custom-apis", bytes.NewBufferString(body))
	req.Header.Set("x-api-key", "sk-test-key")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotContains(t, w.Body.String(), "sk-upstream")

	listReq := httptest.NewRequest(http.MethodGet, "/user/api/custom-apis", nil)
	listReq.Header.Set("x-api-key", "sk-test-key")
	listW := httptest.NewRecorder()
	engine.ServeHTTP(listW, listReq)
	require.Equal(t, http.StatusOK, listW.Code)
	require.Contains(t, listW.Body.String(), `"api_base":"https://api.openai.com"`)
}

func TestPostKiroTokenAnonymousForcesPublicVisibility(t *testing.T) {
	h, st, _ := newTestHandler(t)
	engine := gin.New()
	h.Register(engine)

	body := `{"region":"us-east-1","refresh_token":"rt","visibility":"private","anonymous":true}`
	req := httptest.NewRequest(http.MethodPost, "/user/api/tokens", bytes.NewBufferString(body))
	req.Header.Set("x-api-key", "sk-test-key")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	toks, err := st.AdminListAllKiroTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Equal(t, store.VisibilityPublic, toks[0].Visibility)
}
