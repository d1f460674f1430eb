package orchestrator

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riftgate/anthropic-gateway/internal/allocator"
	"github.com/riftgate/anthropic-gateway/internal/authcache"
	"github.com/riftgate/anthropic-gateway/internal/authmanager"
	"github.com/riftgate/anthropic-gateway/internal/crypto"
	"github.com/riftgate/anthropic-gateway/internal/customdispatcher"
	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/kiroclient"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	box, err := crypto.NewBox("test-passphrase")
	require.NoError(t, err)
	s, err := store.Open(":memory:", box)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type rewriteHostTransport struct{ target string }

func (t rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(t.target)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	req.Host = target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func encodeFrame(t *testing.T, eventType string, payload []byte) []byte {
	t.Helper()
	var headers bytes.Buffer
	name := ":event-type"
	headers.WriteByte(byte(len(name)))
	headers.WriteString(name)
	headers.WriteByte(7)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(eventType)))
	headers.Write(lenBuf[:])
	headers.WriteString(eventType)

	headersLen := uint32(headers.Len())
	totalLen := 12 + headersLen + uint32(len(payload)) + 4

	var msg bytes.Buffer
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], totalLen)
	msg.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], headersLen)
	msg.Write(u32[:])
	msg.Write([]byte{0, 0, 0, 0})
	msg.Write(headers.Bytes())
	msg.Write(payload)
	msg.Write([]byte{0, 0, 0, 0})
	return msg.Bytes()
}

func TestHandleKiroStreamRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	var body bytes.Buffer
	body.Write(encodeFrame(t, "contentBlockStart", []byte(`{"index":0,"content_block":{"type":"text"}}`)))
	body.Write(encodeFrame(t, "contentBlockDelta", []byte(`{"index":0,"delta":{"type":"text_delta","text":"hi"}}`)))
	body.Write(encodeFrame(t, "contentBlockStop", []byte(`{"index":0}`)))
	body.Write(encodeFrame(t, "messageStop", []byte(`{}`)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refreshToken" {
			_, _ = w.Write([]byte(`{"accessToken":"tok","expiresIn":900}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body.Bytes())
	}))
	defer srv.Close()

	httpClient := &http.Client{Transport: rewriteHostTransport{target: srv.URL}}

	tok, err := st.CreateKiroToken(ctx, store.CreateKiroTokenInput{
		UserID:       "user-1",
		RefreshToken: "refresh-secret",
		AuthType:     store.AuthTypeSocial,
		Region:       "us-east-1",
		Visibility:   store.VisibilityPrivate,
	})
	require.NoError(t, err)

	cache := authcache.New(func(creds store.TokenCredentials) *authmanager.Manager {
		return authmanager.New(creds, httpClient)
	})
	alloc := allocator.New(st, cache)
	kiro := kiroclient.New(httpClient)
	custom := customdispatcher.New(httpClient)
	orch := New(st, alloc, kiro, custom)

	var out bytes.Buffer
	err = orch.Handle(ctx, &out, "user-1", []byte(`{"model":"claude-sonnet-4","stream":true,"messages":[]}`), ModeStream, nil)
	require.NoError(t, err)
	require.Contains(t, out.String(), "event: message_start")
	require.Contains(t, out.String(), `"text":"hi"`)

	refreshed, err := st.GetKiroToken(ctx, tok.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, refreshed.SuccessCount)
	require.EqualValues(t, 0, refreshed.FailCount)
}

func TestHandleCustomAccountNonStreamRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer plaintext-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	acct, err := st.CreateCustomAccount(ctx, store.CreateCustomAccountInput{
		UserID:  "user-1",
		Name:    "test",
		APIBase: srv.URL,
		APIKey:  "plaintext-key",
		Format:  store.FormatOpenAI,
	})
	require.NoError(t, err)

	cache := authcache.New(func(creds store.TokenCredentials) *authmanager.Manager {
		return authmanager.New(creds, nil)
	})
	alloc := allocator.New(st, cache)
	kiro := kiroclient.New(nil)
	custom := customdispatcher.New(srv.Client())
	orch := New(st, alloc, kiro, custom)

	var out bytes.Buffer
	err = orch.Handle(ctx, &out, "user-1", []byte(`{"model":"gpt-4o","messages":[]}`), ModeStream, nil)
	require.NoError(t, err)
	require.Contains(t, out.String(), `"text":"hello"`)

	refreshed, err := st.GetCustomAccount(ctx, acct.ID, "user-1", false)
	require.NoError(t, err)
	require.EqualValues(t, 1, refreshed.SuccessCount)
}

// TestHandleClientDisconnectStillRecordsFailOutcome covers spec.md §4.11's
// "if the client disconnects, cancel the upstream fetch cooperatively and
// still record a fail outcome": recordOutcome must not use the (by then
// canceled) request context to persist the counter update.
func TestHandleClientDisconnectStillRecordsFailOutcome(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refreshToken" {
			_, _ = w.Write([]byte(`{"accessToken":"tok","expiresIn":900}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(encodeFrame(t, "contentBlockStart", []byte(`{"index":0,"content_block":{"type":"text"}}`)))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Stall well past the client's cancellation below, simulating a
		// client that disconnects mid-stream.
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	httpClient := &http.Client{Transport: rewriteHostTransport{target: srv.URL}}

	tok, err := st.CreateKiroToken(ctx, store.CreateKiroTokenInput{
		UserID:       "user-1",
		RefreshToken: "refresh-secret",
		AuthType:     store.AuthTypeSocial,
		Region:       "us-east-1",
		Visibility:   store.VisibilityPrivate,
	})
	require.NoError(t, err)

	cache := authcache.New(func(creds store.TokenCredentials) *authmanager.Manager {
		return authmanager.New(creds, httpClient)
	})
	alloc := allocator.New(st, cache)
	kiro := kiroclient.New(httpClient)
	custom := customdispatcher.New(httpClient)
	orch := New(st, alloc, kiro, custom)

	reqCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		done <- orch.Handle(reqCtx, &out, "user-1", []byte(`{"model":"claude-sonnet-4","stream":true,"messages":[]}`), ModeStream, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Handle did not return after client cancellation")
	}

	refreshed, err := st.GetKiroToken(ctx, tok.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, refreshed.SuccessCount)
	require.EqualValues(t, 1, refreshed.FailCount)
}

func TestHandleNoCredentialAvailableSurfacesForbidden(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	cache := authcache.New(func(creds store.TokenCredentials) *authmanager.Manager {
		return authmanager.New(creds, nil)
	})
	alloc := allocator.New(st, cache)
	orch := New(st, alloc, kiroclient.New(nil), customdispatcher.New(nil))

	var out bytes.Buffer
	err := orch.Handle(ctx, &out, "nobody", []byte(`{"model":"m"}`), ModeStream, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, gatewayerrors.StatusCodeOf(err))
}
