package kiroclient

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

	"github.com/riftgate/anthropic-gateway/internal/authmanager"
	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/store"
	"github.com/riftgate/anthropic-gateway/internal/streamevent"
)

// encodeFrame builds one AWS Event Stream message carrying a single
// ":event-type" string header and a JSON payload, mirroring the framing
// readFrame parses.
func encodeFrame(t *testing.T, eventType string, payload []byte) []byte {
	t.Helper()
	var headers bytes.Buffer
	name := ":event-type"
	headers.WriteByte(byte(len(name)))
	headers.WriteString(name)
	headers.WriteByte(7) // string type
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
	msg.Write([]byte{0, 0, 0, 0}) // prelude crc, unvalidated
	msg.Write(headers.Bytes())
	msg.Write(payload)
	msg.Write([]byte{0, 0, 0, 0}) // message crc, unvalidated
	return msg.Bytes()
}

type rewriteHostTransport struct {
	target string
}

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

// newTestManager returns a Manager whose refresh endpoint and whose Kiro
// stream endpoint are both redirected to srv, which must dispatch on
// r.URL.Path ("/refreshToken" for the refresh call, "/" for the stream
// call — kiroclient's endpointURL carries no path).
func newTestManager(srv *httptest.Server) *authmanager.Manager {
	client := &http.Client{Transport: rewriteHostTransport{target: srv.URL}}
	return authmanager.New(store.TokenCredentials{RefreshToken: "r1", Region: "us-east-1"}, client)
}

func newTestServer(t *testing.T, streamBody []byte, streamStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refreshToken" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"accessToken":"tok-1","expiresIn":900}`))
			return
		}
		w.WriteHeader(streamStatus)
		_, _ = w.Write(streamBody)
	}))
}

func TestStreamNormalizesTextDeltaAndDone(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"index":0,"delta":{"type":"text_delta","text":"hi"}}`)
	var body bytes.Buffer
	body.Write(encodeFrame(t, "contentBlockStart", []byte(`{"index":0,"content_block":{"type":"text"}}`)))
	body.Write(encodeFrame(t, "contentBlockDelta", payload))
	body.Write(encodeFrame(t, "contentBlockStop", []byte(`{"index":0}`)))
	body.Write(encodeFrame(t, "messageDelta", []byte(`{"delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`)))
	body.Write(encodeFrame(t, "messageStop", []byte(`{}`)))

	srv := newTestServer(t, body.Bytes(), http.StatusOK)
	defer srv.Close()

	client := New(&http.Client{Transport: rewriteHostTransport{target: srv.URL}})
	mgr := newTestManager(srv)

	events, errc, err := client.Stream(ctx, mgr, "us-east-1", "", []byte(`{"model":"claude-sonnet-4","messages":[]}`))
	require.NoError(t, err)

	var kinds []streamevent.Kind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.NoError(t, <-errc)

	require.Equal(t, []streamevent.Kind{
		streamevent.MessageStart,
		streamevent.ContentBlockStart,
		streamevent.ContentDelta,
		streamevent.ContentBlockStop,
		streamevent.Usage,
		streamevent.Done,
	}, kinds)
}

func TestStreamSurfacesUpstreamErrorSynchronously(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, []byte("boom"), http.StatusBadGateway)
	defer srv.Close()

	client := New(&http.Client{Transport: rewriteHostTransport{target: srv.URL}})
	mgr := newTestManager(srv)

	_, _, err := client.Stream(ctx, mgr, "us-east-1", "", []byte(`{}`))
	require.Error(t, err)
	_, ok := err.(*gatewayerrors.UpstreamError)
	require.True(t, ok)
}

func TestBufferedBackpatchesInputTokensFromContextUsage(t *testing.T) {
	ctx := context.Background()
	var body bytes.Buffer
	body.Write(encodeFrame(t, "contentBlockStart", []byte(`{"index":0,"content_block":{"type":"text"}}`)))
	body.Write(encodeFrame(t, "contentBlockDelta", []byte(`{"index":0,"delta":{"type":"text_delta","text":"hi"}}`)))
	body.Write(encodeFrame(t, "contextUsageEvent", []byte(`{"context_usage_percentage":25}`)))
	body.Write(encodeFrame(t, "messageStop", []byte(`{}`)))

	srv := newTestServer(t, body.Bytes(), http.StatusOK)
	defer srv.Close()

	client := New(&http.Client{Transport: rewriteHostTransport{target: srv.URL}})
	mgr := newTestManager(srv)

	var pings int
	events, err := client.Buffered(ctx, mgr, "us-east-1", "", []byte(`{}`), func() { pings++ })
	require.NoError(t, err)
	require.Equal(t, 0, pings) // the fixture streams instantly, well under pingInterval

	require.Equal(t, streamevent.MessageStart, events[0].Kind)
	require.EqualValues(t, 50000, events[0].Usage.InputTokens)
}

func TestBufferedFallsBackToEstimateWithoutContextUsage(t *testing.T) {
	ctx := context.Background()
	var body bytes.Buffer
	body.Write(encodeFrame(t, "contentBlockStart", []byte(`{"index":0,"content_block":{"type":"text"}}`)))
	body.Write(encodeFrame(t, "messageStop", []byte(`{}`)))

	srv := newTestServer(t, body.Bytes(), http.StatusOK)
	defer srv.Close()

	client := New(&http.Client{Transport: rewriteHostTransport{target: srv.URL}})
	mgr := newTestManager(srv)

	events, err := client.Buffered(ctx, mgr, "us-east-1", "", []byte(`hello world`), nil)
	require.NoError(t, err)
	require.Equal(t, streamevent.MessageStart, events[0].Kind)
	require.Greater(t, events[0].Usage.InputTokens, int64(0))
}

func TestCountTokensReturnsAsSoonAsContextUsageArrives(t *testing.T) {
	ctx := context.Background()
	var body bytes.Buffer
	body.Write(encodeFrame(t, "contextUsageEvent", []byte(`{"context_usage_percentage":10}`)))
	// A trailing frame the probe should never have to read.
	body.Write(encodeFrame(t, "messageStop", []byte(`{}`)))

	srv := newTestServer(t, body.Bytes(), http.StatusOK)
	defer srv.Close()

	client := New(&http.Client{Transport: rewriteHostTransport{target: srv.URL}})
	mgr := newTestManager(srv)

	tokens, err := client.CountTokens(ctx, mgr, "us-east-1", "", []byte(`{}`))
	require.NoError(t, err)
	require.EqualValues(t, 20000, tokens)
}

func TestFirstTokenTimeoutFiresWhenUpstreamNeverResponds(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refreshToken" {
			_, _ = w.Write([]byte(`{"accessToken":"tok-1","expiresIn":900}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := New(&http.Client{Transport: rewriteHostTransport{target: srv.URL}})
	client.firstTokenTimeout = 20 * time.Millisecond
	mgr := newTestManager(srv)

	events, errc, err := client.Stream(ctx, mgr, "us-east-1", "", []byte(`{}`))
	require.NoError(t, err)
	for range events {
	}
	err = <-errc
	require.Error(t, err)
	_, ok := err.(*gatewayerrors.FirstTokenTimeout)
	require.True(t, ok)
}
