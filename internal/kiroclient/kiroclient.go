// Package kiroclient issues the upstream Kiro/CodeWhisperer streaming
// request (C9): it obtains an access token from an AuthManager, POSTs the
// translated Claude-format payload to a region-appropriate endpoint, and
// normalizes the AWS Event Stream binary response into the internal
// streamevent union. Grounded in
// internal/runtime/executor/kiro_executor.go (payload/header construction,
// origin fallback) and kiro_response.go (streamToChannel's first-token/
// inter-frame timeout handling and its "ensure usage is published even on
// early return" buffered-replay idiom).
package kiroclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/riftgate/anthropic-gateway/internal/authmanager"
	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/streamevent"
)

const (
	contentType = "application/x-amz-json-1.0"
	amzTarget   = "AmazonCodeWhispererStreamingService.GenerateAssistantResponse"

	defaultFirstTokenTimeout = 30 * time.Second
	defaultInterFrameTimeout = 15 * time.Second
	maxInterFrameTimeouts    = 3
	pingInterval             = 25 * time.Second
)

// errProbeSatisfied stops CountTokens' consume loop as soon as the one
// event it needs has arrived; it never escapes CountTokens.
var errProbeSatisfied = errors.New("kiroclient: probe satisfied")

// Client issues Kiro streaming requests over a shared http.Client.
type Client struct {
	httpClient        *http.Client
	firstTokenTimeout time.Duration
	interFrameTimeout time.Duration
}

// New returns a Client. A nil httpClient falls back to http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:        httpClient,
		firstTokenTimeout: defaultFirstTokenTimeout,
		interFrameTimeout: defaultInterFrameTimeout,
	}
}

// endpointURL builds the CodeWhisperer streaming endpoint for a region. The
// teacher hardcodes https://q.us-east-1.amazonaws.com; generalized here to
// the credential's own region per spec.md's "region-appropriate upstream
// URL" requirement.
func endpointURL(region string) string {
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://q.%s.amazonaws.com", region)
}

// buildPayload wraps a Claude-format request body in Kiro's
// conversationState envelope, mirroring buildKiroPayload.
func buildPayload(claudeBody []byte, profileArn string) ([]byte, error) {
	payload := map[string]any{
		"conversationState": map[string]any{
			"currentMessage":  gjson.ParseBytes(claudeBody).Value(),
			"chatTriggerType": "MANUAL",
		},
		"source": "FeatureDev",
		"origin": "AI_EDITOR",
	}
	if profileArn != "" {
		payload["profileArn"] = profileArn
	}
	out, err := sjson.SetBytes(nil, "", payload)
	if err != nil {
		return nil, fmt.Errorf("kiroclient: build payload: %w", err)
	}
	return out, nil
}

// doStream obtains an access token and opens the upstream response body.
// The caller owns closing it.
func (c *Client) doStream(ctx context.Context, mgr *authmanager.Manager, region, profileArn string, claudeBody []byte) (io.ReadCloser, error) {
	token, err := mgr.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := buildPayload(claudeBody, profileArn)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(region), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kiroclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-amz-target", amzTarget)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiroclient: request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &gatewayerrors.UpstreamError{HTTPStatus: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}

// run drives one full request: it synthesizes the message_start event
// (Kiro's frame types never include one) with a provisional input-token
// estimate, then feeds every subsequent frame through emit.
func (c *Client) run(ctx context.Context, body io.Reader, claudeBody []byte, emit func(streamevent.Event) error) error {
	provisional := EstimateTokens(string(claudeBody))
	if err := emit(streamevent.Event{Kind: streamevent.MessageStart, Usage: streamevent.UsageInfo{InputTokens: provisional, Estimated: true}}); err != nil {
		return err
	}
	return c.consume(ctx, body, emit)
}

// consume reads frames until a clean end of stream, a fatal framing error,
// or a timeout threshold, normalizing each into a streamevent and handing
// it to emit.
func (c *Client) consume(ctx context.Context, body io.Reader, emit func(streamevent.Event) error) error {
	frames := readFramesAsync(body)
	st := &normalizeState{}
	consecutiveTimeouts := 0
	first := true

	for {
		timeout := c.interFrameTimeout
		if first {
			timeout = c.firstTokenTimeout
		}
		timer := time.NewTimer(timeout)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case res, ok := <-frames:
			timer.Stop()
			if !ok || res.fr == nil {
				if res.err != nil {
					return fmt.Errorf("kiroclient: stream read: %w", res.err)
				}
				return nil
			}
			first = false
			consecutiveTimeouts = 0

			if len(res.fr.Payload) == 0 {
				continue
			}
			ev, ok := normalize(st, res.fr.EventType, res.fr.Payload)
			if !ok {
				log.Debugf("kiroclient: skipping unrecognized frame type=%q", res.fr.EventType)
				continue
			}
			if err := emit(ev); err != nil {
				return err
			}

		case <-timer.C:
			if first {
				return &gatewayerrors.FirstTokenTimeout{Upstream: "kiro"}
			}
			consecutiveTimeouts++
			if consecutiveTimeouts > maxInterFrameTimeouts {
				return &gatewayerrors.StreamReadTimeout{Upstream: "kiro"}
			}
			log.Warnf("kiroclient: inter-frame timeout %d/%d", consecutiveTimeouts, maxInterFrameTimeouts)
		}
	}
}

type frameResult struct {
	fr  *frame
	err error
}

// readFramesAsync reads frames on a background goroutine so consume can
// apply timeouts around blocking reads. The channel is buffered by one so
// a goroutine parked on a send after the reader gives up still exits.
func readFramesAsync(r io.Reader) <-chan frameResult {
	ch := make(chan frameResult, 1)
	go func() {
		defer close(ch)
		reader := bufio.NewReaderSize(r, 1<<20)
		for {
			fr, err := readFrame(reader)
			ch <- frameResult{fr: fr, err: err}
			if err != nil || fr == nil {
				return
			}
		}
	}()
	return ch
}

// Stream opens a live upstream request and returns events as they arrive.
// The returned error channel receives exactly one value once events is
// drained and closed.
func (c *Client) Stream(ctx context.Context, mgr *authmanager.Manager, region, profileArn string, claudeBody []byte) (<-chan streamevent.Event, <-chan error, error) {
	body, err := c.doStream(ctx, mgr, region, profileArn, claudeBody)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan streamevent.Event, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer body.Close()
		errc <- c.run(ctx, body, claudeBody, func(ev streamevent.Event) error {
			select {
			case out <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return out, errc, nil
}

// Collect runs a request to completion and returns every event in receive
// order. Used directly for ModeCollect and as the basis of Buffered.
func (c *Client) Collect(ctx context.Context, mgr *authmanager.Manager, region, profileArn string, claudeBody []byte) ([]streamevent.Event, error) {
	body, err := c.doStream(ctx, mgr, region, profileArn, claudeBody)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var events []streamevent.Event
	err = c.run(ctx, body, claudeBody, func(ev streamevent.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

// Buffered implements the /cc/v1/messages mode: events are captured rather
// than forwarded live, onPing is invoked roughly every 25s while buffering
// so the caller can keep its connection to the client alive, and the
// terminal contextUsageEvent (if any) back-patches message_start's
// input_tokens before the caller replays the list.
func (c *Client) Buffered(ctx context.Context, mgr *authmanager.Manager, region, profileArn string, claudeBody []byte, onPing func()) ([]streamevent.Event, error) {
	if onPing != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					onPing()
				}
			}
		}()
	}

	events, err := c.Collect(ctx, mgr, region, profileArn, claudeBody)
	if err != nil {
		return events, err
	}

	for _, ev := range events {
		if ev.Kind != streamevent.Usage || !ev.Usage.HasContextPercent {
			continue
		}
		tokens := inputTokensFromPercent(ev.Usage.ContextPercent)
		for i := range events {
			if events[i].Kind == streamevent.MessageStart {
				events[i].Usage.InputTokens = tokens
				events[i].Usage.Estimated = false
				break
			}
		}
		break
	}
	return events, nil
}

// CountTokens runs a probe request and returns as soon as the upstream
// reports its context usage, falling back to a tiktoken-style estimate of
// the request body when the upstream never does.
func (c *Client) CountTokens(ctx context.Context, mgr *authmanager.Manager, region, profileArn string, claudeBody []byte) (int64, error) {
	body, err := c.doStream(ctx, mgr, region, profileArn, claudeBody)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	result := EstimateTokens(string(claudeBody))
	err = c.consume(ctx, body, func(ev streamevent.Event) error {
		if ev.Kind == streamevent.Usage && ev.Usage.HasContextPercent {
			result = inputTokensFromPercent(ev.Usage.ContextPercent)
			return errProbeSatisfied
		}
		return nil
	})
	if errors.Is(err, errProbeSatisfied) {
		err = nil
	}
	return result, err
}
