// Package customdispatcher issues the outbound request for a chosen
// CustomAccount (C10): an OpenAI-format account is translated via
// internal/wire and relayed through the OpenAI->Anthropic SSE converter;
// a Claude-format account already speaks the target wire format, so it is
// forwarded near-verbatim, mirroring
// internal/translator/kiro/claude/kiro_claude_response.go's "already the
// right shape, just pass it through" idiom applied to a direct
// Claude-format upstream instead of Kiro.
package customdispatcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/sse"
	"github.com/riftgate/anthropic-gateway/internal/streamevent"
	"github.com/riftgate/anthropic-gateway/internal/thinking"
	"github.com/riftgate/anthropic-gateway/internal/wire"
)

const maxRetryAfter = 5 * time.Second

// Account is the subset of store.CustomAccount plus its decrypted API key
// the dispatcher needs; callers build it from store.CustomAccount and
// Store.GetCustomAccountAPIKey so this package never imports internal/store.
type Account struct {
	APIBase  string
	APIKey   string
	Format   string // openai | claude
	Provider string // e.g. "azure"; may be empty
	Model    string // comma-separated; first entry used as an override when set
}

// Dispatcher issues requests against a custom account over a shared
// http.Client.
type Dispatcher struct {
	httpClient *http.Client
}

// New returns a Dispatcher. A nil httpClient falls back to http.DefaultClient.
func New(httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Dispatcher{httpClient: httpClient}
}

// Dispatch issues one request against acct and streams the resulting
// Anthropic SSE frames to w, returning once the stream ends or fails.
// claudeBody is the client's original Anthropic-format request; thinkingCfg
// carries the client's requested reasoning config.
func (d *Dispatcher) Dispatch(ctx context.Context, w io.Writer, acct Account, claudeBody []byte, thinkingCfg wire.ThinkingInjection) error {
	if acct.Format == "claude" {
		return d.dispatchClaude(ctx, w, acct, claudeBody)
	}
	return d.dispatchOpenAI(ctx, w, acct, claudeBody, thinkingCfg)
}

func modelOverride(field string) string {
	first, _, _ := strings.Cut(field, ",")
	return strings.TrimSpace(first)
}

// --- OpenAI-format path ------------------------------------------------

func (d *Dispatcher) dispatchOpenAI(ctx context.Context, w io.Writer, acct Account, claudeBody []byte, thinkingCfg wire.ThinkingInjection) error {
	openaiBody, err := wire.ConvertAnthropicRequestToOpenAI(claudeBody, modelOverride(acct.Model), thinkingCfg)
	if err != nil {
		return fmt.Errorf("customdispatcher: convert request: %w", err)
	}
	if acct.Provider == "azure" {
		openaiBody, err = wire.AzureScrub(openaiBody)
		if err != nil {
			return fmt.Errorf("customdispatcher: azure scrub: %w", err)
		}
	}

	url := strings.TrimRight(acct.APIBase, "/") + "/chat/completions"
	if acct.Provider == "azure" {
		url = strings.TrimRight(acct.APIBase, "/") + "/openai/deployments/" + modelOverride(acct.Model) + "/chat/completions"
	}

	resp, err := d.postWithRetry(ctx, url, acct.APIKey, openaiBody)
	if err != nil {
		return d.fail(w, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return d.fail(w, &gatewayerrors.UpstreamError{HTTPStatus: resp.StatusCode, Body: string(b)})
	}

	if !requestsStream(claudeBody) {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		anthropicJSON, err := wire.ConvertOpenAIResponseToAnthropic(b, modelOverride(acct.Model))
		if err != nil {
			return fmt.Errorf("customdispatcher: convert response: %w", err)
		}
		_, err = w.Write(anthropicJSON)
		return err
	}

	return d.relayOpenAI(w, resp.Body, thinkingCfg.Enabled)
}

func requestsStream(claudeBody []byte) bool {
	return gjson.GetBytes(claudeBody, "stream").Bool()
}

// relayOpenAI reads an OpenAI SSE body line by line, normalizes each chunk
// into streamevent.Events, optionally runs assistant text through the
// thinking parser, and emits Anthropic SSE.
func (d *Dispatcher) relayOpenAI(w io.Writer, body io.Reader, parseThinking bool) error {
	state := wire.NewOpenAIStreamState()
	emitState := wire.NewAnthropicEmitState()
	var parser *thinking.Parser
	if parseThinking {
		parser = thinking.New()
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		events, err := wire.ConvertOpenAIChunkToEvents(state, []byte(payload))
		if err != nil {
			log.Warnf("customdispatcher: skipping malformed openai chunk: %v", err)
			continue
		}
		for _, ev := range events {
			if parser != nil && ev.Kind == streamevent.ContentDelta && ev.DeltaType == streamevent.DeltaText {
				for _, seg := range parser.Feed(ev.Text) {
					if err := wire.EmitAnthropicEvent(w, segmentEvent(seg, ev.BlockIndex), emitState); err != nil {
						return err
					}
				}
				continue
			}
			if err := wire.EmitAnthropicEvent(w, ev, emitState); err != nil {
				return err
			}
		}
	}
	if parser != nil {
		for _, seg := range parser.Flush() {
			if err := wire.EmitAnthropicEvent(w, segmentEvent(seg, 0), emitState); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func segmentEvent(seg thinking.Segment, blockIndex int) streamevent.Event {
	deltaType := streamevent.DeltaText
	if seg.Kind == thinking.Thinking {
		deltaType = streamevent.DeltaThinking
	}
	return streamevent.Event{Kind: streamevent.ContentDelta, DeltaType: deltaType, Text: seg.Text, BlockIndex: blockIndex}
}

// --- Claude-format path --------------------------------------------------

// dispatchClaude forwards the Anthropic request to a Claude-compatible
// endpoint and relays its SSE bytes with only cosmetic fixups: no event is
// round-tripped through streamevent.Event, matching the teacher's
// pass-through idiom for a wire format the upstream already speaks.
func (d *Dispatcher) dispatchClaude(ctx context.Context, w io.Writer, acct Account, claudeBody []byte) error {
	body := claudeBody
	var err error
	if acct.Provider == "azure" {
		body, err = wire.AzureScrub(body)
		if err != nil {
			return fmt.Errorf("customdispatcher: azure scrub: %w", err)
		}
	}

	url := strings.TrimRight(acct.APIBase, "/") + "/v1/messages"
	resp, err := d.postWithRetry(ctx, url, acct.APIKey, body)
	if err != nil {
		return d.fail(w, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return d.fail(w, &gatewayerrors.UpstreamError{HTTPStatus: resp.StatusCode, Body: string(b)})
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

// --- shared HTTP plumbing -------------------------------------------------

func (d *Dispatcher) postWithRetry(ctx context.Context, url, apiKey string, body []byte) (*http.Response, error) {
	resp, err := d.post(ctx, url, apiKey, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	wait := retryAfterDuration(resp.Header.Get("Retry-After"))
	resp.Body.Close()
	log.Warnf("customdispatcher: 429 from %s, retrying after %s", url, wait)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}
	return d.post(ctx, url, apiKey, body)
}

func (d *Dispatcher) post(ctx context.Context, url, apiKey string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("customdispatcher: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("customdispatcher: request: %w", err)
	}
	return resp, nil
}

// retryAfterDuration parses a Retry-After header (seconds form), capped at
// maxRetryAfter and defaulting to it when absent or unparseable.
func retryAfterDuration(header string) time.Duration {
	if header == "" {
		return maxRetryAfter
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return maxRetryAfter
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// fail emits a synthetic Anthropic error event on the client stream and
// returns an UpstreamError so the caller (the orchestrator) responds with
// HTTP 502 when no bytes have been written to the client yet, per
// spec.md §4.10's "4xx!=429 or 5xx after retries" rule.
func (d *Dispatcher) fail(w io.Writer, cause error) error {
	_ = sse.WriteEvent(w, "error", []byte(fmt.Sprintf(`{"type":"error","error":{"type":"upstream_error","message":%q}}`, cause.Error())))
	if ue, ok := cause.(*gatewayerrors.UpstreamError); ok {
		return ue
	}
	return &gatewayerrors.UpstreamError{HTTPStatus: http.StatusBadGateway, Body: cause.Error()}
}
