package wire

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/riftgate/anthropic-gateway/internal/streamevent"
)

// ConvertOpenAIResponseToAnthropic converts a non-streaming OpenAI
// /chat/completions response body into an Anthropic /v1/messages response
// body.
func ConvertOpenAIResponseToAnthropic(rawJSON []byte, requestModel string) ([]byte, error) {
	root := gjson.ParseBytes(rawJSON)
	choice := root.Get("choices.0")
	msg := choice.Get("message")

	model := root.Get("model").String()
	if model == "" {
		model = requestModel
	}

	out := []byte(`{"type":"message","role":"assistant"}`)
	var err error
	if out, err = sjson.SetBytes(out, "model", model); err != nil {
		return nil, err
	}

	content := make([]any, 0, 2)
	if text := msg.Get("content"); text.Exists() && text.String() != "" {
		content = append(content, map[string]any{"type": "text", "text": text.String()})
	}
	msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    tc.Get("id").String(),
			"name":  tc.Get("function.name").String(),
			"input": jsonValue(gjson.Parse(tc.Get("function.arguments").String())),
		})
		return true
	})
	if out, err = sjson.SetBytes(out, "content", content); err != nil {
		return nil, err
	}

	if out, err = sjson.SetBytes(out, "stop_reason", anthropicStopReason(choice.Get("finish_reason").String())); err != nil {
		return nil, err
	}

	usage := map[string]any{
		"input_tokens":  root.Get("usage.prompt_tokens").Int(),
		"output_tokens": root.Get("usage.completion_tokens").Int(),
	}
	if out, err = sjson.SetBytes(out, "usage", usage); err != nil {
		return nil, err
	}

	return out, nil
}

// BuildAnthropicMessage assembles a non-streaming Anthropic /v1/messages
// response body from an ordered streamevent.Event slice, the shape
// Client.Collect returns for the Kiro path's non-streaming case. It applies
// the same field-wise usage merge EmitAnthropicEvent uses for the SSE path
// so a Kiro contextUsageEvent-derived Usage event never clobbers
// message_start's (possibly back-patched) input_tokens.
func BuildAnthropicMessage(model string, events []streamevent.Event) ([]byte, error) {
	type block struct {
		kind        string // text | tool_use
		text        []byte
		toolUseID   string
		toolUseName string
		args        []byte
	}
	blocks := map[int]*block{}
	var order []int
	usage := streamevent.UsageInfo{}
	stopReason := "end_turn"

	for _, ev := range events {
		switch ev.Kind {
		case streamevent.ContentBlockStart:
			if _, ok := blocks[ev.BlockIndex]; !ok {
				blocks[ev.BlockIndex] = &block{kind: "text"}
				order = append(order, ev.BlockIndex)
			}
		case streamevent.ToolUseStart:
			if _, ok := blocks[ev.BlockIndex]; !ok {
				order = append(order, ev.BlockIndex)
			}
			blocks[ev.BlockIndex] = &block{kind: "tool_use", toolUseID: ev.ToolUseID, toolUseName: ev.ToolUseName}
		case streamevent.ContentDelta:
			b := blocks[ev.BlockIndex]
			if b != nil {
				b.text = append(b.text, ev.Text...)
			}
		case streamevent.ToolArgsDelta:
			b := blocks[ev.BlockIndex]
			if b != nil {
				b.args = append(b.args, ev.JSONFragment...)
			}
		case streamevent.Usage:
			if ev.Usage.InputTokens != 0 {
				usage.InputTokens = ev.Usage.InputTokens
			}
			if ev.Usage.OutputTokens != 0 {
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		case streamevent.MessageStart:
			if ev.Usage.InputTokens != 0 {
				usage.InputTokens = ev.Usage.InputTokens
			}
		case streamevent.Done:
			if ev.StopReason != "" {
				stopReason = ev.StopReason
			}
		}
	}

	content := make([]any, 0, len(order))
	for _, idx := range order {
		b := blocks[idx]
		switch b.kind {
		case "tool_use":
			input := jsonValue(gjson.ParseBytes(b.args))
			content = append(content, map[string]any{"type": "tool_use", "id": b.toolUseID, "name": b.toolUseName, "input": input})
		default:
			content = append(content, map[string]any{"type": "text", "text": string(b.text)})
		}
	}

	out := []byte(`{"type":"message","role":"assistant"}`)
	var err error
	if out, err = sjson.SetBytes(out, "model", model); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "content", content); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "stop_reason", stopReason); err != nil {
		return nil, err
	}
	usageMap := map[string]any{"input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens}
	if out, err = sjson.SetBytes(out, "usage", usageMap); err != nil {
		return nil, err
	}
	return out, nil
}

func anthropicStopReason(openaiReason string) string {
	switch openaiReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// openAIStreamState accumulates the fields a streamed OpenAI chunk needs
// carried across calls: which tool_call indexes have already started, and
// whether message_start and the text block have been emitted for this
// response.
type openAIStreamState struct {
	messageStarted  bool
	contentStarted  bool
	toolCallStarted map[int]bool
}

// NewOpenAIStreamState returns a fresh state value for one streamed
// response; callers hold it for the lifetime of a single dispatch.
func NewOpenAIStreamState() *openAIStreamState {
	return &openAIStreamState{toolCallStarted: map[int]bool{}}
}

// ConvertOpenAIChunkToEvents turns one OpenAI SSE "data: {...}" payload
// (already stripped of the "data: " prefix) into zero or more normalized
// streamevent.Events. A "[DONE]" payload yields a single Done event.
func ConvertOpenAIChunkToEvents(state *openAIStreamState, payload []byte) ([]streamevent.Event, error) {
	if string(payload) == "[DONE]" {
		return []streamevent.Event{{Kind: streamevent.Done}}, nil
	}

	root := gjson.ParseBytes(payload)
	choice := root.Get("choices.0")
	delta := choice.Get("delta")

	var events []streamevent.Event

	if !state.messageStarted {
		state.messageStarted = true
		events = append(events, streamevent.Event{Kind: streamevent.MessageStart})
	}

	if text := delta.Get("content"); text.Exists() && text.String() != "" {
		if !state.contentStarted {
			state.contentStarted = true
			events = append(events, streamevent.Event{Kind: streamevent.ContentBlockStart, BlockIndex: 0})
		}
		events = append(events, streamevent.Event{
			Kind: streamevent.ContentDelta, DeltaType: streamevent.DeltaText, Text: text.String(), BlockIndex: 0,
		})
	}

	delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		idx := int(tc.Get("index").Int())
		blockIndex := idx + 1
		if !state.toolCallStarted[idx] {
			state.toolCallStarted[idx] = true
			events = append(events, streamevent.Event{
				Kind:        streamevent.ToolUseStart,
				BlockIndex:  blockIndex,
				ToolUseID:   tc.Get("id").String(),
				ToolUseName: tc.Get("function.name").String(),
			})
		}
		if frag := tc.Get("function.arguments"); frag.Exists() {
			events = append(events, streamevent.Event{
				Kind: streamevent.ToolArgsDelta, BlockIndex: blockIndex, JSONFragment: frag.String(),
			})
		}
		return true
	})

	if fr := choice.Get("finish_reason"); fr.Exists() && fr.String() != "" {
		events = append(events, streamevent.Event{Kind: streamevent.ContentBlockStop, BlockIndex: 0})
		events = append(events, streamevent.Event{Kind: streamevent.Done, StopReason: anthropicStopReason(fr.String())})
	}

	if usage := root.Get("usage"); usage.Exists() {
		events = append(events, streamevent.Event{
			Kind: streamevent.Usage,
			Usage: streamevent.UsageInfo{
				InputTokens:  usage.Get("prompt_tokens").Int(),
				OutputTokens: usage.Get("completion_tokens").Int(),
			},
		})
	}

	return events, nil
}

// azureDenyListKeys are stripped from a request body before it's sent to an
// Azure OpenAI deployment, which rejects unknown top-level fields outright
// rather than ignoring them.
var azureDenyListKeys = []string{"context_management", "betas", "thinking"}

// AzureScrub removes the fields Azure OpenAI deployments reject, applying a
// deny-list rather than an allow-list so that future Anthropic/OpenAI
// fields pass through unless explicitly known to break Azure.
func AzureScrub(rawJSON []byte) ([]byte, error) {
	out := rawJSON
	var err error
	for _, key := range azureDenyListKeys {
		if !gjson.GetBytes(out, key).Exists() {
			continue
		}
		out, err = sjson.DeleteBytes(out, key)
		if err != nil {
			return nil, fmt.Errorf("wire: azure scrub %s: %w", key, err)
		}
	}
	return out, nil
}
