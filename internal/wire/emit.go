package wire

import (
	"encoding/json"
	"io"

	"github.com/riftgate/anthropic-gateway/internal/sse"
	"github.com/riftgate/anthropic-gateway/internal/streamevent"
)

// AnthropicEmitState tracks the bookkeeping an Anthropic SSE stream needs
// across events: which content block is open, and the running usage
// totals reported in the closing message_delta.
type AnthropicEmitState struct {
	openBlocks map[int]bool
	usage      streamevent.UsageInfo
}

// NewAnthropicEmitState returns a fresh state for one client-facing stream.
func NewAnthropicEmitState() *AnthropicEmitState {
	return &AnthropicEmitState{openBlocks: map[int]bool{}}
}

// EmitAnthropicEvent writes the Anthropic SSE frame(s) corresponding to a
// single normalized stream event. It serves the Kiro path (live streaming
// and buffered replay in the orchestrator) and the custom-API OpenAI-format
// dispatcher, both of which normalize through streamevent.Event first.
func EmitAnthropicEvent(w io.Writer, ev streamevent.Event, state *AnthropicEmitState) error {
	switch ev.Kind {
	case streamevent.MessageStart:
		state.usage.InputTokens = ev.Usage.InputTokens
		return sse.WriteEvent(w, "message_start", marshal(map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"type": "message", "role": "assistant", "content": []any{},
				"usage": map[string]any{"input_tokens": ev.Usage.InputTokens, "output_tokens": ev.Usage.OutputTokens},
			},
		}))

	case streamevent.ContentBlockStart:
		state.openBlocks[ev.BlockIndex] = true
		return sse.WriteEvent(w, "content_block_start", marshal(map[string]any{
			"type": "content_block_start", "index": ev.BlockIndex,
			"content_block": map[string]any{"type": "text", "text": ""},
		}))

	case streamevent.ToolUseStart:
		state.openBlocks[ev.BlockIndex] = true
		return sse.WriteEvent(w, "content_block_start", marshal(map[string]any{
			"type": "content_block_start", "index": ev.BlockIndex,
			"content_block": map[string]any{"type": "tool_use", "id": ev.ToolUseID, "name": ev.ToolUseName, "input": map[string]any{}},
		}))

	case streamevent.ContentDelta:
		deltaType := "text_delta"
		field := "text"
		if ev.DeltaType == streamevent.DeltaThinking {
			deltaType = "thinking_delta"
			field = "thinking"
		}
		return sse.WriteEvent(w, "content_block_delta", marshal(map[string]any{
			"type": "content_block_delta", "index": ev.BlockIndex,
			"delta": map[string]any{"type": deltaType, field: ev.Text},
		}))

	case streamevent.ToolArgsDelta:
		return sse.WriteEvent(w, "content_block_delta", marshal(map[string]any{
			"type": "content_block_delta", "index": ev.BlockIndex,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": ev.JSONFragment},
		}))

	case streamevent.ContentBlockStop:
		delete(state.openBlocks, ev.BlockIndex)
		return sse.WriteEvent(w, "content_block_stop", marshal(map[string]any{
			"type": "content_block_stop", "index": ev.BlockIndex,
		}))

	case streamevent.Usage:
		// Merge rather than overwrite: message_start already recorded
		// InputTokens and a Kiro contextUsageEvent carries no
		// OutputTokens, so a zero field here must not clobber an
		// already-known value.
		if ev.Usage.InputTokens != 0 {
			state.usage.InputTokens = ev.Usage.InputTokens
		}
		if ev.Usage.OutputTokens != 0 {
			state.usage.OutputTokens = ev.Usage.OutputTokens
		}
		return nil

	case streamevent.Done:
		for idx := range state.openBlocks {
			if err := sse.WriteEvent(w, "content_block_stop", marshal(map[string]any{"type": "content_block_stop", "index": idx})); err != nil {
				return err
			}
			delete(state.openBlocks, idx)
		}
		stopReason := ev.StopReason
		if stopReason == "" {
			stopReason = "end_turn"
		}
		if err := sse.WriteEvent(w, "message_delta", marshal(map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": stopReason},
			"usage": map[string]any{"input_tokens": state.usage.InputTokens, "output_tokens": state.usage.OutputTokens},
		})); err != nil {
			return err
		}
		return sse.WriteEvent(w, "message_stop", marshal(map[string]any{"type": "message_stop"}))

	case streamevent.Error:
		return sse.WriteEvent(w, "error", marshal(map[string]any{
			"type": "error", "error": map[string]any{"type": ev.ErrorCode, "message": ev.ErrorMsg},
		}))
	}
	return nil
}

func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
