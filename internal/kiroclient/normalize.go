package kiroclient

import (
	"github.com/tidwall/gjson"

	"github.com/riftgate/anthropic-gateway/internal/streamevent"
)

// normalizeState threads the stop reason from messageDelta through to the
// Done event produced by messageStop, since Kiro reports them in separate
// frames but streamevent.Event carries StopReason only on Done.
type normalizeState struct {
	pendingStopReason string
}

// normalize converts one typed Kiro frame into zero or one internal events.
// A JSON-unparseable payload, an empty payload or an unrecognized event
// type yields ok == false; the caller logs and skips it.
func normalize(st *normalizeState, eventType string, payload []byte) (streamevent.Event, bool) {
	if !gjson.ValidBytes(payload) {
		return streamevent.Event{}, false
	}
	root := gjson.ParseBytes(payload)

	switch eventType {
	case "contentBlockStart":
		index := int(root.Get("index").Int())
		block := root.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			return streamevent.Event{
				Kind:        streamevent.ToolUseStart,
				BlockIndex:  index,
				ToolUseID:   block.Get("id").String(),
				ToolUseName: block.Get("name").String(),
			}, true
		}
		return streamevent.Event{Kind: streamevent.ContentBlockStart, BlockIndex: index}, true

	case "contentBlockDelta":
		index := int(root.Get("index").Int())
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "thinking_delta":
			return streamevent.Event{Kind: streamevent.ThinkingDelta, BlockIndex: index, Text: delta.Get("thinking").String()}, true
		case "input_json_delta":
			return streamevent.Event{Kind: streamevent.ToolArgsDelta, BlockIndex: index, JSONFragment: delta.Get("partial_json").String()}, true
		default:
			return streamevent.Event{Kind: streamevent.ContentDelta, DeltaType: streamevent.DeltaText, BlockIndex: index, Text: delta.Get("text").String()}, true
		}

	case "toolUseDelta":
		return streamevent.Event{
			Kind:         streamevent.ToolArgsDelta,
			BlockIndex:   int(root.Get("index").Int()),
			JSONFragment: root.Get("partial_json").String(),
		}, true

	case "contentBlockStop":
		return streamevent.Event{Kind: streamevent.ContentBlockStop, BlockIndex: int(root.Get("index").Int())}, true

	case "messageDelta":
		if sr := root.Get("delta.stop_reason").String(); sr != "" {
			st.pendingStopReason = sr
		}
		return streamevent.Event{
			Kind: streamevent.Usage,
			Usage: streamevent.UsageInfo{
				OutputTokens: root.Get("usage.output_tokens").Int(),
			},
		}, true

	case "contextUsageEvent":
		return streamevent.Event{
			Kind: streamevent.Usage,
			Usage: streamevent.UsageInfo{
				ContextPercent:    root.Get("context_usage_percentage").Float(),
				HasContextPercent: true,
			},
		}, true

	case "messageStop":
		return streamevent.Event{Kind: streamevent.Done, StopReason: st.pendingStopReason}, true

	default:
		return streamevent.Event{}, false
	}
}

// inputTokensFromPercent implements spec.md's back-computation:
// input_tokens = round(p * 200000 / 100).
func inputTokensFromPercent(p float64) int64 {
	return int64(p*200000/100 + 0.5)
}
