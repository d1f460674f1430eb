package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/riftgate/anthropic-gateway/internal/streamevent"
)

func TestConvertAnthropicRequestToOpenAIBasic(t *testing.T) {
	in := []byte(`{
		"model": "claude-sonnet-4",
		"stream": true,
		"max_tokens": 1024,
		"system": "be terse",
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	out, err := ConvertAnthropicRequestToOpenAI(in, "", ThinkingInjection{})
	require.NoError(t, err)

	require.Equal(t, "claude-sonnet-4", gjson.GetBytes(out, "model").String())
	require.True(t, gjson.GetBytes(out, "stream").Bool())
	require.Equal(t, int64(1024), gjson.GetBytes(out, "max_tokens").Int())
	require.Equal(t, "system", gjson.GetBytes(out, "messages.0.role").String())
	require.Equal(t, "be terse", gjson.GetBytes(out, "messages.0.content").String())
	require.Equal(t, "hi", gjson.GetBytes(out, "messages.1.content").String())
}

func TestConvertAnthropicRequestToOpenAIInjectsThinkingPrompt(t *testing.T) {
	in := []byte(`{"model": "m", "messages": [{"role": "user", "content": "hi"}]}`)

	out, err := ConvertAnthropicRequestToOpenAI(in, "", ThinkingInjection{Enabled: true, MaxThinkingLength: 500})
	require.NoError(t, err)

	system := gjson.GetBytes(out, "messages.0.content").String()
	require.Contains(t, system, "<thinking_mode>enabled</thinking_mode>")
	require.Contains(t, system, "<max_thinking_length>500</max_thinking_length>")
}

func TestConvertAnthropicRequestToOpenAIPrependsThinkingPromptToExistingSystem(t *testing.T) {
	in := []byte(`{"model": "m", "system": "You are a helpful assistant.", "messages": [{"role": "user", "content": "hi"}]}`)

	out, err := ConvertAnthropicRequestToOpenAI(in, "", ThinkingInjection{Enabled: true, MaxThinkingLength: 500})
	require.NoError(t, err)

	system := gjson.GetBytes(out, "messages.0.content").String()
	tagIdx := strings.Index(system, "<thinking_mode>")
	promptIdx := strings.Index(system, "You are a helpful assistant.")
	require.NotEqual(t, -1, tagIdx)
	require.NotEqual(t, -1, promptIdx)
	require.Less(t, tagIdx, promptIdx, "thinking control tags must be prepended to the system prompt, not appended")
}

func TestConvertAnthropicRequestToOpenAIModelOverride(t *testing.T) {
	in := []byte(`{"model": "claude-sonnet-4", "messages": []}`)
	out, err := ConvertAnthropicRequestToOpenAI(in, "gpt-4o", ThinkingInjection{})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", gjson.GetBytes(out, "model").String())
}

func TestConvertAnthropicRequestToOpenAIToolUseAndResult(t *testing.T) {
	in := []byte(`{
		"model": "m",
		"messages": [
			{"role": "assistant", "content": [{"type": "tool_use", "id": "t1", "name": "lookup", "input": {"q": "x"}}]},
			{"role": "user", "content": [{"type": "tool_result", "tool_use_id": "t1", "content": "42"}]}
		]
	}`)

	out, err := ConvertAnthropicRequestToOpenAI(in, "", ThinkingInjection{})
	require.NoError(t, err)

	require.Equal(t, "lookup", gjson.GetBytes(out, "messages.0.tool_calls.0.function.name").String())
	require.Equal(t, "tool", gjson.GetBytes(out, "messages.1.role").String())
	require.Equal(t, "t1", gjson.GetBytes(out, "messages.1.tool_call_id").String())
	require.Equal(t, "42", gjson.GetBytes(out, "messages.1.content").String())
}

func TestAzureScrubRemovesDeniedKeys(t *testing.T) {
	in := []byte(`{"model": "m", "context_management": {}, "betas": ["x"], "thinking": {"type": "enabled"}, "messages": []}`)
	out, err := AzureScrub(in)
	require.NoError(t, err)

	require.False(t, gjson.GetBytes(out, "context_management").Exists())
	require.False(t, gjson.GetBytes(out, "betas").Exists())
	require.False(t, gjson.GetBytes(out, "thinking").Exists())
	require.Equal(t, "m", gjson.GetBytes(out, "model").String())
}

func TestAzureScrubNoopWhenKeysAbsent(t *testing.T) {
	in := []byte(`{"model": "m", "messages": []}`)
	out, err := AzureScrub(in)
	require.NoError(t, err)
	require.JSONEq(t, string(in), string(out))
}

func TestConvertOpenAIResponseToAnthropicNonStream(t *testing.T) {
	in := []byte(`{
		"model": "gpt-4o",
		"choices": [{"finish_reason": "stop", "message": {"role": "assistant", "content": "hello there"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5}
	}`)

	out, err := ConvertOpenAIResponseToAnthropic(in, "fallback")
	require.NoError(t, err)

	require.Equal(t, "assistant", gjson.GetBytes(out, "role").String())
	require.Equal(t, "hello there", gjson.GetBytes(out, "content.0.text").String())
	require.Equal(t, "end_turn", gjson.GetBytes(out, "stop_reason").String())
	require.Equal(t, int64(10), gjson.GetBytes(out, "usage.input_tokens").Int())
}

func TestConvertOpenAIChunkToEventsTextDelta(t *testing.T) {
	state := NewOpenAIStreamState()
	events, err := ConvertOpenAIChunkToEvents(state, []byte(`{"choices":[{"delta":{"content":"hi"}}]}`))
	require.NoError(t, err)

	var kinds []streamevent.Kind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	require.Contains(t, kinds, streamevent.MessageStart)
	require.Contains(t, kinds, streamevent.ContentBlockStart)
	require.Contains(t, kinds, streamevent.ContentDelta)
}

func TestConvertOpenAIChunkToEventsDoneSentinel(t *testing.T) {
	state := NewOpenAIStreamState()
	events, err := ConvertOpenAIChunkToEvents(state, []byte(`[DONE]`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, streamevent.Done, events[0].Kind)
}

func TestEmitAnthropicEventProducesWellFormedFrames(t *testing.T) {
	var buf bytes.Buffer
	state := NewAnthropicEmitState()

	require.NoError(t, EmitAnthropicEvent(&buf, streamevent.Event{Kind: streamevent.MessageStart}, state))
	require.NoError(t, EmitAnthropicEvent(&buf, streamevent.Event{Kind: streamevent.ContentBlockStart, BlockIndex: 0}, state))
	require.NoError(t, EmitAnthropicEvent(&buf, streamevent.Event{Kind: streamevent.ContentDelta, DeltaType: streamevent.DeltaText, Text: "hi", BlockIndex: 0}, state))
	require.NoError(t, EmitAnthropicEvent(&buf, streamevent.Event{Kind: streamevent.Done, StopReason: "end_turn"}, state))

	out := buf.String()
	require.Contains(t, out, "event: message_start")
	require.Contains(t, out, "event: content_block_delta")
	require.Contains(t, out, "event: message_stop")
}
