// Package wire converts between the Anthropic Messages wire format and the
// OpenAI Chat Completions wire format, grounded in the teacher's
// internal/translator/kiro/{openai,claude} package shape: one file per
// direction, a Convert<X>To<Y> top-level function, ad hoc field surgery via
// gjson/sjson rather than full struct marshaling, since upstream payloads
// carry fields this gateway never needs to model completely.
package wire

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ThinkingInjection describes the system-prompt addendum the orchestrator
// asks this package to splice in when a client requests extended thinking
// from an upstream that only understands it via prompting (the custom-API
// OpenAI-format path), per spec.md §4.4.
type ThinkingInjection struct {
	Enabled           bool
	MaxThinkingLength int
}

const thinkingPromptTemplate = "<thinking_mode>enabled</thinking_mode><max_thinking_length>%d</max_thinking_length>"

// ConvertAnthropicRequestToOpenAI converts an Anthropic /v1/messages request
// body into an OpenAI /chat/completions request body. modelOverride, when
// non-empty, replaces the client-supplied model name (custom accounts may
// pin a specific upstream model).
func ConvertAnthropicRequestToOpenAI(rawJSON []byte, modelOverride string, thinking ThinkingInjection) ([]byte, error) {
	root := gjson.ParseBytes(rawJSON)

	model := modelOverride
	if model == "" {
		model = root.Get("model").String()
	}

	out := []byte(`{}`)
	var err error
	if out, err = sjson.SetBytes(out, "model", model); err != nil {
		return nil, fmt.Errorf("wire: set model: %w", err)
	}
	if root.Get("stream").Exists() {
		if out, err = sjson.SetBytes(out, "stream", root.Get("stream").Bool()); err != nil {
			return nil, fmt.Errorf("wire: set stream: %w", err)
		}
	}
	if v := root.Get("max_tokens"); v.Exists() {
		if out, err = sjson.SetBytes(out, "max_tokens", v.Int()); err != nil {
			return nil, fmt.Errorf("wire: set max_tokens: %w", err)
		}
	}
	if v := root.Get("temperature"); v.Exists() {
		if out, err = sjson.SetBytes(out, "temperature", v.Float()); err != nil {
			return nil, fmt.Errorf("wire: set temperature: %w", err)
		}
	}

	messages := make([]any, 0, root.Get("messages").Get("#").Int()+1)

	system := root.Get("system").String()
	if arr := root.Get("system"); arr.IsArray() {
		var sb []byte
		arr.ForEach(func(_, block gjson.Result) bool {
			sb = append(sb, block.Get("text").String()...)
			sb = append(sb, '\n')
			return true
		})
		system = string(sb)
	}
	if thinking.Enabled {
		max := thinking.MaxThinkingLength
		if max <= 0 {
			max = 200000
		}
		addendum := fmt.Sprintf(thinkingPromptTemplate, max)
		if system != "" {
			system = addendum + "\n\n" + system
		} else {
			system = addendum
		}
	}
	if system != "" {
		messages = append(messages, map[string]any{"role": "system", "content": system})
	}

	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		converted := convertAnthropicMessageToOpenAI(msg)
		toolResults, _ := converted["_tool_results"].([]any)
		delete(converted, "_tool_results")
		if _, hasContent := converted["content"]; hasContent || converted["tool_calls"] != nil {
			messages = append(messages, converted)
		}
		messages = append(messages, toolResults...)
		return true
	})

	if out, err = sjson.SetBytes(out, "messages", messages); err != nil {
		return nil, fmt.Errorf("wire: set messages: %w", err)
	}

	if tools := root.Get("tools"); tools.IsArray() {
		openaiTools := make([]any, 0)
		tools.ForEach(func(_, tool gjson.Result) bool {
			openaiTools = append(openaiTools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        tool.Get("name").String(),
					"description": tool.Get("description").String(),
					"parameters":  jsonValue(tool.Get("input_schema")),
				},
			})
			return true
		})
		if out, err = sjson.SetBytes(out, "tools", openaiTools); err != nil {
			return nil, fmt.Errorf("wire: set tools: %w", err)
		}
	}

	return out, nil
}

// convertAnthropicMessageToOpenAI reshapes a single Anthropic message,
// including Anthropic's tool_use / tool_result content blocks, into the
// role/content (or role/tool_calls) shape OpenAI expects.
func convertAnthropicMessageToOpenAI(msg gjson.Result) map[string]any {
	role := msg.Get("role").String()
	content := msg.Get("content")

	if content.Type == gjson.String {
		return map[string]any{"role": role, "content": content.String()}
	}

	var textParts []byte
	var mixedParts []any
	var toolCalls []any
	var toolResults []any
	sawImage := false

	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			if len(textParts) > 0 {
				textParts = append(textParts, '\n')
			}
			textParts = append(textParts, block.Get("text").String()...)
			mixedParts = append(mixedParts, map[string]any{"type": "text", "text": block.Get("text").String()})
		case "image":
			sawImage = true
			src := block.Get("source")
			url := src.Get("url").String()
			if url == "" {
				// Anthropic's base64 source shape: {type:"base64", media_type, data}.
				url = fmt.Sprintf("data:%s;base64,%s", src.Get("media_type").String(), src.Get("data").String())
			}
			mixedParts = append(mixedParts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": url},
			})
		case "tool_use":
			toolCalls = append(toolCalls, map[string]any{
				"id":   block.Get("id").String(),
				"type": "function",
				"function": map[string]any{
					"name":      block.Get("name").String(),
					"arguments": jsonValue(block.Get("input")),
				},
			})
		case "tool_result":
			toolResults = append(toolResults, map[string]any{
				"role":         "tool",
				"tool_call_id": block.Get("tool_use_id").String(),
				"content":      toolResultText(block),
			})
		}
		return true
	})

	out := map[string]any{"role": role}
	switch {
	case sawImage:
		out["content"] = mixedParts
	case len(textParts) > 0 || (len(toolCalls) == 0 && len(toolResults) == 0):
		out["content"] = string(textParts)
	}
	if len(toolCalls) > 0 {
		out["tool_calls"] = toolCalls
	}
	// Tool results in Anthropic are separate content blocks within a user
	// message; OpenAI expects standalone "tool" role messages. They are
	// returned under "_tool_results", which ConvertAnthropicRequestToOpenAI
	// flattens into the message list after this message.
	if len(toolResults) > 0 {
		out["_tool_results"] = toolResults
	}
	return out
}

func toolResultText(block gjson.Result) string {
	c := block.Get("content")
	if c.Type == gjson.String {
		return c.String()
	}
	var sb []byte
	c.ForEach(func(_, part gjson.Result) bool {
		sb = append(sb, part.Get("text").String()...)
		return true
	})
	return string(sb)
}

// jsonValue returns a gjson.Result's decoded JSON value suitable for
// re-marshaling (object/array/scalar), defaulting to an empty object when
// absent so OpenAI tool schemas are never omitted outright.
func jsonValue(r gjson.Result) any {
	if !r.Exists() {
		return map[string]any{}
	}
	return r.Value()
}
