// Package streamevent defines the internal normalized stream event union
// that every upstream wire format (Kiro's AWS event-stream framing, an
// OpenAI-compatible SSE stream, or a Claude-compatible passthrough) is
// translated into before being re-emitted as Anthropic SSE.
package streamevent

// Kind tags the variant of a StreamEvent.
type Kind int

const (
	MessageStart Kind = iota
	ContentBlockStart
	ContentDelta
	ThinkingDelta
	ToolUseStart
	ToolArgsDelta
	ContentBlockStop
	Usage
	Done
	Error
)

// ContentDeltaType distinguishes a text delta from a thinking delta when
// both are carried through a ContentDelta event.
type ContentDeltaType int

const (
	DeltaText ContentDeltaType = iota
	DeltaThinking
)

// UsageInfo carries token accounting, including the context-window
// percentage Kiro reports so buffered mode can back-compute input_tokens.
type UsageInfo struct {
	InputTokens       int64
	OutputTokens      int64
	ContextPercent    float64
	HasContextPercent bool
	// Estimated marks an InputTokens value that came from the
	// tiktoken-style fallback rather than an upstream contextUsageEvent,
	// per spec.md §9 Open Question (b).
	Estimated bool
}

// Event is the tagged union every upstream adapter normalizes into.
type Event struct {
	Kind Kind

	// ContentDelta / ThinkingDelta
	DeltaType ContentDeltaType
	Text      string
	BlockIndex int

	// ToolUseStart
	ToolUseID   string
	ToolUseName string

	// ToolArgsDelta
	JSONFragment string

	// Usage
	Usage UsageInfo

	// Error
	ErrorCode string
	ErrorMsg  string

	// StopReason is carried on Done so the Anthropic message_delta can
	// report it.
	StopReason string
}
