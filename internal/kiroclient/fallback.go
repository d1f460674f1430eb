package kiroclient

import (
	"github.com/tiktoken-go/tokenizer"
)

// EstimateTokens is the tiktoken-style fallback spec.md calls for when
// buffered mode never observes a contextUsageEvent, grounded in the
// getOrCreateTokenizer/estimateTokens pairing from the examples' custom
// provider template: try a real BPE count, fall back to chars/4. Exported
// so the orchestrator can use the same estimate for a custom-account
// count_tokens probe, which has no upstream usage event to read at all.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	enc, err := tokenizer.Get(tokenizer.O200kBase)
	if err == nil {
		if count, err := enc.Count(text); err == nil {
			return int64(count)
		}
	}
	n := int64(len(text) / 4)
	if n == 0 {
		n = 1
	}
	return n
}
