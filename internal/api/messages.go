package api

import (
	"bytes"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/riftgate/anthropic-gateway/internal/orchestrator"
	"github.com/riftgate/anthropic-gateway/internal/sse"
)

// postMessages implements POST /v1/messages: streaming or not per the
// request's own "stream" flag, per spec.md §6.
func (h *Handler) postMessages(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, err)
		return
	}
	if gjson.GetBytes(body, "stream").Bool() {
		h.runStreaming(c, body, orchestrator.ModeStream)
		return
	}
	h.runBuffered(c, body, orchestrator.ModeCollect)
}

// postCCMessages implements POST /cc/v1/messages: same request shape as
// /v1/messages, but streaming replies go through buffered-mode token
// correction (spec.md §6, §4.9) instead of a raw relay.
func (h *Handler) postCCMessages(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, err)
		return
	}
	if gjson.GetBytes(body, "stream").Bool() {
		h.runStreaming(c, body, orchestrator.ModeBuffered)
		return
	}
	h.runBuffered(c, body, orchestrator.ModeCollect)
}

// postCountTokens implements POST /v1/messages/count_tokens.
func (h *Handler) postCountTokens(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, err)
		return
	}
	h.runBuffered(c, body, orchestrator.ModeCountTokens)
}

// runStreaming writes an SSE response directly to the connection. The
// handler only writes an error response for a failure before the first
// byte. customdispatcher writes an "event: error" frame when the upstream
// answers with a failure status; any other failure after the first byte
// (including every failure on the Kiro path) ends the stream without an
// error frame.
func (h *Handler) runStreaming(c *gin.Context, body []byte, mode orchestrator.Mode) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	userID := userIDFrom(c)
	ping := func() { _ = sse.WritePing(c.Writer) }

	err := h.orch.Handle(c.Request.Context(), c.Writer, userID, body, mode, ping)
	if err != nil && !c.Writer.Written() {
		respondError(c, err)
	}
}

// runBuffered fully assembles the response before writing, so a failure
// still produces a clean JSON error body with the right status.
func (h *Handler) runBuffered(c *gin.Context, body []byte, mode orchestrator.Mode) {
	var buf bytes.Buffer
	userID := userIDFrom(c)

	if err := h.orch.Handle(c.Request.Context(), &buf, userID, body, mode, nil); err != nil {
		respondError(c, err)
		return
	}
	c.Data(200, "application/json", buf.Bytes())
}
