// Package api is the gin route table for the gateway's client-facing HTTP
// surface (spec.md §6): Anthropic-format messages, custom-API-account CRUD,
// and Kiro token registration. Grounded on sdk/api/handlers/handlers.go's
// BaseAPIHandler composition (one struct of shared collaborators, methods
// doing the work) and internal/api/server.go's route-group/AuthMiddleware
// layout.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/riftgate/anthropic-gateway/internal/orchestrator"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

// Handler holds every collaborator the route handlers need.
type Handler struct {
	store *store.Store
	orch  *orchestrator.Orchestrator
}

// New returns a Handler ready for Register.
func New(st *store.Store, orch *orchestrator.Orchestrator) *Handler {
	return &Handler{store: st, orch: orch}
}

// Register wires every route spec.md §6 names onto engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.Use(h.apiKeyAuth)

	engine.POST("/v1/messages", h.postMessages)
	engine.POST("/v1/messages/count_tokens", h.postCountTokens)
	engine.POST("/cc/v1/messages", h.postCCMessages)

	user := engine.Group("/user/api")
	{
		user.GET("/custom-apis", h.listCustomAccounts(false))
		user.POST("/custom-apis", h.createCustomAccount(false))
		user.GET("/custom-apis/:id", h.getCustomAccount(false))
		user.PUT("/custom-apis/:id", h.putCustomAccount(false))
		user.PATCH("/custom-apis/:id", h.patchCustomAccount(false))
		user.DELETE("/custom-apis/:id", h.deleteCustomAccount(false))
		user.POST("/custom-apis/:id/status", h.setCustomAccountStatus(false))

		user.POST("/tokens", h.postKiroToken)
	}

	admin := engine.Group("/admin/api")
	{
		admin.GET("/custom-apis", h.listCustomAccounts(true))
		admin.POST("/custom-apis", h.createCustomAccount(true))
		admin.GET("/custom-apis/:id", h.getCustomAccount(true))
		admin.PUT("/custom-apis/:id", h.putCustomAccount(true))
		admin.PATCH("/custom-apis/:id", h.patchCustomAccount(true))
		admin.DELETE("/custom-apis/:id", h.deleteCustomAccount(true))
		admin.POST("/custom-apis/:id/status", h.setCustomAccountStatus(true))
	}
}
