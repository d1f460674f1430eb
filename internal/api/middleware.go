package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

const userIDContextKey = "userID"

// apiKeyAuth resolves x-api-key or Authorization: Bearer to a store.User
// per DESIGN.md's Open Question (d): the presented key is looked up
// verbatim as the user's CredentialIdentifier, since the login/password
// subsystem that would otherwise mint a separate API-key table is out of
// scope.
func (h *Handler) apiKeyAuth(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader("x-api-key"))
	if key == "" {
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	if key == "" {
		respondError(c, &gatewayerrors.UnauthorizedError{Message: "missing x-api-key or Authorization header"})
		return
	}

	u, err := h.store.GetUserByCredentialIdentifier(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	if u == nil || u.Status != store.UserStatusActive {
		respondError(c, &gatewayerrors.UnauthorizedError{Message: "invalid API key"})
		return
	}

	c.Set(userIDContextKey, u.ID)
	c.Next()
}

func userIDFrom(c *gin.Context) string {
	v, _ := c.Get(userIDContextKey)
	s, _ := v.(string)
	return s
}
