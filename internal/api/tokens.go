package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riftgate/anthropic-gateway/internal/config"
	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

type kiroTokenRequest struct {
	Region       string `json:"region"`
	AuthType     string `json:"auth_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	Visibility   string `json:"visibility"`
	Anonymous    bool   `json:"anonymous"`
}

// postKiroToken implements POST /user/api/tokens. An anonymous registration
// forces visibility=public regardless of the requested value, per
// SPEC_FULL.md §9's supplemented shared-token-pool behavior.
func (h *Handler) postKiroToken(c *gin.Context) {
	var req kiroTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &gatewayerrors.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	if req.RefreshToken == "" {
		respondError(c, &gatewayerrors.ValidationError{Field: "refresh_token", Message: "required"})
		return
	}
	if req.AuthType == "" {
		req.AuthType = store.AuthTypeSocial
	}
	if req.AuthType != store.AuthTypeSocial && req.AuthType != store.AuthTypeIDC {
		respondError(c, &gatewayerrors.ValidationError{Field: "auth_type", Message: "must be one of social, idc"})
		return
	}
	if req.Region == "" {
		req.Region = store.DefaultRegion
	}
	if !config.SupportedRegions[req.Region] {
		respondError(c, &gatewayerrors.ValidationError{Field: "region", Message: "unsupported region"})
		return
	}

	visibility := req.Visibility
	if req.Anonymous {
		visibility = store.VisibilityPublic
	}

	tok, err := h.store.CreateKiroToken(c.Request.Context(), store.CreateKiroTokenInput{
		UserID:       userIDFrom(c),
		RefreshToken: req.RefreshToken,
		AuthType:     req.AuthType,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Region:       req.Region,
		Visibility:   visibility,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         tok.ID,
		"region":     tok.Region,
		"auth_type":  tok.AuthType,
		"visibility": tok.Visibility,
		"status":     tok.Status,
	})
}
