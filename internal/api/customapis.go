package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

var apiBasePattern = regexp.MustCompile(`^https?://`)

// customAccountDTO is what a client sees: never the ciphertext api_key.
type customAccountDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIBase      string    `json:"api_base"`
	Format       string    `json:"format"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	Status       string    `json:"status"`
	SuccessCount int64     `json:"success_count"`
	FailCount    int64     `json:"fail_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func toCustomAccountDTO(a *store.CustomAccount) customAccountDTO {
	return customAccountDTO{
		ID: a.ID, Name: a.Name, APIBase: a.APIBase, Format: a.Format,
		Provider: a.Provider, Model: a.Model, Status: a.Status,
		SuccessCount: a.SuccessCount, FailCount: a.FailCount, CreatedAt: a.CreatedAt,
	}
}

type customAccountRequest struct {
	Name     string `json:"name"`
	APIBase  string `json:"api_base"`
	APIKey   string `json:"api_key"`
	Format   string `json:"format"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func validateCustomAccountFields(apiBase, format string) error {
	if !apiBasePattern.MatchString(apiBase) {
		return &gatewayerrors.ValidationError{Field: "api_base", Message: "must match ^https?://"}
	}
	if format != store.FormatOpenAI && format != store.FormatClaude {
		return &gatewayerrors.ValidationError{Field: "format", Message: "must be one of openai, claude"}
	}
	return nil
}

func (h *Handler) listCustomAccounts(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			accts []*store.CustomAccount
			err   error
		)
		if admin {
			accts, err = h.store.AdminListAllCustomAccounts(c.Request.Context())
		} else {
			accts, err = h.store.GetActiveCustomAccountsByUser(c.Request.Context(), userIDFrom(c))
		}
		if err != nil {
			respondError(c, err)
			return
		}
		dtos := make([]customAccountDTO, 0, len(accts))
		for _, a := range accts {
			dtos = append(dtos, toCustomAccountDTO(a))
		}
		c.JSON(http.StatusOK, gin.H{"custom_apis": dtos})
	}
}

func (h *Handler) getCustomAccount(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := h.store.GetCustomAccount(c.Request.Context(), c.Param("id"), userIDFrom(c), admin)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toCustomAccountDTO(a))
	}
}

func (h *Handler) createCustomAccount(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req customAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, &gatewayerrors.ValidationError{Field: "body", Message: err.Error()})
			return
		}
		if err := validateCustomAccountFields(req.APIBase, req.Format); err != nil {
			respondError(c, err)
			return
		}
		userID := userIDFrom(c)
		a, err := h.store.CreateCustomAccount(c.Request.Context(), store.CreateCustomAccountInput{
			UserID: userID, Name: req.Name, APIBase: req.APIBase, APIKey: req.APIKey,
			Format: req.Format, Provider: req.Provider, Model: req.Model,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toCustomAccountDTO(a))
	}
}

// putCustomAccount is the "full patch" route: api_base and format are
// re-validated per spec.md §6, ownership enforced via the store's own
// OwnershipError unless admin, and an empty api_key retains the existing
// ciphertext.
func (h *Handler) putCustomAccount(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req customAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, &gatewayerrors.ValidationError{Field: "body", Message: err.Error()})
			return
		}
		if err := validateCustomAccountFields(req.APIBase, req.Format); err != nil {
			respondError(c, err)
			return
		}

		id := c.Param("id")
		userID := userIDFrom(c)
		if _, err := h.store.GetCustomAccount(c.Request.Context(), id, userID, admin); err != nil {
			respondError(c, err)
			return
		}

		patch := store.CustomAccountPatch{
			Name: &req.Name, APIBase: &req.APIBase, Format: &req.Format,
			Provider: &req.Provider, Model: &req.Model,
		}
		if req.APIKey != "" {
			patch.APIKey = &req.APIKey
		}
		if err := h.store.UpdateCustomAccount(c.Request.Context(), id, userID, admin, patch); err != nil {
			respondError(c, err)
			return
		}
		a, err := h.store.GetCustomAccount(c.Request.Context(), id, userID, admin)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toCustomAccountDTO(a))
	}
}

func (h *Handler) patchCustomAccount(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req map[string]any
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, &gatewayerrors.ValidationError{Field: "body", Message: err.Error()})
			return
		}

		patch := store.CustomAccountPatch{}
		if v, ok := req["name"].(string); ok {
			patch.Name = &v
		}
		if v, ok := req["api_base"].(string); ok {
			if !apiBasePattern.MatchString(v) {
				respondError(c, &gatewayerrors.ValidationError{Field: "api_base", Message: "must match ^https?://"})
				return
			}
			patch.APIBase = &v
		}
		if v, ok := req["api_key"].(string); ok && v != "" {
			patch.APIKey = &v
		}
		if v, ok := req["format"].(string); ok {
			if v != store.FormatOpenAI && v != store.FormatClaude {
				respondError(c, &gatewayerrors.ValidationError{Field: "format", Message: "must be one of openai, claude"})
				return
			}
			patch.Format = &v
		}
		if v, ok := req["provider"].(string); ok {
			patch.Provider = &v
		}
		if v, ok := req["model"].(string); ok {
			patch.Model = &v
		}

		id := c.Param("id")
		userID := userIDFrom(c)
		if err := h.store.UpdateCustomAccount(c.Request.Context(), id, userID, admin, patch); err != nil {
			respondError(c, err)
			return
		}
		a, err := h.store.GetCustomAccount(c.Request.Context(), id, userID, admin)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toCustomAccountDTO(a))
	}
}

func (h *Handler) deleteCustomAccount(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.store.DeleteCustomAccount(c.Request.Context(), c.Param("id"), userIDFrom(c), admin); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) setCustomAccountStatus(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status string `json:"status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, &gatewayerrors.ValidationError{Field: "body", Message: err.Error()})
			return
		}
		if req.Status != store.AccountStatusActive && req.Status != store.AccountStatusDisabled {
			respondError(c, &gatewayerrors.ValidationError{Field: "status", Message: "must be one of active, disabled"})
			return
		}

		id := c.Param("id")
		userID := userIDFrom(c)
		if err := h.store.UpdateCustomAccount(c.Request.Context(), id, userID, admin, store.CustomAccountPatch{Status: &req.Status}); err != nil {
			respondError(c, err)
			return
		}
		a, err := h.store.GetCustomAccount(c.Request.Context(), id, userID, admin)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toCustomAccountDTO(a))
	}
}
