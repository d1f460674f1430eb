package api

import (
	"github.com/gin-gonic/gin"

	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
)

// errorResponse mirrors the teacher's ErrorResponse/ErrorDetail shape so
// existing Anthropic/OpenAI client SDKs parse failures the same way.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// respondError writes err as a JSON error body with the status its typed
// gatewayerrors variant carries, defaulting to 500.
func respondError(c *gin.Context, err error) {
	status := gatewayerrors.StatusCodeOf(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: errorDetail{
		Message: err.Error(),
		Type:    errorType(status),
	}})
}

func errorType(status int) string {
	switch status {
	case 401:
		return "authentication_error"
	case 403:
		return "permission_error"
	case 404:
		return "not_found_error"
	case 422:
		return "invalid_request_error"
	case 502, 504:
		return "api_error"
	default:
		return "internal_server_error"
	}
}
