// Package gatewayerrors defines the typed error taxonomy shared across the
// gateway: errors carry an HTTP status and, for auth failures, a
// classification so callers can decide whether to retry, flip a
// credential's status, or simply surface the failure to the client.
package gatewayerrors

import (
	"fmt"
	"net/http"
)

// AuthClassification distinguishes why a refresh attempt failed.
type AuthClassification string

const (
	// ClassExpired means the refresh token itself is no longer valid.
	ClassExpired AuthClassification = "expired"
	// ClassTransient means the failure is likely to clear on retry (5xx, timeout).
	ClassTransient AuthClassification = "transient"
	// ClassInvalid means the credential is malformed or rejected outright.
	ClassInvalid AuthClassification = "invalid"
)

// AuthError is raised when an AuthManager fails to obtain an access token.
type AuthError struct {
	HTTPStatus     int
	Classification AuthClassification
	Message        string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s, status %d): %s", e.Classification, e.HTTPStatus, e.Message)
}

// StatusCode implements the gin-consumable HTTPStatuser interface.
func (e *AuthError) StatusCode() int { return e.HTTPStatus }

// NewAuthError builds an AuthError with the given classification.
func NewAuthError(class AuthClassification, status int, msg string) *AuthError {
	return &AuthError{HTTPStatus: status, Classification: class, Message: msg}
}

// UpstreamError wraps a non-2xx response from an upstream provider.
type UpstreamError struct {
	HTTPStatus int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.HTTPStatus, e.Body)
}

func (e *UpstreamError) StatusCode() int { return http.StatusBadGateway }

// NoCredentialAvailable is raised by the allocator when a user has no active
// credential of any kind.
type NoCredentialAvailable struct {
	UserID string
}

func (e *NoCredentialAvailable) Error() string {
	return fmt.Sprintf("no credential available for user %s", e.UserID)
}

func (e *NoCredentialAvailable) StatusCode() int { return http.StatusForbidden }

// FirstTokenTimeout is raised when no upstream byte arrives before the
// first-token deadline. The orchestrator does not retry it with another
// credential; it is returned to the caller as-is.
type FirstTokenTimeout struct {
	Upstream string
}

func (e *FirstTokenTimeout) Error() string {
	return fmt.Sprintf("first-token timeout waiting on %s", e.Upstream)
}

func (e *FirstTokenTimeout) StatusCode() int { return http.StatusGatewayTimeout }

// StreamReadTimeout is raised after too many consecutive inter-frame read
// timeouts. Fatal for the current request.
type StreamReadTimeout struct {
	Upstream string
}

func (e *StreamReadTimeout) Error() string {
	return fmt.Sprintf("stream read timeout on %s", e.Upstream)
}

func (e *StreamReadTimeout) StatusCode() int { return http.StatusGatewayTimeout }

// ValidationError flags a malformed client request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) StatusCode() int { return http.StatusUnprocessableEntity }

// OwnershipError flags an attempt to mutate a row the caller doesn't own.
type OwnershipError struct {
	Resource string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("ownership error: %s not owned by caller", e.Resource)
}

func (e *OwnershipError) StatusCode() int { return http.StatusNotFound }

// UnauthorizedError flags a missing or unrecognized client API key.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return "unauthorized: " + e.Message }

func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

// ConfigError is fatal at startup.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config error: " + e.Message }

// HTTPStatuser is implemented by every error type above except ConfigError
// (which is fatal at startup and never reaches a client) so API middleware
// can map an error to the right HTTP status without a type switch per case.
type HTTPStatuser interface {
	StatusCode() int
}

// StatusCodeOf extracts the HTTP status for any error in this package,
// defaulting to 500 for unrecognized errors.
func StatusCodeOf(err error) int {
	if s, ok := err.(HTTPStatuser); ok {
		return s.StatusCode()
	}
	return http.StatusInternalServerError
}
