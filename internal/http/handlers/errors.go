// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic codes carried in the `error` field of
// failure envelopes, and the mapping from service errors to status + code.
// Clients are expected to branch on these codes for programmatic handling.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Validation failures are 400, authentication failures 401 and a missing
//     user 404.
//   - An unexpected store error on a read degrades (see failRead); on a write
//     it is 500 internal_error (details logged, never returned).
//
// Example response:
//   {
//     "success": false,
//     "message": "push_token is required",
//     "data": {},
//     "error": "missing_push_token"
//   }
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-user-service/internal/http/middleware"
	"github.com/tbourn/go-user-service/internal/services"
)

const (
	ErrCodeValidation       = "validation_failed"
	ErrCodeDuplicateEmail   = "duplicate_email"
	ErrCodeMissingPushToken = "missing_push_token"
	ErrCodeInvalidChannel   = "invalid_notification_type"
	ErrCodeInvalidStatus    = "invalid_status"
	ErrCodeMissingError     = "missing_error"
	ErrCodeAuthentication   = "authentication_failed"
	ErrCodeUserNotFound     = "user_not_found"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
)

// failService translates a service error into a failure envelope.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrDuplicateEmail):
		fail(c, http.StatusBadRequest, ErrCodeDuplicateEmail, "A user with this email already exists")
	case errors.Is(err, services.ErrMissingPushToken):
		fail(c, http.StatusBadRequest, ErrCodeMissingPushToken, "push_token is required")
	case errors.Is(err, services.ErrInvalidChannel):
		fail(c, http.StatusBadRequest, ErrCodeInvalidChannel, "Notification type must be 'email' or 'push'")
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, "Status must be 'delivered', 'pending', or 'failed'")
	case errors.Is(err, services.ErrMissingErrorForFailed):
		fail(c, http.StatusBadRequest, ErrCodeMissingError, "Error field is required for failed status")
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeAuthentication, "Invalid credentials")
	case errors.Is(err, services.ErrAccountDisabled):
		fail(c, http.StatusUnauthorized, ErrCodeAuthentication, "User account is disabled")
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeUserNotFound, "User not found")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "You may only deactivate your own account")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unexpected service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// failRead answers a failed single-user read. Known service errors map as in
// failService; a store failure reads as a missing user.
func failRead(c *gin.Context, err error) {
	if knownServiceError(err) {
		failService(c, err)
		return
	}
	middleware.LoggerFrom(c).Warn().Err(err).Msg("store read failed, answering not found")
	fail(c, http.StatusNotFound, ErrCodeUserNotFound, "User not found")
}

func knownServiceError(err error) bool {
	for _, target := range []error{
		services.ErrDuplicateEmail, services.ErrMissingPushToken, services.ErrInvalidChannel,
		services.ErrInvalidStatus, services.ErrMissingErrorForFailed, services.ErrValidation,
		services.ErrInvalidCredentials, services.ErrAccountDisabled, services.ErrUserNotFound,
		services.ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
