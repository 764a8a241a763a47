// Package services defines the business logic for user accounts, bearer-token
// verification and the notification status ledger. This file centralizes
// service-level error values so that they can be consistently returned by
// service methods and checked by callers with errors.Is.
//
// Translation into HTTP status codes and envelope codes happens in the
// handlers package.
package services

import "errors"

// Validation errors. Specific values wrap ErrValidation so callers can test
// either the family or the exact cause.
var (
	// ErrValidation is the family of malformed-input errors.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateEmail is returned when the normalized email is already
	// registered, by an active or an inactive user.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrMissingPushToken is returned when a push token update carries no token.
	ErrMissingPushToken = invalid("push_token is required")

	// ErrInvalidChannel is returned for notification channels other than
	// email and push.
	ErrInvalidChannel = invalid("invalid notification type")

	// ErrInvalidStatus is returned for statuses other than pending,
	// delivered and failed.
	ErrInvalidStatus = invalid("invalid status")

	// ErrMissingErrorForFailed is returned when a failed status is reported
	// without error text.
	ErrMissingErrorForFailed = invalid("error is required when status is failed")
)

// Authentication errors.
var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountDisabled is returned by login for a deactivated account.
	ErrAccountDisabled = errors.New("account is disabled")

	// ErrUserNotFound indicates that the user does not exist, or is inactive
	// where only active users are visible.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserInactive is returned when a valid token names a deactivated user.
	ErrUserInactive = errors.New("user is inactive")

	// ErrForbidden is returned when the caller may not act on the target user.
	ErrForbidden = errors.New("operation not permitted for this user")
)

// validationError is a specific validation failure that also matches
// ErrValidation.
type validationError struct{ msg string }

func (e *validationError) Error() string        { return e.msg }
func (e *validationError) Is(target error) bool { return target == ErrValidation }

// invalid builds a validation error with a client-safe message.
func invalid(msg string) error { return &validationError{msg: msg} }
