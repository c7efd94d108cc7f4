package auth

import "errors"

// Auth service errors. Handlers map these to HTTP status codes; anything
// not in this list surfaces as a generic 500.
var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrEmailExists        = errors.New("email already exists")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")
	ErrPasswordMismatch   = errors.New("password and passwordConfirm do not match")
	ErrPasswordReused     = errors.New("password was used recently")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account locked after too many failed login attempts")
	ErrOTPInvalid         = errors.New("invalid or expired OTP")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired due to inactivity")
	ErrUserNotFound       = errors.New("user not found")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrInvalidAvatar      = errors.New("invalid or unsupported avatar image")
	ErrDeviceIDRequired   = errors.New("device id is required")
)

// WeakPasswordError wraps ErrWeakPassword and carries the individual
// policy violations for the response body
type WeakPasswordError struct {
	Violations []PolicyViolation
}

func (e *WeakPasswordError) Error() string { return ErrWeakPassword.Error() }

func (e *WeakPasswordError) Unwrap() error { return ErrWeakPassword }

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeOTPInvalid         = "OTP_INVALID"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodePasswordReused     = "PASSWORD_REUSED"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeAuthTokenMissing   = "AUTH_TOKEN_MISSING"
	CodeAuthTokenInvalid   = "AUTH_TOKEN_INVALID"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)
