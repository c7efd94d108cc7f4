package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "user_id"
	// EmailKey is the context key for user email
	EmailKey ContextKey = "email"
	// RoleKey is the context key for the user role
	RoleKey ContextKey = "role"
	// SessionTokenKey is the context key for the raw session token of
	// the current request, needed to flag the current session in listings
	SessionTokenKey ContextKey = "session_token"
)

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

// ExtractRole extracts the user role from the request context
func ExtractRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// ExtractSessionToken extracts the current session token from the request context
func ExtractSessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(SessionTokenKey).(string)
	return token, ok
}
