package repository

import (
	"time"

	"github.com/google/uuid"
)

// PasswordHistoryLimit caps the number of retained previous password hashes
const PasswordHistoryLimit = 5

// MaxLoginAttempts is the failed-login threshold that locks an account
const MaxLoginAttempts = 5

// User represents a user account and its security state
type User struct {
	ID                  uuid.UUID  `db:"id"`
	Name                string     `db:"name"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	PasswordHistory     []string   `db:"password_history"`
	Role                string     `db:"role"`
	AvatarKey           *string    `db:"avatar_key"`
	AvatarURL           *string    `db:"avatar_url"`
	LoginAttempts       int        `db:"login_attempts"`
	IsLocked            bool       `db:"is_locked"`
	IsVerified          bool       `db:"is_verified"`
	TrustedDevices      []string   `db:"trusted_devices"`
	ResetTokenHash      *string    `db:"reset_token_hash"`
	ResetTokenExpiresAt *time.Time `db:"reset_token_expires_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// IsDeviceTrusted reports whether deviceID completed an OTP-verified login before
func (u *User) IsDeviceTrusted(deviceID string) bool {
	for _, d := range u.TrustedDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// Session represents one authenticated device binding for a user
type Session struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	TokenHash    string    `db:"token_hash"`
	IP           string    `db:"ip"`
	DeviceLabel  string    `db:"device_label"`
	CreatedAt    time.Time `db:"created_at"`
	LastActiveAt time.Time `db:"last_active_at"`
}

// AuditLog is an immutable record of a security-relevant action
type AuditLog struct {
	ID        uuid.UUID  `db:"id"`
	UserID    *uuid.UUID `db:"user_id"`
	Action    string     `db:"action"`
	Details   string     `db:"details"`
	IP        string     `db:"ip"`
	UserAgent string     `db:"user_agent"`
	Timestamp time.Time  `db:"timestamp"`
}

// AuditLogWithUser joins the acting user's public identity onto a log entry.
// User fields are nil for pre-auth events or deleted users.
type AuditLogWithUser struct {
	AuditLog
	UserName  *string `db:"user_name"`
	UserEmail *string `db:"user_email"`
}

// Product represents a catalog item
type Product struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	PriceCents  int64     `db:"price_cents"`
	Stock       int       `db:"stock"`
	ImageKey    *string   `db:"image_key"`
	ImageURL    *string   `db:"image_url"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// CartItem represents one product line in a user's cart
type CartItem struct {
	UserID    uuid.UUID `db:"user_id"`
	ProductID uuid.UUID `db:"product_id"`
	Quantity  int       `db:"quantity"`
	AddedAt   time.Time `db:"added_at"`
}

// CartLine is a cart item joined with product data for responses
type CartLine struct {
	CartItem
	ProductName string `db:"product_name"`
	PriceCents  int64  `db:"price_cents"`
	Stock       int    `db:"stock"`
}
