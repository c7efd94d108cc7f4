package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User repository errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// UserRepository defines the interface for user data access.
//
// Per-user counters and arrays (login attempts, trusted devices) are mutated
// with single-statement atomic SQL so that concurrent requests for the same
// user cannot lose updates.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	// IncrementLoginAttempts atomically bumps the failure counter and locks
	// the account when the threshold is reached. Returns the new counter
	// value and the resulting lock state.
	IncrementLoginAttempts(ctx context.Context, id uuid.UUID) (attempts int, locked bool, err error)
	// ResetLoginAttempts zeroes the counter and clears the lock
	ResetLoginAttempts(ctx context.Context, id uuid.UUID) error

	// AddTrustedDevice appends deviceID if absent (atomic array append)
	AddTrustedDevice(ctx context.Context, id uuid.UUID, deviceID string) error

	// UpdatePassword writes the new hash and rotated history and clears
	// lock state in a single statement
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, history []string) error

	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error)

	MarkVerified(ctx context.Context, id uuid.UUID) error
	UpdateProfile(ctx context.Context, id uuid.UUID, name, email string) (*User, error)
	SetAvatar(ctx context.Context, id uuid.UUID, key, url string) error

	List(ctx context.Context) ([]*User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// userRepository implements UserRepository using PostgreSQL
type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, password_history, role,
	avatar_key, avatar_url, login_attempts, is_locked, is_verified,
	trusted_devices, reset_token_hash, reset_token_expires_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.PasswordHistory,
		&user.Role,
		&user.AvatarKey,
		&user.AvatarURL,
		&user.LoginAttempts,
		&user.IsLocked,
		&user.IsVerified,
		&user.TrustedDevices,
		&user.ResetTokenHash,
		&user.ResetTokenExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (name, email, password_hash, password_history, role,
			avatar_key, avatar_url, trusted_devices, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, login_attempts, is_locked, created_at, updated_at
	`

	if user.Role == "" {
		user.Role = "user"
	}
	if user.PasswordHistory == nil {
		user.PasswordHistory = []string{}
	}
	if user.TrustedDevices == nil {
		user.TrustedDevices = []string{}
	}

	err := r.pool.QueryRow(ctx, query,
		user.Name,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.PasswordHistory,
		user.Role,
		user.AvatarKey,
		user.AvatarURL,
		user.TrustedDevices,
		user.IsVerified,
	).Scan(&user.ID, &user.LoginAttempts, &user.IsLocked, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "idx_users_email") {
			return ErrEmailAlreadyExists
		}
		return err
	}

	user.Email = strings.ToLower(user.Email)
	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail retrieves a user by their email address (case-insensitive)
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// EmailExists checks whether an account with this email exists
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email,
	).Scan(&exists)
	return exists, err
}

// IncrementLoginAttempts bumps the counter and locks at the threshold in one statement
func (r *userRepository) IncrementLoginAttempts(ctx context.Context, id uuid.UUID) (int, bool, error) {
	query := `
		UPDATE users
		SET login_attempts = login_attempts + 1,
		    is_locked = (login_attempts + 1 >= $2),
		    updated_at = now()
		WHERE id = $1
		RETURNING login_attempts, is_locked
	`

	var attempts int
	var locked bool
	err := r.pool.QueryRow(ctx, query, id, MaxLoginAttempts).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, ErrUserNotFound
		}
		return 0, false, err
	}
	return attempts, locked, nil
}

// ResetLoginAttempts zeroes the counter and unlocks the account
func (r *userRepository) ResetLoginAttempts(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET login_attempts = 0, is_locked = FALSE, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddTrustedDevice appends deviceID to trusted_devices if not already present
func (r *userRepository) AddTrustedDevice(ctx context.Context, id uuid.UUID, deviceID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET trusted_devices = array_append(trusted_devices, $2),
		    updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(trusted_devices))
	`, id, deviceID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		// Already trusted or user missing; disambiguate only when it matters
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
	}
	return nil
}

// UpdatePassword writes the new hash and rotated history; a password change
// always clears lockout state and any outstanding reset token
func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, history []string) error {
	if history == nil {
		history = []string{}
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
		    password_history = $3,
		    login_attempts = 0,
		    is_locked = FALSE,
		    reset_token_hash = NULL,
		    reset_token_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id, passwordHash, history)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetResetToken stores the hashed reset token with its expiry
func (r *userRepository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`, id, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearResetToken removes any outstanding reset token.
// Used both after a successful reset and to roll back when the email send fails.
func (r *userRepository) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// GetByResetTokenHash finds the user holding an unexpired reset token
func (r *userRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE reset_token_hash = $1 AND reset_token_expires_at > now()`
	return scanUser(r.pool.QueryRow(ctx, query, tokenHash))
}

// MarkVerified sets the verified flag after a successful OTP check
func (r *userRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile updates name and email, returning the updated record
func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name, email string) (*User, error) {
	query := `
		UPDATE users
		SET name = $2, email = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, name, strings.ToLower(email)))
	if err != nil {
		if strings.Contains(err.Error(), "idx_users_email") {
			return nil, ErrEmailAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

// SetAvatar records the stored avatar object key and public URL
func (r *userRepository) SetAvatar(ctx context.Context, id uuid.UUID, key, url string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET avatar_key = $2, avatar_url = $3, updated_at = now() WHERE id = $1
	`, id, key, url)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns every user, newest first (admin surface)
func (r *userRepository) List(ctx context.Context) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateRole changes a user's role (admin surface)
func (r *userRepository) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	query := `
		UPDATE users SET role = $2, updated_at = now() WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, id, role))
}

// Delete removes a user; sessions and cart rows cascade at the schema level
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
