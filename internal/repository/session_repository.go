package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository defines the interface for session data access.
//
// Each session is its own row, so concurrent logins for one user append
// independently and a logout racing a touch cannot drop a sibling session.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	// Touch updates last_active_at; returns ErrSessionNotFound if the row is gone
	Touch(ctx context.Context, tokenHash string, at time.Time) error
	// DeleteByTokenHash removes one session; deleting an absent row is not an error
	DeleteByTokenHash(ctx context.Context, userID uuid.UUID, tokenHash string) error
	DeleteAllByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

// Create inserts a new session row
func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (user_id, token_hash, ip, device_label, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	return r.pool.QueryRow(ctx, query,
		session.UserID,
		session.TokenHash,
		session.IP,
		session.DeviceLabel,
		session.LastActiveAt,
	).Scan(&session.ID, &session.CreatedAt)
}

// GetByTokenHash retrieves a session by its token hash
func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	query := `
		SELECT id, user_id, token_hash, ip, device_label, created_at, last_active_at
		FROM sessions
		WHERE token_hash = $1
	`

	session := &Session{}
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.IP,
		&session.DeviceLabel,
		&session.CreatedAt,
		&session.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListByUserID returns all sessions for a user, oldest first
func (r *sessionRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	query := `
		SELECT id, user_id, token_hash, ip, device_label, created_at, last_active_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.TokenHash,
			&session.IP,
			&session.DeviceLabel,
			&session.CreatedAt,
			&session.LastActiveAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Touch refreshes the session's last-active timestamp
func (r *sessionRepository) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_active_at = $2 WHERE token_hash = $1`, tokenHash, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteByTokenHash removes one session by exact hash match. Idempotent.
func (r *sessionRepository) DeleteByTokenHash(ctx context.Context, userID uuid.UUID, tokenHash string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND token_hash = $2`, userID, tokenHash)
	return err
}

// DeleteAllByUserID removes every session for a user, returning the count
func (r *sessionRepository) DeleteAllByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
