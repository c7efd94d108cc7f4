package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tinytulsi/mart-backend/internal/repository"
)

// SessionInfo is one session in a user-facing listing
type SessionInfo struct {
	Token            string    `json:"token"`
	IP               string    `json:"ip"`
	Device           string    `json:"device"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActive       time.Time `json:"lastActive"`
	IsCurrentSession bool      `json:"isCurrentSession"`
}

// SessionManager issues and tracks session tokens bound to a device and IP.
// Sessions live as individual rows, so append and remove are atomic at the
// storage boundary.
type SessionManager struct {
	sessions    repository.SessionRepository
	tokens      *TokenService
	idleTimeout time.Duration
}

// NewSessionManager creates a SessionManager
func NewSessionManager(sessions repository.SessionRepository, tokens *TokenService, idleTimeout time.Duration) *SessionManager {
	if idleTimeout <= 0 {
		idleTimeout = 15 * time.Minute
	}
	return &SessionManager{
		sessions:    sessions,
		tokens:      tokens,
		idleTimeout: idleTimeout,
	}
}

// IdleTimeout returns the configured inactivity window
func (m *SessionManager) IdleTimeout() time.Duration {
	return m.idleTimeout
}

// Issue signs a fresh token and appends a session row for it. The jti inside
// the token makes the token, and therefore its hash, unique at issuance.
func (m *SessionManager) Issue(ctx context.Context, user *repository.User, ip, deviceLabel string) (string, *repository.Session, error) {
	token, err := m.tokens.Generate(user.ID.String(), user.Email, user.Role)
	if err != nil {
		return "", nil, err
	}

	session := &repository.Session{
		UserID:       user.ID,
		TokenHash:    HashToken(token),
		IP:           ip,
		DeviceLabel:  deviceLabel,
		LastActiveAt: time.Now().UTC(),
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return "", nil, err
	}
	return token, session, nil
}

// List returns the user's sessions annotated with which one made this request
func (m *SessionManager) List(ctx context.Context, userID uuid.UUID, currentToken string) ([]SessionInfo, error) {
	sessions, err := m.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	currentHash := HashToken(currentToken)
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			Token:            s.TokenHash,
			IP:               s.IP,
			Device:           s.DeviceLabel,
			CreatedAt:        s.CreatedAt,
			LastActive:       s.LastActiveAt,
			IsCurrentSession: s.TokenHash == currentHash,
		})
	}
	return infos, nil
}

// Revoke removes the session belonging to a raw signed token. Revoking an
// absent session is a no-op, which makes retries and double-logouts safe.
func (m *SessionManager) Revoke(ctx context.Context, userID uuid.UUID, token string) error {
	return m.sessions.DeleteByTokenHash(ctx, userID, HashToken(token))
}

// RevokeStored removes one session by the identifier exposed in List
// (the stored token hash). Idempotent like Revoke.
func (m *SessionManager) RevokeStored(ctx context.Context, userID uuid.UUID, storedToken string) error {
	return m.sessions.DeleteByTokenHash(ctx, userID, storedToken)
}

// RevokeAll removes every session for the user
func (m *SessionManager) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	_, err := m.sessions.DeleteAllByUserID(ctx, userID)
	return err
}

// TouchAndValidate finds the session for a raw token, expires it if idle for
// longer than the timeout, and refreshes its last-active timestamp otherwise.
// Runs on every authenticated request.
func (m *SessionManager) TouchAndValidate(ctx context.Context, token string, now time.Time) (*repository.Session, error) {
	tokenHash := HashToken(token)

	session, err := m.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if now.Sub(session.LastActiveAt) > m.idleTimeout {
		if err := m.sessions.DeleteByTokenHash(ctx, session.UserID, tokenHash); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	if err := m.sessions.Touch(ctx, tokenHash, now); err != nil {
		// Deleted between the read and the touch; treat as revoked
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	session.LastActiveAt = now
	return session, nil
}
