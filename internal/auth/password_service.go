package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tinytulsi/mart-backend/internal/audit"
	"github.com/tinytulsi/mart-backend/internal/otp"
	"github.com/tinytulsi/mart-backend/internal/repository"
)

// ResetTokenTTL is how long a password reset token stays valid
const ResetTokenTTL = 15 * time.Minute

// generateResetToken returns a raw hex token and its stored SHA-256 hash.
// Only the hash touches the database; the raw token goes to the user.
func generateResetToken() (raw, hash string, err error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(raw))
	return raw, hex.EncodeToString(sum[:]), nil
}

// ForgotPassword issues a reset token and emails it. If the mail cannot be
// delivered the token is cleared again so no orphaned live token remains.
func (s *Service) ForgotPassword(ctx context.Context, email string, client ClientInfo) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	raw, hash, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expiresAt := time.Now().UTC().Add(ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	subject := "TinyTulsiMart - Password Reset"
	body := fmt.Sprintf(
		"You requested a password reset.\n\nYour reset token is: %s\nIt is valid for 15 minutes.\n\nIf you did not request this, you can ignore this email.",
		raw,
	)
	if err := s.otps.notifier.Send(ctx, user.Email, subject, body); err != nil {
		if clrErr := s.users.ClearResetToken(ctx, user.ID); clrErr != nil {
			s.logger.Warn("reset token rollback failed",
				slog.String("email", email),
				slog.String("error", clrErr.Error()),
			)
		}
		return fmt.Errorf("send reset email: %w", err)
	}

	s.audit.Record(ctx, &user.ID, audit.ActionForgotPassword, "Password reset requested", client.IP, client.UserAgent)
	return nil
}

// changePassword runs the shared tail of every password change: confirm
// match, strength, reuse over current plus history, rotate, persist. The
// update also clears lock state and any outstanding reset token.
func (s *Service) changePassword(ctx context.Context, user *repository.User, newPassword, passwordConfirm string) error {
	if newPassword != passwordConfirm {
		return ErrPasswordMismatch
	}
	if violations := s.policy.Validate(newPassword); len(violations) > 0 {
		return &WeakPasswordError{Violations: violations}
	}
	if s.policy.CheckReuse(newPassword, user.PasswordHistory, user.PasswordHash) {
		return ErrPasswordReused
	}

	hash, err := s.policy.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	history := s.policy.Rotate(user.PasswordHistory, user.PasswordHash)
	if err := s.users.UpdatePassword(ctx, user.ID, hash, history); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ResetPassword completes the forgot flow: it resolves the raw token via its
// hash, applies the password change, and issues a fresh session so the user
// lands logged in
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword, passwordConfirm string, client ClientInfo) (*repository.User, string, error) {
	sum := sha256.Sum256([]byte(rawToken))
	user, err := s.users.GetByResetTokenHash(ctx, hex.EncodeToString(sum[:]))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", ErrResetTokenInvalid
		}
		return nil, "", fmt.Errorf("resolve reset token: %w", err)
	}

	if err := s.changePassword(ctx, user, newPassword, passwordConfirm); err != nil {
		return nil, "", err
	}

	token, _, err := s.sessions.Issue(ctx, user, client.IP, client.UserAgent)
	if err != nil {
		return nil, "", fmt.Errorf("issue session: %w", err)
	}

	s.audit.Record(ctx, &user.ID, audit.ActionResetPassword, "Password reset via token", client.IP, client.UserAgent)
	s.logger.Info("password reset", slog.String("email", user.Email))

	return user, token, nil
}

// UpdatePassword changes the password of a logged-in user after checking the
// old one, and rotates the caller's session token
func (s *Service) UpdatePassword(ctx context.Context, user *repository.User, oldPassword, newPassword, passwordConfirm string, client ClientInfo) (string, error) {
	if s.policy.VerifyPassword(oldPassword, user.PasswordHash) != nil {
		return "", ErrInvalidCredentials
	}

	if err := s.changePassword(ctx, user, newPassword, passwordConfirm); err != nil {
		return "", err
	}

	token, _, err := s.sessions.Issue(ctx, user, client.IP, client.UserAgent)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}

	s.audit.Record(ctx, &user.ID, audit.ActionUpdatePassword, "Password updated", client.IP, client.UserAgent)
	return token, nil
}

// SendPasswordUpdateOTP issues the code that gates the OTP-verified password
// change for the logged-in user
func (s *Service) SendPasswordUpdateOTP(ctx context.Context, user *repository.User) error {
	return s.otps.Issue(ctx, otp.PurposePasswordUpdate, user.Email)
}

// VerifyPasswordUpdateOTP consumes the password-change code and then runs the
// same update path as UpdatePassword
func (s *Service) VerifyPasswordUpdateOTP(ctx context.Context, user *repository.User, code, oldPassword, newPassword, passwordConfirm string, client ClientInfo) (string, error) {
	if err := s.otps.Verify(ctx, otp.PurposePasswordUpdate, user.Email, code); err != nil {
		return "", err
	}
	return s.UpdatePassword(ctx, user, oldPassword, newPassword, passwordConfirm, client)
}
