package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinytulsi/mart-backend/internal/audit"
	"github.com/tinytulsi/mart-backend/internal/metrics"
	"github.com/tinytulsi/mart-backend/internal/otp"
	"github.com/tinytulsi/mart-backend/internal/repository"
)

// ClientInfo carries the request attribution recorded with sessions and
// audit entries
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a successful credential check. Either Token
// is set (trusted device, session created) or RequiresOTP is true and the
// caller must complete the OTP step before a session exists.
type LoginResult struct {
	User        *repository.User
	Token       string
	RequiresOTP bool
}

// Login authenticates an email/password pair and applies the device-trust
// policy.
//
// Locked accounts are rejected before the password is ever compared, and a
// rejected-while-locked attempt does not consume another attempt. A wrong
// password bumps the failure counter atomically; the account locks when the
// counter reaches the threshold. A correct password clears the counter.
// Only then does the device check run: a trusted device gets a session
// immediately, an unknown one gets a login OTP instead.
func (s *Service) Login(ctx context.Context, email, password, deviceID string, client ClientInfo) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same answer as a wrong password so the response does not
			// reveal whether the account exists
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user.IsLocked {
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, ErrAccountLocked
	}

	if s.policy.VerifyPassword(password, user.PasswordHash) != nil {
		attempts, locked, incErr := s.users.IncrementLoginAttempts(ctx, user.ID)
		if incErr != nil {
			return nil, fmt.Errorf("increment login attempts: %w", incErr)
		}
		s.logger.Warn("login failed",
			slog.String("email", email),
			slog.Int("attempts", attempts),
			slog.Bool("locked", locked),
		)
		metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		if locked {
			metrics.AccountLockoutsTotal.Inc()
		}
		return nil, ErrInvalidCredentials
	}

	if user.LoginAttempts > 0 {
		if err := s.users.ResetLoginAttempts(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("reset login attempts: %w", err)
		}
	}

	if !user.IsDeviceTrusted(deviceID) {
		if err := s.otps.Issue(ctx, otp.PurposeLogin, user.Email); err != nil {
			return nil, err
		}
		metrics.LoginAttemptsTotal.WithLabelValues("otp_required").Inc()
		return &LoginResult{User: user, RequiresOTP: true}, nil
	}

	token, _, err := s.sessions.Issue(ctx, user, client.IP, client.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.audit.Record(ctx, &user.ID, audit.ActionLogin, "User logged in", client.IP, client.UserAgent)
	s.logger.Info("login succeeded", slog.String("email", email))
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	return &LoginResult{User: user, Token: token}, nil
}

// SendLoginOTP re-issues the login OTP for an account mid step-up, replacing
// any code issued earlier
func (s *Service) SendLoginOTP(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	return s.otps.Issue(ctx, otp.PurposeLogin, user.Email)
}

// VerifyLoginOTP completes the step-up: it consumes the login code, marks
// the account verified, trusts the presented device, and only then creates
// the session
func (s *Service) VerifyLoginOTP(ctx context.Context, email, code, deviceID string, client ClientInfo) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Indistinguishable from a wrong code
			return nil, ErrOTPInvalid
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := s.otps.Verify(ctx, otp.PurposeLogin, user.Email, code); err != nil {
		return nil, err
	}

	if !user.IsVerified {
		if err := s.users.MarkVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("mark verified: %w", err)
		}
		user.IsVerified = true
	}

	if err := s.users.AddTrustedDevice(ctx, user.ID, deviceID); err != nil {
		return nil, fmt.Errorf("trust device: %w", err)
	}

	token, _, err := s.sessions.Issue(ctx, user, client.IP, client.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.audit.Record(ctx, &user.ID, audit.ActionLogin, "User logged in via OTP", client.IP, client.UserAgent)
	s.logger.Info("otp login succeeded", slog.String("email", email))
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	return &LoginResult{User: user, Token: token}, nil
}

// Logout revokes the session behind the presented token
func (s *Service) Logout(ctx context.Context, user *repository.User, token string, client ClientInfo) error {
	if err := s.sessions.Revoke(ctx, user.ID, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.audit.Record(ctx, &user.ID, audit.ActionLogout, "User logged out", client.IP, client.UserAgent)
	metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	return nil
}

// LogoutSession revokes one session named by the identifier from ListSessions
func (s *Service) LogoutSession(ctx context.Context, user *repository.User, storedToken string, client ClientInfo) error {
	if err := s.sessions.RevokeStored(ctx, user.ID, storedToken); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.audit.Record(ctx, &user.ID, audit.ActionLogoutSession, "User revoked a session", client.IP, client.UserAgent)
	return nil
}

// LogoutAll revokes every session for the user, the caller's included
func (s *Service) LogoutAll(ctx context.Context, user *repository.User, client ClientInfo) error {
	if err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.audit.Record(ctx, &user.ID, audit.ActionLogoutAll, "User logged out everywhere", client.IP, client.UserAgent)
	metrics.SessionsRevokedTotal.WithLabelValues("logout_all").Inc()
	return nil
}

// ListSessions returns the caller's sessions, flagging the one that made
// this request
func (s *Service) ListSessions(ctx context.Context, user *repository.User, currentToken string) ([]SessionInfo, error) {
	return s.sessions.List(ctx, user.ID, currentToken)
}
