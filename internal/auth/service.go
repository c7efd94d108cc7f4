// Package auth implements the account security core: password lifecycle,
// OTP-backed login with device trust, session tracking, and the lockout
// policy.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tinytulsi/mart-backend/internal/audit"
	"github.com/tinytulsi/mart-backend/internal/config"
	"github.com/tinytulsi/mart-backend/internal/otp"
	"github.com/tinytulsi/mart-backend/internal/repository"
	"github.com/tinytulsi/mart-backend/internal/sanitizer"
	"github.com/tinytulsi/mart-backend/internal/storage"
)

// Service is the account security core. Handlers call into it; it owns the
// ordering rules between the repositories, the OTP engine, and the session
// manager.
type Service struct {
	users     repository.UserRepository
	policy    *PasswordPolicy
	sessions  *SessionManager
	otps      *OTPEngine
	audit     *audit.Recorder
	images    storage.ImageStore
	sanitizer *sanitizer.Sanitizer
	logger    *slog.Logger

	requireRegistrationOTP bool
	maxAvatarBytes         int64
}

// NewService creates the Service
func NewService(
	users repository.UserRepository,
	policy *PasswordPolicy,
	sessions *SessionManager,
	otps *OTPEngine,
	recorder *audit.Recorder,
	images storage.ImageStore,
	san *sanitizer.Sanitizer,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:                  users,
		policy:                 policy,
		sessions:               sessions,
		otps:                   otps,
		audit:                  recorder,
		images:                 images,
		sanitizer:              san,
		logger:                 logger,
		requireRegistrationOTP: cfg.OTP.RequireRegistrationOTP,
		maxAvatarBytes:         cfg.Storage.MaxAvatarBytes,
	}
}

// RegisterInput is the material for a new account
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	// Avatar is an optional base64 data-URL image
	Avatar string
	// OTP is required when registration OTP verification is enabled
	OTP string
}

// SendRegisterOTP issues a registration code to an address that does not
// belong to an account yet
func (s *Service) SendRegisterOTP(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if exists {
		return ErrEmailExists
	}

	return s.otps.Issue(ctx, otp.PurposeRegister, email)
}

// Register creates an account. The password must satisfy the strength policy
// and, when registration OTP verification is enabled, the code issued by
// SendRegisterOTP must accompany the request.
func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo) (*repository.User, error) {
	name := s.sanitizer.PlainText(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if violations := s.policy.Validate(in.Password); len(violations) > 0 {
		return nil, &WeakPasswordError{Violations: violations}
	}

	if s.requireRegistrationOTP {
		if err := s.otps.Verify(ctx, otp.PurposeRegister, email, in.OTP); err != nil {
			return nil, err
		}
	}

	hash, err := s.policy.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &repository.User{
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		PasswordHistory: []string{},
		Role:            "user",
		IsVerified:      s.requireRegistrationOTP,
		TrustedDevices:  []string{},
	}

	if in.Avatar != "" {
		data, contentType, decErr := storage.DecodeAvatarPayload(in.Avatar, s.maxAvatarBytes)
		if decErr != nil {
			return nil, ErrInvalidAvatar
		}
		key, url, upErr := s.images.UploadAvatar(ctx, data, contentType)
		if upErr != nil {
			return nil, fmt.Errorf("upload avatar: %w", upErr)
		}
		user.AvatarKey = &key
		user.AvatarURL = &url
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit.Record(ctx, &user.ID, audit.ActionRegister, "New account registered", client.IP, client.UserAgent)
	s.logger.Info("user registered", slog.String("email", email))

	return user, nil
}

// IssueSession creates a session for a user outside the login flow, e.g.
// right after registration
func (s *Service) IssueSession(ctx context.Context, user *repository.User, client ClientInfo) (string, error) {
	token, _, err := s.sessions.Issue(ctx, user, client.IP, client.UserAgent)
	return token, err
}

// GetUser loads one account by id
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfileInput carries profile fields; empty fields keep their value
type UpdateProfileInput struct {
	Name   string
	Email  string
	Avatar string
}

// UpdateProfile updates name, email, and optionally the avatar image. A new
// avatar replaces the stored object; the old one is removed after the
// database row points at the new one.
func (s *Service) UpdateProfile(ctx context.Context, user *repository.User, in UpdateProfileInput, client ClientInfo) (*repository.User, error) {
	name := user.Name
	if in.Name != "" {
		name = s.sanitizer.PlainText(in.Name)
	}
	email := user.Email
	if in.Email != "" {
		email = strings.ToLower(strings.TrimSpace(in.Email))
	}

	updated, err := s.users.UpdateProfile(ctx, user.ID, name, email)
	if err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if in.Avatar != "" {
		data, contentType, decErr := storage.DecodeAvatarPayload(in.Avatar, s.maxAvatarBytes)
		if decErr != nil {
			return nil, ErrInvalidAvatar
		}
		key, url, upErr := s.images.UploadAvatar(ctx, data, contentType)
		if upErr != nil {
			return nil, fmt.Errorf("upload avatar: %w", upErr)
		}
		if err := s.users.SetAvatar(ctx, user.ID, key, url); err != nil {
			return nil, fmt.Errorf("set avatar: %w", err)
		}
		if user.AvatarKey != nil {
			if delErr := s.images.Delete(ctx, *user.AvatarKey); delErr != nil {
				s.logger.Warn("old avatar cleanup failed",
					slog.String("key", *user.AvatarKey),
					slog.String("error", delErr.Error()),
				)
			}
		}
		updated.AvatarKey = &key
		updated.AvatarURL = &url
	}

	s.audit.Record(ctx, &user.ID, audit.ActionUpdateProfile, "Profile updated", client.IP, client.UserAgent)
	return updated, nil
}

// ListUsers returns every account, for the admin surface
func (s *Service) ListUsers(ctx context.Context) ([]*repository.User, error) {
	return s.users.List(ctx)
}

// UpdateUserRole changes an account's role
func (s *Service) UpdateUserRole(ctx context.Context, adminID, userID uuid.UUID, role string, client ClientInfo) (*repository.User, error) {
	updated, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.audit.Record(ctx, &adminID, audit.ActionAdminUpdateRole,
		fmt.Sprintf("Changed role of %s to %s", updated.Email, role),
		client.IP, client.UserAgent)
	return updated, nil
}

// DeleteUser removes an account along with its sessions and cart rows
func (s *Service) DeleteUser(ctx context.Context, adminID, userID uuid.UUID, client ClientInfo) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if user.AvatarKey != nil {
		if delErr := s.images.Delete(ctx, *user.AvatarKey); delErr != nil {
			s.logger.Warn("avatar cleanup failed",
				slog.String("key", *user.AvatarKey),
				slog.String("error", delErr.Error()),
			)
		}
	}

	s.audit.Record(ctx, &adminID, audit.ActionAdminDeleteUser,
		fmt.Sprintf("Deleted account %s", user.Email),
		client.IP, client.UserAgent)
	return nil
}
