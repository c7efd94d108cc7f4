// Package audit records security-relevant actions into an append-only log
// and exposes the admin reporting surface over it.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tinytulsi/mart-backend/internal/logger"
	"github.com/tinytulsi/mart-backend/internal/repository"
)

// Action identifies the kind of security-relevant event
type Action string

// Audit action vocabulary
const (
	ActionRegister        Action = "register"
	ActionLogin           Action = "login"
	ActionLogout          Action = "logout"
	ActionLogoutSession   Action = "logout-session"
	ActionLogoutAll       Action = "logout-all"
	ActionForgotPassword  Action = "forgot-password"
	ActionResetPassword   Action = "reset-password"
	ActionUpdatePassword  Action = "update-password"
	ActionUpdateProfile   Action = "update-profile"
	ActionAdminUpdateRole Action = "admin-update-role"
	ActionAdminDeleteUser Action = "admin-delete-user"
)

// Recorder appends audit entries. A failed write is logged and swallowed:
// auditing must never fail the operation it describes.
type Recorder struct {
	repo   repository.AuditLogRepository
	logger *slog.Logger
}

// NewRecorder creates a Recorder
func NewRecorder(repo repository.AuditLogRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

// Record appends one entry. userID is nil for pre-auth events.
func (r *Recorder) Record(ctx context.Context, userID *uuid.UUID, action Action, details, ip, userAgent string) {
	entry := &repository.AuditLog{
		UserID:    userID,
		Action:    string(action),
		Details:   details,
		IP:        ip,
		UserAgent: userAgent,
	}

	if err := r.repo.Create(ctx, entry); err != nil {
		attrs := []any{
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		}
		if userID != nil {
			attrs = append(attrs, slog.String("user_id", userID.String()))
		}
		logger.WithRequestID(ctx, r.logger).Warn("audit log write failed", attrs...)
	}
}
