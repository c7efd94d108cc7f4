package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/tinytulsi/mart-backend/internal/config"
)

// SMTPNotifier sends mail through a plain SMTP relay
type SMTPNotifier struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// NewSMTPNotifier creates an SMTP-backed Notifier
func NewSMTPNotifier(cfg config.SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{cfg: cfg, logger: logger}
}

// Send delivers one message. The context is honored only up to the SMTP
// dial; smtp.SendMail has no cancellation hook.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n%s",
		n.cfg.From, to, subject, body)

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{to}, []byte(msg)); err != nil {
		n.logger.Error("email send failed",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Info("email sent",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}
