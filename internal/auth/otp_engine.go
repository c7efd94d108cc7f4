package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/tinytulsi/mart-backend/internal/metrics"
	"github.com/tinytulsi/mart-backend/internal/notifier"
	"github.com/tinytulsi/mart-backend/internal/otp"
)

// OTPDigits is the length of every one-time code
const OTPDigits = 6

// OTPEngine issues and verifies one-time codes. It owns only the code
// lifecycle; callers handle everything that follows a successful verify.
type OTPEngine struct {
	store    *otp.Store
	notifier notifier.Notifier
	logger   *slog.Logger
}

// NewOTPEngine creates an OTPEngine
func NewOTPEngine(store *otp.Store, n notifier.Notifier, logger *slog.Logger) *OTPEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &OTPEngine{store: store, notifier: n, logger: logger}
}

// GenerateCode returns a uniformly random numeric code with leading zeros
// preserved, e.g. "004213"
func GenerateCode() (string, error) {
	code := make([]byte, OTPDigits)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// subject lines per purpose
var otpSubjects = map[otp.Purpose]string{
	otp.PurposeRegister:       "TinyTulsiMart - OTP for Verification",
	otp.PurposeLogin:          "TinyTulsiMart - Login OTP Verification",
	otp.PurposePasswordUpdate: "TinyTulsiMart - Password Change OTP",
}

var otpBodies = map[otp.Purpose]string{
	otp.PurposeRegister:       "Your OTP for registration is: %s\nIt is valid for 5 minutes.",
	otp.PurposeLogin:          "Your OTP for login is: %s\nIt is valid for 5 minutes.",
	otp.PurposePasswordUpdate: "Your OTP for changing your password is: %s\nIt is valid for 5 minutes.",
}

// Issue generates a fresh code for the identity+purpose pair, replacing any
// previous one, and emails it. If the send fails the stored code is rolled
// back so no live code exists without a delivered notification.
func (e *OTPEngine) Issue(ctx context.Context, purpose otp.Purpose, email string) error {
	code, err := GenerateCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	if err := e.store.Put(ctx, purpose, email, code); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	subject := otpSubjects[purpose]
	body := fmt.Sprintf(otpBodies[purpose], code)

	if err := e.notifier.Send(ctx, email, subject, body); err != nil {
		if delErr := e.store.Delete(ctx, purpose, email); delErr != nil {
			e.logger.Warn("otp rollback failed",
				slog.String("purpose", string(purpose)),
				slog.String("error", delErr.Error()),
			)
		}
		return fmt.Errorf("send otp: %w", err)
	}

	e.logger.Info("otp issued",
		slog.String("purpose", string(purpose)),
		slog.String("email", email),
	)
	metrics.OTPIssuedTotal.WithLabelValues(string(purpose)).Inc()
	return nil
}

// Verify consumes the code for the pair. Missing, expired, and mismatched
// codes all map to ErrOTPInvalid; callers get no hint which one it was.
func (e *OTPEngine) Verify(ctx context.Context, purpose otp.Purpose, email, code string) error {
	err := e.store.Consume(ctx, purpose, email, code)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) || errors.Is(err, otp.ErrMismatch) {
			return ErrOTPInvalid
		}
		return err
	}
	return nil
}
