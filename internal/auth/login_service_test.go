package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/tinytulsi/mart-backend/internal/repository"
)

var testClient = ClientInfo{IP: "203.0.113.10", UserAgent: "go-test"}

func TestLoginTrustedDeviceFastPath(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1")

	result, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.RequiresOTP {
		t.Error("trusted device must not require OTP")
	}
	if result.Token == "" {
		t.Error("expected a session token")
	}
	if env.sessions.count() != 1 {
		t.Errorf("sessions = %d, want 1", env.sessions.count())
	}
	if got := env.auditLog.actions(); len(got) != 1 || got[0] != "login" {
		t.Errorf("audit actions = %v, want [login]", got)
	}
	if env.mail.count() != 0 {
		t.Errorf("no OTP email expected, got %d", env.mail.count())
	}
}

func TestLoginUnknownDeviceRequiresOTP(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1")

	result, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-2", testClient)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !result.RequiresOTP {
		t.Fatal("unknown device must require OTP")
	}
	if result.Token != "" {
		t.Error("no session token before OTP verification")
	}
	if env.sessions.count() != 0 {
		t.Errorf("sessions = %d, want 0 before OTP verification", env.sessions.count())
	}
	if len(env.auditLog.actions()) != 0 {
		t.Errorf("no audit entry before OTP verification, got %v", env.auditLog.actions())
	}
	if env.mail.count() != 1 {
		t.Fatalf("OTP email count = %d, want 1", env.mail.count())
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1")

	_, err := env.svc.Login(context.Background(), "alice@example.com", "wrong-password", "dev-1", testClient)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}

	user, _ := env.users.GetByEmail(context.Background(), "alice@example.com")
	if user.LoginAttempts != 1 {
		t.Errorf("login attempts = %d, want 1", user.LoginAttempts)
	}
	if user.IsLocked {
		t.Error("account must not lock on the first failure")
	}
}

func TestLoginUnknownEmailIsIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Login(context.Background(), "nobody@example.com", "whatever", "dev-1", testClient)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1")

	for i := 0; i < repository.MaxLoginAttempts; i++ {
		_, err := env.svc.Login(context.Background(), "alice@example.com", "wrong-password", "dev-1", testClient)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: error = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	user, _ := env.users.GetByEmail(context.Background(), "alice@example.com")
	if !user.IsLocked {
		t.Fatal("account must be locked after the fifth failure")
	}

	// Correct password is rejected while locked, without consuming an attempt
	_, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login error = %v, want ErrAccountLocked", err)
	}
	user, _ = env.users.GetByEmail(context.Background(), "alice@example.com")
	if user.LoginAttempts != repository.MaxLoginAttempts {
		t.Errorf("attempts = %d, want %d (locked attempts consume nothing)", user.LoginAttempts, repository.MaxLoginAttempts)
	}
}

func TestLoginSuccessResetsAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1")

	for i := 0; i < 3; i++ {
		env.svc.Login(context.Background(), "alice@example.com", "wrong-password", "dev-1", testClient)
	}

	if _, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	user, _ := env.users.GetByEmail(context.Background(), "alice@example.com")
	if user.LoginAttempts != 0 {
		t.Errorf("attempts = %d, want 0 after success", user.LoginAttempts)
	}
}

func TestLoginRequiresDeviceID(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret")

	_, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "", testClient)
	if !errors.Is(err, ErrDeviceIDRequired) {
		t.Fatalf("Login() error = %v, want ErrDeviceIDRequired", err)
	}
}

func TestOTPStepUpTrustsDevice(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret")

	// First login with a new device issues an OTP and no session
	result, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	if err != nil || !result.RequiresOTP {
		t.Fatalf("Login() = (%+v, %v), want OTP step-up", result, err)
	}

	code, err := env.mr.Get("otp:login:alice@example.com")
	if err != nil {
		t.Fatalf("stored OTP: %v", err)
	}

	verified, err := env.svc.VerifyLoginOTP(context.Background(), "alice@example.com", code, "dev-1", testClient)
	if err != nil {
		t.Fatalf("VerifyLoginOTP() error = %v", err)
	}
	if verified.Token == "" {
		t.Error("expected a session token after OTP verification")
	}

	user, _ := env.users.GetByEmail(context.Background(), "alice@example.com")
	if !user.IsDeviceTrusted("dev-1") {
		t.Error("dev-1 must be trusted after OTP verification")
	}
	if !user.IsVerified {
		t.Error("user must be marked verified after first OTP login")
	}
	if got := env.auditLog.actions(); len(got) != 1 || got[0] != "login" {
		t.Errorf("audit actions = %v, want [login]", got)
	}

	// Second login with the now-trusted device skips the OTP
	again, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	if err != nil {
		t.Fatalf("second Login() error = %v", err)
	}
	if again.RequiresOTP {
		t.Error("trusted device must not require OTP on repeat login")
	}
}

func TestVerifyLoginOTPWrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret")

	if _, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	_, err := env.svc.VerifyLoginOTP(context.Background(), "alice@example.com", "000000", "dev-1", testClient)
	if !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("VerifyLoginOTP() error = %v, want ErrOTPInvalid", err)
	}
	if env.sessions.count() != 0 {
		t.Errorf("sessions = %d, want 0 after failed verification", env.sessions.count())
	}
}

func TestVerifyLoginOTPIsOneTimeUse(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret")

	env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	code, _ := env.mr.Get("otp:login:alice@example.com")

	if _, err := env.svc.VerifyLoginOTP(context.Background(), "alice@example.com", code, "dev-1", testClient); err != nil {
		t.Fatalf("first VerifyLoginOTP() error = %v", err)
	}
	if _, err := env.svc.VerifyLoginOTP(context.Background(), "alice@example.com", code, "dev-2", testClient); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("replayed code error = %v, want ErrOTPInvalid", err)
	}
}

func TestSendLoginOTPUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.SendLoginOTP(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("SendLoginOTP() error = %v, want ErrUserNotFound", err)
	}
}

func TestLoginOTPDoesNotValidateForOtherPurposes(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "Sup3r$ecret")

	env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	code, _ := env.mr.Get("otp:login:alice@example.com")

	_, err := env.svc.VerifyPasswordUpdateOTP(context.Background(), user, code, "Sup3r$ecret", "N3w$ecret9", "N3w$ecret9", testClient)
	if !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("cross-purpose code error = %v, want ErrOTPInvalid", err)
	}
}

func TestLogoutRevokesOnlyCurrentSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1", "dev-2")

	first, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	second, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-2", testClient)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if err := env.svc.Logout(context.Background(), user, first.Token, testClient); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if env.sessions.count() != 1 {
		t.Errorf("sessions = %d, want 1 after single logout", env.sessions.count())
	}

	// Remaining session still valid
	sessions, err := env.svc.ListSessions(context.Background(), user, second.Token)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || !sessions[0].IsCurrentSession {
		t.Errorf("sessions = %+v, want one current session", sessions)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1", "dev-2")

	env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-2", testClient)

	if err := env.svc.LogoutAll(context.Background(), user, testClient); err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}
	if env.sessions.count() != 0 {
		t.Errorf("sessions = %d, want 0", env.sessions.count())
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "Sup3r$ecret", "dev-1")

	result, _ := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)

	if err := env.svc.Logout(context.Background(), user, result.Token, testClient); err != nil {
		t.Fatalf("first Logout() error = %v", err)
	}
	if err := env.svc.Logout(context.Background(), user, result.Token, testClient); err != nil {
		t.Fatalf("second Logout() error = %v, want nil (idempotent)", err)
	}
}

func TestOTPIssueFailureRollsBackStoredCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "Sup3r$ecret")
	env.mail.failErr = errors.New("smtp unreachable")

	_, err := env.svc.Login(context.Background(), "alice@example.com", "Sup3r$ecret", "dev-1", testClient)
	if err == nil {
		t.Fatal("Login() must fail when the OTP email cannot be sent")
	}
	if env.mr.Exists("otp:login:alice@example.com") {
		t.Error("stored OTP must be rolled back after a send failure")
	}
}
