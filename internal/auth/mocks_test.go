package auth

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tinytulsi/mart-backend/internal/audit"
	"github.com/tinytulsi/mart-backend/internal/config"
	"github.com/tinytulsi/mart-backend/internal/notifier"
	"github.com/tinytulsi/mart-backend/internal/otp"
	"github.com/tinytulsi/mart-backend/internal/repository"
	"github.com/tinytulsi/mart-backend/internal/sanitizer"
)

// fakeUserRepo is an in-memory UserRepository sufficient for service tests
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*repository.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*repository.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *repository.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrEmailAlreadyExists
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) IncrementLoginAttempts(_ context.Context, id uuid.UUID) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, false, repository.ErrUserNotFound
	}
	u.LoginAttempts++
	if u.LoginAttempts >= repository.MaxLoginAttempts {
		u.IsLocked = true
	}
	return u.LoginAttempts, u.IsLocked, nil
}

func (f *fakeUserRepo) ResetLoginAttempts(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LoginAttempts = 0
	u.IsLocked = false
	return nil
}

func (f *fakeUserRepo) AddTrustedDevice(_ context.Context, id uuid.UUID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if !u.IsDeviceTrusted(deviceID) {
		u.TrustedDevices = append(u.TrustedDevices, deviceID)
	}
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string, history []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordHistory = history
	u.LoginAttempts = 0
	u.IsLocked = false
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (f *fakeUserRepo) SetResetToken(_ context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (f *fakeUserRepo) ClearResetToken(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (f *fakeUserRepo) GetByResetTokenHash(_ context.Context, tokenHash string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, u := range f.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now) {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) MarkVerified(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsVerified = true
	return nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id uuid.UUID, name, email string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.Name = name
	u.Email = email
	return u, nil
}

func (f *fakeUserRepo) SetAvatar(_ context.Context, id uuid.UUID, key, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.AvatarKey = &key
	u.AvatarURL = &url
	return nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.Role = role
	return u, nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

// fakeSessionRepo is an in-memory SessionRepository keyed by token hash
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*repository.Session)}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *repository.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	f.sessions[session.TokenHash] = session
	return nil
}

func (f *fakeSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[tokenHash]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessionRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) Touch(_ context.Context, tokenHash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tokenHash]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.LastActiveAt = at
	return nil
}

func (f *fakeSessionRepo) DeleteByTokenHash(_ context.Context, userID uuid.UUID, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[tokenHash]; ok && s.UserID == userID {
		delete(f.sessions, tokenHash)
	}
	return nil
}

func (f *fakeSessionRepo) DeleteAllByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// fakeAuditRepo captures audit entries in memory
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []repository.AuditLog
	failErr error
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *repository.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	entry.ID = uuid.New()
	entry.Timestamp = time.Now().UTC()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, _, _ int) ([]*repository.AuditLogWithUser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.AuditLogWithUser, 0, len(f.entries))
	for i := len(f.entries) - 1; i >= 0; i-- {
		out = append(out, &repository.AuditLogWithUser{AuditLog: f.entries[i]})
	}
	return out, int64(len(f.entries)), nil
}

func (f *fakeAuditRepo) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeImageStore records uploads without touching object storage
type fakeImageStore struct {
	mu       sync.Mutex
	uploads  int
	deleted  []string
	uploadFn func() error
}

func (f *fakeImageStore) UploadAvatar(_ context.Context, _ []byte, _ string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadFn != nil {
		if err := f.uploadFn(); err != nil {
			return "", "", err
		}
	}
	f.uploads++
	key := uuid.New().String()
	return "avatars/" + key, "http://storage.local/avatars/" + key, nil
}

func (f *fakeImageStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

// sentMail records outbound notifications
type sentMail struct {
	mu       sync.Mutex
	messages []struct{ To, Subject, Body string }
	failErr  error
}

func (s *sentMail) notifier() notifier.Notifier {
	return notifier.Func(func(_ context.Context, to, subject, body string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failErr != nil {
			return s.failErr
		}
		s.messages = append(s.messages, struct{ To, Subject, Body string }{to, subject, body})
		return nil
	})
}

func (s *sentMail) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *sentMail) last() struct{ To, Subject, Body string } {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[len(s.messages)-1]
}

// testEnv bundles a Service with the fakes wired into it
type testEnv struct {
	svc      *Service
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	auditLog *fakeAuditRepo
	images   *fakeImageStore
	mail     *sentMail
	mr       *miniredis.Miniredis
	store    *otp.Store
	manager  *SessionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	auditRepo := &fakeAuditRepo{}
	images := &fakeImageStore{}
	mail := &sentMail{}

	logger := slog.New(slog.DiscardHandler)

	tokens := NewTokenService(TokenServiceConfig{Secret: "test-secret", Issuer: "test"})
	manager := NewSessionManager(sessions, tokens, 15*time.Minute)
	store := otp.NewStore(client, 5*time.Minute)
	engine := NewOTPEngine(store, mail.notifier(), logger)
	recorder := audit.NewRecorder(auditRepo, logger)

	cfg := &config.Config{
		OTP:     config.OTPConfig{TTL: 5 * time.Minute},
		Storage: config.StorageConfig{MaxAvatarBytes: 2 * 1024 * 1024},
	}

	svc := NewService(
		users,
		NewPasswordPolicy(),
		manager,
		engine,
		recorder,
		images,
		sanitizer.New(),
		cfg,
		logger,
	)

	return &testEnv{
		svc:      svc,
		users:    users,
		sessions: sessions,
		auditLog: auditRepo,
		images:   images,
		mail:     mail,
		mr:       mr,
		store:    store,
		manager:  manager,
	}
}

// seedUser creates a user with a known password directly in the fake repo
func (e *testEnv) seedUser(t *testing.T, email, password string, trusted ...string) *repository.User {
	t.Helper()

	hash, err := NewPasswordPolicy().HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	user := &repository.User{
		ID:              uuid.New(),
		Name:            "Test User",
		Email:           email,
		PasswordHash:    hash,
		PasswordHistory: []string{},
		Role:            "user",
		TrustedDevices:  append([]string{}, trusted...),
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}
