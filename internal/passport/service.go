package passport

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stratus-console/stratus/internal/session"
	"github.com/stratus-console/stratus/internal/shared"
)

// Service wraps login, logout and token rotation.
type Service struct {
	repo  Repository
	store *session.Store
}

// NewService constructs a new Service.
func NewService(repo Repository, store *session.Store) *Service {
	return &Service{repo: repo, store: store}
}

// Login validates credentials and writes a fresh token into the session
// store. Disabled accounts fail the same way as bad passwords.
func (s *Service) Login(ctx context.Context, email, password string) (*session.Record, error) {
	cred, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !cred.Enabled {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	rec := &session.Record{
		Token:     generateToken(),
		UserID:    cred.UserID,
		ExpiresAt: now.Add(s.store.TTL()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Logout invalidates the token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.Delete(ctx, token)
}

// Rotate exchanges the old token for a fresh one atomically. Callers must
// treat session.ErrRotateConflict separately from store failures.
func (s *Service) Rotate(ctx context.Context, oldToken string) (*session.Record, error) {
	newToken := generateToken()
	if err := s.store.Rotate(ctx, oldToken, newToken); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, newToken)
}

func generateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
