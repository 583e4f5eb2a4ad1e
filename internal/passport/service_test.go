package passport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/stratus-console/stratus/internal/passport"
	"github.com/stratus-console/stratus/internal/session"
	"github.com/stratus-console/stratus/internal/shared"
	_ "github.com/stratus-console/stratus/testing"
)

type stubRepo struct {
	creds map[string]*passport.Credential
}

func (r *stubRepo) FindByEmail(ctx context.Context, email string) (*passport.Credential, error) {
	cred, ok := r.creds[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cred, nil
}

func newService(t *testing.T) (*passport.Service, *session.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(client, time.Hour, 5*time.Minute)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := &stubRepo{creds: map[string]*passport.Credential{
		"ops@example.com": {UserID: 7, Email: "ops@example.com", PasswordHash: string(hash), Enabled: true},
		"off@example.com": {UserID: 8, Email: "off@example.com", PasswordHash: string(hash), Enabled: false},
	}}
	return passport.NewService(repo, store), store
}

func TestLoginIssuesSession(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	rec, err := svc.Login(ctx, "ops@example.com", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Token == "" {
		t.Fatal("expected a token")
	}
	if rec.UserID != 7 {
		t.Fatalf("expected user 7, got %d", rec.UserID)
	}

	stored, err := store.Get(ctx, rec.Token)
	if err != nil {
		t.Fatalf("get stored session: %v", err)
	}
	if stored.UserID != 7 {
		t.Fatalf("stored session belongs to %d", stored.UserID)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Login(context.Background(), "ops@example.com", "nope")
	if !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Login(context.Background(), "ghost@example.com", "s3cret")
	if !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	// Disabled accounts are indistinguishable from bad passwords.
	svc, _ := newService(t)
	_, err := svc.Login(context.Background(), "off@example.com", "s3cret")
	if !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutRemovesSession(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	rec, err := svc.Login(ctx, "ops@example.com", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(ctx, rec.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := store.Get(ctx, rec.Token); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after logout, got %v", err)
	}
	// Unknown tokens are a no-op.
	if err := svc.Logout(ctx, "gone"); err != nil {
		t.Fatalf("logout unknown token: %v", err)
	}
}

func TestRotateExchangesToken(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	old, err := svc.Login(ctx, "ops@example.com", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	fresh, err := svc.Rotate(ctx, old.Token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if fresh.Token == old.Token {
		t.Fatal("rotation must mint a new token")
	}
	if fresh.UserID != old.UserID {
		t.Fatalf("rotation changed the user: %d", fresh.UserID)
	}
	if _, err := store.Get(ctx, old.Token); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("old token must be gone, got %v", err)
	}
}

func TestRotateUnknownToken(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Rotate(context.Background(), "gone")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session.ErrNotFound, got %v", err)
	}
}
