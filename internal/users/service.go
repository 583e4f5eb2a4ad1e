package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/stratus-console/stratus/internal/bus"
	"github.com/stratus-console/stratus/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string, roleIDs []int64) (User, error)
	SetStatus(ctx context.Context, id int64, status int16) (User, error)
	GrantRoles(ctx context.Context, id int64, roleIDs []int64) (User, error)
	RevokeRoles(ctx context.Context, id int64, roleIDs []int64) (User, error)
}

// Publisher sends change notifications after a successful write.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// Service handles user business logic. Writes publish change events; a
// failed publish is logged and swallowed, the periodic refresh covers it.
type Service struct {
	repo      RepositoryPort
	publisher Publisher
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches a single user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser inserts an enabled account, hashing the supplied password.
func (s *Service) CreateUser(ctx context.Context, email, name, password string, roleIDs []int64) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return User{}, errors.Join(shared.ErrValidation, errors.New("email required"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, email, strings.TrimSpace(name), string(hash), roleIDs)
	if err != nil {
		return User{}, err
	}
	s.notify(ctx, user, "create")
	return user, nil
}

// SetEnabled flips the account status. Disabling excludes the user from the
// projection on the next refresh, so stale sessions fail closed.
func (s *Service) SetEnabled(ctx context.Context, id int64, enabled bool) (User, error) {
	status := StatusDisabled
	action := "disable"
	if enabled {
		status = StatusEnabled
		action = "enable"
	}
	user, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return User{}, err
	}
	s.notify(ctx, user, action)
	return user, nil
}

// GrantRoles adds roles to the account.
func (s *Service) GrantRoles(ctx context.Context, id int64, roleIDs []int64) (User, error) {
	if len(roleIDs) == 0 {
		return User{}, errors.Join(shared.ErrValidation, errors.New("role ids required"))
	}
	user, err := s.repo.GrantRoles(ctx, id, roleIDs)
	if err != nil {
		return User{}, err
	}
	s.notify(ctx, user, "grant")
	return user, nil
}

// RevokeRoles removes roles from the account.
func (s *Service) RevokeRoles(ctx context.Context, id int64, roleIDs []int64) (User, error) {
	if len(roleIDs) == 0 {
		return User{}, errors.Join(shared.ErrValidation, errors.New("role ids required"))
	}
	user, err := s.repo.RevokeRoles(ctx, id, roleIDs)
	if err != nil {
		return User{}, err
	}
	s.notify(ctx, user, "revoke")
	return user, nil
}

func (s *Service) notify(ctx context.Context, user User, action string) {
	if s.publisher == nil {
		return
	}
	actorID, _ := shared.UserIDFromContext(ctx)
	ev := bus.Event{
		Entity:    bus.EntityUser,
		EntityID:  user.ID,
		Action:    action,
		ActorID:   actorID,
		OperateID: user.OperateID,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.Warn("publish user change", slog.Int64("user", user.ID), slog.Any("error", err))
	}
}
