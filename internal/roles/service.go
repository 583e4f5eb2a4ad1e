package roles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stratus-console/stratus/internal/bus"
	"github.com/stratus-console/stratus/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string, abilityIDs []int64) (Role, error)
	SetStatus(ctx context.Context, id int64, status int16) (Role, error)
	GrantAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error)
	RevokeAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error)
}

// Publisher sends change notifications after a successful write.
type Publisher interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// Service handles role business logic. Every successful write publishes a
// change event so all instances refresh their projection; a failed publish is
// logged and swallowed because the periodic refresh covers it.
type Service struct {
	repo      RepositoryPort
	publisher Publisher
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a single role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new enabled role.
func (s *Service) CreateRole(ctx context.Context, name, description string, abilityIDs []int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.Join(shared.ErrValidation, errors.New("role name required"))
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), abilityIDs)
	if err != nil {
		return Role{}, err
	}
	s.notify(ctx, role, "create")
	return role, nil
}

// SetEnabled flips the role status. Disabling a role removes its abilities
// from every holder on the next projection refresh.
func (s *Service) SetEnabled(ctx context.Context, id int64, enabled bool) (Role, error) {
	status := StatusDisabled
	action := "disable"
	if enabled {
		status = StatusEnabled
		action = "enable"
	}
	role, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return Role{}, err
	}
	s.notify(ctx, role, action)
	return role, nil
}

// GrantAbilities adds abilities to the role.
func (s *Service) GrantAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error) {
	if len(abilityIDs) == 0 {
		return Role{}, errors.Join(shared.ErrValidation, errors.New("ability ids required"))
	}
	role, err := s.repo.GrantAbilities(ctx, id, abilityIDs)
	if err != nil {
		return Role{}, err
	}
	s.notify(ctx, role, "grant")
	return role, nil
}

// RevokeAbilities removes abilities from the role.
func (s *Service) RevokeAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error) {
	if len(abilityIDs) == 0 {
		return Role{}, errors.Join(shared.ErrValidation, errors.New("ability ids required"))
	}
	role, err := s.repo.RevokeAbilities(ctx, id, abilityIDs)
	if err != nil {
		return Role{}, err
	}
	s.notify(ctx, role, "revoke")
	return role, nil
}

func (s *Service) notify(ctx context.Context, role Role, action string) {
	if s.publisher == nil {
		return
	}
	actorID, _ := shared.UserIDFromContext(ctx)
	ev := bus.Event{
		Entity:    bus.EntityRole,
		EntityID:  role.ID,
		Action:    action,
		ActorID:   actorID,
		OperateID: role.OperateID,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil && s.logger != nil {
		s.logger.Warn("publish role change", slog.Int64("role", role.ID), slog.Any("error", err))
	}
}
