package roles

import (
	"context"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// RepositoryPort defines data access methods for the role registry.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]authz.Role, error)
	GetRole(ctx context.Context, id string) (authz.Role, error)
	GetRoleForUser(ctx context.Context, userID int64) (authz.Role, error)
}

// Service exposes the role registry.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all registered roles.
func (s *Service) ListRoles(ctx context.Context) ([]authz.Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role definition by identifier.
func (s *Service) GetRole(ctx context.Context, id string) (authz.Role, error) {
	return s.repo.GetRole(ctx, id)
}

// GetRoleForUser resolves a user's role.
func (s *Service) GetRoleForUser(ctx context.Context, userID int64) (authz.Role, error) {
	return s.repo.GetRoleForUser(ctx, userID)
}
