package catalog

import (
	"context"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// RepositoryPort defines data access methods for the service catalog.
type RepositoryPort interface {
	ListServices(ctx context.Context) ([]authz.Service, error)
	GetService(ctx context.Context, key string) (authz.Service, error)
}

// Service exposes the catalog of portal modules.
type Service struct {
	repo     RepositoryPort
	collator *collate.Collator
}

// NewService builds Service instance. Display names are Spanish
// ("Admisiones", "Matrículas"), so listing order uses a Spanish
// collator rather than byte order.
func NewService(repo RepositoryPort) *Service {
	return &Service{
		repo:     repo,
		collator: collate.New(language.Spanish),
	}
}

// ListServices returns the catalog sorted by display name.
func (s *Service) ListServices(ctx context.Context) ([]authz.Service, error) {
	services, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(services, func(i, j int) bool {
		return s.collator.CompareString(services[i].Name, services[j].Name) < 0
	})
	return services, nil
}

// GetService fetches one catalog entry.
func (s *Service) GetService(ctx context.Context, key string) (authz.Service, error) {
	return s.repo.GetService(ctx, key)
}
