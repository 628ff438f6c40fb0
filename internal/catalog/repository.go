package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// Repository provides PostgreSQL backed persistence for the service catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListServices returns every catalogued service.
func (r *Repository) ListServices(ctx context.Context) ([]authz.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, name, description, minimum_level FROM services ORDER BY key`)
	if err != nil {
		return nil, authz.WrapPersistence("catalog.list", err)
	}
	defer rows.Close()
	var services []authz.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.WrapPersistence("catalog.list", err)
	}
	return services, nil
}

// GetService fetches one service by its key.
func (r *Repository) GetService(ctx context.Context, key string) (authz.Service, error) {
	row := r.pool.QueryRow(ctx, `SELECT key, name, description, minimum_level FROM services WHERE key = $1`, key)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Service{}, fmt.Errorf("%w: %q", authz.ErrUnknownService, key)
		}
		return authz.Service{}, err
	}
	return svc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (authz.Service, error) {
	var svc authz.Service
	var levelCode string
	if err := row.Scan(&svc.Key, &svc.Name, &svc.Description, &levelCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Service{}, err
		}
		return authz.Service{}, authz.WrapPersistence("catalog.scan", err)
	}
	level, err := authz.ParseLevel(levelCode)
	if err != nil {
		return authz.Service{}, fmt.Errorf("%w: service %q has level %q", authz.ErrUnknownService, svc.Key, levelCode)
	}
	svc.MinimumLevel = level
	return svc, nil
}

var _ RepositoryPort = (*Repository)(nil)
