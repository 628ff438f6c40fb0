package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// Repository provides PostgreSQL backed persistence for the role registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all registered roles ordered by hierarchy then ID.
func (r *Repository) ListRoles(ctx context.Context) ([]authz.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, description, hierarchy_level, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, authz.WrapPersistence("roles.list", err)
	}
	defer rows.Close()
	var result []authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.WrapPersistence("roles.list", err)
	}
	return result, nil
}

// GetRole fetches a role definition by its identifier.
func (r *Repository) GetRole(ctx context.Context, id string) (authz.Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, description, hierarchy_level, created_at, updated_at FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, fmt.Errorf("%w: %q", authz.ErrUnknownRole, id)
		}
		return authz.Role{}, err
	}
	return role, nil
}

// GetRoleForUser resolves the role assigned to a user account.
func (r *Repository) GetRoleForUser(ctx context.Context, userID int64) (authz.Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT r.id, r.description, r.hierarchy_level, r.created_at, r.updated_at
		FROM roles r JOIN users u ON u.role_id = r.id
		WHERE u.id = $1`, userID)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, fmt.Errorf("%w: user %d", authz.ErrUnknownRole, userID)
		}
		return authz.Role{}, err
	}
	return role, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRole parses the stored level code at the repository boundary so
// the rest of the core only ever sees the ordered enum.
func scanRole(row rowScanner) (authz.Role, error) {
	var role authz.Role
	var levelCode string
	if err := row.Scan(&role.ID, &role.Description, &levelCode, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, err
		}
		return authz.Role{}, authz.WrapPersistence("roles.scan", err)
	}
	level, err := authz.ParseLevel(levelCode)
	if err != nil {
		return authz.Role{}, err
	}
	role.Level = level
	return role, nil
}

var _ RepositoryPort = (*Repository)(nil)
