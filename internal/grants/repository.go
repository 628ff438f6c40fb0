package grants

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// Repository provides PostgreSQL backed persistence for grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetGrant fetches the current grant for a (user, service) pair.
// Absence is not an error: a nil grant means never granted.
func (r *Repository) GetGrant(ctx context.Context, userID int64, serviceKey string) (*authz.Grant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, service_key, granted, granted_by, granted_at, note
		FROM grants WHERE user_id = $1 AND service_key = $2`, userID, serviceKey)
	var g authz.Grant
	if err := row.Scan(&g.UserID, &g.ServiceKey, &g.Granted, &g.GrantedBy, &g.GrantedAt, &g.Note); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, authz.WrapPersistence("grants.get", err)
	}
	return &g, nil
}

// ListGrantsForUser returns every grant row for a user, revoked ones
// included.
func (r *Repository) ListGrantsForUser(ctx context.Context, userID int64) ([]authz.Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, service_key, granted, granted_by, granted_at, note
		FROM grants WHERE user_id = $1 ORDER BY service_key`, userID)
	if err != nil {
		return nil, authz.WrapPersistence("grants.list", err)
	}
	defer rows.Close()
	var result []authz.Grant
	for rows.Next() {
		var g authz.Grant
		if err := rows.Scan(&g.UserID, &g.ServiceKey, &g.Granted, &g.GrantedBy, &g.GrantedAt, &g.Note); err != nil {
			return nil, authz.WrapPersistence("grants.list", err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.WrapPersistence("grants.list", err)
	}
	return result, nil
}

// UpsertGrant writes the new grant state, last write wins. Races
// between two administrators are acceptable because every write is
// independently audited.
func (r *Repository) UpsertGrant(ctx context.Context, g authz.Grant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO grants (user_id, service_key, granted, granted_by, granted_at, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, service_key)
		DO UPDATE SET granted = EXCLUDED.granted, granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at, note = EXCLUDED.note`,
		g.UserID, g.ServiceKey, g.Granted, g.GrantedBy, g.GrantedAt, g.Note)
	if err != nil {
		return authz.WrapPersistence("grants.upsert", err)
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
