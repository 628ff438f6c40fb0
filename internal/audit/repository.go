package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// Repository provides PostgreSQL backed persistence for the audit log.
// The access_audit table is append-only: entries are never updated, and
// the retention sweep in DeleteOlderThan is the single removal path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes one immutable audit entry.
func (r *Repository) Append(ctx context.Context, entry authz.AuditEntry) error {
	var prevJSON []byte
	if entry.PreviousState != nil {
		data, err := json.Marshal(entry.PreviousState)
		if err != nil {
			return authz.WrapPersistence("audit.append", err)
		}
		prevJSON = data
	}
	newJSON, err := json.Marshal(entry.NewState)
	if err != nil {
		return authz.WrapPersistence("audit.append", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO access_audit (id, user_id, service_key, action, actor_id, reason, occurred_at, previous_state, new_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.UserID, entry.ServiceKey, string(entry.Action), entry.ActorID,
		entry.Reason, entry.Timestamp, prevJSON, newJSON)
	if err != nil {
		return authz.WrapPersistence("audit.append", err)
	}
	return nil
}

// HistoryForUser returns the newest entries for a user, newest first.
func (r *Repository) HistoryForUser(ctx context.Context, userID int64, limit int) ([]authz.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, service_key, action, actor_id, reason, occurred_at, previous_state, new_state
		FROM access_audit WHERE user_id = $1
		ORDER BY occurred_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, authz.WrapPersistence("audit.history", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// TimelineWindow returns one page of filtered entries, newest first.
// Zero-valued filters are ignored. LimitRows is expected to be one
// larger than the page so the caller can detect a next page.
func (r *Repository) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]authz.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, service_key, action, actor_id, reason, occurred_at, previous_state, new_state
		FROM access_audit
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		  AND ($3::bigint = 0 OR actor_id = $3)
		  AND ($4::bigint = 0 OR user_id = $4)
		  AND ($5::text = '' OR service_key = $5)
		  AND ($6::text = '' OR action = $6)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $7 LIMIT $8`,
		nullableTime(f.From), nullableTime(f.To), f.ActorID, f.UserID,
		f.ServiceKey, f.Action, offset, limit)
	if err != nil {
		return nil, authz.WrapPersistence("audit.timeline", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// TimelineAll returns every filtered entry without paging, for export.
func (r *Repository) TimelineAll(ctx context.Context, f TimelineFilters) ([]authz.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, service_key, action, actor_id, reason, occurred_at, previous_state, new_state
		FROM access_audit
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		  AND ($3::bigint = 0 OR actor_id = $3)
		  AND ($4::bigint = 0 OR user_id = $4)
		  AND ($5::text = '' OR service_key = $5)
		  AND ($6::text = '' OR action = $6)
		ORDER BY occurred_at DESC, id DESC`,
		nullableTime(f.From), nullableTime(f.To), f.ActorID, f.UserID,
		f.ServiceKey, f.Action)
	if err != nil {
		return nil, authz.WrapPersistence("audit.export", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// DeleteOlderThan trims entries past the retention horizon. Retention
// is the single sanctioned removal path and runs only from the sweep
// job, never from request handlers.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_audit WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, authz.WrapPersistence("audit.retention", err)
	}
	return tag.RowsAffected(), nil
}

func collectEntries(rows pgx.Rows) ([]authz.AuditEntry, error) {
	var entries []authz.AuditEntry
	for rows.Next() {
		var entry authz.AuditEntry
		var action string
		var prevJSON, newJSON []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.ServiceKey, &action, &entry.ActorID,
			&entry.Reason, &entry.Timestamp, &prevJSON, &newJSON); err != nil {
			return nil, authz.WrapPersistence("audit.scan", err)
		}
		entry.Action = authz.AuditAction(action)
		if len(prevJSON) > 0 {
			var prev authz.GrantState
			if err := json.Unmarshal(prevJSON, &prev); err != nil {
				return nil, authz.WrapPersistence("audit.scan", err)
			}
			entry.PreviousState = &prev
		}
		if len(newJSON) > 0 {
			if err := json.Unmarshal(newJSON, &entry.NewState); err != nil {
				return nil, authz.WrapPersistence("audit.scan", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.WrapPersistence("audit.scan", err)
	}
	return entries, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ RepositoryPort = (*Repository)(nil)
