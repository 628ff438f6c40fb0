package grants

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// RepositoryPort defines data access methods for grants.
type RepositoryPort interface {
	GetGrant(ctx context.Context, userID int64, serviceKey string) (*authz.Grant, error)
	ListGrantsForUser(ctx context.Context, userID int64) ([]authz.Grant, error)
	UpsertGrant(ctx context.Context, g authz.Grant) error
}

// CatalogPort resolves service keys against the catalog.
type CatalogPort interface {
	GetService(ctx context.Context, key string) (authz.Service, error)
}

// AuditAppender records grant mutations in the append-only log.
type AuditAppender interface {
	Append(ctx context.Context, entry authz.AuditEntry) error
}

// Service owns the grant mutation path. Every successful upsert is
// paired with an audit entry; a failure between the two surfaces as
// PartialWriteError so no mutation ever goes unrecorded silently.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	audit   AuditAppender
	clock   func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, catalog CatalogPort, audit AuditAppender) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		audit:   audit,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SetGrant upserts the access decision for one user/service pair and
// appends the matching audit entry. The reason is mandatory: access
// changes without a justification are rejected before any write.
func (s *Service) SetGrant(ctx context.Context, userID int64, serviceKey string, granted bool, actorID int64, reason string) (authz.AuditEntry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return authz.AuditEntry{}, authz.ErrMissingReason
	}

	if _, err := s.catalog.GetService(ctx, serviceKey); err != nil {
		return authz.AuditEntry{}, err
	}

	previous, err := s.repo.GetGrant(ctx, userID, serviceKey)
	if err != nil {
		return authz.AuditEntry{}, err
	}

	now := s.clock()
	grant := authz.Grant{
		UserID:     userID,
		ServiceKey: serviceKey,
		Granted:    granted,
		GrantedBy:  actorID,
		GrantedAt:  now,
		Note:       reason,
	}
	if err := s.repo.UpsertGrant(ctx, grant); err != nil {
		return authz.AuditEntry{}, err
	}

	entry := authz.AuditEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		ServiceKey: serviceKey,
		Action:     authz.DeriveAction(previous, granted),
		ActorID:    actorID,
		Reason:     reason,
		Timestamp:  now,
		NewState:   authz.GrantState{Granted: granted, Note: reason},
	}
	if previous != nil {
		entry.PreviousState = &authz.GrantState{Granted: previous.Granted, Note: previous.Note}
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		// The grant committed but its audit record did not. Surface the
		// gap instead of pretending the whole operation failed.
		return authz.AuditEntry{}, &authz.PartialWriteError{
			UserID:       userID,
			ServiceKey:   serviceKey,
			GrantWritten: true,
			AuditWritten: false,
			Cause:        err,
		}
	}
	return entry, nil
}

// GrantsForUser lists the current grant rows for one user.
func (s *Service) GrantsForUser(ctx context.Context, userID int64) ([]authz.Grant, error) {
	return s.repo.ListGrantsForUser(ctx, userID)
}

// CurrentGrant fetches the current grant for a pair, nil when absent.
func (s *Service) CurrentGrant(ctx context.Context, userID int64, serviceKey string) (*authz.Grant, error) {
	return s.repo.GetGrant(ctx, userID, serviceKey)
}
