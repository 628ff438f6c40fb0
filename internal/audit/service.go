package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// DefaultHistoryLimit caps per-user history reads when the caller does
// not ask for a specific size.
const DefaultHistoryLimit = 20

// RepositoryPort lists the persistence calls the service needs.
type RepositoryPort interface {
	Append(ctx context.Context, entry authz.AuditEntry) error
	HistoryForUser(ctx context.Context, userID int64, limit int) ([]authz.AuditEntry, error)
	TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]authz.AuditEntry, error)
	TimelineAll(ctx context.Context, f TimelineFilters) ([]authz.AuditEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result wraps one timeline page with its paging metadata.
type Result struct {
	Entries []authz.AuditEntry
	Paging  PagingInfo
}

// Service coordinates reads of the access audit log.
type Service struct {
	repo RepositoryPort
}

// NewService builds the audit service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Append records a grant mutation. Exposed so the grant store can use
// the audit service as its appender.
func (s *Service) Append(ctx context.Context, entry authz.AuditEntry) error {
	return s.repo.Append(ctx, entry)
}

// History returns a user's entries newest first. Callers that want the
// default pass DefaultHistoryLimit; a non-positive limit is an error,
// not a request for everything.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]authz.AuditEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", authz.ErrInvalidLimit, limit)
	}
	return s.repo.HistoryForUser(ctx, userID, limit)
}

// Timeline fetches one filtered page of the audit log.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = DefaultHistoryLimit
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	entries, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export fetches every filtered entry without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]authz.AuditEntry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters)
}

// Sweep removes entries older than the retention window and reports
// how many were trimmed.
func (s *Service) Sweep(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.repo.DeleteOlderThan(ctx, now.Add(-retention))
}
