package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

type stubRepo struct {
	windowEntries []authz.AuditEntry
	allEntries    []authz.AuditEntry
	history       []authz.AuditEntry
	lastOffset    int
	lastLimit     int
	lastHistLimit int
	deletedCutoff time.Time
	deletedRows   int64
	historyCalled bool
	appendedEntry *authz.AuditEntry
	appendErr     error
}

func (s *stubRepo) Append(ctx context.Context, entry authz.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appendedEntry = &entry
	return nil
}

func (s *stubRepo) HistoryForUser(ctx context.Context, userID int64, limit int) ([]authz.AuditEntry, error) {
	s.historyCalled = true
	s.lastHistLimit = limit
	return s.history, nil
}

func (s *stubRepo) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]authz.AuditEntry, error) {
	s.lastOffset = offset
	s.lastLimit = limit
	return s.windowEntries, nil
}

func (s *stubRepo) TimelineAll(ctx context.Context, f TimelineFilters) ([]authz.AuditEntry, error) {
	return s.allEntries, nil
}

func (s *stubRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.deletedCutoff = cutoff
	return s.deletedRows, nil
}

func mockEntry(ts string, action authz.AuditAction) authz.AuditEntry {
	tval, _ := time.Parse(time.RFC3339, ts)
	return authz.AuditEntry{
		ID:         ts,
		UserID:     7,
		ServiceKey: "admisiones",
		Action:     action,
		ActorID:    1,
		Reason:     "seed",
		Timestamp:  tval,
		NewState:   authz.GrantState{Granted: true},
	}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubRepo{
		windowEntries: []authz.AuditEntry{
			mockEntry("2026-03-10T10:00:00Z", authz.ActionUpdate),
			mockEntry("2026-03-09T09:00:00Z", authz.ActionDeactivate),
			mockEntry("2026-03-08T08:00:00Z", authz.ActionCreate),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if !result.Paging.HasNext {
		t.Fatalf("expected hasNext true")
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	if _, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 500}); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastLimit != 51 {
		t.Fatalf("expected clamp to 50(+1), got %d", repo.lastLimit)
	}
	if repo.lastOffset != 50 {
		t.Fatalf("expected offset 50, got %d", repo.lastOffset)
	}
}

func TestServiceHistoryRejectsBadLimit(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	for _, limit := range []int{0, -1, -20} {
		if _, err := svc.History(context.Background(), 7, limit); !errors.Is(err, authz.ErrInvalidLimit) {
			t.Fatalf("limit %d: expected ErrInvalidLimit, got %v", limit, err)
		}
	}
	if repo.historyCalled {
		t.Fatalf("repository must not be hit for invalid limits")
	}
}

func TestServiceHistoryPassesLimit(t *testing.T) {
	repo := &stubRepo{history: []authz.AuditEntry{mockEntry("2026-03-10T10:00:00Z", authz.ActionCreate)}}
	svc := NewService(repo)
	entries, err := svc.History(context.Background(), 7, DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if repo.lastHistLimit != 20 {
		t.Fatalf("expected limit 20, got %d", repo.lastHistLimit)
	}
}

func TestServiceSweep(t *testing.T) {
	repo := &stubRepo{deletedRows: 12}
	svc := NewService(repo)
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	n, err := svc.Sweep(context.Background(), 90*24*time.Hour, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected 12 trimmed, got %d", n)
	}
	want := now.Add(-90 * 24 * time.Hour)
	if !repo.deletedCutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, repo.deletedCutoff)
	}

	// Zero retention disables the sweep entirely.
	if n, err := svc.Sweep(context.Background(), 0, now); err != nil || n != 0 {
		t.Fatalf("expected no-op sweep, got n=%d err=%v", n, err)
	}
}
