package permissions

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

// RolePort resolves role definitions.
type RolePort interface {
	GetRoleForUser(ctx context.Context, userID int64) (authz.Role, error)
}

// CatalogPort lists the service catalog.
type CatalogPort interface {
	ListServices(ctx context.Context) ([]authz.Service, error)
}

// GrantPort reads and mutates grants.
type GrantPort interface {
	GrantsForUser(ctx context.Context, userID int64) ([]authz.Grant, error)
	SetGrant(ctx context.Context, userID int64, serviceKey string, granted bool, actorID int64, reason string) (authz.AuditEntry, error)
}

// AuditPort reads audit history.
type AuditPort interface {
	History(ctx context.Context, userID int64, limit int) ([]authz.AuditEntry, error)
}

// UpdateReport summarises a batch grant update. Grants are independent
// per service, so one failing key never aborts the rest; the report
// carries exactly which keys failed and why.
type UpdateReport struct {
	Success     bool
	UpdatedKeys []string
	FailedKeys  map[string]string
}

// Service is the query facade the presentation layer talks to. Reads
// flow registry+catalog+grants through the evaluator; writes flow
// through the grant store and bump the view cache.
type Service struct {
	roles   RolePort
	catalog CatalogPort
	grants  GrantPort
	audit   AuditPort
	cache   *Cache
	group   singleflight.Group
}

// NewService builds Service instance.
func NewService(roles RolePort, catalog CatalogPort, grants GrantPort, audit AuditPort, cache *Cache) *Service {
	return &Service{roles: roles, catalog: catalog, grants: grants, audit: audit, cache: cache}
}

// UserPermissions computes the full permission view for a user.
// Concurrent requests for the same user share one computation.
func (s *Service) UserPermissions(ctx context.Context, userID int64) (authz.PermissionView, error) {
	view, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		view, _, err := s.cache.FetchView(ctx, userID, func(ctx context.Context) (authz.PermissionView, error) {
			return s.computeView(ctx, userID)
		})
		return view, err
	})
	if err != nil {
		return authz.PermissionView{}, err
	}
	return view.(authz.PermissionView), nil
}

// Preview evaluates a hypothetical grant change without persisting
// anything, so admin screens can show the effect before submission.
func (s *Service) Preview(ctx context.Context, userID int64, overrides map[string]bool) (authz.PermissionView, error) {
	role, err := s.roles.GetRoleForUser(ctx, userID)
	if err != nil {
		return authz.PermissionView{}, err
	}
	services, err := s.catalog.ListServices(ctx)
	if err != nil {
		return authz.PermissionView{}, err
	}
	current, err := s.grants.GrantsForUser(ctx, userID)
	if err != nil {
		return authz.PermissionView{}, err
	}
	merged := make([]authz.Grant, 0, len(current)+len(overrides))
	seen := make(map[string]bool, len(current))
	for _, g := range current {
		if desired, ok := overrides[g.ServiceKey]; ok {
			g.Granted = desired
		}
		seen[g.ServiceKey] = true
		merged = append(merged, g)
	}
	for key, desired := range overrides {
		if !seen[key] {
			merged = append(merged, authz.Grant{UserID: userID, ServiceKey: key, Granted: desired})
		}
	}
	return authz.EvaluateAll(userID, role, services, merged)
}

// UserAuditHistory returns a user's grant history, newest first.
func (s *Service) UserAuditHistory(ctx context.Context, userID int64, limit int) ([]authz.AuditEntry, error) {
	return s.audit.History(ctx, userID, limit)
}

// UpdateUserAccess applies a batch of desired grant values. Keys whose
// stored state already matches are skipped so repeated submissions do
// not generate audit noise. Partial failures are reported, not fatal.
func (s *Service) UpdateUserAccess(ctx context.Context, targetUserID int64, desired map[string]bool, actorID int64, reason string) (UpdateReport, error) {
	if strings.TrimSpace(reason) == "" {
		// Fail the whole batch before any write rather than once per key.
		return UpdateReport{}, authz.ErrMissingReason
	}
	current, err := s.grants.GrantsForUser(ctx, targetUserID)
	if err != nil {
		return UpdateReport{}, err
	}
	granted := make(map[string]bool, len(current))
	for _, g := range current {
		granted[g.ServiceKey] = g.Granted
	}

	keys := make([]string, 0, len(desired))
	for key := range desired {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	report := UpdateReport{FailedKeys: make(map[string]string)}
	for _, key := range keys {
		want := desired[key]
		// An absent row already reads as not granted; writing false
		// for it would only manufacture history.
		if have, ok := granted[key]; (ok && have == want) || (!ok && !want) {
			continue
		}
		if _, err := s.grants.SetGrant(ctx, targetUserID, key, want, actorID, reason); err != nil {
			report.FailedKeys[key] = err.Error()
			continue
		}
		report.UpdatedKeys = append(report.UpdatedKeys, key)
	}
	report.Success = len(report.FailedKeys) == 0

	// Stale views must not survive a grant change. A failed key may
	// still have committed its grant row before the audit append broke,
	// so any attempted write invalidates, not just the clean ones.
	if len(report.UpdatedKeys) > 0 || len(report.FailedKeys) > 0 {
		if err := s.cache.Bump(ctx); err != nil {
			report.Success = false
			report.FailedKeys["_cache"] = err.Error()
		}
	}
	return report, nil
}

func (s *Service) computeView(ctx context.Context, userID int64) (authz.PermissionView, error) {
	role, err := s.roles.GetRoleForUser(ctx, userID)
	if err != nil {
		return authz.PermissionView{}, err
	}
	services, err := s.catalog.ListServices(ctx)
	if err != nil {
		return authz.PermissionView{}, err
	}
	current, err := s.grants.GrantsForUser(ctx, userID)
	if err != nil {
		return authz.PermissionView{}, err
	}
	return authz.EvaluateAll(userID, role, services, current)
}

// CanAccess reports whether a user may open one service right now.
// Used by the route guard middleware.
func (s *Service) CanAccess(ctx context.Context, userID int64, serviceKey string) (bool, error) {
	view, err := s.UserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	decision, ok := view.Services[serviceKey]
	if !ok {
		return false, nil
	}
	return decision.CanAccess, nil
}
