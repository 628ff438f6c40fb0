package permissions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

type mockPorts struct {
	role       authz.Role
	roleErr    error
	services   []authz.Service
	grants     map[string]authz.Grant
	history    []authz.AuditEntry
	setCalls   []string
	failingKey string
	partialKey string
	computes   int
}

func newMockPorts() *mockPorts {
	return &mockPorts{
		role: authz.Role{ID: "profesor", Description: "Docente", Level: authz.LevelTactical},
		services: []authz.Service{
			{Key: "admisiones", Name: "Admisiones", MinimumLevel: authz.LevelTactical},
			{Key: "inventario", Name: "Inventario", MinimumLevel: authz.LevelOperational},
			{Key: "documentos", Name: "Documentos", MinimumLevel: authz.LevelStrategic},
		},
		grants: make(map[string]authz.Grant),
	}
}

func (m *mockPorts) GetRoleForUser(ctx context.Context, userID int64) (authz.Role, error) {
	m.computes++
	if m.roleErr != nil {
		return authz.Role{}, m.roleErr
	}
	return m.role, nil
}

func (m *mockPorts) ListServices(ctx context.Context) ([]authz.Service, error) {
	return m.services, nil
}

func (m *mockPorts) GrantsForUser(ctx context.Context, userID int64) ([]authz.Grant, error) {
	out := make([]authz.Grant, 0, len(m.grants))
	for _, g := range m.grants {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockPorts) SetGrant(ctx context.Context, userID int64, serviceKey string, granted bool, actorID int64, reason string) (authz.AuditEntry, error) {
	m.setCalls = append(m.setCalls, serviceKey)
	if serviceKey == m.failingKey {
		return authz.AuditEntry{}, fmt.Errorf("%w: %q", authz.ErrUnknownService, serviceKey)
	}
	m.grants[serviceKey] = authz.Grant{UserID: userID, ServiceKey: serviceKey, Granted: granted, GrantedBy: actorID, GrantedAt: time.Now()}
	if serviceKey == m.partialKey {
		// The grant row committed; only the audit append broke.
		return authz.AuditEntry{}, &authz.PartialWriteError{
			UserID:       userID,
			ServiceKey:   serviceKey,
			GrantWritten: true,
			Cause:        errors.New("audit table unavailable"),
		}
	}
	return authz.AuditEntry{ID: serviceKey, Action: authz.ActionCreate}, nil
}

func (m *mockPorts) History(ctx context.Context, userID int64, limit int) ([]authz.AuditEntry, error) {
	if limit <= 0 {
		return nil, authz.ErrInvalidLimit
	}
	if limit > len(m.history) {
		limit = len(m.history)
	}
	return m.history[:limit], nil
}

func newTestService(ports *mockPorts) *Service {
	return NewService(ports, ports, ports, ports, NewCache(nil, time.Minute))
}

func TestUserPermissionsView(t *testing.T) {
	ports := newMockPorts()
	ports.grants["admisiones"] = authz.Grant{UserID: 7, ServiceKey: "admisiones", Granted: true}
	svc := newTestService(ports)

	view, err := svc.UserPermissions(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "profesor", view.RoleID)
	assert.True(t, view.Services["admisiones"].CanAccess)
	assert.False(t, view.Services["inventario"].CanAccess)
	assert.Equal(t, 1, view.AccessibleCount)
}

func TestUpdateUserAccessSkipsUnchanged(t *testing.T) {
	ports := newMockPorts()
	ports.grants["admisiones"] = authz.Grant{UserID: 7, ServiceKey: "admisiones", Granted: true}
	svc := newTestService(ports)

	report, err := svc.UpdateUserAccess(context.Background(), 7, map[string]bool{
		"admisiones": true,  // already granted
		"inventario": false, // absent row already reads as false
		"documentos": true,  // actual change
	}, 1, "quarterly review")
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []string{"documentos"}, report.UpdatedKeys)
	assert.Equal(t, []string{"documentos"}, ports.setCalls, "unchanged keys must not reach the store")
}

func TestUpdateUserAccessPartialFailure(t *testing.T) {
	ports := newMockPorts()
	ports.failingKey = "documentos"
	svc := newTestService(ports)

	report, err := svc.UpdateUserAccess(context.Background(), 7, map[string]bool{
		"admisiones": true,
		"documentos": true,
		"inventario": true,
	}, 1, "onboarding")
	require.NoError(t, err, "batch errors are reported, not returned")
	assert.False(t, report.Success)
	assert.ElementsMatch(t, []string{"admisiones", "inventario"}, report.UpdatedKeys)
	require.Len(t, report.FailedKeys, 1)
	assert.Contains(t, report.FailedKeys, "documentos")
}

func TestUpdateUserAccessRequiresReason(t *testing.T) {
	ports := newMockPorts()
	svc := newTestService(ports)

	_, err := svc.UpdateUserAccess(context.Background(), 7, map[string]bool{"admisiones": true}, 1, "   ")
	assert.ErrorIs(t, err, authz.ErrMissingReason)
	assert.Empty(t, ports.setCalls)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	ports := newMockPorts()
	svc := newTestService(ports)

	view, err := svc.Preview(context.Background(), 7, map[string]bool{"admisiones": true})
	require.NoError(t, err)
	assert.True(t, view.Services["admisiones"].CanAccess)
	assert.Empty(t, ports.setCalls)
	assert.Empty(t, ports.grants, "preview must leave the store untouched")
}

func TestUserPermissionsRoleFailure(t *testing.T) {
	ports := newMockPorts()
	ports.roleErr = fmt.Errorf("%w: user 7", authz.ErrUnknownRole)
	svc := newTestService(ports)

	_, err := svc.UserPermissions(context.Background(), 7)
	assert.ErrorIs(t, err, authz.ErrUnknownRole)
}

func TestCanAccessUnknownKeyDenies(t *testing.T) {
	ports := newMockPorts()
	svc := newTestService(ports)

	allowed, err := svc.CanAccess(context.Background(), 7, "no-such-module")
	require.NoError(t, err)
	assert.False(t, allowed, "denial is a value, not an error")
}

func TestUpdateUserAccessPartialWriteInvalidatesCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ports := newMockPorts()
	svc := NewService(ports, ports, ports, ports, NewCache(client, time.Minute))

	// Prime a cached view before any write.
	view, err := svc.UserPermissions(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, view.Services["admisiones"].CanAccess)

	ports.partialKey = "admisiones"
	report, err := svc.UpdateUserAccess(context.Background(), 7, map[string]bool{"admisiones": true}, 1, "onboarding")
	require.NoError(t, err)
	assert.False(t, report.Success)
	require.Contains(t, report.FailedKeys, "admisiones")

	// The grant row committed even though its audit append failed, so a
	// fresh read must see the new value, not the cached view.
	view, err = svc.UserPermissions(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, view.Services["admisiones"].CanAccess, "committed grant must be visible after UpdateUserAccess")
}

func TestUserAuditHistoryPropagatesInvalidLimit(t *testing.T) {
	ports := newMockPorts()
	svc := newTestService(ports)

	_, err := svc.UserAuditHistory(context.Background(), 7, -1)
	assert.True(t, errors.Is(err, authz.ErrInvalidLimit))
}
