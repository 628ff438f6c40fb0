package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tacticalService(key string) Service {
	return Service{Key: key, Name: key, MinimumLevel: LevelTactical}
}

func TestEvaluateMatrix(t *testing.T) {
	svc := tacticalService("admisiones")
	held := &Grant{UserID: 7, ServiceKey: svc.Key, Granted: true}

	cases := []struct {
		name  string
		level HierarchyLevel
		grant *Grant
		want  Decision
	}{
		{"grant and hierarchy", LevelTactical, held, Decision{true, true, true}},
		{"grant without hierarchy", LevelOperational, held, Decision{true, false, false}},
		{"hierarchy without grant", LevelStrategic, nil, Decision{false, true, false}},
		{"neither", LevelOperational, nil, Decision{false, false, false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			role := Role{ID: "r", Level: tc.level}
			got, err := Evaluate(role, svc, tc.grant)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got.HasPermission && got.HasHierarchy, got.CanAccess)
		})
	}
}

func TestEvaluateRevokedGrantRow(t *testing.T) {
	// A revoked grant keeps its row; it must behave like an absent one.
	svc := tacticalService("matriculas")
	revoked := &Grant{UserID: 7, ServiceKey: svc.Key, Granted: false}
	got, err := Evaluate(Role{ID: "profesor", Level: LevelTactical}, svc, revoked)
	require.NoError(t, err)
	assert.False(t, got.HasPermission)
	assert.False(t, got.CanAccess)
}

func TestEvaluateHierarchyMonotonic(t *testing.T) {
	svc := tacticalService("bienestar")
	grant := &Grant{UserID: 1, ServiceKey: svc.Key, Granted: true}
	prev := false
	for _, level := range []HierarchyLevel{LevelOperational, LevelTactical, LevelStrategic} {
		got, err := Evaluate(Role{ID: "r", Level: level}, svc, grant)
		require.NoError(t, err)
		if prev {
			assert.True(t, got.HasHierarchy, "hierarchy must not regress as level increases")
		}
		prev = got.HasHierarchy
	}
}

func TestEvaluateUnknownInputs(t *testing.T) {
	svc := tacticalService("rrhh")
	_, err := Evaluate(Role{ID: "ghost", Level: 0}, svc, nil)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = Evaluate(Role{ID: "profesor", Level: LevelTactical}, Service{}, nil)
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestEvaluateScenarios(t *testing.T) {
	admisiones := tacticalService("admisiones")
	profesor := Role{ID: "profesor", Level: LevelTactical}

	got, err := Evaluate(profesor, admisiones, nil)
	require.NoError(t, err)
	assert.Equal(t, Decision{HasPermission: false, HasHierarchy: true, CanAccess: false}, got)

	got, err = Evaluate(profesor, admisiones, &Grant{UserID: 3, ServiceKey: "admisiones", Granted: true})
	require.NoError(t, err)
	assert.Equal(t, Decision{HasPermission: true, HasHierarchy: true, CanAccess: true}, got)

	// Operational staff stay out of tactical services even when granted.
	administrativo := Role{ID: "administrativo", Level: LevelOperational}
	got, err = Evaluate(administrativo, tacticalService("bienestar"), &Grant{UserID: 4, ServiceKey: "bienestar", Granted: true})
	require.NoError(t, err)
	assert.False(t, got.CanAccess)
}

func TestEvaluateAll(t *testing.T) {
	role := Role{ID: "profesor", Level: LevelTactical}
	services := []Service{
		{Key: "admisiones", Name: "Admisiones", MinimumLevel: LevelTactical},
		{Key: "inventario", Name: "Inventario", MinimumLevel: LevelOperational},
		{Key: "documentos", Name: "Documentos", MinimumLevel: LevelStrategic},
	}
	grants := []Grant{
		{UserID: 9, ServiceKey: "admisiones", Granted: true},
		{UserID: 9, ServiceKey: "documentos", Granted: true},
		{UserID: 9, ServiceKey: "retired-module", Granted: true},
	}

	view, err := EvaluateAll(9, role, services, grants)
	require.NoError(t, err)
	require.Len(t, view.Services, 3)
	assert.Equal(t, 1, view.AccessibleCount)
	assert.True(t, view.Services["admisiones"].CanAccess)
	assert.False(t, view.Services["inventario"].CanAccess, "no grant")
	assert.False(t, view.Services["documentos"].CanAccess, "insufficient level")
	assert.NotContains(t, view.Services, "retired-module")
	assert.Equal(t, LevelStrategic, view.Services["documentos"].RequiredLevel)
}

func TestDeriveAction(t *testing.T) {
	active := &Grant{Granted: true}
	inactive := &Grant{Granted: false}

	assert.Equal(t, ActionCreate, DeriveAction(nil, true))
	assert.Equal(t, ActionCreate, DeriveAction(nil, false))
	assert.Equal(t, ActionDeactivate, DeriveAction(active, false))
	assert.Equal(t, ActionReactivate, DeriveAction(inactive, true))
	assert.Equal(t, ActionUpdate, DeriveAction(active, true))
	assert.Equal(t, ActionUpdate, DeriveAction(inactive, false))
}

func TestParseLevel(t *testing.T) {
	for _, code := range []string{"operational", "tactical", "strategic"} {
		level, err := ParseLevel(code)
		require.NoError(t, err)
		assert.Equal(t, code, level.String())
	}
	_, err := ParseLevel("Tactical")
	assert.ErrorIs(t, err, ErrUnknownRole, "level codes are exact, not case-folded")
}
