package authz

import "fmt"

// Evaluate decides the access outcome for one user role on one service.
// An absent grant counts as not granted. Access requires both the
// explicit grant and sufficient hierarchy: a grant survives a role
// downgrade in storage but stops opening the service, and seniority
// alone never grants access without a recorded decision.
func Evaluate(role Role, service Service, grant *Grant) (Decision, error) {
	if !role.Level.Valid() {
		return Decision{}, fmt.Errorf("%w: role %q has level %d", ErrUnknownRole, role.ID, role.Level)
	}
	if service.Key == "" || !service.MinimumLevel.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownService, service.Key)
	}
	d := Decision{
		HasPermission: grant != nil && grant.Granted,
		HasHierarchy:  role.Level.AtLeast(service.MinimumLevel),
	}
	d.CanAccess = d.HasPermission && d.HasHierarchy
	return d, nil
}

// EvaluateAll maps Evaluate over the whole catalog, producing the
// per-service breakdown the permission screens render. Deterministic
// for identical inputs; grants for keys outside the catalog are
// ignored rather than rejected, stale rows must not break the view.
func EvaluateAll(userID int64, role Role, services []Service, grants []Grant) (PermissionView, error) {
	byKey := make(map[string]*Grant, len(grants))
	for i := range grants {
		byKey[grants[i].ServiceKey] = &grants[i]
	}
	view := PermissionView{
		UserID:   userID,
		RoleID:   role.ID,
		Level:    role.Level,
		Services: make(map[string]ServiceDecision, len(services)),
	}
	for _, svc := range services {
		decision, err := Evaluate(role, svc, byKey[svc.Key])
		if err != nil {
			return PermissionView{}, err
		}
		view.Services[svc.Key] = ServiceDecision{
			Decision:      decision,
			ServiceName:   svc.Name,
			RequiredLevel: svc.MinimumLevel,
		}
		if decision.CanAccess {
			view.AccessibleCount++
		}
	}
	return view, nil
}

// DeriveAction classifies a grant mutation for the audit log.
func DeriveAction(previous *Grant, granted bool) AuditAction {
	switch {
	case previous == nil:
		return ActionCreate
	case previous.Granted && !granted:
		return ActionDeactivate
	case !previous.Granted && granted:
		return ActionReactivate
	default:
		return ActionUpdate
	}
}
