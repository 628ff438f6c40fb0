package authz

import (
	"fmt"
	"time"
)

// HierarchyLevel ranks organizational seniority. Levels are totally
// ordered; comparisons must use the ordinal, never the string code.
type HierarchyLevel int

const (
	// LevelOperational covers day-to-day administrative staff.
	LevelOperational HierarchyLevel = iota + 1
	// LevelTactical covers coordinators and teaching staff.
	LevelTactical
	// LevelStrategic covers direction and board members.
	LevelStrategic
)

// ParseLevel resolves a stored level code into a HierarchyLevel.
func ParseLevel(code string) (HierarchyLevel, error) {
	switch code {
	case "operational":
		return LevelOperational, nil
	case "tactical":
		return LevelTactical, nil
	case "strategic":
		return LevelStrategic, nil
	default:
		return 0, fmt.Errorf("%w: level %q", ErrUnknownRole, code)
	}
}

// String returns the stable storage code for the level.
func (l HierarchyLevel) String() string {
	switch l {
	case LevelOperational:
		return "operational"
	case LevelTactical:
		return "tactical"
	case LevelStrategic:
		return "strategic"
	default:
		return fmt.Sprintf("hierarchylevel(%d)", int(l))
	}
}

// Valid reports whether the level is one of the known ordinals.
func (l HierarchyLevel) Valid() bool {
	return l >= LevelOperational && l <= LevelStrategic
}

// AtLeast reports whether the level satisfies the given minimum.
func (l HierarchyLevel) AtLeast(min HierarchyLevel) bool {
	return l >= min
}

// Role maps a role identifier to its hierarchy level.
type Role struct {
	ID          string
	Description string
	Level       HierarchyLevel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Service is a portal module subject to independent access control.
type Service struct {
	Key          string
	Name         string
	Description  string
	MinimumLevel HierarchyLevel
}

// Grant is the current access decision for one user on one service.
// Keyed uniquely by (UserID, ServiceKey); revocation sets Granted to
// false, it never removes the row.
type Grant struct {
	UserID     int64
	ServiceKey string
	Granted    bool
	GrantedBy  int64
	GrantedAt  time.Time
	Note       string
}

// AuditAction classifies a grant mutation.
type AuditAction string

const (
	ActionCreate     AuditAction = "CREATE"
	ActionUpdate     AuditAction = "UPDATE"
	ActionDeactivate AuditAction = "DEACTIVATE"
	ActionReactivate AuditAction = "REACTIVATE"
)

// AuditEntry is the immutable record of one grant mutation.
type AuditEntry struct {
	ID            string
	UserID        int64
	ServiceKey    string
	Action        AuditAction
	ActorID       int64
	Reason        string
	Timestamp     time.Time
	PreviousState *GrantState
	NewState      GrantState
}

// GrantState is the audited snapshot of a grant's boolean value.
type GrantState struct {
	Granted bool   `json:"granted"`
	Note    string `json:"note,omitempty"`
}

// Decision is the three-valued access outcome for one user on one
// service. Denial is a normal value, never an error.
type Decision struct {
	HasPermission bool
	HasHierarchy  bool
	CanAccess     bool
}

// ServiceDecision pairs a Decision with the catalog data the UI needs
// to render it.
type ServiceDecision struct {
	Decision
	ServiceName   string
	RequiredLevel HierarchyLevel
}

// PermissionView is the full per-service breakdown for one user,
// computed fresh on every request.
type PermissionView struct {
	UserID          int64
	RoleID          string
	Level           HierarchyLevel
	Services        map[string]ServiceDecision
	AccessibleCount int
}
