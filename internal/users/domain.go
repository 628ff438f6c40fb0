package users

import "time"

// User represents a portal account as the admin screens see it.
type User struct {
	ID        int64
	Email     string
	Name      string
	RoleID    string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
