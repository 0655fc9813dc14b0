package types

import "strings"

// Role is the authorization level attached to a permission record.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Roles lists every role a permission record may carry.
var Roles = []Role{RoleAdmin, RoleUser}

// ParseRole maps a case-insensitive role name onto a known Role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Valid reports whether r is one of the seeded roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Permission is the role record a user points at.
// Rows are seeded by migrations and treated as reference data.
type Permission struct {
	// ID is the unique identifier of the permission.
	ID string `json:"id" db:"id"`

	// Role is the enumerated role name.
	Role Role `json:"role" db:"role"`
}
