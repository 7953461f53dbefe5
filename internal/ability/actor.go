package ability

import "strings"

// Role is the single role an authenticated user holds.
type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// ParseRole maps a stored role name to a Role. ok is false for names
// outside the known set.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleAdmin, RoleSuperAdmin:
		return r, true
	default:
		return r, false
	}
}

// IsStaff reports whether r is ADMIN or SUPERADMIN.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Actor is the authenticated principal a policy is built for.
// CustomerID is set only for CUSTOMER actors.
type Actor struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	CustomerID *int64 `json:"customer_id,omitempty"`
}
