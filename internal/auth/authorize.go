package auth

import "vedarc.org/internal/domain"

// Principal represents an authenticated caller with permissions resolved from its role.
type Principal struct {
	Subject     string
	Role        domain.Role
	SessionID   string
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with the role's builtin permissions.
func NewPrincipal(subject string, role domain.Role) Principal {
	perms := RolePermissions[role]
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{Subject: subject, Role: role, Permissions: set}
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}
