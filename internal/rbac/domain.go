package rbac

import (
	"fmt"
	"strings"
)

// Role is a coarse-grained identity classification. The set of roles is
// closed; introducing a new role requires a new build.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Roles lists every defined role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleModerator, RoleUser}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a raw string into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("rbac: unknown role %q", raw)
	}
	return role, nil
}

// Permission is a fine-grained action tag. Permissions are never granted to
// users directly; they are derived from the role via Permissions().
type Permission string

const (
	PermReadUsers       Permission = "read:users"
	PermWriteUsers      Permission = "write:users"
	PermDeleteUsers     Permission = "delete:users"
	PermManageRoles     Permission = "manage:roles"
	PermReadContent     Permission = "read:content"
	PermWriteContent    Permission = "write:content"
	PermDeleteContent   Permission = "delete:content"
	PermModerateContent Permission = "moderate:content"
	PermManageSettings  Permission = "manage:settings"
	PermViewDashboard   Permission = "view:dashboard"
	PermViewReports     Permission = "view:reports"
)

func (p Permission) String() string {
	return string(p)
}

// rolePermissions is the single source of truth for permission derivation.
// Every role has a non-empty entry.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermReadUsers,
		PermWriteUsers,
		PermDeleteUsers,
		PermManageRoles,
		PermReadContent,
		PermWriteContent,
		PermDeleteContent,
		PermModerateContent,
		PermManageSettings,
		PermViewDashboard,
		PermViewReports,
	},
	RoleModerator: {
		PermReadUsers,
		PermModerateContent,
		PermReadContent,
		PermWriteContent,
		PermViewDashboard,
		PermViewReports,
	},
	RoleUser: {
		PermReadContent,
		PermViewDashboard,
	},
}

// Permissions returns a copy of the permission set for role. Unknown roles
// yield nil.
func Permissions(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Grants reports whether role carries the given permission.
func Grants(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// GrantsAll reports whether role carries every listed permission. An empty
// list is trivially satisfied.
func GrantsAll(role Role, perms []Permission) bool {
	for _, p := range perms {
		if !Grants(role, p) {
			return false
		}
	}
	return true
}
