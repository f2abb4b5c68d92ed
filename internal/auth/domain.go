package auth

import (
	"github.com/google/uuid"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// User is the application-level view of a resolved session. Permissions are
// always derived from Role via the permission table, never stored on their
// own. The auth Store owns the value; everything else only reads it.
type User struct {
	ID          uuid.UUID         `json:"id"`
	Email       string            `json:"email"`
	Role        rbac.Role         `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// HasPermission reports whether the user's derived permission set contains p.
func (u *User) HasPermission(p rbac.Permission) bool {
	if u == nil {
		return false
	}
	for _, perm := range u.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// clone returns a defensive copy so callers cannot mutate store state.
func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Permissions = make([]rbac.Permission, len(u.Permissions))
	copy(out.Permissions, u.Permissions)
	if u.Metadata != nil {
		out.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
