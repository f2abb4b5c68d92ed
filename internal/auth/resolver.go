package auth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gatehouse-app/gatehouse/internal/identity"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/roles"
)

// Resolver turns a provider session into an application User. Lookup
// failures never propagate: any failure resolves to a nil user, which
// downstream code treats as signed out.
type Resolver struct {
	roles    roles.Store
	cache    *RoleCache
	snapshot *SnapshotStore
	logger   *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(roleStore roles.Store, cache *RoleCache, snapshot *SnapshotStore, logger *slog.Logger) *Resolver {
	return &Resolver{roles: roleStore, cache: cache, snapshot: snapshot, logger: logger}
}

// Resolve produces the User for the given session. A nil session clears the
// role cache and yields a nil user. A user whose role cannot be determined
// is treated as no user at all.
func (r *Resolver) Resolve(ctx context.Context, session *identity.Session) *User {
	if session == nil {
		r.cache.Clear()
		return nil
	}

	role, ok := r.lookupRole(ctx, session.Account.ID)
	if !ok {
		r.logger.Warn("no role found for user", slog.String("user_id", session.Account.ID.String()))
		return nil
	}

	user := &User{
		ID:          session.Account.ID,
		Email:       session.Account.Email,
		Role:        role,
		Permissions: rbac.Permissions(role),
		Metadata:    session.Account.Metadata,
	}

	if err := r.snapshot.Write(ctx, user); err != nil {
		r.logger.Warn("write snapshot", slog.Any("error", err))
	}
	return user
}

// lookupRole consults the cache first; only a miss goes remote. Only a
// successful remote lookup populates the cache.
func (r *Resolver) lookupRole(ctx context.Context, userID uuid.UUID) (rbac.Role, bool) {
	if role, ok := r.cache.Get(userID); ok {
		return role, true
	}
	role, err := r.roles.UserRole(ctx, userID)
	if err != nil {
		r.logger.Warn("fetch user role", slog.String("user_id", userID.String()), slog.Any("error", err))
		return "", false
	}
	r.cache.Put(userID, role)
	return role, true
}
