// Package guard decides whether a navigation attempt may proceed, based on
// the current auth state.
package guard

import (
	"context"
	"log/slog"

	"github.com/gatehouse-app/gatehouse/internal/auth"
	"github.com/gatehouse-app/gatehouse/internal/observability"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// Decision is the terminal outcome of one guard evaluation.
type Decision int

const (
	// DecisionChecking means no decision can be made yet: the store is
	// still resolving the initial session.
	DecisionChecking Decision = iota
	// DecisionAllow admits the attempt.
	DecisionAllow
	// DecisionRedirectLogin sends an unauthenticated caller to login,
	// carrying the originally attempted location.
	DecisionRedirectLogin
	// DecisionRedirectUnauthorized rejects an authenticated caller that
	// lacks the required roles or permissions.
	DecisionRedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionChecking:
		return "checking"
	case DecisionAllow:
		return "allow"
	case DecisionRedirectLogin:
		return "redirect_login"
	case DecisionRedirectUnauthorized:
		return "redirect_unauthorized"
	}
	return "unknown"
}

// Requirement describes what a route demands. Roles are checked remotely
// against the backend's own role function; permissions are checked locally
// against the already-resolved role, and all listed permissions must hold.
type Requirement struct {
	Roles       []rbac.Role
	Permissions []rbac.Permission
}

// AuthState is the slice of the auth store the guard consults. Role checks
// are asynchronous and authoritative; permission checks are synchronous and
// local. Both asymmetries are deliberate: permissions are a pure function of
// the resolved role, while role membership must not trust a stale cache.
type AuthState interface {
	IsLoading() bool
	CurrentUser() *auth.User
	HasPermission(p rbac.Permission) bool
	HasAnyRole(ctx context.Context, candidates ...rbac.Role) bool
}

// Guard evaluates requirements against an auth state.
type Guard struct {
	state   AuthState
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New constructs a Guard. Metrics may be nil.
func New(state AuthState, logger *slog.Logger, metrics *observability.Metrics) *Guard {
	return &Guard{state: state, logger: logger, metrics: metrics}
}

// Evaluate classifies one attempt. The remote role check suspends the caller
// while in flight; callers observing the guard from outside see it as still
// checking until Evaluate returns. Denials are never errors: any failure
// inside the checks resolves to a redirect, not an allow.
func (g *Guard) Evaluate(ctx context.Context, req Requirement) Decision {
	decision := g.evaluate(ctx, req)
	g.metrics.RecordGuardDecision(decision.String())
	return decision
}

func (g *Guard) evaluate(ctx context.Context, req Requirement) Decision {
	if g.state.IsLoading() {
		return DecisionChecking
	}
	user := g.state.CurrentUser()
	if user == nil {
		return DecisionRedirectLogin
	}
	if len(req.Roles) > 0 {
		if !g.state.HasAnyRole(ctx, req.Roles...) {
			g.logger.Info("guard denied on roles",
				slog.String("user_id", user.ID.String()),
				slog.Any("required_roles", req.Roles))
			return DecisionRedirectUnauthorized
		}
	}
	if len(req.Permissions) > 0 {
		if missing := g.missingPermissions(req.Permissions); len(missing) > 0 {
			g.logger.Info("guard denied on permissions",
				slog.String("user_id", user.ID.String()),
				slog.Any("missing_permissions", missing))
			return DecisionRedirectUnauthorized
		}
	}
	return DecisionAllow
}

// missingPermissions returns the required permissions the current user lacks.
// The check is conjunctive: one missing permission denies the attempt.
func (g *Guard) missingPermissions(required []rbac.Permission) []rbac.Permission {
	var missing []rbac.Permission
	for _, p := range required {
		if !g.state.HasPermission(p) {
			missing = append(missing, p)
		}
	}
	return missing
}
