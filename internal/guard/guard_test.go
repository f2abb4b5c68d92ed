package guard_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-app/gatehouse/internal/auth"
	"github.com/gatehouse-app/gatehouse/internal/guard"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// stubState fakes the auth store so decisions can be exercised without a
// provider or backend.
type stubState struct {
	loading    bool
	user       *auth.User
	anyRole    bool
	anyRoleErr bool
}

func (s *stubState) IsLoading() bool { return s.loading }

func (s *stubState) CurrentUser() *auth.User { return s.user }

func (s *stubState) HasPermission(p rbac.Permission) bool {
	return s.user.HasPermission(p)
}

func (s *stubState) HasAnyRole(ctx context.Context, candidates ...rbac.Role) bool {
	if s.anyRoleErr || s.user == nil || len(candidates) == 0 {
		return false
	}
	return s.anyRole
}

func userWithRole(role rbac.Role) *auth.User {
	return &auth.User{
		ID:          uuid.New(),
		Email:       "op@example.com",
		Role:        role,
		Permissions: rbac.Permissions(role),
	}
}

func newGuard(state *stubState) *guard.Guard {
	return guard.New(state, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestEvaluateCheckingWhileLoading(t *testing.T) {
	g := newGuard(&stubState{loading: true, user: userWithRole(rbac.RoleAdmin), anyRole: true})

	// Loading dominates every other input.
	decision := g.Evaluate(context.Background(), guard.Requirement{Roles: []rbac.Role{rbac.RoleAdmin}})
	assert.Equal(t, guard.DecisionChecking, decision)
}

func TestEvaluateRedirectLoginWhenSignedOut(t *testing.T) {
	g := newGuard(&stubState{})
	decision := g.Evaluate(context.Background(), guard.Requirement{})
	assert.Equal(t, guard.DecisionRedirectLogin, decision)
}

func TestEvaluateRoleCheckIsAuthoritative(t *testing.T) {
	// Local state says "user"; the remote check rejects "admin".
	g := newGuard(&stubState{user: userWithRole(rbac.RoleUser), anyRole: false})
	decision := g.Evaluate(context.Background(), guard.Requirement{Roles: []rbac.Role{rbac.RoleAdmin}})
	assert.Equal(t, guard.DecisionRedirectUnauthorized, decision)
}

func TestEvaluatePermissionsAreConjunctive(t *testing.T) {
	// Moderator holds view:dashboard but not manage:settings.
	g := newGuard(&stubState{user: userWithRole(rbac.RoleModerator)})
	decision := g.Evaluate(context.Background(), guard.Requirement{
		Permissions: []rbac.Permission{rbac.PermViewDashboard, rbac.PermManageSettings},
	})
	assert.Equal(t, guard.DecisionRedirectUnauthorized, decision)
}

func TestEvaluateAllowWithNoRequirements(t *testing.T) {
	g := newGuard(&stubState{user: userWithRole(rbac.RoleUser)})
	decision := g.Evaluate(context.Background(), guard.Requirement{})
	assert.Equal(t, guard.DecisionAllow, decision)
}

func TestEvaluateAllowWithSatisfiedRequirements(t *testing.T) {
	g := newGuard(&stubState{user: userWithRole(rbac.RoleAdmin), anyRole: true})
	decision := g.Evaluate(context.Background(), guard.Requirement{
		Roles:       []rbac.Role{rbac.RoleAdmin},
		Permissions: []rbac.Permission{rbac.PermManageRoles, rbac.PermViewReports},
	})
	assert.Equal(t, guard.DecisionAllow, decision)
}

func TestEvaluateRemoteFailureDenies(t *testing.T) {
	g := newGuard(&stubState{user: userWithRole(rbac.RoleAdmin), anyRoleErr: true})
	decision := g.Evaluate(context.Background(), guard.Requirement{Roles: []rbac.Role{rbac.RoleAdmin}})
	assert.Equal(t, guard.DecisionRedirectUnauthorized, decision)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestProtectRedirectsToLoginWithFrom(t *testing.T) {
	g := newGuard(&stubState{})
	handler := g.Protect(guard.Requirement{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin/users?page=2", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	location, err := rr.Result().Location()
	require.NoError(t, err)
	assert.Equal(t, guard.LoginPath, location.Path)
	assert.Equal(t, "/admin/users?page=2", location.Query().Get(guard.FromParam))
}

func TestProtectRedirectsUnauthorizedWithDetail(t *testing.T) {
	g := newGuard(&stubState{user: userWithRole(rbac.RoleModerator)})
	handler := g.RequirePermissions(rbac.PermViewDashboard, rbac.PermManageSettings)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	location, err := rr.Result().Location()
	require.NoError(t, err)
	assert.Equal(t, guard.UnauthorizedPath, location.Path)
	assert.Equal(t, "manage:settings", location.Query().Get("missing_permissions"))
}

func TestProtectRespondsUnavailableWhileChecking(t *testing.T) {
	g := newGuard(&stubState{loading: true})
	handler := g.Protect(guard.Requirement{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestProtectAllowsSatisfiedRequest(t *testing.T) {
	g := newGuard(&stubState{user: userWithRole(rbac.RoleAdmin), anyRole: true})
	handler := g.RequireRoles(rbac.RoleAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
