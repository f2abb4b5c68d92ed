package users_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/users"
)

type stubRepo struct {
	users []users.User
	err   error
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]users.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users, nil
}

type stubUpdater struct {
	targetID uuid.UUID
	role     rbac.Role
	err      error
}

func (s *stubUpdater) UpdateUserRole(ctx context.Context, targetID uuid.UUID, newRole rbac.Role) error {
	if s.err != nil {
		return s.err
	}
	s.targetID = targetID
	s.role = newRole
	return nil
}

func newRouter(repo *stubRepo, updater *stubUpdater) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := users.NewHandler(logger, users.NewService(repo), updater)
	r := chi.NewRouter()
	r.Route("/users", handler.MountRoutes)
	return r
}

func TestListUsers(t *testing.T) {
	repo := &stubRepo{users: []users.User{
		{ID: uuid.New(), Email: "admin@example.com", Role: rbac.RoleAdmin, CreatedAt: time.Now()},
		{ID: uuid.New(), Email: "op@example.com", Role: rbac.RoleUser, CreatedAt: time.Now()},
	}}
	router := newRouter(repo, &stubUpdater{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "admin@example.com")
	assert.Contains(t, rr.Body.String(), "op@example.com")
}

func TestUpdateRole(t *testing.T) {
	updater := &stubUpdater{}
	router := newRouter(&stubRepo{}, updater)
	targetID := uuid.New()

	body := strings.NewReader(`{"role": "moderator"}`)
	req := httptest.NewRequest(http.MethodPut, "/users/"+targetID.String()+"/role", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, targetID, updater.targetID)
	assert.Equal(t, rbac.RoleModerator, updater.role)
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	router := newRouter(&stubRepo{}, &stubUpdater{})

	body := strings.NewReader(`{"role": "superuser"}`)
	req := httptest.NewRequest(http.MethodPut, "/users/"+uuid.NewString()+"/role", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateRoleSurfacesBackendFailure(t *testing.T) {
	updater := &stubUpdater{err: errors.New("permission denied")}
	router := newRouter(&stubRepo{}, updater)

	body := strings.NewReader(`{"role": "admin"}`)
	req := httptest.NewRequest(http.MethodPut, "/users/"+uuid.NewString()+"/role", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestUpdateRoleRejectsBadID(t *testing.T) {
	router := newRouter(&stubRepo{}, &stubUpdater{})

	body := strings.NewReader(`{"role": "admin"}`)
	req := httptest.NewRequest(http.MethodPut, "/users/not-a-uuid/role", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
