package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-app/gatehouse/internal/auth"
	"github.com/gatehouse-app/gatehouse/internal/identity"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

func newAuthServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	require.NoError(t, f.store.Start(context.Background()))

	r := chi.NewRouter()
	r.Route("/auth", auth.NewHandler(testLogger(), f.store, nil).MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeState(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestHandlerLogin(t *testing.T) {
	f, srv := newAuthServer(t)
	f.registerUser(t, "op@example.com", rbac.RoleModerator)

	resp := postJSON(t, srv.URL+"/auth/login", `{"email":"op@example.com","password":"hunter2-long"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeState(t, resp)
	assert.Equal(t, "moderator", payload["role"])
	user, ok := payload["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "op@example.com", user["email"])
	assert.Equal(t, false, payload["is_loading"])
}

func TestHandlerLoginRejectsBadCredentials(t *testing.T) {
	f, srv := newAuthServer(t)
	f.registerUser(t, "op@example.com", rbac.RoleUser)

	resp := postJSON(t, srv.URL+"/auth/login", `{"email":"op@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, f.store.CurrentUser())
}

func TestHandlerLoginValidation(t *testing.T) {
	_, srv := newAuthServer(t)

	resp := postJSON(t, srv.URL+"/auth/login", `{"email":"not-an-email","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/auth/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerRegister(t *testing.T) {
	f, srv := newAuthServer(t)

	resp := postJSON(t, srv.URL+"/auth/register", `{"email":"new@example.com","password":"hunter2-long"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Role defaults to user and is published immediately.
	payload := decodeState(t, resp)
	assert.Equal(t, "user", payload["role"])
	require.NotNil(t, f.store.CurrentUser())
	assert.Equal(t, rbac.RoleUser, f.store.CurrentRole())
}

func TestHandlerRegisterRejectsUnknownRole(t *testing.T) {
	_, srv := newAuthServer(t)

	resp := postJSON(t, srv.URL+"/auth/register", `{"email":"new@example.com","password":"hunter2-long","role":"superadmin"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerRegisterDuplicateEmail(t *testing.T) {
	f, srv := newAuthServer(t)
	f.provider.signUpErr = identity.ErrEmailTaken

	resp := postJSON(t, srv.URL+"/auth/register", `{"email":"taken@example.com","password":"hunter2-long"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerLogoutAndMe(t *testing.T) {
	f, srv := newAuthServer(t)
	f.registerUser(t, "op@example.com", rbac.RoleUser)

	resp := postJSON(t, srv.URL+"/auth/login", `{"email":"op@example.com","password":"hunter2-long"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	me, err := http.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	defer me.Body.Close()
	require.Equal(t, http.StatusOK, me.StatusCode)

	logout := postJSON(t, srv.URL+"/auth/logout", "")
	require.Equal(t, http.StatusNoContent, logout.StatusCode)

	me, err = http.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	defer me.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, me.StatusCode)
}

func TestHandlerRefresh(t *testing.T) {
	f, srv := newAuthServer(t)
	f.registerUser(t, "op@example.com", rbac.RoleAdmin)

	resp := postJSON(t, srv.URL+"/auth/login", `{"email":"op@example.com","password":"hunter2-long"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	refreshed := postJSON(t, srv.URL+"/auth/refresh", "")
	require.Equal(t, http.StatusOK, refreshed.StatusCode)
	payload := decodeState(t, refreshed)
	assert.Equal(t, "admin", payload["role"])
}
