package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-app/gatehouse/internal/identity"
)

func newStubAPI(t *testing.T) (*httptest.Server, uuid.UUID) {
	t.Helper()
	accountID := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if r.URL.Query().Get("grant_type") == "password" && body["password"] != "hunter2-long" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "token-abc",
			"refresh_token": "refresh-abc",
			"expires_in":    3600,
			"user": map[string]any{
				"id":            accountID.String(),
				"email":         "op@example.com",
				"user_metadata": map[string]any{"full_name": "Op"},
			},
		})
	})
	mux.HandleFunc("POST /signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] == "taken@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            accountID.String(),
			"email":         body["email"],
			"user_metadata": body["data"],
		})
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, accountID
}

func TestClientSignInWithPassword(t *testing.T) {
	server, accountID := newStubAPI(t)
	client := identity.NewClient(server.URL, "anon-key")

	events := make([]identity.Event, 0, 1)
	unsubscribe := client.OnStateChange(func(event identity.Event, _ *identity.Session) {
		events = append(events, event)
	})
	defer unsubscribe()

	session, err := client.SignInWithPassword(context.Background(), "op@example.com", "hunter2-long")
	require.NoError(t, err)
	assert.Equal(t, "token-abc", session.AccessToken)
	assert.Equal(t, accountID, session.Account.ID)
	assert.False(t, session.Expired())
	assert.Equal(t, []identity.Event{identity.EventSignedIn}, events)

	cached, err := client.Session(context.Background())
	require.NoError(t, err)
	assert.Same(t, session, cached)
}

func TestClientSignInRejected(t *testing.T) {
	server, _ := newStubAPI(t)
	client := identity.NewClient(server.URL, "anon-key")

	_, err := client.SignInWithPassword(context.Background(), "op@example.com", "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = client.Session(context.Background())
	assert.ErrorIs(t, err, identity.ErrNoSession)
}

func TestClientSignUpTakenEmail(t *testing.T) {
	server, _ := newStubAPI(t)
	client := identity.NewClient(server.URL, "anon-key")

	_, err := client.SignUp(context.Background(), "taken@example.com", "hunter2-long", nil)
	assert.ErrorIs(t, err, identity.ErrEmailTaken)
}

func TestClientSignOutClearsSession(t *testing.T) {
	server, _ := newStubAPI(t)
	client := identity.NewClient(server.URL, "anon-key")

	_, err := client.SignInWithPassword(context.Background(), "op@example.com", "hunter2-long")
	require.NoError(t, err)

	var lastEvent identity.Event
	unsubscribe := client.OnStateChange(func(event identity.Event, session *identity.Session) {
		lastEvent = event
		assert.Nil(t, session)
	})
	defer unsubscribe()

	require.NoError(t, client.SignOut(context.Background()))
	assert.Equal(t, identity.EventSignedOut, lastEvent)

	_, err = client.Session(context.Background())
	assert.ErrorIs(t, err, identity.ErrNoSession)
}
