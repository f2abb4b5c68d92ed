// Package identity wraps the hosted authentication provider. The provider is
// an external collaborator: this package only consumes its contract and never
// makes authorization decisions itself.
package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials indicates a rejected email/password pair.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrNoSession indicates no session is currently established.
	ErrNoSession = errors.New("identity: no active session")
	// ErrEmailTaken indicates registration with an already-known email.
	ErrEmailTaken = errors.New("identity: email already registered")
)

// Account is the provider's view of a registered identity.
type Account struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Session is an authenticated grant for one account.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Account      Account   `json:"account"`
}

// Expired reports whether the session's grant has lapsed.
func (s *Session) Expired() bool {
	return s != nil && !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Event classifies auth state changes published by a provider.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// StateChangeFunc receives auth state change notifications. The session is
// nil for EventSignedOut.
type StateChangeFunc func(event Event, session *Session)

// Provider is the identity-provider contract consumed by the auth store.
type Provider interface {
	// SignInWithPassword authenticates the given credentials and establishes
	// a session.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp registers a new identity. Metadata travels with the account and
	// is opaque to the provider.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Account, error)
	// SignOut revokes the current session.
	SignOut(ctx context.Context) error
	// Session returns the current session, or ErrNoSession.
	Session(ctx context.Context) (*Session, error)
	// Account returns the account behind the current session.
	Account(ctx context.Context) (*Account, error)
	// OnStateChange registers a listener. The returned function removes it.
	OnStateChange(fn StateChangeFunc) (unsubscribe func())
}

// emitter fans auth state changes out to registered listeners. Providers
// embed it; events originate from the provider's own operations, so listeners
// run on the calling goroutine in registration order.
type emitter struct {
	mu        sync.Mutex
	listeners map[int]StateChangeFunc
	nextID    int
}

func (e *emitter) OnStateChange(fn StateChangeFunc) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]StateChangeFunc)
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *emitter) emit(event Event, session *Session) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]StateChangeFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(event, session)
	}
}
