package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-app/gatehouse/internal/identity"
	"github.com/gatehouse-app/gatehouse/internal/rbac"
	"github.com/gatehouse-app/gatehouse/internal/roles"
)

// State is the read-only view published to subscribers. User and Role always
// change together: a user whose role cannot be resolved is no user at all.
type State struct {
	User    *User
	Role    rbac.Role
	Loading bool
}

// Store is the process-wide holder of the current auth state. It owns the
// role cache, the persisted snapshot and the session resolver, and it is the
// only writer of {user, role}.
//
// Every state write fully replaces the pair, so concurrent operations
// converge on the last write. In-flight checks are not cancelled by newer
// ones; this is an accepted simplification for single-operator flows.
type Store struct {
	provider identity.Provider
	roles    roles.Store
	cache    *RoleCache
	snapshot *SnapshotStore
	resolver *Resolver
	logger   *slog.Logger

	mu      sync.Mutex
	user    *User
	role    rbac.Role
	loading bool

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextSubID   int

	eventCtx    context.Context
	unsubscribe func()
	started     bool
	closed      bool
}

// NewStore constructs a Store and synchronously seeds it from the persisted
// snapshot. Seeded state is provisional: Loading stays true until the first
// explicit session check in Start completes.
func NewStore(ctx context.Context, provider identity.Provider, roleStore roles.Store, redisClient *redis.Client, logger *slog.Logger) *Store {
	cache := NewRoleCache()
	snapshot := NewSnapshotStore(redisClient, 0)
	s := &Store{
		provider:    provider,
		roles:       roleStore,
		cache:       cache,
		snapshot:    snapshot,
		resolver:    NewResolver(roleStore, cache, snapshot, logger),
		logger:      logger,
		loading:     true,
		subscribers: make(map[int]func(State)),
	}

	user, role, err := snapshot.Read(ctx)
	switch {
	case err == nil:
		s.user = user
		s.role = role
	case errors.Is(err, ErrNoSnapshot):
		// Cold start with no snapshot is the normal first run.
	default:
		logger.Warn("seed from snapshot", slog.Any("error", err))
	}
	return s
}

// Start subscribes to provider state changes and performs the initial
// explicit session check. Loading clears only after that check, regardless
// of its outcome.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("auth: store already started")
	}
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("auth: store closed")
	}
	s.started = true
	s.eventCtx = ctx
	s.mu.Unlock()

	s.unsubscribe = s.provider.OnStateChange(s.handleProviderEvent)
	s.RefreshSession(ctx)
	s.setLoading(false)
	return nil
}

// Close tears down the provider subscription and drops all subscribers.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.subMu.Lock()
	s.subscribers = make(map[int]func(State))
	s.subMu.Unlock()
}

// Subscribe registers fn to receive every state publication. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

// SignIn authenticates against the provider, pre-warms the role cache, and
// publishes the resolved user. Provider errors surface to the caller;
// Loading clears in every path.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}

	// Pre-warm so resolution does not pay a second remote round-trip.
	if role, err := s.roles.UserRole(ctx, session.Account.ID); err == nil {
		s.cache.Put(session.Account.ID, role)
	} else {
		s.logger.Warn("pre-warm role cache", slog.Any("error", err))
	}

	s.applySession(ctx, session)
	return nil
}

// SignUp registers an identity, attempts auto-verification (non-fatal),
// signs the new account in, and publishes the requested role locally without
// waiting for the backend to echo it. Registration and sign-in failures
// propagate.
func (s *Store) SignUp(ctx context.Context, email, password string, role rbac.Role) error {
	if !role.Valid() {
		return fmt.Errorf("auth: unknown role %q", role)
	}
	s.setLoading(true)
	defer s.setLoading(false)

	account, err := s.provider.SignUp(ctx, email, password, map[string]any{"role": role.String()})
	if err != nil {
		return err
	}

	if err := s.roles.AutoVerify(ctx, account.ID); err != nil {
		s.logger.Warn("auto verify", slog.String("user_id", account.ID.String()), slog.Any("error", err))
	}

	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}

	// Trust-on-write: publish the requested role now; the next
	// RefreshSession reconciles if the backend assigned differently. The
	// role cache is left alone since it only holds remotely confirmed
	// entries.
	user := &User{
		ID:          account.ID,
		Email:       account.Email,
		Role:        role,
		Permissions: rbac.Permissions(role),
		Metadata:    session.Account.Metadata,
	}
	if err := s.snapshot.Write(ctx, user); err != nil {
		s.logger.Warn("write snapshot", slog.Any("error", err))
	}
	s.setState(user)
	return nil
}

// SignOut revokes the session and clears all local auth state. On provider
// failure local state is left untouched and the error surfaces.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return err
	}
	s.cache.Clear()
	if err := s.snapshot.Clear(ctx); err != nil {
		s.logger.Warn("clear snapshot", slog.Any("error", err))
	}
	s.setState(nil)
	return nil
}

// RefreshSession re-reads the provider session and re-runs resolution. Any
// failure resolves to signed-out state; nothing propagates.
func (s *Store) RefreshSession(ctx context.Context) {
	session, err := s.provider.Session(ctx)
	if err != nil {
		if !errors.Is(err, identity.ErrNoSession) {
			s.logger.Warn("refresh session", slog.Any("error", err))
		}
		s.applySession(ctx, nil)
		return
	}
	s.applySession(ctx, session)
}

// HasPermission is the synchronous local check: true iff the current user's
// derived permission set contains p. No user means false, not an error.
func (s *Store) HasPermission(p rbac.Permission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.HasPermission(p)
}

// HasRole asks the backend whether the current user holds role. Local state
// is deliberately not trusted here; remote errors deny.
func (s *Store) HasRole(ctx context.Context, role rbac.Role) bool {
	userID, ok := s.currentUserID()
	if !ok {
		return false
	}
	held, err := s.roles.HasRole(ctx, userID, role)
	if err != nil {
		s.logger.Warn("check role", slog.Any("error", err))
		return false
	}
	return held
}

// HasAnyRole reports whether the backend's view of the current user's role is
// in the given set. An empty set or no user yields false; remote errors deny.
func (s *Store) HasAnyRole(ctx context.Context, candidates ...rbac.Role) bool {
	if len(candidates) == 0 {
		return false
	}
	userID, ok := s.currentUserID()
	if !ok {
		return false
	}
	current, err := s.roles.CurrentRole(ctx, userID)
	if err != nil {
		s.logger.Warn("fetch current role", slog.Any("error", err))
		return false
	}
	for _, candidate := range candidates {
		if candidate == current {
			return true
		}
	}
	return false
}

// UpdateUserRole performs the privileged remote role mutation. On success
// the target's cached role entry is invalidated, and if the target is the
// current user the whole session is refreshed.
func (s *Store) UpdateUserRole(ctx context.Context, targetID uuid.UUID, newRole rbac.Role) error {
	if err := s.roles.UpdateUserRole(ctx, targetID, newRole); err != nil {
		return err
	}
	s.cache.Forget(targetID)
	if userID, ok := s.currentUserID(); ok && userID == targetID {
		s.RefreshSession(ctx)
	}
	return nil
}

// CurrentUser returns a copy of the current user, or nil.
func (s *Store) CurrentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.clone()
}

// CurrentRole returns the locally held role; empty when signed out.
func (s *Store) CurrentRole() rbac.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// IsLoading reports whether the first explicit session check is still
// outstanding or a mutation is in flight.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// CurrentState returns a copy of the whole published state.
func (s *Store) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{User: s.user.clone(), Role: s.role, Loading: s.loading}
}

// handleProviderEvent reacts to provider state change notifications. It may
// race with an explicit operation; both fully replace state, so the later
// write wins.
func (s *Store) handleProviderEvent(event identity.Event, session *identity.Session) {
	ctx := s.eventContext()
	s.logger.Debug("auth state change", slog.String("event", string(event)))
	s.applySession(ctx, session)
}

func (s *Store) eventContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventCtx != nil {
		return s.eventCtx
	}
	return context.Background()
}

func (s *Store) applySession(ctx context.Context, session *identity.Session) {
	s.setState(s.resolver.Resolve(ctx, session))
}

// setState atomically replaces {user, role} and notifies subscribers.
func (s *Store) setState(user *User) {
	s.mu.Lock()
	s.user = user
	if user != nil {
		s.role = user.Role
	} else {
		s.role = ""
	}
	state := State{User: s.user.clone(), Role: s.role, Loading: s.loading}
	s.mu.Unlock()
	s.notify(state)
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	if s.loading == loading {
		s.mu.Unlock()
		return
	}
	s.loading = loading
	state := State{User: s.user.clone(), Role: s.role, Loading: s.loading}
	s.mu.Unlock()
	s.notify(state)
}

func (s *Store) notify(state State) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (s *Store) currentUserID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return uuid.UUID{}, false
	}
	return s.user.ID, true
}
