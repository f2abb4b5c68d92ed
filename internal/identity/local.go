package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const localSessionTTL = 12 * time.Hour

// LocalProvider is a self-hosted Provider backed by Postgres, used for
// development and integration environments where the hosted API is not
// reachable. Accounts live in the accounts table, sessions in
// identity_sessions.
type LocalProvider struct {
	emitter

	pool *pgxpool.Pool

	mu      sync.Mutex
	current *Session
}

// NewLocalProvider constructs a LocalProvider on top of the given pool.
func NewLocalProvider(pool *pgxpool.Pool) *LocalProvider {
	return &LocalProvider{pool: pool}
}

// SignInWithPassword verifies credentials against the accounts table and
// records a session row.
func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	const query = `SELECT id, email, password_hash, metadata, created_at FROM accounts WHERE lower(email) = lower($1)`
	var (
		id          uuid.UUID
		storedEmail string
		hash        string
		rawMeta     []byte
		createdAt   time.Time
	)
	err := p.pool.QueryRow(ctx, query, email).Scan(&id, &storedEmail, &hash, &rawMeta, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("identity: find account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	metadata := map[string]any{}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &metadata); err != nil {
			return nil, fmt.Errorf("identity: decode metadata: %w", err)
		}
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(localSessionTTL)
	const insert = `INSERT INTO identity_sessions (token, account_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := p.pool.Exec(ctx, insert, token, id, expiresAt); err != nil {
		return nil, fmt.Errorf("identity: create session: %w", err)
	}

	session := &Session{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Account: Account{
			ID:        id,
			Email:     storedEmail,
			Metadata:  metadata,
			CreatedAt: createdAt,
		},
	}
	p.setCurrent(session)
	p.emit(EventSignedIn, session)
	return session, nil
}

// SignUp inserts a new account with a bcrypt password hash.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("identity: encode metadata: %w", err)
	}

	id := uuid.New()
	const insert = `INSERT INTO accounts (id, email, password_hash, metadata) VALUES ($1, $2, $3, $4) RETURNING created_at`
	var createdAt time.Time
	if err := p.pool.QueryRow(ctx, insert, id, email, string(hash), rawMeta).Scan(&createdAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("identity: create account: %w", err)
	}
	return &Account{ID: id, Email: email, Metadata: metadata, CreatedAt: createdAt}, nil
}

// SignOut deletes the current session row and drops the local copy.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	session := p.currentSession()
	if session == nil {
		return nil
	}
	const del = `DELETE FROM identity_sessions WHERE token = $1`
	if _, err := p.pool.Exec(ctx, del, session.AccessToken); err != nil {
		return fmt.Errorf("identity: delete session: %w", err)
	}
	p.setCurrent(nil)
	p.emit(EventSignedOut, nil)
	return nil
}

// Session returns the current session if it is still valid server-side.
func (p *LocalProvider) Session(ctx context.Context) (*Session, error) {
	session := p.currentSession()
	if session == nil {
		return nil, ErrNoSession
	}
	const query = `SELECT expires_at FROM identity_sessions WHERE token = $1`
	var expiresAt time.Time
	if err := p.pool.QueryRow(ctx, query, session.AccessToken).Scan(&expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			p.setCurrent(nil)
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("identity: load session: %w", err)
	}
	if time.Now().After(expiresAt) {
		p.setCurrent(nil)
		return nil, ErrNoSession
	}
	return session, nil
}

// Account returns the account behind the current session.
func (p *LocalProvider) Account(ctx context.Context) (*Account, error) {
	session, err := p.Session(ctx)
	if err != nil {
		return nil, err
	}
	account := session.Account
	return &account, nil
}

// DeleteExpiredSessions removes session rows whose expiry has passed and
// reports how many were deleted.
func (p *LocalProvider) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	const del = `DELETE FROM identity_sessions WHERE expires_at < $1`
	tag, err := p.pool.Exec(ctx, del, before)
	if err != nil {
		return 0, fmt.Errorf("identity: sweep sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *LocalProvider) currentSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *LocalProvider) setCurrent(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
}

var _ Provider = (*LocalProvider)(nil)
