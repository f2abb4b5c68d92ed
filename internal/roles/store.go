// Package roles talks to the backend's role tables and privileged role
// functions. Role membership lives server-side; this package never decides
// roles locally.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// ErrNoRole indicates the backend has no role row for the user.
var ErrNoRole = errors.New("roles: no role assigned")

// Store is the remote role-store contract.
type Store interface {
	// UserRole returns the role assigned to userID, or ErrNoRole.
	UserRole(ctx context.Context, userID uuid.UUID) (rbac.Role, error)
	// CurrentRole returns the caller's role as determined by the backend's
	// own role function.
	CurrentRole(ctx context.Context, userID uuid.UUID) (rbac.Role, error)
	// HasRole asks the backend whether userID holds the given role.
	HasRole(ctx context.Context, userID uuid.UUID, role rbac.Role) (bool, error)
	// UpdateUserRole is a privileged mutation of the target's role.
	UpdateUserRole(ctx context.Context, targetID uuid.UUID, role rbac.Role) error
	// AutoVerify marks a freshly registered account as verified.
	AutoVerify(ctx context.Context, userID uuid.UUID) error
}

// PGStore implements Store against the backend Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore on the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// UserRole reads the user_roles table directly.
func (s *PGStore) UserRole(ctx context.Context, userID uuid.UUID) (rbac.Role, error) {
	const query = `SELECT role FROM user_roles WHERE user_id = $1`
	var raw string
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoRole
		}
		return "", fmt.Errorf("roles: fetch role: %w", err)
	}
	return rbac.ParseRole(raw)
}

// CurrentRole calls the backend's get_user_role function.
func (s *PGStore) CurrentRole(ctx context.Context, userID uuid.UUID) (rbac.Role, error) {
	const query = `SELECT get_user_role($1)`
	var raw *string
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&raw); err != nil {
		return "", fmt.Errorf("roles: get_user_role: %w", err)
	}
	if raw == nil || *raw == "" {
		return "", ErrNoRole
	}
	return rbac.ParseRole(*raw)
}

// HasRole calls the backend's has_role function.
func (s *PGStore) HasRole(ctx context.Context, userID uuid.UUID, role rbac.Role) (bool, error) {
	const query = `SELECT has_role($1, $2)`
	var ok bool
	if err := s.pool.QueryRow(ctx, query, userID, role.String()).Scan(&ok); err != nil {
		return false, fmt.Errorf("roles: has_role: %w", err)
	}
	return ok, nil
}

// UpdateUserRole calls the privileged update_user_role function.
func (s *PGStore) UpdateUserRole(ctx context.Context, targetID uuid.UUID, role rbac.Role) error {
	if !role.Valid() {
		return fmt.Errorf("roles: unknown role %q", role)
	}
	const query = `SELECT update_user_role($1, $2)`
	if _, err := s.pool.Exec(ctx, query, targetID, role.String()); err != nil {
		return fmt.Errorf("roles: update_user_role: %w", err)
	}
	return nil
}

// AutoVerify calls the backend's auto_verify_email function.
func (s *PGStore) AutoVerify(ctx context.Context, userID uuid.UUID) error {
	const query = `SELECT auto_verify_email($1)`
	if _, err := s.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("roles: auto_verify_email: %w", err)
	}
	return nil
}

// CountOrphanAssignments counts role rows whose account no longer exists.
func (s *PGStore) CountOrphanAssignments(ctx context.Context) (int64, error) {
	const query = `SELECT count(*) FROM user_roles ur LEFT JOIN accounts a ON a.id = ur.user_id WHERE a.id IS NULL`
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("roles: count orphan assignments: %w", err)
	}
	return n, nil
}

// CountUnassignedAccounts counts accounts that never received a role row.
func (s *PGStore) CountUnassignedAccounts(ctx context.Context) (int64, error) {
	const query = `SELECT count(*) FROM accounts a LEFT JOIN user_roles ur ON ur.user_id = a.id WHERE ur.user_id IS NULL`
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("roles: count unassigned accounts: %w", err)
	}
	return n, nil
}

var _ Store = (*PGStore)(nil)
