package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// PGRepository implements RepositoryPort against the backend Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListUsers returns all accounts joined with their role rows, ordered by
// email. Accounts without a role row appear with an empty role.
func (r *PGRepository) ListUsers(ctx context.Context) ([]User, error) {
	const query = `
		SELECT a.id, a.email, COALESCE(ur.role, ''), a.created_at
		FROM accounts a
		LEFT JOIN user_roles ur ON ur.user_id = a.id
		ORDER BY a.email`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			user User
			raw  string
		)
		if err := rows.Scan(&user.ID, &user.Email, &raw, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		if raw != "" {
			if role, err := rbac.ParseRole(raw); err == nil {
				user.Role = role
			}
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: iterate: %w", err)
	}
	return out, nil
}

var _ RepositoryPort = (*PGRepository)(nil)
