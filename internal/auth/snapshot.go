package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

const (
	snapshotRoleKey = "gatehouse:snapshot:role"
	snapshotUserKey = "gatehouse:snapshot:user"
)

// ErrNoSnapshot indicates no persisted snapshot exists.
var ErrNoSnapshot = errors.New("auth: no persisted snapshot")

// SnapshotStore persists the last published {role, user} pair so a restart
// can seed state before the real session check completes. The snapshot is
// untrusted: it is always superseded by an explicit check and is never the
// sole basis for an authorization decision.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore constructs a SnapshotStore. A zero ttl means entries do
// not expire.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

// Write stores the user and its role under both snapshot keys.
func (s *SnapshotStore) Write(ctx context.Context, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("auth: encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotRoleKey, user.Role.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("auth: write snapshot role: %w", err)
	}
	if err := s.client.Set(ctx, snapshotUserKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("auth: write snapshot user: %w", err)
	}
	return nil
}

// Read loads the snapshot. Both keys must be present and consistent.
func (s *SnapshotStore) Read(ctx context.Context) (*User, rbac.Role, error) {
	rawRole, err := s.client.Get(ctx, snapshotRoleKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", ErrNoSnapshot
		}
		return nil, "", fmt.Errorf("auth: read snapshot role: %w", err)
	}
	role, err := rbac.ParseRole(rawRole)
	if err != nil {
		return nil, "", err
	}
	data, err := s.client.Get(ctx, snapshotUserKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", ErrNoSnapshot
		}
		return nil, "", fmt.Errorf("auth: read snapshot user: %w", err)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, "", fmt.Errorf("auth: decode snapshot: %w", err)
	}
	if user.Role != role {
		return nil, "", fmt.Errorf("auth: snapshot role mismatch: %s vs %s", user.Role, role)
	}
	return &user, role, nil
}

// Clear removes both snapshot keys.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, snapshotRoleKey, snapshotUserKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: clear snapshot: %w", err)
	}
	return nil
}
