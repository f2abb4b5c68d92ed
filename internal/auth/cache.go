package auth

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// RoleCache maps user IDs to roles for the lifetime of one Store. Entries are
// only written after a successful remote lookup; the cache never invents a
// role. It is cleared on sign-out and not persisted.
type RoleCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]rbac.Role
}

// NewRoleCache constructs an empty RoleCache.
func NewRoleCache() *RoleCache {
	return &RoleCache{entries: make(map[uuid.UUID]rbac.Role)}
}

// Get returns the cached role for userID, if any.
func (c *RoleCache) Get(userID uuid.UUID) (rbac.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	role, ok := c.entries[userID]
	return role, ok
}

// Put records a remotely confirmed role for userID.
func (c *RoleCache) Put(userID uuid.UUID, role rbac.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = role
}

// Forget drops the entry for userID, forcing the next lookup to go remote.
func (c *RoleCache) Forget(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Clear empties the cache.
func (c *RoleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uuid.UUID]rbac.Role)
}

// Len returns the number of cached entries.
func (c *RoleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
