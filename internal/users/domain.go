package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-app/gatehouse/internal/rbac"
)

// User represents an account for administration purposes.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
