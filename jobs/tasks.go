// Package jobs holds the background workloads that keep the auth backend
// tidy: sweeping expired sessions and checking role assignment integrity.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes expired identity sessions.
	TaskSessionSweep = "auth:sweep_sessions"
	// TaskRoleIntegrity verifies role assignments still reference accounts.
	TaskRoleIntegrity = "auth:role_integrity"
)

// SessionSweepPayload carries scheduling metadata for the sweep.
type SessionSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionSweepTask constructs an Asynq task for sweeping expired sessions.
func NewSessionSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SessionSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, body, asynq.Queue(QueueDefault)), nil
}

// RoleIntegrityPayload carries scheduling metadata for the integrity check.
type RoleIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewRoleIntegrityTask constructs an Asynq task for the role integrity check.
func NewRoleIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RoleIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleIntegrity, body, asynq.Queue(QueueDefault)), nil
}
