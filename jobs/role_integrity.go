package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-app/gatehouse/internal/jobs"
)

// RoleAuditStore provides the lookups needed by the integrity check.
type RoleAuditStore interface {
	CountOrphanAssignments(ctx context.Context) (int64, error)
	CountUnassignedAccounts(ctx context.Context) (int64, error)
}

// RoleIntegrityJob reports role assignments that reference deleted accounts
// and accounts that never received a role.
type RoleIntegrityJob struct {
	Store   RoleAuditStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRoleIntegrityJob constructs the job handler.
func NewRoleIntegrityJob(store RoleAuditStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *RoleIntegrityJob {
	return &RoleIntegrityJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check.
func (j *RoleIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("role integrity: dependencies not configured")
	}
	var payload RoleIntegrityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRoleIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	orphans, err := j.Store.CountOrphanAssignments(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("count orphan assignments", slog.Any("error", err))
		return resultErr
	}
	unassigned, err := j.Store.CountUnassignedAccounts(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("count unassigned accounts", slog.Any("error", err))
		return resultErr
	}
	if orphans > 0 || unassigned > 0 {
		j.log().Warn("role integrity drift detected",
			slog.Int64("orphan_assignments", orphans),
			slog.Int64("unassigned_accounts", unassigned))
		return resultErr
	}
	j.log().Info("role assignments consistent")
	return resultErr
}

func (j *RoleIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *RoleIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRoleIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskRoleIntegrity))
}
