package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AuditPruner deletes audit entries older than a cutoff.
type AuditPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// AuditPrunePayload configures one prune run.
type AuditPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewAuditPruneTask constructs an Asynq task.
func NewAuditPruneTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditPrune, data), nil
}

// AuditPruneJob enforces the audit trail retention.
type AuditPruneJob struct {
	Pruner   AuditPruner
	Logger   *slog.Logger
	Observer Observer
	clock    func() time.Time
}

// NewAuditPruneJob initialises the prune handler.
func NewAuditPruneJob(pruner AuditPruner, logger *slog.Logger, observer Observer) *AuditPruneJob {
	return &AuditPruneJob{
		Pruner:   pruner,
		Logger:   logger,
		Observer: observer,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the prune.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Pruner == nil {
		return errors.New("audit prune: handler not configured")
	}
	defer func() {
		if j.Observer != nil {
			j.Observer.ObserveJob(TaskTypeAuditPrune, err)
		}
	}()

	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 180
	}
	cutoff := j.now().AddDate(0, 0, -payload.RetentionDays)
	removed, err := j.Pruner.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("audit pruned", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	}
	return nil
}

func (j *AuditPruneJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}
