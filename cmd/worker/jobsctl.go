package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/bookstore-admin/console/jobs"
)

// jobsCtl wraps manual queue operations for operators.
type jobsCtl struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func newJobsCtl(opts asynq.RedisClientOpt) *jobsCtl {
	return &jobsCtl{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

func (c *jobsCtl) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// Trigger enqueues a task that can run without an external payload.
func (c *jobsCtl) Trigger(ctx context.Context, name string, retentionDays int) (*asynq.TaskInfo, error) {
	switch name {
	case jobs.TaskTypeAuditPrune:
		task, err := jobs.NewAuditPruneTask(retentionDays)
		if err != nil {
			return nil, err
		}
		return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
	case jobs.TaskTypeRevokeToken:
		return nil, fmt.Errorf("jobsctl: %s is enqueued by logout only", name)
	default:
		return nil, fmt.Errorf("jobsctl: unsupported task %s", name)
	}
}

type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

func (c *jobsCtl) InspectQueue() (queueStats, error) {
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return queueStats{}, err
	}
	return queueStats{
		Queue:     jobs.QueueDefault,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

func (c *jobsCtl) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}
