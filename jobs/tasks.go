package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/gateway"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRevokeToken retries a server-side logout that failed inline.
	TaskTypeRevokeToken = "session:revoke"
	// TaskTypeAuditPrune removes audit entries past their retention.
	TaskTypeAuditPrune = "audit:prune"
)

// Observer receives one observation per processed task.
type Observer interface {
	ObserveJob(task string, err error)
}

// RevokeTokenPayload carries the token whose logout must be retried.
type RevokeTokenPayload struct {
	Token       string    `json:"token"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRevokeTokenTask constructs an Asynq task.
func NewRevokeTokenTask(payload RevokeTokenPayload) (*asynq.Task, error) {
	if payload.Token == "" {
		return nil, errors.New("revoke token: empty token")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRevokeToken, data), nil
}

// RevokeTokenJob calls the logout endpoint with a detached token.
type RevokeTokenJob struct {
	API      *gateway.Client
	Logger   *slog.Logger
	Observer Observer
}

// Handle processes TaskTypeRevokeToken tasks. A 401 means the token is
// already unusable and counts as success. Other 4xx answers are not retried.
func (j *RevokeTokenJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.API == nil {
		return errors.New("revoke token: handler not configured")
	}
	defer func() {
		if j.Observer != nil {
			j.Observer.ObserveJob(TaskTypeRevokeToken, err)
		}
	}()

	var payload RevokeTokenPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Token == "" {
		return fmt.Errorf("revoke token: bad payload: %w", asynq.SkipRetry)
	}

	client := bookstore.New(j.API.Bind(gateway.NewStaticToken(payload.Token), nil))
	err = client.Logout(ctx)
	var apiErr *gateway.APIError
	switch {
	case err == nil, errors.Is(err, gateway.ErrUnauthorized):
		j.logger().Info("token revoked", slog.Duration("delay", time.Since(payload.RequestedAt)))
		return nil
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
		j.logger().Warn("token revocation refused", slog.Int("status", apiErr.Status))
		return fmt.Errorf("revoke token: %w: %w", err, asynq.SkipRetry)
	default:
		return fmt.Errorf("revoke token: %w", err)
	}
}

func (j *RevokeTokenJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
