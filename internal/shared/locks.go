package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FormLockKey builds the redis key guarding one form of one session.
func FormLockKey(sessionID, form string) string {
	return fmt.Sprintf("console:form:%s:%s:lock", sessionID, form)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// FormLocks serialises submissions of the same form across browser tabs
// sharing a session. A nil *FormLocks never blocks.
type FormLocks struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFormLocks constructs FormLocks. ttl bounds how long a crashed request
// can hold a lock.
func NewFormLocks(client *redis.Client, ttl time.Duration) *FormLocks {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &FormLocks{client: client, ttl: ttl}
}

// Acquire takes the lock for form within sessionID. It returns ErrFormBusy
// when another submission holds it. The returned release func is never nil.
func (l *FormLocks) Acquire(ctx context.Context, sessionID, form string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := FormLockKey(sessionID, form)
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return func() {}, fmt.Errorf("shared: acquire form lock: %w", err)
	}
	if !ok {
		return func() {}, ErrFormBusy
	}
	return func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, owner).Err()
	}, nil
}
