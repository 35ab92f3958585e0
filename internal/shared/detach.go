package shared

import (
	"context"
	"errors"
)

// ErrClientGone reports that the client disconnected before a submission
// finished. The submission itself keeps running.
var ErrClientGone = errors.New("client disconnected before the submission finished")

// RunDetached runs submit with a context that ignores ctx cancellation. When
// ctx ends first, detach is called, ErrClientGone is returned and late
// receives the result once submit completes. late is never called otherwise.
func RunDetached[T any](ctx context.Context, detach func(), submit func(context.Context) (T, error), late func(T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := submit(context.WithoutCancel(ctx))
		done <- outcome{val: val, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		if detach != nil {
			detach()
		}
		go func() {
			res := <-done
			if late != nil {
				late(res.val, res.err)
			}
		}()
		var zero T
		return zero, ErrClientGone
	}
}
