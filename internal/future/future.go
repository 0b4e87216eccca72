// Package future turns callback-style SDK requests into blocking calls with a uniform
// timeout and cancellation policy.
package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/srg/tsamp/pkg/telux"
)

// ErrTimeout is returned when a callback does not arrive in time.
var ErrTimeout = errors.New("timeout")

// Future holds a value delivered once, typically from an SDK callback goroutine.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// New creates an unresolved Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve stores v and wakes all waiters. Only the first call has an effect; it
// returns false for every later call so duplicate callbacks can be detected.
func (f *Future[T]) Resolve(v T) bool {
	resolved := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitTimeout is Wait bounded by d. A zero d waits forever.
func (f *Future[T]) WaitTimeout(d time.Duration) (T, error) {
	return f.waitFor(context.Background(), d)
}

func (f *Future[T]) waitFor(ctx context.Context, d time.Duration) (T, error) {
	if d <= 0 {
		return f.Wait(ctx)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-timer.C:
		// A resolve racing with the timer still wins.
		select {
		case <-f.done:
			return f.value, nil
		default:
		}
		var zero T
		return zero, ErrTimeout
	}
}

// Call issues an asynchronous request and waits for its callback.
//
// issue receives the resolve function to hand to the SDK callback and returns the
// synchronous Status. A rejected request returns a *telux.StatusError without waiting.
// A zero timeout waits until ctx is done.
func Call[T any](ctx context.Context, timeout time.Duration, op string, issue func(resolve func(T)) telux.Status) (T, error) {
	f := New[T]()
	status := issue(func(v T) { f.Resolve(v) })
	if err := telux.CheckStatus(op, status); err != nil {
		var zero T
		return zero, err
	}

	v, err := f.waitFor(ctx, timeout)
	if errors.Is(err, ErrTimeout) {
		return v, fmt.Errorf("%s: %w after %v", op, ErrTimeout, timeout)
	}
	return v, err
}

// CallCode is Call for requests answered by a telux.ResponseCallback. A non-Success
// ErrorCode is returned as a *telux.CodeError.
func CallCode(ctx context.Context, timeout time.Duration, op string, issue func(cb telux.ResponseCallback) telux.Status) error {
	code, err := Call(ctx, timeout, op, func(resolve func(telux.ErrorCode)) telux.Status {
		return issue(func(c telux.ErrorCode) { resolve(c) })
	})
	if err != nil {
		return err
	}
	return telux.CheckCode(op, code)
}
