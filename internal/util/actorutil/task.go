package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var errNilTaskResult = errors.New("background task returned no result")

// SafeBackgroundTask runs a blocking call for an actor and delivers a single
// message with its outcome. Failures are turned into a message by Recover.
type SafeBackgroundTask[T any] struct {
	ctx     actor.Context
	fn      func() (*T, error)
	timeout time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

// MapBackgroundTask converts the successful result of a task.
func MapBackgroundTask[T, T2 any](bgt *SafeBackgroundTask[T], mapFn func(*T) *T2) *SafeBackgroundTask[T2] {
	return &SafeBackgroundTask[T2]{
		ctx: bgt.ctx,
		fn: func() (*T2, error) {
			r, err := bgt.fn()
			if err != nil {
				return nil, err
			}
			return mapFn(r), nil
		},
		timeout: bgt.timeout,
	}
}

// WithTimeout stops waiting after d. The call itself keeps running.
func (t *SafeBackgroundTask[T]) WithTimeout(d time.Duration) *SafeBackgroundTask[T] {
	t.timeout = d
	return t
}

func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

// PipeTo sends the result, or the recovered failure, to pid. Without Recover
// a failure sends nothing.
func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	value, err := t.result()
	if err != nil {
		if t.recover == nil {
			return
		}
		value = t.recover(err)
	}
	t.ctx.Send(pid, value)
}

func (t *SafeBackgroundTask[T]) result() (T, error) {
	task := io.MapErr(io.Eval(t.fn), func(a *T) (T, error) {
		if a == nil {
			var zero T
			return zero, errNilTaskResult
		}
		return *a, nil
	})
	if t.timeout > 0 {
		task = io.WithTimeout[T](t.timeout)(task)
	}
	result := io.RunSync(task)
	return result.Value, result.Error
}
