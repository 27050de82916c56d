package flow

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/AnatoleLucet/flow/internal"
)

// Future is a value computed in the background.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Async runs fn in its own goroutine. A panic in fn resolves the future with an error.
func Async[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("flow: async panic: %v", r)
			}
		}()

		f.value, f.err = fn(ctx)
	}()

	return f
}

// Resolved returns a future already holding v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: v}
	close(f.done)
	return f
}

// Rejected returns a future already failed with err.
func Rejected[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// asyncWaits counts the goroutines waiting on a future for HandleAsyncResult.
var asyncWaits atomic.Int64

// HandleAsyncResult turns a source emitting either *Future[T] or plain T
// values into states. A plain value emits onSuccess(v) right away. A future
// emits onLoad() right away, then onSuccess or onError in a later cycle once
// it settles. A newer source value supersedes the pending future: its wait is
// cancelled and its result dropped. A nil onLoad or onError emits nothing for that state.
func HandleAsyncResult[T, O any](onLoad func() O, onSuccess func(T) O, onError func(error) O) Operator[any, O] {
	return func(e *Engine, src Node[any]) Node[O] {
		sink := newSignal[O](e)

		// guarded by the engine lock
		var (
			gen    uint64
			cancel context.CancelFunc = func() {}
		)

		e.rt.Connect(internal.Projection{
			Sources: []NodeID{src.id},
			Sink:    sink.id,
			Map: func(values []any, emit func(any)) {
				gen++
				cancel()
				cancel = func() {}

				f, ok := values[0].(*Future[T])
				if !ok {
					emit(onSuccess(as[T](values[0])))
					return
				}

				if onLoad != nil {
					emit(onLoad())
				}

				var ctx context.Context
				ctx, cancel = context.WithCancel(context.Background())

				current := gen
				asyncWaits.Add(1)
				go func() {
					defer asyncWaits.Add(-1)

					select {
					case <-f.Done():
					case <-ctx.Done():
						return
					}

					e.rt.Do(func() {
						if current != gen {
							return
						}

						if f.err != nil {
							if onError != nil {
								Pub(e, sink, onError(f.err))
							}
							return
						}

						Pub(e, sink, onSuccess(f.value))
					})
				}()
			},
		})

		return sink
	}
}
