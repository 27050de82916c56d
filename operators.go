package flow

import (
	"slices"
	"time"

	"github.com/AnatoleLucet/flow/internal"
)

// Op is an operator whose input and output types are erased, so that
// operators of different types can be chained.
type Op interface {
	apply(e *Engine, src NodeID) NodeID
}

// Operator derives a new node from src. Operators wire the derived node into
// the engine the moment they are applied.
type Operator[I, O any] func(e *Engine, src Node[I]) Node[O]

func (op Operator[I, O]) apply(e *Engine, src NodeID) NodeID {
	return op(e, Node[I]{src}).id
}

// Chain applies ops to src in order and returns the last derived node.
// The value type of each node must match the input of the next operator.
func Chain[O any](e *Engine, src Ref, ops ...Op) Node[O] {
	id := src.ID()
	for _, op := range ops {
		id = op.apply(e, id)
	}

	return Node[O]{id}
}

// Transformer returns a function creating, for a given sink, a new input
// node piped through ops and linked into sink.
func Transformer[I, O any](e *Engine, ops ...Op) func(sink Node[O]) Node[I] {
	return func(sink Node[O]) Node[I] {
		src := newSignal[I](e)
		Link(e, Chain[O](e, src, ops...), sink)
		return src
	}
}

func project[I, O any](e *Engine, src Node[I], sink Node[O], fn func(v I, emit func(any))) {
	e.rt.Connect(internal.Projection{
		Sources: []NodeID{src.id},
		Sink:    sink.id,
		Map: func(values []any, emit func(any)) {
			fn(as[I](values[0]), emit)
		},
	})
}

// Map emits fn(v) for every value v of the source.
func Map[I, O any](fn func(I) O) Operator[I, O] {
	return func(e *Engine, src Node[I]) Node[O] {
		sink := newSignal[O](e)
		project(e, src, sink, func(v I, emit func(any)) {
			emit(fn(v))
		})
		return sink
	}
}

// MapTo emits value every time the source emits.
func MapTo[I, O any](value O) Operator[I, O] {
	return func(e *Engine, src Node[I]) Node[O] {
		sink := newSignal[O](e)
		project(e, src, sink, func(_ I, emit func(any)) {
			emit(value)
		})
		return sink
	}
}

// Filter forwards the values matching pred. Nodes downstream of a rejected
// value do not run for that cycle.
func Filter[T any](pred func(T) bool) Operator[T, T] {
	return func(e *Engine, src Node[T]) Node[T] {
		sink := newSignal[T](e)
		project(e, src, sink, func(v T, emit func(any)) {
			if pred(v) {
				emit(v)
			}
		})
		return sink
	}
}

// Once forwards the first value of the source and nothing after.
func Once[T any]() Operator[T, T] {
	return func(e *Engine, src Node[T]) Node[T] {
		sink := newSignal[T](e)
		done := false
		project(e, src, sink, func(v T, emit func(any)) {
			if !done {
				done = true
				emit(v)
			}
		})
		return sink
	}
}

// Scan folds the values of the source into a cell starting at seed.
func Scan[I, A any](fn func(acc A, v I) A, seed A) Operator[I, A] {
	return func(e *Engine, src Node[I]) Node[A] {
		sink := newCell(e, seed)
		e.rt.Connect(internal.Projection{
			Sources: []NodeID{src.id},
			Pulls:   []NodeID{sink.id},
			Sink:    sink.id,
			Map: func(values []any, emit func(any)) {
				emit(fn(as[A](values[1]), as[I](values[0])))
			},
		})
		return sink
	}
}

// WithLatestFrom emits the source value followed by the current values of
// nodes. Changes of nodes alone emit nothing.
func WithLatestFrom[I any](nodes ...Ref) Operator[I, []any] {
	return func(e *Engine, src Node[I]) Node[[]any] {
		sink := newSignal[[]any](e)
		e.rt.Connect(internal.Projection{
			Sources: []NodeID{src.id},
			Pulls:   ids(nodes),
			Sink:    sink.id,
			Map: func(values []any, emit func(any)) {
				emit(slices.Clone(values))
			},
		})
		return sink
	}
}

type sentinel struct{}

var noValue = &sentinel{}

// OnNext buffers the latest source value and emits it, paired with the
// trigger value, the next time trigger emits. Each buffered value is emitted
// at most once.
func OnNext[I, T any](trigger Node[T]) Operator[I, Pair[I, T]] {
	return func(e *Engine, src Node[I]) Node[Pair[I, T]] {
		sink := newSignal[Pair[I, T]](e)
		buffer := e.rt.NewCell(noValue, nil)

		e.rt.Connect(internal.Projection{
			Sources: []NodeID{src.id},
			Sink:    buffer,
			Map: func(values []any, emit func(any)) {
				emit(values[0])
			},
		})

		e.rt.Connect(internal.Projection{
			Sources: []NodeID{trigger.id},
			Pulls:   []NodeID{buffer},
			Sink:    sink.id,
			Map: func(values []any, emit func(any)) {
				if values[1] == any(noValue) {
					return
				}

				emit(Pair[I, T]{First: as[I](values[1]), Second: as[T](values[0])})
				e.rt.Defer(func() { e.rt.Pub(buffer, noValue) })
			},
		})

		return sink
	}
}

// ThrottleTime emits the latest source value at most once per d. The first
// value opens a window; the latest value seen when it closes is published in
// a cycle of its own.
func ThrottleTime[T any](d time.Duration) Operator[T, T] {
	return func(e *Engine, src Node[T]) Node[T] {
		sink := newSignal[T](e)

		var (
			latest T
			timer  Timer
		)

		Sub(e, src, func(v T) {
			latest = v
			if timer != nil {
				return
			}

			timer = e.rt.Clock().AfterFunc(d, func() {
				e.rt.Do(func() {
					timer = nil
					Pub(e, sink, latest)
				})
			})
		})

		return sink
	}
}

// DebounceTime publishes the latest source value once the source stayed
// silent for d.
func DebounceTime[T any](d time.Duration) Operator[T, T] {
	return func(e *Engine, src Node[T]) Node[T] {
		sink := newSignal[T](e)

		var (
			latest T
			timer  Timer
			gen    uint64
		)

		Sub(e, src, func(v T) {
			latest = v
			if timer != nil {
				timer.Stop()
			}

			gen++
			current := gen

			timer = e.rt.Clock().AfterFunc(d, func() {
				e.rt.Do(func() {
					// a later value rescheduled the timer while this one was waiting for the lock
					if current != gen {
						return
					}

					timer = nil
					Pub(e, sink, latest)
				})
			})
		})

		return sink
	}
}

// DelayWithMicrotask republishes every source value in a cycle of its own,
// run right after the cycle the value was emitted in.
func DelayWithMicrotask[T any]() Operator[T, T] {
	return func(e *Engine, src Node[T]) Node[T] {
		sink := newSignal[T](e)

		Sub(e, src, func(v T) {
			e.rt.Defer(func() { Pub(e, sink, v) })
		})

		return sink
	}
}
