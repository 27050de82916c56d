package flow

import (
	"log/slog"
	"slices"

	"github.com/AnatoleLucet/flow/internal"
)

// Engine holds the live state of the nodes it touched and runs publish cycles.
// Engines sharing a registry never share state.
type Engine struct {
	rt *internal.Engine
}

// Clock schedules the callbacks of time-based operators.
type Clock = internal.Clock

// Timer is a callback scheduled by a Clock.
type Timer = internal.Timer

type EngineOption func(*internal.Config)

// WithName names the engine in log records.
func WithName(name string) EngineOption {
	return func(c *internal.Config) { c.Name = name }
}

// WithLogger sets the logger receiving the engine's debug records.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *internal.Config) { c.Logger = logger }
}

// WithClock replaces the clock used by ThrottleTime and DebounceTime.
func WithClock(clock Clock) EngineOption {
	return func(c *internal.Config) { c.Clock = clock }
}

// NewEngine creates an engine instantiating the nodes of reg. A nil reg
// gives the engine a private registry, only usable for local nodes.
func NewEngine(reg *Registry, opts ...EngineOption) *Engine {
	var cfg internal.Config
	for _, opt := range opts {
		opt(&cfg)
	}

	var r *internal.Registry
	if reg != nil {
		r = reg.reg
	}

	e := &Engine{internal.NewEngine(r, cfg)}
	e.rt.Host = e

	return e
}

func wrap(rt *internal.Engine) *Engine {
	return rt.Host.(*Engine)
}

// Current returns the engine running the initializer being executed.
// It panics with ErrNoActiveEngine when called anywhere else.
func Current() *Engine {
	rt, ok := internal.ActiveEngine()
	if !ok {
		panic(ErrNoActiveEngine)
	}

	return wrap(rt)
}

func (e *Engine) Name() string         { return e.rt.Name() }
func (e *Engine) Logger() *slog.Logger { return e.rt.Logger() }

// Cycles returns how many publish cycles ran so far.
func (e *Engine) Cycles() uint64 { return e.rt.Cycles() }

// Label returns the diagnostic name of a node.
func (e *Engine) Label(n Ref) string {
	return e.rt.Registry().Label(n.ID())
}

// Register instantiates the node on this engine and runs its initializer,
// once. Publishing, subscribing, reading or connecting a node registers it.
func (e *Engine) Register(n Ref) {
	e.rt.Register(n.ID())
}

// Pub publishes v to n in its own cycle.
func Pub[T any](e *Engine, n Node[T], v T) {
	e.rt.Pub(n.id, v)
}

// Trigger publishes an action.
func (e *Engine) Trigger(a Node[Void]) {
	e.rt.Pub(a.id, Void{})
}

// Assignment is a value waiting to be published to a node.
type Assignment struct {
	node  NodeID
	value any
}

// Set pairs a node with the value to publish to it.
func Set[T any](n Node[T], v T) Assignment {
	return Assignment{node: n.id, value: v}
}

// PubIn publishes all the assignments in a single cycle. When the same node
// is assigned more than once, the last assignment wins.
func (e *Engine) PubIn(values ...Assignment) {
	m := make(map[NodeID]any, len(values))
	for _, a := range values {
		m[a.node] = a.value
	}

	e.rt.PubIn(m)
}

// Batch runs fn and publishes every write it made in a single cycle.
func (e *Engine) Batch(fn func()) {
	e.rt.Batch(fn)
}

// Sub calls fn with the value of n after every cycle n resolves in.
func Sub[T any](e *Engine, n Node[T], fn func(T)) (unsubscribe func()) {
	return e.rt.Sub(n.id, func(v any) { fn(as[T](v)) })
}

// SingletonSub is like Sub but n keeps at most one such callback: setting a
// new one replaces the previous, and a nil fn removes it.
func SingletonSub[T any](e *Engine, n Node[T], fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return e.rt.SingletonSub(n.id, nil)
	}

	return e.rt.SingletonSub(n.id, func(v any) { fn(as[T](v)) })
}

// SubMultiple calls fn once per cycle in which any of nodes resolves, with
// the latest value of each of them.
func (e *Engine) SubMultiple(nodes []Ref, fn func(values []any)) (unsubscribe func()) {
	return e.rt.SubMultiple(ids(nodes), fn)
}

// Value returns the current value of n. Signals have no value outside of a cycle.
func Value[T any](e *Engine, n Node[T]) T {
	return as[T](e.rt.Value(n.id))
}

// Values returns the current value of each node.
func (e *Engine) Values(nodes ...Ref) []any {
	return e.rt.Values(ids(nodes))
}

// Projection is a hyperedge of the graph: whenever one of Sources resolves,
// Map receives the latest values of Sources then Pulls, and may emit a value
// for Sink. Pulls never trigger Map on their own.
type Projection struct {
	Sources []Ref
	Pulls   []Ref
	Sink    Ref

	Map func(values []any, emit func(any))
}

// Connect adds p to the graph. It panics with a *CycleError if Sink already
// feeds one of Sources.
func (e *Engine) Connect(p Projection) {
	e.rt.Connect(internal.Projection{
		Sources: ids(p.Sources),
		Pulls:   ids(p.Pulls),
		Sink:    p.Sink.ID(),
		Map:     p.Map,
	})
}

// Link forwards every value of src to sink.
func Link[T any](e *Engine, src, sink Node[T]) {
	e.rt.Connect(internal.Projection{
		Sources: []NodeID{src.id},
		Sink:    sink.id,
		Map: func(values []any, emit func(any)) {
			emit(values[0])
		},
	})
}

// ChangeWith updates cell with fn(current, next) for every value of src.
func ChangeWith[T, U any](e *Engine, cell Node[T], src Node[U], fn func(current T, next U) T) {
	e.rt.Connect(internal.Projection{
		Sources: []NodeID{src.id},
		Pulls:   []NodeID{cell.id},
		Sink:    cell.id,
		Map: func(values []any, emit func(any)) {
			emit(fn(as[T](values[1]), as[U](values[0])))
		},
	})
}

// Combine returns a signal emitting the latest values of nodes whenever any of them resolves.
func Combine(e *Engine, nodes ...Ref) Node[[]any] {
	sink := newSignal[[]any](e)
	connectAll(e, nodes, sink)
	return sink
}

// CombineCells is like Combine but returns a cell, readable with Value
// before any of nodes changes.
func CombineCells(e *Engine, nodes ...Ref) Node[[]any] {
	sink := Node[[]any]{e.rt.NewCell(e.Values(nodes...), nil)}
	connectAll(e, nodes, sink)
	return sink
}

func connectAll(e *Engine, nodes []Ref, sink Node[[]any]) {
	e.rt.Connect(internal.Projection{
		Sources: ids(nodes),
		Sink:    sink.id,
		Map: func(values []any, emit func(any)) {
			emit(slices.Clone(values))
		},
	})
}

func newSignal[T any](e *Engine) Node[T] {
	return Node[T]{e.rt.NewSignal(nil)}
}

func newCell[T any](e *Engine, initial T) Node[T] {
	return Node[T]{e.rt.NewCell(initial, defaultEqual)}
}
