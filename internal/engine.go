package internal

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type Config struct {
	// Name is used in log records. Defaults to a random uuid.
	Name string

	// Logger receives debug records for connects, execution maps and cycles.
	// Defaults to a logger discarding everything.
	Logger *slog.Logger

	// Clock drives time-based operators. Defaults to SystemClock().
	Clock Clock
}

// Engine owns the state of every node it touched and runs publish cycles.
type Engine struct {
	// Host is the typed handle wrapping this engine, if any.
	Host any

	mu     sync.Mutex
	holder atomic.Int64 // goroutine holding mu

	name     string
	logger   *slog.Logger
	clock    Clock
	registry *Registry

	nodes map[NodeID]*instance
	pipes map[NodeID]pipeEnds

	// defined nodes, in registration order
	registrations []NodeID

	graph    *Graph
	execMaps *ExecMapCache
	batcher  *Batcher
	queue    *TaskQueue

	running  bool
	draining bool
	cycles   uint64
	nextSub  uint64
}

type instance struct {
	kind  Kind
	value any
	equal Equal

	subs      []*subscription
	singleton *subscription
}

type subscription struct {
	id     uint64
	fn     func(any)
	active bool
}

type pipeEnds struct {
	in  NodeID
	out NodeID
}

func NewEngine(registry *Registry, cfg Config) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg.Name == "" {
		cfg.Name = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}

	return &Engine{
		name:     cfg.Name,
		logger:   cfg.Logger.With("engine", cfg.Name),
		clock:    cfg.Clock,
		registry: registry,

		nodes: make(map[NodeID]*instance),
		pipes: make(map[NodeID]pipeEnds),

		graph:    NewGraph(),
		execMaps: NewExecMapCache(),
		batcher:  NewBatcher(),
		queue:    NewTaskQueue(),
	}
}

func (e *Engine) Name() string         { return e.name }
func (e *Engine) Logger() *slog.Logger { return e.logger }
func (e *Engine) Clock() Clock         { return e.clock }
func (e *Engine) Registry() *Registry  { return e.registry }

// Cycles returns how many publish cycles completed.
func (e *Engine) Cycles() uint64 {
	release := e.acquire()
	defer release()

	return e.cycles
}

// acquire locks the engine for the calling goroutine.
// The goroutine already holding the lock may reenter freely.
func (e *Engine) acquire() (release func()) {
	gid := goroutineID()
	if e.holder.Load() == gid {
		return func() {}
	}

	e.mu.Lock()
	e.holder.Store(gid)

	return func() {
		e.holder.Store(0)
		e.mu.Unlock()
	}
}

// Do runs fn while holding the engine lock.
func (e *Engine) Do(fn func()) {
	release := e.acquire()
	defer release()

	fn()
}

// NewCell creates a stateful node local to this engine, without a definition.
func (e *Engine) NewCell(initial any, equal Equal) NodeID {
	release := e.acquire()
	defer release()

	id := e.registry.NewID()
	e.nodes[id] = &instance{kind: KindCell, value: initial, equal: equal}
	return id
}

// NewSignal creates a stateless node local to this engine, without a definition.
func (e *Engine) NewSignal(equal Equal) NodeID {
	release := e.acquire()
	defer release()

	id := e.registry.NewID()
	e.nodes[id] = &instance{kind: KindSignal, equal: equal}
	return id
}

// Register materializes the node on this engine and runs its initializer.
// Nodes without a definition, and nodes already registered, are left alone.
// When the initializer panics, everything it registered and connected is
// rolled back before the panic propagates, so a later Register runs it again.
func (e *Engine) Register(id NodeID) {
	release := e.acquire()
	defer release()

	if e.registered(id) {
		return
	}

	def, ok := e.registry.Lookup(id)
	if !ok {
		return
	}

	regMark, graphMark := len(e.registrations), e.graph.Len()
	defer func() {
		if r := recover(); r != nil {
			e.rollback(regMark, graphMark)
			e.logger.Warn("node registration failed", "node", e.registry.Label(id), "error", r)
			panic(r)
		}
	}()

	e.registrations = append(e.registrations, id)

	switch def.Kind {
	case KindPipe:
		in := e.registry.NewID()
		out := e.registry.NewID()
		e.nodes[in] = &instance{kind: KindSignal}
		e.nodes[out] = &instance{kind: KindCell, value: def.Initial, equal: def.Equal}
		e.pipes[id] = pipeEnds{in: in, out: out}

		if def.Label != "" {
			e.registry.SetLabel(in, def.Label+".in")
			e.registry.SetLabel(out, def.Label+".out")
		}

		if def.PipeInit != nil {
			WithEngine(e, func() { def.PipeInit(e, in, out) })
		}
	default:
		inst := &instance{kind: def.Kind, equal: def.Equal}
		if def.Kind == KindCell {
			inst.value = def.Initial
		}
		e.nodes[id] = inst

		if def.Init != nil {
			WithEngine(e, func() { def.Init(e, id) })
		}
	}

	e.logger.Debug("node registered", "node", e.registry.Label(id), "kind", def.Kind)
}

// rollback unregisters the nodes registered after the first regMark and
// drops the projections connected after the first graphMark.
func (e *Engine) rollback(regMark, graphMark int) {
	for _, id := range e.registrations[regMark:] {
		if ends, ok := e.pipes[id]; ok {
			delete(e.nodes, ends.in)
			delete(e.nodes, ends.out)
			delete(e.pipes, id)
			continue
		}
		delete(e.nodes, id)
	}
	e.registrations = e.registrations[:regMark]

	e.graph.Truncate(graphMark)
	e.execMaps.Invalidate()
}

func (e *Engine) registered(id NodeID) bool {
	if _, ok := e.nodes[id]; ok {
		return true
	}
	_, ok := e.pipes[id]
	return ok
}

// resolve registers id and returns the node actually read (or written) through it.
func (e *Engine) resolve(id NodeID, write bool) NodeID {
	e.Register(id)

	ends, ok := e.pipes[id]
	if !ok {
		return id
	}
	if write {
		return ends.in
	}
	return ends.out
}

// PipeEnds returns the internal input and output of a registered pipe.
func (e *Engine) PipeEnds(id NodeID) (in, out NodeID, ok bool) {
	release := e.acquire()
	defer release()

	ends, ok := e.pipes[id]
	return ends.in, ends.out, ok
}

// Connect adds p to the graph. It panics with a *CycleError when the sink
// already feeds one of the sources.
func (e *Engine) Connect(p Projection) {
	release := e.acquire()
	defer release()

	proj := &Projection{
		Sources: make([]NodeID, len(p.Sources)),
		Pulls:   make([]NodeID, len(p.Pulls)),
		Map:     p.Map,
	}
	for i, id := range p.Sources {
		proj.Sources[i] = e.resolve(id, false)
	}
	for i, id := range p.Pulls {
		proj.Pulls[i] = e.resolve(id, false)
	}
	proj.Sink = e.resolve(p.Sink, true)

	if path := e.graph.FindPath(proj.Sink, proj.Sources); path != nil {
		panic(e.cycleError(append(path, proj.Sink)))
	}

	e.graph.Add(proj)
	e.execMaps.Invalidate()

	e.logger.Debug("projection connected",
		"sink", e.registry.Label(proj.Sink),
		"sources", len(proj.Sources),
		"pulls", len(proj.Pulls),
	)
}

// Value returns the persisted value of a node. Stateless nodes have none.
func (e *Engine) Value(id NodeID) any {
	release := e.acquire()
	defer release()

	id = e.resolve(id, false)
	if inst, ok := e.nodes[id]; ok {
		return inst.value
	}
	return nil
}

func (e *Engine) Values(ids []NodeID) []any {
	release := e.acquire()
	defer release()

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = e.Value(id)
	}
	return values
}

// Sub calls fn with the value of the node every cycle it resolves in.
func (e *Engine) Sub(id NodeID, fn func(any)) (unsubscribe func()) {
	release := e.acquire()
	defer release()

	id = e.resolve(id, false)
	inst := e.nodes[id]

	e.nextSub++
	sub := &subscription{id: e.nextSub, fn: fn, active: true}
	inst.subs = append(inst.subs, sub)

	return func() {
		e.Do(func() {
			sub.active = false
			inst.subs = slices.DeleteFunc(inst.subs, func(s *subscription) bool { return s == sub })
		})
	}
}

// SingletonSub sets the only singleton callback of a node, replacing any
// previous one. A nil fn removes it.
func (e *Engine) SingletonSub(id NodeID, fn func(any)) (unsubscribe func()) {
	release := e.acquire()
	defer release()

	id = e.resolve(id, false)
	inst := e.nodes[id]

	if inst.singleton != nil {
		inst.singleton.active = false
		inst.singleton = nil
	}
	if fn == nil {
		return func() {}
	}

	e.nextSub++
	sub := &subscription{id: e.nextSub, fn: fn, active: true}
	inst.singleton = sub

	return func() {
		e.Do(func() {
			sub.active = false
			if inst.singleton == sub {
				inst.singleton = nil
			}
		})
	}
}

// SubMultiple calls fn once per cycle in which any of ids resolves, with the
// latest values of all of them.
func (e *Engine) SubMultiple(ids []NodeID, fn func([]any)) (unsubscribe func()) {
	release := e.acquire()
	defer release()

	sink := e.NewSignal(nil)
	e.Connect(Projection{
		Sources: ids,
		Sink:    sink,
		Map: func(values []any, emit func(any)) {
			emit(values)
		},
	})

	return e.Sub(sink, func(v any) { fn(v.([]any)) })
}

// CycleError is raised by Connect when a projection would close a loop of source edges.
type CycleError struct {
	Path   []NodeID
	Labels []string
}

func (err *CycleError) Error() string {
	return fmt.Sprintf("flow: connecting would create a cycle: %s", strings.Join(err.Labels, " -> "))
}

func (e *Engine) cycleError(path []NodeID) *CycleError {
	labels := make([]string, len(path))
	for i, id := range path {
		labels[i] = e.registry.Label(id)
	}
	return &CycleError{Path: path, Labels: labels}
}
