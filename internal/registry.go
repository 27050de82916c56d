package internal

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// NodeID is the opaque identity of a node. Ids are never reused within a registry.
type NodeID uint64

type Kind int

const (
	KindCell Kind = iota
	KindSignal
	KindPipe
)

func (k Kind) String() string {
	switch k {
	case KindCell:
		return "cell"
	case KindSignal:
		return "signal"
	case KindPipe:
		return "pipe"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Equal reports whether two values are the same for distinctness purposes.
// A nil Equal means the node is not distinct.
type Equal func(a, b any) bool

// Definition is the engine-independent description of a node.
type Definition struct {
	Kind    Kind
	Initial any
	Equal   Equal
	Label   string

	// Init runs once per engine, on first registration.
	Init func(e *Engine, id NodeID)

	// PipeInit wires a pipe's input to its output. Only used for KindPipe.
	PipeInit func(e *Engine, in, out NodeID)
}

// Registry maps node ids to their definitions. A registry is meant to be
// filled at startup and shared by any number of engines.
type Registry struct {
	mu sync.RWMutex

	next atomic.Uint64

	defs   map[NodeID]*Definition
	labels map[NodeID]string
}

func NewRegistry() *Registry {
	return &Registry{
		defs:   make(map[NodeID]*Definition),
		labels: make(map[NodeID]string),
	}
}

// NewID allocates a fresh id without a definition. Engines use it for local nodes.
func (r *Registry) NewID() NodeID {
	return NodeID(r.next.Add(1))
}

// Define allocates an id for def and records it.
func (r *Registry) Define(def *Definition) NodeID {
	id := r.NewID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.defs[id] = def
	if def.Label != "" {
		r.labels[id] = def.Label
	}

	return id
}

func (r *Registry) Lookup(id NodeID) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	return def, ok
}

func (r *Registry) SetLabel(id NodeID, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.labels[id] = label
}

// Label returns the diagnostic name of id, or "#<id>" when it has none.
func (r *Registry) Label(id NodeID) string {
	r.mu.RLock()
	label, ok := r.labels[id]
	r.mu.RUnlock()

	if ok {
		return label
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// Len returns the number of defined nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.defs)
}
