// Package flow is a batched dataflow engine. Nodes are defined once in a
// Registry, wired together with projections, and instantiated lazily by every
// Engine touching them. Publishing one or more values runs a single,
// topologically ordered pass over the affected part of the graph, so every
// node is recomputed at most once per publish and never observes a half
// updated graph.
package flow

import (
	"errors"

	"github.com/AnatoleLucet/flow/internal"
)

// NodeID is the opaque identity of a node.
type NodeID = internal.NodeID

// Void is the value type of actions.
type Void = struct{}

// Ref is any node, whatever its value type.
type Ref interface {
	ID() NodeID
}

// Node is a typed reference to a cell, a signal or a pipe.
type Node[T any] struct {
	id NodeID
}

func (n Node[T]) ID() NodeID { return n.id }

// IsZero reports whether n was never assigned a node.
func (n Node[T]) IsZero() bool { return n.id == 0 }

// Pair is emitted by operators joining two values.
type Pair[A, B any] struct {
	First  A
	Second B
}

// CycleError is the panic value of a connection closing a loop of source edges.
type CycleError = internal.CycleError

// ErrNoActiveEngine is the panic value of Current outside of an initializer.
var ErrNoActiveEngine = errors.New("flow: no active engine, Current is only available inside node initializers")

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	return v.(T)
}

func ids(refs []Ref) []NodeID {
	out := make([]NodeID, len(refs))
	for i, r := range refs {
		out[i] = r.ID()
	}
	return out
}

// defaultEqual is the distinctness of cells: Go equality, with values that
// cannot be compared always considered different.
func defaultEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()

	return a == b
}
