package flow

import "github.com/AnatoleLucet/flow/internal"

// Registry holds node definitions. Define nodes once, at startup, then share
// the registry between as many engines as needed.
type Registry struct {
	reg *internal.Registry
}

func NewRegistry() *Registry {
	return &Registry{internal.NewRegistry()}
}

// Label returns the diagnostic name of a node.
func (r *Registry) Label(n Ref) string {
	return r.reg.Label(n.ID())
}

// Len returns the number of nodes defined in the registry.
func (r *Registry) Len() int {
	return r.reg.Len()
}

// Option configures a node definition.
type Option func(*internal.Definition)

// Init sets the function run once per engine, the first time the node is registered.
func Init[T any](fn func(e *Engine, self Node[T])) Option {
	return func(d *internal.Definition) {
		d.Init = func(rt *internal.Engine, id NodeID) {
			fn(wrap(rt), Node[T]{id})
		}
	}
}

// Distinct suppresses emissions equal to the previous value according to eq.
func Distinct[T any](eq func(a, b T) bool) Option {
	return func(d *internal.Definition) {
		d.Equal = func(a, b any) bool {
			return eq(as[T](a), as[T](b))
		}
	}
}

// NotDistinct makes the node emit every value, even when equal to the previous one.
func NotDistinct() Option {
	return func(d *internal.Definition) {
		d.Equal = nil
	}
}

// Label names the node in logs and errors.
func Label(name string) Option {
	return func(d *internal.Definition) {
		d.Label = name
	}
}

func define[T any](reg *Registry, def *internal.Definition, opts []Option) Node[T] {
	for _, opt := range opts {
		opt(def)
	}

	return Node[T]{reg.reg.Define(def)}
}

// Cell defines a stateful node. Cells are distinct by default.
func Cell[T any](reg *Registry, initial T, opts ...Option) Node[T] {
	return define[T](reg, &internal.Definition{
		Kind:    internal.KindCell,
		Initial: initial,
		Equal:   defaultEqual,
	}, opts)
}

// DerivedCell defines a cell fed by the node returned from link, wired on
// registration. An Init option runs before the link is wired.
func DerivedCell[T any](reg *Registry, initial T, link func(e *Engine, self Node[T]) Node[T], opts ...Option) Node[T] {
	opts = append(opts, func(d *internal.Definition) {
		prev := d.Init
		d.Init = func(rt *internal.Engine, id NodeID) {
			if prev != nil {
				prev(rt, id)
			}

			e, self := wrap(rt), Node[T]{id}
			Link(e, link(e, self), self)
		}
	})

	return Cell(reg, initial, opts...)
}

// Signal defines a stateless node. Signals are not distinct by default.
func Signal[T any](reg *Registry, opts ...Option) Node[T] {
	return define[T](reg, &internal.Definition{
		Kind: internal.KindSignal,
	}, opts)
}

// Action defines a valueless signal.
func Action(reg *Registry, opts ...Option) Node[Void] {
	return Signal[Void](reg, opts...)
}

// Pipe defines a composite node. Writes go to in, reads and subscriptions come
// from out, and init wires the former to the latter.
func Pipe[T any](reg *Registry, initial T, init func(e *Engine, in, out Node[T]), opts ...Option) Node[T] {
	return define[T](reg, &internal.Definition{
		Kind:    internal.KindPipe,
		Initial: initial,
		Equal:   defaultEqual,
		PipeInit: func(rt *internal.Engine, in, out NodeID) {
			if init != nil {
				init(wrap(rt), Node[T]{in}, Node[T]{out})
			}
		},
	}, opts)
}
