package scenario

import (
	"fmt"
	"math"

	"github.com/AnatoleLucet/flow"
)

// mapper computes the value of a node from its inputs: sources, then pulls,
// then the node itself for ops reading their own state.
type mapper func(in []float64, emit func(float64))

type opSpec struct {
	selfPull bool
	build    func(n NodeSpec) mapper
}

var ops = map[string]opSpec{
	"link": {build: func(NodeSpec) mapper {
		return func(in []float64, emit func(float64)) { emit(in[0]) }
	}},
	"sum": {build: func(NodeSpec) mapper {
		return func(in []float64, emit func(float64)) { emit(sum(in)) }
	}},
	"product": {build: func(NodeSpec) mapper {
		return func(in []float64, emit func(float64)) {
			p := 1.0
			for _, v := range in {
				p *= v
			}
			emit(p)
		}
	}},
	"scale": {build: func(n NodeSpec) mapper {
		return func(in []float64, emit func(float64)) { emit(in[0] * n.Arg) }
	}},
	"offset": {build: func(n NodeSpec) mapper {
		return func(in []float64, emit func(float64)) { emit(in[0] + n.Arg) }
	}},
	"filter-even": {build: func(NodeSpec) mapper {
		return func(in []float64, emit func(float64)) {
			if math.Mod(in[0], 2) == 0 {
				emit(in[0])
			}
		}
	}},
	"filter-odd": {build: func(NodeSpec) mapper {
		return func(in []float64, emit func(float64)) {
			if math.Abs(math.Mod(in[0], 2)) == 1 {
				emit(in[0])
			}
		}
	}},
	"once": {build: func(NodeSpec) mapper {
		done := false
		return func(in []float64, emit func(float64)) {
			if !done {
				done = true
				emit(in[0])
			}
		}
	}},
	"count": {selfPull: true, build: func(NodeSpec) mapper {
		return func(in []float64, emit func(float64)) { emit(in[len(in)-1] + 1) }
	}},
	"accumulate": {selfPull: true, build: func(n NodeSpec) mapper {
		return func(in []float64, emit func(float64)) {
			emit(in[len(in)-1] + sum(in[:len(n.Sources)]))
		}
	}},
}

var pipeOps = []string{"", "link", "scale", "offset", "filter-even", "filter-odd", "once"}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// Graph is a scenario turned into node definitions.
type Graph struct {
	Registry *flow.Registry

	specs map[string]NodeSpec
	nodes map[string]flow.Node[float64]
	order []string
}

// Build defines a node per NodeSpec. Projections are wired by the node
// initializers, once per engine, the first time a node is registered.
func Build(s *Scenario) (*Graph, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	g := &Graph{
		Registry: flow.NewRegistry(),
		specs:    make(map[string]NodeSpec, len(s.Nodes)),
		nodes:    make(map[string]flow.Node[float64], len(s.Nodes)),
	}

	for _, n := range s.Nodes {
		g.specs[n.Name] = n
		g.nodes[n.Name] = g.define(n)
		g.order = append(g.order, n.Name)
	}

	return g, nil
}

func (g *Graph) define(n NodeSpec) flow.Node[float64] {
	opts := []flow.Option{flow.Label(n.Name)}
	if n.Distinct != nil {
		if *n.Distinct {
			opts = append(opts, flow.Distinct(func(a, b float64) bool { return a == b }))
		} else {
			opts = append(opts, flow.NotDistinct())
		}
	}

	switch n.kind() {
	case KindPipe:
		return flow.Pipe(g.Registry, n.Initial, func(e *flow.Engine, in, out flow.Node[float64]) {
			op := n.Op
			if op == "" {
				op = "link"
			}
			g.connect(e, ops[op].build(n), []flow.Ref{in}, nil, out)
		}, opts...)
	case KindSignal:
		if n.Op != "" {
			opts = append(opts, flow.Init(g.wire(n)))
		}
		return flow.Signal[float64](g.Registry, opts...)
	default:
		if n.Op != "" {
			opts = append(opts, flow.Init(g.wire(n)))
		}
		return flow.Cell(g.Registry, n.Initial, opts...)
	}
}

func (g *Graph) wire(n NodeSpec) func(e *flow.Engine, self flow.Node[float64]) {
	return func(e *flow.Engine, self flow.Node[float64]) {
		op := ops[n.Op]

		pulls := g.refs(n.Pulls)
		if op.selfPull {
			pulls = append(pulls, self)
		}

		g.connect(e, op.build(n), g.refs(n.Sources), pulls, self)
	}
}

func (g *Graph) connect(e *flow.Engine, fn mapper, sources, pulls []flow.Ref, sink flow.Ref) {
	e.Connect(flow.Projection{
		Sources: sources,
		Pulls:   pulls,
		Sink:    sink,
		Map: func(values []any, emit func(any)) {
			in := make([]float64, len(values))
			for i, v := range values {
				in[i], _ = v.(float64)
			}

			fn(in, func(v float64) { emit(v) })
		},
	})
}

func (g *Graph) refs(names []string) []flow.Ref {
	refs := make([]flow.Ref, len(names))
	for i, name := range names {
		refs[i] = g.nodes[name]
	}
	return refs
}

// Node returns the node declared as name.
func (g *Graph) Node(name string) (flow.Node[float64], bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Wire registers every node on e in declaration order, running their
// initializers. Loops of sources are reported as a *flow.CycleError.
func (g *Graph) Wire(e *flow.Engine) error {
	for _, name := range g.order {
		if err := register(e, g.nodes[name]); err != nil {
			return fmt.Errorf("wiring node %q: %w", name, err)
		}
	}

	return nil
}

func register(e *flow.Engine, n flow.Ref) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cycle, ok := r.(*flow.CycleError)
			if !ok {
				panic(r)
			}
			err = cycle
		}
	}()

	e.Register(n)
	return nil
}
