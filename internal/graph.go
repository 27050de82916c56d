package internal

import "slices"

// Projection maps the latest values of its sources, then its pulls, to its
// sink. Map may call emit at most once per invocation; not calling it means
// the sink does not emit from this projection.
type Projection struct {
	Sources []NodeID
	Pulls   []NodeID
	Sink    NodeID

	Map func(values []any, emit func(any))
}

func (p *Projection) HasSource(id NodeID) bool {
	return slices.Contains(p.Sources, id)
}

// Inputs returns sources followed by pulls, in the order Map receives them.
func (p *Projection) Inputs() []NodeID {
	inputs := make([]NodeID, 0, len(p.Sources)+len(p.Pulls))
	inputs = append(inputs, p.Sources...)
	return append(inputs, p.Pulls...)
}

// Graph indexes every projection by the nodes it reads.
type Graph struct {
	// node -> projections reading it, as source or pull
	readers map[NodeID][]*Projection

	// sink -> projections writing it
	writers map[NodeID][]*Projection

	// every projection, in connection order
	all []*Projection
}

func NewGraph() *Graph {
	return &Graph{
		readers: make(map[NodeID][]*Projection),
		writers: make(map[NodeID][]*Projection),
	}
}

func (g *Graph) Add(p *Projection) {
	seen := make(map[NodeID]bool, len(p.Sources)+len(p.Pulls))

	for _, id := range p.Inputs() {
		if seen[id] {
			continue
		}
		seen[id] = true

		g.readers[id] = append(g.readers[id], p)
	}

	g.writers[p.Sink] = append(g.writers[p.Sink], p)
	g.all = append(g.all, p)
}

// Truncate removes every projection added after the first n.
func (g *Graph) Truncate(n int) {
	if n >= len(g.all) {
		return
	}

	for _, p := range g.all[n:] {
		for _, id := range p.Inputs() {
			g.readers[id] = slices.DeleteFunc(g.readers[id], func(q *Projection) bool { return q == p })
		}
		g.writers[p.Sink] = slices.DeleteFunc(g.writers[p.Sink], func(q *Projection) bool { return q == p })
	}

	clear(g.all[n:])
	g.all = g.all[:n]
}

// Readers returns the projections reading id, in connection order.
func (g *Graph) Readers(id NodeID) []*Projection {
	return g.readers[id]
}

// Writers returns the projections whose sink is id.
func (g *Graph) Writers(id NodeID) []*Projection {
	return g.writers[id]
}

// Len returns the number of projections in the graph.
func (g *Graph) Len() int {
	return len(g.all)
}

// FindPath returns a chain of nodes leading from `from` to any of `targets`
// following source edges only, or nil if none of them is reachable.
func (g *Graph) FindPath(from NodeID, targets []NodeID) []NodeID {
	visited := make(map[NodeID]bool)

	var walk func(id NodeID) []NodeID
	walk = func(id NodeID) []NodeID {
		if slices.Contains(targets, id) {
			return []NodeID{id}
		}
		if visited[id] {
			return nil
		}
		visited[id] = true

		for _, p := range g.readers[id] {
			if !p.HasSource(id) {
				continue
			}

			if path := walk(p.Sink); path != nil {
				return append([]NodeID{id}, path...)
			}
		}

		return nil
	}

	return walk(from)
}
