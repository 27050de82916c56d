package internal

import (
	"slices"
	"strconv"
	"strings"
)

// ExecMap is the schedule of one publish cycle for a given set of written nodes.
type ExecMap struct {
	Roots []NodeID

	// participating nodes, each one after every participating source or pull it reads
	Order []NodeID

	// sink -> projections having at least one participating source
	Projections map[NodeID][]*Projection

	// sink -> participating nodes it reads as pulls
	PendingPulls map[NodeID][]NodeID

	RefCount *RefCount
}

// BuildExecMap walks g from roots along source edges.
func BuildExecMap(g *Graph, roots []NodeID) *ExecMap {
	em := &ExecMap{
		Roots:        slices.Clone(roots),
		Projections:  make(map[NodeID][]*Projection),
		PendingPulls: make(map[NodeID][]NodeID),
		RefCount:     NewRefCount(),
	}

	visited := make(map[NodeID]bool)
	discovered := make([]NodeID, 0, len(roots))

	var visit func(id NodeID)
	visit = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		discovered = append(discovered, id)

		for _, p := range g.Readers(id) {
			if !p.HasSource(id) {
				continue
			}

			em.RefCount.Increment(p.Sink)
			if !slices.Contains(em.Projections[p.Sink], p) {
				em.Projections[p.Sink] = append(em.Projections[p.Sink], p)
			}

			visit(p.Sink)
		}
	}

	for _, root := range roots {
		visit(root)
	}

	// pred -> pull only edge?
	preds := make(map[NodeID]map[NodeID]bool, len(discovered))
	for _, id := range discovered {
		preds[id] = make(map[NodeID]bool)

		for _, p := range em.Projections[id] {
			for _, src := range p.Sources {
				if visited[src] && src != id {
					preds[id][src] = false
				}
			}

			for _, pull := range p.Pulls {
				if !visited[pull] || pull == id || slices.Contains(em.PendingPulls[id], pull) {
					continue
				}

				em.PendingPulls[id] = append(em.PendingPulls[id], pull)
				if _, ok := preds[id][pull]; !ok {
					preds[id][pull] = true
				}
			}
		}
	}

	em.Order = topoSort(discovered, preds)

	return em
}

// topoSort is Kahn's algorithm, stable with respect to discovery order.
// When only pull edges are left blocking, the earliest discovered node is released.
func topoSort(nodes []NodeID, preds map[NodeID]map[NodeID]bool) []NodeID {
	position := make(map[NodeID]int, len(nodes))
	for i, id := range nodes {
		position[id] = i
	}

	succs := make(map[NodeID][]NodeID, len(nodes))
	for _, id := range nodes {
		for pred := range preds[id] {
			succs[pred] = append(succs[pred], id)
		}
	}
	for _, s := range succs {
		slices.SortFunc(s, func(a, b NodeID) int {
			return position[a] - position[b]
		})
	}

	order := make([]NodeID, 0, len(nodes))
	queued := make(map[NodeID]bool, len(nodes))
	ready := make([]NodeID, 0, len(nodes))

	for _, id := range nodes {
		if len(preds[id]) == 0 {
			ready = append(ready, id)
			queued[id] = true
		}
	}

	for len(order) < len(nodes) {
		if len(ready) == 0 {
			id, ok := releasePullOnly(nodes, preds, queued)
			if !ok {
				// source edges loop, connect should have refused this
				for _, id := range nodes {
					if !queued[id] {
						order = append(order, id)
						queued[id] = true
					}
				}
				break
			}

			ready = append(ready, id)
			queued[id] = true
		}

		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, s := range succs[id] {
			delete(preds[s], id)
			if len(preds[s]) == 0 && !queued[s] {
				ready = append(ready, s)
				queued[s] = true
			}
		}
	}

	return order
}

func releasePullOnly(nodes []NodeID, preds map[NodeID]map[NodeID]bool, queued map[NodeID]bool) (NodeID, bool) {
	for _, id := range nodes {
		if queued[id] {
			continue
		}

		pullOnly := true
		for _, pull := range preds[id] {
			if !pull {
				pullOnly = false
				break
			}
		}

		if pullOnly {
			clear(preds[id])
			return id, true
		}
	}

	return 0, false
}

// ExecMapCache keeps one execution map per distinct root set.
type ExecMapCache struct {
	maps map[string]*ExecMap
}

func NewExecMapCache() *ExecMapCache {
	return &ExecMapCache{maps: make(map[string]*ExecMap)}
}

// Get returns the cached map for roots, building it when missing.
// The second result reports whether the map was built by this call.
func (c *ExecMapCache) Get(g *Graph, roots []NodeID) (*ExecMap, bool) {
	sorted := slices.Clone(roots)
	slices.Sort(sorted)

	key := execMapKey(sorted)
	if em, ok := c.maps[key]; ok {
		return em, false
	}

	em := BuildExecMap(g, sorted)
	c.maps[key] = em
	return em, true
}

func (c *ExecMapCache) Invalidate() {
	clear(c.maps)
}

func (c *ExecMapCache) Len() int {
	return len(c.maps)
}

func execMapKey(sorted []NodeID) string {
	var b strings.Builder
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}
