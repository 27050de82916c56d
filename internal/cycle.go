package internal

import (
	"maps"
	"slices"
)

// PubIn publishes every value of values in a single cycle.
// Writes made while a cycle is running are queued and run once it completes.
func (e *Engine) PubIn(values map[NodeID]any) {
	if len(values) == 0 {
		return
	}

	release := e.acquire()
	defer release()

	writes := make(map[NodeID]any, len(values))
	for id, v := range values {
		writes[e.resolve(id, true)] = v
	}

	if e.batcher.IsBatching() {
		e.batcher.Collect(writes)
		return
	}

	e.publish(writes)
}

func (e *Engine) Pub(id NodeID, value any) {
	e.PubIn(map[NodeID]any{id: value})
}

// Defer queues fn to run after the current cycle, or runs it right away when idle.
func (e *Engine) Defer(fn func()) {
	release := e.acquire()
	defer release()

	if e.running || e.draining {
		e.queue.Enqueue(fn)
		return
	}

	fn()
}

func (e *Engine) publish(values map[NodeID]any) {
	if e.running {
		e.queue.Enqueue(func() { e.publish(values) })
		e.logger.Debug("publish queued", "nodes", len(values), "pending", e.queue.Len())
		return
	}

	e.runCycle(values)

	if e.draining {
		return
	}

	e.draining = true
	defer func() { e.draining = false }()

	for {
		task, ok := e.queue.Pop()
		if !ok {
			return
		}
		task()
	}
}

func (e *Engine) runCycle(values map[NodeID]any) {
	e.running = true
	defer func() {
		e.running = false

		if r := recover(); r != nil {
			if dropped := e.queue.Clear(); dropped > 0 {
				e.logger.Warn("cycle aborted, pending tasks dropped", "dropped", dropped)
			}
			panic(r)
		}
	}()

	em, built := e.execMaps.Get(e.graph, slices.Collect(maps.Keys(values)))
	if built {
		e.logger.Debug("execution map built", "roots", len(em.Roots), "nodes", len(em.Order))
	}

	c := &cycle{
		e:        e,
		em:       em,
		roots:    values,
		values:   make(map[NodeID]any, len(em.Order)),
		visited:  make(map[NodeID]bool, len(em.Order)),
		resolved: make(map[NodeID]bool, len(em.Order)),
		skipped:  make(map[NodeID]bool),
		refs:     em.RefCount.Clone(),
	}

	c.run()
	e.cycles++

	e.logger.Debug("cycle complete",
		"cycle", e.cycles,
		"scheduled", len(em.Order),
		"resolved", len(c.order),
		"skipped", len(c.skipped),
	)

	c.notify()
}

// cycle is the transient state of one publish.
type cycle struct {
	e  *Engine
	em *ExecMap

	roots map[NodeID]any

	// values emitted during this cycle
	values map[NodeID]any

	visited  map[NodeID]bool
	resolved map[NodeID]bool
	skipped  map[NodeID]bool
	refs     *RefCount

	// resolved nodes, in visiting order
	order []NodeID
}

func (c *cycle) run() {
	for _, id := range c.em.Order {
		if c.skipped[id] {
			continue
		}
		c.visited[id] = true

		if c.visit(id) {
			c.resolved[id] = true
			c.order = append(c.order, id)
		} else {
			c.cancel(id)
		}
	}
}

func (c *cycle) visit(id NodeID) bool {
	inst := c.e.nodes[id]
	resolved := false

	emit := func(v any) {
		if inst != nil && inst.equal != nil {
			if prev, ok := c.previous(id); ok && inst.equal(prev, v) {
				return
			}
		}

		resolved = true
		c.values[id] = v

		if inst != nil && inst.kind == KindCell {
			inst.value = v
		}
	}

	if v, ok := c.roots[id]; ok {
		emit(v)
		return resolved
	}

	for _, p := range c.em.Projections[id] {
		if !c.triggered(p) {
			continue
		}

		inputs := p.Inputs()
		values := make([]any, len(inputs))
		for i, in := range inputs {
			values[i] = c.value(in)
		}

		p.Map(values, emit)
	}

	return resolved
}

// triggered reports whether one of the sources of p resolved this cycle.
func (c *cycle) triggered(p *Projection) bool {
	for _, src := range p.Sources {
		if c.resolved[src] {
			return true
		}
	}
	return false
}

// value is the latest value of id: this cycle's emission, or the persisted state.
func (c *cycle) value(id NodeID) any {
	v, _ := c.previous(id)
	return v
}

func (c *cycle) previous(id NodeID) (any, bool) {
	if v, ok := c.values[id]; ok {
		return v, true
	}

	if inst, ok := c.e.nodes[id]; ok && inst.kind == KindCell {
		return inst.value, true
	}

	return nil, false
}

// cancel retracts the source edges leaving id. Sinks left without any live
// source edge will not emit this cycle, and are cancelled in turn.
func (c *cycle) cancel(id NodeID) {
	for _, p := range c.e.graph.Readers(id) {
		if !p.HasSource(id) || !slices.Contains(c.em.Projections[p.Sink], p) {
			continue
		}

		sink := p.Sink
		if c.refs.Decrement(sink) > 0 {
			continue
		}

		if _, root := c.roots[sink]; root || c.visited[sink] || c.skipped[sink] {
			continue
		}

		c.skipped[sink] = true
		c.cancel(sink)
	}
}

func (c *cycle) notify() {
	for _, id := range c.order {
		inst, ok := c.e.nodes[id]
		if !ok {
			continue
		}

		v := c.values[id]

		for _, sub := range slices.Clone(inst.subs) {
			if sub.active {
				sub.fn(v)
			}
		}

		if sub := inst.singleton; sub != nil && sub.active {
			sub.fn(v)
		}
	}
}
