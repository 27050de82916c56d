package internal

import "maps"

type Batcher struct {
	// each nested batch increases the depth by 1
	// if depth > 0, writes are collected until the outermost batch is complete
	depth int

	values map[NodeID]any
}

func NewBatcher() *Batcher {
	return &Batcher{
		depth:  0,
		values: make(map[NodeID]any),
	}
}

func (b *Batcher) IsBatching() bool {
	return b.depth > 0
}

// Collect records writes made during a batch. Later writes to the same node win.
func (b *Batcher) Collect(values map[NodeID]any) {
	maps.Copy(b.values, values)
}

// Batch runs fn, then hands every collected write to onComplete once the outermost batch returns.
// A panic in fn drops every write collected by the outermost batch.
func (b *Batcher) Batch(fn func(), onComplete func(map[NodeID]any)) {
	b.depth++
	defer func() {
		b.depth--

		if r := recover(); r != nil {
			if b.depth == 0 {
				b.values = make(map[NodeID]any)
			}
			panic(r)
		}

		if b.depth > 0 {
			return
		}

		values := b.values
		b.values = make(map[NodeID]any)

		if len(values) > 0 && onComplete != nil {
			onComplete(values)
		}
	}()

	fn()
}

func (e *Engine) Batch(fn func()) {
	release := e.acquire()
	defer release()

	e.batcher.Batch(fn, e.publish)
}
