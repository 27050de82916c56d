package internal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := NewEngine(nil, Config{})

		assert.NotEmpty(t, e.Name())
		assert.NotNil(t, e.Logger())
		assert.NotNil(t, e.Clock())
		assert.NotNil(t, e.Registry())
	})

	t.Run("the lock is reentrant for its holder", func(t *testing.T) {
		e := NewEngine(nil, Config{})

		ran := false
		e.Do(func() {
			e.Do(func() { ran = true })
		})

		assert.True(t, ran)
	})

	t.Run("other goroutines wait for the lock", func(t *testing.T) {
		e := NewEngine(nil, Config{})
		log := []string{}

		var wg sync.WaitGroup
		e.Do(func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.Do(func() { log = append(log, "other") })
			}()

			log = append(log, "holder")
		})
		wg.Wait()

		assert.Equal(t, []string{"holder", "other"}, log)
	})

	t.Run("registers definitions once", func(t *testing.T) {
		reg := NewRegistry()
		inits := 0
		id := reg.Define(&Definition{Kind: KindCell, Initial: 1, Init: func(e *Engine, id NodeID) { inits++ }})

		e := NewEngine(reg, Config{})
		e.Register(id)
		e.Register(id)

		assert.Equal(t, 1, inits)
		assert.Equal(t, 1, e.Value(id))
	})

	t.Run("pipes read from out and write to in", func(t *testing.T) {
		reg := NewRegistry()
		id := reg.Define(&Definition{
			Kind:    KindPipe,
			Initial: 0,
			Label:   "double",
			PipeInit: func(e *Engine, in, out NodeID) {
				e.Connect(Projection{
					Sources: []NodeID{in},
					Sink:    out,
					Map:     func(values []any, emit func(any)) { emit(values[0].(int) * 2) },
				})
			},
		})

		e := NewEngine(reg, Config{})
		e.Pub(id, 4)

		assert.Equal(t, 8, e.Value(id))

		in, out, ok := e.PipeEnds(id)
		require.True(t, ok)
		assert.Equal(t, "double.in", reg.Label(in))
		assert.Equal(t, "double.out", reg.Label(out))
	})

	t.Run("connect rejects source loops", func(t *testing.T) {
		e := NewEngine(nil, Config{})
		a := e.NewSignal(nil)
		b := e.NewSignal(nil)

		e.Connect(Projection{Sources: []NodeID{a}, Sink: b, Map: func([]any, func(any)) {}})

		defer func() {
			err, ok := recover().(*CycleError)
			require.True(t, ok)
			assert.Equal(t, []NodeID{a, b, a}, err.Path)
		}()

		e.Connect(Projection{Sources: []NodeID{b}, Sink: a, Map: func([]any, func(any)) {}})
	})

	t.Run("a failed registration is rolled back", func(t *testing.T) {
		reg := NewRegistry()
		link := func(src NodeID) func(e *Engine, id NodeID) {
			return func(e *Engine, id NodeID) {
				e.Connect(Projection{Sources: []NodeID{src}, Sink: id, Map: func(values []any, emit func(any)) { emit(values[0]) }})
			}
		}

		var a, b NodeID
		a = reg.Define(&Definition{Kind: KindCell, Label: "a", Init: func(e *Engine, id NodeID) { link(b)(e, id) }})
		b = reg.Define(&Definition{Kind: KindCell, Label: "b", Init: func(e *Engine, id NodeID) { link(a)(e, id) }})

		e := NewEngine(reg, Config{})

		for range 2 {
			func() {
				defer func() {
					_, ok := recover().(*CycleError)
					assert.True(t, ok)
				}()
				e.Register(a)
			}()

			assert.False(t, e.registered(a))
			assert.False(t, e.registered(b))
			assert.Zero(t, e.graph.Len())
			assert.Empty(t, e.registrations)
		}
	})

	t.Run("cycles count completed publishes", func(t *testing.T) {
		e := NewEngine(nil, Config{})
		a := e.NewCell(0, nil)

		e.PubIn(nil)
		e.Pub(a, 1)
		e.PubIn(map[NodeID]any{a: 2})

		assert.Equal(t, uint64(2), e.Cycles())
		assert.Equal(t, 2, e.Value(a))
	})
}
