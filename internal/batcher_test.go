package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatcher(t *testing.T) {
	t.Run("nested batches complete once", func(t *testing.T) {
		completed := []map[NodeID]any{}
		onComplete := func(values map[NodeID]any) { completed = append(completed, values) }

		b := NewBatcher()
		assert.False(t, b.IsBatching())

		b.Batch(func() {
			assert.True(t, b.IsBatching())
			b.Collect(map[NodeID]any{1: "a"})

			b.Batch(func() {
				b.Collect(map[NodeID]any{1: "b", 2: "c"})
			}, onComplete)

			assert.Empty(t, completed)
		}, onComplete)

		assert.False(t, b.IsBatching())
		assert.Equal(t, []map[NodeID]any{{1: "b", 2: "c"}}, completed)
	})

	t.Run("empty batches complete silently", func(t *testing.T) {
		called := false

		b := NewBatcher()
		b.Batch(func() {}, func(map[NodeID]any) { called = true })

		assert.False(t, called)
	})

	t.Run("panics end the batch", func(t *testing.T) {
		b := NewBatcher()

		assert.Panics(t, func() {
			b.Batch(func() { panic("boom") }, nil)
		})
		assert.False(t, b.IsBatching())
	})

	t.Run("panics drop collected writes", func(t *testing.T) {
		called := false
		onComplete := func(map[NodeID]any) { called = true }

		b := NewBatcher()

		assert.PanicsWithValue(t, "boom", func() {
			b.Batch(func() {
				b.Collect(map[NodeID]any{1: "a"})
				b.Batch(func() {
					b.Collect(map[NodeID]any{2: "b"})
					panic("boom")
				}, onComplete)
			}, onComplete)
		})
		assert.False(t, called)

		b.Batch(func() { b.Collect(map[NodeID]any{3: "c"}) }, func(values map[NodeID]any) {
			assert.Equal(t, map[NodeID]any{3: "c"}, values)
		})
	})
}
