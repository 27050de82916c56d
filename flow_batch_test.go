package flow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch(t *testing.T) {
	t.Run("batches multiple writes", func(t *testing.T) {
		log := []string{}

		reg := NewRegistry()
		count := Cell(reg, 0)

		e := NewEngine(reg)
		Sub(e, count, func(v int) {
			log = append(log, fmt.Sprintf("changed %d", v))
		})

		e.Batch(func() {
			Pub(e, count, 10)
			Pub(e, count, 20)
			log = append(log, "updated")
		})

		assert.Equal(t, []string{
			"updated",
			"changed 20",
		}, log)
	})

	t.Run("batches multiple nodes", func(t *testing.T) {
		log := []string{}

		reg := NewRegistry()
		a := Cell(reg, 0)
		b := Cell(reg, 0)

		e := NewEngine(reg)
		sum := Combine(e, a, b)
		Sub(e, sum, func(v []any) {
			log = append(log, fmt.Sprintf("sum %d", v[0].(int)+v[1].(int)))
		})

		e.Batch(func() {
			Pub(e, a, 2)
			Pub(e, b, 3)
		})

		assert.Equal(t, []string{"sum 5"}, log)
		assert.Equal(t, uint64(1), e.Cycles())
	})

	t.Run("nested batches", func(t *testing.T) {
		log := []string{}

		reg := NewRegistry()
		count := Cell(reg, 0)

		e := NewEngine(reg)
		Sub(e, count, func(v int) {
			log = append(log, fmt.Sprintf("changed %d", v))
		})

		e.Batch(func() {
			Pub(e, count, 10)
			e.Batch(func() {
				Pub(e, count, 20)
			})
			log = append(log, "updated")
		})

		assert.Equal(t, []string{
			"updated",
			"changed 20",
		}, log)
	})

	t.Run("a panicking batch publishes nothing", func(t *testing.T) {
		reg := NewRegistry()
		a := Cell(reg, 0)

		e := NewEngine(reg)

		assert.PanicsWithValue(t, "boom", func() {
			e.Batch(func() {
				Pub(e, a, 7)
				panic("boom")
			})
		})

		assert.Equal(t, 0, Value(e, a))
		assert.Equal(t, uint64(0), e.Cycles())

		Pub(e, a, 1)
		assert.Equal(t, 1, Value(e, a))
	})

	t.Run("empty batch runs no cycle", func(t *testing.T) {
		e := NewEngine(nil)
		e.Batch(func() {})

		assert.Equal(t, uint64(0), e.Cycles())
	})
}
