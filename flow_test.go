package flow

import (
	"fmt"
	"strings"
)

func ExampleCell() {
	reg := NewRegistry()
	count := Cell(reg, 0)

	e := NewEngine(reg)
	fmt.Println(Value(e, count))

	Pub(e, count, 10)
	fmt.Println(Value(e, count))

	// Output:
	// 0
	// 10
}

func ExampleDerivedCell() {
	reg := NewRegistry()
	count := Cell(reg, 1)
	double := DerivedCell(reg, 0, func(e *Engine, _ Node[int]) Node[int] {
		return Chain[int](e, count, Map(func(v int) int {
			fmt.Println("doubling")
			return v * 2
		}))
	})

	e := NewEngine(reg)
	Sub(e, double, func(v int) {
		fmt.Println("double", v)
	})

	Pub(e, count, 10)

	// Output:
	// doubling
	// double 20
}

func ExampleEngine_Batch() {
	reg := NewRegistry()
	a := Cell(reg, 0)
	b := Cell(reg, 0)

	e := NewEngine(reg)
	e.SubMultiple([]Ref{a, b}, func(values []any) {
		fmt.Println(values)
	})

	e.Batch(func() {
		Pub(e, a, 1)
		Pub(e, b, 2)
	})

	// Output:
	// [1 2]
}

func ExampleChain() {
	reg := NewRegistry()
	clicks := Action(reg)

	e := NewEngine(reg)
	evens := Chain[int](e, clicks,
		Scan(func(n int, _ Void) int { return n + 1 }, 0),
		Filter(func(n int) bool { return n%2 == 0 }),
	)
	Sub(e, evens, func(n int) {
		fmt.Println("even clicks:", n)
	})

	for range 4 {
		e.Trigger(clicks)
	}

	// Output:
	// even clicks: 2
	// even clicks: 4
}

func ExamplePipe() {
	reg := NewRegistry()
	trimmed := Pipe(reg, "", func(e *Engine, in, out Node[string]) {
		Link(e, Chain[string](e, in, Map(strings.TrimSpace)), out)
	})

	e := NewEngine(reg)
	Pub(e, trimmed, "  hi  ")
	fmt.Printf("%q\n", Value(e, trimmed))

	// Output:
	// "hi"
}
