package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AnatoleLucet/flow"
)

// Trace records what a scenario run emitted, step by step.
type Trace struct {
	Scenario string      `json:"scenario"`
	Steps    []StepTrace `json:"steps"`
	Final    []NodeValue `json:"final"`
	Cycles   uint64      `json:"cycles"`
}

type StepTrace struct {
	Set map[string]float64 `json:"set"`

	// Emissions of watched nodes, in the order the cycle resolved them.
	Emissions []NodeValue `json:"emissions"`
}

type NodeValue struct {
	Node  string  `json:"node"`
	Value float64 `json:"value"`
}

// Run builds s on a fresh engine and publishes its steps in order, each in a
// single cycle.
func Run(s *Scenario, opts ...flow.EngineOption) (*Trace, error) {
	g, err := Build(s)
	if err != nil {
		return nil, err
	}

	e := flow.NewEngine(g.Registry, append([]flow.EngineOption{flow.WithName(s.Name)}, opts...)...)
	if err := g.Wire(e); err != nil {
		return nil, err
	}

	trace := &Trace{Scenario: s.Name, Steps: make([]StepTrace, 0, len(s.Steps))}

	var current *StepTrace
	for _, name := range s.watched() {
		flow.Sub(e, g.nodes[name], func(v float64) {
			current.Emissions = append(current.Emissions, NodeValue{Node: name, Value: v})
		})
	}

	for i, step := range s.Steps {
		trace.Steps = append(trace.Steps, StepTrace{Set: step.Set, Emissions: []NodeValue{}})
		current = &trace.Steps[len(trace.Steps)-1]

		assignments := make([]flow.Assignment, 0, len(step.Set))
		for _, name := range sortedKeys(step.Set) {
			assignments = append(assignments, flow.Set(g.nodes[name], step.Set[name]))
		}

		e.Logger().Debug("running step", "step", i+1, "nodes", len(assignments))
		e.PubIn(assignments...)
	}

	trace.Final = []NodeValue{}
	for _, name := range s.watched() {
		if !g.specs[name].stateful() {
			continue
		}
		trace.Final = append(trace.Final, NodeValue{Node: name, Value: flow.Value(e, g.nodes[name])})
	}
	trace.Cycles = e.Cycles()

	return trace, nil
}

// WriteText writes a human readable rendition of t.
func (t *Trace) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario %s\n", t.Scenario)

	for i, step := range t.Steps {
		set := make([]string, 0, len(step.Set))
		for _, name := range sortedKeys(step.Set) {
			set = append(set, name+"="+formatValue(step.Set[name]))
		}
		fmt.Fprintf(&b, "step %d: set %s\n", i+1, strings.Join(set, " "))

		if len(step.Emissions) == 0 {
			b.WriteString("  no emissions\n")
		}
		for _, em := range step.Emissions {
			fmt.Fprintf(&b, "  %s = %s\n", em.Node, formatValue(em.Value))
		}
	}

	final := make([]string, len(t.Final))
	for i, nv := range t.Final {
		final[i] = nv.Node + "=" + formatValue(nv.Value)
	}
	fmt.Fprintf(&b, "final: %s\n", strings.Join(final, " "))
	fmt.Fprintf(&b, "cycles: %d\n", t.Cycles)

	_, err := io.WriteString(w, b.String())
	return err
}

func (t *Trace) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(t)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
