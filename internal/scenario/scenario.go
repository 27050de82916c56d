package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario describes a graph of numeric nodes and a sequence of publishes
// to run against it.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Nodes []NodeSpec `yaml:"nodes"`

	// Watch lists the nodes whose emissions and final values are traced.
	// Defaults to every node, in declaration order.
	Watch []string `yaml:"watch,omitempty"`

	Steps []Step `yaml:"steps"`
}

// NodeSpec declares one node. A node without an op is only ever written to
// by steps; any other node is fed by a projection from Sources and Pulls.
type NodeSpec struct {
	Name string `yaml:"name"`

	// Kind is one of cell (default), signal or pipe.
	Kind    string  `yaml:"kind,omitempty"`
	Initial float64 `yaml:"initial,omitempty"`

	// Distinct overrides the default distinctness of the kind.
	Distinct *bool `yaml:"distinct,omitempty"`

	Op      string   `yaml:"op,omitempty"`
	Arg     float64  `yaml:"arg,omitempty"`
	Sources []string `yaml:"sources,omitempty"`
	Pulls   []string `yaml:"pulls,omitempty"`
}

// Step publishes every value of Set in a single cycle.
type Step struct {
	Set map[string]float64 `yaml:"set"`
}

const (
	KindCell   = "cell"
	KindSignal = "signal"
	KindPipe   = "pipe"
)

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a scenario, rejecting unknown fields, and validates it.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &s, nil
}

// Validate reports every structural problem of s. Wiring problems, such as
// loops of sources, are only found by Wire.
func (s *Scenario) Validate() error {
	var errs []error

	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Nodes) == 0 {
		errs = append(errs, errors.New("nodes list is required and must be non-empty"))
	}
	if len(s.Steps) == 0 {
		errs = append(errs, errors.New("steps list is required and must be non-empty"))
	}

	known := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.Name == "" {
			errs = append(errs, fmt.Errorf("node %d: name is required", i))
			continue
		}
		if known[n.Name] {
			errs = append(errs, fmt.Errorf("node %q: declared twice", n.Name))
		}
		known[n.Name] = true
	}

	for _, n := range s.Nodes {
		if n.Name == "" {
			continue
		}
		if err := n.validate(known); err != nil {
			errs = append(errs, fmt.Errorf("node %q: %w", n.Name, err))
		}
	}

	for _, name := range s.Watch {
		if !known[name] {
			errs = append(errs, fmt.Errorf("watch: unknown node %q", name))
		}
	}

	for i, step := range s.Steps {
		if len(step.Set) == 0 {
			errs = append(errs, fmt.Errorf("step %d: set is empty", i+1))
		}
		for _, name := range sortedKeys(step.Set) {
			if !known[name] {
				errs = append(errs, fmt.Errorf("step %d: unknown node %q", i+1, name))
			}
		}
	}

	return errors.Join(errs...)
}

func (n NodeSpec) validate(known map[string]bool) error {
	switch n.kind() {
	case KindCell, KindSignal:
	case KindPipe:
		if len(n.Sources) > 0 || len(n.Pulls) > 0 {
			return errors.New("pipes are fed by their own writes and take no sources or pulls")
		}
		if !slices.Contains(pipeOps, n.Op) {
			return fmt.Errorf("op %q cannot run inside a pipe", n.Op)
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", n.Kind)
	}

	if n.Op == "" {
		if len(n.Sources) > 0 || len(n.Pulls) > 0 {
			return errors.New("sources and pulls need an op")
		}
		return nil
	}

	if _, ok := ops[n.Op]; !ok {
		return fmt.Errorf("unknown op %q", n.Op)
	}
	if len(n.Sources) == 0 {
		return fmt.Errorf("op %q needs at least one source", n.Op)
	}
	if n.Op == "count" || n.Op == "accumulate" {
		if n.kind() != KindCell {
			return fmt.Errorf("op %q needs a cell", n.Op)
		}
	}

	for _, name := range append(slices.Clone(n.Sources), n.Pulls...) {
		if !known[name] {
			return fmt.Errorf("unknown node %q", name)
		}
	}

	return nil
}

func (n NodeSpec) kind() string {
	if n.Kind == "" {
		return KindCell
	}
	return n.Kind
}

// stateful nodes keep a value between cycles.
func (n NodeSpec) stateful() bool {
	return n.kind() != KindSignal
}

// watched returns the traced nodes, in trace order.
func (s *Scenario) watched() []string {
	if len(s.Watch) > 0 {
		return s.Watch
	}

	names := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		names[i] = n.Name
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
