package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a convergence scenario: independent writes on several
// replicas, record exchange between them, and assertions on what each
// replica then observes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicas lists the replicas, each starting empty.
	Replicas []Replica `yaml:"replicas"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Replica declares one replica.
type Replica struct {
	Name string `yaml:"name"`

	// Backend is "sqlite" (in-memory SQLite, the default) or "memory".
	Backend string `yaml:"backend,omitempty"`
}

// Step is one write or one record exchange.
type Step struct {
	// Action is create, revise, attach or sync.
	Action string `yaml:"action"`

	// Replica receives the write (create, revise, attach).
	Replica string `yaml:"replica,omitempty"`

	// Author stamps the write's actions. Defaults to "writer-<replica>".
	Author string `yaml:"author,omitempty"`

	// At is the writer timestamp in microseconds.
	At int64 `yaml:"at,omitempty"`

	// As binds the created aggregate to a label (create).
	As string `yaml:"as,omitempty"`

	// Aggregate is the label of the target aggregate (revise, attach).
	Aggregate string `yaml:"aggregate,omitempty"`

	// Content is the entry content (create, revise, attach).
	Content map[string]any `yaml:"content,omitempty"`

	// From and To name the replicas of a sync.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	// Order is forward (default), reverse or shuffle.
	Order string `yaml:"order,omitempty"`

	// Seed makes a shuffle reproducible.
	Seed uint64 `yaml:"seed,omitempty"`

	// Only restricts a sync to entries, actions or links.
	Only string `yaml:"only,omitempty"`
}

// Assertion validates the final state of one or more replicas.
type Assertion struct {
	// Type is current, not_found, history, timeline, aggregates or converged.
	Type string `yaml:"type"`

	Replica   string `yaml:"replica,omitempty"`
	Aggregate string `yaml:"aggregate,omitempty"`

	// Expect is a subset of the resolved settings (current).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of revisions, attachments or aggregates.
	Count *int `yaml:"count,omitempty"`

	// Key and Values check one content key of the chronological timeline.
	Key    string `yaml:"key,omitempty"`
	Values []any  `yaml:"values,omitempty"`

	// Replicas limits converged to a subset. Empty means all.
	Replicas []string `yaml:"replicas,omitempty"`
}

// Step actions.
const (
	StepCreate = "create"
	StepRevise = "revise"
	StepAttach = "attach"
	StepSync   = "sync"
)

// Sync orders.
const (
	OrderForward = "forward"
	OrderReverse = "reverse"
	OrderShuffle = "shuffle"
)

// Assertion type constants.
const (
	AssertCurrent    = "current"
	AssertNotFound   = "not_found"
	AssertHistory    = "history"
	AssertTimeline   = "timeline"
	AssertAggregates = "aggregates"
	AssertConverged  = "converged"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is inconsistent.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and that every step and
// assertion refers to declared replicas and previously bound labels.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	replicas := make(map[string]bool, len(s.Replicas))
	for i, r := range s.Replicas {
		if r.Name == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if replicas[r.Name] {
			return fmt.Errorf("replicas[%d]: duplicate name %q", i, r.Name)
		}
		switch r.Backend {
		case "", "sqlite", "memory":
		default:
			return fmt.Errorf("replicas[%d]: unknown backend %q", i, r.Backend)
		}
		replicas[r.Name] = true
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, replicas, labels); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, replicas, labels); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, replicas, labels map[string]bool) error {
	switch step.Action {
	case StepCreate, StepRevise, StepAttach:
		if !replicas[step.Replica] {
			return fmt.Errorf("steps[%d]: unknown replica %q", index, step.Replica)
		}
		if step.Content == nil {
			return fmt.Errorf("steps[%d]: content is required for %s", index, step.Action)
		}
		if step.At < 0 {
			return fmt.Errorf("steps[%d]: at must be non-negative", index)
		}
	case StepSync:
		if !replicas[step.From] || !replicas[step.To] {
			return fmt.Errorf("steps[%d]: sync needs declared from and to replicas", index)
		}
		if step.From == step.To {
			return fmt.Errorf("steps[%d]: sync from %q to itself", index, step.From)
		}
		switch step.Order {
		case "", OrderForward, OrderReverse, OrderShuffle:
		default:
			return fmt.Errorf("steps[%d]: unknown order %q", index, step.Order)
		}
		switch step.Only {
		case "", "entries", "actions", "links":
		default:
			return fmt.Errorf("steps[%d]: unknown record filter %q", index, step.Only)
		}
		return nil
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}

	if step.Action == StepCreate {
		if step.As == "" {
			return fmt.Errorf("steps[%d]: as is required for create", index)
		}
		if labels[step.As] {
			return fmt.Errorf("steps[%d]: label %q already bound", index, step.As)
		}
		labels[step.As] = true
		return nil
	}
	if !labels[step.Aggregate] {
		return fmt.Errorf("steps[%d]: aggregate %q is not bound by an earlier create", index, step.Aggregate)
	}
	return nil
}

func validateAssertion(index int, a Assertion, replicas, labels map[string]bool) error {
	switch a.Type {
	case AssertConverged:
		for _, r := range a.Replicas {
			if !replicas[r] {
				return fmt.Errorf("assertions[%d]: unknown replica %q", index, r)
			}
		}
		return nil
	case AssertCurrent, AssertNotFound, AssertHistory, AssertTimeline, AssertAggregates:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if !replicas[a.Replica] {
		return fmt.Errorf("assertions[%d]: unknown replica %q", index, a.Replica)
	}
	if a.Type != AssertAggregates && !labels[a.Aggregate] {
		return fmt.Errorf("assertions[%d]: unknown aggregate %q", index, a.Aggregate)
	}

	switch a.Type {
	case AssertCurrent:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for current", index)
		}
	case AssertHistory, AssertAggregates:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertTimeline:
		if a.Count == nil && a.Key == "" {
			return fmt.Errorf("assertions[%d]: count or key is required for timeline", index)
		}
		if a.Key != "" && a.Values == nil {
			return fmt.Errorf("assertions[%d]: values are required with key", index)
		}
	}
	return nil
}
