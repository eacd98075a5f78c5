package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loopexit/internal/searcher"
)

// Scenario is a scripted engine run.
type Scenario struct {
	// Name uniquely identifies this scenario; also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is a CUE program directory. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Program string `yaml:"program,omitempty"`

	// Modules is an inline CUE program, used when Program is empty.
	Modules string `yaml:"modules,omitempty"`

	// Config overrides the searcher defaults. Unset keys keep their default.
	Config searcher.Config `yaml:"config,omitempty"`

	// Session is a fixed session id for deterministic storage.
	// Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine notification or query.
type Step struct {
	// Op is one of the Op constants.
	Op string `yaml:"op"`

	// State and States name the states an add, remove, move or select step
	// refers to.
	State  string   `yaml:"state,omitempty"`
	States []string `yaml:"states,omitempty"`

	// At is the location used by add and move.
	At string `yaml:"at,omitempty"`

	// Parent and Children describe a fork.
	Parent   string  `yaml:"parent,omitempty"`
	Children []Child `yaml:"children,omitempty"`

	// Module is the module an unload step announces.
	Module string `yaml:"module,omitempty"`

	// Count repeats a tick step.
	Count int `yaml:"count,omitempty"`

	// Expect is checked after the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Child is one branch of a fork.
type Child struct {
	Name string `yaml:"name"`

	// At is where the branch continues. Optional when the child is the
	// parent itself, which then stays where it is.
	At string `yaml:"at,omitempty"`

	// Condition is the branch constraint, kept for logging.
	Condition string `yaml:"condition,omitempty"`
}

// Expect describes the searcher's state after a step.
type Expect struct {
	// Selected is the state a select step must return.
	Selected string `yaml:"selected,omitempty"`

	// Current is the state the current pointer must name.
	Current string `yaml:"current,omitempty"`

	// Pools maps state names to "active", "waiting" or "none".
	Pools map[string]string `yaml:"pools,omitempty"`

	// Priorities maps state names to exact priorities.
	Priorities map[string]int64 `yaml:"priorities,omitempty"`

	// ForkCount checks the fork count of one site.
	ForkCount *SiteCount `yaml:"fork_count,omitempty"`

	Active  *int  `yaml:"active,omitempty"`
	Waiting *int  `yaml:"waiting,omitempty"`
	Empty   *bool `yaml:"empty,omitempty"`

	// Error is the searcher error code the step must fail with, e.g. EMPTY.
	Error string `yaml:"error,omitempty"`
}

// SiteCount is an expected fork count at module+offset.
type SiteCount struct {
	Site  string `yaml:"site"`
	Count uint64 `yaml:"count"`
}

// Operation names.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpFork   = "fork"
	OpMove   = "move"
	OpTick   = "tick"
	OpSelect = "select"
	OpUnload = "unload"
)

// Assertion validates the final trace.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Kind, State and Reason select events (trace_contains, trace_count).
	Kind   string `yaml:"kind,omitempty"`
	State  string `yaml:"state,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order of "kind state" pairs (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Kinds is the expected stored history of State (state_history).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertStateHistory  = "state_history"
)

// LoadScenario reads a scenario file and resolves its program path
// relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. Unknown fields are rejected to catch
// typos. A relative program path is joined to baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	scenario := Scenario{Config: searcher.DefaultConfig()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) && baseDir != "" {
		scenario.Program = filepath.Join(baseDir, scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks the structure. Name references and locations are
// checked while running, once the program is known.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" && s.Modules == "" {
		return fmt.Errorf("program or modules is required")
	}
	if s.Program != "" && s.Modules != "" {
		return fmt.Errorf("program and modules are mutually exclusive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st *Step) error {
	switch st.Op {
	case OpAdd:
		if len(st.names()) == 0 {
			return fmt.Errorf("steps[%d]: add requires state or states", i)
		}
		if st.At == "" {
			return fmt.Errorf("steps[%d]: add requires at", i)
		}
	case OpRemove:
		if len(st.names()) == 0 {
			return fmt.Errorf("steps[%d]: remove requires state or states", i)
		}
	case OpFork:
		if st.Parent == "" {
			return fmt.Errorf("steps[%d]: fork requires parent", i)
		}
		if len(st.Children) == 0 {
			return fmt.Errorf("steps[%d]: fork requires children", i)
		}
		for j, c := range st.Children {
			if c.Name == "" {
				return fmt.Errorf("steps[%d].children[%d]: name is required", i, j)
			}
			if c.At == "" && c.Name != st.Parent {
				return fmt.Errorf("steps[%d].children[%d]: at is required for a new state", i, j)
			}
		}
	case OpMove:
		if st.State == "" || st.At == "" {
			return fmt.Errorf("steps[%d]: move requires state and at", i)
		}
	case OpTick:
		if st.Count < 0 {
			return fmt.Errorf("steps[%d]: count must be non-negative", i)
		}
	case OpSelect:
	case OpUnload:
		if st.Module == "" {
			return fmt.Errorf("steps[%d]: unload requires module", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, st.Op)
	}

	if st.Expect != nil {
		for name, pool := range st.Expect.Pools {
			switch pool {
			case "active", "waiting", "none":
			default:
				return fmt.Errorf("steps[%d].expect.pools[%s]: unknown pool %q", i, name, pool)
			}
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertStateHistory:
		if a.State == "" || len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: state and kinds are required for state_history", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// names returns State and States together.
func (st *Step) names() []string {
	var out []string
	if st.State != "" {
		out = append(out, st.State)
	}
	return append(out, st.States...)
}
