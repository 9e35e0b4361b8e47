package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/graphcache/internal/engine"
)

// Scenario drives a store through a sequence of operations against a seeded
// server and checks the resulting graph.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models is the CUE models directory. Relative paths resolve against
	// the scenario file's directory.
	Models string `yaml:"models"`

	// Config holds store knobs; unset keys keep the defaults.
	Config engine.Config `yaml:"config,omitempty"`

	// Server is a normalized payload seeded into the backing database
	// before the first step.
	Server map[string]any `yaml:"server,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one store operation.
type Step struct {
	Op string `yaml:"op"`

	// Record addresses the subject as "type:id" or "@alias".
	Record string `yaml:"record,omitempty"`

	// Type and ID are used by create and find.
	Type string   `yaml:"type,omitempty"`
	ID   string   `yaml:"id,omitempty"`
	IDs  []string `yaml:"ids,omitempty"`

	// Query makes a find a query find.
	Query map[string]any `yaml:"query,omitempty"`

	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Target is a relationship target, "type:id" or "@alias".
	Target string `yaml:"target,omitempty"`

	// Data is the initial JSON for create; Payload is pushed by push.
	Data    map[string]any `yaml:"data,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// As names the created or found record for later steps.
	As string `yaml:"as,omitempty"`

	// Force discards local changes on unload.
	Force bool `yaml:"force,omitempty"`

	// ExpectError is the store error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpPush           = "push"
	OpCreate         = "create"
	OpFind           = "find"
	OpSet            = "set"
	OpAddToMany      = "add_to_many"
	OpRemoveFromMany = "remove_from_many"
	OpSetOne         = "set_one"
	OpClearOne       = "clear_one"
	OpSave           = "save"
	OpDelete         = "delete"
	OpReload         = "reload"
	OpUnload         = "unload"
	OpRollback       = "rollback"
)

// Assertion checks the final graph.
type Assertion struct {
	Type   string `yaml:"type"`
	Record string `yaml:"record,omitempty"`
	Field  string `yaml:"field,omitempty"`

	// Value is the expected attribute value, or the expected flag for
	// dirty, new and resident.
	Value any `yaml:"value,omitempty"`

	// Target is the expected hasOne target; empty means none.
	Target  string   `yaml:"target,omitempty"`
	Targets []string `yaml:"targets,omitempty"`
	Count   int      `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertDirty       = "dirty"
	AssertNew         = "new"
	AssertAttribute   = "attribute"
	AssertHasOne      = "has_one"
	AssertHasMany     = "has_many"
	AssertResident    = "resident"
	AssertQueuedCount = "queued_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected and the models path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Models != "" && !filepath.IsAbs(scenario.Models) {
		scenario.Models = filepath.Join(filepath.Dir(path), scenario.Models)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Models == "" {
		return fmt.Errorf("models is required")
	}
	if _, err := os.Stat(s.Models); err != nil {
		return fmt.Errorf("models directory: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d] (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpPush:
		if step.Payload == nil {
			return fmt.Errorf("payload is required")
		}
	case OpCreate:
		if step.Type == "" {
			return fmt.Errorf("type is required")
		}
	case OpFind:
		if step.Type == "" {
			return fmt.Errorf("type is required")
		}
		if step.ID != "" && (len(step.IDs) > 0 || step.Query != nil) {
			return fmt.Errorf("id, ids and query are exclusive")
		}
		if len(step.IDs) > 0 && step.Query != nil {
			return fmt.Errorf("id, ids and query are exclusive")
		}
	case OpSet:
		if step.Record == "" || step.Field == "" {
			return fmt.Errorf("record and field are required")
		}
	case OpAddToMany, OpRemoveFromMany, OpSetOne:
		if step.Record == "" || step.Field == "" || step.Target == "" {
			return fmt.Errorf("record, field and target are required")
		}
	case OpClearOne:
		if step.Record == "" || step.Field == "" {
			return fmt.Errorf("record and field are required")
		}
	case OpSave, OpDelete, OpReload, OpUnload, OpRollback:
		if step.Record == "" {
			return fmt.Errorf("record is required")
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.As != "" && strings.ContainsAny(step.As, "@:") {
		return fmt.Errorf("alias %q may not contain '@' or ':'", step.As)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertDirty, AssertNew, AssertResident:
		if a.Record == "" {
			return fmt.Errorf("record is required")
		}
	case AssertAttribute, AssertHasOne, AssertHasMany:
		if a.Record == "" || a.Field == "" {
			return fmt.Errorf("record and field are required")
		}
	case AssertQueuedCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
