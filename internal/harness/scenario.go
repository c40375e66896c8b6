package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hypergraph/internal/event"
)

// Scenario defines a conformance test scenario.
// Scenarios drive domain operations step by step, then assert on the
// resulting session trace and the final graph.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a CUE directory, .cue file or YAML schema, relative to the
	// scenario file. Optional; without it elements are untyped and no
	// constraints run.
	Schema string `yaml:"schema,omitempty"`

	// CorrelationPrefix seeds deterministic correlation ids
	// (prefix-1, prefix-2, ...). Defaults to "s".
	CorrelationPrefix string `yaml:"correlation_prefix,omitempty"`

	// Domains are created before the first step.
	Domains []string `yaml:"domains"`

	// Steps run in order. Each step outside a session step runs in its own
	// top-level session.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and graph.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one domain operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Domain names the domain to act on. For id-addressed ops it defaults
	// to the id's prefix.
	Domain string `yaml:"domain,omitempty"`

	// Schema is the element schema for create and relate.
	Schema string `yaml:"schema,omitempty"`

	// ID is the local id for create and relate (empty takes the next
	// sequence id) and the full element id otherwise.
	ID string `yaml:"id,omitempty"`

	// Start and End are relationship endpoints.
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`

	Property string `yaml:"property,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// Name is the scope name for the scope op.
	Name string `yaml:"name,omitempty"`

	// Steps are the nested steps of a session op.
	Steps []Step `yaml:"steps,omitempty"`

	// Accept controls whether a session op accepts its changes.
	// Defaults to true.
	Accept *bool `yaml:"accept,omitempty"`

	// ExpectError names the error the step must fail with. See errorNames.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreate         = "create"
	OpRelate         = "relate"
	OpSet            = "set"
	OpUnset          = "unset"
	OpRemove         = "remove"
	OpRemoveProperty = "remove_property"
	OpSession        = "session"
	OpScope          = "scope"
)

// Assertion validates the trace or the final graph.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// ID is the element id (exists, absent, property).
	ID string `yaml:"id,omitempty"`

	// Domain overrides the id's prefix domain (exists, absent, property).
	Domain string `yaml:"domain,omitempty"`

	// Property and Value are checked by property. A missing value asserts
	// the property is unset.
	Property string `yaml:"property,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// Kind is an event kind name (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Kinds is an ordered list of event kind names (event_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number (event_count, sessions, aborted).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertExists     = "exists"
	AssertAbsent     = "absent"
	AssertProperty   = "property"
	AssertEventCount = "event_count"
	AssertEventOrder = "event_order"
	AssertSessions   = "sessions"
	AssertAborted    = "aborted"
)

// LoadScenario reads and parses a scenario YAML file. The schema path
// resolves against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Domains) == 0 {
		return fmt.Errorf("domains list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema not found: %s", s.Schema)
		}
	}
	if err := validateSteps("steps", s.Steps); err != nil {
		return err
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(path string, steps []Step) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		if step.ExpectError != "" {
			if _, ok := errorNames[step.ExpectError]; !ok {
				return fmt.Errorf("%s: unknown expect_error %q", at, step.ExpectError)
			}
		}
		switch step.Op {
		case OpCreate:
			if step.Domain == "" || step.Schema == "" {
				return fmt.Errorf("%s: domain and schema are required for create", at)
			}
		case OpRelate:
			if step.Domain == "" || step.Schema == "" || step.Start == "" || step.End == "" {
				return fmt.Errorf("%s: domain, schema, start and end are required for relate", at)
			}
		case OpSet:
			if step.ID == "" || step.Property == "" {
				return fmt.Errorf("%s: id and property are required for set", at)
			}
		case OpUnset, OpRemoveProperty:
			if step.ID == "" || step.Property == "" {
				return fmt.Errorf("%s: id and property are required for %s", at, step.Op)
			}
		case OpRemove:
			if step.ID == "" {
				return fmt.Errorf("%s: id is required for remove", at)
			}
		case OpSession:
			if len(step.Steps) == 0 {
				return fmt.Errorf("%s: steps are required for session", at)
			}
			if err := validateSteps(at+".steps", step.Steps); err != nil {
				return err
			}
		case OpScope:
			if step.Domain == "" || step.Name == "" {
				return fmt.Errorf("%s: domain and name are required for scope", at)
			}
		case "":
			return fmt.Errorf("%s: op is required", at)
		default:
			return fmt.Errorf("%s: unknown op %q", at, step.Op)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertExists, AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
	case AssertProperty:
		if a.ID == "" || a.Property == "" {
			return fmt.Errorf("assertions[%d]: id and property are required for property", index)
		}
	case AssertEventCount:
		if _, err := event.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
		for _, k := range a.Kinds {
			if _, err := event.ParseKind(k); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertSessions, AssertAborted:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
