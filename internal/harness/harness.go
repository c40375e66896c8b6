package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/domain"
	"github.com/roach88/hypergraph/internal/schema"
	"github.com/roach88/hypergraph/internal/session"
)

// errorNames maps expect_error values to the errors they match.
var errorNames = map[string]func(error) bool{
	"duplicate_element":     func(err error) bool { return errors.Is(err, domain.ErrDuplicateElement) },
	"invalid_element":       func(err error) bool { return errors.Is(err, domain.ErrInvalidElement) },
	"invalid_start_element": func(err error) bool { return errors.Is(err, domain.ErrInvalidStartElement) },
	"schema_kind":           func(err error) bool { return errors.Is(err, domain.ErrSchemaKind) },
	"unknown_domain":        func(err error) bool { return errors.Is(err, domain.ErrUnknownDomain) },
	"duplicate_domain":      func(err error) bool { return errors.Is(err, domain.ErrDuplicateDomain) },
	"aborted":               session.IsAborted,
}

// Harness runs one scenario against a fresh store.
type Harness struct {
	store  *domain.Store
	logger *slog.Logger
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh store with deterministic correlation ids,
// so equal scenarios produce byte-identical traces.
//
// Execution flow:
// 1. Load the schema and derive required-property constraints
// 2. Create the declared domains
// 3. Execute steps, checking expected errors
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// StoreHook is called with the scenario store after its domains exist and
// before any step runs.
type StoreHook func(*domain.Store)

// RunWithLogger is Run with an explicit store logger. Hooks can subscribe
// to the store, for example to journal its sessions.
func RunWithLogger(scenario *Scenario, logger *slog.Logger, hooks ...StoreHook) (*Result, error) {
	prefix := scenario.CorrelationPrefix
	if prefix == "" {
		prefix = "s"
	}
	opts := []domain.Option{
		domain.WithCorrelationGenerator(domain.NewSequenceGenerator(prefix)),
		domain.WithLogger(logger),
	}
	if scenario.Schema != "" {
		reg, err := schema.Load(scenario.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
		if verrs := schema.Validate(reg); len(verrs) > 0 {
			return nil, fmt.Errorf("invalid schema: %w", verrs[0])
		}
		eng := constraint.NewEngine(constraint.WithHierarchy(reg))
		eng.RequireProperties(reg)
		opts = append(opts, domain.WithSchema(reg), domain.WithChecker(eng))
	}

	h := &Harness{
		store:  domain.NewStore(opts...),
		logger: logger,
		result: NewResult(),
	}
	h.store.OnSessionCompleted(h.result.AddSessionTrace)

	for _, name := range scenario.Domains {
		if _, err := h.store.CreateDomain(name); err != nil {
			return nil, fmt.Errorf("failed to create domain %s: %w", name, err)
		}
	}
	for _, hook := range hooks {
		hook(h.store)
	}

	h.executeSteps("steps", scenario.Steps)

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, &AssertionContext{Store: h.store}) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) executeSteps(path string, steps []Step) {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		err := h.execute(at, step)
		if err != nil {
			h.logger.Debug("step failed", "step", at, "op", step.Op, "error", err)
		}
		h.check(at, step, err)
	}
}

// check compares a step outcome with its expectation.
func (h *Harness) check(at string, step Step, err error) {
	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("%s (%s): unexpected error: %v", at, step.Op, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("%s (%s): expected %s error, got none", at, step.Op, step.ExpectError))
	case step.ExpectError != "" && !errorNames[step.ExpectError](err):
		h.result.AddError(fmt.Sprintf("%s (%s): expected %s error, got: %v", at, step.Op, step.ExpectError, err))
	}
}

func (h *Harness) execute(at string, step Step) error {
	switch step.Op {
	case OpCreate:
		d, err := h.store.Domain(step.Domain)
		if err != nil {
			return err
		}
		_, err = d.Create(step.Schema, step.ID)
		return err
	case OpRelate:
		d, err := h.store.Domain(step.Domain)
		if err != nil {
			return err
		}
		_, err = d.CreateRelationship(step.Schema, step.Start, step.End, step.ID)
		return err
	case OpSet:
		d, err := h.domainFor(step.Domain, step.ID)
		if err != nil {
			return err
		}
		return d.SetPropertyValue(step.ID, step.Property, normalizeValue(step.Value))
	case OpUnset:
		d, err := h.domainFor(step.Domain, step.ID)
		if err != nil {
			return err
		}
		return d.SetPropertyValue(step.ID, step.Property, nil)
	case OpRemoveProperty:
		d, err := h.domainFor(step.Domain, step.ID)
		if err != nil {
			return err
		}
		return d.RemovePropertyValue(step.ID, step.Property)
	case OpRemove:
		d, err := h.domainFor(step.Domain, step.ID)
		if err != nil {
			return err
		}
		_, err = d.Remove(step.ID)
		return err
	case OpScope:
		d, err := h.store.Domain(step.Domain)
		if err != nil {
			return err
		}
		_, err = d.CreateScope(step.Name)
		return err
	case OpSession:
		return h.executeSession(at, step)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// executeSession runs nested steps inside one session level. Nested step
// failures are checked against their own expectations; the session step
// reports only the close outcome.
func (h *Harness) executeSession(at string, step Step) error {
	sess := h.store.BeginSession(session.Config{Origin: "scenario"})
	h.executeSteps(at+".steps", step.Steps)
	if step.Accept == nil || *step.Accept {
		if err := sess.AcceptChanges(); err != nil {
			return err
		}
	}
	_, err := sess.Close()
	return err
}

func (h *Harness) domainFor(name, id string) (*domain.Domain, error) {
	if name == "" {
		name, _, _ = strings.Cut(id, ":")
	}
	return h.store.Domain(name)
}

// normalizeValue converts YAML-decoded numbers to the int64/float64 forms
// the event codecs produce, so traces and journals compare equal.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalizeValue(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = normalizeValue(x)
		}
		return out
	default:
		return v
	}
}
