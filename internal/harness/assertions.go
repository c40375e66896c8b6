package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/hypergraph/internal/domain"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Trace    []TraceSession // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ts := range e.Trace {
			status := "committed"
			if ts.Aborted {
				status = "aborted"
			}
			fmt.Fprintf(&buf, "  %s (%s)\n", ts.CorrelationID, status)
			for i, ev := range ts.Events {
				fmt.Fprintf(&buf, "    [%d] %v %v\n", i+1, ev["kind"], ev["id"])
			}
		}
	}
	return buf.String()
}

// AssertionContext provides the final graph to state assertions.
type AssertionContext struct {
	Store *domain.Store
}

func (a *AssertionContext) lookup(name, id string) (*domain.Domain, error) {
	if a == nil || a.Store == nil {
		return nil, fmt.Errorf("state assertions require a store")
	}
	if name == "" {
		name, _, _ = strings.Cut(id, ":")
	}
	return a.Store.Domain(name)
}

func assertExists(actx *AssertionContext, a Assertion, want bool) error {
	d, err := actx.lookup(a.Domain, a.ID)
	if err != nil {
		return err
	}
	if got := d.ElementExists(a.ID); got != want {
		state := map[bool]string{true: "exists", false: "absent"}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s", a.ID, state[want]),
			Actual:   fmt.Sprintf("%s %s", a.ID, state[got]),
		}
	}
	return nil
}

func assertProperty(actx *AssertionContext, a Assertion) error {
	d, err := actx.lookup(a.Domain, a.ID)
	if err != nil {
		return err
	}
	got, err := d.GetPropertyValue(a.ID, a.Property)
	if err != nil {
		return &AssertionError{
			Type:     AssertProperty,
			Expected: fmt.Sprintf("%s.%s = %v", a.ID, a.Property, a.Value),
			Actual:   err.Error(),
		}
	}
	want := normalizeValue(a.Value)
	if !valuesEqual(got, want) {
		return &AssertionError{
			Type:     AssertProperty,
			Expected: fmt.Sprintf("%s.%s = %v (%T)", a.ID, a.Property, want, want),
			Actual:   fmt.Sprintf("%v (%T)", got, got),
		}
	}
	return nil
}

// assertEventCount counts committed events of one kind.
func assertEventCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.committedEvents() {
		if ev["kind"] == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertEventOrder checks that the kinds occur as a subsequence of the
// committed events. Intervening events are allowed.
func assertEventOrder(result *Result, a Assertion) error {
	next := 0
	for _, ev := range result.committedEvents() {
		if next < len(a.Kinds) && ev["kind"] == a.Kinds[next] {
			next++
		}
	}
	if next < len(a.Kinds) {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: fmt.Sprintf("events in order: %v", a.Kinds),
			Actual:   fmt.Sprintf("matched %v, missing %s", a.Kinds[:next], a.Kinds[next]),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertSessions(result *Result, a Assertion) error {
	count := len(result.Trace)
	if a.Type == AssertAborted {
		count = 0
		for _, ts := range result.Trace {
			if ts.Aborted {
				count++
			}
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d sessions", a.Count),
			Actual:   fmt.Sprintf("%d sessions", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// valuesEqual compares two values for equality.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertExists:
			err = assertExists(actx, a, true)
		case AssertAbsent:
			err = assertExists(actx, a, false)
		case AssertProperty:
			err = assertProperty(actx, a)
		case AssertEventCount:
			err = assertEventCount(result, a)
		case AssertEventOrder:
			err = assertEventOrder(result, a)
		case AssertSessions, AssertAborted:
			err = assertSessions(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
