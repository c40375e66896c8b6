// Package constraint defines the contract between sessions and the rules
// that validate a domain, plus a small rule engine implementing it.
//
// A session hands the engine every element touched since it began. Rules
// return diagnostics; an Error diagnostic aborts the session, a Warning is
// reported and the session still commits.
package constraint

import (
	"fmt"
	"strings"
)

// Severity grades a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Kind selects which rules run.
type Kind int

const (
	// KindCheck rules run on every session commit.
	KindCheck Kind = iota
	// KindValidate rules run on demand only, together with the check rules.
	KindValidate
)

func (k Kind) String() string {
	if k == KindValidate {
		return "validate"
	}
	return "check"
}

// Diagnostic is one rule outcome.
type Diagnostic struct {
	Severity     Severity `json:"severity" yaml:"severity"`
	Message      string   `json:"message" yaml:"message"`
	ElementID    string   `json:"element_id" yaml:"element_id"`
	PropertyName string   `json:"property,omitempty" yaml:"property,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", d.Severity, d.Message)
	if d.ElementID != "" {
		fmt.Fprintf(&b, " (element=%s", d.ElementID)
		if d.PropertyName != "" {
			fmt.Fprintf(&b, ", property=%s", d.PropertyName)
		}
		b.WriteString(")")
	}
	return b.String()
}

// HasErrors reports whether any diagnostic has Error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the Error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Element is the view of a domain element a rule sees.
type Element interface {
	ID() string
	SchemaID() string
	PropertyValue(name string) (any, bool)
}

// Checker evaluates constraints over a set of elements.
type Checker interface {
	Check(elements []Element, kind Kind) []Diagnostic
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(elements []Element, kind Kind) []Diagnostic

// Check calls f.
func (f CheckerFunc) Check(elements []Element, kind Kind) []Diagnostic {
	return f(elements, kind)
}
