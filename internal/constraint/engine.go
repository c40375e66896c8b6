package constraint

import (
	"fmt"
	"log/slog"
)

// Rule checks one element. Verify returns a message when the element
// violates the rule and ok=true when it is satisfied.
type Rule struct {
	Name string
	// SchemaID restricts the rule to elements of that schema or a schema
	// derived from it. Empty matches every element.
	SchemaID     string
	Kind         Kind
	Severity     Severity
	PropertyName string
	Verify       func(el Element) (message string, ok bool)
}

// Hierarchy answers schema inheritance questions for rule matching.
type Hierarchy interface {
	IsA(schemaID, baseID string) bool
}

// RequiredSource lists the properties each schema requires.
type RequiredSource interface {
	Hierarchy
	SchemaIDs() []string
	RequiredProperties(schemaID string) []string
}

// Engine is a rule-based Checker.
type Engine struct {
	rules     []Rule
	hierarchy Hierarchy
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHierarchy lets rules declared on a base schema apply to derived ones.
func WithHierarchy(h Hierarchy) EngineOption {
	return func(e *Engine) {
		e.hierarchy = h
	}
}

// NewEngine creates an engine with no rules.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add registers rules in evaluation order.
func (e *Engine) Add(rules ...Rule) {
	e.rules = append(e.rules, rules...)
}

// Len returns the number of registered rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// RequireProperties adds one Error check rule per required property declared
// by src. A required property is satisfied by any non-nil value.
func (e *Engine) RequireProperties(src RequiredSource) {
	if e.hierarchy == nil {
		e.hierarchy = src
	}
	for _, schemaID := range src.SchemaIDs() {
		for _, name := range src.RequiredProperties(schemaID) {
			e.Add(requiredRule(schemaID, name))
		}
	}
}

func requiredRule(schemaID, name string) Rule {
	return Rule{
		Name:         fmt.Sprintf("%s.%s.required", schemaID, name),
		SchemaID:     schemaID,
		Kind:         KindCheck,
		Severity:     SeverityError,
		PropertyName: name,
		Verify: func(el Element) (string, bool) {
			if v, ok := el.PropertyValue(name); ok && v != nil {
				return "", true
			}
			return fmt.Sprintf("property %s is required on %s", name, el.SchemaID()), false
		},
	}
}

// Check runs every matching rule of the requested kind. KindValidate also
// runs the check rules. Diagnostics come out in element order, then rule
// order.
func (e *Engine) Check(elements []Element, kind Kind) []Diagnostic {
	var diags []Diagnostic
	for _, el := range elements {
		for _, r := range e.rules {
			if r.Kind == KindValidate && kind != KindValidate {
				continue
			}
			if !e.applies(r, el) {
				continue
			}
			msg, ok := r.Verify(el)
			if ok {
				continue
			}
			diags = append(diags, Diagnostic{
				Severity:     r.Severity,
				Message:      msg,
				ElementID:    el.ID(),
				PropertyName: r.PropertyName,
			})
		}
	}
	if len(diags) > 0 {
		slog.Debug("constraints reported diagnostics",
			"kind", kind,
			"elements", len(elements),
			"diagnostics", len(diags),
			"errors", len(Errors(diags)))
	}
	return diags
}

func (e *Engine) applies(r Rule, el Element) bool {
	if r.SchemaID == "" || r.SchemaID == el.SchemaID() {
		return true
	}
	return e.hierarchy != nil && e.hierarchy.IsA(el.SchemaID(), r.SchemaID)
}
