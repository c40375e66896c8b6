package schema

import "fmt"

// Validation error codes (E100-E199)
const (
	ErrUnknownBase         = "E101" // base schema not registered
	ErrBaseCycle           = "E102" // base chain loops
	ErrInvalidKind         = "E103" // kind not recognised
	ErrMissingEndpoint     = "E104" // relationship without start or end
	ErrUnknownEndpoint     = "E105" // relationship endpoint not registered
	ErrInvalidPropertyType = "E106" // property type not recognised
	ErrDuplicateProperty   = "E107" // property declared twice on one schema
	ErrEmbeddedEntity      = "E108" // embedded set on a non-relationship
	ErrInvalidCardinality  = "E109" // cardinality not recognised
)

// ValidationError is one structural problem in a registry.
type ValidationError struct {
	Schema  string `json:"schema"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Schema, e.Field, e.Message)
}

var builtinTypes = map[string]bool{
	"string": true,
	"int":    true,
	"float":  true,
	"bool":   true,
	"any":    true,
	"array":  true,
	"object": true,
}

// Validate reports every structural problem in r. It does not stop at the
// first one.
func Validate(r *Registry) []ValidationError {
	var errs []ValidationError
	for _, id := range r.order {
		errs = append(errs, validateElement(r, r.elements[id])...)
	}
	return errs
}

func validateElement(r *Registry, el *Element) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Schema:  el.ID,
			Field:   field,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}

	switch el.Kind {
	case KindEntity, KindRelationship, KindValueObject, KindPrimitive:
	default:
		add("kind", ErrInvalidKind, "unknown kind %q", el.Kind)
	}

	if el.Base != "" {
		if _, ok := r.elements[el.Base]; !ok {
			add("base", ErrUnknownBase, "base %s is not registered", el.Base)
		} else if hasCycle(r, el.ID) {
			add("base", ErrBaseCycle, "base chain of %s loops", el.ID)
		}
	}

	if el.Kind == KindRelationship {
		for field, ref := range map[string]string{"start": el.Start, "end": el.End} {
			if ref == "" {
				add(field, ErrMissingEndpoint, "relationship %s is required", field)
				continue
			}
			if _, ok := r.elements[ref]; !ok {
				add(field, ErrUnknownEndpoint, "%s schema %s is not registered", field, ref)
			}
		}
		switch el.Cardinality {
		case "", OneToOne, OneToMany, ManyToOne, ManyToMany:
		default:
			add("cardinality", ErrInvalidCardinality, "unknown cardinality %q", el.Cardinality)
		}
	} else if el.Embedded {
		add("embedded", ErrEmbeddedEntity, "only relationships can be embedded")
	}

	seen := make(map[string]bool)
	for _, p := range el.Properties {
		if seen[p.Name] {
			add("properties."+p.Name, ErrDuplicateProperty, "property %s declared twice", p.Name)
		}
		seen[p.Name] = true
		if !validPropertyType(r, p.Type) {
			add("properties."+p.Name, ErrInvalidPropertyType, "unknown type %q", p.Type)
		}
	}
	sortByField(errs)
	return errs
}

func validPropertyType(r *Registry, t string) bool {
	if builtinTypes[t] {
		return true
	}
	el, ok := r.elements[t]
	return ok && (el.Kind == KindValueObject || el.Kind == KindPrimitive)
}

func hasCycle(r *Registry, id string) bool {
	seen := make(map[string]bool)
	for cur := id; cur != ""; {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		el, ok := r.elements[cur]
		if !ok {
			return false
		}
		cur = el.Base
	}
	return false
}

// sortByField keeps output stable where map iteration produced it.
func sortByField(errs []ValidationError) {
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && errs[j].Field < errs[j-1].Field && errs[j].Code == errs[j-1].Code; j-- {
			errs[j], errs[j-1] = errs[j-1], errs[j]
		}
	}
}
