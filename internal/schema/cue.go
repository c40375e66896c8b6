package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// CompileError is a schema compilation error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileCUE compiles CUE source holding a top-level "schema" struct:
//
//	schema: Book: {
//		kind: "entity"
//		properties: {
//			title:  string
//			year?:  int
//			cover?: "Image" // value object reference
//		}
//	}
//
// Regular property fields are required, optional ones are not.
func CompileCUE(src, filename string) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(v)
}

// LoadCUEDir loads every CUE file of the package in dir.
func LoadCUEDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(v)
}

func compileValue(root cue.Value) (*Registry, error) {
	schemas := root.LookupPath(cue.ParsePath("schema"))
	if !schemas.Exists() {
		return nil, &CompileError{Field: "schema", Message: "schema struct is required", Pos: root.Pos()}
	}
	iter, err := schemas.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	r := NewRegistry()
	for iter.Next() {
		el, err := compileElement(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		if err := r.Register(*el); err != nil {
			return nil, &CompileError{Field: "schema." + iter.Label(), Message: err.Error(), Pos: iter.Value().Pos()}
		}
	}
	return r, nil
}

func compileElement(id string, v cue.Value) (*Element, error) {
	el := &Element{ID: id, Kind: KindEntity}

	var err error
	for field, dst := range map[string]*string{
		"base":  &el.Base,
		"start": &el.Start,
		"end":   &el.End,
	} {
		if *dst, err = optionalString(v, field); err != nil {
			return nil, err
		}
	}
	kind, err := optionalString(v, "kind")
	if err != nil {
		return nil, err
	}
	if kind != "" {
		el.Kind = Kind(kind)
	}
	card, err := optionalString(v, "cardinality")
	if err != nil {
		return nil, err
	}
	el.Cardinality = Cardinality(card)

	if ev := v.LookupPath(cue.ParsePath("embedded")); ev.Exists() {
		if el.Embedded, err = ev.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	el.Properties, err = compileProperties(v)
	if err != nil {
		return nil, err
	}
	return el, nil
}

func compileProperties(v cue.Value) ([]Property, error) {
	pv := v.LookupPath(cue.ParsePath("properties"))
	if !pv.Exists() {
		return nil, nil
	}
	iter, err := pv.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}

	var props []Property
	for iter.Next() {
		fv := iter.Value()
		typ, err := extractTypeName(fv)
		if err != nil {
			return nil, err
		}
		p := Property{Name: iter.Label(), Type: typ, Required: !iter.IsOptional()}
		if d, ok := fv.Default(); ok && d.IsConcrete() {
			if err := d.Decode(&p.Default); err != nil {
				return nil, formatCUEError(err)
			}
		}
		props = append(props, p)
	}
	return props, nil
}

// extractTypeName maps a CUE property constraint to a property type. A
// concrete string names a value object or primitive schema.
func extractTypeName(v cue.Value) (string, error) {
	if _, hasDefault := v.Default(); !hasDefault && v.IsConcrete() && v.Kind() == cue.StringKind {
		return v.String()
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.FloatKind, cue.NumberKind:
		return "float", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.ListKind:
		return "array", nil
	case cue.StructKind:
		return "object", nil
	case cue.TopKind:
		return "any", nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
