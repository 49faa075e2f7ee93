package fluentsql

import (
	"fmt"
	"reflect"
)

// bindings is the accumulated parameter state of a builder: positional or
// named, never both. A nil bindings means no parameters were added.
type bindings interface {
	isBindings()
}

type positional []any

type named map[string]any

func (positional) isBindings() {}
func (named) isBindings()      {}

// params tracks one builder's parameters and the first error raised while
// adding them. Once err is set every further call is a no-op.
type params struct {
	bound bindings
	err   error
}

func (p *params) add(vs ...any) {
	if p.err != nil {
		return
	}
	switch b := p.bound.(type) {
	case nil:
		p.bound = append(make(positional, 0, len(vs)), vs...)
	case positional:
		p.bound = append(b, vs...)
	case named:
		p.err = fmt.Errorf("%w: cannot add positional parameters after named ones", ErrMixedParameterMode)
	}
}

func (p *params) addNamed(m map[string]any) {
	if p.err != nil {
		return
	}
	var dst named
	switch b := p.bound.(type) {
	case nil:
		dst = make(named, len(m))
	case named:
		dst = b
	case positional:
		p.err = fmt.Errorf("%w: cannot add named parameters after positional ones", ErrMixedParameterMode)
		return
	}
	for k, v := range m {
		if k == "" {
			p.err = fmt.Errorf("fluentsql: named parameter must have a non-empty name")
			return
		}
		dst[k] = v
	}
	p.bound = dst
}

// addStruct adds the exported fields of a struct (or pointer to struct) as
// named parameters, using the same `db` tag rules as the row mapper.
func (p *params) addStruct(v any) {
	if p.err != nil {
		return
	}
	rv := deIndirect(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		p.err = fmt.Errorf("fluentsql: NamedStruct expects a struct, got %T", v)
		return
	}
	m := make(map[string]any)
	for name, fi := range fieldIndexMap(rv.Type()) {
		if fi.ambiguous {
			continue
		}
		if val, ok := getValueByPath(rv, fi.index); ok {
			m[name] = val
		}
	}
	p.addNamed(m)
}

// resolve turns the template and bindings into the final SQL, the values in
// placeholder order and, for named templates, the name bound at each
// position.
func (s *FluentSQL) resolve(template string, b bindings) (string, []any, []string, error) {
	switch b := b.(type) {
	case positional:
		return template, unwrapScalars(b), nil, nil
	case named:
		tr, err := s.transformer.Transform(template, b)
		if err != nil {
			return "", nil, nil, err
		}
		values, names := expand(tr, b)
		return tr.SQL, values, names, nil
	default:
		return template, nil, nil, nil
	}
}

// unwrapScalars returns vs with every Scalar wrapper replaced by the value it
// holds. vs is returned as is when it holds none.
func unwrapScalars(vs positional) []any {
	var out []any
	for i, v := range vs {
		sc, ok := v.(scalar)
		if !ok {
			continue
		}
		if out == nil {
			out = append(make([]any, 0, len(vs)), vs...)
		}
		out[i] = sc.v
	}
	if out == nil {
		return vs
	}
	return out
}
