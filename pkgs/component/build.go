package component

import (
	"strings"

	"github.com/aledsdavies/beast/pkgs/calltree"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
)

// Scope resolves host references found in compiled markup
type Scope map[string]any

// Build constructs the value of a parsed call. Calls become nodes,
// references to the context expression become ctx and other references are
// looked up in scope.
func (rt *Runtime) Build(v calltree.Value, ctx *Node, scope Scope) (any, error) {
	if _, err := rt.Table(); err != nil {
		return nil, err
	}
	return rt.build(v, ctx, scope)
}

// BuildAll builds every top level value
func (rt *Runtime) BuildAll(values []calltree.Value, ctx *Node, scope Scope) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		built, err := rt.Build(v, ctx, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, built)
	}
	return out, nil
}

func (rt *Runtime) build(v calltree.Value, ctx *Node, scope Scope) (any, error) {
	switch t := v.(type) {
	case *calltree.Call:
		var attrs map[string]any
		if t.Attrs != nil {
			attrs = make(map[string]any, len(t.Attrs))
			for _, a := range t.Attrs {
				value, err := rt.build(a.Value, ctx, scope)
				if err != nil {
					return nil, err
				}
				if value != nil {
					attrs[a.Key] = value
				}
			}
		}
		children := make([]any, 0, len(t.Children))
		for _, c := range t.Children {
			child, err := rt.build(c, ctx, scope)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		n, err := rt.newNode(t.Name, attrs, children)
		if err != nil {
			return nil, err
		}
		return n, nil

	case calltree.Str:
		return t.Value, nil
	case calltree.Number:
		return t.Value, nil
	case calltree.Bool:
		return t.Value, nil
	case calltree.Undefined:
		return nil, nil

	case calltree.Ref:
		code := strings.TrimSpace(t.Code)
		if code == rt.contextExpr {
			if ctx == nil {
				return nil, nil
			}
			return ctx, nil
		}
		if value, ok := scope[code]; ok {
			return value, nil
		}
		return nil, beasterrors.Newf(beasterrors.ErrUnresolvedReference, "cannot resolve '%s'", code).
			WithContext("code", code)

	case calltree.Concat:
		var b strings.Builder
		for _, part := range t.Parts {
			value, err := rt.build(part, ctx, scope)
			if err != nil {
				return nil, err
			}
			if value != nil {
				b.WriteString(valueString(value))
			}
		}
		return b.String(), nil
	}
	return nil, beasterrors.Newf(beasterrors.ErrUnresolvedReference, "unsupported value %s", v)
}
