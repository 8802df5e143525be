// Package calltree reads the expressions produced by the markup compiler back
// into a tree of calls and literal values.
//
// Only the forms the compiler emits are understood: constructor calls,
// attribute objects, string, number and boolean literals, the undefined
// sentinel and '+' concatenation. Any other host code is kept verbatim as a
// Ref.
package calltree

import (
	"strconv"
	"strings"
)

// Kind identifies the concrete type of a Value
type Kind int

const (
	KindCall Kind = iota
	KindString
	KindNumber
	KindBool
	KindUndefined
	KindRef
	KindConcat
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindCall:
		return "Call"
	case KindString:
		return "String"
	case KindNumber:
		return "Number"
	case KindBool:
		return "Bool"
	case KindUndefined:
		return "Undefined"
	case KindRef:
		return "Ref"
	case KindConcat:
		return "Concat"
	default:
		return "Unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a node of the call tree
type Value interface {
	Kind() Kind
	String() string
}

// Call is one constructor call: Callee(name, attrs, children...)
type Call struct {
	Name string
	// Attrs is nil when the call has no attribute object
	Attrs    []Attr
	Children []Value
}

// Attr is one key of an attribute object, in source order
type Attr struct {
	Key   string
	Value Value
}

// Str is a string literal with escapes decoded
type Str struct {
	Value string
}

// Number is a numeric literal
type Number struct {
	Literal string
	Value   float64
}

// Bool is true or false
type Bool struct {
	Value bool
}

// Undefined is the sentinel for an absent attribute object
type Undefined struct{}

// Ref is host code the tree does not interpret, such as an embedded
// expression
type Ref struct {
	Code string
}

// Concat is a '+' chain, as produced for attribute values with embeds
type Concat struct {
	Parts []Value
}

func (*Call) Kind() Kind { return KindCall }
func (Str) Kind() Kind { return KindString }
func (Number) Kind() Kind { return KindNumber }
func (Bool) Kind() Kind { return KindBool }
func (Undefined) Kind() Kind { return KindUndefined }
func (Ref) Kind() Kind { return KindRef }
func (Concat) Kind() Kind { return KindConcat }

func (c *Call) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('(')
	for i, a := range c.Attrs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (s Str) String() string { return strconv.Quote(s.Value) }
func (n Number) String() string { return n.Literal }
func (b Bool) String() string { return strconv.FormatBool(b.Value) }
func (Undefined) String() string { return "undefined" }
func (r Ref) String() string { return "{" + r.Code + "}" }

func (c Concat) String() string {
	parts := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		parts[i] = p.String()
	}
	return strings.Join(parts, " + ")
}

// Attr returns the value of key, if present
func (c *Call) Attr(key string) (Value, bool) {
	for _, a := range c.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}
