package decl

import (
	"regexp"
	"strings"
)

// ElemSeparator joins a block name and an element name in a selector
const ElemSeparator = "__"

var selectorPart = regexp.MustCompile(`^[a-z][a-z0-9-]*(_[a-z0-9-]+)*$`)

// Declaration is the registered content of one selector
type Declaration struct {
	Selector string
	Fields   Fields

	// Elems lists the element names declared under this block, in
	// registration order
	Elems []string

	// Placeholder is set for blocks created implicitly by registering one of
	// their elements
	Placeholder bool

	// Synthesized is set for element declarations created by the resolver
	Synthesized bool
}

// ParseSelector splits a selector into its block and element names
func ParseSelector(selector string) (block, elem string, ok bool) {
	parts := strings.Split(selector, ElemSeparator)
	switch len(parts) {
	case 1:
		block = parts[0]
	case 2:
		block, elem = parts[0], parts[1]
		if !selectorPart.MatchString(elem) {
			return "", "", false
		}
	default:
		return "", "", false
	}
	if !selectorPart.MatchString(block) {
		return "", "", false
	}
	return block, elem, true
}

// ElemSelector builds block__elem
func ElemSelector(block, elem string) string {
	return block + ElemSeparator + elem
}

// IsBlock reports whether the selector names a block rather than an element
func (d *Declaration) IsBlock() bool {
	return !strings.Contains(d.Selector, ElemSeparator)
}

// Block returns the owning block name
func (d *Declaration) Block() string {
	block, _, _ := ParseSelector(d.Selector)
	return block
}

// Elem returns the element name, empty for blocks
func (d *Declaration) Elem() string {
	_, elem, _ := ParseSelector(d.Selector)
	return elem
}

// Inherits returns the declared parents in priority order
func (d *Declaration) Inherits() []string {
	return stringsField(d.Fields, FieldInherits)
}

// Final returns the field names locked against inheritance
func (d *Declaration) Final() []string {
	return stringsField(d.Fields, FieldFinal)
}

func (d *Declaration) Abstract() bool {
	b, _ := d.Fields[FieldAbstract].(bool)
	return b
}

func (d *Declaration) FinalMod() bool {
	b, _ := d.Fields[FieldFinalMod].(bool)
	return b
}

func (d *Declaration) clone() *Declaration {
	c := *d
	c.Fields = CloneFields(d.Fields)
	c.Elems = append([]string(nil), d.Elems...)
	return &c
}

func (d *Declaration) addElem(name string) {
	for _, e := range d.Elems {
		if e == name {
			return
		}
	}
	d.Elems = append(d.Elems, name)
}

func stringsField(fields Fields, key string) []string {
	list, _ := fields[key].([]string)
	return list
}

// StringList reads a list-valued framework field from a merged field set
func StringList(fields Fields, key string) []string {
	return stringsField(fields, key)
}
