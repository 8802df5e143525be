package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/aledsdavies/beast/pkgs/decl"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

// ClassNames returns the CSS classes of n: its selector, its non-abstract
// ancestors, mixes, then one class per active modifier and selector allowed
// to emit it
func (n *Node) ClassNames() []string {
	var fm resolve.FinalModTable
	if n.entry != nil {
		fm = n.entry.FinalMod
	}
	return n.classNames(fm)
}

// ClassName joins ClassNames with spaces
func (n *Node) ClassName() string {
	return strings.Join(n.ClassNames(), " ")
}

func (n *Node) classNames(fm resolve.FinalModTable) []string {
	var classes []string
	selectors := n.domInherits
	if n.selector != "" {
		classes = append(classes, n.selector)
		selectors = append([]string{n.selector}, n.domInherits...)
	}
	classes = append(classes, n.domInherits...)
	classes = append(classes, n.mix...)

	for _, mod := range sortedKeys(n.mods) {
		value := n.mods[mod]
		if value == nil || value == false || value == "" {
			continue
		}
		tail := "_" + mod
		if value != true {
			tail += "_" + valueString(value)
		}
		for _, sel := range selectors {
			if fm.Emits(mod, sel) {
				classes = append(classes, sel+tail)
			}
		}
	}

	if n.implemented != nil {
		classes = append(classes, n.implemented.classNames(fm)...)
	}
	return classes
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case *Node:
		return t.String()
	}
	return fmt.Sprint(v)
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "command": true,
	"embed": true, "hr": true, "img": true, "input": true, "keygen": true,
	"link": true, "meta": true, "param": true, "source": true, "track": true,
	"wbr": true,
}

// RenderHTML expands n and writes the static HTML of its subtree
func (n *Node) RenderHTML(w io.Writer) error {
	root, err := n.htmlNode()
	if err != nil {
		return err
	}
	return html.Render(w, root)
}

// HTML returns the static HTML of n
func (n *Node) HTML() (string, error) {
	var buf bytes.Buffer
	if err := n.RenderHTML(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (n *Node) htmlNode() (*html.Node, error) {
	node := n
	for {
		if err := node.expand(); err != nil {
			return nil, err
		}
		if node.implementedWith == nil {
			break
		}
		node = node.implementedWith
	}

	el := &html.Node{
		Type:     html.ElementNode,
		Data:     node.tag,
		DataAtom: atom.Lookup([]byte(node.tag)),
	}
	attr := func(key, val string) {
		el.Attr = append(el.Attr, html.Attribute{Key: key, Val: val})
	}

	attr("data-node-name", node.name)
	for _, key := range sortedKeys(node.domAttrs) {
		if v := node.domAttrs[key]; v != nil {
			attr(key, valueString(v))
		}
	}
	attr("class", node.ClassName())
	if len(node.mods) > 0 {
		attr("data-mod", jsonString(node.mods))
	}
	if len(node.params) > 0 {
		attr("data-param", jsonString(node.params))
	}
	if node.implemented != nil {
		attr("data-implemented-node-name", node.implemented.name)
	}
	if node.noElems {
		attr("data-no-elems", "1")
	}

	if voidTags[node.tag] {
		return el, nil
	}
	for _, c := range node.children {
		switch child := c.(type) {
		case *Node:
			sub, err := child.htmlNode()
			if err != nil {
				return nil, err
			}
			el.AppendChild(sub)
		case string:
			el.AppendChild(&html.Node{Type: html.TextNode, Data: child})
		}
	}
	return el, nil
}

// jsonString encodes a mods or params map. Nested nodes are written as
// their constructor expression and functions are left out.
func jsonString(values map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(jsonValue(values)); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case *Node:
		return t.String()
	case decl.Func:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			if _, isFunc := item.(decl.Func); isFunc {
				continue
			}
			out[k] = jsonValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = jsonValue(item)
		}
		return out
	}
	return v
}

// String prints n back as a constructor expression that the markup compiler
// could have produced
func (n *Node) String() string {
	var b strings.Builder
	b.WriteString(n.rt.callee)
	b.WriteString("(")
	b.WriteString(quote(n.name))

	var attrs []string
	for _, key := range sortedKeys(n.mods) {
		name := blockName(key)
		switch v := n.mods[key].(type) {
		case string:
			attrs = append(attrs, quote(name)+":"+quote(v))
		case nil:
		default:
			attrs = append(attrs, quote(name)+":"+valueString(v))
		}
	}
	for _, key := range sortedKeys(n.params) {
		switch v := n.params[key].(type) {
		case string:
			attrs = append(attrs, quote(key)+":"+quote(v))
		case float64:
			attrs = append(attrs, quote(key)+":"+quote(valueString(v)))
		}
	}
	if len(attrs) == 0 {
		b.WriteString(",undefined")
	} else {
		b.WriteString(",{" + strings.Join(attrs, ",") + "}")
	}

	for _, c := range n.children {
		b.WriteString(",")
		if child, ok := c.(*Node); ok {
			b.WriteString(child.String())
		} else {
			b.WriteString(quote(valueString(c)))
		}
	}
	b.WriteString(")")
	return b.String()
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
