package component

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aledsdavies/beast/pkgs/decl"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

// Node is a component instance. Children are *Node values or text.
type Node struct {
	rt       *Runtime
	name     string
	selector string
	isBlock  bool

	entry *resolve.Entry
	// domInherits is the flattened chain without abstract ancestors
	domInherits []string

	mods     map[string]any
	params   map[string]any
	domAttrs map[string]any
	tag      string
	mix      []string
	noElems  bool

	children         []any
	expandedChildren []any
	expandContext    bool
	replaceContext   bool
	expanded         bool
	mounted          bool

	parent      *Node
	parentBlock *Node
	elems       []*Node

	events      map[string][]binding
	winEvents   map[string][]binding
	modHandlers map[string]map[string][]binding

	implemented     *Node
	implementedWith *Node
}

type binding struct {
	chain       []decl.Impl
	preventable bool
}

// Self returns the node a declaration function runs on
func Self(c *decl.Call) *Node {
	n, _ := c.Self.(*Node)
	return n
}

// Name returns the node name as written in markup
func (n *Node) Name() string { return n.name }

// Selector returns the bound declaration selector, empty for an element not
// yet attached to a block
func (n *Node) Selector() string { return n.selector }

func (n *Node) IsBlock() bool { return n.isBlock }
func (n *Node) IsElem() bool  { return !n.isBlock }

// Entry returns the resolved declaration, nil for undeclared selectors
func (n *Node) Entry() *resolve.Entry { return n.entry }

// Runtime returns the runtime that constructed n
func (n *Node) Runtime() *Runtime { return n.rt }

// Tag returns the HTML tag name
func (n *Node) Tag() string { return n.tag }

// Mounted reports whether n has been rendered
func (n *Node) Mounted() bool { return n.mounted }

// IsKindOf reports whether n is bound to selector or inherits it
func (n *Node) IsKindOf(selector string) bool {
	if n.entry == nil {
		return strings.EqualFold(n.selector, selector)
	}
	return n.entry.IsKindOf(selector)
}

// bind attaches the declaration for selector. Defaults of a previous
// declaration that were never changed are dropped first.
func (n *Node) bind(selector string) {
	if old := n.entry; old != nil {
		dropDefaults(n.mods, old.Mods)
		dropDefaults(n.params, old.Params)
	}

	n.selector = selector
	n.entry = n.rt.entry(selector)
	n.domInherits = nil
	if n.entry == nil {
		return
	}

	fillDefaults(n.mods, n.entry.Mods)
	fillDefaults(n.params, n.entry.Params)
	for _, sel := range n.entry.Flattened {
		ancestor := n.rt.entry(sel)
		if ancestor == nil || !ancestor.Abstract {
			n.domInherits = append(n.domInherits, sel)
			continue
		}
		fillDefaults(n.mods, ancestor.Mods)
		fillDefaults(n.params, ancestor.Params)
	}
}

func fillDefaults(actual, defaults map[string]any) {
	for k, v := range defaults {
		if cur, ok := actual[k]; !ok || cur == nil || cur == "" {
			actual[k] = decl.Clone(v)
		}
	}
}

func dropDefaults(actual, defaults map[string]any) {
	for k, v := range defaults {
		if cur, ok := actual[k]; ok && decl.Equal(cur, v) {
			delete(actual, k)
		}
	}
}

// ParentBlock returns the block owning n. A block owns itself.
func (n *Node) ParentBlock() *Node {
	if n.implemented != nil {
		return n.implemented.parentBlock
	}
	return n.parentBlock
}

// Parent returns the parent node
func (n *Node) Parent() *Node { return n.parent }

// SetParentBlock binds element n to the block owning block. It has no
// effect on blocks.
func (n *Node) SetParentBlock(block *Node) {
	n.setParentBlock(block, false)
}

func (n *Node) setParentBlock(block *Node, keepChildren bool) {
	if n.isBlock || block == nil || block == n.parentBlock {
		return
	}
	if owner := block.parentBlock; owner != nil && owner.noElems && block.parent != nil {
		n.setParentBlock(block.parent, keepChildren)
		return
	}
	owner := block.parentBlock
	if owner == nil {
		return
	}

	n.leaveParentBlock()
	n.parentBlock = owner
	n.joinParentBlock()
	n.bind(decl.ElemSelector(owner.selector, strings.ToLower(n.name)))

	if !keepChildren {
		setParentBlockForChildren(n, block)
	}
}

func setParentBlockForChildren(n, block *Node) {
	for _, c := range n.children {
		child, ok := c.(*Node)
		if !ok {
			continue
		}
		if !child.isBlock {
			child.setParentBlock(block, false)
		} else if child.implemented != nil && !child.implemented.isBlock {
			child.implemented.setParentBlock(block, true)
		}
	}
}

func (n *Node) elemOwner() *Node {
	switch {
	case !n.isBlock:
		return n.parentBlock
	case n.implemented != nil:
		return n.implemented.parentBlock
	}
	return nil
}

func (n *Node) leaveParentBlock() {
	owner := n.elemOwner()
	if owner == nil {
		return
	}
	for i, e := range owner.elems {
		if e == n {
			owner.elems = append(owner.elems[:i], owner.elems[i+1:]...)
			return
		}
	}
}

func (n *Node) joinParentBlock() {
	if owner := n.elemOwner(); owner != nil {
		owner.elems = append(owner.elems, n)
	}
}

// Mods returns a copy of the modifier values
func (n *Node) Mods() map[string]any {
	return decl.Clone(n.mods).(map[string]any)
}

// Mod returns a modifier value
func (n *Node) Mod(name string) any {
	return n.mods[strings.ToLower(name)]
}

// SetMod changes a modifier. On a mounted node the modifier handlers run
// with data.
func (n *Node) SetMod(name string, value any, data ...any) error {
	name = strings.ToLower(name)
	if cur, ok := n.mods[name]; ok && decl.Equal(cur, value) {
		return nil
	}
	n.mods[name] = value
	if n.implemented != nil {
		n.implemented.mods[name] = value
	}
	if !n.mounted {
		return nil
	}
	var payload any
	if len(data) > 0 {
		payload = data[0]
	}
	return n.callModHandlers(name, value, payload)
}

// ToggleMod switches a modifier between two values. An unset modifier takes
// the first.
func (n *Node) ToggleMod(name string, first, second any) error {
	cur := n.Mod(name)
	if !truthy(cur) || decl.Equal(cur, second) {
		return n.SetMod(name, first)
	}
	return n.SetMod(name, second)
}

// Params returns a copy of the parameter values
func (n *Node) Params() map[string]any {
	return decl.Clone(n.params).(map[string]any)
}

// Param returns a parameter value
func (n *Node) Param(name string) any {
	return n.params[strings.ToLower(name)]
}

// SetParam changes a parameter
func (n *Node) SetParam(name string, value any) {
	n.params[strings.ToLower(name)] = value
}

// DomAttr returns a DOM attribute value
func (n *Node) DomAttr(name string) any {
	return n.domAttrs[name]
}

// Children returns the current children
func (n *Node) Children() []any {
	return append([]any(nil), n.children...)
}

// Append adds children at the end. Inside an expand hook the children form
// the expanded child list that replaces the original one.
func (n *Node) Append(children ...any) error {
	_, err := n.insert(children, -1)
	return err
}

// Prepend adds children at the start, keeping their order
func (n *Node) Prepend(children ...any) error {
	_, err := n.insert(children, 0)
	return err
}

// insert places children at index, or at the end when index is negative,
// and returns the index following the last inserted child
func (n *Node) insert(children []any, index int) (int, error) {
	for _, child := range children {
		switch c := child.(type) {
		case nil:
			continue
		case bool:
			if !c {
				continue
			}
			child = strconv.FormatBool(c)
		case []any:
			next, err := n.insert(c, index)
			if err != nil {
				return index, err
			}
			index = next
			continue
		case []*Node:
			nodes := make([]any, len(c))
			for i, item := range c {
				nodes[i] = item
			}
			next, err := n.insert(nodes, index)
			if err != nil {
				return index, err
			}
			index = next
			continue
		case *Node:
			if c == nil {
				continue
			}
			c.adopt(n)
			if !c.isBlock {
				if n.isBlock {
					c.setParentBlock(n, false)
				} else if n.parentBlock != nil {
					c.setParentBlock(n.parentBlock, false)
				}
			}
		case string:
		case float64:
			child = strconv.FormatFloat(c, 'f', -1, 64)
		case int:
			child = strconv.Itoa(c)
		default:
			child = fmt.Sprint(c)
		}

		list := &n.children
		if n.expandContext {
			list = &n.expandedChildren
		}
		if index < 0 || index >= len(*list) {
			*list = append(*list, child)
		} else {
			*list = append((*list)[:index], append([]any{child}, (*list)[index:]...)...)
			index++
		}

		if node, ok := child.(*Node); ok && n.mounted && !n.replaceContext && !n.expandContext && !node.mounted {
			if err := node.Render(); err != nil {
				return index, err
			}
		}
	}
	return index, nil
}

// adopt moves n under parent, taking it out of its previous parent's child
// lists
func (n *Node) adopt(parent *Node) {
	if n.parent != nil && n.parent != parent {
		n.parent.removeChild(n)
	}
	n.parent = parent
}

func (n *Node) removeChild(child *Node) {
	n.children = without(n.children, child)
	n.expandedChildren = without(n.expandedChildren, child)
}

func without(list []any, child *Node) []any {
	for i, c := range list {
		if c == child {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Detach takes n out of its parent and its block's element list
func (n *Node) Detach() {
	if n.parent != nil {
		n.parent.removeChild(n)
		n.parent = nil
	}
	n.leaveParentBlock()
}

// Remove runs the onRemove hook, removes every child node and detaches n
func (n *Node) Remove() error {
	if n.entry != nil {
		if _, err := n.invoke(decl.FieldOnRemove, n.entry.Chain(decl.FieldOnRemove)); err != nil {
			return err
		}
	}
	for _, c := range n.Children() {
		if child, ok := c.(*Node); ok {
			if err := child.Remove(); err != nil {
				return err
			}
		}
	}
	n.rt.unsubscribe(n)
	n.Detach()
	return nil
}

// Empty removes every child
func (n *Node) Empty() error {
	var children []any
	if n.expandContext {
		children, n.expandedChildren = n.expandedChildren, nil
	} else {
		children, n.children = n.children, nil
	}
	for _, c := range children {
		if child, ok := c.(*Node); ok {
			if err := child.Remove(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Index returns the position of n among its sibling nodes, ignoring text
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	i := 0
	for _, c := range n.parent.children {
		if c == n {
			return i
		}
		if _, ok := c.(*Node); ok {
			i++
		}
	}
	return -1
}

// Text concatenates the text children
func (n *Node) Text() string {
	var b strings.Builder
	for _, c := range n.children {
		if s, ok := c.(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

// Elem returns the elements of the owning block with one of the given names,
// or all of them when no name is given
func (n *Node) Elem(names ...string) []*Node {
	if !n.isBlock {
		if n.parentBlock == nil {
			return nil
		}
		return n.parentBlock.Elem(names...)
	}
	if len(names) == 0 {
		return append([]*Node(nil), n.elems...)
	}
	var out []*Node
	for _, e := range n.elems {
		if e.matches(names...) {
			out = append(out, e)
		}
	}
	return out
}

func (n *Node) matches(names ...string) bool {
	for _, name := range names {
		if n.name == name || (n.implemented != nil && n.implemented.name == name) {
			return true
		}
	}
	return false
}

// Get finds child nodes by name. A path "a/b" descends through children
// named a; "/" matches every child node. Results of several paths are
// concatenated.
func (n *Node) Get(paths ...string) []*Node {
	if len(paths) == 0 {
		return n.childNodes()
	}
	var out []*Node
	for _, path := range paths {
		if path == "/" {
			out = append(out, n.childNodes()...)
			continue
		}
		collection := []*Node{n}
		for _, part := range strings.Split(path, "/") {
			var next []*Node
			for _, c := range collection {
				for _, child := range c.childNodes() {
					if child.matches(part) {
						next = append(next, child)
					}
				}
			}
			collection = next
			if len(collection) == 0 {
				break
			}
		}
		out = append(out, collection...)
	}
	return out
}

// Has reports whether Get finds anything
func (n *Node) Has(paths ...string) bool {
	return len(n.Get(paths...)) > 0
}

func (n *Node) childNodes() []*Node {
	var out []*Node
	for _, c := range n.children {
		if child, ok := c.(*Node); ok {
			out = append(out, child)
		}
	}
	return out
}

// Call invokes a user method declared for n's selector, or for the node n
// implements
func (n *Node) Call(method string, args ...any) (any, error) {
	for cur := n; cur != nil; cur = cur.implemented {
		if cur.entry == nil {
			continue
		}
		if chain := cur.entry.Chain(method); len(chain) > 0 && isUserMethod(cur.entry, method) {
			return n.invoke(method, chain, args...)
		}
	}
	return nil, beasterrors.Newf(beasterrors.ErrUnknownMethod, "'%s' has no method '%s'", n.selector, method).
		WithContext("selector", n.selector).
		WithContext("method", method)
}

func isUserMethod(e *resolve.Entry, method string) bool {
	for _, m := range e.UserMethods {
		if m == method {
			return true
		}
	}
	return false
}

func (n *Node) invoke(name string, chain []decl.Impl, args ...any) (any, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	v, err := decl.Invoke(n, name, chain, args...)
	if err != nil && !beasterrors.IsErrorType(err, beasterrors.ErrHandlerFailed) {
		return v, beasterrors.Wrap(beasterrors.ErrHandlerFailed,
			fmt.Sprintf("'%s' of '%s' failed", name, n.selector), err).
			WithContext("selector", n.selector)
	}
	return v, err
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return true
}
