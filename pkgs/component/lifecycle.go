package component

import (
	"strconv"
	"strings"

	"github.com/aledsdavies/beast/pkgs/decl"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

var _ resolve.Target = (*Node)(nil)

// Event is passed to event handlers as their first argument
type Event struct {
	Name   string
	Data   any
	Target *Node

	preventable bool
	prevented   bool
}

// PreventDefault marks the event as handled. It only has an effect for
// handlers bound as preventable.
func (e *Event) PreventDefault() {
	if e.preventable {
		e.prevented = true
	}
}

// DefaultPrevented reports whether a handler called PreventDefault
func (e *Event) DefaultPrevented() bool { return e.prevented }

// Render expands n and its subtree, runs the mount hooks the first time and
// onAttach every time. A node replaced through implementWith renders its
// replacement.
func (n *Node) Render() error {
	if n.implementedWith != nil {
		return n.implementedWith.Render()
	}
	if err := n.expand(); err != nil {
		return err
	}
	if n.implementedWith != nil {
		return n.implementedWith.Render()
	}

	firstTime := !n.mounted
	if firstTime {
		n.mounted = true
		for i := 0; i < len(n.children); i++ {
			if child, ok := n.children[i].(*Node); ok && !child.mounted {
				if err := child.Render(); err != nil {
					return err
				}
			}
		}

		for _, event := range sortedKeys(n.winEvents) {
			for _, b := range n.winEvents[event] {
				n.rt.subscribe(n, event, b)
			}
		}
		for _, mod := range sortedKeys(n.mods) {
			if err := n.callModHandlers(mod, n.mods[mod], nil); err != nil {
				return err
			}
		}
		if err := n.domInit(); err != nil {
			return err
		}
	}

	if n.entry != nil {
		if _, err := n.invoke(decl.FieldOnAttach, n.entry.Chain(decl.FieldOnAttach), firstTime); err != nil {
			return err
		}
	}
	return nil
}

// expand runs the setup actions once
func (n *Node) expand() error {
	if n.expanded {
		return nil
	}
	if n.entry == nil || len(n.entry.Setup) == 0 {
		n.expanded = true
		return nil
	}

	n.expandContext = true
	defer func() { n.expandContext = false }()
	for _, action := range n.entry.Setup {
		n.rt.logger.Debug("[COMPONENT] setup", "selector", n.selector, "action", action.Kind)
		if err := action.Apply(n); err != nil {
			return err
		}
	}
	n.completeExpand()
	return nil
}

func (n *Node) completeExpand() {
	if n.expandContext && n.expandedChildren != nil {
		n.children = n.expandedChildren
		n.expandedChildren = nil
	}
	n.expanded = true
}

// Expand replaces the children of n. On an expanded node the expand hook
// runs again over the new children, and a mounted node renders them and
// reruns domInit.
func (n *Node) Expand(children ...any) error {
	if err := n.Empty(); err != nil {
		return err
	}
	if !n.expanded {
		return n.Append(children...)
	}

	n.replaceContext = true
	err := n.Append(children...)
	if err == nil && n.entry != nil {
		if chain := n.entry.Chain(decl.FieldExpand); len(chain) > 0 {
			n.expandContext = true
			err = n.RunExpand(chain)
			n.completeExpand()
			n.expandContext = false
		}
	}
	n.replaceContext = false
	if err != nil || !n.mounted {
		return err
	}

	for i := 0; i < len(n.children); i++ {
		if child, ok := n.children[i].(*Node); ok && !child.mounted {
			if err := child.Render(); err != nil {
				return err
			}
		}
	}
	return n.domInit()
}

func (n *Node) domInit() error {
	if n.entry != nil {
		if _, err := n.invoke(decl.FieldDomInit, n.entry.Chain(decl.FieldDomInit)); err != nil {
			return err
		}
	}
	if n.implemented != nil && n.implemented.entry != nil {
		if _, err := n.invoke(decl.FieldDomInit, n.implemented.entry.Chain(decl.FieldDomInit)); err != nil {
			return err
		}
	}
	return nil
}

// SetDomAttrs merges attrs into the DOM attributes
func (n *Node) SetDomAttrs(attrs map[string]any) {
	for k, v := range attrs {
		n.domAttrs[k] = v
	}
}

// SetNoElems makes n transparent for elements: elements below it belong to
// the nearest enclosing block that accepts elements
func (n *Node) SetNoElems() {
	n.noElems = true
	if n.parentBlock == nil {
		return
	}
	outer := n.parentBlock.parent
	for outer != nil && outer.noElems {
		if outer.parentBlock == nil {
			return
		}
		outer = outer.parentBlock.parent
	}
	if outer != nil {
		setParentBlockForChildren(n, outer)
	}
}

// SetTag sets the HTML tag. It has no effect once n is mounted.
func (n *Node) SetTag(tag string) {
	if !n.mounted {
		n.tag = tag
	}
}

// AddMix adds extra class names
func (n *Node) AddMix(selectors ...string) {
	n.mix = append(n.mix, selectors...)
}

// BindMod binds a declared modifier handler chain
func (n *Node) BindMod(mod, value string, chain []decl.Impl) {
	n.addModHandler(strings.ToLower(mod), value, binding{chain: chain})
}

// OnMod adds a handler run when modifier mod takes value. Value "*" matches
// any change; "" and "false" match each other.
func (n *Node) OnMod(mod, value string, fn decl.Func) {
	n.addModHandler(strings.ToLower(mod), value, n.own(fn, false))
}

func (n *Node) addModHandler(mod, value string, b binding) {
	if n.modHandlers == nil {
		n.modHandlers = make(map[string]map[string][]binding)
	}
	if n.modHandlers[mod] == nil {
		n.modHandlers[mod] = make(map[string][]binding)
	}
	n.modHandlers[mod][value] = append(n.modHandlers[mod][value], b)
}

func (n *Node) callModHandlers(mod string, value any, data any) error {
	byValue := n.modHandlers[mod]
	if byValue == nil {
		return nil
	}

	key := modKey(value)
	handlers, ok := byValue[key]
	if !ok {
		switch key {
		case "false":
			handlers = byValue[""]
		case "":
			handlers = byValue["false"]
		}
	}
	handlers = append(append([]binding(nil), handlers...), byValue["*"]...)

	for _, b := range handlers {
		if _, err := n.invoke(decl.FieldOnMod, b.chain, data); err != nil {
			return err
		}
	}
	return nil
}

func modKey(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	return valueString(value)
}

// BindEvent binds a declared handler chain to space separated events
func (n *Node) BindEvent(events string, chain []decl.Impl, preventable bool) {
	n.events = addBinding(n.events, events, binding{chain: chain, preventable: preventable})
}

// On adds a handler for space separated events
func (n *Node) On(events string, fn decl.Func) {
	n.events = addBinding(n.events, events, n.own(fn, false))
}

// BindWinEvent binds a declared handler chain to window events
func (n *Node) BindWinEvent(events string, chain []decl.Impl, preventable bool) {
	n.addWinBinding(events, binding{chain: chain, preventable: preventable})
}

// OnWin adds a window event handler. Events triggered by a block arrive as
// "Block:event".
func (n *Node) OnWin(events string, fn decl.Func) {
	n.addWinBinding(events, n.own(fn, false))
}

func (n *Node) addWinBinding(events string, b binding) {
	n.winEvents = addBinding(n.winEvents, events, b)
	if n.mounted {
		for _, event := range strings.Fields(events) {
			n.rt.subscribe(n, event, b)
		}
	}
}

func addBinding(m map[string][]binding, events string, b binding) map[string][]binding {
	if m == nil {
		m = make(map[string][]binding)
	}
	for _, event := range strings.Fields(events) {
		m[event] = append(m[event], b)
	}
	return m
}

func (n *Node) own(fn decl.Func, preventable bool) binding {
	return binding{
		chain:       []decl.Impl{{Owner: n.selector, Fn: fn}},
		preventable: preventable,
	}
}

// Trigger runs the handlers of a mounted node for event. It reports whether
// a preventable handler prevented the default action.
func (n *Node) Trigger(event string, data any) (bool, error) {
	if !n.mounted {
		return false, nil
	}
	prevented := false
	for _, b := range append([]binding(nil), n.events[event]...) {
		p, err := n.dispatch(event, data, b)
		if err != nil {
			return prevented, err
		}
		prevented = prevented || p
	}
	return prevented, nil
}

// TriggerWin sends "Block:event" to the window subscribers, where Block is
// the name of the block owning n
func (n *Node) TriggerWin(event string, data any) (bool, error) {
	if !n.mounted {
		return false, nil
	}
	owner := n.name
	if pb := n.ParentBlock(); pb != nil {
		owner = pb.name
	}
	return n.rt.DispatchWin(owner+":"+event, data)
}

func (n *Node) dispatch(event string, data any, b binding) (bool, error) {
	ev := &Event{Name: event, Data: data, Target: n, preventable: b.preventable}
	if _, err := n.invoke(event, b.chain, ev); err != nil {
		return false, err
	}
	return ev.prevented, nil
}

// RunExpand runs the expand hook chain
func (n *Node) RunExpand(chain []decl.Impl) error {
	_, err := n.invoke(decl.FieldExpand, chain)
	return err
}

// ImplementWith replaces n by a new instance of the block selector that
// takes over its children, handlers, modifiers and parameters. n stays
// reachable as the implemented node.
func (n *Node) ImplementWith(selector string) error {
	var kids []any
	if n.expandContext && n.expandedChildren != nil {
		kids = append(kids, n.expandedChildren...)
	} else {
		kids = append(kids, n.children...)
	}

	impl, err := n.rt.newNode(blockName(selector), nil, kids)
	if err != nil {
		return err
	}
	n.implementWith(impl)
	return nil
}

func (n *Node) implementWith(impl *Node) {
	if n.events != nil {
		impl.events = n.events
	}
	if n.winEvents != nil {
		impl.winEvents = n.winEvents
	}
	if n.modHandlers != nil {
		impl.modHandlers = n.modHandlers
	}

	impl.implemented = n
	n.implementedWith = impl

	for k, v := range n.mods {
		if v != nil {
			impl.mods[k] = v
		}
	}
	for k, v := range n.params {
		if v != nil {
			impl.params[k] = v
		}
	}
	fillDefaults(n.mods, impl.mods)

	if owner := n.parentBlock; owner != nil {
		for i, e := range owner.elems {
			if e == n {
				owner.elems[i] = impl
				break
			}
		}
	}
	n.replaceWith(impl)
	n.rt.logger.Debug("[COMPONENT] implemented", "selector", n.selector, "with", impl.selector)
}

// replaceWith puts other in n's place in the parent
func (n *Node) replaceWith(other *Node) {
	n.completeExpand()

	parent := n.parent
	if parent != nil {
		replaced := false
		for _, list := range []*[]any{&parent.children, &parent.expandedChildren} {
			for i, c := range *list {
				if c == n {
					(*list)[i] = other
					replaced = true
				}
			}
		}
		if !replaced {
			parent.children = append(parent.children, other)
		}
		if other.parent != nil && other.parent != parent {
			other.parent.removeChild(other)
		}
		other.parent = parent
	}
	n.parent = nil

	if other.isBlock {
		other.resetParentBlockForChildren()
	}
}

func (n *Node) resetParentBlockForChildren() {
	for _, c := range n.children {
		if child, ok := c.(*Node); ok && !child.isBlock {
			child.setParentBlock(n.parentBlock, false)
			child.resetParentBlockForChildren()
		}
	}
}
