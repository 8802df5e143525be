package resolve

import (
	"fmt"
	"sort"

	"github.com/aledsdavies/beast/pkgs/decl"
)

// ActionKind identifies one setup step
type ActionKind int

// Setup steps, in execution order
const (
	ActionDomAttr ActionKind = iota
	ActionNoElems
	ActionTag
	ActionMix
	ActionOnMod
	ActionOn
	ActionOnWin
	ActionExpand
	ActionImplementWith
)

func (k ActionKind) String() string {
	switch k {
	case ActionDomAttr:
		return "domAttr"
	case ActionNoElems:
		return "noElems"
	case ActionTag:
		return "tag"
	case ActionMix:
		return "mix"
	case ActionOnMod:
		return "onMod"
	case ActionOn:
		return "on"
	case ActionOnWin:
		return "onWin"
	case ActionExpand:
		return "expand"
	case ActionImplementWith:
		return "implementWith"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Target is the component instance a setup action configures
type Target interface {
	SetDomAttrs(attrs map[string]any)
	SetNoElems()
	SetTag(tag string)
	AddMix(selectors ...string)
	BindMod(mod, value string, chain []decl.Impl)
	BindEvent(events string, chain []decl.Impl, preventable bool)
	BindWinEvent(events string, chain []decl.Impl, preventable bool)
	RunExpand(chain []decl.Impl) error
	ImplementWith(selector string) error
}

// Action is one step run when an instance is first expanded
type Action struct {
	Kind  ActionKind
	apply func(t Target) error
}

// Apply runs the step against t
func (a Action) Apply(t Target) error {
	return a.apply(t)
}

// buildSetup compiles the merged declarative fields into the ordered step
// list. Handler maps are bound in sorted key order.
func buildSetup(e *Entry) []Action {
	var actions []Action
	add := func(kind ActionKind, fn func(t Target) error) {
		actions = append(actions, Action{Kind: kind, apply: fn})
	}
	fields := e.Fields

	if attrs, ok := fields[decl.FieldDomAttr].(map[string]any); ok {
		add(ActionDomAttr, func(t Target) error {
			t.SetDomAttrs(decl.Clone(attrs).(map[string]any))
			return nil
		})
	}

	if noElems, _ := fields[decl.FieldNoElems].(bool); noElems {
		add(ActionNoElems, func(t Target) error {
			t.SetNoElems()
			return nil
		})
	}

	if tag, ok := fields[decl.FieldTag].(string); ok {
		add(ActionTag, func(t Target) error {
			t.SetTag(tag)
			return nil
		})
	}

	if mix := decl.StringList(fields, decl.FieldMix); len(mix) > 0 {
		add(ActionMix, func(t Target) error {
			t.AddMix(mix...)
			return nil
		})
	}

	if onMod, ok := fields[decl.FieldOnMod].(map[string]any); ok {
		type binding struct {
			mod, value string
			chain      []decl.Impl
		}
		var bindings []binding
		for _, mod := range sortedKeys(onMod) {
			byValue, _ := onMod[mod].(map[string]any)
			for _, value := range sortedKeys(byValue) {
				path := decl.FieldOnMod + "." + mod + "." + value
				if chain := e.Chains[path]; len(chain) > 0 {
					bindings = append(bindings, binding{mod, value, chain})
				}
			}
		}
		add(ActionOnMod, func(t Target) error {
			for _, b := range bindings {
				t.BindMod(b.mod, b.value, b.chain)
			}
			return nil
		})
	}

	for _, kind := range []ActionKind{ActionOn, ActionOnWin} {
		field := decl.FieldOn
		if kind == ActionOnWin {
			field = decl.FieldOnWin
		}
		handlers, ok := fields[field].(map[string]any)
		if !ok {
			continue
		}
		bindings := eventBindings(e, field, handlers)
		winEvents := kind == ActionOnWin
		add(kind, func(t Target) error {
			for _, b := range bindings {
				if winEvents {
					t.BindWinEvent(b.events, b.chain, b.preventable)
				} else {
					t.BindEvent(b.events, b.chain, b.preventable)
				}
			}
			return nil
		})
	}

	if chain := e.Chains[decl.FieldExpand]; len(chain) > 0 {
		add(ActionExpand, func(t Target) error {
			return t.RunExpand(chain)
		})
	}

	if impl, ok := fields[decl.FieldImplementWith].(string); ok && impl != "" {
		add(ActionImplementWith, func(t Target) error {
			return t.ImplementWith(impl)
		})
	}

	return actions
}

type eventBinding struct {
	events      string
	chain       []decl.Impl
	preventable bool
}

func eventBindings(e *Entry, field string, handlers map[string]any) []eventBinding {
	var out []eventBinding
	for _, events := range sortedKeys(handlers) {
		if events == decl.Preventable {
			group, _ := handlers[events].(map[string]any)
			for _, name := range sortedKeys(group) {
				path := field + "." + decl.Preventable + "." + name
				if chain := e.Chains[path]; len(chain) > 0 {
					out = append(out, eventBinding{name, chain, true})
				}
			}
			continue
		}
		if chain := e.Chains[field+"."+events]; len(chain) > 0 {
			out = append(out, eventBinding{events, chain, false})
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
