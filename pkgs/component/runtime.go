// Package component is the runtime the compiled markup targets: a
// construct factory that builds component instances from resolved
// declarations, binds elements to their owning blocks, runs the setup
// actions once per instance and renders the tree as static HTML.
//
// The runtime is headless. Rendering marks a tree as mounted: event and
// modifier handlers fire only on mounted instances, and window events are
// delivered through the runtime's own event bus.
package component

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/aledsdavies/beast/pkgs/bml"
	"github.com/aledsdavies/beast/pkgs/decl"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

// Runtime owns the resolved declarations and the window event bus
type Runtime struct {
	reg         *decl.Registry
	logger      *slog.Logger
	callee      string
	contextAttr string
	contextExpr string

	mu    sync.Mutex
	table *resolve.Table

	busMu sync.Mutex
	bus   map[string][]subscription
}

type subscription struct {
	node    *Node
	binding binding
}

// Option configures a Runtime
type Option func(*Runtime)

// WithLogger sets the runtime logger
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// WithCallee sets the constructor name used when a node is printed back as
// an expression
func WithCallee(callee string) Option {
	return func(rt *Runtime) {
		rt.callee = callee
	}
}

// WithContext sets the attribute that carries the enclosing block and the
// host expression it is compiled from
func WithContext(attr, expr string) Option {
	return func(rt *Runtime) {
		rt.contextAttr = attr
		rt.contextExpr = expr
	}
}

// NewRuntime creates a runtime over reg. The registry is resolved on first
// use.
func NewRuntime(reg *decl.Registry, opts ...Option) *Runtime {
	rt := &Runtime{
		reg:         reg,
		logger:      logging.New(resolve.EnvDebug),
		callee:      bml.DefaultCallee,
		contextAttr: bml.DefaultContextAttr,
		contextExpr: bml.DefaultContextExpr,
		bus:         make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Table resolves the registry the first time it is called. A failed
// resolution is not cached, so the declarations can be fixed and retried.
func (rt *Runtime) Table() (*resolve.Table, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.table != nil {
		return rt.table, nil
	}
	table, err := resolve.Compile(rt.reg, resolve.WithLogger(rt.logger))
	if err != nil {
		return nil, err
	}
	rt.table = table
	return table, nil
}

// Node constructs a component instance. Names starting with an upper case
// letter are blocks, others are elements. Attribute keys starting with an
// upper case letter are modifiers, others are parameters.
func (rt *Runtime) Node(name string, attrs map[string]any, children ...any) (*Node, error) {
	if _, err := rt.Table(); err != nil {
		return nil, err
	}
	return rt.newNode(name, attrs, children)
}

// DispatchWin delivers a window event to every mounted subscriber. It
// reports whether a preventable handler prevented the default action.
func (rt *Runtime) DispatchWin(event string, data any) (bool, error) {
	rt.busMu.Lock()
	subs := append([]subscription(nil), rt.bus[event]...)
	rt.busMu.Unlock()

	prevented := false
	for _, sub := range subs {
		p, err := sub.node.dispatch(event, data, sub.binding)
		if err != nil {
			return prevented, err
		}
		prevented = prevented || p
	}
	return prevented, nil
}

func (rt *Runtime) subscribe(n *Node, event string, b binding) {
	rt.busMu.Lock()
	defer rt.busMu.Unlock()
	rt.bus[event] = append(rt.bus[event], subscription{node: n, binding: b})
}

func (rt *Runtime) unsubscribe(n *Node) {
	rt.busMu.Lock()
	defer rt.busMu.Unlock()
	for event, subs := range rt.bus {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.node != n {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(rt.bus, event)
		} else {
			rt.bus[event] = kept
		}
	}
}

func (rt *Runtime) entry(selector string) *resolve.Entry {
	if rt.table == nil {
		return nil
	}
	e, _ := rt.table.Get(selector)
	return e
}

func (rt *Runtime) newNode(name string, attrs map[string]any, children []any) (*Node, error) {
	n := &Node{
		rt:       rt,
		name:     name,
		isBlock:  startsUpper(name),
		tag:      "div",
		mods:     make(map[string]any),
		params:   make(map[string]any),
		domAttrs: make(map[string]any),
	}

	var context *Node
	for _, key := range sortedKeys(attrs) {
		value := attrs[key]
		switch {
		case key == rt.contextAttr:
			context, _ = value.(*Node)
		case startsUpper(key):
			n.mods[strings.ToLower(key)] = value
		default:
			n.params[strings.ToLower(key)] = value
		}
	}

	if n.isBlock {
		n.parentBlock = n
		n.bind(strings.ToLower(name))
		if n.entry != nil && n.entry.Abstract {
			return nil, beasterrors.Newf(beasterrors.ErrAbstractInstantiation,
				"'%s' is abstract and cannot be instantiated", n.selector).
				WithContext("selector", n.selector)
		}
	} else if context != nil {
		n.setParentBlock(context, false)
	}

	if _, err := n.insert(children, -1); err != nil {
		return nil, err
	}
	rt.logger.Debug("[COMPONENT] constructed", "name", name, "selector", n.selector, "children", len(n.children))
	return n, nil
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsUpper(r)
}

// blockName turns a lower case implementWith selector back into a block
// node name
func blockName(selector string) string {
	r, size := utf8.DecodeRuneInString(selector)
	if r == utf8.RuneError {
		return selector
	}
	return string(unicode.ToUpper(r)) + selector[size:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
