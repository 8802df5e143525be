// Package resolve compiles a declaration registry into per-selector resolved
// entries: merged fields, override chains for every function, the flattened
// ancestor list, the finalMod table and the ordered setup actions.
//
// Resolution is a single pass. Parents are resolved before their children and
// blocks that inherit element-bearing blocks get element declarations
// synthesized for them, which are queued and resolved in the same pass.
package resolve

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/aledsdavies/beast/internal/invariant"
	"github.com/aledsdavies/beast/pkgs/decl"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
)

// EnvDebug enables resolver debug logging
const EnvDebug = "BEAST_DEBUG_RESOLVE"

// Entry is the resolved form of one declaration
type Entry struct {
	Selector string
	Block    string
	Elem     string
	IsBlock  bool

	Abstract     bool
	FinalModFlag bool
	Synthesized  bool
	Placeholder  bool

	// Inherits is the declared parent list
	Inherits []string
	// Flattened lists ancestors in class-name order; duplicates and
	// undeclared parents are kept
	Flattened []string
	// Precedence is self followed by every declared ancestor, in the order
	// fields and functions are looked up
	Precedence []string

	// Fields is the merged declaration
	Fields decl.Fields
	Mods   map[string]any
	Params map[string]any

	// Chains maps a dotted function path to its implementations, most
	// specific first
	Chains map[string][]decl.Impl

	FinalMod    FinalModTable
	Setup       []Action
	UserMethods []string
}

// Chain returns the implementations for a dotted function path
func (e *Entry) Chain(path string) []decl.Impl {
	return e.Chains[path]
}

// IsKindOf reports whether selector is e itself or one of its ancestors
func (e *Entry) IsKindOf(selector string) bool {
	selector = strings.ToLower(selector)
	if selector == e.Selector {
		return true
	}
	for _, s := range e.Flattened {
		if s == selector {
			return true
		}
	}
	return false
}

// Severity of a diagnostic
type Severity int

const (
	SeverityWarning Severity = iota
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "unknown"
}

// Diagnostic is a non-fatal problem found while resolving
type Diagnostic struct {
	Severity   Severity
	Selector   string
	Ancestor   string
	Message    string
	Suggestion string
}

func (d Diagnostic) String() string {
	s := d.Severity.String() + ": " + d.Selector + ": " + d.Message
	if d.Suggestion != "" {
		s += " (did you mean '" + d.Suggestion + "'?)"
	}
	return s
}

// Table holds every resolved entry
type Table struct {
	entries     map[string]*Entry
	order       []string
	Diagnostics []Diagnostic
}

// Get returns the entry for selector
func (t *Table) Get(selector string) (*Entry, bool) {
	e, ok := t.entries[strings.ToLower(selector)]
	return e, ok
}

// Selectors returns the resolved selectors in resolution order
func (t *Table) Selectors() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.order)
}

func (t *Table) add(e *Entry) {
	t.entries[e.Selector] = e
	t.order = append(t.order, e.Selector)
}

// Option configures Compile
type Option func(*compiler)

// WithLogger sets the resolver logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *compiler) {
		c.logger = logger
	}
}

type compiler struct {
	reg    *decl.Registry
	table  *Table
	logger *slog.Logger

	stack  []string
	queue  []string
	warned map[string]bool
}

// Compile resolves every declaration in reg and seals it. Compiling a sealed
// registry again produces an identical table. A failed compilation leaves the
// registry open.
func Compile(reg *decl.Registry, opts ...Option) (*Table, error) {
	invariant.NotNil(reg, "registry")

	c := &compiler{
		reg:    reg,
		table:  &Table{entries: make(map[string]*Entry)},
		logger: logging.New(EnvDebug),
		warned: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	started, err := reg.BeginResolve()
	if err != nil {
		return nil, err
	}

	if err := c.run(); err != nil {
		if started {
			reg.Abort()
		}
		return nil, err
	}
	if started {
		reg.Seal()
	}

	for _, d := range c.table.Diagnostics {
		c.logger.Warn("[RESOLVE] "+d.Message, "selector", d.Selector, "ancestor", d.Ancestor, "suggestion", d.Suggestion)
	}
	c.logger.Debug("[RESOLVE] sealed", "entries", c.table.Len(), "diagnostics", len(c.table.Diagnostics))
	return c.table, nil
}

func (c *compiler) run() error {
	c.queue = c.reg.Selectors()
	for i := 0; i < len(c.queue); i++ {
		if err := c.resolve(c.queue[i]); err != nil {
			return err
		}
	}
	invariant.Postcondition(len(c.stack) == 0, "resolution stack must be empty, got %v", c.stack)
	return nil
}

func (c *compiler) resolve(selector string) error {
	if _, done := c.table.entries[selector]; done {
		return nil
	}
	for i, s := range c.stack {
		if s == selector {
			path := append(append([]string(nil), c.stack[i:]...), selector)
			return beasterrors.NewCycleError(path)
		}
	}

	d, ok := c.reg.Get(selector)
	invariant.Invariant(ok, "selector '%s' queued but not registered", selector)

	c.stack = append(c.stack, selector)
	for _, parent := range d.Inherits() {
		if !c.reg.Has(parent) {
			c.warnUndeclared(selector, parent)
			continue
		}
		if err := c.resolve(parent); err != nil {
			return err
		}
	}
	c.stack = c.stack[:len(c.stack)-1]

	e := c.build(d)
	c.table.add(e)
	c.logger.Debug("[RESOLVE] resolved", "selector", selector,
		"precedence", e.Precedence, "flattened", e.Flattened, "setup", len(e.Setup))

	if e.IsBlock {
		return c.synthesizeElems(e)
	}
	return nil
}

func (c *compiler) build(d *decl.Declaration) *Entry {
	e := &Entry{
		Selector:     d.Selector,
		Block:        d.Block(),
		Elem:         d.Elem(),
		IsBlock:      d.IsBlock(),
		Abstract:     d.Abstract(),
		FinalModFlag: d.FinalMod(),
		Synthesized:  d.Synthesized,
		Placeholder:  d.Placeholder,
		Inherits:     d.Inherits(),
		Precedence:   []string{d.Selector},
		Fields:       decl.CloneFields(d.Fields),
		Chains:       make(map[string][]decl.Impl),
	}

	for _, key := range sortedKeys(d.Fields) {
		for _, path := range decl.FuncPaths(key, d.Fields[key]) {
			fn, _ := decl.Lookup(d.Fields, path)
			e.Chains[path] = []decl.Impl{{Owner: d.Selector, Fn: fn.(decl.Func)}}
		}
	}

	for _, parent := range e.Inherits {
		pe, ok := c.table.entries[parent]
		if !ok {
			continue
		}
		c.inherit(e, pe)
		for _, s := range pe.Precedence {
			e.Precedence = appendUnique(e.Precedence, s)
		}
	}
	c.pruneChains(e)

	for i := len(e.Inherits) - 1; i >= 0; i-- {
		parent := e.Inherits[i]
		e.Flattened = append(e.Flattened, parent)
		if pe, ok := c.table.entries[parent]; ok {
			e.Flattened = append(e.Flattened, pe.Flattened...)
		}
	}

	e.Mods, _ = e.Fields[decl.FieldMod].(map[string]any)
	if e.Mods == nil {
		e.Mods = map[string]any{}
	}
	e.Params, _ = e.Fields[decl.FieldParam].(map[string]any)
	if e.Params == nil {
		e.Params = map[string]any{}
	}

	for _, key := range sortedKeys(e.Fields) {
		if !decl.IsReserved(key) {
			e.UserMethods = append(e.UserMethods, key)
		}
	}
	e.FinalMod = c.finalMods(e)
	e.Setup = buildSetup(e)
	return e
}

// inherit fills the gaps of e from a resolved parent. Keys the parent lists
// in final are skipped, together with every function path under them.
func (c *compiler) inherit(e, pe *Entry) {
	locked := make(map[string]bool)
	for _, name := range decl.StringList(pe.Fields, decl.FieldFinal) {
		locked[name] = true
	}
	skip := func(key string) bool {
		return key == decl.FieldInherits || !decl.Inheritable(key) || locked[key]
	}

	for _, key := range sortedKeys(pe.Fields) {
		if skip(key) {
			continue
		}
		e.Fields[key] = decl.FillGaps(e.Fields[key], pe.Fields[key])
	}

	paths := make([]string, 0, len(pe.Chains))
	for path := range pe.Chains {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		top, _, _ := strings.Cut(path, ".")
		if skip(top) {
			continue
		}
		chain := e.Chains[path]
		for _, impl := range pe.Chains[path] {
			if !hasOwner(chain, impl.Owner) {
				chain = append(chain, impl)
			}
		}
		e.Chains[path] = chain
	}
}

// pruneChains drops chains whose merged value is not a function, which
// happens when a child shadows an inherited function with data
func (c *compiler) pruneChains(e *Entry) {
	for path := range e.Chains {
		v, ok := decl.Lookup(e.Fields, path)
		if _, isFunc := v.(decl.Func); !ok || !isFunc {
			delete(e.Chains, path)
		}
	}
}

// synthesizeElems gives block e an element declaration for every element of
// its block ancestors that it does not declare itself. The new element
// inherits the nearest ancestor's element.
func (c *compiler) synthesizeElems(e *Entry) error {
	for _, ancestor := range e.Precedence[1:] {
		ad, ok := c.reg.Get(ancestor)
		if !ok || !ad.IsBlock() {
			continue
		}
		for _, elem := range ad.Elems {
			target := decl.ElemSelector(e.Selector, elem)
			if c.reg.Has(target) {
				continue
			}
			created, err := c.reg.Synthesize(target, []string{decl.ElemSelector(ancestor, elem)})
			if err != nil {
				return err
			}
			if created {
				c.queue = append(c.queue, target)
				c.logger.Debug("[RESOLVE] synthesized element", "selector", target, "from", ancestor)
			}
		}
	}
	return nil
}

func (c *compiler) warnUndeclared(selector, ancestor string) {
	key := selector + "\x00" + ancestor
	if c.warned[key] {
		return
	}
	c.warned[key] = true

	c.table.Diagnostics = append(c.table.Diagnostics, Diagnostic{
		Severity:   SeverityWarning,
		Selector:   selector,
		Ancestor:   ancestor,
		Message:    "inherits undeclared '" + ancestor + "'",
		Suggestion: closestMatch(ancestor, c.reg.Selectors()),
	})
}

func appendUnique(list []string, s string) []string {
	for _, item := range list {
		if item == s {
			return list
		}
	}
	return append(list, s)
}

func hasOwner(chain []decl.Impl, owner string) bool {
	for _, impl := range chain {
		if impl.Owner == owner {
			return true
		}
	}
	return false
}
