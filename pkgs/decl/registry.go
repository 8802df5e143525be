// Package decl holds component declarations keyed by selector.
//
// A Registry is open for registration until it is resolved. Registering a
// selector again merges the new fields over the stored ones. Registering an
// element creates its block if needed and records the element name on it.
package decl

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
)

// State is the registry lifecycle
type State int

const (
	// StateOpen accepts registrations
	StateOpen State = iota
	// StateResolving is the single resolution pass
	StateResolving
	// StateSealed is terminal; registration is rejected
	StateSealed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateResolving:
		return "resolving"
	case StateSealed:
		return "sealed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Registry stores declarations in registration order
type Registry struct {
	mu     sync.RWMutex
	decls  map[string]*Declaration
	order  []string
	state  State
	logger *slog.Logger

	// beforeResolve is the content restored when a resolution pass fails
	beforeResolve *snapshot
}

type snapshot struct {
	decls map[string]*Declaration
	order []string
}

func (r *Registry) snapshot() *snapshot {
	s := &snapshot{
		decls: make(map[string]*Declaration, len(r.decls)),
		order: append([]string(nil), r.order...),
	}
	for sel, d := range r.decls {
		s.decls[sel] = d.clone()
	}
	return s
}

func (r *Registry) restore(s *snapshot) {
	r.decls = s.decls
	r.order = s.order
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger for registration traces
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty, open registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		decls:  make(map[string]*Declaration),
		logger: logging.New("BEAST_DEBUG_RESOLVE"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Declare registers fields under selector
func (r *Registry) Declare(selector string, fields Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return beasterrors.Newf(beasterrors.ErrRegistrySealed,
			"cannot declare '%s': registry is %s", selector, r.state).
			WithContext("selector", selector)
	}
	return r.declare(selector, fields, false)
}

// Item is one entry of an ordered batch
type Item struct {
	Selector string
	Fields   Fields
}

// DeclareAll registers a batch of declarations in sorted selector order, so
// the result does not depend on map iteration
func (r *Registry) DeclareAll(decls map[string]Fields) error {
	selectors := make([]string, 0, len(decls))
	for s := range decls {
		selectors = append(selectors, s)
	}
	sort.Strings(selectors)

	items := make([]Item, 0, len(selectors))
	for _, s := range selectors {
		items = append(items, Item{Selector: s, Fields: decls[s]})
	}
	return r.DeclareList(items)
}

// DeclareList registers items in order. If any item is rejected none of
// them is registered.
func (r *Registry) DeclareList(items []Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return beasterrors.Newf(beasterrors.ErrRegistrySealed,
			"cannot declare %d selectors: registry is %s", len(items), r.state)
	}
	before := r.snapshot()
	for _, it := range items {
		if err := r.declare(it.Selector, it.Fields, false); err != nil {
			r.restore(before)
			return err
		}
	}
	return nil
}

func (r *Registry) declare(selector string, fields Fields, synthesized bool) error {
	sel := strings.ToLower(strings.TrimSpace(selector))
	block, elem, ok := ParseSelector(sel)
	if !ok {
		return beasterrors.Newf(beasterrors.ErrInvalidSelector, "invalid selector '%s'", selector).
			WithContext("selector", selector)
	}

	norm, err := normalizeFields(sel, fields)
	if err != nil {
		return err
	}

	if existing, ok := r.decls[sel]; ok {
		for _, name := range existing.Final() {
			if v, changed := norm[name]; changed && !Equal(existing.Fields[name], v) {
				return beasterrors.Newf(beasterrors.ErrFinalField,
					"field '%s' of '%s' is final and cannot be redeclared", name, sel).
					WithContext("selector", sel).
					WithContext("field", name)
			}
		}
		for k, v := range norm {
			existing.Fields[k] = MergeOver(existing.Fields[k], v)
		}
		existing.Placeholder = false
		if !synthesized {
			existing.Synthesized = false
		}
		r.logger.Debug("[DECL] merged", "selector", sel, "fields", len(norm))
	} else {
		r.decls[sel] = &Declaration{Selector: sel, Fields: norm, Synthesized: synthesized}
		r.order = append(r.order, sel)
		r.logger.Debug("[DECL] declared", "selector", sel, "fields", len(norm), "synthesized", synthesized)
	}

	if elem != "" {
		owner, ok := r.decls[block]
		if !ok {
			owner = &Declaration{Selector: block, Fields: Fields{}, Placeholder: true}
			r.decls[block] = owner
			r.order = append(r.order, block)
			r.logger.Debug("[DECL] placeholder block", "selector", block)
		}
		owner.addElem(elem)
	}
	return nil
}

// BeginResolve moves an open registry into the resolution pass. It reports
// false when the registry is already sealed.
func (r *Registry) BeginResolve() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateOpen:
		r.state = StateResolving
		r.beforeResolve = r.snapshot()
		return true, nil
	case StateSealed:
		return false, nil
	default:
		return false, beasterrors.New(beasterrors.ErrRegistrySealed, "resolution is already in progress")
	}
}

// Seal ends the resolution pass
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateSealed
	r.beforeResolve = nil
}

// Abort returns a registry whose resolution failed to the open state, so the
// declarations can be fixed and resolved again. Elements synthesized by the
// failed pass are dropped.
func (r *Registry) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateResolving {
		return
	}
	if r.beforeResolve != nil {
		r.restore(r.beforeResolve)
		r.beforeResolve = nil
	}
	r.state = StateOpen
}

// Synthesize registers a resolver-generated element declaration. It is only
// legal during resolution and never overwrites an existing declaration.
func (r *Registry) Synthesize(selector string, inherits []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateResolving {
		return false, beasterrors.Newf(beasterrors.ErrRegistrySealed,
			"cannot synthesize '%s': registry is %s", selector, r.state)
	}
	if _, exists := r.decls[selector]; exists {
		return false, nil
	}
	if err := r.declare(selector, Fields{FieldInherits: inherits}, true); err != nil {
		return false, err
	}
	return true, nil
}

// State returns the lifecycle state
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Get returns a copy of the declaration for selector
func (r *Registry) Get(selector string) (*Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.decls[strings.ToLower(selector)]
	if !ok {
		return nil, false
	}
	return d.clone(), true
}

// Has reports whether selector is registered
func (r *Registry) Has(selector string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decls[strings.ToLower(selector)]
	return ok
}

// Selectors returns every registered selector in registration order
func (r *Registry) Selectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of declarations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
