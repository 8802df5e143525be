package resolve

import "sort"

// FinalModTable records which selectors may emit a modifier class. A
// declaration with finalMod claims its modifiers for itself and for the
// selectors visited below it, so class names for those modifiers are not
// repeated for every ancestor.
type FinalModTable struct {
	// Mods maps a modifier name to the selectors allowed to emit it
	Mods map[string]map[string]bool
	// Selectors is every selector appearing in any Mods set
	Selectors map[string]bool
}

func newFinalModTable() FinalModTable {
	return FinalModTable{
		Mods:      make(map[string]map[string]bool),
		Selectors: make(map[string]bool),
	}
}

// Empty reports whether no modifier is locked
func (t FinalModTable) Empty() bool {
	return len(t.Mods) == 0 && len(t.Selectors) == 0
}

// Emits reports whether selector should emit the class for modifier mod
func (t FinalModTable) Emits(mod, selector string) bool {
	if t.Empty() {
		return true
	}
	if allowed, ok := t.Mods[mod]; ok {
		return allowed[selector]
	}
	return !t.Selectors[selector]
}

// LockedMods returns the locked modifier names, sorted
func (t FinalModTable) LockedMods() []string {
	names := make([]string, 0, len(t.Mods))
	for name := range t.Mods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// modScope accumulates the selectors and modifier names below one finalMod
// declaration
type modScope struct {
	selectors []string
	mods      []string
}

func newModScope() *modScope {
	return &modScope{}
}

func (s *modScope) add(selector string, mods map[string]any) {
	s.selectors = appendUnique(s.selectors, selector)
	for _, name := range sortedKeys(mods) {
		s.mods = appendUnique(s.mods, name)
	}
}

// apply locks every modifier of scope that is not locked yet
func (t FinalModTable) apply(scope *modScope) {
	if scope == nil {
		return
	}
	for _, mod := range scope.mods {
		if _, locked := t.Mods[mod]; locked {
			continue
		}
		allowed := make(map[string]bool, len(scope.selectors))
		for _, sel := range scope.selectors {
			allowed[sel] = true
			t.Selectors[sel] = true
		}
		t.Mods[mod] = allowed
	}
}

// finalMods builds the table for e. The walk visits parents in reverse
// declared order; a finalMod ancestor opens a fresh scope for its own
// subtree, and every visited selector joins the innermost open scope.
func (c *compiler) finalMods(e *Entry) FinalModTable {
	table := newFinalModTable()

	var scope *modScope
	if e.FinalModFlag {
		scope = newModScope()
		scope.add(e.Selector, e.Mods)
	}
	c.finalModWalk(table, e.Inherits, scope)
	table.apply(scope)
	return table
}

func (c *compiler) finalModWalk(table FinalModTable, parents []string, scope *modScope) {
	for i := len(parents) - 1; i >= 0; i-- {
		pe, ok := c.table.entries[parents[i]]
		if !ok {
			continue
		}

		inner := scope
		if pe.FinalModFlag {
			inner = newModScope()
		}
		if inner != nil {
			inner.add(pe.Selector, pe.Mods)
		}
		c.finalModWalk(table, pe.Inherits, inner)
		table.apply(inner)
	}
}
