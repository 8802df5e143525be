package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xlab/treeprint"
)

// Tree renders the manifest as an indented tree, one branch per selector
func (m *Manifest) Tree() string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("manifest v%d", m.Version))
	for _, e := range m.Entries {
		label := e.Selector
		var flags []string
		if e.Abstract {
			flags = append(flags, "abstract")
		}
		if e.FinalMod {
			flags = append(flags, "finalMod")
		}
		if e.Synthesized {
			flags = append(flags, "synthesized")
		}
		if len(flags) > 0 {
			label += " (" + strings.Join(flags, ", ") + ")"
		}

		branch := tree.AddBranch(label)
		addList(branch, "precedence", e.Precedence)
		addList(branch, "flattened", e.Flattened)
		addList(branch, "setup", e.Setup)
		addList(branch, "methods", e.UserMethods)
		addMap(branch, "mod", e.Mods)
		addMap(branch, "param", e.Params)
		if len(e.LockedMods) > 0 {
			locked := branch.AddBranch("lockedMods")
			for _, mod := range sortedKeys(e.LockedMods) {
				locked.AddNode(mod + " = " + strings.Join(e.LockedMods[mod], " "))
			}
		}
	}
	for _, d := range m.Diagnostics {
		msg := "warning: " + d.Selector + ": " + d.Message
		if d.Suggestion != "" {
			msg += " (did you mean '" + d.Suggestion + "'?)"
		}
		tree.AddNode(msg)
	}
	return tree.String()
}

func addList(branch treeprint.Tree, name string, items []string) {
	if len(items) > 0 {
		branch.AddNode(name + ": " + strings.Join(items, " "))
	}
}

func addMap(branch treeprint.Tree, name string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	sub := branch.AddBranch(name)
	for _, k := range sortedKeys(m) {
		sub.AddNode(fmt.Sprintf("%s = %v", k, m[k]))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
