package calltree

import (
	"github.com/xlab/treeprint"
)

// Print renders values as an indented tree. Attributes are listed before
// children and prefixed with '@'.
func Print(values []Value) string {
	tree := treeprint.New()
	for _, v := range values {
		addValue(tree, v)
	}
	return tree.String()
}

func addValue(tree treeprint.Tree, v Value) {
	c, ok := v.(*Call)
	if !ok {
		tree.AddNode(v.String())
		return
	}

	if len(c.Attrs) == 0 && len(c.Children) == 0 {
		tree.AddNode(c.Name)
		return
	}
	branch := tree.AddBranch(c.Name)
	for _, a := range c.Attrs {
		branch.AddNode("@" + a.Key + " = " + a.Value.String())
	}
	for _, child := range c.Children {
		addValue(branch, child)
	}
}
