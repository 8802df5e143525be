package decl

import (
	"github.com/aledsdavies/beast/internal/invariant"
)

// Func is a function-valued declaration field: a lifecycle hook, an event or
// modifier handler, or a user method. c carries the instance and the rest of
// the override chain.
type Func func(c *Call, args ...any) (any, error)

// Impl is one implementation in an override chain
type Impl struct {
	Owner string // selector that declared Fn
	Fn    Func
}

// Call is the execution context of one implementation in an override chain.
// Selector is the owner of the running implementation, so code inside an
// ancestor's version sees the ancestor's declaration context.
type Call struct {
	Self     any
	Selector string
	Name     string

	chain []Impl
	index int
}

// Invoke runs the first implementation of chain. An empty chain is a no-op.
func Invoke(self any, name string, chain []Impl, args ...any) (any, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	return run(&Call{Self: self, Name: name, chain: chain}, 0, args)
}

// Inherited runs the next implementation in the chain with the same instance
// and the acting selector rebound to its owner. It returns nil when the
// running implementation is the last one.
func (c *Call) Inherited(args ...any) (any, error) {
	if !c.HasInherited() {
		return nil, nil
	}
	return run(&Call{Self: c.Self, Name: c.Name, chain: c.chain}, c.index+1, args)
}

// HasInherited reports whether an overridden implementation exists
func (c *Call) HasInherited() bool {
	return c.index+1 < len(c.chain)
}

func run(c *Call, index int, args []any) (any, error) {
	invariant.Precondition(index < len(c.chain), "chain index %d out of range", index)
	impl := c.chain[index]
	invariant.NotNil(impl.Fn, "implementation of "+c.Name)
	c.index = index
	c.Selector = impl.Owner
	return impl.Fn(c, args...)
}
