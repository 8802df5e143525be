package bml

import "log/slog"

// Default output names
const (
	DefaultCallee      = "Beast.node"
	DefaultContextAttr = "__context"
	DefaultContextExpr = "this"
)

// Options controls what the compiler emits. The zero value is usable: empty
// names fall back to the defaults above.
type Options struct {
	// Callee is the constructor expression every tag becomes a call to
	Callee string

	// ContextAttr is the attribute key injected into the outermost tag of a
	// top-level region
	ContextAttr string

	// ContextExpr is the host expression bound to ContextAttr
	ContextExpr string

	// ContextInEmbeds also injects the context attribute into the outermost
	// tag of regions nested inside embeds
	ContextInEmbeds bool

	// Logger receives scanner traces at debug level. Nil uses the package
	// logger.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Callee == "" {
		o.Callee = DefaultCallee
	}
	if o.ContextAttr == "" {
		o.ContextAttr = DefaultContextAttr
	}
	if o.ContextExpr == "" {
		o.ContextExpr = DefaultContextExpr
	}
	if o.Logger == nil {
		o.Logger = logger
	}
	return o
}
