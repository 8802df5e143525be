// Package declfile loads declaration documents into a registry.
//
// A document is a YAML (or JSON) mapping from selector to fields, registered
// in document order. Several documents may share one YAML stream. Functions
// cannot be written in a document, so handler positions name a Go function
// registered with WithHandlers:
//
//	button:
//	  inherits: control
//	  mod: { size: m }
//	  on:
//	    click: toggle
//	    preventable: { submit: send }
//	  onMod:
//	    state: { open: focus }
//	  label: !fn buttonLabel
//
// The expand, domInit, onAttach and onRemove fields and the values under on,
// onWin and onMod are handler names. Anywhere else a scalar tagged !fn is a
// handler reference, which is how user methods are declared.
package declfile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/aledsdavies/beast/pkgs/decl"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

// FuncTag marks a scalar as a handler reference
const FuncTag = "!fn"

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "beast://declfile.json"

// Handlers maps handler names used in documents to functions
type Handlers map[string]decl.Func

// Loader parses, validates and registers documents
type Loader struct {
	handlers Handlers
	fallback func(name string) decl.Func
	logger   *slog.Logger
	schema   *jsonschema.Schema
}

// Option configures a Loader
type Option func(*Loader)

// WithHandlers adds the functions handler names resolve to
func WithHandlers(h Handlers) Option {
	return func(l *Loader) {
		for name, fn := range h {
			l.handlers[name] = fn
		}
	}
}

// WithFallback resolves handler names missing from the registered
// handlers. Tools that only inspect declarations use it to stand in for
// functions they do not have.
func WithFallback(fn func(name string) decl.Func) Option {
	return func(l *Loader) {
		l.fallback = fn
	}
}

// WithLogger sets the loader logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a loader with the embedded document schema
func New(opts ...Option) (*Loader, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("declaration schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("declaration schema: %w", err)
	}

	l := &Loader{
		handlers: make(Handlers),
		logger:   logging.New(resolve.EnvDebug),
		schema:   schema,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LoadFile reads path and registers its declarations
func (l *Loader) LoadFile(reg *decl.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return beasterrors.NewInputError("cannot read declaration file", err).
			WithContext("file", path)
	}
	return l.Load(reg, path, data)
}

// Load registers the declarations of every document in data. name labels
// errors. Either every declaration is registered or none is.
func (l *Loader) Load(reg *decl.Registry, name string, data []byte) error {
	docs, err := l.Parse(name, data)
	if err != nil {
		return err
	}
	var items []decl.Item
	for _, doc := range docs {
		for _, d := range doc {
			items = append(items, decl.Item{Selector: d.Selector, Fields: d.Fields})
		}
	}
	if err := reg.DeclareList(items); err != nil {
		return withSource(err, name)
	}
	l.logger.Debug("[DECL] loaded", "source", name, "documents", len(docs), "declarations", len(items))
	return nil
}

// Declaration is one parsed entry of a document
type Declaration struct {
	Selector string
	Fields   decl.Fields
}

// Parse decodes and validates data without registering anything
func (l *Loader) Parse(name string, data []byte) ([][]Declaration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs [][]Declaration
	for {
		var root yaml.Node
		err := dec.Decode(&root)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, beasterrors.NewInputError("cannot parse declaration document", err).
				WithContext("file", name)
		}
		doc, err := l.document(name, &root)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Loader) document(name string, root *yaml.Node) ([]Declaration, error) {
	node := root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		return nil, nil
	}

	if err := l.schema.Validate(jsonValue(node)); err != nil {
		return nil, beasterrors.Wrap(beasterrors.ErrSchemaValidation,
			"declaration document does not match the schema", err).
			WithContext("file", name)
	}

	var out []Declaration
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		fields := decl.Fields{}
		for j := 0; j+1 < len(value.Content); j += 2 {
			field := value.Content[j].Value
			events := field == decl.FieldOn || field == decl.FieldOnWin
			v, err := l.value(value.Content[j+1], handlerDepth(field), events)
			if err != nil {
				return nil, withSource(err, name).
					WithContext("selector", key.Value).
					WithContext("field", field)
			}
			fields[field] = v
		}
		out = append(out, Declaration{Selector: key.Value, Fields: fields})
	}
	return out, nil
}

// handlerDepth is the nesting level at which a field holds handler names,
// or -1 when it holds data
func handlerDepth(field string) int {
	switch field {
	case decl.FieldExpand, decl.FieldDomInit, decl.FieldOnAttach, decl.FieldOnRemove:
		return 0
	case decl.FieldOn, decl.FieldOnWin:
		return 1
	case decl.FieldOnMod:
		return 2
	}
	return -1
}

// value converts node to a declaration value. Scalars at depth 0 are
// handler names; the preventable group of an event mapping keeps its
// handlers one level deeper.
func (l *Loader) value(node *yaml.Node, depth int, events bool) (any, error) {
	if node.Kind == yaml.AliasNode {
		return l.value(node.Alias, depth, events)
	}
	if node.ShortTag() == FuncTag {
		return l.handler(node)
	}

	switch node.Kind {
	case yaml.ScalarNode:
		if depth == 0 {
			return l.handler(node)
		}
		return scalar(node), nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := l.value(item, -1, false)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			next := depth - 1
			if events && key == decl.Preventable {
				next = depth
			}
			if depth < 0 {
				next = -1
			}
			v, err := l.value(node.Content[i+1], next, false)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}
	return nil, nil
}

func (l *Loader) handler(node *yaml.Node) (decl.Func, error) {
	name := strings.TrimSpace(node.Value)
	if fn, ok := l.handlers[name]; ok && fn != nil {
		return fn, nil
	}
	if l.fallback != nil {
		if fn := l.fallback(name); fn != nil {
			return fn, nil
		}
	}
	return nil, beasterrors.Newf(beasterrors.ErrHandlerNotFound,
		"no handler named '%s' at line %d", name, node.Line).
		WithContext("handler", name).
		WithContext("line", node.Line)
}

// scalar decodes a plain YAML scalar
func scalar(node *yaml.Node) any {
	switch node.ShortTag() {
	case "!!null":
		return nil
	case "!!bool":
		b, err := strconv.ParseBool(strings.ToLower(node.Value))
		if err == nil {
			return b
		}
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err == nil {
			return f
		}
	}
	return node.Value
}

// jsonValue converts node to the value shapes the schema validator expects
func jsonValue(node *yaml.Node) any {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil
		}
		return jsonValue(node.Content[0])
	case yaml.AliasNode:
		return jsonValue(node.Alias)
	case yaml.SequenceNode:
		out := make([]any, len(node.Content))
		for i, item := range node.Content {
			out[i] = jsonValue(item)
		}
		return out
	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			out[node.Content[i].Value] = jsonValue(node.Content[i+1])
		}
		return out
	}
	if node.ShortTag() == FuncTag {
		return node.Value
	}
	return scalar(node)
}

func withSource(err error, name string) *beasterrors.BeastError {
	var be *beasterrors.BeastError
	if errors.As(err, &be) {
		if _, ok := be.GetContext("file"); !ok {
			be.WithContext("file", name)
		}
		return be
	}
	return beasterrors.NewInputError("cannot load declarations", err).WithContext("file", name)
}
