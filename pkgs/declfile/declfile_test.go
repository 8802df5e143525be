package declfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/beast/pkgs/decl"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

func returning(s string) decl.Func {
	return func(c *decl.Call, args ...any) (any, error) { return s, nil }
}

func newLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := New(
		WithLogger(logging.Discard()),
		WithHandlers(Handlers{
			"toggle": returning("toggle"),
			"send":   returning("send"),
			"focus":  returning("focus"),
			"label":  returning("label"),
			"build":  returning("build"),
		}),
	)
	require.NoError(t, err)
	return l
}

func newRegistry() *decl.Registry {
	return decl.NewRegistry(decl.WithLogger(logging.Discard()))
}

const buttonDoc = `
control:
  mod: { size: m }
  tag: span
button:
  inherits: control
  mix: [clearfix]
  param: { weight: 2, tags: [a, b] }
  expand: build
  on:
    click: toggle
    preventable: { submit: send }
  onMod:
    state: { open: focus, "": focus }
  label: !fn label
  note: plain text
`

func TestLoadRegistersInDocumentOrder(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, newLoader(t).Load(reg, "button.yaml", []byte(buttonDoc)))

	assert.Equal(t, []string{"control", "button"}, reg.Selectors())

	button, ok := reg.Get("button")
	require.True(t, ok)
	assert.Equal(t, []string{"control"}, button.Inherits())
	assert.Equal(t, "plain text", button.Fields["note"])
	assert.Equal(t, map[string]any{"weight": 2.0, "tags": []any{"a", "b"}}, button.Fields["param"])

	table, err := resolve.Compile(reg, resolve.WithLogger(logging.Discard()))
	require.NoError(t, err)
	e, ok := table.Get("button")
	require.True(t, ok)

	for path, want := range map[string]string{
		"expand":                "build",
		"on.click":              "toggle",
		"on.preventable.submit": "send",
		"onMod.state.open":      "focus",
		"onMod.state.":          "focus",
		"label":                 "label",
	} {
		chain := e.Chain(path)
		require.Len(t, chain, 1, path)
		got, err := decl.Invoke(nil, path, chain)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	assert.Equal(t, []string{"label", "note"}, e.UserMethods)
	assert.Equal(t, "span", e.Fields["tag"])
}

func TestLoadJSON(t *testing.T) {
	reg := newRegistry()
	doc := `{"menu": {"tag": "ul", "on": {"click": "toggle"}}, "menu__item": {"tag": "li"}}`
	require.NoError(t, newLoader(t).Load(reg, "menu.json", []byte(doc)))

	assert.Equal(t, []string{"menu", "menu__item"}, reg.Selectors())
	menu, ok := reg.Get("menu")
	require.True(t, ok)
	assert.Equal(t, []string{"item"}, menu.Elems)
}

func TestLoadMultipleDocuments(t *testing.T) {
	reg := newRegistry()
	doc := "a: { tag: p }\n---\nb: { inherits: a }\n---\n"
	require.NoError(t, newLoader(t).Load(reg, "multi.yaml", []byte(doc)))
	assert.Equal(t, []string{"a", "b"}, reg.Selectors())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		errType string
	}{
		{name: "not a mapping", doc: "- a\n- b\n", errType: beasterrors.ErrSchemaValidation},
		{name: "wrong field type", doc: "a: { noElems: yes please }\n", errType: beasterrors.ErrSchemaValidation},
		{name: "handler must be named", doc: "a: { on: { click: 3 } }\n", errType: beasterrors.ErrSchemaValidation},
		{name: "private field", doc: "a: { _secret: 1 }\n", errType: beasterrors.ErrSchemaValidation},
		{name: "unknown handler", doc: "a: { expand: missing }\n", errType: beasterrors.ErrHandlerNotFound},
		{name: "unknown tagged handler", doc: "a: { greet: !fn nobody }\n", errType: beasterrors.ErrHandlerNotFound},
		{name: "bad yaml", doc: "a: [\n", errType: beasterrors.ErrInputRead},
		{name: "bad selector", doc: "a__b__c: {}\n", errType: beasterrors.ErrInvalidSelector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newLoader(t).Load(newRegistry(), "bad.yaml", []byte(tt.doc))
			require.Error(t, err)
			assert.True(t, beasterrors.IsErrorType(err, tt.errType), "got %v", err)

			var be *beasterrors.BeastError
			require.ErrorAs(t, err, &be)
			file, ok := be.GetContext("file")
			assert.True(t, ok)
			assert.Equal(t, "bad.yaml", file)
		})
	}
}

func TestParseValidatesBeforeRegistering(t *testing.T) {
	reg := newRegistry()
	doc := "a: { tag: p }\n---\nb: { expand: missing }\n"
	err := newLoader(t).Load(reg, "partial.yaml", []byte(doc))
	require.Error(t, err)
	assert.Zero(t, reg.Len(), "nothing is registered when a document fails")
}

func TestLoadIsAllOrNothing(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.Declare("base", decl.Fields{"final": "tag", "tag": "div"}))

	doc := "a: { tag: p }\n---\nbase: { tag: span }\n"
	err := newLoader(t).Load(reg, "final.yaml", []byte(doc))
	require.Error(t, err)
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrFinalField))
	assert.Equal(t, []string{"base"}, reg.Selectors())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("card: { tag: section }\n"), 0o644))

	reg := newRegistry()
	l := newLoader(t)
	require.NoError(t, l.LoadFile(reg, path))
	assert.True(t, reg.Has("card"))

	err := l.LoadFile(reg, filepath.Join(dir, "missing.yaml"))
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrInputRead))
}

func TestFallbackHandlers(t *testing.T) {
	var asked []string
	l, err := New(
		WithLogger(logging.Discard()),
		WithHandlers(Handlers{"toggle": returning("toggle")}),
		WithFallback(func(name string) decl.Func {
			asked = append(asked, name)
			if name == "refuse" {
				return nil
			}
			return returning("stub:" + name)
		}),
	)
	require.NoError(t, err)

	reg := newRegistry()
	require.NoError(t, l.Load(reg, "stub.yaml", []byte("a: { expand: render, on: { click: toggle } }\n")))
	assert.Equal(t, []string{"render"}, asked, "registered handlers win")

	table, err := resolve.Compile(reg, resolve.WithLogger(logging.Discard()))
	require.NoError(t, err)
	e, ok := table.Get("a")
	require.True(t, ok)
	got, err := decl.Invoke(nil, "expand", e.Chain("expand"))
	require.NoError(t, err)
	assert.Equal(t, "stub:render", got)

	err = l.Load(newRegistry(), "stub.yaml", []byte("b: { expand: refuse }\n"))
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrHandlerNotFound))
}
