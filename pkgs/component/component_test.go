package component

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/beast/pkgs/bml"
	"github.com/aledsdavies/beast/pkgs/calltree"
	"github.com/aledsdavies/beast/pkgs/decl"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
)

func newTestRuntime(t *testing.T, decls map[string]decl.Fields) (*Runtime, *decl.Registry) {
	t.Helper()
	reg := decl.NewRegistry(decl.WithLogger(logging.Discard()))
	require.NoError(t, reg.DeclareAll(decls))
	return NewRuntime(reg, WithLogger(logging.Discard())), reg
}

func mustNode(t *testing.T, rt *Runtime, name string, attrs map[string]any, children ...any) *Node {
	t.Helper()
	n, err := rt.Node(name, attrs, children...)
	require.NoError(t, err)
	return n
}

func TestNodeAttributesAndDefaults(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"button": {"mod": map[string]any{"size": "m", "theme": "light"}, "param": map[string]any{"label": "ok"}},
	})

	n := mustNode(t, rt, "Button", map[string]any{"Theme": "dark", "Size": "", "label": "go", "Url": nil})

	assert.True(t, n.IsBlock())
	assert.Equal(t, "button", n.Selector())
	assert.Same(t, n, n.ParentBlock())
	assert.Equal(t, "dark", n.Mod("theme"), "explicit modifier wins")
	assert.Equal(t, "m", n.Mod("Size"), "empty modifier takes the default")
	assert.Equal(t, "go", n.Param("label"))
	assert.Contains(t, n.Mods(), "url")
}

func TestResolutionIsLazyAndSeals(t *testing.T) {
	rt, reg := newTestRuntime(t, map[string]decl.Fields{"a": {}})
	assert.Equal(t, decl.StateOpen, reg.State())

	mustNode(t, rt, "A", nil)
	assert.Equal(t, decl.StateSealed, reg.State())

	err := reg.Declare("b", decl.Fields{})
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrRegistrySealed))
}

func TestResolutionFailureIsReported(t *testing.T) {
	rt, reg := newTestRuntime(t, map[string]decl.Fields{
		"a": {"inherits": "b"},
		"b": {"inherits": "a"},
	})

	_, err := rt.Node("A", nil)
	require.Error(t, err)
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrInheritanceCycle))
	assert.Equal(t, decl.StateOpen, reg.State())
}

func TestAbstractInstantiation(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"base":   {"abstract": true, "mod": map[string]any{"size": "m"}},
		"button": {"inherits": "base"},
	})

	_, err := rt.Node("Base", nil)
	require.Error(t, err)
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrAbstractInstantiation))

	n := mustNode(t, rt, "Button", nil)
	assert.Equal(t, []string{"button", "button_size_m"}, n.ClassNames(), "abstract ancestors contribute no classes")
	assert.True(t, n.IsKindOf("base"))
}

func TestElementsBindToParentBlock(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"list":       {},
		"list__row":  {"tag": "tr"},
		"list__cell": {"tag": "td"},
	})

	cellA := mustNode(t, rt, "cell", nil, "a")
	cellB := mustNode(t, rt, "cell", nil, "b")
	row := mustNode(t, rt, "row", nil, cellA, cellB)
	assert.Empty(t, row.Selector(), "detached element has no selector")

	list := mustNode(t, rt, "List", nil, row)
	assert.Equal(t, "list__row", row.Selector())
	assert.Equal(t, "list__cell", cellA.Selector())
	assert.Same(t, list, cellB.ParentBlock())
	assert.Equal(t, []*Node{cellA, cellB}, list.Elem("cell"))
	assert.Equal(t, []*Node{cellA, cellB}, cellA.Elem("cell"), "elements delegate to their block")
	assert.Len(t, list.Elem(), 3)

	require.NoError(t, list.Render())
	assert.Equal(t, "tr", row.Tag())
	assert.Equal(t, "td", cellA.Tag())
}

func TestContextAttributeBindsElement(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{"card__title": {"tag": "h1"}})

	card := mustNode(t, rt, "Card", nil)
	title := mustNode(t, rt, "title", map[string]any{bml.DefaultContextAttr: card})
	assert.Equal(t, "card__title", title.Selector())
	assert.Same(t, card, title.ParentBlock())
}

func TestNoElemsDelegatesElements(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"wrapper": {"noElems": true},
	})

	title := mustNode(t, rt, "title", nil)
	wrapper := mustNode(t, rt, "Wrapper", nil, title)
	outer := mustNode(t, rt, "Outer", nil, wrapper)
	assert.Equal(t, "wrapper__title", title.Selector())

	require.NoError(t, outer.Render())
	assert.Equal(t, "outer__title", title.Selector())
	assert.Equal(t, []*Node{title}, outer.Elem("title"))
	assert.Empty(t, wrapper.Elem("title"))
}

func TestClassNames(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"control": {"mod": map[string]any{"size": "m"}},
		"button":  {"inherits": "control", "mix": "clearfix"},
	})

	n := mustNode(t, rt, "Button", map[string]any{"State": "on", "Wide": true, "Off": false})
	require.NoError(t, n.Render())

	want := []string{
		"button", "control", "clearfix",
		"button_size_m", "control_size_m",
		"button_state_on", "control_state_on",
		"button_wide", "control_wide",
	}
	if diff := cmp.Diff(want, n.ClassNames()); diff != "" {
		t.Errorf("ClassNames mismatch (-want +got):\n%s", diff)
	}
}

func TestClassNamesHonorFinalMod(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"base":   {"mod": map[string]any{"size": "m"}},
		"themed": {"inherits": "base", "finalMod": true, "mod": map[string]any{"theme": "dark"}},
		"button": {"inherits": "themed", "mod": map[string]any{"state": "on"}},
	})

	n := mustNode(t, rt, "Button", nil)
	want := []string{
		"button", "themed", "base",
		"themed_size_m", "base_size_m",
		"button_state_on",
		"themed_theme_dark", "base_theme_dark",
	}
	if diff := cmp.Diff(want, n.ClassNames()); diff != "" {
		t.Errorf("ClassNames mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandAndRenderHTML(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"menu": {
			"tag":     "ul",
			"domAttr": map[string]any{"role": "menu"},
			"expand": func(c *decl.Call, args ...any) (any, error) {
				self := Self(c)
				header, err := self.Runtime().Node("header", nil, "Title")
				if err != nil {
					return nil, err
				}
				return nil, self.Append(header, self.Children())
			},
		},
		"menu__header": {"tag": "h2"},
		"menu__item":   {"tag": "li"},
		"menu__sep":    {"tag": "hr"},
	})

	menu := mustNode(t, rt, "Menu", nil,
		mustNode(t, rt, "item", nil, "A & B"),
		mustNode(t, rt, "sep", nil, "ignored"),
	)
	got, err := menu.HTML()
	require.NoError(t, err)

	want := `<ul data-node-name="Menu" role="menu" class="menu">` +
		`<h2 data-node-name="header" class="menu__header">Title</h2>` +
		`<li data-node-name="item" class="menu__item">A &amp; B</li>` +
		`<hr data-node-name="sep" class="menu__sep"/>` +
		`</ul>`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HTML mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderHTMLAttributes(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{"tabs": {"noElems": true}})

	n := mustNode(t, rt, "Tabs", map[string]any{"Active": true, "title": "x"})
	got, err := n.HTML()
	require.NoError(t, err)

	assert.Contains(t, got, `data-mod="{&#34;active&#34;:true}"`)
	assert.Contains(t, got, `data-param="{&#34;title&#34;:&#34;x&#34;}"`)
	assert.Contains(t, got, `data-no-elems="1"`)
	assert.Contains(t, got, `class="tabs tabs_active"`)
}

func TestUserMethodsAndInherited(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"base": {
			"greet": func(c *decl.Call, args ...any) (any, error) {
				return "hello " + Self(c).Param("name").(string), nil
			},
		},
		"greeter": {
			"inherits": "base",
			"greet": func(c *decl.Call, args ...any) (any, error) {
				prev, err := c.Inherited(args...)
				if err != nil {
					return nil, err
				}
				return prev.(string) + "!", nil
			},
		},
	})

	n := mustNode(t, rt, "Greeter", map[string]any{"name": "bob"})
	got, err := n.Call("greet")
	require.NoError(t, err)
	assert.Equal(t, "hello bob!", got)

	for _, method := range []string{"missing", "inherits"} {
		_, err = n.Call(method)
		assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrUnknownMethod), method)
	}
}

func TestEventsAndModHandlers(t *testing.T) {
	var pressed []any
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"button": {
			"on": map[string]any{
				"click": func(c *decl.Call, args ...any) (any, error) {
					ev := args[0].(*Event)
					return nil, Self(c).SetMod("pressed", true, ev.Data)
				},
				"preventable": map[string]any{
					"submit": func(c *decl.Call, args ...any) (any, error) {
						args[0].(*Event).PreventDefault()
						return nil, nil
					},
				},
			},
			"onMod": map[string]any{
				"pressed": map[string]any{
					"true": func(c *decl.Call, args ...any) (any, error) {
						pressed = append(pressed, args[0])
						return nil, nil
					},
				},
			},
		},
	})

	n := mustNode(t, rt, "Button", nil)
	prevented, err := n.Trigger("click", "early")
	require.NoError(t, err)
	assert.False(t, prevented)
	assert.Nil(t, n.Mod("pressed"), "unmounted nodes do not receive events")

	require.NoError(t, n.Render())
	_, err = n.Trigger("click", "payload")
	require.NoError(t, err)
	assert.Equal(t, true, n.Mod("pressed"))
	assert.Equal(t, []any{"payload"}, pressed)

	prevented, err = n.Trigger("submit", nil)
	require.NoError(t, err)
	assert.True(t, prevented)

	var extra int
	n.On("click focus", func(c *decl.Call, args ...any) (any, error) {
		extra++
		args[0].(*Event).PreventDefault()
		return nil, nil
	})
	prevented, err = n.Trigger("focus", nil)
	require.NoError(t, err)
	assert.False(t, prevented, "runtime handlers are not preventable")
	assert.Equal(t, 1, extra)
}

func TestModHandlerMatching(t *testing.T) {
	counts := map[string]int{}
	count := func(key string) decl.Func {
		return func(c *decl.Call, args ...any) (any, error) {
			counts[key]++
			return nil, nil
		}
	}
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"toggle": {
			"mod":   map[string]any{"open": ""},
			"onMod": map[string]any{"open": map[string]any{"": count("closed"), "yes": count("yes"), "*": count("any")}},
		},
	})

	n := mustNode(t, rt, "Toggle", nil)
	require.NoError(t, n.Render())
	assert.Equal(t, map[string]int{"closed": 1, "any": 1}, counts, "mount runs handlers for current values")

	require.NoError(t, n.SetMod("open", false))
	assert.Equal(t, map[string]int{"closed": 2, "any": 2}, counts, "false matches the empty value")

	require.NoError(t, n.ToggleMod("open", "yes", ""))
	assert.Equal(t, "yes", n.Mod("open"))
	require.NoError(t, n.ToggleMod("open", "yes", ""))
	assert.Equal(t, "", n.Mod("open"))
	assert.Equal(t, map[string]int{"closed": 3, "yes": 1, "any": 4}, counts)

	require.NoError(t, n.SetMod("open", ""))
	assert.Equal(t, 4, counts["any"], "unchanged value runs nothing")
}

func TestWindowEvents(t *testing.T) {
	var received []any
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"listener": {
			"onWin": map[string]any{
				"Menu:open": func(c *decl.Call, args ...any) (any, error) {
					received = append(received, args[0].(*Event).Data)
					return nil, nil
				},
			},
		},
	})

	item := mustNode(t, rt, "item", nil)
	menu := mustNode(t, rt, "Menu", nil, item)
	listener := mustNode(t, rt, "Listener", nil)

	_, err := item.TriggerWin("open", 1)
	require.NoError(t, err)
	assert.Empty(t, received)

	require.NoError(t, menu.Render())
	require.NoError(t, listener.Render())
	_, err = item.TriggerWin("open", 2)
	require.NoError(t, err)
	assert.Equal(t, []any{2}, received)

	var resized int
	listener.OnWin("resize", func(c *decl.Call, args ...any) (any, error) {
		resized++
		return nil, nil
	})
	_, err = rt.DispatchWin("resize", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resized)

	require.NoError(t, listener.Remove())
	_, err = item.TriggerWin("open", 3)
	require.NoError(t, err)
	assert.Equal(t, []any{2}, received, "removed nodes are unsubscribed")
}

func TestImplementWith(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"link": {
			"implementWith": "button",
			"mod":           map[string]any{"kind": "link"},
			"href": func(c *decl.Call, args ...any) (any, error) {
				return "/" + Self(c).Text(), nil
			},
		},
		"button": {"tag": "button"},
	})

	link := mustNode(t, rt, "Link", map[string]any{"Size": "s"}, "go")
	page := mustNode(t, rt, "Page", nil, link)
	require.NoError(t, page.Render())

	children := page.Children()
	require.Len(t, children, 1)
	impl, ok := children[0].(*Node)
	require.True(t, ok)
	assert.NotSame(t, link, impl)
	assert.Equal(t, "Button", impl.Name())
	assert.Equal(t, "button", impl.Tag())
	assert.Equal(t, "go", impl.Text())
	assert.Equal(t, "s", impl.Mod("size"))
	assert.Equal(t, "link", impl.Mod("kind"))
	assert.True(t, impl.Mounted())

	href, err := impl.Call("href")
	require.NoError(t, err)
	assert.Equal(t, "/go", href, "methods of the implemented declaration stay callable")

	want := []string{"button", "button_kind_link", "button_size_s", "link", "link_kind_link", "link_size_s"}
	assert.Equal(t, want, impl.ClassNames())

	got, err := link.HTML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, `<button data-node-name="Button"`), got)
	assert.Contains(t, got, `data-implemented-node-name="Link"`)
}

func TestTreeQueries(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)

	rows := []*Node{
		mustNode(t, rt, "row", nil, mustNode(t, rt, "cell", nil, "a"), "text", mustNode(t, rt, "cell", nil, "b")),
		mustNode(t, rt, "row", nil, mustNode(t, rt, "cell", nil, "c")),
	}
	table := mustNode(t, rt, "Table", nil, "caption", rows[0], rows[1])

	assert.Len(t, table.Get("row"), 2)
	assert.Len(t, table.Get("/"), 2)
	assert.Empty(t, table.Get("cell"), "only direct children match a bare name")

	var texts []string
	for _, cell := range table.Get("row/cell") {
		texts = append(texts, cell.Text())
	}
	assert.Equal(t, []string{"a", "b", "c"}, texts)
	assert.True(t, table.Has("row/cell"))
	assert.False(t, table.Has("row/missing"))

	assert.Equal(t, 1, rows[1].Index(), "text siblings are not counted")
	assert.Equal(t, "caption", table.Text())
	assert.Len(t, table.Elem("cell"), 3)
}

func TestRemoveRunsHook(t *testing.T) {
	var removed []string
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"list__item": {
			"onRemove": func(c *decl.Call, args ...any) (any, error) {
				removed = append(removed, Self(c).Text())
				return nil, nil
			},
		},
	})

	list := mustNode(t, rt, "List", nil, mustNode(t, rt, "item", nil, "a"), mustNode(t, rt, "item", nil, "b"))
	items := list.Elem("item")
	require.Len(t, items, 2)

	require.NoError(t, items[0].Remove())
	assert.Equal(t, []string{"a"}, removed)
	assert.Len(t, list.Elem("item"), 1)
	assert.Len(t, list.Children(), 1)
	assert.Nil(t, items[0].Parent())
}

func TestRuntimeExpand(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"counter": {
			"expand": func(c *decl.Call, args ...any) (any, error) {
				self := Self(c)
				return nil, self.Append("[", self.Children(), "]")
			},
		},
	})

	n := mustNode(t, rt, "Counter", nil, "1")
	require.NoError(t, n.Render())
	assert.Equal(t, "[1]", n.Text())

	require.NoError(t, n.Expand("2"))
	assert.Equal(t, "[2]", n.Text())
}

func TestHandlerErrorsAreWrapped(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"broken": {
			"expand": func(c *decl.Call, args ...any) (any, error) {
				return nil, beasterrors.New(beasterrors.ErrInvalidField, "boom")
			},
		},
	})

	err := mustNode(t, rt, "Broken", nil).Render()
	require.Error(t, err)
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrHandlerFailed))
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrInvalidField))
}

func TestBuildFromCompiledMarkup(t *testing.T) {
	rt, _ := newTestRuntime(t, map[string]decl.Fields{
		"menu":       {"tag": "nav"},
		"menu__item": {"tag": "a"},
	})

	src, err := bml.Compile(`<Menu title={title}><item>One</item><item Active>Two</item></Menu>`)
	require.NoError(t, err)
	values, err := calltree.Parse(src, "")
	require.NoError(t, err)

	built, err := rt.BuildAll(values, nil, Scope{"title": "Main"})
	require.NoError(t, err)
	require.Len(t, built, 1)

	menu := built[0].(*Node)
	assert.Equal(t, "Main", menu.Param("title"))
	items := menu.Elem("item")
	require.Len(t, items, 2)
	assert.Equal(t, true, items[1].Mod("active"))

	got, err := menu.HTML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, `<nav data-node-name="Menu" class="menu" data-param=`), got)
	assert.Contains(t, got, `<a data-node-name="item" class="menu__item">One</a>`)
	assert.Contains(t, got, `class="menu__item menu__item_active"`)

	_, err = rt.BuildAll(values, nil, nil)
	assert.True(t, beasterrors.IsErrorType(err, beasterrors.ErrUnresolvedReference))
}

func TestBuildBindsContext(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	card := mustNode(t, rt, "Card", nil)

	src, err := bml.Compile(`<title>x</title>`)
	require.NoError(t, err)
	call, err := calltree.ParseCall(src, "")
	require.NoError(t, err)

	built, err := rt.Build(call, card, nil)
	require.NoError(t, err)
	title := built.(*Node)
	assert.Equal(t, "card__title", title.Selector())
}

func TestStringRoundTrip(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	n := mustNode(t, rt, "Button", map[string]any{"State": "open", "label": "go \"now\""},
		"x", mustNode(t, rt, "icon", nil))

	got := n.String()
	assert.Equal(t, `Beast.node("Button",{"State":"open","label":"go \"now\""},"x",Beast.node("icon",undefined))`, got)

	call, err := calltree.ParseCall(got, "")
	require.NoError(t, err)
	assert.Equal(t, "Button", call.Name)
	label, ok := call.Attr("label")
	require.True(t, ok)
	assert.Equal(t, calltree.Str{Value: `go "now"`}, label)
}
