package bml

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
)

func assertCompiles(t *testing.T, opts Options, input, want string) {
	t.Helper()

	got, err := New(opts).Compile(input)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", input, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compile(%q) mismatch (-want +got):\n%s", input, diff)
	}
}

func TestCompileMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "round trip",
			input: `<a x="1"><b/>text</a>`,
			want:  `Beast.node("a",{__context:this,"x":1},Beast.node("b"),"text")`,
		},
		{
			name:  "host code only",
			input: `var x = 1 < 2;`,
			want:  `var x = 1 < 2;`,
		},
		{
			name:  "markup inside host code",
			input: `return <div class="box">hi</div>;`,
			want:  `return Beast.node("div",{__context:this,"class":"box"},"hi");`,
		},
		{
			name:  "boolean attributes",
			input: `<input disabled checked/>`,
			want:  `Beast.node("input",{__context:this,"disabled":true,"checked":true})`,
		},
		{
			name:  "boolean attribute before value attribute",
			input: `<input disabled name="q">x</input>`,
			want:  `Beast.node("input",{__context:this,"disabled":true,"name":"q"},"x")`,
		},
		{
			name:  "inner tag without attributes",
			input: `<a><b>x</b></a>`,
			want:  `Beast.node("a",{__context:this},Beast.node("b",undefined,"x"))`,
		},
		{
			name:  "self closing inner tag with attributes",
			input: `<a><b c="d"/></a>`,
			want:  `Beast.node("a",{__context:this},Beast.node("b",{"c":"d"}))`,
		},
		{
			name:  "element names",
			input: `<menu__item-link/>`,
			want:  `Beast.node("menu__item-link",{__context:this})`,
		},
		{
			name:  "sibling regions",
			input: `[<a/>, <b/>]`,
			want:  `[Beast.node("a",{__context:this}), Beast.node("b",{__context:this})]`,
		},
		{
			name:  "whitespace inside tags",
			input: "<a  x=\"1\"\n\t></a >",
			want:  `Beast.node("a",{__context:this,"x":1})`,
		},
		{
			name:  "whitespace text is kept",
			input: "<ul>\n  <li>a</li>\n</ul>",
			want:  `Beast.node("ul",{__context:this},"\n  ",Beast.node("li",undefined,"a"),"\n")`,
		},
		{
			name:  "markup comment",
			input: `<a><!-- <b> "q" -->x</a>`,
			want:  `Beast.node("a",{__context:this},"x")`,
		},
		{
			name:  "comment between children",
			input: `<a><b/><!----><c/></a>`,
			want:  `Beast.node("a",{__context:this},Beast.node("b"),Beast.node("c"))`,
		},
		{
			name:  "less than in text",
			input: `<a>1 < 2</a>`,
			want:  `Beast.node("a",{__context:this},"1 < 2")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCompiles(t, Options{}, tt.input, tt.want)
		})
	}
}

func TestCompileAttributeValues(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "numeric literals are bare",
			input: `<a n="-1.5" m="1e3" k=".5"/>`,
			want:  `Beast.node("a",{__context:this,"n":-1.5,"m":1e3,"k":.5})`,
		},
		{
			name:  "non numeric literals are quoted",
			input: `<a s="1a" t="1.2.3"/>`,
			want:  `Beast.node("a",{__context:this,"s":"1a","t":"1.2.3"})`,
		},
		{
			name:  "leading zeros stay quoted",
			input: `<a z="08" o="007" p="0" q="0.25"/>`,
			want:  `Beast.node("a",{__context:this,"z":"08","o":"007","p":0,"q":0.25})`,
		},
		{
			name:  "empty value",
			input: `<a v=""/>`,
			want:  `Beast.node("a",{__context:this,"v":""})`,
		},
		{
			name:  "single quoted value with double quotes",
			input: `<a t='say "x"'/>`,
			want:  `Beast.node("a",{__context:this,"t":"say \"x\""})`,
		},
		{
			name:  "single quote inside double quoted value",
			input: `<a t="it's"/>`,
			want:  `Beast.node("a",{__context:this,"t":"it's"})`,
		},
		{
			name:  "escaped quote does not end value",
			input: `<a t="x\"y"/>`,
			want:  `Beast.node("a",{__context:this,"t":"x\"y"})`,
		},
		{
			name:  "newline in value",
			input: "<a t=\"x\ny\"/>",
			want:  `Beast.node("a",{__context:this,"t":"x\ny"})`,
		},
		{
			name:  "embed only",
			input: `<a v="{n}"/>`,
			want:  `Beast.node("a",{__context:this,"v":n})`,
		},
		{
			name:  "embed between literals",
			input: `<a class="x {cls} y"/>`,
			want:  `Beast.node("a",{__context:this,"class":"x "+cls+" y"})`,
		},
		{
			name:  "numeric literal after embed stays quoted",
			input: `<a v="{n}1"/>`,
			want:  `Beast.node("a",{__context:this,"v":n+"1"})`,
		},
		{
			name:  "adjacent embeds",
			input: `<a v="{a}{b}"/>`,
			want:  `Beast.node("a",{__context:this,"v":a+b})`,
		},
		{
			name:  "empty embed is dropped",
			input: `<a v="x{ }y"/>`,
			want:  `Beast.node("a",{__context:this,"v":"x"+"y"})`,
		},
		{
			name:  "only empty embeds",
			input: `<a v="{}"/>`,
			want:  `Beast.node("a",{__context:this,"v":""})`,
		},
		{
			name:  "escaped brace is literal",
			input: `<a v="\{x}"/>`,
			want:  `Beast.node("a",{__context:this,"v":"\{x}"})`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCompiles(t, Options{}, tt.input, tt.want)
		})
	}
}

func TestCompileTextEscaping(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "double quotes",
			input: `<a>say "hi"</a>`,
			want:  `Beast.node("a",{__context:this},"say \"hi\"")`,
		},
		{
			name:  "newline",
			input: "<a>one\ntwo</a>",
			want:  `Beast.node("a",{__context:this},"one\ntwo")`,
		},
		{
			name:  "carriage return",
			input: "<a>one\r\ntwo</a>",
			want:  `Beast.node("a",{__context:this},"one\r\ntwo")`,
		},
		{
			name:  "line separator",
			input: "<a>one\u2028two</a>",
			want:  `Beast.node("a",{__context:this},"one\u2028two")`,
		},
		{
			name:  "already escaped quote",
			input: `<a>\"</a>`,
			want:  `Beast.node("a",{__context:this},"\"")`,
		},
		{
			name:  "escaped brace",
			input: `<a>\{x}</a>`,
			want:  `Beast.node("a",{__context:this},"\{x}")`,
		},
		{
			name:  "non ascii text",
			input: `<a>héllo wörld</a>`,
			want:  `Beast.node("a",{__context:this},"héllo wörld")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCompiles(t, Options{}, tt.input, tt.want)
		})
	}
}

func TestCompileEmbeds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "text embed",
			input: `<a>Hello {name}!</a>`,
			want:  `Beast.node("a",{__context:this},"Hello ",name,"!")`,
		},
		{
			name:  "object literal braces",
			input: `<a>{f({x: {y: 1}})}</a>`,
			want:  `Beast.node("a",{__context:this},f({x: {y: 1}}))`,
		},
		{
			name:  "braces inside embed strings",
			input: `<a>{"}" + '{'}</a>`,
			want:  `Beast.node("a",{__context:this},"}" + '{')`,
		},
		{
			name:  "empty text embed",
			input: `<a>{ }</a>`,
			want:  `Beast.node("a",{__context:this})`,
		},
		{
			name:  "markup inside text embed",
			input: `<ul>{items.map(i => <li>{i}</li>)}</ul>`,
			want:  `Beast.node("ul",{__context:this},items.map(i => Beast.node("li",undefined,i)))`,
		},
		{
			name:  "two levels of markup inside attribute embeds",
			input: `<a v="{c ? <b w="{<i/>}"/> : 0}" z="2">t</a>`,
			want:  `Beast.node("a",{__context:this,"v":c ? Beast.node("b",{"w":Beast.node("i")}) : 0,"z":2},"t")`,
		},
		{
			name:  "siblings after nested embed",
			input: `<a>{<b>{<c/>}</b>}<d/>tail</a>`,
			want:  `Beast.node("a",{__context:this},Beast.node("b",undefined,Beast.node("c")),Beast.node("d"),"tail")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCompiles(t, Options{}, tt.input, tt.want)
		})
	}
}

func TestCompileDeepNesting(t *testing.T) {
	const depth = 64

	input := "<b/>"
	want := `Beast.node("b")`
	for i := 0; i < depth; i++ {
		input = "<a>{" + input + "}</a>"
		if i < depth-1 {
			want = `Beast.node("a",undefined,` + want + `)`
		} else {
			want = `Beast.node("a",{__context:this},` + want + `)`
		}
	}

	assertCompiles(t, Options{}, input+";x", want+";x")
}

func TestCompileHostCodeIsOpaque(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"double quoted string", `var s = "<a>";`},
		{"single quoted string", `var s = '<a>';`},
		{"escaped quote in string", `var s = "\"<a>";`},
		{"template literal", "var s = `<a>`;"},
		{"line comment", "// <a>\nx"},
		{"block comment", "/* <a> */ x"},
		{"block comment closed by slash star slash", "/*/ <a> */"},
		{"comparison", "if (a < 1) {}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCompiles(t, Options{}, tt.input, tt.input)
		})
	}
}

func TestCompileOptions(t *testing.T) {
	t.Run("custom callee", func(t *testing.T) {
		assertCompiles(t, Options{Callee: "h"}, `<a><b/></a>`, `h("a",{__context:this},h("b"))`)
	})

	t.Run("custom context", func(t *testing.T) {
		assertCompiles(t, Options{ContextAttr: "ctx", ContextExpr: "self"}, `<a/>`, `Beast.node("a",{ctx:self})`)
	})

	t.Run("context injected into embedded regions", func(t *testing.T) {
		input := `<a>{<b/>}</a>`
		assertCompiles(t, Options{}, input, `Beast.node("a",{__context:this},Beast.node("b"))`)
		assertCompiles(t, Options{ContextInEmbeds: true}, input,
			`Beast.node("a",{__context:this},Beast.node("b",{__context:this}))`)
	})
}

func TestCompileSyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		char   rune
		pos    int
		line   int
		column int
		msg    string
	}{
		{
			name:  "stray equals",
			input: `<a =>`,
			char:  '=', pos: 4, line: 1, column: 4,
			msg: "expected attribute name",
		},
		{
			name:  "unquoted value",
			input: `<a x=1/>`,
			char:  '1', pos: 6, line: 1, column: 6,
			msg: "attribute value must be quoted",
		},
		{
			name:  "slash not followed by close",
			input: `<a / >`,
			char:  ' ', pos: 5, line: 1, column: 5,
			msg: "expected '>' after '/'",
		},
		{
			name:  "mismatched closing tag",
			input: `<a></b>`,
			char:  '>', pos: 7, line: 1, column: 7,
			msg: "closing tag </b> does not match <a>",
		},
		{
			name:  "attribute without separator",
			input: `<a x="1"y="2"/>`,
			char:  'y', pos: 9, line: 1, column: 9,
			msg: "expected whitespace after attribute value",
		},
		{
			name:  "error on second line",
			input: "ok;\n<a =>",
			char:  '=', pos: 8, line: 2, column: 4,
			msg: "expected attribute name",
		},
		{
			name:  "unclosed tag",
			input: `<a>`,
			char:  0, pos: 4, line: 1, column: 4,
			msg: "unclosed tag <a>",
		},
		{
			name:  "unterminated embed",
			input: `<a>{x</a>`,
			char:  0, pos: 10, line: 1, column: 10,
			msg: "unterminated embed",
		},
		{
			name:  "unterminated comment",
			input: `<a><!-- x`,
			char:  0, pos: 10, line: 1, column: 10,
			msg: "unterminated comment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compile(tt.input)
			if err == nil {
				t.Fatalf("Compile(%q) = %q, want error", tt.input, out)
			}
			if out != "" {
				t.Errorf("partial output returned: %q", out)
			}

			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("error is %T, want *SyntaxError", err)
			}

			got := []interface{}{syntaxErr.Char, syntaxErr.Pos, syntaxErr.Line, syntaxErr.Column}
			want := []interface{}{tt.char, tt.pos, tt.line, tt.column}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("error location mismatch (-want +got):\n%s", diff)
			}
			if !strings.Contains(syntaxErr.Message, tt.msg) {
				t.Errorf("message %q does not contain %q", syntaxErr.Message, tt.msg)
			}
			if !beasterrors.IsErrorType(err, beasterrors.ErrSyntax) {
				t.Errorf("error is not a %s", beasterrors.ErrSyntax)
			}
		})
	}
}

func TestSyntaxErrorWindows(t *testing.T) {
	input := "l1\nl2\nl3\nl4\nl5\nl6\nvar x = <a>{y}<b =></a>"
	_, err := Compile(input)

	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}

	wantSource := "l3\nl4\nl5\nl6\nvar x = <a>{y}<b ="
	if diff := cmp.Diff(wantSource, syntaxErr.SourceWindow); diff != "" {
		t.Errorf("source window mismatch (-want +got):\n%s", diff)
	}

	if !strings.HasSuffix(syntaxErr.OutputWindow, `Beast.node("a",{__context:this},y,Beast.node("b"`) {
		t.Errorf("output window %q does not end with the emitted prefix", syntaxErr.OutputWindow)
	}

	msg := err.Error()
	for _, part := range []string{"BML syntax error", `unexpected token '='`, "line 7, column 18"} {
		if !strings.Contains(msg, part) {
			t.Errorf("error message missing %q:\n%s", part, msg)
		}
	}
}

func TestOutputWindowIsBounded(t *testing.T) {
	_, err := Compile(strings.Repeat("x", 500) + "<a =>")

	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
	if len(syntaxErr.OutputWindow) != outputWindowBytes {
		t.Errorf("output window is %d bytes, want %d", len(syntaxErr.OutputWindow), outputWindowBytes)
	}
}

func TestCompileLogsRegions(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{Logger: logging.NewWithWriter(&buf, slog.LevelDebug)}

	if _, err := New(opts).Compile(`<a>{<b/>}</a>`); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	logs := buf.String()
	for _, msg := range []string{"[BML] markup region opened", "[BML] embed opened", "nested=true", "[BML] compile done"} {
		if !strings.Contains(logs, msg) {
			t.Errorf("debug log missing %q:\n%s", msg, logs)
		}
	}
}

func TestMarkupStateString(t *testing.T) {
	if got := StateAttrValue.String(); got != "AttrValue" {
		t.Errorf("StateAttrValue.String() = %q", got)
	}
	if got := MarkupState(99).String(); got != "Unknown(99)" {
		t.Errorf("MarkupState(99).String() = %q", got)
	}
}
