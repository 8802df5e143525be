// Package bml compiles markup embedded in host-language source into nested
// constructor-call expressions.
//
// A single left-to-right scan alternates between host code and markup.
// Markup starts at '<' followed by a letter outside host strings and
// comments, and ends when the tag that opened it is closed. Attribute values
// and text may contain brace-delimited embeds of host code, which may in turn
// contain markup; the scanner keeps one region per level on an explicit
// stack.
//
// Embeds track host strings, comments and brace depth but not regular
// expression literals, so a '}' inside a regex literal closes the embed.
//
//	<a x="1"><b/>text</a>
//
// compiles to
//
//	Beast.node("a",{__context:this,"x":1},Beast.node("b"),"text")
package bml

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aledsdavies/beast/internal/invariant"
	"github.com/aledsdavies/beast/pkgs/logging"
)

// EnvDebug enables scanner traces.
const EnvDebug = "BEAST_DEBUG_BML"

var logger = logging.New(EnvDebug)

// ASCII character lookup tables for fast classification
var (
	isSpace     [128]bool
	isNameStart [128]bool
	isNamePart  [128]bool
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)
		isSpace[i] = ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f'
		isNameStart[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isNamePart[i] = isNameStart[i] || ('0' <= ch && ch <= '9') || ch == '-'
	}
}

func space(ch rune) bool     { return ch >= 0 && ch < 128 && isSpace[ch] }
func nameStart(ch rune) bool { return ch >= 0 && ch < 128 && isNameStart[ch] }
func namePart(ch rune) bool  { return ch >= 0 && ch < 128 && isNamePart[ch] }

// numericLiteral matches attribute values emitted as bare numbers. A leading
// zero is only allowed before the fraction, since "08" and "007" are not
// decimal literals in strict code.
var numericLiteral = regexp.MustCompile(`^[-+]?((0|[1-9]\d*)(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)

// Compiler translates source text with embedded markup. It holds no scan
// state and is safe for concurrent use.
type Compiler struct {
	opts Options
}

// New creates a Compiler with the given options
func New(opts Options) *Compiler {
	return &Compiler{opts: opts.withDefaults()}
}

// Compile translates source with the default options
func Compile(source string) (string, error) {
	return New(Options{}).Compile(source)
}

// Compile translates source. On error no output is returned; the error is a
// *SyntaxError.
func (c *Compiler) Compile(source string) (string, error) {
	s := &scanner{
		opts: c.opts,
		log:  c.opts.Logger,
		src:  []rune(source),
		line: 1,
	}
	return s.run()
}

// scanner is the transient parse state of one Compile call
type scanner struct {
	opts Options
	log  *slog.Logger

	src    []rune
	pos    int  // index of ch in src
	ch     rune // current rune under examination
	line   int
	column int

	out     bytes.Buffer
	host    hostState
	regions regionStack
}

func (s *scanner) run() (string, error) {
	s.log.Debug("[BML] compile start", "runes", len(s.src))

	for s.pos = 0; s.pos < len(s.src); s.pos++ {
		s.ch = s.src[s.pos]
		s.locate()

		var err error
		if s.regions.inMarkup() {
			err = s.markup(s.regions.current())
		} else {
			err = s.hostCode()
		}
		if err != nil {
			s.log.Debug("[BML] compile failed", "pos", s.pos+1, "error", err)
			return "", err
		}
	}

	if r := s.regions.current(); r != nil {
		s.ch = 0
		s.locate()
		return "", s.newSyntaxError(s.eofMessage(r))
	}

	invariant.Postcondition(s.regions.depth() == 0, "regions left open after scan")
	s.log.Debug("[BML] compile done", "bytes", s.out.Len())
	return s.out.String(), nil
}

// locate updates line and column for the rune at pos
func (s *scanner) locate() {
	if s.pos > 0 && s.src[s.pos-1] == '\n' {
		s.line++
		s.column = 1
		return
	}
	s.column++
}

func (s *scanner) peek(n int) rune {
	if i := s.pos + n; i < len(s.src) {
		return s.src[i]
	}
	return 0
}

// escaped reports whether ch is preceded by an odd number of backslashes
func (s *scanner) escaped() bool {
	n := 0
	for i := s.pos - 1; i >= 0 && s.src[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func (s *scanner) eofMessage(r *region) string {
	switch {
	case r.embed != nil:
		return "unterminated embed"
	case r.inComment:
		return "unterminated comment"
	case len(r.calls) > 0:
		return fmt.Sprintf("unclosed tag <%s>", r.top().name)
	default:
		return "unterminated tag"
	}
}

// hostCode handles one rune of host code, top level or inside an embed
func (s *scanner) hostCode() error {
	h := &s.host
	ch := s.ch

	switch {
	case h.lineComment:
		if ch == '\n' {
			h.lineComment = false
		}
	case h.blockComment:
		if ch == '/' && s.pos-1 > h.blockStart && s.src[s.pos-1] == '*' {
			h.blockComment = false
		}
	case h.singleQuote:
		if ch == '\'' && !s.escaped() {
			h.singleQuote = false
		}
	case h.doubleQuote:
		if ch == '"' && !s.escaped() {
			h.doubleQuote = false
		}
	case h.backtick:
		if ch == '`' && !s.escaped() {
			h.backtick = false
		}
	default:
		switch ch {
		case '\'':
			h.singleQuote = true
		case '"':
			h.doubleQuote = true
		case '`':
			h.backtick = true
		case '/':
			switch s.peek(1) {
			case '/':
				h.lineComment = true
			case '*':
				h.blockComment = true
				h.blockStart = s.pos + 1
			}
		case '{':
			if s.regions.inEmbed() {
				s.regions.current().embed.braces++
			}
		case '}':
			if s.regions.inEmbed() {
				e := s.regions.current().embed
				e.braces--
				if e.braces == 0 {
					s.closeEmbed()
					return nil
				}
			}
		case '<':
			if nameStart(s.peek(1)) {
				s.openRegion()
				return nil
			}
		}
	}

	s.out.WriteRune(ch)
	return nil
}

// markup handles one rune inside a markup region
func (s *scanner) markup(r *region) error {
	ch := s.ch

	if r.inComment {
		s.comment(r)
		return nil
	}

	switch r.state {
	case StateTagStart:
		if !nameStart(ch) {
			return s.newSyntaxError("expected tag name")
		}
		s.openCall(r)
		r.buf.WriteRune(ch)
		r.state = StateTagName

	case StateTagName:
		switch {
		case namePart(ch):
			r.buf.WriteRune(ch)
		case space(ch):
			s.finishTagName(r)
			r.state = StateInTag
		case ch == '>':
			s.finishTagName(r)
			s.endOpenTag(r)
		case ch == '/':
			s.finishTagName(r)
			r.state = StateSelfClose
		default:
			return s.newSyntaxError("invalid character in tag name")
		}

	case StateInTag:
		switch {
		case space(ch):
		case nameStart(ch):
			r.buf.WriteRune(ch)
			r.state = StateAttrName
		case ch == '>':
			s.endOpenTag(r)
		case ch == '/':
			r.state = StateSelfClose
		default:
			return s.newSyntaxError("expected attribute name, '>' or '/>'")
		}

	case StateAttrName:
		switch {
		case namePart(ch):
			r.buf.WriteRune(ch)
		case space(ch):
			s.booleanAttr(r)
			r.state = StateInTag
		case ch == '=':
			s.beginAttr(r)
			r.state = StateAttrEquals
		case ch == '>':
			s.booleanAttr(r)
			s.endOpenTag(r)
		case ch == '/':
			s.booleanAttr(r)
			r.state = StateSelfClose
		default:
			return s.newSyntaxError("invalid character in attribute name")
		}

	case StateAttrEquals:
		if ch != '"' && ch != '\'' {
			return s.newSyntaxError("attribute value must be quoted")
		}
		r.quote = ch
		r.segments = 0
		r.valueEmbeds = false
		r.state = StateAttrValue

	case StateAttrValue:
		s.attrValue(r)

	case StateAfterValue:
		switch {
		case space(ch):
			r.state = StateInTag
		case ch == '>':
			s.endOpenTag(r)
		case ch == '/':
			r.state = StateSelfClose
		default:
			return s.newSyntaxError("expected whitespace after attribute value")
		}

	case StateSelfClose:
		if ch != '>' {
			return s.newSyntaxError("expected '>' after '/'")
		}
		s.closeCall(r)

	case StateText:
		s.text(r)

	case StateClosingSlash:
		invariant.Invariant(ch == '/', "closing tag without '/'")
		r.state = StateClosingName

	case StateClosingName:
		switch {
		case r.buf.Len() == 0 && !nameStart(ch):
			return s.newSyntaxError("expected closing tag name")
		case namePart(ch):
			r.buf.WriteRune(ch)
		case space(ch):
			r.state = StateClosingEnd
		case ch == '>':
			return s.closeTag(r)
		default:
			return s.newSyntaxError("invalid character in closing tag name")
		}

	case StateClosingEnd:
		switch {
		case space(ch):
		case ch == '>':
			return s.closeTag(r)
		default:
			return s.newSyntaxError("expected '>' in closing tag")
		}

	default:
		invariant.Invariant(false, "unknown markup state %s", r.state)
	}
	return nil
}

func (s *scanner) text(r *region) {
	ch := s.ch
	esc := s.escaped()

	switch {
	case ch == '<' && !esc && s.peek(1) == '!' && s.peek(2) == '-' && s.peek(3) == '-':
		s.flushText(r)
		r.inComment = true
		r.commentSkip = 3
		r.commentDashes = 0
	case ch == '<' && !esc && s.peek(1) == '/':
		s.flushText(r)
		r.state = StateClosingSlash
	case ch == '<' && !esc && nameStart(s.peek(1)):
		s.flushText(r)
		r.state = StateTagStart
	case ch == '{' && !esc:
		s.flushText(r)
		s.openEmbed(r, false)
	default:
		writeEscaped(&r.buf, ch, esc)
	}
}

func (s *scanner) attrValue(r *region) {
	ch := s.ch
	esc := s.escaped()

	switch {
	case ch == r.quote && !esc:
		s.finishAttrValue(r)
		r.state = StateAfterValue
	case ch == '{' && !esc:
		s.flushSegment(r)
		r.valueEmbeds = true
		s.openEmbed(r, true)
	default:
		writeEscaped(&r.buf, ch, esc)
	}
}

// comment skips markup comment contents up to "-->"
func (s *scanner) comment(r *region) {
	if r.commentSkip > 0 {
		r.commentSkip--
		return
	}
	switch {
	case s.ch == '-':
		r.commentDashes++
	case s.ch == '>' && r.commentDashes >= 2:
		r.inComment = false
	default:
		r.commentDashes = 0
	}
}

// writeEscaped appends ch to a string-literal body. Unescaped double quotes
// and line terminators are escaped; an escaped newline becomes the "\n"
// escape itself.
func writeEscaped(b interface{ WriteString(string) (int, error) }, ch rune, esc bool) {
	switch ch {
	case '"':
		if esc {
			b.WriteString(`"`)
		} else {
			b.WriteString(`\"`)
		}
	case '\n':
		if esc {
			b.WriteString("n")
		} else {
			b.WriteString(`\n`)
		}
	case '\r':
		if esc {
			b.WriteString("r")
		} else {
			b.WriteString(`\r`)
		}
	case '\u2028':
		b.WriteString(`\u2028`)
	case '\u2029':
		b.WriteString(`\u2029`)
	default:
		b.WriteString(string(ch))
	}
}
