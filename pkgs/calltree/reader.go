package calltree

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
)

// DefaultCallee matches the compiler's default constructor expression
const DefaultCallee = "Beast.node"

var numberPrefix = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// Parse reads a sequence of top-level values separated by whitespace, ',' or
// ';'. A bracketed list such as "[a, b]" is read as its elements.
func Parse(src, callee string) ([]Value, error) {
	if callee == "" {
		callee = DefaultCallee
	}
	r := &reader{src: src, callee: callee}

	var values []Value
	for {
		r.skipSeparators()
		if r.eof() {
			return values, nil
		}
		if r.peek() == '[' || r.peek() == ']' {
			r.pos++
			continue
		}
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
}

// ParseCall reads a single constructor call, as produced for one top-level
// markup region
func ParseCall(src, callee string) (*Call, error) {
	values, err := Parse(src, callee)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, beasterrors.Newf(beasterrors.ErrSyntax, "expected one call, found %d values", len(values))
	}
	c, ok := values[0].(*Call)
	if !ok {
		return nil, beasterrors.Newf(beasterrors.ErrSyntax, "expected a call, found %s", values[0].Kind())
	}
	return c, nil
}

type reader struct {
	src    string
	pos    int
	callee string
}

func (r *reader) eof() bool { return r.pos >= len(r.src) }

func (r *reader) peek() byte {
	if r.eof() {
		return 0
	}
	return r.src[r.pos]
}

func (r *reader) errorf(format string, args ...interface{}) error {
	return beasterrors.Newf(beasterrors.ErrSyntax, format, args...).WithContext("offset", r.pos)
}

func (r *reader) skipSpace() {
	for !r.eof() && isSpace(r.src[r.pos]) {
		r.pos++
	}
}

func (r *reader) skipSeparators() {
	for !r.eof() && (isSpace(r.src[r.pos]) || r.src[r.pos] == ',' || r.src[r.pos] == ';') {
		r.pos++
	}
}

func (r *reader) expect(ch byte) error {
	r.skipSpace()
	if r.peek() != ch {
		return r.errorf("expected %q at offset %d", ch, r.pos)
	}
	r.pos++
	return nil
}

// value reads primary ('+' primary)*
func (r *reader) value() (Value, error) {
	first, err := r.primary()
	if err != nil {
		return nil, err
	}
	parts := []Value{first}
	for {
		r.skipSpace()
		if r.peek() != '+' {
			break
		}
		r.pos++
		next, err := r.primary()
		if err != nil {
			return nil, err
		}
		parts = append(parts, next)
	}
	if len(parts) == 1 {
		return first, nil
	}
	return Concat{Parts: parts}, nil
}

func (r *reader) primary() (Value, error) {
	r.skipSpace()
	if r.eof() {
		return nil, r.errorf("unexpected end of expression")
	}

	switch {
	case strings.HasPrefix(r.src[r.pos:], r.callee) && r.callFollows():
		return r.call()
	case r.peek() == '"' || r.peek() == '\'':
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		return Str{Value: s}, nil
	}

	if v, ok := r.keyword(); ok {
		return v, nil
	}
	if n, ok := r.number(); ok {
		return n, nil
	}
	return r.ref()
}

func (r *reader) callFollows() bool {
	i := r.pos + len(r.callee)
	for i < len(r.src) && isSpace(r.src[i]) {
		i++
	}
	return i < len(r.src) && r.src[i] == '('
}

func (r *reader) call() (Value, error) {
	r.pos += len(r.callee)
	if err := r.expect('('); err != nil {
		return nil, err
	}

	r.skipSpace()
	if r.peek() != '"' && r.peek() != '\'' {
		return nil, r.errorf("expected node name at offset %d", r.pos)
	}
	name, err := r.str()
	if err != nil {
		return nil, err
	}
	c := &Call{Name: name}

	r.skipSpace()
	if r.peek() == ',' {
		r.pos++
		r.skipSpace()
		switch {
		case r.peek() == '{':
			attrs, err := r.attrs()
			if err != nil {
				return nil, err
			}
			c.Attrs = attrs
		case strings.HasPrefix(r.src[r.pos:], "undefined"):
			r.pos += len("undefined")
		default:
			return nil, r.errorf("expected attributes or undefined at offset %d", r.pos)
		}
	}

	for {
		r.skipSpace()
		switch r.peek() {
		case ')':
			r.pos++
			return c, nil
		case ',':
			r.pos++
			child, err := r.value()
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		default:
			return nil, r.errorf("expected ',' or ')' in call to %q at offset %d", name, r.pos)
		}
	}
}

func (r *reader) attrs() ([]Attr, error) {
	if err := r.expect('{'); err != nil {
		return nil, err
	}
	attrs := []Attr{}
	for {
		r.skipSpace()
		if r.peek() == '}' {
			r.pos++
			return attrs, nil
		}
		if len(attrs) > 0 {
			if err := r.expect(','); err != nil {
				return nil, err
			}
			r.skipSpace()
		}

		key, err := r.key()
		if err != nil {
			return nil, err
		}
		if err := r.expect(':'); err != nil {
			return nil, err
		}
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attr{Key: key, Value: v})
	}
}

func (r *reader) key() (string, error) {
	if r.peek() == '"' || r.peek() == '\'' {
		return r.str()
	}
	start := r.pos
	for !r.eof() && isIdent(r.src[r.pos]) {
		r.pos++
	}
	if r.pos == start {
		return "", r.errorf("expected attribute key at offset %d", r.pos)
	}
	return r.src[start:r.pos], nil
}

// str reads a quoted literal and decodes its escapes
func (r *reader) str() (string, error) {
	quote := r.src[r.pos]
	r.pos++

	var b strings.Builder
	for !r.eof() {
		ch := r.src[r.pos]
		r.pos++
		switch ch {
		case quote:
			return b.String(), nil
		case '\\':
			if r.eof() {
				return "", r.errorf("unterminated escape")
			}
			if err := r.escape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(ch)
		}
	}
	return "", r.errorf("unterminated string literal")
}

func (r *reader) escape(b *strings.Builder) error {
	ch := r.src[r.pos]
	r.pos++
	switch ch {
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case 'u':
		if r.pos+4 > len(r.src) {
			return r.errorf("short unicode escape")
		}
		code, err := strconv.ParseUint(r.src[r.pos:r.pos+4], 16, 32)
		if err != nil {
			return r.errorf("invalid unicode escape %q", r.src[r.pos:r.pos+4])
		}
		r.pos += 4
		b.WriteRune(rune(code))
	case '\n':
		// line continuation
	default:
		// Any other escaped character stands for itself, so "\{" is "{".
		r.pos--
		_, size := utf8.DecodeRuneInString(r.src[r.pos:])
		b.WriteString(r.src[r.pos : r.pos+size])
		r.pos += size
	}
	return nil
}

func (r *reader) keyword() (Value, bool) {
	for _, kw := range []struct {
		word  string
		value Value
	}{
		{"true", Bool{Value: true}},
		{"false", Bool{Value: false}},
		{"undefined", Undefined{}},
	} {
		end := r.pos + len(kw.word)
		if strings.HasPrefix(r.src[r.pos:], kw.word) && r.delimiterAt(end) {
			r.pos = end
			return kw.value, true
		}
	}
	return nil, false
}

func (r *reader) number() (Value, bool) {
	loc := numberPrefix.FindStringIndex(r.src[r.pos:])
	if loc == nil {
		return nil, false
	}
	end := r.pos + loc[1]
	if !r.delimiterAt(end) {
		return nil, false
	}
	lit := r.src[r.pos:end]
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, false
	}
	r.pos = end
	return Number{Literal: lit, Value: f}, true
}

// delimiterAt reports whether a literal may end at i
func (r *reader) delimiterAt(i int) bool {
	if i >= len(r.src) {
		return true
	}
	switch ch := r.src[i]; {
	case isSpace(ch), ch == ',', ch == ')', ch == '}', ch == '+', ch == ';', ch == ']':
		return true
	}
	return false
}

// ref reads host code up to the next top-level delimiter, keeping brackets
// and string literals intact
func (r *reader) ref() (Value, error) {
	start := r.pos
	depth := 0
	for !r.eof() {
		ch := r.src[r.pos]
		switch ch {
		case '"', '\'', '`':
			if err := r.skipString(ch); err != nil {
				return nil, err
			}
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				return r.endRef(start)
			}
			depth--
		case ',', '+', ';':
			if depth == 0 {
				return r.endRef(start)
			}
		}
		r.pos++
	}
	return r.endRef(start)
}

func (r *reader) endRef(start int) (Value, error) {
	code := strings.TrimSpace(r.src[start:r.pos])
	if code == "" {
		return nil, r.errorf("unexpected %q at offset %d", r.peek(), r.pos)
	}
	return Ref{Code: code}, nil
}

func (r *reader) skipString(quote byte) error {
	r.pos++
	for !r.eof() {
		ch := r.src[r.pos]
		r.pos++
		switch ch {
		case '\\':
			r.pos++
		case quote:
			return nil
		}
	}
	return r.errorf("unterminated string literal")
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isIdent(ch byte) bool {
	return ch == '_' || ch == '$' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9')
}
