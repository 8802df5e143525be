package bml

import (
	"bytes"
	"fmt"

	"github.com/aledsdavies/beast/internal/invariant"
)

// Output construction. Every tag becomes
//
//	Callee("name"[,attrs|undefined][,child...])
//
// and every region, call and embed is written to out as soon as its opening
// token is seen, so no output is ever buffered beyond the current token.

func (s *scanner) openRegion() {
	invariant.Precondition(!s.host.inString() && !s.host.inComment(), "markup opened inside a host string or comment")
	r := &region{
		nested: s.regions.depth() > 0,
		state:  StateTagStart,
	}
	s.regions.push(r)
	s.log.Debug("[BML] markup region opened",
		"pos", s.pos+1, "depth", s.regions.depth(), "nested", r.nested)
}

func (s *scanner) closeRegion() {
	r := s.regions.pop()
	invariant.Invariant(len(r.calls) == 0, "region closed with %d open calls", len(r.calls))
	s.log.Debug("[BML] markup region closed", "pos", s.pos+1, "depth", s.regions.depth())
}

func (s *scanner) openCall(r *region) {
	if len(r.calls) > 0 {
		s.out.WriteByte(',')
		r.top().args++
	}
	s.out.WriteString(s.opts.Callee)
	s.out.WriteByte('(')
	r.calls = append(r.calls, call{})
}

// finishTagName writes the name argument and, for the outermost tag of an
// eligible region, the injected context attribute
func (s *scanner) finishTagName(r *region) {
	c := r.top()
	c.name = r.buf.String()
	r.buf.Reset()
	invariant.Postcondition(c.name != "", "empty tag name")

	s.out.WriteString(quoteName(c.name))
	c.args = 1

	if len(r.calls) == 1 && (!r.nested || s.opts.ContextInEmbeds) {
		s.out.WriteString(",{")
		s.out.WriteString(s.opts.ContextAttr)
		s.out.WriteByte(':')
		s.out.WriteString(s.opts.ContextExpr)
		c.attrs = 1
		c.args = 2
	}
}

// beginAttr writes the key of the attribute whose name is in buf
func (s *scanner) beginAttr(r *region) {
	name := r.buf.String()
	r.buf.Reset()

	c := r.top()
	if c.attrs == 0 {
		s.out.WriteString(",{")
		c.args = 2
	} else {
		s.out.WriteByte(',')
	}
	c.attrs++
	s.out.WriteString(quoteName(name))
	s.out.WriteByte(':')
}

func (s *scanner) booleanAttr(r *region) {
	s.beginAttr(r)
	s.out.WriteString("true")
}

func (s *scanner) endOpenTag(r *region) {
	c := r.top()
	if c.attrs > 0 {
		s.out.WriteByte('}')
	} else {
		s.out.WriteString(",undefined")
	}
	c.args = 2
	r.state = StateText
}

// closeCall closes a self-closing tag
func (s *scanner) closeCall(r *region) {
	if r.top().attrs > 0 {
		s.out.WriteByte('}')
	}
	s.out.WriteByte(')')
	r.calls = r.calls[:len(r.calls)-1]
	s.afterClose(r)
}

// closeTag closes the innermost open tag with the name in buf
func (s *scanner) closeTag(r *region) error {
	name := r.buf.String()
	r.buf.Reset()
	if open := r.top().name; name != open {
		return s.newSyntaxError(fmt.Sprintf("closing tag </%s> does not match <%s>", name, open))
	}
	s.out.WriteByte(')')
	r.calls = r.calls[:len(r.calls)-1]
	s.afterClose(r)
	return nil
}

func (s *scanner) afterClose(r *region) {
	if len(r.calls) == 0 {
		s.closeRegion()
		return
	}
	r.state = StateText
}

func (s *scanner) flushText(r *region) {
	if r.buf.Len() == 0 {
		return
	}
	s.out.WriteString(`,"`)
	s.out.WriteString(r.buf.String())
	s.out.WriteByte('"')
	r.buf.Reset()
	r.top().args++
}

// flushSegment writes the literal text of an attribute value seen before an
// embed
func (s *scanner) flushSegment(r *region) {
	if r.buf.Len() == 0 {
		return
	}
	if r.segments > 0 {
		s.out.WriteByte('+')
	}
	s.out.WriteByte('"')
	s.out.WriteString(r.buf.String())
	s.out.WriteByte('"')
	r.buf.Reset()
	r.segments++
}

func (s *scanner) finishAttrValue(r *region) {
	lit := r.buf.String()
	switch {
	case !r.valueEmbeds && numericLiteral.MatchString(lit):
		s.out.WriteString(lit)
		r.buf.Reset()
	case !r.valueEmbeds:
		s.out.WriteByte('"')
		s.out.WriteString(lit)
		s.out.WriteByte('"')
		r.buf.Reset()
	case lit != "":
		s.flushSegment(r)
	case r.segments == 0:
		// every embed was empty
		s.out.WriteString(`""`)
	}
}

func (s *scanner) openEmbed(r *region, inAttr bool) {
	invariant.Precondition(r.embed == nil, "embed already open")

	e := &embed{inAttr: inAttr, braces: 1, sepStart: s.out.Len()}
	if !inAttr {
		s.out.WriteByte(',')
	} else if r.segments > 0 {
		s.out.WriteByte('+')
	}
	e.start = s.out.Len()
	r.embed = e
	s.log.Debug("[BML] embed opened", "pos", s.pos+1, "attr", inAttr, "depth", s.regions.depth())
}

// closeEmbed ends the embed of the current region at its matching '}'.
// Embeds holding only whitespace are removed together with their separator.
func (s *scanner) closeEmbed() {
	r := s.regions.current()
	e := r.embed
	invariant.NotNil(e, "embed")

	code := s.out.Bytes()[e.start:]
	switch {
	case len(bytes.TrimSpace(code)) == 0:
		s.out.Truncate(e.sepStart)
	case e.inAttr:
		r.segments++
	default:
		r.top().args++
	}
	r.embed = nil
	s.log.Debug("[BML] embed closed", "pos", s.pos+1, "depth", s.regions.depth())
}

func quoteName(name string) string {
	return `"` + name + `"`
}
