package bml

import (
	"fmt"
	"strings"

	"github.com/aledsdavies/beast/internal/invariant"
)

// MarkupState is the lexical region the scanner is in while inside markup
type MarkupState int

const (
	// StateTagStart is right after '<', expecting the first letter of a tag name
	StateTagStart MarkupState = iota

	// StateTagName is inside an opening tag name
	StateTagName

	// StateInTag is inside an opening tag, between attributes
	StateInTag

	// StateAttrName is inside an attribute name
	StateAttrName

	// StateAttrEquals is after '=', expecting the opening quote
	StateAttrEquals

	// StateAttrValue is inside a quoted attribute value
	StateAttrValue

	// StateAfterValue is right after the closing quote of an attribute value
	StateAfterValue

	// StateSelfClose is after '/' in an opening tag, expecting '>'
	StateSelfClose

	// StateText is text content between tags
	StateText

	// StateClosingSlash is after '<' of a closing tag, expecting '/'
	StateClosingSlash

	// StateClosingName is inside a closing tag name
	StateClosingName

	// StateClosingEnd is after a closing tag name, expecting '>'
	StateClosingEnd
)

// String returns a human-readable state name
func (s MarkupState) String() string {
	names := []string{
		"TagStart",
		"TagName",
		"InTag",
		"AttrName",
		"AttrEquals",
		"AttrValue",
		"AfterValue",
		"SelfClose",
		"Text",
		"ClosingSlash",
		"ClosingName",
		"ClosingEnd",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("Unknown(%d)", s)
}

// call is one open constructor call in the output
type call struct {
	name  string
	args  int // positional arguments written so far
	attrs int // attributes written; a '}' is pending while non-zero
}

// embed is an open brace-delimited host-code region inside markup
type embed struct {
	inAttr   bool
	braces   int
	sepStart int // output length before the separator was written
	start    int // output length after the separator
}

// region is one markup region: everything between the '<' that switched the
// scanner out of host code and the tag that brings the open-call count back
// to zero. Regions nested inside embeds are pushed on top of their parent, so
// the stack depth is the embed nesting depth plus one.
type region struct {
	nested bool // opened from host code inside an embed
	state  MarkupState
	calls  []call
	embed  *embed

	buf         strings.Builder // token being accumulated
	quote       rune            // quote character of the current attribute value
	segments    int             // attribute value segments written so far
	valueEmbeds bool            // current attribute value contained an embed

	inComment     bool
	commentSkip   int // runes of the "<!--" opener still to skip
	commentDashes int // consecutive '-' seen inside a comment
}

// top returns the innermost open call
func (r *region) top() *call {
	invariant.Precondition(len(r.calls) > 0, "region has no open call")
	return &r.calls[len(r.calls)-1]
}

// regionStack holds the saved markup contexts. Embeds can recurse to
// arbitrary depth, so this is an explicit stack rather than recursion.
type regionStack struct {
	regions []*region
}

func (rs *regionStack) push(r *region) {
	invariant.NotNil(r, "region")
	rs.regions = append(rs.regions, r)
}

func (rs *regionStack) pop() *region {
	invariant.Precondition(len(rs.regions) > 0, "region stack underflow")
	r := rs.regions[len(rs.regions)-1]
	rs.regions = rs.regions[:len(rs.regions)-1]
	return r
}

// current returns the innermost region, or nil in top-level host code
func (rs *regionStack) current() *region {
	if len(rs.regions) == 0 {
		return nil
	}
	return rs.regions[len(rs.regions)-1]
}

func (rs *regionStack) depth() int {
	return len(rs.regions)
}

// inMarkup reports whether the scanner is reading markup, as opposed to
// host code (top level or inside an embed)
func (rs *regionStack) inMarkup() bool {
	r := rs.current()
	return r != nil && r.embed == nil
}

// inEmbed reports whether the scanner is reading host code inside an embed
func (rs *regionStack) inEmbed() bool {
	r := rs.current()
	return r != nil && r.embed != nil
}

// hostState tracks the lexical regions of host code in which a '<' must not
// switch to markup
type hostState struct {
	singleQuote  bool
	doubleQuote  bool
	backtick     bool
	lineComment  bool
	blockComment bool
	blockStart   int // position of the '*' that opened the block comment
}

func (h *hostState) inString() bool {
	return h.singleQuote || h.doubleQuote || h.backtick
}

func (h *hostState) inComment() bool {
	return h.lineComment || h.blockComment
}
