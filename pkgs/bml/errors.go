package bml

import (
	"fmt"
	"strings"

	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
)

const (
	sourceWindowLines = 5
	outputWindowBytes = 100
)

// SyntaxError is a malformed-markup failure. It carries enough context to
// point at the offending character without re-reading the input.
type SyntaxError struct {
	Message string
	Char    rune // offending character, 0 at end of input
	Pos     int  // 1-based rune position in the source
	Line    int
	Column  int

	// SourceWindow is up to the last few source lines ending at the failure
	SourceWindow string
	// OutputWindow is the tail of the output emitted before the failure
	OutputWindow string
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	b.WriteString("BML syntax error: ")
	if e.Char == 0 {
		b.WriteString("unexpected end of input")
	} else {
		fmt.Fprintf(&b, "unexpected token %q", e.Char)
	}
	fmt.Fprintf(&b, " at position %d (line %d, column %d)", e.Pos, e.Line, e.Column)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.SourceWindow != "" {
		b.WriteString("\nsource:\n")
		b.WriteString(e.SourceWindow)
		if e.Column > 0 {
			b.WriteString("\n")
			b.WriteString(strings.Repeat(" ", e.Column-1))
			b.WriteString("^")
		}
	}
	if e.OutputWindow != "" {
		b.WriteString("\noutput:\n")
		b.WriteString(e.OutputWindow)
	}
	return b.String()
}

// Unwrap exposes the error as a SYNTAX_ERROR BeastError so callers can use
// errors.IsErrorType without knowing about this package.
func (e *SyntaxError) Unwrap() error {
	return beasterrors.New(beasterrors.ErrSyntax, e.Message).
		WithContext("pos", e.Pos).
		WithContext("line", e.Line).
		WithContext("column", e.Column)
}

// newSyntaxError builds an error for the scanner's current position
func (s *scanner) newSyntaxError(msg string) *SyntaxError {
	atEOF := s.pos >= len(s.src)
	err := &SyntaxError{
		Message:      msg,
		Pos:          s.pos + 1,
		Line:         s.line,
		Column:       s.column,
		SourceWindow: s.sourceWindow(),
		OutputWindow: s.outputWindow(),
	}
	if !atEOF {
		err.Char = s.ch
	}
	return err
}

// sourceWindow returns the last lines of source read so far, including the
// failing character
func (s *scanner) sourceWindow() string {
	end := s.pos + 1
	if end > len(s.src) {
		end = len(s.src)
	}
	read := string(s.src[:end])
	lines := strings.Split(read, "\n")
	if len(lines) > sourceWindowLines {
		lines = lines[len(lines)-sourceWindowLines:]
	}
	return strings.Join(lines, "\n")
}

func (s *scanner) outputWindow() string {
	out := s.out.String()
	if len(out) > outputWindowBytes {
		out = out[len(out)-outputWindowBytes:]
	}
	return out
}
