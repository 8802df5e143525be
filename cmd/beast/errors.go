package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aledsdavies/beast/pkgs/bml"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitInvalidArguments = 1
	ExitIOError          = 2
	ExitParseError       = 3
	ExitGenerationError  = 4
)

// CLIError represents a formatted CLI error with context
type CLIError struct {
	Type    string // "usage", "input", "syntax", "resolve", "build"
	Message string
	Details string // Additional context
	Hint    string // How to fix it
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString("\n")
		b.WriteString(e.Details)
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

func (e *CLIError) Unwrap() error { return e.Cause }

func usageError(format string, args ...any) *CLIError {
	return &CLIError{Type: "usage", Message: fmt.Sprintf(format, args...), Hint: "Run 'beast --help' for usage."}
}

// ExitCode maps an error to the process exit status
func ExitCode(err error) int {
	var ce *CLIError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ce) && ce.Type == "usage":
		return ExitInvalidArguments
	case beasterrors.IsErrorType(err, beasterrors.ErrInputRead):
		return ExitIOError
	case beasterrors.IsErrorType(err, beasterrors.ErrSyntax),
		beasterrors.IsErrorType(err, beasterrors.ErrSchemaValidation),
		beasterrors.IsErrorType(err, beasterrors.ErrInvalidSelector),
		beasterrors.IsErrorType(err, beasterrors.ErrReservedField),
		beasterrors.IsErrorType(err, beasterrors.ErrInvalidField),
		beasterrors.IsErrorType(err, beasterrors.ErrFinalField),
		beasterrors.IsErrorType(err, beasterrors.ErrHandlerNotFound):
		return ExitParseError
	case errors.As(err, new(*beasterrors.BeastError)):
		return ExitGenerationError
	default:
		// cobra reports unknown commands and bad arguments as plain errors
		return ExitInvalidArguments
	}
}

func inputError(msg, file string, cause error) *beasterrors.BeastError {
	return beasterrors.NewInputError(msg, cause).WithContext("file", file)
}

// FormatError formats an error for CLI output with colors
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}

	var syntaxErr *bml.SyntaxError
	var beastErr *beasterrors.BeastError
	var cliErr *CLIError
	switch {
	case errors.As(err, &cliErr):
		formatCLIError(w, cliErr, useColor)
	case errors.As(err, &syntaxErr):
		formatSyntaxError(w, err, syntaxErr, useColor)
	case errors.As(err, &beastErr):
		formatBeastError(w, beastErr, useColor)
	default:
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Error())
	}
}

func formatCLIError(w io.Writer, err *CLIError, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Message)

	if err.Details != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", err.Details)
	}

	if err.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Hint: ", ColorYellow, useColor), err.Hint)
	}
}

// formatSyntaxError prints the outer message (which names the file) and the
// compiler's location windows
func formatSyntaxError(w io.Writer, err error, se *bml.SyntaxError, useColor bool) {
	msg := se.Message
	if be := (*beasterrors.BeastError)(nil); errors.As(err, &be) && be.Cause != nil {
		msg = be.Message + ": " + msg
	}
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), msg)
	_, _ = fmt.Fprintf(w, "%s\n", Colorize(fmt.Sprintf("  at line %d, column %d", se.Line, se.Column), ColorGray, useColor))
	if se.SourceWindow != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", se.SourceWindow)
		if se.Column > 0 {
			_, _ = fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", se.Column-1), Colorize("^", ColorRed, useColor))
		}
	}
}

func formatBeastError(w io.Writer, err *beasterrors.BeastError, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Error())

	keys := make([]string, 0, len(err.Context))
	for k := range err.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s\n", Colorize(fmt.Sprintf("  %s: %v", k, err.Context[k]), ColorGray, useColor))
	}
	if s, ok := err.Context["suggestion"]; ok {
		_, _ = fmt.Fprintf(w, "%sdid you mean '%v'?\n", Colorize("Hint: ", ColorYellow, useColor), s)
	}
}
