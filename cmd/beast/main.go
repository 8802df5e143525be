// Command beast compiles BML markup, bundles projects and inspects resolved
// declarations.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/beast/pkgs/bml"
	"github.com/aledsdavies/beast/pkgs/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries the global flags and streams shared by every command
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	debug       bool
	noColor     bool
	callee      string
	contextAttr string
	contextExpr string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		FormatError(stderr, err, ShouldUseColor(stderr, a.noColor))
	}
	return ExitCode(err)
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "beast [command]",
		Short:         "Compile BML markup and inspect component declarations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	// Add flags
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&a.callee, "callee", bml.DefaultCallee, "Constructor expression compiled markup calls")
	rootCmd.PersistentFlags().StringVar(&a.contextAttr, "context-attr", bml.DefaultContextAttr, "Attribute carrying the enclosing block")
	rootCmd.PersistentFlags().StringVar(&a.contextExpr, "context-expr", bml.DefaultContextExpr, "Host expression bound to the context attribute")

	rootCmd.AddCommand(
		a.compileCmd(),
		a.treeCmd(),
		a.buildCmd(),
		a.resolveCmd(),
		a.renderCmd(),
	)
	return rootCmd
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelInfo
	if a.debug || os.Getenv(logging.EnvDebug) != "" {
		level = slog.LevelDebug
	}
	return logging.NewWithWriter(a.stderr, level)
}

func (a *app) compilerOptions() bml.Options {
	return bml.Options{
		Callee:      a.callee,
		ContextAttr: a.contextAttr,
		ContextExpr: a.contextExpr,
		Logger:      a.logger(),
	}
}

// readInput handles the 3 modes of input:
// 1. Explicit stdin with "-"
// 2. Piped input (auto-detected when no file is named)
// 3. File input
func (a *app) readInput(args []string) (string, []byte, error) {
	file := "-"
	if len(args) > 0 {
		file = args[0]
	} else if !hasPipedInput(a.stdin) {
		return "", nil, usageError("no input: name a file or pipe markup on stdin")
	}

	if file == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return "", nil, inputError("cannot read stdin", "<stdin>", err)
		}
		return "<stdin>", data, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", nil, inputError(fmt.Sprintf("cannot read %s", file), file, err)
	}
	return file, data, nil
}

// hasPipedInput detects if there's data piped to stdin
func hasPipedInput(stdin io.Reader) bool {
	f, ok := stdin.(*os.File)
	if !ok {
		return stdin != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}

	// Check if stdin is not a character device (i.e., it's piped)
	// Note: We don't check Size() > 0 because pipes may not report size correctly
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// writeOutput writes data to the -o file, or stdout when none is given
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return inputError(fmt.Sprintf("cannot write %s", path), path, err)
	}
	return nil
}
