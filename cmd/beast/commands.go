package main

import (
	"bytes"
	"context"
	"fmt"
	"html"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/beast/pkgs/bml"
	"github.com/aledsdavies/beast/pkgs/build"
	"github.com/aledsdavies/beast/pkgs/calltree"
	"github.com/aledsdavies/beast/pkgs/component"
	"github.com/aledsdavies/beast/pkgs/decl"
	"github.com/aledsdavies/beast/pkgs/declfile"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/manifest"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

func (a *app) compileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile [file|-]",
		Short: "Compile markup embedded in a source file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.compile(args)
			if err != nil {
				return err
			}
			return a.writeOutput(output, []byte(out))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func (a *app) compile(args []string) (string, error) {
	name, src, err := a.readInput(args)
	if err != nil {
		return "", err
	}
	out, err := bml.New(a.compilerOptions()).Compile(string(src))
	if err != nil {
		return "", beasterrors.Wrap(beasterrors.ErrSyntax, "cannot compile "+name, err).
			WithContext("file", name)
	}
	return out, nil
}

func (a *app) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [file|-]",
		Short: "Compile markup and print the constructor call tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.compile(args)
			if err != nil {
				return err
			}
			values, err := calltree.Parse(out, a.callee)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(a.stdout, calltree.Print(values))
			return err
		},
	}
}

func (a *app) buildCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "build [dir|config]",
		Short: "Bundle a project described by " + build.ConfigFile,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := build.LoadConfig(path)
			if err != nil {
				return err
			}
			// flags given on the command line win over the config
			if cmd.Flags().Changed("callee") {
				cfg.Callee = a.callee
			}
			if cmd.Flags().Changed("context-attr") {
				cfg.ContextAttr = a.contextAttr
			}
			if cmd.Flags().Changed("context-expr") {
				cfg.ContextExpr = a.contextExpr
			}
			b := build.New(cfg, build.WithLogger(a.logger()))

			if !watch {
				_, err := b.Build(cmd.Context())
				return err
			}
			useColor := ShouldUseColor(a.stderr, a.noColor)
			return b.Watch(cmd.Context(), func(res *build.Result, err error) {
				if err != nil {
					FormatError(a.stderr, err, useColor)
					return
				}
				_, _ = fmt.Fprintf(a.stderr, "%s %s (%d files, %d bytes)\n",
					Colorize("built", ColorGreen, useColor), res.Output, len(res.Files), res.Bytes)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rebuild when a source changes")
	return cmd
}

func (a *app) resolveCmd() *cobra.Command {
	var (
		format string
		output string
		digest bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <declfile>...",
		Short: "Resolve declaration files and print the manifest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadDeclarations(args)
			if err != nil {
				return err
			}
			table, err := resolve.Compile(reg, resolve.WithLogger(a.logger()))
			if err != nil {
				return err
			}
			m := manifest.FromTable(table)

			if digest {
				sum, err := m.DigestHex()
				if err != nil {
					return err
				}
				return a.writeOutput(output, []byte(sum+"\n"))
			}

			var data []byte
			switch format {
			case "tree":
				data = []byte(m.Tree())
			case "json":
				data, err = m.JSON()
				data = append(data, '\n')
			case "cbor":
				data, err = m.MarshalBinary()
			default:
				return usageError("unknown format '%s', use tree, json or cbor", format)
			}
			if err != nil {
				return err
			}
			return a.writeOutput(output, data)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "tree", "Output format: tree, json or cbor")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&digest, "digest", false, "Print the manifest digest only")
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	var decls []string
	cmd := &cobra.Command{
		Use:   "render [file|-]",
		Short: "Render markup to static HTML using declaration files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadDeclarations(decls)
			if err != nil {
				return err
			}
			out, err := a.compile(args)
			if err != nil {
				return err
			}
			values, err := calltree.Parse(out, a.callee)
			if err != nil {
				return err
			}

			rt := component.NewRuntime(reg,
				component.WithLogger(a.logger()),
				component.WithCallee(a.callee),
				component.WithContext(a.contextAttr, a.contextExpr))
			built, err := rt.BuildAll(values, nil, nil)
			if err != nil {
				return err
			}
			return a.render(cmd.Context(), built)
		},
	}
	cmd.Flags().StringArrayVarP(&decls, "decl", "d", nil, "Declaration file (repeatable)")
	return cmd
}

func (a *app) render(ctx context.Context, values []any) error {
	var buf bytes.Buffer
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch t := v.(type) {
		case *component.Node:
			if err := t.RenderHTML(&buf); err != nil {
				return err
			}
		case nil:
			continue
		default:
			buf.WriteString(html.EscapeString(fmt.Sprint(t)))
		}
		buf.WriteByte('\n')
	}
	_, err := a.stdout.Write(buf.Bytes())
	return err
}

// loadDeclarations registers every file in order. Handler names have no Go
// function behind them here, so each one stands in as a pass-through to the
// implementation it overrides.
func (a *app) loadDeclarations(files []string) (*decl.Registry, error) {
	logger := a.logger()
	loader, err := declfile.New(
		declfile.WithLogger(logger),
		declfile.WithFallback(func(name string) decl.Func {
			logger.Debug("[DECL] stub handler", "handler", name)
			return passThrough
		}),
	)
	if err != nil {
		return nil, err
	}

	reg := decl.NewRegistry(decl.WithLogger(logger))
	for _, f := range files {
		if err := loader.LoadFile(reg, f); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func passThrough(c *decl.Call, args ...any) (any, error) {
	return c.Inherited(args...)
}
