// Package build bundles a project: source files are collected from ordered
// globs, markup files are compiled and every file is concatenated into one
// output. Watch mode rebuilds when a source changes.
package build

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aledsdavies/beast/pkgs/bml"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
	"github.com/aledsdavies/beast/pkgs/logging"
)

// EnvDebug enables build debug logging
const EnvDebug = "BEAST_DEBUG_BUILD"

// MarkupExt is the extension of files run through the markup compiler
const MarkupExt = ".bml"

// Builder produces the bundle described by a Config
type Builder struct {
	cfg      *Config
	compiler *bml.Compiler
	logger   *slog.Logger
}

// Option configures a Builder
type Option func(*Builder)

// WithLogger sets the build logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates a builder for cfg
func New(cfg *Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		logger: logging.New(EnvDebug),
	}
	for _, opt := range opts {
		opt(b)
	}
	copts := cfg.CompilerOptions()
	copts.Logger = b.logger
	b.compiler = bml.New(copts)
	return b
}

// Result describes one bundle
type Result struct {
	Output   string
	Files    []string
	Compiled int
	Bytes    int
}

// Bundle builds the bundle in memory. Files are relative to the config
// directory, in bundle order.
func (b *Builder) Bundle(ctx context.Context) ([]byte, *Result, error) {
	patterns, err := b.cfg.Patterns()
	if err != nil {
		return nil, nil, beasterrors.NewInputError("invalid source pattern", err)
	}
	files, err := Expand(os.DirFS(b.cfg.Dir), patterns)
	if err != nil {
		return nil, nil, beasterrors.NewBuildError("cannot list sources", err)
	}

	res := &Result{Output: b.cfg.OutputPath()}
	if rel, err := filepath.Rel(b.cfg.Dir, res.Output); err == nil {
		files = without(files, filepath.ToSlash(rel))
	}
	res.Files = files
	var buf bytes.Buffer
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if i > 0 {
			buf.WriteString(b.cfg.JoinWith())
		}

		src, err := os.ReadFile(filepath.Join(b.cfg.Dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, nil, beasterrors.NewInputError("cannot read source", err).
				WithContext("file", name)
		}
		if path.Ext(name) != MarkupExt {
			buf.Write(src)
			continue
		}

		out, err := b.compiler.Compile(string(src))
		if err != nil {
			return nil, nil, beasterrors.NewBuildError("cannot compile "+name, err).
				WithContext("file", name)
		}
		buf.WriteString(out)
		res.Compiled++
		b.logger.Debug("[BUILD] compiled", "file", name, "bytes", len(out))
	}
	res.Bytes = buf.Len()
	return buf.Bytes(), res, nil
}

// Build writes the bundle to the output path. The file is replaced
// atomically, so a failed build leaves the previous bundle in place.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	data, res, err := b.Bundle(ctx)
	if err != nil {
		return nil, err
	}

	out := res.Output
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, beasterrors.NewBuildError("cannot create output directory", err).
			WithContext("file", out)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*")
	if err != nil {
		return nil, beasterrors.NewBuildError("cannot write output", err).WithContext("file", out)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return nil, beasterrors.NewBuildError("cannot write output", err).WithContext("file", out)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, beasterrors.NewBuildError("cannot write output", err).WithContext("file", out)
	}
	if err := tmp.Close(); err != nil {
		return nil, beasterrors.NewBuildError("cannot write output", err).WithContext("file", out)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return nil, beasterrors.NewBuildError("cannot write output", err).WithContext("file", out)
	}

	b.logger.Info("[BUILD] wrote bundle", "output", out, "files", len(res.Files),
		"compiled", res.Compiled, "bytes", res.Bytes)
	return res, nil
}

func without(files []string, name string) []string {
	for i, f := range files {
		if f == name {
			return append(files[:i:i], files[i+1:]...)
		}
	}
	return files
}
