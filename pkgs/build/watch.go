package build

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
)

// Watch builds once, then rebuilds after every burst of source changes
// until ctx is done. report receives the outcome of every build; a failed
// build does not stop watching.
func (b *Builder) Watch(ctx context.Context, report func(*Result, error)) error {
	patterns, err := b.cfg.Patterns()
	if err != nil {
		return beasterrors.NewInputError("invalid source pattern", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return beasterrors.NewBuildError("cannot start watcher", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, p := range patterns {
		b.watchTree(watcher, filepath.Join(b.cfg.Dir, filepath.FromSlash(p.Base())))
	}
	b.logger.Info("[BUILD] watching", "dir", b.cfg.Dir, "sources", len(patterns))

	report(b.Build(ctx))

	timer := time.NewTimer(b.cfg.Watch.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					b.watchTree(watcher, ev.Name)
					timer.Reset(b.cfg.Watch.Debounce)
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if b.relevant(ev.Name, patterns) {
				b.logger.Debug("[BUILD] change", "file", ev.Name, "op", ev.Op.String())
				timer.Reset(b.cfg.Watch.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.logger.Warn("[BUILD] watch error", "error", err)

		case <-timer.C:
			report(b.Build(ctx))
		}
	}
}

// watchTree adds dir and every directory below it
func (b *Builder) watchTree(w *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.Add(p); err != nil {
			b.logger.Warn("[BUILD] cannot watch directory", "dir", p, "error", err)
		}
		return nil
	})
}

// relevant reports whether a changed file is a source of the bundle
func (b *Builder) relevant(name string, patterns []Pattern) bool {
	out := b.cfg.OutputPath()
	if name == out || strings.HasPrefix(filepath.Base(name), "."+filepath.Base(out)+".") {
		return false
	}
	rel, err := filepath.Rel(b.cfg.Dir, name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if p.Match(rel) {
			return true
		}
	}
	return false
}
