package build

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Pattern is one source glob. Segments follow path.Match; a "**" segment
// matches any number of directories.
type Pattern struct {
	raw      string
	segments []string
}

// ParsePattern splits a slash separated glob. Patterns are relative and may
// not leave their root.
func ParsePattern(glob string) (Pattern, error) {
	glob = path.Clean(filepath.ToSlash(glob))
	if path.IsAbs(glob) {
		return Pattern{}, fmt.Errorf("source pattern %q must be relative", glob)
	}
	segments := strings.Split(glob, "/")
	for _, seg := range segments {
		switch seg {
		case "**":
			continue
		case "..":
			return Pattern{}, fmt.Errorf("source pattern %q leaves the project directory", glob)
		}
		if _, err := path.Match(seg, ""); err != nil {
			return Pattern{}, err
		}
	}
	return Pattern{raw: glob, segments: segments}, nil
}

func (p Pattern) String() string { return p.raw }

// Base is the longest leading directory without glob characters
func (p Pattern) Base() string {
	var static []string
	for _, seg := range p.segments[:len(p.segments)-1] {
		if hasMeta(seg) {
			break
		}
		static = append(static, seg)
	}
	if len(static) == 0 {
		return "."
	}
	return path.Join(static...)
}

// Match reports whether a slash separated path matches the pattern
func (p Pattern) Match(name string) bool {
	return matchSegments(p.segments, strings.Split(path.Clean(name), "/"))
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], name[0]); !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}

func hasMeta(seg string) bool {
	return seg == "**" || strings.ContainsAny(seg, `*?[\`)
}

// Expand resolves patterns against fsys. Files are returned in pattern
// order, sorted within one pattern; a file matched by several patterns is
// listed at its first match.
func Expand(fsys fs.FS, patterns []Pattern) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		var matched []string
		base := p.Base()
		if _, err := fs.Stat(fsys, base); err != nil {
			continue
		}
		err := fs.WalkDir(fsys, base, func(name string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && p.Match(name) {
				matched = append(matched, name)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(matched)
		for _, name := range matched {
			if !seen[name] {
				seen[name] = true
				files = append(files, name)
			}
		}
	}
	return files, nil
}
