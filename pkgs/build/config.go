package build

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aledsdavies/beast/pkgs/bml"
	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
)

// ConfigFile is the config name looked up in the project directory
const ConfigFile = "beast.yaml"

// DefaultDebounce is the quiet period before a watched change rebuilds
const DefaultDebounce = 100 * time.Millisecond

// Config is the content of beast.yaml
//
//	output: build/site/build.js
//	sources:
//	  - lib/*.js
//	  - blocks/**/*.bml
//	watch:
//	  debounce: 200ms
type Config struct {
	// Output is the bundle path, relative to Dir
	Output string `yaml:"output"`
	// Sources are globs, relative to Dir, concatenated in order
	Sources []string `yaml:"sources"`
	// Separator joins the files of the bundle
	Separator *string `yaml:"separator"`

	Callee          string `yaml:"callee"`
	ContextAttr     string `yaml:"contextAttr"`
	ContextExpr     string `yaml:"contextExpr"`
	ContextInEmbeds bool   `yaml:"contextInEmbeds"`

	Watch WatchConfig `yaml:"watch"`

	// Dir is the project directory, set from the config file location
	Dir string `yaml:"-"`
}

// WatchConfig tunes watch mode
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LoadConfig reads a config file. A directory is searched for ConfigFile.
func LoadConfig(path string) (*Config, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ConfigFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, beasterrors.NewInputError("cannot read build config", err).
			WithContext("file", path)
	}
	cfg, err := ParseConfig(data, filepath.Dir(path))
	if err != nil {
		if be, ok := err.(*beasterrors.BeastError); ok {
			return nil, be.WithContext("file", path)
		}
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes a config. Unknown keys are rejected.
func ParseConfig(data []byte, dir string) (*Config, error) {
	cfg := &Config{Dir: dir}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, beasterrors.NewInputError("cannot parse build config", err)
	}

	if cfg.Output == "" {
		return nil, beasterrors.New(beasterrors.ErrInputRead, "build config needs an output path")
	}
	if len(cfg.Sources) == 0 {
		return nil, beasterrors.New(beasterrors.ErrInputRead, "build config needs at least one source pattern")
	}
	if _, err := cfg.Patterns(); err != nil {
		return nil, beasterrors.NewInputError("invalid source pattern", err)
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = DefaultDebounce
	}
	return cfg, nil
}

// Patterns parses Sources
func (c *Config) Patterns() ([]Pattern, error) {
	out := make([]Pattern, 0, len(c.Sources))
	for _, s := range c.Sources {
		p, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// OutputPath is Output resolved against Dir
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Output) {
		return c.Output
	}
	return filepath.Join(c.Dir, c.Output)
}

// JoinWith returns the bundle separator, a newline unless configured
func (c *Config) JoinWith() string {
	if c.Separator == nil {
		return "\n"
	}
	return *c.Separator
}

// CompilerOptions are the markup compiler options the config selects
func (c *Config) CompilerOptions() bml.Options {
	return bml.Options{
		Callee:          c.Callee,
		ContextAttr:     c.ContextAttr,
		ContextExpr:     c.ContextExpr,
		ContextInEmbeds: c.ContextInEmbeds,
	}
}
