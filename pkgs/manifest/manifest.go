// Package manifest is the data-only snapshot of a resolved declaration table.
//
// A Manifest carries everything the resolver decided except the functions
// themselves: functions are represented by the owners of their override
// chains. The binary form is canonical CBOR, so two tables resolved from the
// same declarations encode to the same bytes and share a digest.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/aledsdavies/beast/pkgs/decl"
	"github.com/aledsdavies/beast/pkgs/resolve"
)

// Version is the manifest format version
const Version uint8 = 1

// Manifest is a snapshot of a resolved table, entries sorted by selector
type Manifest struct {
	Version     uint8        `json:"version"`
	Entries     []Entry      `json:"entries"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Entry is the data of one resolved selector
type Entry struct {
	Selector    string `json:"selector"`
	IsBlock     bool   `json:"isBlock"`
	Abstract    bool   `json:"abstract,omitempty"`
	FinalMod    bool   `json:"finalMod,omitempty"`
	Synthesized bool   `json:"synthesized,omitempty"`

	Inherits   []string `json:"inherits,omitempty"`
	Flattened  []string `json:"flattened,omitempty"`
	Precedence []string `json:"precedence"`

	Tag           string         `json:"tag,omitempty"`
	ImplementWith string         `json:"implementWith,omitempty"`
	Mix           []string       `json:"mix,omitempty"`
	DomAttrs      map[string]any `json:"domAttr,omitempty"`
	Mods          map[string]any `json:"mod,omitempty"`
	Params        map[string]any `json:"param,omitempty"`

	// Chains maps a dotted function path to the selectors owning its
	// implementations, most specific first
	Chains      map[string][]string `json:"chains,omitempty"`
	Setup       []string            `json:"setup,omitempty"`
	UserMethods []string            `json:"methods,omitempty"`
	// LockedMods maps a finalMod-locked modifier to the selectors that emit
	// its classes
	LockedMods map[string][]string `json:"lockedMods,omitempty"`
}

// Diagnostic is a resolver warning
type Diagnostic struct {
	Selector   string `json:"selector"`
	Ancestor   string `json:"ancestor,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// FromTable builds the manifest of t
func FromTable(t *resolve.Table) *Manifest {
	m := &Manifest{Version: Version}

	selectors := t.Selectors()
	sort.Strings(selectors)
	for _, sel := range selectors {
		e, _ := t.Get(sel)
		m.Entries = append(m.Entries, entryOf(e))
	}
	for _, d := range t.Diagnostics {
		m.Diagnostics = append(m.Diagnostics, Diagnostic{
			Selector:   d.Selector,
			Ancestor:   d.Ancestor,
			Message:    d.Message,
			Suggestion: d.Suggestion,
		})
	}
	return m
}

func entryOf(e *resolve.Entry) Entry {
	out := Entry{
		Selector:    e.Selector,
		IsBlock:     e.IsBlock,
		Abstract:    e.Abstract,
		FinalMod:    e.FinalModFlag,
		Synthesized: e.Synthesized,
		Inherits:    e.Inherits,
		Flattened:   e.Flattened,
		Precedence:  e.Precedence,
		Mix:         decl.StringList(e.Fields, decl.FieldMix),
		Mods:        dataMap(e.Mods),
		Params:      dataMap(e.Params),
		UserMethods: e.UserMethods,
	}
	out.Tag, _ = e.Fields[decl.FieldTag].(string)
	out.ImplementWith, _ = e.Fields[decl.FieldImplementWith].(string)
	if attrs, ok := e.Fields[decl.FieldDomAttr].(map[string]any); ok {
		out.DomAttrs = dataMap(attrs)
	}

	if len(e.Chains) > 0 {
		out.Chains = make(map[string][]string, len(e.Chains))
		for path, chain := range e.Chains {
			owners := make([]string, len(chain))
			for i, impl := range chain {
				owners[i] = impl.Owner
			}
			out.Chains[path] = owners
		}
	}
	for _, a := range e.Setup {
		out.Setup = append(out.Setup, a.Kind.String())
	}

	for _, mod := range e.FinalMod.LockedMods() {
		if out.LockedMods == nil {
			out.LockedMods = make(map[string][]string)
		}
		var sels []string
		for sel := range e.FinalMod.Mods[mod] {
			sels = append(sels, sel)
		}
		sort.Strings(sels)
		out.LockedMods[mod] = sels
	}
	return out
}

// dataMap copies a normalized map, leaving functions out
func dataMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if d, ok := plain(v); ok {
			out[k] = d
		}
	}
	return out
}

func plain(v any) (any, bool) {
	switch t := v.(type) {
	case decl.Func:
		return nil, false
	case map[string]any:
		return dataMap(t), true
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if d, ok := plain(item); ok {
				out = append(out, d)
			}
		}
		return out, true
	}
	return v, true
}

// Entry returns the entry for selector
func (m *Manifest) Entry(selector string) (Entry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Selector >= selector })
	if i < len(m.Entries) && m.Entries[i].Selector == selector {
		return m.Entries[i], true
	}
	return Entry{}, false
}

// MarshalBinary produces the canonical CBOR encoding
func (m *Manifest) MarshalBinary() ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	// Alias type so the encoder does not call MarshalBinary again
	type manifestAlias Manifest
	data, err := encMode.Marshal((*manifestAlias)(m))
	if err != nil {
		return nil, fmt.Errorf("CBOR encoding failed: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes a manifest produced by MarshalBinary
func (m *Manifest) UnmarshalBinary(b []byte) error {
	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	type manifestAlias Manifest
	if err := decMode.Unmarshal(b, (*manifestAlias)(m)); err != nil {
		return fmt.Errorf("CBOR decoding failed: %w", err)
	}
	if m.Version != Version {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return nil
}

// Digest is the BLAKE2b-256 hash of the canonical encoding
func (m *Manifest) Digest() ([32]byte, error) {
	data, err := m.MarshalBinary()
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(data), nil
}

// DigestHex returns Digest as lower case hex
func (m *Manifest) DigestHex() (string, error) {
	sum, err := m.Digest()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}

// JSON returns the indented JSON form
func (m *Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
