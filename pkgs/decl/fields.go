package decl

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	beasterrors "github.com/aledsdavies/beast/pkgs/errors"
)

// Fields is the content of one declaration. Values are normalized on
// registration to nil, string, bool, float64, Func, []string (for list-valued
// framework fields), []any and map[string]any.
type Fields map[string]any

// Framework field names
const (
	FieldInherits      = "inherits"
	FieldImplementWith = "implementWith"
	FieldExpand        = "expand"
	FieldMod           = "mod"
	FieldMix           = "mix"
	FieldParam         = "param"
	FieldDomInit       = "domInit"
	FieldDomAttr       = "domAttr"
	FieldOn            = "on"
	FieldOnWin         = "onWin"
	FieldOnMod         = "onMod"
	FieldOnAttach      = "onAttach"
	FieldOnRemove      = "onRemove"
	FieldTag           = "tag"
	FieldNoElems       = "noElems"
	FieldFinal         = "final"
	FieldAbstract      = "abstract"
	FieldFinalMod      = "finalMod"
)

// Preventable is the key under on/onWin that groups handlers allowed to
// cancel the event's default action
const Preventable = "preventable"

type reservation int

const (
	inherited reservation = iota + 1
	notInherited
)

var reserved = map[string]reservation{
	FieldInherits:      inherited,
	FieldImplementWith: inherited,
	FieldExpand:        inherited,
	FieldMod:           inherited,
	FieldMix:           inherited,
	FieldParam:         inherited,
	FieldDomInit:       inherited,
	FieldDomAttr:       inherited,
	FieldOn:            inherited,
	FieldOnWin:         inherited,
	FieldOnMod:         inherited,
	FieldOnAttach:      inherited,
	FieldOnRemove:      inherited,
	FieldTag:           inherited,
	FieldNoElems:       inherited,
	FieldFinal:         inherited,
	FieldAbstract:      notInherited,
	FieldFinalMod:      notInherited,
}

// foldedReserved maps case-folded reserved names to their exact spelling
var foldedReserved = func() map[string]string {
	m := make(map[string]string, len(reserved))
	for name := range reserved {
		m[strings.ToLower(name)] = name
	}
	return m
}()

// IsReserved reports whether name is a framework field
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// Inheritable reports whether a field is passed from ancestors to
// descendants. User fields are always inheritable.
func Inheritable(name string) bool {
	return reserved[name] != notInherited
}

// ReservedNames returns the framework field names in sorted order
func ReservedNames() []string {
	names := make([]string, 0, len(reserved))
	for name := range reserved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var funcType = reflect.TypeOf(Func(nil))

// normalizeFields validates and normalizes a declaration's fields
func normalizeFields(selector string, fields Fields) (Fields, error) {
	out := make(Fields, len(fields))
	for key, value := range fields {
		if strings.HasPrefix(key, "_") {
			return nil, beasterrors.NewReservedFieldError(selector, key)
		}
		if exact, ok := foldedReserved[strings.ToLower(key)]; ok && exact != key {
			return nil, beasterrors.NewReservedFieldError(selector, key).
				WithContext("suggestion", exact)
		}

		var (
			norm any
			err  error
		)
		if IsReserved(key) {
			norm, err = normalizeReserved(selector, key, value)
		} else {
			norm, err = normalizeValue(value)
			if err != nil {
				err = beasterrors.NewInvalidFieldError(selector, key, "a plain value or a function", value)
			}
		}
		if err != nil {
			return nil, err
		}
		out[key] = norm
	}
	return out, nil
}

func normalizeReserved(selector, key string, value any) (any, error) {
	invalid := func(want string) error {
		return beasterrors.NewInvalidFieldError(selector, key, want, value)
	}

	switch key {
	case FieldInherits, FieldMix:
		list, ok := stringList(value)
		if !ok {
			return nil, invalid("a selector or a list of selectors")
		}
		for i := range list {
			list[i] = strings.ToLower(list[i])
		}
		return list, nil

	case FieldFinal:
		list, ok := stringList(value)
		if !ok {
			return nil, invalid("a field name or a list of field names")
		}
		return list, nil

	case FieldTag:
		s, ok := value.(string)
		if !ok {
			return nil, invalid("a string")
		}
		return s, nil

	case FieldImplementWith:
		s, ok := value.(string)
		if !ok {
			return nil, invalid("a selector")
		}
		return strings.ToLower(s), nil

	case FieldNoElems, FieldAbstract, FieldFinalMod:
		b, ok := value.(bool)
		if !ok {
			return nil, invalid("a boolean")
		}
		return b, nil

	case FieldExpand, FieldDomInit, FieldOnAttach, FieldOnRemove:
		fn, ok := toFunc(value)
		if !ok {
			return nil, invalid("a function")
		}
		return fn, nil

	case FieldMod, FieldParam:
		m, ok := stringKeyed(value)
		if !ok {
			return nil, invalid("a mapping")
		}
		out := make(map[string]any, len(m))
		for name, v := range m {
			norm, err := normalizeValue(v)
			if err != nil {
				return nil, invalid("a mapping of plain values")
			}
			if _, isFunc := norm.(Func); isFunc && key == FieldMod {
				return nil, invalid("a mapping of modifier defaults")
			}
			out[strings.ToLower(name)] = norm
		}
		return out, nil

	case FieldDomAttr:
		m, ok := stringKeyed(value)
		if !ok {
			return nil, invalid("a mapping")
		}
		out := make(map[string]any, len(m))
		for name, v := range m {
			norm, err := normalizeValue(v)
			if err != nil {
				return nil, invalid("a mapping of attribute values")
			}
			out[name] = norm
		}
		return out, nil

	case FieldOn, FieldOnWin:
		return normalizeHandlers(value, true, invalid)

	case FieldOnMod:
		m, ok := stringKeyed(value)
		if !ok {
			return nil, invalid("a mapping of modifier names to value handlers")
		}
		out := make(map[string]any, len(m))
		for name, byValue := range m {
			handlers, err := normalizeHandlers(byValue, false, invalid)
			if err != nil {
				return nil, err
			}
			out[strings.ToLower(name)] = handlers
		}
		return out, nil
	}

	panic(fmt.Sprintf("unhandled reserved field %q", key))
}

// normalizeHandlers checks a mapping of names to functions, optionally with a
// nested "preventable" group
func normalizeHandlers(value any, allowPreventable bool, invalid func(string) error) (map[string]any, error) {
	m, ok := stringKeyed(value)
	if !ok {
		return nil, invalid("a mapping of handlers")
	}
	out := make(map[string]any, len(m))
	for name, v := range m {
		if allowPreventable && name == Preventable {
			group, err := normalizeHandlers(v, false, invalid)
			if err != nil {
				return nil, err
			}
			out[name] = group
			continue
		}
		fn, ok := toFunc(v)
		if !ok {
			return nil, invalid("a mapping of handlers")
		}
		out[name] = fn
	}
	return out, nil
}

func toFunc(value any) (Func, bool) {
	switch fn := value.(type) {
	case Func:
		return fn, fn != nil
	case func(*Call, ...any) (any, error):
		return Func(fn), fn != nil
	}
	return nil, false
}

func stringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case string:
		return []string{v}, true
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// stringKeyed views any string-keyed map as map[string]any
func stringKeyed(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, true
	case Fields:
		return m, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// normalizeValue converts a user value to the normalized representation
func normalizeValue(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if fn, ok := toFunc(value); ok {
		return fn, nil
	}

	switch v := value.(type) {
	case string, bool, float64:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Func:
		if rv.Type().ConvertibleTo(funcType) && !rv.IsNil() {
			return rv.Convert(funcType).Interface().(Func), nil
		}
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		m, ok := stringKeyed(value)
		if !ok {
			break
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			norm, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = norm
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", value)
}

// Clone deep-copies a normalized value. Functions are shared.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	}
	return value
}

// CloneFields deep-copies a field set
func CloneFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = Clone(v)
	}
	return out
}

// MergeOver returns base with over applied on top: new values win, and
// nested mappings are merged the same way
func MergeOver(base, over any) any {
	bm, bok := base.(map[string]any)
	om, ook := over.(map[string]any)
	if !bok || !ook {
		return Clone(over)
	}
	out := Clone(bm).(map[string]any)
	for k, v := range om {
		out[k] = MergeOver(out[k], v)
	}
	return out
}

// FillGaps returns dst with every key missing from it copied from src.
// Nested mappings are filled recursively; any other value in dst is kept.
func FillGaps(dst, src any) any {
	if dst == nil {
		return Clone(src)
	}
	dm, dok := dst.(map[string]any)
	sm, sok := src.(map[string]any)
	if !dok || !sok {
		return dst
	}
	for k, v := range sm {
		dm[k] = FillGaps(dm[k], v)
	}
	return dm
}

// Equal compares normalized values. Functions are equal when they are the
// same function.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case Func:
		bv, ok := b.(Func)
		return ok && reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, item := range av {
			other, ok := bv[k]
			if !ok || !Equal(item, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// FuncPaths lists the dotted paths of every function inside value, sorted
func FuncPaths(prefix string, value any) []string {
	var paths []string
	switch v := value.(type) {
	case Func:
		paths = append(paths, prefix)
	case map[string]any:
		for k, item := range v {
			paths = append(paths, FuncPaths(prefix+"."+k, item)...)
		}
	}
	sort.Strings(paths)
	return paths
}

// Lookup returns the value at a dotted path
func Lookup(fields Fields, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(fields)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
