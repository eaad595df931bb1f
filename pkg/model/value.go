package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Value wraps a decoded JSON value whose shape is not guaranteed by the upstream service.
// Every accessor is total: a missing key or a wrong type yields the zero Value or false,
// never a panic.
type Value struct {
	raw any
}

// Of wraps an already-decoded value (map[string]any, []any, string, float64, bool, nil ...).
func Of(raw any) Value {
	if v, ok := raw.(Value); ok {
		return v
	}
	return Value{raw: raw}
}

// Raw returns the wrapped value.
func (v Value) Raw() any { return v.raw }

// IsNull reports whether the value is absent or JSON null.
func (v Value) IsNull() bool { return v.raw == nil }

// Map returns the value as an object.
func (v Value) Map() (map[string]any, bool) {
	m, ok := v.raw.(map[string]any)
	return m, ok
}

// IsMap reports whether the value is an object.
func (v Value) IsMap() bool {
	_, ok := v.Map()
	return ok
}

// Get returns the member named key, or a null Value when v is not an object or has no such key.
func (v Value) Get(key string) Value {
	m, ok := v.Map()
	if !ok {
		return Value{}
	}
	return Value{raw: m[key]}
}

// Str returns the value only if it is string-typed.
func (v Value) Str() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// List returns the value as an array of Values.
func (v Value) List() ([]Value, bool) {
	items, ok := v.raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = Value{raw: item}
	}
	return out, true
}

// String renders scalars as text. Objects, arrays and null render as "".
func (v Value) String() string {
	switch v.raw.(type) {
	case nil, map[string]any, []any:
		return ""
	}
	s, err := cast.ToStringE(v.raw)
	if err != nil {
		return ""
	}
	return s
}

// Int coerces the value to an integer the way the upstream service's own tooling does:
// decimal strings (surrounding whitespace allowed), booleans and numbers are accepted, floats
// truncate toward zero. Anything else reports false.
func (v Value) Int() (int64, bool) {
	switch raw := v.raw.(type) {
	case nil, map[string]any, []any:
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return 0, false
		}
		return int64(raw), true
	case json.Number:
		if n, err := raw.Int64(); err == nil {
			return n, true
		}
		f, err := raw.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	}
	n, err := cast.ToInt64E(v.raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Truthy follows the usual dynamic-language rules: null, false, zero, "" and empty
// collections are false.
func (v Value) Truthy() bool {
	switch raw := v.raw.(type) {
	case nil:
		return false
	case bool:
		return raw
	case string:
		return raw != ""
	case map[string]any:
		return len(raw) > 0
	case []any:
		return len(raw) > 0
	}
	n, ok := v.Int()
	if !ok {
		return true
	}
	if f, isFloat := v.raw.(float64); isFloat {
		return f != 0
	}
	return n != 0
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v.raw = raw
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}
