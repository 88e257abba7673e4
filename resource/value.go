package resource

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Value is a sealed interface representing attribute values.
// Only Null, String, Int, Float, Bool, Array, and Object implement it.
//
// The union is closed so that every component downstream of the decoder
// (matching, sorting, copying, re-encoding) can handle all cases
// exhaustively.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null attribute value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string attribute value.
type String string

func (String) value() {}

// Int represents an integral JSON number. Always int64.
type Int int64

func (Int) value() {}

// Float represents a non-integral JSON number.
type Float float64

func (Float) value() {}

// Bool represents a boolean attribute value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of attribute values.
type Array []Value

func (Array) value() {}

// Object represents a nested mapping of string keys to attribute values.
type Object map[string]Value

func (Object) value() {}

// Attributes is the attribute mapping carried by every resource.
type Attributes map[string]Value

// FromAny converts a plain decoded Go value (as produced by a JSON
// decoder with UseNumber) into a Value. Returns an error for types
// outside the closed set.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case int:
		return Int(t), nil
	case int64:
		return Int(t), nil
	case float64:
		// Non-decoder callers hand us float64 directly.
		if t == float64(int64(t)) {
			return Int(int64(t)), nil
		}
		return Float(t), nil
	case []any:
		arr := make(Array, len(t))
		for i, elem := range t {
			val, err := FromAny(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = val
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, elem := range t {
			val, err := FromAny(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = val
		}
		return obj, nil
	case Value:
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", v)
	}
}

// Interface converts a Value back into a plain Go value
// (nil, string, int64, float64, bool, []any, map[string]any).
// Used to build environments for predicate evaluation and for loose
// comparison at package boundaries.
func Interface(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(t)
	case Int:
		return int64(t)
	case Float:
		return float64(t)
	case Bool:
		return bool(t)
	case Array:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = Interface(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = Interface(elem)
		}
		return out
	default:
		return nil
	}
}

// InterfaceMap converts an attribute mapping into a plain map[string]any.
func InterfaceMap(attrs Attributes) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = Interface(v)
	}
	return out
}

// decodeValue parses a raw JSON fragment into a Value.
func decodeValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// UnmarshalJSON implements json.Unmarshaler for Attributes.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Attributes, len(raw))
	for k, fragment := range raw {
		v, err := decodeValue(fragment)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = v
	}
	*a = out
	return nil
}
