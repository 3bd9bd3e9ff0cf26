package core

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// ValueKind is the type of a normalized column value.
type ValueKind uint8

// Value kinds. Every backend maps its native values onto this set.
const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindStructured
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindStructured:
		return "structured"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a typed column value: null, bool, number (NaN allowed),
// a structured JSON value, or a string. The zero Value is null.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	v    any
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value. NaN and infinities are kept as-is.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Structured returns a value holding a decoded JSON document
// (arrays, objects, or scalars produced by a JSON decoder).
func Structured(v any) Value { return Value{kind: KindStructured, v: v} }

// Kind returns the kind of the value.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNaN reports whether the value is the not-a-number marker.
func (v Value) IsNaN() bool { return v.kind == KindNumber && math.IsNaN(v.n) }

// AsBool returns the boolean payload; false for other kinds.
func (v Value) AsBool() bool { return v.kind == KindBool && v.b }

// AsNumber returns the numeric payload; 0 for other kinds.
func (v Value) AsNumber() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// AsString returns the text payload; "" for other kinds.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// AsStructured returns the structured payload; nil for other kinds.
func (v Value) AsStructured() any {
	if v.kind != KindStructured {
		return nil
	}
	return v.v
}

// Interface returns the value as a plain Go value:
// nil, bool, float64, string, or the structured document.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindStructured:
		return v.v
	default:
		return nil
	}
}

// Equal reports structural equality. Two NaN numbers are equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if math.IsNaN(v.n) {
			return math.IsNaN(o.n)
		}
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindStructured:
		return reflect.DeepEqual(v.v, o.v)
	default:
		return false
	}
}

// String formats the value for display. Null renders as NULL.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	case KindStructured:
		b, err := json.Marshal(v.v)
		if err != nil {
			return fmt.Sprintf("%v", v.v)
		}
		return string(b)
	default:
		return ""
	}
}

// MarshalJSON encodes the value. JSON has no NaN or infinity, so those
// numbers encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.n)
	default:
		return json.Marshal(v.Interface())
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	default:
		return fmt.Sprintf("%v", n)
	}
}
