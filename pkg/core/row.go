package core

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// NullSentinel is the encoded text a relational bridge uses for SQL NULL.
const NullSentinel = "<<null>>"

// TypeTag is the declared type of a relational column triplet.
type TypeTag string

// Type tags understood by the row normalizer. Any other tag is treated as TagString.
const (
	TagBool   TypeTag = "bool"
	TagNumber TypeTag = "number"
	TagArray  TypeTag = "array"
	TagString TypeTag = "string"
)

// Triplet is one encoded column of a relational row.
type Triplet struct {
	Name    string
	Tag     TypeTag
	Encoded string
}

// IsNull reports whether the encoded value is the null sentinel.
func (t Triplet) IsNull() bool { return t.Encoded == NullSentinel }

// MarshalJSON encodes the triplet as a three element array of strings.
func (t Triplet) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{t.Name, string(t.Tag), t.Encoded})
}

// UnmarshalJSON decodes a [name, tag, value] array of strings.
func (t *Triplet) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return &TripletError{Len: len(parts)}
	}
	t.Name, t.Tag, t.Encoded = parts[0], TypeTag(parts[1]), parts[2]
	return nil
}

// TripletError is returned when an encoded column does not have exactly three parts.
type TripletError struct {
	Len int
}

func (e *TripletError) Error() string {
	return "column triplet must have 3 elements, got " + strconv.Itoa(e.Len)
}

// RawRelationalRow is a row as returned by the relational bridge:
// an ordered sequence of column triplets.
type RawRelationalRow []Triplet

// Field is one named value of a columnar record.
type Field struct {
	Name  string
	Value any
}

// RawColumnarRow is a self-describing record from a columnar engine.
// Field order follows the engine's output; values are natively typed.
type RawColumnarRow []Field

// NormalizedRow maps column names to typed values.
// Keys are unique and iterate in first-insertion order.
type NormalizedRow struct {
	names  []string
	values []Value
	index  map[string]int
}

// NewNormalizedRow returns an empty row sized for n columns.
func NewNormalizedRow(n int) NormalizedRow {
	return NormalizedRow{
		names:  make([]string, 0, n),
		values: make([]Value, 0, n),
		index:  make(map[string]int, n),
	}
}

// Set assigns a column value. Assigning an existing name overwrites the
// earlier value and keeps its position.
func (r *NormalizedRow) Set(name string, v Value) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.values[i] = v
		return
	}
	r.index[name] = len(r.names)
	r.names = append(r.names, name)
	r.values = append(r.values, v)
}

// Get returns the value of a column.
func (r NormalizedRow) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Value{}, false
	}
	return r.values[i], true
}

// Len returns the number of columns.
func (r NormalizedRow) Len() int { return len(r.names) }

// Columns returns the column names in order.
func (r NormalizedRow) Columns() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Each calls fn for every column in order.
func (r NormalizedRow) Each(fn func(name string, v Value)) {
	for i, name := range r.names {
		fn(name, r.values[i])
	}
}

// Map returns the row as a plain map of Go values.
func (r NormalizedRow) Map() map[string]any {
	out := make(map[string]any, len(r.names))
	for i, name := range r.names {
		out[name] = r.values[i].Interface()
	}
	return out
}

// Equal reports whether two rows have the same columns, order and values.
func (r NormalizedRow) Equal(o NormalizedRow) bool {
	if len(r.names) != len(o.names) {
		return false
	}
	for i, name := range r.names {
		if o.names[i] != name || !r.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as a JSON object preserving column order.
func (r NormalizedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
