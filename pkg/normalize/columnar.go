package normalize

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// FromRecords normalizes columnar records.
func FromRecords(records []core.RawColumnarRow) []core.NormalizedRow {
	rows := make([]core.NormalizedRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, FromRecord(rec))
	}
	return rows
}

// FromRecord normalizes one self-describing record, keeping field order.
func FromRecord(rec core.RawColumnarRow) core.NormalizedRow {
	row := core.NewNormalizedRow(len(rec))
	for _, f := range rec {
		row.Set(f.Name, FromNative(f.Value))
	}
	return row
}

// plainJSON rewrites json.Number leaves as float64 so nested documents match
// what encoding/json produces for relational array columns.
func plainJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		return ParseNumber(x.String())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainJSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plainJSON(e)
		}
		return out
	default:
		return v
	}
}

// FromNative maps a natively typed engine value onto core.Value.
//
// Integers and floats become numbers, strings and byte slices become strings,
// slices, arrays and maps become structured values. Timestamps are rendered as
// RFC 3339 text; any other type falls back to its string form.
func FromNative(v any) core.Value {
	switch x := v.(type) {
	case nil:
		return core.Null()
	case core.Value:
		return x
	case bool:
		return core.Bool(x)
	case string:
		return core.String(x)
	case []byte:
		return core.String(string(x))
	case float64:
		return core.Number(x)
	case float32:
		return core.Number(float64(x))
	case int:
		return core.Number(float64(x))
	case int8:
		return core.Number(float64(x))
	case int16:
		return core.Number(float64(x))
	case int32:
		return core.Number(float64(x))
	case int64:
		return core.Number(float64(x))
	case uint:
		return core.Number(float64(x))
	case uint8:
		return core.Number(float64(x))
	case uint16:
		return core.Number(float64(x))
	case uint32:
		return core.Number(float64(x))
	case uint64:
		return core.Number(float64(x))
	case json.Number:
		return core.Number(ParseNumber(x.String()))
	case *big.Int:
		if x == nil {
			return core.Null()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return core.Number(f)
	case time.Time:
		return core.String(x.Format(time.RFC3339Nano))
	case []any, map[string]any:
		return core.Structured(plainJSON(x))
	case fmt.Stringer:
		return core.String(x.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return core.Null()
		}
		return FromNative(rv.Elem().Interface())
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return core.Structured(v)
	default:
		return core.String(fmt.Sprint(v))
	}
}
