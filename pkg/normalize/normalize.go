// Package normalize converts backend-specific result encodings into
// core.NormalizedRow values.
//
// Relational bridge rows arrive as string-tagged column triplets; columnar
// engines return natively typed records. Both are mapped onto the same
// core.Value union so callers never need to know which engine ran a query.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Normalize decodes relational rows into normalized rows.
// It is pure: the input is not modified and no I/O happens.
func Normalize(raw []core.RawRelationalRow) []core.NormalizedRow {
	rows := make([]core.NormalizedRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, NormalizeRow(r))
	}
	return rows
}

// NormalizeRow decodes one relational row. Duplicate column names overwrite
// earlier ones.
func NormalizeRow(raw core.RawRelationalRow) core.NormalizedRow {
	row := core.NewNormalizedRow(len(raw))
	for _, col := range raw {
		row.Set(col.Name, DecodeColumn(col))
	}
	return row
}

// DecodeColumn applies the per-tag decoding rules to one triplet.
// The null sentinel wins over any declared tag.
func DecodeColumn(col core.Triplet) core.Value {
	if col.IsNull() {
		return core.Null()
	}

	switch col.Tag {
	case core.TagBool:
		return core.Bool(col.Encoded == "true")
	case core.TagNumber:
		return core.Number(ParseNumber(col.Encoded))
	case core.TagArray:
		return DecodeStructured(col.Encoded).Value()
	default:
		return core.String(col.Encoded)
	}
}

// ParseNumber parses a decimal number, returning NaN for any other text.
// Besides plain decimals only PostgreSQL's "Infinity", "-Infinity" and "NaN"
// spellings are accepted; hex floats, underscores and "inf" are not.
// Values out of float64 range keep the ±Inf produced by strconv.
func ParseNumber(text string) float64 {
	text = strings.TrimSpace(text)
	if !isDecimalLiteral(text) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(text, 64)
	if err == nil {
		return f
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange {
		return f
	}
	return math.NaN()
}

func isDecimalLiteral(text string) bool {
	body := strings.TrimLeft(text, "+-")
	if body == "Infinity" || body == "NaN" {
		return len(text)-len(body) <= 1
	}
	return !strings.ContainsFunc(body, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != 'e' && r != 'E' && r != '+' && r != '-'
	})
}

// StructuredResult is the outcome of decoding an array-tagged column:
// either the decoded document or the original text as a fallback.
type StructuredResult struct {
	decoded any
	raw     string
	ok      bool
	err     error
}

// Decoded returns a successful result.
func Decoded(v any) StructuredResult { return StructuredResult{decoded: v, ok: true} }

// RawFallback returns a result that keeps the original text.
func RawFallback(text string, err error) StructuredResult {
	return StructuredResult{raw: text, err: err}
}

// IsFallback reports whether decoding failed and the raw text was kept.
func (r StructuredResult) IsFallback() bool { return !r.ok }

// Raw returns the original text of a fallback result.
func (r StructuredResult) Raw() string { return r.raw }

// Err returns the decode error that caused the fallback, if any.
func (r StructuredResult) Err() error { return r.err }

// Value converts the result to a column value. A fallback becomes the
// original text as a string value.
func (r StructuredResult) Value() core.Value {
	if r.ok {
		return core.Structured(r.decoded)
	}
	return core.String(r.raw)
}

// DecodeStructured parses text as JSON. A parse failure is not an error for
// callers: the text is retained unchanged.
func DecodeStructured(text string) StructuredResult {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return RawFallback(text, err)
	}
	return Decoded(v)
}

// DecodeBridgeResponse parses a serialized bridge response:
// a JSON array of rows, each an array of [name, tag, value] triplets.
func DecodeBridgeResponse(payload []byte) ([]core.RawRelationalRow, error) {
	var rows []core.RawRelationalRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode bridge response: %w", err)
	}
	return rows, nil
}
