package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// UnsupportedType is sent for columns whose text cannot be carried.
const UnsupportedType = "<<unsupported type>>"

var arrayOIDs = map[uint32]bool{
	pgtype.TextArrayOID:        true,
	pgtype.VarcharArrayOID:     true,
	pgtype.Int2ArrayOID:        true,
	pgtype.Int4ArrayOID:        true,
	pgtype.Int8ArrayOID:        true,
	pgtype.Float4ArrayOID:      true,
	pgtype.Float8ArrayOID:      true,
	pgtype.BoolArrayOID:        true,
	pgtype.TimestampArrayOID:   true,
	pgtype.TimestamptzArrayOID: true,
	pgtype.DateArrayOID:        true,
	pgtype.TimeArrayOID:        true,
	pgtype.UUIDArrayOID:        true,
	pgtype.JSONArrayOID:        true,
	pgtype.JSONBArrayOID:       true,
}

// TagFor returns the triplet tag for a column type.
func TagFor(oid uint32) core.TypeTag {
	switch oid {
	case pgtype.BoolOID:
		return core.TagBool
	case pgtype.QCharOID, pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID, pgtype.Float4OID, pgtype.Float8OID:
		return core.TagNumber
	}
	if arrayOIDs[oid] {
		return core.TagArray
	}
	return core.TagString
}

// EncodeColumn turns one result column into a triplet. raw is the text the
// server sent (nil for SQL NULL); decoded is the pgx decoded value when
// available.
func EncodeColumn(name string, oid uint32, decoded any, raw []byte) core.Triplet {
	tag := TagFor(oid)
	if raw == nil {
		return core.Triplet{Name: name, Tag: tag, Encoded: core.NullSentinel}
	}
	return core.Triplet{Name: name, Tag: tag, Encoded: encodeValue(oid, tag, decoded, raw)}
}

func encodeValue(oid uint32, tag core.TypeTag, decoded any, raw []byte) string {
	text := string(raw)

	switch {
	case oid == pgtype.BoolOID:
		if b, ok := decoded.(bool); ok {
			return strconv.FormatBool(b)
		}
		return strconv.FormatBool(text == "t" || text == "true")

	case oid == pgtype.ByteaOID:
		if b, ok := decoded.([]byte); ok {
			return hex.EncodeToString(b)
		}
		return strings.TrimPrefix(text, `\x`)

	case oid == pgtype.QCharOID:
		// "char" is a single signed byte
		if len(raw) == 0 {
			return "0"
		}
		return strconv.Itoa(int(int8(raw[0])))

	case tag == core.TagArray:
		if elems, ok := decoded.([]any); ok {
			if b, err := json.Marshal(jsonArray(oid, elems)); err == nil {
				return string(b)
			}
		}
		return text
	}

	if !utf8.Valid(raw) {
		return UnsupportedType
	}
	return text
}

func jsonArray(oid uint32, elems []any) []any {
	out := make([]any, len(elems))
	for i, e := range elems {
		out[i] = jsonElement(oid, e)
	}
	return out
}

func jsonElement(oid uint32, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return jsonArray(oid, x)
	case [16]byte:
		return uuid.UUID(x).String()
	case time.Time:
		switch oid {
		case pgtype.DateArrayOID:
			return x.Format(time.DateOnly)
		case pgtype.TimestampArrayOID:
			return x.Format("2006-01-02 15:04:05.999999")
		default:
			return x.Format(time.RFC3339Nano)
		}
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		return formatTimeOfDay(x.Microseconds)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

func formatTimeOfDay(us int64) string {
	d := time.Duration(us) * time.Microsecond
	return time.Time{}.Add(d).Format("15:04:05.999999")
}
