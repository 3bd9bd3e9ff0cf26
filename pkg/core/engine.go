package core

import "strings"

// EngineKind identifies which backend family executes a query.
// The set is closed: every kind has exactly one adapter in the dispatcher.
type EngineKind uint8

const (
	// EngineRelational is a relational engine reached through the execution bridge.
	// It is the zero value and the fallback for unrecognized engine names.
	EngineRelational EngineKind = iota
	// EngineColumnar is a streaming analytical engine returning self-describing rows.
	EngineColumnar
)

// String returns the canonical name of the engine kind.
func (k EngineKind) String() string {
	switch k {
	case EngineColumnar:
		return "columnar"
	case EngineRelational:
		return "relational"
	default:
		return "relational"
	}
}

// ParseEngineKind maps an engine name from configuration onto an EngineKind.
//
// Names are matched case-insensitively. Any name that is not recognized maps to
// EngineRelational; ok reports whether the name was recognized so callers can
// warn about the fallback.
func ParseEngineKind(name string) (kind EngineKind, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "clickhouse", "columnar", "duckdb":
		return EngineColumnar, true
	case "postgres", "postgresql", "pg", "relational":
		return EngineRelational, true
	default:
		return EngineRelational, false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler with the permissive
// fallback of ParseEngineKind.
func (k *EngineKind) UnmarshalText(text []byte) error {
	*k, _ = ParseEngineKind(string(text))
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k EngineKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
