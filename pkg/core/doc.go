// Package core defines the shared language of the leapquery system.
//
// This package contains:
//   - Engine selection (EngineKind, ConnectionDescriptor, QueryRequest)
//   - Backend-native row encodings (RawColumnarRow, RawRelationalRow)
//   - The uniform row representation handed to callers (Value, NormalizedRow)
//   - Shared sentinel errors
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
