// Package ir provides the shared value types that cross package boundaries in
// graphcache: record references, relationship states and the normalized payload
// exchanged between the store and its adapters.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Record ids are always strings; numeric ids are rejected at ingestion
//   - The normalized payload is wire-format agnostic: "<typeKey>": [records], "meta": {...}
//   - Request dedup keys are computed from canonical JSON, never from Go map order
package ir
