// Package store is a SQLite record database and the adapter that serves
// it to the engine.
//
// The database stands in for a server: it assigns permanent ids on create,
// keeps both sides of every declared inverse in agreement, and answers
// every call with a normalized payload.
//
// # Critical Patterns
//
// Deterministic reads
//   - every query ends with ORDER BY seq ASC, id ASC COLLATE BINARY
//   - seq is the insertion order and survives updates
//
// Canonical storage
//   - rows hold canonical JSON (ir.MarshalCanonical) and its ir.RecordHash
//   - an upsert whose hash is unchanged does not rewrite the row
//
// Atomic writes
//   - a create, update or delete and all inverse rewrites it causes share
//     one transaction
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - single connection: SQLite has one writer
package store
