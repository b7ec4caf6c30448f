// Package store provides the SQLite-backed entity store.
//
// Each entity kind lives in its own table keyed by the remote integer ID.
// The store keeps two connection pools over the same file:
//   - a single-connection writer used only by write batches
//   - a read-only pool (query_only=ON) for concurrent point reads and queries
//
// # Critical Patterns
//
// Field-diffed put: Batch.Put inserts a row that is absent and otherwise
// rewrites only the provided fields whose normalized value differs. A put
// that changes nothing returns an empty Change and issues no UPDATE.
//
// Batch visibility: readers run in WAL mode and only see committed batches.
// A batch is the unit of visibility and atomicity.
//
// Deterministic reads: every list query orders by a total order ending in the
// primary key.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
