// Package store provides SQLite-backed durable storage for resolvable values.
//
// The store is a flat key/value table used by the kv value source. Keys are
// path-like strings ("/prod/db/host") and values are opaque strings. Each key
// carries a version counter incremented on every Put, which makes stale reads
// visible in listings.
//
// # Ordering
//
// List results are ordered by key (ORDER BY key ASC COLLATE BINARY) so
// listings are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while the CLI writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Schema changes are applied through PRAGMA user_version migrations.
package store
