// Package store provides SQLite-backed storage for one mementer replica.
//
// A Store is simultaneously:
//   - the Object Store: immutable entries keyed by the hash of their bytes
//   - the Action Log: create_entry actions, append-only
//   - the Link Index: typed edges with their creating action
//
// # Invariants
//
// Append-only:
//   - every insert uses ON CONFLICT DO NOTHING, so replaying a record is a no-op
//   - no statement updates or deletes a row
//
// Deterministic reads:
//   - link statements are compiled by internal/querysql and always end in
//     ORDER BY timestamp ASC, action_hash ASC COLLATE BINARY
//
// Content addressing:
//   - Put computes the hash itself (internal/ir.HashEntry); callers cannot
//     store bytes under a foreign key
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
