// Package store persists runtime snapshots in SQLite.
//
// A snapshot is a named set of entity snapshots (rule states, component
// fields and custom payloads) taken at a frame. Entity documents are stored
// as canonical tagged JSON, so saving the same state twice produces
// byte-identical rows.
//
// # Ordering
//
//   - Snapshots list in save order (seq), never by wall time
//   - Entities load in the order they were saved
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: deleting a snapshot deletes its entities
package store
