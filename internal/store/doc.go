// Package store persists searcher decision traces in SQLite.
//
// A session is one simulated run: the scenario name, the fingerprint of the
// program model it ran against, and the searcher tuning. Each session owns
// an append-only list of trace events keyed by (session_id, seq).
//
// # Ordering
//
// Every query orders by the logical seq column. Sessions are listed by id;
// UUIDv7 ids sort by creation time without a timestamp column.
//
// # Idempotency
//
// Events carry a content-addressed id (ir.DecisionID). Writing the same
// event twice is a no-op, so a recorder may be flushed again after a
// partial failure.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while a simulation writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
