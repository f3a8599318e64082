// Package store provides relational storage for the AREA engine.
//
// The store holds:
//   - Tasks: automation rules, indexed by fingerprint (event_hash)
//   - Processed messages: the dedup ledger, UNIQUE(message_id, user_id)
//   - Last events: insert-only audit log of handled events
//   - Users and OAuth tokens: owning identities and their provider credentials
//
// # Invariants
//
// Fingerprint recomputation:
//   - CreateTask and UpdateTask always derive event_hash from
//     (trigger_name, trigger_args) via ir.Fingerprint
//   - Callers cannot set the fingerprint
//
// At-most-once claims:
//   - ClaimMessage uses INSERT ... ON CONFLICT DO NOTHING and reports whether
//     the slot was claimed
//   - Claim, task lookup, and audit write share one Tx and commit together
//
// Deterministic query results:
//   - All list queries are ordered by id ASC
//
// Cascade:
//   - Deleting a user removes its tasks, processed messages, and tokens
//
// # Dialects
//
// SQLite (mattn/go-sqlite3) is the default and is configured with WAL,
// synchronous=NORMAL, busy_timeout=5000, and foreign_keys=ON on a small
// connection pool. Reads run concurrently with an open Tx. Writers are
// serialised: every Tx starts with BEGIN IMMEDIATE, so a second event
// waits up to the busy timeout for the one being dispatched to commit. PostgreSQL (lib/pq) is selected with Connect("postgres", dsn).
// Queries are written with ? placeholders and rebound to $n for PostgreSQL.
package store
