// Package engine implements the AREA event correlator and action dispatcher.
//
// An inbound event flows through one pipeline run (Engine.HandleEvent):
//
//  1. Validation: malformed events are rejected before any storage access
//  2. Dedup: when the event carries (message_id, user_id), the pair is
//     claimed in the ledger; an already-claimed pair ends the run as a no-op
//  3. Correlation: tasks whose fingerprint equals fingerprint(trigger,
//     values(params)) are unioned with the owner-scoped predicate matches of
//     special triggers
//  4. Dispatch: each task's reaction is resolved through the registry tiers
//     and invoked with the merged parameters; failures are isolated per task
//  5. Audit: one LastExecutedEvent row records the last reaction attempted
//
// Steps 2 to 5 share one store transaction. The ledger claim and the audit
// row commit together or not at all. An unknown reaction aborts the run
// before any reaction is invoked and rolls the transaction back.
//
// SIDE EFFECTS:
//
// Reaction side effects (mail sent, API calls, transfers) are not
// transactional. A crash after a reaction succeeds but before the commit
// lands leaves the ledger without the claim, so a redelivered event runs the
// reaction again. Recording is at-most-once; external effects are
// at-least-once in that window.
//
// CONCURRENCY:
//
// Engine holds no mutable state of its own and HandleEvent may be called
// from many goroutines. The store transaction is the only serialization
// point. Dispatch has no in-flight cancellation: once HandleEvent passes
// validation it detaches from the caller's cancellation, and the reactions,
// the dedup claim and the audit row all complete.
package engine
