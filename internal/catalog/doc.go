// Package catalog holds the trigger and reaction vocabulary of the engine.
//
// The vocabulary is an embedded CUE document (catalog.cue) compiled once at
// startup into an immutable Catalog value. The Catalog answers three kinds of
// questions:
//
//   - registry tiers: which services offer which reactions, and in which
//     order the dispatcher consults them
//   - parameter schemas: the named fields of each trigger and reaction, and
//     the binding of a task's positional argument list onto those names
//   - special triggers: the owner-scoped predicate triggers and the
//     creation-time directional variants that normalize onto them
//
// A Catalog is safe for concurrent use.
package catalog
