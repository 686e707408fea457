// Package mutation implements bulk delete and update across entity
// hierarchies.
//
// A single request ("delete every Order older than a year") may touch
// several physical tables: joined-subtype tables, the hierarchy root,
// collection side tables, or one table per concrete member of a
// union-mapped hierarchy. The executors here turn one request into the
// ordered statement sequence that keeps foreign keys satisfied throughout,
// issued through the same executor boundary the write pipeline uses.
//
// ARCHITECTURE:
//
// Staging Decision:
// A mutation either runs directly against the target table or precomputes
// the matched primary keys into a staging table first. Staging is forced
// whenever the predicate cannot simply be re-run per table. That is the
// case when the predicate references columns outside the hierarchy root,
// when the mapping carries a base restriction, and when the hierarchy
// spans multiple tables. In the multi-table case the subtype rows must go
// before the root rows they reference, but once the root rows are what the
// predicate matched, nothing else identifies those subtype rows - hence
// the precomputed key set. Union-mapped hierarchies are never staged: each
// concrete member owns a full-width table and is mutated directly.
//
// Staging Lifecycle:
// Before use the staging table is created idempotently. One physical table
// serves every session mutating the same hierarchy; rows are tagged with
// the owning session uid and every read filters by it. After use a
// configured action runs - per-uid row cleanup (default), drop, or none.
// The after-use action is unconditional: it still runs when a statement in
// the sequence fails and when the caller's context is cancelled. A cleanup
// failure after a successful mutation surfaces as CLEANUP_FAILURE; after a
// failed one it is logged and the primary error propagates untouched.
//
// Affected Counts:
// The count callers see is the entity count, never a per-table sum: the
// root-table statement count for deletes, the staged key count for staged
// updates, summed member counts for union targets. Dependent-table and
// side-table statements are cascade effects and are not counted.
package mutation
