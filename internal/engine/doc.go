// Package engine implements the unit-of-work write pipeline.
//
// A Session collects pending entity mutations (inserts, updates, deletes,
// collection removals) and executes them as one ordered batch against a
// relational store. The pipeline never reorders statements on the wire:
// a relational connection processes one statement at a time inside one
// transaction, so correctness comes from ordering the batch up front.
//
// ARCHITECTURE:
//
// Single-Owner Unit of Work:
// Each Session is owned by exactly one execution context at a time. All
// mutating entry points take an ownership latch; a second goroutine entering
// concurrently is a usage error and is rejected with a descriptive
// SESSION_OWNERSHIP failure rather than silently corrupting statement order.
// Many independent sessions run concurrently without any shared state.
//
// Mutation Flow:
//  1. Persist/Update/Remove register pending actions with the action queue,
//     stamped with a monotonic registration sequence.
//  2. Identity-keyed inserts execute immediately at registration, because
//     the generated key must exist before any dependent write is built.
//  3. Flush sorts the queue (inserts, then updates, then collection
//     removals, then entity deletes; within a class by the constraint-order
//     position of the target's table, reversed for removals and deletes)
//     and drains it strictly sequentially.
//  4. Each insert runs the transient-reference sweep before its statement
//     is built, and registers the entity as managed after it executes.
//
// CRITICAL PATTERNS:
//
// Registration Sequence:
// Actions are stamped with a monotonic logical counter, never wall-clock
// time. Equal constraint positions fall back to registration order, so a
// drain is deterministic for a given registration history.
//
// Nullify-and-Restore:
// Reference cycles among transient entities cannot be insert-ordered.
// The pipeline nullifies associations that point at not-yet-persisted
// entities, issues the insert with those columns unset, and restores the
// original references once the entity is managed. Topological ordering is
// only attempted across the acyclic part of the graph.
//
// Fail-Fast Drain:
// The first failing action terminates the drain. Remaining actions are
// discarded, never executed; already-executed statements are left to the
// surrounding transaction to roll back. Exactly one error surfaces.
package engine
