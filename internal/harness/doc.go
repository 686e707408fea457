// Package harness runs YAML-defined scenarios against the write pipeline.
//
// A scenario builds a fresh in-memory store from mapping documents, drives
// a real session and the bulk mutation executors through a sequence of
// steps, and then asserts on the recorded statement trace and on the final
// database state. Every statement the pipeline issues passes through a
// recording executor, so scenarios observe exactly what would reach a
// production store, in order, with argument values.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	mappings:
//	  - mappings/commerce.yaml
//	session_uid: uow-1
//	setup:
//	  - "INSERT INTO orders (id, status, version) VALUES (1, 'open', 0)"
//	steps:
//	  - op: persist
//	    entity: Order
//	    as: order
//	    id: 10
//	    values: { status: open }
//	  - op: flush
//	  - op: bulk_delete
//	    entity: Order
//	    filter: "status = 'void'"
//	    expect_count: 1
//	assertions:
//	  - type: statement_contains
//	    contains: "INSERT INTO orders"
//	  - type: final_state
//	    table: orders
//	    where: { id: 10 }
//	    expect: { status: "open" }
//
// Setup statements run directly against the store before the session
// opens; they seed state without appearing in the trace.
//
// # Steps
//
// The following step operations are supported:
//
//   - persist: schedule an insert; "as" binds the instance to an alias
//   - update: rewrite an aliased instance after applying "values"
//   - remove: schedule deletion of an aliased instance
//   - remove_collection: clear one named collection of an aliased instance
//   - flush: drain the session queue against the store
//   - bulk_delete: set-oriented delete through the mutation planner
//   - bulk_update: set-oriented update; "set" maps properties to values
//
// Values may reference previously persisted instances with a "$alias"
// string; the reference resolves to the instance itself, so to-one slots
// carry the target's identifier into the statement.
//
// Any step may declare expect_error naming the pipeline error code the
// operation must fail with (for example unique_violation or stale_state).
// Bulk steps may declare expect_count, the exact affected-entity count.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - statement_contains: a trace statement contains the SQL fragment,
//     optionally with an exact argument list
//   - statement_order: the fragments first appear in the given order
//   - statement_count: the trace holds exactly N statements, or N
//     statements containing a fragment
//   - row_count: a table holds exactly N rows matching "where"
//   - final_state: one row matches "where" and carries expected values
//
// # Deterministic Execution
//
// Scenarios run with a fixed session uid, an in-memory store created per
// run, and statement recording in execution order. The same scenario
// produces a byte-identical trace on every run, which makes the trace
// suitable for golden comparison via RunWithGolden.
package harness
