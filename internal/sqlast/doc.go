// Package sqlast defines the immutable statement and predicate tree the
// write pipeline builds mutations from.
//
// Statement, Predicate, and Operand are sealed interfaces using the marker
// method pattern. Only types in this package implement them, which keeps
// type switches in the renderer exhaustive and prevents external
// extensions from bypassing parameterization.
//
// Values never appear inside SQL text. Every Literal and Param renders as
// a placeholder; the renderer collects the corresponding argument list.
// There is no API for interpolating a value into a statement.
//
// The tree covers exactly the shapes bulk and entity mutations need:
// single-table INSERT/UPDATE/DELETE, INSERT ... SELECT for staging-table
// population, and SELECT specs with inner joins for matching-id subqueries.
// It is not a general query model.
package sqlast
