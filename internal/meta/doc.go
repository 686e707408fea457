// Package meta holds the write-side mapping model: which tables an entity
// writes to, which columns its properties own, how identifiers are
// generated, and how entity hierarchies span tables.
//
// This package contains model types and their validation only. All other
// internal packages import meta; meta imports nothing internal, keeping it
// the foundational layer with no circular dependencies.
//
// Mapping documents are YAML validated against a CUE schema before decode.
// Identifiers are NFC normalized on entry so lookups never depend on the
// Unicode composition a document author typed.
//
// The Registry derives a foreign-key graph from the mappings and assigns
// every table a constraint position: referenced (parent) tables sort before
// referencing (child) tables. Reference cycles collapse into one shared
// position and are reported, not rejected; the write pipeline breaks them
// with transient-reference nullification instead of ordering.
package meta
