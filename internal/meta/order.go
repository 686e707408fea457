package meta

import (
	"fmt"
	"sort"
	"strings"
)

// CycleInfo reports a reference cycle in the foreign-key graph.
//
// Cycles are informational, not fatal: tables inside one cycle share a
// constraint position, and inserts into them rely on transient-reference
// nullification rather than ordering.
type CycleInfo struct {
	Tables  []string `json:"tables"`  // members, sorted
	Message string   `json:"message"` // human-readable description
}

// refGraph maps table -> tables it references via foreign keys.
type refGraph map[string][]string

// computeTableOrder assigns every table a constraint position such that a
// referenced (parent) table never sorts after a referencing (child) table,
// except inside reference cycles, whose members share one position.
//
// The algorithm:
//  1. Build the table reference graph from the foreign-key edges.
//  2. Find strongly connected components with Tarjan's algorithm over a
//     deterministic node order.
//  3. Components pop in reverse topological order, parents first; the pop
//     index is the position of every member table.
func computeTableOrder(tables []string, fks []ForeignKey) (map[string]int, []CycleInfo) {
	graph := make(refGraph, len(tables))
	for _, t := range tables {
		graph[t] = nil
	}
	for _, fk := range fks {
		if fk.Table == fk.ReferencedTable {
			graph[fk.Table] = append(graph[fk.Table], fk.Table)
			continue
		}
		graph[fk.Table] = append(graph[fk.Table], fk.ReferencedTable)
	}

	sccs := tarjanSCC(tables, graph)

	order := make(map[string]int, len(tables))
	var cycles []CycleInfo
	for pos, scc := range sccs {
		for _, t := range scc {
			order[t] = pos
		}
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycleInfo(scc))
		}
	}
	return order, cycles
}

func hasSelfLoop(node string, graph refGraph) bool {
	for _, ref := range graph[node] {
		if ref == node {
			return true
		}
	}
	return false
}

func sccToCycleInfo(scc []string) CycleInfo {
	members := append([]string{}, scc...)
	sort.Strings(members)
	if len(members) == 1 {
		return CycleInfo{
			Tables:  members,
			Message: fmt.Sprintf("table %s references itself", members[0]),
		}
	}
	return CycleInfo{
		Tables:  members,
		Message: fmt.Sprintf("reference cycle between tables: %s", strings.Join(members, ", ")),
	}
}

// tarjanSCC finds strongly connected components, visiting roots in the
// given node order so positions are stable across runs.
func tarjanSCC(nodes []string, graph refGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int, len(nodes))
		lowlink = make(map[string]int, len(nodes))
		onStack = make(map[string]bool, len(nodes))
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}
