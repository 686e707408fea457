package mutation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// Plan is the outcome of the staging decision for one bulk mutation.
type Plan struct {
	// Entity is the mutation target.
	Entity *meta.Entity

	// Union marks a union-mapped target: statements run per concrete
	// member table with counts summed, never staged.
	Union bool

	// Members holds the concrete entities a union target expands to.
	Members []*meta.Entity

	// NeedsStaging reports whether matched keys must be precomputed into
	// a staging table before the per-table statements run.
	NeedsStaging bool

	// Reasons lists the conditions that forced staging.
	Reasons []string

	// Tables is every entity table the mutation touches, in constraint
	// order: referencing tables first, the hierarchy root last. Deletes
	// walk it as-is. Union targets list one table per member.
	Tables []string

	// KeyColumns maps each table in Tables to its identifier column.
	KeyColumns map[string]string

	// Staging describes the staging table; set when NeedsStaging.
	Staging *TempTable
}

// PlanFor decides how a bulk mutation of the given entity executes.
//
// Staging is required when the matched rows cannot be re-identified by
// running the predicate against a single table. Either of these alone
// forces it:
//
//   - the predicate references a column qualified by a table other than
//     the hierarchy root
//   - the mapping contributes a base restriction
//   - the mutation spans more than one entity table (a joined subtype,
//     or a root with joined subtype tables)
//
// Union-mapped targets are never staged: each concrete member owns a
// full-width table and is mutated directly.
func PlanFor(reg *meta.Registry, e *meta.Entity, where sqlast.Predicate) (Plan, error) {
	plan := Plan{Entity: e}

	if e.Inheritance == meta.InheritanceUnion {
		plan.Union = true
		plan.Members = reg.UnionMembers(e)
		plan.KeyColumns = make(map[string]string, len(plan.Members))
		for _, m := range plan.Members {
			t := m.PrimaryTable()
			if t == nil {
				return Plan{}, fmt.Errorf("union member %s maps no table", m.Name)
			}
			plan.Tables = append(plan.Tables, t.Name)
			plan.KeyColumns[t.Name] = m.IDColumn
		}
		return plan, nil
	}

	root := e.RootTable()
	if root == nil {
		return Plan{}, fmt.Errorf("entity %s maps no tables", e.Name)
	}

	plan.Tables = reg.ConstraintOrderedTables(e)
	plan.KeyColumns = keyColumns(reg, e)

	if escaped := tablesOutsideRoot(where, root.Name); len(escaped) > 0 {
		plan.Reasons = append(plan.Reasons, fmt.Sprintf(
			"predicate references %s outside root table %s",
			strings.Join(escaped, ", "), root.Name))
	}
	if e.BaseRestriction != nil {
		plan.Reasons = append(plan.Reasons, "mapping contributes a base restriction")
	}
	if len(plan.Tables) > 1 {
		if e.IsSubtype() {
			plan.Reasons = append(plan.Reasons, "target is a joined-hierarchy subtype")
		} else {
			plan.Reasons = append(plan.Reasons,
				fmt.Sprintf("hierarchy spans %d tables", len(plan.Tables)))
		}
	}

	if len(plan.Reasons) > 0 {
		plan.NeedsStaging = true
		tt, err := StagingTableFor(e)
		if err != nil {
			return Plan{}, err
		}
		plan.Staging = &tt
	}
	return plan, nil
}

// keyColumns maps every table of the hierarchy to the identifier column
// of the entity owning it.
func keyColumns(reg *meta.Registry, e *meta.Entity) map[string]string {
	cols := make(map[string]string)
	stamp := func(owner *meta.Entity) {
		for i := range owner.Tables {
			if _, ok := cols[owner.Tables[i].Name]; !ok {
				cols[owner.Tables[i].Name] = owner.IDColumn
			}
		}
	}
	stamp(e)
	for _, d := range reg.Descendants(e.Name) {
		stamp(d)
	}
	return cols
}

// tablesOutsideRoot returns the distinct table qualifiers the predicate
// references beyond the root table, sorted. Unqualified references bind
// to the statement's target table and never escape.
func tablesOutsideRoot(where sqlast.Predicate, rootTable string) []string {
	seen := make(map[string]bool)
	sqlast.WalkColumns(where, func(c sqlast.ColumnRef) {
		if c.Table != "" && c.Table != rootTable {
			seen[c.Table] = true
		}
	})
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
