package mutation

import (
	"context"
	"log/slog"

	"github.com/stratumdb/stratum/internal/exec"
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// DeleteRequest describes one bulk delete.
type DeleteRequest struct {
	// Entity names the mapping whose rows are deleted.
	Entity string

	// Where restricts the delete; nil matches every row.
	Where sqlast.Predicate

	// Bindings resolves named parameters in Where. The name "session_uid"
	// is reserved for the executor.
	Bindings map[string]any
}

// DeleteExecutor executes bulk deletes across entity hierarchies. One
// executor serves one unit of work; staged keys are tagged with the
// session uid it was built with.
type DeleteExecutor struct {
	core
}

// NewDeleteExecutor creates a bulk delete executor over the given mapping
// registry and statement executor.
func NewDeleteExecutor(reg *meta.Registry, ex exec.Executor, sessionUID string, opts ...Option) *DeleteExecutor {
	return &DeleteExecutor{core: newCore(reg, ex, sessionUID, opts)}
}

// Execute runs one bulk delete and returns the number of entity rows
// deleted: the root-table count, or the summed member counts for a
// union-mapped target. Dependent-table and side-table counts are cascade
// effects and are never included.
func (d *DeleteExecutor) Execute(ctx context.Context, req DeleteRequest) (int64, error) {
	plan, err := d.resolve(req.Entity, req.Where, req.Bindings)
	if err != nil {
		return 0, err
	}
	slog.Debug("bulk delete planned",
		"session", d.uid, "entity", plan.Entity.Name,
		"staged", plan.NeedsStaging, "reasons", plan.Reasons)

	switch {
	case plan.Union:
		return d.unionDelete(ctx, plan, req.Where)
	case plan.NeedsStaging:
		return d.withStaging(ctx, *plan.Staging, func(ctx context.Context) (int64, error) {
			return d.stagedDelete(ctx, plan, req.Where)
		})
	default:
		return d.directDelete(ctx, plan, req.Where)
	}
}

// directDelete handles the single-table case: side tables first, then the
// entity table with the caller's predicate untouched.
func (d *DeleteExecutor) directDelete(ctx context.Context, plan Plan, where sqlast.Predicate) (int64, error) {
	e := plan.Entity
	for _, coll := range e.Collections {
		if err := d.cleanCollection(ctx, e, coll, where); err != nil {
			return 0, err
		}
	}
	return d.exec(ctx, sqlast.Delete{Table: e.PrimaryTable().Name, Where: where})
}

// unionDelete removes matching rows from every concrete member table.
// Member tables hold full-width rows and reference no other table of the
// hierarchy, so each is deleted directly.
func (d *DeleteExecutor) unionDelete(ctx context.Context, plan Plan, where sqlast.Predicate) (int64, error) {
	var total int64
	for _, m := range plan.Members {
		memberWhere := conjoin(baseRestriction(m), where)
		for _, coll := range m.Collections {
			if err := d.cleanCollection(ctx, m, coll, memberWhere); err != nil {
				return 0, err
			}
		}
		n, err := d.exec(ctx, sqlast.Delete{Table: m.PrimaryTable().Name, Where: memberWhere})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// stagedDelete precomputes the matched keys, then deletes per table
// against the staged set: side tables first, then entity tables in
// constraint order so the hierarchy root empties last.
func (d *DeleteExecutor) stagedDelete(ctx context.Context, plan Plan, where sqlast.Predicate) (int64, error) {
	e := plan.Entity
	tt := *plan.Staging

	staged, err := d.exec(ctx, populateStatement(e, tt, where))
	if err != nil {
		return 0, err
	}
	slog.Debug("staging populated", "session", d.uid, "table", tt.Name, "rows", staged)

	for _, coll := range collectionsOf(d.reg, e) {
		stmt := sqlast.Delete{Table: coll.Table, Where: stagedKeys(coll.KeyColumn, tt)}
		if _, err := d.exec(ctx, stmt); err != nil {
			return 0, err
		}
	}

	var count int64
	root := e.RootTable().Name
	for _, t := range plan.Tables {
		n, err := d.exec(ctx, sqlast.Delete{Table: t, Where: stagedKeys(plan.KeyColumns[t], tt)})
		if err != nil {
			return 0, err
		}
		if t == root {
			count = n
		}
	}
	return count, nil
}

// cleanCollection empties the side-table rows whose owners the predicate
// matches. A nil predicate cleans the whole side table.
func (d *DeleteExecutor) cleanCollection(ctx context.Context, owner *meta.Entity, coll meta.Collection, where sqlast.Predicate) error {
	stmt := sqlast.Delete{Table: coll.Table}
	if where != nil {
		stmt.Where = sqlast.InSubquery{
			Column: sqlast.Col(coll.KeyColumn),
			Select: matchingKeySelect(owner, where),
		}
	}
	// An empty collection deletes zero rows; that is not a failure.
	_, err := d.exec(ctx, stmt)
	return err
}
