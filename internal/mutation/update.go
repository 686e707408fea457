package mutation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stratumdb/stratum/internal/engine"
	"github.com/stratumdb/stratum/internal/exec"
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// Assignment sets one mapped property to a value. To-one properties take
// the target's identifier value directly; bulk statements never resolve
// entity instances.
type Assignment struct {
	Property string
	Value    any
}

// UpdateRequest describes one bulk update.
type UpdateRequest struct {
	// Entity names the mapping whose rows are updated.
	Entity string

	// Set holds the assignments; at least one is required.
	Set []Assignment

	// Where restricts the update; nil matches every row.
	Where sqlast.Predicate

	// Bindings resolves named parameters in Where. The name "session_uid"
	// is reserved for the executor.
	Bindings map[string]any
}

// UpdateExecutor executes bulk updates with the same staging decision and
// lifecycle as bulk deletes. Assignments route to the table owning each
// property's column.
type UpdateExecutor struct {
	core
}

// NewUpdateExecutor creates a bulk update executor over the given mapping
// registry and statement executor.
func NewUpdateExecutor(reg *meta.Registry, ex exec.Executor, sessionUID string, opts ...Option) *UpdateExecutor {
	return &UpdateExecutor{core: newCore(reg, ex, sessionUID, opts)}
}

// Execute runs one bulk update and returns the number of entities
// matched: the table statement count when unstaged, the staged key count
// otherwise, and the summed member counts for a union-mapped target.
func (u *UpdateExecutor) Execute(ctx context.Context, req UpdateRequest) (int64, error) {
	if len(req.Set) == 0 {
		return 0, fmt.Errorf("bulk update of %s: no assignments", req.Entity)
	}
	plan, err := u.resolve(req.Entity, req.Where, req.Bindings)
	if err != nil {
		return 0, err
	}
	slog.Debug("bulk update planned",
		"session", u.uid, "entity", plan.Entity.Name,
		"staged", plan.NeedsStaging, "reasons", plan.Reasons)

	switch {
	case plan.Union:
		return u.unionUpdate(ctx, plan, req)
	case plan.NeedsStaging:
		byTable, err := u.assignmentsByTable(plan.Entity, req.Set)
		if err != nil {
			return 0, err
		}
		return u.withStaging(ctx, *plan.Staging, func(ctx context.Context) (int64, error) {
			return u.stagedUpdate(ctx, plan, byTable, req.Where)
		})
	default:
		return u.directUpdate(ctx, plan, req)
	}
}

// directUpdate handles the single-table case: one UPDATE with the
// caller's predicate untouched.
func (u *UpdateExecutor) directUpdate(ctx context.Context, plan Plan, req UpdateRequest) (int64, error) {
	e := plan.Entity
	byTable, err := u.assignmentsByTable(e, req.Set)
	if err != nil {
		return 0, err
	}
	t := e.PrimaryTable().Name
	return u.exec(ctx, sqlast.Update{Table: t, Assignments: byTable[t], Where: req.Where})
}

// unionUpdate updates every concrete member table. Assignments resolve
// per member: each member's full-width table owns every column.
func (u *UpdateExecutor) unionUpdate(ctx context.Context, plan Plan, req UpdateRequest) (int64, error) {
	var total int64
	for _, m := range plan.Members {
		byTable, err := u.assignmentsByTable(m, req.Set)
		if err != nil {
			return 0, err
		}
		t := m.PrimaryTable().Name
		stmt := sqlast.Update{
			Table:       t,
			Assignments: byTable[t],
			Where:       conjoin(baseRestriction(m), req.Where),
		}
		n, err := u.exec(ctx, stmt)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// stagedUpdate stages the matched keys once, then updates each owning
// table against the staged set. The staged key count is returned: the
// per-table statements all touch that same set of entities.
func (u *UpdateExecutor) stagedUpdate(ctx context.Context, plan Plan, byTable map[string][]sqlast.Assignment, where sqlast.Predicate) (int64, error) {
	e := plan.Entity
	tt := *plan.Staging

	staged, err := u.exec(ctx, populateStatement(e, tt, where))
	if err != nil {
		return 0, err
	}
	slog.Debug("staging populated", "session", u.uid, "table", tt.Name, "rows", staged)

	for _, t := range plan.Tables {
		assigns, ok := byTable[t]
		if !ok {
			continue
		}
		stmt := sqlast.Update{Table: t, Assignments: assigns, Where: stagedKeys(plan.KeyColumns[t], tt)}
		if _, err := u.exec(ctx, stmt); err != nil {
			return 0, err
		}
	}
	return staged, nil
}

// assignmentsByTable resolves requested assignments against the mapping
// and routes each to the table owning its column.
func (u *UpdateExecutor) assignmentsByTable(e *meta.Entity, set []Assignment) (map[string][]sqlast.Assignment, error) {
	byTable := make(map[string][]sqlast.Assignment)
	for _, a := range set {
		p, _ := e.Property(a.Property)
		if p == nil {
			return nil, &engine.PipelineError{
				Code:       engine.ErrCodeUnknownEntity,
				Detail:     fmt.Sprintf("no property %q mapped", a.Property),
				EntityName: e.Name,
				Property:   a.Property,
				SessionUID: u.uid,
			}
		}
		t := e.OwningTable(p)
		byTable[t] = append(byTable[t], sqlast.Assignment{
			Column:  p.Column,
			Operand: sqlast.Literal{Value: a.Value},
		})
	}
	return byTable, nil
}
