package mutation

import (
	"context"
	"log/slog"

	"github.com/stratumdb/stratum/internal/engine"
	"github.com/stratumdb/stratum/internal/exec"
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
	"github.com/stratumdb/stratum/internal/sqlgen"
)

// core carries what both bulk executors share: the mapping registry, the
// statement boundary, the session uid staging rows are tagged with, and
// the after-use policy.
//
// An executor serves one unit of work and issues statements strictly
// sequentially, like every other user of the executor boundary.
type core struct {
	reg      *meta.Registry
	ex       exec.Executor
	ren      *sqlgen.Renderer
	uid      string
	afterUse AfterUseAction
}

// Option configures a bulk executor.
type Option func(*core)

// WithAfterUse overrides the staging after-use action. The default,
// AfterUseClean, removes this unit of work's rows and leaves the table
// for other sessions.
func WithAfterUse(a AfterUseAction) Option {
	return func(c *core) { c.afterUse = a }
}

func newCore(reg *meta.Registry, ex exec.Executor, sessionUID string, opts []Option) core {
	c := core{
		reg:      reg,
		ex:       ex,
		ren:      sqlgen.NewRenderer(),
		uid:      sessionUID,
		afterUse: AfterUseClean,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// resolve looks up the target mapping, plans the mutation, and installs
// the request's parameter bindings. The session uid binding is installed
// last so a request cannot shadow it.
func (c *core) resolve(name string, where sqlast.Predicate, bindings map[string]any) (Plan, error) {
	e, ok := c.reg.Entity(name)
	if !ok {
		return Plan{}, engine.NewUnknownEntityError(c.uid, name)
	}
	plan, err := PlanFor(c.reg, e, where)
	if err != nil {
		return Plan{}, engine.NewStagingConfigError(c.uid, err.Error())
	}
	for k, v := range bindings {
		c.ren.Bind(k, v)
	}
	c.ren.Bind(sessionUIDParam, c.uid)
	return plan, nil
}

// exec renders and executes one mutation statement, returning the
// affected-row count.
func (c *core) exec(ctx context.Context, stmt sqlast.Statement) (int64, error) {
	sqlText, args, err := c.ren.RenderStatement(stmt)
	if err != nil {
		return 0, err
	}
	n, err := c.ex.ExecMutation(ctx, sqlText, args)
	if err != nil {
		return 0, engine.FromStatementError(c.uid, err)
	}
	return n, nil
}

// execRaw sends pre-rendered DDL. Staging create and drop are the only
// statements that bypass the sqlast renderer; neither carries values.
func (c *core) execRaw(ctx context.Context, sqlText string) error {
	if _, err := c.ex.ExecMutation(ctx, sqlText, nil); err != nil {
		return engine.FromStatementError(c.uid, err)
	}
	return nil
}

// withStaging wraps a mutation sequence in the staging lifecycle: the
// idempotent before-use create, the sequence itself, and the after-use
// action. The after-use action always runs. Its own failure surfaces as a
// CLEANUP_FAILURE only when the sequence succeeded - the returned count
// stays valid in that case - and is logged otherwise so it never masks
// the primary error.
func (c *core) withStaging(ctx context.Context, tt TempTable, body func(context.Context) (int64, error)) (int64, error) {
	if err := c.execRaw(ctx, tt.CreateSQL()); err != nil {
		return 0, err
	}

	count, err := body(ctx)

	if cleanupErr := c.runAfterUse(ctx, tt); cleanupErr != nil {
		if err != nil {
			slog.Warn("staging after-use action failed",
				"session", c.uid, "table", tt.Name,
				"action", c.afterUse.String(), "error", cleanupErr)
		} else {
			err = engine.NewCleanupFailureError(c.uid, cleanupErr)
		}
	}
	return count, err
}

// runAfterUse executes the configured after-use action on a context that
// survives cancellation of the caller's: staged rows must not leak when a
// sequence is cancelled midway.
func (c *core) runAfterUse(ctx context.Context, tt TempTable) error {
	ctx = context.WithoutCancel(ctx)
	switch c.afterUse {
	case AfterUseDrop:
		return c.execRaw(ctx, tt.DropSQL())
	case AfterUseNone:
		return nil
	default:
		stmt := sqlast.Delete{
			Table: tt.Name,
			Where: sqlast.Comparison{
				Column:  sqlast.Col(tt.UIDColumn),
				Op:      sqlast.OpEq,
				Operand: sqlast.Param{Name: sessionUIDParam},
			},
		}
		_, err := c.exec(ctx, stmt)
		return err
	}
}
