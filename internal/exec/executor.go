package exec

import (
	"context"
	"database/sql"
	"log/slog"
)

// Executor executes single compiled mutation statements.
//
// Implementations must be safe for sequential use by one unit of work; they
// are not required to tolerate concurrent calls. Both methods honor context
// cancellation between statements.
type Executor interface {
	// ExecMutation executes an insert/update/delete and returns the
	// affected-row count.
	ExecMutation(ctx context.Context, sqlText string, args []any) (int64, error)

	// ExecInsertReturningKey executes an insert against a table with a
	// database-generated integer key and returns the generated key.
	ExecInsertReturningKey(ctx context.Context, sqlText string, args []any) (int64, error)
}

// Querier is the subset of database/sql both *sql.DB and *sql.Tx satisfy.
// The pipeline never opens transactions itself; callers choose the
// transactional scope by handing in a DB or Tx.
type Querier interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SQLExecutor is the database/sql-backed Executor.
type SQLExecutor struct {
	q Querier
}

// NewSQLExecutor wraps a *sql.DB or *sql.Tx.
func NewSQLExecutor(q Querier) *SQLExecutor {
	return &SQLExecutor{q: q}
}

// ExecMutation prepares and executes one statement, returning the
// affected-row count. Errors are classified into StatementError.
func (e *SQLExecutor) ExecMutation(ctx context.Context, sqlText string, args []any) (int64, error) {
	res, err := e.exec(ctx, sqlText, args)
	if err != nil {
		return 0, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStatementError(sqlText, err)
	}

	slog.Debug("statement executed",
		slog.String("sql", sqlText),
		slog.Int("arg_count", len(args)),
		slog.Int64("rows", rows))
	return rows, nil
}

// ExecInsertReturningKey executes an insert and returns the key the
// database generated for the new row.
func (e *SQLExecutor) ExecInsertReturningKey(ctx context.Context, sqlText string, args []any) (int64, error) {
	res, err := e.exec(ctx, sqlText, args)
	if err != nil {
		return 0, err
	}

	key, err := res.LastInsertId()
	if err != nil {
		return 0, wrapStatementError(sqlText, err)
	}

	slog.Debug("insert executed",
		slog.String("sql", sqlText),
		slog.Int64("generated_key", key))
	return key, nil
}

func (e *SQLExecutor) exec(ctx context.Context, sqlText string, args []any) (sql.Result, error) {
	stmt, err := e.q.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, wrapStatementError(sqlText, err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, wrapStatementError(sqlText, err)
	}
	return res, nil
}
