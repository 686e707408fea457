package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/stratumdb/stratum/internal/exec"
)

// Statement is one recorded statement execution: the rendered SQL and the
// argument values that accompanied it.
type Statement struct {
	SQL  string
	Args []any
}

// RecordingExecutor implements the pipeline's executor boundary while
// recording every statement in execution order.
//
// Two modes:
//   - scripted (NewRecordingExecutor): no store behind it; mutations
//     report a configurable affected-row count and inserts hand out keys
//     1, 2, 3, ... Tests assert on the recorded statement sequence.
//   - wrapping (Wrap): statements are forwarded to a real executor after
//     recording, so integration tests get both store effects and a trace.
//
// FailOn injects failures by SQL substring in either mode, which is how
// tests exercise the fail-fast drain and cleanup paths without provoking
// the store itself.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex, matching the executor contract.
type RecordingExecutor struct {
	mu         sync.Mutex
	delegate   exec.Executor
	statements []Statement
	failOn     []failRule
	nextKey    int64
	rows       int64
}

type failRule struct {
	substr string
	err    error
}

// NewRecordingExecutor creates a scripted recorder with no store behind
// it. Mutations report 1 affected row until ReturnRows changes that.
func NewRecordingExecutor() *RecordingExecutor {
	return &RecordingExecutor{rows: 1}
}

// Wrap creates a recorder that forwards every statement to the given
// executor after recording it.
func Wrap(delegate exec.Executor) *RecordingExecutor {
	return &RecordingExecutor{delegate: delegate, rows: 1}
}

// FailOn registers an injected failure: any statement whose SQL contains
// the substring returns the given error instead of executing. Rules are
// checked in registration order.
func (r *RecordingExecutor) FailOn(substr string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn = append(r.failOn, failRule{substr: substr, err: err})
}

// ReturnRows sets the affected-row count scripted mutations report.
func (r *RecordingExecutor) ReturnRows(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = n
}

// Statements returns a copy of the recorded statements in execution order.
func (r *RecordingExecutor) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Statement, len(r.statements))
	copy(out, r.statements)
	return out
}

// SQL returns just the recorded statement texts in execution order.
func (r *RecordingExecutor) SQL() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statements))
	for i, s := range r.statements {
		out[i] = s.SQL
	}
	return out
}

// Reset drops the recorded statements, keeping failure rules and modes.
func (r *RecordingExecutor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = nil
}

// ExecMutation records the statement, then either fails by rule, forwards
// to the delegate, or reports the scripted affected-row count.
//
// Implements the exec.Executor interface.
func (r *RecordingExecutor) ExecMutation(ctx context.Context, sqlText string, args []any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	delegate, rows, err := r.record(sqlText, args)
	if err != nil {
		return 0, err
	}
	if delegate != nil {
		return delegate.ExecMutation(ctx, sqlText, args)
	}
	return rows, nil
}

// ExecInsertReturningKey records the statement, then either fails by rule,
// forwards to the delegate, or hands out the next scripted key.
//
// Implements the exec.Executor interface.
func (r *RecordingExecutor) ExecInsertReturningKey(ctx context.Context, sqlText string, args []any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	delegate, _, err := r.record(sqlText, args)
	if err != nil {
		return 0, err
	}
	if delegate != nil {
		return delegate.ExecInsertReturningKey(ctx, sqlText, args)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextKey++
	return r.nextKey, nil
}

// record appends the statement and resolves the applicable failure rule,
// returning the delegate and scripted row count under one lock window.
func (r *RecordingExecutor) record(sqlText string, args []any) (exec.Executor, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	argsCopy := make([]any, len(args))
	copy(argsCopy, args)
	r.statements = append(r.statements, Statement{SQL: sqlText, Args: argsCopy})
	for _, rule := range r.failOn {
		if strings.Contains(sqlText, rule.substr) {
			return nil, 0, rule.err
		}
	}
	return r.delegate, r.rows, nil
}
