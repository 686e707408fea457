package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingExecutor_RecordsInOrder(t *testing.T) {
	rec := NewRecordingExecutor()
	ctx := context.Background()

	_, err := rec.ExecMutation(ctx, "INSERT INTO a (x) VALUES (?)", []any{1})
	require.NoError(t, err)
	_, err = rec.ExecMutation(ctx, "DELETE FROM a WHERE x = ?", []any{1})
	require.NoError(t, err)

	stmts := rec.Statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, "INSERT INTO a (x) VALUES (?)", stmts[0].SQL)
	assert.Equal(t, []any{1}, stmts[0].Args)
	assert.Equal(t, []string{
		"INSERT INTO a (x) VALUES (?)",
		"DELETE FROM a WHERE x = ?",
	}, rec.SQL())
}

func TestRecordingExecutor_ScriptedRowsAndKeys(t *testing.T) {
	rec := NewRecordingExecutor()
	ctx := context.Background()

	n, err := rec.ExecMutation(ctx, "UPDATE t SET a = ?", []any{1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec.ReturnRows(3)
	n, err = rec.ExecMutation(ctx, "UPDATE t SET a = ?", []any{2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Keys hand out 1, 2, 3, ...
	k1, err := rec.ExecInsertReturningKey(ctx, "INSERT INTO t (a) VALUES (?)", []any{1})
	require.NoError(t, err)
	k2, err := rec.ExecInsertReturningKey(ctx, "INSERT INTO t (a) VALUES (?)", []any{2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), k1)
	assert.Equal(t, int64(2), k2)
}

func TestRecordingExecutor_FailOnSubstring(t *testing.T) {
	rec := NewRecordingExecutor()
	boom := errors.New("boom")
	rec.FailOn("orders", boom)
	ctx := context.Background()

	_, err := rec.ExecMutation(ctx, "DELETE FROM customers WHERE id = ?", []any{1})
	require.NoError(t, err)

	_, err = rec.ExecMutation(ctx, "DELETE FROM orders WHERE id = ?", []any{1})
	assert.ErrorIs(t, err, boom)

	// Failing statements are still recorded.
	assert.Len(t, rec.Statements(), 2)
}

func TestRecordingExecutor_HonorsCancellation(t *testing.T) {
	rec := NewRecordingExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.ExecMutation(ctx, "DELETE FROM t", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Statements())
}

func TestRecordingExecutor_ArgsAreCopied(t *testing.T) {
	rec := NewRecordingExecutor()
	ctx := context.Background()

	args := []any{"a"}
	_, err := rec.ExecMutation(ctx, "INSERT INTO t (x) VALUES (?)", args)
	require.NoError(t, err)
	args[0] = "mutated"

	assert.Equal(t, []any{"a"}, rec.Statements()[0].Args)
}

func TestRecordingExecutor_Reset(t *testing.T) {
	rec := NewRecordingExecutor()
	ctx := context.Background()

	_, err := rec.ExecMutation(ctx, "DELETE FROM t", nil)
	require.NoError(t, err)
	rec.Reset()
	assert.Empty(t, rec.Statements())
}
