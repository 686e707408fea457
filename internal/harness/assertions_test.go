package harness

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/exec"
)

func traceFixture() []TraceStatement {
	return []TraceStatement{
		{SQL: "INSERT INTO gadgets (id, label) VALUES (?, ?)", Args: []any{int64(1), "alpha"}},
		{SQL: "UPDATE gadgets SET label = ? WHERE id = ?", Args: []any{"beta", int64(1)}},
		{SQL: "DELETE FROM gadgets WHERE id = ?", Args: []any{int64(1)}},
	}
}

func TestAssertStatementContains(t *testing.T) {
	trace := traceFixture()

	t.Run("fragment found", func(t *testing.T) {
		err := assertStatementContains(trace, Assertion{Contains: "UPDATE gadgets"})
		require.NoError(t, err)
	})

	t.Run("fragment found with exact args", func(t *testing.T) {
		err := assertStatementContains(trace, Assertion{
			Contains: "DELETE FROM gadgets",
			Args:     []any{1},
		})
		require.NoError(t, err)
	})

	t.Run("args mismatch fails", func(t *testing.T) {
		err := assertStatementContains(trace, Assertion{
			Contains: "DELETE FROM gadgets",
			Args:     []any{99},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `statement containing "DELETE FROM gadgets" with args [99]`)
	})

	t.Run("absent fragment fails with trace dump", func(t *testing.T) {
		err := assertStatementContains(trace, Assertion{Contains: "TRUNCATE"})
		require.Error(t, err)
		var ae *AssertionError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, AssertStatementContains, ae.Type)
		assert.Contains(t, err.Error(), "not found in trace")
		assert.Contains(t, err.Error(), "[1] INSERT INTO gadgets")
		assert.Contains(t, err.Error(), "[3] DELETE FROM gadgets")
	})
}

func TestAssertStatementOrder(t *testing.T) {
	trace := traceFixture()

	t.Run("in order", func(t *testing.T) {
		err := assertStatementOrder(trace, Assertion{
			Statements: []string{"INSERT INTO", "UPDATE gadgets", "DELETE FROM"},
		})
		require.NoError(t, err)
	})

	t.Run("gaps between matches allowed", func(t *testing.T) {
		err := assertStatementOrder(trace, Assertion{
			Statements: []string{"INSERT INTO", "DELETE FROM"},
		})
		require.NoError(t, err)
	})

	t.Run("missing fragment", func(t *testing.T) {
		err := assertStatementOrder(trace, Assertion{
			Statements: []string{"INSERT INTO", "VACUUM"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing statement: VACUUM")
	})

	t.Run("out of order", func(t *testing.T) {
		err := assertStatementOrder(trace, Assertion{
			Statements: []string{"DELETE FROM", "INSERT INTO"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DELETE FROM (pos 3) should be before INSERT INTO (pos 1)")
	})
}

func TestAssertStatementCount(t *testing.T) {
	trace := traceFixture()

	t.Run("total count", func(t *testing.T) {
		require.NoError(t, assertStatementCount(trace, Assertion{Count: 3}))
	})

	t.Run("count by fragment", func(t *testing.T) {
		require.NoError(t, assertStatementCount(trace, Assertion{Contains: "gadgets", Count: 3}))
		require.NoError(t, assertStatementCount(trace, Assertion{Contains: "DELETE", Count: 1}))
	})

	t.Run("mismatch reports both counts", func(t *testing.T) {
		err := assertStatementCount(trace, Assertion{Contains: "DELETE", Count: 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `2 statements containing "DELETE"`)
		assert.Contains(t, err.Error(), "1 statements")
	})
}

// stateDB opens an in-memory store with a small seeded table for the
// state-backed assertions.
func stateDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := exec.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE gadgets (
		id INTEGER PRIMARY KEY,
		label TEXT,
		active INTEGER,
		score REAL
	)`)
	require.NoError(t, err)
	for _, row := range []string{
		"INSERT INTO gadgets VALUES (1, 'alpha', 1, 2.5)",
		"INSERT INTO gadgets VALUES (2, 'beta', 0, 1.0)",
		"INSERT INTO gadgets VALUES (3, 'beta', 1, 4.0)",
	} {
		_, err = db.Exec(row)
		require.NoError(t, err)
	}
	return db
}

func TestAssertRowCount(t *testing.T) {
	db := stateDB(t)
	ctx := context.Background()

	t.Run("whole table", func(t *testing.T) {
		rows := 3
		require.NoError(t, assertRowCount(ctx, db, Assertion{Table: "gadgets", Rows: &rows}))
	})

	t.Run("filtered", func(t *testing.T) {
		rows := 2
		err := assertRowCount(ctx, db, Assertion{
			Table: "gadgets",
			Where: map[string]any{"label": "beta"},
			Rows:  &rows,
		})
		require.NoError(t, err)
	})

	t.Run("mismatch", func(t *testing.T) {
		rows := 5
		err := assertRowCount(ctx, db, Assertion{Table: "gadgets", Rows: &rows})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "5 rows in gadgets where (no conditions)")
		assert.Contains(t, err.Error(), "3 rows")
	})

	t.Run("rejects unsafe table name", func(t *testing.T) {
		rows := 0
		err := assertRowCount(ctx, db, Assertion{Table: "gadgets; DROP TABLE gadgets", Rows: &rows})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("rejects unsafe column name", func(t *testing.T) {
		rows := 0
		err := assertRowCount(ctx, db, Assertion{
			Table: "gadgets",
			Where: map[string]any{"label = '' OR 1": 1},
			Rows:  &rows,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid column name")
	})
}

func TestAssertFinalState(t *testing.T) {
	db := stateDB(t)
	ctx := context.Background()

	t.Run("subset match with driver coercions", func(t *testing.T) {
		err := assertFinalState(ctx, db, Assertion{
			Table: "gadgets",
			Where: map[string]any{"id": 1},
			Expect: map[string]any{
				"label":  "alpha",
				"active": true,
				"score":  2.5,
			},
		})
		require.NoError(t, err)
	})

	t.Run("row not found", func(t *testing.T) {
		err := assertFinalState(ctx, db, Assertion{
			Table:  "gadgets",
			Where:  map[string]any{"id": 99},
			Expect: map[string]any{"label": "x"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row not found")
	})

	t.Run("ambiguous match", func(t *testing.T) {
		err := assertFinalState(ctx, db, Assertion{
			Table:  "gadgets",
			Where:  map[string]any{"label": "beta"},
			Expect: map[string]any{"label": "beta"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple rows matched")
	})

	t.Run("unknown column", func(t *testing.T) {
		err := assertFinalState(ctx, db, Assertion{
			Table:  "gadgets",
			Where:  map[string]any{"id": 1},
			Expect: map[string]any{"weight": 10},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `column "weight" not present`)
	})

	t.Run("value mismatch reports both sides", func(t *testing.T) {
		err := assertFinalState(ctx, db, Assertion{
			Table:  "gadgets",
			Where:  map[string]any{"id": 1},
			Expect: map[string]any{"label": "omega"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `column "label" = omega`)
		assert.Contains(t, err.Error(), "alpha")
	})
}

func TestBuildWhereClause(t *testing.T) {
	t.Run("keys sorted, values bound", func(t *testing.T) {
		sqlText, args, err := buildWhereClause(map[string]any{"b": 2, "a": 1})
		require.NoError(t, err)
		assert.Equal(t, "a = ? AND b = ?", sqlText)
		assert.Equal(t, []any{1, 2}, args)
	})

	t.Run("empty filter", func(t *testing.T) {
		sqlText, args, err := buildWhereClause(nil)
		require.NoError(t, err)
		assert.Empty(t, sqlText)
		assert.Nil(t, args)
	})

	t.Run("rejects unsafe identifier", func(t *testing.T) {
		_, _, err := buildWhereClause(map[string]any{"id) OR (1=1": 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid column name")
	})
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs value", nil, int64(1), false},
		{"string vs string", "a", "a", true},
		{"string vs bytes", "a", []byte("a"), true},
		{"string mismatch", "a", "b", false},
		{"int vs int64", 5, int64(5), true},
		{"int64 vs int64", int64(5), int64(5), true},
		{"int mismatch", 5, int64(6), false},
		{"bool vs bool", true, true, true},
		{"bool vs int64 one", true, int64(1), true},
		{"bool vs int64 zero", false, int64(0), true},
		{"bool mismatch", true, int64(0), false},
		{"float equal", 2.5, 2.5, true},
		{"float vs int64", 2.0, int64(2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	trace := traceFixture()

	t.Run("aggregates failures in order", func(t *testing.T) {
		rows := 1
		failures := EvaluateAssertions([]Assertion{
			{Type: AssertStatementContains, Contains: "INSERT INTO gadgets"},
			{Type: AssertStatementCount, Count: 99},
			{Type: AssertRowCount, Table: "gadgets", Rows: &rows},
			{Type: "vibes"},
		}, trace, nil)

		require.Len(t, failures, 3)
		assert.Contains(t, failures[0], "99 statements")
		assert.Contains(t, failures[1], "row_count requires database context")
		assert.Contains(t, failures[2], `unknown assertion type "vibes"`)
	})

	t.Run("state assertions run against the store", func(t *testing.T) {
		db := stateDB(t)
		rows := 3
		failures := EvaluateAssertions([]Assertion{
			{Type: AssertRowCount, Table: "gadgets", Rows: &rows},
			{Type: AssertFinalState, Table: "gadgets", Where: map[string]any{"id": 2}, Expect: map[string]any{"active": false}},
		}, nil, &AssertionContext{DB: db, Ctx: context.Background()})
		assert.Empty(t, failures)
	})
}
