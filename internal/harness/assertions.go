package harness

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// validIdentifier matches the table and column names assertions are
// allowed to interpolate. Identifiers cannot be parameterized, so
// anything else is rejected before it reaches the store.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails. It carries the full
// statement trace so a failure is debuggable from the message alone.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Trace    []TraceStatement // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nStatement trace:\n")
	for i, stmt := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, stmt.SQL, stmt.Args)
	}
	return buf.String()
}

// assertStatementContains checks that some trace statement contains the
// SQL fragment. With args given, the statement's argument list must match
// exactly, element for element.
func assertStatementContains(trace []TraceStatement, assertion Assertion) error {
	for _, stmt := range trace {
		if !strings.Contains(stmt.SQL, assertion.Contains) {
			continue
		}
		if assertion.Args == nil || argsEqual(stmt.Args, assertion.Args) {
			return nil
		}
	}

	expected := fmt.Sprintf("statement containing %q", assertion.Contains)
	if assertion.Args != nil {
		expected += fmt.Sprintf(" with args %v", assertion.Args)
	}
	return &AssertionError{
		Type:     AssertStatementContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertStatementOrder checks that the fragments first appear in the
// given order. Statements between matches are allowed.
func assertStatementOrder(trace []TraceStatement, assertion Assertion) error {
	// First position of each fragment, 1-indexed for readability.
	positions := make(map[string]int)
	for i, stmt := range trace {
		for _, fragment := range assertion.Statements {
			if positions[fragment] == 0 && strings.Contains(stmt.SQL, fragment) {
				positions[fragment] = i + 1
			}
		}
	}

	for _, fragment := range assertion.Statements {
		if positions[fragment] == 0 {
			return &AssertionError{
				Type:     AssertStatementOrder,
				Expected: fmt.Sprintf("all statements present: %v", assertion.Statements),
				Actual:   fmt.Sprintf("missing statement: %s", fragment),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Statements); i++ {
		prev, curr := assertion.Statements[i-1], assertion.Statements[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertStatementOrder,
				Expected: fmt.Sprintf("statements in order: %v", assertion.Statements),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertStatementCount checks the statement count: the whole trace, or
// only statements containing the fragment when one is given.
func assertStatementCount(trace []TraceStatement, assertion Assertion) error {
	count := 0
	for _, stmt := range trace {
		if assertion.Contains == "" || strings.Contains(stmt.SQL, assertion.Contains) {
			count++
		}
	}

	if count != assertion.Count {
		expected := fmt.Sprintf("%d statements", assertion.Count)
		if assertion.Contains != "" {
			expected = fmt.Sprintf("%d statements containing %q", assertion.Count, assertion.Contains)
		}
		return &AssertionError{
			Type:     AssertStatementCount,
			Expected: expected,
			Actual:   fmt.Sprintf("%d statements", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertRowCount checks the number of rows matching the where filters.
func assertRowCount(ctx context.Context, db *sql.DB, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s",
			assertion.Table, validIdentifier.String())
	}
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	var count int
	if err := db.QueryRowContext(ctx, query, whereArgs...).Scan(&count); err != nil {
		return fmt.Errorf("row count query: %w", err)
	}
	if count != *assertion.Rows {
		return &AssertionError{
			Type: AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s",
				*assertion.Rows, assertion.Table, formatWhereClause(assertion.Where)),
			Actual: fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row matches the where filters
// and carries the expected column values. Subset semantics: only columns
// named in expect are validated.
func assertFinalState(ctx context.Context, db *sql.DB, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s",
			assertion.Table, validIdentifier.String())
	}
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := db.QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type: AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s",
				assertion.Table, formatWhereClause(assertion.Where)),
			Actual: "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Two matches make the assertion meaningless.
	if rows.Next() {
		return &AssertionError{
			Type: AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s",
				assertion.Table, formatWhereClause(assertion.Where)),
			Actual: "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("column %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("column %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE fragment from the
// assertion's column filters. Keys are sorted for determinism; values are
// always bound, never interpolated.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s",
				key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause renders the column filters for failure messages.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares an expected scenario value with a scanned
// store value, coercing across the representations the driver uses:
// integers come back as int64, booleans as 0 or 1, text sometimes as
// bytes.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case []byte:
			return exp == string(act)
		}
		return false
	case int:
		return intEqual(int64(exp), actual)
	case int64:
		return intEqual(exp, actual)
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			return exp == (act != 0)
		}
		return false
	case float64:
		act, ok := actual.(float64)
		return ok && exp == act
	}

	return reflect.DeepEqual(expected, actual)
}

// intEqual compares an expected integer with a scanned value.
func intEqual(exp int64, actual any) bool {
	switch act := actual.(type) {
	case int64:
		return exp == act
	case int:
		return exp == int64(act)
	}
	return false
}

// argsEqual reports whether a statement's argument list matches the
// asserted one exactly: same length, same values position by position.
func argsEqual(actual, expected []any) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range expected {
		if !stateValuesEqual(expected[i], actual[i]) {
			return false
		}
	}
	return true
}

// AssertionContext provides store access for state assertions.
type AssertionContext struct {
	DB  *sql.DB
	Ctx context.Context
}

// EvaluateAssertions evaluates every assertion against the trace and the
// final store state, returning one message per failed assertion.
func EvaluateAssertions(assertions []Assertion, trace []TraceStatement, actx *AssertionContext) []string {
	var failures []string
	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatementContains:
			err = assertStatementContains(trace, assertion)
		case AssertStatementOrder:
			err = assertStatementOrder(trace, assertion)
		case AssertStatementCount:
			err = assertStatementCount(trace, assertion)
		case AssertRowCount:
			if actx == nil || actx.DB == nil {
				err = fmt.Errorf("assertions[%d]: row_count requires database context", i)
			} else {
				err = assertRowCount(actx.Ctx, actx.DB, assertion)
			}
		case AssertFinalState:
			if actx == nil || actx.DB == nil {
				err = fmt.Errorf("assertions[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.DB, assertion)
			}
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}
