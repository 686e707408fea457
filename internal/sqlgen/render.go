// Package sqlgen renders sqlast trees to parameterized SQL.
//
// CRITICAL: values are NEVER interpolated into statement text. Every
// Literal and Param renders as a ? placeholder and contributes one entry
// to the returned argument list, in placeholder order.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/stratumdb/stratum/internal/sqlast"
)

// Renderer renders statements and predicates for the SQLite dialect.
//
// Bindings resolves sqlast.Param references at render time. A Param whose
// name has no binding is a render error: placeholder and argument counts
// must always match, so a missing value can never be deferred.
type Renderer struct {
	Bindings map[string]any
}

// NewRenderer creates a Renderer with an empty binding set.
func NewRenderer() *Renderer {
	return &Renderer{Bindings: make(map[string]any)}
}

// Bind registers a named parameter value.
func (r *Renderer) Bind(name string, value any) {
	if r.Bindings == nil {
		r.Bindings = make(map[string]any)
	}
	r.Bindings[name] = value
}

// RenderStatement renders one mutation statement.
// Returns (sql, args, error).
func (r *Renderer) RenderStatement(s sqlast.Statement) (string, []any, error) {
	if s == nil {
		return "", nil, fmt.Errorf("cannot render nil statement")
	}

	switch stmt := s.(type) {
	case sqlast.Insert:
		return r.renderInsert(stmt)
	case *sqlast.Insert:
		return r.renderInsert(*stmt)
	case sqlast.InsertSelect:
		return r.renderInsertSelect(stmt)
	case *sqlast.InsertSelect:
		return r.renderInsertSelect(*stmt)
	case sqlast.Update:
		return r.renderUpdate(stmt)
	case *sqlast.Update:
		return r.renderUpdate(*stmt)
	case sqlast.Delete:
		return r.renderDelete(stmt)
	case *sqlast.Delete:
		return r.renderDelete(*stmt)
	default:
		return "", nil, fmt.Errorf("unsupported statement type: %T", s)
	}
}

func (r *Renderer) renderInsert(stmt sqlast.Insert) (string, []any, error) {
	if len(stmt.Columns) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no columns", stmt.Table)
	}
	if len(stmt.Columns) != len(stmt.Values) {
		return "", nil, fmt.Errorf("insert into %s: %d columns but %d values",
			stmt.Table, len(stmt.Columns), len(stmt.Values))
	}

	placeholders := make([]string, 0, len(stmt.Values))
	var args []any
	for i, v := range stmt.Values {
		sql, vargs, err := r.renderOperand(v)
		if err != nil {
			return "", nil, fmt.Errorf("insert into %s: value %d: %w", stmt.Table, i, err)
		}
		placeholders = append(placeholders, sql)
		args = append(args, vargs...)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		stmt.Table,
		strings.Join(stmt.Columns, ", "),
		strings.Join(placeholders, ", "))
	return sql, args, nil
}

func (r *Renderer) renderInsertSelect(stmt sqlast.InsertSelect) (string, []any, error) {
	if len(stmt.Columns) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no columns", stmt.Table)
	}
	selectSQL, args, err := r.RenderSelect(stmt.Select)
	if err != nil {
		return "", nil, fmt.Errorf("insert into %s: %w", stmt.Table, err)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) %s",
		stmt.Table,
		strings.Join(stmt.Columns, ", "),
		selectSQL)
	return sql, args, nil
}

func (r *Renderer) renderUpdate(stmt sqlast.Update) (string, []any, error) {
	if len(stmt.Assignments) == 0 {
		return "", nil, fmt.Errorf("update %s: no assignments", stmt.Table)
	}

	setParts := make([]string, 0, len(stmt.Assignments))
	var args []any
	for _, a := range stmt.Assignments {
		sql, aargs, err := r.renderOperand(a.Operand)
		if err != nil {
			return "", nil, fmt.Errorf("update %s: set %s: %w", stmt.Table, a.Column, err)
		}
		setParts = append(setParts, fmt.Sprintf("%s = %s", a.Column, sql))
		args = append(args, aargs...)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", stmt.Table, strings.Join(setParts, ", "))
	whereSQL, whereArgs, err := r.renderWhere(stmt.Where)
	if err != nil {
		return "", nil, fmt.Errorf("update %s: %w", stmt.Table, err)
	}
	return sql + whereSQL, append(args, whereArgs...), nil
}

func (r *Renderer) renderDelete(stmt sqlast.Delete) (string, []any, error) {
	sql := fmt.Sprintf("DELETE FROM %s", stmt.Table)
	whereSQL, whereArgs, err := r.renderWhere(stmt.Where)
	if err != nil {
		return "", nil, fmt.Errorf("delete from %s: %w", stmt.Table, err)
	}
	return sql + whereSQL, whereArgs, nil
}

// renderWhere renders a trailing WHERE clause; a nil predicate renders
// nothing, keeping unrestricted statements unrestricted in SQL too.
func (r *Renderer) renderWhere(p sqlast.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, args, err := r.RenderPredicate(p)
	if err != nil {
		return "", nil, err
	}
	if sql == "" {
		return "", nil, nil
	}
	return " WHERE " + sql, args, nil
}

// RenderSelect renders a subquery spec. Arguments are collected in
// placeholder order: select items, then join conditions, then the
// restriction.
func (r *Renderer) RenderSelect(s *sqlast.Select) (string, []any, error) {
	if s == nil {
		return "", nil, fmt.Errorf("cannot render nil select")
	}
	if len(s.Items) == 0 {
		return "", nil, fmt.Errorf("select from %s: no items", s.From.Table)
	}

	items := make([]string, 0, len(s.Items))
	var args []any
	for i, item := range s.Items {
		sql, iargs, err := r.renderSelectItem(item)
		if err != nil {
			return "", nil, fmt.Errorf("select from %s: item %d: %w", s.From.Table, i, err)
		}
		items = append(items, sql)
		args = append(args, iargs...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(items, ", "), renderTableRef(s.From))

	for _, j := range s.Joins {
		onSQL, onArgs, err := r.RenderPredicate(j.On)
		if err != nil {
			return "", nil, fmt.Errorf("join %s: %w", j.Table.Table, err)
		}
		fmt.Fprintf(&b, " JOIN %s ON %s", renderTableRef(j.Table), onSQL)
		args = append(args, onArgs...)
	}

	whereSQL, whereArgs, err := r.renderWhere(s.Where)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(whereSQL)
	return b.String(), append(args, whereArgs...), nil
}

func (r *Renderer) renderSelectItem(item sqlast.SelectItem) (string, []any, error) {
	switch it := item.(type) {
	case sqlast.ColumnRef:
		return renderColumn(it), nil, nil
	case *sqlast.ColumnRef:
		return renderColumn(*it), nil, nil
	case sqlast.Literal:
		return "?", []any{it.Value}, nil
	case *sqlast.Literal:
		return "?", []any{it.Value}, nil
	case sqlast.Param:
		return r.renderParam(it)
	case *sqlast.Param:
		return r.renderParam(*it)
	case nil:
		return "", nil, fmt.Errorf("nil select item")
	default:
		return "", nil, fmt.Errorf("unsupported select item type: %T", item)
	}
}

// RenderPredicate renders a predicate tree to a WHERE-clause fragment.
// An empty And renders as the empty string.
func (r *Renderer) RenderPredicate(p sqlast.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}

	switch pred := p.(type) {
	case sqlast.Comparison:
		return r.renderComparison(pred)
	case *sqlast.Comparison:
		return r.renderComparison(*pred)
	case sqlast.ColumnEquals:
		return fmt.Sprintf("%s = %s", renderColumn(pred.Left), renderColumn(pred.Right)), nil, nil
	case *sqlast.ColumnEquals:
		return fmt.Sprintf("%s = %s", renderColumn(pred.Left), renderColumn(pred.Right)), nil, nil
	case sqlast.And:
		return r.renderJunction(pred.Predicates, " AND ", false)
	case *sqlast.And:
		return r.renderJunction(pred.Predicates, " AND ", false)
	case sqlast.Or:
		return r.renderJunction(pred.Predicates, " OR ", true)
	case *sqlast.Or:
		return r.renderJunction(pred.Predicates, " OR ", true)
	case sqlast.IsNull:
		return renderIsNull(pred), nil, nil
	case *sqlast.IsNull:
		return renderIsNull(*pred), nil, nil
	case sqlast.InSubquery:
		return r.renderInSubquery(pred)
	case *sqlast.InSubquery:
		return r.renderInSubquery(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (r *Renderer) renderComparison(c sqlast.Comparison) (string, []any, error) {
	if !sqlast.ValidCompareOps[c.Op] {
		return "", nil, fmt.Errorf("invalid comparison operator %q", string(c.Op))
	}
	opSQL, args, err := r.renderOperand(c.Operand)
	if err != nil {
		return "", nil, fmt.Errorf("comparison on %s: %w", c.Column.Name, err)
	}
	return fmt.Sprintf("%s %s %s", renderColumn(c.Column), c.Op, opSQL), args, nil
}

func (r *Renderer) renderJunction(preds []sqlast.Predicate, sep string, parens bool) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}

	var parts []string
	var args []any
	for _, p := range preds {
		sql, pargs, err := r.RenderPredicate(p)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			continue
		}
		parts = append(parts, sql)
		args = append(args, pargs...)
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	sql := strings.Join(parts, sep)
	if parens && len(parts) > 1 {
		sql = "(" + sql + ")"
	}
	return sql, args, nil
}

func (r *Renderer) renderInSubquery(in sqlast.InSubquery) (string, []any, error) {
	selectSQL, args, err := r.RenderSelect(in.Select)
	if err != nil {
		return "", nil, fmt.Errorf("in-subquery on %s: %w", in.Column.Name, err)
	}
	return fmt.Sprintf("%s IN (%s)", renderColumn(in.Column), selectSQL), args, nil
}

// renderOperand renders a value position as a placeholder plus argument.
func (r *Renderer) renderOperand(o sqlast.Operand) (string, []any, error) {
	switch op := o.(type) {
	case sqlast.Literal:
		return "?", []any{op.Value}, nil
	case *sqlast.Literal:
		return "?", []any{op.Value}, nil
	case sqlast.Param:
		return r.renderParam(op)
	case *sqlast.Param:
		return r.renderParam(*op)
	case nil:
		return "", nil, fmt.Errorf("nil operand")
	default:
		return "", nil, fmt.Errorf("unsupported operand type: %T", o)
	}
}

func (r *Renderer) renderParam(p sqlast.Param) (string, []any, error) {
	val, ok := r.Bindings[p.Name]
	if !ok {
		return "", nil, fmt.Errorf("unresolved parameter %q", p.Name)
	}
	return "?", []any{val}, nil
}

func renderColumn(c sqlast.ColumnRef) string {
	if c.Table != "" {
		return c.Table + "." + c.Name
	}
	return c.Name
}

func renderTableRef(t sqlast.TableRef) string {
	if t.Alias != "" {
		return t.Table + " AS " + t.Alias
	}
	return t.Table
}

func renderIsNull(n sqlast.IsNull) string {
	if n.Negated {
		return renderColumn(n.Column) + " IS NOT NULL"
	}
	return renderColumn(n.Column) + " IS NULL"
}
