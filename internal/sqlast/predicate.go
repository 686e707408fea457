package sqlast

// Predicate represents a filter condition over mapped tables.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Comparison: column <op> operand
//   - ColumnEquals: column = column (join conditions)
//   - And, Or: conjunction / disjunction
//   - IsNull: column IS [NOT] NULL
//   - InSubquery: column IN (select ...)
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Operand is a value position inside a predicate or statement.
//
// This is a sealed interface - only types in this package implement it.
// Both operand types render as placeholders; the difference is where the
// argument value comes from.
type Operand interface {
	operandNode() // Marker method - seals interface to this package
}

// SelectItem is one entry of a Select item list: a column reference or an
// operand placeholder.
//
// This is a sealed interface - only types in this package implement it.
type SelectItem interface {
	selectItemNode() // Marker method - seals interface to this package
}

// ColumnRef names a column, optionally qualified by table or alias.
// An empty Table means the column belongs to the statement's target table.
type ColumnRef struct {
	Table string // qualifier; "" = statement target
	Name  string
}

func (ColumnRef) selectItemNode() {}

// Col is shorthand for an unqualified column reference.
func Col(name string) ColumnRef { return ColumnRef{Name: name} }

// QCol is shorthand for a qualified column reference.
func QCol(table, name string) ColumnRef { return ColumnRef{Table: table, Name: name} }

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// ValidCompareOps defines the accepted operator spellings.
var ValidCompareOps = map[CompareOp]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
}

// Literal carries an inline value.
//
// Semantics:
//
//	<column> <op> ?    -- value appended to the argument list
//
// The value itself never appears in SQL text.
type Literal struct {
	Value any
}

func (Literal) operandNode() {}

func (Literal) selectItemNode() {}

// Param references a named binding resolved at render time from the
// renderer's binding map. Unresolved names are render errors.
type Param struct {
	Name string
}

func (Param) operandNode() {}

func (Param) selectItemNode() {}

// Comparison represents a column-against-value comparison.
//
// Semantics:
//
//	<column> <op> <operand>
//
// Translates to SQL:
//
//	status = ?
type Comparison struct {
	Column  ColumnRef
	Op      CompareOp
	Operand Operand
}

func (Comparison) predicateNode() {}

// ColumnEquals represents a column-against-column equality, used for join
// conditions between tables of one hierarchy.
//
// Translates to SQL:
//
//	billing.id = invoices.id
type ColumnEquals struct {
	Left  ColumnRef
	Right ColumnRef
}

func (ColumnEquals) predicateNode() {}

// And represents a conjunction. An empty Predicates slice is always true
// and renders as no condition.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction. Rendered parenthesized so nesting under And
// keeps its meaning.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// IsNull represents a null test.
//
// Translates to SQL:
//
//	shipped_at IS NULL      -- Negated false
//	shipped_at IS NOT NULL  -- Negated true
type IsNull struct {
	Column  ColumnRef
	Negated bool
}

func (IsNull) predicateNode() {}

// InSubquery represents a membership test against a subquery, the shape
// every cross-table mutation statement is built from.
//
// Translates to SQL:
//
//	id IN (SELECT id FROM orders WHERE ...)
type InSubquery struct {
	Column ColumnRef
	Select *Select
}

func (InSubquery) predicateNode() {}

// WalkColumns visits every column reference in a predicate tree, including
// those inside subqueries. The staging decision uses this to find
// references outside the root table.
func WalkColumns(p Predicate, fn func(ColumnRef)) {
	switch pred := p.(type) {
	case nil:
	case Comparison:
		fn(pred.Column)
	case *Comparison:
		fn(pred.Column)
	case ColumnEquals:
		fn(pred.Left)
		fn(pred.Right)
	case *ColumnEquals:
		fn(pred.Left)
		fn(pred.Right)
	case And:
		for _, sub := range pred.Predicates {
			WalkColumns(sub, fn)
		}
	case *And:
		for _, sub := range pred.Predicates {
			WalkColumns(sub, fn)
		}
	case Or:
		for _, sub := range pred.Predicates {
			WalkColumns(sub, fn)
		}
	case *Or:
		for _, sub := range pred.Predicates {
			WalkColumns(sub, fn)
		}
	case IsNull:
		fn(pred.Column)
	case *IsNull:
		fn(pred.Column)
	case InSubquery:
		fn(pred.Column)
		walkSelectColumns(pred.Select, fn)
	case *InSubquery:
		fn(pred.Column)
		walkSelectColumns(pred.Select, fn)
	}
}

func walkSelectColumns(s *Select, fn func(ColumnRef)) {
	if s == nil {
		return
	}
	for _, item := range s.Items {
		if c, ok := item.(ColumnRef); ok {
			fn(c)
		}
	}
	for _, j := range s.Joins {
		WalkColumns(j.On, fn)
	}
	WalkColumns(s.Where, fn)
}
