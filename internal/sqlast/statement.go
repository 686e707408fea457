package sqlast

// Statement represents one mutation statement.
//
// This is a sealed interface - only types in this package implement it.
//
// Statement types:
//   - Insert: single-row insert
//   - InsertSelect: insert from a subquery (staging population)
//   - Update: assignments plus restriction
//   - Delete: restriction only
type Statement interface {
	statementNode() // Marker method - seals interface to this package
}

// TableRef names a table with an optional alias.
type TableRef struct {
	Table string
	Alias string
}

// Qualifier returns the name other clauses should qualify columns with.
func (t TableRef) Qualifier() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Table
}

// Join is an inner join inside a Select.
type Join struct {
	Table TableRef
	On    Predicate
}

// Select is the subquery shape used by matching-id selection, IN-subquery
// restrictions, and staging-table population: select items, one source
// table, inner joins, and a restriction.
//
// Items are usually column references; staging population additionally
// selects the session uid as a parameter, e.g.
//
//	SELECT orders.id, ? FROM orders WHERE ...
type Select struct {
	Items []SelectItem
	From  TableRef
	Joins []Join
	Where Predicate // nil = unrestricted
}

// Insert is a single-row insert. Values align with Columns by index.
type Insert struct {
	Table   string
	Columns []string
	Values  []Operand
}

func (Insert) statementNode() {}

// InsertSelect inserts every row a subquery produces.
//
// Translates to SQL:
//
//	INSERT INTO staging (id, uow_uid) SELECT id, ? FROM orders WHERE ...
type InsertSelect struct {
	Table   string
	Columns []string
	Select  *Select
}

func (InsertSelect) statementNode() {}

// Assignment is one SET clause of an update.
type Assignment struct {
	Column  string
	Operand Operand
}

// Update mutates rows matching Where. A nil Where updates every row.
type Update struct {
	Table       string
	Assignments []Assignment
	Where       Predicate
}

func (Update) statementNode() {}

// Delete removes rows matching Where. A nil Where deletes every row.
type Delete struct {
	Table string
	Where Predicate
}

func (Delete) statementNode() {}
