package mutation

import (
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// sessionUIDParam is the renderer binding that carries the session uid
// into staging statements. Reserved; request bindings must not use it.
const sessionUIDParam = "session_uid"

// conjoin ANDs two optional predicates. Nil means unrestricted.
func conjoin(a, b sqlast.Predicate) sqlast.Predicate {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return sqlast.And{Predicates: []sqlast.Predicate{a, b}}
	}
}

// baseRestriction converts the mapping-contributed filter into a
// predicate against the entity's primary table, or nil.
func baseRestriction(e *meta.Entity) sqlast.Predicate {
	br := e.BaseRestriction
	if br == nil {
		return nil
	}
	return sqlast.Comparison{
		Column:  sqlast.QCol(e.PrimaryTable().Name, br.Column),
		Op:      sqlast.CompareOp(br.Op),
		Operand: sqlast.Literal{Value: br.Value},
	}
}

// matchingKeySelect builds the subquery selecting the identifiers of the
// rows the predicate matches, read from the entity's primary table.
func matchingKeySelect(e *meta.Entity, where sqlast.Predicate) *sqlast.Select {
	t := e.PrimaryTable().Name
	return &sqlast.Select{
		Items: []sqlast.SelectItem{sqlast.QCol(t, e.IDColumn)},
		From:  sqlast.TableRef{Table: t},
		Where: where,
	}
}

// populateStatement builds the staging population insert: the matched
// identifiers plus this unit of work's uid. The select reads from the
// entity's primary table and joins the other tables of its hierarchy
// slice by key, so predicates may reference any of them.
func populateStatement(e *meta.Entity, tt TempTable, where sqlast.Predicate) sqlast.InsertSelect {
	primary := e.PrimaryTable().Name
	sel := &sqlast.Select{
		Items: []sqlast.SelectItem{
			sqlast.QCol(primary, e.IDColumn),
			sqlast.Param{Name: sessionUIDParam},
		},
		From:  sqlast.TableRef{Table: primary},
		Where: conjoin(baseRestriction(e), where),
	}
	for i := range e.Tables {
		t := e.Tables[i].Name
		if t == primary {
			continue
		}
		sel.Joins = append(sel.Joins, sqlast.Join{
			Table: sqlast.TableRef{Table: t},
			On: sqlast.ColumnEquals{
				Left:  sqlast.QCol(t, e.IDColumn),
				Right: sqlast.QCol(primary, e.IDColumn),
			},
		})
	}
	return sqlast.InsertSelect{
		Table:   tt.Name,
		Columns: []string{tt.KeyColumn, tt.UIDColumn},
		Select:  sel,
	}
}

// stagingKeySelect builds the subquery reading this unit of work's staged
// keys back out of the staging table.
func stagingKeySelect(tt TempTable) *sqlast.Select {
	return &sqlast.Select{
		Items: []sqlast.SelectItem{sqlast.Col(tt.KeyColumn)},
		From:  sqlast.TableRef{Table: tt.Name},
		Where: sqlast.Comparison{
			Column:  sqlast.Col(tt.UIDColumn),
			Op:      sqlast.OpEq,
			Operand: sqlast.Param{Name: sessionUIDParam},
		},
	}
}

// stagedKeys restricts a statement to the staged key set.
func stagedKeys(keyColumn string, tt TempTable) sqlast.Predicate {
	return sqlast.InSubquery{Column: sqlast.Col(keyColumn), Select: stagingKeySelect(tt)}
}

// collectionsOf returns the side tables a delete of the entity must
// clean, including collections declared on subtypes. Deduplicated by
// table: subtypes repeat inherited collections.
func collectionsOf(reg *meta.Registry, e *meta.Entity) []meta.Collection {
	seen := make(map[string]bool)
	var out []meta.Collection
	add := func(owner *meta.Entity) {
		for _, c := range owner.Collections {
			if !seen[c.Table] {
				seen[c.Table] = true
				out = append(out, c)
			}
		}
	}
	add(e)
	for _, d := range reg.Descendants(e.Name) {
		add(d)
	}
	return out
}
