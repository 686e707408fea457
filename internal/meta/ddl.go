package meta

import (
	"fmt"
	"strings"
)

// CreateTableSQL renders the CREATE TABLE statement for one mapped table.
// Foreign-key clauses are emitted for every edge whose source is this
// table, so schemas created in Registry.AllTables order satisfy SQLite's
// foreign_keys pragma.
func CreateTableSQL(t *Table, fks []ForeignKey) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)

	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "    %s %s", c.Name, c.Type)
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if !c.Nullable && !c.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
	}

	// SQLite resolves foreign-key targets at DML time, so clauses may
	// reference tables created later, including cycle partners.
	for _, fk := range fks {
		if fk.Table != t.Name {
			continue
		}
		fmt.Fprintf(&b, ",\n    FOREIGN KEY (%s) REFERENCES %s (%s)",
			fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
	}

	b.WriteString("\n)")
	return b.String()
}

// SchemaSQL renders CREATE TABLE statements for every mapped table, parents
// first so the statements can run in order against an empty database.
func (r *Registry) SchemaSQL() []string {
	tables := r.AllTables()
	out := make([]string, 0, len(tables))
	for i := range tables {
		out = append(out, CreateTableSQL(&tables[i], r.fks))
	}
	return out
}
