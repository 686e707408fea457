package meta

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeIdent canonicalises an identifier from a mapping document:
// surrounding whitespace is trimmed and the string is NFC normalized, so
// that visually identical entity, table, and column names compare equal
// regardless of the Unicode composition the document author typed.
func NormalizeIdent(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// normalizeEntity rewrites every identifier of an entity in place.
func normalizeEntity(e *Entity) {
	e.Name = NormalizeIdent(e.Name)
	e.Extends = NormalizeIdent(e.Extends)
	e.IDProperty = NormalizeIdent(e.IDProperty)
	e.IDColumn = NormalizeIdent(e.IDColumn)
	for i := range e.Tables {
		t := &e.Tables[i]
		t.Name = NormalizeIdent(t.Name)
		for j := range t.Columns {
			t.Columns[j].Name = NormalizeIdent(t.Columns[j].Name)
		}
	}
	for i := range e.Properties {
		p := &e.Properties[i]
		p.Name = NormalizeIdent(p.Name)
		p.Column = NormalizeIdent(p.Column)
		p.Table = NormalizeIdent(p.Table)
		p.Target = NormalizeIdent(p.Target)
	}
	for i := range e.Collections {
		c := &e.Collections[i]
		c.Name = NormalizeIdent(c.Name)
		c.Table = NormalizeIdent(c.Table)
		c.KeyColumn = NormalizeIdent(c.KeyColumn)
		c.ElementColumn = NormalizeIdent(c.ElementColumn)
		c.Target = NormalizeIdent(c.Target)
	}
	if e.BaseRestriction != nil {
		e.BaseRestriction.Column = NormalizeIdent(e.BaseRestriction.Column)
	}
}
