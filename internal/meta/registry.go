package meta

import (
	"fmt"
	"sort"
)

// Mapping validation error codes (M100-M199)
const (
	// Entity shape errors (M100-M109)
	ErrEntityNoName      = "M100" // entity name is required
	ErrDuplicateEntity   = "M101" // duplicate entity name
	ErrEntityNoTables    = "M102" // concrete entity needs at least one table
	ErrAbstractWithTable = "M103" // abstract entity must not map tables
	ErrBadIdentifier     = "M104" // id property/column/type incomplete
	ErrBadColumnType     = "M105" // column type outside the DDL allow-list
	ErrDuplicateTable    = "M106" // table mapped by two unrelated entities
	ErrMissingIDColumn   = "M107" // mapped table lacks the id column
	ErrIDRemapped        = "M108" // property remaps the identifier column

	// Reference errors (M110-M119)
	ErrUnknownSupertype  = "M110" // extends names an unknown entity
	ErrSupertypeCycle    = "M111" // extends chain loops
	ErrUnknownTarget     = "M112" // to-one target entity unknown
	ErrUnknownColumn     = "M113" // property column missing from owning table
	ErrUnknownTable      = "M114" // property names a table the entity does not map
	ErrBadRestriction    = "M115" // base restriction malformed
	ErrVersionConflict   = "M116" // more than one version property
	ErrBadCollection     = "M117" // collection table/column incomplete
	ErrInheritanceMixed  = "M118" // subtype declares a different inheritance style
	ErrIdentityComposite = "M119" // identity strategy requires an INTEGER id
)

// ValidColumnTypes is the DDL type allow-list for mapped columns.
var ValidColumnTypes = map[string]bool{
	"INTEGER": true,
	"TEXT":    true,
	"REAL":    true,
	"BLOB":    true,
	"NUMERIC": true,
}

// ValidationError describes one defect found while building a Registry.
type ValidationError struct {
	Entity  string `json:"entity"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Registry holds the validated write-side mappings of a model and the
// constraint order derived from its foreign-key graph. A Registry is
// immutable after construction and safe for concurrent readers.
type Registry struct {
	entities map[string]*Entity
	children map[string][]string // supertype -> direct subtypes, sorted
	fks      []ForeignKey
	order    map[string]int // table -> constraint position (parents low)
	cycles   []CycleInfo
}

// NewRegistry validates the given entities, resolves inheritance chains,
// derives the foreign-key graph, and computes the global constraint order.
// All defects are collected; the registry is only returned when the error
// slice is empty.
func NewRegistry(entities []*Entity) (*Registry, []ValidationError) {
	var errs []ValidationError

	r := &Registry{
		entities: make(map[string]*Entity, len(entities)),
		children: make(map[string][]string),
	}
	for _, e := range entities {
		normalizeEntity(e)
		if e.Name == "" {
			errs = append(errs, ValidationError{Field: "name", Message: "entity name is required", Code: ErrEntityNoName})
			continue
		}
		if _, dup := r.entities[e.Name]; dup {
			errs = append(errs, ValidationError{Entity: e.Name, Field: "name", Message: "duplicate entity name", Code: ErrDuplicateEntity})
			continue
		}
		r.entities[e.Name] = e
	}
	if len(errs) > 0 {
		return nil, errs
	}

	// Resolve extends chains before shape validation: subtypes inherit
	// tables, properties, and identifier mapping from their root.
	resolved := make(map[string]bool, len(r.entities))
	visiting := make(map[string]bool)
	for _, name := range sortedKeys(r.entities) {
		if es := r.resolveInheritance(name, resolved, visiting); len(es) > 0 {
			errs = append(errs, es...)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	for _, name := range sortedKeys(r.entities) {
		errs = append(errs, r.validateEntity(r.entities[name])...)
	}
	errs = append(errs, r.validateTableOwnership()...)
	if len(errs) > 0 {
		return nil, errs
	}

	r.fks = r.deriveForeignKeys()
	r.order, r.cycles = computeTableOrder(r.allTableNames(), r.fks)
	return r, nil
}

// resolveInheritance links the named entity into its supertype chain.
// Joined subtypes prepend the supertype's tables (write order: root first);
// union subtypes keep their own table only. Properties are prepended so
// state-snapshot slots of the supertype keep their indexes in subtypes.
func (r *Registry) resolveInheritance(name string, resolved, visiting map[string]bool) []ValidationError {
	if resolved[name] {
		return nil
	}
	if visiting[name] {
		return []ValidationError{{Entity: name, Field: "extends", Message: "inheritance chain loops back to itself", Code: ErrSupertypeCycle}}
	}
	e := r.entities[name]
	if e.Extends == "" {
		resolved[name] = true
		return nil
	}

	visiting[name] = true
	defer delete(visiting, name)

	parent, ok := r.entities[e.Extends]
	if !ok {
		return []ValidationError{{Entity: name, Field: "extends", Message: fmt.Sprintf("unknown supertype %q", e.Extends), Code: ErrUnknownSupertype}}
	}
	if errs := r.resolveInheritance(e.Extends, resolved, visiting); len(errs) > 0 {
		return errs
	}

	if e.Inheritance != InheritanceNone && e.Inheritance != parent.Inheritance {
		return []ValidationError{{Entity: name, Field: "inheritance", Message: "subtype inheritance style differs from supertype", Code: ErrInheritanceMixed}}
	}
	e.Inheritance = parent.Inheritance

	switch e.Inheritance {
	case InheritanceJoined:
		e.inheritedTables = len(parent.Tables)
		e.Tables = append(append([]Table{}, parent.Tables...), e.Tables...)
	case InheritanceUnion:
		// own full-width table only
	default:
		return []ValidationError{{Entity: name, Field: "extends", Message: "supertype does not declare an inheritance style", Code: ErrInheritanceMixed}}
	}
	// Inherited joined-hierarchy columns stay on the supertype's table;
	// without the stamp OwningTable would resolve them against the
	// subtype's primary table.
	parentProps := append([]Property{}, parent.Properties...)
	if e.Inheritance == InheritanceJoined && parent.PrimaryTable() != nil {
		for i := range parentProps {
			if parentProps[i].Table == "" {
				parentProps[i].Table = parent.PrimaryTable().Name
			}
		}
	}
	e.Properties = append(parentProps, e.Properties...)
	e.Collections = append(append([]Collection{}, parent.Collections...), e.Collections...)
	if e.IDProperty == "" {
		e.IDProperty = parent.IDProperty
	}
	if e.IDColumn == "" {
		e.IDColumn = parent.IDColumn
	}
	if e.IDType == "" {
		e.IDType = parent.IDType
	}
	if e.IDStrategy == IDAssigned {
		e.IDStrategy = parent.IDStrategy
	}
	if e.BaseRestriction == nil {
		e.BaseRestriction = parent.BaseRestriction
	}

	r.children[e.Extends] = insertSorted(r.children[e.Extends], name)
	resolved[name] = true
	return nil
}

func (r *Registry) validateEntity(e *Entity) []ValidationError {
	var errs []ValidationError
	fail := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Entity: e.Name, Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if e.Abstract {
		if own := len(e.ownTables()); own > 0 {
			fail("tables", ErrAbstractWithTable, "abstract entity maps %d table(s)", own)
		}
	} else if len(e.Tables) == 0 {
		fail("tables", ErrEntityNoTables, "concrete entity maps no tables")
	}
	if e.IDProperty == "" || e.IDColumn == "" || e.IDType == "" {
		fail("id", ErrBadIdentifier, "id_property, id_column, and id_type are all required")
	}
	if e.IDStrategy == IDIdentity && e.IDType != "INTEGER" {
		fail("id_type", ErrIdentityComposite, "identity strategy requires an INTEGER id, got %s", e.IDType)
	}

	for ti := range e.Tables {
		t := &e.Tables[ti]
		for _, c := range t.Columns {
			if !ValidColumnTypes[c.Type] {
				fail("tables."+t.Name, ErrBadColumnType, "column %s has invalid type %q", c.Name, c.Type)
			}
		}
		if e.IDColumn != "" && !t.HasColumn(e.IDColumn) {
			fail("tables."+t.Name, ErrMissingIDColumn, "table lacks id column %s", e.IDColumn)
		}
	}

	versions := 0
	for i := range e.Properties {
		p := &e.Properties[i]
		if p.Version {
			versions++
		}
		// The identifier lives on the instance, not in the state snapshot.
		// A property over the id column would write the key twice per
		// insert and shadow generated-key capture.
		if e.IDColumn != "" && p.Column == e.IDColumn {
			fail("properties."+p.Name, ErrIDRemapped,
				"column %q is the identifier column; map it with id_property only", p.Column)
			continue
		}
		if p.Kind == KindToOne {
			if _, ok := r.entities[p.Target]; !ok {
				fail("properties."+p.Name, ErrUnknownTarget, "to-one target %q is not a mapped entity", p.Target)
				continue
			}
		}
		if e.Abstract || len(e.Tables) == 0 {
			continue
		}
		owner := e.TableNamed(e.OwningTable(p))
		if owner == nil {
			fail("properties."+p.Name, ErrUnknownTable, "owning table %q is not mapped by this entity", p.Table)
			continue
		}
		if !owner.HasColumn(p.Column) {
			fail("properties."+p.Name, ErrUnknownColumn, "column %q missing from table %s", p.Column, owner.Name)
		}
	}
	if versions > 1 {
		fail("properties", ErrVersionConflict, "%d version properties declared, at most one allowed", versions)
	}

	for i := range e.Collections {
		c := &e.Collections[i]
		if c.Table == "" || c.KeyColumn == "" || c.ElementColumn == "" {
			fail("collections."+c.Name, ErrBadCollection, "table, key_column, and element_column are all required")
		}
		if c.Target != "" {
			if _, ok := r.entities[c.Target]; !ok {
				fail("collections."+c.Name, ErrUnknownTarget, "collection target %q is not a mapped entity", c.Target)
			}
		}
	}

	if br := e.BaseRestriction; br != nil && !e.Abstract && len(e.Tables) > 0 {
		if !validOps[br.Op] {
			fail("base_restriction", ErrBadRestriction, "invalid operator %q", br.Op)
		}
		if !e.PrimaryTable().HasColumn(br.Column) {
			fail("base_restriction", ErrBadRestriction, "column %q missing from table %s", br.Column, e.PrimaryTable().Name)
		}
	}
	return errs
}

var validOps = map[string]bool{"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

// validateTableOwnership rejects a table mapped by two entities outside one
// inheritance chain, and collection side tables that collide with entity
// tables.
func (r *Registry) validateTableOwnership() []ValidationError {
	var errs []ValidationError
	owner := make(map[string]string)
	for _, name := range sortedKeys(r.entities) {
		e := r.entities[name]
		for _, t := range e.ownTables() {
			if prev, taken := owner[t.Name]; taken && !r.sameHierarchy(prev, name) {
				errs = append(errs, ValidationError{Entity: name, Field: "tables." + t.Name, Message: fmt.Sprintf("table already mapped by entity %q", prev), Code: ErrDuplicateTable})
				continue
			}
			owner[t.Name] = name
		}
	}
	for _, name := range sortedKeys(r.entities) {
		e := r.entities[name]
		for i := range e.Collections {
			c := &e.Collections[i]
			if prev, taken := owner[c.Table]; taken {
				errs = append(errs, ValidationError{Entity: name, Field: "collections." + c.Name, Message: fmt.Sprintf("side table %q collides with entity table of %q", c.Table, prev), Code: ErrBadCollection})
			}
		}
	}
	return errs
}

// ownTables returns the tables the entity itself contributes, excluding any
// inherited from a joined supertype.
func (e *Entity) ownTables() []Table {
	if e.inheritedTables >= len(e.Tables) {
		return nil
	}
	return e.Tables[e.inheritedTables:]
}

func (r *Registry) sameHierarchy(a, b string) bool {
	return r.rootOf(a) == r.rootOf(b)
}

func (r *Registry) rootOf(name string) string {
	e := r.entities[name]
	for e != nil && e.Extends != "" {
		e = r.entities[e.Extends]
	}
	if e == nil {
		return name
	}
	return e.Name
}

// deriveForeignKeys builds the FK edge list from to-one properties, joined
// subtype key columns, and collection side tables.
func (r *Registry) deriveForeignKeys() []ForeignKey {
	var fks []ForeignKey
	for _, name := range sortedKeys(r.entities) {
		e := r.entities[name]
		if e.Abstract {
			continue
		}
		for i := range e.Properties {
			p := &e.Properties[i]
			if p.Kind != KindToOne {
				continue
			}
			target := r.entities[p.Target]
			refTable, refCol := r.referenceTarget(target)
			if refTable == "" {
				continue
			}
			fks = append(fks, ForeignKey{
				Table:              e.OwningTable(p),
				Column:             p.Column,
				ReferencedTable:    refTable,
				ReferencedColumn:   refCol,
				TargetIsPrimaryKey: true,
			})
		}
		if e.Inheritance == InheritanceJoined {
			for i := 1; i < len(e.Tables); i++ {
				fks = append(fks, ForeignKey{
					Table:              e.Tables[i].Name,
					Column:             e.IDColumn,
					ReferencedTable:    e.Tables[i-1].Name,
					ReferencedColumn:   e.IDColumn,
					TargetIsPrimaryKey: true,
				})
			}
		}
		for i := range e.Collections {
			c := &e.Collections[i]
			fks = append(fks, ForeignKey{
				Table:              c.Table,
				Column:             c.KeyColumn,
				ReferencedTable:    e.RootTable().Name,
				ReferencedColumn:   e.IDColumn,
				TargetIsPrimaryKey: true,
			})
			if c.Target != "" {
				if target := r.entities[c.Target]; target != nil {
					refTable, refCol := r.referenceTarget(target)
					if refTable != "" {
						fks = append(fks, ForeignKey{
							Table:              c.Table,
							Column:             c.ElementColumn,
							ReferencedTable:    refTable,
							ReferencedColumn:   refCol,
							TargetIsPrimaryKey: true,
						})
					}
				}
			}
		}
	}
	return dedupeForeignKeys(fks)
}

// referenceTarget resolves the table and column a foreign key to the given
// entity should point at. Abstract union roots have no table of their own;
// references land on the first concrete member.
func (r *Registry) referenceTarget(target *Entity) (string, string) {
	if target == nil {
		return "", ""
	}
	if !target.Abstract && len(target.Tables) > 0 {
		return target.RootTable().Name, target.IDColumn
	}
	for _, m := range r.UnionMembers(target) {
		if len(m.Tables) > 0 {
			return m.RootTable().Name, m.IDColumn
		}
	}
	return "", ""
}

func dedupeForeignKeys(fks []ForeignKey) []ForeignKey {
	seen := make(map[ForeignKey]bool, len(fks))
	out := fks[:0]
	for _, fk := range fks {
		if seen[fk] {
			continue
		}
		seen[fk] = true
		out = append(out, fk)
	}
	return out
}

// Entity returns the named entity mapping.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[NormalizeIdent(name)]
	return e, ok
}

// Entities returns all mappings sorted by name.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.entities))
	for _, name := range sortedKeys(r.entities) {
		out = append(out, r.entities[name])
	}
	return out
}

// ForeignKeys returns the derived foreign-key edges.
func (r *Registry) ForeignKeys() []ForeignKey {
	return append([]ForeignKey{}, r.fks...)
}

// Cycles returns the reference cycles found in the foreign-key graph.
// Cycles are not errors: inserts into cyclic table groups rely on
// transient-reference nullification instead of topological ordering.
func (r *Registry) Cycles() []CycleInfo {
	return append([]CycleInfo{}, r.cycles...)
}

// TablePosition returns the constraint position of a table: referenced
// (parent) tables sort before referencing (child) tables. Tables in the
// same reference cycle share a position.
func (r *Registry) TablePosition(table string) int {
	pos, ok := r.order[table]
	if !ok {
		return 0
	}
	return pos
}

// EntityPosition returns the constraint position used to order pending
// actions for the entity: the position of its most-derived table.
func (r *Registry) EntityPosition(e *Entity) int {
	pt := e.PrimaryTable()
	if pt == nil {
		return 0
	}
	return r.TablePosition(pt.Name)
}

// Descendants returns every entity extending the named one, directly or
// transitively, in a stable order.
func (r *Registry) Descendants(name string) []*Entity {
	var out []*Entity
	for _, child := range r.children[name] {
		out = append(out, r.entities[child])
		out = append(out, r.Descendants(child)...)
	}
	return out
}

// UnionMembers returns the concrete entities a union-mapped entity expands
// to: the entity itself (if concrete) followed by its concrete descendants.
func (r *Registry) UnionMembers(e *Entity) []*Entity {
	var out []*Entity
	if !e.Abstract {
		out = append(out, e)
	}
	for _, d := range r.Descendants(e.Name) {
		if !d.Abstract {
			out = append(out, d)
		}
	}
	return out
}

// ConstraintOrderedTables returns every table a mutation of the given
// entity can touch, ordered so that each table holds no foreign key into a
// later one: descendant and subtype tables first, the hierarchy root last.
// This is the delete order; inserts walk it in reverse.
func (r *Registry) ConstraintOrderedTables(e *Entity) []string {
	seen := make(map[string]bool)
	var tables []string
	add := func(ts []Table) {
		for _, t := range ts {
			if !seen[t.Name] {
				seen[t.Name] = true
				tables = append(tables, t.Name)
			}
		}
	}
	add(e.Tables)
	for _, d := range r.Descendants(e.Name) {
		add(d.Tables)
	}
	sort.SliceStable(tables, func(i, j int) bool {
		return r.TablePosition(tables[i]) > r.TablePosition(tables[j])
	})
	return tables
}

// AllTables returns the definition of every mapped table, entity tables and
// collection side tables alike, sorted by constraint position with parents
// first. Rendering DDL in this order satisfies foreign-key references.
func (r *Registry) AllTables() []Table {
	seen := make(map[string]bool)
	var out []Table
	for _, name := range sortedKeys(r.entities) {
		e := r.entities[name]
		for _, t := range e.Tables {
			if !seen[t.Name] {
				seen[t.Name] = true
				out = append(out, t)
			}
		}
		for i := range e.Collections {
			c := &e.Collections[i]
			if seen[c.Table] {
				continue
			}
			seen[c.Table] = true
			out = append(out, collectionTable(e, c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.TablePosition(out[i].Name) < r.TablePosition(out[j].Name)
	})
	return out
}

// collectionTable synthesises the side-table definition for DDL purposes.
func collectionTable(e *Entity, c *Collection) Table {
	elemType := c.ElementType
	if elemType == "" {
		elemType = "TEXT"
	}
	return Table{
		Name: c.Table,
		Columns: []Column{
			{Name: c.KeyColumn, Type: e.IDType, Nullable: false},
			{Name: c.ElementColumn, Type: elemType, Nullable: true},
		},
	}
}

func (r *Registry) allTableNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range sortedKeys(r.entities) {
		e := r.entities[name]
		for _, t := range e.Tables {
			if !seen[t.Name] {
				seen[t.Name] = true
				names = append(names, t.Name)
			}
		}
		for i := range e.Collections {
			if !seen[e.Collections[i].Table] {
				seen[e.Collections[i].Table] = true
				names = append(names, e.Collections[i].Table)
			}
		}
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	if i < len(list) && list[i] == s {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
