package meta

// IDStrategy controls how an entity obtains its identifier.
type IDStrategy int

const (
	// IDAssigned means the application assigns the identifier before persist.
	IDAssigned IDStrategy = iota
	// IDIdentity means the database generates the identifier during insert.
	// Identity entities are inserted eagerly so dependent writes can observe
	// the generated key.
	IDIdentity
)

// String returns the mapping-document spelling of the strategy.
func (s IDStrategy) String() string {
	switch s {
	case IDAssigned:
		return "assigned"
	case IDIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// InheritanceStyle describes how an entity hierarchy maps onto tables.
type InheritanceStyle int

const (
	// InheritanceNone maps the entity to exactly one table.
	InheritanceNone InheritanceStyle = iota
	// InheritanceJoined maps a hierarchy to a root table plus one table per
	// subtype, joined by primary key.
	InheritanceJoined
	// InheritanceUnion maps each concrete entity to its own full-width table.
	InheritanceUnion
)

// String returns the mapping-document spelling of the style.
func (s InheritanceStyle) String() string {
	switch s {
	case InheritanceNone:
		return "none"
	case InheritanceJoined:
		return "joined"
	case InheritanceUnion:
		return "union"
	default:
		return "unknown"
	}
}

// PropertyKind distinguishes scalar columns from to-one associations.
type PropertyKind int

const (
	// KindBasic is a plain column-backed value.
	KindBasic PropertyKind = iota
	// KindToOne is a foreign-key association to another entity. The state
	// slot for a to-one property holds a reference to the target instance,
	// not the key value; the key is resolved at statement-build time.
	KindToOne
)

// Column describes one column of a mapped table.
type Column struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"` // DDL type: INTEGER, TEXT, REAL, BLOB
	Nullable   bool   `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key"`
}

// Table describes one table an entity writes to.
type Table struct {
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	return t.Column(name) != nil
}

// Property describes one persistent property of an entity. Properties are
// ordered; the index of a property is the index of its slot in a state
// snapshot.
type Property struct {
	Name     string       `yaml:"name"`
	Kind     PropertyKind `yaml:"-"`
	Column   string       `yaml:"column"`
	Table    string       `yaml:"table,omitempty"`  // owning table; "" = primary table
	Target   string       `yaml:"target,omitempty"` // target entity for to-one
	Nullable bool         `yaml:"nullable"`
	Version  bool         `yaml:"version,omitempty"` // optimistic-lock version slot
}

// Collection describes a to-many association stored in a side table keyed by
// the owner's identifier. Bulk mutations clean side tables before touching
// entity tables.
type Collection struct {
	Name          string `yaml:"name"`
	Table         string `yaml:"table"`
	KeyColumn     string `yaml:"key_column"`     // references the owner id
	ElementColumn string `yaml:"element_column"` // element value or target id
	ElementType   string `yaml:"element_type"`   // DDL type of the element column
	Target        string `yaml:"target,omitempty"`
}

// ColumnCondition is a restriction contributed by the mapping itself, such
// as a soft-delete filter. It always names a column of the entity's primary
// table. Op is a comparison operator: =, !=, <, <=, >, >=.
type ColumnCondition struct {
	Column string `yaml:"column"`
	Op     string `yaml:"op"`
	Value  any    `yaml:"value"`
}

// ForeignKey describes one foreign-key edge between mapped tables. Edges are
// derived from to-one properties, joined-subtype keys, and collection side
// tables; they drive constraint ordering.
type ForeignKey struct {
	Table            string `json:"table"`
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	// TargetIsPrimaryKey is true when the referenced column is the target
	// table's primary key. All derived edges currently target primary keys.
	TargetIsPrimaryKey bool `json:"target_is_primary_key"`
}

// Entity is the write-side mapping of one entity type.
//
// Tables holds every table the entity writes to in write (insert) order:
// root table first, most-derived subtype table last. For InheritanceUnion
// the slice holds only the entity's own table.
type Entity struct {
	Name            string           `yaml:"name"`
	Extends         string           `yaml:"extends,omitempty"` // supertype entity name
	Abstract        bool             `yaml:"abstract,omitempty"`
	Inheritance     InheritanceStyle `yaml:"-"`
	Tables          []Table          `yaml:"tables"`
	IDProperty      string           `yaml:"id_property"`
	IDColumn        string           `yaml:"id_column"`
	IDType          string           `yaml:"id_type"` // DDL type, reused by staging tables
	IDStrategy      IDStrategy       `yaml:"-"`
	Properties      []Property       `yaml:"properties"`
	Collections     []Collection     `yaml:"collections,omitempty"`
	BaseRestriction *ColumnCondition `yaml:"base_restriction,omitempty"`

	inheritedTables int // count of tables prepended from a joined supertype
}

// PrimaryTable returns the table holding the entity's own columns: the last
// table in write order (the root table for non-subtypes).
func (e *Entity) PrimaryTable() *Table {
	if len(e.Tables) == 0 {
		return nil
	}
	return &e.Tables[len(e.Tables)-1]
}

// RootTable returns the hierarchy root table: the first table in write order.
func (e *Entity) RootTable() *Table {
	if len(e.Tables) == 0 {
		return nil
	}
	return &e.Tables[0]
}

// IsSubtype reports whether the entity extends another entity.
func (e *Entity) IsSubtype() bool { return e.Extends != "" }

// Property returns the named property and its slot index, or nil.
func (e *Entity) Property(name string) (*Property, int) {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i], i
		}
	}
	return nil, -1
}

// VersionIndex returns the slot index of the version property, or -1 when
// the entity is not versioned.
func (e *Entity) VersionIndex() int {
	for i := range e.Properties {
		if e.Properties[i].Version {
			return i
		}
	}
	return -1
}

// OwningTable resolves the table a property writes to, defaulting to the
// entity's primary table.
func (e *Entity) OwningTable(p *Property) string {
	if p.Table != "" {
		return p.Table
	}
	return e.PrimaryTable().Name
}

// TableNamed returns the entity's table with the given name, or nil.
func (e *Entity) TableNamed(name string) *Table {
	for i := range e.Tables {
		if e.Tables[i].Name == name {
			return &e.Tables[i]
		}
	}
	return nil
}
