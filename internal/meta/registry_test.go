package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// customerEntity is a plain single-table entity with an assigned id.
func customerEntity() *Entity {
	return &Entity{
		Name:       "Customer",
		IDProperty: "id",
		IDColumn:   "id",
		IDType:     "INTEGER",
		IDStrategy: IDAssigned,
		Tables: []Table{{
			Name: "customers",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "name", Type: "TEXT", Nullable: true},
			},
		}},
		Properties: []Property{
			{Name: "name", Column: "name", Nullable: true},
		},
	}
}

// orderEntity references Customer and owns a collection side table.
func orderEntity() *Entity {
	return &Entity{
		Name:       "Order",
		IDProperty: "id",
		IDColumn:   "id",
		IDType:     "INTEGER",
		IDStrategy: IDIdentity,
		Tables: []Table{{
			Name: "orders",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "customer_id", Type: "INTEGER", Nullable: true},
				{Name: "version", Type: "INTEGER"},
			},
		}},
		Properties: []Property{
			{Name: "customer", Column: "customer_id", Kind: KindToOne, Target: "Customer", Nullable: true},
			{Name: "version", Column: "version", Version: true},
		},
		Collections: []Collection{{
			Name:          "lines",
			Table:         "order_lines",
			KeyColumn:     "order_id",
			ElementColumn: "sku",
			ElementType:   "TEXT",
		}},
	}
}

// billingRoot and invoiceSubtype form a joined hierarchy.
func billingRoot() *Entity {
	return &Entity{
		Name:        "Billing",
		Inheritance: InheritanceJoined,
		IDProperty:  "id",
		IDColumn:    "id",
		IDType:      "INTEGER",
		IDStrategy:  IDAssigned,
		Tables: []Table{{
			Name: "billing",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "amount", Type: "INTEGER"},
			},
		}},
		Properties: []Property{
			{Name: "amount", Column: "amount", Table: "billing"},
		},
	}
}

func invoiceSubtype() *Entity {
	return &Entity{
		Name:    "Invoice",
		Extends: "Billing",
		Tables: []Table{{
			Name: "invoices",
			Columns: []Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "due_date", Type: "TEXT", Nullable: true},
			},
		}},
		Properties: []Property{
			{Name: "dueDate", Column: "due_date", Table: "invoices", Nullable: true},
		},
	}
}

func TestNewRegistry_Valid(t *testing.T) {
	reg, errs := NewRegistry([]*Entity{customerEntity(), orderEntity()})
	require.Empty(t, errs)
	require.NotNil(t, reg)

	order, ok := reg.Entity("Order")
	require.True(t, ok)
	assert.Equal(t, "orders", order.PrimaryTable().Name)
	assert.Equal(t, 1, order.VersionIndex())
}

func TestNewRegistry_IdentifierRemapped(t *testing.T) {
	e := customerEntity()
	e.Properties = append(e.Properties, Property{Name: "key", Column: "id"})
	reg, errs := NewRegistry([]*Entity{e})
	assert.Nil(t, reg)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrIDRemapped, errs[0].Code)
}

func TestNewRegistry_UnknownTarget(t *testing.T) {
	reg, errs := NewRegistry([]*Entity{orderEntity()})
	assert.Nil(t, reg)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownTarget, errs[0].Code)
}

func TestNewRegistry_DuplicateEntity(t *testing.T) {
	reg, errs := NewRegistry([]*Entity{customerEntity(), customerEntity()})
	assert.Nil(t, reg)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateEntity, errs[0].Code)
}

func TestNewRegistry_MissingIDColumn(t *testing.T) {
	e := customerEntity()
	e.Tables[0].Columns = e.Tables[0].Columns[1:] // drop id
	reg, errs := NewRegistry([]*Entity{e})
	assert.Nil(t, reg)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrMissingIDColumn, errs[0].Code)
}

func TestNewRegistry_IdentityRequiresInteger(t *testing.T) {
	e := customerEntity()
	e.IDStrategy = IDIdentity
	e.IDType = "TEXT"
	e.Tables[0].Columns[0].Type = "TEXT"
	reg, errs := NewRegistry([]*Entity{e})
	assert.Nil(t, reg)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrIdentityComposite, errs[0].Code)
}

func TestNewRegistry_JoinedInheritance(t *testing.T) {
	reg, errs := NewRegistry([]*Entity{billingRoot(), invoiceSubtype()})
	require.Empty(t, errs)

	inv, ok := reg.Entity("Invoice")
	require.True(t, ok)

	// write order: root table first, own table last
	require.Len(t, inv.Tables, 2)
	assert.Equal(t, "billing", inv.Tables[0].Name)
	assert.Equal(t, "invoices", inv.Tables[1].Name)
	assert.Equal(t, "invoices", inv.PrimaryTable().Name)
	assert.Equal(t, InheritanceJoined, inv.Inheritance)

	// inherited properties keep their slots ahead of own properties
	amount, amountSlot := inv.Property("amount")
	_, dueSlot := inv.Property("dueDate")
	assert.Equal(t, 0, amountSlot)
	assert.Equal(t, 1, dueSlot)
	assert.Equal(t, "billing", inv.OwningTable(amount),
		"inherited columns stay on the supertype's table")

	// id mapping inherited from the root
	assert.Equal(t, "id", inv.IDColumn)
	assert.Equal(t, "INTEGER", inv.IDType)
}

func TestNewRegistry_SupertypeCycle(t *testing.T) {
	a := billingRoot()
	a.Extends = "Invoice"
	reg, errs := NewRegistry([]*Entity{a, invoiceSubtype()})
	assert.Nil(t, reg)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSupertypeCycle, errs[0].Code)
}

func TestRegistry_EntityPosition_ParentBeforeChild(t *testing.T) {
	reg, errs := NewRegistry([]*Entity{customerEntity(), orderEntity()})
	require.Empty(t, errs)

	customer, _ := reg.Entity("Customer")
	order, _ := reg.Entity("Order")
	assert.Less(t, reg.EntityPosition(customer), reg.EntityPosition(order),
		"referenced entity must sort before referencing entity")
}

func TestRegistry_ConstraintOrderedTables_RootLast(t *testing.T) {
	reg, errs := NewRegistry([]*Entity{billingRoot(), invoiceSubtype()})
	require.Empty(t, errs)

	root, _ := reg.Entity("Billing")
	tables := reg.ConstraintOrderedTables(root)
	require.Equal(t, []string{"invoices", "billing"}, tables,
		"subtype tables first, hierarchy root last")
}

func TestRegistry_ForeignKeys(t *testing.T) {
	reg, errs := NewRegistry([]*Entity{customerEntity(), orderEntity()})
	require.Empty(t, errs)

	fks := reg.ForeignKeys()
	assert.Contains(t, fks, ForeignKey{
		Table: "orders", Column: "customer_id",
		ReferencedTable: "customers", ReferencedColumn: "id",
		TargetIsPrimaryKey: true,
	})
	assert.Contains(t, fks, ForeignKey{
		Table: "order_lines", Column: "order_id",
		ReferencedTable: "orders", ReferencedColumn: "id",
		TargetIsPrimaryKey: true,
	})
}

func TestRegistry_ReferenceCycleShared(t *testing.T) {
	a := &Entity{
		Name: "Author", IDProperty: "id", IDColumn: "id", IDType: "INTEGER",
		Tables: []Table{{Name: "authors", Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "favorite_book", Type: "INTEGER", Nullable: true},
		}}},
		Properties: []Property{
			{Name: "favoriteBook", Column: "favorite_book", Kind: KindToOne, Target: "Book", Nullable: true},
		},
	}
	b := &Entity{
		Name: "Book", IDProperty: "id", IDColumn: "id", IDType: "INTEGER",
		Tables: []Table{{Name: "books", Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "author", Type: "INTEGER", Nullable: true},
		}}},
		Properties: []Property{
			{Name: "author", Column: "author", Kind: KindToOne, Target: "Author", Nullable: true},
		},
	}

	reg, errs := NewRegistry([]*Entity{a, b})
	require.Empty(t, errs, "reference cycles are reported, not rejected")

	assert.Equal(t, reg.TablePosition("authors"), reg.TablePosition("books"),
		"cycle members share a constraint position")
	require.Len(t, reg.Cycles(), 1)
	assert.ElementsMatch(t, []string{"authors", "books"}, reg.Cycles()[0].Tables)
}

func TestRegistry_UnionMembers(t *testing.T) {
	root := &Entity{
		Name: "Payment", Abstract: true, Inheritance: InheritanceUnion,
		IDProperty: "id", IDColumn: "id", IDType: "INTEGER",
	}
	card := &Entity{
		Name: "CardPayment", Extends: "Payment",
		Tables: []Table{{Name: "card_payments", Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "pan", Type: "TEXT"},
		}}},
		Properties: []Property{{Name: "pan", Column: "pan"}},
	}
	wire := &Entity{
		Name: "WirePayment", Extends: "Payment",
		Tables: []Table{{Name: "wire_payments", Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "iban", Type: "TEXT"},
		}}},
		Properties: []Property{{Name: "iban", Column: "iban"}},
	}

	reg, errs := NewRegistry([]*Entity{root, card, wire})
	require.Empty(t, errs)

	payment, _ := reg.Entity("Payment")
	members := reg.UnionMembers(payment)
	require.Len(t, members, 2)
	assert.Equal(t, "CardPayment", members[0].Name)
	assert.Equal(t, "WirePayment", members[1].Name)
}

func TestNormalizeIdent_NFC(t *testing.T) {
	// decomposed e + combining acute vs precomposed
	decomposed := "café"
	precomposed := "café"
	assert.Equal(t, precomposed, NormalizeIdent(decomposed))
	assert.Equal(t, precomposed, NormalizeIdent("  "+precomposed+"  "))
}
