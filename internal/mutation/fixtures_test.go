package mutation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
	"github.com/stratumdb/stratum/internal/testutil"
)

// The bulk-mutation test model covers every decision branch:
//
//   - Customer/Order: single-table entities, Order carrying a to-one, a
//     version column, and a tags collection (direct path)
//   - Billing/Invoice: joined hierarchy (staged path)
//   - Payment/CardPayment/WirePayment: union hierarchy (per-member path)
//   - Account: single table with a soft-delete base restriction (staged)

func customerEntity() *meta.Entity {
	return &meta.Entity{
		Name: "Customer",
		Tables: []meta.Table{{
			Name: "customers",
			Columns: []meta.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "name", Type: "TEXT", Nullable: true},
			},
		}},
		IDProperty: "id",
		IDColumn:   "id",
		IDType:     "INTEGER",
		Properties: []meta.Property{
			{Name: "name", Column: "name", Nullable: true},
		},
	}
}

func orderEntity() *meta.Entity {
	return &meta.Entity{
		Name: "Order",
		Tables: []meta.Table{{
			Name: "orders",
			Columns: []meta.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "customer_id", Type: "INTEGER", Nullable: true},
				{Name: "status", Type: "TEXT", Nullable: true},
				{Name: "version", Type: "INTEGER", Nullable: true},
			},
		}},
		IDProperty: "id",
		IDColumn:   "id",
		IDType:     "INTEGER",
		Properties: []meta.Property{
			{Name: "customer", Kind: meta.KindToOne, Column: "customer_id", Target: "Customer", Nullable: true},
			{Name: "status", Column: "status", Nullable: true},
			{Name: "version", Column: "version", Nullable: true, Version: true},
		},
		Collections: []meta.Collection{{
			Name:          "tags",
			Table:         "order_tags",
			KeyColumn:     "order_id",
			ElementColumn: "tag",
			ElementType:   "TEXT",
		}},
	}
}

func billingEntity() *meta.Entity {
	return &meta.Entity{
		Name:        "Billing",
		Inheritance: meta.InheritanceJoined,
		Tables: []meta.Table{{
			Name: "billing",
			Columns: []meta.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "amount", Type: "INTEGER", Nullable: true},
			},
		}},
		IDProperty: "id",
		IDColumn:   "id",
		IDType:     "INTEGER",
		Properties: []meta.Property{
			{Name: "amount", Column: "amount", Nullable: true},
		},
	}
}

func invoiceEntity() *meta.Entity {
	return &meta.Entity{
		Name:    "Invoice",
		Extends: "Billing",
		Tables: []meta.Table{{
			Name: "invoices",
			Columns: []meta.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "due_date", Type: "TEXT", Nullable: true},
			},
		}},
		Properties: []meta.Property{
			{Name: "dueDate", Column: "due_date", Nullable: true},
		},
	}
}

func paymentEntities() []*meta.Entity {
	root := &meta.Entity{
		Name:        "Payment",
		Abstract:    true,
		Inheritance: meta.InheritanceUnion,
		IDProperty:  "id",
		IDColumn:    "id",
		IDType:      "INTEGER",
		Properties: []meta.Property{
			{Name: "amount", Column: "amount", Nullable: true},
		},
	}
	card := &meta.Entity{
		Name:    "CardPayment",
		Extends: "Payment",
		Tables: []meta.Table{{
			Name: "card_payments",
			Columns: []meta.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "amount", Type: "INTEGER", Nullable: true},
				{Name: "pan", Type: "TEXT", Nullable: true},
			},
		}},
		Properties: []meta.Property{
			{Name: "pan", Column: "pan", Nullable: true},
		},
	}
	wire := &meta.Entity{
		Name:    "WirePayment",
		Extends: "Payment",
		Tables: []meta.Table{{
			Name: "wire_payments",
			Columns: []meta.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "amount", Type: "INTEGER", Nullable: true},
				{Name: "iban", Type: "TEXT", Nullable: true},
			},
		}},
		Properties: []meta.Property{
			{Name: "iban", Column: "iban", Nullable: true},
		},
	}
	return []*meta.Entity{root, card, wire}
}

func accountEntity() *meta.Entity {
	return &meta.Entity{
		Name: "Account",
		Tables: []meta.Table{{
			Name: "accounts",
			Columns: []meta.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "email", Type: "TEXT", Nullable: true},
				{Name: "deleted", Type: "INTEGER"},
			},
		}},
		IDProperty: "id",
		IDColumn:   "id",
		IDType:     "INTEGER",
		Properties: []meta.Property{
			{Name: "email", Column: "email", Nullable: true},
			{Name: "deleted", Column: "deleted"},
		},
		BaseRestriction: &meta.ColumnCondition{Column: "deleted", Op: "=", Value: 0},
	}
}

func testRegistry(t *testing.T) *meta.Registry {
	t.Helper()
	entities := []*meta.Entity{
		customerEntity(), orderEntity(),
		billingEntity(), invoiceEntity(),
		accountEntity(),
	}
	entities = append(entities, paymentEntities()...)
	reg, errs := meta.NewRegistry(entities)
	require.Empty(t, errs)
	return reg
}

func newDeleter(t *testing.T, opts ...Option) (*DeleteExecutor, *testutil.RecordingExecutor) {
	t.Helper()
	rec := testutil.NewRecordingExecutor()
	return NewDeleteExecutor(testRegistry(t), rec, "uow-1", opts...), rec
}

func newUpdater(t *testing.T, opts ...Option) (*UpdateExecutor, *testutil.RecordingExecutor) {
	t.Helper()
	rec := testutil.NewRecordingExecutor()
	return NewUpdateExecutor(testRegistry(t), rec, "uow-1", opts...), rec
}

func eq(column string, value any) sqlast.Predicate {
	return sqlast.Comparison{Column: sqlast.Col(column), Op: sqlast.OpEq, Operand: sqlast.Literal{Value: value}}
}

func gt(column string, value any) sqlast.Predicate {
	return sqlast.Comparison{Column: sqlast.Col(column), Op: sqlast.OpGt, Operand: sqlast.Literal{Value: value}}
}

func lt(column string, value any) sqlast.Predicate {
	return sqlast.Comparison{Column: sqlast.Col(column), Op: sqlast.OpLt, Operand: sqlast.Literal{Value: value}}
}

func eqParam(column, param string) sqlast.Predicate {
	return sqlast.Comparison{Column: sqlast.Col(column), Op: sqlast.OpEq, Operand: sqlast.Param{Name: param}}
}

// acmeOrdersPredicate selects orders through the customer table, which
// forces the staging path even though the matched set could also be
// reached with a root-only predicate.
func acmeOrdersPredicate() sqlast.Predicate {
	return sqlast.InSubquery{
		Column: sqlast.Col("customer_id"),
		Select: &sqlast.Select{
			Items: []sqlast.SelectItem{sqlast.QCol("customers", "id")},
			From:  sqlast.TableRef{Table: "customers"},
			Where: sqlast.Comparison{
				Column:  sqlast.QCol("customers", "name"),
				Op:      sqlast.OpEq,
				Operand: sqlast.Literal{Value: "Acme"},
			},
		},
	}
}
