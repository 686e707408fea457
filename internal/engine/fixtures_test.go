package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/testutil"
)

// The test model covers every mapping shape the pipeline routes on:
//
//	Customer     identity key, single table
//	Order        assigned key, versioned, to-one -> Customer, tags side table
//	Billing      identity key, joined-hierarchy root
//	Invoice      joined subtype of Billing
//	Payment      abstract union root; CardPayment / WirePayment members
//	Alpha, Beta  mutual to-one references (a foreign-key cycle)
func testEntities() []*meta.Entity {
	return []*meta.Entity{
		{
			Name:       "Customer",
			IDProperty: "id", IDColumn: "id", IDType: "INTEGER",
			IDStrategy: meta.IDIdentity,
			Tables: []meta.Table{{
				Name: "customers",
				Columns: []meta.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "name", Type: "TEXT"},
				},
			}},
			Properties: []meta.Property{
				{Name: "name", Column: "name"},
			},
		},
		{
			Name:       "Order",
			IDProperty: "id", IDColumn: "id", IDType: "INTEGER",
			IDStrategy: meta.IDAssigned,
			Tables: []meta.Table{{
				Name: "orders",
				Columns: []meta.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "customer_id", Type: "INTEGER", Nullable: true},
					{Name: "status", Type: "TEXT", Nullable: true},
					{Name: "version", Type: "INTEGER"},
				},
			}},
			Properties: []meta.Property{
				{Name: "customer", Column: "customer_id", Kind: meta.KindToOne, Target: "Customer", Nullable: true},
				{Name: "status", Column: "status", Nullable: true},
				{Name: "version", Column: "version", Version: true},
			},
			Collections: []meta.Collection{{
				Name:          "tags",
				Table:         "order_tags",
				KeyColumn:     "order_id",
				ElementColumn: "tag",
				ElementType:   "TEXT",
			}},
		},
		{
			Name:        "Billing",
			Inheritance: meta.InheritanceJoined,
			IDProperty:  "id", IDColumn: "id", IDType: "INTEGER",
			IDStrategy: meta.IDIdentity,
			Tables: []meta.Table{{
				Name: "billing",
				Columns: []meta.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "amount", Type: "INTEGER"},
				},
			}},
			Properties: []meta.Property{
				{Name: "amount", Column: "amount"},
			},
		},
		{
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
		},
		{
			Name:        "Payment",
			Abstract:    true,
			Inheritance: meta.InheritanceUnion,
			IDProperty:  "id", IDColumn: "id", IDType: "INTEGER",
		},
		{
			Name:    "CardPayment",
			Extends: "Payment",
			Tables: []meta.Table{{
				Name: "card_payments",
				Columns: []meta.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "pan", Type: "TEXT", Nullable: true},
				},
			}},
			Properties: []meta.Property{
				{Name: "pan", Column: "pan", Nullable: true},
			},
		},
		{
			Name:    "WirePayment",
			Extends: "Payment",
			Tables: []meta.Table{{
				Name: "wire_payments",
				Columns: []meta.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "iban", Type: "TEXT", Nullable: true},
				},
			}},
			Properties: []meta.Property{
				{Name: "iban", Column: "iban", Nullable: true},
			},
		},
		{
			Name:       "Alpha",
			IDProperty: "id", IDColumn: "id", IDType: "INTEGER",
			IDStrategy: meta.IDAssigned,
			Tables: []meta.Table{{
				Name: "alphas",
				Columns: []meta.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "beta_id", Type: "INTEGER", Nullable: true},
				},
			}},
			Properties: []meta.Property{
				{Name: "beta", Column: "beta_id", Kind: meta.KindToOne, Target: "Beta", Nullable: true},
			},
		},
		{
			Name:       "Beta",
			IDProperty: "id", IDColumn: "id", IDType: "INTEGER",
			IDStrategy: meta.IDAssigned,
			Tables: []meta.Table{{
				Name: "betas",
				Columns: []meta.Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "alpha_id", Type: "INTEGER", Nullable: true},
				},
			}},
			Properties: []meta.Property{
				{Name: "alpha", Column: "alpha_id", Kind: meta.KindToOne, Target: "Alpha", Nullable: true},
			},
		},
	}
}

func testRegistry(t *testing.T) *meta.Registry {
	t.Helper()
	reg, errs := meta.NewRegistry(testEntities())
	require.Empty(t, errs)
	return reg
}

// newTestSession wires a session over a scripted recording executor with a
// fixed uid, so statement traces and error messages are deterministic.
func newTestSession(t *testing.T) (*Session, *testutil.RecordingExecutor) {
	t.Helper()
	rec := testutil.NewRecordingExecutor()
	s := NewSession(testRegistry(t), rec, WithUIDGenerator(NewFixedGenerator("uow-1")))
	return s, rec
}

func newOrder(id any, customer *Entity, status string) *Entity {
	return NewEntity("Order", id, []any{customer, status, nil})
}
