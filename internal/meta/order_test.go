package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTableOrder_DAG(t *testing.T) {
	tables := []string{"grandchild", "child", "parent"}
	fks := []ForeignKey{
		{Table: "child", Column: "parent_id", ReferencedTable: "parent", ReferencedColumn: "id"},
		{Table: "grandchild", Column: "child_id", ReferencedTable: "child", ReferencedColumn: "id"},
	}

	order, cycles := computeTableOrder(tables, fks)
	assert.Empty(t, cycles)
	assert.Less(t, order["parent"], order["child"])
	assert.Less(t, order["child"], order["grandchild"])
}

func TestComputeTableOrder_Cycle(t *testing.T) {
	tables := []string{"a", "b", "c"}
	fks := []ForeignKey{
		{Table: "a", Column: "b_id", ReferencedTable: "b", ReferencedColumn: "id"},
		{Table: "b", Column: "a_id", ReferencedTable: "a", ReferencedColumn: "id"},
		{Table: "c", Column: "a_id", ReferencedTable: "a", ReferencedColumn: "id"},
	}

	order, cycles := computeTableOrder(tables, fks)
	assert.Equal(t, order["a"], order["b"], "cycle members share a position")
	assert.Greater(t, order["c"], order["a"], "c references into the cycle, so it sorts after")

	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b"}, cycles[0].Tables)
}

func TestComputeTableOrder_SelfReference(t *testing.T) {
	tables := []string{"tree"}
	fks := []ForeignKey{
		{Table: "tree", Column: "parent_id", ReferencedTable: "tree", ReferencedColumn: "id"},
	}

	_, cycles := computeTableOrder(tables, fks)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"tree"}, cycles[0].Tables)
	assert.Contains(t, cycles[0].Message, "references itself")
}

func TestComputeTableOrder_Deterministic(t *testing.T) {
	tables := []string{"x", "y", "z"}
	first, _ := computeTableOrder(tables, nil)
	for i := 0; i < 10; i++ {
		again, _ := computeTableOrder(tables, nil)
		assert.Equal(t, first, again)
	}
}
