package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/sql"
)

func newTestCatalog(t *testing.T) (*MemoryCatalog, *TableDescriptor) {
	t.Helper()
	c := NewMemoryCatalog()
	tbl, err := c.CreateTable("", "t", []*ColumnDescriptor{
		NewColumn("a", sql.NewDescriptor(sql.IntegerID, false)),
		NewColumn("b", sql.NewStringDescriptor(sql.VarcharID, 10, true)),
	})
	require.NoError(t, err)
	require.NoError(t, c.AddConstraint("", "t", &ConstraintDescriptor{Type: PrimaryKeyConstraint, Columns: []int{1}}))
	_, err = c.CreateIndex("", "t", "t_b", false, "b")
	require.NoError(t, err)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, c.Insert("", "t", sql.Row{sql.NewInt(i), sql.NewVarchar(string(rune('e' - i + 1)))}))
	}
	return c, tbl
}

func TestCreateTable(t *testing.T) {
	c, tbl := newTestCatalog(t)
	assert.Equal(t, "APP.T", tbl.QualifiedName())
	assert.Equal(t, 2, tbl.Columns[1].Position)

	got, err := c.ResolveTable("app", "T")
	require.NoError(t, err)
	assert.Same(t, tbl, got)

	pk := tbl.PrimaryKey()
	require.NotNil(t, pk)
	ix, ok := tbl.Index(pk.IndexName)
	require.True(t, ok)
	assert.True(t, ix.Unique)

	_, err = c.ResolveTable("", "missing")
	assert.True(t, sql.ErrTableNotFound.Is(err))
	_, err = c.ResolveColumn(tbl, "z")
	assert.True(t, sql.ErrColumnNotFound.Is(err))
	_, err = c.CreateTable("", "x", []*ColumnDescriptor{
		NewColumn("a", sql.NewDescriptor(sql.IntegerID, true)),
		NewColumn("A", sql.NewDescriptor(sql.IntegerID, true)),
	})
	assert.True(t, sql.ErrDuplicateColumn.Is(err))
	err = c.Insert("", "t", sql.Row{sql.NewInt(9)})
	assert.True(t, sql.ErrColumnCountMismatch.Is(err))
}

func TestScanIndex(t *testing.T) {
	c, tbl := newTestCatalog(t)
	ix, _ := tbl.Index("T_B")

	var keys []string
	err := c.ScanIndex(ix.ConglomerateID, KeyRange{}, func(_ int, row sql.Row) bool {
		keys = append(keys, row[1].V.(string))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keys)

	pk, _ := tbl.Index(tbl.PrimaryKey().IndexName)
	var ids []int
	r := KeyRange{Start: sql.Row{sql.NewInt(2)}, Stop: sql.Row{sql.NewInt(4)}, StopInclusive: true}
	err = c.ScanIndex(pk.ConglomerateID, r, func(id int, _ sql.Row) bool {
		ids = append(ids, id)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, ids)

	err = c.ScanIndex(999, KeyRange{}, func(int, sql.Row) bool { return true })
	assert.True(t, sql.ErrObjectNotFound.Is(err))
}

func TestCostControllers(t *testing.T) {
	c, tbl := newTestCatalog(t)
	require.NoError(t, c.SetRowCount("", "t", 10000))

	heap, err := c.OpenCostController(tbl.ConglomerateID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.OpenControllers())
	assert.Equal(t, float64(10000), heap.RowCount())

	eq := &PredicateSet{Predicates: []ScanPredicate{{Column: 1, Op: OpEQ}}, Columns: []int{1, 2}}
	full, err := heap.EstimateCost(eq)
	require.NoError(t, err)
	assert.InDelta(t, 1, full.RowCount, 1e-9)

	pk, _ := tbl.Index(tbl.PrimaryKey().IndexName)
	index, err := c.OpenCostController(pk.ConglomerateID)
	require.NoError(t, err)
	probe, err := index.EstimateCost(eq)
	require.NoError(t, err)
	assert.Less(t, probe.Cost, full.Cost)

	notNull, err := heap.EstimateCost(&PredicateSet{Predicates: []ScanPredicate{{Column: 1, Op: OpIsNull}}})
	require.NoError(t, err)
	assert.Zero(t, notNull.RowCount)

	require.NoError(t, heap.Close())
	require.NoError(t, heap.Close())
	require.NoError(t, index.Close())
	assert.Equal(t, 0, c.OpenControllers())
	assert.Equal(t, 2, c.OpenedControllers())

	_, err = heap.EstimateCost(eq)
	assert.True(t, sql.ErrInternal.Is(err))
}

func TestKeyPredicates(t *testing.T) {
	ix := &IndexDescriptor{Columns: []int{1, 2}}
	preds := []ScanPredicate{
		{Column: 2, Op: OpGT},
		{Column: 3, Op: OpEQ},
		{Column: 1, Op: OpEQ},
	}
	keys, rest := KeyPredicates(ix, preds)
	assert.Equal(t, []int{2, 0}, keys)
	assert.Equal(t, []int{1}, rest)
	assert.Equal(t, 1, EqualityPrefix(ix, preds, keys))

	keys, rest = KeyPredicates(ix, preds[:2])
	assert.Empty(t, keys)
	assert.Equal(t, []int{0, 1}, rest)
}

func TestScanCosts(t *testing.T) {
	assert.Equal(t, float64(1), BTreeLevels(10, 4))
	assert.Greater(t, BTreeLevels(1e7, 4), float64(1))
	assert.Less(t, BTreeScanCost(1e5, 4, 0.001), HeapScanCost(1e5, 20))
}
