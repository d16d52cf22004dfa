package optimizer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/sql"
	"planforge/sql/binder"
	"planforge/sql/preprocess"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// addTable creates a table of nullable INTEGER columns with a row count statistic.
func addTable(t *testing.T, cat *store.MemoryCatalog, name string, rows float64, columns ...string) {
	t.Helper()
	var cols []*store.ColumnDescriptor
	for _, c := range columns {
		cols = append(cols, store.NewColumn(c, sql.NewDescriptor(sql.IntegerID, true)))
	}
	_, err := cat.CreateTable("", name, cols)
	require.NoError(t, err)
	require.NoError(t, cat.SetRowCount("", name, rows))
}

func col(table, name string) *ast.Field { return &ast.Field{TableName: table, ColumnName: name} }

func intLit(i int64) *ast.Literal { return &ast.Literal{Value: sql.NewInt(i)} }

func table(name, alias string) *ast.FromItemTable { return &ast.FromItemTable{Name: name, Alias: alias} }

func eq(l, r ast.Expression) *ast.EqualOper { return &ast.EqualOper{L: l, R: r} }

func and(exprs ...ast.Expression) ast.Expression {
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &ast.AndOper{L: out, R: e}
	}
	return out
}

func selectOf(from []ast.FromItem, exprs ...ast.Expression) *ast.SelectStmt {
	s := &ast.SelectStmt{From: from}
	for _, e := range exprs {
		s.Select = append(s.Select, &ast.ExprAS{Expr: e})
	}
	return s
}

func optimize(t *testing.T, cat *store.MemoryCatalog, stmt ast.Stmt, opts Options) (tree.StatementNode, *Optimizer, error) {
	t.Helper()
	ctx := tree.NewCompilerContext(cat, cat)
	t.Cleanup(func() { _ = ctx.Reset() })
	node, err := binder.New(ctx, binder.DefaultOptions()).Bind(stmt)
	require.NoError(t, err)
	require.NoError(t, preprocess.New(ctx).Preprocess(node))
	o := New(ctx, opts)
	return node, o, o.Optimize(node)
}

func topSelect(t *testing.T, node tree.StatementNode) *tree.Select {
	t.Helper()
	sel, ok := node.(*tree.Cursor).Query.(*tree.Select)
	require.True(t, ok)
	return sel
}

// entryNamed finds a FROM entry by exposed name, looking into outer joins.
func entryNamed(from []tree.FromTable, name string) tree.FromTable {
	for _, f := range from {
		if j, ok := tree.Unwrap(f).(*tree.Join); ok {
			if e := entryNamed([]tree.FromTable{j.Left, j.Right}, name); e != nil {
				return e
			}
			continue
		}
		if strings.EqualFold(f.ExposedName(), name) {
			return f
		}
	}
	return nil
}

func pathNamed(t *testing.T, sel *tree.Select, name string) *tree.AccessPath {
	t.Helper()
	f := entryNamed(sel.From, name)
	require.NotNil(t, f, name)
	path := tree.PathOf(f)
	require.NotNil(t, path, name)
	return path
}

func TestOuterTableDrivenBySelectiveIndex(t *testing.T) {
	cat := store.NewMemoryCatalog()
	addTable(t, cat, "t1", 1000, "x", "k")
	addTable(t, cat, "t2", 1000, "k", "y")
	_, err := cat.CreateIndex("", "t2", "t2_y", true, "y")
	require.NoError(t, err)
	_, err = cat.CreateIndex("", "t1", "t1_k", false, "k")
	require.NoError(t, err)

	stmt := selectOf([]ast.FromItem{table("t1", "a"), table("t2", "b")}, col("a", "x"))
	stmt.Where = and(eq(col("a", "k"), col("b", "k")), eq(col("b", "y"), intLit(5)))
	node, _, err := optimize(t, cat, stmt, DefaultOptions())
	require.NoError(t, err)

	sel := topSelect(t, node)
	require.Equal(t, []int{1, 0}, sel.JoinOrder)

	b := pathNamed(t, sel, "b")
	require.NotNil(t, b.Index)
	assert.Equal(t, "T2_Y", b.Index.Name)
	require.Len(t, b.StartKeys, 1)
	assert.True(t, b.StartKeys[0].StartKey)

	a := pathNamed(t, sel, "a")
	probe := append(append(tree.PredicateList(nil), a.StartKeys...), a.NonStoreRestrictions...)
	found := false
	for _, p := range probe {
		if p.Equijoin && (p.StartKey || p.HashKey) {
			found = true
		}
	}
	assert.True(t, found, "a.k = b.k drives the access to t1")
}

func threeTableCatalog(t *testing.T) *store.MemoryCatalog {
	cat := store.NewMemoryCatalog()
	addTable(t, cat, "ta", 100, "id", "v")
	addTable(t, cat, "tb", 1000, "id", "cid")
	addTable(t, cat, "tc", 10000, "id", "w")
	require.NoError(t, cat.SetDistinct("", "tb", "id", 1000))
	_, err := cat.CreateIndex("", "tc", "tc_id", true, "id")
	require.NoError(t, err)
	return cat
}

func threeTableQuery(order []string, cIndex string) *ast.SelectStmt {
	var from []ast.FromItem
	for _, name := range order {
		ft := table(name, "")
		if name == "tc" && cIndex != "" {
			ft.Properties = map[string]string{"index": cIndex}
		}
		from = append(from, ft)
	}
	stmt := selectOf(from, col("ta", "v"))
	stmt.Where = and(eq(col("ta", "id"), col("tb", "id")), eq(col("tb", "cid"), col("tc", "id")))
	if cIndex != "" {
		stmt.FromProperties = map[string]string{"joinOrder": "FIXED"}
	}
	return stmt
}

func TestThreeTableJoinUsesUniqueIndex(t *testing.T) {
	cat := threeTableCatalog(t)
	node, o, err := optimize(t, cat, threeTableQuery([]string{"ta", "tb", "tc"}, ""), DefaultOptions())
	require.NoError(t, err)
	sel := topSelect(t, node)

	c := pathNamed(t, sel, "tc")
	require.NotNil(t, c.Index)
	assert.Equal(t, "TC_ID", c.Index.Name)
	assert.Equal(t, tree.NestedLoopStrategy, c.Strategy)
	assert.True(t, c.Covering)
	assert.Empty(t, c.Requalifications)
	assert.Equal(t, 1, o.Stats().Blocks)
	assert.Greater(t, o.Stats().Permutations, 3)

	orders := [][]string{
		{"ta", "tb", "tc"}, {"ta", "tc", "tb"}, {"tb", "ta", "tc"},
		{"tb", "tc", "ta"}, {"tc", "ta", "tb"}, {"tc", "tb", "ta"},
	}
	for _, order := range orders {
		for _, ix := range []string{"NULL", "tc_id"} {
			other, _, err := optimize(t, cat, threeTableQuery(order, ix), DefaultOptions())
			require.NoError(t, err)
			assert.LessOrEqual(t, sel.Estimate.Cost, topSelect(t, other).Estimate.Cost+1e-9, "%v index=%s", order, ix)
		}
	}
}

func TestFixedJoinOrderIsKept(t *testing.T) {
	cat := threeTableCatalog(t)
	node, _, err := optimize(t, cat, threeTableQuery([]string{"tc", "tb", "ta"}, "NULL"), DefaultOptions())
	require.NoError(t, err)
	sel := topSelect(t, node)
	assert.Equal(t, []int{0, 1, 2}, sel.JoinOrder)
	assert.Nil(t, pathNamed(t, sel, "tc").Index)
}

// nestedExists builds
// SELECT t0.x FROM t0 WHERE EXISTS (SELECT t1.x FROM t1 WHERE EXISTS
// (SELECT t2.k FROM t2, t3 WHERE t2.k = t3.k AND t3.x = <outer>.x))
// with t3 forced to a hash join after t2.
func nestedExists(outer string) *ast.SelectStmt {
	t3 := table("t3", "")
	t3.Properties = map[string]string{"joinStrategy": "HASH"}
	innermost := selectOf([]ast.FromItem{table("t2", ""), t3}, col("t2", "k"))
	innermost.FromProperties = map[string]string{"joinOrder": "FIXED"}
	innermost.Where = and(eq(col("t2", "k"), col("t3", "k")), eq(col("t3", "x"), col(outer, "x")))
	middle := selectOf([]ast.FromItem{table("t1", "")}, col("t1", "x"))
	middle.Where = &ast.ExistsExpr{Query: innermost}
	top := selectOf([]ast.FromItem{table("t0", "")}, col("t0", "x"))
	top.Where = &ast.ExistsExpr{Query: middle}
	return top
}

func TestHashJoinRejectedAcrossNestingLevels(t *testing.T) {
	cat := store.NewMemoryCatalog()
	addTable(t, cat, "t0", 100, "x")
	addTable(t, cat, "t1", 100, "x")
	addTable(t, cat, "t2", 100, "k")
	addTable(t, cat, "t3", 100, "k", "x")

	node, _, err := optimize(t, cat, nestedExists("t1"), DefaultOptions())
	require.NoError(t, err)
	var innermost *tree.Select
	tree.Walk(node, func(n tree.Node) bool {
		if s, ok := n.(*tree.Select); ok && s.NestingLevel == 2 {
			innermost = s
		}
		return true
	})
	require.NotNil(t, innermost)
	path := pathNamed(t, innermost, "t3")
	assert.Equal(t, tree.HashStrategy, path.Strategy)
	require.Len(t, path.HashKeys, 1)
	assert.True(t, strings.EqualFold("k", path.HashKeys[0].Second.ColumnName))

	_, _, err = optimize(t, cat, nestedExists("t0"), DefaultOptions())
	require.Error(t, err)
	assert.True(t, sql.ErrPlanNotFound.Is(err))
}

func TestForcedHashWithoutEquijoin(t *testing.T) {
	cat := store.NewMemoryCatalog()
	addTable(t, cat, "t1", 100, "a")
	addTable(t, cat, "t2", 100, "a")
	t2 := table("t2", "")
	t2.Properties = map[string]string{"joinStrategy": "hash"}
	stmt := selectOf([]ast.FromItem{table("t1", ""), t2}, col("t1", "a"))
	stmt.Where = &ast.LessThanOper{L: col("t1", "a"), R: col("t2", "a")}

	_, _, err := optimize(t, cat, stmt, DefaultOptions())
	require.Error(t, err)
	assert.True(t, sql.ErrPlanNotFound.Is(err))
	assert.Contains(t, err.Error(), "HASH")

	stmt.Where = eq(col("t1", "a"), col("t2", "a"))
	node, _, err := optimize(t, cat, stmt, DefaultOptions())
	require.NoError(t, err)
	sel := topSelect(t, node)
	assert.Equal(t, []int{0, 1}, sel.JoinOrder)
	assert.Equal(t, tree.HashStrategy, pathNamed(t, sel, "t2").Strategy)
	assert.True(t, sel.WherePredicates[0].HashKey)
}

func TestEveryPredicateDistributedOnce(t *testing.T) {
	cat := store.NewMemoryCatalog()
	addTable(t, cat, "t1", 500, "a", "b", "c")
	addTable(t, cat, "t2", 800, "a", "d")
	_, err := cat.CreateIndex("", "t1", "t1_c", false, "c")
	require.NoError(t, err)

	stmt := selectOf([]ast.FromItem{table("t1", ""), table("t2", "")}, col("t1", "b"))
	stmt.Where = and(
		eq(col("t1", "a"), col("t2", "a")),
		&ast.GreaterThanOper{L: col("t1", "c"), R: intLit(5)},
		&ast.LessThanOper{L: &ast.AddOper{L: col("t1", "b"), R: col("t2", "d")}, R: intLit(10)},
		&ast.IsNullOper{L: col("t2", "d"), Not: true},
		&ast.GreaterThanOper{L: &ast.AddOper{L: col("t1", "b"), R: intLit(1)}, R: intLit(0)},
	)
	node, _, err := optimize(t, cat, stmt, DefaultOptions())
	require.NoError(t, err)
	sel := topSelect(t, node)
	require.Len(t, sel.WherePredicates, 5)

	seen := map[*tree.Predicate]int{}
	for _, f := range sel.From {
		path := tree.PathOf(f)
		require.NotNil(t, path)
		for _, p := range path.StoreRestrictions {
			seen[p]++
			assert.False(t, path.NonStoreRestrictions.Contains(p))
		}
		for _, p := range path.NonStoreRestrictions {
			seen[p]++
		}
		for _, p := range path.Requalifications {
			assert.True(t, path.StoreRestrictions.Contains(p))
		}
		for _, p := range path.StartKeys {
			assert.True(t, path.StoreRestrictions.Contains(p))
		}
		if pr, ok := f.(*tree.ProjectRestrict); ok {
			assert.Equal(t, path.NonStoreRestrictions, pr.Restriction)
		}
	}
	for _, p := range sel.WherePredicates {
		assert.Equal(t, 1, seen[p], tree.Describe(p.Expr))
	}
	assert.Len(t, seen, len(sel.WherePredicates))
}

func TestSetOperationRows(t *testing.T) {
	for _, tc := range []struct {
		op          tree.SetOpType
		left, right float64
		want        float64
	}{
		{tree.SetUnion, 100, 30, 130},
		{tree.SetIntersect, 100, 30, 15},
		{tree.SetIntersect, 10, 30, 5},
		{tree.SetExcept, 100, 30, 85},
		{tree.SetExcept, 30, 100, 15},
	} {
		assert.Equal(t, tc.want, setOperationRows(tc.op, tc.left, tc.right), "%s %v %v", tc.op, tc.left, tc.right)
	}

	cat := store.NewMemoryCatalog()
	addTable(t, cat, "t1", 1000, "a")
	addTable(t, cat, "t2", 100, "a")
	stmt := &ast.SetOperationStmt{
		Type:  ast.Intersect,
		Left:  selectOf([]ast.FromItem{table("t1", "")}, col("t1", "a")),
		Right: selectOf([]ast.FromItem{table("t2", "")}, col("t2", "a")),
	}
	node, o, err := optimize(t, cat, stmt, DefaultOptions())
	require.NoError(t, err)
	so, ok := node.(*tree.Cursor).Query.(*tree.SetOperator)
	require.True(t, ok)
	assert.Equal(t, 50.0, so.Estimate.RowCount)
	assert.Equal(t, 2, o.Stats().Blocks)
}

func TestSortAvoidedByOrderedIndex(t *testing.T) {
	cat := store.NewMemoryCatalog()
	addTable(t, cat, "t1", 1000, "a", "b")
	_, err := cat.CreateIndex("", "t1", "t1_ab", false, "a", "b")
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		key    string
		desc   bool
		avoids bool
	}{
		{"indexed", "a", false, true},
		{"descending", "a", true, false},
		{"unindexed", "b", false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"), col("", "b"))
			stmt.Order = []*ast.Order{{Expr: col("", tc.key), Desc: tc.desc}}
			node, _, err := optimize(t, cat, stmt, DefaultOptions())
			require.NoError(t, err)
			sel := topSelect(t, node)
			assert.Equal(t, tc.avoids, sel.SortAvoided)
			if tc.avoids {
				path := pathNamed(t, sel, "t1")
				require.NotNil(t, path.Index)
				assert.Equal(t, []int{1, 2}, path.OrderedBy)
			}
		})
	}

	opts := DefaultOptions()
	opts.SortAvoidance = false
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"), col("", "b"))
	stmt.Order = []*ast.Order{{Expr: col("", "a")}}
	node, _, err := optimize(t, cat, stmt, opts)
	require.NoError(t, err)
	assert.False(t, topSelect(t, node).SortAvoided)
}

func TestLeftJoinKeepsOuterRows(t *testing.T) {
	cat := store.NewMemoryCatalog()
	addTable(t, cat, "t1", 200, "a")
	addTable(t, cat, "t2", 1000, "a", "d")
	stmt := selectOf([]ast.FromItem{&ast.FromItemJoinTable{
		Left: table("t1", ""), Right: table("t2", ""), Type: ast.LeftJoin,
		Predicate: and(eq(col("t1", "a"), col("t2", "a")), eq(col("t2", "d"), intLit(3))),
	}}, col("t1", "a"))
	node, _, err := optimize(t, cat, stmt, DefaultOptions())
	require.NoError(t, err)
	sel := topSelect(t, node)
	j, ok := sel.From[0].(*tree.Join)
	require.True(t, ok)
	assert.GreaterOrEqual(t, j.Estimate.RowCount, 200.0)

	right := pathNamed(t, sel, "t2")
	assert.Len(t, append(right.StoreRestrictions, right.NonStoreRestrictions...), 2)
	left := pathNamed(t, sel, "t1")
	assert.Empty(t, left.StoreRestrictions)
	assert.Empty(t, left.NonStoreRestrictions)
	assert.NotNil(t, j.Path)
}

func TestCostHelpers(t *testing.T) {
	assert.Zero(t, sortCost(1))
	assert.InDelta(t, 1024*10*sortComparisonCost, sortCost(1024), 1e-9)

	outer := tree.CostEstimate{Cost: 10, RowCount: 20}
	nl := nestedLoopCost(outer, tree.CostEstimate{Cost: 2, RowCount: 3})
	assert.Equal(t, tree.CostEstimate{Cost: 50, RowCount: 60, SingleScanRowCount: 3}, nl)
	hj := hashJoinCost(outer, tree.CostEstimate{Cost: 15, RowCount: 100}, 3)
	assert.Equal(t, tree.CostEstimate{Cost: 25, RowCount: 60, SingleScanRowCount: 3}, hj)

	preds := tree.PredicateList{
		{EquivalenceClass: 1},
		{EquivalenceClass: 1},
		{EquivalenceClass: 1, Redundant: true},
		{},
	}
	assert.Len(t, counted(preds), 2)
}

func TestTimeoutOnlyAboveTableLimit(t *testing.T) {
	o := New(nil, Options{TimeoutTables: 2})
	b := &block{
		o:       o,
		entries: make([]*entry, 3),
		best:    &joinPlan{estimate: tree.CostEstimate{Cost: 1}},
		start:   time.Now().Add(-time.Second),
	}
	require.True(t, b.timedOut())
	assert.True(t, o.Stats().TimedOut)

	b.best.estimate.Cost = 1e9
	assert.False(t, b.timedOut())

	b.best.estimate.Cost = 1
	b.entries = b.entries[:2]
	assert.False(t, b.timedOut())

	b.entries = make([]*entry, 3)
	o.opts.NoTimeout = true
	assert.False(t, b.timedOut())
}
