package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/sql"
	"planforge/sql/binder"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

func testCatalog(t *testing.T) *store.MemoryCatalog {
	t.Helper()
	cat := store.NewMemoryCatalog()
	_, err := cat.CreateTable("", "t1", []*store.ColumnDescriptor{
		store.NewColumn("a", sql.NewDescriptor(sql.IntegerID, false)),
		store.NewColumn("b", sql.NewStringDescriptor(sql.VarcharID, 10, true)),
		store.NewColumn("c", sql.NewDescriptor(sql.IntegerID, true)),
	})
	require.NoError(t, err)
	_, err = cat.CreateTable("", "t2", []*store.ColumnDescriptor{
		store.NewColumn("a", sql.NewDescriptor(sql.IntegerID, true)),
		store.NewColumn("d", sql.NewDescriptor(sql.DoubleID, true)),
	})
	require.NoError(t, err)
	_, err = cat.CreateIndex("", "t1", "t1_a", true, "a")
	require.NoError(t, err)
	return cat
}

func col(table, name string) *ast.Field { return &ast.Field{TableName: table, ColumnName: name} }

func intLit(i int64) *ast.Literal { return &ast.Literal{Value: sql.NewInt(i)} }

func table(name, alias string) *ast.FromItemTable { return &ast.FromItemTable{Name: name, Alias: alias} }

func selectOf(from []ast.FromItem, exprs ...ast.Expression) *ast.SelectStmt {
	s := &ast.SelectStmt{From: from}
	for _, e := range exprs {
		s.Select = append(s.Select, &ast.ExprAS{Expr: e})
	}
	return s
}

// prepared binds and preprocesses stmt and returns the top query block.
func prepared(t *testing.T, stmt ast.Stmt) (*tree.Select, *tree.CompilerContext) {
	t.Helper()
	cat := testCatalog(t)
	ctx := tree.NewCompilerContext(cat, cat)
	node, err := binder.New(ctx, binder.DefaultOptions()).Bind(stmt)
	require.NoError(t, err)
	require.NoError(t, New(ctx).Preprocess(node))
	sel, ok := node.(*tree.Cursor).Query.(*tree.Select)
	require.True(t, ok)
	return sel, ctx
}

func relOps(preds tree.PredicateList) []tree.RelOp {
	var out []tree.RelOp
	for _, p := range preds {
		if rel, ok := p.Expr.(*tree.BinaryRelational); ok {
			out = append(out, rel.Op)
		}
	}
	return out
}

func TestNotPushedThroughAndOr(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.NotOper{L: &ast.OrOper{
		L: &ast.GreaterThanOper{L: col("", "a"), R: intLit(1)},
		R: &ast.EqualOper{L: col("", "c"), R: intLit(2)},
	}}
	sel, _ := prepared(t, stmt)
	require.Nil(t, sel.Where)
	require.Len(t, sel.WherePredicates, 2)
	assert.Equal(t, []tree.RelOp{tree.RelLE, tree.RelNE}, relOps(sel.WherePredicates))

	stmt.Where = &ast.NotOper{L: &ast.AndOper{
		L: &ast.EqualOper{L: col("", "a"), R: intLit(1)},
		R: &ast.IsNullOper{L: col("", "b")},
	}}
	sel, _ = prepared(t, stmt)
	require.Len(t, sel.WherePredicates, 1)
	or, ok := sel.WherePredicates[0].Expr.(*tree.Or)
	require.True(t, ok)
	assert.Equal(t, tree.RelNE, or.Left.(*tree.BinaryRelational).Op)
	assert.True(t, or.Right.(*tree.IsNull).Not)
}

func TestNotOfLikeBecomesEqualsFalse(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.NotOper{L: &ast.LikeOper{L: col("", "b"), R: &ast.Literal{Value: sql.NewVarchar("x%")}}}
	sel, _ := prepared(t, stmt)
	require.Len(t, sel.WherePredicates, 1)
	rel, ok := sel.WherePredicates[0].Expr.(*tree.BinaryRelational)
	require.True(t, ok)
	assert.Equal(t, tree.RelEQ, rel.Op)
	assert.Equal(t, tree.KindLike, rel.Left.Kind())
	assert.Equal(t, false, rel.Right.(*tree.Constant).Value.V)
}

func TestPredicateClassification(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t1", ""), table("t2", "")}, col("t1", "b"))
	stmt.Where = &ast.AndOper{
		L: &ast.EqualOper{L: col("t1", "a"), R: col("t2", "a")},
		R: &ast.AndOper{
			L: &ast.GreaterThanOper{L: col("t1", "c"), R: &ast.Parameter{}},
			R: &ast.LessThanOper{L: &ast.AddOper{L: col("t1", "c"), R: col("t2", "a")}, R: intLit(10)},
		},
	}
	sel, _ := prepared(t, stmt)
	require.Len(t, sel.WherePredicates, 3)

	eq, search, other := sel.WherePredicates[0], sel.WherePredicates[1], sel.WherePredicates[2]
	assert.True(t, eq.Join)
	assert.True(t, eq.Equijoin)
	assert.NotZero(t, eq.EquivalenceClass)
	assert.ElementsMatch(t, []int{0, 1}, eq.Tables.ToSlice())

	assert.False(t, search.Join)
	assert.True(t, search.Qualifier)
	assert.ElementsMatch(t, []int{0}, search.Tables.ToSlice())

	assert.True(t, other.Join)
	assert.False(t, other.Equijoin)
	assert.False(t, other.Qualifier)
	assert.Less(t, eq.Number, search.Number)
	assert.Less(t, search.Number, other.Number)
}

func TestTransitiveClosure(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t1", "x"), table("t1", "y"), table("t2", "z")}, col("x", "b"))
	stmt.Where = &ast.AndOper{
		L: &ast.EqualOper{L: col("x", "a"), R: col("y", "a")},
		R: &ast.AndOper{
			L: &ast.EqualOper{L: col("y", "a"), R: col("z", "a")},
			R: &ast.EqualOper{L: col("x", "a"), R: intLit(3)},
		},
	}
	sel, _ := prepared(t, stmt)

	var redundant, search int
	classes := map[int]bool{}
	for _, p := range sel.WherePredicates {
		if p.Equijoin {
			classes[p.EquivalenceClass] = true
		}
		if p.Redundant {
			redundant++
			assert.True(t, p.Equijoin)
			assert.ElementsMatch(t, []int{0, 2}, p.Tables.ToSlice())
		}
		if p.Qualifier {
			search++
			assert.False(t, p.Redundant, "search clauses on each member stay in selectivity")
		}
	}
	assert.Len(t, classes, 1, "all equijoins share one class")
	assert.Equal(t, 1, redundant)
	assert.Equal(t, 3, search, "x.a = 3 propagates to y.a and z.a")
	assert.Len(t, sel.WherePredicates, 6)
}

func TestInnerJoinFlattened(t *testing.T) {
	stmt := selectOf([]ast.FromItem{&ast.FromItemJoinTable{
		Left: table("t1", ""), Right: table("t2", ""), Type: ast.InnerJoin,
		Predicate: &ast.EqualOper{L: col("t1", "a"), R: col("t2", "a")},
	}}, col("t1", "b"))
	sel, _ := prepared(t, stmt)
	require.Len(t, sel.From, 2)
	for _, f := range sel.From {
		_, ok := tree.Unwrap(f).(*tree.FromBaseTable)
		assert.True(t, ok)
	}
	require.Len(t, sel.WherePredicates, 1)
	assert.True(t, sel.WherePredicates[0].Equijoin)
}

func TestLeftJoinKeepsOnPredicates(t *testing.T) {
	stmt := selectOf([]ast.FromItem{&ast.FromItemJoinTable{
		Left: table("t1", ""), Right: table("t2", ""), Type: ast.LeftJoin,
		Predicate: &ast.AndOper{
			L: &ast.EqualOper{L: col("t1", "a"), R: col("t2", "a")},
			R: &ast.GreaterThanOper{L: col("t2", "d"), R: intLit(0)},
		},
	}}, col("t1", "b"))
	sel, _ := prepared(t, stmt)
	require.Len(t, sel.From, 1)
	j, ok := sel.From[0].(*tree.Join)
	require.True(t, ok)
	assert.Nil(t, j.On)
	assert.Len(t, j.OnPredicates, 2)
	assert.Empty(t, sel.WherePredicates)
	_, ok = j.Right.(*tree.ProjectRestrict)
	assert.True(t, ok)
}

func TestDerivedTableFlattened(t *testing.T) {
	inner := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	inner.Select[0].As = "x"
	inner.Where = &ast.GreaterThanOper{L: col("", "c"), R: intLit(1)}
	stmt := selectOf([]ast.FromItem{&ast.FromItemSubquery{Query: inner, Alias: "v"}}, col("v", "x"))
	stmt.Where = &ast.EqualOper{L: col("v", "x"), R: intLit(2)}

	sel, _ := prepared(t, stmt)
	require.Len(t, sel.From, 1)
	bt, ok := tree.Unwrap(sel.From[0]).(*tree.FromBaseTable)
	require.True(t, ok)
	assert.Equal(t, 0, bt.NestingLevel)

	ref, ok := sel.Columns[0].Expression.(*tree.ColumnReference)
	require.True(t, ok)
	assert.Equal(t, bt.Number, ref.TableNumber)
	assert.Equal(t, 0, ref.SourceLevel)
	require.Len(t, sel.WherePredicates, 2)
	for _, p := range sel.WherePredicates {
		assert.True(t, p.Qualifier)
		assert.True(t, p.Tables.Contains(bt.Number))
	}
}

func TestDistinctDerivedTableKept(t *testing.T) {
	inner := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	inner.Distinct = true
	stmt := selectOf([]ast.FromItem{&ast.FromItemSubquery{Query: inner, Alias: "v"}}, col("v", "a"))
	sel, _ := prepared(t, stmt)
	require.Len(t, sel.From, 1)
	fs, ok := tree.Unwrap(sel.From[0]).(*tree.FromSubquery)
	require.True(t, ok)
	assert.Equal(t, 1, fs.Query.(*tree.Select).NestingLevel)
}

func TestInSubqueryFlattenedOnUniqueColumn(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t2", "")}, col("t2", "d"))
	stmt.Where = &ast.InSubqueryExpr{Expr: col("t2", "a"), Query: selectOf([]ast.FromItem{table("t1", "")}, col("t1", "a"))}
	sel, _ := prepared(t, stmt)
	assert.Len(t, sel.From, 2)
	assert.Empty(t, sel.Subqueries)
	require.Len(t, sel.WherePredicates, 1)
	assert.True(t, sel.WherePredicates[0].Equijoin)
	bt := tree.Unwrap(sel.From[1]).(*tree.FromBaseTable)
	assert.Equal(t, "T1", bt.TableName)
	assert.Equal(t, 0, bt.NestingLevel)
}

func TestInSubqueryKeptWhenNotUnique(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("t1", "b"))
	stmt.Where = &ast.InSubqueryExpr{Expr: col("t1", "c"), Query: selectOf([]ast.FromItem{table("t2", "")}, col("t2", "a"))}
	sel, _ := prepared(t, stmt)
	assert.Len(t, sel.From, 1)
	assert.Len(t, sel.Subqueries, 1)
	require.Len(t, sel.WherePredicates, 1)
	assert.True(t, sel.WherePredicates[0].Subquery)
}

func TestProjectionKeepsReferencedColumns(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "b"))
	stmt.Where = &ast.EqualOper{L: col("", "c"), R: intLit(1)}
	sel, _ := prepared(t, stmt)
	pr, ok := sel.From[0].(*tree.ProjectRestrict)
	require.True(t, ok)
	assert.Equal(t, []string{"B", "C"}, pr.Columns.Names())
	assert.Equal(t, 2, pr.Columns[0].Position, "table positions are not renumbered")
}

func TestHavingBecomesPredicates(t *testing.T) {
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "c"))
	stmt.GroupBy = []ast.Expression{col("", "c")}
	stmt.Having = &ast.GreaterThanOper{L: &ast.Function{FuncName: "count", Star: true}, R: intLit(1)}
	sel, _ := prepared(t, stmt)
	assert.Nil(t, sel.Having)
	assert.Len(t, sel.HavingPredicates, 1)
	assert.True(t, sel.HasAggregation())
}

func TestStatementsWithoutQuery(t *testing.T) {
	cat := testCatalog(t)
	ctx := tree.NewCompilerContext(cat, cat)
	ct := ctx.Factory().CreateTable("APP", "T3")
	assert.NoError(t, New(ctx).Preprocess(ct))
}
