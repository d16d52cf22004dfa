package binder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"planforge/sql"
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
		store.NewColumn("c", sql.NewDescriptor(sql.SmallintID, true)),
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

func newTestBinder(t *testing.T) (*Binder, *tree.CompilerContext) {
	cat := testCatalog(t)
	ctx := tree.NewCompilerContext(cat, cat)
	return New(ctx, DefaultOptions()), ctx
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

func bindQuery(t *testing.T, b *Binder, stmt ast.Stmt) tree.ResultSetNode {
	t.Helper()
	node, err := b.Bind(stmt)
	require.NoError(t, err)
	cursor, ok := node.(*tree.Cursor)
	require.True(t, ok)
	return cursor.Query
}

func TestBindSelectTypesParameterFromContext(t *testing.T) {
	b, ctx := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"), col("", "b"))
	stmt.Where = &ast.EqualOper{L: col("", "a"), R: &ast.Parameter{}}

	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.Equal(t, []string{"A", "B"}, sel.ResultColumns().Names())
	require.Equal(t, sql.IntegerID, sel.Columns[0].Type().TypeID)
	require.False(t, sel.Columns[0].Type().Nullable)

	params := ctx.Parameters()
	require.Len(t, params, 1)
	require.True(t, params[0].Resolved())
	require.Equal(t, sql.IntegerID, params[0].Type().TypeID)
	require.True(t, params[0].Type().Nullable)

	ref := sel.Columns[0].Expression.(*tree.ColumnReference)
	require.Equal(t, 0, ref.TableNumber)
	require.Equal(t, 1, ref.ColumnNumber)
	require.Equal(t, 0, ref.SourceLevel)
}

func TestBindNameResolutionErrors(t *testing.T) {
	cases := []struct {
		name string
		stmt ast.Stmt
		kind interface{ Is(error) bool }
	}{
		{
			"ambiguous",
			selectOf([]ast.FromItem{table("t1", ""), table("t2", "")}, col("", "a")),
			sql.ErrAmbiguousColumn,
		},
		{
			"unknown column",
			selectOf([]ast.FromItem{table("t1", "")}, col("", "zz")),
			sql.ErrColumnNotFound,
		},
		{
			"unknown table",
			selectOf([]ast.FromItem{table("nope", "")}, col("", "a")),
			sql.ErrTableNotFound,
		},
		{
			"duplicate correlation",
			selectOf([]ast.FromItem{table("t1", "x"), table("t2", "x")}, col("x", "a")),
			sql.ErrDuplicateCorrelationName,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, _ := newTestBinder(t)
			_, err := b.Bind(c.stmt)
			require.Error(t, err)
			require.True(t, c.kind.Is(err), err.Error())
			require.Equal(t, sql.CategoryNameResolution, sql.Category(err))
		})
	}
}

func TestBindParameterErrors(t *testing.T) {
	b, _ := newTestBinder(t)
	_, err := b.Bind(selectOf([]ast.FromItem{table("t1", "")}, &ast.Parameter{}))
	require.True(t, sql.ErrParameterTypeUnknown.Is(err))
	require.Equal(t, sql.CategoryParameter, sql.Category(err))

	b, _ = newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.IsNullOper{L: &ast.Parameter{}}
	_, err = b.Bind(stmt)
	require.True(t, sql.ErrParameterNotAllowed.Is(err))

	b, _ = newTestBinder(t)
	stmt = selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.EqualOper{L: &ast.Parameter{}, R: &ast.Parameter{}}
	_, err = b.Bind(stmt)
	require.True(t, sql.ErrParameterTypeUnknown.Is(err))

	b, _ = newTestBinder(t)
	stmt.Where = &ast.EqualOper{L: &ast.Literal{Value: sql.NewNull(sql.IntegerID)}, R: &ast.Parameter{}}
	_, err = b.Bind(stmt)
	require.True(t, sql.ErrUntypedNull.Is(err))
}

func TestBindUntypedNullInSelectList(t *testing.T) {
	b, _ := newTestBinder(t)
	_, err := b.Bind(selectOf([]ast.FromItem{table("t1", "")}, &ast.Literal{Value: sql.NewNull(sql.IntegerID)}))
	require.True(t, sql.ErrUntypedNull.Is(err))
	require.Equal(t, sql.CategoryType, sql.Category(err))
}

func TestBindAggregates(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")},
		&ast.Function{FuncName: "count", Args: []ast.Expression{col("", "a")}},
		&ast.Function{FuncName: "sum", Args: []ast.Expression{col("", "c")}},
		&ast.Function{FuncName: "max", Args: []ast.Expression{col("", "b")}},
	)
	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.Len(t, sel.Aggregates, 3)
	require.Len(t, sel.AggregateColumns, 3)

	// a is NOT NULL so COUNT(a) counts rows
	require.Equal(t, tree.AggCountStar, sel.Aggregates[0].Func)
	require.Equal(t, sql.IntegerID, sel.Columns[0].Type().TypeID)
	require.False(t, sel.Columns[0].Type().Nullable)

	require.Equal(t, sql.IntegerID, sel.Columns[1].Type().TypeID)
	require.True(t, sel.Columns[1].Type().Nullable)
	require.Equal(t, sql.VarcharID, sel.Columns[2].Type().TypeID)

	for i, agg := range sel.Aggregates {
		vc := agg.ReplaceWithColumn(&sel.AggregateColumns, sel.Number)
		require.Same(t, sel.Columns[i].Expression, vc)
	}
	require.Len(t, sel.AggregateColumns, 3)
}

func TestBindAggregateErrors(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.GreaterThanOper{L: &ast.Function{FuncName: "count", Star: true}, R: intLit(1)}
	_, err := b.Bind(stmt)
	require.True(t, sql.ErrAggregateNotAllowed.Is(err))

	b, _ = newTestBinder(t)
	nested := &ast.Function{FuncName: "sum", Args: []ast.Expression{
		&ast.Function{FuncName: "max", Args: []ast.Expression{col("", "a")}},
	}}
	_, err = b.Bind(selectOf([]ast.FromItem{table("t1", "")}, nested))
	require.True(t, sql.ErrNestedAggregate.Is(err))
}

func TestBindGroupingValidation(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "b"), &ast.Function{FuncName: "count", Star: true})
	_, err := b.Bind(stmt)
	require.True(t, sql.ErrNotGroupingExpression.Is(err))

	b, _ = newTestBinder(t)
	stmt.GroupBy = []ast.Expression{col("", "b")}
	stmt.Having = &ast.GreaterThanOper{L: &ast.Function{FuncName: "count", Star: true}, R: intLit(1)}
	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.Len(t, sel.GroupBy, 1)
	require.NotNil(t, sel.Having)
	require.Len(t, sel.Aggregates, 2)

	b, _ = newTestBinder(t)
	stmt.Having = &ast.GreaterThanOper{L: col("", "c"), R: intLit(1)}
	_, err = b.Bind(stmt)
	require.True(t, sql.ErrNotGroupingExpression.Is(err))
}

func TestBindConcatenationWidth(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")},
		&ast.ConcatOper{L: col("", "b"), R: col("", "b")},
		&ast.ConcatOper{L: col("", "b"), R: col("", "a")},
	)
	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.Equal(t, sql.VarcharID, sel.Columns[0].Type().TypeID)
	require.Equal(t, 20, sel.Columns[0].Type().MaxWidth)

	cc := sel.Columns[1].Expression.(*tree.Concatenation)
	cast, ok := cc.Right.(*tree.Cast)
	require.True(t, ok)
	require.True(t, cast.Implicit)
	require.Equal(t, sql.VarcharID, cast.Type().TypeID)
}

func TestBindRewrites(t *testing.T) {
	b, ctx := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.AndOper{
		L: &ast.BetweenExpr{Expr: col("", "a"), Low: intLit(1), High: &ast.Parameter{}},
		R: &ast.InListExpr{Expr: col("", "c"), List: []ast.Expression{intLit(1), intLit(2)}, Not: true},
	}
	sel := bindQuery(t, b, stmt).(*tree.Select)
	and := sel.Where.(*tree.And)

	between := and.Left.(*tree.And)
	require.Equal(t, tree.RelGE, between.Left.(*tree.BinaryRelational).Op)
	require.Equal(t, tree.RelLE, between.Right.(*tree.BinaryRelational).Op)
	require.NotSame(t, between.Left.(*tree.BinaryRelational).Left, between.Right.(*tree.BinaryRelational).Left)
	require.Equal(t, sql.IntegerID, ctx.Parameters()[0].Type().TypeID)

	not := and.Right.(*tree.Not)
	or := not.Operand.(*tree.Or)
	require.Equal(t, tree.RelEQ, or.Left.(*tree.BinaryRelational).Op)
}

func TestBindSimpleCaseAndNullIf(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")},
		&ast.CaseExpr{
			Operand: col("", "a"),
			Whens:   []*ast.When{{Cond: intLit(1), Result: &ast.Literal{Value: sql.NewNull(sql.IntegerID)}}},
			Else:    col("", "c"),
		},
		&ast.NullIfExpr{L: col("", "a"), R: intLit(0)},
	)
	sel := bindQuery(t, b, stmt).(*tree.Select)
	cond := sel.Columns[0].Expression.(*tree.Conditional)
	require.IsType(t, &tree.BinaryRelational{}, cond.Whens[0].Cond)
	require.IsType(t, &tree.Cast{}, cond.Whens[0].Then)
	require.Equal(t, sql.SmallintID, cond.Type().TypeID)
	require.True(t, cond.Type().Nullable)

	nullif := sel.Columns[1].Expression.(*tree.Conditional)
	require.Equal(t, sql.IntegerID, nullif.Type().TypeID)
	require.True(t, nullif.Type().Nullable)
}

func TestBindOrderByHiddenColumn(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "b"))
	stmt.Order = []*ast.Order{{Expr: col("", "a"), Desc: true}, {Expr: intLit(1)}}
	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.Equal(t, 1, sel.Hidden)
	require.Len(t, sel.Columns, 2)
	require.Len(t, sel.ResultColumns(), 1)
	require.Equal(t, 2, sel.OrderBy[0].Position)
	require.True(t, sel.OrderBy[0].Desc)
	require.Equal(t, 1, sel.OrderBy[1].Position)

	b, _ = newTestBinder(t)
	stmt.Distinct = true
	_, err := b.Bind(stmt)
	require.True(t, sql.ErrUnsupported.Is(err))
}

func TestBindRightJoinBecomesLeft(t *testing.T) {
	b, _ := newTestBinder(t)
	join := &ast.FromItemJoinTable{
		Left: table("t1", ""), Right: table("t2", ""), Type: ast.RightJoin,
		Predicate: &ast.EqualOper{L: col("t1", "a"), R: col("t2", "a")},
	}
	sel := bindQuery(t, b, selectOf([]ast.FromItem{join}, col("t1", "a"), col("t2", "d"))).(*tree.Select)
	j := sel.From[0].(*tree.Join)
	require.Equal(t, tree.LeftOuterJoin, j.Type)
	require.Equal(t, "T2", j.Left.ExposedName())
	require.True(t, sel.Columns[0].Type().Nullable)
	require.Len(t, j.Columns, 5)
}

func TestBindOnSeesOnlyJoinTables(t *testing.T) {
	b, _ := newTestBinder(t)
	join := &ast.FromItemJoinTable{
		Left: table("t2", ""), Right: table("t2", "x"), Type: ast.InnerJoin,
		Predicate: &ast.EqualOper{L: col("t1", "a"), R: col("x", "a")},
	}
	_, err := b.Bind(selectOf([]ast.FromItem{table("t1", ""), join}, col("t1", "a")))
	require.True(t, sql.ErrColumnNotFound.Is(err))
}

func TestBindCorrelatedSubquery(t *testing.T) {
	b, _ := newTestBinder(t)
	inner := selectOf([]ast.FromItem{table("t2", "")}, col("", "d"))
	inner.Where = &ast.EqualOper{L: col("t2", "a"), R: col("t1", "a")}
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.ExistsExpr{Query: inner}

	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.Len(t, sel.Subqueries, 1)
	sq := sel.Subqueries[0]
	require.True(t, sq.Correlated)
	require.Equal(t, tree.SubqueryExists, sq.SubType)
	var v tree.ValueNode = sq
	require.NotNil(t, v.Type())
	require.Equal(t, sql.BooleanID, v.Type().TypeID)
	require.False(t, v.Type().Nullable)

	innerSel := sq.Query.(*tree.Select)
	require.Equal(t, 1, innerSel.NestingLevel)
	rel := innerSel.Where.(*tree.BinaryRelational)
	require.Equal(t, 1, rel.Left.(*tree.ColumnReference).SourceLevel)
	require.Equal(t, 0, rel.Right.(*tree.ColumnReference).SourceLevel)
}

func TestBindScalarSubqueryColumnCount(t *testing.T) {
	b, _ := newTestBinder(t)
	inner := selectOf([]ast.FromItem{table("t2", "")}, col("", "a"), col("", "d"))
	stmt := selectOf([]ast.FromItem{table("t1", "")}, &ast.SubqueryExpr{Query: inner})
	_, err := b.Bind(stmt)
	require.True(t, sql.ErrColumnCountMismatch.Is(err))
}

func TestBindDerivedTable(t *testing.T) {
	b, _ := newTestBinder(t)
	inner := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"), &ast.AddOper{L: col("", "c"), R: intLit(1)})
	dt := &ast.FromItemSubquery{Query: inner, Alias: "v", ColumnAliases: []string{"x", "y"}}
	sel := bindQuery(t, b, selectOf([]ast.FromItem{dt}, col("v", "y"))).(*tree.Select)

	fs := sel.From[0].(*tree.FromSubquery)
	require.Equal(t, []string{"X", "Y"}, fs.Columns.Names())
	require.Equal(t, 1, fs.Query.(*tree.Select).NestingLevel)
	ref := sel.Columns[0].Expression.(*tree.ColumnReference)
	require.Equal(t, fs.Number, ref.TableNumber)
	require.Equal(t, 2, ref.ColumnNumber)

	b, _ = newTestBinder(t)
	_, err := b.Bind(selectOf([]ast.FromItem{&ast.FromItemSubquery{Query: inner}}, col("", "a")))
	require.True(t, sql.ErrUnsupported.Is(err))
}

func TestBindTableProperties(t *testing.T) {
	b, _ := newTestBinder(t)
	from := &ast.FromItemTable{Name: "t1", Properties: map[string]string{"index": "t1_a", "joinStrategy": "hash"}}
	stmt := selectOf([]ast.FromItem{from}, col("", "a"))
	stmt.FromProperties = map[string]string{"joinOrder": "FIXED"}
	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.True(t, sel.FixedJoinOrder)
	require.Equal(t, map[string]string{PropIndex: "T1_A", PropJoinStrategy: "HASH"}, sel.From[0].Properties())

	b, _ = newTestBinder(t)
	from.Properties = map[string]string{"index": "missing"}
	_, err := b.Bind(selectOf([]ast.FromItem{from}, col("", "a")))
	require.True(t, sql.ErrObjectNotFound.Is(err))
}

func TestBindSetOperationTyping(t *testing.T) {
	b, ctx := newTestBinder(t)
	stmt := &ast.SetOperationStmt{
		Type:  ast.Union,
		Left:  selectOf([]ast.FromItem{table("t1", "")}, col("", "a"), &ast.Parameter{}),
		Right: selectOf([]ast.FromItem{table("t2", "")}, col("", "d"), col("", "a")),
		Order: []*ast.Order{{Expr: intLit(1)}},
	}
	so := bindQuery(t, b, stmt).(*tree.SetOperator)
	require.Equal(t, tree.SetUnion, so.Op)
	require.Equal(t, sql.DoubleID, so.Columns[0].Type().TypeID)
	require.True(t, so.Columns[0].Type().Nullable)
	require.Equal(t, sql.IntegerID, ctx.Parameters()[0].Type().TypeID)
	require.Len(t, so.OrderBy, 1)

	b, _ = newTestBinder(t)
	stmt.Right = selectOf([]ast.FromItem{table("t2", "")}, col("", "d"))
	_, err := b.Bind(stmt)
	require.True(t, sql.ErrColumnCountMismatch.Is(err))
}

func TestBindValues(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := &ast.ValuesStmt{Rows: [][]ast.Expression{
		{intLit(1), &ast.Literal{Value: sql.NewNull(sql.IntegerID)}},
		{intLit(2), &ast.Literal{Value: sql.NewDouble(1.5)}},
	}}
	so := bindQuery(t, b, stmt).(*tree.SetOperator)
	require.True(t, so.All)
	require.Equal(t, []string{"1", "2"}, so.Columns.Names())
	require.Equal(t, sql.DoubleID, so.Columns[1].Type().TypeID)
}

func TestBindInsert(t *testing.T) {
	b, ctx := newTestBinder(t)
	stmt := &ast.InsertStmt{
		TableName: "t1",
		Values: [][]ast.Expression{
			{intLit(1), &ast.Literal{Value: sql.NewNull(sql.VarcharID)}, &ast.Parameter{}},
		},
	}
	node, err := b.Bind(stmt)
	require.NoError(t, err)
	ins := node.(*tree.Insert)
	require.Len(t, ins.TargetColumns, 3)
	require.Equal(t, sql.SmallintID, ctx.Parameters()[0].Type().TypeID)

	b, _ = newTestBinder(t)
	stmt.Columns = []string{"a", "b"}
	_, err = b.Bind(stmt)
	require.True(t, sql.ErrColumnCountMismatch.Is(err))

	b, _ = newTestBinder(t)
	stmt.Columns = nil
	stmt.Values[0][0] = &ast.Literal{Value: sql.NewBool(true)}
	_, err = b.Bind(stmt)
	require.True(t, sql.ErrTypeMismatch.Is(err))
}

func TestBindUpdateAndDelete(t *testing.T) {
	b, _ := newTestBinder(t)
	up := &ast.UpdateStmt{
		TableName: "t1",
		Set:       []*ast.ExprColumn{{ColumnName: "c", Expr: &ast.Parameter{}}},
		Where:     &ast.EqualOper{L: col("", "a"), R: intLit(3)},
	}
	node, err := b.Bind(up)
	require.NoError(t, err)
	u := node.(*tree.Update)
	require.Equal(t, RowLocationName, u.Source.Columns[0].Name)
	require.Len(t, u.Source.Columns, 1+3+1)
	require.True(t, u.Target.NeedsRowLocation)
	require.NotNil(t, u.Where)

	b, _ = newTestBinder(t)
	_, err = b.Bind(&ast.DeleteStmt{TableName: "t1", CurrentOf: "c1"})
	require.True(t, sql.ErrObjectNotFound.Is(err))
}

type cursors map[string]*tree.CursorInfo

func (c cursors) LookupCursor(name string) (*tree.CursorInfo, bool) {
	info, ok := c[name]
	return info, ok
}

func TestBindPositionedUpdate(t *testing.T) {
	b, ctx := newTestBinder(t)
	ctx.Cursors = cursors{"C1": {Name: "C1", Schema: "APP", Table: "T1", UpdateColumns: []string{"B"}}}
	up := &ast.UpdateStmt{
		TableName: "t1",
		Set:       []*ast.ExprColumn{{ColumnName: "b", Expr: &ast.Literal{Value: sql.NewVarchar("x")}}},
		CurrentOf: "c1",
	}
	node, err := b.Bind(up)
	require.NoError(t, err)
	require.Equal(t, "C1", node.(*tree.Update).CurrentOf)

	up.Set[0].ColumnName = "c"
	up.Set[0].Expr = intLit(1)
	_, err = b.Bind(up)
	require.True(t, sql.ErrCursorNotUpdatable.Is(err))
}

func TestBindCursorForUpdate(t *testing.T) {
	b, _ := newTestBinder(t)
	node, err := b.Bind(&ast.CursorStmt{
		Name:      "c1",
		Query:     selectOf([]ast.FromItem{table("t1", "")}, col("", "a")),
		ForUpdate: true,
	})
	require.NoError(t, err)
	c := node.(*tree.Cursor)
	require.Equal(t, tree.Updatable, c.UpdateMode)
	require.Equal(t, []string{"A", "B", "C"}, c.UpdateColumns)

	b, _ = newTestBinder(t)
	_, err = b.Bind(&ast.CursorStmt{
		Name:      "c2",
		Query:     selectOf([]ast.FromItem{table("t1", ""), table("t2", "")}, col("t1", "a")),
		ForUpdate: true,
	})
	require.True(t, sql.ErrCursorNotUpdatable.Is(err))
}

func TestBindMerge(t *testing.T) {
	b, _ := newTestBinder(t)
	stmt := &ast.MergeStmt{
		Target: table("t1", ""),
		Source: table("t2", "s"),
		On:     &ast.EqualOper{L: col("t1", "a"), R: col("s", "a")},
		Clauses: []*ast.MergeClause{
			{Matched: true, Action: ast.MergeDelete},
			{Matched: false, Action: ast.MergeInsert, Columns: []string{"a", "c"},
				Values: []ast.Expression{col("s", "a"), &ast.Parameter{}}},
		},
	}
	node, err := b.Bind(stmt)
	require.NoError(t, err)
	m := node.(*tree.Merge)
	require.Len(t, m.Clauses, 2)
	require.Len(t, m.Driving.Columns, 3)
	require.True(t, m.Driving.Columns[0].Type().Nullable)
	j := m.Driving.From[0].(*tree.Join)
	require.Equal(t, tree.LeftOuterJoin, j.Type)
	require.Same(t, m.Target, j.Right)

	b, _ = newTestBinder(t)
	stmt.Clauses[1].Values[0] = col("t1", "a")
	_, err = b.Bind(stmt)
	require.True(t, sql.ErrColumnNotFound.Is(err))

	b, _ = newTestBinder(t)
	stmt.Clauses = []*ast.MergeClause{{Matched: true, Action: ast.MergeUpdate}}
	_, err = b.Bind(stmt)
	require.Equal(t, sql.CategoryUnsupported, sql.Category(err))
}

func TestBindCreateTableLimits(t *testing.T) {
	intType := &ast.TypeSpec{Name: "INTEGER"}
	b, _ := newTestBinder(t)
	node, err := b.Bind(&ast.CreateStmt{
		Name: "t3",
		Columns: []*ast.Column{
			{Name: "id", Type: intType, PrimaryKey: true},
			{Name: "v", Type: &ast.TypeSpec{Name: "VARCHAR", Width: 20}, Nullable: true, Unique: true},
		},
	})
	require.NoError(t, err)
	ct := node.(*tree.CreateTable)
	require.Equal(t, "APP", ct.Schema)
	require.False(t, ct.Columns[0].Type.Nullable)
	require.Len(t, ct.Indexes, 2)

	cases := []struct {
		name string
		opts Options
		stmt *ast.CreateStmt
		kind interface{ Is(error) bool }
	}{
		{"duplicate column", DefaultOptions(), &ast.CreateStmt{Name: "x", Columns: []*ast.Column{
			{Name: "a", Type: intType}, {Name: "A", Type: intType}}}, sql.ErrDuplicateColumn},
		{"two primary keys", DefaultOptions(), &ast.CreateStmt{Name: "x",
			Columns:     []*ast.Column{{Name: "a", Type: intType, PrimaryKey: true}, {Name: "b", Type: intType}},
			Constraints: []*ast.Constraint{{Type: ast.PRIMARYKEYConstraint, Columns: []string{"b"}}}}, sql.ErrMultiplePrimaryKeys},
		{"too many columns", Options{MaxColumnsInTable: 1, MaxIndexesInTable: 10}, &ast.CreateStmt{Name: "x", Columns: []*ast.Column{
			{Name: "a", Type: intType}, {Name: "b", Type: intType}}}, sql.ErrTooManyColumns},
		{"too many indexes", Options{MaxColumnsInTable: 10, MaxIndexesInTable: 1}, &ast.CreateStmt{Name: "x", Columns: []*ast.Column{
			{Name: "a", Type: intType, Unique: true}, {Name: "b", Type: intType, Unique: true}}}, sql.ErrTooManyIndexes},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cat := testCatalog(t)
			b := New(tree.NewCompilerContext(cat, cat), c.opts)
			_, err := b.Bind(c.stmt)
			require.True(t, c.kind.Is(err))
			require.Equal(t, sql.CategoryConstraint, sql.Category(err))
		})
	}
}

func TestBindRowNumber(t *testing.T) {
	b, _ := newTestBinder(t)
	sel := bindQuery(t, b, selectOf([]ast.FromItem{table("t1", "")},
		col("", "a"), &ast.WindowFunction{FuncName: "row_number"})).(*tree.Select)
	require.Len(t, sel.WindowFunctions, 1)
	require.Equal(t, sql.BigintID, sel.Columns[1].Type().TypeID)
	require.False(t, sel.Columns[1].Type().Nullable)

	b, _ = newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Where = &ast.GreaterThanOper{L: &ast.WindowFunction{FuncName: "row_number"}, R: intLit(1)}
	_, err := b.Bind(stmt)
	require.True(t, sql.ErrUnsupported.Is(err))
}

func TestBindStarExpansion(t *testing.T) {
	b, _ := newTestBinder(t)
	sel := bindQuery(t, b, selectOf([]ast.FromItem{table("t1", "x"), table("t2", "")}, &ast.Star{TableName: "x"}, &ast.Star{})).(*tree.Select)
	require.Equal(t, []string{"A", "B", "C", "A", "B", "C", "A", "D"}, sel.Columns.Names())
}

func TestBindFetch(t *testing.T) {
	b, ctx := newTestBinder(t)
	stmt := selectOf([]ast.FromItem{table("t1", "")}, col("", "a"))
	stmt.Offset = intLit(2)
	stmt.Limit = &ast.Parameter{}
	sel := bindQuery(t, b, stmt).(*tree.Select)
	require.NotNil(t, sel.Offset)
	require.Equal(t, sql.BigintID, ctx.Parameters()[0].Type().TypeID)

	b, _ = newTestBinder(t)
	stmt.Offset = intLit(-1)
	_, err := b.Bind(stmt)
	require.True(t, sql.ErrUnsupported.Is(err))
}

func TestBindRoutineCall(t *testing.T) {
	b, ctx := newTestBinder(t)
	ctx.Catalog.(*store.MemoryCatalog).CreateRoutine(&store.RoutineDescriptor{
		Name:   "scale",
		Params: []*sql.DataTypeDescriptor{sql.NewDescriptor(sql.DoubleID, false), sql.NewDescriptor(sql.IntegerID, false)},
		Return: sql.NewDescriptor(sql.DoubleID, false),
	})

	stmt := selectOf([]ast.FromItem{table("t1", "")},
		&ast.Function{FuncName: "app.scale", Args: []ast.Expression{col("", "c"), &ast.Parameter{}}})
	sel := bindQuery(t, b, stmt).(*tree.Select)
	call, ok := sel.Columns[0].Expression.(*tree.RoutineCall)
	require.True(t, ok)
	require.Equal(t, "SCALE", call.Name)
	require.True(t, call.Type().Nullable)

	cast, ok := call.Args[0].(*tree.Cast)
	require.True(t, ok)
	require.True(t, cast.Implicit)
	require.Equal(t, sql.DoubleID, cast.Type().TypeID)
	param := call.Args[1].(*tree.Parameter)
	require.True(t, param.Resolved())
	require.Equal(t, sql.IntegerID, param.Type().TypeID)

	b, _ = newTestBinder(t)
	_, err := b.Bind(selectOf([]ast.FromItem{table("t1", "")}, &ast.Function{FuncName: "nosuch", Args: []ast.Expression{intLit(1)}}))
	require.True(t, sql.IsKind(err, sql.ErrObjectNotFound))
}
