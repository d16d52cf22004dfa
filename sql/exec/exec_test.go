package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/sql"
	"planforge/sql/binder"
	"planforge/sql/optimizer"
	"planforge/sql/plan"
	"planforge/sql/preprocess"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

type fixture struct {
	cat     *store.MemoryCatalog
	backend *Backend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := store.NewMemoryCatalog()
	_, err := cat.CreateTable("", "emp", []*store.ColumnDescriptor{
		store.NewColumn("id", sql.NewDescriptor(sql.IntegerID, false)),
		store.NewColumn("name", sql.NewStringDescriptor(sql.VarcharID, 20, true)),
		store.NewColumn("dept", sql.NewDescriptor(sql.IntegerID, true)),
		store.NewColumn("salary", sql.NewDescriptor(sql.IntegerID, true)),
	})
	require.NoError(t, err)
	_, err = cat.CreateTable("", "dept", []*store.ColumnDescriptor{
		store.NewColumn("id", sql.NewDescriptor(sql.IntegerID, false)),
		store.NewColumn("dname", sql.NewStringDescriptor(sql.VarcharID, 20, true)),
	})
	require.NoError(t, err)
	_, err = cat.CreateTable("", "stage", []*store.ColumnDescriptor{
		store.NewColumn("id", sql.NewDescriptor(sql.IntegerID, false)),
		store.NewColumn("name", sql.NewStringDescriptor(sql.VarcharID, 20, true)),
	})
	require.NoError(t, err)
	_, err = cat.CreateIndex("", "emp", "emp_id", true, "id")
	require.NoError(t, err)
	_, err = cat.CreateIndex("", "emp", "emp_dept", false, "dept")
	require.NoError(t, err)

	require.NoError(t, cat.Insert("", "emp",
		sql.Row{sql.NewInt(1), sql.NewVarchar("ann"), sql.NewInt(10), sql.NewInt(100)},
		sql.Row{sql.NewInt(2), sql.NewVarchar("bob"), sql.NewInt(20), sql.NewInt(200)},
		sql.Row{sql.NewInt(3), sql.NewVarchar("cy"), sql.NewNull(sql.IntegerID), sql.NewInt(150)},
		sql.Row{sql.NewInt(4), sql.NewVarchar("dan"), sql.NewInt(10), sql.NewInt(300)},
	))
	require.NoError(t, cat.Insert("", "dept",
		sql.Row{sql.NewInt(10), sql.NewVarchar("eng")},
		sql.Row{sql.NewInt(20), sql.NewVarchar("ops")},
		sql.Row{sql.NewInt(30), sql.NewVarchar("hr")},
	))
	require.NoError(t, cat.Insert("", "stage",
		sql.Row{sql.NewInt(1), sql.NewVarchar("ann2")},
		sql.Row{sql.NewInt(9), sql.NewVarchar("zed")},
	))
	return &fixture{cat: cat, backend: New(cat)}
}

func (f *fixture) compile(t *testing.T, stmt ast.Stmt) (*plan.Plan, error) {
	t.Helper()
	ctx := tree.NewCompilerContext(f.cat, f.cat)
	defer func() { require.NoError(t, ctx.Reset()) }()
	node, err := binder.New(ctx, binder.DefaultOptions()).Bind(stmt)
	if err != nil {
		return nil, err
	}
	if err := preprocess.New(ctx).Preprocess(node); err != nil {
		return nil, err
	}
	if err := optimizer.New(ctx, optimizer.DefaultOptions()).Optimize(node); err != nil {
		return nil, err
	}
	return plan.NewBuilder(plan.DefaultOptions()).Generate(node, f.backend)
}

func (f *fixture) rows(t *testing.T, stmt ast.Stmt, params ...sql.Value) []sql.Row {
	t.Helper()
	p, err := f.compile(t, stmt)
	require.NoError(t, err)
	rows, err := p.Rows(params...)
	require.NoError(t, err)
	return rows
}

func (f *fixture) count(t *testing.T, stmt ast.Stmt) int64 {
	t.Helper()
	rows := f.rows(t, stmt)
	require.Len(t, rows, 1)
	return rows[0][0].V.(int64)
}

func field(table, name string) *ast.Field { return &ast.Field{TableName: table, ColumnName: name} }

func lit(v sql.Value) *ast.Literal { return &ast.Literal{Value: v} }

func intLit(i int64) *ast.Literal { return lit(sql.NewInt(i)) }

func from(items ...ast.FromItem) []ast.FromItem { return items }

func tbl(name, alias string, props ...string) *ast.FromItemTable {
	t := &ast.FromItemTable{Name: name, Alias: alias}
	if len(props) > 0 {
		t.Properties = map[string]string{}
		for i := 0; i+1 < len(props); i += 2 {
			t.Properties[props[i]] = props[i+1]
		}
	}
	return t
}

func selectOf(items []ast.FromItem, where ast.Expression, exprs ...ast.Expression) *ast.SelectStmt {
	s := &ast.SelectStmt{From: items, Where: where}
	for _, e := range exprs {
		s.Select = append(s.Select, &ast.ExprAS{Expr: e})
	}
	return s
}

func orderBy(s *ast.SelectStmt, exprs ...ast.Expression) *ast.SelectStmt {
	for _, e := range exprs {
		s.Order = append(s.Order, &ast.Order{Expr: e})
	}
	return s
}

// column flattens one column of rows into Go values.
func column(rows []sql.Row, i int) []any {
	out := make([]any, len(rows))
	for j, r := range rows {
		out[j] = r[i].V
	}
	return out
}

func TestScanAndFilter(t *testing.T) {
	f := newFixture(t)
	rows := f.rows(t, orderBy(selectOf(from(tbl("emp", "")),
		&ast.LikeOper{L: field("", "name"), R: lit(sql.NewVarchar("%n%"))},
		field("", "name")), field("", "id")))
	assert.Equal(t, []any{"ann", "dan"}, column(rows, 0))

	rows = f.rows(t, selectOf(from(tbl("emp", "")),
		&ast.IsNullOper{L: field("", "dept")}, field("", "name")))
	assert.Equal(t, []any{"cy"}, column(rows, 0))
}

func TestIndexRange(t *testing.T) {
	f := newFixture(t)
	stmt := orderBy(selectOf(from(tbl("emp", "", "index", "emp_id")),
		&ast.AndOper{
			L: &ast.GreaterThanOrEqualOper{L: field("", "id"), R: intLit(2)},
			R: &ast.LessThanOper{L: field("", "id"), R: intLit(4)},
		}, field("", "id"), field("", "name")), field("", "id"))
	rows := f.rows(t, stmt)
	assert.EqualValues(t, []any{int64(2), int64(3)}, column(rows, 0))
	assert.Equal(t, []any{"bob", "cy"}, column(rows, 1))
	assert.Positive(t, f.backend.Stats().IndexScans)

	byDept := selectOf(from(tbl("emp", "", "index", "emp_dept")),
		&ast.EqualOper{L: field("", "dept"), R: &ast.Parameter{}}, field("", "name"))
	p, err := f.compile(t, byDept)
	require.NoError(t, err)
	rows, err = p.Rows(sql.NewInt(10))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"ann", "dan"}, column(rows, 0))
	rows, err = p.Rows(sql.NewNull(sql.IntegerID))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestJoinStrategies(t *testing.T) {
	on := &ast.EqualOper{L: field("e", "dept"), R: field("d", "id")}
	for _, strategy := range []string{"nestedloop", "hash"} {
		t.Run(strategy, func(t *testing.T) {
			f := newFixture(t)
			stmt := orderBy(selectOf(from(tbl("emp", "e"), tbl("dept", "d", "joinStrategy", strategy)),
				on, field("e", "name"), field("d", "dname")), field("e", "id"))
			rows := f.rows(t, stmt)
			assert.Equal(t, []any{"ann", "bob", "dan"}, column(rows, 0))
			assert.Equal(t, []any{"eng", "ops", "eng"}, column(rows, 1))
		})
	}
}

func TestLeftOuterJoin(t *testing.T) {
	f := newFixture(t)
	stmt := orderBy(selectOf(from(&ast.FromItemJoinTable{
		Left:      tbl("dept", "d"),
		Right:     tbl("emp", "e"),
		Type:      ast.LeftJoin,
		Predicate: &ast.EqualOper{L: field("e", "dept"), R: field("d", "id")},
	}), nil, field("d", "dname"), field("e", "name")), field("d", "id"), field("e", "id"))
	rows := f.rows(t, stmt)
	assert.Equal(t, []any{"eng", "eng", "ops", "hr"}, column(rows, 0))
	assert.Equal(t, []any{"ann", "dan", "bob", nil}, column(rows, 1))
}

func TestAggregation(t *testing.T) {
	f := newFixture(t)
	stmt := orderBy(selectOf(from(tbl("emp", "")), nil,
		field("", "dept"),
		&ast.Function{FuncName: "count", Star: true},
		&ast.Function{FuncName: "sum", Args: []ast.Expression{field("", "salary")}},
		&ast.Function{FuncName: "max", Args: []ast.Expression{field("", "name")}},
	), field("", "dept"))
	stmt.GroupBy = []ast.Expression{field("", "dept")}
	rows := f.rows(t, stmt)
	require.Len(t, rows, 3)
	assert.EqualValues(t, []any{int64(10), int64(20), nil}, column(rows, 0))
	assert.EqualValues(t, []any{int64(2), int64(1), int64(1)}, column(rows, 1))
	assert.Equal(t, "400", rows[0][2].String())
	assert.Equal(t, "dan", rows[0][3].V)

	having := selectOf(from(tbl("emp", "")), nil, field("", "dept"))
	having.GroupBy = []ast.Expression{field("", "dept")}
	having.Having = &ast.GreaterThanOper{L: &ast.Function{FuncName: "count", Star: true}, R: intLit(1)}
	rows = f.rows(t, having)
	assert.EqualValues(t, []any{int64(10)}, column(rows, 0))

	empty := selectOf(from(tbl("emp", "")), &ast.GreaterThanOper{L: field("", "id"), R: intLit(100)},
		&ast.Function{FuncName: "count", Star: true},
		&ast.Function{FuncName: "avg", Args: []ast.Expression{field("", "salary")}})
	rows = f.rows(t, empty)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 0, rows[0][0].V)
	assert.True(t, rows[0][1].IsNull())

	distinct := selectOf(from(tbl("emp", "")), nil,
		&ast.Function{FuncName: "count", Distinct: true, Args: []ast.Expression{field("", "dept")}})
	rows = f.rows(t, distinct)
	assert.EqualValues(t, 2, rows[0][0].V)
}

func TestDistinctOrderLimit(t *testing.T) {
	f := newFixture(t)
	d := selectOf(from(tbl("emp", "")), nil, field("", "dept"))
	d.Distinct = true
	assert.Len(t, f.rows(t, d), 3)

	s := selectOf(from(tbl("emp", "")), nil, field("", "name"))
	s.Order = []*ast.Order{{Expr: field("", "salary"), Desc: true}}
	s.Offset, s.Limit = intLit(1), intLit(2)
	rows := f.rows(t, s)
	assert.Equal(t, []any{"bob", "cy"}, column(rows, 0))
	require.Len(t, rows[0], 1)

	s.Limit = &ast.Parameter{}
	p, err := f.compile(t, s)
	require.NoError(t, err)
	_, err = p.Rows(sql.NewInt(-1))
	require.True(t, sql.ErrInvalidRowCount.Is(err))
}

func TestSetOperations(t *testing.T) {
	f := newFixture(t)
	setOp := func(op ast.SetOpType, all bool) *ast.SetOperationStmt {
		return &ast.SetOperationStmt{
			Type:  op,
			All:   all,
			Left:  selectOf(from(tbl("emp", "")), nil, field("", "dept")),
			Right: selectOf(from(tbl("dept", "")), nil, field("", "id")),
			Order: []*ast.Order{{Expr: intLit(1)}},
		}
	}
	assert.EqualValues(t, []any{int64(10), int64(20), int64(30), nil}, column(f.rows(t, setOp(ast.Union, false)), 0))
	assert.Len(t, f.rows(t, setOp(ast.Union, true)), 7)
	assert.EqualValues(t, []any{int64(10), int64(20)}, column(f.rows(t, setOp(ast.Intersect, false)), 0))
	assert.EqualValues(t, []any{int64(10), int64(20)}, column(f.rows(t, setOp(ast.Intersect, true)), 0))
	assert.EqualValues(t, []any{int64(30)}, column(f.rows(t, &ast.SetOperationStmt{
		Type:  ast.Except,
		Left:  selectOf(from(tbl("dept", "")), nil, field("", "id")),
		Right: selectOf(from(tbl("emp", "")), nil, field("", "dept")),
	}), 0))
	assert.EqualValues(t, []any{int64(10), nil}, column(f.rows(t, setOp(ast.Except, true)), 0))
}

func TestSubqueries(t *testing.T) {
	f := newFixture(t)
	in := orderBy(selectOf(from(tbl("emp", "")), &ast.InSubqueryExpr{
		Expr:  field("", "dept"),
		Query: selectOf(from(tbl("dept", "")), &ast.EqualOper{L: field("", "dname"), R: lit(sql.NewVarchar("eng"))}, field("", "id")),
	}, field("", "name")), field("", "id"))
	assert.Equal(t, []any{"ann", "dan"}, column(f.rows(t, in), 0))

	notExists := selectOf(from(tbl("dept", "d")), &ast.ExistsExpr{
		Not:   true,
		Query: selectOf(from(tbl("emp", "e")), &ast.EqualOper{L: field("e", "dept"), R: field("d", "id")}, intLit(1)),
	}, field("d", "dname"))
	assert.Equal(t, []any{"hr"}, column(f.rows(t, notExists), 0))

	scalar := orderBy(selectOf(from(tbl("emp", "")), nil, field("emp", "name"), &ast.SubqueryExpr{
		Query: selectOf(from(tbl("dept", "")), &ast.EqualOper{L: field("dept", "id"), R: field("emp", "dept")}, field("", "dname")),
	}), field("emp", "id"))
	rows := f.rows(t, scalar)
	assert.Equal(t, []any{"eng", "ops", nil, "eng"}, column(rows, 1))

	tooMany := selectOf(from(tbl("dept", "")), nil, &ast.SubqueryExpr{
		Query: selectOf(from(tbl("emp", "")), nil, field("", "id")),
	})
	p, err := f.compile(t, tooMany)
	require.NoError(t, err)
	_, err = p.Rows()
	require.True(t, sql.ErrScalarSubqueryRows.Is(err))
}

func TestDerivedTable(t *testing.T) {
	f := newFixture(t)
	inner := selectOf(from(tbl("emp", "")), nil, field("", "dept"), &ast.Function{FuncName: "count", Star: true})
	inner.GroupBy = []ast.Expression{field("", "dept")}
	stmt := selectOf(from(&ast.FromItemSubquery{Query: inner, Alias: "x", ColumnAliases: []string{"dept", "n"}}),
		&ast.GreaterThanOper{L: field("x", "n"), R: intLit(1)}, field("x", "dept"))
	assert.EqualValues(t, []any{int64(10)}, column(f.rows(t, stmt), 0))

	values := &ast.ValuesStmt{Rows: [][]ast.Expression{{intLit(1), lit(sql.NewVarchar("a"))}, {intLit(2), lit(sql.NewVarchar("b"))}}}
	assert.Len(t, f.rows(t, values), 2)
}

func TestDMLDryRun(t *testing.T) {
	f := newFixture(t)
	assert.EqualValues(t, 1, f.count(t, &ast.InsertStmt{
		TableName: "emp",
		Values:    [][]ast.Expression{{intLit(5), lit(sql.NewVarchar("eve")), intLit(20), intLit(10)}},
	}))
	assert.EqualValues(t, 2, f.count(t, &ast.InsertStmt{
		TableName: "stage",
		Query:     selectOf(from(tbl("emp", "")), &ast.EqualOper{L: field("", "dept"), R: intLit(10)}, field("", "id"), field("", "name")),
	}))

	p, err := f.compile(t, &ast.InsertStmt{
		TableName: "emp",
		Columns:   []string{"name"},
		Values:    [][]ast.Expression{{lit(sql.NewVarchar("nobody"))}},
	})
	require.NoError(t, err)
	_, err = p.Rows()
	require.True(t, sql.ErrNullNotAllowed.Is(err))

	assert.EqualValues(t, 2, f.count(t, &ast.UpdateStmt{
		TableName: "emp",
		Set:       []*ast.ExprColumn{{ColumnName: "salary", Expr: &ast.AddOper{L: field("", "salary"), R: intLit(1)}}},
		Where:     &ast.EqualOper{L: field("", "dept"), R: intLit(10)},
	}))
	assert.EqualValues(t, 2, f.count(t, &ast.DeleteStmt{
		TableName: "emp",
		Where:     &ast.GreaterThanOper{L: field("", "salary"), R: intLit(150)},
	}))
	assert.Positive(t, f.backend.Stats().UpdateLocks)

	// nothing was written
	all, err := f.cat.Rows(f.mustTable(t, "emp").ConglomerateID)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func (f *fixture) mustTable(t *testing.T, name string) *store.TableDescriptor {
	t.Helper()
	desc, err := f.cat.ResolveTable("", name)
	require.NoError(t, err)
	return desc
}

func TestMerge(t *testing.T) {
	f := newFixture(t)
	merge := &ast.MergeStmt{
		Target: tbl("emp", "t"),
		Source: tbl("stage", "s"),
		On:     &ast.EqualOper{L: field("t", "id"), R: field("s", "id")},
		Clauses: []*ast.MergeClause{
			{Matched: true, Action: ast.MergeDelete},
			{Matched: false, Action: ast.MergeInsert, Columns: []string{"id", "name"}, Values: []ast.Expression{field("s", "id"), field("s", "name")}},
		},
	}
	assert.EqualValues(t, 2, f.count(t, merge))

	require.NoError(t, f.cat.Insert("", "stage", sql.Row{sql.NewInt(1), sql.NewVarchar("again")}))
	p, err := f.compile(t, merge)
	require.NoError(t, err)
	_, err = p.Rows()
	require.True(t, sql.ErrMergeCardinality.Is(err))
}

func TestPositionedDelete(t *testing.T) {
	f := newFixture(t)
	ctx := tree.NewCompilerContext(f.cat, f.cat)
	ctx.Cursors = cursorRegistry{"C1": {Name: "C1", Schema: store.DefaultSchema, Table: "EMP"}}
	defer func() { require.NoError(t, ctx.Reset()) }()
	node, err := binder.New(ctx, binder.DefaultOptions()).Bind(&ast.DeleteStmt{TableName: "emp", CurrentOf: "c1"})
	require.NoError(t, err)
	require.NoError(t, preprocess.New(ctx).Preprocess(node))
	require.NoError(t, optimizer.New(ctx, optimizer.DefaultOptions()).Optimize(node))
	p, err := plan.NewBuilder(plan.DefaultOptions()).Generate(node, f.backend)
	require.NoError(t, err)

	_, err = p.Rows()
	require.True(t, sql.ErrCursorNotPositioned.Is(err))

	res, err := p.ExecuteWith(plan.ExecOptions{Positions: map[string]sql.Value{"C1": sql.NewBigint(2)}})
	require.NoError(t, err)
	row, ok, err := res.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, row[0].V)
	assert.Equal(t, []string{plan.RowCountColumn}, res.Columns())
}

type cursorRegistry map[string]*tree.CursorInfo

func (c cursorRegistry) LookupCursor(name string) (*tree.CursorInfo, bool) {
	info, ok := c[name]
	return info, ok
}

func TestCreateTablePlan(t *testing.T) {
	f := newFixture(t)
	p, err := f.compile(t, &ast.CreateStmt{
		Name: "audit",
		Columns: []*ast.Column{
			{Name: "id", Type: &ast.TypeSpec{Name: "INTEGER"}, PrimaryKey: true},
			{Name: "note", Type: &ast.TypeSpec{Name: "VARCHAR", Width: 40}, Nullable: true},
		},
	})
	require.NoError(t, err)
	ct, ok := p.Root.(*plan.CreateTable)
	require.True(t, ok)
	assert.Len(t, ct.Columns, 2)
	assert.EqualValues(t, 0, f.count(t, &ast.CreateStmt{
		Name:    "audit2",
		Columns: []*ast.Column{{Name: "id", Type: &ast.TypeSpec{Name: "INTEGER"}}},
	}))
	_, err = f.cat.ResolveTable("", "audit")
	require.Error(t, err)
}

func TestRowNumber(t *testing.T) {
	f := newFixture(t)
	rows := f.rows(t, selectOf(from(tbl("emp", "")), nil, field("", "name"), &ast.WindowFunction{FuncName: "row_number"}))
	require.Len(t, rows, 4)
	numbers := column(rows, 1)
	assert.ElementsMatch(t, []any{int64(1), int64(2), int64(3), int64(4)}, numbers)
	assert.Equal(t, sql.BigintID, rows[0][1].Type)
}
