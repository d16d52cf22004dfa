package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/sql"
	"planforge/sql/binder"
	"planforge/sql/optimizer"
	"planforge/sql/preprocess"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// recorder accepts every operator and cannot run anything.
type recorder struct {
	accepted []Operator
}

func (r *recorder) Accept(op Operator) error {
	r.accepted = append(r.accepted, op)
	return nil
}

func (r *recorder) Open(Operator, *Env) (RowStream, error) {
	return nil, sql.ErrUnsupported.New("opening a recorded plan")
}

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
	require.NoError(t, cat.SetRowCount("", "t1", 10000))
	require.NoError(t, cat.SetRowCount("", "t2", 500))
	return cat
}

func generate(t *testing.T, stmt ast.Stmt, backend Backend) (*Plan, error) {
	t.Helper()
	cat := testCatalog(t)
	ctx := tree.NewCompilerContext(cat, cat)
	t.Cleanup(func() { _ = ctx.Reset() })
	node, err := binder.New(ctx, binder.DefaultOptions()).Bind(stmt)
	require.NoError(t, err)
	require.NoError(t, preprocess.New(ctx).Preprocess(node))
	require.NoError(t, optimizer.New(ctx, optimizer.DefaultOptions()).Optimize(node))
	return NewBuilder(DefaultOptions()).Generate(node, backend)
}

func field(table, name string) *ast.Field { return &ast.Field{TableName: table, ColumnName: name} }

func selectOf(from []ast.FromItem, where ast.Expression, exprs ...ast.Expression) *ast.SelectStmt {
	s := &ast.SelectStmt{From: from, Where: where}
	for _, e := range exprs {
		s.Select = append(s.Select, &ast.ExprAS{Expr: e})
	}
	return s
}

// requireChildrenFirst checks every operator was handed to the backend
// after the operators it reads from.
func requireChildrenFirst(t *testing.T, accepted []Operator) {
	t.Helper()
	seen := map[Operator]bool{}
	for _, op := range accepted {
		for _, in := range op.Inputs() {
			require.True(t, seen[in], "%s emitted before its input %s", op.Describe(), in.Describe())
		}
		for _, sq := range op.common().Subqueries {
			require.True(t, seen[sq.Root], "%s emitted before its subquery", op.Describe())
		}
		seen[op] = true
	}
}

func TestGenerateIndexScan(t *testing.T) {
	rec := &recorder{}
	stmt := selectOf([]ast.FromItem{&ast.FromItemTable{Name: "t1"}},
		&ast.EqualOper{L: field("", "a"), R: &ast.Parameter{}},
		field("", "b"))
	p, err := generate(t, stmt, rec)
	require.NoError(t, err)
	require.Equal(t, []sql.TypeID{sql.IntegerID}, []sql.TypeID{p.ParamTypes[0].TypeID})
	require.Equal(t, rec.accepted, p.Emitted)
	require.Same(t, p.Root, rec.accepted[len(rec.accepted)-1])
	requireChildrenFirst(t, rec.accepted)

	scan, ok := rec.accepted[0].(*TableScan)
	require.True(t, ok)
	require.NotNil(t, scan.Index)
	assert.Equal(t, "T1_A", scan.Index.Name)
	require.Len(t, scan.Start, 1)
	assert.Equal(t, store.OpEQ, scan.Start[0].Op)
	assert.Equal(t, LockShared, scan.Lock)
	assert.Equal(t, 16, scan.BulkFetch)

	require.Len(t, p.Columns, 1)
	assert.Equal(t, "B", p.Columns[0].Name)
}

func TestGenerateHashJoin(t *testing.T) {
	rec := &recorder{}
	stmt := selectOf([]ast.FromItem{
		&ast.FromItemTable{Name: "t2"},
		&ast.FromItemTable{Name: "t1", Properties: map[string]string{"joinStrategy": "hash", "index": "null"}},
	}, &ast.EqualOper{L: field("t1", "a"), R: field("t2", "a")}, field("t1", "b"), field("t2", "d"))
	p, err := generate(t, stmt, rec)
	require.NoError(t, err)
	requireChildrenFirst(t, rec.accepted)

	var hj *HashJoin
	for _, op := range rec.accepted {
		if j, ok := op.(*HashJoin); ok {
			hj = j
		}
	}
	require.NotNil(t, hj)
	assert.Len(t, hj.ProbeKeys, 1)
	assert.Len(t, hj.BuildKeys, 1)
	assert.Equal(t, hj.Outer.Width()+hj.Inner.Width(), hj.Width())

	out := p.Explain()
	assert.True(t, strings.HasPrefix(out, "SELECT plan "+p.ID.String()))
	assert.Contains(t, out, "HashJoin")
	assert.Contains(t, out, "TableScan APP.T1")
}

func TestGenerateSubqueryOrder(t *testing.T) {
	rec := &recorder{}
	sub := selectOf([]ast.FromItem{&ast.FromItemTable{Name: "t2"}},
		&ast.EqualOper{L: field("t2", "a"), R: field("t1", "a")},
		&ast.Function{FuncName: "max", Args: []ast.Expression{field("t2", "d")}})
	stmt := selectOf([]ast.FromItem{&ast.FromItemTable{Name: "t1"}}, nil,
		field("t1", "a"), &ast.SubqueryExpr{Query: sub})
	p, err := generate(t, stmt, rec)
	require.NoError(t, err)
	requireChildrenFirst(t, rec.accepted)

	var plans []*SubqueryPlan
	for _, op := range rec.accepted {
		plans = append(plans, op.common().Subqueries...)
	}
	require.Len(t, plans, 1)
	assert.True(t, plans[0].Correlated)
	assert.Equal(t, tree.SubqueryScalar, plans[0].Type)
	assert.Contains(t, p.Explain(), "SCALAR subquery")
}

func TestGenerateDML(t *testing.T) {
	rec := &recorder{}
	p, err := generate(t, &ast.DeleteStmt{
		TableName: "t1",
		Where:     &ast.GreaterThanOper{L: field("", "c"), R: &ast.Literal{Value: sql.NewInt(3)}},
	}, rec)
	require.NoError(t, err)
	del, ok := p.Root.(*Delete)
	require.True(t, ok)
	assert.Equal(t, "T1", del.Table.Name)
	require.Len(t, p.Columns, 1)
	assert.Equal(t, RowCountColumn, p.Columns[0].Name)
	scan := rec.accepted[0].(*TableScan)
	assert.True(t, scan.RowLocation)
	assert.Equal(t, LockUpdate, scan.Lock)

	p, err = generate(t, &ast.InsertStmt{
		TableName: "t2",
		Columns:   []string{"d"},
		Values:    [][]ast.Expression{{&ast.Parameter{}}},
	}, &recorder{})
	require.NoError(t, err)
	ins := p.Root.(*Insert)
	require.Len(t, ins.Columns, 1)
	assert.Equal(t, sql.DoubleID, p.ParamTypes[0].TypeID)
}

func TestGenerateErrors(t *testing.T) {
	_, err := generate(t, selectOf([]ast.FromItem{&ast.FromItemTable{Name: "t1"}}, nil, field("", "a")), nil)
	require.True(t, sql.ErrInternal.Is(err))

	p, err := generate(t, selectOf([]ast.FromItem{&ast.FromItemTable{Name: "t1"}},
		&ast.EqualOper{L: field("", "a"), R: &ast.Parameter{}}, field("", "a")), &recorder{})
	require.NoError(t, err)
	_, err = p.Execute()
	require.True(t, sql.ErrParameterCount.Is(err))
}

func TestLikeMatch(t *testing.T) {
	cases := []struct {
		s, p  string
		match bool
	}{
		{"abc", "a%", true},
		{"abc", "a_c", true},
		{"abc", "a_", false},
		{"", "%", true},
		{"a%c", `a\%c`, true},
		{"abc", `a\%c`, false},
		{"abcabc", "%bc%bc", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.match, likeMatch([]rune(c.s), []rune(c.p), '\\'), "%q LIKE %q", c.s, c.p)
	}
}
