package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/sql"
	"planforge/sqlparser/ast"
)

func TestLoadCatalog(t *testing.T) {
	f, err := Load("testdata/company.yaml")
	require.NoError(t, err)
	require.Len(t, f.Tables, 2)
	require.Len(t, f.Queries, 6)

	cat, err := f.Catalog()
	require.NoError(t, err)
	emp, err := cat.ResolveTable("", "emp")
	require.NoError(t, err)
	require.Len(t, emp.Columns, 4)
	assert.False(t, emp.Columns[0].Type.Nullable)
	assert.Equal(t, sql.DecimalID, emp.Columns[3].Type.TypeID)
	_, ok := emp.Index("EMP_DEPT")
	assert.True(t, ok)
	require.NotNil(t, emp.PrimaryKey())

	rows, err := cat.Rows(emp.ConglomerateID)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.True(t, rows[2][2].IsNull())
	assert.Equal(t, "ann", rows[0][1].V)
}

func TestQueryStatements(t *testing.T) {
	f, err := Load("testdata/company.yaml")
	require.NoError(t, err)

	stmt, err := f.Queries[0].Statement()
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStmt)
	require.Len(t, sel.From, 2)
	assert.Equal(t, &ast.EqualOper{L: &ast.Field{TableName: "e", ColumnName: "dept"}, R: &ast.Field{TableName: "d", ColumnName: "id"}}, sel.Where)

	stmt, err = f.Queries[1].Statement()
	require.NoError(t, err)
	sel = stmt.(*ast.SelectStmt)
	require.Len(t, sel.From, 1)
	join, ok := sel.From[0].(*ast.FromItemJoinTable)
	require.True(t, ok)
	assert.Equal(t, ast.LeftJoin, join.Type)
	fn := sel.Select[1].Expr.(*ast.Function)
	assert.Equal(t, "count", fn.FuncName)
	require.Len(t, fn.Args, 1)

	q := f.Queries[2]
	stmt, err = q.Statement()
	require.NoError(t, err)
	sel = stmt.(*ast.SelectStmt)
	assert.IsType(t, &ast.Parameter{}, sel.Where.(*ast.GreaterThanOper).R)
	assert.Equal(t, &ast.Literal{Value: sql.NewInt(2)}, sel.Limit)
	assert.Equal(t, []sql.Value{sql.NewInt(120)}, q.ParamValues())

	stmt, err = f.Queries[4].Statement()
	require.NoError(t, err)
	ins := stmt.(*ast.InsertStmt)
	assert.Equal(t, &ast.Literal{Value: sql.NewVarchar("eve")}, ins.Values[0][1])

	stmt, err = f.Queries[5].Statement()
	require.NoError(t, err)
	assert.Equal(t, &ast.IsNullOper{L: &ast.Field{ColumnName: "dept"}}, stmt.(*ast.SelectStmt).Where)
}

func TestOperands(t *testing.T) {
	cases := []struct {
		in   any
		want ast.Expression
	}{
		{"?", &ast.Parameter{}},
		{"'it''s'", &ast.Literal{Value: sql.NewVarchar("it's")}},
		{"42", &ast.Literal{Value: sql.NewInt(42)}},
		{1.5, &ast.Literal{Value: sql.NewDouble(1.5)}},
		{nil, &ast.Literal{Value: sql.NewNull(sql.VarcharID)}},
		{"app.emp.id", &ast.Field{TableName: "app.emp", ColumnName: "id"}},
		{"count(*)", &ast.Function{FuncName: "count", Star: true}},
		{"sum(DISTINCT salary)", &ast.Function{FuncName: "sum", Distinct: true, Args: []ast.Expression{&ast.Field{ColumnName: "salary"}}}},
	}
	for _, c := range cases {
		got, err := operand(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%v", c.in)
	}

	_, err := condition([]any{"a", "~", "b"})
	require.True(t, sql.ErrUnsupported.Is(err))
	_, err = (&Query{Kind: "merge"}).Statement()
	require.Error(t, err)
}
