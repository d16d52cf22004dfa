package binder

import (
	"fmt"
	"strings"

	"planforge/sql"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// bindCreateTable checks a table definition against the compile-time limits.
// Nothing is created here.
func (b *Binder) bindCreateTable(v *ast.CreateStmt) (tree.StatementNode, error) {
	schema, name := splitName(v.Name)
	if schema == "" {
		schema = store.DefaultSchema
	}
	ct := b.f.CreateTable(schema, name)
	if len(v.Columns) > b.opts.MaxColumnsInTable {
		return nil, sql.ErrTooManyColumns.New(name, len(v.Columns), b.opts.MaxColumnsInTable)
	}

	position := map[string]int{}
	primaryKeys := 0
	addKey := func(typ store.ConstraintType, cols []int, index string) {
		if index == "" {
			index = fmt.Sprintf("SQL%s%d", name, len(ct.Indexes)+1)
		}
		ct.Constraints = append(ct.Constraints, &store.ConstraintDescriptor{
			Name: index, Type: typ, Columns: cols, IndexName: index,
		})
		ct.Indexes = append(ct.Indexes, &store.IndexDescriptor{
			Name: index, Columns: cols, Unique: typ != store.ForeignKeyConstraint,
		})
	}

	for i, c := range v.Columns {
		colName := strings.ToUpper(c.Name)
		if _, dup := position[colName]; dup {
			return nil, sql.ErrDuplicateColumn.New(colName, name)
		}
		position[colName] = i + 1
		t, err := typeFromSpec(c.Type, c.Nullable && !c.PrimaryKey)
		if err != nil {
			return nil, err
		}
		col := store.NewColumn(colName, t)
		col.Position = i + 1
		if c.Default != nil {
			if col.Default, err = b.defaultValue(c.Default, col); err != nil {
				return nil, err
			}
		}
		ct.Columns = append(ct.Columns, col)

		switch {
		case c.PrimaryKey:
			primaryKeys++
			addKey(store.PrimaryKeyConstraint, []int{i + 1}, "")
		case c.Unique:
			addKey(store.UniqueConstraint, []int{i + 1}, "")
		}
		if c.References != nil {
			addKey(store.ForeignKeyConstraint, []int{i + 1}, "")
		}
		if c.Index {
			ct.Indexes = append(ct.Indexes, &store.IndexDescriptor{
				Name: fmt.Sprintf("SQL%s%d", name, len(ct.Indexes)+1), Columns: []int{i + 1},
			})
		}
	}

	for _, con := range v.Constraints {
		cols := make([]int, 0, len(con.Columns))
		for _, cn := range con.Columns {
			pos, ok := position[strings.ToUpper(cn)]
			if !ok {
				return nil, sql.ErrColumnNotFound.New(name + "." + strings.ToUpper(cn))
			}
			cols = append(cols, pos)
		}
		index := strings.ToUpper(con.IndexName)
		switch con.Type {
		case ast.PRIMARYKEYConstraint:
			primaryKeys++
			addKey(store.PrimaryKeyConstraint, cols, index)
			for _, pos := range cols {
				ct.Columns[pos-1].Type = ct.Columns[pos-1].Type.WithNullable(false)
			}
		case ast.UNIQUEKEYConstraint:
			addKey(store.UniqueConstraint, cols, index)
		case ast.FORREGINKEYConstraint:
			addKey(store.ForeignKeyConstraint, cols, index)
		case ast.KEYConstraint:
			if index == "" {
				index = fmt.Sprintf("SQL%s%d", name, len(ct.Indexes)+1)
			}
			ct.Indexes = append(ct.Indexes, &store.IndexDescriptor{Name: index, Columns: cols})
		}
	}

	if primaryKeys > 1 {
		return nil, sql.ErrMultiplePrimaryKeys.New(name)
	}
	if len(ct.Indexes) > b.opts.MaxIndexesInTable {
		return nil, sql.ErrTooManyIndexes.New(name, len(ct.Indexes), b.opts.MaxIndexesInTable)
	}
	return ct, nil
}

// defaultValue evaluates a column default, which must be a literal.
func (b *Binder) defaultValue(e ast.Expression, col *store.ColumnDescriptor) (*sql.Value, error) {
	v, err := b.bindExpr(e, &exprState{clause: clauseValues})
	if err != nil {
		return nil, err
	}
	c, ok := v.(*tree.Constant)
	if !ok {
		return nil, sql.ErrUnsupported.New("a DEFAULT that is not a literal")
	}
	if c.Type() != nil && !sql.GetTypeCompiler(col.Type.TypeID).Storable(c.Type().TypeID) {
		return nil, sql.ErrTypeMismatch.New("DEFAULT for "+col.Name, c.Type(), col.Type)
	}
	val, err := c.Value.Convert(col.Type)
	if err != nil {
		return nil, sql.ErrInvalidCast.New(c.Value.Literal(), col.Type)
	}
	return &val, nil
}
