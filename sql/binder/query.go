package binder

import (
	"fmt"
	"strconv"
	"strings"

	"planforge/sql"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// bindQuery binds a query expression at level. parent is the scope of the
// enclosing block, nil for a top-level query.
func (b *Binder) bindQuery(q ast.QueryStmt, parent *scope, level int) (tree.ResultSetNode, error) {
	switch v := q.(type) {
	case *ast.SelectStmt:
		return b.bindSelect(v, parent, level)
	case *ast.SetOperationStmt:
		return b.bindSetOperation(v, parent, level)
	case *ast.ValuesStmt:
		return b.bindValues(v.Rows, parent, level, nil)
	}
	return nil, sql.ErrUnsupported.New(fmt.Sprintf("query %T", q))
}

func (b *Binder) bindSelect(v *ast.SelectStmt, parent *scope, level int) (*tree.Select, error) {
	sel := b.f.Select()
	sel.Number = b.ctx.NextResultSetNumber()
	sel.NestingLevel = level
	sel.Distinct = v.Distinct
	sc := newScope(parent, level, sel)

	for k, val := range v.FromProperties {
		if !strings.EqualFold(k, PropJoinOrder) {
			return nil, sql.ErrUnsupported.New("FROM list property " + k)
		}
		switch strings.ToUpper(strings.TrimSpace(val)) {
		case "FIXED":
			sel.FixedJoinOrder = true
		case "UNFIXED":
		default:
			return nil, sql.ErrUnsupported.New("join order " + val)
		}
	}

	for _, item := range v.From {
		ft, err := b.bindFromItem(item, sc)
		if err != nil {
			return nil, err
		}
		sel.From = append(sel.From, ft)
	}

	st := &exprState{scope: sc, clause: clauseSelect, subqueries: &sel.Subqueries}
	if err := b.bindSelectList(sel, v.Select, st); err != nil {
		return nil, err
	}

	if v.Where != nil {
		where, err := b.bindExpr(v.Where, st.with(clauseWhere))
		if err != nil {
			return nil, err
		}
		if sel.Where, err = requireBoolean(where, "WHERE"); err != nil {
			return nil, err
		}
	}

	for _, e := range v.GroupBy {
		g, err := b.bindExpr(e, st.with(clauseGroupBy))
		if err != nil {
			return nil, err
		}
		if p, ok := g.(*tree.Parameter); ok {
			return nil, sql.ErrParameterNotAllowed.New(p.Number, "GROUP BY")
		}
		if isUntyped(g) {
			return nil, sql.ErrUntypedNull.New("a GROUP BY expression")
		}
		if !g.Type().TypeID.Orderable() {
			return nil, sql.ErrNotOrderable.New("GROUP BY", g.Type())
		}
		sel.GroupBy = append(sel.GroupBy, g)
	}

	if v.Having != nil {
		having, err := b.bindExpr(v.Having, st.with(clauseHaving))
		if err != nil {
			return nil, err
		}
		if sel.Having, err = requireBoolean(having, "HAVING"); err != nil {
			return nil, err
		}
	}

	if err := b.bindSelectOrderBy(sel, v.Order, st.with(clauseOrderBy)); err != nil {
		return nil, err
	}

	if sel.HasAggregation() {
		if err := checkGrouping(sel); err != nil {
			return nil, err
		}
	}

	if sel.Distinct {
		for _, rc := range sel.ResultColumns() {
			if t := rc.Type(); t != nil && !t.TypeID.Orderable() {
				return nil, sql.ErrNotOrderable.New("DISTINCT", t)
			}
		}
	}

	var err error
	if sel.Offset, err = b.bindFetch(v.Offset, "OFFSET"); err != nil {
		return nil, err
	}
	if sel.Fetch, err = b.bindFetch(v.Limit, "FETCH"); err != nil {
		return nil, err
	}
	return sel, nil
}

func (b *Binder) bindSelectList(sel *tree.Select, items []*ast.ExprAS, st *exprState) error {
	for _, item := range items {
		if star, ok := item.Expr.(*ast.Star); ok || item.Expr == nil {
			table := ""
			if ok {
				table = star.TableName
			}
			if err := b.expandStar(sel, table, st.scope); err != nil {
				return err
			}
			continue
		}
		expr, err := b.bindExpr(item.Expr, st)
		if err != nil {
			return err
		}
		name := item.As
		if name == "" {
			if f, ok := item.Expr.(*ast.Field); ok {
				name = f.ColumnName
			} else {
				name = strconv.Itoa(len(sel.Columns) + 1)
			}
		}
		rc := b.f.ResultColumn(name, expr)
		if ref, ok := expr.(*tree.ColumnReference); ok {
			rc.TableName = ref.TableName
		}
		sel.Columns.Append(rc)
	}
	return nil
}

// expandStar adds a column reference for every column of the tables of
// this block, or of the named table only.
func (b *Binder) expandStar(sel *tree.Select, table string, sc *scope) error {
	table = strings.ToUpper(table)
	matched := false
	for _, e := range sc.entries {
		if table != "" && e.name != table && !qualifiedMatch(e, table) {
			continue
		}
		matched = true
		for _, col := range e.table.ResultColumns() {
			col.Referenced = true
			ref := b.f.BoundColumnReference(col, e.name, e.table.TableNumber(), sc.level)
			if e.nullable && ref.Type() != nil {
				ref.SetType(ref.Type().WithNullable(true))
			}
			rc := b.f.ResultColumn(col.Name, ref)
			rc.TableName = e.name
			sel.Columns.Append(rc)
		}
	}
	if !matched {
		if table == "" {
			return sql.ErrUnsupported.New("* without a FROM list")
		}
		return sql.ErrTableNotFound.New(table)
	}
	return nil
}

// bindSelectOrderBy resolves each key to a select-list column. A key that
// names no visible column is appended as a hidden column.
func (b *Binder) bindSelectOrderBy(sel *tree.Select, order []*ast.Order, st *exprState) error {
	for _, o := range order {
		rc, err := b.orderColumn(sel.ResultColumns(), o.Expr)
		if err != nil {
			return err
		}
		if rc == nil {
			expr, err := b.bindExpr(o.Expr, st)
			if err != nil {
				return err
			}
			if p, ok := expr.(*tree.Parameter); ok {
				return sql.ErrParameterNotAllowed.New(p.Number, "ORDER BY")
			}
			for _, c := range sel.ResultColumns() {
				if c.Expression != nil && tree.Equivalent(c.Expression, expr) {
					rc = c
					break
				}
			}
			if rc == nil {
				if sel.Distinct {
					return sql.ErrUnsupported.New("ORDER BY an expression outside the select list of SELECT DISTINCT")
				}
				rc = b.f.ResultColumn(fmt.Sprintf("SQLORDER%d", sel.Hidden+1), expr)
				rc.Generated = true
				sel.Columns.Append(rc)
				sel.Hidden++
			}
		}
		if t := rc.Type(); t != nil && !t.TypeID.Orderable() {
			return sql.ErrNotOrderable.New("ORDER BY", t)
		}
		sel.OrderBy = append(sel.OrderBy, &tree.OrderColumn{
			Expr:     b.f.VirtualColumn(rc, sel.Number),
			Desc:     o.Desc,
			Position: rc.Position,
		})
	}
	return nil
}

// orderColumn matches a key given by position or by select-list name. It
// returns nil when the key is an expression to bind.
func (b *Binder) orderColumn(cols tree.ResultColumnList, e ast.Expression) (*tree.ResultColumn, error) {
	switch v := e.(type) {
	case *ast.Literal:
		if !v.Value.Type.IsExactInteger() || v.Value.IsNull() {
			return nil, nil
		}
		n, _ := v.Value.V.(int64)
		if n < 1 || int(n) > len(cols) {
			return nil, sql.ErrColumnNotFound.New("at position " + strconv.FormatInt(n, 10))
		}
		return cols[n-1], nil
	case *ast.Field:
		if v.TableName != "" {
			return nil, nil
		}
		return cols.Find(v.ColumnName), nil
	}
	return nil, nil
}

// checkGrouping verifies that every column of the block used outside an
// aggregate is a grouping expression.
func checkGrouping(sel *tree.Select) error {
	for _, rc := range sel.Columns {
		if err := grouped(sel, rc.Expression); err != nil {
			return err
		}
	}
	return grouped(sel, sel.Having)
}

func grouped(sel *tree.Select, v tree.ValueNode) error {
	if v == nil {
		return nil
	}
	for _, g := range sel.GroupBy {
		if tree.Equivalent(g, v) {
			return nil
		}
	}
	switch t := v.(type) {
	case *tree.ColumnReference:
		if t.SourceLevel == sel.NestingLevel {
			return sql.ErrNotGroupingExpression.New(t.String())
		}
		return nil
	case *tree.VirtualColumn:
		return nil
	case *tree.Subquery:
		if err := grouped(sel, t.LeftOperand); err != nil {
			return err
		}
		for _, ref := range tree.ColumnReferences(t.Query) {
			if ref.SourceLevel == sel.NestingLevel {
				if err := grouped(sel, ref); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, c := range v.Children() {
		if cv, ok := c.(tree.ValueNode); ok {
			if err := grouped(sel, cv); err != nil {
				return err
			}
		}
	}
	return nil
}

// bindFetch binds an OFFSET or FETCH count: a non-negative integer literal
// or a parameter, which is typed BIGINT.
func (b *Binder) bindFetch(e ast.Expression, what string) (tree.ValueNode, error) {
	if e == nil {
		return nil, nil
	}
	v, err := b.bindExpr(e, &exprState{clause: clauseFetch})
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *tree.Parameter:
		t.SetType(sql.NewDescriptor(sql.BigintID, false))
		return t, nil
	case *tree.Constant:
		if t.Value.IsNull() || !t.Value.Type.IsExactInteger() {
			return nil, sql.ErrTypeMismatch.New(what, t.Type(), sql.BigintID)
		}
		if n, _ := t.Value.V.(int64); n < 0 {
			return nil, sql.ErrUnsupported.New("a negative " + what)
		}
		return t, nil
	}
	return nil, sql.ErrUnsupported.New(what + " that is not a literal or a parameter")
}

func setOpType(t ast.SetOpType) tree.SetOpType {
	switch t {
	case ast.Intersect:
		return tree.SetIntersect
	case ast.Except:
		return tree.SetExcept
	}
	return tree.SetUnion
}

func (b *Binder) bindSetOperation(v *ast.SetOperationStmt, parent *scope, level int) (*tree.SetOperator, error) {
	left, err := b.bindQuery(v.Left, parent, level)
	if err != nil {
		return nil, err
	}
	right, err := b.bindQuery(v.Right, parent, level)
	if err != nil {
		return nil, err
	}
	so, err := b.combine(setOpType(v.Type), v.All, left, right, level)
	if err != nil {
		return nil, err
	}

	for _, o := range v.Order {
		rc, err := b.orderColumn(so.Columns, o.Expr)
		if err != nil {
			return nil, err
		}
		if rc == nil {
			return nil, sql.ErrUnsupported.New("ORDER BY an expression on " + so.Op.String())
		}
		if t := rc.Type(); !t.TypeID.Orderable() {
			return nil, sql.ErrNotOrderable.New("ORDER BY", t)
		}
		so.OrderBy = append(so.OrderBy, &tree.OrderColumn{
			Expr:     b.f.VirtualColumn(rc, so.Number),
			Desc:     o.Desc,
			Position: rc.Position,
		})
	}
	if so.Offset, err = b.bindFetch(v.Offset, "OFFSET"); err != nil {
		return nil, err
	}
	if so.Fetch, err = b.bindFetch(v.Limit, "FETCH"); err != nil {
		return nil, err
	}
	return so, nil
}

// combine builds a set operator over two bound inputs. Each output column
// takes the dominant type of the two input columns; an untyped input
// column takes the type of the other side.
func (b *Binder) combine(op tree.SetOpType, all bool, left, right tree.ResultSetNode, level int) (*tree.SetOperator, error) {
	lc, rc := left.ResultColumns(), right.ResultColumns()
	if len(lc) != len(rc) {
		return nil, sql.ErrColumnCountMismatch.New(op.String(), len(lc), len(rc))
	}
	so := b.f.SetOperator(op, all, left, right)
	so.Number = b.ctx.NextResultSetNumber()
	so.NestingLevel = level
	for i := range lc {
		lt, rt := lc[i].Type(), rc[i].Type()
		switch {
		case lt == nil && rt == nil:
			return nil, untypedError(untypedOperand(lc[i]), "a column of "+op.String())
		case lt == nil:
			setColumnType(left, i, rt)
			lt = lc[i].Type()
		case rt == nil:
			setColumnType(right, i, lt)
			rt = rc[i].Type()
		}
		t, err := sql.DominantType([]*sql.DataTypeDescriptor{lt, rt})
		if err != nil {
			return nil, err
		}
		t = t.WithNullable(lt.Nullable || rt.Nullable)
		if !(op == tree.SetUnion && all) && !t.TypeID.Orderable() {
			return nil, sql.ErrNotOrderable.New(op.String(), t)
		}
		col := b.f.ResultColumn(lc[i].Name, b.f.VirtualColumn(lc[i], left.ResultSetNumber()))
		col.SetType(t)
		so.Columns.Append(col)
	}
	return so, nil
}

func untypedOperand(rc *tree.ResultColumn) tree.ValueNode {
	if rc.Expression != nil {
		return rc.Expression
	}
	return rc
}

// setColumnType types column i of a result set whose value is an untyped
// parameter or NULL, descending through set operators.
func setColumnType(rs tree.ResultSetNode, i int, t *sql.DataTypeDescriptor) {
	switch n := rs.(type) {
	case *tree.Select:
		assignUntyped(n.Columns[i].Expression, t)
	case *tree.RowResultSet:
		assignUntyped(n.Columns[i].Expression, t)
	case *tree.SetOperator:
		setColumnType(n.Left, i, t)
		setColumnType(n.Right, i, t)
		if n.Columns[i].Type() == nil {
			n.Columns[i].SetType(t.WithNullable(true))
		}
	}
}

// bindValues binds a VALUES list as a chain of UNION ALL over single rows.
// targets, when given, type untyped values by position.
func (b *Binder) bindValues(rows [][]ast.Expression, parent *scope, level int, targets []*sql.DataTypeDescriptor) (tree.ResultSetNode, error) {
	if len(rows) == 0 {
		return nil, sql.ErrColumnCountMismatch.New("VALUES", 1, 0)
	}
	var result tree.ResultSetNode
	for r, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, sql.ErrColumnCountMismatch.New("VALUES", len(rows[0]), len(row))
		}
		rrs := b.f.RowResultSet(nil)
		rrs.Number = b.ctx.NextResultSetNumber()
		rrs.NestingLevel = level
		st := &exprState{scope: newScope(parent, level, nil), clause: clauseValues, subqueries: &rrs.Subqueries}
		for i, e := range row {
			v, err := b.bindExpr(e, st)
			if err != nil {
				return nil, err
			}
			if i < len(targets) {
				assignUntyped(v, targets[i])
			}
			rrs.Columns.Append(b.f.ResultColumn(strconv.Itoa(i+1), v))
		}
		if r == 0 {
			result = rrs
			continue
		}
		so, err := b.combine(tree.SetUnion, true, result, rrs, level)
		if err != nil {
			return nil, err
		}
		result = so
	}
	return result, nil
}
