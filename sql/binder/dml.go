package binder

import (
	"fmt"
	"strings"

	"planforge/sql"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// RowLocationName is the name of the row location column of DML sources.
const RowLocationName = "SQLROWLOCATION"

func (b *Binder) bindCursor(v *ast.CursorStmt) (tree.StatementNode, error) {
	query, err := b.bindQuery(v.Query, nil, 0)
	if err != nil {
		return nil, err
	}
	c := b.f.Cursor(v.Name, query)
	if !v.ForUpdate {
		return c, nil
	}
	sel, ok := query.(*tree.Select)
	if !ok || len(sel.From) != 1 || sel.HasAggregation() || sel.Distinct || len(sel.OrderBy) > 0 {
		return nil, sql.ErrCursorNotUpdatable.New(c.Name)
	}
	bt, ok := sel.From[0].(*tree.FromBaseTable)
	if !ok {
		return nil, sql.ErrCursorNotUpdatable.New(c.Name)
	}
	cols := v.UpdateColumns
	if len(cols) == 0 {
		for _, col := range bt.Descriptor.Columns {
			cols = append(cols, col.Name)
		}
	}
	for _, name := range cols {
		col, ok := bt.Descriptor.Column(name)
		if !ok {
			return nil, sql.ErrColumnNotFound.New(bt.ExposedName() + "." + strings.ToUpper(name))
		}
		c.UpdateColumns = append(c.UpdateColumns, col.Name)
	}
	c.UpdateMode = tree.Updatable
	c.Target = bt
	bt.NeedsRowLocation = true
	return c, nil
}

// targetSelect starts the source query of an UPDATE or DELETE: a scan of
// the target whose first column is the row location.
func (b *Binder) targetSelect(table, alias string) (*tree.Select, *tree.FromBaseTable, *scope, error) {
	sel := b.f.Select()
	sel.Number = b.ctx.NextResultSetNumber()
	sc := newScope(nil, 0, sel)
	bt, err := b.bindBaseTable(table, alias, nil, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	bt.NeedsRowLocation = true
	if err := sc.add(&entry{name: bt.ExposedName(), table: bt}); err != nil {
		return nil, nil, nil, err
	}
	sel.From = []tree.FromTable{bt}
	sel.Columns.Append(b.f.ResultColumn(RowLocationName, b.rowLocation(bt, false)))
	return sel, bt, sc, nil
}

func (b *Binder) rowLocation(bt *tree.FromBaseTable, nullable bool) *tree.ColumnReference {
	ref := b.f.ColumnReference(bt.ExposedName(), RowLocationName)
	ref.TableNumber = bt.Number
	ref.ColumnNumber = tree.RowLocationColumn
	ref.SourceLevel = bt.NestingLevel
	ref.SetType(sql.NewDescriptor(sql.BigintID, nullable))
	return ref
}

// positioned checks that a WHERE CURRENT OF cursor is open on the target.
func (b *Binder) positioned(cursor string, bt *tree.FromBaseTable) (*tree.CursorInfo, error) {
	name := strings.ToUpper(cursor)
	var info *tree.CursorInfo
	if b.ctx.Cursors != nil {
		info, _ = b.ctx.Cursors.LookupCursor(name)
	}
	if info == nil {
		return nil, sql.ErrObjectNotFound.New("CURSOR", name)
	}
	if info.Schema != bt.Schema || info.Table != bt.TableName {
		return nil, sql.ErrCursorNotUpdatable.New(name)
	}
	return info, nil
}

func (b *Binder) bindWhere(e ast.Expression, sel *tree.Select, sc *scope) error {
	if e == nil {
		return nil
	}
	where, err := b.bindExpr(e, &exprState{scope: sc, clause: clauseWhere, subqueries: &sel.Subqueries})
	if err != nil {
		return err
	}
	sel.Where, err = requireBoolean(where, "WHERE")
	return err
}

// bindUpdate compiles the source as a scan of the target producing the row
// location, the current row, then one column per SET clause in order.
func (b *Binder) bindUpdate(v *ast.UpdateStmt) (tree.StatementNode, error) {
	sel, bt, sc, err := b.targetSelect(v.TableName, v.Alias)
	if err != nil {
		return nil, err
	}
	for _, rc := range bt.Columns {
		rc.Referenced = true
		sel.Columns.Append(b.f.ResultColumn(rc.Name, b.f.BoundColumnReference(rc, bt.ExposedName(), bt.Number, 0)))
	}

	var info *tree.CursorInfo
	if v.CurrentOf != "" {
		if info, err = b.positioned(v.CurrentOf, bt); err != nil {
			return nil, err
		}
	}

	st := &exprState{scope: sc, clause: clauseSet, subqueries: &sel.Subqueries}
	seen := map[string]bool{}
	var set []*tree.SetClause
	for _, s := range v.Set {
		col, ok := bt.Descriptor.Column(s.ColumnName)
		if !ok {
			return nil, sql.ErrColumnNotFound.New(bt.ExposedName() + "." + strings.ToUpper(s.ColumnName))
		}
		if seen[col.Name] {
			return nil, sql.ErrDuplicateColumn.New(col.Name, bt.TableName)
		}
		seen[col.Name] = true
		if info != nil && len(info.UpdateColumns) > 0 && !contains(info.UpdateColumns, col.Name) {
			return nil, sql.ErrCursorNotUpdatable.New(info.Name)
		}
		value, err := b.bindExpr(s.Expr, st)
		if err != nil {
			return nil, err
		}
		if value, err = b.coerce(value, col.Type, "SET "+col.Name); err != nil {
			return nil, err
		}
		rc := b.f.ResultColumn("SQLSET"+col.Name, value)
		rc.Generated = true
		sel.Columns.Append(rc)
		set = append(set, &tree.SetClause{Column: col, Value: value})
	}

	if err := b.bindWhere(v.Where, sel, sc); err != nil {
		return nil, err
	}
	u := b.f.Update(bt, set, sel.Where)
	u.Source = sel
	if info != nil {
		u.CurrentOf = info.Name
	}
	return u, nil
}

func (b *Binder) bindDelete(v *ast.DeleteStmt) (tree.StatementNode, error) {
	sel, bt, sc, err := b.targetSelect(v.TableName, v.Alias)
	if err != nil {
		return nil, err
	}
	if err := b.bindWhere(v.Where, sel, sc); err != nil {
		return nil, err
	}
	d := b.f.Delete(bt, sel.Where)
	d.Source = sel
	if v.CurrentOf != "" {
		info, err := b.positioned(v.CurrentOf, bt)
		if err != nil {
			return nil, err
		}
		d.CurrentOf = info.Name
	}
	return d, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// targetColumns resolves an INSERT column list; an empty list means every
// column in table order.
func targetColumns(desc *store.TableDescriptor, names []string) ([]*store.ColumnDescriptor, error) {
	if len(names) == 0 {
		return desc.Columns, nil
	}
	seen := map[string]bool{}
	out := make([]*store.ColumnDescriptor, 0, len(names))
	for _, n := range names {
		col, ok := desc.Column(n)
		if !ok {
			return nil, sql.ErrColumnNotFound.New(desc.Name + "." + strings.ToUpper(n))
		}
		if seen[col.Name] {
			return nil, sql.ErrDuplicateColumn.New(col.Name, desc.Name)
		}
		seen[col.Name] = true
		out = append(out, col)
	}
	return out, nil
}

func (b *Binder) bindInsert(v *ast.InsertStmt) (tree.StatementNode, error) {
	schema, name := splitName(v.TableName)
	desc, err := b.ctx.Catalog.ResolveTable(schema, name)
	if err != nil {
		return nil, err
	}
	cols, err := targetColumns(desc, v.Columns)
	if err != nil {
		return nil, err
	}
	types := make([]*sql.DataTypeDescriptor, len(cols))
	for i, c := range cols {
		types[i] = c.Type
	}

	var source tree.ResultSetNode
	if v.Query != nil {
		source, err = b.bindQuery(v.Query, nil, 0)
	} else {
		source, err = b.bindValues(v.Values, nil, 0, types)
	}
	if err != nil {
		return nil, err
	}
	rcs := source.ResultColumns()
	if len(rcs) != len(cols) {
		return nil, sql.ErrColumnCountMismatch.New("INSERT INTO "+desc.Name, len(cols), len(rcs))
	}
	for i, rc := range rcs {
		if rc.Type() == nil {
			setColumnType(source, i, types[i])
		}
		t := rc.Type()
		if t == nil {
			return nil, untypedError(untypedOperand(rc), "an INSERT value")
		}
		if !sql.GetTypeCompiler(types[i].TypeID).Storable(t.TypeID) {
			return nil, sql.ErrTypeMismatch.New("INSERT INTO "+desc.Name+"."+cols[i].Name, t, types[i])
		}
	}
	ins := b.f.Insert(desc, source)
	ins.TargetColumns = cols
	return ins, nil
}

// bindMerge builds the driving select: source LEFT OUTER JOIN target, with
// the target row location first and one column per clause condition and
// inserted value. A non-null row location means the source row matched.
func (b *Binder) bindMerge(v *ast.MergeStmt) (tree.StatementNode, error) {
	sel := b.f.Select()
	sel.Number = b.ctx.NextResultSetNumber()
	sc := newScope(nil, 0, sel)

	source, err := b.bindFromItem(v.Source, sc)
	if err != nil {
		return nil, err
	}
	sourceEntries := append([]*entry(nil), sc.entries...)

	target, err := b.bindBaseTable(v.Target.Name, v.Target.Alias, v.Target.Properties, 0)
	if err != nil {
		return nil, err
	}
	target.NeedsRowLocation = true
	if err := sc.add(&entry{name: target.ExposedName(), table: target, nullable: true}); err != nil {
		return nil, err
	}

	on, err := b.bindExpr(v.On, &exprState{scope: sc, clause: clauseOn, subqueries: &sel.Subqueries})
	if err != nil {
		return nil, err
	}
	if on, err = requireBoolean(on, "ON"); err != nil {
		return nil, err
	}
	join := b.f.Join(tree.LeftOuterJoin, source, target, on)
	join.Number = b.ctx.NextTableNumber()
	join.Columns = append(append(tree.ResultColumnList{}, source.ResultColumns()...), target.ResultColumns()...)
	sel.From = []tree.FromTable{join}
	sel.Columns.Append(b.f.ResultColumn(RowLocationName, b.rowLocation(target, true)))

	matched := &exprState{scope: sc, clause: clauseMerge, subqueries: &sel.Subqueries}
	unmatched := &exprState{
		scope:      &scope{level: 0, entries: sourceEntries, block: sel},
		clause:     clauseMerge,
		subqueries: &sel.Subqueries,
	}
	drive := func(prefix string, value tree.ValueNode) *tree.VirtualColumn {
		rc := b.f.ResultColumn(fmt.Sprintf("%s%d", prefix, len(sel.Columns)), value)
		rc.Generated = true
		sel.Columns.Append(rc)
		return b.f.VirtualColumn(rc, sel.Number)
	}

	var clauses []*tree.MatchingClause
	for _, c := range v.Clauses {
		st := unmatched
		if c.Matched {
			st = matched
		}
		mc := b.f.MatchingClause(c.Matched, tree.MergeAction(c.Action))
		if c.And != nil {
			cond, err := b.bindExpr(c.And, st)
			if err != nil {
				return nil, err
			}
			if cond, err = requireBoolean(cond, "WHEN ... AND"); err != nil {
				return nil, err
			}
			mc.And = drive("SQLWHEN", cond)
		}
		switch c.Action {
		case ast.MergeUpdate:
			return nil, sql.ErrUnsupported.New("WHEN MATCHED THEN UPDATE")
		case ast.MergeDelete:
			if !c.Matched {
				return nil, sql.ErrUnsupported.New("DELETE in WHEN NOT MATCHED")
			}
		case ast.MergeInsert:
			if c.Matched {
				return nil, sql.ErrUnsupported.New("INSERT in WHEN MATCHED")
			}
			cols, err := targetColumns(target.Descriptor, c.Columns)
			if err != nil {
				return nil, err
			}
			if len(c.Values) != len(cols) {
				return nil, sql.ErrColumnCountMismatch.New("MERGE INSERT", len(cols), len(c.Values))
			}
			for i, e := range c.Values {
				value, err := b.bindExpr(e, st)
				if err != nil {
					return nil, err
				}
				if value, err = b.coerce(value, cols[i].Type, "INSERT "+cols[i].Name); err != nil {
					return nil, err
				}
				mc.Values = append(mc.Values, drive("SQLVALUE", value))
			}
			mc.Columns = cols
		default:
			return nil, sql.ErrUnsupported.New("MERGE action " + c.Action.String())
		}
		clauses = append(clauses, mc)
	}

	m := b.f.Merge(target, source, on, clauses)
	m.Driving = sel
	return m, nil
}
