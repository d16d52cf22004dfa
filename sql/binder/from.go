package binder

import (
	"strings"

	"planforge/sql"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// Table property keys accepted on FROM items.
const (
	PropIndex        = tree.PropIndex
	PropJoinStrategy = tree.PropJoinStrategy
	PropJoinOrder    = tree.PropJoinOrder
)

func (b *Binder) bindFromItem(item ast.FromItem, sc *scope) (tree.FromTable, error) {
	switch v := item.(type) {
	case *ast.FromItemTable:
		bt, err := b.bindBaseTable(v.Name, v.Alias, v.Properties, sc.level)
		if err != nil {
			return nil, err
		}
		if err := sc.add(&entry{name: bt.ExposedName(), table: bt}); err != nil {
			return nil, err
		}
		return bt, nil
	case *ast.FromItemSubquery:
		return b.bindDerivedTable(v, sc)
	case *ast.FromItemJoinTable:
		return b.bindJoin(v, sc)
	}
	return nil, sql.ErrUnsupported.New("FROM item")
}

func (b *Binder) bindBaseTable(name, alias string, props map[string]string, level int) (*tree.FromBaseTable, error) {
	schema, tname := splitName(name)
	desc, err := b.ctx.Catalog.ResolveTable(schema, tname)
	if err != nil {
		return nil, err
	}
	props, err = tableProperties(props, desc)
	if err != nil {
		return nil, err
	}
	bt := b.f.FromBaseTable(desc.Schema, desc.Name, alias, props)
	bt.Descriptor = desc
	bt.Number = b.ctx.NextTableNumber()
	bt.NestingLevel = level
	for _, col := range desc.Columns {
		bt.Columns = append(bt.Columns, b.f.BaseColumn(bt.ExposedName(), col))
	}
	return bt, nil
}

// tableProperties validates optimizer overrides and normalizes their keys.
// A nil desc means a derived table, which cannot name an index.
func tableProperties(props map[string]string, desc *store.TableDescriptor) (map[string]string, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		v = strings.ToUpper(strings.TrimSpace(v))
		switch strings.ToLower(k) {
		case "index", "constraint":
			if desc == nil {
				return nil, sql.ErrUnsupported.New("an index property on a derived table")
			}
			if v != "NULL" {
				if _, ok := desc.Index(v); !ok {
					return nil, sql.ErrObjectNotFound.New("INDEX", v)
				}
			}
			out[PropIndex] = v
		case "joinstrategy":
			if v != "HASH" && v != "NESTEDLOOP" {
				return nil, sql.ErrUnsupported.New("join strategy " + v)
			}
			out[PropJoinStrategy] = v
		default:
			return nil, sql.ErrUnsupported.New("table property " + k)
		}
	}
	return out, nil
}

// bindDerivedTable binds a subquery in FROM one level below the block. It
// sees the enclosing blocks but not its siblings in the FROM list.
func (b *Binder) bindDerivedTable(v *ast.FromItemSubquery, sc *scope) (tree.FromTable, error) {
	if v.Alias == "" {
		return nil, sql.ErrUnsupported.New("a derived table without a correlation name")
	}
	props, err := tableProperties(v.Properties, nil)
	if err != nil {
		return nil, err
	}
	query, err := b.bindQuery(v.Query, sc.parent, sc.level+1)
	if err != nil {
		return nil, err
	}
	fs := b.f.FromSubquery(query, v.Alias, props)
	fs.Number = b.ctx.NextTableNumber()
	fs.NestingLevel = sc.level
	cols := query.ResultColumns()
	if len(v.ColumnAliases) > 0 && len(v.ColumnAliases) != len(cols) {
		return nil, sql.ErrColumnCountMismatch.New("derived table "+fs.Correlation, len(cols), len(v.ColumnAliases))
	}
	for i, c := range cols {
		if c.Type() == nil {
			return nil, untypedError(c.Expression, "a derived table column")
		}
		name := c.Name
		if len(v.ColumnAliases) > 0 {
			name = v.ColumnAliases[i]
		}
		rc := b.f.ResultColumn(name, b.f.VirtualColumn(c, query.ResultSetNumber()))
		rc.TableName = fs.Correlation
		fs.Columns.Append(rc)
	}
	if err := sc.add(&entry{name: fs.Correlation, table: fs}); err != nil {
		return nil, err
	}
	return fs, nil
}

func (b *Binder) bindJoin(v *ast.FromItemJoinTable, sc *scope) (tree.FromTable, error) {
	mark := len(sc.entries)
	left, err := b.bindFromItem(v.Left, sc)
	if err != nil {
		return nil, err
	}
	mid := len(sc.entries)
	right, err := b.bindFromItem(v.Right, sc)
	if err != nil {
		return nil, err
	}

	var on tree.ValueNode
	if v.Predicate != nil {
		// ON sees only the tables of this join
		onScope := &scope{parent: sc.parent, level: sc.level, entries: sc.entries[mark:], block: sc.block}
		st := &exprState{scope: onScope, clause: clauseOn}
		if sc.block != nil {
			st.subqueries = &sc.block.Subqueries
		}
		if on, err = b.bindExpr(v.Predicate, st); err != nil {
			return nil, err
		}
		if on, err = requireBoolean(on, "ON"); err != nil {
			return nil, err
		}
	}

	jt := tree.InnerJoin
	switch v.Type {
	case ast.LeftJoin:
		jt = tree.LeftOuterJoin
		for _, e := range sc.entries[mid:] {
			e.nullable = true
		}
	case ast.RightJoin:
		// a RIGHT JOIN b is b LEFT JOIN a
		jt = tree.LeftOuterJoin
		left, right = right, left
		for _, e := range sc.entries[mark:mid] {
			e.nullable = true
		}
	}
	if jt == tree.LeftOuterJoin && on == nil {
		return nil, sql.ErrUnsupported.New("an outer join without ON")
	}

	j := b.f.Join(jt, left, right, on)
	j.Number = b.ctx.NextTableNumber()
	j.NestingLevel = sc.level
	j.Columns = append(append(tree.ResultColumnList{}, left.ResultColumns()...), right.ResultColumns()...)
	return j, nil
}
