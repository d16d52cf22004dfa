package preprocess

import (
	mapset "github.com/deckarep/golang-set/v2"

	"planforge/logger"
	"planforge/sql/store"
	"planforge/sql/tree"
)

// flatten merges inner joins and simple derived tables into the FROM list
// of their block, innermost blocks first.
func (p *Preprocessor) flatten(rs tree.ResultSetNode) {
	switch t := rs.(type) {
	case *tree.Select:
		p.flattenSelect(t)
	case *tree.SetOperator:
		p.flatten(t.Left)
		p.flatten(t.Right)
	case *tree.RowResultSet:
		for _, sq := range t.Subqueries {
			p.flatten(sq.Query)
		}
	}
}

func (p *Preprocessor) flattenSelect(sel *tree.Select) {
	for _, f := range sel.From {
		p.flattenFrom(f)
	}
	for _, sq := range sel.Subqueries {
		p.flatten(sq.Query)
	}

	var from []tree.FromTable
	var where []tree.ValueNode
	for _, f := range sel.From {
		from, where = spliceInnerJoins(f, from, where)
	}
	sel.From = from
	sel.Where = andAll(p.f, append([]tree.ValueNode{sel.Where}, where...)...)

	from = nil
	for _, f := range sel.From {
		fs, ok := f.(*tree.FromSubquery)
		if !ok {
			from = append(from, f)
			continue
		}
		inner, ok := fs.Query.(*tree.Select)
		if !ok || !derivedFlattenable(fs, inner) {
			from = append(from, f)
			continue
		}
		from = append(from, inner.From...)
		p.mergeDerived(sel, fs, inner)
	}
	sel.From = from
}

func (p *Preprocessor) flattenFrom(f tree.FromTable) {
	switch t := f.(type) {
	case *tree.FromSubquery:
		p.flatten(t.Query)
	case *tree.Join:
		p.flattenFrom(t.Left)
		p.flattenFrom(t.Right)
	}
}

// spliceInnerJoins replaces an inner join by its operands, moving ON into WHERE.
func spliceInnerJoins(f tree.FromTable, from []tree.FromTable, where []tree.ValueNode) ([]tree.FromTable, []tree.ValueNode) {
	j, ok := f.(*tree.Join)
	if !ok || j.Type != tree.InnerJoin {
		return append(from, f), where
	}
	from, where = spliceInnerJoins(j.Left, from, where)
	from, where = spliceInnerJoins(j.Right, from, where)
	if j.On != nil {
		where = append(where, j.On)
	}
	return from, where
}

// derivedFlattenable reports a derived table that is a plain
// select-project-join: its rows map one to one onto the rows of its FROM list.
func derivedFlattenable(fs *tree.FromSubquery, inner *tree.Select) bool {
	if len(fs.Props) > 0 || len(inner.From) == 0 {
		return false
	}
	if inner.HasAggregation() || inner.Distinct || inner.Hidden > 0 || len(inner.OrderBy) > 0 ||
		inner.Offset != nil || inner.Fetch != nil || len(inner.WindowFunctions) > 0 || inner.FixedJoinOrder {
		return false
	}
	for _, rc := range inner.Columns {
		if _, ok := tree.CloneValue(rc.Expression); !ok {
			return false
		}
	}
	return true
}

// mergeDerived moves the body of a derived table into sel. The caller has
// already taken over its FROM list.
func (p *Preprocessor) mergeDerived(sel *tree.Select, fs *tree.FromSubquery, inner *tree.Select) {
	shiftLevels(inner, inner.NestingLevel)
	tree.ReplaceColumns(sel, func(cr *tree.ColumnReference) tree.ValueNode {
		if cr.TableNumber != fs.Number {
			return nil
		}
		v, _ := tree.CloneValue(inner.Columns[cr.ColumnNumber-1].Expression)
		return v
	})
	sel.Where = andAll(p.f, sel.Where, inner.Where)
	sel.Subqueries = append(sel.Subqueries, inner.Subqueries...)
	logger.Debugf("flattened derived table %s into block %d", fs.Correlation, sel.Number)
}

// shiftLevels moves everything nested at level from or deeper one level out.
func shiftLevels(n tree.Node, from int) {
	seen := map[tree.Node]bool{}
	tree.Walk(n, func(c tree.Node) bool {
		if seen[c] {
			return false
		}
		seen[c] = true
		switch t := c.(type) {
		case *tree.ColumnReference:
			if t.SourceLevel >= from {
				t.SourceLevel--
			}
		case *tree.Select:
			if t.NestingLevel >= from {
				t.NestingLevel--
			}
		case *tree.SetOperator:
			if t.NestingLevel >= from {
				t.NestingLevel--
			}
		case *tree.RowResultSet:
			if t.NestingLevel >= from {
				t.NestingLevel--
			}
		case *tree.FromBaseTable:
			if t.NestingLevel >= from {
				t.NestingLevel--
			}
		case *tree.FromSubquery:
			if t.NestingLevel >= from {
				t.NestingLevel--
			}
		case *tree.Join:
			if t.NestingLevel >= from {
				t.NestingLevel--
			}
		}
		return true
	})
}

// flattenSubqueries turns uncorrelated IN and EXISTS conjuncts over a
// single table into joins when the subquery returns at most one row per
// outer row.
func (p *Preprocessor) flattenSubqueries(sel *tree.Select) {
	var keep, added tree.PredicateList
	for _, pr := range sel.WherePredicates {
		sq, ok := pr.Expr.(*tree.Subquery)
		if !ok {
			keep = append(keep, pr)
			continue
		}
		preds, ok := p.flattenSubquery(sel, sq)
		if !ok {
			keep = append(keep, pr)
			continue
		}
		added = append(added, preds...)
	}
	sel.WherePredicates = append(keep, added...)
}

func (p *Preprocessor) flattenSubquery(sel *tree.Select, sq *tree.Subquery) (tree.PredicateList, bool) {
	if sq.Correlated || (sq.SubType != tree.SubqueryIn && sq.SubType != tree.SubqueryExists) {
		return nil, false
	}
	inner, ok := sq.Query.(*tree.Select)
	if !ok || len(inner.From) != 1 || inner.HasAggregation() || inner.Distinct || len(inner.OrderBy) > 0 ||
		inner.Offset != nil || inner.Fetch != nil || len(inner.WindowFunctions) > 0 || len(inner.Subqueries) > 0 {
		return nil, false
	}
	bt, ok := inner.From[0].(*tree.FromBaseTable)
	if !ok || len(bt.Props) > 0 {
		return nil, false
	}

	bound := equalityBound(inner.WherePredicates, bt.Number)
	var col *tree.ColumnReference
	if sq.SubType == tree.SubqueryIn {
		col, ok = inner.Columns[0].Expression.(*tree.ColumnReference)
		if !ok || col.TableNumber != bt.Number {
			return nil, false
		}
		bound.Add(col.ColumnNumber)
	}
	if !uniqueOn(bt.Descriptor, bound) {
		return nil, false
	}

	shiftLevels(inner, inner.NestingLevel)
	sel.From = append(sel.From, bt)
	for i, s := range sel.Subqueries {
		if s == sq {
			sel.Subqueries = append(sel.Subqueries[:i:i], sel.Subqueries[i+1:]...)
			break
		}
	}

	var out tree.PredicateList
	for _, pr := range inner.WherePredicates {
		if pr.Redundant {
			continue
		}
		pr.EquivalenceClass = 0
		classify(pr, sel.NestingLevel)
		out = append(out, pr)
	}
	if col != nil {
		ref, _ := tree.CloneValue(col)
		eq := p.f.BinaryRelational(tree.RelEQ, sq.LeftOperand, ref)
		eq.SetType(comparisonType(sq.LeftOperand, ref))
		out = append(out, p.newPredicate(eq, sel.NestingLevel))
	}
	logger.Debugf("flattened %s subquery %d on %s into block %d", sq.SubType, sq.Number, bt.ExposedName(), sel.Number)
	return out, true
}

// equalityBound returns the columns of table fixed by `col = literal` or
// `col = ?` conjuncts.
func equalityBound(preds tree.PredicateList, table int) mapset.Set[int] {
	out := mapset.NewThreadUnsafeSet[int]()
	for _, pr := range preds {
		col, op, other, ok := pr.ColumnOperand(table)
		if ok && op == tree.RelEQ && isValue(other) {
			out.Add(col.ColumnNumber)
		}
	}
	return out
}

// uniqueOn reports whether a unique index has all its key columns in cols.
func uniqueOn(desc *store.TableDescriptor, cols mapset.Set[int]) bool {
	if desc == nil {
		return false
	}
	for _, ix := range desc.Indexes {
		if ix.Unique && len(ix.Columns) > 0 && cols.Contains(ix.Columns...) {
			return true
		}
	}
	return false
}
