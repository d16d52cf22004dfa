package tree

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Walk visits n and its children in pre-order. Children of a node are skipped
// when fn returns false. Walk enters subquery bodies.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}

// WalkValue is Walk restricted to one query block: subquery bodies are not entered.
func WalkValue(v ValueNode, fn func(ValueNode) bool) {
	if v == nil || !fn(v) {
		return
	}
	if s, ok := v.(*Subquery); ok {
		WalkValue(s.LeftOperand, fn)
		return
	}
	for _, c := range v.Children() {
		if cv, ok := c.(ValueNode); ok {
			WalkValue(cv, fn)
		}
	}
}

// ColumnReferences returns the column references under n, subqueries included.
func ColumnReferences(n Node) []*ColumnReference {
	var out []*ColumnReference
	Walk(n, func(c Node) bool {
		if cr, ok := c.(*ColumnReference); ok {
			out = append(out, cr)
		}
		return true
	})
	return out
}

// ReferencesTable reports whether v refers to a column of table anywhere,
// including correlated references from inside subqueries.
func ReferencesTable(v ValueNode, table int) bool {
	if v == nil {
		return false
	}
	found := false
	Walk(v, func(n Node) bool {
		if found {
			return false
		}
		if cr, ok := n.(*ColumnReference); ok && cr.TableNumber == table {
			found = true
		}
		return true
	})
	return found
}

// TablesOf returns the table numbers referenced at exactly level, and the
// other levels referenced, ignoring references bound inside subqueries.
func TablesOf(v ValueNode, level int) (tables, outer mapset.Set[int]) {
	tables = mapset.NewThreadUnsafeSet[int]()
	outer = mapset.NewThreadUnsafeSet[int]()
	Walk(v, func(n Node) bool {
		cr, ok := n.(*ColumnReference)
		if !ok {
			return true
		}
		switch {
		case cr.SourceLevel == level:
			tables.Add(cr.TableNumber)
		case cr.SourceLevel < level:
			outer.Add(cr.SourceLevel)
		}
		return true
	})
	return tables, outer
}

// ContainsKind reports whether a node of kind appears under v within its block.
func ContainsKind(v ValueNode, kind Kind) bool {
	found := false
	WalkValue(v, func(n ValueNode) bool {
		if n.Kind() == kind {
			found = true
		}
		return !found
	})
	return found
}

// Rewrite applies fn bottom-up to v and returns the replacement root. It
// stays within the query block: subquery bodies are left alone.
func Rewrite(v ValueNode, fn func(ValueNode) ValueNode) ValueNode {
	if v == nil {
		return nil
	}
	rw := func(c ValueNode) ValueNode { return Rewrite(c, fn) }
	switch t := v.(type) {
	case *BinaryRelational:
		t.Left, t.Right = rw(t.Left), rw(t.Right)
	case *BinaryArithmetic:
		t.Left, t.Right = rw(t.Left), rw(t.Right)
	case *Concatenation:
		t.Left, t.Right = rw(t.Left), rw(t.Right)
	case *Like:
		t.Operand, t.Pattern, t.Escape = rw(t.Operand), rw(t.Pattern), rw(t.Escape)
	case *And:
		t.Left, t.Right = rw(t.Left), rw(t.Right)
	case *Or:
		t.Left, t.Right = rw(t.Left), rw(t.Right)
	case *Not:
		t.Operand = rw(t.Operand)
	case *IsNull:
		t.Operand = rw(t.Operand)
	case *UnaryMinus:
		t.Operand = rw(t.Operand)
	case *Cast:
		t.Operand = rw(t.Operand)
	case *Conditional:
		for _, w := range t.Whens {
			w.Cond, w.Then = rw(w.Cond), rw(w.Then)
		}
		t.Else = rw(t.Else)
	case *Coalesce:
		for i, a := range t.Args {
			t.Args[i] = rw(a)
		}
	case *Aggregate:
		t.Operand = rw(t.Operand)
	case *RoutineCall:
		for i, a := range t.Args {
			t.Args[i] = rw(a)
		}
	case *Subquery:
		t.LeftOperand = rw(t.LeftOperand)
	case *ResultColumn:
		t.Expression = rw(t.Expression)
	}
	return fn(v)
}

// CloneValue deep-copies an expression. Subqueries, aggregates and window
// functions cannot be cloned; ok is false when v contains one.
func CloneValue(v ValueNode) (ValueNode, bool) {
	if v == nil {
		return nil, true
	}
	ok := true
	cl := func(c ValueNode) ValueNode {
		if !ok {
			return nil
		}
		out, cok := CloneValue(c)
		ok = ok && cok
		return out
	}
	f := v.Context().Factory()
	var out ValueNode
	switch t := v.(type) {
	case *Constant:
		out = f.Constant(t.Value, t.Type())
	case *ColumnReference:
		c := *t
		out = &c
	case *VirtualColumn:
		c := *t
		out = &c
	case *Parameter:
		// parameters are shared: both copies must see the same type and value
		return t, true
	case *BinaryRelational:
		n := f.BinaryRelational(t.Op, cl(t.Left), cl(t.Right))
		n.typ = t.typ
		out = n
	case *BinaryArithmetic:
		n := f.BinaryArithmetic(t.Op, cl(t.Left), cl(t.Right))
		n.typ = t.typ
		out = n
	case *Concatenation:
		n := f.Concatenation(cl(t.Left), cl(t.Right))
		n.typ = t.typ
		out = n
	case *Like:
		n := f.Like(cl(t.Operand), cl(t.Pattern), cl(t.Escape))
		n.typ = t.typ
		out = n
	case *And:
		out = f.And(cl(t.Left), cl(t.Right))
		out.SetType(t.typ)
	case *Or:
		out = f.Or(cl(t.Left), cl(t.Right))
		out.SetType(t.typ)
	case *Not:
		out = f.Not(cl(t.Operand))
		out.SetType(t.typ)
	case *IsNull:
		out = f.IsNull(cl(t.Operand), t.Not)
	case *UnaryMinus:
		n := f.UnaryMinus(cl(t.Operand))
		n.typ = t.typ
		out = n
	case *Cast:
		out = f.Cast(cl(t.Operand), t.typ, t.Implicit)
	case *Conditional:
		whens := make([]*WhenClause, len(t.Whens))
		for i, w := range t.Whens {
			whens[i] = &WhenClause{Cond: cl(w.Cond), Then: cl(w.Then)}
		}
		n := f.Conditional(whens, cl(t.Else))
		n.typ = t.typ
		out = n
	case *Coalesce:
		args := make([]ValueNode, len(t.Args))
		for i, a := range t.Args {
			args[i] = cl(a)
		}
		n := f.Coalesce(args)
		n.typ = t.typ
		out = n
	case *RoutineCall:
		args := make([]ValueNode, len(t.Args))
		for i, a := range t.Args {
			args[i] = cl(a)
		}
		n := f.RoutineCall(t.Name, args)
		n.Routine = t.Routine
		n.typ = t.typ
		out = n
	default:
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return out, true
}

// ReplaceColumns substitutes every column reference for which fn returns a
// replacement. It descends into subquery bodies so correlated references are
// rewritten too.
func ReplaceColumns(n Node, fn func(*ColumnReference) ValueNode) {
	var visit func(Node)
	visitValue := func(v ValueNode) ValueNode {
		if v == nil {
			return nil
		}
		return Rewrite(v, func(x ValueNode) ValueNode {
			if s, ok := x.(*Subquery); ok {
				visit(s.Query)
			}
			if cr, ok := x.(*ColumnReference); ok {
				if r := fn(cr); r != nil {
					return r
				}
			}
			return x
		})
	}
	visit = func(n Node) {
		switch t := n.(type) {
		case *Select:
			for _, rc := range t.Columns {
				rc.Expression = visitValue(rc.Expression)
			}
			for _, f := range t.From {
				visit(f)
			}
			t.Where = visitValue(t.Where)
			t.Having = visitValue(t.Having)
			for i, g := range t.GroupBy {
				t.GroupBy[i] = visitValue(g)
			}
			for _, o := range t.OrderBy {
				o.Expr = visitValue(o.Expr)
			}
			for _, p := range t.WherePredicates {
				p.Expr = visitValue(p.Expr)
			}
			for _, p := range t.HavingPredicates {
				p.Expr = visitValue(p.Expr)
			}
			for _, rc := range t.AggregateColumns {
				rc.Expression = visitValue(rc.Expression)
			}
		case *SetOperator:
			visit(t.Left)
			visit(t.Right)
		case *RowResultSet:
			for _, rc := range t.Columns {
				rc.Expression = visitValue(rc.Expression)
			}
		case *FromSubquery:
			visit(t.Query)
		case *Join:
			visit(t.Left)
			visit(t.Right)
			t.On = visitValue(t.On)
			for _, p := range t.OnPredicates {
				p.Expr = visitValue(p.Expr)
			}
		case *ProjectRestrict:
			visit(t.Child)
			for _, rc := range t.Columns {
				rc.Expression = visitValue(rc.Expression)
			}
			for _, p := range t.Restriction {
				p.Expr = visitValue(p.Expr)
			}
		case ValueNode:
			visitValue(t)
		}
	}
	visit(n)
}

// Equivalent reports whether a and b always evaluate to the same value for
// the same row. It is used to match GROUP BY and ORDER BY expressions.
func Equivalent(a, b ValueNode) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *ColumnReference:
		y := b.(*ColumnReference)
		return x.TableNumber == y.TableNumber && x.ColumnNumber == y.ColumnNumber && x.SourceLevel == y.SourceLevel
	case *Constant:
		y := b.(*Constant)
		if x.Value.Type != y.Value.Type {
			return false
		}
		if x.Value.IsNull() || y.Value.IsNull() {
			return x.Value.IsNull() && y.Value.IsNull()
		}
		return x.Value.Equal(y.Value)
	case *VirtualColumn:
		return x.Source == b.(*VirtualColumn).Source
	case *Parameter, *Subquery, *WindowFunction:
		return a == b
	case *BinaryRelational:
		if x.Op != b.(*BinaryRelational).Op {
			return false
		}
	case *BinaryArithmetic:
		if x.Op != b.(*BinaryArithmetic).Op {
			return false
		}
	case *IsNull:
		if x.Not != b.(*IsNull).Not {
			return false
		}
	case *Cast:
		if !x.Type().Equals(b.Type()) {
			return false
		}
	case *RoutineCall:
		if x.Routine != b.(*RoutineCall).Routine {
			return false
		}
	case *Aggregate:
		y := b.(*Aggregate)
		if x.Func != y.Func || x.Distinct != y.Distinct {
			return false
		}
	case *Conditional:
		y := b.(*Conditional)
		if len(x.Whens) != len(y.Whens) || (x.Else == nil) != (y.Else == nil) {
			return false
		}
	}
	ac, bc := a.Children(), b.Children()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		av, aok := ac[i].(ValueNode)
		bv, bok := bc[i].(ValueNode)
		if !aok || !bok || !Equivalent(av, bv) {
			return false
		}
	}
	return true
}
