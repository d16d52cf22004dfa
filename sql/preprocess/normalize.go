package preprocess

import (
	"github.com/golang-collections/collections/stack"

	"planforge/sql"
	"planforge/sql/tree"
)

// eliminateNots pushes NOT down to the leaves. When negate is set the
// complement of v is returned. A leaf that has no direct complement becomes
// `v = FALSE`, which keeps three-valued logic intact.
func (p *Preprocessor) eliminateNots(v tree.ValueNode, negate bool) tree.ValueNode {
	switch t := v.(type) {
	case *tree.Not:
		return p.eliminateNots(t.Operand, !negate)
	case *tree.And:
		l, r := p.eliminateNots(t.Left, negate), p.eliminateNots(t.Right, negate)
		if negate {
			return p.f.Or(l, r)
		}
		t.Left, t.Right = l, r
		return t
	case *tree.Or:
		l, r := p.eliminateNots(t.Left, negate), p.eliminateNots(t.Right, negate)
		if negate {
			return p.f.And(l, r)
		}
		t.Left, t.Right = l, r
		return t
	}
	if !negate {
		return v
	}

	switch t := v.(type) {
	case *tree.BinaryRelational:
		t.Op = t.Op.Negate()
		return t
	case *tree.IsNull:
		t.Not = !t.Not
		return t
	case *tree.Subquery:
		switch t.SubType {
		case tree.SubqueryExists:
			t.SubType = tree.SubqueryNotExists
			return t
		case tree.SubqueryNotExists:
			t.SubType = tree.SubqueryExists
			return t
		case tree.SubqueryIn:
			t.SubType = tree.SubqueryNotIn
			return t
		case tree.SubqueryNotIn:
			t.SubType = tree.SubqueryIn
			return t
		}
	case *tree.Constant:
		if b, ok := t.Value.V.(bool); ok {
			return p.f.Constant(sql.NewBool(!b), t.Type())
		}
	}
	eq := p.f.BinaryRelational(tree.RelEQ, v, p.f.BooleanConstant(false))
	eq.SetType(sql.NewDescriptor(sql.BooleanID, v.Type() == nil || v.Type().Nullable))
	return eq
}

// conjuncts splits v on AND, left to right. Literal TRUE conjuncts are dropped.
func conjuncts(v tree.ValueNode) []tree.ValueNode {
	var out []tree.ValueNode
	s := stack.New()
	s.Push(v)
	for s.Len() > 0 {
		n := s.Pop().(tree.ValueNode)
		switch t := n.(type) {
		case *tree.And:
			s.Push(t.Right)
			s.Push(t.Left)
			continue
		case *tree.Constant:
			if b, ok := t.Value.V.(bool); ok && b {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

func (p *Preprocessor) predicates(v tree.ValueNode, level int) tree.PredicateList {
	var out tree.PredicateList
	for _, c := range conjuncts(v) {
		out = append(out, p.newPredicate(c, level))
	}
	return out
}

func (p *Preprocessor) newPredicate(v tree.ValueNode, level int) *tree.Predicate {
	pr := &tree.Predicate{Expr: v, Number: p.ctx.NextPredicateNumber()}
	classify(pr, level)
	return pr
}

// classify fills in the table sets and the shape flags of a predicate of a
// block at level.
func classify(pr *tree.Predicate, level int) {
	pr.Tables, pr.OuterLevels = tree.TablesOf(pr.Expr, level)
	pr.Join = pr.Tables.Cardinality() > 1
	pr.Subquery = tree.ContainsKind(pr.Expr, tree.KindSubquery)
	pr.Equijoin, pr.Qualifier = false, false

	if rel, ok := pr.Expr.(*tree.BinaryRelational); ok && rel.Op == tree.RelEQ {
		l, lok := rel.Left.(*tree.ColumnReference)
		r, rok := rel.Right.(*tree.ColumnReference)
		pr.Equijoin = lok && rok && l.SourceLevel == level && r.SourceLevel == level && l.TableNumber != r.TableNumber
	}
	if pr.Tables.Cardinality() != 1 || pr.Subquery {
		return
	}
	table := pr.Tables.ToSlice()[0]
	if _, _, other, ok := pr.ColumnOperand(table); ok && known(other, level) {
		pr.Qualifier = true
	}
	if _, _, ok := pr.IsNullOperand(table); ok {
		pr.Qualifier = true
	}
}

// known reports a value that stays fixed while one scan of a table at level
// runs: literals, parameters and columns of enclosing blocks.
func known(v tree.ValueNode, level int) bool {
	switch t := v.(type) {
	case *tree.Constant, *tree.Parameter:
		return true
	case *tree.ColumnReference:
		return t.SourceLevel < level
	case *tree.Cast:
		return known(t.Operand, level)
	}
	return false
}

func comparisonType(l, r tree.ValueNode) *sql.DataTypeDescriptor {
	nullable := l.Type() == nil || l.Type().Nullable || r.Type() == nil || r.Type().Nullable
	return sql.NewDescriptor(sql.BooleanID, nullable)
}

func andAll(f *tree.Factory, vs ...tree.ValueNode) tree.ValueNode {
	var out tree.ValueNode
	for _, v := range vs {
		switch {
		case v == nil:
		case out == nil:
			out = v
		default:
			out = f.And(out, v)
		}
	}
	return out
}
