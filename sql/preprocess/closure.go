package preprocess

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"planforge/logger"
	"planforge/sql/tree"
)

type colKey struct {
	table  int
	column int
}

func keyOf(c *tree.ColumnReference) colKey {
	return colKey{table: c.TableNumber, column: c.ColumnNumber}
}

func (k colKey) less(o colKey) bool {
	if k.table != o.table {
		return k.table < o.table
	}
	return k.column < o.column
}

// classes is a union-find over the columns joined by equality.
type classes struct {
	parent map[colKey]colKey
	refs   map[colKey]*tree.ColumnReference
}

func (c *classes) find(k colKey) colKey {
	r, ok := c.parent[k]
	if !ok || r == k {
		return k
	}
	root := c.find(r)
	c.parent[k] = root
	return root
}

func (c *classes) union(a, b *tree.ColumnReference) {
	ka, kb := keyOf(a), keyOf(b)
	c.refs[ka], c.refs[kb] = a, b
	ra, rb := c.find(ka), c.find(kb)
	if ra == rb {
		return
	}
	if rb.less(ra) {
		ra, rb = rb, ra
	}
	c.parent[ka], c.parent[kb] = ra, ra
	c.parent[rb] = ra
}

// members groups the known columns by class, each group sorted.
func (c *classes) members() map[colKey][]colKey {
	out := map[colKey][]colKey{}
	for k := range c.refs {
		root := c.find(k)
		out[root] = append(out[root], k)
	}
	for _, ks := range out {
		sort.Slice(ks, func(i, j int) bool { return ks[i].less(ks[j]) })
	}
	return out
}

func pairKey(a, b colKey) [2]colKey {
	if b.less(a) {
		a, b = b, a
	}
	return [2]colKey{a, b}
}

// transitiveClosure assigns equivalence classes to the equijoins of a block
// and adds the equalities and search clauses they imply. Added join
// predicates are marked redundant so selectivity counts each class once.
func (p *Preprocessor) transitiveClosure(preds tree.PredicateList, level int) tree.PredicateList {
	cl := &classes{parent: map[colKey]colKey{}, refs: map[colKey]*tree.ColumnReference{}}
	joined := mapset.NewThreadUnsafeSet[[2]colKey]()
	var equijoins tree.PredicateList
	for _, pr := range preds {
		if !pr.Equijoin {
			continue
		}
		rel := pr.Expr.(*tree.BinaryRelational)
		l, r := rel.Left.(*tree.ColumnReference), rel.Right.(*tree.ColumnReference)
		cl.union(l, r)
		joined.Add(pairKey(keyOf(l), keyOf(r)))
		equijoins = append(equijoins, pr)
	}
	if len(equijoins) == 0 {
		return preds
	}

	groups := cl.members()
	ids := map[colKey]int{}
	roots := make([]colKey, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].less(roots[j]) })
	for _, root := range roots {
		ids[root] = p.ctx.NextEquivalenceClass()
	}
	for _, pr := range equijoins {
		rel := pr.Expr.(*tree.BinaryRelational)
		pr.EquivalenceClass = ids[cl.find(keyOf(rel.Left.(*tree.ColumnReference)))]
	}

	added := 0
	for _, root := range roots {
		ks := groups[root]
		for i := 0; i < len(ks); i++ {
			for j := i + 1; j < len(ks); j++ {
				a, b := ks[i], ks[j]
				if a.table == b.table || joined.Contains(pairKey(a, b)) {
					continue
				}
				l, _ := tree.CloneValue(cl.refs[a])
				r, _ := tree.CloneValue(cl.refs[b])
				eq := p.f.BinaryRelational(tree.RelEQ, l, r)
				eq.SetType(comparisonType(l, r))
				pr := p.newPredicate(eq, level)
				pr.Redundant = true
				pr.EquivalenceClass = ids[root]
				joined.Add(pairKey(a, b))
				preds = append(preds, pr)
				added++
			}
		}
	}

	// col op value on one member applies to every member. The added search
	// clauses are not redundant: each restricts its own table, so all of them
	// count in selectivity.
	for _, pr := range preds {
		if pr.Join || pr.Tables.Cardinality() != 1 {
			continue
		}
		col, op, other, ok := pr.ColumnOperand(pr.Tables.ToSlice()[0])
		if !ok || op == tree.RelNE || !isValue(other) {
			continue
		}
		k := keyOf(col)
		if _, ok := cl.refs[k]; !ok {
			continue
		}
		for _, m := range groups[cl.find(k)] {
			if m == k || hasSearchClause(preds, m, op, other) {
				continue
			}
			ref, _ := tree.CloneValue(cl.refs[m])
			val, _ := tree.CloneValue(other)
			rel := p.f.BinaryRelational(op, ref, val)
			rel.SetType(comparisonType(ref, val))
			preds = append(preds, p.newPredicate(rel, level))
			added++
		}
	}
	if added > 0 {
		logger.Debugf("transitive closure added %d predicates at level %d", added, level)
	}
	return preds
}

func isValue(v tree.ValueNode) bool {
	switch v.(type) {
	case *tree.Constant, *tree.Parameter:
		return true
	}
	return false
}

func hasSearchClause(preds tree.PredicateList, k colKey, op tree.RelOp, value tree.ValueNode) bool {
	for _, pr := range preds {
		col, o, other, ok := pr.ColumnOperand(k.table)
		if ok && keyOf(col) == k && o == op && tree.Equivalent(other, value) {
			return true
		}
	}
	return false
}
