package tree

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Predicate wraps one conjunct of a WHERE, HAVING or ON clause.
type Predicate struct {
	Expr ValueNode
	// Tables holds the numbers of the tables of this block the conjunct references.
	Tables mapset.Set[int]
	// OuterLevels holds the nesting levels of correlated references.
	OuterLevels mapset.Set[int]
	Join        bool
	// Qualifier marks a column compared with a value known when the scan is
	// positioned, so the store can test it.
	Qualifier bool
	// Equijoin marks col = col between two tables of this block.
	Equijoin bool
	// Subquery marks a conjunct that contains a subquery.
	Subquery  bool
	StartKey  bool
	StopKey   bool
	HashKey   bool
	Redundant bool
	// EquivalenceClass groups equijoins over the same set of equal columns; 0 is none.
	EquivalenceClass int
	Number           int
}

func (p *Predicate) ReferencesOnly(tables mapset.Set[int]) bool {
	return p.Tables.IsSubset(tables)
}

// ColumnOperand reports whether the predicate is `col op expr` with col a
// column of table and expr free of that table. The operator is returned
// oriented with the column on the left.
func (p *Predicate) ColumnOperand(table int) (*ColumnReference, RelOp, ValueNode, bool) {
	rel, ok := p.Expr.(*BinaryRelational)
	if !ok {
		return nil, 0, nil, false
	}
	if c, ok := rel.Left.(*ColumnReference); ok && c.TableNumber == table && !ReferencesTable(rel.Right, table) {
		return c, rel.Op, rel.Right, true
	}
	if c, ok := rel.Right.(*ColumnReference); ok && c.TableNumber == table && !ReferencesTable(rel.Left, table) {
		return c, rel.Op.Swap(), rel.Left, true
	}
	return nil, 0, nil, false
}

// IsNullOperand reports whether the predicate is `col IS [NOT] NULL` on table.
func (p *Predicate) IsNullOperand(table int) (*ColumnReference, bool, bool) {
	in, ok := p.Expr.(*IsNull)
	if !ok {
		return nil, false, false
	}
	c, ok := in.Operand.(*ColumnReference)
	if !ok || c.TableNumber != table {
		return nil, false, false
	}
	return c, in.Not, true
}

type PredicateList []*Predicate

func (l PredicateList) Exprs() []ValueNode {
	out := make([]ValueNode, len(l))
	for i, p := range l {
		out[i] = p.Expr
	}
	return out
}

// Without returns l minus the predicates in drop, keeping order.
func (l PredicateList) Without(drop PredicateList) PredicateList {
	skip := map[*Predicate]bool{}
	for _, p := range drop {
		skip[p] = true
	}
	var out PredicateList
	for _, p := range l {
		if !skip[p] {
			out = append(out, p)
		}
	}
	return out
}

func (l PredicateList) Contains(p *Predicate) bool {
	for _, q := range l {
		if q == p {
			return true
		}
	}
	return false
}

// SortByNumber orders the list by predicate number so key ordering is stable.
func (l PredicateList) SortByNumber() {
	sort.SliceStable(l, func(i, j int) bool { return l[i].Number < l[j].Number })
}

// CostEstimate is the estimated cost of a (partial) plan.
type CostEstimate struct {
	Cost     float64
	RowCount float64
	// SingleScanRowCount is the row count of one probe of the innermost table.
	SingleScanRowCount float64
}

// Less compares by cost, then by row count.
func (c CostEstimate) Less(o CostEstimate) bool {
	if c.Cost != o.Cost {
		return c.Cost < o.Cost
	}
	return c.RowCount < o.RowCount
}

func (c CostEstimate) Add(o CostEstimate) CostEstimate {
	return CostEstimate{Cost: c.Cost + o.Cost, RowCount: o.RowCount, SingleScanRowCount: o.SingleScanRowCount}
}
