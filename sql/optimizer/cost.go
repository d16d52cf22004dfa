package optimizer

import (
	"math"

	"planforge/sql/store"
	"planforge/sql/tree"
)

// sortComparisonCost is the cost of one comparison in an in-memory sort.
const sortComparisonCost = 0.01

func sortCost(rows float64) float64 {
	if rows < 2 {
		return 0
	}
	return rows * math.Log2(rows) * sortComparisonCost
}

// nestedLoopCost joins outer with an inner that costs perProbe per outer row.
func nestedLoopCost(outer, perProbe tree.CostEstimate) tree.CostEstimate {
	return tree.CostEstimate{
		Cost:               outer.Cost + outer.RowCount*perProbe.Cost,
		RowCount:           outer.RowCount * perProbe.RowCount,
		SingleScanRowCount: perProbe.RowCount,
	}
}

// hashJoinCost pays for building the inner table once; probes are free.
func hashJoinCost(outer, build tree.CostEstimate, rowsPerProbe float64) tree.CostEstimate {
	return tree.CostEstimate{
		Cost:               outer.Cost + build.Cost,
		RowCount:           outer.RowCount * rowsPerProbe,
		SingleScanRowCount: rowsPerProbe,
	}
}

// defaultSelectivity estimates a predicate from its shape alone, for inputs
// without store statistics such as derived tables.
func defaultSelectivity(p *tree.Predicate) float64 {
	switch t := p.Expr.(type) {
	case *tree.BinaryRelational:
		switch t.Op {
		case tree.RelEQ:
			return store.DefaultEqualsSelectivity
		case tree.RelNE:
			return store.DefaultNotEqSelectivity
		default:
			return store.DefaultRangeSelectivity
		}
	case *tree.IsNull:
		if t.Not {
			return 1 - store.DefaultIsNullSelectivity
		}
		return store.DefaultIsNullSelectivity
	case *tree.Like:
		return store.DefaultLikeSelectivity
	}
	return store.DefaultUnknownSelectivity
}

// counted drops all but the first predicate of each equivalence class and
// every redundant predicate, so implied equalities are not multiplied in twice.
func counted(preds tree.PredicateList) tree.PredicateList {
	seen := map[int]bool{}
	var out tree.PredicateList
	for _, p := range preds {
		if p.Redundant {
			continue
		}
		if p.EquivalenceClass != 0 {
			if seen[p.EquivalenceClass] {
				continue
			}
			seen[p.EquivalenceClass] = true
		}
		out = append(out, p)
	}
	return out
}

// setOperationRows estimates the output of a set operation. The INTERSECT
// and EXCEPT figures are heuristics kept for plan-shape compatibility.
func setOperationRows(op tree.SetOpType, left, right float64) float64 {
	switch op {
	case tree.SetIntersect:
		return math.Min(left, right) / 2
	case tree.SetExcept:
		return (left + math.Max(0, left-right)) / 2
	}
	return left + right
}
