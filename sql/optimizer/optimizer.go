// Package optimizer chooses join orders, join strategies and access paths
// for every query block of a preprocessed statement.
package optimizer

import (
	"math"

	"planforge/logger"
	"planforge/sql"
	"planforge/sql/tree"
)

type Options struct {
	// TimeoutTables is the table count above which enumeration may stop early.
	TimeoutTables int
	NoTimeout     bool
	HashJoin      bool
	// MaxMemoryPerTable bounds the estimated size of a hash join build, in bytes.
	MaxMemoryPerTable float64
	SortAvoidance     bool
}

func DefaultOptions() Options {
	return Options{
		TimeoutTables:     6,
		HashJoin:          true,
		MaxMemoryPerTable: 1 << 20,
		SortAvoidance:     true,
	}
}

// Stats describes the work done by one Optimize call.
type Stats struct {
	Blocks       int
	Permutations int
	TimedOut     bool
}

type Optimizer struct {
	ctx   *tree.CompilerContext
	opts  Options
	stats Stats
}

func New(ctx *tree.CompilerContext, opts Options) *Optimizer {
	return &Optimizer{ctx: ctx, opts: opts}
}

func (o *Optimizer) Stats() Stats { return o.stats }

// Optimize records an access path on every FROM entry of every block of
// stmt. It fails with sql.ErrPlanNotFound when some block has no feasible
// join order.
func (o *Optimizer) Optimize(stmt tree.StatementNode) error {
	var root tree.ResultSetNode
	switch t := stmt.(type) {
	case *tree.Cursor:
		root = t.Query
	case *tree.Insert:
		root = t.Source
	case *tree.Update:
		root = t.Source
	case *tree.Delete:
		root = t.Source
	case *tree.Merge:
		root = t.Driving
	default:
		return nil
	}
	est, err := o.optimizeResultSet(root)
	if err != nil {
		return err
	}
	logger.Debugf("optimized %s: %d blocks, %d permutations, cost %.2f rows %.1f",
		stmt.StatementName(), o.stats.Blocks, o.stats.Permutations, est.Cost, est.RowCount)
	return nil
}

func (o *Optimizer) optimizeResultSet(rs tree.ResultSetNode) (tree.CostEstimate, error) {
	switch t := rs.(type) {
	case *tree.Select:
		return o.optimizeSelect(t)
	case *tree.SetOperator:
		left, err := o.optimizeResultSet(t.Left)
		if err != nil {
			return tree.CostEstimate{}, err
		}
		right, err := o.optimizeResultSet(t.Right)
		if err != nil {
			return tree.CostEstimate{}, err
		}
		rows := setOperationRows(t.Op, left.RowCount, right.RowCount)
		cost := left.Cost + right.Cost
		if t.Op != tree.SetUnion || !t.All {
			// both inputs are sorted on every column
			cost += sortCost(left.RowCount) + sortCost(right.RowCount)
		}
		if len(t.OrderBy) > 0 {
			cost += sortCost(rows)
		}
		t.Estimate = tree.CostEstimate{Cost: cost, RowCount: limitRows(rows, t.Offset, t.Fetch), SingleScanRowCount: rows}
		return t.Estimate, nil
	case *tree.RowResultSet:
		est := tree.CostEstimate{RowCount: 1, SingleScanRowCount: 1}
		for _, sq := range t.Subqueries {
			sub, err := o.optimizeResultSet(sq.Query)
			if err != nil {
				return tree.CostEstimate{}, err
			}
			est.Cost += sub.Cost
		}
		return est, nil
	case nil:
		return tree.CostEstimate{}, sql.ErrInternal.New("no query to optimize")
	}
	return tree.CostEstimate{}, sql.ErrUnsupported.New("optimizing " + rs.Kind().String())
}

func (o *Optimizer) optimizeSelect(sel *tree.Select) (tree.CostEstimate, error) {
	for _, f := range sel.From {
		if err := o.prepareEntry(f, sel.NestingLevel); err != nil {
			return tree.CostEstimate{}, err
		}
	}
	subqueries := make(map[*tree.Subquery]tree.CostEstimate, len(sel.Subqueries))
	for _, sq := range sel.Subqueries {
		est, err := o.optimizeResultSet(sq.Query)
		if err != nil {
			return tree.CostEstimate{}, err
		}
		subqueries[sq] = est
	}

	b := newBlock(o, sel.NestingLevel, sel.Number, sel.From, sel.WherePredicates, sel.FixedJoinOrder)
	b.order = orderRequirement(sel)
	best, err := b.optimize()
	if err != nil {
		return tree.CostEstimate{}, err
	}
	sel.JoinOrder = best.order
	sel.SortAvoided = best.sortAvoided
	o.stats.Blocks++

	est := best.estimate
	for sq, sub := range subqueries {
		if sq.Correlated {
			est.Cost += est.RowCount * sub.Cost
		} else {
			est.Cost += sub.Cost
		}
	}
	if sel.HasAggregation() {
		est.Cost += sortCost(est.RowCount)
		if len(sel.GroupBy) == 0 {
			est.RowCount = 1
		} else {
			est.RowCount = math.Max(1, est.RowCount*0.1)
		}
		for _, p := range counted(sel.HavingPredicates) {
			est.RowCount *= defaultSelectivity(p)
		}
	}
	if sel.Distinct {
		est.Cost += sortCost(est.RowCount)
	}
	if len(sel.OrderBy) > 0 && !sel.SortAvoided {
		est.Cost += sortCost(est.RowCount)
	}
	est.RowCount = limitRows(est.RowCount, sel.Offset, sel.Fetch)
	sel.Estimate = est
	return est, nil
}

// prepareEntry optimizes what lies beneath a FROM entry so its estimate is
// known before the entry is placed in a join order.
func (o *Optimizer) prepareEntry(f tree.FromTable, level int) error {
	switch t := tree.Unwrap(f).(type) {
	case *tree.FromSubquery:
		_, err := o.optimizeResultSet(t.Query)
		return err
	case *tree.Join:
		return o.optimizeJoin(t, level)
	}
	return nil
}

// optimizeJoin plans an outer join as a fixed two-table order. ON
// predicates are all applied at the inner side.
func (o *Optimizer) optimizeJoin(j *tree.Join, level int) error {
	for _, f := range []tree.FromTable{j.Left, j.Right} {
		if err := o.prepareEntry(f, level); err != nil {
			return err
		}
	}
	b := newBlock(o, level, j.Number, []tree.FromTable{j.Left, j.Right}, j.OnPredicates, true)
	b.onInner = true
	best, err := b.optimize()
	if err != nil {
		return err
	}
	est := best.estimate
	if j.Type == tree.LeftOuterJoin {
		left := tree.PathOf(j.Left)
		if left != nil {
			est.RowCount = math.Max(est.RowCount, left.Estimate.RowCount)
		}
	}
	j.Estimate = est
	return nil
}

// limitRows applies constant OFFSET and FETCH to a row estimate.
func limitRows(rows float64, offset, fetch tree.ValueNode) float64 {
	if c, ok := offset.(*tree.Constant); ok {
		if n, ok := c.Value.V.(int64); ok {
			rows = math.Max(0, rows-float64(n))
		}
	}
	if c, ok := fetch.(*tree.Constant); ok {
		if n, ok := c.Value.V.(int64); ok {
			rows = math.Min(rows, float64(n))
		}
	}
	return rows
}
