package exec

import (
	"planforge/sql"
	"planforge/sql/plan"
	"planforge/sql/tree"
)

// AggregationExec groups its input in first-seen order. Each output row is
// the first input row of the group followed by the aggregate values.
type AggregationExec struct {
	Source Executor
	Node   *plan.GroupAggregate
}

type group struct {
	first sql.Row
	accs  []Accumulator
}

func (a *AggregationExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := a.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	groups := newRowSet[*group]()
	var order []*group
	newGroup := func(first sql.Row) *group {
		g := &group{first: first}
		for _, spec := range a.Node.Aggregates {
			g.accs = append(g.accs, NewAccumulator(spec))
		}
		order = append(order, g)
		return g
	}
	if len(a.Node.GroupBy) == 0 {
		// the whole input is one group, even when there is no row
		newGroup(nullRow(a.Node.Input.Width()))
	}

	for _, row := range in.Rows {
		env := envOf(outer, row, nil)
		var g *group
		if len(a.Node.GroupBy) == 0 {
			g = order[0]
		} else {
			key, err := evalKeys(a.Node.GroupBy, env)
			if err != nil {
				return nil, err
			}
			groups.upsert(key, func(old *group) *group {
				if old == nil {
					old = newGroup(row)
				}
				g = old
				return old
			})
		}
		for i, spec := range a.Node.Aggregates {
			v := sql.NewNull(spec.Type.TypeID)
			if spec.Operand != nil {
				if v, err = spec.Operand(env); err != nil {
					return nil, err
				}
			}
			if err := g.accs[i].Accumulate(v); err != nil {
				return nil, err
			}
		}
	}
	if len(a.Node.GroupBy) == 0 && len(in.Rows) > 0 {
		order[0].first = in.Rows[0]
	}

	out := &ResultSet{}
	for _, g := range order {
		row := append(sql.Row(nil), g.first...)
		for _, acc := range g.accs {
			v, err := acc.Aggregate()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

type Accumulator interface {
	Accumulate(v sql.Value) error
	Aggregate() (sql.Value, error)
}

func NewAccumulator(spec plan.AggregateSpec) Accumulator {
	result := spec.Type.TypeID
	var acc Accumulator
	switch spec.Func {
	case tree.AggCountStar:
		return &CountAcc{result: result, star: true}
	case tree.AggCount:
		acc = &CountAcc{result: result}
	case tree.AggSum:
		acc = &SumAcc{result: result}
	case tree.AggAvg:
		acc = &AverageAcc{Sum: SumAcc{result: result}, result: result}
	case tree.AggMin:
		acc = &ExtremeAcc{result: result, sign: -1}
	case tree.AggMax:
		acc = &ExtremeAcc{result: result, sign: 1}
	default:
		acc = &ExtremeAcc{result: result}
	}
	if spec.Distinct {
		return &DistinctAcc{inner: acc, seen: newRowSet[struct{}]()}
	}
	return acc
}

type CountAcc struct {
	result sql.TypeID
	star   bool
	n      int64
}

func (c *CountAcc) Accumulate(v sql.Value) error {
	if c.star || !v.IsNull() {
		c.n++
	}
	return nil
}

func (c *CountAcc) Aggregate() (sql.Value, error) {
	return sql.Value{Type: c.result, V: c.n}, nil
}

type SumAcc struct {
	result sql.TypeID
	sum    sql.Value
	seen   bool
}

func (s *SumAcc) Accumulate(v sql.Value) error {
	if v.IsNull() {
		return nil
	}
	if !s.seen {
		s.sum, s.seen = sql.Value{Type: s.result, V: v.V}, true
		if _, ok := v.V.(int64); ok && !s.result.IsExactInteger() {
			s.sum.V = float64(v.V.(int64))
		}
		return nil
	}
	var err error
	s.sum, err = s.sum.Arithmetic(sql.OpPlus, v, s.result)
	return err
}

func (s *SumAcc) Aggregate() (sql.Value, error) {
	if !s.seen {
		return sql.NewNull(s.result), nil
	}
	return s.sum, nil
}

// AverageAcc divides in the result type, so the average of integers is
// truncated.
type AverageAcc struct {
	Sum    SumAcc
	result sql.TypeID
	n      int64
}

func (a *AverageAcc) Accumulate(v sql.Value) error {
	if v.IsNull() {
		return nil
	}
	a.n++
	return a.Sum.Accumulate(v)
}

func (a *AverageAcc) Aggregate() (sql.Value, error) {
	if a.n == 0 {
		return sql.NewNull(a.result), nil
	}
	return a.Sum.sum.Arithmetic(sql.OpDivide, sql.NewBigint(a.n), a.result)
}

// ExtremeAcc keeps the maximum when sign is 1 and the minimum when -1.
type ExtremeAcc struct {
	result sql.TypeID
	sign   int
	best   sql.Value
	seen   bool
}

func (e *ExtremeAcc) Accumulate(v sql.Value) error {
	if v.IsNull() {
		return nil
	}
	if !e.seen {
		e.best, e.seen = v, true
		return nil
	}
	c, ok := v.Compare(e.best)
	if !ok {
		return sql.ErrNotComparable.New(v.Type, e.best.Type)
	}
	if c*e.sign > 0 {
		e.best = v
	}
	return nil
}

func (e *ExtremeAcc) Aggregate() (sql.Value, error) {
	if !e.seen {
		return sql.NewNull(e.result), nil
	}
	return e.best, nil
}

// DistinctAcc feeds each distinct non-null value to inner once.
type DistinctAcc struct {
	inner Accumulator
	seen  *rowSet[struct{}]
}

func (d *DistinctAcc) Accumulate(v sql.Value) error {
	if v.IsNull() {
		return nil
	}
	if !d.seen.upsert(sql.Row{v}, func(struct{}) struct{} { return struct{}{} }) {
		return nil
	}
	return d.inner.Accumulate(v)
}

func (d *DistinctAcc) Aggregate() (sql.Value, error) { return d.inner.Aggregate() }
