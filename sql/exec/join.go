package exec

import (
	"planforge/sql"
	"planforge/sql/plan"
	"planforge/sql/tree"
)

// NestedLoopJoinExec runs the inner side once per outer row with that row
// as the probe.
type NestedLoopJoinExec struct {
	Outer      Executor
	Inner      Executor
	Type       tree.JoinType
	InnerWidth int
}

func (n *NestedLoopJoinExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	left, err := n.Outer.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	out := &ResultSet{}
	for _, l := range left.Rows {
		right, err := n.Inner.Execute(outer, l)
		if err != nil {
			return nil, err
		}
		for _, r := range right.Rows {
			out.Rows = append(out.Rows, concatRows(l, r))
		}
		if len(right.Rows) == 0 && n.Type == tree.LeftOuterJoin {
			out.Rows = append(out.Rows, concatRows(l, nullRow(n.InnerWidth)))
		}
	}
	return out, nil
}

// HashJoinExec builds a table over the inner rows once, then probes it
// with the key of every outer row. A NULL key never matches.
type HashJoinExec struct {
	Outer Executor
	Inner Executor
	Join  *plan.HashJoin
}

func (h *HashJoinExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	right, err := h.Inner.Execute(outer, nil)
	if err != nil {
		return nil, err
	}
	table := newRowSet[[]sql.Row]()
	for _, r := range right.Rows {
		key, err := evalKeys(h.Join.BuildKeys, envOf(outer, r, nil))
		if err != nil {
			return nil, err
		}
		if hasNull(key) {
			continue
		}
		table.upsert(key, func(rows []sql.Row) []sql.Row { return append(rows, r) })
	}

	left, err := h.Outer.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	out := &ResultSet{}
	for _, l := range left.Rows {
		key, err := evalKeys(h.Join.ProbeKeys, envOf(outer, l, nil))
		if err != nil {
			return nil, err
		}
		matched := false
		if !hasNull(key) {
			candidates, _ := table.get(key)
			for _, r := range candidates {
				joined := concatRows(l, r)
				ok, err := plan.Passes(h.Join.Restriction, envOf(outer, joined, nil))
				if err != nil {
					return nil, err
				}
				if ok {
					out.Rows = append(out.Rows, joined)
					matched = true
				}
			}
		}
		if !matched && h.Join.Type == tree.LeftOuterJoin {
			out.Rows = append(out.Rows, concatRows(l, nullRow(h.Join.Inner.Width())))
		}
	}
	return out, nil
}

func evalKeys(exprs []plan.Expr, env *plan.Env) (sql.Row, error) {
	key := make(sql.Row, len(exprs))
	for i, e := range exprs {
		var err error
		if key[i], err = e(env); err != nil {
			return nil, err
		}
	}
	return key, nil
}
