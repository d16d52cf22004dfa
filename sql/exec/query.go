package exec

import (
	"sort"

	"planforge/sql"
	"planforge/sql/plan"
	"planforge/sql/tree"
)

type SortExec struct {
	Source Executor
	Keys   []plan.SortKey
}

func (s *SortExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := s.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	rows := append([]sql.Row(nil), in.Rows...)
	sort.Stable(Sorter{rows: rows, keys: s.Keys})
	return &ResultSet{Rows: rows}, nil
}

// Sorter orders rows on key columns. NULL sorts after every value, so it
// comes first in descending order.
type Sorter struct {
	rows []sql.Row
	keys []plan.SortKey
}

func (s Sorter) Len() int { return len(s.rows) }

func (s Sorter) Swap(i, j int) { s.rows[i], s.rows[j] = s.rows[j], s.rows[i] }

func (s Sorter) Less(i, j int) bool {
	a, b := s.rows[i], s.rows[j]
	for _, k := range s.keys {
		res, ok := a[k.Column].Compare(b[k.Column])
		if !ok || res == 0 {
			continue
		}
		if k.Desc {
			res = -res
		}
		return res < 0
	}
	return false
}

func allColumns(width int) []plan.SortKey {
	keys := make([]plan.SortKey, width)
	for i := range keys {
		keys[i].Column = i
	}
	return keys
}

// sortDistinct sorts rows on every column and drops adjacent duplicates.
func sortDistinct(rows []sql.Row, width int) []sql.Row {
	rows = append([]sql.Row(nil), rows...)
	sort.Stable(Sorter{rows: rows, keys: allColumns(width)})
	out := rows[:0]
	for i, r := range rows {
		if i > 0 && equalRows(out[len(out)-1], r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

type DistinctExec struct {
	Source Executor
	Width  int
}

func (d *DistinctExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := d.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	return &ResultSet{Rows: sortDistinct(in.Rows, d.Width)}, nil
}

type LimitExec struct {
	Source Executor
	Offset plan.Expr
	Fetch  plan.Expr
}

func (l *LimitExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	env := envOf(outer, nil, probe)
	offset, err := rowCount("OFFSET", l.Offset, env, 0)
	if err != nil {
		return nil, err
	}
	fetch, err := rowCount("FETCH", l.Fetch, env, -1)
	if err != nil {
		return nil, err
	}
	in, err := l.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	rows := in.Rows
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if fetch >= 0 && fetch < len(rows) {
		rows = rows[:fetch]
	}
	return &ResultSet{Rows: rows}, nil
}

func rowCount(clause string, e plan.Expr, env *plan.Env, missing int) (int, error) {
	if e == nil {
		return missing, nil
	}
	v, err := e(env)
	if err != nil {
		return 0, err
	}
	n, ok := v.V.(int64)
	if !ok || n < 0 {
		return 0, sql.ErrInvalidRowCount.New(clause, v.Literal())
	}
	return int(n), nil
}

type RowNumberExec struct {
	Source Executor
	Count  int
}

func (r *RowNumberExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := r.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	out := &ResultSet{Rows: make([]sql.Row, len(in.Rows))}
	for i, row := range in.Rows {
		next := append(sql.Row(nil), row...)
		for j := 0; j < r.Count; j++ {
			next = append(next, sql.NewBigint(int64(i+1)))
		}
		out.Rows[i] = next
	}
	return out, nil
}

type UnionExec struct {
	Left, Right Executor
	All         bool
	Width       int
}

func (u *UnionExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	left, err := u.Left.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	right, err := u.Right.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	rows := append(append([]sql.Row(nil), left.Rows...), right.Rows...)
	if !u.All {
		rows = sortDistinct(rows, u.Width)
	}
	return &ResultSet{Rows: rows}, nil
}

// SetOpExec merges both inputs sorted on every column. With ALL a row
// appearing m times on the left and n on the right is kept min(m, n) times
// by INTERSECT and m-n times by EXCEPT.
type SetOpExec struct {
	Left, Right Executor
	Node        *plan.SetOp
}

func (s *SetOpExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	left, err := s.Left.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	right, err := s.Right.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	width := s.Node.Width()
	keys := allColumns(width)
	l := append([]sql.Row(nil), left.Rows...)
	r := append([]sql.Row(nil), right.Rows...)
	sort.Stable(Sorter{rows: l, keys: keys})
	sort.Stable(Sorter{rows: r, keys: keys})

	out := &ResultSet{}
	i, j := 0, 0
	for i < len(l) {
		m := run(l, i)
		for j < len(r) && sql.CompareRows(r[j], l[i], width) < 0 {
			j++
		}
		n := 0
		if j < len(r) && equalRows(r[j], l[i]) {
			n = run(r, j)
		}
		keep := 0
		switch {
		case s.Node.Op == tree.SetIntersect && s.Node.All:
			keep = min(m, n)
		case s.Node.Op == tree.SetIntersect:
			keep = min(1, min(m, n))
		case s.Node.All:
			keep = max(m-n, 0)
		case n == 0:
			keep = 1
		}
		for k := 0; k < keep; k++ {
			out.Rows = append(out.Rows, l[i])
		}
		i += m
		j += n
	}
	return out, nil
}

// run counts the rows equal to rows[i] starting at i.
func run(rows []sql.Row, i int) int {
	n := 1
	for i+n < len(rows) && equalRows(rows[i+n], rows[i]) {
		n++
	}
	return n
}
