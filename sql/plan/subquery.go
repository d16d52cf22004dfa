package plan

import (
	"strconv"

	"planforge/sql"
	"planforge/sql/tree"
)

// SubqueryPlan is the plan of a subquery used inside an expression. An
// uncorrelated subquery runs once per execution.
type SubqueryPlan struct {
	Number     int
	Type       tree.SubqueryType
	Correlated bool
	Root       Operator
}

func (s *SubqueryPlan) String() string {
	kind := "uncorrelated"
	if s.Correlated {
		kind = "correlated"
	}
	return s.Type.String() + " subquery " + strconv.Itoa(s.Number) + " (" + kind + ")"
}

func (b *Builder) compileSubquery(sq *tree.Subquery, sc *scope) (Expr, error) {
	var left Expr
	if sq.LeftOperand != nil {
		var err error
		if left, err = b.compile(sq.LeftOperand, sc); err != nil {
			return nil, err
		}
	}
	// the body's own subqueries belong to the body's operators
	saved := b.pending
	b.pending = nil
	root, err := b.buildQuery(sq.Query, sc.nested())
	b.pending = saved
	if err != nil {
		return nil, err
	}
	sp := &SubqueryPlan{Number: sq.Number, Type: sq.SubType, Correlated: sq.Correlated, Root: root}
	b.pending = append(b.pending, sp)

	result := resultType(sq)
	switch sq.SubType {
	case tree.SubqueryScalar:
		return func(env *Env) (sql.Value, error) {
			var out *sql.Value
			err := sp.each(env, func(row sql.Row) (bool, error) {
				if out != nil {
					return false, sql.ErrScalarSubqueryRows.New(sp.Number)
				}
				v := row[0]
				out = &v
				return true, nil
			})
			if err != nil {
				return sql.Value{}, err
			}
			if out == nil {
				return sql.NewNull(result), nil
			}
			return *out, nil
		}, nil
	case tree.SubqueryExists, tree.SubqueryNotExists:
		negated := sq.SubType == tree.SubqueryNotExists
		return func(env *Env) (sql.Value, error) {
			found := false
			err := sp.each(env, func(sql.Row) (bool, error) {
				found = true
				return false, nil
			})
			if err != nil {
				return sql.Value{}, err
			}
			return sql.NewBool(found != negated), nil
		}, nil
	case tree.SubqueryIn, tree.SubqueryNotIn:
		negated := sq.SubType == tree.SubqueryNotIn
		return func(env *Env) (sql.Value, error) {
			l, err := left(env)
			if err != nil {
				return sql.Value{}, err
			}
			t := False
			err = sp.each(env, func(row sql.Row) (bool, error) {
				switch compare(tree.RelEQ, l, row[0]) {
				case True:
					t = True
					return false, nil
				case Unknown:
					t = Unknown
				}
				return true, nil
			})
			if err != nil {
				return sql.Value{}, err
			}
			if negated {
				t = not3(t)
			}
			return t.value(), nil
		}, nil
	}
	return nil, sql.ErrUnsupported.New(sq.SubType.String() + " subquery")
}

// each feeds the rows of the subquery to fn until fn returns false. The
// rows of an uncorrelated subquery are kept for the rest of the execution.
func (s *SubqueryPlan) each(env *Env, fn func(sql.Row) (bool, error)) error {
	x := env.X
	if !s.Correlated {
		rows, ok := x.subquery[s.Number]
		if !ok {
			var err error
			if rows, err = collect(x.Backend, s.Root, env); err != nil {
				return err
			}
			x.subquery[s.Number] = rows
		}
		for _, r := range rows {
			more, err := fn(r)
			if err != nil || !more {
				return err
			}
		}
		return nil
	}
	rs, err := x.Backend.Open(s.Root, env)
	if err != nil {
		return err
	}
	defer rs.Close()
	for {
		row, ok, err := rs.Next()
		if err != nil || !ok {
			return err
		}
		more, err := fn(row)
		if err != nil || !more {
			return err
		}
	}
}

// collect drains the rows of op.
func collect(backend Backend, op Operator, outer *Env) ([]sql.Row, error) {
	rs, err := backend.Open(op, outer)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var rows []sql.Row
	for {
		row, ok, err := rs.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
