package plan

import (
	"planforge/sql"
)

// Env is what a closure sees while it runs: the row being evaluated, the
// composite row of the tables joined before it, and the environment of the
// enclosing query block.
type Env struct {
	Row   sql.Row
	Probe sql.Row
	Outer *Env
	X     *Execution
}

// With returns an environment at the same level over different rows.
func (e *Env) With(row, probe sql.Row) *Env {
	return &Env{Row: row, Probe: probe, Outer: e.Outer, X: e.X}
}

// Nested returns the environment of a block nested under e.
func (e *Env) Nested() *Env {
	return &Env{Outer: e, X: e.X}
}

// up walks n levels out.
func (e *Env) up(n int) *Env {
	for ; n > 0 && e != nil; n-- {
		e = e.Outer
	}
	return e
}

// Execution is the state shared by every environment of one execution.
type Execution struct {
	Params  []sql.Value
	Backend Backend
	// Positions maps a cursor name to the row location it is positioned on.
	Positions map[string]sql.Value
	subquery  map[int][]sql.Row
}

func NewExecution(backend Backend, params []sql.Value) *Execution {
	return &Execution{Params: params, Backend: backend, subquery: map[int][]sql.Row{}}
}

// Root is the environment of a top-level block.
func (x *Execution) Root() *Env { return &Env{X: x} }

// Expr computes one value.
type Expr func(env *Env) (sql.Value, error)

// Pred is a restriction. A row passes only when every conjunct is TRUE;
// FALSE and UNKNOWN both reject it.
type Pred func(env *Env) (bool, error)

// Truth is a three-valued logic value.
type Truth int

const (
	Unknown Truth = iota
	False
	True
)

func truthOf(v sql.Value) Truth {
	if v.IsNull() {
		return Unknown
	}
	if b, ok := v.V.(bool); ok && b {
		return True
	}
	return False
}

func (t Truth) value() sql.Value {
	switch t {
	case True:
		return sql.NewBool(true)
	case False:
		return sql.NewBool(false)
	}
	return sql.NewNull(sql.BooleanID)
}

func and3(a, b Truth) Truth {
	if a == False || b == False {
		return False
	}
	if a == True && b == True {
		return True
	}
	return Unknown
}

func or3(a, b Truth) Truth {
	if a == True || b == True {
		return True
	}
	if a == False && b == False {
		return False
	}
	return Unknown
}

func not3(a Truth) Truth {
	switch a {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

// Passes evaluates p, treating a nil restriction as always true.
func Passes(p Pred, env *Env) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p(env)
}

// conjunction folds compiled conjuncts into one restriction.
func conjunction(exprs []Expr) Pred {
	if len(exprs) == 0 {
		return nil
	}
	return func(env *Env) (bool, error) {
		for _, e := range exprs {
			v, err := e(env)
			if err != nil {
				return false, err
			}
			if truthOf(v) != True {
				return false, nil
			}
		}
		return true, nil
	}
}
