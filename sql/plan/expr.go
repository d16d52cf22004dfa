package plan

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"planforge/sql"
	"planforge/sql/tree"
)

// compile turns a bound expression into a closure over the rows described
// by sc. Subqueries met on the way are planned and queued for the
// operator being built.
func (b *Builder) compile(v tree.ValueNode, sc *scope) (Expr, error) {
	switch t := v.(type) {
	case *tree.Constant:
		val := t.Value
		return func(*Env) (sql.Value, error) { return val, nil }, nil
	case *tree.Parameter:
		return compileParameter(t)
	case *tree.ColumnReference:
		return sc.resolveColumn(t)
	case *tree.VirtualColumn:
		return sc.resolveVirtual(t)
	case *tree.ResultColumn:
		if t.Expression == nil {
			return nil, sql.ErrInternal.New("result column " + t.Name + " has no expression")
		}
		return b.compile(t.Expression, sc)
	case *tree.BinaryRelational:
		return b.compileComparison(t, sc)
	case *tree.BinaryArithmetic:
		l, r, err := b.compilePair(t.Left, t.Right, sc)
		if err != nil {
			return nil, err
		}
		op, result := t.Op, resultType(t)
		return func(env *Env) (sql.Value, error) {
			a, c, err := evalPair(l, r, env)
			if err != nil {
				return sql.Value{}, err
			}
			return a.Arithmetic(op, c, result)
		}, nil
	case *tree.Concatenation:
		l, r, err := b.compilePair(t.Left, t.Right, sc)
		if err != nil {
			return nil, err
		}
		result := resultType(t)
		return func(env *Env) (sql.Value, error) {
			a, c, err := evalPair(l, r, env)
			if err != nil {
				return sql.Value{}, err
			}
			return concat(a, c, result), nil
		}, nil
	case *tree.Like:
		return b.compileLike(t, sc)
	case *tree.And:
		l, r, err := b.compilePair(t.Left, t.Right, sc)
		if err != nil {
			return nil, err
		}
		return func(env *Env) (sql.Value, error) {
			a, err := l(env)
			if err != nil {
				return sql.Value{}, err
			}
			if truthOf(a) == False {
				return False.value(), nil
			}
			c, err := r(env)
			if err != nil {
				return sql.Value{}, err
			}
			return and3(truthOf(a), truthOf(c)).value(), nil
		}, nil
	case *tree.Or:
		l, r, err := b.compilePair(t.Left, t.Right, sc)
		if err != nil {
			return nil, err
		}
		return func(env *Env) (sql.Value, error) {
			a, err := l(env)
			if err != nil {
				return sql.Value{}, err
			}
			if truthOf(a) == True {
				return True.value(), nil
			}
			c, err := r(env)
			if err != nil {
				return sql.Value{}, err
			}
			return or3(truthOf(a), truthOf(c)).value(), nil
		}, nil
	case *tree.Not:
		operand, err := b.compile(t.Operand, sc)
		if err != nil {
			return nil, err
		}
		return func(env *Env) (sql.Value, error) {
			a, err := operand(env)
			if err != nil {
				return sql.Value{}, err
			}
			return not3(truthOf(a)).value(), nil
		}, nil
	case *tree.IsNull:
		operand, err := b.compile(t.Operand, sc)
		if err != nil {
			return nil, err
		}
		not := t.Not
		return func(env *Env) (sql.Value, error) {
			a, err := operand(env)
			if err != nil {
				return sql.Value{}, err
			}
			return sql.NewBool(a.IsNull() != not), nil
		}, nil
	case *tree.UnaryMinus:
		operand, err := b.compile(t.Operand, sc)
		if err != nil {
			return nil, err
		}
		return func(env *Env) (sql.Value, error) {
			a, err := operand(env)
			if err != nil {
				return sql.Value{}, err
			}
			return negate(a)
		}, nil
	case *tree.Cast:
		operand, err := b.compile(t.Operand, sc)
		if err != nil {
			return nil, err
		}
		target := t.Type()
		if target == nil {
			return nil, sql.ErrInternal.New("cast without a target type")
		}
		return func(env *Env) (sql.Value, error) {
			a, err := operand(env)
			if err != nil {
				return sql.Value{}, err
			}
			return a.Convert(target)
		}, nil
	case *tree.Conditional:
		return b.compileConditional(t, sc)
	case *tree.Coalesce:
		args, err := b.compileList(t.Args, sc)
		if err != nil {
			return nil, err
		}
		result := resultType(t)
		return func(env *Env) (sql.Value, error) {
			for _, a := range args {
				v, err := a(env)
				if err != nil || !v.IsNull() {
					return v, err
				}
			}
			return sql.NewNull(result), nil
		}, nil
	case *tree.RoutineCall:
		return b.compileRoutine(t, sc)
	case *tree.Subquery:
		return b.compileSubquery(t, sc)
	case *tree.Aggregate, *tree.WindowFunction:
		return nil, sql.ErrInternal.New(tree.Describe(v) + " was not replaced by its generated column")
	case nil:
		return nil, sql.ErrInternal.New("compiling a missing expression")
	}
	return nil, sql.ErrUnsupported.New("evaluating " + v.Kind().String())
}

func (b *Builder) compilePair(l, r tree.ValueNode, sc *scope) (Expr, Expr, error) {
	left, err := b.compile(l, sc)
	if err != nil {
		return nil, nil, err
	}
	right, err := b.compile(r, sc)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (b *Builder) compileList(vs []tree.ValueNode, sc *scope) ([]Expr, error) {
	out := make([]Expr, len(vs))
	for i, v := range vs {
		e, err := b.compile(v, sc)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// compileRestriction compiles the conjuncts of a predicate list.
func (b *Builder) compileRestriction(preds tree.PredicateList, sc *scope) (Pred, error) {
	exprs, err := b.compileList(preds.Exprs(), sc)
	if err != nil {
		return nil, err
	}
	return conjunction(exprs), nil
}

func evalPair(l, r Expr, env *Env) (sql.Value, sql.Value, error) {
	a, err := l(env)
	if err != nil {
		return sql.Value{}, sql.Value{}, err
	}
	c, err := r(env)
	return a, c, err
}

func resultType(v tree.ValueNode) sql.TypeID {
	if t := v.Type(); t != nil {
		return t.TypeID
	}
	return sql.VarcharID
}

// compileParameter reads a supplied value. A parameter whose type was never
// resolved must not reach this point.
func compileParameter(p *tree.Parameter) (Expr, error) {
	if !p.Resolved() {
		return nil, sql.ErrInternal.New(fmt.Sprintf("parameter ?%d reached plan generation without a type", p.Number))
	}
	target, idx := p.Type(), p.Number-1
	return func(env *Env) (sql.Value, error) {
		if idx < 0 || idx >= len(env.X.Params) {
			return sql.Value{}, sql.ErrParameterCount.New(idx+1, len(env.X.Params))
		}
		return env.X.Params[idx].Convert(target)
	}, nil
}

func (b *Builder) compileComparison(t *tree.BinaryRelational, sc *scope) (Expr, error) {
	l, r, err := b.compilePair(t.Left, t.Right, sc)
	if err != nil {
		return nil, err
	}
	op := t.Op
	return func(env *Env) (sql.Value, error) {
		a, c, err := evalPair(l, r, env)
		if err != nil {
			return sql.Value{}, err
		}
		return compare(op, a, c).value(), nil
	}, nil
}

func compare(op tree.RelOp, a, c sql.Value) Truth {
	if a.IsNull() || c.IsNull() {
		return Unknown
	}
	n, ok := a.Compare(c)
	if !ok {
		return Unknown
	}
	var b bool
	switch op {
	case tree.RelEQ:
		b = n == 0
	case tree.RelNE:
		b = n != 0
	case tree.RelLT:
		b = n < 0
	case tree.RelLE:
		b = n <= 0
	case tree.RelGT:
		b = n > 0
	case tree.RelGE:
		b = n >= 0
	}
	if b {
		return True
	}
	return False
}

func concat(a, c sql.Value, result sql.TypeID) sql.Value {
	if a.IsNull() || c.IsNull() {
		return sql.NewNull(result)
	}
	if x, ok := a.V.([]byte); ok {
		y, _ := c.V.([]byte)
		return sql.Value{Type: result, V: append(bytes.Clone(x), y...)}
	}
	return sql.Value{Type: result, V: a.String() + c.String()}
}

func negate(a sql.Value) (sql.Value, error) {
	switch x := a.V.(type) {
	case nil:
		return a, nil
	case int64:
		return sql.Value{Type: a.Type, V: -x}, nil
	case float64:
		return sql.Value{Type: a.Type, V: -x}, nil
	}
	return sql.Value{}, sql.ErrTypeMismatch.New("unary -", a.Type, sql.DoubleID)
}

func (b *Builder) compileLike(t *tree.Like, sc *scope) (Expr, error) {
	operand, pattern, err := b.compilePair(t.Operand, t.Pattern, sc)
	if err != nil {
		return nil, err
	}
	var escape Expr
	if t.Escape != nil {
		if escape, err = b.compile(t.Escape, sc); err != nil {
			return nil, err
		}
	}
	return func(env *Env) (sql.Value, error) {
		s, p, err := evalPair(operand, pattern, env)
		if err != nil {
			return sql.Value{}, err
		}
		esc := sql.NewNull(sql.CharID)
		if escape != nil {
			if esc, err = escape(env); err != nil {
				return sql.Value{}, err
			}
		}
		if s.IsNull() || p.IsNull() || (escape != nil && esc.IsNull()) {
			return Unknown.value(), nil
		}
		var escRune rune = -1
		if escape != nil {
			e := esc.String()
			if utf8.RuneCountInString(e) != 1 {
				return sql.Value{}, sql.ErrInvalidCast.New(esc.Literal(), "a LIKE escape character")
			}
			escRune, _ = utf8.DecodeRuneInString(e)
		}
		return sql.NewBool(likeMatch([]rune(s.String()), []rune(p.String()), escRune)), nil
	}, nil
}

// likeMatch matches s against a LIKE pattern where % is any run and _ any
// single character.
func likeMatch(s, p []rune, esc rune) bool {
	si, pi := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		if pi < len(p) {
			c, literal := p[pi], false
			step := 1
			if c == esc && pi+1 < len(p) {
				c, literal, step = p[pi+1], true, 2
			}
			switch {
			case !literal && c == '%':
				star, mark = pi, si
				pi++
				continue
			case (!literal && c == '_') || c == s[si]:
				si++
				pi += step
				continue
			}
		}
		if star < 0 {
			return false
		}
		mark++
		si, pi = mark, star+1
	}
	for pi < len(p) && p[pi] == '%' && p[pi] != esc {
		pi++
	}
	return pi == len(p)
}

func (b *Builder) compileConditional(t *tree.Conditional, sc *scope) (Expr, error) {
	type branch struct{ cond, then Expr }
	whens := make([]branch, len(t.Whens))
	for i, w := range t.Whens {
		cond, then, err := b.compilePair(w.Cond, w.Then, sc)
		if err != nil {
			return nil, err
		}
		whens[i] = branch{cond, then}
	}
	var els Expr
	if t.Else != nil {
		var err error
		if els, err = b.compile(t.Else, sc); err != nil {
			return nil, err
		}
	}
	result := resultType(t)
	return func(env *Env) (sql.Value, error) {
		for _, w := range whens {
			c, err := w.cond(env)
			if err != nil {
				return sql.Value{}, err
			}
			if truthOf(c) == True {
				return w.then(env)
			}
		}
		if els == nil {
			return sql.NewNull(result), nil
		}
		return els(env)
	}, nil
}

func (b *Builder) compileRoutine(t *tree.RoutineCall, sc *scope) (Expr, error) {
	if t.Routine == nil || t.Routine.Fn == nil {
		return nil, sql.ErrUnsupported.New("executing routine " + t.Name)
	}
	args, err := b.compileList(t.Args, sc)
	if err != nil {
		return nil, err
	}
	fn := t.Routine.Fn
	return func(env *Env) (sql.Value, error) {
		vals := make([]sql.Value, len(args))
		for i, a := range args {
			v, err := a(env)
			if err != nil {
				return sql.Value{}, err
			}
			vals[i] = v
		}
		return fn(vals)
	}, nil
}
