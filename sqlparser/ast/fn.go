package ast

type ExprFnBool func(expression Expression) bool

// Contains reports whether fn holds for expr or any expression below it.
// Subquery bodies are not entered.
func Contains(expr Expression, fn ExprFnBool) bool {
	return !Walk(expr, func(expr Expression) bool {
		return !fn(expr)
	})
}

// Walk visits expr in pre-order and stops as soon as visitor returns false.
func Walk(expr Expression, visitor ExprFnBool) bool {
	if expr == nil {
		return true
	}
	if !visitor(expr) {
		return false
	}

	switch v := expr.(type) {
	case *AndOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *OrOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *EqualOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *NotEqualOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *GreaterThanOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *GreaterThanOrEqualOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *LessThanOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *LessThanOrEqualOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *LikeOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor) && Walk(v.Escape, visitor)
	case *AddOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *SubtractOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *MultiplyOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *DivideOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *ModuloOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *ConcatOper:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *NullIfExpr:
		return Walk(v.L, visitor) && Walk(v.R, visitor)
	case *NotOper:
		return Walk(v.L, visitor)
	case *NegateOper:
		return Walk(v.L, visitor)
	case *IsNullOper:
		return Walk(v.L, visitor)
	case *CastExpr:
		return Walk(v.Expr, visitor)
	case *BetweenExpr:
		return Walk(v.Expr, visitor) && Walk(v.Low, visitor) && Walk(v.High, visitor)
	case *InListExpr:
		if !Walk(v.Expr, visitor) {
			return false
		}
		return walkAll(v.List, visitor)
	case *InSubqueryExpr:
		return Walk(v.Expr, visitor)
	case *Function:
		return walkAll(v.Args, visitor)
	case *CoalesceExpr:
		return walkAll(v.Args, visitor)
	case *CaseExpr:
		if !Walk(v.Operand, visitor) {
			return false
		}
		for _, w := range v.Whens {
			if !Walk(w.Cond, visitor) || !Walk(w.Result, visitor) {
				return false
			}
		}
		return Walk(v.Else, visitor)
	}
	return true
}

func walkAll(exprs []Expression, visitor ExprFnBool) bool {
	for _, e := range exprs {
		if !Walk(e, visitor) {
			return false
		}
	}
	return true
}

// IsAggregateName reports whether name is a built-in aggregate function.
func IsAggregateName(name string) bool {
	switch name {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	}
	return false
}
