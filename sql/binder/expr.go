package binder

import (
	"fmt"
	"strconv"
	"strings"

	"planforge/sql"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// clause names the part of a query an expression is bound in.
type clause int

const (
	clauseSelect clause = iota
	clauseWhere
	clauseOn
	clauseGroupBy
	clauseHaving
	clauseOrderBy
	clauseFetch
	clauseValues
	clauseSet
	clauseMerge
)

func (c clause) String() string {
	switch c {
	case clauseSelect:
		return "the select list"
	case clauseWhere:
		return "WHERE"
	case clauseOn:
		return "ON"
	case clauseGroupBy:
		return "GROUP BY"
	case clauseHaving:
		return "HAVING"
	case clauseOrderBy:
		return "ORDER BY"
	case clauseFetch:
		return "OFFSET/FETCH"
	case clauseValues:
		return "VALUES"
	case clauseSet:
		return "SET"
	case clauseMerge:
		return "MERGE"
	}
	return "?"
}

type exprState struct {
	scope  *scope
	clause clause
	// aggregate is the name of the aggregate whose operand is being bound.
	aggregate string
	// subqueries collects the subqueries met, for the owning result set.
	subqueries *[]*tree.Subquery
}

func (st *exprState) with(c clause) *exprState {
	n := *st
	n.clause = c
	return &n
}

func isUntyped(v tree.ValueNode) bool {
	switch x := v.(type) {
	case *tree.Parameter:
		return !x.Resolved()
	case *tree.Constant:
		return x.IsUntypedNull()
	}
	return false
}

// assignUntyped gives an untyped parameter or NULL the type t.
func assignUntyped(v tree.ValueNode, t *sql.DataTypeDescriptor) bool {
	switch x := v.(type) {
	case *tree.Parameter:
		if !x.Resolved() {
			x.SetType(t)
			return true
		}
	case *tree.Constant:
		if x.IsUntypedNull() {
			x.SetType(t.WithNullable(true))
			return true
		}
	}
	return false
}

// untypedError is the error for an operand whose type cannot be inferred.
func untypedError(v tree.ValueNode, what string) error {
	if p, ok := v.(*tree.Parameter); ok {
		return sql.ErrParameterTypeUnknown.New(p.Number)
	}
	return sql.ErrUntypedNull.New("the operand of " + what)
}

// coerce types an untyped operand as t, or casts a typed operand of a
// different type id to t.
func (b *Binder) coerce(v tree.ValueNode, t *sql.DataTypeDescriptor, what string) (tree.ValueNode, error) {
	if assignUntyped(v, t) {
		return v, nil
	}
	vt := v.Type()
	if vt.TypeID == t.TypeID && vt.UserTypeName == t.UserTypeName {
		return v, nil
	}
	if !sql.GetTypeCompiler(t.TypeID).Storable(vt.TypeID) && !sql.GetTypeCompiler(vt.TypeID).Convertible(t.TypeID) {
		return nil, sql.ErrTypeMismatch.New(what, vt, t)
	}
	return b.f.Cast(v, t.WithNullable(vt.Nullable), true), nil
}

func literalType(v sql.Value) *sql.DataTypeDescriptor {
	if v.IsNull() {
		return nil
	}
	switch v.Type {
	case sql.CharID, sql.VarcharID:
		s, _ := v.V.(string)
		switch {
		case len(s) > sql.MaxVarcharWidth:
			return sql.NewStringDescriptor(sql.LongVarcharID, sql.MaxLongVarcharWidth, false)
		case len(s) > sql.MaxCharWidth:
			return sql.NewStringDescriptor(sql.VarcharID, len(s), false)
		}
		return sql.NewStringDescriptor(sql.CharID, len(s), false)
	case sql.BitID, sql.VarbitID:
		bs, _ := v.V.([]byte)
		if len(bs) > sql.MaxCharWidth {
			return sql.NewStringDescriptor(sql.VarbitID, len(bs), false)
		}
		return sql.NewStringDescriptor(sql.BitID, len(bs), false)
	case sql.DecimalID, sql.NumericID:
		f, _ := v.V.(float64)
		digits := strings.TrimLeft(strconv.FormatFloat(f, 'f', -1, 64), "-")
		scale := 0
		if i := strings.IndexByte(digits, '.'); i >= 0 {
			scale = len(digits) - i - 1
			digits = digits[:i] + digits[i+1:]
		}
		return sql.NewDecimalDescriptor(len(strings.TrimLeft(digits, "0"))+scale, scale, false)
	}
	return sql.NewDescriptor(v.Type, false)
}

func (b *Binder) bindExprs(es []ast.Expression, st *exprState) ([]tree.ValueNode, error) {
	out := make([]tree.ValueNode, len(es))
	for i, e := range es {
		v, err := b.bindExpr(e, st)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// bindExpr binds e bottom-up and returns its replacement.
func (b *Binder) bindExpr(e ast.Expression, st *exprState) (tree.ValueNode, error) {
	switch v := e.(type) {
	case nil:
		return nil, nil
	case *ast.Literal:
		return b.f.Constant(v.Value, literalType(v.Value)), nil
	case *ast.Parameter:
		return b.f.Parameter(), nil
	case *ast.Field:
		return b.bindColumn(v, st)
	case *ast.Star:
		return nil, sql.ErrUnsupported.New("* outside the select list")
	case *ast.EqualOper:
		return b.bindComparison(tree.RelEQ, v.L, v.R, st)
	case *ast.NotEqualOper:
		return b.bindComparison(tree.RelNE, v.L, v.R, st)
	case *ast.LessThanOper:
		return b.bindComparison(tree.RelLT, v.L, v.R, st)
	case *ast.LessThanOrEqualOper:
		return b.bindComparison(tree.RelLE, v.L, v.R, st)
	case *ast.GreaterThanOper:
		return b.bindComparison(tree.RelGT, v.L, v.R, st)
	case *ast.GreaterThanOrEqualOper:
		return b.bindComparison(tree.RelGE, v.L, v.R, st)
	case *ast.AddOper:
		return b.bindArithmetic(sql.OpPlus, v.L, v.R, st)
	case *ast.SubtractOper:
		return b.bindArithmetic(sql.OpMinus, v.L, v.R, st)
	case *ast.MultiplyOper:
		return b.bindArithmetic(sql.OpTimes, v.L, v.R, st)
	case *ast.DivideOper:
		return b.bindArithmetic(sql.OpDivide, v.L, v.R, st)
	case *ast.ModuloOper:
		return b.bindArithmetic(sql.OpMod, v.L, v.R, st)
	case *ast.NegateOper:
		return b.bindNegate(v, st)
	case *ast.ConcatOper:
		return b.bindConcat(v, st)
	case *ast.LikeOper:
		return b.bindLike(v, st)
	case *ast.AndOper:
		l, r, err := b.bindBooleanPair(v.L, v.R, "AND", st)
		if err != nil {
			return nil, err
		}
		return b.f.And(l, r), nil
	case *ast.OrOper:
		l, r, err := b.bindBooleanPair(v.L, v.R, "OR", st)
		if err != nil {
			return nil, err
		}
		return b.f.Or(l, r), nil
	case *ast.NotOper:
		operand, err := b.bindExpr(v.L, st)
		if err != nil {
			return nil, err
		}
		if operand, err = requireBoolean(operand, "NOT"); err != nil {
			return nil, err
		}
		return b.f.Not(operand), nil
	case *ast.IsNullOper:
		return b.bindIsNull(v, st)
	case *ast.CastExpr:
		return b.bindCast(v, st)
	case *ast.CaseExpr:
		return b.bindCase(v, st)
	case *ast.CoalesceExpr:
		return b.bindCoalesce(v, st)
	case *ast.NullIfExpr:
		return b.bindNullIf(v, st)
	case *ast.BetweenExpr:
		return b.bindBetween(v, st)
	case *ast.InListExpr:
		return b.bindInList(v, st)
	case *ast.InSubqueryExpr:
		return b.bindInSubquery(v, st)
	case *ast.ExistsExpr:
		t := tree.SubqueryExists
		if v.Not {
			t = tree.SubqueryNotExists
		}
		return b.bindSubquery(t, v.Query, nil, st)
	case *ast.SubqueryExpr:
		return b.bindSubquery(tree.SubqueryScalar, v.Query, nil, st)
	case *ast.Function:
		if ast.IsAggregateName(strings.ToUpper(v.FuncName)) {
			return b.bindAggregate(v, st)
		}
		return b.bindRoutine(v, st)
	case *ast.WindowFunction:
		return b.bindWindow(v, st)
	}
	return nil, sql.ErrUnsupported.New(fmt.Sprintf("expression %T", e))
}

func (b *Binder) bindColumn(f *ast.Field, st *exprState) (tree.ValueNode, error) {
	m, err := st.scope.resolve(f.TableName, f.ColumnName)
	if err != nil {
		return nil, err
	}
	m.column.Referenced = true
	ref := b.f.BoundColumnReference(m.column, m.entry.name, m.entry.table.TableNumber(), m.level)
	if m.entry.nullable && ref.Type() != nil {
		ref.SetType(ref.Type().WithNullable(true))
	}
	return ref, nil
}

// unify infers an untyped side of a binary operator from the other side.
func unify(what string, left, right tree.ValueNode) error {
	lu, ru := isUntyped(left), isUntyped(right)
	switch {
	case lu && ru:
		return untypedError(left, what)
	case lu:
		assignUntyped(left, right.Type())
	case ru:
		assignUntyped(right, left.Type())
	}
	return nil
}

func (b *Binder) bindComparison(op tree.RelOp, l, r ast.Expression, st *exprState) (tree.ValueNode, error) {
	left, err := b.bindExpr(l, st)
	if err != nil {
		return nil, err
	}
	right, err := b.bindExpr(r, st)
	if err != nil {
		return nil, err
	}
	return b.comparison(op, left, right)
}

func (b *Binder) comparison(op tree.RelOp, left, right tree.ValueNode) (tree.ValueNode, error) {
	if err := unify(op.String(), left, right); err != nil {
		return nil, err
	}
	lt, rt := left.Type(), right.Type()
	if !lt.Comparable(rt) {
		return nil, sql.ErrNotComparable.New(lt, rt)
	}
	if op != tree.RelEQ && op != tree.RelNE && !lt.TypeID.Orderable() {
		return nil, sql.ErrNotOrderable.New(op.String(), lt)
	}
	// a string compared with a datetime is converted to the datetime type
	switch {
	case lt.TypeID.IsTemporal() && rt.TypeID.IsString():
		right = b.f.Cast(right, sql.NewDescriptor(lt.TypeID, rt.Nullable), true)
	case rt.TypeID.IsTemporal() && lt.TypeID.IsString():
		left = b.f.Cast(left, sql.NewDescriptor(rt.TypeID, lt.Nullable), true)
	}
	n := b.f.BinaryRelational(op, left, right)
	n.SetType(sql.NewDescriptor(sql.BooleanID, lt.Nullable || rt.Nullable))
	return n, nil
}

func (b *Binder) bindArithmetic(op sql.ArithmeticOp, l, r ast.Expression, st *exprState) (tree.ValueNode, error) {
	left, err := b.bindExpr(l, st)
	if err != nil {
		return nil, err
	}
	right, err := b.bindExpr(r, st)
	if err != nil {
		return nil, err
	}
	if err := unify(op.String(), left, right); err != nil {
		return nil, err
	}
	result, err := sql.GetTypeCompiler(left.Type().TypeID).ResolveArithmetic(op, left.Type(), right.Type())
	if err != nil {
		return nil, err
	}
	n := b.f.BinaryArithmetic(op, left, right)
	n.SetType(result)
	return n, nil
}

func (b *Binder) bindNegate(v *ast.NegateOper, st *exprState) (tree.ValueNode, error) {
	operand, err := b.bindExpr(v.L, st)
	if err != nil {
		return nil, err
	}
	if isUntyped(operand) {
		return nil, untypedError(operand, "unary -")
	}
	if !operand.Type().TypeID.IsNumeric() {
		return nil, sql.ErrTypeMismatch.New("unary -", operand.Type(), "NUMERIC")
	}
	n := b.f.UnaryMinus(operand)
	n.SetType(operand.Type())
	return n, nil
}

func (b *Binder) bindConcat(v *ast.ConcatOper, st *exprState) (tree.ValueNode, error) {
	left, err := b.bindExpr(v.L, st)
	if err != nil {
		return nil, err
	}
	right, err := b.bindExpr(v.R, st)
	if err != nil {
		return nil, err
	}
	lu, ru := isUntyped(left), isUntyped(right)
	if lu && ru {
		return nil, untypedError(left, "||")
	}
	if left, err = b.concatOperand(left, right); err != nil {
		return nil, err
	}
	if right, err = b.concatOperand(right, left); err != nil {
		return nil, err
	}
	result, err := sql.ResolveConcatenation(left.Type(), right.Type())
	if err != nil {
		return nil, err
	}
	n := b.f.Concatenation(left, right)
	n.SetType(result)
	return n, nil
}

// concatOperand types an untyped operand after the other side and casts
// operands that are neither character nor binary to VARCHAR.
func (b *Binder) concatOperand(v, other tree.ValueNode) (tree.ValueNode, error) {
	if isUntyped(v) {
		id := sql.VarcharID
		if other.Type() != nil && other.Type().TypeID.IsBinary() {
			id = sql.VarbitID
		}
		assignUntyped(v, sql.NewStringDescriptor(id, sql.MaxVarcharWidth, true))
		return v, nil
	}
	t := v.Type()
	if t.TypeID.IsString() || t.TypeID.IsBinary() {
		return v, nil
	}
	if t.TypeID == sql.UserID {
		return nil, sql.ErrTypeMismatch.New("||", t, other.Type())
	}
	width := sql.GetTypeCompiler(t.TypeID).CastToCharWidth(t)
	return b.f.Cast(v, sql.NewStringDescriptor(sql.VarcharID, width, t.Nullable), true), nil
}

func (b *Binder) bindLike(v *ast.LikeOper, st *exprState) (tree.ValueNode, error) {
	var operands [3]tree.ValueNode
	nullable := false
	for i, e := range []ast.Expression{v.L, v.R, v.Escape} {
		if e == nil {
			continue
		}
		o, err := b.bindExpr(e, st)
		if err != nil {
			return nil, err
		}
		assignUntyped(o, sql.NewStringDescriptor(sql.VarcharID, sql.MaxVarcharWidth, true))
		if !o.Type().TypeID.IsString() {
			return nil, sql.ErrTypeMismatch.New("LIKE", o.Type(), sql.VarcharID)
		}
		nullable = nullable || o.Type().Nullable
		operands[i] = o
	}
	n := b.f.Like(operands[0], operands[1], operands[2])
	n.SetType(sql.NewDescriptor(sql.BooleanID, nullable))
	return n, nil
}

func requireBoolean(v tree.ValueNode, what string) (tree.ValueNode, error) {
	assignUntyped(v, sql.NewDescriptor(sql.BooleanID, true))
	if v.Type().TypeID != sql.BooleanID {
		return nil, sql.ErrNotBoolean.New(what, v.Type())
	}
	return v, nil
}

func (b *Binder) bindBooleanPair(l, r ast.Expression, what string, st *exprState) (tree.ValueNode, tree.ValueNode, error) {
	left, err := b.bindExpr(l, st)
	if err != nil {
		return nil, nil, err
	}
	if left, err = requireBoolean(left, what); err != nil {
		return nil, nil, err
	}
	right, err := b.bindExpr(r, st)
	if err != nil {
		return nil, nil, err
	}
	if right, err = requireBoolean(right, what); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (b *Binder) bindIsNull(v *ast.IsNullOper, st *exprState) (tree.ValueNode, error) {
	operand, err := b.bindExpr(v.L, st)
	if err != nil {
		return nil, err
	}
	if p, ok := operand.(*tree.Parameter); ok && !p.Resolved() {
		return nil, sql.ErrParameterNotAllowed.New(p.Number, "IS NULL")
	}
	if isUntyped(operand) {
		return nil, sql.ErrUntypedNull.New("the operand of IS NULL")
	}
	return b.f.IsNull(operand, v.Not), nil
}

func (b *Binder) bindCast(v *ast.CastExpr, st *exprState) (tree.ValueNode, error) {
	operand, err := b.bindExpr(v.Expr, st)
	if err != nil {
		return nil, err
	}
	target, err := typeFromSpec(v.Type, true)
	if err != nil {
		return nil, err
	}
	if assignUntyped(operand, target) {
		return operand, nil
	}
	ot := operand.Type()
	if !sql.GetTypeCompiler(ot.TypeID).Convertible(target.TypeID) {
		return nil, sql.ErrInvalidCast.New(ot, target)
	}
	return b.f.Cast(operand, target.WithNullable(ot.Nullable), false), nil
}

// branchType computes the dominant type of the typed values; untyped ones
// do not take part.
func branchType(what string, values []tree.ValueNode) (*sql.DataTypeDescriptor, error) {
	var types []*sql.DataTypeDescriptor
	var first tree.ValueNode
	for _, v := range values {
		if v == nil {
			continue
		}
		if isUntyped(v) {
			if first == nil {
				first = v
			}
			continue
		}
		types = append(types, v.Type())
	}
	if len(types) == 0 {
		if first == nil {
			return nil, sql.ErrUntypedNull.New(what)
		}
		return nil, untypedError(first, what)
	}
	return sql.DominantType(types)
}

// toBranchType brings one branch of a CASE or COALESCE to the dominant type.
func (b *Binder) toBranchType(v tree.ValueNode, t *sql.DataTypeDescriptor, what string) (tree.ValueNode, error) {
	if c, ok := v.(*tree.Constant); ok && c.IsUntypedNull() {
		c.SetType(t.WithNullable(true))
		return b.f.Cast(c, t.WithNullable(true), true), nil
	}
	return b.coerce(v, t, what)
}

func (b *Binder) bindCase(v *ast.CaseExpr, st *exprState) (tree.ValueNode, error) {
	var operand tree.ValueNode
	if v.Operand != nil {
		var err error
		if operand, err = b.bindExpr(v.Operand, st); err != nil {
			return nil, err
		}
	}
	whens := make([]*tree.WhenClause, len(v.Whens))
	results := make([]tree.ValueNode, 0, len(v.Whens)+1)
	for i, w := range v.Whens {
		var cond tree.ValueNode
		var err error
		if operand != nil {
			// CASE x WHEN v is CASE WHEN x = v
			value, err := b.bindExpr(w.Cond, st)
			if err != nil {
				return nil, err
			}
			left := operand
			if i > 0 {
				clone, ok := tree.CloneValue(operand)
				if !ok {
					return nil, sql.ErrUnsupported.New("a subquery as the operand of a simple CASE")
				}
				left = clone
			}
			if cond, err = b.comparison(tree.RelEQ, left, value); err != nil {
				return nil, err
			}
		} else {
			if cond, err = b.bindExpr(w.Cond, st); err != nil {
				return nil, err
			}
			if cond, err = requireBoolean(cond, "WHEN"); err != nil {
				return nil, err
			}
		}
		then, err := b.bindExpr(w.Result, st)
		if err != nil {
			return nil, err
		}
		whens[i] = &tree.WhenClause{Cond: cond, Then: then}
		results = append(results, then)
	}
	var els tree.ValueNode
	if v.Else != nil {
		var err error
		if els, err = b.bindExpr(v.Else, st); err != nil {
			return nil, err
		}
		results = append(results, els)
	}
	return b.conditional(whens, els, results)
}

func (b *Binder) conditional(whens []*tree.WhenClause, els tree.ValueNode, results []tree.ValueNode) (tree.ValueNode, error) {
	t, err := branchType("a CASE result", results)
	if err != nil {
		return nil, err
	}
	nullable := els == nil
	for _, w := range whens {
		if w.Then, err = b.toBranchType(w.Then, t, "CASE"); err != nil {
			return nil, err
		}
		nullable = nullable || w.Then.Type().Nullable
	}
	if els != nil {
		if els, err = b.toBranchType(els, t, "CASE"); err != nil {
			return nil, err
		}
		nullable = nullable || els.Type().Nullable
	}
	n := b.f.Conditional(whens, els)
	n.SetType(t.WithNullable(nullable))
	return n, nil
}

func (b *Binder) bindCoalesce(v *ast.CoalesceExpr, st *exprState) (tree.ValueNode, error) {
	if len(v.Args) < 2 {
		return nil, sql.ErrWrongArgumentCount.New("COALESCE", 2, len(v.Args))
	}
	args, err := b.bindExprs(v.Args, st)
	if err != nil {
		return nil, err
	}
	t, err := branchType("a COALESCE argument", args)
	if err != nil {
		return nil, err
	}
	nullable := true
	for i, a := range args {
		if args[i], err = b.toBranchType(a, t, "COALESCE"); err != nil {
			return nil, err
		}
		nullable = nullable && args[i].Type().Nullable
	}
	n := b.f.Coalesce(args)
	n.SetType(t.WithNullable(nullable))
	return n, nil
}

// bindNullIf rewrites NULLIF(a, b) as CASE WHEN a = b THEN NULL ELSE a END.
func (b *Binder) bindNullIf(v *ast.NullIfExpr, st *exprState) (tree.ValueNode, error) {
	left, err := b.bindExpr(v.L, st)
	if err != nil {
		return nil, err
	}
	right, err := b.bindExpr(v.R, st)
	if err != nil {
		return nil, err
	}
	cond, err := b.comparison(tree.RelEQ, left, right)
	if err != nil {
		return nil, err
	}
	els, ok := tree.CloneValue(left)
	if !ok {
		return nil, sql.ErrUnsupported.New("a subquery as the first argument of NULLIF")
	}
	null := b.f.Constant(sql.NewNull(left.Type().TypeID), nil)
	whens := []*tree.WhenClause{{Cond: cond, Then: null}}
	return b.conditional(whens, els, []tree.ValueNode{null, els})
}

// bindBetween rewrites x BETWEEN lo AND hi as x >= lo AND x <= hi.
func (b *Binder) bindBetween(v *ast.BetweenExpr, st *exprState) (tree.ValueNode, error) {
	operand, err := b.bindExpr(v.Expr, st)
	if err != nil {
		return nil, err
	}
	low, err := b.bindExpr(v.Low, st)
	if err != nil {
		return nil, err
	}
	high, err := b.bindExpr(v.High, st)
	if err != nil {
		return nil, err
	}
	if isUntyped(operand) {
		t, err := branchType("BETWEEN", []tree.ValueNode{low, high})
		if err != nil {
			return nil, untypedError(operand, "BETWEEN")
		}
		assignUntyped(operand, t)
	}
	ge, err := b.comparison(tree.RelGE, operand, low)
	if err != nil {
		return nil, err
	}
	clone, ok := tree.CloneValue(operand)
	if !ok {
		return nil, sql.ErrUnsupported.New("a subquery as the operand of BETWEEN")
	}
	le, err := b.comparison(tree.RelLE, clone, high)
	if err != nil {
		return nil, err
	}
	var out tree.ValueNode = b.f.And(ge, le)
	if v.Not {
		out = b.f.Not(out)
	}
	return out, nil
}

// bindInList rewrites x IN (a, b) as x = a OR x = b.
func (b *Binder) bindInList(v *ast.InListExpr, st *exprState) (tree.ValueNode, error) {
	if len(v.List) == 0 {
		return nil, sql.ErrWrongArgumentCount.New("IN", 1, 0)
	}
	operand, err := b.bindExpr(v.Expr, st)
	if err != nil {
		return nil, err
	}
	items, err := b.bindExprs(v.List, st)
	if err != nil {
		return nil, err
	}
	if isUntyped(operand) {
		t, err := branchType("IN", items)
		if err != nil {
			return nil, untypedError(operand, "IN")
		}
		assignUntyped(operand, t)
	}
	var out tree.ValueNode
	for i, item := range items {
		left := operand
		if i > 0 {
			clone, ok := tree.CloneValue(operand)
			if !ok {
				return nil, sql.ErrUnsupported.New("a subquery as the operand of IN")
			}
			left = clone
		}
		eq, err := b.comparison(tree.RelEQ, left, item)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = eq
		} else {
			out = b.f.Or(out, eq)
		}
	}
	if v.Not {
		out = b.f.Not(out)
	}
	return out, nil
}

func (b *Binder) bindInSubquery(v *ast.InSubqueryExpr, st *exprState) (tree.ValueNode, error) {
	operand, err := b.bindExpr(v.Expr, st)
	if err != nil {
		return nil, err
	}
	t := tree.SubqueryIn
	if v.Not {
		t = tree.SubqueryNotIn
	}
	return b.bindSubquery(t, v.Query, operand, st)
}

func (b *Binder) bindSubquery(t tree.SubqueryType, q ast.QueryStmt, left tree.ValueNode, st *exprState) (tree.ValueNode, error) {
	if st.scope == nil {
		return nil, sql.ErrUnsupported.New("a subquery in " + st.clause.String())
	}
	level := st.scope.level + 1
	query, err := b.bindQuery(q, st.scope, level)
	if err != nil {
		return nil, err
	}
	cols := query.ResultColumns()
	sq := b.f.Subquery(t, query, left)
	sq.Number = b.ctx.NextSubqueryNumber()
	switch t {
	case tree.SubqueryScalar, tree.SubqueryIn, tree.SubqueryNotIn:
		if len(cols) != 1 {
			return nil, sql.ErrColumnCountMismatch.New(t.String()+" subquery", 1, len(cols))
		}
		inner := cols[0].Type()
		if inner == nil {
			return nil, untypedError(cols[0].Expression, "a subquery column")
		}
		if t == tree.SubqueryScalar {
			sq.SetType(inner.WithNullable(true))
			break
		}
		assignUntyped(left, inner)
		if !left.Type().Comparable(inner) {
			return nil, sql.ErrNotComparable.New(left.Type(), inner)
		}
		sq.SetType(sql.NewDescriptor(sql.BooleanID, left.Type().Nullable || inner.Nullable))
	default:
		sq.SetType(sql.NewDescriptor(sql.BooleanID, false))
	}
	for _, ref := range tree.ColumnReferences(query) {
		if ref.SourceLevel < level {
			sq.Correlated = true
			break
		}
	}
	if st.subqueries != nil {
		*st.subqueries = append(*st.subqueries, sq)
	}
	return sq, nil
}

func (b *Binder) bindAggregate(fn *ast.Function, st *exprState) (tree.ValueNode, error) {
	name := strings.ToUpper(fn.FuncName)
	var block *tree.Select
	if st.scope != nil {
		block = st.scope.block
	}
	switch st.clause {
	case clauseSelect, clauseHaving, clauseOrderBy:
	default:
		return nil, sql.ErrAggregateNotAllowed.New(st.clause)
	}
	if block == nil {
		return nil, sql.ErrAggregateNotAllowed.New(st.clause)
	}
	if st.aggregate != "" {
		return nil, sql.ErrNestedAggregate.New(st.aggregate)
	}

	var agg *tree.Aggregate
	if fn.Star {
		if name != "COUNT" {
			return nil, sql.ErrUnsupported.New(name + "(*)")
		}
		agg = b.f.Aggregate(tree.AggCountStar, false, nil)
		agg.SetType(sql.NewDescriptor(sql.IntegerID, false))
	} else {
		if len(fn.Args) != 1 {
			return nil, sql.ErrWrongArgumentCount.New(name, 1, len(fn.Args))
		}
		inner := *st
		inner.aggregate = name
		operand, err := b.bindExpr(fn.Args[0], &inner)
		if err != nil {
			return nil, err
		}
		if p, ok := operand.(*tree.Parameter); ok && !p.Resolved() {
			return nil, sql.ErrParameterNotAllowed.New(p.Number, name)
		}
		if isUntyped(operand) {
			return nil, sql.ErrUntypedNull.New("the operand of " + name)
		}
		t := operand.Type()
		if fn.Distinct && !t.TypeID.Orderable() {
			return nil, sql.ErrNotOrderable.New(name+" DISTINCT", t)
		}
		switch name {
		case "COUNT":
			if !fn.Distinct && !t.Nullable {
				// nothing to skip: count rows
				agg = b.f.Aggregate(tree.AggCountStar, false, nil)
			} else {
				agg = b.f.Aggregate(tree.AggCount, fn.Distinct, operand)
			}
			agg.SetType(sql.NewDescriptor(sql.IntegerID, false))
		case "SUM", "AVG":
			if !t.TypeID.IsNumeric() {
				return nil, sql.ErrTypeMismatch.New(name, t, "NUMERIC")
			}
			fnKind := tree.AggSum
			if name == "AVG" {
				fnKind = tree.AggAvg
			}
			agg = b.f.Aggregate(fnKind, fn.Distinct, operand)
			rt := t.WithNullable(true)
			if rt.TypeID == sql.SmallintID {
				rt = sql.NewDescriptor(sql.IntegerID, true)
			}
			agg.SetType(rt)
		case "MIN", "MAX":
			if !t.TypeID.Orderable() {
				return nil, sql.ErrNotOrderable.New(name, t)
			}
			fnKind := tree.AggMin
			if name == "MAX" {
				fnKind = tree.AggMax
			}
			agg = b.f.Aggregate(fnKind, fn.Distinct, operand)
			agg.SetType(t.WithNullable(true))
		}
	}
	block.Aggregates = append(block.Aggregates, agg)
	return agg.ReplaceWithColumn(&block.AggregateColumns, block.Number), nil
}

func (b *Binder) bindWindow(w *ast.WindowFunction, st *exprState) (tree.ValueNode, error) {
	name := strings.ToUpper(w.FuncName)
	if name != "ROW_NUMBER" {
		return nil, sql.ErrUnsupported.New("window function " + name)
	}
	if len(w.Order) > 0 {
		return nil, sql.ErrUnsupported.New("ORDER BY in a window specification")
	}
	if st.clause != clauseSelect || st.scope == nil || st.scope.block == nil {
		return nil, sql.ErrUnsupported.New(name + " in " + st.clause.String())
	}
	block := st.scope.block
	fn := b.f.WindowFunction(name)
	fn.SetType(sql.NewDescriptor(sql.BigintID, false))
	block.WindowFunctions = append(block.WindowFunctions, fn)
	return fn.ReplaceWithColumn(&block.WindowColumns, block.Number), nil
}

func (b *Binder) bindRoutine(fn *ast.Function, st *exprState) (tree.ValueNode, error) {
	schema, name := splitName(fn.FuncName)
	routine, err := b.ctx.Catalog.ResolveRoutine(schema, name)
	if err != nil {
		return nil, err
	}
	if len(fn.Args) != len(routine.Params) {
		return nil, sql.ErrWrongArgumentCount.New(routine.QualifiedName(), len(routine.Params), len(fn.Args))
	}
	args, err := b.bindExprs(fn.Args, st)
	if err != nil {
		return nil, err
	}
	for i, a := range args {
		if args[i], err = b.coerce(a, routine.Params[i], routine.Name); err != nil {
			return nil, err
		}
	}
	call := b.f.RoutineCall(routine.Name, args)
	call.Routine = routine
	call.SetType(routine.Return.WithNullable(true))
	return call, nil
}

// splitName splits an optionally schema-qualified name.
func splitName(name string) (string, string) {
	name = strings.ToUpper(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func typeFromSpec(ts *ast.TypeSpec, nullable bool) (*sql.DataTypeDescriptor, error) {
	if ts == nil {
		return nil, sql.ErrInternal.New("missing type")
	}
	if ts.UserType != "" {
		return sql.NewUserDescriptor(ts.UserType, nullable), nil
	}
	id, ok := sql.LookupTypeID(strings.ToUpper(ts.Name))
	if !ok {
		return nil, sql.ErrObjectNotFound.New("TYPE", strings.ToUpper(ts.Name))
	}
	switch {
	case id.IsDecimal():
		precision, scale := ts.Precision, ts.Scale
		if precision == 0 {
			precision = 5
		}
		if precision > sql.MaxDecimalPrecision || scale > precision {
			return nil, sql.ErrUnsupported.New(id.String() + "(" + strconv.Itoa(precision) + "," + strconv.Itoa(scale) + ")")
		}
		d := sql.NewDecimalDescriptor(precision, scale, nullable)
		d.TypeID = id
		return d, nil
	case id.IsString() || id.IsBinary():
		d := sql.NewDescriptor(id, nullable)
		if ts.Width > 0 {
			if ts.Width > id.MaxWidth() {
				return nil, sql.ErrUnsupported.New(id.String() + "(" + strconv.Itoa(ts.Width) + ")")
			}
			d.MaxWidth = ts.Width
		}
		return d, nil
	}
	return sql.NewDescriptor(id, nullable), nil
}
