package tree

import (
	"planforge/sql"
	"planforge/sql/store"
)

type Constant struct {
	valueBase
	Value sql.Value
}

func (c *Constant) Kind() Kind { return KindConstant }

func (c *Constant) Children() []Node { return nil }

// IsUntypedNull reports a NULL literal whose type has not been supplied by context.
func (c *Constant) IsUntypedNull() bool { return c.Value.IsNull() && c.typ == nil }

// RowLocationColumn is the column number of the hidden row location of a base table.
const RowLocationColumn = 0

// ColumnReference names a column of a table in scope. Source is a
// non-owning pointer to the result column it resolved to.
type ColumnReference struct {
	valueBase
	TableName  string
	ColumnName string
	// TableNumber and ColumnNumber identify the source; -1 until bound.
	TableNumber  int
	ColumnNumber int
	// SourceLevel is the nesting level of the block that exposes the table.
	SourceLevel int
	Source      *ResultColumn
}

func (c *ColumnReference) Kind() Kind { return KindColumnReference }

func (c *ColumnReference) Children() []Node { return nil }

func (c *ColumnReference) Bound() bool { return c.TableNumber >= 0 }

func (c *ColumnReference) String() string {
	if c.TableName != "" {
		return c.TableName + "." + c.ColumnName
	}
	return c.ColumnName
}

// VirtualColumn is a generated reference to a result column produced by an
// operator above the tables, such as an aggregate or a window function.
type VirtualColumn struct {
	valueBase
	Source *ResultColumn
	// Block is the result set number of the query block owning the column.
	Block int
}

func (v *VirtualColumn) Kind() Kind { return KindVirtualColumn }

func (v *VirtualColumn) Children() []Node { return nil }

// ParamState records whether a parameter's type is known.
type ParamState int

const (
	ParamUnresolved ParamState = iota
	ParamResolved
)

// Parameter is a ? placeholder. Its type is supplied by the surrounding
// expression; a parameter still unresolved after binding is an error.
type Parameter struct {
	nodeBase
	Number int
	state  ParamState
	typ    sql.DataTypeDescriptor
}

func (p *Parameter) Kind() Kind { return KindParameter }

func (p *Parameter) Children() []Node { return nil }

func (p *Parameter) State() ParamState { return p.state }

func (p *Parameter) Resolved() bool { return p.state == ParamResolved }

func (p *Parameter) Type() *sql.DataTypeDescriptor {
	if p.state != ParamResolved {
		return nil
	}
	t := p.typ
	return &t
}

// SetType resolves the parameter. Parameters are always nullable.
func (p *Parameter) SetType(t *sql.DataTypeDescriptor) {
	if t == nil {
		p.state = ParamUnresolved
		return
	}
	p.typ = *t.WithNullable(true)
	p.state = ParamResolved
}

// RelOp is a comparison operator.
type RelOp int

const (
	RelEQ RelOp = iota + 1
	RelNE
	RelLT
	RelLE
	RelGT
	RelGE
)

func (o RelOp) String() string {
	switch o {
	case RelEQ:
		return "="
	case RelNE:
		return "<>"
	case RelLT:
		return "<"
	case RelLE:
		return "<="
	case RelGT:
		return ">"
	case RelGE:
		return ">="
	}
	return "?"
}

// Negate returns the operator o' with NOT (a o b) == a o' b.
func (o RelOp) Negate() RelOp {
	switch o {
	case RelEQ:
		return RelNE
	case RelNE:
		return RelEQ
	case RelLT:
		return RelGE
	case RelLE:
		return RelGT
	case RelGT:
		return RelLE
	case RelGE:
		return RelLT
	}
	return o
}

// Swap returns the operator o' with a o b == b o' a.
func (o RelOp) Swap() RelOp {
	switch o {
	case RelLT:
		return RelGT
	case RelLE:
		return RelGE
	case RelGT:
		return RelLT
	case RelGE:
		return RelLE
	}
	return o
}

func (o RelOp) StoreOp() store.CompareOp {
	switch o {
	case RelEQ:
		return store.OpEQ
	case RelNE:
		return store.OpNE
	case RelLT:
		return store.OpLT
	case RelLE:
		return store.OpLE
	case RelGT:
		return store.OpGT
	case RelGE:
		return store.OpGE
	}
	return store.OpOther
}

type BinaryRelational struct {
	valueBase
	Op    RelOp
	Left  ValueNode
	Right ValueNode
}

func (b *BinaryRelational) Kind() Kind { return KindBinaryRelational }

func (b *BinaryRelational) Children() []Node { return valueChildren(b.Left, b.Right) }

type BinaryArithmetic struct {
	valueBase
	Op    sql.ArithmeticOp
	Left  ValueNode
	Right ValueNode
}

func (b *BinaryArithmetic) Kind() Kind { return KindBinaryArithmetic }

func (b *BinaryArithmetic) Children() []Node { return valueChildren(b.Left, b.Right) }

type Concatenation struct {
	valueBase
	Left  ValueNode
	Right ValueNode
}

func (c *Concatenation) Kind() Kind { return KindConcatenation }

func (c *Concatenation) Children() []Node { return valueChildren(c.Left, c.Right) }

type Like struct {
	valueBase
	Operand ValueNode
	Pattern ValueNode
	Escape  ValueNode
}

func (l *Like) Kind() Kind { return KindLike }

func (l *Like) Children() []Node { return valueChildren(l.Operand, l.Pattern, l.Escape) }

type And struct {
	valueBase
	Left  ValueNode
	Right ValueNode
}

func (a *And) Kind() Kind { return KindAnd }

func (a *And) Children() []Node { return valueChildren(a.Left, a.Right) }

type Or struct {
	valueBase
	Left  ValueNode
	Right ValueNode
}

func (o *Or) Kind() Kind { return KindOr }

func (o *Or) Children() []Node { return valueChildren(o.Left, o.Right) }

type Not struct {
	valueBase
	Operand ValueNode
}

func (n *Not) Kind() Kind { return KindNot }

func (n *Not) Children() []Node { return valueChildren(n.Operand) }

type IsNull struct {
	valueBase
	Operand ValueNode
	Not     bool
}

func (i *IsNull) Kind() Kind { return KindIsNull }

func (i *IsNull) Children() []Node { return valueChildren(i.Operand) }

type UnaryMinus struct {
	valueBase
	Operand ValueNode
}

func (u *UnaryMinus) Kind() Kind { return KindUnaryMinus }

func (u *UnaryMinus) Children() []Node { return valueChildren(u.Operand) }

type Cast struct {
	valueBase
	Operand ValueNode
	// Implicit marks casts inserted by the binder.
	Implicit bool
}

func (c *Cast) Kind() Kind { return KindCast }

func (c *Cast) Children() []Node { return valueChildren(c.Operand) }

type WhenClause struct {
	Cond ValueNode
	Then ValueNode
}

// Conditional is a searched CASE.
type Conditional struct {
	valueBase
	Whens []*WhenClause
	Else  ValueNode
}

func (c *Conditional) Kind() Kind { return KindConditional }

func (c *Conditional) Children() []Node {
	var vs []ValueNode
	for _, w := range c.Whens {
		vs = append(vs, w.Cond, w.Then)
	}
	return valueChildren(append(vs, c.Else)...)
}

type Coalesce struct {
	valueBase
	Args []ValueNode
}

func (c *Coalesce) Kind() Kind { return KindCoalesce }

func (c *Coalesce) Children() []Node { return valueChildren(c.Args...) }

type AggregateFunc int

const (
	AggCount AggregateFunc = iota + 1
	AggCountStar
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (a AggregateFunc) String() string {
	switch a {
	case AggCount:
		return "COUNT"
	case AggCountStar:
		return "COUNT(*)"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	}
	return "?"
}

type Aggregate struct {
	valueBase
	Func     AggregateFunc
	Distinct bool
	Operand  ValueNode
	// generated is the column that replaced this aggregate in its expression.
	generated *VirtualColumn
}

func (a *Aggregate) Kind() Kind { return KindAggregate }

func (a *Aggregate) Children() []Node { return valueChildren(a.Operand) }

// Generated returns the replacement column, or nil before replacement.
func (a *Aggregate) Generated() *VirtualColumn { return a.generated }

// ReplaceWithColumn returns the generated column that stands in for the
// aggregate, appending its result column to list on the first call only.
func (a *Aggregate) ReplaceWithColumn(list *ResultColumnList, block int) *VirtualColumn {
	if a.generated != nil {
		return a.generated
	}
	rc := a.ctx.Factory().ResultColumn(generatedName(a.Func.String(), len(*list)+1), a)
	rc.Generated = true
	list.Append(rc)
	vc := a.ctx.Factory().VirtualColumn(rc, block)
	a.generated = vc
	return vc
}

// WindowFunction is ROW_NUMBER() OVER ().
type WindowFunction struct {
	valueBase
	Name      string
	generated *VirtualColumn
}

func (w *WindowFunction) Kind() Kind { return KindWindowFunction }

func (w *WindowFunction) Children() []Node { return nil }

func (w *WindowFunction) Generated() *VirtualColumn { return w.generated }

func (w *WindowFunction) ReplaceWithColumn(list *ResultColumnList, block int) *VirtualColumn {
	if w.generated != nil {
		return w.generated
	}
	rc := w.ctx.Factory().ResultColumn(generatedName(w.Name, len(*list)+1), w)
	rc.Generated = true
	list.Append(rc)
	w.generated = w.ctx.Factory().VirtualColumn(rc, block)
	return w.generated
}

type RoutineCall struct {
	valueBase
	Name    string
	Routine *store.RoutineDescriptor
	Args    []ValueNode
}

func (r *RoutineCall) Kind() Kind { return KindRoutineCall }

func (r *RoutineCall) Children() []Node { return valueChildren(r.Args...) }

type SubqueryType int

const (
	SubqueryScalar SubqueryType = iota + 1
	SubqueryExists
	SubqueryNotExists
	SubqueryIn
	SubqueryNotIn
)

func (s SubqueryType) String() string {
	switch s {
	case SubqueryScalar:
		return "SCALAR"
	case SubqueryExists:
		return "EXISTS"
	case SubqueryNotExists:
		return "NOT EXISTS"
	case SubqueryIn:
		return "IN"
	case SubqueryNotIn:
		return "NOT IN"
	}
	return "?"
}

type Subquery struct {
	valueBase
	SubType SubqueryType
	Query   ResultSetNode
	// LeftOperand is the tested expression of an IN subquery.
	LeftOperand ValueNode
	Number      int
	Correlated  bool
}

func (s *Subquery) Kind() Kind { return KindSubquery }

func (s *Subquery) Children() []Node {
	out := valueChildren(s.LeftOperand)
	if s.Query != nil {
		out = append(out, s.Query)
	}
	return out
}
