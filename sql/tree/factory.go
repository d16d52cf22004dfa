package tree

import (
	"strings"

	"planforge/sql"
	"planforge/sql/store"
)

// Constructor builds a zero node of one kind.
type Constructor func() Node

var builtinConstructors = map[Kind]Constructor{
	KindConstant:         func() Node { return &Constant{} },
	KindColumnReference:  func() Node { return &ColumnReference{TableNumber: -1, ColumnNumber: -1} },
	KindVirtualColumn:    func() Node { return &VirtualColumn{} },
	KindParameter:        func() Node { return &Parameter{} },
	KindBinaryRelational: func() Node { return &BinaryRelational{} },
	KindBinaryArithmetic: func() Node { return &BinaryArithmetic{} },
	KindConcatenation:    func() Node { return &Concatenation{} },
	KindLike:             func() Node { return &Like{} },
	KindAnd:              func() Node { return &And{} },
	KindOr:               func() Node { return &Or{} },
	KindNot:              func() Node { return &Not{} },
	KindIsNull:           func() Node { return &IsNull{} },
	KindUnaryMinus:       func() Node { return &UnaryMinus{} },
	KindCast:             func() Node { return &Cast{} },
	KindConditional:      func() Node { return &Conditional{} },
	KindCoalesce:         func() Node { return &Coalesce{} },
	KindAggregate:        func() Node { return &Aggregate{} },
	KindWindowFunction:   func() Node { return &WindowFunction{} },
	KindRoutineCall:      func() Node { return &RoutineCall{} },
	KindSubquery:         func() Node { return &Subquery{Number: -1} },
	KindResultColumn:     func() Node { return &ResultColumn{} },
	KindFromBaseTable:    func() Node { return &FromBaseTable{fromBase: fromBase{Number: -1}} },
	KindFromSubquery:     func() Node { return &FromSubquery{fromBase: fromBase{Number: -1}} },
	KindJoin:             func() Node { return &Join{Number: -1} },
	KindSelect:           func() Node { return &Select{Number: -1} },
	KindSetOperator:      func() Node { return &SetOperator{Number: -1} },
	KindRowResultSet:     func() Node { return &RowResultSet{Number: -1} },
	KindProjectRestrict:  func() Node { return &ProjectRestrict{} },
	KindCursor:           func() Node { return &Cursor{} },
	KindInsert:           func() Node { return &Insert{} },
	KindUpdate:           func() Node { return &Update{} },
	KindDelete:           func() Node { return &Delete{} },
	KindMerge:            func() Node { return &Merge{} },
	KindMatchingClause:   func() Node { return &MatchingClause{} },
	KindCreateTable:      func() Node { return &CreateTable{} },
}

// Factory creates every node of a compilation through a table keyed by kind.
type Factory struct {
	ctx     *CompilerContext
	table   map[Kind]Constructor
	created map[Kind]int
}

func newFactory(ctx *CompilerContext) *Factory {
	table := make(map[Kind]Constructor, len(builtinConstructors))
	for k, c := range builtinConstructors {
		table[k] = c
	}
	return &Factory{ctx: ctx, table: table, created: map[Kind]int{}}
}

func (f *Factory) reset() {
	f.created = map[Kind]int{}
}

// Override replaces the constructor of kind and returns a function that
// restores the previous one. The replacement must build the same concrete type.
func (f *Factory) Override(kind Kind, c Constructor) (restore func()) {
	prev := f.table[kind]
	f.table[kind] = c
	return func() { f.table[kind] = prev }
}

// Created reports how many nodes of kind were built since the last reset.
func (f *Factory) Created(kind Kind) int { return f.created[kind] }

// New builds a node of kind bound to the factory's context.
func (f *Factory) New(kind Kind) Node {
	c, ok := f.table[kind]
	if !ok {
		panic("tree: no constructor for " + kind.String())
	}
	n := c()
	n.setContext(f.ctx)
	f.created[kind]++
	return n
}

func (f *Factory) Constant(v sql.Value, t *sql.DataTypeDescriptor) *Constant {
	n := f.New(KindConstant).(*Constant)
	n.Value = v
	n.typ = t
	return n
}

// BooleanConstant returns a NOT NULL boolean literal.
func (f *Factory) BooleanConstant(b bool) *Constant {
	return f.Constant(sql.NewBool(b), sql.NewDescriptor(sql.BooleanID, false))
}

func (f *Factory) ColumnReference(table, column string) *ColumnReference {
	n := f.New(KindColumnReference).(*ColumnReference)
	n.TableName = strings.ToUpper(table)
	n.ColumnName = strings.ToUpper(column)
	return n
}

// BoundColumnReference returns a reference already resolved to rc.
func (f *Factory) BoundColumnReference(rc *ResultColumn, tableName string, tableNumber, level int) *ColumnReference {
	n := f.ColumnReference(tableName, rc.Name)
	n.TableNumber = tableNumber
	n.ColumnNumber = rc.Position
	if rc.Column != nil {
		n.ColumnNumber = rc.Column.Position
	}
	n.SourceLevel = level
	n.Source = rc
	n.typ = rc.Type()
	return n
}

func (f *Factory) VirtualColumn(rc *ResultColumn, block int) *VirtualColumn {
	n := f.New(KindVirtualColumn).(*VirtualColumn)
	n.Source = rc
	n.Block = block
	n.typ = rc.Type()
	return n
}

func (f *Factory) Parameter() *Parameter {
	n := f.New(KindParameter).(*Parameter)
	f.ctx.AddParameter(n)
	return n
}

func (f *Factory) BinaryRelational(op RelOp, l, r ValueNode) *BinaryRelational {
	n := f.New(KindBinaryRelational).(*BinaryRelational)
	n.Op, n.Left, n.Right = op, l, r
	return n
}

func (f *Factory) BinaryArithmetic(op sql.ArithmeticOp, l, r ValueNode) *BinaryArithmetic {
	n := f.New(KindBinaryArithmetic).(*BinaryArithmetic)
	n.Op, n.Left, n.Right = op, l, r
	return n
}

func (f *Factory) Concatenation(l, r ValueNode) *Concatenation {
	n := f.New(KindConcatenation).(*Concatenation)
	n.Left, n.Right = l, r
	return n
}

func (f *Factory) Like(operand, pattern, escape ValueNode) *Like {
	n := f.New(KindLike).(*Like)
	n.Operand, n.Pattern, n.Escape = operand, pattern, escape
	return n
}

func (f *Factory) And(l, r ValueNode) *And {
	n := f.New(KindAnd).(*And)
	n.Left, n.Right = l, r
	n.typ = booleanType(l, r)
	return n
}

func (f *Factory) Or(l, r ValueNode) *Or {
	n := f.New(KindOr).(*Or)
	n.Left, n.Right = l, r
	n.typ = booleanType(l, r)
	return n
}

func booleanType(vs ...ValueNode) *sql.DataTypeDescriptor {
	nullable := false
	for _, v := range vs {
		if v == nil || v.Type() == nil {
			return nil
		}
		nullable = nullable || v.Type().Nullable
	}
	return sql.NewDescriptor(sql.BooleanID, nullable)
}

func (f *Factory) Not(operand ValueNode) *Not {
	n := f.New(KindNot).(*Not)
	n.Operand = operand
	n.typ = booleanType(operand)
	return n
}

func (f *Factory) IsNull(operand ValueNode, not bool) *IsNull {
	n := f.New(KindIsNull).(*IsNull)
	n.Operand, n.Not = operand, not
	n.typ = sql.NewDescriptor(sql.BooleanID, false)
	return n
}

func (f *Factory) UnaryMinus(operand ValueNode) *UnaryMinus {
	n := f.New(KindUnaryMinus).(*UnaryMinus)
	n.Operand = operand
	return n
}

func (f *Factory) Cast(operand ValueNode, target *sql.DataTypeDescriptor, implicit bool) *Cast {
	n := f.New(KindCast).(*Cast)
	n.Operand, n.Implicit = operand, implicit
	n.typ = target
	return n
}

func (f *Factory) Conditional(whens []*WhenClause, els ValueNode) *Conditional {
	n := f.New(KindConditional).(*Conditional)
	n.Whens, n.Else = whens, els
	return n
}

func (f *Factory) Coalesce(args []ValueNode) *Coalesce {
	n := f.New(KindCoalesce).(*Coalesce)
	n.Args = args
	return n
}

func (f *Factory) Aggregate(fn AggregateFunc, distinct bool, operand ValueNode) *Aggregate {
	n := f.New(KindAggregate).(*Aggregate)
	n.Func, n.Distinct, n.Operand = fn, distinct, operand
	return n
}

func (f *Factory) WindowFunction(name string) *WindowFunction {
	n := f.New(KindWindowFunction).(*WindowFunction)
	n.Name = strings.ToUpper(name)
	return n
}

func (f *Factory) RoutineCall(name string, args []ValueNode) *RoutineCall {
	n := f.New(KindRoutineCall).(*RoutineCall)
	n.Name, n.Args = strings.ToUpper(name), args
	return n
}

func (f *Factory) Subquery(t SubqueryType, query ResultSetNode, left ValueNode) *Subquery {
	n := f.New(KindSubquery).(*Subquery)
	n.SubType, n.Query, n.LeftOperand = t, query, left
	return n
}

func (f *Factory) ResultColumn(name string, expr ValueNode) *ResultColumn {
	n := f.New(KindResultColumn).(*ResultColumn)
	n.Name = strings.ToUpper(name)
	n.Expression = expr
	return n
}

// BaseColumn returns the result column of a stored table column.
func (f *Factory) BaseColumn(table string, col *store.ColumnDescriptor) *ResultColumn {
	n := f.New(KindResultColumn).(*ResultColumn)
	n.Name = col.Name
	n.TableName = table
	n.Column = col
	n.Position = col.Position
	return n
}

func (f *Factory) FromBaseTable(schema, name, correlation string, props map[string]string) *FromBaseTable {
	n := f.New(KindFromBaseTable).(*FromBaseTable)
	n.Schema = strings.ToUpper(schema)
	n.TableName = strings.ToUpper(name)
	n.Correlation = strings.ToUpper(correlation)
	n.Props = props
	return n
}

func (f *Factory) FromSubquery(query ResultSetNode, correlation string, props map[string]string) *FromSubquery {
	n := f.New(KindFromSubquery).(*FromSubquery)
	n.Query = query
	n.Correlation = strings.ToUpper(correlation)
	n.Props = props
	return n
}

func (f *Factory) Join(t JoinType, left, right FromTable, on ValueNode) *Join {
	n := f.New(KindJoin).(*Join)
	n.Type, n.Left, n.Right, n.On = t, left, right, on
	return n
}

func (f *Factory) Select() *Select {
	return f.New(KindSelect).(*Select)
}

func (f *Factory) SetOperator(op SetOpType, all bool, left, right ResultSetNode) *SetOperator {
	n := f.New(KindSetOperator).(*SetOperator)
	n.Op, n.All, n.Left, n.Right = op, all, left, right
	return n
}

func (f *Factory) RowResultSet(columns ResultColumnList) *RowResultSet {
	n := f.New(KindRowResultSet).(*RowResultSet)
	n.Columns = columns
	return n
}

func (f *Factory) ProjectRestrict(child FromTable, columns ResultColumnList) *ProjectRestrict {
	n := f.New(KindProjectRestrict).(*ProjectRestrict)
	n.Child, n.Columns = child, columns
	return n
}

func (f *Factory) Cursor(name string, query ResultSetNode) *Cursor {
	n := f.New(KindCursor).(*Cursor)
	n.Name = strings.ToUpper(name)
	n.Query = query
	return n
}

func (f *Factory) Insert(target *store.TableDescriptor, source ResultSetNode) *Insert {
	n := f.New(KindInsert).(*Insert)
	n.Target, n.Source = target, source
	return n
}

func (f *Factory) Update(target *FromBaseTable, set []*SetClause, where ValueNode) *Update {
	n := f.New(KindUpdate).(*Update)
	n.Target, n.Set, n.Where = target, set, where
	return n
}

func (f *Factory) Delete(target *FromBaseTable, where ValueNode) *Delete {
	n := f.New(KindDelete).(*Delete)
	n.Target, n.Where = target, where
	return n
}

func (f *Factory) Merge(target *FromBaseTable, source FromTable, on ValueNode, clauses []*MatchingClause) *Merge {
	n := f.New(KindMerge).(*Merge)
	n.Target, n.Source, n.On, n.Clauses = target, source, on, clauses
	return n
}

func (f *Factory) MatchingClause(matched bool, action MergeAction) *MatchingClause {
	n := f.New(KindMatchingClause).(*MatchingClause)
	n.Matched, n.Action = matched, action
	return n
}

func (f *Factory) CreateTable(schema, name string) *CreateTable {
	n := f.New(KindCreateTable).(*CreateTable)
	n.Schema, n.Name = strings.ToUpper(schema), strings.ToUpper(name)
	return n
}
