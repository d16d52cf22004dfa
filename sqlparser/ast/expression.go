package ast

import (
	"planforge/sql"
)

type Order struct {
	Expr Expression
	Desc bool
}

type FromItem interface {
	fromItem()
}

type FromItemTable struct {
	Name  string
	Alias string
	// Properties are per-table optimizer overrides: index=<name>, joinStrategy=HASH|NESTEDLOOP.
	Properties map[string]string
}

func (f *FromItemTable) fromItem() {}

type JoinType int

const (
	CrossJoin JoinType = iota + 1
	InnerJoin
	LeftJoin
	RightJoin
)

type FromItemJoinTable struct {
	Left      FromItem
	Right     FromItem
	Type      JoinType
	Predicate Expression
}

func (f *FromItemJoinTable) fromItem() {}

// FromItemSubquery is a derived table.
type FromItemSubquery struct {
	Query         QueryStmt
	Alias         string
	ColumnAliases []string
	Properties    map[string]string
}

func (f *FromItemSubquery) fromItem() {}

// 表达式
type ExprAS struct {
	Expr Expression
	As   string
}

type ExprColumn struct {
	ColumnName string
	Expr       Expression
}

type Expression interface {
	expression()
}

type Field struct {
	TableName  string
	ColumnName string
}

func (f *Field) expression() {
}

// Star is `*` or `t.*` in a select list.
type Star struct {
	TableName string
}

func (s *Star) expression() {
}

type Literal struct {
	Value sql.Value
}

func (l *Literal) expression() {
}

// Parameter is a `?` placeholder; parameters are numbered by the compiler in
// the order they are met.
type Parameter struct {
}

func (p *Parameter) expression() {
}

type Function struct {
	FuncName string
	Args     []Expression
	Distinct bool
	// Star marks COUNT(*).
	Star bool
}

func (f *Function) expression() {
}

// WindowFunction is a ranking function with an OVER clause; only an empty
// window specification is accepted.
type WindowFunction struct {
	FuncName string
	Order    []*Order
}

func (w *WindowFunction) expression() {
}

type When struct {
	Cond   Expression
	Result Expression
}

type CaseExpr struct {
	// Operand is set for the simple form CASE x WHEN v THEN ...
	Operand Expression
	Whens   []*When
	Else    Expression
}

func (c *CaseExpr) expression() {
}

type CoalesceExpr struct {
	Args []Expression
}

func (c *CoalesceExpr) expression() {
}

type NullIfExpr struct {
	L Expression
	R Expression
}

func (n *NullIfExpr) expression() {
}

type CastExpr struct {
	Expr Expression
	Type *TypeSpec
}

func (c *CastExpr) expression() {
}

type BetweenExpr struct {
	Expr Expression
	Low  Expression
	High Expression
	Not  bool
}

func (b *BetweenExpr) expression() {
}

type InListExpr struct {
	Expr Expression
	List []Expression
	Not  bool
}

func (i *InListExpr) expression() {
}

type InSubqueryExpr struct {
	Expr  Expression
	Query QueryStmt
	Not   bool
}

func (i *InSubqueryExpr) expression() {
}

type ExistsExpr struct {
	Query QueryStmt
	Not   bool
}

func (e *ExistsExpr) expression() {
}

// SubqueryExpr is a scalar subquery.
type SubqueryExpr struct {
	Query QueryStmt
}

func (s *SubqueryExpr) expression() {
}

type AndOper struct {
	L Expression
	R Expression
}

func (a *AndOper) expression() {
}

type NotOper struct {
	L Expression
}

func (n *NotOper) expression() {
}

type OrOper struct {
	L Expression
	R Expression
}

func (o *OrOper) expression() {
}

type EqualOper struct {
	L Expression
	R Expression
}

func (e *EqualOper) expression() {
}

type NotEqualOper struct {
	L Expression
	R Expression
}

func (n *NotEqualOper) expression() {
}

type GreaterThanOper struct {
	L Expression
	R Expression
}

func (g *GreaterThanOper) expression() {
}

type GreaterThanOrEqualOper struct {
	L Expression
	R Expression
}

func (g *GreaterThanOrEqualOper) expression() {
}

type LessThanOper struct {
	L Expression
	R Expression
}

func (l *LessThanOper) expression() {
}

type LessThanOrEqualOper struct {
	L Expression
	R Expression
}

func (l *LessThanOrEqualOper) expression() {
}

type IsNullOper struct {
	L   Expression
	Not bool
}

func (i *IsNullOper) expression() {
}

type LikeOper struct {
	L      Expression
	R      Expression
	Escape Expression
}

func (l *LikeOper) expression() {
}

type AddOper struct {
	L Expression
	R Expression
}

func (a *AddOper) expression() {
}

type SubtractOper struct {
	L Expression
	R Expression
}

func (s *SubtractOper) expression() {
}

type MultiplyOper struct {
	L Expression
	R Expression
}

func (m *MultiplyOper) expression() {
}

type DivideOper struct {
	L Expression
	R Expression
}

func (d *DivideOper) expression() {
}

type ModuloOper struct {
	L Expression
	R Expression
}

func (m *ModuloOper) expression() {
}

type NegateOper struct {
	L Expression
}

func (n *NegateOper) expression() {
}

type ConcatOper struct {
	L Expression
	R Expression
}

func (c *ConcatOper) expression() {
}
