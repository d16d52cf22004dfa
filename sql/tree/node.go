package tree

import (
	"planforge/sql"
)

// Node is the universal tree element.
type Node interface {
	Kind() Kind
	Context() *CompilerContext
	// Children returns the owned children. Non-owning references such as a
	// column's source are never included.
	Children() []Node
	setContext(ctx *CompilerContext)
}

type nodeBase struct {
	ctx *CompilerContext
}

func (b *nodeBase) Context() *CompilerContext { return b.ctx }

func (b *nodeBase) setContext(ctx *CompilerContext) { b.ctx = ctx }

// ValueNode is any node that evaluates to a value.
type ValueNode interface {
	Node
	// Type is nil until the node is bound.
	Type() *sql.DataTypeDescriptor
	SetType(t *sql.DataTypeDescriptor)
}

type valueBase struct {
	nodeBase
	typ *sql.DataTypeDescriptor
}

func (v *valueBase) Type() *sql.DataTypeDescriptor { return v.typ }

func (v *valueBase) SetType(t *sql.DataTypeDescriptor) { v.typ = t }

func valueChildren(vs ...ValueNode) nodeList {
	out := make(nodeList, 0, len(vs))
	for _, v := range vs {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// StatementNode is the root of a compiled statement.
type StatementNode interface {
	Node
	StatementName() string
}
