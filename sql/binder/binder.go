package binder

import (
	"github.com/pkg/errors"

	"planforge/logger"
	"planforge/sql"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
)

// Options carries the compile-time limits checked while binding DDL.
type Options struct {
	MaxColumnsInTable int
	MaxIndexesInTable int
}

func DefaultOptions() Options {
	return Options{MaxColumnsInTable: 1012, MaxIndexesInTable: 32767}
}

// Binder turns a parse tree into a bound tree: names resolved, every value
// typed, polymorphic constructs rewritten into the core node set.
type Binder struct {
	ctx  *tree.CompilerContext
	f    *tree.Factory
	opts Options
}

func New(ctx *tree.CompilerContext, opts Options) *Binder {
	return &Binder{ctx: ctx, f: ctx.Factory(), opts: opts}
}

// Bind binds one statement. The returned tree is fully typed; every
// parameter has a type.
func (b *Binder) Bind(stmt ast.Stmt) (tree.StatementNode, error) {
	node, err := b.BindStatement(stmt)
	if err != nil {
		return nil, err
	}
	if err := b.checkTyped(node); err != nil {
		return nil, err
	}
	logger.Debugf("bound %s with %d parameters", node.StatementName(), len(b.ctx.Parameters()))
	return node, nil
}

func (b *Binder) BindStatement(stmt ast.Stmt) (tree.StatementNode, error) {
	switch v := stmt.(type) {
	case *ast.SelectStmt, *ast.SetOperationStmt, *ast.ValuesStmt:
		query, err := b.bindQuery(v.(ast.QueryStmt), nil, 0)
		if err != nil {
			return nil, err
		}
		return b.f.Cursor("", query), nil
	case *ast.CursorStmt:
		return b.bindCursor(v)
	case *ast.InsertStmt:
		return b.bindInsert(v)
	case *ast.UpdateStmt:
		return b.bindUpdate(v)
	case *ast.DeleteStmt:
		return b.bindDelete(v)
	case *ast.MergeStmt:
		return b.bindMerge(v)
	case *ast.CreateStmt:
		return b.bindCreateTable(v)
	case *ast.ExplainStmt:
		return nil, errors.New("EXPLAIN must be unwrapped by the caller")
	}
	return nil, sql.ErrUnsupported.New(errors.Errorf("statement %T", stmt).Error())
}

// checkTyped fails when a parameter or a NULL literal never received a type.
func (b *Binder) checkTyped(root tree.Node) error {
	for _, p := range b.ctx.Parameters() {
		if !p.Resolved() {
			return sql.ErrParameterTypeUnknown.New(p.Number)
		}
	}
	var err error
	tree.Walk(root, func(n tree.Node) bool {
		if err != nil {
			return false
		}
		if c, ok := n.(*tree.Constant); ok && c.IsUntypedNull() {
			err = sql.ErrUntypedNull.New("a result column")
		}
		return true
	})
	return err
}
