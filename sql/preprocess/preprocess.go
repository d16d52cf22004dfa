// Package preprocess rewrites a bound statement into the shape the optimizer
// expects: flattened FROM lists, conjunctive predicate lists with NOT pushed
// to the leaves, and a projection over every table.
package preprocess

import (
	"planforge/logger"
	"planforge/sql"
	"planforge/sql/tree"
)

type Preprocessor struct {
	ctx *tree.CompilerContext
	f   *tree.Factory
}

func New(ctx *tree.CompilerContext) *Preprocessor {
	return &Preprocessor{ctx: ctx, f: ctx.Factory()}
}

// Preprocess rewrites stmt in place. Statements without a query, such as
// CREATE TABLE, are left alone.
func (p *Preprocessor) Preprocess(stmt tree.StatementNode) error {
	root, err := queryOf(stmt)
	if err != nil || root == nil {
		return err
	}
	p.flatten(root)
	p.prepare(root)
	p.project(root)
	logger.Debugf("preprocessed %s, %d predicates numbered", stmt.StatementName(), p.ctx.PredicateCount())
	return nil
}

func queryOf(stmt tree.StatementNode) (tree.ResultSetNode, error) {
	switch t := stmt.(type) {
	case *tree.Cursor:
		return t.Query, nil
	case *tree.Insert:
		return t.Source, nil
	case *tree.Update:
		if t.Source == nil {
			return nil, sql.ErrInternal.New("UPDATE without a source query")
		}
		return t.Source, nil
	case *tree.Delete:
		if t.Source == nil {
			return nil, sql.ErrInternal.New("DELETE without a source query")
		}
		return t.Source, nil
	case *tree.Merge:
		if t.Driving == nil {
			return nil, sql.ErrInternal.New("MERGE without a driving query")
		}
		return t.Driving, nil
	}
	return nil, nil
}

// prepare builds the predicate lists of every block, innermost first.
func (p *Preprocessor) prepare(rs tree.ResultSetNode) {
	switch t := rs.(type) {
	case *tree.Select:
		p.prepareSelect(t)
	case *tree.SetOperator:
		p.prepare(t.Left)
		p.prepare(t.Right)
	case *tree.RowResultSet:
		for _, sq := range t.Subqueries {
			p.prepare(sq.Query)
		}
	}
}

func (p *Preprocessor) prepareSelect(sel *tree.Select) {
	for _, f := range sel.From {
		p.prepareFrom(f, sel.NestingLevel)
	}
	for _, sq := range sel.Subqueries {
		p.prepare(sq.Query)
	}
	if sel.Where != nil {
		sel.WherePredicates = p.predicates(p.eliminateNots(sel.Where, false), sel.NestingLevel)
		sel.Where = nil
	}
	if sel.Having != nil {
		sel.HavingPredicates = p.predicates(p.eliminateNots(sel.Having, false), sel.NestingLevel)
		sel.Having = nil
	}
	p.flattenSubqueries(sel)
	sel.WherePredicates = p.transitiveClosure(sel.WherePredicates, sel.NestingLevel)
}

func (p *Preprocessor) prepareFrom(f tree.FromTable, level int) {
	switch t := f.(type) {
	case *tree.FromSubquery:
		p.prepare(t.Query)
	case *tree.Join:
		p.prepareFrom(t.Left, level)
		p.prepareFrom(t.Right, level)
		if t.On != nil {
			t.OnPredicates = p.predicates(p.eliminateNots(t.On, false), level)
			t.On = nil
		}
	}
}
