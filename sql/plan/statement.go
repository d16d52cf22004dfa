package plan

import (
	"fmt"

	"github.com/google/uuid"

	"planforge/sql"
	"planforge/sql/tree"
)

// RowCountColumn names the single column produced by DML plans.
const RowCountColumn = "ROWCOUNT"

// Generate lowers an optimized statement. Every parameter must have been
// typed by the binder; an untyped one here is a compiler bug.
func (b *Builder) Generate(stmt tree.StatementNode, backend Backend) (*Plan, error) {
	if backend == nil {
		return nil, sql.ErrInternal.New("no backend to generate into")
	}
	b.backend, b.pending, b.emitted, b.target, b.cursor = backend, nil, nil, -1, nil
	defer func() { b.backend, b.pending, b.emitted, b.cursor = nil, nil, nil, nil }()

	p := &Plan{ID: uuid.New(), Statement: stmt.StatementName(), backend: backend}
	if ctx := stmt.Context(); ctx != nil {
		for _, param := range ctx.Parameters() {
			if !param.Resolved() {
				return nil, sql.ErrInternal.New(fmt.Sprintf("parameter ?%d reached plan generation untyped", param.Number))
			}
			p.ParamTypes = append(p.ParamTypes, param.Type())
		}
	}

	top := &scope{}
	var err error
	switch t := stmt.(type) {
	case *tree.Cursor:
		err = b.generateCursor(t, p, top)
	case *tree.Insert:
		err = b.generateInsert(t, p, top)
	case *tree.Update:
		err = b.generateUpdate(t, p, top)
	case *tree.Delete:
		err = b.generateDelete(t, p, top)
	case *tree.Merge:
		err = b.generateMerge(t, p, top)
	case *tree.CreateTable:
		err = b.dml(p, &CreateTable{Schema: t.Schema, Name: t.Name, Columns: t.Columns, Indexes: t.Indexes}, nil)
	default:
		err = sql.ErrUnsupported.New("generating " + stmt.StatementName())
	}
	if err != nil {
		return nil, err
	}
	if len(b.pending) > 0 {
		return nil, sql.ErrInternal.New("subquery plan left without an operator")
	}
	p.Emitted = b.emitted
	return p, nil
}

func estimateOf(rs tree.ResultSetNode) tree.CostEstimate {
	switch t := rs.(type) {
	case *tree.Select:
		return t.Estimate
	case *tree.SetOperator:
		return t.Estimate
	case nil:
		return tree.CostEstimate{}
	}
	return tree.CostEstimate{Cost: 0, RowCount: 1, SingleScanRowCount: 1}
}

func (b *Builder) generateCursor(c *tree.Cursor, p *Plan, top *scope) error {
	if c.UpdateMode == tree.Updatable {
		b.target, b.cursor = c.Target.Number, c
	}
	root, err := b.buildQuery(c.Query, top)
	if err != nil {
		return err
	}
	if c.UpdateMode == tree.Updatable {
		if root, err = b.emit(&CursorResult{
			Name:          c.Name,
			Input:         root,
			Target:        c.Target.Descriptor,
			UpdateColumns: c.UpdateColumns,
		}); err != nil {
			return err
		}
		p.Updatable, p.CursorName, p.UpdateColumns = true, c.Name, c.UpdateColumns
	}
	p.Root, p.Columns, p.Estimate = root, columnsOf(c.Query), estimateOf(c.Query)
	return nil
}

func (b *Builder) dml(p *Plan, op Operator, source tree.ResultSetNode) error {
	root, err := b.emit(op)
	if err != nil {
		return err
	}
	p.Root, p.Estimate = root, estimateOf(source)
	p.Columns = []Column{{Name: RowCountColumn, Type: sql.NewDescriptor(sql.BigintID, false)}}
	return nil
}

func (b *Builder) generateInsert(ins *tree.Insert, p *Plan, top *scope) error {
	src, err := b.buildQuery(ins.Source, top)
	if err != nil {
		return err
	}
	if src.Width() != len(ins.TargetColumns) {
		return sql.ErrInternal.New(fmt.Sprintf("insert source has %d columns for %d targets", src.Width(), len(ins.TargetColumns)))
	}
	return b.dml(p, &Insert{Table: ins.Target, Columns: ins.TargetColumns, Source: src}, ins.Source)
}

func (b *Builder) generateUpdate(u *tree.Update, p *Plan, top *scope) error {
	b.target = u.Target.Number
	src, err := b.buildQuery(u.Source, top)
	if err != nil {
		return err
	}
	n := len(u.Target.Descriptor.Columns)
	op := &Update{Table: u.Target.Descriptor, CurrentOf: u.CurrentOf, Source: src}
	for i, s := range u.Set {
		op.Set = append(op.Set, SetColumn{Column: s.Column, Source: 1 + n + i})
	}
	if src.Width() != 1+n+len(u.Set) {
		return sql.ErrInternal.New(fmt.Sprintf("update source has %d columns", src.Width()))
	}
	p.Positioned, p.CursorName = u.CurrentOf != "", u.CurrentOf
	return b.dml(p, op, u.Source)
}

func (b *Builder) generateDelete(d *tree.Delete, p *Plan, top *scope) error {
	b.target = d.Target.Number
	src, err := b.buildQuery(d.Source, top)
	if err != nil {
		return err
	}
	p.Positioned, p.CursorName = d.CurrentOf != "", d.CurrentOf
	return b.dml(p, &Delete{Table: d.Target.Descriptor, CurrentOf: d.CurrentOf, Source: src}, d.Source)
}

func (b *Builder) generateMerge(m *tree.Merge, p *Plan, top *scope) error {
	b.target = m.Target.Number
	drv, err := b.buildQuery(m.Driving, top)
	if err != nil {
		return err
	}
	op := &Merge{Table: m.Target.Descriptor, Driving: drv}
	for _, c := range m.Clauses {
		mc := MergeClause{Matched: c.Matched, When: -1, Action: c.Action, Columns: c.Columns}
		if c.And != nil {
			if mc.When, err = drivingPosition(c.And); err != nil {
				return err
			}
		}
		for _, v := range c.Values {
			pos, err := drivingPosition(v)
			if err != nil {
				return err
			}
			mc.Values = append(mc.Values, pos)
		}
		op.Clauses = append(op.Clauses, mc)
	}
	return b.dml(p, op, m.Driving)
}

// drivingPosition locates a clause expression among the driving columns.
func drivingPosition(v tree.ValueNode) (int, error) {
	vc, ok := v.(*tree.VirtualColumn)
	if !ok || vc.Source == nil {
		return 0, sql.ErrInternal.New("merge clause expression is not a driving column")
	}
	return vc.Source.Position - 1, nil
}
