package plan

import (
	"fmt"

	"planforge/sql"
	"planforge/sql/tree"
)

type Options struct {
	// BulkFetchSize is the number of rows a scan hands up per batch.
	BulkFetchSize int
	Isolation     Isolation
}

func DefaultOptions() Options {
	return Options{BulkFetchSize: 16, Isolation: ReadCommitted}
}

// Builder lowers an optimized statement into operators. A Builder is used
// by one compilation at a time.
type Builder struct {
	opts    Options
	backend Backend
	pending []*SubqueryPlan
	emitted []Operator
	// target is the table number scanned with update locks, or -1.
	target int
	cursor *tree.Cursor
}

func NewBuilder(opts Options) *Builder {
	if opts.BulkFetchSize <= 0 {
		opts.BulkFetchSize = 1
	}
	if opts.Isolation == 0 {
		opts.Isolation = ReadCommitted
	}
	return &Builder{opts: opts, target: -1}
}

// emit hands op to the backend and gives it the subquery plans compiled
// since the previous operator.
func (b *Builder) emit(op Operator) (Operator, error) {
	c := op.common()
	c.Subqueries = append(c.Subqueries, b.pending...)
	b.pending = nil
	b.emitted = append(b.emitted, op)
	if err := b.backend.Accept(op); err != nil {
		return nil, err
	}
	return op, nil
}

func (b *Builder) buildQuery(rs tree.ResultSetNode, sc *scope) (Operator, error) {
	switch t := rs.(type) {
	case *tree.Select:
		return b.buildSelect(t, sc)
	case *tree.SetOperator:
		return b.buildSetOperator(t, sc)
	case *tree.RowResultSet:
		row, err := b.compileList(exprsOf(t.Columns), sc)
		if err != nil {
			return nil, err
		}
		return b.emit(&Values{Rows: [][]Expr{row}, width: len(row)})
	case nil:
		return nil, sql.ErrInternal.New("no query to generate")
	}
	return nil, sql.ErrUnsupported.New("generating " + rs.Kind().String())
}

func exprsOf(cols tree.ResultColumnList) []tree.ValueNode {
	out := make([]tree.ValueNode, len(cols))
	for i, rc := range cols {
		out[i] = rc.Expression
	}
	return out
}

func (b *Builder) buildSelect(sel *tree.Select, sc *scope) (Operator, error) {
	op, layout, err := b.buildFrom(sel, sc)
	if err != nil {
		return nil, err
	}
	if sel.HasAggregation() {
		if op, layout, err = b.buildAggregate(sel, op, layout, sc); err != nil {
			return nil, err
		}
	}
	if len(sel.WindowFunctions) > 0 {
		if op, err = b.emit(&RowNumber{Input: op, Count: len(sel.WindowColumns)}); err != nil {
			return nil, err
		}
		layout = concatLayouts(layout, nil)
		for _, rc := range sel.WindowColumns {
			layout = append(layout, virtualSlot(rc))
		}
	}

	rowScope := sc.with(layout, nil)
	proj := &ProjectRestrict{Input: op}
	for _, rc := range sel.Columns {
		e, err := b.compile(rc.Expression, rowScope)
		if err != nil {
			return nil, err
		}
		proj.Projection = append(proj.Projection, e)
		proj.names = append(proj.names, rc.Name)
	}
	if b.cursor != nil && b.cursor.Query == sel {
		e, err := rowScope.resolveColumn(rowLocationOf(b.cursor.Target))
		if err != nil {
			return nil, err
		}
		proj.Projection = append(proj.Projection, e)
		proj.names = append(proj.names, "ROWLOCATION")
	}
	if op, err = b.emit(proj); err != nil {
		return nil, err
	}

	if sel.Distinct {
		if op, err = b.emit(&Distinct{Input: op}); err != nil {
			return nil, err
		}
	}
	if len(sel.OrderBy) > 0 && !sel.SortAvoided {
		if op, err = b.emit(&Sort{Input: op, Keys: sortKeys(sel.OrderBy)}); err != nil {
			return nil, err
		}
	}
	if op, err = b.limit(op, sel.Offset, sel.Fetch, sc); err != nil {
		return nil, err
	}
	if sel.Hidden > 0 {
		if op, err = b.emit(&ProjectRestrict{Input: op, Projection: columnReads(len(sel.Columns) - sel.Hidden)}); err != nil {
			return nil, err
		}
	}
	op.common().estimate(sel.Estimate)
	return op, nil
}

func rowLocationOf(bt *tree.FromBaseTable) *tree.ColumnReference {
	return &tree.ColumnReference{
		TableName:    bt.ExposedName(),
		ColumnName:   "ROWLOCATION",
		TableNumber:  bt.Number,
		ColumnNumber: tree.RowLocationColumn,
		SourceLevel:  bt.NestingLevel,
	}
}

func sortKeys(order []*tree.OrderColumn) []SortKey {
	keys := make([]SortKey, len(order))
	for i, oc := range order {
		keys[i] = SortKey{Column: oc.Position - 1, Desc: oc.Desc}
	}
	return keys
}

func columnReads(n int) []Expr {
	out := make([]Expr, n)
	for i := range out {
		out[i] = readRow(0, i)
	}
	return out
}

func (b *Builder) limit(op Operator, offset, fetch tree.ValueNode, sc *scope) (Operator, error) {
	if offset == nil && fetch == nil {
		return op, nil
	}
	l := &Limit{Input: op}
	var err error
	if offset != nil {
		if l.Offset, err = b.compile(offset, sc.with(nil, nil)); err != nil {
			return nil, err
		}
	}
	if fetch != nil {
		if l.Fetch, err = b.compile(fetch, sc.with(nil, nil)); err != nil {
			return nil, err
		}
	}
	return b.emit(l)
}

// buildFrom lowers the FROM list in the optimizer's join order. A block
// without FROM produces a single empty row.
func (b *Builder) buildFrom(sel *tree.Select, sc *scope) (Operator, Layout, error) {
	if len(sel.From) == 0 {
		op, err := b.emit(&Values{Rows: [][]Expr{{}}})
		if err != nil {
			return nil, nil, err
		}
		op, err = b.restrict(op, sel.WherePredicates, sc.with(nil, nil))
		return op, nil, err
	}
	if len(sel.JoinOrder) != len(sel.From) {
		return nil, nil, sql.ErrInternal.New(fmt.Sprintf("query block %d has no join order", sel.Number))
	}
	var acc Operator
	var accLayout Layout
	for i, idx := range sel.JoinOrder {
		f := sel.From[idx]
		path := tree.PathOf(f)
		if path == nil {
			return nil, nil, sql.ErrInternal.New("no access path for " + entryName(f))
		}
		op, layout, err := b.buildEntry(f, path, sc, accLayout)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			if acc, err = b.restrict(op, path.NonStoreRestrictions, sc.with(layout, nil)); err != nil {
				return nil, nil, err
			}
			accLayout = layout
			continue
		}
		if acc, err = b.join(tree.InnerJoin, acc, accLayout, op, layout, f, path, sc); err != nil {
			return nil, nil, err
		}
		accLayout = concatLayouts(accLayout, layout)
	}
	return acc, accLayout, nil
}

func entryName(f tree.FromTable) string {
	if n := f.ExposedName(); n != "" {
		return n
	}
	return fmt.Sprintf("join %d", f.TableNumber())
}

// restrict filters op when preds is not empty.
func (b *Builder) restrict(op Operator, preds tree.PredicateList, sc *scope) (Operator, error) {
	if len(preds) == 0 {
		return op, nil
	}
	pred, err := b.compileRestriction(preds, sc)
	if err != nil {
		return nil, err
	}
	return b.emit(&ProjectRestrict{Input: op, Restriction: pred})
}

// buildEntry lowers one FROM entry as seen from the join position that
// follows the tables of probe.
func (b *Builder) buildEntry(f tree.FromTable, path *tree.AccessPath, sc *scope, probe Layout) (Operator, Layout, error) {
	cols := f.ResultColumns()
	switch t := tree.Unwrap(f).(type) {
	case *tree.FromBaseTable:
		return b.buildScan(t, cols, path, sc, probe)
	case *tree.FromSubquery:
		// the body sees the enclosing blocks but no sibling of the FROM list
		query, err := b.buildQuery(t.Query, sc.with(nil, nil).nested())
		if err != nil {
			return nil, nil, err
		}
		op, err := b.emit(&DerivedTable{Name: t.Correlation, Query: query})
		if err != nil {
			return nil, nil, err
		}
		op.common().estimate(path.Estimate)
		layout := make(Layout, len(t.Columns))
		for i, rc := range t.Columns {
			layout[i] = tableSlot(t.Number, rc.Position)
		}
		return op, layout, nil
	case *tree.Join:
		return b.buildOuterJoin(t, sc)
	}
	return nil, nil, sql.ErrUnsupported.New("generating FROM entry " + f.Kind().String())
}

func (b *Builder) buildScan(bt *tree.FromBaseTable, cols tree.ResultColumnList, path *tree.AccessPath, sc *scope, probe Layout) (Operator, Layout, error) {
	scan := &TableScan{
		Table:       bt.Descriptor,
		Index:       path.Index,
		RowLocation: bt.NeedsRowLocation,
		Covering:    path.Covering,
		Lock:        LockShared,
		Isolation:   b.opts.Isolation,
		BulkFetch:   b.opts.BulkFetchSize,
	}
	if bt.Number == b.target {
		scan.Lock = LockUpdate
	}
	var layout Layout
	if bt.NeedsRowLocation {
		layout = append(layout, tableSlot(bt.Number, tree.RowLocationColumn))
		scan.names = append(scan.names, "ROWLOCATION")
	}
	for _, rc := range cols {
		pos := rc.Position
		if rc.Column != nil {
			pos = rc.Column.Position
		}
		scan.Columns = append(scan.Columns, pos)
		scan.names = append(scan.names, rc.Name)
		layout = append(layout, tableSlot(bt.Number, pos))
	}

	var err error
	keyScope := sc.with(nil, probe)
	if scan.Start, err = b.keyParts(bt, path.StartKeys, keyScope); err != nil {
		return nil, nil, err
	}
	if scan.Stop, err = b.keyParts(bt, path.StopKeys, keyScope); err != nil {
		return nil, nil, err
	}
	rowScope := sc.with(layout, probe)
	if scan.Qualifiers, err = b.compileRestriction(path.StoreRestrictions, rowScope); err != nil {
		return nil, nil, err
	}
	if scan.Requalify, err = b.compileRestriction(path.Requalifications, rowScope); err != nil {
		return nil, nil, err
	}
	op, err := b.emit(scan)
	if err != nil {
		return nil, nil, err
	}
	op.common().estimate(path.Estimate)
	return op, layout, nil
}

func (b *Builder) keyParts(bt *tree.FromBaseTable, preds tree.PredicateList, sc *scope) ([]KeyPart, error) {
	var out []KeyPart
	for _, p := range preds {
		col, op, value, ok := p.ColumnOperand(bt.Number)
		if !ok {
			return nil, sql.ErrInternal.New(fmt.Sprintf("key predicate %d is not a comparison on %s", p.Number, bt.ExposedName()))
		}
		e, err := b.compile(value, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyPart{Column: col.ColumnNumber, Op: op.StoreOp(), Value: e})
	}
	return out, nil
}

// buildOuterJoin lowers an explicit join: the left side drives and the ON
// predicates belong to the right side's access.
func (b *Builder) buildOuterJoin(j *tree.Join, sc *scope) (Operator, Layout, error) {
	lpath, rpath := tree.PathOf(j.Left), tree.PathOf(j.Right)
	if lpath == nil || rpath == nil {
		return nil, nil, sql.ErrInternal.New(fmt.Sprintf("join %d was not optimized", j.Number))
	}
	left, llayout, err := b.buildEntry(j.Left, lpath, sc, nil)
	if err != nil {
		return nil, nil, err
	}
	if left, err = b.restrict(left, lpath.NonStoreRestrictions, sc.with(llayout, nil)); err != nil {
		return nil, nil, err
	}
	right, rlayout, err := b.buildEntry(j.Right, rpath, sc, llayout)
	if err != nil {
		return nil, nil, err
	}
	op, err := b.join(j.Type, left, llayout, right, rlayout, j.Right, rpath, sc)
	if err != nil {
		return nil, nil, err
	}
	op.common().estimate(j.Estimate)
	return op, concatLayouts(llayout, rlayout), nil
}

// join places inner after outer using the strategy of inner's access path.
func (b *Builder) join(t tree.JoinType, outer Operator, outerLayout Layout, inner Operator, innerLayout Layout,
	f tree.FromTable, path *tree.AccessPath, sc *scope) (Operator, error) {
	if path.Strategy == tree.HashStrategy {
		return b.hashJoin(t, outer, outerLayout, inner, innerLayout, f, path, sc)
	}
	inner, err := b.restrict(inner, path.NonStoreRestrictions, sc.with(innerLayout, outerLayout))
	if err != nil {
		return nil, err
	}
	return b.emit(&NestedLoopJoin{Type: t, Outer: outer, Inner: inner})
}

// hashJoin splits the restrictions of the inner entry: those over the
// entry alone filter the build, the rest are tested on each joined row.
func (b *Builder) hashJoin(t tree.JoinType, outer Operator, outerLayout Layout, inner Operator, innerLayout Layout,
	f tree.FromTable, path *tree.AccessPath, sc *scope) (Operator, error) {
	if len(path.HashKeys) == 0 {
		return nil, sql.ErrInternal.New("hash join on " + entryName(f) + " without keys")
	}
	tables := f.ReferencedTables()
	var build, joined tree.PredicateList
	for _, p := range path.NonStoreRestrictions {
		if !p.HashKey && p.Tables.IsSubset(tables) {
			build = append(build, p)
		} else {
			joined = append(joined, p)
		}
	}
	inner, err := b.restrict(inner, build, sc.with(innerLayout, nil))
	if err != nil {
		return nil, err
	}
	hj := &HashJoin{Type: t, Outer: outer, Inner: inner}
	outerScope, innerScope := sc.with(outerLayout, nil), sc.with(innerLayout, nil)
	for _, k := range path.HashKeys {
		probe, err := b.compile(k.First, outerScope)
		if err != nil {
			return nil, err
		}
		key, err := b.compile(k.Second, innerScope)
		if err != nil {
			return nil, err
		}
		hj.ProbeKeys = append(hj.ProbeKeys, probe)
		hj.BuildKeys = append(hj.BuildKeys, key)
		hj.keyNames = append(hj.keyNames, k.First.String()+" = "+k.Second.String())
	}
	if hj.Restriction, err = b.compileRestriction(joined, sc.with(concatLayouts(outerLayout, innerLayout), nil)); err != nil {
		return nil, err
	}
	return b.emit(hj)
}

// buildAggregate groups the joined rows. Its rows carry the input row of
// the group followed by one column per aggregate; HAVING filters them.
func (b *Builder) buildAggregate(sel *tree.Select, input Operator, layout Layout, sc *scope) (Operator, Layout, error) {
	rowScope := sc.with(layout, nil)
	groupBy, err := b.compileList(sel.GroupBy, rowScope)
	if err != nil {
		return nil, nil, err
	}
	g := &GroupAggregate{Input: input, GroupBy: groupBy}
	out := concatLayouts(layout, nil)
	for _, rc := range sel.AggregateColumns {
		agg, ok := rc.Expression.(*tree.Aggregate)
		if !ok {
			return nil, nil, sql.ErrInternal.New("aggregate column " + rc.Name + " holds no aggregate")
		}
		spec := AggregateSpec{Func: agg.Func, Distinct: agg.Distinct, Type: agg.Type()}
		if agg.Operand != nil {
			if spec.Operand, err = b.compile(agg.Operand, rowScope); err != nil {
				return nil, nil, err
			}
		}
		g.Aggregates = append(g.Aggregates, spec)
		out = append(out, virtualSlot(rc))
	}
	op, err := b.emit(g)
	if err != nil {
		return nil, nil, err
	}
	op, err = b.restrict(op, sel.HavingPredicates, sc.with(out, nil))
	return op, out, err
}

func (b *Builder) buildSetOperator(so *tree.SetOperator, sc *scope) (Operator, error) {
	left, err := b.buildQuery(so.Left, sc)
	if err != nil {
		return nil, err
	}
	right, err := b.buildQuery(so.Right, sc)
	if err != nil {
		return nil, err
	}
	if left.Width() != right.Width() {
		return nil, sql.ErrInternal.New(fmt.Sprintf("%s inputs have %d and %d columns", so.Op, left.Width(), right.Width()))
	}
	var op Operator
	if so.Op == tree.SetUnion {
		op = &Union{All: so.All, Left: left, Right: right}
	} else {
		op = &SetOp{Op: so.Op, All: so.All, Left: left, Right: right}
	}
	if op, err = b.emit(op); err != nil {
		return nil, err
	}
	if len(so.OrderBy) > 0 {
		if op, err = b.emit(&Sort{Input: op, Keys: sortKeys(so.OrderBy)}); err != nil {
			return nil, err
		}
	}
	if op, err = b.limit(op, so.Offset, so.Fetch, sc); err != nil {
		return nil, err
	}
	op.common().estimate(so.Estimate)
	return op, nil
}

// columnsOf describes the rows of a query.
func columnsOf(rs tree.ResultSetNode) []Column {
	cols := rs.ResultColumns()
	out := make([]Column, len(cols))
	for i, rc := range cols {
		out[i] = Column{Name: rc.Name, Type: rc.Type()}
	}
	return out
}
