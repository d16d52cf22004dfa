package optimizer

import (
	mapset "github.com/deckarep/golang-set/v2"
	pair "github.com/notEpsilon/go-pair"

	"planforge/sql/store"
	"planforge/sql/tree"
)

// access is one way of reading an entry at one position of a join order.
// For a nested loop, estimate is the cost of one probe; for a hash join it
// is the cost of building the hash table once.
type access struct {
	strategy     tree.JoinStrategy
	index        *store.IndexDescriptor
	estimate     tree.CostEstimate
	rowsPerProbe float64
	covering     bool

	preds     tree.PredicateList
	start     tree.PredicateList
	stop      tree.PredicateList
	storeList tree.PredicateList
	nonStore  tree.PredicateList
	requalify tree.PredicateList
	hashKeys  []pair.Pair[*tree.ColumnReference, *tree.ColumnReference]
	hashPreds tree.PredicateList
	orderedBy []int
}

// scanPred pairs a predicate with what the store can make of it.
type scanPred struct {
	pred  *tree.Predicate
	scan  store.ScanPredicate
	store bool
}

func (b *block) knownValue(v tree.ValueNode) bool {
	switch t := v.(type) {
	case *tree.Constant, *tree.Parameter:
		return true
	case *tree.ColumnReference:
		return t.SourceLevel < b.level
	case *tree.Cast:
		return b.knownValue(t.Operand)
	}
	return false
}

// fromOuter reports a value computed only from columns of tables already
// placed in the join order, so it is fixed for one probe.
func (b *block) fromOuter(v tree.ValueNode, outer mapset.Set[int]) bool {
	if tree.ContainsKind(v, tree.KindSubquery) || tree.ContainsKind(v, tree.KindAggregate) {
		return false
	}
	tables, _ := tree.TablesOf(v, b.level)
	return tables.Cardinality() > 0 && tables.IsSubset(outer)
}

// toScan converts the applicable predicates of table into scan predicates.
func (b *block) toScan(preds tree.PredicateList, table int, outer mapset.Set[int]) []scanPred {
	out := make([]scanPred, 0, len(preds))
	for _, p := range preds {
		out = append(out, b.scanPredicate(p, table, outer))
	}
	return out
}

func (b *block) scanPredicate(p *tree.Predicate, table int, outer mapset.Set[int]) scanPred {
	other := scanPred{pred: p, scan: store.ScanPredicate{Op: store.OpOther}}
	if p.Subquery {
		return other
	}
	if col, op, v, ok := p.ColumnOperand(table); ok {
		sp := store.ScanPredicate{Column: col.ColumnNumber, Op: op.StoreOp()}
		switch {
		case b.knownValue(v):
			if c, ok := v.(*tree.Constant); ok {
				val := c.Value
				sp.Value = &val
			}
			if cr, ok := v.(*tree.ColumnReference); ok && cr.SourceLevel < b.level {
				sp.Probe = true
			}
		case b.fromOuter(v, outer):
			sp.Probe = true
		default:
			return other
		}
		return scanPred{pred: p, scan: sp, store: true}
	}
	if col, not, ok := p.IsNullOperand(table); ok {
		op := store.OpIsNull
		if not {
			op = store.OpIsNotNull
		}
		return scanPred{pred: p, scan: store.ScanPredicate{Column: col.ColumnNumber, Op: op}, store: true}
	}
	if l, ok := p.Expr.(*tree.Like); ok {
		col, cok := l.Operand.(*tree.ColumnReference)
		pat, pok := l.Pattern.(*tree.Constant)
		if cok && pok && col.TableNumber == table && col.SourceLevel == b.level {
			val := pat.Value
			return scanPred{pred: p, scan: store.ScanPredicate{Column: col.ColumnNumber, Op: store.OpLike, Value: &val}, store: true}
		}
	}
	return other
}

// probeOf reports an equijoin from a column of table to a column of a table
// already placed, returning (outer column, inner column).
func (b *block) probeOf(p *tree.Predicate, table int, outer mapset.Set[int]) (*tree.ColumnReference, *tree.ColumnReference, bool) {
	if !p.Equijoin {
		return nil, nil, false
	}
	rel := p.Expr.(*tree.BinaryRelational)
	l, r := rel.Left.(*tree.ColumnReference), rel.Right.(*tree.ColumnReference)
	switch {
	case r.TableNumber == table && outer.Contains(l.TableNumber):
		return l, r, true
	case l.TableNumber == table && outer.Contains(r.TableNumber):
		return r, l, true
	}
	return nil, nil, false
}

// projectedColumns lists the table column positions a scan must return.
func projectedColumns(f tree.FromTable) []int {
	pr, ok := f.(*tree.ProjectRestrict)
	if !ok {
		var out []int
		for _, rc := range f.ResultColumns() {
			out = append(out, rc.Position)
		}
		return out
	}
	out := make([]int, 0, len(pr.Columns))
	for _, rc := range pr.Columns {
		if rc.Column != nil {
			out = append(out, rc.Column.Position)
		} else {
			out = append(out, rc.Position)
		}
	}
	return out
}

func costOf(e store.Estimate) tree.CostEstimate {
	return tree.CostEstimate{Cost: e.Cost, RowCount: e.RowCount, SingleScanRowCount: e.SingleScanRowCount}
}

// candidates lists the conglomerates that may serve a base table, honoring
// a forced index.
func candidates(e *entry, bt *tree.FromBaseTable) []*store.IndexDescriptor {
	forced, ok := e.props[tree.PropIndex]
	if ok {
		if forced == "NULL" {
			return []*store.IndexDescriptor{nil}
		}
		if ix, ok := bt.Descriptor.Index(forced); ok {
			return []*store.IndexDescriptor{ix}
		}
	}
	out := []*store.IndexDescriptor{nil}
	return append(out, bt.Descriptor.Indexes...)
}

// baseAccess finds the cheapest nested loop and hash accesses to a base
// table given the tables placed before it.
func (b *block) baseAccess(e *entry, bt *tree.FromBaseTable, preds tree.PredicateList, outer mapset.Set[int], pos int) (nlj, hash *access, err error) {
	columns := projectedColumns(e.from)
	scans := b.toScan(preds, bt.Number, outer)
	countedSet := mapset.NewThreadUnsafeSet[*tree.Predicate](counted(preds)...)

	for _, ix := range candidates(e, bt) {
		if b.leading != nil && pos == 0 && !b.leading.satisfiedBy(e, ix) {
			continue
		}
		id := bt.Descriptor.ConglomerateID
		if ix != nil {
			id = ix.ConglomerateID
		}
		cc, err := b.o.ctx.CostController(id)
		if err != nil {
			return nil, nil, err
		}

		a, err := b.priceScan(cc, ix, scans, countedSet, columns, false)
		if err != nil {
			return nil, nil, err
		}
		a.strategy = tree.NestedLoopStrategy
		if nlj == nil || a.estimate.Less(nlj.estimate) {
			nlj = a
		}

		if !b.hashFeasible(e, preds, pos) {
			continue
		}
		keys, keyPreds := b.hashKeys(preds, bt.Number, outer)
		if len(keys) == 0 {
			continue
		}
		h, err := b.priceScan(cc, ix, scans, countedSet, columns, true)
		if err != nil {
			return nil, nil, err
		}
		if h.estimate.RowCount*cc.RowWidth() > b.o.opts.MaxMemoryPerTable {
			continue
		}
		h.strategy = tree.HashStrategy
		h.hashKeys, h.hashPreds = keys, keyPreds
		h.rowsPerProbe = a.estimate.RowCount
		if hash == nil || h.estimate.Less(hash.estimate) {
			hash = h
		}
	}
	return nlj, hash, nil
}

// priceScan asks the cost controller for one conglomerate and distributes
// the predicates. For a hash build, probe predicates stay out of the scan.
func (b *block) priceScan(cc store.CostController, ix *store.IndexDescriptor, scans []scanPred, countedSet mapset.Set[*tree.Predicate], columns []int, build bool) (*access, error) {
	a := &access{index: ix}
	var costed []store.ScanPredicate
	var storeScans []scanPred
	for _, sp := range scans {
		a.preds = append(a.preds, sp.pred)
		usable := sp.store && !(build && sp.scan.Probe)
		if usable {
			storeScans = append(storeScans, sp)
			a.storeList = append(a.storeList, sp.pred)
		} else {
			a.nonStore = append(a.nonStore, sp.pred)
		}
		if !countedSet.Contains(sp.pred) || (build && sp.scan.Probe) {
			continue
		}
		if usable {
			costed = append(costed, sp.scan)
		} else {
			costed = append(costed, store.ScanPredicate{Op: store.OpOther})
		}
	}
	est, err := cc.EstimateCost(&store.PredicateSet{Predicates: costed, Columns: columns})
	if err != nil {
		return nil, err
	}
	a.estimate = costOf(est)

	if ix != nil {
		storePreds := make([]store.ScanPredicate, len(storeScans))
		for i, sp := range storeScans {
			storePreds[i] = sp.scan
		}
		keys, _ := store.KeyPredicates(ix, storePreds)
		for _, k := range keys {
			p := storeScans[k].pred
			switch storeScans[k].scan.Op {
			case store.OpEQ:
				a.start = append(a.start, p)
				a.stop = append(a.stop, p)
			case store.OpGT, store.OpGE:
				a.start = append(a.start, p)
			case store.OpLT, store.OpLE:
				a.stop = append(a.stop, p)
			}
		}
		a.covering = ix.Covers(columns)
		if !a.covering {
			a.requalify = append(tree.PredicateList(nil), a.storeList...)
		}
		a.orderedBy = append([]int(nil), ix.Columns...)
	}
	return a, nil
}

// hashFeasible checks the conditions on the position and predicates that
// do not depend on the conglomerate.
func (b *block) hashFeasible(e *entry, preds tree.PredicateList, pos int) bool {
	if pos == 0 || !b.o.opts.HashJoin || e.props[tree.PropJoinStrategy] == tree.NestedLoopStrategy.String() {
		return false
	}
	for _, p := range preds {
		// the build must not depend on a block more than one level up
		for _, l := range p.OuterLevels.ToSlice() {
			if l < b.level-1 {
				return false
			}
		}
	}
	return true
}

func (b *block) hashKeys(preds tree.PredicateList, table int, outer mapset.Set[int]) ([]pair.Pair[*tree.ColumnReference, *tree.ColumnReference], tree.PredicateList) {
	var keys []pair.Pair[*tree.ColumnReference, *tree.ColumnReference]
	var used tree.PredicateList
	for _, p := range preds {
		if o, i, ok := b.probeOf(p, table, outer); ok {
			keys = append(keys, *pair.New(o, i))
			used = append(used, p)
		}
	}
	return keys, used
}

// derivedAccess prices a derived table or an outer join. The inner result
// is computed again for every probe of a nested loop, or once for a hash build.
func (b *block) derivedAccess(e *entry, inner tree.CostEstimate, preds tree.PredicateList, outer mapset.Set[int], pos int, hashable bool) (nlj, hash *access) {
	sel := 1.0
	for _, p := range counted(preds) {
		sel *= defaultSelectivity(p)
	}
	nlj = &access{
		strategy: tree.NestedLoopStrategy,
		estimate: tree.CostEstimate{Cost: inner.Cost, RowCount: inner.RowCount * sel, SingleScanRowCount: inner.RowCount * sel},
		preds:    preds,
		nonStore: preds,
	}
	if !hashable || !b.hashFeasible(e, preds, pos) {
		return nlj, nil
	}
	keys, keyPreds := b.hashKeys(preds, e.from.TableNumber(), outer)
	if len(keys) == 0 {
		return nlj, nil
	}
	// a derived row is no wider than the columns it projects
	width := float64(len(e.from.ResultColumns())) * 16
	if inner.RowCount*width > b.o.opts.MaxMemoryPerTable {
		return nlj, nil
	}
	rowsPerProbe := inner.RowCount * sel
	hash = &access{
		strategy:     tree.HashStrategy,
		estimate:     tree.CostEstimate{Cost: inner.Cost, RowCount: inner.RowCount, SingleScanRowCount: inner.RowCount},
		rowsPerProbe: rowsPerProbe,
		preds:        preds,
		nonStore:     preds,
		hashKeys:     keys,
		hashPreds:    keyPreds,
	}
	return nlj, hash
}
