package optimizer

import (
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"planforge/logger"
	"planforge/sql"
	"planforge/sql/store"
	"planforge/sql/tree"
)

type state int

const (
	stateUnordered state = iota
	stateEnumeratingOrder
	stateEvaluatingAccessPath
	stateOrderComplete
	stateBestPlanFound
)

func (s state) String() string {
	switch s {
	case stateUnordered:
		return "UNORDERED"
	case stateEnumeratingOrder:
		return "ENUMERATING_ORDER"
	case stateEvaluatingAccessPath:
		return "EVALUATING_ACCESS_PATH"
	case stateOrderComplete:
		return "ORDER_COMPLETE"
	case stateBestPlanFound:
		return "BEST_PLAN_FOUND"
	}
	return "?"
}

// maxEntries bounds a block so a placed-entry set fits in a bitmask.
const maxEntries = 64

type entry struct {
	from   tree.FromTable
	index  int
	tables mapset.Set[int]
	props  map[string]string
}

// orderSpec is an ORDER BY an index scan of one table can deliver.
type orderSpec struct {
	table   int
	columns []int
}

// satisfiedBy reports an index whose leading key columns are the order columns.
func (o *orderSpec) satisfiedBy(e *entry, ix *store.IndexDescriptor) bool {
	if ix == nil || e.from.TableNumber() != o.table || len(ix.Columns) < len(o.columns) {
		return false
	}
	for i, c := range o.columns {
		if ix.Columns[i] != c {
			return false
		}
	}
	return true
}

// orderRequirement returns the ORDER BY of sel when an index on a single
// base table could produce it, or nil.
func orderRequirement(sel *tree.Select) *orderSpec {
	if len(sel.OrderBy) == 0 || sel.HasAggregation() || sel.Distinct {
		return nil
	}
	spec := &orderSpec{table: -1}
	for _, oc := range sel.OrderBy {
		if oc.Desc || oc.Position < 1 || oc.Position > len(sel.Columns) {
			return nil
		}
		cr, ok := sel.Columns[oc.Position-1].Expression.(*tree.ColumnReference)
		if !ok || cr.SourceLevel != sel.NestingLevel {
			return nil
		}
		if spec.table >= 0 && spec.table != cr.TableNumber {
			return nil
		}
		spec.table = cr.TableNumber
		spec.columns = append(spec.columns, cr.ColumnNumber)
	}
	for _, f := range sel.From {
		if bt, ok := tree.Unwrap(f).(*tree.FromBaseTable); ok && bt.Number == spec.table {
			return spec
		}
	}
	return nil
}

type position struct {
	entry  *entry
	access *access
	// estimate is cumulative through this position.
	estimate tree.CostEstimate
}

type joinPlan struct {
	positions   []position
	order       []int
	estimate    tree.CostEstimate
	sortAvoided bool
}

type memoKey struct {
	entry int
	outer uint64
}

type choices struct {
	nlj  *access
	hash *access
}

// block searches the join orders of one FROM list.
type block struct {
	o       *Optimizer
	level   int
	number  int
	entries []*entry
	preds   tree.PredicateList
	fixed   bool
	// onInner applies every predicate at the inner side of a two-entry
	// outer join instead of at the first position that can evaluate it.
	onInner bool
	order   *orderSpec

	state   state
	leading *orderSpec
	memo    map[memoKey]*choices
	best    *joinPlan
	start   time.Time
	reason  string
}

func newBlock(o *Optimizer, level, number int, from []tree.FromTable, preds tree.PredicateList, fixed bool) *block {
	b := &block{o: o, level: level, number: number, preds: preds, fixed: fixed}
	for i, f := range from {
		b.entries = append(b.entries, &entry{from: f, index: i, tables: f.ReferencedTables(), props: f.Properties()})
	}
	return b
}

func (b *block) transition(s state) {
	if b.state == s {
		return
	}
	logger.Debugf("block %d: %s -> %s", b.number, b.state, s)
	b.state = s
}

func (b *block) optimize() (*joinPlan, error) {
	if len(b.entries) == 0 {
		return &joinPlan{estimate: tree.CostEstimate{RowCount: 1, SingleScanRowCount: 1}}, nil
	}
	if len(b.entries) > maxEntries {
		return nil, sql.ErrUnsupported.New(fmt.Sprintf("a FROM list of %d tables", len(b.entries)))
	}
	best, err := b.search(nil)
	if err != nil {
		return nil, err
	}
	if best == nil {
		if b.reason == "" {
			b.reason = "no join order is feasible"
		}
		return nil, sql.ErrPlanNotFound.New(b.number, b.reason)
	}
	if b.order != nil && b.o.opts.SortAvoidance {
		sorted, err := b.search(b.order)
		if err != nil {
			return nil, err
		}
		if sorted != nil && sorted.estimate.Cost <= best.estimate.Cost+sortCost(best.estimate.RowCount) {
			logger.Debugf("block %d: ordered index scan avoids sort (%.2f vs %.2f)", b.number, sorted.estimate.Cost, best.estimate.Cost)
			best = sorted
			best.sortAvoided = true
		}
	}
	if err := b.finalize(best); err != nil {
		return nil, err
	}
	b.transition(stateBestPlanFound)
	return best, nil
}

// search enumerates join orders depth first, abandoning a partial order
// once it costs more than the best complete one.
func (b *block) search(leading *orderSpec) (*joinPlan, error) {
	b.leading = leading
	b.memo = map[memoKey]*choices{}
	b.best = nil
	b.start = time.Now()
	b.transition(stateEnumeratingOrder)

	stack := make([]position, 0, len(b.entries))
	var used uint64
	var walk func() error
	walk = func() error {
		if b.timedOut() {
			return nil
		}
		depth := len(stack)
		if depth == len(b.entries) {
			b.complete(stack)
			return nil
		}
		outer := tree.CostEstimate{RowCount: 1, SingleScanRowCount: 1}
		if depth > 0 {
			outer = stack[depth-1].estimate
		}
		for i, e := range b.entries {
			if used&(1<<uint(i)) != 0 || (b.fixed && i != depth) {
				continue
			}
			pos, err := b.place(e, used, depth, outer)
			if err != nil {
				return err
			}
			if pos == nil {
				continue
			}
			b.o.stats.Permutations++
			if b.best != nil && pos.estimate.Cost > b.best.estimate.Cost {
				continue
			}
			stack = append(stack, *pos)
			used |= 1 << uint(i)
			if err := walk(); err != nil {
				return err
			}
			used &^= 1 << uint(i)
			stack = stack[:depth]
		}
		return nil
	}
	if err := walk(); err != nil {
		return nil, err
	}
	return b.best, nil
}

// timedOut stops a large search once it has run longer, in milliseconds,
// than the best plan found is estimated to cost.
func (b *block) timedOut() bool {
	opts := b.o.opts
	if opts.NoTimeout || len(b.entries) <= opts.TimeoutTables || b.best == nil {
		return false
	}
	if float64(time.Since(b.start).Milliseconds()) <= b.best.estimate.Cost {
		return false
	}
	if !b.o.stats.TimedOut {
		logger.Debugf("block %d: optimizer timeout after %d permutations", b.number, b.o.stats.Permutations)
	}
	b.o.stats.TimedOut = true
	return true
}

func (b *block) complete(stack []position) {
	b.transition(stateOrderComplete)
	est := stack[len(stack)-1].estimate
	if b.best != nil && !est.Less(b.best.estimate) {
		return
	}
	plan := &joinPlan{positions: append([]position(nil), stack...), estimate: est}
	for _, p := range stack {
		plan.order = append(plan.order, p.entry.index)
	}
	b.best = plan
}

func (b *block) outerTables(used uint64) mapset.Set[int] {
	out := mapset.NewThreadUnsafeSet[int]()
	for i, e := range b.entries {
		if used&(1<<uint(i)) != 0 {
			out = out.Union(e.tables)
		}
	}
	return out
}

// applicable returns the predicates first evaluable once e joins outer.
// Predicates over no table of the block go to the first position.
func (b *block) applicable(e *entry, outer mapset.Set[int], depth int) tree.PredicateList {
	if b.onInner {
		if depth == len(b.entries)-1 {
			return b.preds
		}
		return nil
	}
	all := outer.Union(e.tables)
	var out tree.PredicateList
	for _, p := range b.preds {
		if p.Tables.Cardinality() == 0 {
			if depth == 0 {
				out = append(out, p)
			}
			continue
		}
		if p.Tables.IsSubset(all) && !p.Tables.IsSubset(outer) {
			out = append(out, p)
		}
	}
	return out
}

// place picks the cheapest feasible strategy for e after the entries in
// used, or returns nil when the order must be rejected.
func (b *block) place(e *entry, used uint64, depth int, outer tree.CostEstimate) (*position, error) {
	key := memoKey{entry: e.index, outer: used}
	ch, ok := b.memo[key]
	if !ok {
		b.transition(stateEvaluatingAccessPath)
		var err error
		ch, err = b.evaluate(e, used, depth)
		if err != nil {
			return nil, err
		}
		b.memo[key] = ch
		b.transition(stateEnumeratingOrder)
	}

	forced := e.props[tree.PropJoinStrategy]
	var best *access
	var est tree.CostEstimate
	if ch.nlj != nil && forced != tree.HashStrategy.String() {
		best, est = ch.nlj, nestedLoopCost(outer, ch.nlj.estimate)
	}
	if ch.hash != nil {
		h := hashJoinCost(outer, ch.hash.estimate, ch.hash.rowsPerProbe)
		if best == nil || h.Less(est) {
			best, est = ch.hash, h
		}
	}
	if best == nil {
		name := e.from.ExposedName()
		if name == "" {
			name = fmt.Sprintf("join %d", e.from.TableNumber())
		}
		if forced != "" {
			b.reason = fmt.Sprintf("%s cannot be joined with strategy %s", name, forced)
		} else {
			b.reason = "no access path for " + name
		}
		return nil, nil
	}
	return &position{entry: e, access: best, estimate: est}, nil
}

func (b *block) evaluate(e *entry, used uint64, depth int) (*choices, error) {
	outer := b.outerTables(used)
	preds := b.applicable(e, outer, depth)
	ch := &choices{}
	if b.leading != nil && depth == 0 {
		if _, ok := tree.Unwrap(e.from).(*tree.FromBaseTable); !ok {
			return ch, nil
		}
	}
	switch t := tree.Unwrap(e.from).(type) {
	case *tree.FromBaseTable:
		var err error
		ch.nlj, ch.hash, err = b.baseAccess(e, t, preds, outer, depth)
		if err != nil {
			return nil, err
		}
	case *tree.FromSubquery:
		ch.nlj, ch.hash = b.derivedAccess(e, estimateOf(t.Query), preds, outer, depth, true)
	case *tree.Join:
		ch.nlj, _ = b.derivedAccess(e, t.Estimate, preds, outer, depth, false)
	default:
		return nil, sql.ErrInternal.New("unexpected FROM entry " + e.from.Kind().String())
	}
	return ch, nil
}

func estimateOf(rs tree.ResultSetNode) tree.CostEstimate {
	switch t := rs.(type) {
	case *tree.Select:
		return t.Estimate
	case *tree.SetOperator:
		return t.Estimate
	}
	return tree.CostEstimate{RowCount: 1, SingleScanRowCount: 1}
}

// finalize records the access paths of the chosen order and marks the
// predicates that serve as keys.
func (b *block) finalize(best *joinPlan) error {
	placed := 0
	var names []string
	for _, pos := range best.positions {
		a := pos.access
		placed += len(a.preds)
		for _, p := range a.preds {
			p.StartKey, p.StopKey, p.HashKey = false, false, false
		}
		for _, p := range a.start {
			p.StartKey = true
		}
		for _, p := range a.stop {
			p.StopKey = true
		}
		for _, p := range a.hashPreds {
			p.HashKey = true
		}
		path := &tree.AccessPath{
			Index:                a.index,
			Strategy:             a.strategy,
			Estimate:             a.estimate,
			Covering:             a.covering,
			StartKeys:            a.start,
			StopKeys:             a.stop,
			StoreRestrictions:    a.storeList,
			NonStoreRestrictions: a.nonStore,
			Requalifications:     a.requalify,
			HashKeys:             a.hashKeys,
			OrderedBy:            a.orderedBy,
		}
		tree.SetPath(pos.entry.from, path)
		if pr, ok := pos.entry.from.(*tree.ProjectRestrict); ok {
			pr.Restriction = a.nonStore
		}
		names = append(names, fmt.Sprintf("%s(%s %s)", pos.entry.from.ExposedName(), a.strategy, path.Name()))
	}
	if placed != len(b.preds) {
		return sql.ErrInternal.New(fmt.Sprintf("block %d placed %d of %d predicates", b.number, placed, len(b.preds)))
	}
	logger.Debugf("block %d: order %s cost %.2f rows %.1f", b.number, strings.Join(names, ", "), best.estimate.Cost, best.estimate.RowCount)
	return nil
}
