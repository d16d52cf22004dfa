package tree

import (
	mapset "github.com/deckarep/golang-set/v2"
	pair "github.com/notEpsilon/go-pair"

	"planforge/sql/store"
)

// ResultSetNode is any node that produces rows.
type ResultSetNode interface {
	Node
	ResultColumns() ResultColumnList
	// ReferencedTables is the set of table numbers produced underneath.
	ReferencedTables() mapset.Set[int]
	// ResultSetNumber is unique within a statement.
	ResultSetNumber() int
}

// FromTable is an entry of a FROM list; the optimizer orders and accesses these.
type FromTable interface {
	ResultSetNode
	TableNumber() int
	ExposedName() string
	Level() int
	Properties() map[string]string
}

// Optimizer override keys, normalized by the binder.
const (
	PropIndex        = "index"
	PropJoinStrategy = "joinStrategy"
	PropJoinOrder    = "joinOrder"
)

type JoinStrategy int

const (
	NestedLoopStrategy JoinStrategy = iota + 1
	HashStrategy
)

func (s JoinStrategy) String() string {
	switch s {
	case NestedLoopStrategy:
		return "NESTEDLOOP"
	case HashStrategy:
		return "HASH"
	}
	return "?"
}

// AccessPath is the chosen way of reading one FROM entry, with the
// predicates distributed to it. It is immutable once recorded.
type AccessPath struct {
	// Index is nil for a heap scan.
	Index    *store.IndexDescriptor
	Strategy JoinStrategy
	Estimate CostEstimate
	Covering bool

	StartKeys PredicateList
	StopKeys  PredicateList
	// StoreRestrictions are evaluated inside the scan, including key predicates.
	StoreRestrictions PredicateList
	// NonStoreRestrictions are evaluated just above the scan.
	NonStoreRestrictions PredicateList
	// Requalifications are re-applied to the heap row after a non-covering index fetch.
	Requalifications PredicateList
	// HashKeys pair an outer column with the inner column it joins.
	HashKeys []pair.Pair[*ColumnReference, *ColumnReference]
	// OrderedBy lists the table columns the access path delivers rows sorted on.
	OrderedBy []int
}

func (a *AccessPath) Name() string {
	if a.Index == nil {
		return "TABLE SCAN"
	}
	return "INDEX " + a.Index.Name
}

type fromBase struct {
	nodeBase
	Number       int
	NestingLevel int
	Correlation  string
	Props        map[string]string
	Columns      ResultColumnList
	// Path is set by the optimizer.
	Path *AccessPath
}

func (f *fromBase) TableNumber() int { return f.Number }

func (f *fromBase) Level() int { return f.NestingLevel }

func (f *fromBase) Properties() map[string]string { return f.Props }

func (f *fromBase) ResultColumns() ResultColumnList { return f.Columns }

func (f *fromBase) ResultSetNumber() int { return f.Number }

func (f *fromBase) ReferencedTables() mapset.Set[int] { return mapset.NewThreadUnsafeSet(f.Number) }

type FromBaseTable struct {
	fromBase
	Schema     string
	TableName  string
	Descriptor *store.TableDescriptor
	// NeedsRowLocation asks the scan to expose the row location column.
	NeedsRowLocation bool
}

func (f *FromBaseTable) Kind() Kind { return KindFromBaseTable }

func (f *FromBaseTable) Children() []Node { return f.Columns.nodes() }

func (f *FromBaseTable) ExposedName() string {
	if f.Correlation != "" {
		return f.Correlation
	}
	return f.TableName
}

// FromSubquery is a derived table.
type FromSubquery struct {
	fromBase
	Query ResultSetNode
}

func (f *FromSubquery) Kind() Kind { return KindFromSubquery }

func (f *FromSubquery) Children() []Node { return []Node{f.Query} }

func (f *FromSubquery) ExposedName() string { return f.Correlation }

type JoinType int

const (
	InnerJoin JoinType = iota + 1
	LeftOuterJoin
)

// Join is an explicit JOIN that could not be flattened into the FROM list.
type Join struct {
	nodeBase
	Type         JoinType
	Left         FromTable
	Right        FromTable
	On           ValueNode
	OnPredicates PredicateList
	Number       int
	NestingLevel int
	Columns      ResultColumnList
	Path         *AccessPath
	// Estimate of the whole join, set by the optimizer.
	Estimate CostEstimate
}

func (j *Join) Kind() Kind { return KindJoin }

func (j *Join) Children() []Node {
	return valueChildren(append([]ValueNode{j.On}, j.OnPredicates.Exprs()...)...).withNodes(j.Left, j.Right)
}

func (j *Join) ResultColumns() ResultColumnList { return j.Columns }

func (j *Join) ResultSetNumber() int { return j.Number }

func (j *Join) TableNumber() int { return j.Number }

func (j *Join) ExposedName() string { return "" }

func (j *Join) Level() int { return j.NestingLevel }

func (j *Join) Properties() map[string]string { return nil }

func (j *Join) ReferencedTables() mapset.Set[int] {
	return j.Left.ReferencedTables().Union(j.Right.ReferencedTables())
}

type nodeList []Node

func (l nodeList) withNodes(ns ...Node) []Node {
	return append([]Node(l), ns...)
}

type OrderColumn struct {
	Expr ValueNode
	Desc bool
	// Position is the 1-based select-list column the key sorts on.
	Position int
}

// Select is one query block.
type Select struct {
	nodeBase
	Columns          ResultColumnList
	From             []FromTable
	Where            ValueNode
	WherePredicates  PredicateList
	GroupBy          []ValueNode
	Having           ValueNode
	HavingPredicates PredicateList
	OrderBy          []*OrderColumn
	Offset           ValueNode
	Fetch            ValueNode
	Distinct         bool
	// Hidden is the number of trailing columns added only to sort on.
	Hidden           int
	Aggregates       []*Aggregate
	AggregateColumns ResultColumnList
	WindowFunctions  []*WindowFunction
	WindowColumns    ResultColumnList
	Subqueries       []*Subquery
	NestingLevel     int
	Number           int
	FixedJoinOrder   bool

	// JoinOrder holds From indexes, outermost first, once optimized.
	JoinOrder   []int
	Estimate    CostEstimate
	SortAvoided bool
}

func (s *Select) Kind() Kind { return KindSelect }

func (s *Select) Children() []Node {
	out := s.Columns.nodes()
	for _, f := range s.From {
		out = append(out, f)
	}
	out = append(out, valueChildren(s.Where, s.Having, s.Offset, s.Fetch)...)
	out = append(out, valueChildren(s.GroupBy...)...)
	for _, o := range s.OrderBy {
		out = append(out, o.Expr)
	}
	out = append(out, s.AggregateColumns.nodes()...)
	out = append(out, valueChildren(s.WherePredicates.Exprs()...)...)
	return append(out, valueChildren(s.HavingPredicates.Exprs()...)...)
}

// ResultColumns returns the visible columns; hidden sort columns are excluded.
func (s *Select) ResultColumns() ResultColumnList { return s.Columns[:len(s.Columns)-s.Hidden] }

func (s *Select) ResultSetNumber() int { return s.Number }

func (s *Select) Level() int { return s.NestingLevel }

func (s *Select) ReferencedTables() mapset.Set[int] {
	set := mapset.NewThreadUnsafeSet[int]()
	for _, f := range s.From {
		set = set.Union(f.ReferencedTables())
	}
	return set
}

// HasAggregation reports GROUP BY, HAVING or aggregates in the block. A
// HAVING without GROUP BY groups the whole input.
func (s *Select) HasAggregation() bool {
	return len(s.GroupBy) > 0 || len(s.Aggregates) > 0 || s.Having != nil || len(s.HavingPredicates) > 0
}

type SetOpType int

const (
	SetUnion SetOpType = iota + 1
	SetIntersect
	SetExcept
)

func (t SetOpType) String() string {
	switch t {
	case SetUnion:
		return "UNION"
	case SetIntersect:
		return "INTERSECT"
	case SetExcept:
		return "EXCEPT"
	}
	return "?"
}

type SetOperator struct {
	nodeBase
	Op           SetOpType
	All          bool
	Left         ResultSetNode
	Right        ResultSetNode
	Columns      ResultColumnList
	OrderBy      []*OrderColumn
	Offset       ValueNode
	Fetch        ValueNode
	Number       int
	NestingLevel int
	Estimate     CostEstimate
}

func (s *SetOperator) Kind() Kind { return KindSetOperator }

func (s *SetOperator) Children() []Node {
	return valueChildren(s.Offset, s.Fetch).withNodes(s.Left, s.Right)
}

func (s *SetOperator) ResultColumns() ResultColumnList { return s.Columns }

func (s *SetOperator) ResultSetNumber() int { return s.Number }

func (s *SetOperator) ReferencedTables() mapset.Set[int] {
	return s.Left.ReferencedTables().Union(s.Right.ReferencedTables())
}

// RowResultSet is a single VALUES row.
type RowResultSet struct {
	nodeBase
	Columns      ResultColumnList
	Number       int
	NestingLevel int
	Subqueries   []*Subquery
}

func (r *RowResultSet) Kind() Kind { return KindRowResultSet }

func (r *RowResultSet) Children() []Node { return r.Columns.nodes() }

func (r *RowResultSet) ResultColumns() ResultColumnList { return r.Columns }

func (r *RowResultSet) ResultSetNumber() int { return r.Number }

func (r *RowResultSet) ReferencedTables() mapset.Set[int] { return mapset.NewThreadUnsafeSet[int]() }

// ProjectRestrict wraps a FROM entry with the columns referenced above it
// and the restrictions evaluated directly over its rows.
type ProjectRestrict struct {
	nodeBase
	Child       FromTable
	Columns     ResultColumnList
	Restriction PredicateList
}

func (p *ProjectRestrict) Kind() Kind { return KindProjectRestrict }

func (p *ProjectRestrict) Children() []Node {
	return append(p.Columns.nodes(), valueChildren(p.Restriction.Exprs()...)...).withNodes(p.Child)
}

func (p *ProjectRestrict) ResultColumns() ResultColumnList { return p.Columns }

func (p *ProjectRestrict) ResultSetNumber() int { return p.Child.ResultSetNumber() }

func (p *ProjectRestrict) ReferencedTables() mapset.Set[int] { return p.Child.ReferencedTables() }

func (p *ProjectRestrict) TableNumber() int { return p.Child.TableNumber() }

func (p *ProjectRestrict) ExposedName() string { return p.Child.ExposedName() }

func (p *ProjectRestrict) Level() int { return p.Child.Level() }

func (p *ProjectRestrict) Properties() map[string]string { return p.Child.Properties() }

// Unwrap returns the FROM entry below any projection wrappers.
func Unwrap(f FromTable) FromTable {
	for {
		p, ok := f.(*ProjectRestrict)
		if !ok {
			return f
		}
		f = p.Child
	}
}

// PathOf returns the access path recorded for a FROM entry.
func PathOf(f FromTable) *AccessPath {
	switch t := Unwrap(f).(type) {
	case *FromBaseTable:
		return t.Path
	case *FromSubquery:
		return t.Path
	case *Join:
		return t.Path
	}
	return nil
}

// SetPath records the chosen access path on a FROM entry.
func SetPath(f FromTable, path *AccessPath) {
	switch t := Unwrap(f).(type) {
	case *FromBaseTable:
		t.Path = path
	case *FromSubquery:
		t.Path = path
	case *Join:
		t.Path = path
	}
}
