package plan

import (
	"fmt"
	"strings"

	"planforge/sql"
	"planforge/sql/store"
	"planforge/sql/tree"
)

// Operator is one node of an executable plan. The builder emits children
// before the operator that consumes them; a backend interprets the tree.
type Operator interface {
	// Width is the number of columns of the rows produced.
	Width() int
	Inputs() []Operator
	Describe() string
	common() *base
}

type base struct {
	Estimate    tree.CostEstimate
	hasEstimate bool
	// Subqueries are the plans of subqueries used by this operator's closures.
	Subqueries []*SubqueryPlan
}

func (b *base) common() *base { return b }

func (b *base) estimate(est tree.CostEstimate) {
	b.Estimate, b.hasEstimate = est, true
}

type LockMode int

const (
	LockShared LockMode = iota
	LockUpdate
)

func (m LockMode) String() string {
	if m == LockUpdate {
		return "update"
	}
	return "shared"
}

type Isolation int

const (
	ReadUncommitted Isolation = iota + 1
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "read_uncommitted"
	case ReadCommitted:
		return "read_committed"
	case RepeatableRead:
		return "repeatable_read"
	case Serializable:
		return "serializable"
	}
	return "?"
}

// ParseIsolation reads a configured isolation level name.
func ParseIsolation(s string) (Isolation, error) {
	for i := ReadUncommitted; i <= Serializable; i++ {
		if strings.EqualFold(strings.ReplaceAll(s, " ", "_"), i.String()) {
			return i, nil
		}
	}
	return 0, sql.ErrUnsupported.New("isolation level " + s)
}

// KeyPart bounds an index scan on one key column. Value is evaluated once
// per open of the scan.
type KeyPart struct {
	Column int
	Op     store.CompareOp
	Value  Expr
}

// TableScan reads a heap or an index. Rows carry the row location first
// when RowLocation is set, then Columns in order.
type TableScan struct {
	base
	Table       *store.TableDescriptor
	Index       *store.IndexDescriptor
	Columns     []int
	RowLocation bool
	Start       []KeyPart
	Stop        []KeyPart
	// Qualifiers are tested inside the scan.
	Qualifiers Pred
	// Requalify is tested again on the base row after a non-covering index fetch.
	Requalify Pred
	Covering  bool
	Lock      LockMode
	Isolation Isolation
	BulkFetch int
	names     []string
}

func (s *TableScan) Width() int {
	if s.RowLocation {
		return len(s.Columns) + 1
	}
	return len(s.Columns)
}

func (s *TableScan) Inputs() []Operator { return nil }

func (s *TableScan) Describe() string {
	var b strings.Builder
	if s.Index == nil {
		fmt.Fprintf(&b, "TableScan %s", s.Table.QualifiedName())
	} else {
		fmt.Fprintf(&b, "IndexScan %s using %s", s.Table.QualifiedName(), s.Index.Name)
		if s.Covering {
			b.WriteString(" covering")
		}
	}
	fmt.Fprintf(&b, " [%s]", strings.Join(s.names, ", "))
	if len(s.Start) > 0 || len(s.Stop) > 0 {
		fmt.Fprintf(&b, " start %s stop %s", keyString(s.Start), keyString(s.Stop))
	}
	if s.Qualifiers != nil {
		b.WriteString(" qualified")
	}
	fmt.Fprintf(&b, " lock=%s isolation=%s fetch=%d", s.Lock, s.Isolation, s.BulkFetch)
	return b.String()
}

func keyString(parts []KeyPart) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = fmt.Sprintf("#%d%s", p.Column, p.Op)
	}
	return "(" + strings.Join(out, ",") + ")"
}

// DerivedTable runs a query as a FROM entry. The query sees the enclosing
// blocks but not its siblings.
type DerivedTable struct {
	base
	Name  string
	Query Operator
}

func (d *DerivedTable) Width() int { return d.Query.Width() }

func (d *DerivedTable) Inputs() []Operator { return []Operator{d.Query} }

func (d *DerivedTable) Describe() string { return "DerivedTable " + d.Name }

// ProjectRestrict filters its input and, when Projection is set, computes
// a new row from each surviving one.
type ProjectRestrict struct {
	base
	Input       Operator
	Restriction Pred
	Projection  []Expr
	names       []string
}

func (p *ProjectRestrict) Width() int {
	if p.Projection != nil {
		return len(p.Projection)
	}
	return p.Input.Width()
}

func (p *ProjectRestrict) Inputs() []Operator { return []Operator{p.Input} }

func (p *ProjectRestrict) Describe() string {
	switch {
	case p.Projection != nil && p.Restriction != nil:
		return "ProjectRestrict [" + strings.Join(p.names, ", ") + "]"
	case p.Projection != nil:
		return "Project [" + strings.Join(p.names, ", ") + "]"
	}
	return "Restrict"
}

func joinName(t tree.JoinType) string {
	if t == tree.LeftOuterJoin {
		return " left outer"
	}
	return ""
}

// NestedLoopJoin opens Inner once per row of Outer, passing that row as the
// probe. A left outer join pads unmatched outer rows with NULLs.
type NestedLoopJoin struct {
	base
	Type  tree.JoinType
	Outer Operator
	Inner Operator
}

func (j *NestedLoopJoin) Width() int { return j.Outer.Width() + j.Inner.Width() }

func (j *NestedLoopJoin) Inputs() []Operator { return []Operator{j.Outer, j.Inner} }

func (j *NestedLoopJoin) Describe() string { return "NestedLoopJoin" + joinName(j.Type) }

// HashJoin builds a table over Inner once and probes it with each outer
// row. Restriction is tested on the joined row and is part of the match.
type HashJoin struct {
	base
	Type        tree.JoinType
	Outer       Operator
	Inner       Operator
	ProbeKeys   []Expr
	BuildKeys   []Expr
	Restriction Pred
	keyNames    []string
}

func (j *HashJoin) Width() int { return j.Outer.Width() + j.Inner.Width() }

func (j *HashJoin) Inputs() []Operator { return []Operator{j.Outer, j.Inner} }

func (j *HashJoin) Describe() string {
	return "HashJoin" + joinName(j.Type) + " on " + strings.Join(j.keyNames, ", ")
}

type SortKey struct {
	Column int
	Desc   bool
}

type Sort struct {
	base
	Input Operator
	Keys  []SortKey
}

func (s *Sort) Width() int { return s.Input.Width() }

func (s *Sort) Inputs() []Operator { return []Operator{s.Input} }

func (s *Sort) Describe() string {
	keys := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = fmt.Sprintf("#%d", k.Column+1)
		if k.Desc {
			keys[i] += " DESC"
		}
	}
	return "Sort [" + strings.Join(keys, ", ") + "]"
}

// Distinct removes duplicate rows by sorting on every column.
type Distinct struct {
	base
	Input Operator
}

func (d *Distinct) Width() int { return d.Input.Width() }

func (d *Distinct) Inputs() []Operator { return []Operator{d.Input} }

func (d *Distinct) Describe() string { return "Distinct" }

// Limit skips Offset rows and stops after Fetch; either may be nil.
type Limit struct {
	base
	Input  Operator
	Offset Expr
	Fetch  Expr
}

func (l *Limit) Width() int { return l.Input.Width() }

func (l *Limit) Inputs() []Operator { return []Operator{l.Input} }

func (l *Limit) Describe() string {
	parts := []string{"Limit"}
	if l.Offset != nil {
		parts = append(parts, "offset")
	}
	if l.Fetch != nil {
		parts = append(parts, "fetch")
	}
	return strings.Join(parts, " ")
}

type AggregateSpec struct {
	Func     tree.AggregateFunc
	Distinct bool
	Operand  Expr
	Type     *sql.DataTypeDescriptor
}

func (a AggregateSpec) String() string {
	if a.Distinct {
		return a.Func.String() + "(DISTINCT)"
	}
	return a.Func.String()
}

// GroupAggregate emits one row per group: a representative input row
// followed by one column per aggregate. Without GROUP BY the whole input
// is one group, even when empty.
type GroupAggregate struct {
	base
	Input      Operator
	GroupBy    []Expr
	Aggregates []AggregateSpec
}

func (g *GroupAggregate) Width() int { return g.Input.Width() + len(g.Aggregates) }

func (g *GroupAggregate) Inputs() []Operator { return []Operator{g.Input} }

func (g *GroupAggregate) Describe() string {
	aggs := make([]string, len(g.Aggregates))
	for i, a := range g.Aggregates {
		aggs[i] = a.String()
	}
	if len(g.GroupBy) == 0 {
		return "ScalarAggregate [" + strings.Join(aggs, ", ") + "]"
	}
	return fmt.Sprintf("GroupAggregate %d keys [%s]", len(g.GroupBy), strings.Join(aggs, ", "))
}

// RowNumber appends Count copies of the 1-based row number.
type RowNumber struct {
	base
	Input Operator
	Count int
}

func (r *RowNumber) Width() int { return r.Input.Width() + r.Count }

func (r *RowNumber) Inputs() []Operator { return []Operator{r.Input} }

func (r *RowNumber) Describe() string { return "RowNumber" }

// Union concatenates its inputs; without ALL duplicates are removed.
type Union struct {
	base
	All   bool
	Left  Operator
	Right Operator
}

func (u *Union) Width() int { return u.Left.Width() }

func (u *Union) Inputs() []Operator { return []Operator{u.Left, u.Right} }

func (u *Union) Describe() string {
	if u.All {
		return "Union all"
	}
	return "Union distinct"
}

// SetOp is INTERSECT or EXCEPT computed by merging both inputs sorted on
// every column.
type SetOp struct {
	base
	Op    tree.SetOpType
	All   bool
	Left  Operator
	Right Operator
}

func (s *SetOp) Width() int { return s.Left.Width() }

func (s *SetOp) Inputs() []Operator { return []Operator{s.Left, s.Right} }

func (s *SetOp) Describe() string {
	d := "SortedMerge " + s.Op.String()
	if s.All {
		d += " all"
	}
	return d
}

// Values produces fixed rows.
type Values struct {
	base
	Rows  [][]Expr
	width int
}

func (v *Values) Width() int { return v.width }

func (v *Values) Inputs() []Operator { return nil }

func (v *Values) Describe() string { return fmt.Sprintf("Values %d rows", len(v.Rows)) }

// CursorResult tracks the row location of the current row of an updatable
// cursor. Its input carries the row location last; it is not returned.
type CursorResult struct {
	base
	Name          string
	Input         Operator
	Target        *store.TableDescriptor
	UpdateColumns []string
}

func (c *CursorResult) Width() int { return c.Input.Width() - 1 }

func (c *CursorResult) Inputs() []Operator { return []Operator{c.Input} }

func (c *CursorResult) Describe() string {
	return fmt.Sprintf("Cursor %s for update of %s (%s)", c.Name, c.Target.QualifiedName(), strings.Join(c.UpdateColumns, ", "))
}

// The DML operators produce a single row holding the affected-row count.

type Insert struct {
	base
	Table   *store.TableDescriptor
	Columns []*store.ColumnDescriptor
	Source  Operator
}

func (i *Insert) Width() int { return 1 }

func (i *Insert) Inputs() []Operator { return []Operator{i.Source} }

func (i *Insert) Describe() string { return "Insert into " + i.Table.QualifiedName() }

// SetColumn takes the new value of Column from position Source of the source row.
type SetColumn struct {
	Column *store.ColumnDescriptor
	Source int
}

// Update reads source rows laid out as the row location, every table
// column, then one new value per SET clause.
type Update struct {
	base
	Table     *store.TableDescriptor
	Set       []SetColumn
	CurrentOf string
	Source    Operator
}

func (u *Update) Width() int { return 1 }

func (u *Update) Inputs() []Operator { return []Operator{u.Source} }

func (u *Update) Describe() string {
	names := make([]string, len(u.Set))
	for i, s := range u.Set {
		names[i] = s.Column.Name
	}
	d := "Update " + u.Table.QualifiedName() + " set " + strings.Join(names, ", ")
	if u.CurrentOf != "" {
		d += " where current of " + u.CurrentOf
	}
	return d
}

// Delete reads source rows whose first column is the row location.
type Delete struct {
	base
	Table     *store.TableDescriptor
	CurrentOf string
	Source    Operator
}

func (d *Delete) Width() int { return 1 }

func (d *Delete) Inputs() []Operator { return []Operator{d.Source} }

func (d *Delete) Describe() string {
	s := "Delete from " + d.Table.QualifiedName()
	if d.CurrentOf != "" {
		s += " where current of " + d.CurrentOf
	}
	return s
}

// MergeClause picks driving rows for one action. When is the position of
// the clause condition, or -1; Values are positions of inserted values.
type MergeClause struct {
	Matched bool
	When    int
	Action  tree.MergeAction
	Columns []*store.ColumnDescriptor
	Values  []int
}

func (c MergeClause) String() string {
	s := "WHEN NOT MATCHED"
	if c.Matched {
		s = "WHEN MATCHED"
	}
	if c.When >= 0 {
		s += fmt.Sprintf(" AND #%d", c.When+1)
	}
	return s + " THEN " + c.Action.String()
}

// Merge drives its clauses from a left outer join of the source to the
// target whose first column is the target row location. Each driving row
// goes to the first clause it satisfies; every clause buffers its rows
// before its action runs.
type Merge struct {
	base
	Table   *store.TableDescriptor
	Clauses []MergeClause
	Driving Operator
}

func (m *Merge) Width() int { return 1 }

func (m *Merge) Inputs() []Operator { return []Operator{m.Driving} }

func (m *Merge) Describe() string {
	parts := make([]string, len(m.Clauses))
	for i, c := range m.Clauses {
		parts[i] = c.String()
	}
	return "Merge into " + m.Table.QualifiedName() + ": " + strings.Join(parts, "; ")
}

// CreateTable carries a checked table definition; the backend decides
// whether to apply it.
type CreateTable struct {
	base
	Schema  string
	Name    string
	Columns []*store.ColumnDescriptor
	Indexes []*store.IndexDescriptor
}

func (c *CreateTable) Width() int { return 1 }

func (c *CreateTable) Inputs() []Operator { return nil }

func (c *CreateTable) Describe() string {
	return fmt.Sprintf("CreateTable %s.%s (%d columns, %d indexes)", c.Schema, c.Name, len(c.Columns), len(c.Indexes))
}
