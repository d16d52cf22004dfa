package tree

import (
	"planforge/sql/store"
)

type UpdateMode int

const (
	ReadOnly UpdateMode = iota
	Updatable
)

// Cursor wraps every query statement; named cursors may be updatable.
type Cursor struct {
	nodeBase
	Name          string
	Query         ResultSetNode
	UpdateMode    UpdateMode
	UpdateColumns []string
	// Target is the single base table an updatable cursor positions on.
	Target *FromBaseTable
}

func (c *Cursor) Kind() Kind { return KindCursor }

func (c *Cursor) Children() []Node { return []Node{c.Query} }

func (c *Cursor) StatementName() string { return "SELECT" }

type Insert struct {
	nodeBase
	Target        *store.TableDescriptor
	TargetColumns []*store.ColumnDescriptor
	Source        ResultSetNode
}

func (i *Insert) Kind() Kind { return KindInsert }

func (i *Insert) Children() []Node { return []Node{i.Source} }

func (i *Insert) StatementName() string { return "INSERT" }

type SetClause struct {
	Column *store.ColumnDescriptor
	Value  ValueNode
}

// Update is compiled as a scan of the target producing the row location,
// the current row, and the new column values.
type Update struct {
	nodeBase
	Target    *FromBaseTable
	Set       []*SetClause
	Where     ValueNode
	CurrentOf string
	Source    *Select
}

func (u *Update) Kind() Kind { return KindUpdate }

func (u *Update) Children() []Node {
	if u.Source != nil {
		return []Node{u.Source}
	}
	out := valueChildren(u.Where).withNodes(u.Target)
	for _, s := range u.Set {
		out = append(out, s.Value)
	}
	return out
}

func (u *Update) StatementName() string { return "UPDATE" }

type Delete struct {
	nodeBase
	Target    *FromBaseTable
	Where     ValueNode
	CurrentOf string
	Source    *Select
}

func (d *Delete) Kind() Kind { return KindDelete }

func (d *Delete) Children() []Node {
	if d.Source != nil {
		return []Node{d.Source}
	}
	return valueChildren(d.Where).withNodes(d.Target)
}

func (d *Delete) StatementName() string { return "DELETE" }

type MergeAction int

const (
	MergeUpdate MergeAction = iota + 1
	MergeDelete
	MergeInsert
)

func (a MergeAction) String() string {
	switch a {
	case MergeUpdate:
		return "UPDATE"
	case MergeDelete:
		return "DELETE"
	case MergeInsert:
		return "INSERT"
	}
	return "?"
}

type MatchingClause struct {
	nodeBase
	Matched bool
	And     ValueNode
	Action  MergeAction
	Set     []*SetClause
	Columns []*store.ColumnDescriptor
	Values  []ValueNode
}

func (m *MatchingClause) Kind() Kind { return KindMatchingClause }

func (m *MatchingClause) Children() []Node {
	out := valueChildren(m.And)
	out = append(out, valueChildren(m.Values...)...)
	for _, s := range m.Set {
		out = append(out, s.Value)
	}
	return out
}

// Merge drives its actions from a left outer join of the source to the target.
type Merge struct {
	nodeBase
	Target  *FromBaseTable
	Source  FromTable
	On      ValueNode
	Clauses []*MatchingClause
	Driving *Select
}

func (m *Merge) Kind() Kind { return KindMerge }

func (m *Merge) Children() []Node {
	var out nodeList
	if m.Driving != nil {
		out = append(out, m.Driving)
	} else {
		out = valueChildren(m.On).withNodes(m.Target, m.Source)
	}
	for _, c := range m.Clauses {
		out = append(out, c)
	}
	return out
}

func (m *Merge) StatementName() string { return "MERGE" }

type CreateTable struct {
	nodeBase
	Schema      string
	Name        string
	Columns     []*store.ColumnDescriptor
	Constraints []*store.ConstraintDescriptor
	// Indexes includes the backing index of every key constraint.
	Indexes []*store.IndexDescriptor
}

func (c *CreateTable) Kind() Kind { return KindCreateTable }

func (c *CreateTable) Children() []Node { return nil }

func (c *CreateTable) StatementName() string { return "CREATE TABLE" }
