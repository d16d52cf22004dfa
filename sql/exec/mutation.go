package exec

import (
	"planforge/logger"
	"planforge/sql"
	"planforge/sql/plan"
	"planforge/sql/store"
	"planforge/sql/tree"
)

// CursorExec strips the trailing row location from every row and keeps it
// alongside for positioned statements.
type CursorExec struct {
	Source Executor
}

func (c *CursorExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := c.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	out := &ResultSet{Rows: make([]sql.Row, len(in.Rows)), Locations: make([]sql.Value, len(in.Rows))}
	for i, row := range in.Rows {
		last := len(row) - 1
		out.Rows[i], out.Locations[i] = row[:last], row[last]
	}
	return out, nil
}

// newRow builds a full table row from values for columns: the remaining
// columns take their default or NULL. Values are converted to the column
// type and NOT NULL columns are checked.
func newRow(table *store.TableDescriptor, columns []*store.ColumnDescriptor, values sql.Row) (sql.Row, error) {
	row := make(sql.Row, len(table.Columns))
	set := make([]bool, len(table.Columns))
	for i, col := range columns {
		row[col.Position-1], set[col.Position-1] = values[i], true
	}
	for i, col := range table.Columns {
		if !set[i] && col.Default != nil {
			row[i] = *col.Default
		}
	}
	return checkRow(table, row)
}

func checkRow(table *store.TableDescriptor, row sql.Row) (sql.Row, error) {
	for i, col := range table.Columns {
		if row[i].IsNull() {
			if !col.Type.Nullable {
				return nil, sql.ErrNullNotAllowed.New(table.Name, col.Name)
			}
			row[i] = sql.NewNull(col.Type.TypeID)
			continue
		}
		v, err := row[i].Convert(col.Type)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

type InsertExec struct {
	Source Executor
	Node   *plan.Insert
}

func (i *InsertExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := i.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	for _, values := range in.Rows {
		if _, err := newRow(i.Node.Table, i.Node.Columns, values); err != nil {
			return nil, err
		}
	}
	return CountRow(len(in.Rows)), nil
}

// positioned keeps the source rows at the row location of cursor.
func positioned(x *plan.Execution, cursor string, rows []sql.Row) ([]sql.Row, error) {
	if cursor == "" {
		return rows, nil
	}
	pos, ok := x.Positions[cursor]
	if !ok || pos.IsNull() {
		return nil, sql.ErrCursorNotPositioned.New(cursor)
	}
	var out []sql.Row
	for _, r := range rows {
		if r[0].Equal(pos) {
			out = append(out, r)
		}
	}
	return out, nil
}

type UpdateExec struct {
	Source Executor
	Node   *plan.Update
}

func (u *UpdateExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := u.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	rows, err := positioned(outer.X, u.Node.CurrentOf, in.Rows)
	if err != nil {
		return nil, err
	}
	n := len(u.Node.Table.Columns)
	updated := newRowSet[struct{}]()
	count := 0
	for _, r := range rows {
		if !updated.upsert(r[:1], func(struct{}) struct{} { return struct{}{} }) {
			continue
		}
		next := append(sql.Row(nil), r[1:1+n]...)
		for _, s := range u.Node.Set {
			next[s.Column.Position-1] = r[s.Source]
		}
		if _, err := checkRow(u.Node.Table, next); err != nil {
			return nil, err
		}
		count++
	}
	return CountRow(count), nil
}

type DeleteExec struct {
	Source Executor
	Node   *plan.Delete
}

func (d *DeleteExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := d.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	rows, err := positioned(outer.X, d.Node.CurrentOf, in.Rows)
	if err != nil {
		return nil, err
	}
	deleted := newRowSet[struct{}]()
	count := 0
	for _, r := range rows {
		if deleted.upsert(r[:1], func(struct{}) struct{} { return struct{}{} }) {
			count++
		}
	}
	return CountRow(count), nil
}

// MergeExec sends each driving row to the first clause whose matched state
// and condition it satisfies. Clauses run after every row is routed.
type MergeExec struct {
	Driving Executor
	Node    *plan.Merge
}

func (m *MergeExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := m.Driving.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	buffered := make([][]sql.Row, len(m.Node.Clauses))
	touched := newRowSet[struct{}]()
	for _, row := range in.Rows {
		matched := !row[0].IsNull()
		if matched && !touched.upsert(row[:1], func(struct{}) struct{} { return struct{}{} }) {
			return nil, sql.ErrMergeCardinality.New(row[0].String(), m.Node.Table.QualifiedName())
		}
		for i, c := range m.Node.Clauses {
			if c.Matched != matched {
				continue
			}
			if c.When >= 0 {
				if b, ok := row[c.When].V.(bool); !ok || !b {
					continue
				}
			}
			buffered[i] = append(buffered[i], row)
			break
		}
	}

	count := 0
	for i, c := range m.Node.Clauses {
		for _, row := range buffered[i] {
			if c.Action == tree.MergeInsert {
				values := make(sql.Row, len(c.Values))
				for j, pos := range c.Values {
					values[j] = row[pos]
				}
				if _, err := newRow(m.Node.Table, c.Columns, values); err != nil {
					return nil, err
				}
			}
			count++
		}
	}
	return CountRow(count), nil
}

// CreateTableExec accepts a table definition without creating it.
type CreateTableExec struct {
	Node *plan.CreateTable
}

func (c *CreateTableExec) Execute(*plan.Env, sql.Row) (*ResultSet, error) {
	logger.Debugf("dry run of %s", c.Node.Describe())
	return CountRow(0), nil
}
