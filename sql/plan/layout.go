package plan

import (
	"planforge/sql"
	"planforge/sql/tree"
)

// slot names one column of a row flowing between operators: either a table
// column, keyed by table and column number, or a generated result column.
type slot struct {
	table  int
	column int
	rc     *tree.ResultColumn
}

// Layout maps the columns of a row to their positions.
type Layout []slot

func tableSlot(table, column int) slot { return slot{table: table, column: column} }

func virtualSlot(rc *tree.ResultColumn) slot { return slot{table: -1, column: -1, rc: rc} }

func (l Layout) column(table, column int) int {
	for i, s := range l {
		if s.rc == nil && s.table == table && s.column == column {
			return i
		}
	}
	return -1
}

func (l Layout) virtual(rc *tree.ResultColumn) int {
	for i, s := range l {
		if s.rc == rc {
			return i
		}
	}
	return -1
}

func concatLayouts(a, b Layout) Layout {
	out := make(Layout, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

// scope is the compile-time mirror of Env: the layouts of Row and Probe at
// one nesting level, and the scope of the enclosing block.
type scope struct {
	level  int
	row    Layout
	probe  Layout
	parent *scope
}

func (s *scope) with(row, probe Layout) *scope {
	return &scope{level: s.level, row: row, probe: probe, parent: s.parent}
}

// nested opens the scope of a block one level below s.
func (s *scope) nested() *scope {
	return &scope{level: s.level + 1, parent: s}
}

// resolveColumn compiles a column reference into a read of the right row.
func (s *scope) resolveColumn(cr *tree.ColumnReference) (Expr, error) {
	hops := s.level - cr.SourceLevel
	target := s
	for i := 0; i < hops && target != nil; i++ {
		target = target.parent
	}
	if hops < 0 || target == nil {
		return nil, sql.ErrInternal.New("column " + cr.String() + " refers to a block that is not open")
	}
	if i := target.row.column(cr.TableNumber, cr.ColumnNumber); i >= 0 {
		return readRow(hops, i), nil
	}
	if i := target.probe.column(cr.TableNumber, cr.ColumnNumber); i >= 0 {
		return readProbe(hops, i), nil
	}
	return nil, sql.ErrInternal.New("column " + cr.String() + " is not produced below its reference")
}

func (s *scope) resolveVirtual(vc *tree.VirtualColumn) (Expr, error) {
	if i := s.row.virtual(vc.Source); i >= 0 {
		return readRow(0, i), nil
	}
	if i := s.probe.virtual(vc.Source); i >= 0 {
		return readProbe(0, i), nil
	}
	return nil, sql.ErrInternal.New("generated column " + vc.Source.Name + " is not produced below its reference")
}

func readRow(hops, i int) Expr {
	return func(env *Env) (sql.Value, error) {
		e := env.up(hops)
		if e == nil || i >= len(e.Row) {
			return sql.Value{}, sql.ErrInternal.New("row is narrower than its layout")
		}
		return e.Row[i], nil
	}
}

func readProbe(hops, i int) Expr {
	return func(env *Env) (sql.Value, error) {
		e := env.up(hops)
		if e == nil || i >= len(e.Probe) {
			return sql.Value{}, sql.ErrInternal.New("probe row is narrower than its layout")
		}
		return e.Probe[i], nil
	}
}
