package exec

import (
	"planforge/sql"
	"planforge/sql/plan"
	"planforge/sql/store"
)

type ScanExec struct {
	b    *Backend
	Scan *plan.TableScan
}

func (s *ScanExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	scan := s.Scan
	env := envOf(outer, nil, probe)
	var rows []sql.Row
	emit := func(rowID int, base sql.Row) (bool, error) {
		row := make(sql.Row, 0, scan.Width())
		if scan.RowLocation {
			row = append(row, sql.NewBigint(int64(rowID)))
		}
		for _, pos := range scan.Columns {
			row = append(row, base[pos-1])
		}
		env.Row = row
		ok, err := plan.Passes(scan.Qualifiers, env)
		if err != nil || !ok {
			return false, err
		}
		if !scan.Covering && scan.Index != nil {
			if ok, err = plan.Passes(scan.Requalify, env); err != nil || !ok {
				return false, err
			}
		}
		rows = append(rows, row)
		return true, nil
	}

	var scanErr error
	if scan.Index == nil {
		s.b.heapScans.Add(1)
		base, err := s.b.storage.Rows(scan.Table.ConglomerateID)
		if err != nil {
			return nil, err
		}
		for id, r := range base {
			if _, err := emit(id, r); err != nil {
				return nil, err
			}
		}
	} else {
		s.b.indexScans.Add(1)
		kr, empty, err := keyRange(scan, env)
		if err != nil {
			return nil, err
		}
		if !empty {
			err = s.b.storage.ScanIndex(scan.Index.ConglomerateID, kr, func(id int, r sql.Row) bool {
				if _, scanErr = emit(id, r); scanErr != nil {
					return false
				}
				return true
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if scan.Lock == plan.LockUpdate {
		s.b.locks.Add(int64(len(rows)))
	}
	if n := len(rows); n > 0 && scan.BulkFetch > 0 {
		s.b.fetches.Add(int64((n + scan.BulkFetch - 1) / scan.BulkFetch))
	}
	return &ResultSet{Rows: rows}, nil
}

// keyRange positions an index scan. Bounds are taken along the key columns
// while they are fixed by equality; a NULL key value matches nothing.
func keyRange(scan *plan.TableScan, env *plan.Env) (store.KeyRange, bool, error) {
	var kr store.KeyRange
	start, startIncl, empty, err := bound(scan, scan.Start, env, store.OpGT, store.OpGE)
	if err != nil || empty {
		return kr, empty, err
	}
	stop, stopIncl, empty, err := bound(scan, scan.Stop, env, store.OpLT, store.OpLE)
	if err != nil || empty {
		return kr, empty, err
	}
	kr.Start, kr.StartInclusive = start, startIncl
	kr.Stop, kr.StopInclusive = stop, stopIncl
	return kr, false, nil
}

func bound(scan *plan.TableScan, parts []plan.KeyPart, env *plan.Env, strict, inclusive store.CompareOp) (sql.Row, bool, bool, error) {
	var key sql.Row
	for _, col := range scan.Index.Columns {
		var found *plan.KeyPart
		for i := range parts {
			if parts[i].Column != col {
				continue
			}
			if parts[i].Op == store.OpEQ {
				found = &parts[i]
				break
			}
			if found == nil && (parts[i].Op == strict || parts[i].Op == inclusive) {
				found = &parts[i]
			}
		}
		if found == nil {
			break
		}
		v, err := found.Value(env)
		if err != nil {
			return nil, false, false, err
		}
		if v.IsNull() {
			return nil, false, true, nil
		}
		key = append(key, v)
		if found.Op != store.OpEQ {
			return key, found.Op == inclusive, false, nil
		}
	}
	return key, true, false, nil
}

// DerivedExec runs a derived table's query in a block of its own.
type DerivedExec struct {
	Query Executor
}

func (d *DerivedExec) Execute(outer *plan.Env, _ sql.Row) (*ResultSet, error) {
	return d.Query.Execute(&plan.Env{Outer: outer, X: outer.X}, nil)
}

type ProjectRestrictExec struct {
	Source      Executor
	Restriction plan.Pred
	Projection  []plan.Expr
}

func (p *ProjectRestrictExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	in, err := p.Source.Execute(outer, probe)
	if err != nil {
		return nil, err
	}
	out := &ResultSet{}
	for i, row := range in.Rows {
		env := envOf(outer, row, probe)
		ok, err := plan.Passes(p.Restriction, env)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if p.Projection != nil {
			next := make(sql.Row, len(p.Projection))
			for j, e := range p.Projection {
				if next[j], err = e(env); err != nil {
					return nil, err
				}
			}
			row = next
		}
		out.Rows = append(out.Rows, row)
		if in.Locations != nil {
			out.Locations = append(out.Locations, in.Locations[i])
		}
	}
	return out, nil
}

type ValuesExec struct {
	Rows [][]plan.Expr
}

func (v *ValuesExec) Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error) {
	env := envOf(outer, nil, probe)
	out := &ResultSet{}
	for _, exprs := range v.Rows {
		row := make(sql.Row, len(exprs))
		for i, e := range exprs {
			var err error
			if row[i], err = e(env); err != nil {
				return nil, err
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
