// Package exec interprets plans over an in-memory store. Every operator is
// materialized; DML operators validate and count the rows they would
// change without writing them.
package exec

import (
	"fmt"
	"sync/atomic"

	"planforge/logger"
	"planforge/sql"
	"planforge/sql/plan"
	"planforge/sql/store"
)

// Storage is the part of the store the executors read.
type Storage interface {
	Rows(id uint64) ([]sql.Row, error)
	ScanIndex(id uint64, r store.KeyRange, fn func(rowID int, row sql.Row) bool) error
}

type Stats struct {
	Accepted   int64
	HeapScans  int64
	IndexScans int64
	// Fetches counts the batches scans handed up.
	Fetches     int64
	UpdateLocks int64
}

type Backend struct {
	storage    Storage
	accepted   atomic.Int64
	heapScans  atomic.Int64
	indexScans atomic.Int64
	fetches    atomic.Int64
	locks      atomic.Int64
}

func New(storage Storage) *Backend {
	return &Backend{storage: storage}
}

func (b *Backend) Stats() Stats {
	return Stats{
		Accepted:    b.accepted.Load(),
		HeapScans:   b.heapScans.Load(),
		IndexScans:  b.indexScans.Load(),
		Fetches:     b.fetches.Load(),
		UpdateLocks: b.locks.Load(),
	}
}

// Accept checks that the conglomerates an operator reads exist.
func (b *Backend) Accept(op plan.Operator) error {
	b.accepted.Add(1)
	scan, ok := op.(*plan.TableScan)
	if !ok {
		return nil
	}
	if _, err := b.storage.Rows(scan.Table.ConglomerateID); err != nil {
		return err
	}
	if scan.Index != nil {
		for _, ix := range scan.Table.Indexes {
			if ix.ConglomerateID == scan.Index.ConglomerateID {
				return nil
			}
		}
		return sql.ErrObjectNotFound.New("INDEX", scan.Index.Name)
	}
	return nil
}

func (b *Backend) Open(op plan.Operator, outer *plan.Env) (plan.RowStream, error) {
	ex, err := b.ExecBuild(op)
	if err != nil {
		return nil, err
	}
	rs, err := ex.Execute(outer, nil)
	if err != nil {
		return nil, err
	}
	return &rowStream{rs: rs, pos: -1}, nil
}

// ResultSet is a materialized operator result. Locations is set only by
// an updatable cursor and holds the row location of each row.
type ResultSet struct {
	Rows      []sql.Row
	Locations []sql.Value
}

// Executor runs one operator for the rows of the enclosing block in outer
// and, inside a join, the composite row probe of the tables before it.
type Executor interface {
	Execute(outer *plan.Env, probe sql.Row) (*ResultSet, error)
}

func (b *Backend) ExecBuild(op plan.Operator) (Executor, error) {
	var children []Executor
	for _, in := range op.Inputs() {
		ex, err := b.ExecBuild(in)
		if err != nil {
			return nil, err
		}
		children = append(children, ex)
	}
	switch v := op.(type) {
	case *plan.TableScan:
		return &ScanExec{b: b, Scan: v}, nil
	case *plan.DerivedTable:
		return &DerivedExec{Query: children[0]}, nil
	case *plan.ProjectRestrict:
		return &ProjectRestrictExec{Source: children[0], Restriction: v.Restriction, Projection: v.Projection}, nil
	case *plan.Values:
		return &ValuesExec{Rows: v.Rows}, nil
	case *plan.NestedLoopJoin:
		return &NestedLoopJoinExec{Outer: children[0], Inner: children[1], Type: v.Type, InnerWidth: v.Inner.Width()}, nil
	case *plan.HashJoin:
		return &HashJoinExec{Outer: children[0], Inner: children[1], Join: v}, nil
	case *plan.Sort:
		return &SortExec{Source: children[0], Keys: v.Keys}, nil
	case *plan.Distinct:
		return &DistinctExec{Source: children[0], Width: v.Width()}, nil
	case *plan.Limit:
		return &LimitExec{Source: children[0], Offset: v.Offset, Fetch: v.Fetch}, nil
	case *plan.GroupAggregate:
		return &AggregationExec{Source: children[0], Node: v}, nil
	case *plan.RowNumber:
		return &RowNumberExec{Source: children[0], Count: v.Count}, nil
	case *plan.Union:
		return &UnionExec{Left: children[0], Right: children[1], All: v.All, Width: v.Width()}, nil
	case *plan.SetOp:
		return &SetOpExec{Left: children[0], Right: children[1], Node: v}, nil
	case *plan.CursorResult:
		return &CursorExec{Source: children[0]}, nil
	case *plan.Insert:
		return &InsertExec{Source: children[0], Node: v}, nil
	case *plan.Update:
		return &UpdateExec{Source: children[0], Node: v}, nil
	case *plan.Delete:
		return &DeleteExec{Source: children[0], Node: v}, nil
	case *plan.Merge:
		return &MergeExec{Driving: children[0], Node: v}, nil
	case *plan.CreateTable:
		return &CreateTableExec{Node: v}, nil
	}
	logger.Errorf("no executor for %T", op)
	return nil, sql.ErrUnsupported.New(fmt.Sprintf("executing %T", op))
}

func envOf(outer *plan.Env, row, probe sql.Row) *plan.Env {
	return &plan.Env{Row: row, Probe: probe, Outer: outer, X: outer.X}
}

func concatRows(a, b sql.Row) sql.Row {
	out := make(sql.Row, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

func nullRow(width int) sql.Row {
	return make(sql.Row, width)
}

// rowStream hands out the rows of a result set.
type rowStream struct {
	rs  *ResultSet
	pos int
}

func (s *rowStream) Next() (sql.Row, bool, error) {
	if s.pos+1 >= len(s.rs.Rows) {
		s.pos = len(s.rs.Rows)
		return nil, false, nil
	}
	s.pos++
	return s.rs.Rows[s.pos], true, nil
}

func (s *rowStream) Close() error { return nil }

// Position returns the row location of the current row of an updatable
// cursor.
func (s *rowStream) Position() (sql.Value, bool) {
	if s.rs.Locations == nil || s.pos < 0 || s.pos >= len(s.rs.Locations) {
		return sql.Value{}, false
	}
	return s.rs.Locations[s.pos], true
}

// CountRow is the single row of a DML result.
func CountRow(n int) *ResultSet {
	return &ResultSet{Rows: []sql.Row{{sql.NewBigint(int64(n))}}}
}
