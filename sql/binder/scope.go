package binder

import (
	"strings"

	"planforge/sql"
	"planforge/sql/tree"
)

// entry is one table exposed to name resolution.
type entry struct {
	name  string
	table tree.FromTable
	// nullable marks the null-producing side of an outer join.
	nullable bool
}

// scope is the name space of one query block. Lookups that miss walk out
// through the enclosing blocks, which is how correlated references resolve.
type scope struct {
	parent  *scope
	level   int
	entries []*entry
	block   *tree.Select
}

func newScope(parent *scope, level int, block *tree.Select) *scope {
	return &scope{parent: parent, level: level, block: block}
}

func (s *scope) add(e *entry) error {
	for _, o := range s.entries {
		if e.name != "" && o.name == e.name {
			return sql.ErrDuplicateCorrelationName.New(e.name)
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *scope) find(table string) *entry {
	for _, e := range s.entries {
		if e.name == table {
			return e
		}
	}
	return nil
}

type match struct {
	entry  *entry
	column *tree.ResultColumn
	level  int
}

// resolve finds the column name, qualified by table when table is not empty.
func (s *scope) resolve(table, column string) (*match, error) {
	table, column = strings.ToUpper(table), strings.ToUpper(column)
	for sc := s; sc != nil; sc = sc.parent {
		var found *match
		for _, e := range sc.entries {
			if table != "" && e.name != table && !qualifiedMatch(e, table) {
				continue
			}
			rc := e.table.ResultColumns().Find(column)
			if rc == nil {
				continue
			}
			if found != nil {
				return nil, sql.ErrAmbiguousColumn.New(column, found.entry.name+"."+column, e.name+"."+column)
			}
			found = &match{entry: e, column: rc, level: sc.level}
		}
		if found != nil {
			return found, nil
		}
	}
	if table != "" {
		return nil, sql.ErrColumnNotFound.New(table + "." + column)
	}
	return nil, sql.ErrColumnNotFound.New(column)
}

// qualifiedMatch accepts SCHEMA.TABLE for an uncorrelated base table.
func qualifiedMatch(e *entry, table string) bool {
	bt, ok := e.table.(*tree.FromBaseTable)
	if !ok || bt.Correlation != "" {
		return false
	}
	return bt.Schema+"."+bt.TableName == table
}
