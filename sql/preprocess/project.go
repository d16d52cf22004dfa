package preprocess

import (
	"sort"

	"modernc.org/sortutil"

	"planforge/sql/tree"
)

// project wraps every table in a ProjectRestrict that keeps only the columns
// referenced anywhere in the statement.
func (p *Preprocessor) project(root tree.ResultSetNode) {
	used := map[int][]int{}
	var selects []*tree.Select
	tree.Walk(root, func(n tree.Node) bool {
		switch t := n.(type) {
		case *tree.ColumnReference:
			used[t.TableNumber] = append(used[t.TableNumber], t.ColumnNumber)
		case *tree.Select:
			selects = append(selects, t)
		}
		return true
	})
	for table, cols := range used {
		sort.Ints(cols)
		used[table] = cols[:sortutil.Dedupe(sort.IntSlice(cols))]
	}
	for _, sel := range selects {
		for i, f := range sel.From {
			sel.From[i] = p.wrap(f, used)
		}
	}
}

func (p *Preprocessor) wrap(f tree.FromTable, used map[int][]int) tree.FromTable {
	switch t := f.(type) {
	case *tree.Join:
		t.Left, t.Right = p.wrap(t.Left, used), p.wrap(t.Right, used)
		return t
	case *tree.ProjectRestrict:
		return t
	}
	var cols tree.ResultColumnList
	all := f.ResultColumns()
	for _, n := range used[f.TableNumber()] {
		for _, rc := range all {
			if columnNumber(rc) == n {
				rc.Referenced = true
				cols = append(cols, rc)
				break
			}
		}
	}
	return p.f.ProjectRestrict(f, cols)
}

// columnNumber is the number a column reference uses for rc.
func columnNumber(rc *tree.ResultColumn) int {
	if rc.Column != nil {
		return rc.Column.Position
	}
	return rc.Position
}
