package tree

import (
	"fmt"
	"strings"

	"planforge/sql"
	"planforge/sql/store"
)

// ResultColumn is one column of a result set. For base tables Expression is
// nil and Column describes the stored column.
type ResultColumn struct {
	valueBase
	Name       string
	TableName  string
	Expression ValueNode
	// Position is 1-based within the owning list.
	Position   int
	Column     *store.ColumnDescriptor
	Referenced bool
	Generated  bool
}

func (r *ResultColumn) Kind() Kind { return KindResultColumn }

func (r *ResultColumn) Children() []Node { return valueChildren(r.Expression) }

func (r *ResultColumn) Type() *sql.DataTypeDescriptor {
	if r.typ != nil {
		return r.typ
	}
	if r.Expression != nil {
		return r.Expression.Type()
	}
	if r.Column != nil {
		return r.Column.Type
	}
	return nil
}

func generatedName(prefix string, n int) string {
	prefix = strings.NewReplacer("(", "", ")", "", "*", "STAR").Replace(prefix)
	return fmt.Sprintf("SQL%s%d", prefix, n)
}

type ResultColumnList []*ResultColumn

// Append adds rc and assigns its position.
func (l *ResultColumnList) Append(rc *ResultColumn) {
	*l = append(*l, rc)
	rc.Position = len(*l)
}

// Find returns the column exposed under name, or nil.
func (l ResultColumnList) Find(name string) *ResultColumn {
	name = strings.ToUpper(name)
	for _, rc := range l {
		if rc.Name == name {
			return rc
		}
	}
	return nil
}

func (l ResultColumnList) Names() []string {
	out := make([]string, len(l))
	for i, rc := range l {
		out[i] = rc.Name
	}
	return out
}

func (l ResultColumnList) Types() []*sql.DataTypeDescriptor {
	out := make([]*sql.DataTypeDescriptor, len(l))
	for i, rc := range l {
		out[i] = rc.Type()
	}
	return out
}

// Renumber reassigns positions after columns were removed.
func (l ResultColumnList) Renumber() {
	for i, rc := range l {
		rc.Position = i + 1
	}
}

func (l ResultColumnList) nodes() nodeList {
	out := make(nodeList, len(l))
	for i, rc := range l {
		out[i] = rc
	}
	return out
}
