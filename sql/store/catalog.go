package store

import (
	"fmt"
	"strings"

	"planforge/sql"
)

// DefaultSchema is used for unqualified table names.
const DefaultSchema = "APP"

type ColumnDescriptor struct {
	Name string
	Type *sql.DataTypeDescriptor
	// Position is 1-based.
	Position int
	Default  *sql.Value
}

func NewColumn(name string, t *sql.DataTypeDescriptor) *ColumnDescriptor {
	return &ColumnDescriptor{Name: strings.ToUpper(name), Type: t}
}

func (c *ColumnDescriptor) String() string {
	s := c.Name + " " + c.Type.String()
	if c.Default != nil {
		s += " DEFAULT " + c.Default.Literal()
	}
	return s
}

type IndexDescriptor struct {
	Name           string
	ConglomerateID uint64
	// Columns are 1-based table column positions in key order.
	Columns []int
	Unique  bool
}

// Covers reports whether every column in columns is part of the index key.
func (ix *IndexDescriptor) Covers(columns []int) bool {
	for _, c := range columns {
		if ix.KeyPosition(c) < 0 {
			return false
		}
	}
	return true
}

// KeyPosition returns the 0-based key position of a table column, or -1.
func (ix *IndexDescriptor) KeyPosition(column int) int {
	for i, c := range ix.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

type ConstraintType int

const (
	PrimaryKeyConstraint ConstraintType = iota + 1
	UniqueConstraint
	ForeignKeyConstraint
)

type ConstraintDescriptor struct {
	Name    string
	Type    ConstraintType
	Columns []int
	// IndexName is the backing index of a key constraint.
	IndexName string
}

type TableDescriptor struct {
	Schema         string
	Name           string
	ConglomerateID uint64
	Columns        []*ColumnDescriptor
	Indexes        []*IndexDescriptor
	Constraints    []*ConstraintDescriptor
}

func (t *TableDescriptor) QualifiedName() string {
	return t.Schema + "." + t.Name
}

func (t *TableDescriptor) Column(name string) (*ColumnDescriptor, bool) {
	name = strings.ToUpper(name)
	for _, column := range t.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return nil, false
}

func (t *TableDescriptor) Index(name string) (*IndexDescriptor, bool) {
	name = strings.ToUpper(name)
	for _, ix := range t.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary key constraint, if any.
func (t *TableDescriptor) PrimaryKey() *ConstraintDescriptor {
	for _, c := range t.Constraints {
		if c.Type == PrimaryKeyConstraint {
			return c
		}
	}
	return nil
}

func (t *TableDescriptor) RowWidth() int {
	width := 0
	for _, c := range t.Columns {
		width += columnWidth(c.Type)
	}
	return width
}

func columnWidth(t *sql.DataTypeDescriptor) int {
	if t.TypeID.IsLong() || t.MaxWidth < 0 {
		return 100
	}
	return t.MaxWidth
}

func (t *TableDescriptor) String() string {
	var parts []string
	for _, col := range t.Columns {
		parts = append(parts, col.String())
	}
	for _, c := range t.Constraints {
		var names []string
		for _, pos := range c.Columns {
			names = append(names, t.Columns[pos-1].Name)
		}
		switch c.Type {
		case PrimaryKeyConstraint:
			parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(names, ", ")))
		case UniqueConstraint:
			parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(names, ", ")))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", t.QualifiedName(), strings.Join(parts, ",\n  "))
}

// RoutineDescriptor is a user-defined scalar function.
type RoutineDescriptor struct {
	Schema string
	Name   string
	Params []*sql.DataTypeDescriptor
	Return *sql.DataTypeDescriptor
	Fn     func(args []sql.Value) (sql.Value, error)
}

func (r *RoutineDescriptor) QualifiedName() string {
	return r.Schema + "." + r.Name
}

// Catalog resolves names to descriptors. Lookups of absent objects fail with
// sql.ErrTableNotFound, sql.ErrColumnNotFound or sql.ErrObjectNotFound.
type Catalog interface {
	ResolveTable(schema, name string) (*TableDescriptor, error)
	ResolveColumn(table *TableDescriptor, name string) (*ColumnDescriptor, error)
	ResolveRoutine(schema, name string) (*RoutineDescriptor, error)
}
