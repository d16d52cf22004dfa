package ast

// TypeSpec is a type as written in a column definition or CAST target.
type TypeSpec struct {
	Name      string
	Width     int
	Precision int
	Scale     int
	// UserType is the class name of a user-defined type; Name is ignored when set.
	UserType string
}

type Column struct {
	Name       string
	Type       *TypeSpec
	PrimaryKey bool
	Nullable   bool
	Default    Expression
	Unique     bool
	Index      bool
	References *Field
}

type ConstraintType int

const (
	PRIMARYKEYConstraint ConstraintType = iota
	UNIQUEKEYConstraint
	KEYConstraint
	FORREGINKEYConstraint
)

type Constraint struct {
	Type      ConstraintType
	IndexName string
	Columns   []string
	// referenced table and columns of a foreign key
	TableName  string
	SubColumns []string
}
