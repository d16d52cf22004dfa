package ast

type Stmt interface {
	StmtIter()
}

// QueryStmt is a statement that produces rows and may appear as a subquery.
type QueryStmt interface {
	Stmt
	queryStmt()
}

type CreateStmt struct {
	Name        string
	Columns     []*Column
	Constraints []*Constraint
}

func (c *CreateStmt) StmtIter() {
}

type SelectStmt struct {
	Distinct bool
	Select   []*ExprAS
	From     []FromItem
	// FromProperties carries FROM-list level optimizer overrides, e.g. joinOrder=FIXED.
	FromProperties map[string]string
	Where          Expression
	GroupBy        []Expression
	Having         Expression
	Order          []*Order
	Offset         Expression
	Limit          Expression
}

func (s *SelectStmt) StmtIter() {
}

func (s *SelectStmt) queryStmt() {}

type SetOpType int

const (
	Union SetOpType = iota + 1
	Intersect
	Except
)

func (t SetOpType) String() string {
	switch t {
	case Union:
		return "UNION"
	case Intersect:
		return "INTERSECT"
	case Except:
		return "EXCEPT"
	}
	return "SETOP"
}

type SetOperationStmt struct {
	Type   SetOpType
	All    bool
	Left   QueryStmt
	Right  QueryStmt
	Order  []*Order
	Offset Expression
	Limit  Expression
}

func (s *SetOperationStmt) StmtIter() {
}

func (s *SetOperationStmt) queryStmt() {}

// ValuesStmt is a VALUES table constructor.
type ValuesStmt struct {
	Rows [][]Expression
}

func (v *ValuesStmt) StmtIter() {
}

func (v *ValuesStmt) queryStmt() {}

type ExplainStmt struct {
	Stmt Stmt
}

func (e *ExplainStmt) StmtIter() {
}

type DeleteStmt struct {
	TableName string
	Alias     string
	Where     Expression
	// CurrentOf names the cursor of a positioned delete.
	CurrentOf string
}

func (d *DeleteStmt) StmtIter() {
}

type InsertStmt struct {
	TableName string
	Columns   []string
	Values    [][]Expression
	Query     QueryStmt
}

func (i *InsertStmt) StmtIter() {
}

type UpdateStmt struct {
	TableName string
	Alias     string
	Set       []*ExprColumn
	Where     Expression
	CurrentOf string
}

func (u *UpdateStmt) StmtIter() {
}

// CursorStmt declares a named cursor over a query.
type CursorStmt struct {
	Name          string
	Query         QueryStmt
	ForUpdate     bool
	UpdateColumns []string
}

func (c *CursorStmt) StmtIter() {
}

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

type MergeClause struct {
	Matched bool
	// And is the optional extra search condition of the WHEN clause.
	And     Expression
	Action  MergeAction
	Set     []*ExprColumn
	Columns []string
	Values  []Expression
}

type MergeStmt struct {
	Target  *FromItemTable
	Source  FromItem
	On      Expression
	Clauses []*MergeClause
}

func (m *MergeStmt) StmtIter() {
}
