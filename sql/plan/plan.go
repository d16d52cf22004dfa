package plan

import (
	"github.com/google/uuid"

	"planforge/sql"
	"planforge/sql/tree"
)

// Backend interprets operators. Accept is called for every operator as the
// builder emits it, children first; Open starts producing the rows of op
// for the given enclosing row.
type Backend interface {
	Accept(op Operator) error
	Open(op Operator, outer *Env) (RowStream, error)
}

type RowStream interface {
	Next() (sql.Row, bool, error)
	Close() error
}

// Positioned is implemented by the streams of updatable cursors: Position
// is the row location of the row last returned by Next.
type Positioned interface {
	Position() (sql.Value, bool)
}

// Result is the row stream of one execution.
type Result struct {
	RowStream
	columns []string
}

func (r *Result) Columns() []string { return r.columns }

func (r *Result) Position() (sql.Value, bool) {
	if p, ok := r.RowStream.(Positioned); ok {
		return p.Position()
	}
	return sql.Value{}, false
}

type Column struct {
	Name string
	Type *sql.DataTypeDescriptor
}

// Plan is an executable statement.
type Plan struct {
	ID        uuid.UUID
	Statement string
	Root      Operator
	Columns   []Column
	Estimate  tree.CostEstimate

	ParamTypes []*sql.DataTypeDescriptor

	// Updatable is set for a FOR UPDATE cursor named CursorName.
	Updatable     bool
	CursorName    string
	UpdateColumns []string
	// Positioned is set for WHERE CURRENT OF statements.
	Positioned bool

	// Emitted lists the operators in the order they were generated.
	Emitted []Operator

	backend Backend
}

func (p *Plan) ParamCount() int { return len(p.ParamTypes) }

type ExecOptions struct {
	Params []sql.Value
	// Positions holds the row location of the current row of each open
	// cursor, by cursor name.
	Positions map[string]sql.Value
}

func (p *Plan) Execute(params ...sql.Value) (*Result, error) {
	return p.ExecuteWith(ExecOptions{Params: params})
}

func (p *Plan) ExecuteWith(opts ExecOptions) (*Result, error) {
	if len(opts.Params) != p.ParamCount() {
		return nil, sql.ErrParameterCount.New(p.ParamCount(), len(opts.Params))
	}
	x := NewExecution(p.backend, opts.Params)
	x.Positions = opts.Positions
	rs, err := p.backend.Open(p.Root, x.Root())
	if err != nil {
		return nil, err
	}
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	return &Result{RowStream: rs, columns: names}, nil
}

// Rows executes the plan and drains its result.
func (p *Plan) Rows(params ...sql.Value) ([]sql.Row, error) {
	rs, err := p.Execute(params...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var out []sql.Row
	for {
		row, ok, err := rs.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}
