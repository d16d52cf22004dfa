// Package fixture loads a catalog and a list of statements from a YAML
// file. Statements are given in structured form: operands are column
// references, quoted literals, numbers, `?` parameters or simple function
// calls, and conditions are [left, op, right] triples joined by AND.
package fixture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"planforge/sql"
	"planforge/sql/store"
	"planforge/sqlparser/ast"
)

type Column struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Width     int    `mapstructure:"width"`
	Precision int    `mapstructure:"precision"`
	Scale     int    `mapstructure:"scale"`
	Nullable  bool   `mapstructure:"nullable"`
}

type Index struct {
	Name    string   `mapstructure:"name"`
	Columns []string `mapstructure:"columns"`
	Unique  bool     `mapstructure:"unique"`
}

type Table struct {
	Schema     string   `mapstructure:"schema"`
	Name       string   `mapstructure:"name"`
	Columns    []Column `mapstructure:"columns"`
	PrimaryKey []string `mapstructure:"primary_key"`
	Indexes    []Index  `mapstructure:"indexes"`
	// RowCount overrides the statistic derived from Rows.
	RowCount float64 `mapstructure:"row_count"`
	Rows     [][]any `mapstructure:"rows"`
}

type From struct {
	Table      string            `mapstructure:"table"`
	Alias      string            `mapstructure:"alias"`
	Properties map[string]string `mapstructure:"properties"`
	// Join is "inner" or "left"; the item is joined to everything before it.
	Join string  `mapstructure:"join"`
	On   [][]any `mapstructure:"on"`
}

type Order struct {
	Expr any  `mapstructure:"expr"`
	Desc bool `mapstructure:"desc"`
}

type Query struct {
	Name     string            `mapstructure:"name"`
	Kind     string            `mapstructure:"kind"`
	Distinct bool              `mapstructure:"distinct"`
	Select   []any             `mapstructure:"select"`
	From     []From            `mapstructure:"from"`
	Where    [][]any           `mapstructure:"where"`
	GroupBy  []any             `mapstructure:"group_by"`
	Having   [][]any           `mapstructure:"having"`
	OrderBy  []Order           `mapstructure:"order_by"`
	Offset   any               `mapstructure:"offset"`
	Limit    any               `mapstructure:"limit"`
	Table    string            `mapstructure:"table"`
	Columns  []string          `mapstructure:"columns"`
	Values   [][]any           `mapstructure:"values"`
	Set      map[string]any    `mapstructure:"set"`
	Props    map[string]string `mapstructure:"from_properties"`
	Params   []any             `mapstructure:"params"`
}

type Fixture struct {
	Tables  []Table `mapstructure:"tables"`
	Queries []Query `mapstructure:"queries"`
}

// Load reads a fixture file.
func Load(path string) (*Fixture, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	f := &Fixture{}
	if err := v.Unmarshal(f); err != nil {
		return nil, errors.Wrapf(err, "decode fixture %s", path)
	}
	return f, nil
}

// Catalog builds an in-memory catalog holding the fixture tables.
func (f *Fixture) Catalog() (*store.MemoryCatalog, error) {
	cat := store.NewMemoryCatalog()
	for _, t := range f.Tables {
		if err := t.create(cat); err != nil {
			return nil, errors.Wrapf(err, "table %s", t.Name)
		}
	}
	return cat, nil
}

func (t *Table) create(cat *store.MemoryCatalog) error {
	var cols []*store.ColumnDescriptor
	for _, c := range t.Columns {
		desc, err := c.descriptor()
		if err != nil {
			return err
		}
		cols = append(cols, store.NewColumn(c.Name, desc))
	}
	desc, err := cat.CreateTable(t.Schema, t.Name, cols)
	if err != nil {
		return err
	}
	if len(t.PrimaryKey) > 0 {
		con := &store.ConstraintDescriptor{Type: store.PrimaryKeyConstraint}
		for _, name := range t.PrimaryKey {
			col, ok := desc.Column(name)
			if !ok {
				return sql.ErrColumnNotFound.New(desc.Name + "." + strings.ToUpper(name))
			}
			con.Columns = append(con.Columns, col.Position)
		}
		if err := cat.AddConstraint(t.Schema, t.Name, con); err != nil {
			return err
		}
	}
	for _, ix := range t.Indexes {
		if _, err := cat.CreateIndex(t.Schema, t.Name, ix.Name, ix.Unique, ix.Columns...); err != nil {
			return err
		}
	}
	for i, raw := range t.Rows {
		if len(raw) != len(desc.Columns) {
			return sql.ErrColumnCountMismatch.New(fmt.Sprintf("row %d of %s", i+1, desc.Name), len(desc.Columns), len(raw))
		}
		row := make(sql.Row, len(raw))
		for j, x := range raw {
			v, err := valueOf(x).Convert(desc.Columns[j].Type)
			if err != nil {
				return errors.Wrapf(err, "row %d column %s", i+1, desc.Columns[j].Name)
			}
			row[j] = v
		}
		if err := cat.Insert(t.Schema, t.Name, row); err != nil {
			return err
		}
	}
	if t.RowCount > 0 {
		return cat.SetRowCount(t.Schema, t.Name, t.RowCount)
	}
	return nil
}

func (c *Column) descriptor() (*sql.DataTypeDescriptor, error) {
	id, ok := sql.LookupTypeID(strings.ToUpper(c.Type))
	if !ok {
		return nil, sql.ErrObjectNotFound.New("TYPE", strings.ToUpper(c.Type))
	}
	switch {
	case id.IsDecimal():
		d := sql.NewDecimalDescriptor(max(c.Precision, 5), c.Scale, c.Nullable)
		d.TypeID = id
		return d, nil
	case id.IsString() && c.Width > 0:
		return sql.NewStringDescriptor(id, c.Width, c.Nullable), nil
	}
	return sql.NewDescriptor(id, c.Nullable), nil
}

// valueOf maps a decoded YAML scalar to a value of its natural type.
func valueOf(x any) sql.Value {
	switch v := x.(type) {
	case nil:
		return sql.NewNull(sql.VarcharID)
	case bool:
		return sql.NewBool(v)
	case int:
		return sql.NewInt(int64(v))
	case int64:
		return sql.NewInt(v)
	case float64:
		return sql.NewDouble(v)
	case string:
		return sql.NewVarchar(v)
	}
	return sql.NewVarchar(fmt.Sprint(x))
}

// ParamValues converts the parameters of q for execution.
func (q *Query) ParamValues() []sql.Value {
	out := make([]sql.Value, len(q.Params))
	for i, p := range q.Params {
		out[i] = valueOf(p)
	}
	return out
}

// Statement builds the parse tree of q.
func (q *Query) Statement() (ast.Stmt, error) {
	switch strings.ToLower(q.Kind) {
	case "", "select":
		return q.selectStmt()
	case "insert":
		return q.insertStmt()
	case "update":
		where, err := conditions(q.Where)
		if err != nil {
			return nil, err
		}
		up := &ast.UpdateStmt{TableName: q.Table, Where: where}
		for name, raw := range q.Set {
			e, err := operand(raw)
			if err != nil {
				return nil, err
			}
			up.Set = append(up.Set, &ast.ExprColumn{ColumnName: name, Expr: e})
		}
		return up, nil
	case "delete":
		where, err := conditions(q.Where)
		if err != nil {
			return nil, err
		}
		return &ast.DeleteStmt{TableName: q.Table, Where: where}, nil
	}
	return nil, sql.ErrUnsupported.New("fixture statement kind " + q.Kind)
}

func (q *Query) selectStmt() (*ast.SelectStmt, error) {
	s := &ast.SelectStmt{Distinct: q.Distinct, FromProperties: q.Props}
	for _, raw := range q.Select {
		e, err := selectItem(raw)
		if err != nil {
			return nil, err
		}
		s.Select = append(s.Select, &ast.ExprAS{Expr: e})
	}
	var err error
	if s.From, err = fromList(q.From); err != nil {
		return nil, err
	}
	if s.Where, err = conditions(q.Where); err != nil {
		return nil, err
	}
	if s.Having, err = conditions(q.Having); err != nil {
		return nil, err
	}
	for _, raw := range q.GroupBy {
		e, err := operand(raw)
		if err != nil {
			return nil, err
		}
		s.GroupBy = append(s.GroupBy, e)
	}
	for _, o := range q.OrderBy {
		e, err := operand(o.Expr)
		if err != nil {
			return nil, err
		}
		s.Order = append(s.Order, &ast.Order{Expr: e, Desc: o.Desc})
	}
	if q.Offset != nil {
		if s.Offset, err = operand(q.Offset); err != nil {
			return nil, err
		}
	}
	if q.Limit != nil {
		if s.Limit, err = operand(q.Limit); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (q *Query) insertStmt() (*ast.InsertStmt, error) {
	ins := &ast.InsertStmt{TableName: q.Table, Columns: q.Columns}
	if len(q.Select) > 0 {
		src, err := q.selectStmt()
		if err != nil {
			return nil, err
		}
		ins.Query = src
		return ins, nil
	}
	for _, raw := range q.Values {
		row := make([]ast.Expression, len(raw))
		for i, x := range raw {
			e, err := operand(x)
			if err != nil {
				return nil, err
			}
			row[i] = e
		}
		ins.Values = append(ins.Values, row)
	}
	return ins, nil
}

func fromList(items []From) ([]ast.FromItem, error) {
	var out []ast.FromItem
	for _, f := range items {
		item := &ast.FromItemTable{Name: f.Table, Alias: f.Alias, Properties: f.Properties}
		if f.Join == "" {
			out = append(out, item)
			continue
		}
		if len(out) == 0 {
			return nil, sql.ErrUnsupported.New("a join without a left side")
		}
		on, err := conditions(f.On)
		if err != nil {
			return nil, err
		}
		jt := ast.InnerJoin
		switch strings.ToLower(f.Join) {
		case "inner":
		case "left":
			jt = ast.LeftJoin
		case "right":
			jt = ast.RightJoin
		default:
			return nil, sql.ErrUnsupported.New("join type " + f.Join)
		}
		last := len(out) - 1
		out[last] = &ast.FromItemJoinTable{Left: out[last], Right: item, Type: jt, Predicate: on}
	}
	return out, nil
}

// conditions ANDs [left, op, right] triples; IS NULL takes no right side.
func conditions(triples [][]any) (ast.Expression, error) {
	var out ast.Expression
	for _, t := range triples {
		c, err := condition(t)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = c
		} else {
			out = &ast.AndOper{L: out, R: c}
		}
	}
	return out, nil
}

func condition(t []any) (ast.Expression, error) {
	if len(t) < 2 {
		return nil, sql.ErrUnsupported.New(fmt.Sprintf("condition %v", t))
	}
	l, err := operand(t[0])
	if err != nil {
		return nil, err
	}
	op := strings.ToLower(fmt.Sprint(t[1]))
	switch op {
	case "is null":
		return &ast.IsNullOper{L: l}, nil
	case "is not null":
		return &ast.IsNullOper{L: l, Not: true}, nil
	}
	if len(t) != 3 {
		return nil, sql.ErrUnsupported.New(fmt.Sprintf("condition %v", t))
	}
	r, err := operand(t[2])
	if err != nil {
		return nil, err
	}
	switch op {
	case "=":
		return &ast.EqualOper{L: l, R: r}, nil
	case "<>", "!=":
		return &ast.NotEqualOper{L: l, R: r}, nil
	case "<":
		return &ast.LessThanOper{L: l, R: r}, nil
	case "<=":
		return &ast.LessThanOrEqualOper{L: l, R: r}, nil
	case ">":
		return &ast.GreaterThanOper{L: l, R: r}, nil
	case ">=":
		return &ast.GreaterThanOrEqualOper{L: l, R: r}, nil
	case "like":
		return &ast.LikeOper{L: l, R: r}, nil
	}
	return nil, sql.ErrUnsupported.New("operator " + op)
}

func selectItem(raw any) (ast.Expression, error) {
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if s == "*" {
			return &ast.Star{}, nil
		}
		if strings.HasSuffix(s, ".*") {
			return &ast.Star{TableName: strings.TrimSuffix(s, ".*")}, nil
		}
	}
	return operand(raw)
}

// operand reads one operand: a number, boolean or null is a literal; among
// strings `?` is a parameter, 'x' a character literal, f(arg) a function
// call and anything else a column reference.
func operand(raw any) (ast.Expression, error) {
	s, ok := raw.(string)
	if !ok {
		return &ast.Literal{Value: valueOf(raw)}, nil
	}
	s = strings.TrimSpace(s)
	switch {
	case s == "?":
		return &ast.Parameter{}, nil
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return &ast.Literal{Value: sql.NewVarchar(strings.ReplaceAll(s[1:len(s)-1], "''", "'"))}, nil
	case strings.HasSuffix(s, ")"):
		return function(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &ast.Literal{Value: sql.NewInt(n)}, nil
	}
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return &ast.Field{TableName: s[:i], ColumnName: s[i+1:]}, nil
	}
	return &ast.Field{ColumnName: s}, nil
}

func function(s string) (ast.Expression, error) {
	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return nil, sql.ErrUnsupported.New("operand " + s)
	}
	fn := &ast.Function{FuncName: strings.TrimSpace(s[:open])}
	arg := strings.TrimSpace(s[open+1 : len(s)-1])
	if arg == "*" {
		fn.Star = true
		return fn, nil
	}
	if rest, ok := cutPrefixFold(arg, "distinct "); ok {
		fn.Distinct, arg = true, strings.TrimSpace(rest)
	}
	if arg == "" {
		return fn, nil
	}
	for _, part := range strings.Split(arg, ",") {
		e, err := operand(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		fn.Args = append(fn.Args, e)
	}
	return fn, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
