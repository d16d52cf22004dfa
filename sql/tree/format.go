package tree

import (
	"bytes"
	"fmt"
	"strings"

	"modernc.org/strutil"
)

// Describe renders one node on a single line without its children.
func Describe(n Node) string {
	switch t := n.(type) {
	case *Constant:
		return "Constant " + t.Value.Literal()
	case *ColumnReference:
		return fmt.Sprintf("ColumnReference %s (%d.%d@%d)", t, t.TableNumber, t.ColumnNumber, t.SourceLevel)
	case *VirtualColumn:
		return fmt.Sprintf("VirtualColumn %s (block %d)", t.Source.Name, t.Block)
	case *Parameter:
		return fmt.Sprintf("Parameter ?%d", t.Number)
	case *BinaryRelational:
		return "BinaryRelational " + t.Op.String()
	case *BinaryArithmetic:
		return "BinaryArithmetic " + t.Op.String()
	case *IsNull:
		if t.Not {
			return "IsNull NOT"
		}
	case *Cast:
		if t.typ != nil {
			return "Cast " + t.typ.String()
		}
	case *Aggregate:
		if t.Distinct {
			return "Aggregate " + t.Func.String() + " DISTINCT"
		}
		return "Aggregate " + t.Func.String()
	case *WindowFunction:
		return "WindowFunction " + t.Name
	case *RoutineCall:
		return "RoutineCall " + t.Name
	case *Subquery:
		return fmt.Sprintf("Subquery %s #%d", t.SubType, t.Number)
	case *ResultColumn:
		return fmt.Sprintf("ResultColumn %d %s", t.Position, t.Name)
	case *FromBaseTable:
		return fmt.Sprintf("FromBaseTable %s.%s %s #%d", t.Schema, t.TableName, t.Correlation, t.Number)
	case *FromSubquery:
		return fmt.Sprintf("FromSubquery %s #%d", t.Correlation, t.Number)
	case *Join:
		if t.Type == LeftOuterJoin {
			return fmt.Sprintf("Join LEFT #%d", t.Number)
		}
		return fmt.Sprintf("Join INNER #%d", t.Number)
	case *Select:
		return fmt.Sprintf("Select #%d level %d", t.Number, t.NestingLevel)
	case *SetOperator:
		name := t.Op.String()
		if t.All {
			name += " ALL"
		}
		return fmt.Sprintf("SetOperator %s #%d", name, t.Number)
	case *Cursor:
		if t.Name != "" {
			return "Cursor " + t.Name
		}
	case *CreateTable:
		return "CreateTable " + t.Schema + "." + t.Name
	}
	return n.Kind().String()
}

// Dump renders the subtree rooted at n, one node per line, indented by depth.
func Dump(n Node) string {
	var buf bytes.Buffer
	f := strutil.IndentFormatter(&buf, "  ")
	dump(f, n)
	return strings.TrimRight(buf.String(), "\n")
}

func dump(f strutil.Formatter, n Node) {
	line := Describe(n)
	if v, ok := n.(ValueNode); ok && v.Type() != nil {
		line += " : " + v.Type().String()
	}
	children := n.Children()
	if len(children) == 0 {
		f.Format("%s\n", line)
		return
	}
	f.Format("%s%i\n", line)
	for _, c := range children {
		dump(f, c)
	}
	f.Format("%u")
}
