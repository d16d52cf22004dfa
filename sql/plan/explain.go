package plan

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Explain renders the operator tree with the optimizer's estimates and the
// plans of the subqueries each operator evaluates.
func (p *Plan) Explain() string {
	head := fmt.Sprintf("%s plan %s (cost=%.2f rows=%.1f)", p.Statement, p.ID, p.Estimate.Cost, p.Estimate.RowCount)
	if p.Updatable {
		head += " updatable cursor " + p.CursorName
	}
	if p.Positioned {
		head += " positioned on " + p.CursorName
	}
	root := treeprint.NewWithRoot(head)
	explainInto(root, p.Root)
	return root.String()
}

// ExplainOperator renders op alone.
func ExplainOperator(op Operator) string {
	root := treeprint.New()
	explainInto(root, op)
	return root.String()
}

func explainInto(t treeprint.Tree, op Operator) {
	c := op.common()
	label := op.Describe()
	if c.hasEstimate {
		label += fmt.Sprintf(" (cost=%.2f rows=%.1f)", c.Estimate.Cost, c.Estimate.RowCount)
	}
	branch := t.AddBranch(label)
	for _, sq := range c.Subqueries {
		explainInto(branch.AddMetaBranch("subquery", sq.String()), sq.Root)
	}
	for _, in := range op.Inputs() {
		explainInto(branch, in)
	}
}
