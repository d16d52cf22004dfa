package preprocess

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"planforge/sql"
	"planforge/sql/store"
	"planforge/sql/tree"
)

type truth int

const (
	tFalse truth = iota
	tTrue
	tUnknown
)

func (v truth) not() truth {
	switch v {
	case tFalse:
		return tTrue
	case tTrue:
		return tFalse
	}
	return tUnknown
}

func and(l, r truth) truth {
	if l == tFalse || r == tFalse {
		return tFalse
	}
	if l == tUnknown || r == tUnknown {
		return tUnknown
	}
	return tTrue
}

func or(l, r truth) truth {
	return and(l.not(), r.not()).not()
}

func of(b bool) truth {
	if b {
		return tTrue
	}
	return tFalse
}

// eval is a three-valued evaluator for boolean trees over constants.
func eval(t *testing.T, v tree.ValueNode) truth {
	switch n := v.(type) {
	case *tree.Constant:
		if n.Value.IsNull() {
			return tUnknown
		}
		return of(n.Value.V.(bool))
	case *tree.And:
		return and(eval(t, n.Left), eval(t, n.Right))
	case *tree.Or:
		return or(eval(t, n.Left), eval(t, n.Right))
	case *tree.Not:
		return eval(t, n.Operand).not()
	case *tree.IsNull:
		return of(n.Operand.(*tree.Constant).Value.IsNull() != n.Not)
	case *tree.BinaryRelational:
		l, r := n.Left.(*tree.Constant).Value, n.Right.(*tree.Constant).Value
		if l.IsNull() || r.IsNull() {
			return tUnknown
		}
		c, ok := l.Compare(r)
		require.True(t, ok)
		switch n.Op {
		case tree.RelEQ:
			return of(c == 0)
		case tree.RelNE:
			return of(c != 0)
		case tree.RelLT:
			return of(c < 0)
		case tree.RelLE:
			return of(c <= 0)
		case tree.RelGT:
			return of(c > 0)
		case tree.RelGE:
			return of(c >= 0)
		}
	}
	t.Fatalf("unexpected node %s", v.Kind())
	return tUnknown
}

var relOpsAll = []tree.RelOp{tree.RelEQ, tree.RelNE, tree.RelLT, tree.RelLE, tree.RelGT, tree.RelGE}

// generator builds the same random tree for the same seed.
type generator struct {
	r *rand.Rand
	f *tree.Factory
}

func (g *generator) intConst() *tree.Constant {
	if g.r.Intn(5) == 0 {
		return g.f.Constant(sql.NewNull(sql.IntegerID), sql.NewDescriptor(sql.IntegerID, true))
	}
	return g.f.Constant(sql.NewInt(int64(g.r.Intn(3))), sql.NewDescriptor(sql.IntegerID, false))
}

func (g *generator) leaf() tree.ValueNode {
	switch g.r.Intn(4) {
	case 0:
		return g.f.IsNull(g.intConst(), g.r.Intn(2) == 0)
	case 1:
		if g.r.Intn(3) == 0 {
			return g.f.Constant(sql.NewNull(sql.BooleanID), sql.NewDescriptor(sql.BooleanID, true))
		}
		return g.f.BooleanConstant(g.r.Intn(2) == 0)
	}
	return g.f.BinaryRelational(relOpsAll[g.r.Intn(len(relOpsAll))], g.intConst(), g.intConst())
}

func (g *generator) build(depth int) tree.ValueNode {
	if depth == 0 || g.r.Intn(4) == 0 {
		return g.leaf()
	}
	switch g.r.Intn(3) {
	case 0:
		return g.f.And(g.build(depth-1), g.build(depth-1))
	case 1:
		return g.f.Or(g.build(depth-1), g.build(depth-1))
	}
	return g.f.Not(g.build(depth - 1))
}

func newNormalizer() *Preprocessor {
	cat := store.NewMemoryCatalog()
	return New(tree.NewCompilerContext(cat, cat))
}

func TestEliminateNotsComparisons(t *testing.T) {
	p := newNormalizer()
	values := []sql.Value{sql.NewNull(sql.IntegerID), sql.NewInt(1), sql.NewInt(2)}
	for _, op := range relOpsAll {
		for _, l := range values {
			for _, r := range values {
				build := func() tree.ValueNode {
					return p.f.BinaryRelational(op,
						p.f.Constant(l, sql.NewDescriptor(sql.IntegerID, true)),
						p.f.Constant(r, sql.NewDescriptor(sql.IntegerID, true)))
				}
				want := eval(t, build()).not()
				require.Equal(t, want, eval(t, p.eliminateNots(build(), true)), "NOT %s %s %s", l, op, r)
			}
		}
	}
}

func TestEliminateNotsRandomTrees(t *testing.T) {
	p := newNormalizer()
	for seed := int64(1); seed <= 500; seed++ {
		original := (&generator{r: rand.New(rand.NewSource(seed)), f: p.f}).build(4)
		rewritten := (&generator{r: rand.New(rand.NewSource(seed)), f: p.f}).build(4)

		want := eval(t, original).not()
		negated := p.eliminateNots(rewritten, true)
		require.Equal(t, want, eval(t, negated), "seed %d", seed)
		tree.WalkValue(negated, func(v tree.ValueNode) bool {
			require.NotEqual(t, tree.KindNot, v.Kind(), "seed %d", seed)
			return true
		})

		plain := (&generator{r: rand.New(rand.NewSource(seed)), f: p.f}).build(4)
		require.Equal(t, want.not(), eval(t, p.eliminateNots(plain, false)), "seed %d", seed)
	}
}
