package sql

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDominant(t *testing.T) {
	d, err := NewDescriptor(IntegerID, false).Dominant(NewDescriptor(SmallintID, true))
	require.NoError(t, err)
	assert.Equal(t, IntegerID, d.TypeID)
	assert.True(t, d.Nullable)

	d, err = NewDescriptor(RealID, false).Dominant(NewDescriptor(IntegerID, false))
	require.NoError(t, err)
	assert.Equal(t, DoubleID, d.TypeID)

	d, err = NewDecimalDescriptor(5, 2, false).Dominant(NewDecimalDescriptor(10, 0, false))
	require.NoError(t, err)
	assert.Equal(t, 12, d.Precision)
	assert.Equal(t, 2, d.Scale)

	d, err = NewDecimalDescriptor(31, 10, false).Dominant(NewDecimalDescriptor(31, 0, false))
	require.NoError(t, err)
	assert.Equal(t, MaxDecimalPrecision, d.Precision)
	assert.Equal(t, 10, d.Scale)

	d, err = NewStringDescriptor(CharID, 20, false).Dominant(NewStringDescriptor(VarcharID, 10, false))
	require.NoError(t, err)
	assert.Equal(t, VarcharID, d.TypeID)
	assert.Equal(t, 20, d.MaxWidth)

	_, err = NewDescriptor(IntegerID, false).Dominant(NewStringDescriptor(VarcharID, 10, false))
	require.True(t, ErrTypeMismatch.Is(err))
}

func TestDominantCollation(t *testing.T) {
	l := NewStringDescriptor(VarcharID, 10, false)
	r := NewStringDescriptor(VarcharID, 10, false)
	r.Collation = CollationTerritory
	d, err := l.Dominant(r)
	require.NoError(t, err)
	assert.Equal(t, DerivationNone, d.Derivation)

	r.Derivation = DerivationExplicit
	d, err = l.Dominant(r)
	require.NoError(t, err)
	assert.Equal(t, CollationTerritory, d.Collation)
	assert.Equal(t, DerivationExplicit, d.Derivation)
}

func TestDominantType(t *testing.T) {
	d, err := DominantType([]*DataTypeDescriptor{
		NewDescriptor(SmallintID, false),
		NewDescriptor(BigintID, false),
		NewDescriptor(IntegerID, true),
	})
	require.NoError(t, err)
	assert.Equal(t, BigintID, d.TypeID)
	assert.True(t, d.Nullable)

	_, err = DominantType(nil)
	require.True(t, ErrInternal.Is(err))

	// the dominant operand decides regardless of where the others sit
	first, err := DominantType([]*DataTypeDescriptor{
		NewDescriptor(DoubleID, false), NewDescriptor(SmallintID, false), NewDescriptor(IntegerID, false),
	})
	require.NoError(t, err)
	second, err := DominantType([]*DataTypeDescriptor{
		NewDescriptor(DoubleID, false), NewDescriptor(IntegerID, false), NewDescriptor(SmallintID, false),
	})
	require.NoError(t, err)
	assert.True(t, first.Equals(second))
	assert.Equal(t, DoubleID, first.TypeID)
}

func TestDominantTypeCollationOrderIndependent(t *testing.T) {
	varchar := func(c Collation, d Derivation) *DataTypeDescriptor {
		v := NewStringDescriptor(VarcharID, 10, false)
		v.Collation, v.Derivation = c, d
		return v
	}
	permutations := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	check := func(operands []*DataTypeDescriptor, collation Collation, derivation Derivation) {
		for _, p := range permutations {
			types := []*DataTypeDescriptor{operands[p[0]], operands[p[1]], operands[p[2]]}
			d, err := DominantType(types)
			require.NoError(t, err)
			assert.Equal(t, collation, d.Collation, "order %v", p)
			assert.Equal(t, derivation, d.Derivation, "order %v", p)
		}
	}

	check([]*DataTypeDescriptor{
		varchar(CollationTerritory, DerivationImplicit),
		varchar(CollationBasic, DerivationImplicit),
		varchar(CollationTerritory, DerivationImplicit),
	}, CollationBasic, DerivationNone)

	check([]*DataTypeDescriptor{
		varchar(CollationBasic, DerivationImplicit),
		varchar(CollationTerritory, DerivationExplicit),
		varchar(CollationBasic, DerivationImplicit),
	}, CollationTerritory, DerivationExplicit)

	check([]*DataTypeDescriptor{
		varchar(CollationTerritory, DerivationImplicit),
		NewStringDescriptor(CharID, 5, false),
		varchar(CollationTerritory, DerivationNone),
	}, CollationBasic, DerivationNone)
}

func TestResolveConcatenation(t *testing.T) {
	cases := []struct {
		l, r  *DataTypeDescriptor
		id    TypeID
		width int
	}{
		{NewStringDescriptor(CharID, 10, false), NewStringDescriptor(CharID, 20, false), CharID, 30},
		{NewStringDescriptor(CharID, 200, false), NewStringDescriptor(CharID, 200, false), VarcharID, 400},
		{NewStringDescriptor(VarcharID, 3000, false), NewStringDescriptor(VarcharID, 3000, false), LongVarcharID, MaxLongVarcharWidth},
		{NewStringDescriptor(BitID, 4, false), NewStringDescriptor(VarbitID, 4, false), VarbitID, 8},
	}
	for _, c := range cases {
		d, err := ResolveConcatenation(c.l, c.r)
		require.NoError(t, err)
		assert.Equal(t, c.id, d.TypeID, "%s || %s", c.l, c.r)
		assert.Equal(t, c.width, d.MaxWidth, "%s || %s", c.l, c.r)
	}
	_, err := ResolveConcatenation(NewStringDescriptor(CharID, 1, false), NewStringDescriptor(BitID, 1, false))
	require.True(t, ErrTypeMismatch.Is(err))
}

func TestResolveArithmetic(t *testing.T) {
	tc := GetTypeCompiler(SmallintID)
	d, err := tc.ResolveArithmetic(OpPlus, NewDescriptor(SmallintID, false), NewDescriptor(SmallintID, false))
	require.NoError(t, err)
	assert.Equal(t, IntegerID, d.TypeID)

	d, err = tc.ResolveArithmetic(OpPlus, NewDecimalDescriptor(5, 2, false), NewDecimalDescriptor(5, 2, true))
	require.NoError(t, err)
	assert.Equal(t, 6, d.Precision)
	assert.Equal(t, 2, d.Scale)
	assert.True(t, d.Nullable)

	d, err = tc.ResolveArithmetic(OpTimes, NewDecimalDescriptor(20, 5, false), NewDecimalDescriptor(20, 5, false))
	require.NoError(t, err)
	assert.Equal(t, MaxDecimalPrecision, d.Precision)
	assert.Equal(t, 10, d.Scale)

	_, err = tc.ResolveArithmetic(OpMod, NewDescriptor(DoubleID, false), NewDescriptor(IntegerID, false))
	require.True(t, ErrTypeMismatch.Is(err))
}

func TestValueCompare(t *testing.T) {
	c, ok := NewNull(IntegerID).Compare(NewInt(1))
	require.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = NewInt(2).Compare(NewDouble(2.5))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	assert.True(t, NewChar("ab  ").Equal(NewChar("ab")))
	_, ok = NewInt(1).Compare(NewVarchar("1"))
	assert.False(t, ok)

	assert.Equal(t, -1, CompareRows(Row{NewInt(1), NewInt(2)}, Row{NewInt(1), NewInt(3)}, 2))
	assert.Equal(t, 0, CompareRows(Row{NewInt(1), NewInt(2)}, Row{NewInt(1), NewInt(3)}, 1))
}

func TestValueArithmetic(t *testing.T) {
	v, err := NewInt(7).Arithmetic(OpDivide, NewInt(2), IntegerID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.V)

	v, err = NewInt(7).Arithmetic(OpDivide, NewInt(2), DoubleID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v.V)

	v, err = NewNull(IntegerID).Arithmetic(OpPlus, NewInt(1), IntegerID)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = NewInt(1).Arithmetic(OpDivide, NewInt(0), IntegerID)
	require.Error(t, err)
}

func TestValueConvert(t *testing.T) {
	v, err := NewInt(3).Convert(NewDescriptor(DoubleID, false))
	require.NoError(t, err)
	assert.Equal(t, NewDouble(3), v)

	v, err = NewNull(VarcharID).Convert(NewDescriptor(IntegerID, true))
	require.NoError(t, err)
	assert.Equal(t, NewNull(IntegerID), v)

	_, err = NewBytes([]byte{1}).Convert(NewDescriptor(BooleanID, false))
	require.True(t, ErrInvalidCast.Is(err))
}

func TestCategory(t *testing.T) {
	err := errors.Wrap(ErrTableNotFound.New("APP.X"), "bind")
	assert.Equal(t, CategoryNameResolution, Category(err))
	assert.True(t, IsKind(err, ErrTableNotFound))
	assert.Equal(t, CategoryExecution, Category(ErrParameterCount.New(1, 0)))
	assert.Equal(t, CategoryUnknown, Category(errors.New("plain")))
}
