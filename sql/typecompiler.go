package sql

import (
	"modernc.org/mathutil"
)

// ArithmeticOp is a binary numeric operator.
type ArithmeticOp int

const (
	OpPlus ArithmeticOp = iota + 1
	OpMinus
	OpTimes
	OpDivide
	OpMod
)

func (o ArithmeticOp) String() string {
	switch o {
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpTimes:
		return "*"
	case OpDivide:
		return "/"
	case OpMod:
		return "MOD"
	}
	return "?"
}

// TypeCompiler answers per-type questions asked while binding: which
// conversions are legal and what an operator over the type produces.
type TypeCompiler interface {
	// Convertible reports whether an explicit CAST to target is legal.
	Convertible(target TypeID) bool
	// Compatible reports whether the type can be unified with other.
	Compatible(other TypeID) bool
	// Storable reports whether a value of other may be assigned to a column of this type.
	Storable(other TypeID) bool
	// ResolveArithmetic returns the result type of left op right, where left has this type.
	ResolveArithmetic(op ArithmeticOp, left, right *DataTypeDescriptor) (*DataTypeDescriptor, error)
	// CastToCharWidth is the width of the character form of a value of this type.
	CastToCharWidth(d *DataTypeDescriptor) int
}

var typeCompilers = map[TypeClass]TypeCompiler{
	ClassBoolean:  booleanTypeCompiler{},
	ClassNumeric:  numericTypeCompiler{},
	ClassString:   charTypeCompiler{},
	ClassBinary:   bitTypeCompiler{},
	ClassTemporal: datetimeTypeCompiler{},
	ClassUser:     userTypeCompiler{},
}

// GetTypeCompiler returns the strategy for id.
func GetTypeCompiler(id TypeID) TypeCompiler {
	tc, ok := typeCompilers[id.Class()]
	if !ok {
		return userTypeCompiler{}
	}
	return tc
}

type booleanTypeCompiler struct{}

func (booleanTypeCompiler) Convertible(target TypeID) bool {
	return target == BooleanID || (target.IsString() && !target.IsLong())
}

func (booleanTypeCompiler) Compatible(other TypeID) bool { return other == BooleanID }

func (booleanTypeCompiler) Storable(other TypeID) bool { return other == BooleanID }

func (booleanTypeCompiler) ResolveArithmetic(op ArithmeticOp, left, right *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	return nil, ErrTypeMismatch.New(op.String(), left, right)
}

func (booleanTypeCompiler) CastToCharWidth(*DataTypeDescriptor) int { return 5 }

type numericTypeCompiler struct{}

func (numericTypeCompiler) Convertible(target TypeID) bool {
	return target.IsNumeric() || target == CharID || target == VarcharID || target == BooleanID
}

func (numericTypeCompiler) Compatible(other TypeID) bool { return other.IsNumeric() }

func (numericTypeCompiler) Storable(other TypeID) bool { return other.IsNumeric() }

func (numericTypeCompiler) ResolveArithmetic(op ArithmeticOp, left, right *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	if !left.TypeID.IsNumeric() || !right.TypeID.IsNumeric() {
		return nil, ErrTypeMismatch.New(op.String(), left, right)
	}
	if op == OpMod && (!left.TypeID.IsExactInteger() || !right.TypeID.IsExactInteger()) {
		return nil, ErrTypeMismatch.New(op.String(), left, right)
	}
	result, err := left.Dominant(right)
	if err != nil {
		return nil, err
	}
	// SMALLINT arithmetic is carried out in INTEGER
	if result.TypeID == SmallintID {
		result = NewDescriptor(IntegerID, result.Nullable)
	}
	if result.TypeID.IsDecimal() {
		lp, ls := numericPrecision(left), left.Scale
		rp, rs := numericPrecision(right), right.Scale
		var precision, scale int
		switch op {
		case OpPlus, OpMinus:
			scale = mathutil.Max(ls, rs)
			precision = mathutil.Max(lp-ls, rp-rs) + scale + 1
		case OpTimes:
			scale = ls + rs
			precision = lp + rp
		case OpDivide:
			scale = mathutil.Max(MaxDecimalPrecision-lp+ls-rs, 0)
			if scale < MinDecimalDivide {
				scale = MinDecimalDivide
			}
			precision = lp - ls + rs + scale
		default:
			scale = mathutil.Max(ls, rs)
			precision = mathutil.Max(lp, rp)
		}
		precision = mathutil.Min(precision, MaxDecimalPrecision)
		scale = mathutil.Min(scale, precision)
		d := NewDecimalDescriptor(precision, scale, result.Nullable)
		d.TypeID = result.TypeID
		return d, nil
	}
	return result, nil
}

func (numericTypeCompiler) CastToCharWidth(d *DataTypeDescriptor) int {
	switch d.TypeID {
	case SmallintID:
		return 6
	case IntegerID:
		return 11
	case BigintID:
		return 20
	case RealID:
		return 15
	case DoubleID:
		return 24
	}
	return d.Precision + 2
}

type charTypeCompiler struct{}

func (charTypeCompiler) Convertible(target TypeID) bool {
	return target.Class() != ClassBinary && target != UserID
}

func (charTypeCompiler) Compatible(other TypeID) bool {
	return other.IsString() || other.IsTemporal()
}

func (charTypeCompiler) Storable(other TypeID) bool {
	return other.IsString() || other.IsTemporal()
}

func (charTypeCompiler) ResolveArithmetic(op ArithmeticOp, left, right *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	return nil, ErrTypeMismatch.New(op.String(), left, right)
}

func (charTypeCompiler) CastToCharWidth(d *DataTypeDescriptor) int { return d.MaxWidth }

type bitTypeCompiler struct{}

func (bitTypeCompiler) Convertible(target TypeID) bool { return target.IsBinary() }

func (bitTypeCompiler) Compatible(other TypeID) bool { return other.IsBinary() }

func (bitTypeCompiler) Storable(other TypeID) bool { return other.IsBinary() }

func (bitTypeCompiler) ResolveArithmetic(op ArithmeticOp, left, right *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	return nil, ErrTypeMismatch.New(op.String(), left, right)
}

func (bitTypeCompiler) CastToCharWidth(d *DataTypeDescriptor) int { return d.MaxWidth * 2 }

type datetimeTypeCompiler struct{}

func (datetimeTypeCompiler) Convertible(target TypeID) bool {
	return target.IsTemporal() || target == CharID || target == VarcharID
}

func (datetimeTypeCompiler) Compatible(other TypeID) bool {
	return other.IsTemporal() || other.IsString()
}

func (datetimeTypeCompiler) Storable(other TypeID) bool {
	return other.IsTemporal() || other.IsString()
}

func (datetimeTypeCompiler) ResolveArithmetic(op ArithmeticOp, left, right *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	return nil, ErrTypeMismatch.New(op.String(), left, right)
}

func (datetimeTypeCompiler) CastToCharWidth(d *DataTypeDescriptor) int { return d.TypeID.MaxWidth() }

type userTypeCompiler struct{}

func (userTypeCompiler) Convertible(target TypeID) bool { return target == UserID }

func (userTypeCompiler) Compatible(TypeID) bool { return false }

func (userTypeCompiler) Storable(other TypeID) bool { return other == UserID }

func (userTypeCompiler) ResolveArithmetic(op ArithmeticOp, left, right *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	return nil, ErrTypeMismatch.New(op.String(), left, right)
}

func (userTypeCompiler) CastToCharWidth(*DataTypeDescriptor) int { return MaxVarcharWidth }
