package sql

import (
	"fmt"
	"strings"

	"modernc.org/mathutil"
)

// Derivation is the strength with which a string value carries its collation.
type Derivation int

const (
	DerivationNone Derivation = iota
	DerivationImplicit
	DerivationExplicit
)

func (d Derivation) String() string {
	switch d {
	case DerivationImplicit:
		return "IMPLICIT"
	case DerivationExplicit:
		return "EXPLICIT"
	}
	return "NONE"
}

type Collation int

const (
	CollationBasic Collation = iota
	CollationTerritory
)

// DataTypeDescriptor is the resolved result type of an expression or column.
type DataTypeDescriptor struct {
	TypeID     TypeID
	Precision  int
	Scale      int
	MaxWidth   int
	Nullable   bool
	Collation  Collation
	Derivation Derivation
	// UserTypeName names the class of a user-defined type.
	UserTypeName string
}

// NewDescriptor returns the default descriptor for id.
func NewDescriptor(id TypeID, nullable bool) *DataTypeDescriptor {
	d := &DataTypeDescriptor{
		TypeID:    id,
		Precision: id.info().precision,
		MaxWidth:  id.MaxWidth(),
		Nullable:  nullable,
	}
	switch id.Class() {
	case ClassString:
		d.Derivation = DerivationImplicit
		if id == CharID {
			d.MaxWidth = 1
		}
	case ClassBinary:
		if id == BitID {
			d.MaxWidth = 1
		}
	case ClassNumeric:
		if id.IsDecimal() {
			d.MaxWidth = decimalWidth(d.Precision, d.Scale)
		}
	}
	return d
}

// NewStringDescriptor returns a string or binary descriptor of the given width.
func NewStringDescriptor(id TypeID, width int, nullable bool) *DataTypeDescriptor {
	d := NewDescriptor(id, nullable)
	d.MaxWidth = width
	return d
}

func NewDecimalDescriptor(precision, scale int, nullable bool) *DataTypeDescriptor {
	d := NewDescriptor(DecimalID, nullable)
	d.Precision = mathutil.Min(precision, MaxDecimalPrecision)
	d.Scale = mathutil.Min(scale, d.Precision)
	d.MaxWidth = decimalWidth(d.Precision, d.Scale)
	return d
}

func NewUserDescriptor(typeName string, nullable bool) *DataTypeDescriptor {
	d := NewDescriptor(UserID, nullable)
	d.UserTypeName = typeName
	return d
}

func decimalWidth(precision, scale int) int {
	if scale > 0 {
		return precision + 3
	}
	return precision + 1
}

func (d *DataTypeDescriptor) Clone() *DataTypeDescriptor {
	c := *d
	return &c
}

// WithNullable returns a copy of d with the nullability replaced.
func (d *DataTypeDescriptor) WithNullable(nullable bool) *DataTypeDescriptor {
	c := d.Clone()
	c.Nullable = nullable
	return c
}

func (d *DataTypeDescriptor) Class() TypeClass { return d.TypeID.Class() }

func (d *DataTypeDescriptor) Equals(o *DataTypeDescriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	return *d == *o
}

func (d *DataTypeDescriptor) String() string {
	if d == nil {
		return "<untyped>"
	}
	var sb strings.Builder
	switch {
	case d.TypeID == UserID:
		sb.WriteString(d.UserTypeName)
	case d.TypeID.IsDecimal():
		fmt.Fprintf(&sb, "%s(%d,%d)", d.TypeID, d.Precision, d.Scale)
	case d.TypeID == CharID || d.TypeID == VarcharID:
		fmt.Fprintf(&sb, "%s(%d)", d.TypeID, d.MaxWidth)
	case d.TypeID == BitID:
		fmt.Fprintf(&sb, "CHAR(%d) FOR BIT DATA", d.MaxWidth)
	case d.TypeID == VarbitID:
		fmt.Fprintf(&sb, "VARCHAR(%d) FOR BIT DATA", d.MaxWidth)
	case d.TypeID == ClobID || d.TypeID == BlobID:
		fmt.Fprintf(&sb, "%s(%d)", d.TypeID, d.MaxWidth)
	default:
		sb.WriteString(d.TypeID.String())
	}
	if !d.Nullable {
		sb.WriteString(" NOT NULL")
	}
	return sb.String()
}

// Comparable reports whether values of d and o may appear on either side of
// a comparison operator.
func (d *DataTypeDescriptor) Comparable(o *DataTypeDescriptor) bool {
	l, r := d.TypeID, o.TypeID
	if l.IsLong() || r.IsLong() {
		return false
	}
	switch l.Class() {
	case ClassBoolean:
		return r.Class() == ClassBoolean
	case ClassNumeric:
		return r.IsNumeric()
	case ClassString:
		return r.IsString() || r.IsTemporal()
	case ClassBinary:
		return r.IsBinary()
	case ClassTemporal:
		return r == l || r.IsString()
	case ClassUser:
		return false
	}
	return false
}

// Compatible reports whether d and o can be unified into one result type,
// as branches of a CASE or the two sides of a UNION.
func (d *DataTypeDescriptor) Compatible(o *DataTypeDescriptor) bool {
	return GetTypeCompiler(d.TypeID).Compatible(o.TypeID) ||
		(d.TypeID == UserID && o.TypeID == UserID && d.UserTypeName == o.UserTypeName)
}

// Dominant returns the type that can hold values of both d and o. On a
// precedence tie the receiver wins.
func (d *DataTypeDescriptor) Dominant(o *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	if !d.Compatible(o) {
		return nil, ErrTypeMismatch.New("dominant type", d, o)
	}

	higher, lower := d, o
	if o.TypeID.Precedence() > d.TypeID.Precedence() {
		higher, lower = o, d
	}

	result := &DataTypeDescriptor{
		TypeID:       higher.TypeID,
		Nullable:     d.Nullable || o.Nullable,
		MaxWidth:     mathutil.Max(d.MaxWidth, o.MaxWidth),
		Precision:    higher.Precision,
		Scale:        higher.Scale,
		UserTypeName: higher.UserTypeName,
	}

	// an approximate type meeting an exact numeric widens to DOUBLE
	if higher.TypeID == RealID && lower.TypeID.IsNumeric() && !lower.TypeID.IsApproximate() {
		result.TypeID = DoubleID
		result.Precision = DoubleID.info().precision
		result.MaxWidth = DoubleID.MaxWidth()
	}

	switch {
	case result.TypeID.IsDecimal():
		lp, ls := numericPrecision(d), d.Scale
		rp, rs := numericPrecision(o), o.Scale
		scale := mathutil.Max(ls, rs)
		precision := scale + mathutil.Max(lp-ls, rp-rs)
		if precision > MaxDecimalPrecision {
			precision = MaxDecimalPrecision
		}
		result.Precision = precision
		result.Scale = mathutil.Min(scale, precision)
		result.MaxWidth = decimalWidth(result.Precision, result.Scale)
	case result.TypeID.IsNumeric():
		result.Precision = result.TypeID.info().precision
		result.MaxWidth = result.TypeID.MaxWidth()
	case result.TypeID.IsBinary() && lower.TypeID.IsString():
		// each character converts to a pair of hex digits in 16 bit units
		if lower.MaxWidth <= MaxLobWidth/16 {
			result.MaxWidth = mathutil.Max(higher.MaxWidth, lower.MaxWidth*16)
		}
	case result.TypeID.IsTemporal():
		result.MaxWidth = result.TypeID.MaxWidth()
	}
	if result.TypeID.IsString() && result.TypeID.MaxWidth() < result.MaxWidth && !result.TypeID.IsLong() {
		result.MaxWidth = result.TypeID.MaxWidth()
	}

	if result.TypeID.IsString() {
		result.Collation, result.Derivation = dominantCollation(d, o)
	}
	return result, nil
}

func numericPrecision(d *DataTypeDescriptor) int {
	if d.TypeID.IsDecimal() {
		return d.Precision
	}
	return d.TypeID.info().precision
}

func dominantCollation(l, r *DataTypeDescriptor) (Collation, Derivation) {
	if !l.TypeID.IsString() {
		return r.Collation, r.Derivation
	}
	if !r.TypeID.IsString() {
		return l.Collation, l.Derivation
	}
	switch {
	case l.Derivation > r.Derivation:
		return l.Collation, l.Derivation
	case r.Derivation > l.Derivation:
		return r.Collation, r.Derivation
	case l.Collation != r.Collation:
		return CollationBasic, DerivationNone
	}
	return l.Collation, l.Derivation
}

// DominantType folds Dominant over types left to right, so among equal
// precedences the earliest operand wins. The collation of a string result
// does not depend on operand order.
func DominantType(types []*DataTypeDescriptor) (*DataTypeDescriptor, error) {
	if len(types) == 0 {
		return nil, ErrInternal.New("dominant type of an empty list")
	}
	dominant := types[0]
	for _, t := range types[1:] {
		next, err := dominant.Dominant(t)
		if err != nil {
			return nil, err
		}
		dominant = next
	}
	if len(types) > 1 && dominant.TypeID.IsString() {
		dominant.Collation, dominant.Derivation = collationOf(types)
	}
	return dominant, nil
}

// collationOf settles the collation of a list of operands at once: the
// highest derivation among the string operands wins, and two different
// collations at that derivation leave none.
func collationOf(types []*DataTypeDescriptor) (Collation, Derivation) {
	collation, derivation := CollationBasic, DerivationNone
	conflict := false
	for _, t := range types {
		if !t.TypeID.IsString() {
			continue
		}
		switch {
		case t.Derivation > derivation:
			collation, derivation, conflict = t.Collation, t.Derivation, false
		case t.Derivation == derivation && t.Collation != collation:
			conflict = true
		}
	}
	if conflict || derivation == DerivationNone {
		return CollationBasic, DerivationNone
	}
	return collation, derivation
}
