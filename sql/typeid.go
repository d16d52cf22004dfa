package sql

// TypeID identifies a built-in SQL type, or the single user-defined type slot.
type TypeID int

const (
	BooleanID TypeID = iota + 1
	SmallintID
	IntegerID
	BigintID
	DecimalID
	NumericID
	RealID
	DoubleID
	CharID
	VarcharID
	LongVarcharID
	ClobID
	BitID
	VarbitID
	LongVarbitID
	BlobID
	DateID
	TimeID
	TimestampID
	UserID
)

// TypeClass groups type ids that share a type compiler.
type TypeClass int

const (
	ClassBoolean TypeClass = iota + 1
	ClassNumeric
	ClassString
	ClassBinary
	ClassTemporal
	ClassUser
)

func (c TypeClass) String() string {
	switch c {
	case ClassBoolean:
		return "boolean"
	case ClassNumeric:
		return "numeric"
	case ClassString:
		return "string"
	case ClassBinary:
		return "binary"
	case ClassTemporal:
		return "temporal"
	case ClassUser:
		return "user"
	}
	return "unknown"
}

// Width limits of the string and binary families.
const (
	MaxCharWidth        = 254
	MaxVarcharWidth     = 4000
	MaxLongVarcharWidth = 32700
	MaxLobWidth         = 2147483647

	MaxDecimalPrecision = 31
	MinDecimalDivide    = 4
)

type typeInfo struct {
	name       string
	precedence int
	class      TypeClass
	// maxWidth is the width limit in characters or bytes, or the storage size
	// for numeric and temporal types.
	maxWidth     int
	precision    int
	maxPrecision int
	orderable    bool
	fixed        bool
	long         bool
}

var typeInfos = map[TypeID]typeInfo{
	BooleanID:     {name: "BOOLEAN", precedence: 130, class: ClassBoolean, maxWidth: 1, precision: 1, maxPrecision: 1, orderable: true, fixed: true},
	SmallintID:    {name: "SMALLINT", precedence: 40, class: ClassNumeric, maxWidth: 2, precision: 5, maxPrecision: 5, orderable: true, fixed: true},
	IntegerID:     {name: "INTEGER", precedence: 50, class: ClassNumeric, maxWidth: 4, precision: 10, maxPrecision: 10, orderable: true, fixed: true},
	BigintID:      {name: "BIGINT", precedence: 60, class: ClassNumeric, maxWidth: 8, precision: 19, maxPrecision: 19, orderable: true, fixed: true},
	DecimalID:     {name: "DECIMAL", precedence: 70, class: ClassNumeric, maxWidth: 32, precision: 5, maxPrecision: MaxDecimalPrecision, orderable: true},
	NumericID:     {name: "NUMERIC", precedence: 69, class: ClassNumeric, maxWidth: 32, precision: 5, maxPrecision: MaxDecimalPrecision, orderable: true},
	RealID:        {name: "REAL", precedence: 80, class: ClassNumeric, maxWidth: 4, precision: 7, maxPrecision: 7, orderable: true, fixed: true},
	DoubleID:      {name: "DOUBLE", precedence: 90, class: ClassNumeric, maxWidth: 8, precision: 15, maxPrecision: 15, orderable: true, fixed: true},
	CharID:        {name: "CHAR", precedence: 0, class: ClassString, maxWidth: MaxCharWidth, orderable: true, fixed: true},
	VarcharID:     {name: "VARCHAR", precedence: 10, class: ClassString, maxWidth: MaxVarcharWidth, orderable: true},
	LongVarcharID: {name: "LONG VARCHAR", precedence: 12, class: ClassString, maxWidth: MaxLongVarcharWidth, long: true},
	ClobID:        {name: "CLOB", precedence: 14, class: ClassString, maxWidth: MaxLobWidth, long: true},
	BitID:         {name: "CHAR FOR BIT DATA", precedence: 140, class: ClassBinary, maxWidth: MaxCharWidth, orderable: true, fixed: true},
	VarbitID:      {name: "VARCHAR FOR BIT DATA", precedence: 150, class: ClassBinary, maxWidth: MaxVarcharWidth, orderable: true},
	LongVarbitID:  {name: "LONG VARCHAR FOR BIT DATA", precedence: 160, class: ClassBinary, maxWidth: MaxLongVarcharWidth, long: true},
	BlobID:        {name: "BLOB", precedence: 170, class: ClassBinary, maxWidth: MaxLobWidth, long: true},
	DateID:        {name: "DATE", precedence: 100, class: ClassTemporal, maxWidth: 10, orderable: true, fixed: true},
	TimeID:        {name: "TIME", precedence: 120, class: ClassTemporal, maxWidth: 8, orderable: true, fixed: true},
	TimestampID:   {name: "TIMESTAMP", precedence: 110, class: ClassTemporal, maxWidth: 29, orderable: true, fixed: true},
	UserID:        {name: "USER", precedence: 1000, class: ClassUser, maxWidth: -1},
}

func (t TypeID) info() typeInfo {
	info, ok := typeInfos[t]
	if !ok {
		return typeInfo{name: "UNKNOWN", precedence: -1}
	}
	return info
}

func (t TypeID) String() string { return t.info().name }

// Precedence orders types for dominant-type resolution; higher wins.
func (t TypeID) Precedence() int { return t.info().precedence }

func (t TypeID) Class() TypeClass { return t.info().class }

func (t TypeID) MaxWidth() int { return t.info().maxWidth }

func (t TypeID) MaxPrecision() int { return t.info().maxPrecision }

// Orderable reports whether values can be sorted and compared with < and >.
func (t TypeID) Orderable() bool { return t.info().orderable }

func (t TypeID) IsFixedWidth() bool { return t.info().fixed }

// IsLong reports the unbounded variants: LONG VARCHAR, CLOB and their binary twins.
func (t TypeID) IsLong() bool { return t.info().long }

func (t TypeID) IsNumeric() bool { return t.Class() == ClassNumeric }

func (t TypeID) IsString() bool { return t.Class() == ClassString }

func (t TypeID) IsBinary() bool { return t.Class() == ClassBinary }

func (t TypeID) IsTemporal() bool { return t.Class() == ClassTemporal }

func (t TypeID) IsDecimal() bool { return t == DecimalID || t == NumericID }

func (t TypeID) IsApproximate() bool { return t == RealID || t == DoubleID }

func (t TypeID) IsExactInteger() bool {
	return t == SmallintID || t == IntegerID || t == BigintID
}

// LookupTypeID maps a type name as written in DDL to its id.
func LookupTypeID(name string) (TypeID, bool) {
	switch name {
	case "BOOLEAN", "BOOL":
		return BooleanID, true
	case "SMALLINT":
		return SmallintID, true
	case "INT", "INTEGER":
		return IntegerID, true
	case "BIGINT":
		return BigintID, true
	case "DECIMAL", "DEC":
		return DecimalID, true
	case "NUMERIC":
		return NumericID, true
	case "REAL":
		return RealID, true
	case "DOUBLE", "FLOAT", "DOUBLE PRECISION":
		return DoubleID, true
	case "CHAR", "CHARACTER":
		return CharID, true
	case "VARCHAR", "STRING", "TEXT":
		return VarcharID, true
	case "LONG VARCHAR":
		return LongVarcharID, true
	case "CLOB":
		return ClobID, true
	case "CHAR FOR BIT DATA":
		return BitID, true
	case "VARCHAR FOR BIT DATA":
		return VarbitID, true
	case "LONG VARCHAR FOR BIT DATA":
		return LongVarbitID, true
	case "BLOB":
		return BlobID, true
	case "DATE":
		return DateID, true
	case "TIME":
		return TimeID, true
	case "TIMESTAMP":
		return TimestampID, true
	}
	return 0, false
}
