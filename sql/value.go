package sql

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a runtime SQL value. A nil V is NULL; Type may be zero for an
// untyped NULL literal.
//
// Payloads: BOOLEAN bool, exact integers int64, DECIMAL/REAL/DOUBLE float64,
// string family string, binary family []byte, temporal time.Time.
type Value struct {
	Type TypeID
	V    any
}

func NewNull(t TypeID) Value { return Value{Type: t} }

func NewBool(b bool) Value { return Value{Type: BooleanID, V: b} }

func NewInt(i int64) Value { return Value{Type: IntegerID, V: i} }

func NewBigint(i int64) Value { return Value{Type: BigintID, V: i} }

func NewDouble(f float64) Value { return Value{Type: DoubleID, V: f} }

func NewDecimal(f float64) Value { return Value{Type: DecimalID, V: f} }

func NewVarchar(s string) Value { return Value{Type: VarcharID, V: s} }

func NewChar(s string) Value { return Value{Type: CharID, V: s} }

func NewBytes(b []byte) Value { return Value{Type: VarbitID, V: b} }

func NewTimestamp(t time.Time) Value { return Value{Type: TimestampID, V: t} }

func (v Value) IsNull() bool { return v.V == nil }

func (v Value) String() string {
	if v.V == nil {
		return "NULL"
	}
	switch x := v.V.(type) {
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case []byte:
		return fmt.Sprintf("%x", x)
	case time.Time:
		switch v.Type {
		case DateID:
			return x.Format("2006-01-02")
		case TimeID:
			return x.Format("15:04:05")
		}
		return x.Format("2006-01-02 15:04:05.999999999")
	}
	return fmt.Sprint(v.V)
}

// Literal renders the value the way it would be written in SQL text.
func (v Value) Literal() string {
	if v.V == nil {
		return "NULL"
	}
	switch x := v.V.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return fmt.Sprintf("X'%x'", x)
	case time.Time:
		return v.Type.String() + " '" + v.String() + "'"
	}
	return v.String()
}

// Compare orders two non-null values of comparable types. The bool result is
// false when the pair cannot be compared. NULL sorts after every value.
func (v Value) Compare(other Value) (int, bool) {
	if v.V == nil && other.V == nil {
		return 0, true
	}
	if v.V == nil {
		return 1, true
	}
	if other.V == nil {
		return -1, true
	}
	switch a := v.V.(type) {
	case bool:
		b, ok := other.V.(bool)
		if !ok {
			return 0, false
		}
		if a == b {
			return 0, true
		}
		if !a && b {
			return -1, true
		}
		return 1, true
	case int64:
		switch b := other.V.(type) {
		case int64:
			return compareOrdered(a, b), true
		case float64:
			return compareOrdered(float64(a), b), true
		}
	case float64:
		switch b := other.V.(type) {
		case int64:
			return compareOrdered(a, float64(b)), true
		case float64:
			return compareOrdered(a, b), true
		}
	case string:
		switch b := other.V.(type) {
		case string:
			if v.Type == CharID || other.Type == CharID {
				a, b = strings.TrimRight(a, " "), strings.TrimRight(b, " ")
			}
			return strings.Compare(a, b), true
		case time.Time:
			t, err := parseTemporal(other.Type, a)
			if err != nil {
				return 0, false
			}
			return compareTime(t, b), true
		}
	case []byte:
		if b, ok := other.V.([]byte); ok {
			return bytes.Compare(a, b), true
		}
	case time.Time:
		switch b := other.V.(type) {
		case time.Time:
			return compareTime(a, b), true
		case string:
			t, err := parseTemporal(v.Type, b)
			if err != nil {
				return 0, false
			}
			return compareTime(a, t), true
		}
	}
	return 0, false
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// Equal is SQL equality on non-null values; used for grouping and set operations.
func (v Value) Equal(other Value) bool {
	c, ok := v.Compare(other)
	return ok && c == 0
}

func parseTemporal(t TypeID, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{"2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"}
	switch t {
	case DateID:
		layouts = []string{"2006-01-02"}
	case TimeID:
		layouts = []string{"15:04:05", "15:04"}
	}
	var err error
	for _, layout := range layouts {
		var ts time.Time
		if ts, err = time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

// Convert casts v to target. Width limits are enforced by truncating trailing
// blanks only; any other overflow is an error.
func (v Value) Convert(target *DataTypeDescriptor) (Value, error) {
	if v.V == nil {
		return NewNull(target.TypeID), nil
	}
	out := Value{Type: target.TypeID}
	switch target.Class() {
	case ClassBoolean:
		switch x := v.V.(type) {
		case bool:
			out.V = x
		case int64:
			out.V = x != 0
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return Value{}, ErrInvalidCast.New(v.Literal(), target)
			}
			out.V = b
		default:
			return Value{}, ErrInvalidCast.New(v.Literal(), target)
		}
	case ClassNumeric:
		var f float64
		switch x := v.V.(type) {
		case int64:
			f = float64(x)
		case float64:
			f = x
		case bool:
			if x {
				f = 1
			}
		case string:
			p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return Value{}, ErrInvalidCast.New(v.Literal(), target)
			}
			f = p
		default:
			return Value{}, ErrInvalidCast.New(v.Literal(), target)
		}
		if target.TypeID.IsExactInteger() {
			if f > math.MaxInt64 || f < math.MinInt64 {
				return Value{}, ErrInvalidCast.New(v.Literal(), target)
			}
			out.V = int64(f)
		} else {
			out.V = f
		}
	case ClassString:
		s := v.String()
		if target.TypeID == CharID && len(s) < target.MaxWidth {
			s += strings.Repeat(" ", target.MaxWidth-len(s))
		}
		if target.MaxWidth > 0 && len(s) > target.MaxWidth {
			if strings.TrimRight(s[target.MaxWidth:], " ") != "" {
				return Value{}, ErrInvalidCast.New(v.Literal(), target)
			}
			s = s[:target.MaxWidth]
		}
		out.V = s
	case ClassBinary:
		switch x := v.V.(type) {
		case []byte:
			out.V = x
		case string:
			out.V = []byte(x)
		default:
			return Value{}, ErrInvalidCast.New(v.Literal(), target)
		}
	case ClassTemporal:
		switch x := v.V.(type) {
		case time.Time:
			out.V = x
		case string:
			t, err := parseTemporal(target.TypeID, x)
			if err != nil {
				return Value{}, ErrInvalidCast.New(v.Literal(), target)
			}
			out.V = t
		default:
			return Value{}, ErrInvalidCast.New(v.Literal(), target)
		}
	default:
		out.V = v.V
	}
	return out, nil
}

// Arithmetic applies op to two non-null numeric values.
func (v Value) Arithmetic(op ArithmeticOp, other Value, result TypeID) (Value, error) {
	if v.V == nil || other.V == nil {
		return NewNull(result), nil
	}
	if result.IsExactInteger() {
		a, aok := v.V.(int64)
		b, bok := other.V.(int64)
		if aok && bok {
			switch op {
			case OpPlus:
				return Value{Type: result, V: a + b}, nil
			case OpMinus:
				return Value{Type: result, V: a - b}, nil
			case OpTimes:
				return Value{Type: result, V: a * b}, nil
			case OpDivide:
				if b == 0 {
					return Value{}, ErrInvalidCast.New("division by zero", result)
				}
				return Value{Type: result, V: a / b}, nil
			case OpMod:
				if b == 0 {
					return Value{}, ErrInvalidCast.New("division by zero", result)
				}
				return Value{Type: result, V: a % b}, nil
			}
		}
	}
	a, err := toFloat(v)
	if err != nil {
		return Value{}, err
	}
	b, err := toFloat(other)
	if err != nil {
		return Value{}, err
	}
	var f float64
	switch op {
	case OpPlus:
		f = a + b
	case OpMinus:
		f = a - b
	case OpTimes:
		f = a * b
	case OpDivide:
		if b == 0 {
			return Value{}, ErrInvalidCast.New("division by zero", result)
		}
		f = a / b
	case OpMod:
		f = math.Mod(a, b)
	}
	if result.IsExactInteger() {
		return Value{Type: result, V: int64(f)}, nil
	}
	return Value{Type: result, V: f}, nil
}

func toFloat(v Value) (float64, error) {
	switch x := v.V.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, ErrTypeMismatch.New("arithmetic", v.Type, DoubleID)
}

// Row is one tuple flowing between operators.
type Row []Value

func (r Row) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// CompareRows orders rows on their first n columns.
func CompareRows(a, b Row, n int) int {
	for i := 0; i < n && i < len(a) && i < len(b); i++ {
		if c, _ := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}
