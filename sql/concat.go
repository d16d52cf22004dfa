package sql

// ResolveConcatenation returns the result type of left || right. Both operands
// must already be string or binary typed. The width grows to the sum of the
// operand widths and the type escalates fixed -> variable -> long whenever the
// sum overflows the current family member.
func ResolveConcatenation(left, right *DataTypeDescriptor) (*DataTypeDescriptor, error) {
	l, r := left.TypeID, right.TypeID
	switch {
	case l.IsString() && r.IsString():
	case l.IsBinary() && r.IsBinary():
	default:
		return nil, ErrTypeMismatch.New("||", left, right)
	}

	width := concatWidth(left.MaxWidth, right.MaxWidth)
	nullable := left.Nullable || right.Nullable

	var result *DataTypeDescriptor
	if l.IsString() {
		result = NewStringDescriptor(concatFamily(l, r, width, CharID, VarcharID, LongVarcharID, ClobID), width, nullable)
		result.Collation, result.Derivation = dominantCollation(left, right)
	} else {
		result = NewStringDescriptor(concatFamily(l, r, width, BitID, VarbitID, LongVarbitID, BlobID), width, nullable)
	}
	if result.TypeID == LongVarcharID || result.TypeID == LongVarbitID {
		result.MaxWidth = MaxLongVarcharWidth
	}
	return result, nil
}

func concatFamily(l, r TypeID, width int, fixed, variable, long, lob TypeID) TypeID {
	if l == lob || r == lob || width > MaxLongVarcharWidth {
		return lob
	}
	if l == long || r == long || width > variable.MaxWidth() {
		return long
	}
	if l == variable || r == variable || width > fixed.MaxWidth() {
		return variable
	}
	return fixed
}

func concatWidth(l, r int) int {
	if l > MaxLobWidth-r {
		return MaxLobWidth
	}
	return l + r
}
