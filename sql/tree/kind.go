package tree

// Kind tags every node variant.
type Kind int

const (
	KindConstant Kind = iota + 1
	KindColumnReference
	KindVirtualColumn
	KindParameter
	KindBinaryRelational
	KindBinaryArithmetic
	KindConcatenation
	KindLike
	KindAnd
	KindOr
	KindNot
	KindIsNull
	KindUnaryMinus
	KindCast
	KindConditional
	KindCoalesce
	KindAggregate
	KindWindowFunction
	KindRoutineCall
	KindSubquery
	KindResultColumn
	KindFromBaseTable
	KindFromSubquery
	KindJoin
	KindSelect
	KindSetOperator
	KindRowResultSet
	KindProjectRestrict
	KindCursor
	KindInsert
	KindUpdate
	KindDelete
	KindMerge
	KindMatchingClause
	KindCreateTable
	kindCount
)

var kindNames = [...]string{
	KindConstant:         "Constant",
	KindColumnReference:  "ColumnReference",
	KindVirtualColumn:    "VirtualColumn",
	KindParameter:        "Parameter",
	KindBinaryRelational: "BinaryRelational",
	KindBinaryArithmetic: "BinaryArithmetic",
	KindConcatenation:    "Concatenation",
	KindLike:             "Like",
	KindAnd:              "And",
	KindOr:               "Or",
	KindNot:              "Not",
	KindIsNull:           "IsNull",
	KindUnaryMinus:       "UnaryMinus",
	KindCast:             "Cast",
	KindConditional:      "Conditional",
	KindCoalesce:         "Coalesce",
	KindAggregate:        "Aggregate",
	KindWindowFunction:   "WindowFunction",
	KindRoutineCall:      "RoutineCall",
	KindSubquery:         "Subquery",
	KindResultColumn:     "ResultColumn",
	KindFromBaseTable:    "FromBaseTable",
	KindFromSubquery:     "FromSubquery",
	KindJoin:             "Join",
	KindSelect:           "Select",
	KindSetOperator:      "SetOperator",
	KindRowResultSet:     "RowResultSet",
	KindProjectRestrict:  "ProjectRestrict",
	KindCursor:           "Cursor",
	KindInsert:           "Insert",
	KindUpdate:           "Update",
	KindDelete:           "Delete",
	KindMerge:            "Merge",
	KindMatchingClause:   "MatchingClause",
	KindCreateTable:      "CreateTable",
}

func (k Kind) String() string {
	if k <= 0 || k >= kindCount {
		return "Unknown"
	}
	return kindNames[k]
}
