package sql

import (
	stderrors "errors"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrTableNotFound is returned when a FROM item names a table the catalog does not know.
	ErrTableNotFound = errors.NewKind("table %s does not exist")

	// ErrColumnNotFound is returned when no scope exposes a column with the referenced name.
	ErrColumnNotFound = errors.NewKind("column %s is not in any table in the FROM list")

	// ErrAmbiguousColumn is returned when an unqualified name matches columns of two tables in one scope.
	ErrAmbiguousColumn = errors.NewKind("column %s is ambiguous: it matches %s and %s")

	ErrObjectNotFound = errors.NewKind("%s %s does not exist")

	ErrDuplicateCorrelationName = errors.NewKind("table name %s appears more than once in the FROM list")

	ErrTypeMismatch = errors.NewKind("%s: operands of type %s and %s are not compatible")

	ErrUntypedNull = errors.NewKind("untyped NULL is not allowed as %s")

	ErrNotOrderable = errors.NewKind("%s: type %s is not orderable")

	ErrNotComparable = errors.NewKind("comparisons between %s and %s are not supported")

	ErrNestedAggregate = errors.NewKind("aggregate %s contains a nested aggregate")

	ErrAggregateNotAllowed = errors.NewKind("aggregates are not allowed in %s")

	ErrNotGroupingExpression = errors.NewKind("column %s must appear in the GROUP BY clause or be used in an aggregate")

	ErrInvalidCast = errors.NewKind("cannot convert %s to %s")

	ErrNotBoolean = errors.NewKind("%s must be a boolean expression, found %s")

	ErrColumnCountMismatch = errors.NewKind("%s: expected %d columns, found %d")

	ErrWrongArgumentCount = errors.NewKind("routine %s expects %d arguments, found %d")

	ErrParameterTypeUnknown = errors.NewKind("type of parameter ?%d could not be determined")

	ErrParameterNotAllowed = errors.NewKind("parameter ?%d is not allowed in %s")

	ErrTooManyColumns = errors.NewKind("table %s has %d columns, the limit is %d")

	ErrMultiplePrimaryKeys = errors.NewKind("table %s defines more than one primary key")

	ErrTooManyIndexes = errors.NewKind("table %s has %d indexes, the limit is %d")

	ErrDuplicateColumn = errors.NewKind("column %s appears more than once in table %s")

	ErrPlanNotFound = errors.NewKind("no valid execution plan for query block %d: %s")

	ErrUnsupported = errors.NewKind("%s is not supported")

	ErrCursorNotUpdatable = errors.NewKind("cursor %s is not updatable")

	ErrInternal = errors.NewKind("internal error: %s")

	// ErrParameterCount is returned when a plan is executed with the wrong number of parameter values.
	ErrParameterCount = errors.NewKind("statement expects %d parameters, %d supplied")

	ErrScalarSubqueryRows = errors.NewKind("scalar subquery %d returned more than one row")

	ErrNullNotAllowed = errors.NewKind("column %s.%s cannot accept a NULL value")

	ErrCursorNotPositioned = errors.NewKind("cursor %s is not positioned on a row")

	ErrInvalidRowCount = errors.NewKind("%s must be a non-negative integer, found %s")

	// ErrMergeCardinality is returned when one target row is matched by more than one source row.
	ErrMergeCardinality = errors.NewKind("MERGE matched row %s of %s more than once")
)

// ErrorCategory is the coarse taxonomy a compile error belongs to.
type ErrorCategory int

const (
	CategoryUnknown ErrorCategory = iota
	CategoryNameResolution
	CategoryType
	CategoryParameter
	CategoryConstraint
	CategoryPlanNotFound
	CategoryUnsupported
	CategoryInternal
	CategoryExecution
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryNameResolution:
		return "NameResolutionError"
	case CategoryType:
		return "TypeError"
	case CategoryParameter:
		return "ParameterError"
	case CategoryConstraint:
		return "ConstraintViolationAtCompileTime"
	case CategoryPlanNotFound:
		return "PlanNotFoundError"
	case CategoryUnsupported:
		return "UnsupportedConstructError"
	case CategoryInternal:
		return "InternalError"
	case CategoryExecution:
		return "ExecutionError"
	}
	return "UnknownError"
}

var categories = []struct {
	category ErrorCategory
	kinds    []*errors.Kind
}{
	{CategoryNameResolution, []*errors.Kind{ErrTableNotFound, ErrColumnNotFound, ErrAmbiguousColumn, ErrObjectNotFound, ErrDuplicateCorrelationName}},
	{CategoryType, []*errors.Kind{ErrTypeMismatch, ErrUntypedNull, ErrNotOrderable, ErrNotComparable, ErrNestedAggregate,
		ErrAggregateNotAllowed, ErrNotGroupingExpression, ErrInvalidCast, ErrNotBoolean, ErrColumnCountMismatch, ErrWrongArgumentCount}},
	{CategoryParameter, []*errors.Kind{ErrParameterTypeUnknown, ErrParameterNotAllowed}},
	{CategoryConstraint, []*errors.Kind{ErrTooManyColumns, ErrMultiplePrimaryKeys, ErrTooManyIndexes, ErrDuplicateColumn}},
	{CategoryPlanNotFound, []*errors.Kind{ErrPlanNotFound}},
	{CategoryUnsupported, []*errors.Kind{ErrUnsupported, ErrCursorNotUpdatable}},
	{CategoryInternal, []*errors.Kind{ErrInternal}},
	{CategoryExecution, []*errors.Kind{ErrParameterCount, ErrScalarSubqueryRows, ErrNullNotAllowed, ErrCursorNotPositioned, ErrInvalidRowCount, ErrMergeCardinality}},
}

// Category classifies err, looking through any wrapping added by callers.
func Category(err error) ErrorCategory {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		for _, c := range categories {
			for _, k := range c.kinds {
				if k.Is(e) {
					return c.category
				}
			}
		}
	}
	return CategoryUnknown
}

// IsKind reports whether err or anything it wraps was created from kind.
func IsKind(err error, kind *errors.Kind) bool {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if kind.Is(e) {
			return true
		}
	}
	return false
}
