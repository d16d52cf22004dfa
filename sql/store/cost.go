package store

import (
	"math"

	"planforge/sql"
)

// CompareOp is the comparison a scan predicate applies to a column.
type CompareOp int

const (
	OpEQ CompareOp = iota + 1
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpIsNull
	OpIsNotNull
	OpLike
	// OpOther is any predicate the store cannot interpret.
	OpOther
)

func (o CompareOp) String() string {
	switch o {
	case OpEQ:
		return "="
	case OpNE:
		return "<>"
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpLike:
		return "LIKE"
	}
	return "?"
}

// IsRange reports whether the operator can bound one end of a key range.
func (o CompareOp) IsRange() bool {
	return o == OpLT || o == OpLE || o == OpGT || o == OpGE
}

// ScanPredicate describes one predicate on a single column of the scanned table.
type ScanPredicate struct {
	// Column is the 1-based table column position.
	Column int
	Op     CompareOp
	// Value is the comparand when it is a compile-time constant.
	Value *sql.Value
	// Probe marks a comparand that changes per outer row, such as a join column.
	Probe bool
}

// PredicateSet is what the optimizer asks a cost controller to price.
type PredicateSet struct {
	Predicates []ScanPredicate
	// Columns are the 1-based positions the scan must return.
	Columns []int
}

// Estimate is the cost of one scan.
type Estimate struct {
	Cost               float64
	RowCount           float64
	SingleScanRowCount float64
}

// CostController prices scans of one conglomerate. Close must be idempotent.
type CostController interface {
	EstimateCost(preds *PredicateSet) (Estimate, error)
	// RowCount is the number of rows in the conglomerate.
	RowCount() float64
	// RowWidth is the average row width in bytes.
	RowWidth() float64
	Close() error
}

// StatisticsProvider opens cost controllers for tables and indexes.
type StatisticsProvider interface {
	OpenCostController(conglomerateID uint64) (CostController, error)
}

const (
	PageSize = 4096

	BaseCachedRowFetchCost    = 0.17
	BaseUncachedRowFetchCost  = 1.5
	BaseGroupScanRowCost      = 0.12
	BaseNonGroupScanFetchCost = 0.25
	BaseHashScanRowFetchCost  = 0.14
	BaseRowPerByteCost        = 0.004

	BTreeCachedFetchPerLevel   = 0.541 / 2
	BTreeUncachedFetchPerLevel = 3.143 / 2

	DefaultEqualsSelectivity  = 0.1
	DefaultNotEqSelectivity   = 0.9
	DefaultRangeSelectivity   = 0.33
	DefaultIsNullSelectivity  = 0.1
	DefaultLikeSelectivity    = 0.9
	DefaultUnknownSelectivity = 0.5
)

// HeapScanCost prices a full scan of rows rows of width bytes.
func HeapScanCost(rows, width float64) float64 {
	pages := math.Ceil(rows * width / PageSize)
	if pages < 1 {
		pages = 1
	}
	grouped := rows - pages
	if grouped < 0 {
		grouped = 0
	}
	return pages*BaseUncachedRowFetchCost + grouped*BaseGroupScanRowCost + rows*width*BaseRowPerByteCost
}

// BTreeLevels estimates the height of a btree with the given key width.
func BTreeLevels(rows, keyWidth float64) float64 {
	if keyWidth < 1 {
		keyWidth = 1
	}
	fanout := math.Max(PageSize/(keyWidth+8), 2)
	if rows <= fanout {
		return 1
	}
	return math.Ceil(math.Log(rows) / math.Log(fanout))
}

// BTreeScanCost prices positioning in a btree and scanning fraction of its
// leaf level.
func BTreeScanCost(rows, keyWidth, fraction float64) float64 {
	levels := BTreeLevels(rows, keyWidth)
	cost := levels * BTreeUncachedFetchPerLevel
	leafPages := math.Max(math.Ceil(rows*(keyWidth+8)/PageSize), 1)
	pages := leafPages * fraction
	est := rows * fraction
	cost += pages * BaseUncachedRowFetchCost
	if cached := est - pages; cached > 0 {
		cost += cached * BaseGroupScanRowCost
	}
	return cost + est*keyWidth*BaseRowPerByteCost
}

// KeyPredicates splits preds into the ones usable as start/stop keys of an
// index: equality on a leading prefix of the key, optionally followed by range
// predicates on the next key column. The returned slices index into preds.
func KeyPredicates(ix *IndexDescriptor, preds []ScanPredicate) (keys []int, rest []int) {
	used := make([]bool, len(preds))
	for _, col := range ix.Columns {
		found := false
		for i, p := range preds {
			if !used[i] && p.Column == col && p.Op == OpEQ {
				used[i] = true
				keys = append(keys, i)
				found = true
				break
			}
		}
		if found {
			continue
		}
		for i, p := range preds {
			if !used[i] && p.Column == col && p.Op.IsRange() {
				used[i] = true
				keys = append(keys, i)
			}
		}
		break
	}
	for i := range preds {
		if !used[i] {
			rest = append(rest, i)
		}
	}
	return keys, rest
}

// EqualityPrefix is the number of leading key columns bound by equality keys.
func EqualityPrefix(ix *IndexDescriptor, preds []ScanPredicate, keys []int) int {
	n := 0
	for _, col := range ix.Columns {
		bound := false
		for _, k := range keys {
			if preds[k].Column == col && preds[k].Op == OpEQ {
				bound = true
				break
			}
		}
		if !bound {
			break
		}
		n++
	}
	return n
}
