package store

import (
	"strconv"
	"strings"

	"github.com/google/btree"
	"github.com/sasha-s/go-deadlock"

	"planforge/sql"
)

type tableEntry struct {
	key      string
	desc     *TableDescriptor
	rows     []sql.Row
	rowCount float64
	hasCount bool
	distinct map[int]float64
}

func (e *tableEntry) cardinality() float64 {
	if e.hasCount {
		return e.rowCount
	}
	return float64(len(e.rows))
}

type indexEntry struct {
	key   sql.Row
	rowID int
}

type indexData struct {
	table *tableEntry
	desc  *IndexDescriptor
	tree  *btree.BTreeG[indexEntry]
}

func newIndexTree(width int) *btree.BTreeG[indexEntry] {
	return btree.NewG[indexEntry](32, func(a, b indexEntry) bool {
		if c := sql.CompareRows(a.key, b.key, width); c != 0 {
			return c < 0
		}
		return a.rowID < b.rowID
	})
}

// MemoryCatalog is an in-memory catalog, statistics provider and row store.
// It is safe for concurrent use by independent compilations.
type MemoryCatalog struct {
	mu       deadlock.RWMutex
	tables   *btree.BTreeG[*tableEntry]
	routines *btree.BTreeG[*RoutineDescriptor]
	heaps    map[uint64]*tableEntry
	indexes  map[uint64]*indexData
	nextID   uint64
	open     int
	opened   int
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		tables: btree.NewG[*tableEntry](16, func(a, b *tableEntry) bool {
			return a.key < b.key
		}),
		routines: btree.NewG[*RoutineDescriptor](16, func(a, b *RoutineDescriptor) bool {
			return a.QualifiedName() < b.QualifiedName()
		}),
		heaps:   map[uint64]*tableEntry{},
		indexes: map[uint64]*indexData{},
		nextID:  1,
	}
}

func qualify(schema, name string) string {
	if schema == "" {
		schema = DefaultSchema
	}
	return strings.ToUpper(schema) + "." + strings.ToUpper(name)
}

func (c *MemoryCatalog) lookup(schema, name string) (*tableEntry, bool) {
	return c.tables.Get(&tableEntry{key: qualify(schema, name)})
}

func (c *MemoryCatalog) ResolveTable(schema, name string) (*TableDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.lookup(schema, name)
	if !ok {
		return nil, sql.ErrTableNotFound.New(qualify(schema, name))
	}
	return entry.desc, nil
}

func (c *MemoryCatalog) ResolveColumn(table *TableDescriptor, name string) (*ColumnDescriptor, error) {
	column, ok := table.Column(name)
	if !ok {
		return nil, sql.ErrColumnNotFound.New(table.Name + "." + strings.ToUpper(name))
	}
	return column, nil
}

func (c *MemoryCatalog) ResolveRoutine(schema, name string) (*RoutineDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if schema == "" {
		schema = DefaultSchema
	}
	r, ok := c.routines.Get(&RoutineDescriptor{Schema: strings.ToUpper(schema), Name: strings.ToUpper(name)})
	if !ok {
		return nil, sql.ErrObjectNotFound.New("FUNCTION", qualify(schema, name))
	}
	return r, nil
}

// CreateTable registers a table. Column positions are assigned in order.
func (c *MemoryCatalog) CreateTable(schema, name string, columns []*ColumnDescriptor) (*TableDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if schema == "" {
		schema = DefaultSchema
	}
	key := qualify(schema, name)
	if _, ok := c.tables.Get(&tableEntry{key: key}); ok {
		return nil, sql.ErrUnsupported.New("re-creating table " + key)
	}
	desc := &TableDescriptor{
		Schema:         strings.ToUpper(schema),
		Name:           strings.ToUpper(name),
		ConglomerateID: c.nextID,
	}
	c.nextID++
	seen := map[string]bool{}
	for i, col := range columns {
		col.Name = strings.ToUpper(col.Name)
		if seen[col.Name] {
			return nil, sql.ErrDuplicateColumn.New(col.Name, key)
		}
		seen[col.Name] = true
		col.Position = i + 1
		desc.Columns = append(desc.Columns, col)
	}
	entry := &tableEntry{key: key, desc: desc, distinct: map[int]float64{}}
	c.tables.ReplaceOrInsert(entry)
	c.heaps[desc.ConglomerateID] = entry
	return desc, nil
}

// CreateIndex adds an index over the named columns and populates it from
// the rows already stored.
func (c *MemoryCatalog) CreateIndex(schema, table, name string, unique bool, columns ...string) (*IndexDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(schema, table)
	if !ok {
		return nil, sql.ErrTableNotFound.New(qualify(schema, table))
	}
	ix := &IndexDescriptor{Name: strings.ToUpper(name), ConglomerateID: c.nextID, Unique: unique}
	c.nextID++
	for _, colName := range columns {
		col, ok := entry.desc.Column(colName)
		if !ok {
			return nil, sql.ErrColumnNotFound.New(entry.desc.Name + "." + strings.ToUpper(colName))
		}
		ix.Columns = append(ix.Columns, col.Position)
	}
	data := &indexData{table: entry, desc: ix, tree: newIndexTree(len(ix.Columns))}
	for id, row := range entry.rows {
		data.tree.ReplaceOrInsert(indexEntry{key: indexKey(ix, row), rowID: id})
	}
	entry.desc.Indexes = append(entry.desc.Indexes, ix)
	c.indexes[ix.ConglomerateID] = data
	return ix, nil
}

// AddConstraint records a key constraint; primary and unique keys get a backing unique index.
func (c *MemoryCatalog) AddConstraint(schema, table string, con *ConstraintDescriptor) error {
	desc, err := c.ResolveTable(schema, table)
	if err != nil {
		return err
	}
	if con.Type == PrimaryKeyConstraint || con.Type == UniqueConstraint {
		var names []string
		for _, pos := range con.Columns {
			names = append(names, desc.Columns[pos-1].Name)
		}
		if con.IndexName == "" {
			con.IndexName = "SQL_" + desc.Name + "_" + strings.Join(names, "_")
		}
		if _, err := c.CreateIndex(schema, table, con.IndexName, true, names...); err != nil {
			return err
		}
	}
	c.mu.Lock()
	desc.Constraints = append(desc.Constraints, con)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) CreateRoutine(r *RoutineDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Schema == "" {
		r.Schema = DefaultSchema
	}
	r.Schema, r.Name = strings.ToUpper(r.Schema), strings.ToUpper(r.Name)
	c.routines.ReplaceOrInsert(r)
}

// SetRowCount overrides the row count statistic of a table.
func (c *MemoryCatalog) SetRowCount(schema, table string, rows float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(schema, table)
	if !ok {
		return sql.ErrTableNotFound.New(qualify(schema, table))
	}
	entry.rowCount, entry.hasCount = rows, true
	return nil
}

// SetDistinct records the number of distinct values of a column.
func (c *MemoryCatalog) SetDistinct(schema, table, column string, distinct float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(schema, table)
	if !ok {
		return sql.ErrTableNotFound.New(qualify(schema, table))
	}
	col, ok := entry.desc.Column(column)
	if !ok {
		return sql.ErrColumnNotFound.New(entry.desc.Name + "." + strings.ToUpper(column))
	}
	entry.distinct[col.Position] = distinct
	return nil
}

func (c *MemoryCatalog) Insert(schema, table string, rows ...sql.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(schema, table)
	if !ok {
		return sql.ErrTableNotFound.New(qualify(schema, table))
	}
	for _, row := range rows {
		if len(row) != len(entry.desc.Columns) {
			return sql.ErrColumnCountMismatch.New("INSERT INTO "+entry.desc.Name, len(entry.desc.Columns), len(row))
		}
		id := len(entry.rows)
		entry.rows = append(entry.rows, row)
		for _, ix := range entry.desc.Indexes {
			c.indexes[ix.ConglomerateID].tree.ReplaceOrInsert(indexEntry{key: indexKey(ix, row), rowID: id})
		}
	}
	return nil
}

func indexKey(ix *IndexDescriptor, row sql.Row) sql.Row {
	key := make(sql.Row, len(ix.Columns))
	for i, pos := range ix.Columns {
		key[i] = row[pos-1]
	}
	return key
}

// Rows returns the rows of the table stored in conglomerate id.
func (c *MemoryCatalog) Rows(id uint64) ([]sql.Row, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.heaps[id]
	if !ok {
		return nil, sql.ErrObjectNotFound.New("CONGLOMERATE", strconv.FormatUint(id, 10))
	}
	return entry.rows, nil
}

// KeyRange bounds an index scan. Nil keys are open ends; keys may be a
// prefix of the index key.
type KeyRange struct {
	Start          sql.Row
	StartInclusive bool
	Stop           sql.Row
	StopInclusive  bool
}

// ScanIndex calls fn with the row id and base row of every index entry in
// r, in key order, until fn returns false.
func (c *MemoryCatalog) ScanIndex(id uint64, r KeyRange, fn func(rowID int, row sql.Row) bool) error {
	c.mu.RLock()
	data, ok := c.indexes[id]
	c.mu.RUnlock()
	if !ok {
		return sql.ErrObjectNotFound.New("INDEX", strconv.FormatUint(id, 10))
	}
	var entries []indexEntry
	c.mu.RLock()
	data.tree.Ascend(func(e indexEntry) bool {
		if r.Start != nil {
			cmp := sql.CompareRows(e.key, r.Start, len(r.Start))
			if cmp < 0 || (cmp == 0 && !r.StartInclusive) {
				return true
			}
		}
		if r.Stop != nil {
			cmp := sql.CompareRows(e.key, r.Stop, len(r.Stop))
			if cmp > 0 || (cmp == 0 && !r.StopInclusive) {
				return false
			}
		}
		entries = append(entries, e)
		return true
	})
	rows := data.table.rows
	c.mu.RUnlock()
	for _, e := range entries {
		if !fn(e.rowID, rows[e.rowID]) {
			break
		}
	}
	return nil
}

// OpenControllers is the number of cost controllers not yet closed.
func (c *MemoryCatalog) OpenControllers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// OpenedControllers is the total number of cost controllers ever opened.
func (c *MemoryCatalog) OpenedControllers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opened
}

func (c *MemoryCatalog) OpenCostController(id uint64) (CostController, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.heaps[id]; ok {
		c.open++
		c.opened++
		return &heapCostController{catalog: c, entry: entry}, nil
	}
	if data, ok := c.indexes[id]; ok {
		c.open++
		c.opened++
		return &indexCostController{heapCostController: heapCostController{catalog: c, entry: data.table}, index: data.desc}, nil
	}
	return nil, sql.ErrObjectNotFound.New("CONGLOMERATE", strconv.FormatUint(id, 10))
}

type heapCostController struct {
	catalog *MemoryCatalog
	entry   *tableEntry
	closed  bool
}

func (h *heapCostController) RowCount() float64 {
	h.catalog.mu.RLock()
	defer h.catalog.mu.RUnlock()
	return h.entry.cardinality()
}

func (h *heapCostController) RowWidth() float64 {
	return float64(h.entry.desc.RowWidth())
}

func (h *heapCostController) EstimateCost(ps *PredicateSet) (Estimate, error) {
	if h.closed {
		return Estimate{}, sql.ErrInternal.New("cost controller used after close")
	}
	rows := h.RowCount()
	cost := HeapScanCost(rows, h.RowWidth())
	all := make([]int, len(ps.Predicates))
	for i := range all {
		all[i] = i
	}
	out := rows * h.selectivity(ps.Predicates, all)
	return Estimate{Cost: cost, RowCount: out, SingleScanRowCount: out}, nil
}

func (h *heapCostController) selectivity(preds []ScanPredicate, which []int) float64 {
	sel := 1.0
	for _, i := range which {
		sel *= h.predicateSelectivity(preds[i])
	}
	return sel
}

func (h *heapCostController) predicateSelectivity(p ScanPredicate) float64 {
	h.catalog.mu.RLock()
	distinct := h.entry.distinct[p.Column]
	rows := h.entry.cardinality()
	h.catalog.mu.RUnlock()

	var col *ColumnDescriptor
	if p.Column >= 1 && p.Column <= len(h.entry.desc.Columns) {
		col = h.entry.desc.Columns[p.Column-1]
	}
	eq := DefaultEqualsSelectivity
	switch {
	case distinct > 0:
		eq = 1 / distinct
	case h.uniqueColumn(p.Column) && rows > 0:
		eq = 1 / rows
	}
	switch p.Op {
	case OpEQ:
		return eq
	case OpNE:
		return 1 - eq
	case OpLT, OpLE, OpGT, OpGE:
		return DefaultRangeSelectivity
	case OpIsNull:
		if col != nil && !col.Type.Nullable {
			return 0
		}
		return DefaultIsNullSelectivity
	case OpIsNotNull:
		if col != nil && !col.Type.Nullable {
			return 1
		}
		return 1 - DefaultIsNullSelectivity
	case OpLike:
		return DefaultLikeSelectivity
	}
	return DefaultUnknownSelectivity
}

func (h *heapCostController) uniqueColumn(column int) bool {
	for _, ix := range h.entry.desc.Indexes {
		if ix.Unique && len(ix.Columns) == 1 && ix.Columns[0] == column {
			return true
		}
	}
	return false
}

func (h *heapCostController) Close() error {
	h.catalog.mu.Lock()
	defer h.catalog.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.catalog.open--
	return nil
}

type indexCostController struct {
	heapCostController
	index *IndexDescriptor
}

func (ic *indexCostController) keyWidth() float64 {
	width := 0
	for _, pos := range ic.index.Columns {
		width += columnWidth(ic.entry.desc.Columns[pos-1].Type)
	}
	return float64(width)
}

func (ic *indexCostController) EstimateCost(ps *PredicateSet) (Estimate, error) {
	if ic.closed {
		return Estimate{}, sql.ErrInternal.New("cost controller used after close")
	}
	rows := ic.RowCount()
	keys, rest := KeyPredicates(ic.index, ps.Predicates)

	fraction := ic.selectivity(ps.Predicates, keys)
	if ic.index.Unique && EqualityPrefix(ic.index, ps.Predicates, keys) == len(ic.index.Columns) {
		fraction = 1
		if rows > 1 {
			fraction = 1 / rows
		}
	}
	cost := BTreeScanCost(rows, ic.keyWidth(), fraction)
	scanned := rows * fraction
	if !ic.index.Covers(ps.Columns) {
		cost += scanned * (BaseNonGroupScanFetchCost + ic.RowWidth()*BaseRowPerByteCost)
	}
	out := scanned * ic.selectivity(ps.Predicates, rest)
	return Estimate{Cost: cost, RowCount: out, SingleScanRowCount: out}, nil
}
