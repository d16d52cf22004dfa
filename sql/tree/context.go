package tree

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"planforge/logger"
	"planforge/sql/store"
)

// CursorInfo is what a positioned UPDATE or DELETE needs from a declared cursor.
type CursorInfo struct {
	Name          string
	Schema        string
	Table         string
	UpdateColumns []string
}

// CursorRegistry resolves cursor names for WHERE CURRENT OF.
type CursorRegistry interface {
	LookupCursor(name string) (*CursorInfo, bool)
}

// CompilerContext holds the per-statement state of one compilation. It is
// owned by a single compile at a time and must be Reset before reuse.
type CompilerContext struct {
	ID      uuid.UUID
	Catalog store.Catalog
	Stats   store.StatisticsProvider
	Cursors CursorRegistry

	factory *Factory

	nextColumn    int
	nextTable     int
	nextSubquery  int
	nextResultSet int
	nextPredicate int
	nextEquiv     int

	parameters []*Parameter

	controllers     map[uint64]store.CostController
	controllerOrder []uint64
}

func NewCompilerContext(catalog store.Catalog, stats store.StatisticsProvider) *CompilerContext {
	ctx := &CompilerContext{
		ID:          uuid.New(),
		Catalog:     catalog,
		Stats:       stats,
		controllers: map[uint64]store.CostController{},
	}
	ctx.factory = newFactory(ctx)
	return ctx
}

func (c *CompilerContext) Factory() *Factory { return c.factory }

func (c *CompilerContext) NextColumnNumber() int {
	c.nextColumn++
	return c.nextColumn
}

func (c *CompilerContext) NextTableNumber() int {
	n := c.nextTable
	c.nextTable++
	return n
}

func (c *CompilerContext) NextSubqueryNumber() int {
	n := c.nextSubquery
	c.nextSubquery++
	return n
}

func (c *CompilerContext) NextResultSetNumber() int {
	n := c.nextResultSet
	c.nextResultSet++
	return n
}

func (c *CompilerContext) NextPredicateNumber() int {
	c.nextPredicate++
	return c.nextPredicate
}

func (c *CompilerContext) NextEquivalenceClass() int {
	c.nextEquiv++
	return c.nextEquiv
}

// TableCount is the number of table numbers handed out so far.
func (c *CompilerContext) TableCount() int { return c.nextTable }

func (c *CompilerContext) PredicateCount() int { return c.nextPredicate }

// AddParameter numbers p and records it; parameters are numbered from 1.
func (c *CompilerContext) AddParameter(p *Parameter) {
	c.parameters = append(c.parameters, p)
	p.Number = len(c.parameters)
}

func (c *CompilerContext) Parameters() []*Parameter { return c.parameters }

// CostController returns the controller for a conglomerate, opening it on
// first use. At most one controller per conglomerate is open per compile.
func (c *CompilerContext) CostController(conglomerateID uint64) (store.CostController, error) {
	if cc, ok := c.controllers[conglomerateID]; ok {
		return cc, nil
	}
	if c.Stats == nil {
		return nil, errors.New("no statistics provider")
	}
	cc, err := c.Stats.OpenCostController(conglomerateID)
	if err != nil {
		return nil, errors.Wrapf(err, "open cost controller %d", conglomerateID)
	}
	c.controllers[conglomerateID] = cc
	c.controllerOrder = append(c.controllerOrder, conglomerateID)
	return cc, nil
}

// OpenControllers is the number of cost controllers held by this compile.
func (c *CompilerContext) OpenControllers() int { return len(c.controllers) }

func (c *CompilerContext) closeControllers() error {
	var first error
	for _, id := range c.controllerOrder {
		if err := c.controllers[id].Close(); err != nil {
			logger.Warnf("closing cost controller %d: %v", id, err)
			if first == nil {
				first = err
			}
		}
	}
	c.controllers = map[uint64]store.CostController{}
	c.controllerOrder = nil
	return first
}

// Finish ends a successful compile and releases the cost controllers.
func (c *CompilerContext) Finish() error {
	return c.closeControllers()
}

// Reset releases every handle and clears counters and scratch state so the
// context can serve the next statement. It runs on both success and failure.
func (c *CompilerContext) Reset() error {
	err := c.closeControllers()
	c.nextColumn = 0
	c.nextTable = 0
	c.nextSubquery = 0
	c.nextResultSet = 0
	c.nextPredicate = 0
	c.nextEquiv = 0
	c.parameters = nil
	c.Cursors = nil
	c.ID = uuid.New()
	c.factory.reset()
	return err
}
