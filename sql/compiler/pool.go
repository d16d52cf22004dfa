package compiler

import (
	"github.com/sasha-s/go-deadlock"

	"planforge/logger"
	"planforge/sql/store"
	"planforge/sql/tree"
)

// ContextPool hands out compilation contexts. A context is reset when it
// comes back, whatever the outcome of the compile that used it.
type ContextPool struct {
	mu      deadlock.Mutex
	free    []*tree.CompilerContext
	size    int
	created int

	catalog store.Catalog
	stats   store.StatisticsProvider
}

func NewContextPool(size int, catalog store.Catalog, stats store.StatisticsProvider) *ContextPool {
	if size < 1 {
		size = 1
	}
	return &ContextPool{size: size, catalog: catalog, stats: stats}
}

func (p *ContextPool) Acquire() *tree.CompilerContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		ctx := p.free[n-1]
		p.free = p.free[:n-1]
		return ctx
	}
	p.created++
	return tree.NewCompilerContext(p.catalog, p.stats)
}

// Release resets ctx and keeps it for reuse while the pool has room.
func (p *ContextPool) Release(ctx *tree.CompilerContext) error {
	err := ctx.Reset()
	if err != nil {
		logger.Warnf("reset of compiler context %s: %v", ctx.ID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.size {
		p.free = append(p.free, ctx)
	}
	return err
}

// Idle is the number of contexts waiting in the pool.
func (p *ContextPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func (p *ContextPool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}
