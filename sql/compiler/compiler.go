// Package compiler runs the statement pipeline: bind, preprocess, optimize
// and generate, over pooled compilation contexts, with a cache of compiled
// plans keyed by statement fingerprint.
package compiler

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sasha-s/go-deadlock"

	"planforge/logger"
	"planforge/sql"
	"planforge/sql/binder"
	"planforge/sql/optimizer"
	"planforge/sql/plan"
	"planforge/sql/preprocess"
	"planforge/sql/store"
	"planforge/sql/tree"
	"planforge/sqlparser/ast"
	"planforge/util"
)

type Options struct {
	Binder    binder.Options
	Optimizer optimizer.Options
	Plan      plan.Options
	PoolSize  int
	// CacheSize bounds the number of cached plans; 0 disables the cache.
	CacheSize int
	CacheTTL  time.Duration
	// Registerer receives the compiler metrics; nil keeps them unregistered.
	Registerer prometheus.Registerer
	Tracer     opentracing.Tracer
}

func DefaultOptions() Options {
	return Options{
		Binder:    binder.DefaultOptions(),
		Optimizer: optimizer.DefaultOptions(),
		Plan:      plan.DefaultOptions(),
		PoolSize:  4,
		CacheSize: 256,
		CacheTTL:  10 * time.Minute,
	}
}

type Stats struct {
	Compiled     int
	CacheHits    int
	Failed       int
	Permutations int
	Contexts     int
}

// Compiler compiles statements against one catalog into plans for one
// backend. It is safe for concurrent use.
type Compiler struct {
	opts    Options
	backend plan.Backend
	pool    *ContextPool
	cache   *cache.Cache
	metrics *metrics
	tracer  opentracing.Tracer

	mu      deadlock.Mutex
	stats   Stats
	cursors map[string]*tree.CursorInfo
}

func New(catalog store.Catalog, statistics store.StatisticsProvider, backend plan.Backend, opts Options) *Compiler {
	c := &Compiler{
		opts:    opts,
		backend: backend,
		pool:    NewContextPool(opts.PoolSize, catalog, statistics),
		metrics: newMetrics(opts.Registerer),
		tracer:  opts.Tracer,
		cursors: map[string]*tree.CursorInfo{},
	}
	if c.tracer == nil {
		c.tracer = opentracing.NoopTracer{}
	}
	if opts.CacheSize > 0 {
		c.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return c
}

// Compile compiles stmt, the parse tree of text. A plan compiled before
// from an equivalent text is returned from the cache; an empty text
// bypasses the cache. EXPLAIN compiles the statement it wraps.
func (c *Compiler) Compile(ctx context.Context, text string, stmt ast.Stmt) (*plan.Plan, error) {
	if e, ok := stmt.(*ast.ExplainStmt); ok {
		stmt = e.Stmt
	}
	key := ""
	if text != "" {
		key = util.FingerprintString(text)
	}
	if p, ok := c.cached(key); ok {
		c.metrics.cacheHits.Inc()
		c.count(func(s *Stats) { s.CacheHits++ })
		logger.Debugf("statement %s served from cache", key)
		return p, nil
	}

	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, "compile")
	defer span.Finish()
	span.SetTag("fingerprint", key)

	start := time.Now()
	cc := c.pool.Acquire()
	p, err := c.compile(ctx, cc, stmt)
	if err == nil {
		err = errors.Wrap(cc.Finish(), "finish")
	}
	if rerr := c.pool.Release(cc); err == nil && rerr != nil {
		err = errors.Wrap(rerr, "release")
	}
	if err != nil {
		c.Invalidate(text)
		c.count(func(s *Stats) { s.Failed++ })
		span.SetTag("error", true)
		logger.Warnf("compile of %s aborted: %v", key, err)
		return nil, err
	}

	c.metrics.compiles.WithLabelValues(p.Statement).Inc()
	c.count(func(s *Stats) { s.Compiled++ })
	if key != "" && cacheable(stmt) {
		c.store(key, p)
	}
	logger.With("fingerprint", key, "plan", p.ID.String()).
		Infof("compiled %s in %s: %s", p.Statement, time.Since(start), p.Root.Describe())
	return p, nil
}

func (c *Compiler) compile(ctx context.Context, cc *tree.CompilerContext, stmt ast.Stmt) (*plan.Plan, error) {
	cc.Cursors = c
	var node tree.StatementNode
	err := c.phase(ctx, "bind", func() (err error) {
		node, err = binder.New(cc, c.opts.Binder).Bind(stmt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err = c.phase(ctx, "preprocess", func() error {
		return preprocess.New(cc).Preprocess(node)
	}); err != nil {
		return nil, err
	}
	if err = c.phase(ctx, "optimize", func() error {
		o := optimizer.New(cc, c.opts.Optimizer)
		err := o.Optimize(node)
		n := o.Stats().Permutations
		c.metrics.permutations.Add(float64(n))
		c.count(func(s *Stats) { s.Permutations += n })
		return err
	}); err != nil {
		return nil, err
	}
	var p *plan.Plan
	if err = c.phase(ctx, "generate", func() (err error) {
		p, err = plan.NewBuilder(c.opts.Plan).Generate(node, c.backend)
		return err
	}); err != nil {
		return nil, err
	}
	if cur, ok := node.(*tree.Cursor); ok && cur.UpdateMode == tree.Updatable {
		c.openCursor(&tree.CursorInfo{
			Name:          cur.Name,
			Schema:        cur.Target.Descriptor.Schema,
			Table:         cur.Target.Descriptor.Name,
			UpdateColumns: cur.UpdateColumns,
		})
	}
	return p, nil
}

// phase runs one compile phase in its own span and wraps its error with
// the phase name.
func (c *Compiler) phase(ctx context.Context, name string, fn func() error) error {
	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, "compile."+name)
	defer span.Finish()
	start := time.Now()
	err := fn()
	c.metrics.phases.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetTag("error", true)
		span.LogKV("event", "error", "message", err.Error())
		c.metrics.failures.WithLabelValues(name, sql.Category(err).String()).Inc()
		return errors.Wrap(err, name)
	}
	logger.Debugf("%s took %s", name, time.Since(start))
	return nil
}

// cacheable reports whether a plan may be reused for the same text. DDL
// and cursor declarations change what later statements see.
func cacheable(stmt ast.Stmt) bool {
	switch stmt.(type) {
	case *ast.CreateStmt, *ast.CursorStmt:
		return false
	}
	return true
}

func (c *Compiler) cached(key string) (*plan.Plan, bool) {
	if c.cache == nil || key == "" {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*plan.Plan), true
}

func (c *Compiler) store(key string, p *plan.Plan) {
	if c.cache == nil {
		return
	}
	if c.cache.ItemCount() >= c.opts.CacheSize {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.opts.CacheSize {
			return
		}
	}
	c.cache.SetDefault(key, p)
}

// Invalidate drops the cached plan of text.
func (c *Compiler) Invalidate(text string) {
	if c.cache == nil || text == "" {
		return
	}
	c.cache.Delete(util.FingerprintString(text))
}

// InvalidateAll drops every cached plan, as after a catalog change.
func (c *Compiler) InvalidateAll() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

func (c *Compiler) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Contexts = c.pool.Created()
	return s
}

func (c *Compiler) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

func (c *Compiler) openCursor(info *tree.CursorInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[strings.ToUpper(info.Name)] = info
}

// CloseCursor forgets a declared updatable cursor.
func (c *Compiler) CloseCursor(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, strings.ToUpper(name))
}

// LookupCursor resolves WHERE CURRENT OF against the updatable cursors
// compiled so far.
func (c *Compiler) LookupCursor(name string) (*tree.CursorInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.cursors[strings.ToUpper(name)]
	return info, ok
}
