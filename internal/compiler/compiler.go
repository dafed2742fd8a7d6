package compiler

import (
	"time"

	"propsift/internal/logging"
	"propsift/internal/predicate"
	"propsift/internal/registry"
)

// Compiler compiles widget queries against an injected catalog.
type Compiler struct {
	catalog *registry.Catalog
	logger  *logging.Logger

	// now is replaceable in tests so hashes stay deterministic.
	now func() time.Time
}

// New creates a compiler.
func New(catalog *registry.Catalog, logger *logging.Logger) *Compiler {
	return &Compiler{
		catalog: catalog,
		logger:  logger.WithComponent("compiler"),
		now:     time.Now,
	}
}

// WithClock overrides the compiler's time source. Intended for tests.
func (c *Compiler) WithClock(now func() time.Time) *Compiler {
	c.now = now
	return c
}

// Compile runs the full pipeline: validate, scope, filter, resolve dates,
// combine, and compute the hash and dependency set.
func (c *Compiler) Compile(input *WidgetQueryInput, ctx *CompileCtx) (*CompiledQuery, error) {
	entity, segment, err := c.validate(input, ctx)
	if err != nil {
		return nil, err
	}

	res := predicate.Resolution{Now: c.now().UTC(), UserID: ctx.UserID}

	tenantScope, err := c.tenantScope(entity, ctx)
	if err != nil {
		return nil, err
	}

	permScope, err := c.permissionScope(entity, ctx, res)
	if err != nil {
		return nil, err
	}

	var segmentExpr predicate.Expr
	if segment != nil {
		segmentExpr, err = c.compileFilters(entity, segment.Filters, res)
		if err != nil {
			return nil, err
		}
	}

	widgetExpr, err := c.compileFilters(entity, input.Filters, res)
	if err != nil {
		return nil, err
	}

	globalExpr, err := c.compileGlobalFilters(entity, &input.GlobalFilters, res)
	if err != nil {
		return nil, err
	}

	dateMode := input.DateMode
	if dateMode == "" {
		dateMode = entity.DefaultDateMode
	}
	rng, err := c.resolveDateRange(input, ctx)
	if err != nil {
		return nil, err
	}
	dateExpr, err := dateRangeExpr(entity, dateMode, rng)
	if err != nil {
		return nil, err
	}

	where := predicate.AndOf(tenantScope, permScope, segmentExpr, widgetExpr, globalExpr, dateExpr)

	metricWhere, err := c.compileFilters(entity, input.Metric.Filter, res)
	if err != nil {
		return nil, err
	}

	deps := c.computeDeps(input, ctx, entity)
	hash := c.computeHash(input, ctx, rng, dateMode)

	cq := &CompiledQuery{
		Tenant:      ctx.TenantID,
		EntityKey:   entity.Key,
		Delegate:    entity.Delegate,
		Where:       where,
		MetricWhere: metricWhere,
		OrderBy:     input.Sort,
		Take:        input.Limit,
		DateMode:    dateMode,
		Hash:        hash,
		Deps:        deps,
	}

	c.logger.Debug("Compiled widget query", map[string]interface{}{
		"entity": entity.Key,
		"hash":   hash,
		"deps":   deps,
	})

	return cq, nil
}
