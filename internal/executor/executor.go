// Package executor maps compiled queries onto store operations and
// shapes the results for the API.
package executor

import (
	"context"
	"time"

	"propsift/internal/cache"
	"propsift/internal/compiler"
	"propsift/internal/errors"
	"propsift/internal/logging"
	"propsift/internal/predicate"
	"propsift/internal/registry"
	"propsift/internal/store"
)

// Outcome types.
const (
	TypeSingle  = "single"
	TypeGrouped = "grouped"
)

// Bucket is one group of a grouped result.
type Bucket struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
	Count int64  `json:"count"`
}

// Outcome is an executed widget result.
type Outcome struct {
	Type  string   `json:"type"`
	Value float64  `json:"value,omitempty"`
	Data  []Bucket `json:"data,omitempty"`
	Total int64    `json:"total,omitempty"`
}

// Page is a drilldown result page.
type Page struct {
	Rows  []map[string]interface{} `json:"rows"`
	Total int64                    `json:"total"`
}

// Executor runs compiled queries against the store.
type Executor struct {
	db      *store.DB
	catalog *registry.Catalog
	labels  *cache.LabelCache
	logger  *logging.Logger
}

// New creates an executor.
func New(db *store.DB, catalog *registry.Catalog, logger *logging.Logger) *Executor {
	return &Executor{
		db:      db,
		catalog: catalog,
		logger:  logger.WithComponent("executor"),
	}
}

// WithLabelCache routes lookup-dimension labels through the label cache
// instead of querying the label table on every grouped result.
func (e *Executor) WithLabelCache(labels *cache.LabelCache) *Executor {
	e.labels = labels
	return e
}

// Run executes the compiled query's metric, grouped by the dimension when
// one is requested.
func (e *Executor) Run(ctx context.Context, cq *compiler.CompiledQuery, input *compiler.WidgetQueryInput) (*Outcome, error) {
	metric, ok := e.catalog.Metric(input.Metric.Key)
	if !ok {
		return nil, errors.New(errors.UnknownMetric, "unknown metric %q", input.Metric.Key)
	}

	q, err := e.db.Querier(cq.EntityKey)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, err, "no querier for entity")
	}

	where := predicate.AndOf(cq.Where, cq.MetricWhere)

	if input.Dimension != "" {
		return e.runGrouped(ctx, q, cq, input, where)
	}

	value, err := e.metricValue(ctx, q, metric, input.Metric.Field, where)
	if err != nil {
		return nil, err
	}
	return &Outcome{Type: TypeSingle, Value: value}, nil
}

func (e *Executor) metricValue(ctx context.Context, q *store.Querier, metric registry.MetricDefinition, field string, where predicate.Expr) (float64, error) {
	switch metric.Type {
	case registry.MetricCount:
		n, err := q.Count(ctx, where)
		return float64(n), err
	case registry.MetricSum:
		return q.Aggregate(ctx, "sum", field, where)
	case registry.MetricAvg:
		return q.Aggregate(ctx, "avg", field, where)
	case registry.MetricDistinctCount:
		n, err := q.DistinctCount(ctx, field, where)
		return float64(n), err
	case registry.MetricRate:
		return e.rateValue(ctx, q, metric, where)
	default:
		return 0, errors.New(errors.InternalError, "unhandled metric type %q", metric.Type)
	}
}

// rateValue runs the numerator and denominator as independent counts.
// A zero denominator yields 0 rather than an error.
func (e *Executor) rateValue(ctx context.Context, q *store.Querier, metric registry.MetricDefinition, where predicate.Expr) (float64, error) {
	numWhere, err := andSubMetric(where, metric.Numerator)
	if err != nil {
		return 0, err
	}
	denWhere, err := andSubMetric(where, metric.Denominator)
	if err != nil {
		return 0, err
	}

	num, err := q.Count(ctx, numWhere)
	if err != nil {
		return 0, err
	}
	den, err := q.Count(ctx, denWhere)
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, nil
	}
	return float64(num) / float64(den), nil
}

func andSubMetric(where predicate.Expr, sub *registry.SubMetric) (predicate.Expr, error) {
	if sub == nil || len(sub.Filter) == 0 {
		return where, nil
	}
	// Registry sub-metric filters are static and carry no sentinels, so an
	// empty resolution suffices.
	extra, err := predicate.ExprList(sub.Filter, predicate.Resolution{Now: time.Now().UTC()})
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, err, "invalid sub-metric filter")
	}
	return predicate.AndOf(where, extra), nil
}

func (e *Executor) runGrouped(ctx context.Context, q *store.Querier, cq *compiler.CompiledQuery, input *compiler.WidgetQueryInput, where predicate.Expr) (*Outcome, error) {
	dim, ok := e.catalog.Dimension(input.Dimension)
	if !ok {
		return nil, errors.New(errors.UnknownDimension, "unknown dimension %q", input.Dimension)
	}

	groups, err := q.GroupCount(ctx, dim.Field, input.Granularity, where)
	if err != nil {
		return nil, err
	}

	buckets, total, err := e.labelBuckets(ctx, cq.Tenant, dim, groups)
	if err != nil {
		return nil, err
	}

	if input.Limit > 0 && len(buckets) > input.Limit {
		buckets = buckets[:input.Limit]
	}
	return &Outcome{Type: TypeGrouped, Data: buckets, Total: total}, nil
}

// labelBuckets attaches display labels and colors: enum dimensions carry
// them inline, lookup dimensions read them from the related label table,
// through the label cache when one is wired.
func (e *Executor) labelBuckets(ctx context.Context, tenant string, dim registry.DimensionDefinition, groups []store.GroupRow) ([]Bucket, int64, error) {
	var lookup map[string]cache.Label
	if dim.Lookup != nil {
		ids := make([]string, 0, len(groups))
		for _, g := range groups {
			if g.Key != "" {
				ids = append(ids, g.Key)
			}
		}
		var err error
		lookup, err = e.lookupLabels(ctx, tenant, dim.Lookup.Entity, ids)
		if err != nil {
			return nil, 0, err
		}
	}

	enum := make(map[string]registry.EnumValue, len(dim.Values))
	for _, v := range dim.Values {
		enum[v.Value] = v
	}

	var total int64
	buckets := make([]Bucket, 0, len(groups))
	for _, g := range groups {
		b := Bucket{Key: g.Key, Label: g.Key, Count: g.Count}
		if g.Key == "" {
			b.Label = "None"
		} else if v, ok := enum[g.Key]; ok {
			b.Label = v.Label
			b.Color = v.Color
		} else if l, ok := lookup[g.Key]; ok {
			b.Label = l.Name
			b.Color = l.Color
		}
		total += g.Count
		buckets = append(buckets, b)
	}
	return buckets, total, nil
}

// lookupLabels resolves id -> label for a lookup entity, via the label
// cache when wired and straight from the store otherwise.
func (e *Executor) lookupLabels(ctx context.Context, tenant, entity string, ids []string) (map[string]cache.Label, error) {
	lq, err := e.db.Querier(entity)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, err, "no querier for lookup entity")
	}

	load := func(ctx context.Context, ids []string) (map[string]cache.Label, error) {
		rows, err := lq.Labels(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[string]cache.Label, len(rows))
		for _, r := range rows {
			out[r.ID] = cache.Label{ID: r.ID, Name: r.Name, Color: r.Color}
		}
		return out, nil
	}

	if e.labels != nil {
		return e.labels.GetMany(ctx, tenant, entity, ids, load)
	}
	return load(ctx, ids)
}

// Drilldown pages through the rows matched by the compiled query, with an
// optional free-text search over the entity's search fields. Page is
// clamped to at least 1 and pageSize to [1, 100].
func (e *Executor) Drilldown(ctx context.Context, cq *compiler.CompiledQuery, page, pageSize int, search string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}

	q, err := e.db.Querier(cq.EntityKey)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, err, "no querier for entity")
	}

	where := cq.Where
	if search != "" {
		searchExpr, err := e.searchExpr(cq.EntityKey, search)
		if err != nil {
			return nil, err
		}
		where = predicate.AndOf(where, searchExpr)
	}

	total, err := q.Count(ctx, where)
	if err != nil {
		return nil, err
	}

	var orderField, orderDir string
	if cq.OrderBy != nil {
		orderField = cq.OrderBy.Field
		orderDir = cq.OrderBy.Dir
	}
	rows, err := q.FindPage(ctx, where, orderField, orderDir, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return &Page{Rows: rows, Total: total}, nil
}

// searchExpr ORs a contains comparison per search field: scalar fields
// match directly, relation fields match through some related row.
func (e *Executor) searchExpr(entityKey, term string) (predicate.Expr, error) {
	entity, ok := e.catalog.Entity(entityKey)
	if !ok {
		return nil, errors.New(errors.UnknownEntity, "unknown entity %q", entityKey)
	}
	if len(entity.SearchFields) == 0 {
		return nil, errors.New(errors.InvalidRequest, "entity %q does not support search", entityKey)
	}

	parts := make([]predicate.Expr, 0, len(entity.SearchFields))
	for _, sf := range entity.SearchFields {
		match := predicate.Field{Name: sf.Field, Op: predicate.OpContains, Value: term}
		if sf.Relation == "" {
			parts = append(parts, match)
			continue
		}
		parts = append(parts, predicate.Relation{
			Name:       sf.Relation,
			Quantifier: predicate.QuantSome,
			Expr:       match,
		})
	}
	return predicate.OrOf(parts...), nil
}

// TotalPages computes the page count for a drilldown response.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
