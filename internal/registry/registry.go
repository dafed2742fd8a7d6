// Package registry holds the static catalog of queryable concepts:
// entities, segments, dimensions, and metrics. The catalog is immutable
// after construction and injected into the compiler and API rather than
// consulted through package globals.
package registry

import (
	"sort"

	"propsift/internal/predicate"
)

// ScopeMode selects how an entity is scoped to a tenant
type ScopeMode string

const (
	// ScopeDirect scopes by a tenant-id field on the entity itself
	ScopeDirect ScopeMode = "direct"
	// ScopeViaJoin inherits scope through a named relation
	ScopeViaJoin ScopeMode = "via_join"
)

// TenantScope describes how rows of an entity are bound to a tenant.
// For ScopeDirect, Field is the tenant-id column; AllowLegacyRows keeps
// rows with a NULL tenant id visible. For ScopeViaJoin, Relation names the
// relation through which scope is inherited.
type TenantScope struct {
	Mode            ScopeMode
	Field           string
	Relation        string
	AllowLegacyRows bool
}

// RelationDef describes one named relation of an entity.
// FromField is the column on the owning entity, ToField the column on the
// related entity. ValueField, when set, is the related column that
// has_some/has_none filter ids match against.
type RelationDef struct {
	Entity     string
	FromField  string
	ToField    string
	ValueField string
}

// SearchField is a field usable in free-text drilldown search. A non-empty
// Relation means "some related row's field contains the term".
type SearchField struct {
	Field    string
	Relation string
}

// EntityDefinition is a queryable concept mapped to one store delegate.
type EntityDefinition struct {
	Key             string
	Label           string
	LabelPlural     string
	Delegate        string
	TenantScope     TenantScope
	Relations       map[string]RelationDef
	SearchFields    []SearchField
	DateModes       []string
	DefaultDateMode string
}

// SupportsDateMode reports whether the entity allows the given date mode.
func (e EntityDefinition) SupportsDateMode(mode string) bool {
	for _, m := range e.DateModes {
		if m == mode {
			return true
		}
	}
	return false
}

// SegmentDefinition is a named, reusable filter predicate bound to exactly
// one entity. Filters are ANDed.
type SegmentDefinition struct {
	Key       string
	EntityKey string
	Label     string
	Category  string
	Filters   []predicate.Filter
}

// GroupByMode selects how a dimension groups rows
type GroupByMode string

const (
	// GroupDirect groups on a scalar field of the queried entity
	GroupDirect GroupByMode = "direct"
	// GroupJunctionRequired only applies when the query target is the
	// dimension's junction entity
	GroupJunctionRequired GroupByMode = "junction_required"
)

// EnumValue is a fixed dimension value with display metadata
type EnumValue struct {
	Value string
	Label string
	Color string
}

// RelationLookup resolves dimension value labels from another entity
type RelationLookup struct {
	Entity     string
	LabelField string
	ColorField string
}

// DimensionDefinition is a group-by axis.
type DimensionDefinition struct {
	Key            string
	Field          string
	Label          string
	Entities       []string // entity keys, or ["*"] for all
	GroupByMode    GroupByMode
	JunctionEntity string
	Values         []EnumValue
	Lookup         *RelationLookup
	Granularities  []string
}

// MetricType is the aggregation kind of a metric
type MetricType string

const (
	MetricCount         MetricType = "count"
	MetricSum           MetricType = "sum"
	MetricAvg           MetricType = "avg"
	MetricDistinctCount MetricType = "distinct_count"
	MetricRate          MetricType = "rate"
)

// SubMetric is one side of a rate metric: a count with an optional filter.
type SubMetric struct {
	Filter []predicate.Filter
}

// MetricDefinition is an aggregation definition.
type MetricDefinition struct {
	Key         string
	Type        MetricType
	Field       string
	Entities    []string
	Format      string
	Numerator   *SubMetric
	Denominator *SubMetric
}

// RequiresField reports whether the metric type needs a field argument.
func (m MetricDefinition) RequiresField() bool {
	switch m.Type {
	case MetricSum, MetricAvg, MetricDistinctCount:
		return true
	}
	return false
}

// Catalog is the immutable lookup structure for all registry definitions.
type Catalog struct {
	entities   map[string]EntityDefinition
	segments   map[string]SegmentDefinition
	dimensions map[string]DimensionDefinition
	metrics    map[string]MetricDefinition
}

// New builds a catalog from definition slices. Intended for Default() and
// for tests that need a trimmed catalog.
func New(entities []EntityDefinition, segments []SegmentDefinition, dimensions []DimensionDefinition, metrics []MetricDefinition) *Catalog {
	c := &Catalog{
		entities:   make(map[string]EntityDefinition, len(entities)),
		segments:   make(map[string]SegmentDefinition, len(segments)),
		dimensions: make(map[string]DimensionDefinition, len(dimensions)),
		metrics:    make(map[string]MetricDefinition, len(metrics)),
	}
	for _, e := range entities {
		c.entities[e.Key] = e
	}
	for _, s := range segments {
		c.segments[s.Key] = s
	}
	for _, d := range dimensions {
		c.dimensions[d.Key] = d
	}
	for _, m := range metrics {
		c.metrics[m.Key] = m
	}
	return c
}

// Entity looks up an entity definition by key
func (c *Catalog) Entity(key string) (EntityDefinition, bool) {
	e, ok := c.entities[key]
	return e, ok
}

// Segment looks up a segment definition by key
func (c *Catalog) Segment(key string) (SegmentDefinition, bool) {
	s, ok := c.segments[key]
	return s, ok
}

// Dimension looks up a dimension definition by key
func (c *Catalog) Dimension(key string) (DimensionDefinition, bool) {
	d, ok := c.dimensions[key]
	return d, ok
}

// Metric looks up a metric definition by key
func (c *Catalog) Metric(key string) (MetricDefinition, bool) {
	m, ok := c.metrics[key]
	return m, ok
}

// EntityKeys returns all entity keys, sorted
func (c *Catalog) EntityKeys() []string {
	keys := make([]string, 0, len(c.entities))
	for k := range c.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SegmentsForEntity returns the segments bound to the given entity, sorted
// by key.
func (c *Catalog) SegmentsForEntity(entityKey string) []SegmentDefinition {
	var out []SegmentDefinition
	for _, s := range c.segments {
		if s.EntityKey == entityKey {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DimensionsForEntity returns the dimensions applicable to the given
// entity, sorted by key.
func (c *Catalog) DimensionsForEntity(entityKey string) []DimensionDefinition {
	var out []DimensionDefinition
	for _, d := range c.dimensions {
		if supportsEntity(d.Entities, entityKey) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// MetricsForEntity returns the metrics applicable to the given entity,
// sorted by key.
func (c *Catalog) MetricsForEntity(entityKey string) []MetricDefinition {
	var out []MetricDefinition
	for _, m := range c.metrics {
		if supportsEntity(m.Entities, entityKey) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RequiresJunctionEntity reports whether the dimension only applies when
// the query target is a specific junction entity, and which one.
func (c *Catalog) RequiresJunctionEntity(dimensionKey string) (string, bool) {
	d, ok := c.dimensions[dimensionKey]
	if !ok || d.GroupByMode != GroupJunctionRequired {
		return "", false
	}
	return d.JunctionEntity, true
}

// RelationEntity resolves a relation name of an entity to the related
// entity key.
func (c *Catalog) RelationEntity(entityKey, relation string) (string, bool) {
	e, ok := c.entities[entityKey]
	if !ok {
		return "", false
	}
	rel, ok := e.Relations[relation]
	if !ok {
		return "", false
	}
	return rel.Entity, true
}

func supportsEntity(entities []string, key string) bool {
	for _, e := range entities {
		if e == "*" || e == key {
			return true
		}
	}
	return false
}

// SupportsEntity reports whether the definition's entity list covers key.
// The list form is shared by dimensions and metrics.
func SupportsEntity(entities []string, key string) bool {
	return supportsEntity(entities, key)
}
