// Package compiler turns a declarative widget query plus a compilation
// context into a scoped, hashable, executable query. Compilation is a
// fail-fast pipeline; every failure is a deterministic client error.
package compiler

import (
	"propsift/internal/predicate"
)

// MetricInput selects a metric and its optional field/filter arguments.
type MetricInput struct {
	Key    string             `json:"key"`
	Field  string             `json:"field,omitempty"`
	Filter []predicate.Filter `json:"filter,omitempty"`
}

// DateRange is either a named preset or an explicit custom range.
// Custom bounds accept RFC3339 instants or plain dates (YYYY-MM-DD).
type DateRange struct {
	Preset string `json:"preset,omitempty"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

// IncludeExclude holds id lists applied through junction relations.
type IncludeExclude struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// MarketFilter narrows records geographically.
type MarketFilter struct {
	States []string `json:"states,omitempty"`
	Cities []string `json:"cities,omitempty"`
}

// BoardFilter narrows records to a board or board column.
type BoardFilter struct {
	BoardID  string `json:"boardId,omitempty"`
	ColumnID string `json:"columnId,omitempty"`
}

// GlobalFilters is the cross-widget filter state. CallReady is a pointer
// because absent and false are different filters: false means "records
// with no phone number", absent means no constraint at all.
type GlobalFilters struct {
	DateRange   *DateRange      `json:"dateRange,omitempty"`
	Assignees   []string        `json:"assignees,omitempty"`
	Status      []string        `json:"status,omitempty"`
	Temperature []string        `json:"temperature,omitempty"`
	Tags        *IncludeExclude `json:"tags,omitempty"`
	Motivations *IncludeExclude `json:"motivations,omitempty"`
	Market      *MarketFilter   `json:"market,omitempty"`
	Board       *BoardFilter    `json:"board,omitempty"`
	CallReady   *bool           `json:"callReady,omitempty"`
}

// Sort is a pass-through ordering instruction.
type Sort struct {
	Field string `json:"field"`
	Dir   string `json:"dir"`
}

// WidgetQueryInput is the full widget query request.
type WidgetQueryInput struct {
	EntityKey     string             `json:"entityKey"`
	SegmentKey    string             `json:"segmentKey,omitempty"`
	Metric        MetricInput        `json:"metric"`
	Dimension     string             `json:"dimension,omitempty"`
	Filters       []predicate.Filter `json:"filters,omitempty"`
	GlobalFilters GlobalFilters      `json:"globalFilters"`
	DateRange     *DateRange         `json:"dateRange,omitempty"`
	DateMode      string             `json:"dateMode,omitempty"`
	Granularity   string             `json:"granularity,omitempty"`
	Sort          *Sort              `json:"sort,omitempty"`
	Limit         int                `json:"limit,omitempty"`
}

// Permission is the caller's effective access for one entity.
type Permission struct {
	CanRead   bool               `json:"canRead"`
	CanWrite  bool               `json:"canWrite"`
	RowFilter []predicate.Filter `json:"rowFilter,omitempty"`
}

// CompileCtx is the per-request compilation context.
type CompileCtx struct {
	TenantID       string                `json:"tenantId"`
	UserID         string                `json:"userId"`
	Role           string                `json:"role"`
	Timezone       string                `json:"timezone"`
	Permissions    map[string]Permission `json:"permissions,omitempty"`
	ScopeKey       string                `json:"scopeKey,omitempty"`
	PermissionHash string                `json:"permissionHash,omitempty"`
}

// CompiledQuery is the compiler output: everything the executor and the
// cache need, and nothing request-shaped.
type CompiledQuery struct {
	Tenant    string
	EntityKey string
	Delegate  string
	Where     predicate.Expr
	// MetricWhere is the compiled metric-input filter, ANDed onto Where
	// only for the metric computation, never for drilldown rows.
	MetricWhere predicate.Expr
	OrderBy     *Sort
	Take        int
	DateMode    string
	Hash        string
	Deps        []string
}
