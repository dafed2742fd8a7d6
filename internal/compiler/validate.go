package compiler

import (
	"propsift/internal/errors"
	"propsift/internal/registry"
)

// validate checks the request against the registry before any compilation
// work happens. Returns the resolved entity and segment (nil when absent).
func (c *Compiler) validate(input *WidgetQueryInput, ctx *CompileCtx) (registry.EntityDefinition, *registry.SegmentDefinition, error) {
	var zero registry.EntityDefinition

	if ctx.TenantID == "" {
		return zero, nil, errors.New(errors.InvalidRequest, "tenant id is required")
	}
	if input.EntityKey == "" {
		return zero, nil, errors.New(errors.InvalidRequest, "entityKey is required")
	}

	entity, ok := c.catalog.Entity(input.EntityKey)
	if !ok {
		return zero, nil, errors.New(errors.UnknownEntity, "unknown entity %q", input.EntityKey)
	}

	var segment *registry.SegmentDefinition
	if input.SegmentKey != "" {
		seg, ok := c.catalog.Segment(input.SegmentKey)
		if !ok {
			return zero, nil, errors.New(errors.UnknownSegment, "unknown segment %q", input.SegmentKey)
		}
		if seg.EntityKey != entity.Key {
			return zero, nil, errors.New(errors.SegmentEntityMismatch,
				"segment %q is bound to entity %q, not %q", seg.Key, seg.EntityKey, entity.Key)
		}
		segment = &seg
	}

	if input.Dimension != "" {
		dim, ok := c.catalog.Dimension(input.Dimension)
		if !ok {
			return zero, nil, errors.New(errors.UnknownDimension, "unknown dimension %q", input.Dimension)
		}
		if dim.GroupByMode == registry.GroupJunctionRequired {
			if entity.Key != dim.JunctionEntity {
				return zero, nil, errors.New(errors.DimensionTargetMismatch,
					"dimension %q requires querying entity %q, not %q",
					dim.Key, dim.JunctionEntity, entity.Key).
					WithDetails(map[string]string{"requiredEntity": dim.JunctionEntity})
			}
		} else if !registry.SupportsEntity(dim.Entities, entity.Key) {
			return zero, nil, errors.New(errors.InvalidRequest,
				"dimension %q does not apply to entity %q", dim.Key, entity.Key)
		}
		if input.Granularity != "" && !contains(dim.Granularities, input.Granularity) {
			return zero, nil, errors.New(errors.InvalidRequest,
				"dimension %q does not support granularity %q", dim.Key, input.Granularity)
		}
	} else if input.Granularity != "" {
		return zero, nil, errors.New(errors.InvalidRequest, "granularity requires a dimension")
	}

	if input.Metric.Key == "" {
		return zero, nil, errors.New(errors.InvalidRequest, "metric key is required")
	}
	metric, ok := c.catalog.Metric(input.Metric.Key)
	if !ok {
		return zero, nil, errors.New(errors.UnknownMetric, "unknown metric %q", input.Metric.Key)
	}
	if !registry.SupportsEntity(metric.Entities, entity.Key) {
		return zero, nil, errors.New(errors.InvalidRequest,
			"metric %q does not apply to entity %q", metric.Key, entity.Key)
	}
	if metric.RequiresField() && input.Metric.Field == "" && metric.Field == "" {
		return zero, nil, errors.New(errors.InvalidRequest,
			"metric %q requires a field", metric.Key)
	}

	if input.DateMode != "" && !entity.SupportsDateMode(input.DateMode) {
		return zero, nil, errors.New(errors.InvalidRequest,
			"entity %q does not support date mode %q", entity.Key, input.DateMode)
	}

	if input.Sort != nil && input.Sort.Dir != "asc" && input.Sort.Dir != "desc" {
		return zero, nil, errors.New(errors.InvalidRequest, "sort dir must be asc or desc")
	}
	if input.Limit < 0 {
		return zero, nil, errors.New(errors.InvalidRequest, "limit must not be negative")
	}

	return entity, segment, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
