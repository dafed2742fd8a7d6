package registry

import "propsift/internal/predicate"

func defaultMetrics() []MetricDefinition {
	return []MetricDefinition{
		{
			Key:      "count",
			Type:     MetricCount,
			Entities: []string{"*"},
			Format:   "number",
		},
		{
			Key:      "sum",
			Type:     MetricSum,
			Entities: []string{"*"},
			Format:   "number",
		},
		{
			Key:      "avg",
			Type:     MetricAvg,
			Entities: []string{"*"},
			Format:   "number",
		},
		{
			Key:      "distinct_count",
			Type:     MetricDistinctCount,
			Entities: []string{"*"},
			Format:   "number",
		},
		{
			// Share of records that have progressed past the initial status.
			Key:      "contact_rate",
			Type:     MetricRate,
			Entities: []string{"records"},
			Format:   "percent",
			Numerator: &SubMetric{
				Filter: []predicate.Filter{
					{Field: "status", Operator: predicate.OpIn, Value: []interface{}{"contacted", "negotiating", "closed"}},
				},
			},
			Denominator: &SubMetric{},
		},
	}
}

// Default returns the full built-in catalog.
func Default() *Catalog {
	return New(defaultEntities(), defaultSegments(), defaultDimensions(), defaultMetrics())
}
