package registry

import "propsift/internal/predicate"

func defaultSegments() []SegmentDefinition {
	return []SegmentDefinition{
		{
			Key:       "hot_leads",
			EntityKey: "records",
			Label:     "Hot Leads",
			Category:  "leads",
			Filters: []predicate.Filter{
				{Field: "temperature", Operator: predicate.OpEq, Value: "hot"},
			},
		},
		{
			Key:       "call_ready_leads",
			EntityKey: "records",
			Label:     "Call Ready Leads",
			Category:  "leads",
			Filters: []predicate.Filter{
				{Field: "phone_count", Operator: predicate.OpGt, Value: 0},
				{Field: "status", Operator: predicate.OpNeq, Value: "dead"},
			},
		},
		{
			Key:       "unworked_new_leads",
			EntityKey: "records",
			Label:     "Unworked New Leads",
			Category:  "leads",
			Filters: []predicate.Filter{
				{Field: "status", Operator: predicate.OpEq, Value: "new"},
				{Field: "assignee_id", Operator: predicate.OpIsEmpty},
			},
		},
		{
			Key:       "overdue_tasks",
			EntityKey: "tasks",
			Label:     "Overdue Tasks",
			Category:  "tasks",
			Filters: []predicate.Filter{
				{Field: "due_date", Operator: predicate.OpLt, Value: "$now"},
				{Field: "status", Operator: predicate.OpNeq, Value: "completed"},
			},
		},
		{
			Key:       "my_open_tasks",
			EntityKey: "tasks",
			Label:     "My Open Tasks",
			Category:  "tasks",
			Filters: []predicate.Filter{
				{Field: "assignee_id", Operator: predicate.OpEq, Value: "$userId"},
				{Field: "status", Operator: predicate.OpNeq, Value: "completed"},
			},
		},
	}
}
