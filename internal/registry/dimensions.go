package registry

func defaultDimensions() []DimensionDefinition {
	return []DimensionDefinition{
		{
			Key:         "status",
			Field:       "status",
			Label:       "Status",
			Entities:    []string{"records", "tasks"},
			GroupByMode: GroupDirect,
			Values: []EnumValue{
				{Value: "new", Label: "New", Color: "#3b82f6"},
				{Value: "contacted", Label: "Contacted", Color: "#8b5cf6"},
				{Value: "negotiating", Label: "Negotiating", Color: "#f59e0b"},
				{Value: "closed", Label: "Closed", Color: "#22c55e"},
				{Value: "dead", Label: "Dead", Color: "#6b7280"},
			},
		},
		{
			Key:         "temperature",
			Field:       "temperature",
			Label:       "Temperature",
			Entities:    []string{"records"},
			GroupByMode: GroupDirect,
			Values: []EnumValue{
				{Value: "hot", Label: "Hot", Color: "#ef4444"},
				{Value: "warm", Label: "Warm", Color: "#f97316"},
				{Value: "cold", Label: "Cold", Color: "#0ea5e9"},
			},
		},
		{
			Key:         "state",
			Field:       "state",
			Label:       "State",
			Entities:    []string{"records"},
			GroupByMode: GroupDirect,
		},
		{
			Key:         "city",
			Field:       "city",
			Label:       "City",
			Entities:    []string{"records"},
			GroupByMode: GroupDirect,
		},
		{
			Key:         "assignee",
			Field:       "assignee_id",
			Label:       "Assignee",
			Entities:    []string{"records", "tasks"},
			GroupByMode: GroupDirect,
		},
		{
			Key:         "board_column",
			Field:       "column_id",
			Label:       "Board Column",
			Entities:    []string{"records"},
			GroupByMode: GroupDirect,
			Lookup: &RelationLookup{
				Entity:     "boards",
				LabelField: "name",
				ColorField: "color",
			},
		},
		{
			Key:           "created",
			Field:         "created_at",
			Label:         "Created",
			Entities:      []string{"*"},
			GroupByMode:   GroupDirect,
			Granularities: []string{"day", "week", "month"},
		},
		{
			// Grouping by tag only makes sense when the query target is the
			// tag-membership junction, not the parent record.
			Key:            "tag",
			Field:          "tag_id",
			Label:          "Tag",
			Entities:       []string{"record_tags"},
			GroupByMode:    GroupJunctionRequired,
			JunctionEntity: "record_tags",
			Lookup: &RelationLookup{
				Entity:     "tags",
				LabelField: "name",
				ColorField: "color",
			},
		},
		{
			Key:            "motivation",
			Field:          "motivation_id",
			Label:          "Motivation",
			Entities:       []string{"record_motivations"},
			GroupByMode:    GroupJunctionRequired,
			JunctionEntity: "record_motivations",
			Lookup: &RelationLookup{
				Entity:     "motivations",
				LabelField: "name",
				ColorField: "color",
			},
		},
	}
}
