package registry

// Date modes shared by entity definitions. junction_created distinguishes
// "when was the link made" from the parent record's own timestamps.
const (
	DateModeCreated         = "createdAt"
	DateModeUpdated         = "updatedAt"
	DateModeJunctionCreated = "junction_created"
	DateModeCompleted       = "completedAt"
	DateModeDue             = "dueDate"
)

func defaultEntities() []EntityDefinition {
	return []EntityDefinition{
		{
			Key:         "records",
			Label:       "Record",
			LabelPlural: "Records",
			Delegate:    "records",
			TenantScope: TenantScope{
				Mode:            ScopeDirect,
				Field:           "tenant_id",
				AllowLegacyRows: true,
			},
			Relations: map[string]RelationDef{
				"tags":        {Entity: "record_tags", FromField: "id", ToField: "record_id", ValueField: "tag_id"},
				"motivations": {Entity: "record_motivations", FromField: "id", ToField: "record_id", ValueField: "motivation_id"},
				"phones":      {Entity: "phones", FromField: "id", ToField: "record_id"},
				"emails":      {Entity: "emails", FromField: "id", ToField: "record_id"},
				"tasks":       {Entity: "tasks", FromField: "id", ToField: "record_id"},
			},
			SearchFields: []SearchField{
				{Field: "address"},
				{Field: "owner_name"},
				{Field: "city"},
				{Field: "number", Relation: "phones"},
				{Field: "address", Relation: "emails"},
			},
			DateModes:       []string{DateModeCreated, DateModeUpdated},
			DefaultDateMode: DateModeCreated,
		},
		{
			Key:         "tasks",
			Label:       "Task",
			LabelPlural: "Tasks",
			Delegate:    "tasks",
			TenantScope: TenantScope{
				Mode:            ScopeDirect,
				Field:           "tenant_id",
				AllowLegacyRows: true,
			},
			Relations: map[string]RelationDef{
				"record": {Entity: "records", FromField: "record_id", ToField: "id"},
			},
			SearchFields: []SearchField{
				{Field: "title"},
			},
			DateModes:       []string{DateModeCreated, DateModeUpdated, DateModeCompleted, DateModeDue},
			DefaultDateMode: DateModeCreated,
		},
		{
			Key:         "phones",
			Label:       "Phone",
			LabelPlural: "Phones",
			Delegate:    "phones",
			TenantScope: TenantScope{
				Mode:     ScopeViaJoin,
				Relation: "record",
			},
			Relations: map[string]RelationDef{
				"record": {Entity: "records", FromField: "record_id", ToField: "id"},
			},
			SearchFields: []SearchField{
				{Field: "number"},
			},
			DateModes:       []string{DateModeCreated},
			DefaultDateMode: DateModeCreated,
		},
		{
			Key:         "emails",
			Label:       "Email",
			LabelPlural: "Emails",
			Delegate:    "emails",
			TenantScope: TenantScope{
				Mode:     ScopeViaJoin,
				Relation: "record",
			},
			Relations: map[string]RelationDef{
				"record": {Entity: "records", FromField: "record_id", ToField: "id"},
			},
			SearchFields: []SearchField{
				{Field: "address"},
			},
			DateModes:       []string{DateModeCreated},
			DefaultDateMode: DateModeCreated,
		},
		{
			Key:         "record_tags",
			Label:       "Record Tag",
			LabelPlural: "Record Tags",
			Delegate:    "record_tags",
			TenantScope: TenantScope{
				Mode:     ScopeViaJoin,
				Relation: "record",
			},
			Relations: map[string]RelationDef{
				"record": {Entity: "records", FromField: "record_id", ToField: "id"},
				"tag":    {Entity: "tags", FromField: "tag_id", ToField: "id"},
			},
			DateModes:       []string{DateModeJunctionCreated},
			DefaultDateMode: DateModeJunctionCreated,
		},
		{
			Key:         "record_motivations",
			Label:       "Record Motivation",
			LabelPlural: "Record Motivations",
			Delegate:    "record_motivations",
			TenantScope: TenantScope{
				Mode:     ScopeViaJoin,
				Relation: "record",
			},
			Relations: map[string]RelationDef{
				"record":     {Entity: "records", FromField: "record_id", ToField: "id"},
				"motivation": {Entity: "motivations", FromField: "motivation_id", ToField: "id"},
			},
			DateModes:       []string{DateModeJunctionCreated},
			DefaultDateMode: DateModeJunctionCreated,
		},
		{
			Key:         "tags",
			Label:       "Tag",
			LabelPlural: "Tags",
			Delegate:    "tags",
			TenantScope: TenantScope{
				Mode:  ScopeDirect,
				Field: "tenant_id",
			},
			SearchFields: []SearchField{
				{Field: "name"},
			},
			DateModes:       []string{DateModeCreated},
			DefaultDateMode: DateModeCreated,
		},
		{
			Key:         "motivations",
			Label:       "Motivation",
			LabelPlural: "Motivations",
			Delegate:    "motivations",
			TenantScope: TenantScope{
				Mode:  ScopeDirect,
				Field: "tenant_id",
			},
			SearchFields: []SearchField{
				{Field: "name"},
			},
			DateModes:       []string{DateModeCreated},
			DefaultDateMode: DateModeCreated,
		},
		{
			Key:         "boards",
			Label:       "Board",
			LabelPlural: "Boards",
			Delegate:    "boards",
			TenantScope: TenantScope{
				Mode:  ScopeDirect,
				Field: "tenant_id",
			},
			SearchFields: []SearchField{
				{Field: "name"},
			},
			DateModes:       []string{DateModeCreated},
			DefaultDateMode: DateModeCreated,
		},
	}
}
