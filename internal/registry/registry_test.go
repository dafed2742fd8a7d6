package registry

import (
	"testing"
)

func TestEntityLookup(t *testing.T) {
	c := Default()

	e, ok := c.Entity("records")
	if !ok {
		t.Fatal("records entity should exist")
	}
	if e.Delegate != "records" {
		t.Errorf("delegate = %q", e.Delegate)
	}
	if e.TenantScope.Mode != ScopeDirect {
		t.Errorf("records should be direct-scoped, got %s", e.TenantScope.Mode)
	}
	if !e.TenantScope.AllowLegacyRows {
		t.Error("records should tolerate legacy untenanted rows")
	}

	if _, ok := c.Entity("widgets"); ok {
		t.Error("unknown entity should not resolve")
	}
}

func TestViaJoinScope(t *testing.T) {
	c := Default()

	for _, key := range []string{"phones", "emails", "record_tags", "record_motivations"} {
		e, ok := c.Entity(key)
		if !ok {
			t.Fatalf("%s entity should exist", key)
		}
		if e.TenantScope.Mode != ScopeViaJoin {
			t.Errorf("%s should be via_join scoped", key)
		}
		rel, ok := e.Relations[e.TenantScope.Relation]
		if !ok {
			t.Fatalf("%s scope relation %q not defined", key, e.TenantScope.Relation)
		}
		if rel.Entity != "records" {
			t.Errorf("%s scope should join to records, got %s", key, rel.Entity)
		}
	}
}

func TestSegmentBinding(t *testing.T) {
	c := Default()

	s, ok := c.Segment("hot_leads")
	if !ok {
		t.Fatal("hot_leads segment should exist")
	}
	if s.EntityKey != "records" {
		t.Errorf("hot_leads bound to %q", s.EntityKey)
	}
	if len(s.Filters) == 0 {
		t.Error("hot_leads should carry filters")
	}

	segs := c.SegmentsForEntity("tasks")
	for _, seg := range segs {
		if seg.EntityKey != "tasks" {
			t.Errorf("SegmentsForEntity(tasks) returned %s bound to %s", seg.Key, seg.EntityKey)
		}
	}
	if len(segs) == 0 {
		t.Error("tasks should have segments")
	}
}

func TestRequiresJunctionEntity(t *testing.T) {
	c := Default()

	junction, required := c.RequiresJunctionEntity("tag")
	if !required {
		t.Fatal("tag dimension should require a junction entity")
	}
	if junction != "record_tags" {
		t.Errorf("tag junction = %q, want record_tags", junction)
	}

	if _, required := c.RequiresJunctionEntity("status"); required {
		t.Error("status dimension should not require a junction entity")
	}
	if _, required := c.RequiresJunctionEntity("nope"); required {
		t.Error("unknown dimension should not require a junction entity")
	}
}

func TestDimensionsForEntity(t *testing.T) {
	c := Default()

	dims := c.DimensionsForEntity("records")
	found := map[string]bool{}
	for _, d := range dims {
		found[d.Key] = true
	}
	if !found["status"] || !found["temperature"] || !found["created"] {
		t.Errorf("records dimensions missing expected keys: %v", found)
	}
	if found["tag"] {
		t.Error("tag dimension should not apply to records directly")
	}

	junctionDims := c.DimensionsForEntity("record_tags")
	foundJ := map[string]bool{}
	for _, d := range junctionDims {
		foundJ[d.Key] = true
	}
	if !foundJ["tag"] {
		t.Error("record_tags should support the tag dimension")
	}
}

func TestMetricsForEntity(t *testing.T) {
	c := Default()

	ms := c.MetricsForEntity("records")
	found := map[string]bool{}
	for _, m := range ms {
		found[m.Key] = true
	}
	if !found["count"] || !found["contact_rate"] {
		t.Errorf("records metrics missing expected keys: %v", found)
	}

	ms = c.MetricsForEntity("tasks")
	for _, m := range ms {
		if m.Key == "contact_rate" {
			t.Error("contact_rate should not apply to tasks")
		}
	}
}

func TestMetricRequiresField(t *testing.T) {
	c := Default()
	for key, want := range map[string]bool{
		"count":          false,
		"sum":            true,
		"avg":            true,
		"distinct_count": true,
		"contact_rate":   false,
	} {
		m, ok := c.Metric(key)
		if !ok {
			t.Fatalf("metric %s should exist", key)
		}
		if got := m.RequiresField(); got != want {
			t.Errorf("%s RequiresField = %v, want %v", key, got, want)
		}
	}
}

func TestEntityKeysSorted(t *testing.T) {
	c := Default()
	keys := c.EntityKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("entity keys not sorted: %v", keys)
		}
	}
	if len(keys) != 9 {
		t.Errorf("expected 9 entities, got %d: %v", len(keys), keys)
	}
}

func TestRelationEntity(t *testing.T) {
	c := Default()

	entity, ok := c.RelationEntity("records", "tags")
	if !ok || entity != "record_tags" {
		t.Errorf("records.tags relation = %q, %v", entity, ok)
	}
	if _, ok := c.RelationEntity("records", "owners"); ok {
		t.Error("unknown relation should not resolve")
	}
}
