package compiler

import (
	"sort"
	"strings"

	"propsift/internal/registry"
)

// computeDeps returns the sorted, deduplicated list of entity keys whose
// cache version changes must invalidate this query's cached result.
func (c *Compiler) computeDeps(input *WidgetQueryInput, ctx *CompileCtx, entity registry.EntityDefinition) []string {
	deps := map[string]bool{entity.Key: true}

	// via_join scope reads the joined entity's tenant field.
	if entity.TenantScope.Mode == registry.ScopeViaJoin {
		if rel, ok := entity.Relations[entity.TenantScope.Relation]; ok {
			deps[rel.Entity] = true
		}
	}

	g := &input.GlobalFilters

	// Record-join global filters read record rows. Presence matters, not
	// truthiness: callReady=false is still a record filter.
	if entity.Key != "records" && recordJoinFilterPresent(g) {
		deps["records"] = true
	}

	if g.Tags != nil && (len(g.Tags.Include) > 0 || len(g.Tags.Exclude) > 0) {
		deps["record_tags"] = true
		deps["tags"] = true
	}
	if g.Motivations != nil && (len(g.Motivations.Include) > 0 || len(g.Motivations.Exclude) > 0) {
		deps["record_motivations"] = true
		deps["motivations"] = true
	}

	// Dotted row-filter fields read across a relation.
	if perm, ok := ctx.Permissions[entity.Key]; ok {
		for _, f := range perm.RowFilter {
			if !strings.Contains(f.Field, ".") {
				continue
			}
			relName := strings.SplitN(f.Field, ".", 2)[0]
			if related, ok := c.catalog.RelationEntity(entity.Key, relName); ok {
				deps[related] = true
			}
		}
	}

	out := make([]string, 0, len(deps))
	for k := range deps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func recordJoinFilterPresent(g *GlobalFilters) bool {
	if len(g.Assignees) > 0 || len(g.Status) > 0 || len(g.Temperature) > 0 {
		return true
	}
	if g.Market != nil && (len(g.Market.States) > 0 || len(g.Market.Cities) > 0) {
		return true
	}
	if g.Board != nil && (g.Board.BoardID != "" || g.Board.ColumnID != "") {
		return true
	}
	return g.CallReady != nil
}
