package compiler

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"propsift/internal/predicate"
)

// computeHash builds the canonical form of the fully-resolved query and
// hashes it. Two requests that mean the same thing must hash identically,
// so set-like global-filter arrays are sorted before serialization while
// ordered inputs (widget filters, sort) keep their given order. Object
// keys are canonical because encoding/json sorts map keys.
func (c *Compiler) computeHash(input *WidgetQueryInput, ctx *CompileCtx, rng *ResolvedRange, dateMode string) string {
	canonical := map[string]interface{}{
		"entity":         input.EntityKey,
		"segment":        input.SegmentKey,
		"metric":         metricCanonical(input.Metric),
		"dimension":      input.Dimension,
		"filters":        filtersCanonical(input.Filters),
		"globalFilters":  globalsCanonical(&input.GlobalFilters),
		"dateRange":      rangeCanonical(rng),
		"dateMode":       dateMode,
		"granularity":    input.Granularity,
		"sort":           sortCanonical(input.Sort),
		"limit":          input.Limit,
		"tenantId":       ctx.TenantID,
		"timezone":       ctx.Timezone,
		"permissionHash": ctx.PermissionHash,
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		// Canonical values are all JSON-safe shapes; this cannot fire for
		// well-formed input.
		return fmt.Sprintf("unhashable:%v", err)
	}
	return Hash32(string(data))
}

// Hash32 returns an 8-hex-digit FNV-1a hash of s.
func Hash32(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// HashPermissions produces the stable permission hash for a context. The
// API boundary calls this once per request when the caller did not supply
// a precomputed hash.
func HashPermissions(perms map[string]Permission, role, scopeKey string) string {
	canonical := map[string]interface{}{
		"role":        role,
		"scopeKey":    scopeKey,
		"permissions": perms,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "unhashable"
	}
	return Hash32(string(data))
}

func metricCanonical(m MetricInput) map[string]interface{} {
	out := map[string]interface{}{"key": m.Key}
	if m.Field != "" {
		out["field"] = m.Field
	}
	if len(m.Filter) > 0 {
		out["filter"] = filtersCanonical(m.Filter)
	}
	return out
}

// filtersCanonical keeps filter order: widget filter order is part of the
// request's meaning.
func filtersCanonical(filters []predicate.Filter) []map[string]interface{} {
	out := make([]map[string]interface{}, len(filters))
	for i, f := range filters {
		out[i] = map[string]interface{}{
			"field":    f.Field,
			"operator": string(f.Operator),
			"value":    f.Value,
		}
	}
	return out
}

// globalsCanonical normalizes the set-like arrays so equivalent filter
// sets hash identically regardless of UI insertion order.
func globalsCanonical(g *GlobalFilters) map[string]interface{} {
	out := map[string]interface{}{}

	if len(g.Assignees) > 0 {
		out["assignees"] = sortedCopy(g.Assignees)
	}
	if len(g.Status) > 0 {
		out["status"] = sortedCopy(g.Status)
	}
	if len(g.Temperature) > 0 {
		out["temperature"] = sortedCopy(g.Temperature)
	}
	if g.Tags != nil && (len(g.Tags.Include) > 0 || len(g.Tags.Exclude) > 0) {
		out["tags"] = map[string]interface{}{
			"include": sortedCopy(g.Tags.Include),
			"exclude": sortedCopy(g.Tags.Exclude),
		}
	}
	if g.Motivations != nil && (len(g.Motivations.Include) > 0 || len(g.Motivations.Exclude) > 0) {
		out["motivations"] = map[string]interface{}{
			"include": sortedCopy(g.Motivations.Include),
			"exclude": sortedCopy(g.Motivations.Exclude),
		}
	}
	if g.Market != nil && (len(g.Market.States) > 0 || len(g.Market.Cities) > 0) {
		out["market"] = map[string]interface{}{
			"states": sortedCopy(g.Market.States),
			"cities": sortedCopy(g.Market.Cities),
		}
	}
	if g.Board != nil && (g.Board.BoardID != "" || g.Board.ColumnID != "") {
		out["board"] = map[string]interface{}{
			"boardId":  g.Board.BoardID,
			"columnId": g.Board.ColumnID,
		}
	}
	if g.CallReady != nil {
		out["callReady"] = *g.CallReady
	}

	return out
}

func rangeCanonical(rng *ResolvedRange) interface{} {
	if rng == nil {
		return nil
	}
	out := map[string]interface{}{}
	if rng.Preset != "" {
		out["preset"] = rng.Preset
	}
	if !rng.Start.IsZero() {
		out["start"] = rng.Start.UTC().Format(time.RFC3339)
	}
	if !rng.End.IsZero() {
		out["end"] = rng.End.UTC().Format(time.RFC3339)
	}
	return out
}

func sortCanonical(s *Sort) interface{} {
	if s == nil {
		return nil
	}
	return map[string]interface{}{"field": s.Field, "dir": s.Dir}
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
