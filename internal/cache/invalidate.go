package cache

import (
	"context"

	"propsift/internal/logging"
)

// Mutation classifies a data change for invalidation purposes.
type Mutation string

const (
	MutationCreate     Mutation = "create"
	MutationUpdate     Mutation = "update"
	MutationDelete     Mutation = "delete"
	MutationBulkCreate Mutation = "bulk_create"
	MutationBulkDelete Mutation = "bulk_delete"
)

// relatedEntities lists the entities whose cached results go stale when
// rows of the keyed entity appear or disappear. Derived from the join
// graph: deleting a record orphans its junctions and children; junction
// changes alter record counts; label-table changes reach records through
// the junctions.
var relatedEntities = map[string][]string{
	"records":            {"record_tags", "record_motivations", "phones", "emails", "tasks"},
	"tasks":              {"records"},
	"phones":             {"records"},
	"emails":             {"records"},
	"record_tags":        {"records", "tags"},
	"record_motivations": {"records", "motivations"},
	"tags":               {"record_tags", "records"},
	"motivations":        {"record_motivations", "records"},
	"boards":             {"records"},
}

// AffectedEntities returns the related-entity list for an entity key.
func AffectedEntities(entity string) []string {
	return relatedEntities[entity]
}

// MutationOpts qualifies a mutation.
type MutationOpts struct {
	// LabelChange marks an update that changed a human-visible name or
	// color rather than widget-relevant data.
	LabelChange bool
}

// Invalidator applies the version-bump contract for mutations.
type Invalidator struct {
	versions *Versions
	logger   *logging.Logger
}

// NewInvalidator creates an invalidator over the version counters.
func NewInvalidator(versions *Versions, logger *logging.Logger) *Invalidator {
	return &Invalidator{
		versions: versions,
		logger:   logger.WithComponent("cache"),
	}
}

// OnMutation bumps the counters a mutation invalidates:
//
//   - create/delete (and their bulk forms) bump both counters of the
//     primary entity and the cache version of every related entity
//   - a plain update bumps only the primary entity's cache version
//   - a label-changing update bumps only the primary entity's label
//     version, leaving widget data intact
//
// All bumps are best-effort; counter failures degrade to cache misses.
func (inv *Invalidator) OnMutation(ctx context.Context, tenant, entity string, mutation Mutation, opts MutationOpts) {
	switch mutation {
	case MutationUpdate:
		if opts.LabelChange {
			inv.versions.BumpLabelVersion(ctx, tenant, entity)
			return
		}
		inv.versions.BumpCacheVersion(ctx, tenant, entity)

	case MutationCreate, MutationDelete, MutationBulkCreate, MutationBulkDelete:
		inv.versions.BumpCacheVersion(ctx, tenant, entity)
		inv.versions.BumpLabelVersion(ctx, tenant, entity)
		for _, related := range relatedEntities[entity] {
			inv.versions.BumpCacheVersion(ctx, tenant, related)
		}

	default:
		inv.logger.Warn("Ignoring unknown mutation kind", map[string]interface{}{
			"entity":   entity,
			"mutation": string(mutation),
		})
	}
}
