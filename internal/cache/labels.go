package cache

import (
	"context"
	"encoding/json"
	"time"

	"propsift/internal/logging"
)

// Label is a cached name/color pair for a labelled entity row.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// LabelLoader fetches labels for the given ids from the store.
type LabelLoader func(ctx context.Context, ids []string) (map[string]Label, error)

// LabelCache caches per-id labels under the entity's labelVersion, so a
// rename invalidates labels without touching widget data and widget
// mutations leave labels alone.
type LabelCache struct {
	client   Client
	versions *Versions
	ttl      time.Duration
	logger   *logging.Logger
}

// NewLabelCache creates a label cache with the given entry TTL.
func NewLabelCache(client Client, versions *Versions, ttl time.Duration, logger *logging.Logger) *LabelCache {
	return &LabelCache{
		client:   client,
		versions: versions,
		ttl:      ttl,
		logger:   logger.WithComponent("cache"),
	}
}

// GetMany resolves labels for ids, serving hits from the cache and
// falling through to the loader for the rest. Freshly loaded labels are
// written back best-effort.
func (lc *LabelCache) GetMany(ctx context.Context, tenant, entity string, ids []string, loader LabelLoader) (map[string]Label, error) {
	if len(ids) == 0 {
		return map[string]Label{}, nil
	}

	lv := lc.versions.LabelVersion(ctx, tenant, entity)

	keys := make([]string, len(ids))
	keyToID := make(map[string]string, len(ids))
	for i, id := range ids {
		keys[i] = labelKey(tenant, entity, lv, id)
		keyToID[keys[i]] = id
	}

	out := make(map[string]Label, len(ids))
	hits, err := lc.client.MGet(ctx, keys)
	if err != nil {
		lc.logger.Warn("Label cache read failed, loading all from store", map[string]interface{}{
			"entity": entity,
			"error":  err.Error(),
		})
		hits = nil
	}
	for key, raw := range hits {
		var l Label
		if json.Unmarshal(raw, &l) == nil {
			out[keyToID[key]] = l
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := loader(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, l := range loaded {
		out[id] = l
		lc.store(ctx, tenant, entity, lv, l)
	}
	return out, nil
}

// Prefetch loads every label for the entity and warms the cache. Used
// after bulk imports and on tenant activation.
func (lc *LabelCache) Prefetch(ctx context.Context, tenant, entity string, loadAll func(ctx context.Context) ([]Label, error)) error {
	labels, err := loadAll(ctx)
	if err != nil {
		return err
	}
	lv := lc.versions.LabelVersion(ctx, tenant, entity)
	for _, l := range labels {
		lc.store(ctx, tenant, entity, lv, l)
	}
	return nil
}

func (lc *LabelCache) store(ctx context.Context, tenant, entity string, lv int64, l Label) {
	raw, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := lc.client.Set(ctx, labelKey(tenant, entity, lv, l.ID), raw, lc.ttl); err != nil {
		lc.logger.Warn("Label cache write failed", map[string]interface{}{
			"entity": entity,
			"id":     l.ID,
			"error":  err.Error(),
		})
	}
}
