package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"propsift/internal/logging"
)

// Versions reads and bumps the per-tenant-per-entity version counters.
// Counter errors never propagate: a version that cannot be read counts
// as 0, which only costs a cache miss.
type Versions struct {
	client Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewVersions wraps a client with the counter operations. ttl bounds how
// long an idle tenant's counters survive.
func NewVersions(client Client, ttl time.Duration, logger *logging.Logger) *Versions {
	return &Versions{
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent("cache"),
	}
}

// CacheVersion returns the current data version for an entity.
func (v *Versions) CacheVersion(ctx context.Context, tenant, entity string) int64 {
	return v.read(ctx, versionKey(tenant, entity))
}

// LabelVersion returns the current label version for an entity.
func (v *Versions) LabelVersion(ctx context.Context, tenant, entity string) int64 {
	return v.read(ctx, labelVersionKey(tenant, entity))
}

// BumpCacheVersion increments the data version, invalidating every cached
// widget result that depends on the entity.
func (v *Versions) BumpCacheVersion(ctx context.Context, tenant, entity string) {
	v.bump(ctx, versionKey(tenant, entity))
}

// BumpLabelVersion increments the label version, invalidating cached
// name/color lookups without touching widget data.
func (v *Versions) BumpLabelVersion(ctx context.Context, tenant, entity string) {
	v.bump(ctx, labelVersionKey(tenant, entity))
}

// DepsHash joins the current cache versions of the sorted dependency list
// into a stable string, entity:version pairs separated by pipes. The hash
// is embedded in widget keys, so bumping any dependency's version retires
// every key built on the old value.
func (v *Versions) DepsHash(ctx context.Context, tenant string, deps []string) string {
	sorted := make([]string, len(deps))
	copy(sorted, deps)
	sort.Strings(sorted)

	parts := make([]string, len(sorted))
	for i, entity := range sorted {
		parts[i] = fmt.Sprintf("%s:%d", entity, v.CacheVersion(ctx, tenant, entity))
	}
	return strings.Join(parts, "|")
}

func (v *Versions) read(ctx context.Context, key string) int64 {
	raw, ok, err := v.client.Get(ctx, key)
	if err != nil {
		v.logger.Warn("Version read failed, treating as 0", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (v *Versions) bump(ctx context.Context, key string) {
	if _, err := v.client.Incr(ctx, key, v.ttl); err != nil {
		v.logger.Warn("Version bump failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
