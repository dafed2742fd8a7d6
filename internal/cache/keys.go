package cache

import (
	"fmt"
	"hash/fnv"
)

// SchemaVersion is baked into every key so a deploy that changes cached
// shapes starts from a cold cache instead of misreading old entries.
const SchemaVersion = "1"

func versionKey(tenant, entity string) string {
	return fmt.Sprintf("v:%s:%s:%s:version", SchemaVersion, tenant, entity)
}

func labelVersionKey(tenant, entity string) string {
	return fmt.Sprintf("v:%s:%s:%s:labelVersion", SchemaVersion, tenant, entity)
}

func widgetKey(tenant, depsHash, permHash, queryHash string) string {
	return fmt.Sprintf("w:%s:%s:%s:%s:%s", SchemaVersion, tenant, depsHash, shortHash(permHash), shortHash(queryHash))
}

func labelKey(tenant, entity string, labelVersion int64, id string) string {
	return fmt.Sprintf("l:%s:%s:%s:%d:%s", SchemaVersion, tenant, entity, labelVersion, id)
}

// shortHash compacts an already-opaque hash string for key embedding.
func shortHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
