package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"propsift/internal/logging"
)

// Result is a widget payload plus its cache provenance.
type Result struct {
	Data     json.RawMessage `json:"data"`
	Cached   bool            `json:"cached"`
	CachedAt time.Time       `json:"cachedAt,omitempty"`
}

type widgetEnvelope struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cachedAt"`
}

// WidgetCache caches computed widget results under version-dependent
// keys. Every cache failure degrades to computing the result directly.
type WidgetCache struct {
	client   Client
	versions *Versions
	ttl      time.Duration
	logger   *logging.Logger

	writes sync.WaitGroup
}

// NewWidgetCache creates a widget cache with the given entry TTL.
func NewWidgetCache(client Client, versions *Versions, ttl time.Duration, logger *logging.Logger) *WidgetCache {
	return &WidgetCache{
		client:   client,
		versions: versions,
		ttl:      ttl,
		logger:   logger.WithComponent("cache"),
	}
}

// Fetch returns the cached result for the query when one exists under the
// current dependency versions, otherwise computes it and writes it back
// without blocking the response.
func (w *WidgetCache) Fetch(ctx context.Context, tenant string, deps []string, permHash, queryHash string, compute func(context.Context) (json.RawMessage, error)) (*Result, error) {
	depsHash := w.versions.DepsHash(ctx, tenant, deps)
	key := widgetKey(tenant, depsHash, permHash, queryHash)

	stored, ok, err := w.client.Get(ctx, key)
	if err != nil {
		w.logger.Warn("Widget cache read failed, computing directly", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	} else if ok {
		if res, decodeErr := decodeEnvelope(stored); decodeErr == nil {
			return res, nil
		}
		// A corrupt entry reads as a miss and gets overwritten below.
	}

	data, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	w.writeBack(key, data)
	return &Result{Data: data, Cached: false}, nil
}

// Flush waits for in-flight write-backs. Called on shutdown and in tests.
func (w *WidgetCache) Flush() {
	w.writes.Wait()
}

func (w *WidgetCache) writeBack(key string, data json.RawMessage) {
	env, err := json.Marshal(widgetEnvelope{Data: data, CachedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	payload := encodePayload(env)

	w.writes.Add(1)
	go func() {
		defer w.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.client.Set(ctx, key, payload, w.ttl); err != nil {
			w.logger.Warn("Widget cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}()
}

func decodeEnvelope(stored []byte) (*Result, error) {
	raw, err := decodePayload(stored)
	if err != nil {
		return nil, err
	}
	var env widgetEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &Result{Data: env.Data, Cached: true, CachedAt: env.CachedAt}, nil
}
