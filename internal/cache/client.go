// Package cache implements the versioned widget and label caches over a
// small key-value client. Version counters make invalidation implicit:
// bumping a counter changes every dependent key, old entries just age out.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"propsift/internal/config"
	"propsift/internal/logging"
)

// Client is the primitive set every cache backend provides. All values
// are opaque bytes; Incr keys hold decimal integers.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Close() error
}

// New selects the backend: badger when cache.dir is configured, otherwise
// the in-process map. A badger open failure is logged and degrades to the
// in-process map rather than failing startup.
func New(cfg config.CacheConfig, logger *logging.Logger) Client {
	if cfg.Dir == "" {
		return NewMemoryClient()
	}
	bc, err := NewBadgerClient(cfg.Dir)
	if err != nil {
		logger.Warn("Cache directory unusable, falling back to in-process cache", map[string]interface{}{
			"dir":   cfg.Dir,
			"error": err.Error(),
		})
		return NewMemoryClient()
	}
	return bc
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryClient is the in-process fallback backend: a mutex-guarded map
// with per-entry expiry timestamps. Process-lifetime only.
type MemoryClient struct {
	mu      sync.RWMutex
	entries map[string]memEntry

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemoryClient creates an empty in-process cache.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (m *MemoryClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.expired(e) {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	m.entries[key] = memEntry{value: stored, expiresAt: m.expiry(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryClient) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryClient) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range keys {
		e, ok := m.entries[k]
		if !ok || m.expired(e) {
			continue
		}
		v := make([]byte, len(e.value))
		copy(v, e.value)
		out[k] = v
	}
	return out, nil
}

func (m *MemoryClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if e, ok := m.entries[key]; ok && !m.expired(e) {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err == nil {
			n = parsed
		}
	}
	n++
	m.entries[key] = memEntry{value: []byte(strconv.FormatInt(n, 10)), expiresAt: m.expiry(ttl)}
	return n, nil
}

func (m *MemoryClient) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !m.expired(e) {
		return false, nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = memEntry{value: stored, expiresAt: m.expiry(ttl)}
	return true, nil
}

func (m *MemoryClient) Close() error {
	m.Reset()
	return nil
}

// Reset drops every entry. Intended for tests.
func (m *MemoryClient) Reset() {
	m.mu.Lock()
	m.entries = make(map[string]memEntry)
	m.mu.Unlock()
}

func (m *MemoryClient) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryClient) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}
