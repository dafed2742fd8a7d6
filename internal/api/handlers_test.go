package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"propsift/internal/cache"
	"propsift/internal/compiler"
	"propsift/internal/config"
	"propsift/internal/executor"
	"propsift/internal/logging"
	"propsift/internal/registry"
	"propsift/internal/store"
)

type testEnv struct {
	server   *Server
	db       *store.DB
	widgets  *cache.WidgetCache
	versions *cache.Versions
}

func newTestEnv(t *testing.T, apiCfg config.APIConfig) *testEnv {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	catalog := registry.Default()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.NewSQLGen(catalog), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := cache.NewMemoryClient()
	versions := cache.NewVersions(client, time.Hour, logger)
	widgets := cache.NewWidgetCache(client, versions, time.Minute, logger)

	server := NewServer(apiCfg, Deps{
		Catalog:     catalog,
		Compiler:    compiler.New(catalog, logger),
		Executor:    executor.New(db, catalog, logger),
		Widgets:     widgets,
		Invalidator: cache.NewInvalidator(versions, logger),
		DB:          db,
	}, logger)

	return &testEnv{server: server, db: db, widgets: widgets, versions: versions}
}

func defaultAPIConfig() config.APIConfig {
	return config.APIConfig{
		Addr:              "127.0.0.1:0",
		RateLimit:         1000,
		RateBurst:         1000,
		RetryAfterSeconds: 2,
	}
}

func (env *testEnv) seedRecords(t *testing.T) {
	t.Helper()
	now := time.Now().UTC()
	rows := []struct {
		id, temp string
		age      time.Duration
	}{
		{"r1", "hot", time.Hour},
		{"r2", "hot", 24 * time.Hour},
		{"r3", "hot", 48 * time.Hour},
		{"r4", "cold", 30 * 24 * time.Hour},
	}
	for _, r := range rows {
		created := now.Add(-r.age).Format(time.RFC3339)
		_, err := env.db.Conn().Exec(
			`INSERT INTO records (id, tenant_id, status, temperature, created_at, updated_at) VALUES (?, 't1', 'new', ?, ?, ?)`,
			r.id, r.temp, created, created)
		if err != nil {
			t.Fatalf("seed %s: %v", r.id, err)
		}
	}
}

func (env *testEnv) post(t *testing.T, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func tenantHeaders() map[string]string {
	return map[string]string{
		"X-Tenant-ID": "t1",
		"X-User-ID":   "u1",
		"X-Role":      "admin",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestWidgetQueryEndToEnd(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())
	env.seedRecords(t)

	body := widgetQueryRequest{
		Query: compiler.WidgetQueryInput{
			EntityKey: "records",
			Metric:    compiler.MetricInput{Key: "count"},
			GlobalFilters: compiler.GlobalFilters{
				Temperature: []string{"hot"},
				DateRange:   &compiler.DateRange{Preset: "last_7_days"},
			},
		},
	}

	rec := env.post(t, "/api/widgets/query", body, tenantHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp widgetQueryResponse
	decodeBody(t, rec, &resp)
	if resp.Type != executor.TypeSingle || resp.Value != 3 {
		t.Errorf("response = %+v, want 3 hot records in range", resp)
	}
	if resp.Cached {
		t.Error("first request must not be a cache hit")
	}

	// The write-back is asynchronous; wait for it, then hit the cache.
	env.widgets.Flush()
	rec = env.post(t, "/api/widgets/query", body, tenantHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if !resp.Cached || resp.Value != 3 {
		t.Errorf("second response = %+v, want a cache hit", resp)
	}
	if resp.CachedAt == nil {
		t.Error("cache hit must carry cachedAt")
	}
}

func TestWidgetQueryInvalidation(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())
	env.seedRecords(t)

	body := widgetQueryRequest{
		Query: compiler.WidgetQueryInput{
			EntityKey: "records",
			Metric:    compiler.MetricInput{Key: "count"},
		},
	}
	env.post(t, "/api/widgets/query", body, tenantHeaders())
	env.widgets.Flush()

	// A record mutation moves the version keys, so the next read recomputes.
	rec := env.post(t, "/api/invalidate", invalidateRequest{
		TenantID: "t1",
		Entity:   "records",
		Mutation: "create",
	}, tenantHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d", rec.Code)
	}

	rec = env.post(t, "/api/widgets/query", body, tenantHeaders())
	var resp widgetQueryResponse
	decodeBody(t, rec, &resp)
	if resp.Cached {
		t.Error("query after invalidation must recompute")
	}
}

func TestWidgetQueryMissingTenant(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	body := widgetQueryRequest{
		Query: compiler.WidgetQueryInput{EntityKey: "records", Metric: compiler.MetricInput{Key: "count"}},
	}
	rec := env.post(t, "/api/widgets/query", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var er ErrorResponse
	decodeBody(t, rec, &er)
	if er.Code != "INVALID_REQUEST" {
		t.Errorf("code = %s", er.Code)
	}
}

func TestWidgetQueryUnknownEntity(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	body := widgetQueryRequest{
		Query: compiler.WidgetQueryInput{EntityKey: "mystery", Metric: compiler.MetricInput{Key: "count"}},
	}
	rec := env.post(t, "/api/widgets/query", body, tenantHeaders())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var er ErrorResponse
	decodeBody(t, rec, &er)
	if er.Code != "UNKNOWN_ENTITY" {
		t.Errorf("code = %s", er.Code)
	}
}

func TestWidgetQueryJunctionMismatch(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	body := widgetQueryRequest{
		Query: compiler.WidgetQueryInput{
			EntityKey: "records",
			Metric:    compiler.MetricInput{Key: "count"},
			Dimension: "tag",
		},
	}
	rec := env.post(t, "/api/widgets/query", body, tenantHeaders())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var er ErrorResponse
	decodeBody(t, rec, &er)
	if er.Code != "DIMENSION_TARGET_MISMATCH" {
		t.Errorf("code = %s", er.Code)
	}
	details, ok := er.Details.(map[string]interface{})
	if !ok || details["requiredEntity"] != "record_tags" {
		t.Errorf("details = %v, want the junction entity named", er.Details)
	}
}

func TestWidgetQueryPermissionDenied(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	body := widgetQueryRequest{
		Query: compiler.WidgetQueryInput{EntityKey: "records", Metric: compiler.MetricInput{Key: "count"}},
		Permissions: map[string]compiler.Permission{
			"records": {CanRead: false},
		},
	}
	rec := env.post(t, "/api/widgets/query", body, tenantHeaders())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	var er ErrorResponse
	decodeBody(t, rec, &er)
	if er.Code != "PERMISSION_DENIED" {
		t.Errorf("code = %s", er.Code)
	}
}

func TestDrilldownEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())
	env.seedRecords(t)

	body := drilldownRequest{
		widgetQueryRequest: widgetQueryRequest{
			Query: compiler.WidgetQueryInput{EntityKey: "records", Metric: compiler.MetricInput{Key: "count"}},
		},
		Page:     1,
		PageSize: 3,
	}
	rec := env.post(t, "/api/widgets/drilldown", body, tenantHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp drilldownResponse
	decodeBody(t, rec, &resp)
	if resp.Total != 4 || len(resp.Rows) != 3 {
		t.Errorf("page = total %d, rows %d", resp.Total, len(resp.Rows))
	}
	if resp.TotalPages != 2 || resp.Page != 1 || resp.PageSize != 3 {
		t.Errorf("paging echo = %+v", resp)
	}
}

func TestInvalidateEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())
	ctx := context.Background()

	rec := env.post(t, "/api/invalidate", invalidateRequest{
		TenantID: "t1",
		Entity:   "record_tags",
		Mutation: "create",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := env.versions.CacheVersion(ctx, "t1", "record_tags"); got != 1 {
		t.Errorf("record_tags cacheVersion = %d", got)
	}
	if got := env.versions.CacheVersion(ctx, "t1", "records"); got != 1 {
		t.Errorf("records cacheVersion = %d", got)
	}

	rec = env.post(t, "/api/invalidate", invalidateRequest{
		TenantID: "t1",
		Entity:   "records",
		Mutation: "sideways",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mutation status = %d", rec.Code)
	}

	rec = env.post(t, "/api/invalidate", invalidateRequest{Entity: "records", Mutation: "create"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing tenant status = %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Entities []struct {
			Key     string `json:"key"`
			Metrics []struct {
				Key string `json:"key"`
			} `json:"metrics"`
		} `json:"entities"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Entities) == 0 {
		t.Fatal("catalog must list entities")
	}
	var foundRecords bool
	for _, e := range resp.Entities {
		if e.Key == "records" {
			foundRecords = true
			if len(e.Metrics) == 0 {
				t.Error("records entity must list metrics")
			}
		}
	}
	if !foundRecords {
		t.Error("records entity missing from catalog")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/catalog", nil)
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST catalog status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/widgets/query", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := defaultAPIConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 1
	env := newTestEnv(t, cfg)

	// Pin the limiter clock so the bucket cannot refill between requests.
	frozen := time.Now()
	env.server.limiter.now = func() time.Time { return frozen }
	env.server.limiter.last = frozen

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	var er ErrorResponse
	decodeBody(t, rec, &er)
	if er.Code != "RATE_LIMITED" || er.RetryAfterSeconds != 2 {
		t.Errorf("error = %+v", er)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t, defaultAPIConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}

	// Without a supplied id the server mints one.
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}
