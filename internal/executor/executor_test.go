package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"propsift/internal/cache"
	"propsift/internal/compiler"
	"propsift/internal/logging"
	"propsift/internal/predicate"
	"propsift/internal/registry"
	"propsift/internal/store"
)

func testExecutor(t *testing.T) (*Executor, *store.DB) {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	catalog := registry.Default()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.NewSQLGen(catalog), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, catalog, logger), db
}

func seed(t *testing.T, db *store.DB) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	records := []struct {
		id, status, temp, city string
		value                  float64
	}{
		{"r1", "contacted", "hot", "Austin", 150000},
		{"r2", "new", "warm", "Austin", 90000},
		{"r3", "closed", "hot", "Dallas", 210000},
		{"r4", "new", "", "Waco", 45000},
	}
	for _, r := range records {
		var temp interface{}
		if r.temp != "" {
			temp = r.temp
		}
		_, err := db.Conn().Exec(
			`INSERT INTO records (id, tenant_id, status, temperature, city, estimated_value, created_at, updated_at)
			 VALUES (?, 't1', ?, ?, ?, ?, ?, ?)`,
			r.id, r.status, temp, r.city, r.value, now, now)
		if err != nil {
			t.Fatalf("seed %s: %v", r.id, err)
		}
	}

	if _, err := db.Conn().Exec(`INSERT INTO tags (id, tenant_id, name, color, created_at) VALUES
		('tag1', 't1', 'Vacant', '#f00', ?), ('tag2', 't1', 'Probate', '#0f0', ?)`, now, now); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Conn().Exec(`INSERT INTO record_tags (id, record_id, tag_id, created_at) VALUES
		('rt1', 'r1', 'tag1', ?), ('rt2', 'r2', 'tag1', ?), ('rt3', 'r3', 'tag2', ?)`, now, now, now); err != nil {
		t.Fatal(err)
	}
}

func scoped(entity string) *compiler.CompiledQuery {
	return &compiler.CompiledQuery{
		EntityKey: entity,
		Delegate:  entity,
		Where:     predicate.Eq("tenant_id", "t1"),
	}
}

func metricInput(key string) *compiler.WidgetQueryInput {
	return &compiler.WidgetQueryInput{EntityKey: "records", Metric: compiler.MetricInput{Key: key}}
}

func TestRunSingleCount(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)

	out, err := e.Run(context.Background(), scoped("records"), metricInput("count"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != TypeSingle || out.Value != 4 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRunMetricFilter(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)

	cq := scoped("records")
	cq.MetricWhere = predicate.Eq("city", "Austin")
	out, err := e.Run(context.Background(), cq, metricInput("count"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 2 {
		t.Errorf("filtered count = %v", out.Value)
	}
}

func TestRunAggregates(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)
	ctx := context.Background()

	in := metricInput("sum")
	in.Metric.Field = "estimated_value"
	out, err := e.Run(ctx, scoped("records"), in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 495000 {
		t.Errorf("sum = %v", out.Value)
	}

	in = metricInput("distinct_count")
	in.Metric.Field = "city"
	out, err = e.Run(ctx, scoped("records"), in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 3 {
		t.Errorf("distinct cities = %v", out.Value)
	}
}

func TestRunRate(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)
	ctx := context.Background()

	// contacted + closed = 2 of 4.
	out, err := e.Run(ctx, scoped("records"), metricInput("contact_rate"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 0.5 {
		t.Errorf("rate = %v", out.Value)
	}

	// Zero denominator yields 0, not an error.
	cq := scoped("records")
	cq.Where = predicate.Eq("tenant_id", "empty-tenant")
	out, err = e.Run(ctx, cq, metricInput("contact_rate"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 0 {
		t.Errorf("empty rate = %v", out.Value)
	}
}

func TestRunGroupedEnum(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)

	in := metricInput("count")
	in.Dimension = "status"
	out, err := e.Run(context.Background(), scoped("records"), in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != TypeGrouped {
		t.Fatalf("type = %s", out.Type)
	}
	if out.Total != 4 {
		t.Errorf("total = %d", out.Total)
	}
	// new has 2 rows, so it leads.
	if out.Data[0].Key != "new" || out.Data[0].Count != 2 {
		t.Errorf("first bucket = %+v", out.Data[0])
	}
	if out.Data[0].Label != "New" || out.Data[0].Color == "" {
		t.Errorf("enum labels missing: %+v", out.Data[0])
	}
}

func TestRunGroupedNullBucket(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)

	in := metricInput("count")
	in.Dimension = "temperature"
	out, err := e.Run(context.Background(), scoped("records"), in)
	if err != nil {
		t.Fatal(err)
	}
	var sawNone bool
	for _, b := range out.Data {
		if b.Key == "" {
			sawNone = true
			if b.Label != "None" {
				t.Errorf("null bucket label = %q", b.Label)
			}
		}
	}
	if !sawNone {
		t.Error("expected a bucket for rows without a temperature")
	}
}

func TestRunGroupedLookup(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)

	// Tag grouping targets the junction entity; scope it through records.
	cq := &compiler.CompiledQuery{
		EntityKey: "record_tags",
		Delegate:  "record_tags",
		Where: predicate.Relation{
			Name:       "record",
			Quantifier: predicate.QuantSome,
			Expr:       predicate.Eq("tenant_id", "t1"),
		},
	}
	in := &compiler.WidgetQueryInput{
		EntityKey: "record_tags",
		Metric:    compiler.MetricInput{Key: "count"},
		Dimension: "tag",
	}
	out, err := e.Run(context.Background(), cq, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Data) != 2 || out.Total != 3 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Data[0].Key != "tag1" || out.Data[0].Label != "Vacant" || out.Data[0].Color != "#f00" {
		t.Errorf("lookup bucket = %+v", out.Data[0])
	}
}

func TestRunGroupedLookupCached(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)
	ctx := context.Background()

	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	client := cache.NewMemoryClient()
	versions := cache.NewVersions(client, time.Hour, logger)
	e.WithLabelCache(cache.NewLabelCache(client, versions, time.Hour, logger))

	cq := &compiler.CompiledQuery{
		Tenant:    "t1",
		EntityKey: "record_tags",
		Delegate:  "record_tags",
		Where: predicate.Relation{
			Name:       "record",
			Quantifier: predicate.QuantSome,
			Expr:       predicate.Eq("tenant_id", "t1"),
		},
	}
	in := &compiler.WidgetQueryInput{
		EntityKey: "record_tags",
		Metric:    compiler.MetricInput{Key: "count"},
		Dimension: "tag",
	}

	out, err := e.Run(ctx, cq, in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0].Label != "Vacant" {
		t.Fatalf("first run bucket = %+v", out.Data[0])
	}

	// A rename without a label-version bump keeps serving the cached name.
	if _, err := db.Conn().Exec(`UPDATE tags SET name = 'Empty Lot' WHERE id = 'tag1'`); err != nil {
		t.Fatal(err)
	}
	out, err = e.Run(ctx, cq, in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0].Label != "Vacant" {
		t.Errorf("cached label = %q, want the pre-rename name", out.Data[0].Label)
	}

	// Bumping the label version makes the next run re-read the store.
	versions.BumpLabelVersion(ctx, "t1", "tags")
	out, err = e.Run(ctx, cq, in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0].Label != "Empty Lot" {
		t.Errorf("post-bump label = %q", out.Data[0].Label)
	}
}

func TestRunGroupedLimit(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)

	in := metricInput("count")
	in.Dimension = "city"
	in.Limit = 2
	out, err := e.Run(context.Background(), scoped("records"), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Data) != 2 {
		t.Errorf("buckets = %d, want limit 2", len(out.Data))
	}
	if out.Total != 4 {
		t.Errorf("total = %d, limit must not shrink the total", out.Total)
	}
}

func TestDrilldown(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)
	ctx := context.Background()

	page, err := e.Drilldown(ctx, scoped("records"), 1, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 4 || len(page.Rows) != 2 {
		t.Errorf("page = total %d, rows %d", page.Total, len(page.Rows))
	}

	// Clamping: page 0 behaves as 1, oversized pageSize caps at 100.
	clamped, err := e.Drilldown(ctx, scoped("records"), 0, 500, "")
	if err != nil {
		t.Fatal(err)
	}
	if clamped.Total != 4 || len(clamped.Rows) != 4 {
		t.Errorf("clamped = total %d, rows %d", clamped.Total, len(clamped.Rows))
	}

	// A page past the end is empty but keeps the total.
	empty, err := e.Drilldown(ctx, scoped("records"), 9, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if empty.Total != 4 || len(empty.Rows) != 0 {
		t.Errorf("past-end page = total %d, rows %d", empty.Total, len(empty.Rows))
	}
}

func TestDrilldownSearch(t *testing.T) {
	e, db := testExecutor(t)
	seed(t, db)
	ctx := context.Background()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.Conn().Exec(
		`INSERT INTO phones (id, record_id, number, created_at) VALUES ('p1', 'r4', '512-555-0100', ?)`, now); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Conn().Exec(`UPDATE records SET owner_name = 'Maria Obregon' WHERE id = 'r1'`); err != nil {
		t.Fatal(err)
	}

	page, err := e.Drilldown(ctx, scoped("records"), 1, 10, "Obregon")
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Rows[0]["id"] != "r1" {
		t.Errorf("owner search page = %+v", page)
	}

	// Relation search field: phone number reaches the parent record.
	page, err = e.Drilldown(ctx, scoped("records"), 1, 10, "555-0100")
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Rows[0]["id"] != "r4" {
		t.Errorf("phone search page = %+v", page)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total    int64
		pageSize int
		want     int
	}{
		{0, 25, 0},
		{1, 25, 1},
		{25, 25, 1},
		{26, 25, 2},
		{100, 0, 0},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.pageSize); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.pageSize, got, tt.want)
		}
	}
}
