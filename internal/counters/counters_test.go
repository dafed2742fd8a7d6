package counters

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"propsift/internal/cache"
	"propsift/internal/logging"
	"propsift/internal/registry"
	"propsift/internal/store"
)

type fixture struct {
	db       *store.DB
	service  *Service
	rec      *Reconciler
	versions *cache.Versions
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	catalog := registry.Default()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.NewSQLGen(catalog), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	versions := cache.NewVersions(cache.NewMemoryClient(), time.Hour, logger)
	inv := cache.NewInvalidator(versions, logger)
	return &fixture{
		db:       db,
		service:  NewService(db, inv, logger),
		rec:      NewReconciler(db, inv, 2, logger),
		versions: versions,
	}
}

func (f *fixture) seedRecord(t *testing.T, id string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := f.db.Conn().Exec(
		`INSERT INTO records (id, tenant_id, status, created_at, updated_at) VALUES (?, 't1', 'new', ?, ?)`,
		id, now, now)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func (f *fixture) seedTag(t *testing.T, id string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := f.db.Conn().Exec(
		`INSERT INTO tags (id, tenant_id, name, created_at) VALUES (?, 't1', ?, ?)`, id, id, now); err != nil {
		t.Fatalf("seed tag: %v", err)
	}
}

func (f *fixture) counter(t *testing.T, recordID, field string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Conn().QueryRow("SELECT "+field+" FROM records WHERE id = ?", recordID).Scan(&n); err != nil {
		t.Fatalf("read %s: %v", field, err)
	}
	return n
}

func TestAttachDetachTag(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedRecord(t, "r1")
	f.seedTag(t, "tag1")

	if err := f.service.AttachTag(ctx, "t1", "r1", "tag1"); err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "tag_count"); n != 1 {
		t.Errorf("tag_count = %d", n)
	}

	// Attaching the link again changes nothing.
	before := f.versions.CacheVersion(ctx, "t1", "records")
	if err := f.service.AttachTag(ctx, "t1", "r1", "tag1"); err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "tag_count"); n != 1 {
		t.Errorf("tag_count after duplicate attach = %d", n)
	}
	if got := f.versions.CacheVersion(ctx, "t1", "records"); got != before {
		t.Error("duplicate attach must not invalidate")
	}

	if err := f.service.DetachTag(ctx, "t1", "r1", "tag1"); err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "tag_count"); n != 0 {
		t.Errorf("tag_count after detach = %d", n)
	}

	// Detaching an absent link is a silent no-op at counter 0.
	if err := f.service.DetachTag(ctx, "t1", "r1", "tag1"); err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "tag_count"); n != 0 {
		t.Errorf("tag_count = %d, must not go negative", n)
	}
}

func TestAttachInvalidates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedRecord(t, "r1")
	f.seedTag(t, "tag1")

	if err := f.service.AttachTag(ctx, "t1", "r1", "tag1"); err != nil {
		t.Fatal(err)
	}
	// record_tags create bumps record_tags both ways and records+tags cache
	// versions.
	if got := f.versions.CacheVersion(ctx, "t1", "record_tags"); got != 1 {
		t.Errorf("record_tags cacheVersion = %d", got)
	}
	if got := f.versions.CacheVersion(ctx, "t1", "records"); got != 1 {
		t.Errorf("records cacheVersion = %d", got)
	}
	if got := f.versions.CacheVersion(ctx, "t1", "tags"); got != 1 {
		t.Errorf("tags cacheVersion = %d", got)
	}
}

func TestAttachUnknownRecordRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedTag(t, "tag1")

	if err := f.service.AttachTag(ctx, "t1", "ghost", "tag1"); err == nil {
		t.Fatal("expected error")
	}
	// The junction insert must not survive the failed counter update.
	var n int64
	if err := f.db.Conn().QueryRow(`SELECT COUNT(*) FROM record_tags`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("junction rows = %d after rollback", n)
	}
}

func TestPhonesAndEmails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedRecord(t, "r1")

	phoneID, err := f.service.AddPhone(ctx, "t1", "r1", "512-555-0100", "mobile")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.AddPhone(ctx, "t1", "r1", "512-555-0101", ""); err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "phone_count"); n != 2 {
		t.Errorf("phone_count = %d", n)
	}

	if err := f.service.RemovePhone(ctx, "t1", phoneID); err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "phone_count"); n != 1 {
		t.Errorf("phone_count after remove = %d", n)
	}

	// Removing a missing phone is a no-op.
	if err := f.service.RemovePhone(ctx, "t1", "ghost"); err != nil {
		t.Fatal(err)
	}

	emailID, err := f.service.AddEmail(ctx, "t1", "r1", "owner@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "email_count"); n != 1 {
		t.Errorf("email_count = %d", n)
	}
	if err := f.service.RemoveEmail(ctx, "t1", emailID); err != nil {
		t.Fatal(err)
	}
	if n := f.counter(t, "r1", "email_count"); n != 0 {
		t.Errorf("email_count after remove = %d", n)
	}
}

func TestReconcileRecordConverges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedRecord(t, "r1")
	f.seedTag(t, "tag1")
	f.seedTag(t, "tag2")

	if err := f.service.AttachTag(ctx, "t1", "r1", "tag1"); err != nil {
		t.Fatal(err)
	}
	if err := f.service.AttachTag(ctx, "t1", "r1", "tag2"); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored counter.
	if _, err := f.db.Conn().Exec(`UPDATE records SET tag_count = 9 WHERE id = 'r1'`); err != nil {
		t.Fatal(err)
	}

	corrections, err := f.rec.ReconcileRecord(ctx, "t1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(corrections) != 1 {
		t.Fatalf("corrections = %+v, want exactly one", corrections)
	}
	c := corrections[0]
	if c.Field != "tag_count" || c.Stored != 9 || c.Actual != 2 {
		t.Errorf("correction = %+v", c)
	}
	if n := f.counter(t, "r1", "tag_count"); n != 2 {
		t.Errorf("tag_count after reconcile = %d", n)
	}

	// A second run finds nothing to fix.
	corrections, err = f.rec.ReconcileRecord(ctx, "t1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(corrections) != 0 {
		t.Errorf("second run corrections = %+v", corrections)
	}
}

func TestReconcileRecordUnknown(t *testing.T) {
	f := setup(t)
	if _, err := f.rec.ReconcileRecord(context.Background(), "t1", "ghost"); err == nil {
		t.Error("expected error for unknown record")
	}
}

func TestReconcileTenantBatches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Five records across three cursor pages (batch size 2), two drifted.
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		f.seedRecord(t, id)
	}
	if _, err := f.db.Conn().Exec(`UPDATE records SET phone_count = 3 WHERE id IN ('r2', 'r5')`); err != nil {
		t.Fatal(err)
	}

	summary, err := f.rec.ReconcileTenant(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Scanned != 5 {
		t.Errorf("scanned = %d", summary.Scanned)
	}
	if len(summary.Corrections) != 2 {
		t.Errorf("corrections = %+v", summary.Corrections)
	}
	if summary.Failed != 0 {
		t.Errorf("failed = %d", summary.Failed)
	}
	if n := f.counter(t, "r2", "phone_count"); n != 0 {
		t.Errorf("r2 phone_count = %d", n)
	}
}

func TestReconcileSince(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	recent := time.Now().UTC().Format(time.RFC3339)
	for _, r := range []struct{ id, updated string }{{"r1", old}, {"r2", recent}} {
		_, err := f.db.Conn().Exec(
			`INSERT INTO records (id, tenant_id, status, tag_count, created_at, updated_at) VALUES (?, 't1', 'new', 7, ?, ?)`,
			r.id, r.updated, r.updated)
		if err != nil {
			t.Fatal(err)
		}
	}

	summary, err := f.rec.ReconcileSince(ctx, "t1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Scanned != 1 {
		t.Errorf("scanned = %d, want only the recently updated record", summary.Scanned)
	}
	if n := f.counter(t, "r1", "tag_count"); n != 7 {
		t.Errorf("old record repaired despite since filter")
	}
	if n := f.counter(t, "r2", "tag_count"); n != 0 {
		t.Errorf("recent record not repaired: %d", n)
	}
}

func TestTenants(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range []struct{ id, tenant string }{{"r1", "t2"}, {"r2", "t1"}, {"r3", "t1"}} {
		_, err := f.db.Conn().Exec(
			`INSERT INTO records (id, tenant_id, status, created_at, updated_at) VALUES (?, ?, 'new', ?, ?)`,
			r.id, r.tenant, now, now)
		if err != nil {
			t.Fatal(err)
		}
	}
	tenants, err := f.rec.Tenants(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tenants) != 2 || tenants[0] != "t1" || tenants[1] != "t2" {
		t.Errorf("tenants = %v", tenants)
	}
}
