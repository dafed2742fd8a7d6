package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func testWidgetCache() (*WidgetCache, *Versions) {
	client := NewMemoryClient()
	v := NewVersions(client, time.Hour, testLogger())
	return NewWidgetCache(client, v, time.Minute, testLogger()), v
}

func TestWidgetFetch(t *testing.T) {
	wc, v := testWidgetCache()
	ctx := context.Background()
	deps := []string{"records"}

	calls := 0
	compute := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"type":"single","value":3}`), nil
	}

	res, err := wc.Fetch(ctx, "t1", deps, "ph", "qh", compute)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("first fetch should be a miss")
	}
	if calls != 1 {
		t.Fatalf("compute calls = %d", calls)
	}
	wc.Flush()

	res, err = wc.Fetch(ctx, "t1", deps, "ph", "qh", compute)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Error("second fetch should hit")
	}
	if res.CachedAt.IsZero() {
		t.Error("hit should carry cachedAt")
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, cache hit must not recompute", calls)
	}
	if string(res.Data) != `{"type":"single","value":3}` {
		t.Errorf("data = %s", res.Data)
	}

	// Bumping a dependency version retires the entry without deletion.
	v.BumpCacheVersion(ctx, "t1", "records")
	res, err = wc.Fetch(ctx, "t1", deps, "ph", "qh", compute)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("fetch after version bump should miss")
	}
	if calls != 2 {
		t.Errorf("compute calls = %d", calls)
	}
}

func TestWidgetFetchDistinguishesHashes(t *testing.T) {
	wc, _ := testWidgetCache()
	ctx := context.Background()
	deps := []string{"records"}

	payload := func(s string) func(context.Context) (json.RawMessage, error) {
		return func(context.Context) (json.RawMessage, error) {
			return json.RawMessage(`"` + s + `"`), nil
		}
	}

	if _, err := wc.Fetch(ctx, "t1", deps, "ph", "q1", payload("a")); err != nil {
		t.Fatal(err)
	}
	wc.Flush()

	res, err := wc.Fetch(ctx, "t1", deps, "ph", "q2", payload("b"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("different query hash must not hit")
	}

	res, err = wc.Fetch(ctx, "t1", deps, "other-perm", "q1", payload("c"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("different permission hash must not hit")
	}
}

func TestWidgetComputeErrorNotCached(t *testing.T) {
	wc, _ := testWidgetCache()
	ctx := context.Background()

	boom := func(context.Context) (json.RawMessage, error) {
		return nil, context.DeadlineExceeded
	}
	if _, err := wc.Fetch(ctx, "t1", []string{"records"}, "ph", "qh", boom); err == nil {
		t.Fatal("compute error should propagate")
	}
	wc.Flush()

	calls := 0
	ok := func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`1`), nil
	}
	res, err := wc.Fetch(ctx, "t1", []string{"records"}, "ph", "qh", ok)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached || calls != 1 {
		t.Error("failed compute must not leave a cache entry")
	}
}

func TestPayloadCompression(t *testing.T) {
	big := []byte(`{"data":"` + strings.Repeat("abcdefgh", 1024) + `"}`)
	stored := encodePayload(big)
	if !bytes.HasPrefix(stored, gzPrefix) {
		t.Fatal("large payload should be compressed")
	}
	if len(stored) >= len(big) {
		t.Errorf("compressed %d >= raw %d", len(stored), len(big))
	}
	back, err := decodePayload(stored)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, big) {
		t.Error("roundtrip mismatch")
	}

	small := []byte(`{"v":1}`)
	if stored := encodePayload(small); !bytes.Equal(stored, small) {
		t.Error("small payload should be stored raw")
	}
	back, err = decodePayload(small)
	if err != nil || !bytes.Equal(back, small) {
		t.Errorf("raw roundtrip mismatch: %v", err)
	}
}

func TestWidgetLargePayloadRoundtrip(t *testing.T) {
	wc, _ := testWidgetCache()
	ctx := context.Background()

	big, _ := json.Marshal(map[string]string{"blob": strings.Repeat("x", 8192)})
	compute := func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(big), nil
	}

	if _, err := wc.Fetch(ctx, "t1", []string{"records"}, "ph", "qh", compute); err != nil {
		t.Fatal(err)
	}
	wc.Flush()

	res, err := wc.Fetch(ctx, "t1", []string{"records"}, "ph", "qh", compute)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(res.Data, big) {
		t.Error("compressed entry did not round-trip")
	}
}
