package cache

import (
	"context"
	"testing"
	"time"
)

func testLabelCache() (*LabelCache, *Versions) {
	client := NewMemoryClient()
	v := NewVersions(client, time.Hour, testLogger())
	return NewLabelCache(client, v, time.Hour, testLogger()), v
}

func mapLoader(store map[string]Label, calls *[][]string) LabelLoader {
	return func(_ context.Context, ids []string) (map[string]Label, error) {
		*calls = append(*calls, ids)
		out := map[string]Label{}
		for _, id := range ids {
			if l, ok := store[id]; ok {
				out[id] = l
			}
		}
		return out, nil
	}
}

func TestLabelGetMany(t *testing.T) {
	lc, v := testLabelCache()
	ctx := context.Background()

	store := map[string]Label{
		"a": {ID: "a", Name: "Vacant", Color: "#f00"},
		"b": {ID: "b", Name: "Probate", Color: "#0f0"},
		"c": {ID: "c", Name: "Absentee"},
	}
	var calls [][]string
	loader := mapLoader(store, &calls)

	got, err := lc.GetMany(ctx, "t1", "tags", []string{"a", "b"}, loader)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["a"].Name != "Vacant" {
		t.Fatalf("got %v", got)
	}
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Fatalf("loader calls = %v", calls)
	}

	// Second lookup adds one id: only the miss goes to the loader.
	got, err = lc.GetMany(ctx, "t1", "tags", []string{"a", "b", "c"}, loader)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
	if len(calls) != 2 {
		t.Fatalf("loader calls = %d", len(calls))
	}
	if len(calls[1]) != 1 || calls[1][0] != "c" {
		t.Errorf("second load should fetch only c, got %v", calls[1])
	}

	// A label-version bump invalidates cached labels.
	v.BumpLabelVersion(ctx, "t1", "tags")
	store["a"] = Label{ID: "a", Name: "Renamed", Color: "#f00"}
	got, err = lc.GetMany(ctx, "t1", "tags", []string{"a"}, loader)
	if err != nil {
		t.Fatal(err)
	}
	if got["a"].Name != "Renamed" {
		t.Errorf("stale label after version bump: %v", got["a"])
	}

	// A cache-version bump does not.
	v.BumpCacheVersion(ctx, "t1", "tags")
	before := len(calls)
	if _, err := lc.GetMany(ctx, "t1", "tags", []string{"a"}, loader); err != nil {
		t.Fatal(err)
	}
	if len(calls) != before {
		t.Error("cacheVersion bump must not invalidate labels")
	}
}

func TestLabelGetManyEmpty(t *testing.T) {
	lc, _ := testLabelCache()
	got, err := lc.GetMany(context.Background(), "t1", "tags", nil, func(context.Context, []string) (map[string]Label, error) {
		t.Fatal("loader must not run for an empty id list")
		return nil, nil
	})
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestLabelUnknownIDNotCached(t *testing.T) {
	lc, _ := testLabelCache()
	ctx := context.Background()

	var calls [][]string
	loader := mapLoader(map[string]Label{}, &calls)

	got, err := lc.GetMany(ctx, "t1", "tags", []string{"ghost"}, loader)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %v", got)
	}
	// The unknown id misses again on the next call rather than caching an
	// empty label.
	if _, err := lc.GetMany(ctx, "t1", "tags", []string{"ghost"}, loader); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Errorf("loader calls = %d", len(calls))
	}
}

func TestLabelPrefetch(t *testing.T) {
	lc, _ := testLabelCache()
	ctx := context.Background()

	all := []Label{{ID: "a", Name: "Vacant"}, {ID: "b", Name: "Probate"}}
	err := lc.Prefetch(ctx, "t1", "tags", func(context.Context) ([]Label, error) {
		return all, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := lc.GetMany(ctx, "t1", "tags", []string{"a", "b"}, func(context.Context, []string) (map[string]Label, error) {
		t.Fatal("prefetched labels must hit")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %v", got)
	}
}
