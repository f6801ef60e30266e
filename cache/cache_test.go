package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/awardscan/scrapecore/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *time.Time) {
	t.Helper()
	c := New(t.TempDir(), ttl)
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestSetGet_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	if err := c.Set("route-JFK-LHR", map[string]int{"price": 420}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, ok, err := c.Get("route-JFK-LHR")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal cached value: %v", err)
	}
	if got["price"] != 420 {
		t.Errorf("cached value = %v, want price 420", got)
	}
}

func TestGet_ExpiredEntryIsEvicted(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	if err := c.Set("stale", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	*clock = clock.Add(2 * time.Minute)

	_, ok, err := c.Get("stale")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expired entry reported as hit")
	}
	if _, statErr := os.Stat(filepath.Join(c.root, "stale.json")); !os.IsNotExist(statErr) {
		t.Error("expired entry file still exists after read")
	}
}

func TestGet_MissingFileIsCleanMiss(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	_, ok, err := c.Get("never-written")
	if err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v, want clean miss", ok, err)
	}
}

func TestKeyValidation(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	for _, key := range []string{"../escape", "a/b", "dot.dot", ""} {
		if err := c.Set(key, "v", 0); err == nil {
			t.Errorf("Set(%q) accepted an invalid key", key)
			continue
		}
		var se *models.ScrapeError
		if err := c.Set(key, "v", 0); !errors.As(err, &se) || se.Code != models.ErrCodeCache {
			t.Errorf("Set(%q) error is not a CACHE_ERROR", key)
		}
	}
}

func TestRunAndCache_HitSkipsFn(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	calls := 0
	fn := func(context.Context) (any, error) {
		calls++
		return "computed", nil
	}

	v1, err := c.RunAndCache(context.Background(), "k", 0, true, true, fn)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if v1 != "computed" || calls != 1 {
		t.Fatalf("first run = %v (calls %d)", v1, calls)
	}

	v2, err := c.RunAndCache(context.Background(), "k", 0, true, true, fn)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn invoked on a warm cache (calls %d)", calls)
	}
	raw, isRaw := v2.(json.RawMessage)
	if !isRaw {
		t.Fatalf("cache hit returned %T, want json.RawMessage", v2)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s != "computed" {
		t.Errorf("cached raw = %s", raw)
	}
}

func TestRunAndCache_DisabledAlwaysRuns(t *testing.T) {
	c := New("", time.Minute) // no root

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := c.RunAndCache(context.Background(), "k", 0, true, true, func(context.Context) (any, error) {
			calls++
			return calls, nil
		})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if calls != 2 {
		t.Errorf("disabled cache short-circuited fn (calls %d)", calls)
	}
}

func TestRunAndCache_ErrorNotCached(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	wantErr := errors.New("upstream down")
	_, err := c.RunAndCache(context.Background(), "k", 0, true, true, func(context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error not propagated: %v", err)
	}
	if _, ok, _ := c.Get("k"); ok {
		t.Error("failed computation left a cache entry behind")
	}
}

func TestSweep_RemovesEverything(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(k, k, 0); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}
	if err := c.Sweep(); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok, _ := c.Get(k); ok {
			t.Errorf("entry %q survived sweep", k)
		}
	}
}

func TestKey_IsFilesystemSafe(t *testing.T) {
	k := Key("https://example.com/path?q=1", "markdown")
	if !keyPattern.MatchString(k) {
		t.Errorf("Key output %q does not satisfy the key pattern", k)
	}
	if k == Key("https://example.com/path?q=2", "markdown") {
		t.Error("distinct inputs collided")
	}
}
