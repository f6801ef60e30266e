package scraper

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/awardscan/scrapecore/cache"
	"github.com/awardscan/scrapecore/models"
)

// stubOrchestrator builds an Orchestrator whose plugin chain is replaced
// by lightweight fakes, so no browser is ever launched.
func stubOrchestrator(plugins []Plugin) *Orchestrator {
	return &Orchestrator{
		cache:   cache.New("", time.Minute),
		plugins: plugins,
		rnd:     rand.New(rand.NewSource(1)),
	}
}

func namedPlugin(name string, loaded *[]string, closed *[]string, fail bool) Plugin {
	return Plugin{
		Name: name,
		Init: func(ctx context.Context, s *Session) (func(), error) {
			if fail {
				return nil, errors.New(name + " refused to load")
			}
			*loaded = append(*loaded, name)
			return func() { *closed = append(*closed, name) }, nil
		},
	}
}

func TestRun_RetriesExactlyMaxAttempts(t *testing.T) {
	var loaded, closed []string
	o := stubOrchestrator([]Plugin{
		namedPlugin("a", &loaded, &closed, false),
	})

	res := o.Run(context.Background(),
		func(ctx context.Context, s *Session) (any, error) {
			return nil, errors.New("routine always fails")
		},
		models.DebugOptions{MaxAttempts: 3},
		models.ScraperMetadata{Name: "test", Timeout: time.Second},
		"")

	if res.Result != nil {
		t.Errorf("result = %v, want nil after exhausted retries", res.Result)
	}
	if len(loaded) != 3 || len(closed) != 3 {
		t.Errorf("launch/teardown cycles = %d/%d, want 3/3", len(loaded), len(closed))
	}
	if len(res.LogLines) == 0 {
		t.Error("aggregated log is empty")
	}
}

func TestRun_SuccessStopsRetrying(t *testing.T) {
	var loaded, closed []string
	o := stubOrchestrator([]Plugin{
		namedPlugin("a", &loaded, &closed, false),
	})

	calls := 0
	res := o.Run(context.Background(),
		func(ctx context.Context, s *Session) (any, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("first attempt flakes")
			}
			return "payload", nil
		},
		models.DebugOptions{},
		models.ScraperMetadata{Name: "test", Timeout: time.Second},
		"")

	if res.Result != "payload" {
		t.Errorf("result = %v, want payload", res.Result)
	}
	if calls != 2 {
		t.Errorf("routine ran %d times, want 2", calls)
	}
	if len(closed) != 2 {
		t.Errorf("teardown ran %d times, want once per attempt", len(closed))
	}
}

func TestAttempt_TeardownReverseOrder(t *testing.T) {
	var loaded, closed []string
	o := stubOrchestrator([]Plugin{
		namedPlugin("a", &loaded, &closed, false),
		namedPlugin("b", &loaded, &closed, false),
		namedPlugin("c", &loaded, &closed, false),
	})

	res := o.Run(context.Background(),
		func(ctx context.Context, s *Session) (any, error) { return "ok", nil },
		models.DebugOptions{MaxAttempts: 1},
		models.ScraperMetadata{Name: "t", Timeout: time.Second},
		"")

	if res.Result != "ok" {
		t.Fatalf("result = %v", res.Result)
	}
	want := []string{"c", "b", "a"}
	if len(closed) != 3 || closed[0] != want[0] || closed[1] != want[1] || closed[2] != want[2] {
		t.Errorf("teardown order = %v, want %v", closed, want)
	}
}

func TestAttempt_PluginFailureTearsDownLoadedOnly(t *testing.T) {
	var loaded, closed []string
	o := stubOrchestrator([]Plugin{
		namedPlugin("a", &loaded, &closed, false),
		namedPlugin("b", &loaded, &closed, true),
		namedPlugin("c", &loaded, &closed, false),
	})

	routineRan := false
	res := o.Run(context.Background(),
		func(ctx context.Context, s *Session) (any, error) {
			routineRan = true
			return "never", nil
		},
		models.DebugOptions{MaxAttempts: 1},
		models.ScraperMetadata{Name: "t", Timeout: time.Second},
		"")

	if res.Result != nil {
		t.Errorf("result = %v, want nil", res.Result)
	}
	if routineRan {
		t.Error("routine ran despite plugin load failure")
	}
	if len(loaded) != 1 || loaded[0] != "a" {
		t.Errorf("loaded = %v, want [a]", loaded)
	}
	if len(closed) != 1 || closed[0] != "a" {
		t.Errorf("closed = %v, want only [a]", closed)
	}
}

func TestRun_CacheHitSkipsRoutine(t *testing.T) {
	var loaded, closed []string
	o := stubOrchestrator([]Plugin{namedPlugin("a", &loaded, &closed, false)})
	o.cache = cache.New(t.TempDir(), time.Minute)

	opts := models.DebugOptions{UseCache: true, WriteCache: true}
	meta := models.ScraperMetadata{Name: "t", Timeout: time.Second}

	calls := 0
	routine := func(ctx context.Context, s *Session) (any, error) {
		calls++
		return map[string]string{"fare": "J"}, nil
	}

	first := o.Run(context.Background(), routine, opts, meta, "fare-key")
	second := o.Run(context.Background(), routine, opts, meta, "fare-key")

	if first.Result == nil || second.Result == nil {
		t.Fatal("run results missing")
	}
	if calls != 1 {
		t.Errorf("routine ran %d times, want 1 (second run should hit cache)", calls)
	}
}

func TestRun_NeverPanicsOrPropagates(t *testing.T) {
	o := stubOrchestrator([]Plugin{{
		Name: "exploding",
		Init: func(ctx context.Context, s *Session) (func(), error) {
			return nil, errors.New("boom")
		},
	}})

	res := o.Run(context.Background(),
		func(ctx context.Context, s *Session) (any, error) { return nil, nil },
		models.DebugOptions{},
		models.ScraperMetadata{Name: "t", Timeout: time.Second},
		"")

	if res == nil {
		t.Fatal("Run returned nil RunResult")
	}
	if res.Result != nil {
		t.Errorf("result = %v", res.Result)
	}
}
