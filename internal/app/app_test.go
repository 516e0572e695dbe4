package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/internal/source"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

type fakeSource struct {
	id  string
	obs []model.Observation
	err error
}

func (f *fakeSource) ID() string   { return f.id }
func (f *fakeSource) Name() string { return f.id }
func (f *fakeSource) Fetch(context.Context) ([]model.Observation, error) {
	return f.obs, f.err
}

func TestFetchAllCollectsFailures(t *testing.T) {
	sources := []source.Source{
		&fakeSource{id: "b", err: errors.New("down")},
		&fakeSource{id: "a", obs: []model.Observation{{Title: "t", PlatformID: "a", Rank: 1}}},
		&fakeSource{id: "c", err: errors.New("down too")},
	}
	obs, failed := fetchAll(context.Background(), sources)
	if len(obs) != 1 || obs[0].Title != "t" {
		t.Fatalf("observations lost: %v", obs)
	}
	if len(failed) != 2 || failed[0] != "b" || failed[1] != "c" {
		t.Fatalf("failed sources = %v, want [b c]", failed)
	}
}

func newTestApp(t *testing.T, apiURL string) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	kwPath := filepath.Join(dir, "keywords.txt")
	if err := os.WriteFile(kwPath, []byte("story\n"), 0o644); err != nil {
		t.Fatalf("write keywords: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
storage:
  driver: file
  path: %s
sources:
  newsnow:
    api_url: %s
    platforms:
      - id: weibo
        name: Weibo
push:
  enabled: false
keywords_path: %s
`, dataDir, apiURL, kwPath)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr := config.NewManager(cfgPath)
	a, err := New(mgr, nil, logx.Nop(), "daily")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, dataDir
}

func TestRunCyclePersistsAggregate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success", "items": [{"title": "big story"}, {"title": "other news"}]}`))
	}))
	defer srv.Close()

	a, dataDir := newTestApp(t, srv.URL)
	if err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	date := model.DateKey(time.Now())
	if _, err := os.Stat(filepath.Join(dataDir, "days", date+".json")); err != nil {
		t.Fatalf("day aggregate not persisted: %v", err)
	}

	c := a.snapshot()
	agg, err := c.store.LoadAggregate(context.Background(), date)
	if err != nil || agg == nil {
		t.Fatalf("load aggregate: %v %v", agg, err)
	}
	if len(agg.Items) != 2 || agg.TotalBatches != 1 {
		t.Fatalf("aggregate state wrong: items=%d batches=%d", len(agg.Items), agg.TotalBatches)
	}
	// "story" keyword matches one of the two titles.
	if len(agg.Groups) != 1 || agg.Groups[0].Count != 1 {
		t.Fatalf("groups wrong: %+v", agg.Groups)
	}
}

func TestConcurrentCyclesDoNotLoseBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success", "items": [{"title": "big story"}]}`))
	}))
	defer srv.Close()

	a, _ := newTestApp(t, srv.URL)

	const cycles = 4
	errs := make(chan error, cycles)
	for i := 0; i < cycles; i++ {
		go func() { errs <- a.RunCycle(context.Background()) }()
	}
	for i := 0; i < cycles; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	c := a.snapshot()
	agg, err := c.store.LoadAggregate(context.Background(), model.DateKey(time.Now()))
	if err != nil || agg == nil {
		t.Fatalf("load aggregate: %v %v", agg, err)
	}
	// Overlapping cycles used to load/merge/save the same day key
	// concurrently, so the last save clobbered the others.
	if agg.TotalBatches != cycles || len(agg.Batches) != cycles {
		t.Fatalf("batches = %d/%d, want %d", agg.TotalBatches, len(agg.Batches), cycles)
	}
	seen := map[string]bool{}
	for _, b := range agg.Batches {
		if seen[b.ID] {
			t.Fatalf("duplicate batch id %q", b.ID)
		}
		seen[b.ID] = true
	}
	it, ok := agg.Lookup(model.ItemKey{Title: "big story", PlatformID: "weibo"})
	if !ok || it.Count != cycles {
		t.Fatalf("item count = %v, want %d occurrences", it, cycles)
	}
}

func TestRunCycleAllSourcesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, _ := newTestApp(t, srv.URL)
	if err := a.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected error when every source fails")
	}
}

func TestNewRejectsBadMode(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	os.WriteFile(cfgPath, []byte("keywords_path: ./kw.txt\n"), 0o644)
	if _, err := New(config.NewManager(cfgPath), nil, logx.Nop(), "hourly"); err == nil {
		t.Fatalf("invalid mode override accepted")
	}
}
