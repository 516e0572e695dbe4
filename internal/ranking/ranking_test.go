package ranking

import (
	"testing"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/keyword"
	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

func newEngine(t *testing.T, opt Options, rules []keyword.Rule) *Engine {
	t.Helper()
	if opt.Weights == (Weights{}) {
		opt.Weights = DefaultWeights()
	}
	e, err := New(opt, rules, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func obs(title, platform string, rank int) model.Observation {
	return model.Observation{Title: title, PlatformID: platform, PlatformName: platform, Rank: rank}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights rejected: %v", err)
	}
	bad := Weights{Rank: 0.5, Frequency: 0.3, Hotness: 0.3}
	if err := bad.Validate(); err == nil {
		t.Fatalf("weights summing to 1.1 accepted")
	}
	if _, err := New(Options{Weights: bad}, nil, logx.Nop()); err == nil {
		t.Fatalf("New accepted invalid weights")
	}
}

func TestMergeCreatesAndFlagsNewItems(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	res := e.Merge(agg, "09:00", now, []model.Observation{
		obs("story a", "weibo", 1),
		obs("story b", "weibo", 2),
	})

	if len(res.NewItems) != 2 || res.Batch.NewCount != 2 {
		t.Fatalf("expected 2 new items, got %d (batch %d)", len(res.NewItems), res.Batch.NewCount)
	}
	for _, it := range agg.Items {
		if !it.IsNew {
			t.Fatalf("item %q not flagged new in its first batch", it.Title)
		}
	}
	if agg.TotalBatches != 1 || agg.TotalItems != 2 {
		t.Fatalf("aggregate counters wrong: %+v", agg)
	}
}

func TestMergeSecondBatchClearsNewFlag(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	e.Merge(agg, "09:00", base, []model.Observation{obs("story a", "weibo", 1)})
	res := e.Merge(agg, "09:30", base.Add(30*time.Minute), []model.Observation{
		obs("story a", "weibo", 3),
		obs("story c", "weibo", 1),
	})

	if len(res.NewItems) != 1 || res.NewItems[0].Title != "story c" {
		t.Fatalf("expected only story c new, got %v", res.NewItems)
	}
	it, ok := agg.Lookup(model.ItemKey{Title: "story a", PlatformID: "weibo"})
	if !ok {
		t.Fatalf("story a lost its identity across batches")
	}
	if it.IsNew {
		t.Fatalf("story a still flagged new in its second batch")
	}
	if it.Count != 2 || len(it.RankHistory) != 2 {
		t.Fatalf("rank history not appended: count=%d history=%v", it.Count, it.RankHistory)
	}
	if it.BestRank != 1 {
		t.Fatalf("best rank = %d, want 1", it.BestRank)
	}
}

func TestMergeDuplicateWithinBatch(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	res := e.Merge(agg, "09:00", now, []model.Observation{
		obs("story a", "weibo", 2),
		obs("story a", "weibo", 5),
	})

	if len(agg.Items) != 1 {
		t.Fatalf("duplicate key produced %d items", len(agg.Items))
	}
	it := agg.Items[0]
	if it.Count != 2 || it.BestRank != 2 || it.FirstRank != 2 {
		t.Fatalf("merge stats wrong: %+v", it)
	}
	if !it.IsNew {
		t.Fatalf("within-batch re-observation cleared the new flag")
	}
	if res.Batch.ItemCount != 1 {
		t.Fatalf("batch item count = %d, want 1 distinct", res.Batch.ItemCount)
	}
	if agg.TotalItems != 2 {
		t.Fatalf("occurrences = %d, want 2", agg.TotalItems)
	}
}

func TestReMergeSameContentGrowsCounts(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	batch := []model.Observation{obs("story a", "weibo", 1), obs("story b", "weibo", 2)}

	e.Merge(agg, "09:00", base, batch)
	e.Merge(agg, "09:30", base.Add(30*time.Minute), batch)

	if agg.TotalBatches != 2 || len(agg.Batches) != 2 {
		t.Fatalf("batches = %d/%d, want 2", agg.TotalBatches, len(agg.Batches))
	}
	if agg.TotalItems != 4 {
		t.Fatalf("occurrences = %d, want 4 (no cross-batch dedup)", agg.TotalItems)
	}
	for _, it := range agg.Items {
		if it.Count != 2 {
			t.Fatalf("item %q count = %d, want 2", it.Title, it.Count)
		}
	}
	if len(agg.Items) != 2 {
		t.Fatalf("identities duplicated: %d items", len(agg.Items))
	}
}

func TestMergeSameMinuteLabelStaysDistinct(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	base := time.Date(2026, 9, 1, 9, 0, 10, 0, time.UTC)

	first := e.Merge(agg, "09:00", base, []model.Observation{obs("story a", "weibo", 1)})
	second := e.Merge(agg, "09:00", base.Add(20*time.Second), []model.Observation{obs("story a", "weibo", 1)})

	if first.Batch.ID != "09:00" || second.Batch.ID != "09:00#2" {
		t.Fatalf("batch ids = %q, %q", first.Batch.ID, second.Batch.ID)
	}
	it, ok := agg.Lookup(model.ItemKey{Title: "story a", PlatformID: "weibo"})
	if !ok {
		t.Fatalf("item missing")
	}
	if it.IsNew {
		t.Fatalf("new flag survived into the second batch of the minute")
	}
	if len(second.NewItems) != 0 {
		t.Fatalf("second merge reported %d new items", len(second.NewItems))
	}
}

func TestMergeSkipsMalformed(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	res := e.Merge(agg, "09:00", time.Now(), []model.Observation{
		obs("", "weibo", 1),
		obs("ok", "weibo", 0),
		obs("kept", "weibo", 1),
	})
	if res.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", res.Skipped)
	}
	if len(agg.Items) != 1 || agg.Items[0].Title != "kept" {
		t.Fatalf("malformed observations leaked into the aggregate: %v", agg.Items)
	}
}

func TestMergeSamePlatformDifferentTitleStaysSeparate(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	e.Merge(agg, "09:00", time.Now(), []model.Observation{
		obs("story a", "weibo", 1),
		obs("story a", "zhihu", 1),
	})
	if len(agg.Items) != 2 {
		t.Fatalf("identity should be (title, platform); got %d items", len(agg.Items))
	}
}

func TestNewWindowReappearance(t *testing.T) {
	e := newEngine(t, Options{NewWindow: time.Hour}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	e.Merge(agg, "08:00", base, []model.Observation{obs("story a", "weibo", 1)})

	// Back after 30 minutes: still the same running story.
	res := e.Merge(agg, "08:30", base.Add(30*time.Minute), []model.Observation{obs("story a", "weibo", 2)})
	if len(res.NewItems) != 0 {
		t.Fatalf("reappearance inside the window flagged new")
	}

	// Gone for two hours: counts as newly appeared again.
	res = e.Merge(agg, "10:30", base.Add(150*time.Minute), []model.Observation{obs("story a", "weibo", 4)})
	if len(res.NewItems) != 1 {
		t.Fatalf("reappearance beyond the window not flagged new")
	}
	it := res.NewItems[0]
	if !it.IsNew || it.FirstBatch != "10:30" {
		t.Fatalf("reappeared item state wrong: %+v", it)
	}
	if it.Count != 3 {
		t.Fatalf("reappearance must not reset history: count=%d", it.Count)
	}
}

func TestRankScoreCurves(t *testing.T) {
	e := newEngine(t, Options{RankCeiling: 10, MaxRank: 50}, nil)
	if got := e.rankScore(1); got != 1 {
		t.Fatalf("rankScore(1) = %v", got)
	}
	if got := e.rankScore(10); got != 1 {
		t.Fatalf("rankScore(ceiling) = %v", got)
	}
	if got := e.rankScore(30); got != 0.5 {
		t.Fatalf("linear rankScore(30) = %v, want 0.5", got)
	}
	if got := e.rankScore(50); got != 0 {
		t.Fatalf("linear rankScore(max) = %v, want 0", got)
	}
	if got := e.rankScore(100); got != 0 {
		t.Fatalf("linear rankScore beyond max = %v, want 0", got)
	}

	le := newEngine(t, Options{RankCeiling: 10, Curve: CurveLog}, nil)
	prev := 1.0
	for _, r := range []int{11, 20, 40, 80} {
		s := le.rankScore(r)
		if s <= 0 || s >= prev {
			t.Fatalf("log curve not strictly decaying at rank %d: %v (prev %v)", r, s, prev)
		}
		prev = s
	}
}

func TestScoreBoundsAndMonotonicity(t *testing.T) {
	e := newEngine(t, Options{DefaultHotnessScale: 1000}, nil)
	better := &model.Item{BestRank: 1, Count: 3, Hotness: 900, PlatformID: "x"}
	worse := &model.Item{BestRank: 40, Count: 1, Hotness: 0, PlatformID: "x"}

	wb := e.Score(better, 3)
	ww := e.Score(worse, 3)
	if wb <= ww {
		t.Fatalf("dominating item scored lower: %v <= %v", wb, ww)
	}
	for _, w := range []float64{wb, ww} {
		if w < 0 || w > 1 {
			t.Fatalf("weight out of [0,1]: %v", w)
		}
	}

	// Frequency caps at 1: counts above the batch total don't overflow.
	capped := &model.Item{BestRank: 1, Count: 10, PlatformID: "x"}
	if w := e.Score(capped, 2); w > 1 {
		t.Fatalf("capped weight = %v", w)
	}
}

func TestWeightsRecomputedForUntouchedItems(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	e.Merge(agg, "09:00", base, []model.Observation{obs("story a", "weibo", 1)})
	it, _ := agg.Lookup(model.ItemKey{Title: "story a", PlatformID: "weibo"})
	w1 := it.Weight

	// Second batch without story a: its frequency denominator doubled.
	e.Merge(agg, "09:30", base.Add(30*time.Minute), []model.Observation{obs("story b", "weibo", 1)})
	if it.Weight >= w1 {
		t.Fatalf("stale weight after denominator moved: %v -> %v", w1, it.Weight)
	}
}

func TestGroupItemsCatchAllAndSorting(t *testing.T) {
	e := newEngine(t, Options{}, nil)
	agg := model.NewDailyAggregate("2026-09-01")
	res := e.Merge(agg, "09:00", time.Now(), []model.Observation{
		obs("story a", "weibo", 20),
		obs("story b", "weibo", 1),
	})

	if len(res.Batch.Groups) != 1 || res.Batch.Groups[0].Name != CatchAllGroup {
		t.Fatalf("expected single catch-all group, got %v", res.Batch.Groups)
	}
	g := res.Batch.Groups[0]
	if g.Count != 2 || g.Percentage != 100 {
		t.Fatalf("catch-all tally wrong: %+v", g)
	}
	if g.Items[0].Title != "story b" {
		t.Fatalf("items not sorted by weight: %q first", g.Items[0].Title)
	}
}

func TestGroupItemsMultiMembershipAndOrdering(t *testing.T) {
	rules, _ := keyword.ParseRules("ai\n\nchip\n")
	e := newEngine(t, Options{}, rules)
	agg := model.NewDailyAggregate("2026-09-01")
	res := e.Merge(agg, "09:00", time.Now(), []model.Observation{
		obs("ai chip launch", "weibo", 1),
		obs("ai assistant update", "weibo", 2),
		obs("celebrity gossip", "weibo", 3),
	})

	groups := res.Batch.Groups
	if len(groups) != 2 {
		t.Fatalf("expected 2 non-empty groups, got %d", len(groups))
	}
	if groups[0].Name != "ai" || groups[0].Count != 2 {
		t.Fatalf("groups not ordered by count: %+v", groups[0])
	}
	if groups[1].Name != "chip" || groups[1].Count != 1 {
		t.Fatalf("chip group wrong: %+v", groups[1])
	}
	// Unmatched item contributes to the percentage base only.
	if groups[0].Percentage != 66.67 {
		t.Fatalf("percentage = %v, want 66.67", groups[0].Percentage)
	}
}
