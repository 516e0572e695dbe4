package report

import (
	"strings"
	"testing"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

func sampleAggregate() (*model.DailyAggregate, *model.Batch, []*model.Item) {
	old := &model.Item{Title: "running story", PlatformID: "weibo", PlatformName: "Weibo", BestRank: 2, Count: 3, Weight: 0.9}
	fresh := &model.Item{Title: "breaking story", PlatformID: "zhihu", PlatformName: "Zhihu", BestRank: 1, Count: 1, Weight: 0.8, IsNew: true, URL: "https://example.test/s"}

	agg := model.NewDailyAggregate("2026-09-01")
	agg.Add(old)
	agg.Add(fresh)
	dayGroup := &model.WordGroup{Name: "ai", Items: []*model.Item{old, fresh}}
	dayGroup.SetPercentage(2)
	agg.Groups = []*model.WordGroup{dayGroup}

	batchGroup := &model.WordGroup{Name: "ai", Items: []*model.Item{old, fresh}}
	batchGroup.SetPercentage(2)
	batch := &model.Batch{ID: "09:30", ItemCount: 2, NewCount: 1, Groups: []*model.WordGroup{batchGroup}}

	return agg, batch, []*model.Item{fresh}
}

func TestBuildScopes(t *testing.T) {
	agg, batch, newItems := sampleAggregate()
	now := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)

	daily := Build(model.ModeDaily, agg, batch, newItems, nil, now)
	if len(daily.Groups) != 1 || daily.Groups[0].Count != 2 {
		t.Fatalf("daily scope wrong: %+v", daily.Groups)
	}

	current := Build(model.ModeCurrent, agg, batch, newItems, nil, now)
	if len(current.Groups) != 1 || current.Groups[0] != batch.Groups[0] {
		t.Fatalf("current scope should be the batch groups")
	}

	incr := Build(model.ModeIncremental, agg, batch, newItems, nil, now)
	if len(incr.Groups) != 1 {
		t.Fatalf("incremental scope wrong: %+v", incr.Groups)
	}
	g := incr.Groups[0]
	if g.Count != 1 || g.Items[0].Title != "breaking story" {
		t.Fatalf("incremental group should hold only new items: %+v", g)
	}
	if g.Percentage != 100 {
		t.Fatalf("incremental percentage over new set = %v, want 100", g.Percentage)
	}
}

func TestBuildIncrementalNothingNew(t *testing.T) {
	agg, batch, _ := sampleAggregate()
	for _, g := range batch.Groups {
		for _, it := range g.Items {
			it.IsNew = false
		}
	}
	d := Build(model.ModeIncremental, agg, batch, nil, nil, time.Now())
	if len(d.Groups) != 0 {
		t.Fatalf("expected no groups when nothing is new, got %+v", d.Groups)
	}
	r := Renderer{Flavor: FlavorPlain}
	if msgs := r.Messages(d, 4000, logx.Nop()); msgs != nil {
		t.Fatalf("empty report still produced messages: %v", msgs)
	}
}

func TestRendererFlavors(t *testing.T) {
	agg, batch, newItems := sampleAggregate()
	d := Build(model.ModeDaily, agg, batch, newItems, []string{"douyin"}, time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC))

	plain := Renderer{Flavor: FlavorPlain}.Messages(d, 4000, logx.Nop())
	if len(plain) != 1 {
		t.Fatalf("expected one plain message, got %d", len(plain))
	}
	body := plain[0]
	for _, want := range []string{
		"ai (2 items, 100.00%)",
		"[Weibo] running story (best #2, 3x)",
		"*new*",
		"New since last batch (1)",
		"sources failed: douyin",
		"2026-09-01 09:30:00",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("plain message missing %q:\n%s", want, body)
		}
	}

	html := Renderer{Flavor: FlavorHTML}.Messages(d, 4000, logx.Nop())[0]
	if !strings.Contains(html, `<a href="https://example.test/s">breaking story</a>`) {
		t.Fatalf("html message missing link:\n%s", html)
	}

	md := Renderer{Flavor: FlavorMarkdown}.Messages(d, 4000, logx.Nop())[0]
	if !strings.Contains(md, "[breaking story](https://example.test/s)") {
		t.Fatalf("markdown message missing link:\n%s", md)
	}
}

func TestRendererHTMLEscapesTitles(t *testing.T) {
	it := &model.Item{Title: `<b>sneaky & "quoted"</b>`, PlatformID: "x", BestRank: 1, Count: 1}
	g := &model.WordGroup{Name: "all", Items: []*model.Item{it}}
	g.SetPercentage(1)
	d := Data{Mode: model.ModeDaily, Date: "2026-09-01", Groups: []*model.WordGroup{g}, GeneratedAt: time.Now()}

	out := Renderer{Flavor: FlavorHTML}.Messages(d, 4000, logx.Nop())[0]
	if strings.Contains(out, "<b>sneaky") {
		t.Fatalf("html title not escaped:\n%s", out)
	}
	if !strings.Contains(out, "&lt;b&gt;sneaky &amp;") {
		t.Fatalf("escaped title missing:\n%s", out)
	}
}

func TestMessagesChunkingKeepsSectionsWhole(t *testing.T) {
	// Two groups, each rendering to a section well under the ceiling but more
	// than half of it: they must land in separate messages, intact.
	var items []*model.Item
	for i := 0; i < 6; i++ {
		items = append(items, &model.Item{Title: strings.Repeat("t", 40), PlatformID: "x", BestRank: i + 1, Count: 1})
	}
	g1 := &model.WordGroup{Name: "group one", Items: items}
	g1.SetPercentage(len(items))
	g2 := &model.WordGroup{Name: "group two", Items: items}
	g2.SetPercentage(len(items))

	d := Data{Mode: model.ModeDaily, Date: "2026-09-01", Groups: []*model.WordGroup{g1, g2}, GeneratedAt: time.Now()}
	r := Renderer{Flavor: FlavorPlain}

	sections := r.Units(d)
	if len(sections) != 2 {
		t.Fatalf("expected 2 units, got %d", len(sections))
	}
	limit := sections[0].Size() + len(r.Header(d)) + len(r.Footer(d)) + 10

	msgs := r.Messages(d, limit, logx.Nop())
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if len(m) > limit {
			t.Fatalf("message %d exceeds ceiling: %d > %d", i, len(m), limit)
		}
		if !strings.HasPrefix(m, r.Header(d)) || !strings.HasSuffix(m, r.Footer(d)) {
			t.Fatalf("message %d missing header or footer", i)
		}
		if want := "group"; !strings.Contains(m, want) {
			t.Fatalf("message %d lost its section", i)
		}
	}
	if !strings.Contains(msgs[0], "group one") || !strings.Contains(msgs[1], "group two") {
		t.Fatalf("sections split or reordered across messages")
	}
}
