// Package model defines the data types shared by the aggregation engine:
// raw observations, per-day items, keyword-group matches, batches and the
// per-day aggregate root, plus push records.
package model

import (
	"math"
	"time"
)

// DateKey formats t as the day key used to scope aggregates and push records.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }

// BatchLabel formats t as the human batch id (time of day).
func BatchLabel(t time.Time) string { return t.Format("15:04") }

// Observation is one raw entry observed on a ranked-list source.
// It is the engine's input; everything else here is derived from it.
type Observation struct {
	Title        string    `json:"title"`
	URL          string    `json:"url,omitempty"`
	MobileURL    string    `json:"mobile_url,omitempty"`
	PlatformID   string    `json:"platform_id"`
	PlatformName string    `json:"platform_name,omitempty"`
	Rank         int       `json:"rank"`
	Hotness      float64   `json:"hotness,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// ItemKey identifies the same content across batches. URL is metadata, not
// identity: the same story appears under different URLs across mirrors.
type ItemKey struct {
	Title      string
	PlatformID string
}

// Item is one piece of content merged across all batches of a single day.
type Item struct {
	Title        string    `json:"title"`
	URL          string    `json:"url,omitempty"`
	MobileURL    string    `json:"mobile_url,omitempty"`
	PlatformID   string    `json:"platform_id"`
	PlatformName string    `json:"platform_name,omitempty"`
	FirstRank    int       `json:"first_rank"`
	BestRank     int       `json:"best_rank"`
	RankHistory  []int     `json:"rank_history"`
	Count        int       `json:"count"`
	Hotness      float64   `json:"hotness,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	FirstBatch   string    `json:"first_batch"`
	Weight       float64   `json:"weight"`
	IsNew        bool      `json:"is_new"`
}

func (it *Item) Key() ItemKey { return ItemKey{Title: it.Title, PlatformID: it.PlatformID} }

// Observe records one more sighting of the item, maintaining the
// Count == len(RankHistory) and BestRank == min(RankHistory) invariants.
func (it *Item) Observe(rank int, hotness float64, ts time.Time) {
	it.RankHistory = append(it.RankHistory, rank)
	it.Count = len(it.RankHistory)
	if it.BestRank == 0 || rank < it.BestRank {
		it.BestRank = rank
	}
	if hotness > it.Hotness {
		it.Hotness = hotness
	}
	if it.FirstSeen.IsZero() || ts.Before(it.FirstSeen) {
		it.FirstSeen = ts
	}
	if ts.After(it.LastSeen) {
		it.LastSeen = ts
	}
}

// WordGroup is one keyword group's matches within one scope
// (a single batch, or the full day so far).
type WordGroup struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Items      []*Item `json:"items"`
}

// SetPercentage recomputes the group's share of the scope's item total,
// expressed 0-100 with two-decimal precision.
func (g *WordGroup) SetPercentage(totalItems int) {
	g.Count = len(g.Items)
	if totalItems <= 0 {
		g.Percentage = 0
		return
	}
	g.Percentage = math.Round(float64(g.Count)/float64(totalItems)*100*100) / 100
}

// Batch is one polling cycle's contribution to the day.
type Batch struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	ItemCount int          `json:"item_count"`
	NewCount  int          `json:"new_count"`
	Groups    []*WordGroup `json:"groups"`
}

// DailyAggregate is the persisted per-day root. Batches are append-only;
// Items is the merged cross-batch set in first-seen order; Groups are the
// keyword matches computed against the full merged set.
type DailyAggregate struct {
	Date         string       `json:"date"`
	TotalBatches int          `json:"total_batches"`
	TotalItems   int          `json:"total_items"`
	LastUpdate   time.Time    `json:"last_update"`
	Items        []*Item      `json:"items"`
	Batches      []*Batch     `json:"batches"`
	Groups       []*WordGroup `json:"groups"`

	index map[ItemKey]*Item
}

func NewDailyAggregate(date string) *DailyAggregate {
	return &DailyAggregate{Date: date, index: map[ItemKey]*Item{}}
}

// Lookup resolves an identity key against the merged item set.
func (a *DailyAggregate) Lookup(key ItemKey) (*Item, bool) {
	if a.index == nil {
		a.rebuildIndex()
	}
	it, ok := a.index[key]
	return it, ok
}

// Add appends a freshly created item to the merged set.
// The caller is responsible for not adding duplicate keys.
func (a *DailyAggregate) Add(it *Item) {
	if a.index == nil {
		a.rebuildIndex()
	}
	a.Items = append(a.Items, it)
	a.index[it.Key()] = it
}

// rebuildIndex restores the identity index after deserialization.
func (a *DailyAggregate) rebuildIndex() {
	a.index = make(map[ItemKey]*Item, len(a.Items))
	for _, it := range a.Items {
		a.index[it.Key()] = it
	}
}

// PushRecord tracks whether/when a push happened for one (mode, date).
type PushRecord struct {
	Mode     string    `json:"mode"`
	Date     string    `json:"date"`
	Pushed   bool      `json:"pushed"`
	LastPush time.Time `json:"last_push,omitempty"`
}

// Mode is a run mode: what slice of the day a report covers.
type Mode string

const (
	ModeDaily       Mode = "daily"
	ModeCurrent     Mode = "current"
	ModeIncremental Mode = "incremental"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeDaily, ModeCurrent, ModeIncremental:
		return true
	}
	return false
}
