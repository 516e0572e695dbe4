// Package ranking merges polling batches into the per-day aggregate,
// recomputes composite popularity weights and flags newly-appeared items.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/keyword"
	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

// CatchAllGroup is the group id used when no keyword rules are configured:
// every item matches it, so a ruleless deployment still gets a digest.
const CatchAllGroup = "all"

// Curve selects how rankScore decays beyond the rank ceiling.
type Curve string

const (
	CurveLinear Curve = "linear"
	CurveLog    Curve = "log"
)

// Weights are the composite-weight blend coefficients. They must sum to 1.0;
// the engine never renormalizes a bad blend, it rejects it at construction.
type Weights struct {
	Rank      float64
	Frequency float64
	Hotness   float64
}

func DefaultWeights() Weights { return Weights{Rank: 0.6, Frequency: 0.3, Hotness: 0.1} }

func (w Weights) Validate() error {
	if w.Rank < 0 || w.Frequency < 0 || w.Hotness < 0 {
		return errors.New("weight coefficients must be non-negative")
	}
	sum := w.Rank + w.Frequency + w.Hotness
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("weight coefficients must sum to 1.0, got %g", sum)
	}
	return nil
}

// Options tune the engine. Zero fields fall back to defaults in New.
type Options struct {
	Weights     Weights
	RankCeiling int   // ranks at or above (numerically <=) this score 1.0; default 10
	MaxRank     int   // linear decay reaches 0 here; default 50
	Curve       Curve // default linear

	// HotnessScale normalizes source-reported hotness per platform id.
	// DefaultHotnessScale applies to platforms without an entry; a scale of 0
	// disables the hotness contribution for that platform.
	HotnessScale        map[string]float64
	DefaultHotnessScale float64

	// NewWindow, when positive, lets "new" reset within a day: an item not
	// seen for longer than this counts as newly appeared again. Zero keeps
	// the default day-boundary-only semantics.
	NewWindow time.Duration
}

// Engine merges batches into a DailyAggregate it receives by reference.
// It holds no aggregate state of its own across calls.
type Engine struct {
	opt   Options
	rules []keyword.Rule
	log   logx.Logger
}

func New(opt Options, rules []keyword.Rule, log logx.Logger) (*Engine, error) {
	if err := opt.Weights.Validate(); err != nil {
		return nil, err
	}
	if opt.RankCeiling <= 0 {
		opt.RankCeiling = 10
	}
	if opt.MaxRank <= opt.RankCeiling {
		opt.MaxRank = opt.RankCeiling + 40
	}
	if opt.Curve == "" {
		opt.Curve = CurveLinear
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{opt: opt, rules: rules, log: log}, nil
}

// Result is what one merge produced beyond the mutated aggregate.
type Result struct {
	Batch    *model.Batch
	NewItems []*model.Item
	// Skipped counts malformed observations (missing title or rank) that
	// were dropped without aborting the merge.
	Skipped int
}

// Merge folds one polling batch into agg. Observations sharing an identity
// key within the batch land on one item, each appending to its rank history;
// across batches nothing is deduplicated, so re-merging the same content
// under a new batch id grows occurrence counts again.
func (e *Engine) Merge(agg *model.DailyAggregate, batchID string, now time.Time, obs []model.Observation) Result {
	res := Result{}
	// Labels are minute-resolution, so two cycles in one minute would share
	// an id and the second would keep the first's items flagged new.
	batchID = uniqueBatchID(agg, batchID)

	var touched []*model.Item
	seen := map[model.ItemKey]bool{}
	occurrences := 0

	for _, o := range obs {
		if o.Title == "" || o.Rank < 1 {
			res.Skipped++
			continue
		}
		ts := o.Timestamp
		if ts.IsZero() {
			ts = now
		}

		key := model.ItemKey{Title: o.Title, PlatformID: o.PlatformID}
		it, ok := agg.Lookup(key)
		if !ok {
			it = &model.Item{
				Title:        o.Title,
				URL:          o.URL,
				MobileURL:    o.MobileURL,
				PlatformID:   o.PlatformID,
				PlatformName: o.PlatformName,
				FirstRank:    o.Rank,
				FirstBatch:   batchID,
				IsNew:        true,
			}
			agg.Add(it)
			res.NewItems = append(res.NewItems, it)
		} else if it.FirstBatch != batchID {
			if e.opt.NewWindow > 0 && now.Sub(it.LastSeen) > e.opt.NewWindow {
				// Dropped off the lists long enough to count as a reappearance.
				it.IsNew = true
				it.FirstBatch = batchID
				res.NewItems = append(res.NewItems, it)
			} else {
				// The new flag only survives the batch that introduced the item.
				it.IsNew = false
			}
		}
		if it.URL == "" {
			it.URL = o.URL
		}
		if it.MobileURL == "" {
			it.MobileURL = o.MobileURL
		}
		it.Observe(o.Rank, o.Hotness, ts)

		occurrences++
		if !seen[key] {
			seen[key] = true
			touched = append(touched, it)
		}
	}

	if res.Skipped > 0 {
		e.log.Warn("skipped malformed observations",
			logx.String("batch", batchID), logx.Int("skipped", res.Skipped))
	}

	// The frequency denominator moved, so every item's weight is stale,
	// not just the touched ones.
	totalBatches := agg.TotalBatches + 1
	for _, it := range agg.Items {
		it.Weight = e.Score(it, totalBatches)
	}

	batch := &model.Batch{
		ID:        batchID,
		Timestamp: now,
		ItemCount: len(touched),
		NewCount:  len(res.NewItems),
		Groups:    e.groupItems(touched),
	}

	agg.Batches = append(agg.Batches, batch)
	agg.TotalBatches = totalBatches
	agg.TotalItems += occurrences
	agg.LastUpdate = now
	agg.Groups = e.groupItems(agg.Items)

	res.Batch = batch
	return res
}

// uniqueBatchID suffixes id with a sequence number when the aggregate
// already holds a batch under it.
func uniqueBatchID(agg *model.DailyAggregate, id string) string {
	taken := map[string]bool{}
	for _, b := range agg.Batches {
		taken[b.ID] = true
	}
	if !taken[id] {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s#%d", id, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// groupItems classifies items into keyword groups, sorts each group's
// members by weight (ties: best rank, then earliest first-seen) and the
// groups themselves by match count. Empty groups are omitted.
func (e *Engine) groupItems(items []*model.Item) []*model.WordGroup {
	byID := map[string]*model.WordGroup{}
	var order []string

	add := func(id string, it *model.Item) {
		g, ok := byID[id]
		if !ok {
			g = &model.WordGroup{Name: id}
			byID[id] = g
			order = append(order, id)
		}
		g.Items = append(g.Items, it)
	}

	for _, it := range items {
		if len(e.rules) == 0 {
			add(CatchAllGroup, it)
			continue
		}
		for _, id := range keyword.Classify(it.Title, e.rules) {
			add(id, it)
		}
	}

	groups := make([]*model.WordGroup, 0, len(order))
	for _, id := range order {
		g := byID[id]
		sortItems(g.Items)
		g.SetPercentage(len(items))
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })
	return groups
}

func sortItems(items []*model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.BestRank != b.BestRank {
			return a.BestRank < b.BestRank
		}
		return a.FirstSeen.Before(b.FirstSeen)
	})
}

// Score computes the composite weight of an item given the batch count the
// frequency score normalizes against. Exposed for tests and reranking.
func (e *Engine) Score(it *model.Item, totalBatches int) float64 {
	rank := e.rankScore(it.BestRank)

	freq := 0.0
	if totalBatches > 0 {
		freq = float64(it.Count) / float64(totalBatches)
		if freq > 1 {
			freq = 1
		}
	}

	hot := e.hotnessScore(it.PlatformID, it.Hotness)

	w := e.opt.Weights.Rank*rank + e.opt.Weights.Frequency*freq + e.opt.Weights.Hotness*hot
	return math.Round(w*10000) / 10000
}

// rankScore is 1.0 at or above the ceiling and decays toward 0 beyond it.
func (e *Engine) rankScore(best int) float64 {
	if best <= 0 {
		return 0
	}
	if best <= e.opt.RankCeiling {
		return 1
	}
	switch e.opt.Curve {
	case CurveLog:
		s := 1 / (1 + math.Log(float64(best)/float64(e.opt.RankCeiling)))
		if s < 0 {
			return 0
		}
		return s
	default:
		s := 1 - float64(best-e.opt.RankCeiling)/float64(e.opt.MaxRank-e.opt.RankCeiling)
		if s < 0 {
			return 0
		}
		return s
	}
}

func (e *Engine) hotnessScore(platformID string, hotness float64) float64 {
	if hotness <= 0 {
		return 0
	}
	scale, ok := e.opt.HotnessScale[platformID]
	if !ok {
		scale = e.opt.DefaultHotnessScale
	}
	if scale <= 0 {
		return 0
	}
	s := hotness / scale
	if s > 1 {
		return 1
	}
	return s
}
