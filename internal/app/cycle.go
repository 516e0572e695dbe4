package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/internal/notify"
	"github.com/wufuliang561/TrendRadar/internal/pushgate"
	"github.com/wufuliang561/TrendRadar/internal/ranking"
	"github.com/wufuliang561/TrendRadar/internal/report"
	"github.com/wufuliang561/TrendRadar/internal/source"
	"github.com/wufuliang561/TrendRadar/internal/storage"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

// components is the immutable snapshot one cycle runs against.
type components struct {
	store    storage.Store
	engine   *ranking.Engine
	gate     *pushgate.Gate
	sources  []source.Source
	notifier *notify.Service
	loc      *time.Location
	mode     model.Mode
}

func (a *App) snapshot() components {
	a.mu.Lock()
	defer a.mu.Unlock()
	mode := model.Mode(a.cfg.Report.Mode)
	if a.modeOverride.Valid() {
		mode = a.modeOverride
	}
	return components{
		store:    a.store,
		engine:   a.engine,
		gate:     a.gate,
		sources:  a.sources,
		notifier: a.notifier,
		loc:      a.loc,
		mode:     mode,
	}
}

// RunCycle executes one poll/merge/report pass: fetch every source, fold the
// batch into today's aggregate, persist it, then push if the gate allows.
// Cycles never overlap: a late firing waits for the running one to finish
// its merge and save, so no batch is lost to a concurrent load/save pair.
func (a *App) RunCycle(ctx context.Context) error {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	c := a.snapshot()
	now := time.Now().In(c.loc)
	date := model.DateKey(now)
	batchID := model.BatchLabel(now)
	log := a.log.With(logx.String("date", date), logx.String("batch", batchID))

	obs, failed := fetchAll(ctx, c.sources)
	log.Info("sources polled",
		logx.Int("observations", len(obs)),
		logx.Int("sources", len(c.sources)),
		logx.Int("failed", len(failed)))
	if len(obs) == 0 && len(failed) == len(c.sources) && len(c.sources) > 0 {
		return errors.New("all sources failed")
	}

	agg, err := c.store.LoadAggregate(ctx, date)
	if err != nil {
		return fmt.Errorf("load aggregate: %w", err)
	}
	if agg == nil {
		agg = model.NewDailyAggregate(date)
	}

	res := c.engine.Merge(agg, batchID, now, obs)
	if res.Skipped > 0 {
		log.Warn("malformed observations skipped", logx.Int("count", res.Skipped))
	}

	if err := c.store.SaveAggregate(ctx, agg); err != nil {
		return fmt.Errorf("save aggregate: %w", err)
	}
	log.Info("batch merged",
		logx.Int("batch_items", res.Batch.ItemCount),
		logx.Int("new_items", len(res.NewItems)),
		logx.Int("day_items", len(agg.Items)),
		logx.Int("day_batches", agg.TotalBatches))

	data := report.Build(c.mode, agg, res.Batch, res.NewItems, failed, now)

	decision := c.gate.MayPush(ctx, c.mode, now, len(res.NewItems))
	if !decision.Allow {
		log.Info("push suppressed", logx.String("reason", decision.Reason))
		return nil
	}

	messages := map[string][]string{}
	total := 0
	for _, ch := range c.notifier.Channels() {
		r := report.Renderer{Flavor: ch.Flavor()}
		msgs := r.Messages(data, ch.MaxBytes(), log)
		messages[ch.Name()] = msgs
		total += len(msgs)
	}
	if total == 0 {
		log.Info("nothing to push", logx.String("mode", string(c.mode)))
		return nil
	}

	sent := c.notifier.Broadcast(ctx, messages)
	if sent == 0 {
		return errors.New("delivery failed on every channel")
	}
	if err := c.gate.RecordPush(ctx, c.mode, now); err != nil {
		log.Warn("push record not persisted", logx.Err(err))
	}
	return nil
}

// fetchAll polls every source concurrently and returns the combined
// observations plus the ids of sources that failed. Failures are collected,
// not fatal: a dead platform costs its slice of the batch, nothing more.
func fetchAll(ctx context.Context, sources []source.Source) ([]model.Observation, []string) {
	type result struct {
		obs []model.Observation
		err error
	}

	results := make([]result, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			obs, err := src.Fetch(ctx)
			results[i] = result{obs: obs, err: err}
		}(i, src)
	}
	wg.Wait()

	var all []model.Observation
	var failed []string
	for i, r := range results {
		if r.err != nil {
			failed = append(failed, sources[i].ID())
			continue
		}
		all = append(all, r.obs...)
	}
	sort.Strings(failed)
	return all, failed
}
