// Package app wires the module together: config-driven construction of
// sources, engine, gate, storage and channels, plus the scheduler and the
// live-reload loop.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/keyword"
	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/internal/notify"
	"github.com/wufuliang561/TrendRadar/internal/pushgate"
	"github.com/wufuliang561/TrendRadar/internal/ranking"
	"github.com/wufuliang561/TrendRadar/internal/source"
	"github.com/wufuliang561/TrendRadar/internal/storage"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

// App owns one fully-wired instance of the poll/merge/report pipeline.
type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	// modeOverride, when valid, wins over the configured report mode.
	modeOverride model.Mode

	// cycleMu serializes cycles. Cron runs every firing on its own
	// goroutine, so a poll that outlives the schedule interval would
	// otherwise merge into the aggregate concurrently with the next one.
	cycleMu sync.Mutex

	// mu guards the rebuildable component set below. RunCycle snapshots it
	// once at entry so a mid-cycle reload never mixes generations.
	mu       sync.Mutex
	cfg      *config.Config
	store    storage.Store
	engine   *ranking.Engine
	gate     *pushgate.Gate
	sources  []source.Source
	notifier *notify.Service
	loc      *time.Location
}

func New(mgr *config.Manager, logSvc *logx.Service, log logx.Logger, modeOverride string) (*App, error) {
	a := &App{
		mgr:          mgr,
		logSvc:       logSvc,
		log:          log.With(logx.String("comp", "app")),
		modeOverride: model.Mode(modeOverride),
	}
	if modeOverride != "" && !a.modeOverride.Valid() {
		return nil, fmt.Errorf("invalid mode %q", modeOverride)
	}

	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	if err := a.apply(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// apply (re)builds every config-derived component. On reload errors the old
// component set stays in place, so a bad edit degrades to a logged warning.
func (a *App) apply(cfg *config.Config) error {
	if a.logSvc != nil {
		a.logSvc.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
			File:    logx.FileConfig{Enabled: cfg.Logging.File != "", Path: cfg.Logging.File},
		})
	}

	rules, warnings, err := keyword.LoadFile(cfg.KeywordsPath)
	if err != nil {
		return fmt.Errorf("keyword rules: %w", err)
	}
	for _, w := range warnings {
		a.log.Warn("keyword rules", logx.String("warning", w))
	}

	weights := ranking.Weights{
		Rank:      cfg.Weights.Rank,
		Frequency: cfg.Weights.Frequency,
		Hotness:   cfg.Weights.Hotness,
	}
	if cfg.Weights.IsZero() {
		weights = ranking.DefaultWeights()
	}
	engine, err := ranking.New(ranking.Options{
		Weights:             weights,
		RankCeiling:         cfg.Report.RankCeiling,
		MaxRank:             cfg.Report.MaxRank,
		Curve:               ranking.Curve(cfg.Report.Curve),
		HotnessScale:        cfg.Report.HotnessScale,
		DefaultHotnessScale: cfg.Report.DefaultHotnessScale,
		NewWindow:           cfg.Report.NewWindowDuration(),
	}, rules, a.log)
	if err != nil {
		return fmt.Errorf("ranking engine: %w", err)
	}

	busy, _ := time.ParseDuration(cfg.Storage.BusyTimeout)
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, a.log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if store == nil {
		a.log.Info("storage disabled, state is in-memory only")
		store = storage.NewMemory()
	}

	gate := pushgate.New(pushgate.Policy{
		Enabled:       cfg.Push.Enabled,
		WindowStart:   cfg.Push.WindowStart,
		WindowEnd:     cfg.Push.WindowEnd,
		OncePerDay:    cfg.Push.OncePerDay,
		RetentionDays: cfg.Push.RetentionDays,
	}, store, a.log)

	channels := notify.Build(cfg.Channels, a.log)
	if len(channels) == 0 {
		a.log.Warn("no delivery channels configured, reports will only be logged")
	}
	notifier := notify.NewService(channels, cfg.Channels.RatePerSec, a.log)

	sources := source.Build(cfg)
	if len(sources) == 0 {
		a.log.Warn("no sources configured")
	}

	a.mu.Lock()
	old := a.store
	a.cfg = cfg
	a.store = store
	a.engine = engine
	a.gate = gate
	a.sources = sources
	a.notifier = notifier
	a.loc = cfg.Location()
	a.mu.Unlock()

	if old != nil && old != store {
		_ = old.Close()
	}
	return nil
}

// Mode resolves the effective run mode.
func (a *App) Mode() model.Mode {
	if a.modeOverride.Valid() {
		return a.modeOverride
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.Mode(a.cfg.Report.Mode)
}

// Run schedules cycles per the configured cron expression and serves config
// reloads until ctx is done. With no schedule it runs a single cycle.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	schedule := a.cfg.Schedule
	loc := a.loc
	a.mu.Unlock()

	if schedule == "" {
		return a.RunCycle(ctx)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(schedule, func() {
		if err := a.RunCycle(ctx); err != nil {
			a.log.Error("cycle failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	a.log.Info("scheduler started", logx.String("schedule", schedule))

	sub := a.mgr.Subscribe(1)
	defer a.mgr.Unsubscribe(sub)

	watchErr := make(chan error, 1)
	go func() { watchErr <- a.mgr.Watch(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("config watcher: %w", err)
			}
			return nil
		case cfg := <-sub:
			if cfg == nil {
				continue
			}
			if err := a.apply(cfg); err != nil {
				a.log.Warn("config reload rejected, keeping previous", logx.Err(err))
				continue
			}
			if cfg.Schedule != schedule {
				a.log.Warn("schedule changed, restart to apply",
					logx.String("active", schedule), logx.String("configured", cfg.Schedule))
			}
			a.log.Info("config reloaded")
		}
	}
}

// Close releases the store.
func (a *App) Close() error {
	a.mu.Lock()
	store := a.store
	a.store = nil
	a.mu.Unlock()
	if store != nil {
		return store.Close()
	}
	return nil
}
