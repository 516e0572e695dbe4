// Package pushgate decides whether the current run may deliver a
// notification, given a push policy and prior push history.
//
// Decision and mutation are deliberately separate: MayPush never writes,
// RecordPush is the only mutator. That keeps both independently testable and
// lets the caller record a push only after delivery actually succeeded.
package pushgate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

// RecordStore is the slice of persistence the gate needs.
type RecordStore interface {
	GetPushRecord(ctx context.Context, mode model.Mode, date string) (*model.PushRecord, error)
	PutPushRecord(ctx context.Context, rec model.PushRecord) error
	// SweepPushRecords deletes records dated strictly before cutoff
	// (a model.DateKey value) and reports how many were removed.
	SweepPushRecords(ctx context.Context, cutoff string) (int, error)
}

// Policy is the push-window configuration surface.
type Policy struct {
	Enabled       bool
	WindowStart   string // "HH:MM"
	WindowEnd     string // "HH:MM", inclusive
	OncePerDay    bool
	RetentionDays int
}

// Decision is the gate's verdict for one run.
type Decision struct {
	Allow  bool
	Reason string
}

// Gate evaluates the policy against persisted push history.
type Gate struct {
	policy Policy
	store  RecordStore
	log    logx.Logger

	// recordMu serializes RecordPush per mode so two concurrent runs for the
	// same mode/day cannot both observe "not yet pushed" and both push.
	mu       sync.Mutex
	recordMu map[model.Mode]*sync.Mutex
}

func New(policy Policy, store RecordStore, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{
		policy:   policy,
		store:    store,
		log:      log,
		recordMu: map[model.Mode]*sync.Mutex{},
	}
}

// MayPush reports whether a push is currently allowed. newCount is how many
// items the current batch introduced; incremental runs with nothing new are
// always suppressed, regardless of window or once-per-day state.
func (g *Gate) MayPush(ctx context.Context, mode model.Mode, now time.Time, newCount int) Decision {
	if mode == model.ModeIncremental && newCount == 0 {
		return Decision{Allow: false, Reason: "no new items"}
	}
	if !g.policy.Enabled {
		return Decision{Allow: true, Reason: "window disabled"}
	}

	cur := now.Hour()*60 + now.Minute()
	start, err1 := parseClock(g.policy.WindowStart)
	end, err2 := parseClock(g.policy.WindowEnd)
	if err1 != nil || err2 != nil {
		// Validated at config load; a broken window at runtime fails open.
		g.log.Warn("invalid push window, allowing push",
			logx.String("start", g.policy.WindowStart), logx.String("end", g.policy.WindowEnd))
		return Decision{Allow: true, Reason: "window unparseable"}
	}
	if cur < start || cur > end {
		return Decision{Allow: false, Reason: "outside window"}
	}

	if g.policy.OncePerDay {
		rec, err := g.store.GetPushRecord(ctx, mode, model.DateKey(now))
		if err != nil {
			// Fail open: a corrupt record must never block all future pushes.
			g.log.Warn("push record unreadable, treating as not pushed",
				logx.String("mode", string(mode)), logx.Err(err))
		} else if rec != nil && rec.Pushed {
			return Decision{Allow: false, Reason: "already pushed today"}
		}
	}

	return Decision{Allow: true, Reason: "ok"}
}

// RecordPush persists that a push happened now, and sweeps expired records
// as housekeeping. The caller invokes this only after a successful delivery.
func (g *Gate) RecordPush(ctx context.Context, mode model.Mode, now time.Time) error {
	mu := g.modeMu(mode)
	mu.Lock()
	defer mu.Unlock()

	rec := model.PushRecord{
		Mode:     string(mode),
		Date:     model.DateKey(now),
		Pushed:   true,
		LastPush: now,
	}
	if err := g.store.PutPushRecord(ctx, rec); err != nil {
		return fmt.Errorf("record push: %w", err)
	}

	if g.policy.RetentionDays > 0 {
		cutoff := model.DateKey(now.AddDate(0, 0, -g.policy.RetentionDays))
		if n, err := g.store.SweepPushRecords(ctx, cutoff); err != nil {
			g.log.Warn("push record sweep failed", logx.Err(err))
		} else if n > 0 {
			g.log.Debug("swept expired push records", logx.Int("removed", n))
		}
	}
	return nil
}

func (g *Gate) modeMu(mode model.Mode) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	mu, ok := g.recordMu[mode]
	if !ok {
		mu = &sync.Mutex{}
		g.recordMu[mode] = mu
	}
	return mu
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: out of range", s)
	}
	return h*60 + m, nil
}

// ValidateWindow checks a policy's clock fields; used at config load so a
// bad window is fatal at startup instead of a runtime surprise.
func ValidateWindow(p Policy) error {
	if !p.Enabled {
		return nil
	}
	if _, err := parseClock(p.WindowStart); err != nil {
		return err
	}
	if _, err := parseClock(p.WindowEnd); err != nil {
		return err
	}
	return nil
}
