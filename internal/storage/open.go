package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": one JSON document per day under Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the engine's collaborators.
type Store interface {
	// LoadAggregate returns the aggregate for date, or (nil, nil) when the
	// day has no state yet.
	LoadAggregate(ctx context.Context, date string) (*model.DailyAggregate, error)
	SaveAggregate(ctx context.Context, agg *model.DailyAggregate) error

	// GetPushRecord returns (nil, nil) when no record exists.
	GetPushRecord(ctx context.Context, mode model.Mode, date string) (*model.PushRecord, error)
	PutPushRecord(ctx context.Context, rec model.PushRecord) error
	// SweepPushRecords deletes records dated strictly before cutoff.
	SweepPushRecords(ctx context.Context, cutoff string) (int, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
