package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wufuliang561/TrendRadar/internal/model"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Layout under cfg.Path:
//   - days/<date>.json          one aggregate document per day
//   - push/<mode>_<date>.json   one push record per mode and day
//
// Documents are written atomically (tmp + rename) with a fixed indentation,
// so an unchanged aggregate re-saves byte-identically.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	root string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	for _, sub := range []string{"days", "push"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{log: log, root: root}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) dayPath(date string) string {
	return filepath.Join(s.root, "days", date+".json")
}

func (s *fileStore) pushPath(mode model.Mode, date string) string {
	return filepath.Join(s.root, "push", string(mode)+"_"+date+".json")
}

func (s *fileStore) LoadAggregate(ctx context.Context, date string) (*model.DailyAggregate, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.dayPath(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var agg model.DailyAggregate
	if err := json.Unmarshal(b, &agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *fileStore) SaveAggregate(ctx context.Context, agg *model.DailyAggregate) error {
	_ = ctx
	if agg == nil || agg.Date == "" {
		return errors.New("aggregate without date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.dayPath(agg.Date), agg)
}

func (s *fileStore) GetPushRecord(ctx context.Context, mode model.Mode, date string) (*model.PushRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.pushPath(mode, date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec model.PushRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *fileStore) PutPushRecord(ctx context.Context, rec model.PushRecord) error {
	_ = ctx
	if rec.Mode == "" || rec.Date == "" {
		return errors.New("push record without mode or date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.pushPath(model.Mode(rec.Mode), rec.Date), rec)
}

func (s *fileStore) SweepPushRecords(ctx context.Context, cutoff string) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, "push"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		// <mode>_<date>.json
		base := strings.TrimSuffix(name, ".json")
		idx := strings.LastIndex(base, "_")
		if idx < 0 {
			s.log.Warn("push record with unexpected name, skipping sweep", logx.String("file", name))
			continue
		}
		date := base[idx+1:]
		if date < cutoff {
			if err := os.Remove(filepath.Join(s.root, "push", name)); err != nil {
				s.log.Warn("failed removing expired push record", logx.String("file", name), logx.Err(err))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func writeJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
