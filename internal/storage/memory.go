package storage

import (
	"context"
	"sync"

	"github.com/wufuliang561/TrendRadar/internal/model"
)

// memoryStore keeps everything in process memory. It backs runs with
// storage disabled, so push gating and day aggregation still work for the
// lifetime of the process.
type memoryStore struct {
	mu      sync.Mutex
	aggs    map[string]*model.DailyAggregate
	records map[string]model.PushRecord // key: mode + "|" + date
}

// NewMemory returns a Store that persists nothing across restarts.
func NewMemory() Store {
	return &memoryStore{
		aggs:    map[string]*model.DailyAggregate{},
		records: map[string]model.PushRecord{},
	}
}

func (s *memoryStore) LoadAggregate(_ context.Context, date string) (*model.DailyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggs[date], nil
}

func (s *memoryStore) SaveAggregate(_ context.Context, agg *model.DailyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs[agg.Date] = agg
	return nil
}

func (s *memoryStore) GetPushRecord(_ context.Context, mode model.Mode, date string) (*model.PushRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[string(mode)+"|"+date]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memoryStore) PutPushRecord(_ context.Context, rec model.PushRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Mode+"|"+rec.Date] = rec
	return nil
}

func (s *memoryStore) SweepPushRecords(_ context.Context, cutoff string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rec := range s.records {
		if rec.Date < cutoff {
			delete(s.records, key)
			n++
		}
	}
	for date := range s.aggs {
		if date < cutoff {
			delete(s.aggs, date)
		}
	}
	return n, nil
}

func (s *memoryStore) Close() error { return nil }
