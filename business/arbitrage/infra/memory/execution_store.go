// Package memory keeps execution records in process when PostgreSQL is disabled.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
)

var _ app.ExecutionStore = (*ExecutionStore)(nil)

const defaultCapacity = 1000

// ExecutionStore holds the most recent records up to a fixed capacity.
// Terminal records are evicted oldest first once the capacity is exceeded.
type ExecutionStore struct {
	mu       sync.RWMutex
	capacity int
	records  map[string]domain.ExecutionRecord
}

// NewExecutionStore creates a store. A non-positive capacity uses the default.
func NewExecutionStore(capacity int) *ExecutionStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &ExecutionStore{
		capacity: capacity,
		records:  make(map[string]domain.ExecutionRecord),
	}
}

// SaveExecution inserts or replaces rec.
func (s *ExecutionStore) SaveExecution(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec
	if len(s.records) > s.capacity {
		s.evict()
	}
	return nil
}

// RecentExecutions returns up to limit records, newest first.
func (s *ExecutionStore) RecentExecutions(_ context.Context, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	out := make([]domain.ExecutionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ExecutionStore) evict() {
	all := make([]domain.ExecutionRecord, 0, len(s.records))
	for _, r := range s.records {
		if r.Status.Terminal() {
			all = append(all, r)
		}
	}
	sortNewestFirst(all)
	for i := len(all) - 1; i >= 0 && len(s.records) > s.capacity; i-- {
		delete(s.records, all[i].ID)
	}
}

func sortNewestFirst(recs []domain.ExecutionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})
}
