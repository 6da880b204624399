package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used by unit tests for the coordinator,
// coverage, and freshness evaluators, so those tests don't need a live
// database. It honors the same contract as GormStore, including the
// set-once created_at semantics I5 depends on.
type Memory struct {
	mu   sync.Mutex
	rows map[string]Row
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]Row)}
}

func (m *Memory) CountInDay(ctx context.Context, country string, lo, hi int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.rows {
		if r.CountryCode == country && r.DateAdded >= lo && r.DateAdded <= hi {
			count++
		}
	}
	return count, nil
}

func (m *Memory) MaxDateAdded(ctx context.Context, country string, lo, hi int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	found := false
	for _, r := range m.rows {
		if r.CountryCode == country && r.DateAdded >= lo && r.DateAdded <= hi {
			if !found || r.DateAdded > max {
				max = r.DateAdded
				found = true
			}
		}
	}
	return max, found, nil
}

func (m *Memory) UpsertMany(ctx context.Context, rows []Row) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		existing, ok := m.rows[r.GKGRecordID]
		if ok {
			// created_at is set once; preserve it across re-fetches.
			r.CreatedAt = existing.CreatedAt
		} else if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		m.rows[r.GKGRecordID] = r
	}
	return len(rows), nil
}

func (m *Memory) DeleteOlderThan(ctx context.Context, horizon time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-horizon)
	deleted := 0
	for id, r := range m.rows {
		if r.CreatedAt.Before(cutoff) {
			delete(m.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) SelectRange(ctx context.Context, country string, lo, hi int64) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Row
	for _, r := range m.rows {
		if r.CountryCode == country && r.DateAdded >= lo && r.DateAdded <= hi {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateAdded > out[j].DateAdded })
	return out, nil
}

func (m *Memory) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

// Seed directly inserts rows for test setup, bypassing UpsertMany's
// created_at preservation so tests can control created_at precisely.
func (m *Memory) Seed(rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.rows[r.GKGRecordID] = r
	}
}
