package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu    sync.RWMutex
	snaps map[snapshotKey]HistorySnapshot
	jobs  map[string]ScheduledJob
	locks map[int64]bool
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		snaps: make(map[snapshotKey]HistorySnapshot),
		jobs:  make(map[string]ScheduledJob),
		locks: make(map[int64]bool),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) SaveSnapshots(ctx context.Context, snaps []HistorySnapshot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, s := range prepareSnapshots(snaps) {
		k := s.key()
		if _, exists := m.snaps[k]; exists {
			continue
		}
		m.snaps[k] = s
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStorage) QuerySnapshots(ctx context.Context, base, target string, from, to time.Time) ([]HistorySnapshot, error) {
	base, target = strings.ToUpper(base), strings.ToUpper(target)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HistorySnapshot
	for _, s := range m.snaps {
		if s.BaseCurrency != base || s.TargetCurrency != target {
			continue
		}
		if s.ObservedAt.Before(from) || s.ObservedAt.After(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out, nil
}

func (m *MemoryStorage) ExistsForDay(ctx context.Context, base, target string, dayStart, dayEnd time.Time) (bool, error) {
	base, target = strings.ToUpper(base), strings.ToUpper(target)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.snaps {
		if s.BaseCurrency == base && s.TargetCurrency == target &&
			!s.ObservedAt.Before(dayStart) && !s.ObservedAt.After(dayEnd) {
			return true, nil
		}
	}
	return false, nil
}

// Scheduled Jobs & Locking

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.locks[key]
	delete(m.locks, key)
	return held, nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = newScheduledJob(name, started, dur, success, errMsg)
	return nil
}

// ScheduledJob returns the last recorded run of a job.
func (m *MemoryStorage) ScheduledJob(name string) (ScheduledJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[name]
	return j, ok
}
