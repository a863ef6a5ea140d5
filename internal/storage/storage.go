package storage

import (
	"context"
	"time"
)

// HistoryStore persists rate snapshots as an append-only time series.
type HistoryStore interface {
	// SaveSnapshots inserts snaps, skipping any whose (base, target,
	// provider, observed_at) key already exists. It returns the number of
	// rows actually written.
	SaveSnapshots(ctx context.Context, snaps []HistorySnapshot) (int, error)
	// QuerySnapshots returns snapshots for the pair observed within
	// [from, to], oldest first.
	QuerySnapshots(ctx context.Context, base, target string, from, to time.Time) ([]HistorySnapshot, error)
	// ExistsForDay reports whether any snapshot for the pair was observed
	// within [dayStart, dayEnd].
	ExistsForDay(ctx context.Context, base, target string, dayStart, dayEnd time.Time) (bool, error)
}

// JobStore records scheduled job runs and keeps replicas from running the
// same job concurrently.
type JobStore interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
}

// Storage is implemented by every backend returned from Open.
type Storage interface {
	HistoryStore
	JobStore

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}
