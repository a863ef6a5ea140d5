package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// HistorySnapshot is one persisted observation of a rate. Rows are never
// updated or deleted by the service.
type HistorySnapshot struct {
	ID             string    `json:"id" gorm:"primaryKey;column:id"`
	BaseCurrency   string    `json:"base_currency" gorm:"column:base_currency;size:3;not null;uniqueIndex:idx_rate_snapshots_key,priority:1;index:idx_rate_snapshots_pair,priority:1"`
	TargetCurrency string    `json:"target_currency" gorm:"column:target_currency;size:3;not null;uniqueIndex:idx_rate_snapshots_key,priority:2;index:idx_rate_snapshots_pair,priority:2"`
	ProviderID     string    `json:"provider" gorm:"column:provider_id;not null;uniqueIndex:idx_rate_snapshots_key,priority:3"`
	ObservedAt     time.Time `json:"observed_at" gorm:"column:observed_at;not null;uniqueIndex:idx_rate_snapshots_key,priority:4;index:idx_rate_snapshots_pair,priority:3"`
	Rate           float64   `json:"rate" gorm:"column:rate;not null"`
}

func (HistorySnapshot) TableName() string { return "rate_snapshots" }

type snapshotKey struct {
	base, target, provider string
	observedAt             int64
}

func (s HistorySnapshot) key() snapshotKey {
	return snapshotKey{s.BaseCurrency, s.TargetCurrency, s.ProviderID, s.ObservedAt.UnixNano()}
}

// prepareSnapshots normalizes a batch before insert: codes are upper-cased,
// times are UTC, IDs are assigned and in-batch duplicates are dropped.
func prepareSnapshots(snaps []HistorySnapshot) []HistorySnapshot {
	out := make([]HistorySnapshot, 0, len(snaps))
	seen := make(map[snapshotKey]bool, len(snaps))
	for _, s := range snaps {
		s.BaseCurrency = strings.ToUpper(s.BaseCurrency)
		s.TargetCurrency = strings.ToUpper(s.TargetCurrency)
		s.ObservedAt = s.ObservedAt.UTC()
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		k := s.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// ScheduledJob is the last-run record of a background job.
type ScheduledJob struct {
	Name           string    `json:"name" gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastDurationMs int64     `json:"last_duration_ms" gorm:"column:last_duration_ms"`
	LastSuccess    int       `json:"last_success" gorm:"column:last_success"`
	LastError      string    `json:"last_error" gorm:"column:last_error"`
}

func (ScheduledJob) TableName() string { return "scheduled_jobs" }

func newScheduledJob(name string, started time.Time, dur time.Duration, success bool, errMsg string) ScheduledJob {
	status := 0
	if success {
		status = 1
	}
	return ScheduledJob{
		Name:           name,
		LastRunAt:      started.UTC(),
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
}
