package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SaveSnapshotsSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	snap := HistorySnapshot{BaseCurrency: "ghs", TargetCurrency: "usd", ProviderID: "bog", ObservedAt: at, Rate: 0.08}

	n, err := m.SaveSnapshots(ctx, []HistorySnapshot{snap, snap})
	if err != nil {
		t.Fatalf("SaveSnapshots failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 insert, got %d", n)
	}

	n, err = m.SaveSnapshots(ctx, []HistorySnapshot{snap})
	if err != nil {
		t.Fatalf("SaveSnapshots failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected duplicate to be skipped, got %d inserts", n)
	}

	other := snap
	other.ProviderID = "fixer"
	if n, _ := m.SaveSnapshots(ctx, []HistorySnapshot{other}); n != 1 {
		t.Fatalf("different provider should insert, got %d", n)
	}
}

func TestMemory_QuerySnapshotsOrdersAscending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)

	var snaps []HistorySnapshot
	for _, day := range []int{5, 1, 3, 9} {
		snaps = append(snaps, HistorySnapshot{
			BaseCurrency: "GHS", TargetCurrency: "USD", ProviderID: "bog",
			ObservedAt: base.AddDate(0, 0, day), Rate: float64(day),
		})
	}
	snaps = append(snaps, HistorySnapshot{
		BaseCurrency: "GHS", TargetCurrency: "EUR", ProviderID: "bog", ObservedAt: base.AddDate(0, 0, 2), Rate: 1,
	})
	if _, err := m.SaveSnapshots(ctx, snaps); err != nil {
		t.Fatalf("SaveSnapshots failed: %v", err)
	}

	got, err := m.QuerySnapshots(ctx, "ghs", "usd", base.AddDate(0, 0, 1), base.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("QuerySnapshots failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(got))
	}
	for i, want := range []float64{1, 3, 5} {
		if got[i].Rate != want {
			t.Errorf("position %d: want rate %v, got %v", i, want, got[i].Rate)
		}
	}
	if got[0].ID == "" {
		t.Errorf("expected snapshot ID to be assigned")
	}
}

func TestMemory_ExistsForDay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	end := day.Add(24*time.Hour - time.Nanosecond)

	ok, _ := m.ExistsForDay(ctx, "GHS", "USD", day, end)
	if ok {
		t.Fatalf("expected no snapshot yet")
	}
	_, _ = m.SaveSnapshots(ctx, []HistorySnapshot{{
		BaseCurrency: "GHS", TargetCurrency: "USD", ProviderID: "bog", ObservedAt: day.Add(13 * time.Hour), Rate: 0.08,
	}})
	if ok, _ := m.ExistsForDay(ctx, "GHS", "USD", day, end); !ok {
		t.Fatalf("expected snapshot for day")
	}
	if ok, _ := m.ExistsForDay(ctx, "GHS", "USD", day.AddDate(0, 0, 1), end.AddDate(0, 0, 1)); ok {
		t.Fatalf("next day should be empty")
	}
}

func TestMemory_AdvisoryLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, _ := m.AcquireAdvisoryLock(ctx, 7)
	if !ok {
		t.Fatalf("first acquire should succeed")
	}
	if ok, _ := m.AcquireAdvisoryLock(ctx, 7); ok {
		t.Fatalf("second acquire should fail while held")
	}
	if ok, _ := m.ReleaseAdvisoryLock(ctx, 7); !ok {
		t.Fatalf("release should report the lock was held")
	}
	if ok, _ := m.AcquireAdvisoryLock(ctx, 7); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}
