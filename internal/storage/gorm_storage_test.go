package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func openSQLite(t *testing.T) *GormStorage {
	t.Helper()
	st, err := NewGormStorage("sqlite", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewGormStorage failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return st
}

func TestGorm_SaveAndQuery(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	snaps := []HistorySnapshot{
		{ID: "c", BaseCurrency: "GHS", TargetCurrency: "USD", ProviderID: "bog", ObservedAt: day.Add(15 * time.Hour), Rate: 0.0807},
		{ID: "a", BaseCurrency: "GHS", TargetCurrency: "USD", ProviderID: "bog", ObservedAt: day.Add(9 * time.Hour), Rate: 0.0806},
		{ID: "b", BaseCurrency: "GHS", TargetCurrency: "EUR", ProviderID: "bog", ObservedAt: day.Add(9 * time.Hour), Rate: 0.0714},
	}
	n, err := st.SaveSnapshots(ctx, snaps)
	if err != nil {
		t.Fatalf("SaveSnapshots failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 inserts, got %d", n)
	}

	dup := snaps[0]
	dup.ID = "other-id"
	n, err = st.SaveSnapshots(ctx, []HistorySnapshot{dup})
	if err != nil {
		t.Fatalf("SaveSnapshots with duplicate failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected duplicate to be skipped, got %d inserts", n)
	}

	got, err := st.QuerySnapshots(ctx, "GHS", "USD", day, day.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		t.Fatalf("QuerySnapshots failed: %v", err)
	}
	want := []HistorySnapshot{snaps[1], snaps[0]}
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("QuerySnapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestGorm_ExistsForDay(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	end := day.Add(24*time.Hour - time.Nanosecond)

	if ok, err := st.ExistsForDay(ctx, "GHS", "USD", day, end); err != nil || ok {
		t.Fatalf("expected no snapshot, got ok=%v err=%v", ok, err)
	}
	if _, err := st.SaveSnapshots(ctx, []HistorySnapshot{{
		BaseCurrency: "GHS", TargetCurrency: "USD", ProviderID: "bog", ObservedAt: day.Add(time.Hour), Rate: 0.08,
	}}); err != nil {
		t.Fatalf("SaveSnapshots failed: %v", err)
	}
	if ok, err := st.ExistsForDay(ctx, "GHS", "USD", day, end); err != nil || !ok {
		t.Fatalf("expected snapshot, got ok=%v err=%v", ok, err)
	}
}

func TestGorm_UpdateScheduledJob(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	started := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	if err := st.UpdateScheduledJob(ctx, "refresh_rates", started, 2*time.Second, false, "boom"); err != nil {
		t.Fatalf("UpdateScheduledJob failed: %v", err)
	}
	if err := st.UpdateScheduledJob(ctx, "refresh_rates", started.Add(time.Hour), time.Second, true, ""); err != nil {
		t.Fatalf("UpdateScheduledJob upsert failed: %v", err)
	}

	var job ScheduledJob
	if err := st.db.First(&job, "name = ?", "refresh_rates").Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.LastSuccess != 1 || job.LastError != "" || job.LastDurationMs != 1000 {
		t.Errorf("unexpected job row: %+v", job)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mongo"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
