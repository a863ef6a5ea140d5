package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ratehub/internal/alerting"
	"github.com/bher20/ratehub/internal/rates"
	"github.com/bher20/ratehub/internal/storage"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	alerts []alerting.RefreshAlert
}

func (f *fakeNotifier) SendRefreshAlert(_ context.Context, a alerting.RefreshAlert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

func TestParseSchedule(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	s, err := ParseSchedule("300")
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Minute), s.Next(start))

	s, err = ParseSchedule("")
	require.NoError(t, err)
	assert.Equal(t, start.Add(30*time.Minute), s.Next(start))

	s, err = ParseSchedule("0 * * * *")
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), s.Next(start))

	_, err = ParseSchedule("-5")
	assert.Error(t, err)
	_, err = ParseSchedule("every tuesday")
	assert.Error(t, err)
}

func TestRunOnce_RecordsJobAndAlertsWithProviderDetail(t *testing.T) {
	ref := &fakeRefresher{errs: []error{
		&rates.ProviderFailedError{Detail: "bog: timeout | fixer: 101"},
		errors.New("again"),
	}}
	jobs := storage.NewMemory()
	notifier := &fakeNotifier{}
	w := NewWorker(ref, jobs, notifier, nil, nil)
	ctx := context.Background()

	ran, err := w.RunOnce(ctx)
	assert.True(t, ran)
	assert.Error(t, err)

	job, ok := jobs.ScheduledJob(JobName)
	require.True(t, ok)
	assert.Equal(t, 0, job.LastSuccess)
	assert.Contains(t, job.LastError, "bog: timeout")

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, 1, notifier.alerts[0].ConsecutiveFailures)
	assert.Equal(t, []string{"bog: timeout", "fixer: 101"}, notifier.alerts[0].Failures)

	_, _ = w.RunOnce(ctx)
	require.Len(t, notifier.alerts, 2)
	assert.Equal(t, 2, notifier.alerts[1].ConsecutiveFailures)
	assert.Empty(t, notifier.alerts[1].Failures)

	ran, err = w.RunOnce(ctx)
	assert.True(t, ran)
	assert.NoError(t, err)
	assert.Zero(t, w.ConsecutiveFailures())
	job, _ = jobs.ScheduledJob(JobName)
	assert.Equal(t, 1, job.LastSuccess)

	// The lock is released after every run.
	ok, err = jobs.AcquireAdvisoryLock(ctx, LockKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	ref := &fakeRefresher{}
	jobs := storage.NewMemory()
	ctx := context.Background()
	ok, err := jobs.AcquireAdvisoryLock(ctx, LockKey)
	require.NoError(t, err)
	require.True(t, ok)

	ran, err := NewWorker(ref, jobs, nil, nil, nil).RunOnce(ctx)
	assert.False(t, ran)
	assert.NoError(t, err)
	assert.Zero(t, ref.Calls())
}

func TestRun_RefreshesImmediatelyAndStopsOnCancel(t *testing.T) {
	ref := &fakeRefresher{}
	sched, err := ParseSchedule("1")
	require.NoError(t, err)
	w := NewWorker(ref, nil, nil, sched, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return ref.Calls() >= 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
