// Package cron runs the scheduled rate refresh.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bher20/ratehub/internal/alerting"
	"github.com/bher20/ratehub/internal/metrics"
	"github.com/bher20/ratehub/internal/rates"
	"github.com/bher20/ratehub/internal/storage"
)

const (
	JobName = "refresh_rates"
	// LockKey is the advisory lock that keeps replicas from refreshing at
	// the same time.
	LockKey int64 = 42

	DefaultSchedule = "@every 30m"
)

// Refresher is the part of rates.Service the worker drives.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Notifier receives an alert after a failed run.
type Notifier interface {
	SendRefreshAlert(ctx context.Context, alert alerting.RefreshAlert) error
}

// ParseSchedule accepts either a positive number of seconds or any
// standard cron expression, including descriptors like "@every 30m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSchedule
	}
	if v, err := strconv.Atoi(spec); err == nil {
		if v <= 0 {
			return nil, fmt.Errorf("refresh interval must be positive, got %d", v)
		}
		return cron.Every(time.Duration(v) * time.Second), nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Worker refreshes rates on a schedule.
type Worker struct {
	svc      Refresher
	jobs     storage.JobStore
	notifier Notifier
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time

	mu                  sync.Mutex
	consecutiveFailures int
}

// NewWorker builds a Worker. jobs and notifier may be nil.
func NewWorker(svc Refresher, jobs storage.JobStore, notifier Notifier, schedule cron.Schedule, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		svc:      svc,
		jobs:     jobs,
		notifier: notifier,
		schedule: schedule,
		logger:   logger.With("component", "cron", "job", JobName),
		now:      time.Now,
	}
}

// Run refreshes immediately and then on every scheduled tick until ctx is
// cancelled. Run errors are logged, never returned.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("cron worker starting")
	next := w.now()
	for {
		wait := next.Sub(w.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("cron worker stopping")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("scheduled refresh failed", "error", err)
		}
		next = w.schedule.Next(w.now())
		w.logger.Debug("next refresh scheduled", "at", next)
	}
}

// RunOnce performs a single refresh under the advisory lock. ran is false
// when another replica holds the lock.
func (w *Worker) RunOnce(ctx context.Context) (ran bool, err error) {
	started := w.now()

	if w.jobs != nil {
		ok, err := w.jobs.AcquireAdvisoryLock(ctx, LockKey)
		if err != nil {
			metrics.UpdateJobMetrics(JobName, started, err)
			return false, fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !ok {
			w.logger.Info("advisory lock held by another worker, skipping run")
			return false, nil
		}
		defer func() {
			if _, err := w.jobs.ReleaseAdvisoryLock(context.WithoutCancel(ctx), LockKey); err != nil {
				w.logger.Warn("release advisory lock failed", "error", err)
			}
		}()
	}

	runErr := w.svc.Refresh(ctx)
	dur := w.now().Sub(started)

	metrics.UpdateJobMetrics(JobName, started, runErr)
	if w.jobs != nil {
		errMsg := ""
		if runErr != nil {
			errMsg = runErr.Error()
		}
		if err := w.jobs.UpdateScheduledJob(ctx, JobName, started, dur, runErr == nil, errMsg); err != nil {
			w.logger.Warn("update scheduled_jobs failed", "error", err)
		}
	}

	if runErr == nil {
		w.mu.Lock()
		w.consecutiveFailures = 0
		w.mu.Unlock()
		w.logger.Info("refresh completed", "duration", dur)
		return true, nil
	}

	w.mu.Lock()
	w.consecutiveFailures++
	failures := w.consecutiveFailures
	w.mu.Unlock()

	w.logger.Warn("refresh completed with error", "duration", dur, "consecutive_failures", failures, "error", runErr)
	w.alert(ctx, started, dur, failures, runErr)
	return true, runErr
}

// ConsecutiveFailures reports how many runs in a row have failed.
func (w *Worker) ConsecutiveFailures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consecutiveFailures
}

func (w *Worker) alert(ctx context.Context, started time.Time, dur time.Duration, failures int, runErr error) {
	if w.notifier == nil {
		return
	}
	alert := alerting.RefreshAlert{
		JobName:             JobName,
		ConsecutiveFailures: failures,
		Error:               runErr.Error(),
		Duration:            dur,
		Timestamp:           started,
	}
	var pf *rates.ProviderFailedError
	if errors.As(runErr, &pf) {
		alert.Failures = pf.Failures()
	}
	if err := w.notifier.SendRefreshAlert(ctx, alert); err != nil {
		w.logger.Error("send refresh alert failed", "error", err)
	}
}
