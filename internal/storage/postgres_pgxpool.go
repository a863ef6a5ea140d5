package storage

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/bher20/ratehub/internal/metrics"
)

const poolStatsInterval = 15 * time.Second

// PostgresPoolStorage talks to postgres through pgxpool. Its schema is owned
// by the goose migrations in internal/migrate.
type PostgresPoolStorage struct {
	pool *pgxpool.Pool

	lockMu sync.Mutex
	locks  map[int64]*pgxpool.Conn

	stop chan struct{}
	once sync.Once
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	const op = "storage.postgrespool.Open"

	if dsn == "" {
		dsn = "postgres://localhost:5432/ratehub?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, op+": parse config")
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 10 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, op+": connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, op+": ping")
	}

	s := &PostgresPoolStorage{
		pool:  pool,
		locks: make(map[int64]*pgxpool.Conn),
		stop:  make(chan struct{}),
	}
	go s.reportPoolStats()
	return s, nil
}

func (s *PostgresPoolStorage) reportPoolStats() {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		st := s.pool.Stat()
		metrics.UpdateDBPoolMetrics("postgrespool",
			float64(st.TotalConns()), float64(st.IdleConns()), float64(st.AcquiredConns()), st.AcquireCount())
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *PostgresPoolStorage) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.lockMu.Lock()
		for key, conn := range s.locks {
			conn.Release()
			delete(s.locks, key)
		}
		s.lockMu.Unlock()
		s.pool.Close()
	})
	return nil
}

func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresPoolStorage) SaveSnapshots(ctx context.Context, snaps []HistorySnapshot) (int, error) {
	const op = "storage.postgrespool.SaveSnapshots"

	prepared := prepareSnapshots(snaps)
	if len(prepared) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, snap := range prepared {
		batch.Queue(`
			INSERT INTO rate_snapshots (id, base_currency, target_currency, provider_id, observed_at, rate)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (base_currency, target_currency, provider_id, observed_at) DO NOTHING
		`, snap.ID, snap.BaseCurrency, snap.TargetCurrency, snap.ProviderID, snap.ObservedAt, snap.Rate)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range prepared {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrap(err, op)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresPoolStorage) QuerySnapshots(ctx context.Context, base, target string, from, to time.Time) ([]HistorySnapshot, error) {
	const op = "storage.postgrespool.QuerySnapshots"

	rows, err := s.pool.Query(ctx, `
		SELECT id, base_currency, target_currency, provider_id, observed_at, rate
		FROM rate_snapshots
		WHERE base_currency = $1 AND target_currency = $2
		  AND observed_at >= $3 AND observed_at <= $4
		ORDER BY observed_at ASC, provider_id ASC
	`, strings.ToUpper(base), strings.ToUpper(target), from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer rows.Close()

	var out []HistorySnapshot
	for rows.Next() {
		var snap HistorySnapshot
		if err := rows.Scan(&snap.ID, &snap.BaseCurrency, &snap.TargetCurrency, &snap.ProviderID, &snap.ObservedAt, &snap.Rate); err != nil {
			return nil, errors.Wrap(err, op+": scan")
		}
		snap.ObservedAt = snap.ObservedAt.UTC()
		out = append(out, snap)
	}
	return out, errors.Wrap(rows.Err(), op)
}

func (s *PostgresPoolStorage) ExistsForDay(ctx context.Context, base, target string, dayStart, dayEnd time.Time) (bool, error) {
	const op = "storage.postgrespool.ExistsForDay"

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rate_snapshots
			WHERE base_currency = $1 AND target_currency = $2
			  AND observed_at >= $3 AND observed_at <= $4
		)
	`, strings.ToUpper(base), strings.ToUpper(target), dayStart.UTC(), dayEnd.UTC()).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	return exists, nil
}

// AcquireAdvisoryLock takes a session-level lock on a dedicated pool
// connection that stays checked out until ReleaseAdvisoryLock.
func (s *PostgresPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	const op = "storage.postgrespool.AcquireAdvisoryLock"

	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[key]; held {
		return false, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, errors.Wrap(err, op+": acquire conn")
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return false, errors.Wrap(err, op)
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	s.locks[key] = conn
	return true, nil
}

func (s *PostgresPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	const op = "storage.postgrespool.ReleaseAdvisoryLock"

	s.lockMu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.lockMu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok); err != nil {
		slog.Warn("advisory unlock failed, dropping connection", "key", key, "error", err)
		// The lock dies with the session.
		_ = conn.Conn().Close(ctx)
		return false, errors.Wrap(err, op)
	}
	return ok, nil
}

func (s *PostgresPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	const op = "storage.postgrespool.UpdateScheduledJob"

	job := newScheduledJob(name, started, dur, success, errMsg)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			last_duration_ms = EXCLUDED.last_duration_ms,
			last_success = EXCLUDED.last_success,
			last_error = EXCLUDED.last_error
	`, job.Name, job.LastRunAt, job.LastDurationMs, job.LastSuccess, job.LastError)
	return errors.Wrap(err, op)
}
