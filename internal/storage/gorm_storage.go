package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 200

// GormStorage backs the history store with sqlite or postgres through GORM.
type GormStorage struct {
	db *gorm.DB

	// Postgres advisory locks are session scoped, so each held lock pins
	// the connection it was taken on until release.
	lockMu sync.Mutex
	locks  map[int64]*sql.Conn
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	switch driver {
	case "postgres":
		gormDialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "ratehub.db"
		}
		gormDialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" && strings.Contains(dsn, ":memory:") {
		// Every new connection would see a fresh empty in-memory database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &GormStorage{db: db, locks: make(map[int64]*sql.Conn)}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&HistorySnapshot{},
		&ScheduledJob{},
	)
}

// Rate snapshots

func (s *GormStorage) SaveSnapshots(ctx context.Context, snaps []HistorySnapshot) (int, error) {
	batch := prepareSnapshots(snaps)
	if len(batch) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "base_currency"},
			{Name: "target_currency"},
			{Name: "provider_id"},
			{Name: "observed_at"},
		},
		DoNothing: true,
	}).CreateInBatches(&batch, insertBatchSize)
	return int(result.RowsAffected), result.Error
}

func (s *GormStorage) QuerySnapshots(ctx context.Context, base, target string, from, to time.Time) ([]HistorySnapshot, error) {
	var snaps []HistorySnapshot
	result := s.db.WithContext(ctx).
		Where("base_currency = ? AND target_currency = ? AND observed_at >= ? AND observed_at <= ?",
			strings.ToUpper(base), strings.ToUpper(target), from.UTC(), to.UTC()).
		Order("observed_at asc, provider_id asc").
		Find(&snaps)
	return snaps, result.Error
}

func (s *GormStorage) ExistsForDay(ctx context.Context, base, target string, dayStart, dayEnd time.Time) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&HistorySnapshot{}).
		Where("base_currency = ? AND target_currency = ? AND observed_at >= ? AND observed_at <= ?",
			strings.ToUpper(base), strings.ToUpper(target), dayStart.UTC(), dayEnd.UTC()).
		Limit(1).
		Count(&count)
	return count > 0, result.Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	s.lockMu.Lock()
	for key, conn := range s.locks {
		_ = conn.Close()
		delete(s.locks, key)
	}
	s.lockMu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Scheduled Jobs & Locking

func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() != "postgres" {
		// SQLite deployments run a single instance.
		return true, nil
	}

	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[key]; held {
		return false, nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		_ = conn.Close()
		return false, err
	}
	if !ok {
		_ = conn.Close()
		return false, nil
	}
	s.locks[key] = conn
	return true, nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() != "postgres" {
		return true, nil
	}

	s.lockMu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.lockMu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Close()

	var ok bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	return ok, err
}

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	job := newScheduledJob(name, started, dur, success, errMsg)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}
