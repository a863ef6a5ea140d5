// Package cache provides the TTL key/value stores rate results are kept in.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a byte-valued cache with per-entry expiry. Expired entries read
// as absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver   string
	Addr     string
	Password string
	DB       int
	Prefix   string
	// CleanupInterval controls how often the memory store sweeps expired entries.
	CleanupInterval time.Duration
}

// Open constructs a Store based on the given configuration.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.CleanupInterval), nil
	case "redis":
		r := NewRedis(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}, cfg.Prefix, logger)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}
