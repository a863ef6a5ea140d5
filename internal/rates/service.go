package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/bher20/ratehub/internal/metrics"
	"github.com/bher20/ratehub/internal/storage"
	"github.com/bher20/ratehub/pkg/providers"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
	"github.com/bher20/ratehub/pkg/providers/shared"
)

const (
	DefaultBaseCurrency = "GHS"
	DefaultSuccessTTL   = 30 * time.Minute
	DefaultFailureTTL   = time.Minute

	// TrendWindow is how far back Trend looks.
	TrendWindow = 7 * 24 * time.Hour
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Config controls how the rates service behaves.
type Config struct {
	// BaseCurrency is the currency every batch quote is priced against.
	BaseCurrency string
	// DefaultTargets is used when a caller asks for current rates without
	// naming currencies, and by the scheduled refresh.
	DefaultTargets []string
	// SuccessTTL and FailureTTL control how long results stay cached. A
	// failure is cached briefly so an outage does not re-drive the whole
	// chain on every request.
	SuccessTTL time.Duration
	FailureTTL time.Duration
}

func (c Config) withDefaults() Config {
	c.BaseCurrency = shared.NormalizeCode(c.BaseCurrency)
	if c.BaseCurrency == "" {
		c.BaseCurrency = DefaultBaseCurrency
	}
	if c.SuccessTTL <= 0 {
		c.SuccessTTL = DefaultSuccessTTL
	}
	if c.FailureTTL <= 0 {
		c.FailureTTL = DefaultFailureTTL
	}
	return c
}

// Cache is the shared key/value store results are kept in.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ProviderInfo describes one link of the configured chain.
type ProviderInfo struct {
	Position int                    `json:"position"`
	Key      string                 `json:"key"`
	Name     string                 `json:"name"`
	Type     providers.ProviderType `json:"type"`
	URL      string                 `json:"url"`
}

// Service answers current, conversion and historical rate queries. It is
// safe for concurrent use.
type Service struct {
	cfg     Config
	sources []rateproviders.RateSource
	cache   Cache                // may be nil
	store   storage.HistoryStore // may be nil
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service that tries sources in the given order.
func NewService(cfg Config, sources []rateproviders.RateSource, cache Cache, store storage.HistoryStore, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg.withDefaults(),
		sources: sources,
		cache:   cache,
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "rates")
	return s
}

func (s *Service) BaseCurrency() string { return s.cfg.BaseCurrency }

// Providers lists the chain in the order it is tried.
func (s *Service) Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(s.sources))
	for i, src := range s.sources {
		out[i] = ProviderInfo{
			Position: i + 1,
			Key:      src.Key(),
			Name:     src.Name(),
			Type:     src.Type(),
			URL:      src.LandingURL(),
		}
	}
	return out
}

// GetCurrentRates returns base-currency quotes for targets, or for the
// default targets when none are given.
func (s *Service) GetCurrentRates(ctx context.Context, targets []string) ([]rateproviders.RateQuote, error) {
	norm, err := s.normalizeTargets(targets)
	if err != nil {
		return nil, err
	}
	set := strings.Join(norm, ",")
	if set == "" {
		set = "*"
	}
	key := fmt.Sprintf("rates:current:%s:%s", s.cfg.BaseCurrency, set)

	v, err, _ := s.group.Do(key, func() (any, error) {
		if entry, ok := s.readCache(ctx, "current", key); ok {
			if entry.failed() {
				return nil, entry.err()
			}
			return entry.Quotes, nil
		}
		return s.fetchCurrent(context.WithoutCancel(ctx), key, norm)
	})
	if err != nil {
		return nil, err
	}
	quotes, _ := v.([]rateproviders.RateQuote)
	if quotes == nil {
		return []rateproviders.RateQuote{}, nil
	}
	return slices.Clone(quotes), nil
}

func (s *Service) fetchCurrent(ctx context.Context, key string, targets []string) ([]rateproviders.RateQuote, error) {
	base := s.cfg.BaseCurrency
	attempts := make([]Attempt[[]rateproviders.RateQuote], 0, len(s.sources))
	for _, src := range s.sources {
		attempts = append(attempts, Attempt[[]rateproviders.RateQuote]{
			Provider: src.Key(),
			Call: func() ([]rateproviders.RateQuote, error) {
				return src.FetchRates(ctx, base, targets)
			},
		})
	}

	ok, quotes, combined := AttemptAll(s.logger, attempts)
	if !ok {
		metrics.ProviderChainExhaustedTotal.WithLabelValues("current").Inc()
		s.writeCache(ctx, key, cacheEntry{Status: statusFailed, Detail: combined}, s.cfg.FailureTTL)
		return nil, &ProviderFailedError{Detail: combined}
	}

	quotes = s.publishable(quotes)
	s.persist(ctx, quotes)
	s.writeCache(ctx, key, cacheEntry{Status: statusOK, Quotes: quotes}, s.cfg.SuccessTTL)
	return quotes, nil
}

// ConvertCurrency converts amount between two currencies using the first
// provider that can price the pair.
func (s *Service) ConvertCurrency(ctx context.Context, from, to string, amount float64) (*rateproviders.ConversionResult, error) {
	from, to = shared.NormalizeCode(from), shared.NormalizeCode(to)
	if !currencyCodeRe.MatchString(from) || !currencyCodeRe.MatchString(to) {
		return nil, badRequest("currency codes must be three letters, got %q and %q", from, to)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, badRequest("amount must be a finite number")
	}
	if amount < 0 {
		return nil, badRequest("amount must not be negative")
	}
	amt := decimal.NewFromFloat(amount)
	key := fmt.Sprintf("rates:convert:%s:%s:%s", from, to, amt.String())

	v, err, _ := s.group.Do(key, func() (any, error) {
		if entry, ok := s.readCache(ctx, "convert", key); ok {
			if entry.failed() {
				return nil, entry.err()
			}
			if entry.Conversion != nil {
				return entry.Conversion, nil
			}
		}
		return s.fetchConversion(context.WithoutCancel(ctx), key, from, to, amt)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*rateproviders.ConversionResult)
	return &res, nil
}

func (s *Service) fetchConversion(ctx context.Context, key, from, to string, amount decimal.Decimal) (*rateproviders.ConversionResult, error) {
	attempts := make([]Attempt[*rateproviders.ConversionResult], 0, len(s.sources))
	for _, src := range s.sources {
		attempts = append(attempts, Attempt[*rateproviders.ConversionResult]{
			Provider: src.Key(),
			Call: func() (*rateproviders.ConversionResult, error) {
				res, err := src.Convert(ctx, from, to, amount)
				if err == nil && res == nil {
					err = fmt.Errorf("%w: empty conversion result", providers.ErrParseFailed)
				}
				return res, err
			},
		})
	}

	ok, result, combined := AttemptAll(s.logger, attempts)
	if !ok {
		metrics.ProviderChainExhaustedTotal.WithLabelValues("convert").Inc()
		s.writeCache(ctx, key, cacheEntry{Status: statusFailed, Detail: combined}, s.cfg.FailureTTL)
		return nil, &ProviderFailedError{Detail: combined}
	}

	s.writeCache(ctx, key, cacheEntry{Status: statusOK, Conversion: result}, s.cfg.SuccessTTL)
	return result, nil
}

// GetHistoricalRates returns stored snapshots of base->currency observed
// between from and to (YYYY-MM-DD or RFC 3339), oldest first. When today is
// inside the range and nothing has been stored for it yet, current rates are
// fetched first; a failed backfill only gets logged.
func (s *Service) GetHistoricalRates(ctx context.Context, from, to, currency string) ([]storage.HistorySnapshot, error) {
	start, err := parseBound(from, false)
	if err != nil {
		return nil, badRequest("from: %v", err)
	}
	end, err := parseBound(to, true)
	if err != nil {
		return nil, badRequest("to: %v", err)
	}
	if start.After(end) {
		return nil, badRequest("from %s is after to %s", from, to)
	}
	currency = shared.NormalizeCode(currency)
	if !currencyCodeRe.MatchString(currency) {
		return nil, badRequest("currency must be a three letter code, got %q", currency)
	}
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}

	base := s.cfg.BaseCurrency
	now := s.now().UTC()
	if !now.Before(start) && !now.After(end) {
		s.backfillToday(ctx, base, currency, now)
	}

	snaps, err := s.store.QuerySnapshots(ctx, base, currency, start, end)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if snaps == nil {
		snaps = []storage.HistorySnapshot{}
	}
	return snaps, nil
}

func (s *Service) backfillToday(ctx context.Context, base, currency string, now time.Time) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	exists, err := s.store.ExistsForDay(ctx, base, currency, dayStart, dayEnd)
	if err != nil {
		s.logger.Warn("history lookup for today failed, skipping backfill", "currency", currency, "error", err)
		return
	}
	if exists {
		return
	}

	if _, err := s.GetCurrentRates(ctx, []string{currency}); err != nil {
		metrics.BackfillsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("history backfill failed", "currency", currency, "error", err)
		return
	}
	metrics.BackfillsTotal.WithLabelValues("ok").Inc()
}

// Trend returns the trailing week of snapshots for currency.
func (s *Service) Trend(ctx context.Context, currency string) ([]storage.HistorySnapshot, error) {
	today := s.now().UTC()
	return s.GetHistoricalRates(ctx,
		today.Add(-TrendWindow).Format(time.DateOnly),
		today.Format(time.DateOnly),
		currency)
}

// Refresh fetches the default targets, repopulating cache and history.
func (s *Service) Refresh(ctx context.Context) error {
	_, err := s.GetCurrentRates(ctx, nil)
	return err
}

func (s *Service) normalizeTargets(targets []string) ([]string, error) {
	if len(targets) == 0 {
		targets = s.cfg.DefaultTargets
	}
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		code := shared.NormalizeCode(t)
		if code == "" || seen[code] {
			continue
		}
		if !currencyCodeRe.MatchString(code) {
			return nil, badRequest("invalid currency code %q", t)
		}
		seen[code] = true
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// publishable drops quotes that must not leave the service and fills in
// defaults providers may have left out.
func (s *Service) publishable(quotes []rateproviders.RateQuote) []rateproviders.RateQuote {
	out := make([]rateproviders.RateQuote, 0, len(quotes))
	for _, q := range quotes {
		if !shared.UsableRate(q.Rate) {
			continue
		}
		q.BaseCurrency = shared.NormalizeCode(q.BaseCurrency)
		q.TargetCurrency = shared.NormalizeCode(q.TargetCurrency)
		if q.ObservedAt.IsZero() {
			q.ObservedAt = s.now().UTC()
		}
		out = append(out, q)
	}
	return out
}

func (s *Service) persist(ctx context.Context, quotes []rateproviders.RateQuote) {
	if s.store == nil || len(quotes) == 0 {
		return
	}
	snaps := make([]storage.HistorySnapshot, len(quotes))
	for i, q := range quotes {
		snaps[i] = storage.HistorySnapshot{
			BaseCurrency:   q.BaseCurrency,
			TargetCurrency: q.TargetCurrency,
			ProviderID:     q.ProviderID,
			ObservedAt:     q.ObservedAt,
			Rate:           q.Rate,
		}
	}
	n, err := s.store.SaveSnapshots(ctx, snaps)
	if err != nil {
		metrics.HistoryPersistFailuresTotal.Inc()
		s.logger.Warn("persist rate snapshots failed", "count", len(snaps), "error", err)
		return
	}
	metrics.HistorySnapshotsInsertedTotal.Add(float64(n))
}

func parseBound(value string, endOfRange bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		if endOfRange {
			return t.Add(24*time.Hour - time.Nanosecond), nil
		}
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// cacheEntry is what gets stored under a cache key. A failed entry is
// replayed as a ProviderFailedError, never as data.
type cacheEntry struct {
	Status     string                          `json:"status"`
	Quotes     []rateproviders.RateQuote       `json:"quotes,omitempty"`
	Conversion *rateproviders.ConversionResult `json:"conversion,omitempty"`
	Detail     string                          `json:"detail,omitempty"`
}

func (e cacheEntry) failed() bool { return e.Status == statusFailed }

func (e cacheEntry) err() error {
	return &ProviderFailedError{Detail: e.Detail, Cached: true}
}

func (s *Service) readCache(ctx context.Context, op, key string) (cacheEntry, bool) {
	if s.cache == nil {
		return cacheEntry{}, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("rate cache read failed", "key", key, "error", err)
	}
	if err != nil || !ok {
		metrics.RecordCacheLookup(op, "miss")
		return cacheEntry{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn("rate cache entry undecodable", "key", key, "error", err)
		metrics.RecordCacheLookup(op, "miss")
		return cacheEntry{}, false
	}
	if entry.failed() {
		metrics.RecordCacheLookup(op, "failed")
	} else {
		metrics.RecordCacheLookup(op, "hit")
	}
	return entry, true
}

func (s *Service) writeCache(ctx context.Context, key string, entry cacheEntry, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("rate cache entry unencodable", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Warn("rate cache write failed", "key", key, "error", err)
	}
}
