package rates

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/bher20/ratehub/internal/storage"
	"github.com/bher20/ratehub/pkg/providers"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
)

type mockSource struct {
	mock.Mock
	key string
}

func newMockSource(key string) *mockSource { return &mockSource{key: key} }

func (m *mockSource) Key() string                  { return m.key }
func (m *mockSource) Name() string                 { return "Mock " + m.key }
func (m *mockSource) Type() providers.ProviderType { return providers.ProviderTypeDirectQuote }
func (m *mockSource) LandingURL() string           { return "https://" + m.key + ".example.com" }

func (m *mockSource) FetchRates(ctx context.Context, base string, targets []string) ([]rateproviders.RateQuote, error) {
	args := m.Called(ctx, base, targets)
	quotes, _ := args.Get(0).([]rateproviders.RateQuote)
	return quotes, args.Error(1)
}

func (m *mockSource) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*rateproviders.ConversionResult, error) {
	args := m.Called(ctx, from, to, amount)
	res, _ := args.Get(0).(*rateproviders.ConversionResult)
	return res, args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) SaveSnapshots(ctx context.Context, snaps []storage.HistorySnapshot) (int, error) {
	args := m.Called(ctx, snaps)
	return args.Int(0), args.Error(1)
}

func (m *mockHistory) QuerySnapshots(ctx context.Context, base, target string, from, to time.Time) ([]storage.HistorySnapshot, error) {
	args := m.Called(ctx, base, target, from, to)
	snaps, _ := args.Get(0).([]storage.HistorySnapshot)
	return snaps, args.Error(1)
}

func (m *mockHistory) ExistsForDay(ctx context.Context, base, target string, dayStart, dayEnd time.Time) (bool, error) {
	args := m.Called(ctx, base, target, dayStart, dayEnd)
	return args.Bool(0), args.Error(1)
}

// mapCache is a Cache that records the keys written to it.
type mapCache struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func quote(provider, target string, rate float64, at time.Time) rateproviders.RateQuote {
	q, _ := rateproviders.NewRateQuote(provider, "GHS", target, rate, at)
	return q
}
