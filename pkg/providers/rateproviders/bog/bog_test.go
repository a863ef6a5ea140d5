package bog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ratehub/pkg/providers"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
)

const sixColumnPage = `<html><body>
<table>
  <tr><th>Date</th><th>Currency</th><th>Pair</th><th>Buying</th><th>Selling</th><th>Mid</th></tr>
  <tr><td>2026-10-19</td><td>US Dollar</td><td>USD/GHS</td><td>12.10</td><td>12.40</td><td>12.25</td></tr>
  <tr><td>2026-10-19</td><td>Euro</td><td>EUR/GHS</td><td>n/a</td><td>14.02</td><td>-</td></tr>
  <tr><td>2026-10-19</td><td>Mystery Coin</td><td>XYZ/GHS</td><td>1.00</td><td>1.10</td><td>1.05</td></tr>
</table>
</body></html>`

const fallbackPage = `<html><body>
<table>
  <tr><td>2026-10-19</td><td>Unknown</td><td>???</td><td>x</td><td>y</td><td>z</td></tr>
</table>
<table>
  <tr><th>Currency</th><th>Buying</th><th>Selling</th></tr>
  <tr><td>Pound Sterling</td><td>16.20</td><td>16.50</td></tr>
</table>
</body></html>`

const spreadPage = `<html><body><table>
  <tr><td>Mon</td><td>US Dollar</td><td>USD/GHS</td><td>12.10</td><td>12.40</td><td>12.25</td></tr>
  <tr><td>Mon</td><td>Euro</td><td>EUR/GHS</td><td>13.80</td><td>14.00</td><td>13.90</td></tr>
</table></body></html>`

type pageServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newPageServer(t *testing.T, body string) *pageServer {
	t.Helper()
	ps := &pageServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ps.Close)
	return ps
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newProvider(url string, c *clock) *Provider {
	return New(rateproviders.Options{URL: url, Now: c.Now})
}

func TestFetchRates_SixColumnSingleValidRow(t *testing.T) {
	srv := newPageServer(t, sixColumnPage)
	p := newProvider(srv.URL, &clock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)})

	quotes, err := p.FetchRates(context.Background(), "GHS", []string{"USD"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "USD", quotes[0].TargetCurrency)
	assert.Equal(t, "GHS", quotes[0].BaseCurrency)
	assert.Equal(t, 1/12.40, quotes[0].Rate)
	assert.Equal(t, Key, quotes[0].ProviderID)
}

func TestParseRatesFromHTML_FallsBackToThreeColumns(t *testing.T) {
	quotes, layout, err := ParseRatesFromHTML(fallbackPage, DefaultLabelRules)
	require.NoError(t, err)
	assert.Equal(t, LayoutThreeColumn, layout)
	require.Len(t, quotes, 1)
	assert.Equal(t, BuySellQuote{CurrencyCode: "GBP", Buy: 16.20, Sell: 16.50}, quotes[0])
}

func TestFetchRates_UsesFallbackLayout(t *testing.T) {
	srv := newPageServer(t, fallbackPage)
	p := newProvider(srv.URL, &clock{t: time.Now()})

	quotes, err := p.FetchRates(context.Background(), "ghs", []string{"gbp", "usd"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "GBP", quotes[0].TargetCurrency)
	assert.Equal(t, 1/16.50, quotes[0].Rate)
}

func TestConvert_DirectionUsesSpread(t *testing.T) {
	srv := newPageServer(t, spreadPage)
	p := newProvider(srv.URL, &clock{t: time.Now()})
	ctx := context.Background()
	amount := decimal.NewFromInt(250)
	one := decimal.NewFromInt(1)

	toForeign, err := p.Convert(ctx, "GHS", "USD", amount)
	require.NoError(t, err)
	assert.True(t, toForeign.Rate.Equal(one.Div(decimal.NewFromFloat(12.40))), "base->foreign uses 1/sell, got %s", toForeign.Rate)

	toBase, err := p.Convert(ctx, "USD", "GHS", amount)
	require.NoError(t, err)
	assert.True(t, toBase.Rate.Equal(decimal.NewFromFloat(12.10)), "foreign->base uses buy, got %s", toBase.Rate)

	cross, err := p.Convert(ctx, "USD", "EUR", amount)
	require.NoError(t, err)
	want := decimal.NewFromFloat(12.10).Div(decimal.NewFromFloat(14.00))
	assert.True(t, cross.Rate.Equal(want), "foreign->foreign uses buy(from)/sell(to), got %s", cross.Rate)

	for _, res := range []*rateproviders.ConversionResult{toForeign, toBase, cross} {
		assert.True(t, res.ConvertedAmount.Equal(res.Amount.Mul(res.Rate)))
		assert.Equal(t, Key, res.ProviderID)
	}
}

func TestConvert_SameCurrencySkipsNetwork(t *testing.T) {
	srv := newPageServer(t, spreadPage)
	p := newProvider(srv.URL, &clock{t: time.Now()})

	for _, code := range []string{"GHS", "USD", "JPY"} {
		res, err := p.Convert(context.Background(), code, code, decimal.RequireFromString("42.5"))
		require.NoError(t, err)
		assert.True(t, res.Rate.Equal(decimal.NewFromInt(1)))
		assert.True(t, res.ConvertedAmount.Equal(decimal.RequireFromString("42.5")))
	}
	assert.Zero(t, srv.hits.Load())
}

func TestConvert_UnsupportedCurrency(t *testing.T) {
	srv := newPageServer(t, spreadPage)
	p := newProvider(srv.URL, &clock{t: time.Now()})

	_, err := p.Convert(context.Background(), "GHS", "JPY", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, providers.ErrUnsupportedCurrency)
}

func TestFetchRates_RejectsForeignBase(t *testing.T) {
	srv := newPageServer(t, spreadPage)
	p := newProvider(srv.URL, &clock{t: time.Now()})

	_, err := p.FetchRates(context.Background(), "USD", []string{"EUR"})
	assert.ErrorIs(t, err, providers.ErrUnsupportedCurrency)
	assert.Zero(t, srv.hits.Load())
}

func TestTableCacheExpiresAfterTTL(t *testing.T) {
	srv := newPageServer(t, spreadPage)
	c := &clock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	p := newProvider(srv.URL, c)
	ctx := context.Background()

	_, err := p.FetchRates(ctx, "GHS", []string{"USD"})
	require.NoError(t, err)
	_, err = p.Convert(ctx, "USD", "GHS", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv.hits.Load())

	c.t = c.t.Add(TableTTL + time.Second)
	_, err = p.FetchRates(ctx, "GHS", []string{"USD"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestFetchRates_InstancesDoNotShareTables(t *testing.T) {
	srv := newPageServer(t, spreadPage)
	c := &clock{t: time.Now()}

	_, err := newProvider(srv.URL, c).FetchRates(context.Background(), "GHS", nil)
	require.NoError(t, err)
	_, err = newProvider(srv.URL, c).FetchRates(context.Background(), "GHS", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestFetchRates_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newProvider(srv.URL, &clock{t: time.Now()}).FetchRates(context.Background(), "GHS", []string{"USD"})
	assert.ErrorContains(t, err, "503")
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"US Dollar":          "USD",
		"USD":                "USD",
		"Canadian Dollar":    "CAD",
		"Australian dollar":  "AUD",
		"Euro":               "EUR",
		"Pound Sterling":     "GBP",
		"British Pound":      "GBP",
		"Pound":              "GBP",
		"Swiss Franc":        "CHF",
		"Japanese Yen":       "JPY",
		"Chinese Yuan":       "CNY",
		"CFA Franc":          "XOF",
		"Nigerian Naira":     "NGN",
		"South African Rand": "ZAR",
	}
	for label, want := range cases {
		got, ok := NormalizeLabel(DefaultLabelRules, label)
		if assert.True(t, ok, label) {
			assert.Equal(t, want, got, label)
		}
	}

	for _, label := range []string{"Mystery Coin", "Egyptian Pound", "Lebanese Pound"} {
		_, ok := NormalizeLabel(DefaultLabelRules, label)
		assert.False(t, ok, label)
	}
}

func TestParseRatesFromHTML_RejectsNegativeLegs(t *testing.T) {
	const page = `<html><body><table>
  <tr><td>2026-10-19</td><td>US Dollar</td><td>USD/GHS</td><td>-12.10</td><td>-12.40</td><td>-12.25</td></tr>
  <tr><td>2026-10-19</td><td>Euro</td><td>EUR/GHS</td><td>13.80</td><td>-14.00</td><td>13.90</td></tr>
</table></body></html>`

	quotes, layout, err := ParseRatesFromHTML(page, DefaultLabelRules)
	require.NoError(t, err)
	assert.Equal(t, LayoutNone, layout)
	assert.Empty(t, quotes)
}
