package bog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bher20/ratehub/pkg/providers"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
	"github.com/bher20/ratehub/pkg/providers/shared"
)

const (
	Key = "bog"

	DefaultURL  = "https://www.bog.gov.gh/treasury-and-the-markets/daily-interbank-fx-rates/"
	DefaultBase = "GHS"

	// TableTTL is how long a parsed rates page is reused before refetching.
	TableTTL = 30 * time.Minute
)

func init() {
	rateproviders.Register(rateproviders.Descriptor{
		Key:      Key,
		Name:     "Bank of Ghana",
		Type:     providers.ProviderTypeScraped,
		Priority: 10,
		New:      func(o rateproviders.Options) rateproviders.RateSource { return New(o) },
	})
}

// Provider scrapes the bank's published buy/sell table.
type Provider struct {
	url    string
	base   string
	client *http.Client
	rules  []LabelRule
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	table     map[string]BuySellQuote
	fetchedAt time.Time
}

// New creates a Provider. The parsed table cache lives on the instance.
func New(opts rateproviders.Options) *Provider {
	opts = opts.WithDefaults()
	p := &Provider{
		url:    opts.URL,
		base:   shared.NormalizeCode(opts.BaseCurrency),
		client: opts.HTTPClient,
		rules:  DefaultLabelRules,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if p.url == "" {
		p.url = DefaultURL
	}
	if p.base == "" {
		p.base = DefaultBase
	}
	if p.client == nil {
		p.client = shared.NewHTTPClient(opts.Timeout, opts.SkipTLSVerify)
	}
	return p
}

// WithLabelRules replaces the label table.
func (p *Provider) WithLabelRules(rules []LabelRule) *Provider {
	p.rules = rules
	return p
}

func (p *Provider) Key() string                  { return Key }
func (p *Provider) Name() string                 { return "Bank of Ghana" }
func (p *Provider) Type() providers.ProviderType { return providers.ProviderTypeScraped }
func (p *Provider) LandingURL() string           { return p.url }
func (p *Provider) BaseCurrency() string         { return p.base }

// FetchRates returns 1/sell for every requested target the page lists.
func (p *Provider) FetchRates(ctx context.Context, base string, targets []string) ([]rateproviders.RateQuote, error) {
	base = shared.NormalizeCode(base)
	if base != p.base {
		return nil, fmt.Errorf("%w: %s pages are quoted in %s, not %s", providers.ErrUnsupportedCurrency, Key, p.base, base)
	}

	table, observedAt, err := p.loadTable(ctx)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		targets = make([]string, 0, len(table))
		for code := range table {
			targets = append(targets, code)
		}
		sort.Strings(targets)
	}

	quotes := make([]rateproviders.RateQuote, 0, len(targets))
	for _, target := range targets {
		target = shared.NormalizeCode(target)
		rate := 1.0
		if target != p.base {
			q, ok := table[target]
			if !ok {
				continue
			}
			rate = 1 / q.Sell
		}
		if quote, ok := rateproviders.NewRateQuote(Key, p.base, target, rate, observedAt); ok {
			quotes = append(quotes, quote)
		}
	}
	return quotes, nil
}

// Convert applies the bank's spread according to the direction of the trade.
func (p *Provider) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*rateproviders.ConversionResult, error) {
	from, to = shared.NormalizeCode(from), shared.NormalizeCode(to)
	if from == to {
		return rateproviders.Identity(Key, from, amount, p.now()), nil
	}

	table, observedAt, err := p.loadTable(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := p.rate(table, from, to)
	if err != nil {
		return nil, err
	}
	return rateproviders.NewConversionResult(Key, from, to, amount, rate, observedAt), nil
}

func (p *Provider) rate(table map[string]BuySellQuote, from, to string) (decimal.Decimal, error) {
	lookup := func(code string) (BuySellQuote, error) {
		q, ok := table[code]
		if !ok {
			return BuySellQuote{}, fmt.Errorf("%w: %s not listed by %s", providers.ErrUnsupportedCurrency, code, Key)
		}
		return q, nil
	}
	one := decimal.NewFromInt(1)

	switch {
	case from == p.base:
		q, err := lookup(to)
		if err != nil {
			return decimal.Zero, err
		}
		return one.Div(decimal.NewFromFloat(q.Sell)), nil
	case to == p.base:
		q, err := lookup(from)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(q.Buy), nil
	default:
		qf, err := lookup(from)
		if err != nil {
			return decimal.Zero, err
		}
		qt, err := lookup(to)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(qf.Buy).Div(decimal.NewFromFloat(qt.Sell)), nil
	}
}

// loadTable returns the cached table while it is younger than TableTTL.
// The mutex is held across the fetch so concurrent callers share one
// download; the client timeout bounds how long they wait.
func (p *Provider) loadTable(ctx context.Context) (map[string]BuySellQuote, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.table != nil && now.Sub(p.fetchedAt) < TableTTL {
		return p.table, p.fetchedAt, nil
	}

	body, err := shared.Fetch(ctx, p.client, p.url)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fetch rates page: %w", err)
	}
	quotes, layout, err := ParseRatesFromHTML(string(body), p.rules)
	if err != nil {
		return nil, time.Time{}, err
	}

	table := make(map[string]BuySellQuote, len(quotes))
	for _, q := range quotes {
		table[q.CurrencyCode] = q
	}
	if len(table) == 0 {
		p.logger.Warn("rates page contained no parseable rows", "url", p.url)
		return table, now, nil
	}

	p.logger.Debug("rates page parsed", "layout", layout.String(), "currencies", len(table))
	p.table = table
	p.fetchedAt = now
	return table, now, nil
}
