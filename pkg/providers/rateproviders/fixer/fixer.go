package fixer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bher20/ratehub/pkg/providers"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
	"github.com/bher20/ratehub/pkg/providers/shared"
)

const (
	Key          = "fixer"
	DefaultURL   = "https://data.fixer.io/api"
	DefaultPivot = "EUR"
)

func init() {
	rateproviders.Register(rateproviders.Descriptor{
		Key:         Key,
		Name:        "Fixer",
		Type:        providers.ProviderTypePivot,
		Priority:    30,
		RequiresKey: true,
		New:         func(o rateproviders.Options) rateproviders.RateSource { return New(o) },
	})
}

type apiError struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info"`
}

type latestResponse struct {
	Success   bool           `json:"success"`
	Timestamp any            `json:"timestamp"`
	Base      string         `json:"base"`
	Rates     map[string]any `json:"rates"`
	Error     *apiError      `json:"error"`
}

// Provider reads pivot-relative rates from a Fixer-compatible API. Every
// upstream rate is the price of one pivot unit, so other pairs are derived by
// dividing two pivot legs.
type Provider struct {
	baseURL string
	apiKey  string
	pivot   string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

func New(opts rateproviders.Options) *Provider {
	opts = opts.WithDefaults()
	p := &Provider{
		baseURL: opts.URL,
		apiKey:  opts.APIKey,
		pivot:   shared.NormalizeCode(opts.PivotCurrency),
		client:  opts.HTTPClient,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if p.baseURL == "" {
		p.baseURL = DefaultURL
	}
	if p.pivot == "" {
		p.pivot = DefaultPivot
	}
	if p.client == nil {
		p.client = shared.NewHTTPClient(opts.Timeout, opts.SkipTLSVerify)
	}
	return p
}

func (p *Provider) Key() string                  { return Key }
func (p *Provider) Name() string                 { return "Fixer" }
func (p *Provider) Type() providers.ProviderType { return providers.ProviderTypePivot }
func (p *Provider) LandingURL() string           { return p.baseURL }

// FetchRates computes base->target as pivotToTarget / pivotToBase.
func (p *Provider) FetchRates(ctx context.Context, base string, targets []string) ([]rateproviders.RateQuote, error) {
	base = shared.NormalizeCode(base)
	norm := make([]string, 0, len(targets))
	for _, t := range targets {
		norm = append(norm, shared.NormalizeCode(t))
	}

	var symbols []string
	if len(norm) > 0 {
		symbols = append(append(symbols, norm...), base)
	}
	legs, observedAt, err := p.pivotRates(ctx, symbols)
	if err != nil {
		return nil, err
	}

	pivotToBase, ok := legs[base]
	if !ok || !pivotToBase.IsPositive() {
		return nil, fmt.Errorf("%w: no %s leg for base %s", providers.ErrUnsupportedCurrency, p.pivot, base)
	}

	if len(norm) == 0 {
		for code := range legs {
			norm = append(norm, code)
		}
		sort.Strings(norm)
	}

	quotes := make([]rateproviders.RateQuote, 0, len(norm))
	for _, target := range norm {
		pivotToTarget, ok := legs[target]
		if !ok {
			continue
		}
		rate := pivotToTarget.Div(pivotToBase).InexactFloat64()
		if quote, ok := rateproviders.NewRateQuote(Key, base, target, rate, observedAt); ok {
			quotes = append(quotes, quote)
		}
	}
	return quotes, nil
}

// Convert derives the pair rate as pivotToTo / pivotToFrom.
func (p *Provider) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*rateproviders.ConversionResult, error) {
	from, to = shared.NormalizeCode(from), shared.NormalizeCode(to)
	if from == to {
		return rateproviders.Identity(Key, from, amount, p.now()), nil
	}

	legs, observedAt, err := p.pivotRates(ctx, []string{from, to})
	if err != nil {
		return nil, err
	}
	pivotToFrom, okFrom := legs[from]
	pivotToTo, okTo := legs[to]
	if !okFrom || !pivotToFrom.IsPositive() {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedCurrency, from)
	}
	if !okTo || !pivotToTo.IsPositive() {
		return nil, fmt.Errorf("%w: %s", providers.ErrUnsupportedCurrency, to)
	}

	rate := pivotToTo.Div(pivotToFrom)
	return rateproviders.NewConversionResult(Key, from, to, amount, rate, observedAt), nil
}

// pivotRates returns pivot->code legs, including the implicit pivot->pivot = 1.
func (p *Provider) pivotRates(ctx context.Context, symbols []string) (map[string]decimal.Decimal, time.Time, error) {
	q := url.Values{}
	q.Set("access_key", p.apiKey)
	if p.pivot != DefaultPivot {
		q.Set("base", p.pivot)
	}
	if wanted := p.symbols(symbols); wanted != "" {
		q.Set("symbols", wanted)
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/latest?" + q.Encode()

	var resp latestResponse
	if err := shared.GetJSON(ctx, p.client, endpoint, &resp); err != nil {
		return nil, time.Time{}, err
	}
	if !resp.Success {
		if resp.Error != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %d %s %s", providers.ErrUpstream, resp.Error.Code, resp.Error.Type, resp.Error.Info)
		}
		return nil, time.Time{}, fmt.Errorf("%w: success=false", providers.ErrUpstream)
	}

	legs := make(map[string]decimal.Decimal, len(resp.Rates)+1)
	for code, raw := range resp.Rates {
		v, err := shared.ExactDecimal(raw)
		if err != nil {
			p.logger.Debug("skipping non-numeric rate", "currency", code)
			continue
		}
		legs[shared.NormalizeCode(code)] = v
	}
	legs[p.pivot] = decimal.NewFromInt(1)

	observedAt := p.now().UTC()
	if secs, ok := shared.AsFloat(resp.Timestamp); ok && secs > 0 {
		observedAt = time.Unix(int64(secs), 0).UTC()
	}
	return legs, observedAt, nil
}

func (p *Provider) symbols(codes []string) string {
	seen := make(map[string]bool, len(codes))
	var out []string
	for _, c := range codes {
		if c == "" || c == p.pivot || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
