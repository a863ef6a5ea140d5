package exchangerateapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bher20/ratehub/pkg/providers"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
	"github.com/bher20/ratehub/pkg/providers/shared"
)

const (
	Key        = "exchangerateapi"
	DefaultURL = "https://v6.exchangerate-api.com/v6"
)

func init() {
	rateproviders.Register(rateproviders.Descriptor{
		Key:         Key,
		Name:        "ExchangeRate-API",
		Type:        providers.ProviderTypeDirectQuote,
		Priority:    20,
		RequiresKey: true,
		New:         func(o rateproviders.Options) rateproviders.RateSource { return New(o) },
	})
}

// latestResponse is the /latest/{base} payload.
type latestResponse struct {
	Result             string         `json:"result"`
	ErrorType          string         `json:"error-type"`
	BaseCode           string         `json:"base_code"`
	TimeLastUpdateUnix any            `json:"time_last_update_unix"`
	ConversionRates    map[string]any `json:"conversion_rates"`
}

// pairResponse is the /pair/{from}/{to}/{amount} payload.
type pairResponse struct {
	Result             string `json:"result"`
	ErrorType          string `json:"error-type"`
	TimeLastUpdateUnix any    `json:"time_last_update_unix"`
	ConversionRate     any    `json:"conversion_rate"`
	ConversionResult   any    `json:"conversion_result"`
}

// Provider reads direct quotes from ExchangeRate-API.
type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

func New(opts rateproviders.Options) *Provider {
	opts = opts.WithDefaults()
	p := &Provider{
		baseURL: opts.URL,
		apiKey:  opts.APIKey,
		client:  opts.HTTPClient,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if p.baseURL == "" {
		p.baseURL = DefaultURL
	}
	if p.client == nil {
		p.client = shared.NewHTTPClient(opts.Timeout, opts.SkipTLSVerify)
	}
	return p
}

func (p *Provider) Key() string                  { return Key }
func (p *Provider) Name() string                 { return "ExchangeRate-API" }
func (p *Provider) Type() providers.ProviderType { return providers.ProviderTypeDirectQuote }
func (p *Provider) LandingURL() string           { return p.baseURL }

func (p *Provider) FetchRates(ctx context.Context, base string, targets []string) ([]rateproviders.RateQuote, error) {
	base = shared.NormalizeCode(base)
	endpoint, err := url.JoinPath(p.baseURL, p.apiKey, "latest", base)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	var resp latestResponse
	if err := shared.GetJSON(ctx, p.client, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("%w: %s", providers.ErrUpstream, errorType(resp.ErrorType))
	}
	observedAt := p.observedAt(resp.TimeLastUpdateUnix)

	if len(targets) == 0 {
		for code := range resp.ConversionRates {
			targets = append(targets, code)
		}
		sort.Strings(targets)
	}

	quotes := make([]rateproviders.RateQuote, 0, len(targets))
	for _, target := range targets {
		target = shared.NormalizeCode(target)
		raw, ok := resp.ConversionRates[target]
		if !ok {
			continue
		}
		rate, ok := shared.AsFloat(raw)
		if !ok {
			p.logger.Debug("skipping non-numeric rate", "target", target)
			continue
		}
		if quote, ok := rateproviders.NewRateQuote(Key, base, target, rate, observedAt); ok {
			quotes = append(quotes, quote)
		}
	}
	return quotes, nil
}

// Convert uses the pair endpoint and takes its conversion_rate as given.
func (p *Provider) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*rateproviders.ConversionResult, error) {
	from, to = shared.NormalizeCode(from), shared.NormalizeCode(to)
	if from == to {
		return rateproviders.Identity(Key, from, amount, p.now()), nil
	}

	endpoint, err := url.JoinPath(p.baseURL, p.apiKey, "pair", from, to, amount.String())
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	var resp pairResponse
	if err := shared.GetJSON(ctx, p.client, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Result != "success" {
		if resp.ErrorType == "unsupported-code" {
			return nil, fmt.Errorf("%w: %s/%s", providers.ErrUnsupportedCurrency, from, to)
		}
		return nil, fmt.Errorf("%w: %s", providers.ErrUpstream, errorType(resp.ErrorType))
	}

	rate, err := shared.ExactDecimal(resp.ConversionRate)
	if err != nil || !rate.IsPositive() {
		return nil, fmt.Errorf("%w: conversion_rate %v", providers.ErrParseFailed, resp.ConversionRate)
	}

	result := rateproviders.NewConversionResult(Key, from, to, amount, rate, p.observedAt(resp.TimeLastUpdateUnix))
	if remote, err := shared.ExactDecimal(resp.ConversionResult); err == nil && !remote.Equal(result.ConvertedAmount) {
		p.logger.Debug("upstream conversion_result differs from amount*rate",
			"remote", remote.String(), "computed", result.ConvertedAmount.String())
	}
	return result, nil
}

func (p *Provider) observedAt(raw any) time.Time {
	if secs, ok := shared.AsFloat(raw); ok && secs > 0 {
		return time.Unix(int64(secs), 0).UTC()
	}
	return p.now().UTC()
}

func errorType(t string) string {
	if t == "" {
		return "unknown error"
	}
	return t
}
