package rateproviders

import (
	"time"

	"github.com/bher20/ratehub/pkg/providers/shared"
	"github.com/shopspring/decimal"
)

// RateQuote is the price of one unit of BaseCurrency in TargetCurrency.
type RateQuote struct {
	BaseCurrency   string    `json:"base_currency"`
	TargetCurrency string    `json:"target_currency"`
	Rate           float64   `json:"rate"`
	ProviderID     string    `json:"provider"`
	ObservedAt     time.Time `json:"observed_at"`
}

// NewRateQuote builds a quote and reports false when rate is not a usable
// positive finite number.
func NewRateQuote(provider, base, target string, rate float64, observedAt time.Time) (RateQuote, bool) {
	if !shared.UsableRate(rate) {
		return RateQuote{}, false
	}
	return RateQuote{
		BaseCurrency:   shared.NormalizeCode(base),
		TargetCurrency: shared.NormalizeCode(target),
		Rate:           rate,
		ProviderID:     provider,
		ObservedAt:     observedAt.UTC(),
	}, true
}

// ConversionResult is the outcome of converting an amount between two
// currencies. ConvertedAmount is always Amount * Rate.
type ConversionResult struct {
	FromCurrency    string          `json:"from_currency"`
	ToCurrency      string          `json:"to_currency"`
	Amount          decimal.Decimal `json:"amount"`
	Rate            decimal.Decimal `json:"rate"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	ProviderID      string          `json:"provider"`
	ObservedAt      time.Time       `json:"observed_at"`
}

// NewConversionResult is the only constructor providers use, so the
// converted amount has a single computation path.
func NewConversionResult(provider, from, to string, amount, rate decimal.Decimal, observedAt time.Time) *ConversionResult {
	return &ConversionResult{
		FromCurrency:    shared.NormalizeCode(from),
		ToCurrency:      shared.NormalizeCode(to),
		Amount:          amount,
		Rate:            rate,
		ConvertedAmount: amount.Mul(rate),
		ProviderID:      provider,
		ObservedAt:      observedAt.UTC(),
	}
}

// Identity returns the rate-1 result for a same-currency conversion.
func Identity(provider, code string, amount decimal.Decimal, observedAt time.Time) *ConversionResult {
	return NewConversionResult(provider, code, code, amount, decimal.NewFromInt(1), observedAt)
}
