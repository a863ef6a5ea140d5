package rateproviders

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bher20/ratehub/pkg/providers"
	"github.com/shopspring/decimal"
)

// RateSource is the interface that all exchange-rate providers must implement.
type RateSource interface {
	providers.Provider

	// FetchRates returns quotes for base against each target the provider
	// knows. Rows that fail to parse are skipped; an empty slice is not an error.
	FetchRates(ctx context.Context, base string, targets []string) ([]RateQuote, error)

	// Convert converts amount from one currency to another. Same-currency
	// conversions never reach the network.
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*ConversionResult, error)
}

// Options configures a single provider instance.
type Options struct {
	// URL overrides the provider's default endpoint.
	URL string
	// APIKey is the access token for keyed APIs.
	APIKey string
	// BaseCurrency is the currency a scraped page is quoted in.
	BaseCurrency string
	// PivotCurrency is the currency a pivot API prices everything against.
	PivotCurrency string
	// Timeout bounds every upstream request.
	Timeout       time.Duration
	SkipTLSVerify bool

	// HTTPClient replaces the client built from Timeout and SkipTLSVerify.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// WithDefaults fills zero-valued fields.
func (o Options) WithDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
