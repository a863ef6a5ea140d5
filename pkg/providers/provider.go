package providers

import "errors"

// ProviderType describes how a rate provider obtains its quotes.
type ProviderType string

const (
	ProviderTypeScraped     ProviderType = "scraped"
	ProviderTypeDirectQuote ProviderType = "direct"
	ProviderTypePivot       ProviderType = "pivot"
)

// Provider is the base interface for all rate providers.
type Provider interface {
	// Key returns the unique identifier for the provider (e.g., "bog", "fixer").
	Key() string
	// Name returns the human-readable name of the provider.
	Name() string
	// Type returns the type of the provider.
	Type() ProviderType
	// LandingURL returns the page or API root the provider reads from.
	LandingURL() string
}

// Common errors shared across providers.
var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrParseFailed         = errors.New("failed to parse rates")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrUpstream            = errors.New("upstream error")
)
