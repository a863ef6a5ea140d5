package rates

import (
	"errors"
	"fmt"
	"strings"
)

// Stable machine-readable error kinds surfaced to API clients.
const (
	KindProviderFailed = "RATE_PROVIDER_FAILED"
	KindBadRequest     = "BAD_REQUEST"
)

var (
	// ErrBadRequest marks validation failures. They are raised before any
	// provider or store is consulted.
	ErrBadRequest = errors.New("bad request")

	ErrNoProviders        = errors.New("no rate providers configured")
	ErrHistoryUnavailable = errors.New("history store not configured")
)

// ProviderFailedError is returned when every provider in the chain failed.
type ProviderFailedError struct {
	// Detail is the " | "-joined list of per-provider failures.
	Detail string
	// Cached is set when the failure was replayed from the cache.
	Cached bool
}

func (e *ProviderFailedError) Error() string {
	return "all rate providers failed: " + e.Detail
}

func (e *ProviderFailedError) Kind() string { return KindProviderFailed }

// Failures splits Detail back into one entry per provider.
func (e *ProviderFailedError) Failures() []string {
	if e.Detail == "" {
		return nil
	}
	return strings.Split(e.Detail, " | ")
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// ErrorKind maps an engine error to its API kind, or "" for internal errors.
func ErrorKind(err error) string {
	var pf *ProviderFailedError
	switch {
	case errors.As(err, &pf):
		return KindProviderFailed
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	default:
		return ""
	}
}
