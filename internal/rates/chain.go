package rates

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bher20/ratehub/internal/metrics"
)

// Attempt is one provider call in a chain.
type Attempt[T any] struct {
	Provider string
	Call     func() (T, error)
}

// AttemptAll runs attempts in order and returns the result of the first
// one that does not error, without calling the rest. A successful empty
// result still ends the chain. When every attempt fails, combined holds
// each "provider: error" joined by " | ".
func AttemptAll[T any](logger *slog.Logger, attempts []Attempt[T]) (ok bool, result T, combined string) {
	if len(attempts) == 0 {
		return false, result, ErrNoProviders.Error()
	}

	failures := make([]string, 0, len(attempts))
	for _, a := range attempts {
		res, err := a.Call()
		metrics.RecordProviderAttempt(a.Provider, err)
		if err == nil {
			return true, res, ""
		}
		if logger != nil {
			logger.Warn("rate provider attempt failed", "provider", a.Provider, "error", err)
		}
		failures = append(failures, fmt.Sprintf("%s: %v", a.Provider, err))
	}
	return false, result, strings.Join(failures, " | ")
}
