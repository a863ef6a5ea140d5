package rateproviders

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bher20/ratehub/pkg/providers"
)

// Descriptor describes a registered rate provider.
type Descriptor struct {
	Key  string
	Name string
	Type providers.ProviderType
	// Priority orders the default chain; lower runs first.
	Priority int
	// RequiresKey marks providers that cannot run without Options.APIKey.
	RequiresKey bool
	New         func(Options) RateSource
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Descriptor)
)

// Register registers a rate provider.
func Register(d Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if d.New == nil {
		panic("rateproviders: Register constructor is nil for " + d.Key)
	}
	if _, dup := registry[d.Key]; dup {
		panic("rateproviders: Register called twice for provider " + d.Key)
	}
	registry[d.Key] = d
}

// Get returns a provider descriptor by key.
func Get(key string) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[key]
	return d, ok
}

// List returns registered provider keys in priority order.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	descs := make([]Descriptor, 0, len(registry))
	for _, d := range registry {
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool {
		if descs[i].Priority != descs[j].Priority {
			return descs[i].Priority < descs[j].Priority
		}
		return descs[i].Key < descs[j].Key
	})
	keys := make([]string, len(descs))
	for i, d := range descs {
		keys[i] = d.Key
	}
	return keys
}

// Build constructs the provider chain. When order is empty every registered
// provider is used in priority order; otherwise order is taken verbatim.
// Providers that need an API key and have none are skipped.
func Build(settings map[string]Options, order []string, logger *slog.Logger) ([]RateSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(order) == 0 {
		order = List()
	}

	var out []RateSource
	for _, key := range order {
		d, ok := Get(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", providers.ErrProviderNotFound, key)
		}
		opts := settings[key]
		if d.RequiresKey && opts.APIKey == "" {
			logger.Warn("rate provider skipped: no api key configured", "provider", key)
			continue
		}
		if opts.Logger == nil {
			opts.Logger = logger.With("provider", key)
		}
		out = append(out, d.New(opts))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rate providers available from %v", order)
	}
	return out, nil
}
