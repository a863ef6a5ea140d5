// Package api exposes the rates service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bher20/ratehub/internal/auth"
	"github.com/bher20/ratehub/internal/rates"
	"github.com/bher20/ratehub/internal/storage"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
)

// RatesService is the engine surface the handlers need.
type RatesService interface {
	BaseCurrency() string
	Providers() []rates.ProviderInfo
	GetCurrentRates(ctx context.Context, targets []string) ([]rateproviders.RateQuote, error)
	ConvertCurrency(ctx context.Context, from, to string, amount float64) (*rateproviders.ConversionResult, error)
	GetHistoricalRates(ctx context.Context, from, to, currency string) ([]storage.HistorySnapshot, error)
	Trend(ctx context.Context, currency string) ([]storage.HistorySnapshot, error)
	Refresh(ctx context.Context) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	svc    RatesService
	ready  Pinger
	guard  *auth.Guard
	logger *slog.Logger
}

// NewRouter wires every route. ready and guard may be nil; without a guard
// the refresh endpoint is not mounted.
func NewRouter(svc RatesService, ready Pinger, guard *auth.Guard, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, ready: ready, guard: guard, logger: logger.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/livez", s.livez)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(instrument)

		r.Get("/providers", s.listProviders)
		r.Get("/rates", s.currentRates)
		r.Get("/rates/history", s.history)
		r.Get("/rates/trend/{currency}", s.trend)
		r.Post("/rates/convert", s.convert)
		if guard != nil {
			r.With(guard.Require(auth.ObjRates, auth.ActRefresh)).Post("/rates/refresh", s.refresh)
		}
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) livez(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("live"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			s.logger.Warn("readyz: store ping failed", "error", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
