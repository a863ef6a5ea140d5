package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bher20/ratehub/internal/rates"
	"github.com/bher20/ratehub/internal/storage"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
)

type ratesResponse struct {
	Base  string                    `json:"base"`
	Rates []rateproviders.RateQuote `json:"rates"`
}

type historyResponse struct {
	Base      string                    `json:"base"`
	Currency  string                    `json:"currency"`
	From      string                    `json:"from,omitempty"`
	To        string                    `json:"to,omitempty"`
	Snapshots []storage.HistorySnapshot `json:"snapshots"`
}

type trendResponse struct {
	historyResponse
	// ChangePct is the move from the oldest to the newest snapshot, when
	// there are at least two.
	ChangePct *float64 `json:"change_pct,omitempty"`
}

type convertRequest struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount *float64 `json:"amount"`
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"providers": s.svc.Providers()})
}

func (s *Server) currentRates(w http.ResponseWriter, r *http.Request) {
	var targets []string
	if raw := r.URL.Query().Get("currencies"); raw != "" {
		targets = strings.Split(raw, ",")
	}

	quotes, err := s.svc.GetCurrentRates(r.Context(), targets)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ratesResponse{Base: s.svc.BaseCurrency(), Rates: quotes})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, currency := q.Get("from"), q.Get("to"), q.Get("currency")

	snaps, err := s.svc.GetHistoricalRates(r.Context(), from, to, currency)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{
		Base:      s.svc.BaseCurrency(),
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		From:      from,
		To:        to,
		Snapshots: snaps,
	})
}

func (s *Server) trend(w http.ResponseWriter, r *http.Request) {
	currency := chi.URLParam(r, "currency")

	snaps, err := s.svc.Trend(r.Context(), currency)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := trendResponse{historyResponse: historyResponse{
		Base:      s.svc.BaseCurrency(),
		Currency:  strings.ToUpper(currency),
		Snapshots: snaps,
	}}
	if n := len(snaps); n >= 2 && snaps[0].Rate > 0 {
		pct := (snaps[n-1].Rate - snaps[0].Rate) / snaps[0].Rate * 100
		resp.ChangePct = &pct
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondErrorKind(w, http.StatusBadRequest, rates.KindBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Amount == nil {
		respondErrorKind(w, http.StatusBadRequest, rates.KindBadRequest, "amount is required")
		return
	}

	res, err := s.svc.ConvertCurrency(r.Context(), req.From, req.To, *req.Amount)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Refresh(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// respondError maps engine errors onto status codes. Internal errors are
// logged and reported without detail.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch rates.ErrorKind(err) {
	case rates.KindProviderFailed:
		var pf *rates.ProviderFailedError
		detail := err.Error()
		if errors.As(err, &pf) {
			detail = pf.Detail
		}
		respondErrorKind(w, http.StatusServiceUnavailable, rates.KindProviderFailed, detail)
	case rates.KindBadRequest:
		respondErrorKind(w, http.StatusBadRequest, rates.KindBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		respondErrorKind(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func respondErrorKind(w http.ResponseWriter, status int, kind, detail string) {
	respondJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Detail: detail}})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
