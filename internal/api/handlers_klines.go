package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// handleGetKlines returns stored candles for one symbol, using the
// request's ?interval= (default the primary interval convention used
// throughout the store: "1m") and an optional ?limit=.
func (s *Server) handleGetKlines(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	klines, err := s.cfg.Store.ListKlines(symbol, interval, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, klines)
}

type backfillRequest struct {
	Symbol    string `json:"symbol"`
	Interval  string `json:"interval"`
	Limit     int    `json:"limit"`
	StartTime int64  `json:"start_time,omitempty"`
	EndTime   int64  `json:"end_time,omitempty"`
}

// handleBackfillKlines fetches historical candles from the broker and
// upserts them into the store — idempotent per kline's natural key
// (symbol, interval, open_time), so re-running a backfill is safe.
func (s *Server) handleBackfillKlines(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 500
	}

	fetched, err := s.cfg.Broker.GetKlinesCtx(r.Context(), req.Symbol, req.Interval, req.Limit, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	klines := make([]models.Kline, 0, len(fetched))
	for _, k := range fetched {
		mk, err := brokerKlineToModel(req.Symbol, req.Interval, k)
		if err != nil {
			continue
		}
		klines = append(klines, mk)
	}
	if err := s.cfg.Store.UpsertKlines(klines); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"upserted": len(klines)})
}

// handleKlinesStatus reports how many candles are stored for the interval
// the request names, for each symbol given as a ?symbol= query parameter.
// Symbols not named in the request are not reported.
func (s *Server) handleKlinesStatus(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	symbols := r.URL.Query()["symbol"]

	status := make(map[string]int, len(symbols))
	for _, symbol := range symbols {
		n, err := s.cfg.Store.CountKlines(symbol, interval)
		if err != nil {
			continue
		}
		status[symbol] = n
	}
	writeJSON(w, http.StatusOK, status)
}
