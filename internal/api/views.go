package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/shopspring/decimal"
)

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.portfolio.Snapshot())
}

func tradeFilterFromQuery(q url.Values) store.TradeFilter {
	f := store.TradeFilter{BotName: q.Get("bot"), Symbol: q.Get("symbol")}
	if v := q.Get("since_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.SinceID = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	return f
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTrades(r.Context(), tradeFilterFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleRoundtrips(w http.ResponseWriter, r *http.Request) {
	feeBps := 10.0
	if v := r.URL.Query().Get("fee_bps"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			feeBps = n
		}
	}
	rt, err := s.store.ListRoundtrips(r.Context(), tradeFilterFromQuery(r.URL.Query()), feeBps)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	marks := map[string]decimal.Decimal{}
	snap := s.portfolio.Snapshot()
	for _, m := range snap.Managers {
		for _, ws := range m.Workers {
			if _, ok := marks[ws.Symbol]; !ok {
				marks[ws.Symbol] = decimal.Zero
			}
		}
	}
	positions, err := s.store.ListOpenPositions(r.Context(), tradeFilterFromQuery(r.URL.Query()), marks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	tf := model.Timeframe(r.URL.Query().Get("timeframe"))
	if tf == "" {
		tf = model.Timeframe1d
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	bars, err := s.data.History(r.Context(), symbol, tf, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bars)
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTrades(r.Context(), tradeFilterFromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.Fee)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"total_fees": total, "trade_count": len(trades)})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	decisions := s.portfolio.AllDecisions()
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit > 0 && len(decisions) > limit {
		decisions = decisions[:limit]
	}
	writeJSON(w, http.StatusOK, decisions)
}
