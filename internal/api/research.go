package api

import (
	"net/http"
	"strconv"

	"github.com/dezgo/tradintel/internal/apperrors"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/gorilla/mux"
)

// BacktestRequest is the POST /backtest body (spec.md §4.7, §6).
type BacktestRequest struct {
	Strategy       string             `json:"strategy"`
	Symbol         string             `json:"symbol"`
	Timeframe      string             `json:"timeframe"`
	StartTs        int64              `json:"start_ts"`
	EndTs          int64              `json:"end_ts"`
	InitialCapital float64            `json:"initial_capital"`
	Params         map[string]float64 `json:"params"`
	Save           bool               `json:"save"`
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Symbol == "" || req.Strategy == "" {
		writeAppErr(w, apperrors.Validation("strategy and symbol are required"))
		return
	}
	metrics, err := s.runBacktest(r.Context(), req)
	if err != nil {
		writeAppErr(w, apperrors.Validation(err.Error()))
		return
	}
	if req.Save {
		params := make(map[string]any, len(req.Params))
		for k, v := range req.Params {
			params[k] = v
		}
		id, err := s.store.SaveBacktest(r.Context(), store.SavedBacktest{
			Strategy:  req.Strategy,
			Symbol:    req.Symbol,
			Timeframe: model.Timeframe(req.Timeframe),
			Params:    params,
			Metrics:   metrics,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": metrics, "saved_backtest_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": metrics})
}

func (s *Server) handleListSavedBacktests(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.ListSavedBacktests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleCreateSavedBacktest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy  string         `json:"strategy"`
		Symbol    string         `json:"symbol"`
		Timeframe string         `json:"timeframe"`
		Params    map[string]any `json:"params"`
		Metrics   model.BacktestMetrics `json:"metrics"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.store.SaveBacktest(r.Context(), store.SavedBacktest{
		Strategy:  req.Strategy,
		Symbol:    req.Symbol,
		Timeframe: model.Timeframe(req.Timeframe),
		Params:    req.Params,
		Metrics:   req.Metrics,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (s *Server) handleDeleteSavedBacktest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAppErr(w, apperrors.Validation("invalid id"))
		return
	}
	if err := s.store.DeleteSavedBacktest(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleOptimizerResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.OptimizationFilter{Strategy: q.Get("strategy"), Symbol: q.Get("symbol")}
	if v := q.Get("min_score"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinScore = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	results, err := s.store.ListOptimizationResults(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handlePromoteOptimizerResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAppErr(w, apperrors.Validation("invalid id"))
		return
	}
	savedID, err := s.optimizer.Promote(r.Context(), id)
	if err != nil {
		writeAppErr(w, apperrors.Precondition(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "promoted", "saved_backtest_id": savedID})
}

func (s *Server) handleEvolutionResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.EvolvedFilter{Symbol: q.Get("symbol")}
	if v := q.Get("min_score"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinScore = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	results, err := s.store.ListEvolvedStrategies(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handlePromoteEvolvedStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAppErr(w, apperrors.Validation("invalid id"))
		return
	}
	savedID, err := s.evolver.Promote(r.Context(), id)
	if err != nil {
		writeAppErr(w, apperrors.Precondition(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "promoted", "saved_backtest_id": savedID})
}

func (s *Server) handleDataCoverage(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	tf := model.Timeframe(r.URL.Query().Get("timeframe"))
	if symbol == "" || tf == "" {
		writeAppErr(w, apperrors.Validation("symbol and timeframe are required"))
		return
	}
	report, err := s.data.Coverage(r.Context(), symbol, tf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDataBackfill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols   []string `json:"symbols"`
		Timeframe string   `json:"timeframe"`
		Limit     int      `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Symbols) == 0 || req.Timeframe == "" {
		writeAppErr(w, apperrors.Validation("symbols and timeframe are required"))
		return
	}
	counts, err := s.data.Backfill(r.Context(), req.Symbols, model.Timeframe(req.Timeframe), req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

