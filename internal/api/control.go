package api

import (
	"net/http"
	"strconv"

	"github.com/dezgo/tradintel/internal/apperrors"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type workerStrategyRequest struct {
	Worker string             `json:"worker"`
	Kind   string             `json:"kind"`
	Params map[string]float64 `json:"params"`
}

func (s *Server) handleWorkerStrategy(w http.ResponseWriter, r *http.Request) {
	var req workerStrategyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Worker == "" || req.Kind == "" {
		writeAppErr(w, apperrors.Validation("worker and kind are required"))
		return
	}
	evaluator, err := strategy.NewParametric(strategy.Kind(req.Kind), req.Params)
	if err != nil {
		writeAppErr(w, apperrors.Validation(err.Error()))
		return
	}
	if err := s.portfolio.ReassignStrategy(req.Worker, req.Kind, req.Params, evaluator); err != nil {
		writeAppErr(w, apperrors.Precondition(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reassigned"})
}

func (s *Server) handleAutoRebalance(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		v, _, err := s.store.GetSetting(r.Context(), model.SettingAutoRebalanceEnabled)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"auto_rebalance_enabled": v})
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SetSetting(r.Context(), model.SettingAutoRebalanceEnabled, strconv.FormatBool(req.Enabled)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"auto_rebalance_enabled": req.Enabled})
}

func (s *Server) setTradingPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	if err := s.store.SetSetting(r.Context(), model.SettingTradingPaused, strconv.FormatBool(paused)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := "resumed"
	if paused {
		status = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handlePauseTrading(w http.ResponseWriter, r *http.Request) {
	s.setTradingPaused(w, r, true)
}

func (s *Server) handleResumeTrading(w http.ResponseWriter, r *http.Request) {
	s.setTradingPaused(w, r, false)
}

func (s *Server) handleTradingStatus(w http.ResponseWriter, r *http.Request) {
	v, ok, err := s.store.GetSetting(r.Context(), model.SettingTradingPaused)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	paused := !ok || v != "false"
	writeJSON(w, http.StatusOK, map[string]bool{"trading_paused": paused})
}

func (s *Server) handleSetCapitalLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		if err := s.store.SetSetting(r.Context(), model.SettingCapitalLimitUSDT, ""); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}
	var req struct {
		LimitUSDT float64 `json:"limit_usdt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LimitUSDT <= 0 {
		writeAppErr(w, apperrors.Validation("limit_usdt must be positive"))
		return
	}
	if err := s.store.SetSetting(r.Context(), model.SettingCapitalLimitUSDT, strconv.FormatFloat(req.LimitUSDT, 'f', -1, 64)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"limit_usdt": req.LimitUSDT})
}

func (s *Server) handleSetTimeframe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Timeframe string `json:"timeframe"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tf := model.Timeframe(req.Timeframe)
	if tf.Seconds() == 0 {
		writeAppErr(w, apperrors.Validation("unsupported timeframe"))
		return
	}
	if err := s.store.SetSetting(r.Context(), model.SettingTradingTimeframe, req.Timeframe); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"timeframe": req.Timeframe})
}

func (s *Server) handleSetNumStrategies(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count <= 0 {
		writeAppErr(w, apperrors.Validation("count must be positive"))
		return
	}
	if err := s.store.SetSetting(r.Context(), model.SettingNumActiveStrategies, strconv.Itoa(req.Count)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"num_active_strategies": req.Count})
}

func (s *Server) handleSetExecutionMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch model.ExecutionMode(req.Mode) {
	case model.ExecutionModePaper, model.ExecutionModeBinanceTestnet:
	default:
		writeAppErr(w, apperrors.Validation("unsupported execution mode"))
		return
	}
	if err := s.store.SetSetting(r.Context(), model.SettingExecutionMode, req.Mode); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_mode": req.Mode})
}

func (s *Server) handleLiquidateAll(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListOpenPositions(r.Context(), store.TradeFilter{}, map[string]decimal.Decimal{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	liquidated := 0
	for _, pos := range positions {
		if pos.Qty.IsZero() {
			continue
		}
		side := model.SideSell
		if pos.Qty.IsNegative() {
			side = model.SideBuy
		}
		fill, err := s.exec.MarketOrder(r.Context(), pos.Symbol, side, pos.Qty.Abs(), decimal.Zero)
		if err != nil {
			s.logger.Warn("liquidate-all: order failed", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		if err := s.store.RecordTrade(r.Context(), pos.BotName, pos.Symbol, side, fill.FilledQty, fill.AvgPrice, fill.Fee, fill.IsMaker, decimal.Zero); err != nil {
			s.logger.Warn("liquidate-all: record trade failed", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		liquidated++
	}
	writeJSON(w, http.StatusOK, map[string]int{"liquidated": liquidated})
}

func (s *Server) handleResetForTesting(w http.ResponseWriter, r *http.Request) {
	for key, v := range model.DefaultSettings() {
		if v == nil {
			continue
		}
		if err := s.store.SetSetting(r.Context(), key, toSettingString(v)); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func toSettingString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

type manualTradeRequest struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Qty    float64 `json:"qty"`
}

func (s *Server) handleManualTrade(w http.ResponseWriter, r *http.Request) {
	var req manualTradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side := model.Side(req.Side)
	if side != model.SideBuy && side != model.SideSell {
		writeAppErr(w, apperrors.Validation("side must be buy or sell"))
		return
	}
	if req.Symbol == "" || req.Qty <= 0 {
		writeAppErr(w, apperrors.Validation("symbol and a positive qty are required"))
		return
	}
	fill, err := s.exec.MarketOrder(r.Context(), req.Symbol, side, decimal.NewFromFloat(req.Qty), decimal.Zero)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.RecordTrade(r.Context(), "manual", req.Symbol, side, fill.FilledQty, fill.AvgPrice, fill.Fee, fill.IsMaker, decimal.Zero); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fill)
}
