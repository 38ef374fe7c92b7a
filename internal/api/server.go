// Package api exposes the read/write HTTP surface spec.md §6 defines:
// portfolio/trade/position views, trading controls, backtest and
// optimizer/evolver result endpoints, and data-cache inspection. Routing
// and middleware follow the teacher's internal/api/server.go (gorilla/mux
// + rs/cors); the live decision/trade push in websocket.go adapts the
// teacher's Hub/Client.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dezgo/tradintel/internal/apperrors"
	"github.com/dezgo/tradintel/internal/data"
	"github.com/dezgo/tradintel/internal/metrics"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/portfolio"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/worker"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the subset of *store.Store the API reads and writes.
type Store interface {
	ListTrades(ctx context.Context, f store.TradeFilter) ([]model.Trade, error)
	ListRoundtrips(ctx context.Context, f store.TradeFilter, feeBps float64) ([]model.RoundTrip, error)
	ListOpenPositions(ctx context.Context, f store.TradeFilter, markPrices map[string]decimal.Decimal) ([]model.OpenPosition, error)
	RealizedPnL(ctx context.Context, f store.TradeFilter, excludeStablecoins bool) (decimal.Decimal, error)
	TodayPnL(ctx context.Context, f store.TradeFilter, excludeStablecoins bool) (decimal.Decimal, error)
	TradeCounts(ctx context.Context) (map[string]int, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	ListOptimizationResults(ctx context.Context, f store.OptimizationFilter) ([]model.OptimizationResult, error)
	GetOptimizationResultByID(ctx context.Context, id int64) (model.OptimizationResult, error)
	ListEvolvedStrategies(ctx context.Context, f store.EvolvedFilter) ([]model.EvolvedStrategy, error)
	GetEvolvedStrategyByID(ctx context.Context, id int64) (model.EvolvedStrategy, error)
	SaveBacktest(ctx context.Context, b store.SavedBacktest) (int64, error)
	ListSavedBacktests(ctx context.Context) ([]store.SavedBacktest, error)
	GetSavedBacktestByID(ctx context.Context, id int64) (store.SavedBacktest, error)
	DeleteSavedBacktest(ctx context.Context, id int64) error
	RecordTrade(ctx context.Context, botName, symbol string, side model.Side, qty, price, fee decimal.Decimal, isMaker bool, equity decimal.Decimal) error
}

// PortfolioView is the subset of *portfolio.Portfolio the API drives.
type PortfolioView interface {
	Snapshot() portfolio.Snapshot
	ReassignStrategy(name, kind string, params map[string]float64, e worker.Evaluator) error
	WorkerByName(name string) (portfolio.WorkerEngine, bool)
	AllDecisions() []model.Decision
}

// DataAccess is the subset of *data.Cache the API uses for coverage and
// manual backfill.
type DataAccess interface {
	History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error)
	Coverage(ctx context.Context, symbol string, tf model.Timeframe) (data.CoverageReport, error)
	Backfill(ctx context.Context, symbols []string, tf model.Timeframe, limit int) (map[string]int, error)
}

// BacktestRunner runs one backtest and returns its resulting metrics;
// internal/backtester.Run satisfies this through the adapter the caller
// passes to New (cmd/server/main.go).
type BacktestRunner func(ctx context.Context, req BacktestRequest) (model.BacktestMetrics, error)

// ExecClient places orders for the manual-trade endpoint, matching
// execution.Client's market/limit contract (spec.md §6).
type ExecClient interface {
	MarketOrder(ctx context.Context, symbol string, side model.Side, qty, priceHint decimal.Decimal) (model.Fill, error)
	LimitOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, timeoutSeconds int) (model.Fill, error)
}

// OptimizerPromoter turns one grid-search result into a saved backtest,
// matching *optimizer.Optimizer.Promote.
type OptimizerPromoter interface {
	Promote(ctx context.Context, id int64) (int64, error)
}

// EvolverPromoter turns one evolved genome into a saved backtest,
// matching *evolver.Evolver.Promote.
type EvolverPromoter interface {
	Promote(ctx context.Context, id int64) (int64, error)
}

// Server wires the HTTP surface to the engine's live components.
type Server struct {
	logger *zap.Logger
	router *mux.Router
	http   *http.Server

	store       Store
	portfolio   PortfolioView
	data        DataAccess
	exec        ExecClient
	optimizer   OptimizerPromoter
	evolver     EvolverPromoter
	runBacktest BacktestRunner
	hub         *Hub

	authUsername     string
	authPasswordHash string
}

// Config carries the server's network and auth settings.
type Config struct {
	Addr             string
	AuthUsername     string
	AuthPasswordHash string
}

// New builds a Server and registers every route from spec.md §6.
func New(cfg Config, st Store, pf PortfolioView, data DataAccess, exec ExecClient, opt OptimizerPromoter, evo EvolverPromoter, runBacktest BacktestRunner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:           logger,
		router:           mux.NewRouter(),
		store:            st,
		portfolio:        pf,
		data:             data,
		exec:             exec,
		optimizer:        opt,
		evolver:          evo,
		runBacktest:      runBacktest,
		hub:              NewHub(logger),
		authUsername:     cfg.AuthUsername,
		authPasswordHash: cfg.AuthPasswordHash,
	}
	s.routes()
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.http = &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Router exposes the CORS-wrapped mux.Router handler for tests (httptest.NewServer(s.Router())).
func (s *Server) Router() http.Handler { return s.http.Handler }

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/metrics", metrics.Handler().ServeHTTP)

	r.HandleFunc("/portfolio.json", s.requireAuth(s.handlePortfolio)).Methods("GET")
	r.HandleFunc("/trades.json", s.requireAuth(s.handleTrades)).Methods("GET")
	r.HandleFunc("/roundtrips.json", s.requireAuth(s.handleRoundtrips)).Methods("GET")
	r.HandleFunc("/positions.json", s.requireAuth(s.handlePositions)).Methods("GET")
	r.HandleFunc("/prices.json", s.requireAuth(s.handlePrices)).Methods("GET")
	r.HandleFunc("/fees.json", s.requireAuth(s.handleFees)).Methods("GET")
	r.HandleFunc("/decisions.json", s.requireAuth(s.handleDecisions)).Methods("GET")

	r.HandleFunc("/api/worker/strategy", s.requireAuth(s.handleWorkerStrategy)).Methods("POST")
	r.HandleFunc("/api/auto-rebalance", s.requireAuth(s.handleAutoRebalance)).Methods("GET", "POST")
	r.HandleFunc("/api/pause-trading", s.requireAuth(s.handlePauseTrading)).Methods("POST")
	r.HandleFunc("/api/resume-trading", s.requireAuth(s.handleResumeTrading)).Methods("POST")
	r.HandleFunc("/api/trading-status", s.requireAuth(s.handleTradingStatus)).Methods("GET")
	r.HandleFunc("/api/set-capital-limit", s.requireAuth(s.handleSetCapitalLimit)).Methods("POST", "DELETE")
	r.HandleFunc("/api/set-timeframe", s.requireAuth(s.handleSetTimeframe)).Methods("POST")
	r.HandleFunc("/api/set-num-strategies", s.requireAuth(s.handleSetNumStrategies)).Methods("POST")
	r.HandleFunc("/api/set-execution-mode", s.requireAuth(s.handleSetExecutionMode)).Methods("POST")
	r.HandleFunc("/api/liquidate-all", s.requireAuth(s.handleLiquidateAll)).Methods("POST")
	r.HandleFunc("/api/reset-for-testing", s.requireAuth(s.handleResetForTesting)).Methods("POST")
	r.HandleFunc("/api/manual-trade", s.requireAuth(s.handleManualTrade)).Methods("POST")

	r.HandleFunc("/backtest", s.requireAuth(s.handleRunBacktest)).Methods("POST")
	r.HandleFunc("/backtest/saved", s.requireAuth(s.handleListSavedBacktests)).Methods("GET")
	r.HandleFunc("/backtest/saved", s.requireAuth(s.handleCreateSavedBacktest)).Methods("POST")
	r.HandleFunc("/backtest/saved/{id}", s.requireAuth(s.handleDeleteSavedBacktest)).Methods("DELETE")

	r.HandleFunc("/optimizer/results", s.requireAuth(s.handleOptimizerResults)).Methods("GET")
	r.HandleFunc("/optimizer/promote/{id}", s.requireAuth(s.handlePromoteOptimizerResult)).Methods("POST")
	r.HandleFunc("/evolution/results", s.requireAuth(s.handleEvolutionResults)).Methods("GET")
	r.HandleFunc("/evolution/promote/{id}", s.requireAuth(s.handlePromoteEvolvedStrategy)).Methods("POST")

	r.HandleFunc("/data/coverage", s.requireAuth(s.handleDataCoverage)).Methods("GET")
	r.HandleFunc("/data/backfill", s.requireAuth(s.handleDataBackfill)).Methods("POST")

	r.HandleFunc("/ws/decisions", s.hub.ServeWS)
}

// Start runs the HTTP server until Stop is called or it fails.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info("api: listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppErr maps a classified apperrors.Error to its HTTP status
// (spec.md §7); an err not produced by that package still gets a safe
// 500 via apperrors.HTTPStatus's default case.
func writeAppErr(w http.ResponseWriter, err error) {
	writeError(w, apperrors.HTTPStatus(err), err.Error())
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
