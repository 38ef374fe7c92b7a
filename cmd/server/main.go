// Command server runs the trading engine: the bar-aligned scheduler
// driving a multi-strategy portfolio, the optimizer and evolver
// background loops, and the HTTP API (spec.md §4.1, §5, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dezgo/tradintel/internal/alerts"
	"github.com/dezgo/tradintel/internal/api"
	"github.com/dezgo/tradintel/internal/backtester"
	"github.com/dezgo/tradintel/internal/config"
	"github.com/dezgo/tradintel/internal/data"
	"github.com/dezgo/tradintel/internal/evolver"
	"github.com/dezgo/tradintel/internal/execution"
	"github.com/dezgo/tradintel/internal/logging"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/optimizer"
	"github.com/dezgo/tradintel/internal/portfolio"
	"github.com/dezgo/tradintel/internal/scheduler"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/strategy"
	"github.com/dezgo/tradintel/internal/worker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	bootLogger, err := logging.New("info")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer bootLogger.Sync()

	cfg, err := config.Load(bootLogger, *configPath)
	if err != nil {
		bootLogger.Fatal("load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		bootLogger.Fatal("logger init", zap.Error(err))
	}
	defer logger.Sync()

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	ctx := context.Background()
	if err := seedDefaultSettings(ctx, st); err != nil {
		logger.Fatal("seed settings", zap.Error(err))
	}

	mode, _, err := st.GetSetting(ctx, model.SettingExecutionMode)
	if err != nil {
		logger.Fatal("read execution mode", zap.Error(err))
	}
	if err := cfg.RequireLiveCredentials(mode); err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	execClient, err := buildExecClient(model.ExecutionMode(mode), cfg, logger)
	if err != nil {
		logger.Fatal("build execution client", zap.Error(err))
	}

	dataCache := data.NewCache(data.NewBinanceKlinesProvider(), st, logger, 30*time.Second)

	tfSetting, _, _ := st.GetSetting(ctx, model.SettingTradingTimeframe)
	tf := model.Timeframe(tfSetting)
	if tf == "" {
		tf = model.Timeframe1d
	}

	pf := portfolio.New(st, logger)
	buildCtx, cancelBuild := context.WithTimeout(ctx, 60*time.Second)
	err = pf.Build(buildCtx, portfolio.BuildDeps{
		Data: dataCache, Exec: execClient, TradeStore: st, Settings: st,
		Clock: worker.RealClock{}, Logger: logger, Symbols: portfolio.DefaultSymbols, Timeframe: tf,
	})
	cancelBuild()
	if err != nil {
		logger.Fatal("build portfolio", zap.Error(err))
	}

	sched := scheduler.New(pf, scheduler.RealClock{}, scheduler.RealSleeper{}, logger, scheduler.Config{
		TimeframeSeconds: tf.Seconds(),
		BufferSeconds:    int64(cfg.TradingBufferSeconds),
	})

	opt := optimizer.New(dataCache, st, logger)
	evo := evolver.New(dataCache, st, logger, time.Now().UnixNano())

	if !cfg.DisableOptimizer {
		optCfg := optimizer.Config{Symbols: portfolio.DefaultSymbols, Timeframe: tf, Grids: optimizer.DefaultGrids()}
		intervalHours := int(cfg.OptimizerInterval.Hours())
		sched.AddBackground(func(bgCtx context.Context) {
			opt.RunForever(bgCtx, optCfg, intervalHours, func() int64 { return time.Now().Unix() })
		})
	}
	if !cfg.DisableEvolution {
		evoCfg := evolver.Config{Symbols: portfolio.DefaultSymbols, Timeframe: tf}
		intervalHours := int(cfg.EvolverInterval.Hours())
		sched.AddBackground(func(bgCtx context.Context) {
			evo.RunForever(bgCtx, evoCfg, intervalHours, func() int64 { return time.Now().Unix() })
		})
	}
	if !cfg.DisableAlerts {
		monitor := alerts.New(st, dataCache, alerts.NewLogNotifier(logger), logger)
		sched.AddBackground(func(bgCtx context.Context) {
			monitor.RunForever(bgCtx, cfg.AlertInterval)
		})
	}

	runBacktest := func(bgCtx context.Context, req api.BacktestRequest) (model.BacktestMetrics, error) {
		evaluator, err := strategy.NewParametric(strategy.Kind(req.Strategy), req.Params)
		if err != nil {
			return model.BacktestMetrics{}, err
		}
		capital := decimal.NewFromFloat(req.InitialCapital)
		if capital.IsZero() {
			capital = decimal.NewFromInt(10000)
		}
		return backtester.Run(bgCtx, evaluator, dataCache, backtester.Config{
			Symbol: req.Symbol, Timeframe: model.Timeframe(req.Timeframe),
			StartTs: req.StartTs, EndTs: req.EndTs, InitialCapital: capital,
		})
	}

	apiServer := api.New(api.Config{
		Addr:             fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		AuthUsername:     cfg.AuthUsername,
		AuthPasswordHash: cfg.AuthPasswordHash,
	}, st, pf, dataCache, execClient, opt, evo, runBacktest, logger)

	runCtx, cancel := context.WithCancel(ctx)
	sched.Start(runCtx)

	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	sched.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
}

// seedDefaultSettings writes model.DefaultSettings for any key not
// already present, so a fresh database starts trading_paused=true and
// the rest of spec.md §6's defaults without an operator seeding them by
// hand.
func seedDefaultSettings(ctx context.Context, st *store.Store) error {
	for key, val := range model.DefaultSettings() {
		if val == nil {
			continue
		}
		if _, ok, err := st.GetSetting(ctx, key); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := st.SetSetting(ctx, key, fmt.Sprintf("%v", val)); err != nil {
			return err
		}
	}
	return nil
}

func buildExecClient(mode model.ExecutionMode, cfg *config.Config, logger *zap.Logger) (execution.Client, error) {
	switch mode {
	case model.ExecutionModeBinanceTestnet:
		transport := execution.NewHTTPTransport(cfg.BinanceTestnetAPIKey, cfg.BinanceTestnetAPISecret)
		return execution.NewBinanceTestnetExec(transport, execution.DefaultLotTable(), 5, 10, logger), nil
	case model.ExecutionModePaper, "":
		return execution.NewPaperExec(time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("main: unknown execution mode %q", mode)
	}
}
