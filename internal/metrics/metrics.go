// Package metrics exposes the Prometheus counters and gauges scraped
// from /metrics: bot/worker equity and trade counts, scheduler tick
// lag, and optimizer/evolver cycle counters (SPEC_FULL.md §5's metrics
// row). Declared as a package-level var block and registered in
// init(), following chidi150c-coinbase's metrics.go rather than the
// teacher's own backtester.MetricsCalculator (which computes trade
// statistics, not Prometheus series).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ordersTotal counts fills submitted by each worker, by side.
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradintel_orders_total",
			Help: "Orders filled, labeled by side (buy|sell).",
		},
		[]string{"side"},
	)

	// tradesTotal counts closed round-trips by result.
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradintel_trades_total",
			Help: "Closed round-trips, labeled by result (win|loss|scratch).",
		},
		[]string{"result"},
	)

	// botEquity tracks each worker's current equity.
	botEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradintel_bot_equity_usd",
			Help: "Current equity per worker, in quote currency.",
		},
		[]string{"bot"},
	)

	// activeWorkers is the number of workers currently stepped by the
	// portfolio each tick.
	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradintel_active_workers",
			Help: "Number of workers the portfolio stepped on the last tick.",
		},
	)

	// schedulerLagSeconds is how late the bar loop woke relative to the
	// aligned boundary it was waiting for.
	schedulerLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradintel_scheduler_lag_seconds",
			Help: "Seconds between the target bar boundary and when the scheduler actually woke.",
		},
	)

	// schedulerStepErrorsTotal counts portfolio.Step failures the
	// scheduler backed off from.
	schedulerStepErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradintel_scheduler_step_errors_total",
			Help: "Portfolio step failures observed by the scheduler's bar loop.",
		},
	)

	// optimizerCyclesTotal counts grid-search optimization passes.
	optimizerCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradintel_optimizer_cycles_total",
			Help: "Grid-search optimization cycles completed.",
		},
	)

	// evolverGenerationsTotal counts genetic-algorithm generations run.
	evolverGenerationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradintel_evolver_generations_total",
			Help: "Genetic-algorithm generations completed across all evolution runs.",
		},
	)

	// evolverBestFitness tracks the best genome fitness seen so far in
	// the current (or most recent) evolution run.
	evolverBestFitness = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradintel_evolver_best_fitness",
			Help: "Best genome fitness score observed in the most recent evolution run.",
		},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, tradesTotal, botEquity, activeWorkers)
	prometheus.MustRegister(schedulerLagSeconds, schedulerStepErrorsTotal)
	prometheus.MustRegister(optimizerCyclesTotal, evolverGenerationsTotal, evolverBestFitness)
}

// Handler serves the registered metrics for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncOrder records one filled order on the given side ("buy"|"sell").
func IncOrder(side string) { ordersTotal.WithLabelValues(side).Inc() }

// IncTrade records one closed round-trip with the given result
// ("win"|"loss"|"scratch").
func IncTrade(result string) { tradesTotal.WithLabelValues(result).Inc() }

// SetBotEquity updates the tracked equity for a worker.
func SetBotEquity(bot string, equity float64) { botEquity.WithLabelValues(bot).Set(equity) }

// SetActiveWorkers records how many workers the portfolio stepped this
// tick.
func SetActiveWorkers(n int) { activeWorkers.Set(float64(n)) }

// ObserveSchedulerLag records the bar loop's wake lag in seconds.
func ObserveSchedulerLag(seconds float64) { schedulerLagSeconds.Set(seconds) }

// IncStepError records one portfolio.Step failure.
func IncStepError() { schedulerStepErrorsTotal.Inc() }

// IncOptimizerCycle records one completed grid-search cycle.
func IncOptimizerCycle() { optimizerCyclesTotal.Inc() }

// IncEvolverGeneration records one completed GA generation.
func IncEvolverGeneration() { evolverGenerationsTotal.Inc() }

// SetEvolverBestFitness updates the best-fitness gauge.
func SetEvolverBestFitness(fitness float64) { evolverBestFitness.Set(fitness) }
