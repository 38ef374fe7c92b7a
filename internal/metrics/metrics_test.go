package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestIncOrderIncrementsBySideLabel(t *testing.T) {
	before := testutil.ToFloat64(ordersTotal.WithLabelValues("buy"))
	IncOrder("buy")
	require.Equal(t, before+1, testutil.ToFloat64(ordersTotal.WithLabelValues("buy")))
}

func TestIncTradeIncrementsByResultLabel(t *testing.T) {
	before := testutil.ToFloat64(tradesTotal.WithLabelValues("win"))
	IncTrade("win")
	require.Equal(t, before+1, testutil.ToFloat64(tradesTotal.WithLabelValues("win")))
}

func TestSetBotEquityRecordsLatestValue(t *testing.T) {
	SetBotEquity("RSI_BTC_USDT", 12345.67)
	require.Equal(t, 12345.67, testutil.ToFloat64(botEquity.WithLabelValues("RSI_BTC_USDT")))
}

func TestSetActiveWorkersRecordsCount(t *testing.T) {
	SetActiveWorkers(7)
	require.Equal(t, float64(7), testutil.ToFloat64(activeWorkers))
}

func TestObserveSchedulerLagRecordsSeconds(t *testing.T) {
	ObserveSchedulerLag(3.5)
	require.Equal(t, 3.5, testutil.ToFloat64(schedulerLagSeconds))
}

func TestIncStepErrorIncrements(t *testing.T) {
	before := testutil.ToFloat64(schedulerStepErrorsTotal)
	IncStepError()
	require.Equal(t, before+1, testutil.ToFloat64(schedulerStepErrorsTotal))
}

func TestIncOptimizerCycleIncrements(t *testing.T) {
	before := testutil.ToFloat64(optimizerCyclesTotal)
	IncOptimizerCycle()
	require.Equal(t, before+1, testutil.ToFloat64(optimizerCyclesTotal))
}

func TestIncEvolverGenerationIncrements(t *testing.T) {
	before := testutil.ToFloat64(evolverGenerationsTotal)
	IncEvolverGeneration()
	require.Equal(t, before+1, testutil.ToFloat64(evolverGenerationsTotal))
}

func TestSetEvolverBestFitnessRecordsValue(t *testing.T) {
	SetEvolverBestFitness(1.87)
	require.Equal(t, 1.87, testutil.ToFloat64(evolverBestFitness))
}

func TestHandlerIsNotNil(t *testing.T) {
	require.NotNil(t, Handler())
}
