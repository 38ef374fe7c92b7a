// Command tradintelctl is a read-only operator CLI against the engine's
// SQLite file — bots, trades, optimizer results, and evolved strategies,
// rendered as tables without going through the authenticated HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dezgo/tradintel/internal/logging"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/olekukonko/tablewriter"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	dbPath := flag.String("db", "trading.db", "path to the engine's SQLite file")
	limit := flag.Int("limit", 20, "max rows to print")
	symbol := flag.String("symbol", "", "filter by symbol")
	flag.CommandLine.Parse(os.Args[2:])

	logger, err := logging.New("error")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	st, err := store.Open(*dbPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "bots":
		err = printBots(ctx, st)
	case "trades":
		err = printTrades(ctx, st, *symbol, *limit)
	case "optimizer":
		err = printOptimizerResults(ctx, st, *symbol, *limit)
	case "evolved":
		err = printEvolvedStrategies(ctx, st, *symbol, *limit)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "tradintelctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tradintelctl <command> [-db path] [-symbol SYM] [-limit N]

commands:
  bots       list every worker's current snapshot
  trades     list recent trades
  optimizer  list grid-search results, best first
  evolved    list evolved strategy genomes, best first`)
}

func printBots(ctx context.Context, st *store.Store) error {
	bots, err := st.LoadBots(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Symbol", "Strategy", "Equity", "CumPnL", "Trades", "Score"})
	for _, b := range bots {
		table.Append([]string{
			b.Name, b.Symbol, b.StrategyKind,
			b.Equity.StringFixed(2), b.CumPnL.StringFixed(2),
			fmt.Sprint(b.Trades), fmt.Sprintf("%.2f", b.Score),
		})
	}
	table.Render()
	return nil
}

func printTrades(ctx context.Context, st *store.Store, symbol string, limit int) error {
	trades, err := st.ListTrades(ctx, store.TradeFilter{Symbol: symbol, Limit: limit})
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Ts", "Bot", "Symbol", "Side", "Qty", "Price", "Fee", "Maker"})
	for _, t := range trades {
		table.Append([]string{
			fmt.Sprint(t.ID), time.Unix(t.Ts, 0).UTC().Format(time.RFC3339),
			t.BotName, t.Symbol, string(t.Side),
			t.Qty.String(), t.Price.String(), t.Fee.String(), fmt.Sprint(t.IsMaker),
		})
	}
	table.Render()
	return nil
}

func printOptimizerResults(ctx context.Context, st *store.Store, symbol string, limit int) error {
	results, err := st.ListOptimizationResults(ctx, store.OptimizationFilter{Symbol: symbol, Limit: limit})
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Strategy", "Symbol", "Timeframe", "Score", "Return%", "Sharpe", "Trades"})
	for _, r := range results {
		table.Append([]string{
			fmt.Sprint(r.ID), r.Strategy, r.Symbol, string(r.Timeframe),
			fmt.Sprintf("%.2f", r.Score), fmt.Sprintf("%.2f", r.Metrics.TotalReturnPct),
			fmt.Sprintf("%.2f", r.Metrics.Sharpe), fmt.Sprint(r.Metrics.TradeCount),
		})
	}
	table.Render()
	return nil
}

func printEvolvedStrategies(ctx context.Context, st *store.Store, symbol string, limit int) error {
	evolved, err := st.ListEvolvedStrategies(ctx, store.EvolvedFilter{Symbol: symbol, Limit: limit})
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Symbol", "Timeframe", "Generation", "Score", "Return%", "Indicators"})
	for _, e := range evolved {
		table.Append([]string{
			fmt.Sprint(e.ID), e.Symbol, string(e.Timeframe), fmt.Sprint(e.Generation),
			fmt.Sprintf("%.2f", e.Score), fmt.Sprintf("%.2f", e.Metrics.TotalReturnPct),
			fmt.Sprint(len(e.Genome.Indicators)),
		})
	}
	table.Render()
	return nil
}
