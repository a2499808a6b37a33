// Package main runs a single backtest from the command line.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/backtest/internal/backtest"
	"github.com/candleworks/backtest/internal/data"
	"github.com/candleworks/backtest/internal/strategy"
	"github.com/candleworks/backtest/pkg/types"
)

func main() {
	var (
		csvPath   = flag.String("csv", "", "path to a candle CSV file (time,open,high,low,close,volume)")
		timeframe = flag.String("resample", "", "resample candles to this timeframe before running (e.g. 1h, 4h)")
		stratName = flag.String("strategy", "buy_and_hold", "strategy to run")
		quote     = flag.String("quote", "10000", "starting quote budget")
		base      = flag.String("base", "0", "starting base budget")
		logTail   = flag.Int("log-tail", 10, "number of trailing simulation log entries to print")
		quiet     = flag.Bool("quiet", false, "suppress process logging")
	)
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -csv <file> [-strategy <name>] [-resample <tf>]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := zap.NewNop()
	if !*quiet {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	if err := run(logger, *csvPath, *timeframe, *stratName, *quote, *base, *logTail); err != nil {
		fmt.Fprintf(os.Stderr, "backtest failed: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, csvPath, timeframe, stratName, quoteBudget, baseBudget string, logTail int) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	candles, err := data.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", csvPath, err)
	}

	if timeframe != "" {
		candles, err = data.Resample(candles, types.Timeframe(timeframe))
		if err != nil {
			return fmt.Errorf("resampling: %w", err)
		}
	}

	quote, err := decimal.NewFromString(quoteBudget)
	if err != nil {
		return fmt.Errorf("parsing quote budget: %w", err)
	}
	base, err := decimal.NewFromString(baseBudget)
	if err != nil {
		return fmt.Errorf("parsing base budget: %w", err)
	}

	registry := strategy.NewRegistry(logger)
	strat, ok := registry.Create(stratName)
	if !ok {
		return fmt.Errorf("unknown strategy %q (available: %v)", stratName, registry.List())
	}

	builder, err := backtest.NewBuilder(candles)
	if err != nil {
		return err
	}

	result, err := builder.
		WithQuoteBudget(quote).
		WithBaseBudget(base).
		WithLogger(logger).
		EvaluateRange(0, len(candles)-1).
		OnTick(strat.OnTick).
		Run()
	if err != nil {
		return err
	}

	printSummary(result, stratName, len(candles), logTail)
	return nil
}

func printSummary(result *backtest.Result, stratName string, total int, logTail int) {
	evaluated := result.LastCandleIndex - result.FirstCandleIndex + 1

	fmt.Printf("strategy:          %s\n", stratName)
	fmt.Printf("candles:           %d evaluated of %d (%s .. %s)\n",
		evaluated, total,
		result.FirstCandleTime.Format("2006-01-02 15:04"),
		result.LastCandleTime.Format("2006-01-02 15:04"))
	fmt.Printf("profit (quote):    %s\n", result.ProfitQuote.StringFixed(4))
	fmt.Printf("profit ratio:      %s\n", result.ProfitRatio.StringFixed(4))
	fmt.Printf("buy & hold ratio:  %s\n", result.BuyAndHoldRatio.StringFixed(4))
	fmt.Printf("final balances:    base %s, quote %s\n",
		result.FinalBaseBalance.String(), result.FinalQuoteBalance.String())
	fmt.Printf("spot trades:       %d\n", len(result.SpotTrades))
	fmt.Printf("margin positions:  %d\n", len(result.MarginPositions))
	fmt.Printf("duration:          %s\n", result.Duration)

	if logTail > 0 && len(result.Log) > 0 {
		start := len(result.Log) - logTail
		if start < 0 {
			start = 0
		}
		fmt.Println("\nsimulation log:")
		for _, entry := range result.Log[start:] {
			fmt.Printf("  [%d] %s: %s\n", entry.CandleIndex, entry.Level, entry.Message)
		}
	}
}
