package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// flatCandles builds a series of candles at one-hour spacing where every
// price of candle i equals prices[i].
func flatCandles(prices ...string) []types.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, len(prices))
	for i, p := range prices {
		price := dec(p)
		candles[i] = types.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: dec("10"),
		}
	}
	return candles
}

func newTestBuilder(t *testing.T, candles []types.Candle) *Builder {
	t.Helper()
	b, err := NewBuilder(candles)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b.EvaluateRange(0, len(candles)-1)
}

func TestRunSingleCandleBuy(t *testing.T) {
	// Starting quote budget 5000, one candle, a strategy that buys the
	// full balance: final base is 5000/price less the 0.1% default fee.
	b := newTestBuilder(t, flatCandles("100")).
		WithQuoteBudget(dec("5000")).
		OnTick(func(state *State) {
			if _, err := state.Trade.Spot.Buy(); err != nil {
				t.Errorf("Buy: %v", err)
			}
		})

	result, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.FinalBaseBalance.Equal(dec("49.95")) {
		t.Errorf("final base = %s, want 49.95", result.FinalBaseBalance)
	}
	if !result.FinalQuoteBalance.IsZero() {
		t.Errorf("final quote = %s, want 0", result.FinalQuoteBalance)
	}
	if len(result.SpotTrades) != 1 {
		t.Fatalf("spot trades = %d, want 1", len(result.SpotTrades))
	}
	trade := result.SpotTrades[0]
	if trade.Operation != types.OperationBuy || trade.CandleIndex != 0 {
		t.Errorf("unexpected trade record: %+v", trade)
	}
}

func TestRunCallbackOrder(t *testing.T) {
	var calls []string
	b := newTestBuilder(t, flatCandles("100")).
		OnTick(func(*State) { calls = append(calls, "tick-1") }).
		OnTick(func(*State) { calls = append(calls, "tick-2") }).
		PostTick(func(*State) { calls = append(calls, "post-1") }).
		PostTick(func(*State) { calls = append(calls, "post-2") })

	if _, err := b.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"tick-1", "tick-2", "post-1", "post-2"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestRunInsolvencyStopsEarly(t *testing.T) {
	// A max-leverage long at 1000 wiped out by a crash: the run stops
	// before evaluating the remaining candles.
	candles := flatCandles("1000", "1000", "100", "100", "100")
	ticked := make([]int, 0, len(candles))
	b := newTestBuilder(t, candles).
		WithMarginLeverage(dec("10")).
		WithMarginLiquidationRatio(decimal.Zero).
		OnTick(func(state *State) {
			ticked = append(ticked, state.CurrentIndex())
			if state.CurrentIndex() == 0 {
				if _, err := state.Trade.Margin.Long(); err != nil {
					t.Errorf("Long: %v", err)
				}
			}
		})

	result, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.LastCandleIndex != 2 {
		t.Errorf("last candle index = %d, want truncation at 2", result.LastCandleIndex)
	}
	for _, i := range ticked {
		if i >= 2 {
			t.Errorf("strategy ran on candle %d after insolvency", i)
		}
	}
	if !result.FinalBaseBalance.IsZero() || !result.FinalQuoteBalance.IsZero() {
		t.Errorf("final balances = (%s, %s), want (0, 0)", result.FinalBaseBalance, result.FinalQuoteBalance)
	}
}

func TestRunLiquidationSweep(t *testing.T) {
	// The long survives the first candle and liquidates on the second,
	// during the sweep, before the strategy runs again.
	candles := flatCandles("1000", "850", "850")
	b := newTestBuilder(t, candles).
		WithMarginLeverage(dec("10")).
		OnTick(func(state *State) {
			if state.CurrentIndex() == 0 {
				if _, err := state.Trade.Margin.Long(); err != nil {
					t.Errorf("Long: %v", err)
				}
			}
		})

	result, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.MarginPositions) != 1 {
		t.Fatalf("positions = %d, want 1", len(result.MarginPositions))
	}
	pos := result.MarginPositions[1]
	if !pos.Closed {
		t.Error("position not closed by liquidation sweep")
	}
	// 10x long on 10000 quote: borrowed 100000, loses 15000 quote at 850.
	// The account is wiped to zero and the insolvency stop truncates the
	// run at candle 1.
	if result.LastCandleIndex != 1 {
		t.Errorf("last candle index = %d, want 1", result.LastCandleIndex)
	}
}

func TestRunForceClosesOpenPositions(t *testing.T) {
	var openID int
	b := newTestBuilder(t, flatCandles("1000", "1100")).
		OnTick(func(state *State) {
			if state.CurrentIndex() == 0 {
				id, err := state.Trade.Margin.Long()
				if err != nil {
					t.Errorf("Long: %v", err)
				}
				openID = id
			}
		})

	result, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	pos, ok := result.MarginPositions[openID]
	if !ok {
		t.Fatalf("position %d missing from result", openID)
	}
	if !pos.Closed {
		t.Error("position not force-closed at run end")
	}

	// 5x long on 10000 quote borrows 50000, gains 10% at 1100: +5000
	// quote equivalent. Final combined value in quote is 15000.
	combined := CombinedValue(types.AssetQuote, result.FinalBaseBalance, result.FinalQuoteBalance, dec("1100"))
	if !combined.Round(4).Equal(dec("15000")) {
		t.Errorf("final combined quote = %s, want 15000", combined.Round(4))
	}
	if !result.ProfitQuote.Round(4).Equal(dec("5000")) {
		t.Errorf("profit quote = %s, want 5000", result.ProfitQuote)
	}
}

func TestMarginRoundTripWithoutPriceMove(t *testing.T) {
	// Opening and immediately closing a position with no price movement
	// returns the collateral exactly: margin trades are fee-free.
	b := newTestBuilder(t, flatCandles("1000")).
		OnTick(func(state *State) {
			id, err := state.Trade.Margin.Long()
			if err != nil {
				t.Fatalf("Long: %v", err)
			}
			if err := state.Trade.Margin.ClosePosition(id); err != nil {
				t.Fatalf("ClosePosition: %v", err)
			}
		})

	result, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.FinalQuoteBalance.Equal(dec("10000")) {
		t.Errorf("final quote = %s, want 10000", result.FinalQuoteBalance)
	}
	if !result.FinalBaseBalance.IsZero() {
		t.Errorf("final base = %s, want 0", result.FinalBaseBalance)
	}
	if !result.ProfitQuote.IsZero() {
		t.Errorf("profit quote = %s, want 0", result.ProfitQuote)
	}
}

func TestResultBuyAndHoldRatio(t *testing.T) {
	b := newTestBuilder(t, flatCandles("100", "150"))
	result, err := b.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.BuyAndHoldRatio.Equal(dec("1.5")) {
		t.Errorf("buy and hold ratio = %s, want 1.5", result.BuyAndHoldRatio)
	}
	// No trades: the portfolio kept its quote, profit ratio stays 1.
	if !result.ProfitRatio.Equal(dec("1")) {
		t.Errorf("profit ratio = %s, want 1", result.ProfitRatio)
	}
}

func TestLogObserverReceivesEntries(t *testing.T) {
	var seen []LogEntry
	b := newTestBuilder(t, flatCandles("100")).
		OnLogEntry(func(entry LogEntry, _ *State) { seen = append(seen, entry) }).
		OnTick(func(state *State) {
			state.AddLog("strategy checkpoint", LevelDebug)
		})

	if _, err := b.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) == 0 {
		t.Fatal("log observer never fired")
	}
	found := false
	for _, entry := range seen {
		if entry.Message == "strategy checkpoint" && entry.Level == LevelDebug && entry.CandleIndex == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("strategy entry missing from observed log: %v", seen)
	}
}

func TestStateSnapshotsAreCopies(t *testing.T) {
	b := newTestBuilder(t, flatCandles("100", "100")).
		OnTick(func(state *State) {
			if state.CurrentIndex() != 0 {
				return
			}
			if _, err := state.Trade.Spot.Buy(); err != nil {
				t.Errorf("Buy: %v", err)
			}
			trades := state.SpotTrades()
			trades[0].Price = decimal.Zero
			if state.SpotTrades()[0].Price.IsZero() {
				t.Error("mutating the snapshot changed the ledger")
			}
		})

	if _, err := b.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
