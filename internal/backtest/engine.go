package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// insolvencyFraction is the fraction of the starting combined value below
// which the run stops early.
var insolvencyFraction = decimal.NewFromFloat(0.01)

// run drives the candle loop. It assumes the setup is already validated by
// the Builder. The loop is strictly sequential: each tick marks open
// positions to market, then hands control to the strategy callbacks, then to
// the post-tick callbacks. Callbacks execute synchronously; a panic inside
// one aborts the run.
func run(s *setup) *Result {
	state := newState(s)
	startedAt := time.Now()

	startPrice := s.Candles[s.EvaluateFirstIndex].Price(s.PricePoint, s.Rand)
	startingValueInQuote := CombinedValue(types.AssetQuote, s.StartingBaseBalance, s.StartingQuoteBalance, startPrice)

	for i := s.EvaluateFirstIndex; i <= s.EvaluateLastIndex; i++ {
		state.currentIndex = i

		// Mark open positions to market; illiquid ones close at this
		// candle's price. Collateral is not combined across positions.
		for _, id := range state.openPositionIDs() {
			liquidityCheckAndClose(state, id)
		}

		// Insolvency is a terminal condition, not an error: the run is
		// truncated at this candle and still produces a valid result.
		currentValueInQuote := CombinedValue(types.AssetQuote, state.baseBalance, state.quoteBalance, state.CurrentPrice())
		if currentValueInQuote.LessThanOrEqual(startingValueInQuote.Mul(insolvencyFraction)) {
			s.EvaluateLastIndex = i
			addLog(state, "stopping backtest because simulated account value dropped to <1% of its starting value", i, LevelInfo)
			break
		}

		for _, tick := range s.TickFuncs {
			tick(state)
		}
		for _, postTick := range s.PostTickFuncs {
			postTick(state)
		}
	}

	// Force-close surviving positions at the last evaluated price. This
	// goes through the close routine, not the liquidity check, so it
	// always commits.
	for _, id := range state.openPositionIDs() {
		closePosition(state, id)
	}

	return newResult(state, startedAt)
}
