package backtest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// Result is the immutable report of a completed run.
type Result struct {
	ID string `json:"id"`

	// ProfitBase and ProfitQuote compare the combined portfolio value at
	// the final evaluated candle against the starting value, each
	// denominated in one asset.
	ProfitBase  decimal.Decimal `json:"profitBase"`
	ProfitQuote decimal.Decimal `json:"profitQuote"`
	// ProfitRatio is final combined value over starting combined value,
	// in quote terms.
	ProfitRatio decimal.Decimal `json:"profitRatio"`
	// BuyAndHoldRatio is the raw price change over the evaluated span,
	// the baseline a strategy has to beat.
	BuyAndHoldRatio decimal.Decimal `json:"buyAndHoldRatio"`

	StartingBaseBalance  decimal.Decimal `json:"startingBaseBalance"`
	StartingQuoteBalance decimal.Decimal `json:"startingQuoteBalance"`
	FinalBaseBalance     decimal.Decimal `json:"finalBaseBalance"`
	FinalQuoteBalance    decimal.Decimal `json:"finalQuoteBalance"`

	SpotTrades      []types.Trade    `json:"spotTrades"`
	MarginPositions map[int]Position `json:"marginPositions"`

	FirstCandleIndex int       `json:"firstCandleIndex"`
	LastCandleIndex  int       `json:"lastCandleIndex"`
	FirstCandleTime  time.Time `json:"firstCandleTime"`
	LastCandleTime   time.Time `json:"lastCandleTime"`

	Log []LogEntry `json:"log"`

	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
}

// newResult derives the final report from the run state. The evaluated span
// reflects any insolvency truncation.
func newResult(state *State, startedAt time.Time) *Result {
	s := state.setup
	first, last := s.EvaluateFirstIndex, s.EvaluateLastIndex
	startPrice := s.Candles[first].Price(s.PricePoint, s.Rand)
	finalPrice := s.Candles[last].Price(s.PricePoint, s.Rand)

	startBase := CombinedValue(types.AssetBase, s.StartingBaseBalance, s.StartingQuoteBalance, startPrice)
	startQuote := CombinedValue(types.AssetQuote, s.StartingBaseBalance, s.StartingQuoteBalance, startPrice)
	finalBase := CombinedValue(types.AssetBase, state.baseBalance, state.quoteBalance, finalPrice)
	finalQuote := CombinedValue(types.AssetQuote, state.baseBalance, state.quoteBalance, finalPrice)

	completedAt := time.Now()
	return &Result{
		ID:                   uuid.NewString(),
		ProfitBase:           finalBase.Sub(startBase),
		ProfitQuote:          finalQuote.Sub(startQuote),
		ProfitRatio:          finalQuote.Div(startQuote),
		BuyAndHoldRatio:      finalPrice.Div(startPrice),
		StartingBaseBalance:  s.StartingBaseBalance,
		StartingQuoteBalance: s.StartingQuoteBalance,
		FinalBaseBalance:     state.baseBalance,
		FinalQuoteBalance:    state.quoteBalance,
		SpotTrades:           state.SpotTrades(),
		MarginPositions:      state.Positions(),
		FirstCandleIndex:     first,
		LastCandleIndex:      last,
		FirstCandleTime:      s.Candles[first].Time,
		LastCandleTime:       s.Candles[last].Time,
		Log:                  state.Log(),
		StartedAt:            startedAt,
		CompletedAt:          completedAt,
		Duration:             completedAt.Sub(startedAt),
	}
}
