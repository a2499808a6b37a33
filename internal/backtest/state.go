package backtest

import (
	"math/rand"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/backtest/pkg/types"
)

// TickFunc is a strategy or post-tick callback. Callbacks run synchronously
// in registration order and may mutate balances and positions through the
// state's trade facade.
type TickFunc func(state *State)

// setup holds the validated, immutable configuration of one run. It is
// assembled by the Builder and read by the engine; EvaluateLastIndex is the
// only field the engine rewrites (on early insolvency stop).
type setup struct {
	Candles              []types.Candle
	EvaluateFirstIndex   int
	EvaluateLastIndex    int
	PricePoint           types.PricePoint
	StartingBaseBalance  decimal.Decimal
	StartingQuoteBalance decimal.Decimal

	DefaultSpotBuySize     types.AmountSpec
	DefaultSpotSellSize    types.AmountSpec
	DefaultMarginLongSize  types.AmountSpec
	DefaultMarginShortSize types.AmountSpec

	SpotFees         []types.Fee
	LeverageRatio    decimal.Decimal
	LiquidationRatio decimal.Decimal

	TickFuncs     []TickFunc
	PostTickFuncs []TickFunc
	LogObservers  []LogObserver

	Logger *zap.Logger
	Rand   *rand.Rand
}

// State is the mutable ledger of a run in progress. One run owns its state
// exclusively; there is no concurrency within a run.
type State struct {
	// Trade executes spot and margin operations against this state.
	Trade *TradeManager

	setup        *setup
	baseBalance  decimal.Decimal
	quoteBalance decimal.Decimal
	currentIndex int

	spotTrades     []types.Trade
	positions      map[int]*Position
	positionOrder  []int
	nextPositionID int
	logEntries     []LogEntry
}

func newState(s *setup) *State {
	st := &State{
		setup:          s,
		baseBalance:    s.StartingBaseBalance,
		quoteBalance:   s.StartingQuoteBalance,
		currentIndex:   -1,
		positions:      make(map[int]*Position),
		nextPositionID: 1,
	}
	st.Trade = newTradeManager(st)
	return st
}

// BaseBalance is the current base asset balance, excluding open positions.
func (s *State) BaseBalance() decimal.Decimal { return s.baseBalance }

// QuoteBalance is the current quote asset balance, excluding open positions.
func (s *State) QuoteBalance() decimal.Decimal { return s.quoteBalance }

// CurrentIndex is the index of the candle being evaluated, -1 before the
// first tick.
func (s *State) CurrentIndex() int { return s.currentIndex }

// CurrentCandle returns the candle currently being evaluated.
func (s *State) CurrentCandle() types.Candle {
	return s.setup.Candles[s.currentIndex]
}

// CurrentPrice returns the price of the current candle at the configured
// price point.
func (s *State) CurrentPrice() decimal.Decimal {
	return s.CurrentCandle().Price(s.setup.PricePoint, s.setup.Rand)
}

// Candles exposes the full input series, including unevaluated candles.
// The slice is shared and must be treated as read-only.
func (s *State) Candles() []types.Candle { return s.setup.Candles }

// SpotTrades returns a copy of the spot trade history so far.
func (s *State) SpotTrades() []types.Trade {
	trades := make([]types.Trade, len(s.spotTrades))
	copy(trades, s.spotTrades)
	return trades
}

// Positions returns a snapshot of all margin positions opened so far,
// keyed by position id. The snapshot holds value copies.
func (s *State) Positions() map[int]Position {
	positions := make(map[int]Position, len(s.positions))
	for id, pos := range s.positions {
		positions[id] = *pos
	}
	return positions
}

// Log returns a copy of the run log so far. Prefer a log observer for
// in-progress consumption.
func (s *State) Log() []LogEntry {
	entries := make([]LogEntry, len(s.logEntries))
	copy(entries, s.logEntries)
	return entries
}

// AddLog appends a user entry to the run log at the current candle.
func (s *State) AddLog(message string, level LogLevel) {
	addLog(s, message, s.currentIndex, level)
}

// openPositionIDs returns the ids of still-open positions in opening order.
func (s *State) openPositionIDs() []int {
	var open []int
	for _, id := range s.positionOrder {
		if !s.positions[id].Closed {
			open = append(open, id)
		}
	}
	return open
}
