package backtest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// TradeManager is the trading facade handed to strategy callbacks.
type TradeManager struct {
	// Spot executes spot buys and sells.
	Spot *SpotManager
	// Margin opens, scales and closes leveraged positions.
	Margin *MarginManager
}

func newTradeManager(state *State) *TradeManager {
	return &TradeManager{
		Spot:   &SpotManager{state: state},
		Margin: &MarginManager{state: state},
	}
}

// SpotManager executes spot trades against the run state. It holds only a
// reference to the state, never a copy.
type SpotManager struct {
	state *State
}

// Buy executes a spot buy with the configured default order size.
func (m *SpotManager) Buy() (bool, error) {
	return m.BuyAmount(m.state.setup.DefaultSpotBuySize)
}

// BuyAmount executes a spot buy with a custom amount spec. It returns false
// with a nil error for logged, non-fatal rejections (no balance, degenerate
// price); an error is returned only when the spec disallows partial fills
// and the balance is insufficient.
func (m *SpotManager) BuyAmount(spec types.AmountSpec) (bool, error) {
	state := m.state
	if state.quoteBalance.LessThanOrEqual(decimal.Zero) {
		addLog(state, "no quote balance available, cannot execute buy", state.currentIndex, LevelError)
		return false, nil
	}
	price := state.CurrentPrice()
	if price.LessThanOrEqual(decimal.Zero) {
		addLog(state, fmt.Sprintf("candle %d has degenerate price %s, buy rejected", state.currentIndex, price), state.currentIndex, LevelError)
		return false, nil
	}

	baseGained, quoteRemoved, _, err := simulateBuy(price, state.quoteBalance, spec, state.setup.SpotFees)
	if err != nil {
		if errors.Is(err, types.ErrInsufficientBalance) {
			addLog(state, fmt.Sprintf("buy rejected: %v", err), state.currentIndex, LevelError)
		}
		return false, err
	}

	// Defensive: the spec resolution clips to the balance, so this should
	// not occur.
	if quoteRemoved.GreaterThan(state.quoteBalance) {
		addLog(state, fmt.Sprintf("insufficient quote balance to buy %s at %s", spec.Amount, price), state.currentIndex, LevelError)
		return false, nil
	}

	state.baseBalance = state.baseBalance.Add(baseGained)
	state.quoteBalance = state.quoteBalance.Sub(quoteRemoved)
	state.spotTrades = append(state.spotTrades, types.Trade{
		Operation:   types.OperationBuy,
		Price:       price,
		BaseAmount:  baseGained,
		QuoteAmount: quoteRemoved,
		CandleIndex: state.currentIndex,
		CandleTime:  state.CurrentCandle().Time,
	})

	addLog(state, fmt.Sprintf("bought %s base for %s quote at price %s", baseGained, quoteRemoved, price), state.currentIndex, LevelInfo)
	return true, nil
}

// Sell executes a spot sell with the configured default order size.
func (m *SpotManager) Sell() (bool, error) {
	return m.SellAmount(m.state.setup.DefaultSpotSellSize)
}

// SellAmount executes a spot sell with a custom amount spec. Semantics
// mirror BuyAmount with base as the input asset.
func (m *SpotManager) SellAmount(spec types.AmountSpec) (bool, error) {
	state := m.state
	if state.baseBalance.LessThanOrEqual(decimal.Zero) {
		addLog(state, "no base balance available, cannot execute sell", state.currentIndex, LevelError)
		return false, nil
	}
	price := state.CurrentPrice()
	if price.LessThanOrEqual(decimal.Zero) {
		addLog(state, fmt.Sprintf("candle %d has degenerate price %s, sell rejected", state.currentIndex, price), state.currentIndex, LevelError)
		return false, nil
	}

	baseRemoved, quoteGained, _, err := simulateSell(price, state.baseBalance, spec, state.setup.SpotFees)
	if err != nil {
		if errors.Is(err, types.ErrInsufficientBalance) {
			addLog(state, fmt.Sprintf("sell rejected: %v", err), state.currentIndex, LevelError)
		}
		return false, err
	}

	if baseRemoved.GreaterThan(state.baseBalance) {
		addLog(state, fmt.Sprintf("insufficient base balance to sell %s at %s", spec.Amount, price), state.currentIndex, LevelError)
		return false, nil
	}

	state.baseBalance = state.baseBalance.Sub(baseRemoved)
	state.quoteBalance = state.quoteBalance.Add(quoteGained)
	state.spotTrades = append(state.spotTrades, types.Trade{
		Operation:   types.OperationSell,
		Price:       price,
		BaseAmount:  baseRemoved,
		QuoteAmount: quoteGained,
		CandleIndex: state.currentIndex,
		CandleTime:  state.CurrentCandle().Time,
	})

	addLog(state, fmt.Sprintf("sold %s base for %s quote at price %s", baseRemoved, quoteGained, price), state.currentIndex, LevelInfo)
	return true, nil
}
