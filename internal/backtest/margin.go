package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// MarginManager opens and closes leveraged positions against the run state.
// Margin trades never consult the spot fee schedule; opening and closing a
// position is fee-free.
type MarginManager struct {
	state *State
}

// Long opens a margin long with the configured default borrow size and
// returns the new position id.
func (m *MarginManager) Long() (int, error) {
	return m.open(types.DirectionMarginLong, m.state.setup.DefaultMarginLongSize)
}

// LongAmount opens a margin long borrowing a custom amount. The spec
// resolves against the maximum borrowable value (leverage times collateral
// valued in quote).
func (m *MarginManager) LongAmount(spec types.AmountSpec) (int, error) {
	return m.open(types.DirectionMarginLong, spec)
}

// Short opens a margin short with the configured default borrow size and
// returns the new position id.
func (m *MarginManager) Short() (int, error) {
	return m.open(types.DirectionMarginShort, m.state.setup.DefaultMarginShortSize)
}

// ShortAmount opens a margin short borrowing a custom amount. The spec
// resolves against the maximum borrowable value (leverage times collateral
// valued in base).
func (m *MarginManager) ShortAmount(spec types.AmountSpec) (int, error) {
	return m.open(types.DirectionMarginShort, spec)
}

func (m *MarginManager) open(direction types.TradeDirection, spec types.AmountSpec) (int, error) {
	state := m.state
	price := state.CurrentPrice()
	if price.LessThanOrEqual(decimal.Zero) {
		addLog(state, fmt.Sprintf("candle %d has degenerate price %s, margin open rejected", state.currentIndex, price), state.currentIndex, LevelError)
		return 0, fmt.Errorf("cannot open margin position at price %s", price)
	}

	pos, err := openPosition(direction, price, spec,
		state.baseBalance, state.quoteBalance,
		state.setup.LeverageRatio, state.setup.LiquidationRatio)
	if err != nil {
		addLog(state, fmt.Sprintf("margin open rejected: %v", err), state.currentIndex, LevelError)
		return 0, err
	}

	id := state.nextPositionID
	state.nextPositionID++
	state.positions[id] = pos
	state.positionOrder = append(state.positionOrder, id)

	side := "long"
	if direction == types.DirectionMarginShort {
		side = "short"
	}
	addLog(state, fmt.Sprintf("opening margin %s (id: %d) at price %s borrowing %s", side, id, price, pos.BorrowedAmount), state.currentIndex, LevelInfo)
	return id, nil
}

// ClosePosition closes a position voluntarily, committing its mark-to-market
// balances regardless of liquidity. The same commit path serves forced
// closes at run end.
func (m *MarginManager) ClosePosition(id int) error {
	state := m.state
	pos, ok := state.positions[id]
	if !ok {
		return fmt.Errorf("unknown margin position id %d", id)
	}
	if pos.Closed {
		return fmt.Errorf("margin position %d is already closed", id)
	}
	closePosition(state, id)
	return nil
}

// ScaleOut realizes part of an open position's traded amount at the current
// price, reducing its size and shifting its open price by the realized
// portion's price delta.
func (m *MarginManager) ScaleOut(id int, amount decimal.Decimal) error {
	state := m.state
	pos, ok := state.positions[id]
	if !ok {
		return fmt.Errorf("unknown margin position id %d", id)
	}
	if err := pos.scaleOut(amount, state.CurrentPrice()); err != nil {
		addLog(state, fmt.Sprintf("scale-out of position %d rejected: %v", id, err), state.currentIndex, LevelError)
		return err
	}
	addLog(state, fmt.Sprintf("scaled out %s from margin position %d, remaining size %s", amount, id, pos.InitialTradedAmount), state.currentIndex, LevelInfo)
	return nil
}

// closePosition commits the unrealized balances of a position into state and
// marks it closed. Used for voluntary closes, forced closes at run end, and
// the illiquid path of the liquidation sweep.
func closePosition(state *State, id int) {
	pos := state.positions[id]
	isLiquid, newBase, newQuote := unrealizedBalances(pos, state.CurrentPrice(), state.baseBalance, state.quoteBalance)

	baseProfit := newBase.Sub(state.baseBalance)
	quoteProfit := newQuote.Sub(state.quoteBalance)
	liquidity, level := "liquid", LevelInfo
	if !isLiquid {
		liquidity, level = "illiquid", LevelWarning
	}
	addLog(state, fmt.Sprintf("closed %s margin position %d with profit %s base and %s quote", liquidity, id, baseProfit, quoteProfit), state.currentIndex, level)

	pos.markClosed()
	state.baseBalance = newBase
	state.quoteBalance = newQuote
}

// liquidityCheckAndClose closes the position only if it is no longer
// liquid at the current price; a liquid position is left untouched.
func liquidityCheckAndClose(state *State, id int) {
	pos := state.positions[id]
	isLiquid, _, _ := unrealizedBalances(pos, state.CurrentPrice(), state.baseBalance, state.quoteBalance)
	if isLiquid {
		return
	}
	closePosition(state, id)
}
