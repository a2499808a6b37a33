package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// Position is an open or closed leveraged margin position. Aside from the
// one-way Closed transition it is immutable after opening.
type Position struct {
	// OpenPrice is the price the position was opened at. Scale-outs adjust
	// it by the realized portion's price delta.
	OpenPrice decimal.Decimal `json:"openPrice"`
	// BorrowedAmount is denominated in quote for longs, base for shorts.
	BorrowedAmount decimal.Decimal `json:"borrowedAmount"`
	// InitialTradedAmount is what the borrowed amount was exchanged into:
	// base for longs, quote for shorts.
	InitialTradedAmount decimal.Decimal `json:"initialTradedAmount"`
	// Direction is DirectionMarginLong or DirectionMarginShort.
	Direction        types.TradeDirection `json:"direction"`
	LeverageRatio    decimal.Decimal      `json:"leverageRatio"`
	LiquidationRatio decimal.Decimal      `json:"liquidationRatio"`
	// Closed reports whether the position has been closed. Mutated only by
	// markClosed.
	Closed bool `json:"closed"`
}

// borrowAsset returns the asset borrowed for a margin direction: quote for
// longs, base for shorts. Any other direction is a programming error.
func borrowAsset(direction types.TradeDirection) types.AssetType {
	switch direction {
	case types.DirectionMarginLong:
		return types.AssetQuote
	case types.DirectionMarginShort:
		return types.AssetBase
	}
	panic(fmt.Sprintf("backtest: direction %q has no borrow asset", direction))
}

// openPosition creates a margin position by borrowing against the combined
// collateral. The amount spec resolves against the maximum borrowable value
// (leverage times the collateral valued in the borrow asset); the borrowed
// amount is then fully exchanged into the other asset at openPrice.
func openPosition(
	direction types.TradeDirection,
	openPrice decimal.Decimal,
	spec types.AmountSpec,
	baseCollateral, quoteCollateral decimal.Decimal,
	leverageRatio, liquidationRatio decimal.Decimal,
) (*Position, error) {
	if direction != types.DirectionMarginLong && direction != types.DirectionMarginShort {
		return nil, fmt.Errorf("margin position direction must be long or short, got %q", direction)
	}

	asset := borrowAsset(direction)
	maxBorrowable := leverageRatio.Mul(CombinedValue(asset, baseCollateral, quoteCollateral, openPrice))
	borrowed, _, err := spec.Resolve(maxBorrowable)
	if err != nil {
		return nil, fmt.Errorf("resolving borrow amount: %w", err)
	}
	if borrowed.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("borrowed amount must be positive, got %s", borrowed)
	}

	// Longs exchange borrowed quote into base, shorts borrowed base into
	// quote.
	var traded decimal.Decimal
	if direction == types.DirectionMarginLong {
		traded = ToBase(borrowed, openPrice)
	} else {
		traded = ToQuote(borrowed, openPrice)
	}

	return &Position{
		OpenPrice:           openPrice,
		BorrowedAmount:      borrowed,
		InitialTradedAmount: traded,
		Direction:           direction,
		LeverageRatio:       leverageRatio,
		LiquidationRatio:    liquidationRatio,
	}, nil
}

// unrealizedBalances marks the position to market at tickPrice and returns
// the collateral balances as they would be if it were closed right now,
// along with whether the position is still liquid. It is pure; both the
// passive liquidation sweep and the close path go through it so the two can
// never diverge.
//
// A position may drive one balance to zero, in which case the deficit is
// absorbed by the other asset at tickPrice; balances are never reported
// negative.
func unrealizedBalances(pos *Position, tickPrice, baseCollateral, quoteCollateral decimal.Decimal) (isLiquid bool, newBase, newQuote decimal.Decimal) {
	asset := borrowAsset(pos.Direction)

	// Value the held amount in the borrowed asset; the surplus over the
	// loan is the signed P/L.
	var repayable decimal.Decimal
	if pos.Direction == types.DirectionMarginLong {
		repayable = ToQuote(pos.InitialTradedAmount, tickPrice)
	} else {
		repayable = ToBase(pos.InitialTradedAmount, tickPrice)
	}
	loanPL := repayable.Sub(pos.BorrowedAmount)

	newBase = baseCollateral
	newQuote = quoteCollateral
	if pos.Direction == types.DirectionMarginLong {
		newBase = newBase.Add(ToBase(loanPL, tickPrice))
	} else {
		newQuote = newQuote.Add(ToQuote(loanPL, tickPrice))
	}

	// Clamp a negative side to zero, absorbing the deficit on the other
	// side so combined value is continuous across the clamp. If the loss
	// exceeds both balances the account is wiped: the absorbing side is
	// clamped too and the liquidity test below fails.
	if newBase.IsNegative() {
		newQuote = newQuote.Add(ToQuote(newBase, tickPrice))
		newBase = decimal.Zero
	} else if newQuote.IsNegative() {
		newBase = newBase.Add(ToBase(newQuote, tickPrice))
		newQuote = decimal.Zero
	}
	if newBase.IsNegative() {
		newBase = decimal.Zero
	}
	if newQuote.IsNegative() {
		newQuote = decimal.Zero
	}

	combined := CombinedValue(asset, newBase, newQuote, tickPrice)
	isLiquid = combined.GreaterThan(pos.BorrowedAmount.Mul(pos.LiquidationRatio))
	return isLiquid, newBase, newQuote
}

// markClosed transitions the position to closed. Closing twice is a
// programming error, not a recoverable condition.
func (p *Position) markClosed() {
	if p.Closed {
		panic("backtest: position is already closed")
	}
	p.Closed = true
}

// scaleOut reduces the position by realizing a part of its traded amount at
// tickPrice. The open price shifts by the realized portion's price delta so
// the remaining position carries the same unrealized P/L per unit.
func (p *Position) scaleOut(amount, tickPrice decimal.Decimal) error {
	if p.Closed {
		return fmt.Errorf("cannot scale out a closed position")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("scale-out amount must be positive, got %s", amount)
	}
	if amount.GreaterThanOrEqual(p.InitialTradedAmount) {
		return fmt.Errorf("scale-out amount %s must be below the position size %s", amount, p.InitialTradedAmount)
	}

	remaining := p.InitialTradedAmount.Sub(amount)
	sign := decimal.NewFromInt(1)
	if p.Direction == types.DirectionMarginLong {
		sign = decimal.NewFromInt(-1)
	}
	delta := sign.Mul(amount.Div(remaining).Mul(tickPrice.Sub(p.OpenPrice)))

	p.InitialTradedAmount = remaining
	p.OpenPrice = p.OpenPrice.Add(delta)
	return nil
}
