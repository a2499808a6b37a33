package backtest

import (
	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// simulateBuy computes the effect of a spot buy without touching any state.
// The amount spec is resolved against the available quote balance, fees are
// charged against the resolved input, and the base gained is what remains
// after both fee sides. fullAmount is false when the request was clipped to
// the balance; err is non-nil only when clipping was needed but the spec
// disallows partial fills.
func simulateBuy(price decimal.Decimal, availableQuote decimal.Decimal, spec types.AmountSpec, fees []types.Fee) (baseGained, quoteRemoved decimal.Decimal, fullAmount bool, err error) {
	input, fullAmount, err := spec.Resolve(availableQuote)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}

	baseFee, quoteFee := CombinedFees(fees, types.DirectionSpotBuy, input, price)
	baseGained = TradeOutput(types.OperationBuy, input.Sub(quoteFee), price, baseFee, decimal.Zero)
	return baseGained, input, fullAmount, nil
}

// simulateSell is the mirror of simulateBuy: base is the input, quote the
// output.
func simulateSell(price decimal.Decimal, availableBase decimal.Decimal, spec types.AmountSpec, fees []types.Fee) (baseRemoved, quoteGained decimal.Decimal, fullAmount bool, err error) {
	input, fullAmount, err := spec.Resolve(availableBase)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}

	baseFee, quoteFee := CombinedFees(fees, types.DirectionSpotSell, input, price)
	quoteGained = TradeOutput(types.OperationSell, input.Sub(baseFee), price, decimal.Zero, quoteFee)
	return input, quoteGained, fullAmount, nil
}
