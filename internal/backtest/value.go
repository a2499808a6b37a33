// Package backtest implements the deterministic candle-replay simulation
// engine: spot trade execution, leveraged margin accounting, and the
// tick-by-tick evaluation loop.
package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

// ToBase expresses a quote amount in the base asset at the given price.
func ToBase(quoteAmount, price decimal.Decimal) decimal.Decimal {
	mustValidPrice(price)
	return quoteAmount.Div(price)
}

// ToQuote expresses a base amount in the quote asset at the given price.
func ToQuote(baseAmount, price decimal.Decimal) decimal.Decimal {
	mustValidPrice(price)
	return baseAmount.Mul(price)
}

// CombinedValue returns the value of both balances together, denominated in
// the requested asset.
//
// Example: base 0.6, quote 600 at price 1000 is 1.2 base or 1200 quote.
func CombinedValue(asset types.AssetType, baseAmount, quoteAmount, price decimal.Decimal) decimal.Decimal {
	mustValidPrice(price)
	if asset == types.AssetBase {
		return baseAmount.Add(quoteAmount.Div(price))
	}
	return quoteAmount.Add(baseAmount.Mul(price))
}

// TradeOutput converts a literal input amount to the output asset of the
// operation, subtracting the literal fees on each side. Buys spend quote and
// receive base; sells spend base and receive quote.
func TradeOutput(op types.TradeOperation, inputAmount, price, baseFee, quoteFee decimal.Decimal) decimal.Decimal {
	switch op {
	case types.OperationBuy:
		return ToBase(inputAmount.Sub(quoteFee), price).Sub(baseFee)
	case types.OperationSell:
		return ToQuote(inputAmount.Sub(baseFee), price).Sub(quoteFee)
	}
	panic(fmt.Sprintf("backtest: unknown trade operation %q", op))
}

// mustValidPrice guards the conversion primitives. A zero or negative price
// is an input validation failure at the call site, never silently handled.
func mustValidPrice(price decimal.Decimal) {
	if price.LessThanOrEqual(decimal.Zero) {
		panic(fmt.Sprintf("backtest: price must be positive, got %s", price))
	}
}
