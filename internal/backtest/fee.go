package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

var (
	oneHundred = decimal.NewFromInt(100)
	half       = decimal.NewFromFloat(0.5)
)

// ResolveFeeSource maps a contextual fee source (input/output) onto a
// concrete asset source using the trade's buy/sell polarity, and reports
// that polarity. Non-contextual sources pass through unchanged. Asking for a
// contextual source on a direction without buy/sell polarity is a
// programming error.
func ResolveFeeSource(source types.FeeSource, direction types.TradeDirection) (types.FeeSource, types.TradeOperation) {
	op, hasOp := direction.Operation()

	if source != types.FeeSourceInput && source != types.FeeSourceOutput {
		return source, op
	}
	if !hasOp {
		panic(fmt.Sprintf("backtest: cannot resolve contextual fee source %q for direction %q", source, direction))
	}

	switch op {
	case types.OperationBuy:
		// Buys spend quote and receive base.
		if source == types.FeeSourceInput {
			return types.FeeSourceQuote, op
		}
		return types.FeeSourceBase, op
	default:
		// Sells spend base and receive quote.
		if source == types.FeeSourceInput {
			return types.FeeSourceBase, op
		}
		return types.FeeSourceQuote, op
	}
}

// CalculateFee computes the literal (base, quote) fee pair for one fee rule.
// Percentage fees are always computed against the trade's input amount,
// expressed in whichever denomination the fee is charged in; the output
// amount never factors in.
func CalculateFee(fee types.Fee, direction types.TradeDirection, inputAmount, price decimal.Decimal) (baseFee, quoteFee decimal.Decimal) {
	source, op := ResolveFeeSource(fee.Source, direction)

	// Express the input amount in both denominations. Buys input quote,
	// sells input base.
	var inputAsBase, inputAsQuote decimal.Decimal
	if op == types.OperationBuy {
		inputAsBase = ToBase(inputAmount, price)
		inputAsQuote = inputAmount
	} else {
		inputAsBase = inputAmount
		inputAsQuote = ToQuote(inputAmount, price)
	}

	var baseWeight, quoteWeight decimal.Decimal
	switch source {
	case types.FeeSourceBase:
		baseWeight = decimal.NewFromInt(1)
	case types.FeeSourceQuote:
		quoteWeight = decimal.NewFromInt(1)
	case types.FeeSourceBoth:
		baseWeight = half
		quoteWeight = half
	default:
		panic(fmt.Sprintf("backtest: unresolved fee source %q", source))
	}

	switch fee.Kind {
	case types.AmountAbsolute:
		return fee.Amount.Mul(baseWeight), fee.Amount.Mul(quoteWeight)
	case types.AmountPercentage:
		ratio := fee.Amount.Div(oneHundred)
		return inputAsBase.Mul(ratio).Mul(baseWeight), inputAsQuote.Mul(ratio).Mul(quoteWeight)
	}
	panic(fmt.Sprintf("backtest: invalid fee amount kind %q", fee.Kind))
}

// CombinedFees sums the fee pairs of an ordered fee list. Each fee is
// computed independently against the same input amount, so the order never
// changes the total; fees do not compound.
func CombinedFees(fees []types.Fee, direction types.TradeDirection, inputAmount, price decimal.Decimal) (baseFee, quoteFee decimal.Decimal) {
	baseFee, quoteFee = decimal.Zero, decimal.Zero
	for _, fee := range fees {
		b, q := CalculateFee(fee, direction, inputAmount, price)
		baseFee = baseFee.Add(b)
		quoteFee = quoteFee.Add(q)
	}
	return baseFee, quoteFee
}
