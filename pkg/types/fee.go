package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeSource defines which asset a fee is taken from. Input and Output are
// contextual: they resolve to Base or Quote depending on whether the
// enclosing trade is a buy or a sell.
type FeeSource string

const (
	FeeSourceBase  FeeSource = "base"
	FeeSourceQuote FeeSource = "quote"
	// FeeSourceInput charges the asset being spent by the trade.
	FeeSourceInput FeeSource = "input"
	// FeeSourceOutput charges the asset being received by the trade.
	FeeSourceOutput FeeSource = "output"
	// FeeSourceBoth splits the fee evenly across both assets.
	FeeSourceBoth FeeSource = "both"
)

// Fee is one fee rule applied to a trade. Immutable once constructed.
type Fee struct {
	Kind   AmountKind      `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
	Source FeeSource       `json:"source"`
}

// NewFee validates and creates a fee rule. Percentage fees must be in
// [0, 100]; AmountMax is rejected since it would consume the whole balance.
func NewFee(kind AmountKind, amount decimal.Decimal, source FeeSource) (Fee, error) {
	switch kind {
	case AmountAbsolute:
		if amount.LessThanOrEqual(decimal.Zero) {
			return Fee{}, fmt.Errorf("absolute fee must be greater than 0, got %s", amount)
		}
	case AmountPercentage:
		if amount.IsNegative() || amount.GreaterThan(decimal.NewFromInt(100)) {
			return Fee{}, fmt.Errorf("percentage fee must be between 0 and 100, got %s", amount)
		}
	case AmountMax:
		return Fee{}, fmt.Errorf("max fees are not allowed as they would consume the whole balance")
	default:
		return Fee{}, fmt.Errorf("unknown amount kind %q", kind)
	}
	switch source {
	case FeeSourceBase, FeeSourceQuote, FeeSourceInput, FeeSourceOutput, FeeSourceBoth:
	default:
		return Fee{}, fmt.Errorf("unknown fee source %q", source)
	}
	return Fee{Kind: kind, Amount: amount, Source: source}, nil
}
